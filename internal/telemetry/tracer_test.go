package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

func TestNewTracerProvider_DisabledIsNoOp(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	for _, cfg := range []*Config{
		{Enabled: true},
		{Enabled: true, Tracing: &TracingConfig{Enabled: false}},
	} {
		tp, err := newTracerProvider(ctx, cfg, testResource(t))
		require.NoError(t, err)
		_, ok := tp.(noop.TracerProvider)
		assert.True(t, ok, "expected no-op tracer provider")
	}
}

func TestNewTracerProvider_EnabledBuildsSDKProvider(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	cfg := &Config{
		Enabled:  true,
		Insecure: true,
		Tracing:  &TracingConfig{Enabled: true, Sampling: 0.5},
	}
	tp, err := newTracerProvider(ctx, cfg, testResource(t))
	require.NoError(t, err)

	sdkTP, ok := tp.(*sdktrace.TracerProvider)
	require.True(t, ok, "expected SDK tracer provider")
	require.NoError(t, sdkTP.Shutdown(ctx))
}
