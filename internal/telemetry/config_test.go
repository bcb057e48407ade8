package telemetry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Defaults(t *testing.T) {
	t.Parallel()

	cfg := &Config{}
	assert.Equal(t, DefaultServiceName, cfg.GetServiceName())
	assert.Equal(t, DefaultEndpoint, cfg.GetEndpoint())
}

func TestConfig_ConfiguredValues(t *testing.T) {
	t.Parallel()

	cfg := &Config{
		ServiceName: "mirror-prod",
		Endpoint:    "collector.example.com:4318",
	}
	assert.Equal(t, "mirror-prod", cfg.GetServiceName())
	assert.Equal(t, "collector.example.com:4318", cfg.GetEndpoint())
}

func TestTracingConfig_GetSampling(t *testing.T) {
	t.Parallel()

	assert.Equal(t, DefaultSampling, (&TracingConfig{}).GetSampling())
	assert.Equal(t, 0.25, (&TracingConfig{Sampling: 0.25}).GetSampling())
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		config  *Config
		wantErr string
	}{
		{name: "nil config is valid", config: nil},
		{name: "disabled config is valid", config: &Config{Enabled: false}},
		{
			name:   "enabled with no subsystems is valid",
			config: &Config{Enabled: true},
		},
		{
			name: "valid sampling",
			config: &Config{
				Enabled: true,
				Tracing: &TracingConfig{Enabled: true, Sampling: 0.5},
			},
		},
		{
			name: "sampling above one",
			config: &Config{
				Enabled: true,
				Tracing: &TracingConfig{Enabled: true, Sampling: 1.5},
			},
			wantErr: "sampling must be between",
		},
		{
			name: "sampling below zero",
			config: &Config{
				Enabled: true,
				Tracing: &TracingConfig{Enabled: true, Sampling: -0.1},
			},
			wantErr: "sampling must be between",
		},
		{
			name: "disabled tracing skips sampling validation",
			config: &Config{
				Enabled: true,
				Tracing: &TracingConfig{Enabled: false, Sampling: 5},
			},
		},
		{
			name: "metrics enabled is valid",
			config: &Config{
				Enabled: true,
				Metrics: &MetricsConfig{Enabled: true},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := tt.config.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorContains(t, err, tt.wantErr)
		})
	}
}
