// Package telemetry provides OpenTelemetry instrumentation for mirroring runs.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MirrorMetricsMeterName is the name used for the mirroring metrics meter
const MirrorMetricsMeterName = "github.com/tablemirror/tablemirror/pipeline"

// MirrorMetrics holds the OpenTelemetry instruments for mirroring metrics
type MirrorMetrics struct {
	rowsTransferred metric.Int64Counter
	batchDuration   metric.Float64Histogram
	tableDuration   metric.Float64Histogram
	tableSyncs      metric.Int64Counter
}

// NewMirrorMetrics creates a new MirrorMetrics instance with the given meter provider.
// If provider is nil, it returns nil (no-op metrics).
func NewMirrorMetrics(provider metric.MeterProvider) (*MirrorMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	meter := provider.Meter(MirrorMetricsMeterName)

	rowsTransferred, err := meter.Int64Counter(
		"tablemirror_rows_transferred_total",
		metric.WithDescription("Rows committed to the destination"),
		metric.WithUnit("{row}"),
	)
	if err != nil {
		return nil, err
	}

	batchDuration, err := meter.Float64Histogram(
		"tablemirror_batch_duration_seconds",
		metric.WithDescription("Duration of batch extract-transform-load cycles in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60),
	)
	if err != nil {
		return nil, err
	}

	tableDuration, err := meter.Float64Histogram(
		"tablemirror_table_sync_duration_seconds",
		metric.WithDescription("Duration of whole-table syncs in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.5, 1, 5, 15, 60, 300, 900, 1800, 3600),
	)
	if err != nil {
		return nil, err
	}

	tableSyncs, err := meter.Int64Counter(
		"tablemirror_table_syncs_total",
		metric.WithDescription("Table sync attempts by outcome"),
		metric.WithUnit("{sync}"),
	)
	if err != nil {
		return nil, err
	}

	return &MirrorMetrics{
		rowsTransferred: rowsTransferred,
		batchDuration:   batchDuration,
		tableDuration:   tableDuration,
		tableSyncs:      tableSyncs,
	}, nil
}

// RecordBatch records one committed batch for a table.
func (m *MirrorMetrics) RecordBatch(ctx context.Context, table, strategy string, rows int, elapsed time.Duration) {
	if m == nil || m.rowsTransferred == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("table", table),
		attribute.String("strategy", strategy),
	}

	m.rowsTransferred.Add(ctx, int64(rows), metric.WithAttributes(attrs...))
	m.batchDuration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(attrs...))
}

// RecordTableSync records the outcome of one table sync.
func (m *MirrorMetrics) RecordTableSync(ctx context.Context, table, strategy, outcome string, elapsed time.Duration) {
	if m == nil || m.tableSyncs == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("table", table),
		attribute.String("strategy", strategy),
		attribute.String("outcome", outcome),
	}

	m.tableSyncs.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.tableDuration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(attrs...))
}
