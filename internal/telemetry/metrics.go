package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
)

// Metric names.
const (
	MetricRuns         = "sitesync.runs"
	MetricRunDuration  = "sitesync.run.duration"
	MetricObjects      = "sitesync.objects"
	MetricBytesWritten = "sitesync.bytes.uploaded"
)

// Metrics records the outcome of publish runs.
type Metrics struct {
	runs     metric.Int64Counter
	duration metric.Float64Histogram
	objects  metric.Int64Counter
	bytes    metric.Int64Counter
}

// NewMetrics creates the run instruments on meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.runs, err = meter.Int64Counter(MetricRuns,
		metric.WithDescription("Publish runs by final state"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return nil, err
	}

	m.duration, err = meter.Float64Histogram(MetricRunDuration,
		metric.WithDescription("Publish run duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(1, 5, 10, 30, 60, 120, 300, 600, 1800),
	)
	if err != nil {
		return nil, err
	}

	m.objects, err = meter.Int64Counter(MetricObjects,
		metric.WithDescription("Manifest entries by upload outcome"),
		metric.WithUnit("{object}"),
	)
	if err != nil {
		return nil, err
	}

	m.bytes, err = meter.Int64Counter(MetricBytesWritten,
		metric.WithDescription("Bytes uploaded"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}

// NoopMetrics returns metrics that record nothing.
func NoopMetrics() *Metrics {
	m, _ := NewMetrics(metricnoop.NewMeterProvider().Meter(InstrumentationName))
	return m
}

// RecordRun records a finished run.
func (m *Metrics) RecordRun(ctx context.Context, env, state string, d time.Duration) {
	attrs := metric.WithAttributes(attribute.String("env", env), attribute.String("state", state))
	m.runs.Add(ctx, 1, attrs)
	m.duration.Record(ctx, d.Seconds(), attrs)
}

// RecordUploads records the per-object outcome of a sync.
func (m *Metrics) RecordUploads(ctx context.Context, env string, succeeded, failed, notAttempted int, bytes int64) {
	for outcome, n := range map[string]int{
		"succeeded":     succeeded,
		"failed":        failed,
		"not_attempted": notAttempted,
	} {
		if n > 0 {
			m.objects.Add(ctx, int64(n), metric.WithAttributes(
				attribute.String("env", env), attribute.String("outcome", outcome)))
		}
	}
	m.bytes.Add(ctx, bytes, metric.WithAttributes(attribute.String("env", env)))
}
