// Package telemetry sets up OpenTelemetry tracing and metrics for publish
// runs. Spans and metrics are exported over OTLP/gRPC when an endpoint is
// configured; otherwise no-op providers are used and nothing leaves the
// process.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// InstrumentationName is the tracer name used for all sitesync spans.
const InstrumentationName = "github.com/kubetraining/sitesync"

// Config configures the trace and metric providers.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	Endpoint       string // OTLP gRPC endpoint, e.g. "localhost:4317"; empty disables export
	Insecure       bool
	SampleRate     float64
	BatchTimeout   time.Duration
	MetricInterval time.Duration
}

// DefaultConfig returns the configuration used when none is given.
func DefaultConfig() Config {
	return Config{
		ServiceName:    "sitesync",
		SampleRate:     1.0,
		BatchTimeout:   5 * time.Second,
		MetricInterval: 15 * time.Second,
	}
}

// Enabled reports whether spans and metrics are exported.
func (c Config) Enabled() bool {
	return c.Endpoint != ""
}

// Provider owns the tracer and the metrics used by a run.
type Provider struct {
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	tracer         trace.Tracer
	metrics        *Metrics
}

// Setup creates a Provider for cfg. With no endpoint the returned provider
// is a no-op.
func Setup(ctx context.Context, cfg Config, logger *slog.Logger) (*Provider, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	if !cfg.Enabled() {
		logger.DebugContext(ctx, "telemetry disabled")
		return &Provider{tracer: NoopTracer(), metrics: NoopMetrics()}, nil
	}

	traceOpts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
	metricOpts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		traceOpts = append(traceOpts, otlptracegrpc.WithInsecure())
		metricOpts = append(metricOpts, otlpmetricgrpc.WithInsecure())
	}

	spanExporter, err := otlptracegrpc.New(ctx, traceOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}
	metricExporter, err := otlpmetricgrpc.New(ctx, metricOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create metric exporter: %w", err)
	}

	interval := cfg.MetricInterval
	if interval <= 0 {
		interval = 15 * time.Second
	}

	p, err := newProvider(cfg,
		sdktrace.WithBatcher(spanExporter, sdktrace.WithBatchTimeout(cfg.BatchTimeout)),
		sdkmetric.NewPeriodicReader(metricExporter, sdkmetric.WithInterval(interval)),
	)
	if err != nil {
		return nil, err
	}

	logger.InfoContext(ctx, "telemetry initialized",
		"service", cfg.ServiceName,
		"environment", cfg.Environment,
		"endpoint", cfg.Endpoint,
		"insecure", cfg.Insecure,
	)
	return p, nil
}

// NewWithExporter creates a Provider that hands every span synchronously to
// exporter and exposes metrics through reader.
func NewWithExporter(cfg Config, exporter sdktrace.SpanExporter, reader sdkmetric.Reader) (*Provider, error) {
	return newProvider(cfg, sdktrace.WithSyncer(exporter), reader)
}

func newProvider(cfg Config, processor sdktrace.TracerProviderOption, reader sdkmetric.Reader) (*Provider, error) {
	res, err := newResource(cfg)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler(cfg.SampleRate)),
		processor,
	)
	p := &Provider{
		tracerProvider: tp,
		tracer:         tp.Tracer(InstrumentationName, trace.WithInstrumentationVersion(cfg.ServiceVersion)),
		metrics:        NoopMetrics(),
	}

	if reader != nil {
		p.meterProvider = sdkmetric.NewMeterProvider(sdkmetric.WithResource(res), sdkmetric.WithReader(reader))
		meter := p.meterProvider.Meter(InstrumentationName, metric.WithInstrumentationVersion(cfg.ServiceVersion))
		if p.metrics, err = NewMetrics(meter); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func newResource(cfg Config) (*resource.Resource, error) {
	name := cfg.ServiceName
	if name == "" {
		name = "sitesync"
	}

	attrs := []attribute.KeyValue{semconv.ServiceName(name)}
	if cfg.ServiceVersion != "" {
		attrs = append(attrs, semconv.ServiceVersion(cfg.ServiceVersion))
	}
	if cfg.Environment != "" {
		attrs = append(attrs, semconv.DeploymentEnvironment(cfg.Environment))
	}

	return resource.NewWithAttributes(semconv.SchemaURL, attrs...), nil
}

func sampler(rate float64) sdktrace.Sampler {
	switch {
	case rate >= 1.0:
		return sdktrace.AlwaysSample()
	case rate <= 0.0:
		return sdktrace.NeverSample()
	default:
		return sdktrace.TraceIDRatioBased(rate)
	}
}

// Tracer returns the tracer for sitesync spans.
func (p *Provider) Tracer() trace.Tracer {
	return p.tracer
}

// Metrics returns the run metrics.
func (p *Provider) Metrics() *Metrics {
	return p.metrics
}

// Shutdown flushes pending spans and metrics. It is a no-op for a disabled
// provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	var errs []error
	if p.tracerProvider != nil {
		if err := p.tracerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to shutdown tracer provider: %w", err))
		}
	}
	if p.meterProvider != nil {
		if err := p.meterProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to shutdown meter provider: %w", err))
		}
	}
	return errors.Join(errs...)
}

// End closes span, recording err when it is non-nil.
func End(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// NoopTracer returns a tracer that records nothing.
func NoopTracer() trace.Tracer {
	return noop.NewTracerProvider().Tracer(InstrumentationName)
}
