// Package observability provides OpenTelemetry tracing and metrics for
// the outreach engine: OTLP gRPC export, RED metrics over drain cycles,
// and domain counters for compliance denials and reasoning spend.
package observability

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// Config configures the OpenTelemetry providers.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	OTLPEndpoint   string  // e.g. "localhost:4317"
	SampleRate     float64 // 0.0 to 1.0
	BatchTimeout   time.Duration
	Enabled        bool
	Insecure       bool
}

// DefaultConfig returns development defaults.
func DefaultConfig() *Config {
	return &Config{
		ServiceName:    "outreach-engine",
		ServiceVersion: "1.0.0",
		Environment:    "development",
		OTLPEndpoint:   "localhost:4317",
		SampleRate:     1.0,
		BatchTimeout:   5 * time.Second,
		Enabled:        true,
		Insecure:       true,
	}
}

// Provider manages the trace and metric providers plus the engine's
// domain instruments. All Record methods are safe to call on a disabled
// provider; they become no-ops.
type Provider struct {
	config         *Config
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	tracer         trace.Tracer
	meter          metric.Meter
	log            zerolog.Logger

	attemptCounter  metric.Int64Counter
	denialCounter   metric.Int64Counter
	drainDuration   metric.Float64Histogram
	reasoningTokens metric.Int64Counter
	reasoningCost   metric.Float64Counter
}

// New creates the provider and registers it globally.
func New(ctx context.Context, config *Config, log zerolog.Logger) (*Provider, error) {
	if config == nil {
		config = DefaultConfig()
	}

	p := &Provider{
		config: config,
		log:    log.With().Str("component", "observability").Logger(),
	}

	if !config.Enabled {
		p.log.Info().Msg("observability disabled")
		return p, nil
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(config.ServiceName),
			semconv.ServiceVersion(config.ServiceVersion),
			semconv.DeploymentEnvironment(config.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	if err := p.initTraceProvider(ctx, res); err != nil {
		return nil, fmt.Errorf("init trace provider: %w", err)
	}
	if err := p.initMetricProvider(ctx, res); err != nil {
		return nil, fmt.Errorf("init metric provider: %w", err)
	}

	p.tracer = otel.Tracer("outreach",
		trace.WithInstrumentationVersion(config.ServiceVersion))
	p.meter = otel.Meter("outreach",
		metric.WithInstrumentationVersion(config.ServiceVersion))

	if err := p.initInstruments(); err != nil {
		return nil, fmt.Errorf("init instruments: %w", err)
	}

	p.log.Info().
		Str("service", config.ServiceName).
		Str("endpoint", config.OTLPEndpoint).
		Float64("sample_rate", config.SampleRate).
		Msg("observability initialized")
	return p, nil
}

func (p *Provider) initTraceProvider(ctx context.Context, res *resource.Resource) error {
	opts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(p.config.OTLPEndpoint),
	}
	if p.config.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}

	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return fmt.Errorf("create trace exporter: %w", err)
	}

	var sampler sdktrace.Sampler
	switch {
	case p.config.SampleRate >= 1.0:
		sampler = sdktrace.AlwaysSample()
	case p.config.SampleRate <= 0.0:
		sampler = sdktrace.NeverSample()
	default:
		sampler = sdktrace.TraceIDRatioBased(p.config.SampleRate)
	}

	p.tracerProvider = sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter,
			sdktrace.WithBatchTimeout(p.config.BatchTimeout)),
		sdktrace.WithSampler(sampler),
	)

	otel.SetTracerProvider(p.tracerProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return nil
}

func (p *Provider) initMetricProvider(ctx context.Context, res *resource.Resource) error {
	opts := []otlpmetricgrpc.Option{
		otlpmetricgrpc.WithEndpoint(p.config.OTLPEndpoint),
	}
	if p.config.Insecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}

	exporter, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return fmt.Errorf("create metric exporter: %w", err)
	}

	p.meterProvider = sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter,
			sdkmetric.WithInterval(15*time.Second))),
	)
	otel.SetMeterProvider(p.meterProvider)
	return nil
}

func (p *Provider) initInstruments() error {
	var err error

	p.attemptCounter, err = p.meter.Int64Counter("outreach.attempts.total",
		metric.WithDescription("Outreach attempts resolved, by channel and disposition"),
		metric.WithUnit("{attempt}"))
	if err != nil {
		return err
	}

	p.denialCounter, err = p.meter.Int64Counter("outreach.denials.total",
		metric.WithDescription("Compliance gate denials, by reason"),
		metric.WithUnit("{denial}"))
	if err != nil {
		return err
	}

	p.drainDuration, err = p.meter.Float64Histogram("outreach.drain.duration",
		metric.WithDescription("Drain cycle duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0))
	if err != nil {
		return err
	}

	p.reasoningTokens, err = p.meter.Int64Counter("outreach.reasoning.tokens",
		metric.WithDescription("Tokens consumed by reasoning calls, by direction"),
		metric.WithUnit("{token}"))
	if err != nil {
		return err
	}

	p.reasoningCost, err = p.meter.Float64Counter("outreach.reasoning.cost",
		metric.WithDescription("Cumulative reasoning spend"),
		metric.WithUnit("USD"))
	return err
}

// Shutdown flushes and stops the providers.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.tracerProvider != nil {
		if err := p.tracerProvider.Shutdown(ctx); err != nil {
			p.log.Error().Err(err).Msg("trace provider shutdown")
		}
	}
	if p.meterProvider != nil {
		if err := p.meterProvider.Shutdown(ctx); err != nil {
			p.log.Error().Err(err).Msg("metric provider shutdown")
		}
	}
	return nil
}

// Tracer returns the configured tracer.
func (p *Provider) Tracer() trace.Tracer {
	if p.tracer == nil {
		return otel.Tracer("outreach")
	}
	return p.tracer
}

// StartSpan starts a span with the given name.
func (p *Provider) StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return p.Tracer().Start(ctx, name, opts...)
}

// RecordAttempt counts one resolved attempt.
func (p *Provider) RecordAttempt(ctx context.Context, channel, disposition string) {
	if p.attemptCounter != nil {
		p.attemptCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("channel", channel),
			attribute.String("disposition", disposition)))
	}
}

// RecordDenial counts one compliance gate deny.
func (p *Provider) RecordDenial(ctx context.Context, reason string) {
	if p.denialCounter != nil {
		p.denialCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("reason", reason)))
	}
}

// RecordDrain records one drain cycle's duration and outcome counts.
func (p *Provider) RecordDrain(ctx context.Context, duration time.Duration, resolved, failed int) {
	if p.drainDuration != nil {
		p.drainDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
			attribute.Int("resolved", resolved),
			attribute.Int("failed", failed)))
	}
}

// RecordReasoning accumulates token and dollar spend for one call.
func (p *Provider) RecordReasoning(ctx context.Context, model string, tokensIn, tokensOut int, costUSD float64) {
	attrs := metric.WithAttributes(attribute.String("model", model))
	if p.reasoningTokens != nil {
		p.reasoningTokens.Add(ctx, int64(tokensIn), attrs,
			metric.WithAttributes(attribute.String("direction", "input")))
		p.reasoningTokens.Add(ctx, int64(tokensOut), attrs,
			metric.WithAttributes(attribute.String("direction", "output")))
	}
	if p.reasoningCost != nil {
		p.reasoningCost.Add(ctx, costUSD, attrs)
	}
}
