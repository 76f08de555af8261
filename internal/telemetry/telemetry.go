// Package telemetry provides OpenTelemetry instrumentation for azalert.
package telemetry

import (
	"context"
	"fmt"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/yairfalse/azalert/internal/config"
)

const instrumentationName = "github.com/yairfalse/azalert"

// ServiceName is stamped on every log event.
const ServiceName = "azalert"

// Provider wraps OTEL tracer and meter providers.
//
// Metrics are always readable from a private prometheus registry so a run can
// dump them to a textfile. OTLP export of traces and metrics is optional.
type Provider struct {
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	registry       *promclient.Registry
	tracer         trace.Tracer
	meter          metric.Meter

	// Metrics
	stepDuration     metric.Float64Histogram
	resourcesCreated metric.Int64Counter
	stepErrors       metric.Int64Counter
	cleanups         metric.Int64Counter
	policyViolations metric.Int64Counter
}

// NewProvider creates a new telemetry provider.
func NewProvider(ctx context.Context, cfg config.OTELConfig) (*Provider, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	p := &Provider{}

	if err := p.setupTracing(ctx, cfg, res); err != nil {
		return nil, err
	}

	if err := p.setupMetrics(ctx, cfg, res); err != nil {
		_ = p.tracerProvider.Shutdown(ctx)
		return nil, err
	}

	if err := p.initMetrics(); err != nil {
		_ = p.Shutdown(ctx)
		return nil, err
	}

	return p, nil
}

func (p *Provider) setupTracing(ctx context.Context, cfg config.OTELConfig, res *resource.Resource) error {
	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
	}

	if cfg.Traces.Enabled && cfg.Endpoint != "" {
		exp, err := createTraceExporter(ctx, cfg)
		if err != nil {
			return fmt.Errorf("create trace exporter: %w", err)
		}
		sampler := sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.Traces.SampleRate))
		opts = append(opts,
			sdktrace.WithBatcher(exp, sdktrace.WithBatchTimeout(5*time.Second)),
			sdktrace.WithSampler(sampler),
		)
	}

	p.tracerProvider = sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(p.tracerProvider)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	p.tracer = p.tracerProvider.Tracer(instrumentationName)

	return nil
}

// setupMetrics wires the prometheus reader and, when enabled, an OTLP
// periodic reader onto one meter provider.
func (p *Provider) setupMetrics(ctx context.Context, cfg config.OTELConfig, res *resource.Resource) error {
	p.registry = promclient.NewRegistry()
	promExporter, err := prometheus.New(prometheus.WithRegisterer(p.registry))
	if err != nil {
		return fmt.Errorf("create prometheus exporter: %w", err)
	}

	opts := []sdkmetric.Option{
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(promExporter),
	}

	if cfg.Metrics.Enabled && cfg.Endpoint != "" {
		exp, err := createMetricExporter(ctx, cfg)
		if err != nil {
			return fmt.Errorf("create metric exporter: %w", err)
		}
		opts = append(opts, sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(10*time.Second)),
		))
	}

	p.meterProvider = sdkmetric.NewMeterProvider(opts...)
	otel.SetMeterProvider(p.meterProvider)
	p.meter = p.meterProvider.Meter(instrumentationName)

	return nil
}

func createTraceExporter(ctx context.Context, cfg config.OTELConfig) (sdktrace.SpanExporter, error) {
	opts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(cfg.Endpoint),
	}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithDialOption(
			grpc.WithTransportCredentials(insecure.NewCredentials()),
		))
	}
	return otlptracegrpc.New(ctx, opts...)
}

func createMetricExporter(ctx context.Context, cfg config.OTELConfig) (sdkmetric.Exporter, error) {
	opts := []otlpmetricgrpc.Option{
		otlpmetricgrpc.WithEndpoint(cfg.Endpoint),
	}
	if cfg.Insecure {
		opts = append(opts, otlpmetricgrpc.WithDialOption(
			grpc.WithTransportCredentials(insecure.NewCredentials()),
		))
	}
	return otlpmetricgrpc.New(ctx, opts...)
}

func (p *Provider) initMetrics() error {
	var err error

	p.stepDuration, err = p.meter.Float64Histogram(
		"azalert_step_duration_seconds",
		metric.WithDescription("Duration of provisioning steps"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("create step_duration: %w", err)
	}

	p.resourcesCreated, err = p.meter.Int64Counter(
		"azalert_resources_created",
		metric.WithDescription("Total Azure resources created"),
	)
	if err != nil {
		return fmt.Errorf("create resources_created: %w", err)
	}

	p.stepErrors, err = p.meter.Int64Counter(
		"azalert_step_errors",
		metric.WithDescription("Total failed provisioning steps"),
	)
	if err != nil {
		return fmt.Errorf("create step_errors: %w", err)
	}

	p.cleanups, err = p.meter.Int64Counter(
		"azalert_cleanups",
		metric.WithDescription("Cleanup attempts by outcome"),
	)
	if err != nil {
		return fmt.Errorf("create cleanups: %w", err)
	}

	p.policyViolations, err = p.meter.Int64Counter(
		"azalert_policy_violations",
		metric.WithDescription("Total policy violations reported before provisioning"),
	)
	if err != nil {
		return fmt.Errorf("create policy_violations: %w", err)
	}

	return nil
}

// Tracer returns the tracer. A nil provider yields a no-op tracer.
func (p *Provider) Tracer() trace.Tracer {
	if p == nil {
		return otel.Tracer(instrumentationName)
	}
	return p.tracer
}

// Registry returns the prometheus registry holding azalert metrics.
func (p *Provider) Registry() *promclient.Registry {
	return p.registry
}

// StartSpan starts a new span.
func (p *Provider) StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return p.Tracer().Start(ctx, name, opts...)
}

// RecordStep records the duration and result of one provisioning step.
func (p *Provider) RecordStep(ctx context.Context, resourceType string, d time.Duration, err error) {
	if p == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("resource_type", resourceType))
	p.stepDuration.Record(ctx, d.Seconds(), attrs)
	if err != nil {
		p.stepErrors.Add(ctx, 1, attrs)
		return
	}
	p.resourcesCreated.Add(ctx, 1, attrs)
}

// RecordCleanup records a cleanup attempt and its outcome.
func (p *Provider) RecordCleanup(ctx context.Context, outcome string) {
	if p == nil {
		return
	}
	p.cleanups.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordPolicyViolations records violations reported by the policy engine.
func (p *Provider) RecordPolicyViolations(ctx context.Context, count int) {
	if p == nil || count == 0 {
		return
	}
	p.policyViolations.Add(ctx, int64(count))
}

// WriteTextfile writes the current metrics in the prometheus text format,
// suitable for the node_exporter textfile collector.
func (p *Provider) WriteTextfile(path string) error {
	if p == nil || path == "" {
		return nil
	}
	if err := promclient.WriteToTextfile(path, p.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}

// Shutdown flushes and shuts down the providers.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil {
		return nil
	}
	if p.tracerProvider != nil {
		if err := p.tracerProvider.Shutdown(ctx); err != nil {
			return fmt.Errorf("shutdown tracer: %w", err)
		}
	}
	if p.meterProvider != nil {
		if err := p.meterProvider.Shutdown(ctx); err != nil {
			return fmt.Errorf("shutdown meter: %w", err)
		}
	}
	return nil
}
