// Package otel wires the hub's traces, session metrics and security-event log records to an
// OTLP collector. Without a collector endpoint every signal goes to an in-process no-op provider.
package otel

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	otelmetric "go.opentelemetry.io/otel/metric"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.39.0"

	"sso-hub/internal/telemetry"
)

const (
	instrumentationName = "sso-hub"
	metricInterval      = 10 * time.Second
)

// Providers bundles the SDK providers with the hub's registered instruments.
// Metrics and Events are ready to hand to the session and invitation services.
type Providers struct {
	TracerProvider *sdktrace.TracerProvider
	MeterProvider  *metric.MeterProvider
	LoggerProvider *sdklog.LoggerProvider
	Metrics        *Metrics
	Events         telemetry.EventEmitter
	Shutdown       func(context.Context) error
}

// NewProviders builds the providers for serviceName and registers the hub's counters.
// endpoint is an OTLP gRPC collector given as host:port or a URL (any path is dropped). https
// collectors use TLS unless insecure is set. An empty endpoint yields no-op providers.
func NewProviders(ctx context.Context, endpoint, serviceName string, insecure bool) (*Providers, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		p := &Providers{
			TracerProvider: sdktrace.NewTracerProvider(),
			MeterProvider:  metric.NewMeterProvider(),
			LoggerProvider: sdklog.NewLoggerProvider(),
			Shutdown:       func(context.Context) error { return nil },
		}
		return p, p.instrument()
	}

	target, useTLS, err := collectorTarget(endpoint)
	if err != nil {
		return nil, err
	}
	plaintext := insecure || !useTLS

	res, err := resource.Merge(resource.Default(),
		resource.NewWithAttributes(semconv.SchemaURL, semconv.ServiceNameKey.String(serviceName)))
	if err != nil {
		return nil, err
	}

	var stack shutdownStack
	p := &Providers{Shutdown: stack.run}

	traceOpts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(target)}
	if plaintext {
		traceOpts = append(traceOpts, otlptracegrpc.WithInsecure())
	}
	traceExp, err := otlptracegrpc.New(ctx, traceOpts...)
	if err != nil {
		return nil, fmt.Errorf("trace exporter: %w", err)
	}
	p.TracerProvider = sdktrace.NewTracerProvider(sdktrace.WithBatcher(traceExp), sdktrace.WithResource(res))
	stack.push(p.TracerProvider.Shutdown)

	metricOpts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(target)}
	if plaintext {
		metricOpts = append(metricOpts, otlpmetricgrpc.WithInsecure())
	}
	metricExp, err := otlpmetricgrpc.New(ctx, metricOpts...)
	if err != nil {
		_ = stack.run(ctx)
		return nil, fmt.Errorf("metric exporter: %w", err)
	}
	p.MeterProvider = metric.NewMeterProvider(metric.WithResource(res),
		metric.WithReader(metric.NewPeriodicReader(metricExp, metric.WithInterval(metricInterval))))
	stack.push(p.MeterProvider.Shutdown)

	logOpts := []otlploggrpc.Option{otlploggrpc.WithEndpoint(target)}
	if plaintext {
		logOpts = append(logOpts, otlploggrpc.WithInsecure())
	}
	logExp, err := otlploggrpc.New(ctx, logOpts...)
	if err != nil {
		_ = stack.run(ctx)
		return nil, fmt.Errorf("log exporter: %w", err)
	}
	p.LoggerProvider = sdklog.NewLoggerProvider(sdklog.WithProcessor(sdklog.NewBatchProcessor(logExp)), sdklog.WithResource(res))
	stack.push(p.LoggerProvider.Shutdown)

	if err := p.instrument(); err != nil {
		_ = stack.run(ctx)
		return nil, err
	}
	return p, nil
}

// collectorTarget reduces endpoint to the host:port the gRPC exporters dial and reports whether
// the scheme asks for TLS. A bare host:port is treated as http.
func collectorTarget(endpoint string) (string, bool, error) {
	if !strings.Contains(endpoint, "://") {
		endpoint = "http://" + endpoint
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", false, fmt.Errorf("invalid OTLP endpoint %q: %w", endpoint, err)
	}
	if u.Host == "" {
		return "", false, fmt.Errorf("invalid OTLP endpoint %q: missing host", endpoint)
	}
	return u.Host, u.Scheme == "https", nil
}

// instrument registers the hub's counters and the security-event emitter on p's providers.
func (p *Providers) instrument() error {
	m, err := NewMetrics(p.MeterProvider.Meter(instrumentationName))
	if err != nil {
		return fmt.Errorf("register instruments: %w", err)
	}
	p.Metrics = m
	p.Events = NewEventEmitter(p.LoggerProvider)
	return nil
}

// NewMetrics registers the session and invitation counters on meter.
func NewMetrics(meter otelmetric.Meter) (*Metrics, error) {
	var (
		m   Metrics
		err error
	)
	if m.sessionsCreated, err = meter.Int64Counter("sso.sessions.created",
		otelmetric.WithDescription("Sessions created by login or invitation redemption")); err != nil {
		return nil, err
	}
	if m.rotations, err = meter.Int64Counter("sso.refresh.rotations",
		otelmetric.WithDescription("Refresh token rotations by outcome")); err != nil {
		return nil, err
	}
	if m.revocations, err = meter.Int64Counter("sso.sessions.revoked",
		otelmetric.WithDescription("Sessions revoked by reason")); err != nil {
		return nil, err
	}
	if m.redemptions, err = meter.Int64Counter("sso.invitations.redemptions",
		otelmetric.WithDescription("Invitation redemptions by outcome")); err != nil {
		return nil, err
	}
	return &m, nil
}

// shutdownStack runs provider shutdowns in reverse order of creation.
type shutdownStack struct {
	fns []func(context.Context) error
}

func (s *shutdownStack) push(fn func(context.Context) error) { s.fns = append(s.fns, fn) }

func (s *shutdownStack) run(ctx context.Context) error {
	var all []error
	for i := len(s.fns) - 1; i >= 0; i-- {
		if err := s.fns[i](ctx); err != nil {
			all = append(all, err)
		}
	}
	return errors.Join(all...)
}

// SetGlobal installs the tracer and meter providers for library instrumentation such as otelgrpc.
func (p *Providers) SetGlobal() {
	if p.TracerProvider != nil {
		otel.SetTracerProvider(p.TracerProvider)
	}
	if p.MeterProvider != nil {
		otel.SetMeterProvider(p.MeterProvider)
	}
}
