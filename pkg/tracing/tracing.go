// Package tracing configures the OpenTelemetry tracer provider.
package tracing

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.27.0"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultServiceName = "codesync"
	defaultSampleRatio = 0.1
	batchTimeout       = 5 * time.Second
)

// ShutdownFunc flushes and stops the tracer provider.
type ShutdownFunc func(context.Context) error

// Option configures Init.
type Option func(*settings)

type settings struct {
	serviceName string
	version     string
	environment string
	endpoint    string
	insecure    bool
	sampleRatio float64
	writer      io.Writer
}

// WithServiceName sets the service.name resource attribute.
func WithServiceName(name string) Option {
	return func(s *settings) {
		if name = strings.TrimSpace(name); name != "" {
			s.serviceName = name
		}
	}
}

// WithVersion sets the service.version resource attribute.
func WithVersion(v string) Option {
	return func(s *settings) { s.version = strings.TrimSpace(v) }
}

// WithEnvironment sets the deployment.environment attribute.
func WithEnvironment(env string) Option {
	return func(s *settings) { s.environment = strings.TrimSpace(env) }
}

// WithOTLPEndpoint exports spans over OTLP/HTTP instead of stdout.
func WithOTLPEndpoint(endpoint string, insecure bool) Option {
	return func(s *settings) {
		s.endpoint = strings.TrimSpace(endpoint)
		s.insecure = insecure
	}
}

// WithSampleRatio sets the parent-based trace id ratio, clamped to [0, 1].
func WithSampleRatio(r float64) Option {
	return func(s *settings) {
		switch {
		case r < 0:
			s.sampleRatio = 0
		case r > 1:
			s.sampleRatio = 1
		default:
			s.sampleRatio = r
		}
	}
}

// WithWriter redirects the stdout exporter.
func WithWriter(w io.Writer) Option {
	return func(s *settings) {
		if w != nil {
			s.writer = w
		}
	}
}

// Init installs a global tracer provider. When enabled is false the global
// no-op provider stays in place and the returned shutdown does nothing.
func Init(ctx context.Context, enabled bool, opts ...Option) (ShutdownFunc, error) {
	if !enabled {
		return func(context.Context) error { return nil }, nil
	}

	s := settings{serviceName: defaultServiceName, sampleRatio: defaultSampleRatio, writer: os.Stdout}
	for _, opt := range opts {
		opt(&s)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(s.serviceName),
			semconv.ServiceVersionKey.String(s.version),
			attribute.String("deployment.environment", s.environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("otel resource: %w", err)
	}

	exporter, err := buildExporter(ctx, s)
	if err != nil {
		return nil, fmt.Errorf("otel exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(batchTimeout)),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(s.sampleRatio))),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return tp.Shutdown, nil
}

func buildExporter(ctx context.Context, s settings) (sdktrace.SpanExporter, error) {
	if s.endpoint != "" {
		opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(s.endpoint)}
		if s.insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		return otlptracehttp.New(ctx, opts...)
	}
	return stdouttrace.New(stdouttrace.WithWriter(s.writer))
}

// Tracer returns a named tracer from the global provider.
func Tracer(name string) trace.Tracer {
	return otel.Tracer("github.com/okian/codesync/" + name)
}
