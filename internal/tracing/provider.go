package tracing

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
)

// Provider manages the OpenTelemetry trace provider lifecycle. Lifecycle
// transitions and update transactions are the interesting spans: when an
// update goes wrong in the field, the trace shows which step of the swap the
// failure hit.
type Provider struct {
	tp     *sdktrace.TracerProvider
	logger *slog.Logger
}

// TracerConfig holds configuration for trace provider initialization
type TracerConfig struct {
	Enabled     bool
	Exporter    string  // otlp-grpc | stdout
	Endpoint    string  // Exporter endpoint
	SampleRate  float64 // 0.0-1.0 (default: 1.0)
	ServiceName string  // Service name for traces
	Version     string  // Service version for traces
	UseTLS      bool    // Enable TLS for the gRPC exporter
}

// NewProvider creates and initializes a new OpenTelemetry trace provider.
// A disabled config yields a valid Provider whose tracers are no-ops.
func NewProvider(ctx context.Context, cfg TracerConfig, logger *slog.Logger) (*Provider, error) {
	if !cfg.Enabled {
		logger.Debug("Tracing disabled")
		return &Provider{logger: logger}, nil
	}

	logger.Info("Initializing tracing",
		slog.String("exporter", cfg.Exporter),
		slog.String("endpoint", cfg.Endpoint),
		slog.Float64("sample_rate", cfg.SampleRate))

	exporter, err := createExporter(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	version := cfg.Version
	if version == "" {
		version = "unknown"
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(cfg.ServiceName),
			semconv.ServiceVersionKey.String(version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	var sampler sdktrace.Sampler
	switch {
	case cfg.SampleRate >= 1.0:
		sampler = sdktrace.AlwaysSample()
	case cfg.SampleRate <= 0.0:
		sampler = sdktrace.NeverSample()
	default:
		sampler = sdktrace.TraceIDRatioBased(cfg.SampleRate)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)
	otel.SetTracerProvider(tp)

	return &Provider{tp: tp, logger: logger}, nil
}

func createExporter(ctx context.Context, cfg TracerConfig, logger *slog.Logger) (sdktrace.SpanExporter, error) {
	switch cfg.Exporter {
	case "otlp-grpc":
		return createOTLPGRPCExporter(ctx, cfg.Endpoint, cfg.UseTLS, logger)
	case "stdout":
		return stdouttrace.New(stdouttrace.WithPrettyPrint())
	default:
		return nil, fmt.Errorf("unsupported trace exporter: %s (supported: otlp-grpc, stdout)", cfg.Exporter)
	}
}

func createOTLPGRPCExporter(ctx context.Context, endpoint string, useTLS bool, logger *slog.Logger) (sdktrace.SpanExporter, error) {
	var opts []grpc.DialOption
	if useTLS {
		creds := credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS12})
		opts = append(opts, grpc.WithTransportCredentials(creds))
	} else {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
		logger.Warn("OTLP gRPC exporter configured without TLS")
	}

	conn, err := grpc.NewClient(endpoint, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC connection: %w", err)
	}

	exporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP gRPC exporter: %w", err)
	}
	return exporter, nil
}

// Tracer returns a tracer for the given component name
func (p *Provider) Tracer(name string) trace.Tracer {
	if p.tp == nil {
		return noop.NewTracerProvider().Tracer(name)
	}
	return p.tp.Tracer(name)
}

// Enabled returns whether tracing is enabled
func (p *Provider) Enabled() bool {
	return p.tp != nil
}

// Shutdown gracefully shuts down the trace provider
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.tp == nil {
		return nil
	}
	if err := p.tp.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown trace provider: %w", err)
	}
	return nil
}
