// Package tracing records one OpenTelemetry span per engine command, nested
// under a span per folder-pair action.
package tracing

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const (
	defaultServiceName  = "fsync"
	defaultOTLPEndpoint = "localhost:4317"
)

// Config is the tracing section of the config file.
type Config struct {
	// Enabled turns tracing on. When false a no-op tracer is used.
	Enabled bool `mapstructure:"enabled"`
	// Exporter is one of "file", "stdout", "otlp" or "none".
	Exporter string `mapstructure:"exporter"`
	// FilePath is the JSONL file for the "file" exporter.
	FilePath string `mapstructure:"file_path"`
	// OTLPEndpoint is the collector address for the "otlp" exporter.
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	// SampleRate is the fraction of traces kept, 0 < rate <= 1.
	SampleRate  float64 `mapstructure:"sample_rate"`
	ServiceName string  `mapstructure:"service_name"`
}

// DefaultConfig returns tracing disabled, exporting to a file when enabled.
func DefaultConfig() Config {
	return Config{
		Exporter:     "file",
		OTLPEndpoint: defaultOTLPEndpoint,
		SampleRate:   1.0,
		ServiceName:  defaultServiceName,
	}
}

type exporterFactory func(ctx context.Context, cfg Config) (sdktrace.SpanExporter, error)

var exporters = map[string]exporterFactory{
	"file": func(_ context.Context, cfg Config) (sdktrace.SpanExporter, error) {
		if cfg.FilePath == "" {
			return nil, errors.New("file_path required for file exporter")
		}
		return NewFileExporter(cfg.FilePath)
	},
	"stdout": func(context.Context, Config) (sdktrace.SpanExporter, error) {
		return stdouttrace.New(stdouttrace.WithPrettyPrint())
	},
	"otlp": func(ctx context.Context, cfg Config) (sdktrace.SpanExporter, error) {
		endpoint := cfg.OTLPEndpoint
		if endpoint == "" {
			endpoint = defaultOTLPEndpoint
		}
		return otlptracegrpc.New(ctx, otlptracegrpc.WithEndpoint(endpoint), otlptracegrpc.WithInsecure())
	},
	"none": func(context.Context, Config) (sdktrace.SpanExporter, error) {
		return nil, nil
	},
}

// Exporters lists the accepted exporter names.
func Exporters() []string {
	names := make([]string, 0, len(exporters))
	for name := range exporters {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Provider owns the tracer provider for the lifetime of the CLI.
type Provider struct {
	sdk    *sdktrace.TracerProvider
	tracer trace.Tracer
}

// Option configures NewProvider.
type Option func(*providerOptions)

type providerOptions struct {
	version string
}

// WithVersion sets the service.version resource attribute.
func WithVersion(v string) Option {
	return func(o *providerOptions) { o.version = v }
}

// NewProvider builds a provider from cfg. A disabled config yields a no-op
// tracer.
func NewProvider(cfg Config, opts ...Option) (*Provider, error) {
	if !cfg.Enabled {
		return &Provider{tracer: noop.NewTracerProvider().Tracer(defaultServiceName)}, nil
	}

	var o providerOptions
	for _, opt := range opts {
		opt(&o)
	}

	name := cmp.Or(cfg.ServiceName, defaultServiceName)
	kind := cmp.Or(cfg.Exporter, "none")
	factory, ok := exporters[kind]
	if !ok {
		return nil, fmt.Errorf("unsupported exporter type: %s (want one of %s)", cfg.Exporter, strings.Join(Exporters(), ", "))
	}
	exporter, err := factory(context.Background(), cfg)
	if err != nil {
		return nil, fmt.Errorf("creating %s exporter: %w", kind, err)
	}

	attrs := []attribute.KeyValue{attribute.String("service.name", name)}
	if o.version != "" {
		attrs = append(attrs, attribute.String("service.version", o.version))
	}
	rate := cfg.SampleRate
	if rate <= 0 || rate > 1 {
		rate = 1.0
	}

	tpOpts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(resource.NewSchemaless(attrs...)),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(rate))),
	}
	if exporter != nil {
		tpOpts = append(tpOpts, sdktrace.WithBatcher(exporter))
	}
	tp := sdktrace.NewTracerProvider(tpOpts...)
	otel.SetTracerProvider(tp)

	return &Provider{sdk: tp, tracer: tp.Tracer(name)}, nil
}

// Tracer returns the tracer. It is never nil.
func (p *Provider) Tracer() trace.Tracer {
	return p.tracer
}

// Enabled reports whether spans are recorded.
func (p *Provider) Enabled() bool {
	return p.sdk != nil
}

// Shutdown flushes pending spans and stops the exporter.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.sdk == nil {
		return nil
	}
	return p.sdk.Shutdown(ctx)
}
