// Package otelexport ships run spans to an OTLP backend. It implements
// tracing.SpanExporter so the OTel dependency stays out of the core
// execution path.
package otelexport

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/nextlevelbuilder/helperd/internal/tracing"
)

// Config configures the OTLP exporter.
type Config struct {
	Endpoint    string            // OTLP endpoint (e.g. "localhost:4317")
	Protocol    string            // "grpc" (default) or "http"
	Insecure    bool              // skip TLS for local dev
	ServiceName string            // OTel service name (default "helperd")
	Headers     map[string]string // extra headers (auth tokens, etc.)
}

// Exporter converts run spans to OTel spans and exports them via OTLP.
type Exporter struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

// New creates an OTLP exporter with the given config.
func New(ctx context.Context, cfg Config) (*Exporter, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("OTLP endpoint is required")
	}

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "helperd"
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion("1.0.0"),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("otel resource: %w", err)
	}

	var exporter sdktrace.SpanExporter
	switch cfg.Protocol {
	case "http":
		opts := []otlptracehttp.Option{
			otlptracehttp.WithEndpoint(cfg.Endpoint),
		}
		if cfg.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		if len(cfg.Headers) > 0 {
			opts = append(opts, otlptracehttp.WithHeaders(cfg.Headers))
		}
		exporter, err = otlptracehttp.New(ctx, opts...)
	default: // "grpc"
		opts := []otlptracegrpc.Option{
			otlptracegrpc.WithEndpoint(cfg.Endpoint),
		}
		if cfg.Insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		if len(cfg.Headers) > 0 {
			opts = append(opts, otlptracegrpc.WithHeaders(cfg.Headers))
		}
		exporter, err = otlptracegrpc.New(ctx, opts...)
	}
	if err != nil {
		return nil, fmt.Errorf("otel exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter,
			sdktrace.WithMaxExportBatchSize(100),
			sdktrace.WithBatchTimeout(5*time.Second),
		),
		sdktrace.WithResource(res),
	)

	return &Exporter{
		provider: tp,
		tracer:   tp.Tracer("helperd"),
	}, nil
}

// ExportSpans converts run spans to OTel spans. Called by the collector
// during flush; errors are recorded on the span, never propagated.
func (e *Exporter) ExportSpans(ctx context.Context, spans []tracing.RunSpan) {
	if e == nil || len(spans) == 0 {
		return
	}
	for _, s := range spans {
		e.exportSpan(ctx, s)
	}
}

func (e *Exporter) exportSpan(ctx context.Context, s tracing.RunSpan) {
	attrs := []attribute.KeyValue{
		attribute.String("helperd.execution_id", s.ExecutionID),
		attribute.String("helperd.helper_id", s.HelperID),
		attribute.String("helperd.owner_id", s.OwnerID),
		attribute.String("helperd.status", s.Status),
		attribute.Int64("helperd.duration_ms", s.Duration.Milliseconds()),
	}
	if s.ErrorCause != "" {
		attrs = append(attrs, attribute.String("helperd.error_cause", s.ErrorCause))
	}

	_, span := e.tracer.Start(ctx, "helper.run/"+s.HelperID,
		trace.WithTimestamp(s.StartedAt),
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
	)

	if s.Status == "error" || s.Status == "expired" {
		span.SetStatus(codes.Error, s.ErrorCause)
		if s.ErrorCause != "" {
			span.RecordError(fmt.Errorf("%s", s.ErrorCause))
		}
	} else {
		span.SetStatus(codes.Ok, "")
	}

	span.End(trace.WithTimestamp(s.StartedAt.Add(s.Duration)))
}

// Shutdown flushes remaining spans and releases the provider.
func (e *Exporter) Shutdown(ctx context.Context) error {
	if e == nil {
		return nil
	}
	return e.provider.Shutdown(ctx)
}
