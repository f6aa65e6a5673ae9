//go:build otel

package cmd

import (
	"context"
	"log/slog"

	"github.com/nextlevelbuilder/helperd/internal/config"
	"github.com/nextlevelbuilder/helperd/internal/tracing"
	"github.com/nextlevelbuilder/helperd/internal/tracing/otelexport"
)

// initOTelExporter wires the OTLP span exporter when an endpoint is
// configured. Only compiled with -tags otel.
func initOTelExporter(ctx context.Context, cfg *config.Config, collector *tracing.Collector) {
	if collector == nil || cfg.OTLPEndpoint == "" {
		slog.Debug("OTel export available but not enabled (set otlpEndpoint)")
		return
	}

	exp, err := otelexport.New(ctx, otelexport.Config{
		Endpoint: cfg.OTLPEndpoint,
		Protocol: cfg.OTLPProtocol,
		Insecure: cfg.OTLPInsecure,
	})
	if err != nil {
		slog.Warn("failed to create OTel exporter", "error", err)
		return
	}

	collector.SetExporter(exp)
	slog.Info("OpenTelemetry OTLP export enabled",
		"endpoint", cfg.OTLPEndpoint, "protocol", cfg.OTLPProtocol)
}
