// Package telemetry wires structured logging (log/slog) and
// OpenTelemetry tracing/log export, the way pkg/logging does it in the
// teacher repo: console logging always on, OTLP export opt-in via
// ENABLE_TELEMETRY.
package telemetry

import (
	"context"
	"log/slog"
	"os"
	"strings"

	"wandererkills/internal/platform/config"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
)

// Manager owns the OpenTelemetry providers and the default slog logger.
type Manager struct {
	cfg           config.TelemetryConfig
	shutdownFuncs []func(context.Context) error
	logger        *slog.Logger
}

// NewManager builds a Manager from the telemetry config slice.
func NewManager(cfg config.TelemetryConfig) *Manager {
	return &Manager{cfg: cfg}
}

// Initialize sets up the default slog logger and, if enabled, the
// OpenTelemetry tracing and logging exporters.
func (m *Manager) Initialize(ctx context.Context) error {
	m.setupLogger()

	if !m.cfg.Enable {
		slog.Info("telemetry disabled", "service", m.cfg.ServiceName)
		return nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(m.cfg.ServiceName),
			semconv.ServiceVersionKey.String("1.0.0"),
		),
	)
	if err != nil {
		return err
	}

	if err := m.initTracing(ctx, res); err != nil {
		slog.Warn("failed to initialize tracing", "error", err)
	}
	if err := m.initLogging(ctx, res); err != nil {
		slog.Warn("failed to initialize otel logging", "error", err)
	}

	slog.Info("telemetry initialized", "service", m.cfg.ServiceName, "log_level", m.cfg.LogLevel)
	return nil
}

func (m *Manager) initTracing(ctx context.Context, res *resource.Resource) error {
	exp, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpointURL(m.cfg.OTLPEndpoint),
		otlptracehttp.WithInsecure(),
		otlptracehttp.WithURLPath("/v1/traces"),
	)
	if err != nil {
		return err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	m.shutdownFuncs = append(m.shutdownFuncs, tp.Shutdown)
	return nil
}

func (m *Manager) initLogging(ctx context.Context, res *resource.Resource) error {
	exp, err := otlploghttp.New(ctx,
		otlploghttp.WithEndpointURL(m.cfg.OTLPEndpoint),
		otlploghttp.WithInsecure(),
		otlploghttp.WithURLPath("/v1/logs"),
	)
	if err != nil {
		return err
	}

	lp := sdklog.NewLoggerProvider(
		sdklog.WithProcessor(sdklog.NewBatchProcessor(exp)),
		sdklog.WithResource(res),
	)

	global.SetLoggerProvider(lp)
	m.shutdownFuncs = append(m.shutdownFuncs, lp.Shutdown)
	return nil
}

func (m *Manager) setupLogger() {
	var handler slog.Handler
	level := parseLogLevel(m.cfg.LogLevel)

	opts := &slog.HandlerOptions{Level: level}
	if m.cfg.EnablePrettyLogs {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	if m.cfg.Enable {
		handler = NewOTelHandler(handler)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	m.logger = logger
}

// Shutdown flushes and closes all OpenTelemetry providers.
func (m *Manager) Shutdown(ctx context.Context) error {
	for _, fn := range m.shutdownFuncs {
		if err := fn(ctx); err != nil {
			slog.Error("error shutting down telemetry component", "error", err)
		}
	}
	return nil
}

// Logger returns the process-wide structured logger.
func (m *Manager) Logger() *slog.Logger { return m.logger }

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
