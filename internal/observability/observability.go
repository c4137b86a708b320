// Package observability configures process-wide logging: a text or JSON
// slog handler on stderr, optionally mirrored to an OpenTelemetry log
// exporter.
package observability

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/contrib/processors/minsev"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	"go.opentelemetry.io/otel/log/global"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

const instrumentationName = "github.com/florianilch/erpctl"

// Log exporters.
const (
	ExporterNone     = "none"
	ExporterStdout   = "stdout"
	ExporterOTLPHTTP = "otlphttp"
	ExporterOTLPGRPC = "otlpgrpc"
)

// Options configures Instrument.
type Options struct {
	Level  slog.Level
	Format string // text or json
	// Exporter selects where OpenTelemetry log records go. Empty means none.
	Exporter string
	// Endpoint overrides the OTLP endpoint URL. Empty uses the exporter's
	// environment-based defaults.
	Endpoint string
	// Writer receives local log output. Defaults to os.Stderr.
	Writer io.Writer
}

// ShutdownFunc flushes and stops telemetry pipelines.
type ShutdownFunc func(context.Context) error

// Instrument installs the default slog logger and, if configured, a global
// OpenTelemetry logger provider. The returned ShutdownFunc flushes pending
// log records and must be called before exit.
func Instrument(ctx context.Context, opts Options) (ShutdownFunc, error) {
	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}

	handlerOpts := &slog.HandlerOptions{Level: opts.Level}

	var local slog.Handler
	switch opts.Format {
	case "", "text":
		local = slog.NewTextHandler(w, handlerOpts)
	case "json":
		local = slog.NewJSONHandler(w, handlerOpts)
	default:
		return nil, fmt.Errorf("unsupported log format: %s", opts.Format)
	}
	local = &traceHandler{Handler: local}

	exporter, err := newExporter(ctx, opts.Exporter, opts.Endpoint, w)
	if err != nil {
		return nil, err
	}

	if exporter == nil {
		slog.SetDefault(slog.New(local))
		return func(context.Context) error { return nil }, nil
	}

	provider := sdklog.NewLoggerProvider(
		sdklog.WithProcessor(minsev.NewLogProcessor(sdklog.NewBatchProcessor(exporter), minSeverity(opts.Level))),
	)
	global.SetLoggerProvider(provider)

	bridge := otelslog.NewHandler(instrumentationName, otelslog.WithLoggerProvider(provider))
	slog.SetDefault(slog.New(fanout{local, bridge}))

	return func(ctx context.Context) error {
		if err := provider.Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("shutting down log provider: %w", err)
		}
		return nil
	}, nil
}

func newExporter(ctx context.Context, kind, endpoint string, w io.Writer) (sdklog.Exporter, error) {
	switch kind {
	case "", ExporterNone:
		return nil, nil
	case ExporterStdout:
		return stdoutlog.New(stdoutlog.WithWriter(w))
	case ExporterOTLPHTTP:
		var opts []otlploghttp.Option
		if endpoint != "" {
			opts = append(opts, otlploghttp.WithEndpointURL(endpoint))
		}
		return otlploghttp.New(ctx, opts...)
	case ExporterOTLPGRPC:
		var opts []otlploggrpc.Option
		if endpoint != "" {
			opts = append(opts, otlploggrpc.WithEndpointURL(endpoint))
		}
		return otlploggrpc.New(ctx, opts...)
	default:
		return nil, fmt.Errorf("unsupported log exporter: %s", kind)
	}
}

// minSeverity maps a slog level to the matching OpenTelemetry severity.
func minSeverity(level slog.Level) minsev.Severity {
	switch {
	case level <= slog.LevelDebug:
		return minsev.SeverityDebug
	case level <= slog.LevelInfo:
		return minsev.SeverityInfo
	case level <= slog.LevelWarn:
		return minsev.SeverityWarn
	default:
		return minsev.SeverityError
	}
}
