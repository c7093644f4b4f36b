// Package telemetry builds the process-wide logger, tracer provider and
// error reporter.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const ServiceName = "ideaforge"

// NewLogger returns a JSON production logger, or a console development
// logger when level is "debug". The logger is also installed as zap.L().
func NewLogger(level string) (*zap.Logger, error) {
	level = strings.ToLower(strings.TrimSpace(level))
	var cfg zap.Config
	if level == "debug" {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
		if level != "" {
			lvl, err := zapcore.ParseLevel(level)
			if err != nil {
				return nil, fmt.Errorf("log level %q: %w", level, err)
			}
			cfg.Level = zap.NewAtomicLevelAt(lvl)
		}
	}
	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	zap.ReplaceGlobals(logger)
	return logger, nil
}

// ShutdownFunc flushes and stops whatever Setup started.
type ShutdownFunc func(context.Context) error

type Options struct {
	TracingEndpoint string
	SentryDSN       string
	Environment     string
	Version         string
}

// Setup starts the OTLP exporter and sentry when they are configured. With
// neither set it returns a no-op shutdown and leaves the global no-op tracer.
func Setup(ctx context.Context, opts Options, logger *zap.Logger) (ShutdownFunc, error) {
	var shutdowns []ShutdownFunc

	if ep := strings.TrimSpace(opts.TracingEndpoint); ep != "" {
		tp, err := newTracerProvider(ctx, ep, opts.Version)
		if err != nil {
			return nil, err
		}
		otel.SetTracerProvider(tp)
		shutdowns = append(shutdowns, tp.Shutdown)
		logger.Info("telemetry tracing_enabled", zap.String("endpoint", ep))
	}

	if dsn := strings.TrimSpace(opts.SentryDSN); dsn != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              dsn,
			Environment:      opts.Environment,
			Release:          ServiceName + "@" + opts.Version,
			EnableTracing:    false,
			AttachStacktrace: true,
		}); err != nil {
			return nil, fmt.Errorf("sentry init: %w", err)
		}
		shutdowns = append(shutdowns, func(context.Context) error {
			sentry.Flush(2 * time.Second)
			return nil
		})
		logger.Info("telemetry sentry_enabled")
	}

	return func(ctx context.Context) error {
		var errs []error
		for i := len(shutdowns) - 1; i >= 0; i-- {
			errs = append(errs, shutdowns[i](ctx))
		}
		return errors.Join(errs...)
	}, nil
}

func newTracerProvider(ctx context.Context, endpoint, version string) (*sdktrace.TracerProvider, error) {
	var opts []otlptracehttp.Option
	if strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") {
		opts = append(opts, otlptracehttp.WithEndpointURL(endpoint))
	} else {
		opts = append(opts, otlptracehttp.WithEndpoint(endpoint), otlptracehttp.WithInsecure())
	}
	exp, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("otlp exporter: %w", err)
	}
	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		attribute.String("service.name", ServiceName),
		attribute.String("service.version", version),
	))
	if err != nil {
		return nil, fmt.Errorf("otel resource: %w", err)
	}
	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	), nil
}
