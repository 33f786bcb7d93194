// Package otel wires the OpenTelemetry log and metric SDKs for the trainer.
// Logs are batched to a local writer and optionally to an OTLP endpoint;
// metrics are exported periodically to a writer and installed globally so
// package-level meters pick them up.
package otel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

const defaultMetricsPeriod = 30 * time.Second

type Config struct {
	Enabled      bool
	ServiceName  string
	BatchTimeout time.Duration
	LogWriter    io.Writer
	Endpoint     string // OTLP/HTTP, optional
	Insecure     bool

	// MetricWriter nil leaves the global meter provider untouched.
	MetricWriter  io.Writer
	MetricsPeriod time.Duration
}

// Provider owns the SDK providers created by New.
type Provider struct {
	enabled bool
	logs    *sdklog.LoggerProvider
	metrics *sdkmetric.MeterProvider
}

// New builds the providers described by cfg. A disabled config yields a
// Provider whose methods do nothing.
func New(cfg Config) (*Provider, error) {
	if !cfg.Enabled {
		return &Provider{}, nil
	}

	ctx := context.Background()
	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(cfg.ServiceName)))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	processors, err := logProcessors(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if len(processors) == 0 {
		return nil, errors.New("otel enabled without a log writer or endpoint")
	}

	logOpts := []sdklog.LoggerProviderOption{sdklog.WithResource(res)}
	for _, proc := range processors {
		logOpts = append(logOpts, sdklog.WithProcessor(proc))
	}
	p := &Provider{enabled: true, logs: sdklog.NewLoggerProvider(logOpts...)}

	if cfg.MetricWriter != nil {
		if p.metrics, err = meterProvider(res, cfg); err != nil {
			return nil, err
		}
		otel.SetMeterProvider(p.metrics)
	}
	return p, nil
}

func logProcessors(ctx context.Context, cfg Config) ([]sdklog.Processor, error) {
	batch := func(exp sdklog.Exporter) sdklog.Processor {
		return sdklog.NewBatchProcessor(exp, sdklog.WithExportTimeout(cfg.BatchTimeout))
	}

	var out []sdklog.Processor
	if cfg.LogWriter != nil {
		exp, err := stdoutlog.New(stdoutlog.WithWriter(cfg.LogWriter), stdoutlog.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("failed to create file log exporter: %w", err)
		}
		out = append(out, batch(exp))
	}
	if cfg.Endpoint != "" {
		opts := []otlploghttp.Option{otlploghttp.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			opts = append(opts, otlploghttp.WithInsecure())
		}
		exp, err := otlploghttp.New(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP log exporter: %w", err)
		}
		out = append(out, batch(exp))
	}
	return out, nil
}

func meterProvider(res *resource.Resource, cfg Config) (*sdkmetric.MeterProvider, error) {
	exp, err := stdoutmetric.New(stdoutmetric.WithWriter(cfg.MetricWriter))
	if err != nil {
		return nil, fmt.Errorf("failed to create metric exporter: %w", err)
	}
	period := cfg.MetricsPeriod
	if period <= 0 {
		period = defaultMetricsPeriod
	}
	reader := sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(period))
	return sdkmetric.NewMeterProvider(sdkmetric.WithResource(res), sdkmetric.WithReader(reader)), nil
}

// LoggerProvider is nil when disabled.
func (p *Provider) LoggerProvider() *sdklog.LoggerProvider {
	return p.logs
}

func (p *Provider) Enabled() bool {
	return p.enabled
}

// Flush exports pending logs and metrics.
func (p *Provider) Flush(ctx context.Context) error {
	return p.each(ctx, "flush",
		func(ctx context.Context) error { return p.logs.ForceFlush(ctx) },
		func(ctx context.Context) error { return p.metrics.ForceFlush(ctx) },
	)
}

// Shutdown flushes and stops both providers.
func (p *Provider) Shutdown(ctx context.Context) error {
	return p.each(ctx, "shutdown",
		func(ctx context.Context) error { return p.logs.Shutdown(ctx) },
		func(ctx context.Context) error { return p.metrics.Shutdown(ctx) },
	)
}

// each runs the log step then the metric step, skipping providers that
// were never created.
func (p *Provider) each(ctx context.Context, op string, logStep, metricStep func(context.Context) error) error {
	if !p.enabled {
		return nil
	}
	if p.logs != nil {
		if err := logStep(ctx); err != nil {
			return fmt.Errorf("log %s failed: %w", op, err)
		}
	}
	if p.metrics != nil {
		if err := metricStep(ctx); err != nil {
			return fmt.Errorf("metric %s failed: %w", op, err)
		}
	}
	return nil
}
