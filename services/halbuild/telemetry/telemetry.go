// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package telemetry exports halbuild traces and metrics.
//
// Components record through the global otel API (otel.Tracer, otel.Meter).
// Setup decides, from the telemetry section of the configuration, where
// that data goes. With both sinks set to "none" the global no-op providers
// stay installed.
//
// # Usage
//
//	p, err := telemetry.Setup(ctx, cfg.Telemetry, telemetry.Options{
//	    Version:  version,
//	    BuildTop: cfg.BuildTop,
//	})
//	if err != nil {
//	    return err
//	}
//	defer p.Shutdown(context.Background())
//
//	router := watch.NewRouter(loop, p.MetricsHandler())
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"google.golang.org/grpc"

	"github.com/AleutianAI/halbuild/services/halbuild/config"
)

// ServiceName is reported as service.name on every span and metric.
const ServiceName = "halbuild"

// Trace sinks accepted in telemetry.traces.
const (
	TracesNone   = "none"
	TracesStdout = "stdout"
	TracesOTLP   = "otlp"
)

// Metric sinks accepted in telemetry.metrics.
const (
	MetricsNone       = "none"
	MetricsStdout     = "stdout"
	MetricsPrometheus = "prometheus"
)

// ErrUnknownSink is returned for a sink name Setup does not know.
var ErrUnknownSink = errors.New("unknown telemetry sink")

// Options carries process facts that are not part of the configuration.
type Options struct {
	// Version is reported as service.version.
	Version string

	// BuildTop is recorded as halbuild.build_top so data from several
	// source trees can be told apart.
	BuildTop string

	// Output receives stdout sink data. Defaults to os.Stderr so telemetry
	// never interleaves with command results.
	Output io.Writer
}

// Provider owns the exporters started by Setup.
//
// Thread Safety: MetricsHandler is safe for concurrent use. Shutdown must
// be called once.
type Provider struct {
	traces  *sdktrace.TracerProvider
	metrics *sdkmetric.MeterProvider
	handler http.Handler
}

// traceSinks builds a span exporter per sink name.
var traceSinks = map[string]func(ctx context.Context, cfg config.TelemetryConfig, opts Options) (sdktrace.SpanExporter, error){
	TracesStdout: func(_ context.Context, _ config.TelemetryConfig, opts Options) (sdktrace.SpanExporter, error) {
		return stdouttrace.New(stdouttrace.WithWriter(opts.Output))
	},
	TracesOTLP: func(ctx context.Context, cfg config.TelemetryConfig, opts Options) (sdktrace.SpanExporter, error) {
		hostport, insecure := collectorAddress(cfg.OTLPEndpoint)
		grpcOpts := []otlptracegrpc.Option{
			otlptracegrpc.WithEndpoint(hostport),
			otlptracegrpc.WithDialOption(grpc.WithUserAgent(ServiceName + "/" + opts.Version)),
		}
		if insecure {
			grpcOpts = append(grpcOpts, otlptracegrpc.WithInsecure())
		}
		return otlptracegrpc.New(ctx, grpcOpts...)
	},
}

// metricSinks builds a metric reader per sink name. The handler is non-nil
// only for sinks that are scraped.
var metricSinks = map[string]func(opts Options) (sdkmetric.Reader, http.Handler, error){
	MetricsStdout: func(opts Options) (sdkmetric.Reader, http.Handler, error) {
		exp, err := stdoutmetric.New(stdoutmetric.WithWriter(opts.Output))
		if err != nil {
			return nil, nil, err
		}
		return sdkmetric.NewPeriodicReader(exp), nil, nil
	},
	MetricsPrometheus: func(Options) (sdkmetric.Reader, http.Handler, error) {
		// Each Provider scrapes its own registry.
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		exp, err := promexporter.New(promexporter.WithRegisterer(reg))
		if err != nil {
			return nil, nil, err
		}
		return exp, promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}), nil
	},
}

// Setup starts the sinks selected by cfg and installs them as the global
// otel providers.
//
// # Description
//
// An empty sink name means "none". Unknown names fail before anything is
// started. When the metric sink fails to start, the already started trace
// sink is shut down again.
//
// # Inputs
//
//   - ctx: Used to dial the OTLP collector.
//   - cfg: The telemetry section of the configuration.
//   - opts: Version, build top and stdout sink output.
//
// # Outputs
//
//   - *Provider: Call Shutdown before exit.
//   - error: ErrUnknownSink or an exporter error.
func Setup(ctx context.Context, cfg config.TelemetryConfig, opts Options) (*Provider, error) {
	if opts.Output == nil {
		opts.Output = os.Stderr
	}
	newTraces, err := lookupSink(traceSinks, cfg.Traces, TracesNone)
	if err != nil {
		return nil, err
	}
	newMetrics, err := lookupSink(metricSinks, cfg.Metrics, MetricsNone)
	if err != nil {
		return nil, err
	}

	res := processResource(opts)
	p := &Provider{}

	if newTraces != nil {
		exp, err := newTraces(ctx, cfg, opts)
		if err != nil {
			return nil, fmt.Errorf("start %s traces: %w", cfg.Traces, err)
		}
		p.traces = sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exp),
			sdktrace.WithResource(res),
			sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.AlwaysSample())),
		)
		otel.SetTracerProvider(p.traces)
	}

	if newMetrics != nil {
		reader, handler, err := newMetrics(opts)
		if err != nil {
			_ = p.Shutdown(ctx)
			return nil, fmt.Errorf("start %s metrics: %w", cfg.Metrics, err)
		}
		p.metrics = sdkmetric.NewMeterProvider(sdkmetric.WithResource(res), sdkmetric.WithReader(reader))
		p.handler = handler
		otel.SetMeterProvider(p.metrics)
	}
	return p, nil
}

func lookupSink[F any](sinks map[string]F, name, none string) (F, error) {
	var zero F
	if name == "" || name == none {
		return zero, nil
	}
	f, ok := sinks[name]
	if !ok {
		return zero, fmt.Errorf("%w: %q", ErrUnknownSink, name)
	}
	return f, nil
}

func processResource(opts Options) *resource.Resource {
	attrs := []attribute.KeyValue{
		attribute.String("service.name", ServiceName),
		attribute.String("service.version", opts.Version),
	}
	if host, err := os.Hostname(); err == nil {
		attrs = append(attrs, attribute.String("host.name", host))
	}
	if opts.BuildTop != "" {
		attrs = append(attrs, attribute.String("halbuild.build_top", opts.BuildTop))
	}
	return resource.NewSchemaless(attrs...)
}

// collectorAddress splits an OTLP endpoint into host:port and whether the
// connection is plaintext. Only an https:// endpoint uses TLS; bare
// host:port values target a local collector.
func collectorAddress(endpoint string) (hostport string, insecure bool) {
	switch {
	case strings.HasPrefix(endpoint, "https://"):
		return strings.TrimSuffix(strings.TrimPrefix(endpoint, "https://"), "/"), false
	case strings.HasPrefix(endpoint, "http://"):
		return strings.TrimSuffix(strings.TrimPrefix(endpoint, "http://"), "/"), true
	default:
		return endpoint, true
	}
}

// MetricsHandler returns the scrape handler, or nil unless the prometheus
// sink is active. A nil Provider has no handler.
func (p *Provider) MetricsHandler() http.Handler {
	if p == nil {
		return nil
	}
	return p.handler
}

// Shutdown flushes and stops every started sink.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil {
		return nil
	}
	var errs []error
	if p.traces != nil {
		errs = append(errs, p.traces.Shutdown(ctx))
	}
	if p.metrics != nil {
		errs = append(errs, p.metrics.Shutdown(ctx))
	}
	return errors.Join(errs...)
}
