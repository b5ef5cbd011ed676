// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package telemetry

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/AleutianAI/halbuild/services/halbuild/config"
)

func resetGlobals(t *testing.T) {
	t.Cleanup(func() {
		otel.SetTracerProvider(tracenoop.NewTracerProvider())
		otel.SetMeterProvider(metricnoop.NewMeterProvider())
	})
}

// =============================================================================
// Setup
// =============================================================================

func TestSetup_None(t *testing.T) {
	resetGlobals(t)
	p, err := Setup(context.Background(), config.TelemetryConfig{Traces: TracesNone, Metrics: MetricsNone}, Options{})
	require.NoError(t, err)
	assert.Nil(t, p.MetricsHandler())
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestSetup_EmptyMeansNone(t *testing.T) {
	resetGlobals(t)
	p, err := Setup(context.Background(), config.TelemetryConfig{}, Options{})
	require.NoError(t, err)
	assert.Nil(t, p.traces)
	assert.Nil(t, p.metrics)
}

func TestSetup_UnknownSink(t *testing.T) {
	resetGlobals(t)
	_, err := Setup(context.Background(), config.TelemetryConfig{Traces: "zipkin"}, Options{})
	assert.ErrorIs(t, err, ErrUnknownSink)
	assert.Contains(t, err.Error(), "zipkin")

	_, err = Setup(context.Background(), config.TelemetryConfig{Metrics: "statsd"}, Options{})
	assert.ErrorIs(t, err, ErrUnknownSink)
}

func TestSetup_StdoutTracesCarryBuildTop(t *testing.T) {
	resetGlobals(t)
	var buf bytes.Buffer
	p, err := Setup(context.Background(), config.TelemetryConfig{Traces: TracesStdout}, Options{
		Version:  "test",
		BuildTop: "/src/aosp",
		Output:   &buf,
	})
	require.NoError(t, err)

	_, span := otel.Tracer("test").Start(context.Background(), "sync.Run")
	span.End()

	require.NoError(t, p.Shutdown(context.Background()))
	out := buf.String()
	assert.Contains(t, out, "sync.Run")
	assert.Contains(t, out, "halbuild.build_top")
	assert.Contains(t, out, "/src/aosp")
	assert.Contains(t, out, ServiceName)
}

func TestSetup_PrometheusMetrics(t *testing.T) {
	resetGlobals(t)
	p, err := Setup(context.Background(), config.TelemetryConfig{Metrics: MetricsPrometheus}, Options{Version: "test"})
	require.NoError(t, err)
	defer p.Shutdown(context.Background())

	m, err := NewSyncMetrics(otel.Meter("test"))
	require.NoError(t, err)
	m.RunsTotal.Add(context.Background(), 1)
	m.ManifestsChanged.Add(context.Background(), 3)

	handler := p.MetricsHandler()
	require.NotNil(t, handler)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, _ := io.ReadAll(rec.Body)
	assert.Contains(t, string(body), "halbuild_runs_total")
	assert.Contains(t, string(body), "halbuild_manifests_changed_total")
	assert.Contains(t, string(body), "go_goroutines")
}

func TestSetup_SeparateRegistries(t *testing.T) {
	resetGlobals(t)
	first, err := Setup(context.Background(), config.TelemetryConfig{Metrics: MetricsPrometheus}, Options{})
	require.NoError(t, err)
	defer first.Shutdown(context.Background())

	second, err := Setup(context.Background(), config.TelemetryConfig{Metrics: MetricsPrometheus}, Options{})
	require.NoError(t, err)
	defer second.Shutdown(context.Background())

	for _, p := range []*Provider{first, second} {
		rec := httptest.NewRecorder()
		p.MetricsHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "go_goroutines")
	}
}

func TestProvider_NilSafe(t *testing.T) {
	var p *Provider
	assert.Nil(t, p.MetricsHandler())
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestCollectorAddress(t *testing.T) {
	tests := []struct {
		endpoint     string
		wantHostPort string
		wantInsecure bool
	}{
		{"localhost:4317", "localhost:4317", true},
		{"http://collector:4317", "collector:4317", true},
		{"https://otel.example.com:443/", "otel.example.com:443", false},
	}
	for _, tt := range tests {
		t.Run(tt.endpoint, func(t *testing.T) {
			hostport, insecure := collectorAddress(tt.endpoint)
			assert.Equal(t, tt.wantHostPort, hostport)
			assert.Equal(t, tt.wantInsecure, insecure)
		})
	}
}

// =============================================================================
// Tracing helpers
// =============================================================================

func TestRecordError(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))

	_, span := tp.Tracer("test").Start(context.Background(), "op")
	RecordError(span, errors.New("boom"))
	RecordError(span, nil)
	RecordError(nil, errors.New("ignored"))
	span.End()

	spans := rec.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "boom", spans[0].Status().Description)
	assert.Len(t, spans[0].Events(), 1)
}

func TestLoggerWithTrace(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	assert.Same(t, logger, LoggerWithTrace(context.Background(), logger))
	assert.Empty(t, TraceID(context.Background()))

	tp := sdktrace.NewTracerProvider()
	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	defer span.End()

	LoggerWithTrace(ctx, logger).Info("hello")
	assert.Contains(t, buf.String(), "trace_id="+TraceID(ctx))
	assert.NotEmpty(t, TraceID(ctx))
}
