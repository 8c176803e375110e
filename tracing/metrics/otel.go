/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package metrics records instrumentation health and evaluation results.
//
// Instruments are OpenTelemetry counters describing the engine itself (spans
// opened and closed, backend writes that failed, evaluators that failed).
// The Prometheus collectors expose the evaluation results and summaries the
// engine computes.
package metrics

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// MeterName is the meter all engine instruments are created under.
const MeterName = "chainguard.dev/evaltrace"

// Instruments holds the engine's OpenTelemetry counters. A nil *Instruments
// records nothing.
type Instruments struct {
	spans             metric.Int64Counter
	backendFailures   metric.Int64Counter
	evaluatorFailures metric.Int64Counter
	evaluatorDuration metric.Float64Histogram
}

// NewInstruments creates the engine instruments from the global meter
// provider. A counter that fails to initialize is replaced with a no-op.
func NewInstruments() *Instruments {
	return newInstruments(otel.Meter(MeterName, metric.WithInstrumentationVersion("1.0.0")))
}

// NewInstrumentsWithProvider is NewInstruments over an explicit provider.
func NewInstrumentsWithProvider(mp metric.MeterProvider) *Instruments {
	return newInstruments(mp.Meter(MeterName, metric.WithInstrumentationVersion("1.0.0")))
}

func newInstruments(meter metric.Meter) *Instruments {
	spans, err := meter.Int64Counter("evaltrace.spans",
		metric.WithDescription("The number of spans closed by the recorder"),
		metric.WithUnit("{spans}"))
	if err != nil {
		slog.Warn("Failed to create span counter, metrics will be disabled", "error", err)
		spans = noop.Int64Counter{}
	}

	backendFailures, err := meter.Int64Counter("evaltrace.backend.failures",
		metric.WithDescription("The number of backend calls that failed after retry"),
		metric.WithUnit("{calls}"))
	if err != nil {
		slog.Warn("Failed to create backend failure counter, metrics will be disabled", "error", err)
		backendFailures = noop.Int64Counter{}
	}

	evaluatorFailures, err := meter.Int64Counter("evaltrace.evaluator.failures",
		metric.WithDescription("The number of evaluator invocations that failed"),
		metric.WithUnit("{calls}"))
	if err != nil {
		slog.Warn("Failed to create evaluator failure counter, metrics will be disabled", "error", err)
		evaluatorFailures = noop.Int64Counter{}
	}

	evaluatorDuration, err := meter.Float64Histogram("evaltrace.evaluator.duration",
		metric.WithDescription("Time spent in evaluators"),
		metric.WithUnit("s"))
	if err != nil {
		slog.Warn("Failed to create evaluator duration histogram, metrics will be disabled", "error", err)
		evaluatorDuration = noop.Float64Histogram{}
	}

	return &Instruments{
		spans:             spans,
		backendFailures:   backendFailures,
		evaluatorFailures: evaluatorFailures,
		evaluatorDuration: evaluatorDuration,
	}
}

// RecordSpan counts a closed span.
func (m *Instruments) RecordSpan(ctx context.Context, name string, root bool, status string) {
	if m == nil {
		return
	}
	m.spans.Add(ctx, 1, metric.WithAttributes(
		attribute.String("span.name", name),
		attribute.Bool("span.root", root),
		attribute.String("status", status),
	))
}

// RecordBackendFailure counts a backend call that failed after retry.
func (m *Instruments) RecordBackendFailure(ctx context.Context, operation string) {
	if m == nil {
		return
	}
	m.backendFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("operation", operation)))
}

// RecordEvaluator records one evaluator invocation.
func (m *Instruments) RecordEvaluator(ctx context.Context, span string, seconds float64, failed bool) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("span.name", span))
	m.evaluatorDuration.Record(ctx, seconds, attrs)
	if failed {
		m.evaluatorFailures.Add(ctx, 1, attrs)
	}
}
