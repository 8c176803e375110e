/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package metrics

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestObserveEvaluation(t *testing.T) {
	ObserveEvaluation("metrics-test", "helpfulness", 1)
	ObserveEvaluation("metrics-test", "helpfulness", 0)
	ObserveEvaluation("metrics-test", "verdict", "fine")

	labels := prometheus.Labels{"span": "metrics-test", "label": "helpfulness"}
	if got := testutil.ToFloat64(evaluationCounter.With(labels)); got != 2 {
		t.Errorf("evaluations: got = %v, wanted = 2", got)
	}
	if got := testutil.ToFloat64(evaluationGauge.With(labels)); got != 0 {
		t.Errorf("latest result: got = %v, wanted = 0", got)
	}

	verdict := prometheus.Labels{"span": "metrics-test", "label": "verdict"}
	if got := testutil.ToFloat64(evaluationCounter.With(verdict)); got != 1 {
		t.Errorf("string evaluations: got = %v, wanted = 1", got)
	}
}

func TestObserveSummary(t *testing.T) {
	ObserveSummary("fullfilled", "run", 0.5)
	got := testutil.ToFloat64(summaryGauge.With(prometheus.Labels{"label": "fullfilled", "scope": "run"}))
	if got != 0.5 {
		t.Errorf("summary: got = %v, wanted = 0.5", got)
	}
}

func TestInstruments(t *testing.T) {
	ctx := context.Background()
	reader := sdkmetric.NewManualReader()
	m := NewInstrumentsWithProvider(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)))

	m.RecordSpan(ctx, "answer", true, "OK")
	m.RecordSpan(ctx, "answer", true, "OK")
	m.RecordBackendFailure(ctx, "set_tag")
	m.RecordEvaluator(ctx, "answer", 0.25, true)

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}

	sums := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, md := range sm.Metrics {
			if s, ok := md.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range s.DataPoints {
					sums[md.Name] += dp.Value
				}
			}
		}
	}
	for name, want := range map[string]int64{
		"evaltrace.spans":              2,
		"evaltrace.backend.failures":   1,
		"evaltrace.evaluator.failures": 1,
	} {
		if got := sums[name]; got != want {
			t.Errorf("%s: got = %d, wanted = %d", name, got, want)
		}
	}
}

func TestNilInstruments(t *testing.T) {
	var m *Instruments
	// Must not panic.
	m.RecordSpan(context.Background(), "x", false, "OK")
	m.RecordBackendFailure(context.Background(), "x")
	m.RecordEvaluator(context.Background(), "x", 1, false)
}
