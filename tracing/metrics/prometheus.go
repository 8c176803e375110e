/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	evaluationCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "evaltrace_evaluations_total",
			Help: "Total number of evaluation results written to traces",
		},
		[]string{"span", "label"},
	)

	evaluationGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "evaltrace_evaluation_result",
			Help: "Most recent numeric evaluation result",
		},
		[]string{"span", "label"},
	)

	summaryGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "evaltrace_summary_metric",
			Help: "Most recent aggregated evaluation result",
		},
		[]string{"label", "scope"},
	)
)

// ObserveEvaluation records an evaluation result written for span. Only
// numeric and boolean values move the gauge.
func ObserveEvaluation(span, label string, value any) {
	labels := prometheus.Labels{"span": span, "label": label}
	evaluationCounter.With(labels).Inc()
	if f, ok := numeric(value); ok {
		evaluationGauge.With(labels).Set(f)
	}
}

// ObserveSummary records an aggregated metric logged against scope
// ("model" or "run").
func ObserveSummary(label, scope string, value float64) {
	summaryGauge.With(prometheus.Labels{"label": label, "scope": scope}).Set(value)
}

func numeric(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}
