/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package tracing

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"chainguard.dev/evaltrace/tracing/aggregate"
	"chainguard.dev/evaltrace/tracing/backend"
	"chainguard.dev/evaltrace/tracing/backend/memory"
	"chainguard.dev/evaltrace/tracing/finder"
	"chainguard.dev/evaltrace/tracing/instrument"
	"chainguard.dev/evaltrace/tracing/mode"
	"chainguard.dev/evaltrace/tracing/retry"
	"chainguard.dev/evaltrace/tracing/tagcodec"
	"github.com/sethvargo/go-envconfig"
)

func fastRetry() retry.Config {
	return retry.Config{MaxRetries: 1, BaseBackoff: time.Millisecond, MaxBackoff: time.Millisecond}
}

func TestDevelopmentEndToEnd(t *testing.T) {
	t.Setenv(mode.EnvIsProduction, "")
	ctx := context.Background()
	be := memory.New()
	be.StartRun()

	tc := New(be, WithRetry(fastRetry()), WithLookuper(envconfig.MapLookuper(map[string]string{
		"DOMINO_AI_SYSTEM_CONFIG_PATH": filepath.Join(t.TempDir(), "absent.yaml"),
	})))
	if _, err := tc.Init(ctx, mode.Options{ExperimentName: "assistant"}); err != nil {
		t.Fatalf("Init: %v", err)
	}

	score := map[string]float64{"a": 0.0, "b": 0.5, "c": 1.0}
	answer := NewTrace(tc, instrument.Options{
		Name: "answer",
		Evaluator: instrument.EvaluatorFor(func(_ context.Context, q string, _ string) (map[string]any, error) {
			return map[string]any{"fullfilled": score[q]}, nil
		}),
	}, func(_ context.Context, q string) (string, error) {
		return "reply " + q, nil
	})
	for _, q := range []string{"a", "b", "c"} {
		if _, err := answer(ctx, q); err != nil {
			t.Fatalf("answer(%s): %v", q, err)
		}
	}

	n := 0
	for s, err := range tc.Find(ctx, finder.Query{ParentTraceName: "answer", EvaluationsOnly: true}) {
		if err != nil {
			t.Fatalf("Find: %v", err)
		}
		if !s.IsRoot() {
			t.Errorf("span %s is not a root", s.ID)
		}
		n++
	}
	if n != 3 {
		t.Errorf("evaluated spans: got = %d, wanted = 3", n)
	}

	s, err := tc.LogSummaryMetric(ctx, "fullfilled", aggregate.Average)
	if err != nil {
		t.Fatalf("LogSummaryMetric: %v", err)
	}
	if s.Value != 0.5 {
		t.Errorf("summary: got = %v, wanted = 0.5", s.Value)
	}
}

func TestProductionEndToEnd(t *testing.T) {
	t.Setenv(mode.EnvIsProduction, "")
	ctx := context.Background()
	be := memory.New()
	be.AddModel(backend.Model{ID: "m-prod", Name: "assistant"})

	tc := New(be, WithRetry(fastRetry()), WithLookuper(envconfig.MapLookuper(map[string]string{
		"DOMINO_AI_SYSTEM_MODEL_ID": "m-prod",
	})))
	id, err := tc.Init(ctx, mode.Options{IsProduction: true})
	if err != nil {
		t.Fatalf("Init: %v", err)
	}

	answer := NewTrace(tc, instrument.Options{Name: "answer"}, func(_ context.Context, q string) (string, error) {
		return q, nil
	})
	if _, err := answer(ctx, "q"); err != nil {
		t.Fatalf("answer: %v", err)
	}

	traces := be.Traces()
	if len(traces) != 1 {
		t.Fatalf("traces: got = %d, wanted = 1", len(traces))
	}
	if traces[0].ModelID != id.Model.ID {
		t.Errorf("trace model: got = %q, wanted = %q", traces[0].ModelID, id.Model.ID)
	}
	if got := traces[0].Tags[tagcodec.KeyIsProduction]; got != "true" {
		t.Errorf("is_production: got = %q, wanted = true", got)
	}

	s, err := tc.LogSummaryMetric(ctx, "helpfulness", aggregate.Average)
	if err != nil {
		t.Fatalf("LogSummaryMetric: %v", err)
	}
	if s.Skipped == nil {
		t.Error("summary over unevaluated production traces should be skipped")
	}
}

func TestFromContext(t *testing.T) {
	ctx := context.Background()
	if FromContext(ctx) != nil {
		t.Error("FromContext(empty): got non-nil")
	}
	tc := New(memory.New())
	if got := FromContext(WithContext(ctx, tc)); got != tc {
		t.Errorf("FromContext: got = %p, wanted = %p", got, tc)
	}
	if _, ok := tc.Identity(); ok {
		t.Error("Identity before Init: got ok")
	}
}
