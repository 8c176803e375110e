/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package instrument

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"chainguard.dev/evaltrace/tracing/backend"
	"chainguard.dev/evaltrace/tracing/backend/memory"
	"chainguard.dev/evaltrace/tracing/finder"
	"chainguard.dev/evaltrace/tracing/mode"
	"chainguard.dev/evaltrace/tracing/recorder"
	"chainguard.dev/evaltrace/tracing/retry"
	"chainguard.dev/evaltrace/tracing/tagcodec"
	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"
)

type fixedMode struct{ m mode.Mode }

func (f fixedMode) Current() (mode.Identity, bool) {
	return mode.Identity{Mode: f.m}, f.m != mode.Uninitialized
}

var (
	development = fixedMode{mode.Development}
	production  = fixedMode{mode.Production}
)

func setup(t *testing.T, modes ModeSource) (*Instrumenter, *memory.Backend) {
	t.Helper()
	be := memory.New()
	rec := recorder.New(be, recorder.WithRetry(retry.Config{MaxRetries: 1, BaseBackoff: time.Millisecond, MaxBackoff: time.Millisecond}))
	return New(rec, modes), be
}

func echo(_ context.Context, q string) (string, error) {
	return "answer to " + q, nil
}

func onlyTrace(t *testing.T, be *memory.Backend) backend.Trace {
	t.Helper()
	traces := be.Traces()
	if len(traces) != 1 {
		t.Fatalf("traces: got = %d, wanted = 1", len(traces))
	}
	return traces[0]
}

func TestProductionWithoutEvaluator(t *testing.T) {
	ins, be := setup(t, production)
	fn := NewTrace(ins, Options{Name: "answer"}, echo)

	got, err := fn(context.Background(), "q")
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if got != "answer to q" {
		t.Errorf("result: got = %q, wanted = %q", got, "answer to q")
	}

	tr := onlyTrace(t, be)
	want := map[string]string{
		tagcodec.KeyIsEval:       "false",
		tagcodec.KeyIsProduction: "true",
	}
	if diff := cmp.Diff(want, tr.Tags); diff != "" {
		t.Errorf("tags (-want +got):\n%s", diff)
	}
	for k := range tr.Tags {
		if strings.HasPrefix(k, "domino.evaluation_result.") {
			t.Errorf("unexpected evaluation tag %q", k)
		}
	}
}

func TestProductionSkipsEvaluator(t *testing.T) {
	ins, be := setup(t, production)
	called := false
	fn := NewTrace(ins, Options{
		Name: "answer",
		Evaluator: func(context.Context, any, any) (map[string]any, error) {
			called = true
			return map[string]any{"helpfulness": 1}, nil
		},
	}, echo)

	if _, err := fn(context.Background(), "q"); err != nil {
		t.Fatalf("call: %v", err)
	}
	if called {
		t.Error("evaluator ran in production")
	}
	if got := onlyTrace(t, be).Tags[tagcodec.KeyIsEval]; got != "false" {
		t.Errorf("is_eval: got = %q, wanted = false", got)
	}
}

func TestDevelopmentEvaluation(t *testing.T) {
	ins, be := setup(t, development)
	var seenIn, seenOut any
	fn := NewTrace(ins, Options{
		Name: "answer",
		Evaluator: func(_ context.Context, in, out any) (map[string]any, error) {
			seenIn, seenOut = in, out
			return map[string]any{"helpfulness": 1}, nil
		},
	}, echo)

	if _, err := fn(context.Background(), "q"); err != nil {
		t.Fatalf("call: %v", err)
	}

	if diff := cmp.Diff(map[string]any{"args": []any{"q"}}, seenIn); diff != "" {
		t.Errorf("evaluator inputs (-want +got):\n%s", diff)
	}
	if seenOut != "answer to q" {
		t.Errorf("evaluator outputs: got = %v, wanted = %q", seenOut, "answer to q")
	}

	tr := onlyTrace(t, be)
	v, err := tagcodec.DecodeValue(tr.Tags["domino.evaluation_result.helpfulness"])
	if err != nil {
		t.Fatalf("DecodeValue: %v", err)
	}
	if v != int64(1) {
		t.Errorf("helpfulness: got = %#v, wanted = int64(1)", v)
	}
	if got := tr.Tags["domino.evaluation_label.helpfulness"]; got != "true" {
		t.Errorf("marker: got = %q, wanted = true", got)
	}
	if got := tr.Tags[tagcodec.KeyIsEval]; got != "true" {
		t.Errorf("is_eval: got = %q, wanted = true", got)
	}
	if got, want := tr.Tags[tagcodec.SampleKey("answer")], `[{"args":["q"]},"answer to q"]`; got != want {
		t.Errorf("sample: got = %s, wanted = %s", got, want)
	}
}

func TestWrappedFunctionFails(t *testing.T) {
	ins, be := setup(t, development)
	boom := errors.New("upstream timeout")
	called := false
	fn := NewTrace(ins, Options{
		Name:               "answer",
		ExtractOutputField: "choices.0",
		Evaluator: func(context.Context, any, any) (map[string]any, error) {
			called = true
			return nil, nil
		},
	}, func(context.Context, string) (string, error) {
		return "", boom
	})

	if _, err := fn(context.Background(), "q"); err != boom {
		t.Errorf("error: got = %v, wanted = %v", err, boom)
	}
	if called {
		t.Error("evaluator ran after a failed call")
	}

	tr := onlyTrace(t, be)
	if tr.Status != backend.StatusError {
		t.Errorf("status: got = %v, wanted = %v", tr.Status, backend.StatusError)
	}
	want := map[string]string{
		tagcodec.KeyIsEval:             "false",
		tagcodec.KeyIsProduction:       "false",
		tagcodec.KeyExtractOutputField: "choices.0",
	}
	if diff := cmp.Diff(want, tr.Tags); diff != "" {
		t.Errorf("tags (-want +got):\n%s", diff)
	}
}

func TestWrappedFunctionPanics(t *testing.T) {
	ins, be := setup(t, development)
	fn := NewTrace(ins, Options{Name: "answer"}, func(context.Context, string) (string, error) {
		panic("nil map")
	})

	func() {
		defer func() {
			if recover() == nil {
				t.Error("panic was swallowed")
			}
		}()
		_, _ = fn(context.Background(), "q")
	}()

	if got := onlyTrace(t, be).Status; got != backend.StatusError {
		t.Errorf("status: got = %v, wanted = %v", got, backend.StatusError)
	}
}

func TestEvaluatorFailureIsContained(t *testing.T) {
	tests := []struct {
		name      string
		evaluator Evaluator
	}{{
		name: "error",
		evaluator: func(context.Context, any, any) (map[string]any, error) {
			return nil, errors.New("judge unavailable")
		},
	}, {
		name: "panic",
		evaluator: func(context.Context, any, any) (map[string]any, error) {
			panic("index out of range")
		},
	}}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ins, be := setup(t, development)
			fn := NewTrace(ins, Options{Name: "answer", Evaluator: tt.evaluator}, echo)

			got, err := fn(context.Background(), "q")
			if err != nil {
				t.Fatalf("call: %v", err)
			}
			if got != "answer to q" {
				t.Errorf("result: got = %q, wanted = %q", got, "answer to q")
			}

			tr := onlyTrace(t, be)
			if tr.Status != backend.StatusOK {
				t.Errorf("status: got = %v, wanted = %v", tr.Status, backend.StatusOK)
			}
			want := map[string]string{
				tagcodec.KeyEvalError:    "true",
				tagcodec.KeyIsEval:       "false",
				tagcodec.KeyIsProduction: "false",
			}
			if diff := cmp.Diff(want, tr.Tags); diff != "" {
				t.Errorf("tags (-want +got):\n%s", diff)
			}
		})
	}
}

func TestExtractionHints(t *testing.T) {
	type reply struct {
		Choices []string `json:"choices"`
	}
	ins, be := setup(t, development)
	fn := NewTrace(ins, Options{
		Name:               "answer",
		ExtractInputField:  "args.0",
		ExtractOutputField: "missing.field",
		Evaluator: func(context.Context, any, any) (map[string]any, error) {
			return map[string]any{"fullfilled": 0.5}, nil
		},
	}, func(_ context.Context, q string) (reply, error) {
		return reply{Choices: []string{"yes"}}, nil
	})

	if _, err := fn(context.Background(), "q"); err != nil {
		t.Fatalf("call: %v", err)
	}

	tr := onlyTrace(t, be)
	if got := tr.Tags[tagcodec.KeyExtractInputField]; got != "args.0" {
		t.Errorf("input hint: got = %q, wanted = args.0", got)
	}
	// An unresolvable hint is dropped; the rest is still written.
	if got, ok := tr.Tags[tagcodec.KeyExtractOutputField]; ok {
		t.Errorf("output hint: got = %q, wanted absent", got)
	}
	if got, want := tr.Tags[tagcodec.SampleKey("answer")], `["q",{"choices":["yes"]}]`; got != want {
		t.Errorf("sample: got = %s, wanted = %s", got, want)
	}
	if got := tr.Tags["domino.evaluation_result.fullfilled"]; got != "0.5" {
		t.Errorf("fullfilled: got = %q, wanted = 0.5", got)
	}
}

func TestSampleOverride(t *testing.T) {
	ins, be := setup(t, development)
	fn := NewTrace(ins, Options{
		Name: "answer",
		Evaluator: func(context.Context, any, any) (map[string]any, error) {
			return map[string]any{"ok": true}, nil
		},
		Sample: func(in, out any) (any, any) { return "in", "out" },
	}, echo)

	if _, err := fn(context.Background(), "q"); err != nil {
		t.Fatalf("call: %v", err)
	}
	if got := onlyTrace(t, be).Tags[tagcodec.SampleKey("answer")]; got != `["in","out"]` {
		t.Errorf("sample: got = %s", got)
	}
}

func TestChildSpan(t *testing.T) {
	ins, be := setup(t, development)

	retrieve := ChildSpan(ins, Options{
		Name: "retrieve",
		Evaluator: func(context.Context, any, any) (map[string]any, error) {
			return map[string]any{"relevance": 0.75}, nil
		},
	}, func(_ context.Context, q string) ([]string, error) {
		return []string{"doc-1"}, nil
	})
	answer := NewTrace(ins, Options{Name: "answer"}, func(ctx context.Context, q string) (string, error) {
		docs, err := retrieve(ctx, q)
		if err != nil {
			return "", err
		}
		return docs[0], nil
	})

	if _, err := answer(context.Background(), "q"); err != nil {
		t.Fatalf("call: %v", err)
	}

	tr := onlyTrace(t, be)
	if got := len(tr.Spans); got != 2 {
		t.Fatalf("spans: got = %d, wanted = 2", got)
	}
	if tr.Spans[1].Name != "retrieve" || tr.Spans[1].IsRoot() {
		t.Errorf("child span: got = %+v", tr.Spans[1])
	}
	// The child's evaluation lands on the whole trace.
	if got := tr.Tags["domino.evaluation_label.relevance"]; got != "true" {
		t.Errorf("child marker on trace: got = %q, wanted = true", got)
	}
	// The unevaluated root closes last and must not reset is_eval.
	if got := tr.Tags[tagcodec.KeyIsEval]; got != "true" {
		t.Errorf("is_eval after root closed: got = %q, wanted = true", got)
	}
	if _, ok := tr.Tags[tagcodec.SampleKey("retrieve")]; !ok {
		t.Error("child sample missing")
	}
}

func TestChildSpanWithoutTrace(t *testing.T) {
	ins, be := setup(t, development)
	fn := ChildSpan(ins, Options{Name: "retrieve"}, echo)

	got, err := fn(context.Background(), "q")
	if err != nil || got != "answer to q" {
		t.Errorf("call: got = (%q, %v)", got, err)
	}
	if calls := be.Calls(); len(calls) != 0 {
		t.Errorf("backend calls: got = %v, wanted none", calls)
	}
}

func TestUninitializedFallsBackToEnv(t *testing.T) {
	t.Setenv(mode.EnvIsProduction, "true")
	ins, be := setup(t, fixedMode{mode.Uninitialized})

	if _, err := NewTrace(ins, Options{Name: "answer"}, echo)(context.Background(), "q"); err != nil {
		t.Fatalf("call: %v", err)
	}
	if got := onlyTrace(t, be).Tags[tagcodec.KeyIsProduction]; got != "true" {
		t.Errorf("is_production: got = %q, wanted = true", got)
	}
}

func TestEvaluatorFor(t *testing.T) {
	ev := EvaluatorFor(func(_ context.Context, q string, a string) (map[string]any, error) {
		return map[string]any{"len": len(q) + len(a)}, nil
	})
	got, err := ev(context.Background(), map[string]any{"args": []any{"ab"}}, "cde")
	if err != nil {
		t.Fatalf("evaluator: %v", err)
	}
	if got["len"] != 5 {
		t.Errorf("len: got = %v, wanted = 5", got["len"])
	}
	if _, err := ev(context.Background(), map[string]any{"args": []any{1}}, "cde"); err == nil {
		t.Error("mismatched input type: got = nil, wanted error")
	}
}

func TestNestedEvaluationIsFound(t *testing.T) {
	ins, be := setup(t, development)

	judged := ChildSpan(ins, Options{
		Name: "step",
		Evaluator: func(context.Context, any, any) (map[string]any, error) {
			return map[string]any{"helpfulness": 1}, nil
		},
	}, echo)
	plain := ChildSpan(ins, Options{Name: "format"}, echo)
	answer := NewTrace(ins, Options{Name: "answer"}, func(ctx context.Context, q string) (string, error) {
		s, err := judged(ctx, q)
		if err != nil {
			return "", err
		}
		// An unevaluated sibling closing after the evaluated one.
		return plain(ctx, s)
	})

	if _, err := answer(context.Background(), "q"); err != nil {
		t.Fatalf("call: %v", err)
	}
	tr := onlyTrace(t, be)
	if got := tr.Tags[tagcodec.KeyIsEval]; got != "true" {
		t.Errorf("is_eval: got = %q, wanted = true", got)
	}

	spans, err := finder.New(be).Collect(context.Background(), finder.Query{AllTime: true, EvaluationsOnly: true, SpanNames: []string{"step"}})
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if len(spans) != 1 || spans[0].TraceID != tr.ID {
		t.Errorf("evaluated spans: got = %+v, wanted the step span of %s", spans, tr.ID)
	}
}

func TestEvaluatorRunsDetached(t *testing.T) {
	ins, be := setup(t, development)

	var opened bool
	fn := NewTrace(ins, Options{
		Name: "answer",
		Evaluator: func(ctx context.Context, _, _ any) (map[string]any, error) {
			if recorder.Active(ctx) != nil {
				t.Error("evaluator context: got an active span, wanted none")
			}
			_, h := ins.rec.OpenChildSpan(ctx, "openai.chat", nil)
			opened = h != nil
			return map[string]any{"ok": true}, nil
		},
	}, echo)

	if _, err := fn(context.Background(), "q"); err != nil {
		t.Fatalf("call: %v", err)
	}
	if opened {
		t.Error("evaluator opened a span under the closed trace")
	}
	if got := len(onlyTrace(t, be).Spans); got != 1 {
		t.Errorf("spans: got = %d, wanted = 1", got)
	}
	for _, c := range be.Calls() {
		if c == "StartSpan" {
			t.Errorf("backend calls: got = %v, wanted no StartSpan", be.Calls())
		}
	}
}

// evaluationsWritten reads the evaluation counter for span and label.
func evaluationsWritten(t *testing.T, span, label string) float64 {
	t.Helper()
	mfs, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() != "evaltrace_evaluations_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			got := map[string]string{}
			for _, lp := range m.GetLabel() {
				got[lp.GetName()] = lp.GetValue()
			}
			if got["span"] == span && got["label"] == label {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func TestEvaluationCountedOnlyWhenWritten(t *testing.T) {
	ins, be := setup(t, development)
	fn := NewTrace(ins, Options{
		Name: "counted-answer",
		Evaluator: func(context.Context, any, any) (map[string]any, error) {
			return map[string]any{"helpfulness": 1}, nil
		},
	}, echo)

	// Tags are written in key order: the label marker, then the result.
	// Both attempts at each fail.
	be.FailNext("SetTag", 4, errors.New("503"))
	if _, err := fn(context.Background(), "q"); err != nil {
		t.Fatalf("call: %v", err)
	}
	if got := evaluationsWritten(t, "counted-answer", "helpfulness"); got != 0 {
		t.Errorf("after failed write: got = %v, wanted = 0", got)
	}

	if _, err := fn(context.Background(), "q"); err != nil {
		t.Fatalf("call: %v", err)
	}
	if got := evaluationsWritten(t, "counted-answer", "helpfulness"); got != 1 {
		t.Errorf("after successful write: got = %v, wanted = 1", got)
	}
}
