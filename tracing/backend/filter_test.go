/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package backend

import (
	"testing"
	"time"
)

func TestFilterString(t *testing.T) {
	ts := time.UnixMilli(1700000000000)
	tests := []struct {
		name   string
		filter Filter
		want   string
	}{{
		name:   "empty",
		filter: nil,
		want:   "",
	}, {
		name:   "name only",
		filter: Filter{TraceNameEquals("rag_response")},
		want:   "trace.name = 'rag_response'",
	}, {
		name: "conjunction",
		filter: Filter{
			TraceNameEquals("rag_response"),
			TagEquals("domino.is_eval", "true"),
			TimestampAtLeast(ts),
		},
		want: "trace.name = 'rag_response' AND tag.`domino.is_eval` = 'true' AND attributes.timestamp_ms >= 1700000000000",
	}, {
		name:   "quotes escaped",
		filter: Filter{TraceNameEquals("it's")},
		want:   `trace.name = 'it\'s'`,
	}, {
		name:   "run and model",
		filter: Filter{RunEquals("r1"), ModelEquals("m-1")},
		want:   "metadata.`mlflow.sourceRun` = 'r1' AND metadata.`mlflow.modelId` = 'm-1'",
	}}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filter.String(); got != tt.want {
				t.Errorf("String: got = %q, wanted = %q", got, tt.want)
			}
		})
	}
}

func TestFilterMatches(t *testing.T) {
	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	tr := Trace{
		ID:        "tr-1",
		Name:      "answer",
		RunID:     "run-1",
		ModelID:   "m-1",
		StartTime: start,
		Tags: map[string]string{
			"domino.is_eval":                "true",
			"domino.evaluation_result.score": "0.75",
		},
	}

	tests := []struct {
		name   string
		filter Filter
		want   bool
	}{
		{"empty matches", nil, true},
		{"name", Filter{TraceNameEquals("answer")}, true},
		{"wrong name", Filter{TraceNameEquals("other")}, false},
		{"tag", Filter{TagEquals("domino.is_eval", "true")}, true},
		{"missing tag", Filter{TagEquals("nope", "true")}, false},
		{"missing tag not equals", Filter{{Field: FieldTag, Key: "nope", Op: OpNotEquals, Value: "x"}}, true},
		{"numeric tag compare", Filter{{Field: FieldTag, Key: "domino.evaluation_result.score", Op: OpGreater, Value: "0.5"}}, true},
		{"timestamp inclusive lower", Filter{TimestampAtLeast(start)}, true},
		{"timestamp after", Filter{TimestampAtLeast(start.Add(time.Second))}, false},
		{"timestamp upper", Filter{TimestampAtMost(start.Add(time.Hour))}, true},
		{"run", Filter{RunEquals("run-1")}, true},
		{"model mismatch", Filter{ModelEquals("m-2")}, false},
		{"conjunction fails on one", Filter{TraceNameEquals("answer"), RunEquals("run-2")}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filter.Matches(tr); got != tt.want {
				t.Errorf("Matches: got = %v, wanted = %v", got, tt.want)
			}
		})
	}
}

func TestTraceAccessors(t *testing.T) {
	tr := Trace{Spans: []Span{
		{ID: "a", Name: "root"},
		{ID: "b", ParentID: "a", Name: "retrieve"},
		{ID: "c", ParentID: "a", Name: "retrieve"},
	}}
	root, ok := tr.Root()
	if !ok || root.ID != "a" {
		t.Errorf("Root: got = %v (%v), wanted = a", root.ID, ok)
	}
	if got := len(tr.SpansNamed("retrieve")); got != 2 {
		t.Errorf("SpansNamed: got = %d, wanted = 2", got)
	}
	if _, ok := (Trace{}).Root(); ok {
		t.Error("Root on empty trace: got = true, wanted = false")
	}
	if StatusFor(nil) != StatusOK || StatusFor(ErrNotFound) != StatusError {
		t.Error("StatusFor mismapped")
	}
}
