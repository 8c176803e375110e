/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package tagcodec

import (
	"math"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"pgregory.net/rapid"
)

func TestEncodeValue(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  string
	}{
		{name: "true", value: true, want: "true"},
		{name: "false", value: false, want: "false"},
		{name: "int", value: 1, want: "1"},
		{name: "integral float keeps fraction", value: 1.0, want: "1.0"},
		{name: "float", value: 0.5, want: "0.5"},
		{name: "string", value: "ok", want: `"ok"`},
		{name: "nil", value: nil, want: "null"},
		{name: "list", value: []any{1, "a", false}, want: `[1,"a",false]`},
		{name: "map sorted keys", value: map[string]any{"b": 2, "a": 1}, want: `{"a":1,"b":2}`},
		{name: "typed slice", value: []int{1, 2}, want: "[1,2]"},
		{name: "struct", value: struct {
			Score float64 `json:"score"`
		}{Score: 0.25}, want: `{"score":0.25}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EncodeValue(tt.value)
			if err != nil {
				t.Fatalf("EncodeValue(%v): %v", tt.value, err)
			}
			if got != tt.want {
				t.Errorf("EncodeValue(%v): got = %q, wanted = %q", tt.value, got, tt.want)
			}
		})
	}
}

func TestEncodeValueRejectsNonFinite(t *testing.T) {
	for _, f := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		if _, err := EncodeValue(f); err == nil {
			t.Errorf("EncodeValue(%v): got = nil error, wanted error", f)
		}
	}
}

func TestDecodeValue(t *testing.T) {
	tests := []struct {
		in   string
		want any
	}{
		{in: "true", want: true},
		{in: "1", want: int64(1)},
		{in: "1.0", want: float64(1)},
		{in: "0.5", want: 0.5},
		{in: `"1"`, want: "1"},
		{in: `{"a":[1,2.5]}`, want: map[string]any{"a": []any{int64(1), 2.5}}},
		{in: "18446744073709551616", want: float64(18446744073709551616)},
	}
	for _, tt := range tests {
		got, err := DecodeValue(tt.in)
		if err != nil {
			t.Fatalf("DecodeValue(%q): %v", tt.in, err)
		}
		if diff := cmp.Diff(tt.want, got); diff != "" {
			t.Errorf("DecodeValue(%q) mismatch (-want +got):\n%s", tt.in, diff)
		}
	}

	for _, bad := range []string{"", "True", "{", "1 2"} {
		if got, err := DecodeValue(bad); err == nil {
			t.Errorf("DecodeValue(%q): got = %v, wanted error", bad, got)
		}
	}
}

func TestDecodeBool(t *testing.T) {
	for in, want := range map[string]bool{"true": true, "false": false, "True": true, "FALSE": false} {
		got, err := DecodeBool(in)
		if err != nil {
			t.Fatalf("DecodeBool(%q): %v", in, err)
		}
		if got != want {
			t.Errorf("DecodeBool(%q): got = %v, wanted = %v", in, got, want)
		}
	}
	if _, err := DecodeBool("yes"); err == nil {
		t.Error("DecodeBool(yes): got = nil error, wanted error")
	}
}

func scalar() *rapid.Generator[any] {
	return rapid.OneOf(
		rapid.Map(rapid.Bool(), func(b bool) any { return b }),
		rapid.Map(rapid.Int64(), func(i int64) any { return i }),
		rapid.Map(rapid.Float64Range(-1e12, 1e12), func(f float64) any { return f }),
		rapid.Map(rapid.String(), func(s string) any { return s }),
	)
}

func value() *rapid.Generator[any] {
	return rapid.OneOf(
		scalar(),
		rapid.Map(rapid.SliceOfN(scalar(), 0, 5), func(s []any) any { return s }),
		rapid.Map(rapid.MapOfN(rapid.String(), scalar(), 0, 5), func(m map[string]any) any { return m }),
	)
}

func TestValueRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		v := value().Draw(t, "v")
		encoded, err := EncodeValue(v)
		if err != nil {
			t.Fatalf("EncodeValue(%v): %v", v, err)
		}
		got, err := DecodeValue(encoded)
		if err != nil {
			t.Fatalf("DecodeValue(%q): %v", encoded, err)
		}
		if diff := cmp.Diff(v, got, cmpopts.EquateEmpty()); diff != "" {
			t.Fatalf("round trip of %q mismatch (-want +got):\n%s", encoded, diff)
		}
	})
}

func TestMetadataRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		m := Metadata{
			IsProduction:       rapid.Bool().Draw(t, "prod"),
			IsEval:             rapid.Bool().Draw(t, "eval"),
			ExtractInputField:  rapid.StringMatching(`([a-z0-9_]+(\.[a-z0-9_]+)*)?`).Draw(t, "in"),
			ExtractOutputField: rapid.StringMatching(`([a-z0-9_]+(\.[a-z0-9_]+)*)?`).Draw(t, "out"),
		}
		got, err := ParseMetadata(MetadataTags(m))
		if err != nil {
			t.Fatalf("ParseMetadata: %v", err)
		}
		if got != m {
			t.Fatalf("metadata round trip: got = %+v, wanted = %+v", got, m)
		}
	})
}

func TestMetadataTags(t *testing.T) {
	got := MetadataTags(Metadata{IsProduction: true})
	want := map[string]string{
		"domino.is_production": "true",
		"domino.is_eval":       "false",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("MetadataTags mismatch (-want +got):\n%s", diff)
	}

	got = MetadataTags(Metadata{IsEval: true, ExtractInputField: "args.0", ExtractOutputField: "choices.0.message.content"})
	want = map[string]string{
		"domino.is_production":        "false",
		"domino.is_eval":              "true",
		"domino.extract_input_field":  "args.0",
		"domino.extract_output_field": "choices.0.message.content",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("MetadataTags mismatch (-want +got):\n%s", diff)
	}
}

func TestEvaluationTags(t *testing.T) {
	got, err := EvaluationTags("helpfulness", 1)
	if err != nil {
		t.Fatalf("EvaluationTags: %v", err)
	}
	want := map[string]string{
		"domino.evaluation_result.helpfulness": "1",
		"domino.evaluation_label.helpfulness":  "true",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("EvaluationTags mismatch (-want +got):\n%s", diff)
	}

	for _, label := range []string{"", "has space", "quo'te"} {
		if _, err := EvaluationTags(label, 1); err == nil {
			t.Errorf("EvaluationTags(%q): got = nil error, wanted error", label)
		}
	}

	if _, err := EvaluationTags("big", strings.Repeat("x", MaxTagValueBytes)); err == nil {
		t.Error("EvaluationTags(oversize): got = nil error, wanted error")
	}
}

func TestParseEvaluations(t *testing.T) {
	tags := map[string]string{
		"domino.evaluation_result.helpfulness": "1",
		"domino.evaluation_label.helpfulness":  "true",
		"domino.evaluation_result.fullfilled":  "0.5",
		"domino.evaluation_label.fullfilled":   "true",
		// Value landed before its marker: not visible yet.
		"domino.evaluation_result.relevance": "0.8",
		"domino.is_eval":                     "true",
	}
	got, err := ParseEvaluations(tags)
	if err != nil {
		t.Fatalf("ParseEvaluations: %v", err)
	}
	want := map[string]any{"helpfulness": int64(1), "fullfilled": 0.5}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ParseEvaluations mismatch (-want +got):\n%s", diff)
	}

	if !HasEvaluation(tags) {
		t.Error("HasEvaluation: got = false, wanted = true")
	}
	if HasEvaluation(map[string]string{"domino.is_eval": "true"}) {
		t.Error("HasEvaluation without markers: got = true, wanted = false")
	}
}

func TestSampleTag(t *testing.T) {
	key, val, err := SampleTag("rag_response", map[string]any{"args": []any{"q"}}, "a")
	if err != nil {
		t.Fatalf("SampleTag: %v", err)
	}
	if want := "domino.internal.rag_response.sample"; key != want {
		t.Errorf("key: got = %q, wanted = %q", key, want)
	}
	if want := `[{"args":["q"]},"a"]`; val != want {
		t.Errorf("value: got = %q, wanted = %q", val, want)
	}
}

func TestSampleTagBounded(t *testing.T) {
	big := strings.Repeat(`"quoted"\`, 2000)
	_, val, err := SampleTag("span", big, map[string]any{"text": big})
	if err != nil {
		t.Fatalf("SampleTag: %v", err)
	}
	if len(val) > MaxTagValueBytes {
		t.Errorf("sample size: got = %d, wanted <= %d", len(val), MaxTagValueBytes)
	}
	decoded, err := DecodeValue(val)
	if err != nil {
		t.Fatalf("sample is not valid JSON: %v", err)
	}
	pair, ok := decoded.([]any)
	if !ok || len(pair) != 2 {
		t.Fatalf("sample shape: got = %#v, wanted 2-element list", decoded)
	}
	for i, side := range pair {
		s, ok := side.(string)
		if !ok || !strings.HasSuffix(s, "...") {
			t.Errorf("sample[%d]: got = %#v, wanted truncated preview", i, side)
		}
	}
}
