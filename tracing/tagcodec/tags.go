/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package tagcodec

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Metadata is the non-evaluation bookkeeping written to every instrumented trace.
type Metadata struct {
	IsProduction       bool
	IsEval             bool
	ExtractInputField  string
	ExtractOutputField string
}

// MetadataTags encodes m. Empty extraction hints are omitted.
func MetadataTags(m Metadata) map[string]string {
	tags := map[string]string{
		KeyIsProduction: EncodeBool(m.IsProduction),
		KeyIsEval:       EncodeBool(m.IsEval),
	}
	if m.ExtractInputField != "" {
		tags[KeyExtractInputField] = m.ExtractInputField
	}
	if m.ExtractOutputField != "" {
		tags[KeyExtractOutputField] = m.ExtractOutputField
	}
	return tags
}

// ParseMetadata decodes the metadata tags from a trace's tag map.
func ParseMetadata(tags map[string]string) (Metadata, error) {
	var m Metadata
	if v, ok := tags[KeyIsProduction]; ok {
		b, err := DecodeBool(v)
		if err != nil {
			return m, fmt.Errorf("%s: %w", KeyIsProduction, err)
		}
		m.IsProduction = b
	}
	if v, ok := tags[KeyIsEval]; ok {
		b, err := DecodeBool(v)
		if err != nil {
			return m, fmt.Errorf("%s: %w", KeyIsEval, err)
		}
		m.IsEval = b
	}
	m.ExtractInputField = tags[KeyExtractInputField]
	m.ExtractOutputField = tags[KeyExtractOutputField]
	return m, nil
}

// EvaluationTags encodes one evaluation result as its value tag and marker tag.
func EvaluationTags(label string, value any) (map[string]string, error) {
	if err := ValidateLabel(label); err != nil {
		return nil, err
	}
	encoded, err := EncodeValue(value)
	if err != nil {
		return nil, fmt.Errorf("evaluation %q: %w", label, err)
	}
	if len(encoded) > MaxTagValueBytes {
		return nil, fmt.Errorf("evaluation %q: encoded value is %d bytes, limit is %d", label, len(encoded), MaxTagValueBytes)
	}
	return map[string]string{
		EvaluationResultKey(label): encoded,
		EvaluationLabelKey(label):  EncodeBool(true),
	}, nil
}

// EvalErrorTags marks a trace whose evaluator failed.
func EvalErrorTags() map[string]string {
	return map[string]string{KeyEvalError: EncodeBool(true)}
}

// ParseEvaluations decodes every evaluation result present on a trace, keyed by label.
// Values whose marker is missing are skipped: the trace may still be mid-write.
func ParseEvaluations(tags map[string]string) (map[string]any, error) {
	out := make(map[string]any)
	for k, marker := range tags {
		label, ok := LabelFromMarkerKey(k)
		if !ok || marker != EncodeBool(true) {
			continue
		}
		raw, ok := tags[EvaluationResultKey(label)]
		if !ok {
			continue
		}
		v, err := DecodeValue(raw)
		if err != nil {
			return nil, fmt.Errorf("evaluation %q: %w", label, err)
		}
		out[label] = v
	}
	return out, nil
}

// SampleTag encodes the compact [input, output] pair recorded for an evaluated span.
// When the pair does not fit under MaxTagValueBytes each side is replaced by a
// truncated string preview so the tag stays valid JSON.
func SampleTag(spanName string, input, output any) (string, string, error) {
	pair, err := EncodeValue([]any{input, output})
	if err != nil {
		return "", "", fmt.Errorf("encoding sample: %w", err)
	}
	if len(pair) <= MaxTagValueBytes {
		return SampleKey(spanName), pair, nil
	}

	in, err := EncodeValue(input)
	if err != nil {
		return "", "", fmt.Errorf("encoding sample input: %w", err)
	}
	out, err := EncodeValue(output)
	if err != nil {
		return "", "", fmt.Errorf("encoding sample output: %w", err)
	}

	// Budget for each preview after brackets, comma, quotes and escaping headroom.
	budget := (MaxTagValueBytes - 16) / 2
	for {
		preview, err := EncodeValue([]any{truncate(in, budget), truncate(out, budget)})
		if err != nil {
			return "", "", fmt.Errorf("encoding sample preview: %w", err)
		}
		if len(preview) <= MaxTagValueBytes {
			return SampleKey(spanName), preview, nil
		}
		// Escaping grew the preview past the limit; shrink and retry.
		budget = budget * 3 / 4
	}
}

const ellipsis = "..."

// truncate cuts s to at most n bytes on a rune boundary, marking the cut.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := max(n-len(ellipsis), 0)
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return strings.Clone(s[:cut]) + ellipsis
}
