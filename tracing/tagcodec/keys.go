/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package tagcodec

import (
	"fmt"
	"strings"
)

const (
	// Namespace prefixes every tag the engine writes.
	Namespace = "domino."
	// InternalNamespace prefixes engine-private bookkeeping tags.
	InternalNamespace = Namespace + "internal."

	KeyIsProduction       = Namespace + "is_production"
	KeyIsEval             = Namespace + "is_eval"
	KeyExtractInputField  = Namespace + "extract_input_field"
	KeyExtractOutputField = Namespace + "extract_output_field"
	KeyEvalError          = InternalNamespace + "eval_error"

	evaluationResultPrefix = Namespace + "evaluation_result."
	evaluationLabelPrefix  = Namespace + "evaluation_label."

	// MetricPrefix names summary metrics derived from evaluation results.
	MetricPrefix = "evaluation_result."

	// MaxTagValueBytes is the backend's per-tag value ceiling.
	MaxTagValueBytes = 5000
)

// ValidateLabel reports whether label can be embedded in a tag key and in a
// backend filter expression.
func ValidateLabel(label string) error {
	if label == "" {
		return fmt.Errorf("evaluation label must not be empty")
	}
	if strings.ContainsAny(label, "'`\"\n\r\t ") {
		return fmt.Errorf("evaluation label %q contains quotes or whitespace", label)
	}
	return nil
}

// EvaluationResultKey is the tag key holding the encoded value for label.
func EvaluationResultKey(label string) string {
	return evaluationResultPrefix + label
}

// EvaluationLabelKey is the marker tag key recording that label was evaluated.
func EvaluationLabelKey(label string) string {
	return evaluationLabelPrefix + label
}

// MetricKey is the summary metric name for label.
func MetricKey(label string) string {
	return MetricPrefix + label
}

// SampleKey is the tag key holding the evaluated sample for a span.
func SampleKey(spanName string) string {
	return InternalNamespace + spanName + ".sample"
}

// LabelFromMarkerKey returns the label encoded in an evaluation marker key.
func LabelFromMarkerKey(key string) (string, bool) {
	label, ok := strings.CutPrefix(key, evaluationLabelPrefix)
	if !ok || label == "" {
		return "", false
	}
	return label, true
}

// HasEvaluation reports whether tags carry at least one evaluation marker.
func HasEvaluation(tags map[string]string) bool {
	for k, v := range tags {
		if _, ok := LabelFromMarkerKey(k); ok && v == EncodeBool(true) {
			return true
		}
	}
	return false
}
