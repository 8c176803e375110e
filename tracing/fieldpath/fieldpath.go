/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package fieldpath

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ExtractionError reports why a dotted path could not be resolved.
type ExtractionError struct {
	// Path is the full dotted path that was requested.
	Path string
	// Segment is the offending segment ("" when the path itself is malformed).
	Segment string
	// Reason is a short human readable explanation.
	Reason string
}

func (e *ExtractionError) Error() string {
	if e.Segment == "" {
		return fmt.Sprintf("extract %q: %s", e.Path, e.Reason)
	}
	return fmt.Sprintf("extract %q at segment %q: %s", e.Path, e.Segment, e.Reason)
}

// Normalize converts an arbitrary Go value into the tagged union the extractor
// understands: map[string]any, []any, or a JSON scalar (string, int64,
// float64, bool, nil). Integral numbers stay int64, the same way the tag codec
// decodes them.
// Structs and typed maps/slices go through their JSON representation so that
// dotted paths follow the same field names that end up on the trace.
func Normalize(v any) (any, error) {
	switch v.(type) {
	case nil, string, bool, int64, float64:
		return v, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("normalizing %T: %w", v, err)
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("normalizing %T: %w", v, err)
	}
	return numbers(out)
}

// numbers replaces every json.Number in v with an int64 when it is integral
// and fits, and a float64 otherwise.
func numbers(v any) (any, error) {
	switch x := v.(type) {
	case json.Number:
		s := x.String()
		if !strings.ContainsAny(s, ".eE") {
			if i, err := strconv.ParseInt(s, 10, 64); err == nil {
				return i, nil
			}
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("normalizing number %q: %w", s, err)
		}
		return f, nil
	case []any:
		for i, e := range x {
			n, err := numbers(e)
			if err != nil {
				return nil, err
			}
			x[i] = n
		}
	case map[string]any:
		for k, e := range x {
			n, err := numbers(e)
			if err != nil {
				return nil, err
			}
			x[k] = n
		}
	}
	return v, nil
}

// Extract resolves a dot-separated path against value.
//
// Each segment is first tried as an integer index into a sequence and then as
// a string key into a mapping. The whole extraction fails with an
// *ExtractionError if any segment cannot be resolved; no partial result is
// returned.
func Extract(value any, path string) (any, error) {
	segments := strings.Split(path, ".")
	for _, seg := range segments {
		if seg == "" {
			return nil, &ExtractionError{Path: path, Reason: "empty path segment"}
		}
	}

	current, err := Normalize(value)
	if err != nil {
		return nil, &ExtractionError{Path: path, Reason: err.Error()}
	}

	for _, seg := range segments {
		next, err := step(current, seg)
		if err != nil {
			err.Path = path
			return nil, err
		}
		current = next
	}
	return current, nil
}

// step descends one level into current.
func step(current any, seg string) (any, *ExtractionError) {
	switch c := current.(type) {
	case []any:
		idx, err := strconv.Atoi(seg)
		if err != nil {
			return nil, &ExtractionError{Segment: seg, Reason: "sequence requires an integer index"}
		}
		if idx < 0 || idx >= len(c) {
			return nil, &ExtractionError{Segment: seg, Reason: fmt.Sprintf("index out of range [0, %d)", len(c))}
		}
		return c[idx], nil

	case map[string]any:
		// Integer-looking segments still resolve as keys on a mapping.
		v, ok := c[seg]
		if !ok {
			return nil, &ExtractionError{Segment: seg, Reason: "key not found"}
		}
		return v, nil

	default:
		return nil, &ExtractionError{Segment: seg, Reason: fmt.Sprintf("cannot descend into %T", current)}
	}
}
