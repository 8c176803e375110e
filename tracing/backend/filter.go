/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package backend

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Field is the attribute a Clause compares against.
type Field int

const (
	FieldTraceName Field = iota
	FieldTag
	FieldTimestamp
	FieldRun
	FieldModel
)

// Op is a Clause comparison operator.
type Op string

const (
	OpEqual     Op = "="
	OpAtLeast   Op = ">="
	OpAtMost    Op = "<="
	OpGreater   Op = ">"
	OpLessThan  Op = "<"
	OpNotEquals Op = "!="
)

// Clause is one predicate of a Filter.
type Clause struct {
	Field Field
	Key   string // tag key, only for FieldTag
	Op    Op
	Value string
	Time  time.Time // only for FieldTimestamp
}

// Filter is a conjunction of clauses. The zero Filter matches every trace.
type Filter []Clause

// TraceNameEquals matches traces whose root span is called name.
func TraceNameEquals(name string) Clause {
	return Clause{Field: FieldTraceName, Op: OpEqual, Value: name}
}

// TagEquals matches traces carrying key=value.
func TagEquals(key, value string) Clause {
	return Clause{Field: FieldTag, Key: key, Op: OpEqual, Value: value}
}

// TimestampAtLeast matches traces started at or after t.
func TimestampAtLeast(t time.Time) Clause {
	return Clause{Field: FieldTimestamp, Op: OpAtLeast, Time: t}
}

// TimestampAtMost matches traces started at or before t.
func TimestampAtMost(t time.Time) Clause {
	return Clause{Field: FieldTimestamp, Op: OpAtMost, Time: t}
}

// RunEquals matches traces linked to the run.
func RunEquals(runID string) Clause {
	return Clause{Field: FieldRun, Op: OpEqual, Value: runID}
}

// ModelEquals matches traces linked to the model.
func ModelEquals(modelID string) Clause {
	return Clause{Field: FieldModel, Op: OpEqual, Value: modelID}
}

// String renders the filter in MLflow search syntax.
func (f Filter) String() string {
	parts := make([]string, 0, len(f))
	for _, c := range f {
		parts = append(parts, c.String())
	}
	return strings.Join(parts, " AND ")
}

func (c Clause) String() string {
	switch c.Field {
	case FieldTraceName:
		return fmt.Sprintf("trace.name %s %s", c.Op, quote(c.Value))
	case FieldTag:
		return fmt.Sprintf("tag.`%s` %s %s", c.Key, c.Op, quote(c.Value))
	case FieldTimestamp:
		return fmt.Sprintf("attributes.timestamp_ms %s %d", c.Op, c.Time.UnixMilli())
	case FieldRun:
		return fmt.Sprintf("metadata.`mlflow.sourceRun` %s %s", c.Op, quote(c.Value))
	case FieldModel:
		return fmt.Sprintf("metadata.`mlflow.modelId` %s %s", c.Op, quote(c.Value))
	default:
		return ""
	}
}

func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "\\'") + "'"
}

// Matches reports whether t satisfies every clause.
func (f Filter) Matches(t Trace) bool {
	for _, c := range f {
		if !c.Matches(t) {
			return false
		}
	}
	return true
}

// Matches reports whether t satisfies c.
func (c Clause) Matches(t Trace) bool {
	switch c.Field {
	case FieldTraceName:
		return compareStrings(t.Name, c.Op, c.Value)
	case FieldTag:
		v, ok := t.Tags[c.Key]
		if !ok {
			return c.Op == OpNotEquals
		}
		return compareStrings(v, c.Op, c.Value)
	case FieldTimestamp:
		return compareInts(t.StartTime.UnixMilli(), c.Op, c.Time.UnixMilli())
	case FieldRun:
		return compareStrings(t.RunID, c.Op, c.Value)
	case FieldModel:
		return compareStrings(t.ModelID, c.Op, c.Value)
	default:
		return false
	}
}

func compareStrings(got string, op Op, want string) bool {
	switch op {
	case OpEqual:
		return got == want
	case OpNotEquals:
		return got != want
	}
	// Ordered comparisons on tag values compare numerically when both sides parse.
	g, gerr := strconv.ParseFloat(got, 64)
	w, werr := strconv.ParseFloat(want, 64)
	if gerr == nil && werr == nil {
		switch op {
		case OpAtLeast:
			return g >= w
		case OpAtMost:
			return g <= w
		case OpGreater:
			return g > w
		case OpLessThan:
			return g < w
		}
		return false
	}
	cmp := strings.Compare(got, want)
	switch op {
	case OpAtLeast:
		return cmp >= 0
	case OpAtMost:
		return cmp <= 0
	case OpGreater:
		return cmp > 0
	case OpLessThan:
		return cmp < 0
	}
	return false
}

func compareInts(got int64, op Op, want int64) bool {
	switch op {
	case OpEqual:
		return got == want
	case OpNotEquals:
		return got != want
	case OpAtLeast:
		return got >= want
	case OpAtMost:
		return got <= want
	case OpGreater:
		return got > want
	case OpLessThan:
		return got < want
	}
	return false
}
