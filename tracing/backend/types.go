/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package backend

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a trace, model, run or experiment does not exist.
var ErrNotFound = errors.New("not found")

// Status is the lifecycle status of a trace or span.
type Status string

const (
	StatusOK         Status = "OK"
	StatusError      Status = "ERROR"
	StatusInProgress Status = "IN_PROGRESS"
)

// StatusFor maps the outcome of a call to the status it closes with.
func StatusFor(err error) Status {
	if err != nil {
		return StatusError
	}
	return StatusOK
}

// SpanRef identifies an open span within its trace.
type SpanRef struct {
	TraceID string
	SpanID  string
}

// Span is one named segment of work within a trace.
type Span struct {
	ID       string `json:"span_id"`
	TraceID  string `json:"trace_id"`
	ParentID string `json:"parent_id,omitempty"` // empty only for the root
	Name     string `json:"name"`
	Status   Status `json:"status"`
	Inputs   any    `json:"inputs,omitempty"`
	Outputs  any    `json:"outputs,omitempty"`
	// Error carries the failure message when Status is StatusError.
	Error     string    `json:"error,omitempty"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time,omitzero"`
}

// IsRoot reports whether s is its trace's root span.
func (s Span) IsRoot() bool {
	return s.ParentID == ""
}

// Trace is the end-to-end record of one instrumented call.
type Trace struct {
	ID           string            `json:"trace_id"`
	ExperimentID string            `json:"experiment_id"`
	Name         string            `json:"name"`
	RunID        string            `json:"run_id,omitempty"`   // run active when the trace started
	ModelID      string            `json:"model_id,omitempty"` // model active when the trace started
	Spans        []Span            `json:"spans"`              // root first
	Tags         map[string]string `json:"tags"`
	Status       Status            `json:"status"`
	StartTime    time.Time         `json:"start_time"`
	EndTime      time.Time         `json:"end_time,omitzero"`
}

// Root returns the trace's root span.
func (t Trace) Root() (Span, bool) {
	for _, s := range t.Spans {
		if s.IsRoot() {
			return s, true
		}
	}
	return Span{}, false
}

// SpansNamed returns the spans called name, in span order.
func (t Trace) SpansNamed(name string) []Span {
	var out []Span
	for _, s := range t.Spans {
		if s.Name == name {
			out = append(out, s)
		}
	}
	return out
}

// Model is an AI system identity registered with the backend.
type Model struct {
	ID           string         `json:"model_id"`
	Name         string         `json:"name"`
	Type         string         `json:"model_type"`
	ExperimentID string         `json:"experiment_id"`
	RunID        string         `json:"source_run_id,omitempty"`
	Params       map[string]any `json:"params,omitempty"`
}

// ExternalModelSpec describes a model record created outside a model registry
// upload, typically one per development run.
type ExternalModelSpec struct {
	Name         string
	Type         string
	ExperimentID string
	RunID        string
	Params       map[string]any
}

// Run is a development session that traces link to.
type Run struct {
	ID           string `json:"run_id"`
	ExperimentID string `json:"experiment_id"`
}

// MetricTarget selects where a metric is recorded: a run, a model, or both.
type MetricTarget struct {
	RunID   string
	ModelID string
}

// SearchRequest selects traces.
type SearchRequest struct {
	ExperimentIDs []string
	Filter        Filter
	PageSize      int
	PageToken     string
}

// Page is one page of search results. An empty NextPageToken means the
// result set is exhausted.
type Page struct {
	Traces        []Trace
	NextPageToken string
}
