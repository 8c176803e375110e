/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package backend

import "context"

// Tracer opens and closes traces and spans.
type Tracer interface {
	// StartTrace opens a new trace whose root span is called name.
	StartTrace(ctx context.Context, name string, inputs any) (SpanRef, error)
	// StartSpan opens a span nested under parent.
	StartSpan(ctx context.Context, parent SpanRef, name string, inputs any) (SpanRef, error)
	// EndSpan closes a non-root span; a non-nil err closes it with StatusError.
	EndSpan(ctx context.Context, ref SpanRef, outputs any, err error) error
	// EndTrace closes the root span and the trace.
	EndTrace(ctx context.Context, traceID string, outputs any, err error) error
}

// TagWriter writes trace-scoped string tags.
type TagWriter interface {
	SetTag(ctx context.Context, traceID, key, value string) error
}

// Searcher finds traces.
type Searcher interface {
	SearchTraces(ctx context.Context, req SearchRequest) (Page, error)
}

// ModelRegistry manages AI system identities.
type ModelRegistry interface {
	CreateExternalModel(ctx context.Context, spec ExternalModelSpec) (Model, error)
	GetModel(ctx context.Context, id string) (Model, error)
	// SetActiveModel links every trace started afterwards to the model.
	SetActiveModel(ctx context.Context, id string) error
}

// RunTracker reports the active development run.
type RunTracker interface {
	ActiveRun(ctx context.Context) (Run, bool, error)
}

// MetricLogger records scalar metrics.
type MetricLogger interface {
	LogMetric(ctx context.Context, target MetricTarget, key string, value float64) error
}

// ExperimentBinder selects the experiment traces are recorded into.
type ExperimentBinder interface {
	SetExperiment(ctx context.Context, name string) (string, error)
}

// Backend is everything the engine consumes from a tracking server.
type Backend interface {
	Tracer
	TagWriter
	Searcher
	ModelRegistry
	RunTracker
	MetricLogger
	ExperimentBinder
}
