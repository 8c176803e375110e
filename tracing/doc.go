/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

/*
Package tracing wires the instrumentation engine around one backend.

# Overview

A Context is built once at process start and carries every component:

  - Resolver (mode): binds the process to a development run or a production model.
  - Recorder (recorder): opens and closes traces and spans.
  - Instrumenter (instrument): wraps functions so calls are traced and evaluated.
  - Finder (finder): searches recorded spans.
  - Aggregator (aggregate): reduces evaluation results to summary metrics.

Nothing is global. Tests construct a Context over backend/memory.

# Usage

	tc := tracing.New(be)
	if _, err := tc.Init(ctx, mode.Options{
		IsProduction:   cfg.IsProduction,
		ExperimentName: "assistant",
		Frameworks:     []string{"openai"},
	}); err != nil {
		clog.FatalContextf(ctx, "failed to initialize tracing: %v", err)
	}

	answer := tracing.NewTrace(tc, instrument.Options{
		Name:      "answer",
		Evaluator: judge.Helpfulness(j),
	}, answerQuestion)

Later, in development:

	summary, err := tc.LogSummaryMetric(ctx, "helpfulness", aggregate.Average)

A Context can also travel in a context.Context with WithContext and
FromContext for code that has no other way to reach it.
*/
package tracing
