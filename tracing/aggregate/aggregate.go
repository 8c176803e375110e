/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package aggregate reduces the evaluation results recorded on traces to
// summary metrics.
//
// The population is every trace carrying the label's evaluation marker within
// the bound scope: the active model in production, the active run in
// development. The result is logged as the metric evaluation_result.<label>
// against that same scope.
package aggregate

import (
	"context"
	"errors"
	"fmt"

	"chainguard.dev/evaltrace/tracing/backend"
	"chainguard.dev/evaltrace/tracing/finder"
	"chainguard.dev/evaltrace/tracing/metrics"
	"chainguard.dev/evaltrace/tracing/mode"
	"chainguard.dev/evaltrace/tracing/retry"
	"chainguard.dev/evaltrace/tracing/tagcodec"
	"github.com/chainguard-dev/clog"
)

// ErrNoData reports that no trace carried a result for the label.
var ErrNoData = errors.New("no evaluated traces match")

// AggregationFunc reduces decoded evaluation values to one number.
type AggregationFunc func(values []any) (float64, error)

// Summary is the outcome of LogSummaryMetric.
type Summary struct {
	Label     string
	MetricKey string
	Value     float64
	// Count is the number of values aggregated.
	Count  int
	Target backend.MetricTarget
	// Scope is "model" in production and "run" in development.
	Scope string
	// Skipped is ErrNoData when there was nothing to aggregate and no
	// metric was logged.
	Skipped error
}

// ModeSource reports the bound identity. *mode.Resolver implements it.
type ModeSource interface {
	Current() (mode.Identity, bool)
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithRetry sets the retry policy for logging the metric.
func WithRetry(cfg retry.Config) Option {
	return func(a *Aggregator) { a.retry = cfg }
}

// Aggregator computes and logs summary metrics.
type Aggregator struct {
	finder *finder.Finder
	logger backend.MetricLogger
	modes  ModeSource
	retry  retry.Config
}

// New creates an Aggregator reading traces through f and logging metrics to ml.
func New(f *finder.Finder, ml backend.MetricLogger, modes ModeSource, opts ...Option) *Aggregator {
	a := &Aggregator{finder: f, logger: ml, modes: modes, retry: retry.DefaultConfig()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// LogSummaryMetric aggregates the label's results in the bound scope and logs
// the metric. Finding nothing is not an error: the returned Summary has
// Skipped set to ErrNoData.
func (a *Aggregator) LogSummaryMetric(ctx context.Context, label string, fn AggregationFunc) (Summary, error) {
	if err := tagcodec.ValidateLabel(label); err != nil {
		return Summary{}, err
	}
	id, ok := a.modes.Current()
	if !ok {
		return Summary{}, &mode.ConfigurationError{Reason: "tracing mode must be resolved before aggregating"}
	}

	s := Summary{Label: label, MetricKey: tagcodec.MetricKey(label)}
	q := finder.Query{
		AllTime: true,
		Filter:  backend.Filter{backend.TagEquals(tagcodec.EvaluationLabelKey(label), tagcodec.EncodeBool(true))},
	}
	if id.ExperimentID != "" {
		q.ExperimentIDs = []string{id.ExperimentID}
	}
	if id.IsProduction() {
		s.Scope = "model"
		s.Target = backend.MetricTarget{ModelID: id.Model.ID}
		q.Filter = append(q.Filter, backend.ModelEquals(id.Model.ID))
	} else {
		s.Scope = "run"
		s.Target = backend.MetricTarget{RunID: id.Run.ID}
		q.Filter = append(q.Filter, backend.RunEquals(id.Run.ID))
	}

	log := clog.FromContext(ctx).With("label", label).With("scope", s.Scope)

	var values []any
	for t, err := range a.finder.Traces(ctx, q) {
		if err != nil {
			return Summary{}, err
		}
		raw, ok := t.Tags[tagcodec.EvaluationResultKey(label)]
		if !ok {
			// Marker written, value not yet.
			continue
		}
		v, err := tagcodec.DecodeValue(raw)
		if err != nil {
			log.With("trace_id", t.ID).With("error", err.Error()).Warn("Skipping undecodable evaluation result")
			continue
		}
		values = append(values, v)
	}

	if len(values) == 0 {
		log.Info("No evaluation results to aggregate, metric not logged")
		s.Skipped = ErrNoData
		return s, nil
	}

	value, err := fn(values)
	if err != nil {
		return Summary{}, fmt.Errorf("aggregating %q: %w", label, err)
	}
	s.Value = value
	s.Count = len(values)

	if err := retry.Call(ctx, a.retry, "log_metric", func() error {
		return a.logger.LogMetric(ctx, s.Target, s.MetricKey, value)
	}); err != nil {
		return Summary{}, fmt.Errorf("logging metric %s: %w", s.MetricKey, err)
	}
	metrics.ObserveSummary(label, s.Scope, value)

	log.With("value", value).With("count", s.Count).Info("Logged summary metric")
	return s, nil
}
