/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package memory provides an in-process backend.Backend.
//
// It is used by tests and local development. Every call is recorded so tests
// can assert on the exact traffic an operation generated, and faults can be
// injected per method to exercise retry paths.
package memory

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"sync"

	"chainguard.dev/evaltrace/tracing/backend"
	"github.com/google/uuid"
	"github.com/zoobzio/clockz"
)

// DefaultExperiment is the experiment traces land in before SetExperiment.
const DefaultExperiment = "Default"

// MetricRecord is one LogMetric call as it was stored.
type MetricRecord struct {
	Target backend.MetricTarget
	Key    string
	Value  float64
}

// Option configures a Backend.
type Option func(*Backend)

// WithClock sets the clock used for span timestamps.
func WithClock(c clockz.Clock) Option {
	return func(b *Backend) { b.clock = c }
}

// Backend is a thread-safe in-memory tracking server.
type Backend struct {
	mu    sync.Mutex
	clock clockz.Clock

	experiments  map[string]string // name -> id
	experimentID string

	traces map[string]*backend.Trace
	order  []string // trace ids in creation order

	models      map[string]backend.Model
	activeModel string

	runs      map[string]backend.Run
	activeRun string

	metrics []MetricRecord
	calls   []string
	faults  map[string][]error
}

var _ backend.Backend = (*Backend)(nil)

// New creates an empty Backend bound to DefaultExperiment.
func New(opts ...Option) *Backend {
	b := &Backend{
		clock:       clockz.RealClock,
		experiments: map[string]string{DefaultExperiment: "0"},
		traces:      make(map[string]*backend.Trace),
		models:      make(map[string]backend.Model),
		runs:        make(map[string]backend.Run),
		faults:      make(map[string][]error),
	}
	b.experimentID = "0"
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// FailNext makes the next n calls of method return err.
func (b *Backend) FailNext(method string, n int, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for range n {
		b.faults[method] = append(b.faults[method], err)
	}
}

// Calls returns the method names invoked so far, in order.
func (b *Backend) Calls() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.calls)
}

// Metrics returns every metric logged so far.
func (b *Backend) Metrics() []MetricRecord {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.metrics)
}

// Trace returns a copy of the trace with the given id.
func (b *Backend) Trace(id string) (backend.Trace, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.traces[id]
	if !ok {
		return backend.Trace{}, false
	}
	return clone(t), true
}

// Traces returns copies of all traces in creation order.
func (b *Backend) Traces() []backend.Trace {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]backend.Trace, 0, len(b.order))
	for _, id := range b.order {
		out = append(out, clone(b.traces[id]))
	}
	return out
}

// StartRun opens a development run in the current experiment and makes it active.
func (b *Backend) StartRun() backend.Run {
	b.mu.Lock()
	defer b.mu.Unlock()
	r := backend.Run{ID: newID(), ExperimentID: b.experimentID}
	b.runs[r.ID] = r
	b.activeRun = r.ID
	return r
}

// EndRun clears the active run.
func (b *Backend) EndRun() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.activeRun = ""
}

// enter records a call and pops an injected fault, if any. Callers hold mu.
func (b *Backend) enter(method string) error {
	b.calls = append(b.calls, method)
	if q := b.faults[method]; len(q) > 0 {
		b.faults[method] = q[1:]
		return q[0]
	}
	return nil
}

func (b *Backend) StartTrace(ctx context.Context, name string, inputs any) (backend.SpanRef, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.enter("StartTrace"); err != nil {
		return backend.SpanRef{}, err
	}
	now := b.clock.Now()
	t := &backend.Trace{
		ID:           "tr-" + newID(),
		ExperimentID: b.experimentID,
		Name:         name,
		RunID:        b.activeRun,
		ModelID:      b.activeModel,
		Tags:         map[string]string{},
		Status:       backend.StatusInProgress,
		StartTime:    now,
	}
	root := backend.Span{
		ID:        spanID(),
		TraceID:   t.ID,
		Name:      name,
		Status:    backend.StatusInProgress,
		Inputs:    inputs,
		StartTime: now,
	}
	t.Spans = append(t.Spans, root)
	b.traces[t.ID] = t
	b.order = append(b.order, t.ID)
	return backend.SpanRef{TraceID: t.ID, SpanID: root.ID}, nil
}

func (b *Backend) StartSpan(ctx context.Context, parent backend.SpanRef, name string, inputs any) (backend.SpanRef, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.enter("StartSpan"); err != nil {
		return backend.SpanRef{}, err
	}
	t, ok := b.traces[parent.TraceID]
	if !ok {
		return backend.SpanRef{}, fmt.Errorf("trace %s: %w", parent.TraceID, backend.ErrNotFound)
	}
	if findSpan(t, parent.SpanID) < 0 {
		return backend.SpanRef{}, fmt.Errorf("span %s: %w", parent.SpanID, backend.ErrNotFound)
	}
	s := backend.Span{
		ID:        spanID(),
		TraceID:   t.ID,
		ParentID:  parent.SpanID,
		Name:      name,
		Status:    backend.StatusInProgress,
		Inputs:    inputs,
		StartTime: b.clock.Now(),
	}
	t.Spans = append(t.Spans, s)
	return backend.SpanRef{TraceID: t.ID, SpanID: s.ID}, nil
}

func (b *Backend) EndSpan(ctx context.Context, ref backend.SpanRef, outputs any, err error) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ferr := b.enter("EndSpan"); ferr != nil {
		return ferr
	}
	t, ok := b.traces[ref.TraceID]
	if !ok {
		return fmt.Errorf("trace %s: %w", ref.TraceID, backend.ErrNotFound)
	}
	i := findSpan(t, ref.SpanID)
	if i < 0 {
		return fmt.Errorf("span %s: %w", ref.SpanID, backend.ErrNotFound)
	}
	closeSpan(&t.Spans[i], outputs, err, b.clock)
	return nil
}

func (b *Backend) EndTrace(ctx context.Context, traceID string, outputs any, err error) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ferr := b.enter("EndTrace"); ferr != nil {
		return ferr
	}
	t, ok := b.traces[traceID]
	if !ok {
		return fmt.Errorf("trace %s: %w", traceID, backend.ErrNotFound)
	}
	for i := range t.Spans {
		if t.Spans[i].IsRoot() {
			closeSpan(&t.Spans[i], outputs, err, b.clock)
		}
	}
	t.Status = backend.StatusFor(err)
	t.EndTime = b.clock.Now()
	return nil
}

func (b *Backend) SetTag(ctx context.Context, traceID, key, value string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.enter("SetTag"); err != nil {
		return err
	}
	t, ok := b.traces[traceID]
	if !ok {
		return fmt.Errorf("trace %s: %w", traceID, backend.ErrNotFound)
	}
	t.Tags[key] = value
	return nil
}

func (b *Backend) SearchTraces(ctx context.Context, req backend.SearchRequest) (backend.Page, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.enter("SearchTraces"); err != nil {
		return backend.Page{}, err
	}

	offset := 0
	if req.PageToken != "" {
		n, err := strconv.Atoi(req.PageToken)
		if err != nil || n < 0 {
			return backend.Page{}, fmt.Errorf("invalid page token %q", req.PageToken)
		}
		offset = n
	}

	var matched []*backend.Trace
	for _, id := range b.order {
		t := b.traces[id]
		if len(req.ExperimentIDs) > 0 && !slices.Contains(req.ExperimentIDs, t.ExperimentID) {
			continue
		}
		if req.Filter.Matches(*t) {
			matched = append(matched, t)
		}
	}
	// Newest first, matching the tracking server's default ordering.
	slices.SortStableFunc(matched, func(x, y *backend.Trace) int {
		return y.StartTime.Compare(x.StartTime)
	})

	size := req.PageSize
	if size <= 0 {
		size = len(matched)
	}
	if offset >= len(matched) {
		return backend.Page{}, nil
	}
	end := min(offset+size, len(matched))

	page := backend.Page{Traces: make([]backend.Trace, 0, end-offset)}
	for _, t := range matched[offset:end] {
		page.Traces = append(page.Traces, clone(t))
	}
	if end < len(matched) {
		page.NextPageToken = strconv.Itoa(end)
	}
	return page, nil
}

func (b *Backend) CreateExternalModel(ctx context.Context, spec backend.ExternalModelSpec) (backend.Model, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.enter("CreateExternalModel"); err != nil {
		return backend.Model{}, err
	}
	m := backend.Model{
		ID:           "m-" + newID(),
		Name:         spec.Name,
		Type:         spec.Type,
		ExperimentID: spec.ExperimentID,
		RunID:        spec.RunID,
		Params:       maps.Clone(spec.Params),
	}
	b.models[m.ID] = m
	return m, nil
}

// AddModel registers a model as if it had been created out of band, as a
// deployment does for production model ids.
func (b *Backend) AddModel(m backend.Model) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.models[m.ID] = m
}

func (b *Backend) GetModel(ctx context.Context, id string) (backend.Model, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.enter("GetModel"); err != nil {
		return backend.Model{}, err
	}
	m, ok := b.models[id]
	if !ok {
		return backend.Model{}, fmt.Errorf("model %s: %w", id, backend.ErrNotFound)
	}
	return m, nil
}

func (b *Backend) SetActiveModel(ctx context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.enter("SetActiveModel"); err != nil {
		return err
	}
	if _, ok := b.models[id]; !ok {
		return fmt.Errorf("model %s: %w", id, backend.ErrNotFound)
	}
	b.activeModel = id
	return nil
}

// ActiveModel returns the id of the active model, if any.
func (b *Backend) ActiveModel() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.activeModel
}

func (b *Backend) ActiveRun(ctx context.Context) (backend.Run, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.enter("ActiveRun"); err != nil {
		return backend.Run{}, false, err
	}
	if b.activeRun == "" {
		return backend.Run{}, false, nil
	}
	return b.runs[b.activeRun], true, nil
}

func (b *Backend) LogMetric(ctx context.Context, target backend.MetricTarget, key string, value float64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.enter("LogMetric"); err != nil {
		return err
	}
	if target.RunID == "" && target.ModelID == "" {
		return errors.New("metric target has neither run nor model")
	}
	b.metrics = append(b.metrics, MetricRecord{Target: target, Key: key, Value: value})
	return nil
}

func (b *Backend) SetExperiment(ctx context.Context, name string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.enter("SetExperiment"); err != nil {
		return "", err
	}
	id, ok := b.experiments[name]
	if !ok {
		id = strconv.Itoa(len(b.experiments))
		b.experiments[name] = id
	}
	b.experimentID = id
	return id, nil
}

func findSpan(t *backend.Trace, id string) int {
	return slices.IndexFunc(t.Spans, func(s backend.Span) bool { return s.ID == id })
}

func closeSpan(s *backend.Span, outputs any, err error, clock clockz.Clock) {
	s.Outputs = outputs
	s.Status = backend.StatusFor(err)
	if err != nil {
		s.Error = err.Error()
	}
	s.EndTime = clock.Now()
}

func clone(t *backend.Trace) backend.Trace {
	c := *t
	c.Spans = slices.Clone(t.Spans)
	c.Tags = maps.Clone(t.Tags)
	return c
}

func newID() string {
	return uuid.NewString()
}

func spanID() string {
	id := uuid.New()
	return hex.EncodeToString(id[:8])
}
