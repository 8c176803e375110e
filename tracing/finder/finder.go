/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package finder searches recorded traces and yields their spans.
package finder

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"net/url"
	"slices"
	"strings"
	"time"

	"chainguard.dev/evaltrace/tracing/backend"
	"chainguard.dev/evaltrace/tracing/tagcodec"
	"github.com/zoobzio/clockz"
)

const (
	// DefaultPageSize is the number of traces fetched per backend request.
	DefaultPageSize = 100
	// DefaultWindow is how far back a query looks when it sets no start.
	DefaultWindow = 24 * time.Hour
)

// ErrTruncated is yielded as the final element when MaxResults cut the
// results short.
var ErrTruncated = errors.New("results truncated at MaxResults")

// Query selects traces and the spans yielded from them.
type Query struct {
	ExperimentIDs []string
	// ParentTraceName restricts to traces whose root span has this name.
	ParentTraceName string
	// SpanNames selects spans by name. Empty yields each trace's root span.
	SpanNames []string
	// Start and End bound the trace start time. A zero Start means
	// DefaultWindow before now; a zero End means now.
	Start, End time.Time
	// AllTime disables the time window entirely.
	AllTime bool
	// EvaluationsOnly restricts to traces carrying at least one
	// evaluation_label marker, whatever their is_eval tag says.
	EvaluationsOnly bool
	// Filter adds clauses to the backend search.
	Filter backend.Filter
	// MaxResults caps the number of yielded spans. Zero is unlimited.
	MaxResults int
}

// Option configures a Finder.
type Option func(*Finder)

// WithClock sets the clock the default window is measured from.
func WithClock(c clockz.Clock) Option {
	return func(f *Finder) { f.clock = c }
}

// WithPageSize sets the number of traces requested per page.
func WithPageSize(n int) Option {
	return func(f *Finder) { f.pageSize = n }
}

// Finder searches a backend.
type Finder struct {
	s        backend.Searcher
	clock    clockz.Clock
	pageSize int
}

// New creates a Finder over s.
func New(s backend.Searcher, opts ...Option) *Finder {
	f := &Finder{s: s, clock: clockz.RealClock, pageSize: DefaultPageSize}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// filter builds the backend filter for q, resolving the default window
// against now.
func (q Query) filter(now time.Time) backend.Filter {
	var f backend.Filter
	if !q.AllTime {
		start, end := q.Start, q.End
		if start.IsZero() {
			start = now.Add(-DefaultWindow)
		}
		if end.IsZero() {
			end = now
		}
		f = append(f, backend.TimestampAtLeast(start), backend.TimestampAtMost(end))
	}
	if q.ParentTraceName != "" {
		f = append(f, backend.TraceNameEquals(q.ParentTraceName))
	}
	return append(f, q.Filter...)
}

// Traces yields the traces matching q, newest first, page by page. Each range
// over the result starts again from the first page.
func (f *Finder) Traces(ctx context.Context, q Query) iter.Seq2[backend.Trace, error] {
	return func(yield func(backend.Trace, error) bool) {
		req := backend.SearchRequest{
			ExperimentIDs: q.ExperimentIDs,
			Filter:        q.filter(f.clock.Now()),
			PageSize:      f.pageSize,
		}
		for {
			page, err := f.s.SearchTraces(ctx, req)
			if err != nil {
				yield(backend.Trace{}, fmt.Errorf("searching traces: %w", err))
				return
			}
			for _, t := range page.Traces {
				// Evaluation markers are label-keyed, so backends cannot
				// filter on them and they are checked here.
				if q.EvaluationsOnly && !tagcodec.HasEvaluation(t.Tags) {
					continue
				}
				if !yield(t, nil) {
					return
				}
			}
			if page.NextPageToken == "" {
				return
			}
			req.PageToken = page.NextPageToken
		}
	}
}

// Find yields the spans selected by q: each matching trace's root span, or
// with SpanNames the named spans of each trace in span order. When MaxResults
// is reached and more spans exist, ErrTruncated is yielded last.
func (f *Finder) Find(ctx context.Context, q Query) iter.Seq2[backend.Span, error] {
	return func(yield func(backend.Span, error) bool) {
		n := 0
		emit := func(s backend.Span) bool {
			if q.MaxResults > 0 && n == q.MaxResults {
				yield(backend.Span{}, ErrTruncated)
				return false
			}
			n++
			return yield(s, nil)
		}

		for t, err := range f.Traces(ctx, q) {
			if err != nil {
				yield(backend.Span{}, err)
				return
			}
			for _, s := range selectSpans(t, q.SpanNames) {
				if !emit(s) {
					return
				}
			}
		}
	}
}

func selectSpans(t backend.Trace, names []string) []backend.Span {
	if len(names) == 0 {
		if root, ok := t.Root(); ok {
			return []backend.Span{root}
		}
		return nil
	}
	var out []backend.Span
	for _, s := range t.Spans {
		if slices.Contains(names, s.Name) {
			out = append(out, s)
		}
	}
	return out
}

// Collect drains Find into a slice. On truncation it returns the spans found
// together with ErrTruncated.
func (f *Finder) Collect(ctx context.Context, q Query) ([]backend.Span, error) {
	var out []backend.Span
	for s, err := range f.Find(ctx, q) {
		if err != nil {
			return out, err
		}
		out = append(out, s)
	}
	return out, nil
}

// TraceURL links to a trace in the tracking server UI.
func TraceURL(trackingURI, experimentID, traceID string) string {
	base := strings.TrimSuffix(trackingURI, "/")
	return fmt.Sprintf("%s/#/experiments/%s/traces?selectedTraceId=%s",
		base, url.PathEscape(experimentID), url.QueryEscape(traceID))
}
