/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package recorder

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"chainguard.dev/evaltrace/tracing/backend"
	"chainguard.dev/evaltrace/tracing/metrics"
	"chainguard.dev/evaltrace/tracing/retry"
	"github.com/chainguard-dev/clog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
)

const instrumentationName = "chainguard.dev/evaltrace/tracing/recorder"

// Backend is the subset of backend.Backend the recorder writes to.
type Backend interface {
	backend.Tracer
	backend.TagWriter
}

// TagWriteError reports a tag that could not be written after retry.
type TagWriteError struct {
	TraceID string
	Key     string
	Err     error
}

func (e *TagWriteError) Error() string {
	return fmt.Sprintf("writing tag %q on trace %s: %v", e.Key, e.TraceID, e.Err)
}

func (e *TagWriteError) Unwrap() error {
	return e.Err
}

// traceState is shared by every handle of one trace.
type traceState struct {
	evaluated atomic.Bool
}

// Handle is an open span. A nil *Handle is a span that was never opened.
type Handle struct {
	ref   backend.SpanRef
	name  string
	root  bool
	span  oteltrace.Span
	trace *traceState

	once sync.Once
}

// MarkEvaluated records that a span of the handle's trace wrote evaluation
// results.
func (h *Handle) MarkEvaluated() {
	if h != nil {
		h.trace.evaluated.Store(true)
	}
}

// Evaluated reports whether any span of the handle's trace has been marked
// evaluated.
func (h *Handle) Evaluated() bool {
	return h != nil && h.trace.evaluated.Load()
}

// TraceID returns the id of the trace the span belongs to.
func (h *Handle) TraceID() string {
	if h == nil {
		return ""
	}
	return h.ref.TraceID
}

// SpanID returns the backend span id.
func (h *Handle) SpanID() string {
	if h == nil {
		return ""
	}
	return h.ref.SpanID
}

// Name returns the span name.
func (h *Handle) Name() string {
	if h == nil {
		return ""
	}
	return h.name
}

// IsRoot reports whether the handle is a trace root.
func (h *Handle) IsRoot() bool {
	return h != nil && h.root
}

type activeKey struct{}

// Active returns the innermost span open in ctx, or nil.
func Active(ctx context.Context) *Handle {
	h, _ := ctx.Value(activeKey{}).(*Handle)
	return h
}

// Detach returns ctx with no active span. Work that runs after its span
// closed uses it so it does not try to nest under a closed parent.
func Detach(ctx context.Context) context.Context {
	return context.WithValue(ctx, activeKey{}, (*Handle)(nil))
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithRetry sets the retry policy for backend calls.
func WithRetry(cfg retry.Config) Option {
	return func(r *Recorder) { r.retry = cfg }
}

// WithInstruments records span and failure counters.
func WithInstruments(m *metrics.Instruments) Option {
	return func(r *Recorder) { r.metrics = m }
}

// WithTracerProvider mirrors spans into tp instead of the global provider.
func WithTracerProvider(tp oteltrace.TracerProvider) Option {
	return func(r *Recorder) {
		r.tracer = tp.Tracer(instrumentationName, oteltrace.WithInstrumentationVersion("1.0.0"))
	}
}

// Recorder opens and closes spans on a backend.
type Recorder struct {
	be      Backend
	retry   retry.Config
	metrics *metrics.Instruments
	tracer  oteltrace.Tracer
}

// New creates a Recorder writing to be.
func New(be Backend, opts ...Option) *Recorder {
	r := &Recorder{
		be:     be,
		retry:  retry.DefaultConfig(),
		tracer: otel.Tracer(instrumentationName, oteltrace.WithInstrumentationVersion("1.0.0")),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// OpenRootTrace starts a new trace whose root span is called name. If the
// backend cannot start the trace the returned handle is nil and the caller
// proceeds untraced.
func (r *Recorder) OpenRootTrace(ctx context.Context, name string, inputs any) (context.Context, *Handle) {
	ref, err := retry.Do(ctx, r.retry, "start_trace", retry.Transient, func() (backend.SpanRef, error) {
		return r.be.StartTrace(ctx, name, inputs)
	})
	if err != nil {
		r.failed(ctx, "start_trace", err, "span", name)
		return ctx, nil
	}
	return r.open(ctx, ref, name, &traceState{}, true)
}

// OpenChildSpan starts a span nested under the span active in ctx. With no
// active span it returns ctx unchanged and a nil handle.
func (r *Recorder) OpenChildSpan(ctx context.Context, name string, inputs any) (context.Context, *Handle) {
	parent := Active(ctx)
	if parent == nil {
		return ctx, nil
	}
	ref, err := retry.Do(ctx, r.retry, "start_span", retry.Transient, func() (backend.SpanRef, error) {
		return r.be.StartSpan(ctx, parent.ref, name, inputs)
	})
	if err != nil {
		r.failed(ctx, "start_span", err, "span", name, "trace_id", parent.ref.TraceID)
		return ctx, nil
	}
	return r.open(ctx, ref, name, parent.trace, false)
}

func (r *Recorder) open(ctx context.Context, ref backend.SpanRef, name string, ts *traceState, root bool) (context.Context, *Handle) {
	ctx, span := r.tracer.Start(ctx, name, oteltrace.WithAttributes(
		attribute.String("evaltrace.trace_id", ref.TraceID),
		attribute.String("evaltrace.span_id", ref.SpanID),
		attribute.Bool("evaltrace.root", root),
	))
	h := &Handle{
		ref:   ref,
		name:  name,
		root:  root,
		span:  span,
		trace: ts,
	}
	return context.WithValue(ctx, activeKey{}, h), h
}

// Close ends the span with outputs, or with error status when err is non-nil.
// Closing a handle twice or closing a nil handle does nothing. The backend
// calls ignore cancellation of ctx, which is often why the call failed.
func (r *Recorder) Close(ctx context.Context, h *Handle, outputs any, err error) {
	if h == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	h.once.Do(func() {
		var cerr error
		if h.root {
			cerr = retry.Call(ctx, r.retry, "end_trace", func() error {
				return r.be.EndTrace(ctx, h.ref.TraceID, outputs, err)
			})
		} else {
			cerr = retry.Call(ctx, r.retry, "end_span", func() error {
				return r.be.EndSpan(ctx, h.ref, outputs, err)
			})
		}
		if cerr != nil {
			r.failed(ctx, "end_span", cerr, "span", h.name, "trace_id", h.ref.TraceID)
		}

		if err != nil {
			h.span.RecordError(err)
			h.span.SetStatus(codes.Error, err.Error())
		} else {
			h.span.SetStatus(codes.Ok, "")
		}
		h.span.End()

		r.metrics.RecordSpan(ctx, h.name, h.root, string(backend.StatusFor(err)))
	})
}

// SetTags writes tags on the handle's trace, in key order. Each failed write
// is logged and reported as a *TagWriteError in the joined result; a failure
// does not stop the remaining writes. Like Close, the writes outlive a
// cancelled ctx.
func (r *Recorder) SetTags(ctx context.Context, h *Handle, tags map[string]string) error {
	if h == nil || len(tags) == 0 {
		return nil
	}
	ctx = context.WithoutCancel(ctx)
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	var errs []error
	for _, k := range keys {
		err := retry.Call(ctx, r.retry, "set_tag", func() error {
			return r.be.SetTag(ctx, h.ref.TraceID, k, tags[k])
		})
		if err != nil {
			werr := &TagWriteError{TraceID: h.ref.TraceID, Key: k, Err: err}
			r.failed(ctx, "set_tag", werr, "trace_id", h.ref.TraceID, "key", k)
			errs = append(errs, werr)
		}
	}
	return errors.Join(errs...)
}

func (r *Recorder) failed(ctx context.Context, operation string, err error, kv ...any) {
	r.metrics.RecordBackendFailure(ctx, operation)
	args := append([]any{"operation", operation, "error", err.Error()}, kv...)
	clog.FromContext(ctx).With(args...).Warn("Tracing backend call failed")
}

// Run invokes fn inside h and closes h with fn's result. A panic in fn closes
// the span with error status and is re-raised.
func Run[T any](ctx context.Context, r *Recorder, h *Handle, fn func(context.Context) (T, error)) (result T, err error) {
	defer func() {
		if p := recover(); p != nil {
			r.Close(ctx, h, nil, fmt.Errorf("panic: %v", p))
			panic(p)
		}
		r.Close(ctx, h, result, err)
	}()
	return fn(ctx)
}
