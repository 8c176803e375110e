/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package instrument

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	"chainguard.dev/evaltrace/tracing/fieldpath"
	"chainguard.dev/evaltrace/tracing/metrics"
	"chainguard.dev/evaltrace/tracing/mode"
	"chainguard.dev/evaltrace/tracing/recorder"
	"chainguard.dev/evaltrace/tracing/tagcodec"
	"github.com/chainguard-dev/clog"
)

// Evaluator scores one call. inputs is the recorded {"args": [in]} value and
// outputs the returned value. The result maps labels to JSON-serializable
// values.
type Evaluator func(ctx context.Context, inputs, outputs any) (map[string]any, error)

// EvaluatorFor adapts a typed evaluator to an Evaluator.
func EvaluatorFor[In, Out any](fn func(ctx context.Context, in In, out Out) (map[string]any, error)) Evaluator {
	return func(ctx context.Context, inputs, outputs any) (map[string]any, error) {
		in, ok := firstArg(inputs).(In)
		if !ok {
			return nil, fmt.Errorf("evaluator input is %T, not %T", firstArg(inputs), *new(In))
		}
		out, ok := outputs.(Out)
		if !ok {
			return nil, fmt.Errorf("evaluator output is %T, not %T", outputs, *new(Out))
		}
		return fn(ctx, in, out)
	}
}

func firstArg(inputs any) any {
	m, ok := inputs.(map[string]any)
	if !ok {
		return nil
	}
	args, ok := m["args"].([]any)
	if !ok || len(args) == 0 {
		return nil
	}
	return args[0]
}

// Options configures one instrumented function.
type Options struct {
	// Name is the span name.
	Name string
	// Evaluator, when set, runs after each successful call in development.
	Evaluator Evaluator
	// ExtractInputField is a dotted path into the inputs for display.
	ExtractInputField string
	// ExtractOutputField is a dotted path into the outputs for display.
	ExtractOutputField string
	// Sample overrides the recorded [input, output] sample pair.
	Sample func(inputs, outputs any) (any, any)
}

// EvaluatorError reports an evaluator that failed or panicked.
type EvaluatorError struct {
	Span string
	Err  error
}

func (e *EvaluatorError) Error() string {
	return fmt.Sprintf("evaluator for %q: %v", e.Span, e.Err)
}

func (e *EvaluatorError) Unwrap() error {
	return e.Err
}

// ModeSource reports the bound identity. *mode.Resolver implements it.
type ModeSource interface {
	Current() (mode.Identity, bool)
}

// Option configures an Instrumenter.
type Option func(*Instrumenter)

// WithInstruments records evaluator timings and failures.
func WithInstruments(m *metrics.Instruments) Option {
	return func(i *Instrumenter) { i.metrics = m }
}

// Instrumenter holds what instrumented functions share.
type Instrumenter struct {
	rec     *recorder.Recorder
	modes   ModeSource
	metrics *metrics.Instruments
}

// New creates an Instrumenter recording through rec. modes may be nil, in
// which case the published mode flag decides.
func New(rec *recorder.Recorder, modes ModeSource, opts ...Option) *Instrumenter {
	i := &Instrumenter{rec: rec, modes: modes}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// NewTrace wraps fn so each call is recorded as a new root trace.
func NewTrace[In, Out any](ins *Instrumenter, opts Options, fn func(context.Context, In) (Out, error)) func(context.Context, In) (Out, error) {
	return func(ctx context.Context, in In) (Out, error) {
		inputs := map[string]any{"args": []any{in}}
		ctx, h := ins.rec.OpenRootTrace(ctx, opts.Name, inputs)
		return invoke(ctx, ins, opts, h, inputs, in, fn)
	}
}

// ChildSpan wraps fn so each call is recorded as a span under the trace
// active in the context. Without one, fn runs unrecorded.
func ChildSpan[In, Out any](ins *Instrumenter, opts Options, fn func(context.Context, In) (Out, error)) func(context.Context, In) (Out, error) {
	return func(ctx context.Context, in In) (Out, error) {
		inputs := map[string]any{"args": []any{in}}
		ctx, h := ins.rec.OpenChildSpan(ctx, opts.Name, inputs)
		return invoke(ctx, ins, opts, h, inputs, in, fn)
	}
}

func invoke[In, Out any](ctx context.Context, ins *Instrumenter, opts Options, h *recorder.Handle, inputs map[string]any, in In, fn func(context.Context, In) (Out, error)) (Out, error) {
	isProduction := ins.isProduction(ctx)

	out, err := recorder.Run(ctx, ins.rec, h, func(ctx context.Context) (Out, error) {
		return fn(ctx, in)
	})
	if h == nil {
		return out, err
	}

	var outputs any
	if err == nil {
		outputs = out
	}
	ins.tag(ctx, opts, h, isProduction, inputs, outputs, err)
	return out, err
}

func (ins *Instrumenter) isProduction(ctx context.Context) bool {
	if ins.modes != nil {
		if id, ok := ins.modes.Current(); ok {
			return id.IsProduction()
		}
	}
	isProd, err := mode.FromEnv(ctx)
	if err != nil {
		clog.FromContext(ctx).With("error", err.Error()).Warn("Cannot read mode flag, assuming development")
		return false
	}
	return isProd
}

// tag writes the trace tags for a closed call. Failures are logged only.
func (ins *Instrumenter) tag(ctx context.Context, opts Options, h *recorder.Handle, isProduction bool, inputs, outputs any, callErr error) {
	log := clog.FromContext(ctx).With("span", opts.Name).With("trace_id", h.TraceID())

	meta := tagcodec.Metadata{IsProduction: isProduction}
	inValue, inOK := resolveHint(ctx, opts.ExtractInputField, inputs)
	if inOK {
		meta.ExtractInputField = opts.ExtractInputField
	}
	var outValue any
	var outOK bool
	if callErr != nil {
		// Nothing to check the output hint against.
		meta.ExtractOutputField = opts.ExtractOutputField
	} else if outValue, outOK = resolveHint(ctx, opts.ExtractOutputField, outputs); outOK {
		meta.ExtractOutputField = opts.ExtractOutputField
	}

	tags := make(map[string]string)
	written := make(map[string]any)
	if callErr == nil && !isProduction && opts.Evaluator != nil {
		// The span is closed; spans the evaluator opens must not nest under it.
		results, err := ins.evaluate(recorder.Detach(ctx), opts, inputs, outputs)
		if err != nil {
			log.With("error", err.Error()).Warn("Evaluator failed, call result is unaffected")
			maps.Copy(tags, tagcodec.EvalErrorTags())
		}

		for _, label := range slices.Sorted(maps.Keys(results)) {
			et, err := tagcodec.EvaluationTags(label, results[label])
			if err != nil {
				log.With("label", label).With("error", err.Error()).Warn("Dropping evaluation result")
				continue
			}
			maps.Copy(tags, et)
			written[label] = results[label]
			meta.IsEval = true
		}

		if meta.IsEval {
			sampleIn, sampleOut := inputs, outputs
			if inOK {
				sampleIn = inValue
			}
			if outOK {
				sampleOut = outValue
			}
			if opts.Sample != nil {
				sampleIn, sampleOut = opts.Sample(inputs, outputs)
			}
			key, value, err := tagcodec.SampleTag(opts.Name, sampleIn, sampleOut)
			if err != nil {
				log.With("error", err.Error()).Warn("Cannot encode sample")
			} else {
				tags[key] = value
			}
		}
	}
	maps.Copy(tags, tagcodec.MetadataTags(meta))
	if meta.IsEval {
		h.MarkEvaluated()
	} else if h.Evaluated() {
		// Another span of this trace evaluated it; keep is_eval=true.
		delete(tags, tagcodec.KeyIsEval)
	}

	// Write failures are already logged by the recorder.
	failed := failedKeys(ins.rec.SetTags(ctx, h, tags))
	for _, label := range slices.Sorted(maps.Keys(written)) {
		if !failed[tagcodec.EvaluationResultKey(label)] {
			metrics.ObserveEvaluation(opts.Name, label, written[label])
		}
	}
}

// failedKeys lists the tag keys named by the *recorder.TagWriteError values
// joined in err.
func failedKeys(err error) map[string]bool {
	failed := make(map[string]bool)
	if err == nil {
		return failed
	}
	errs := []error{err}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		errs = joined.Unwrap()
	}
	for _, e := range errs {
		var werr *recorder.TagWriteError
		if errors.As(e, &werr) {
			failed[werr.Key] = true
		}
	}
	return failed
}

// resolveHint checks that path resolves against value. An unresolvable hint
// is logged and dropped so the remaining tags are still written.
func resolveHint(ctx context.Context, path string, value any) (any, bool) {
	if path == "" {
		return nil, false
	}
	v, err := fieldpath.Extract(value, path)
	if err != nil {
		clog.FromContext(ctx).With("path", path).With("error", err.Error()).Warn("Dropping extraction hint")
		return nil, false
	}
	return v, true
}

func (ins *Instrumenter) evaluate(ctx context.Context, opts Options, inputs, outputs any) (results map[string]any, err error) {
	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			results, err = nil, &EvaluatorError{Span: opts.Name, Err: fmt.Errorf("panic: %v", p)}
		}
		ins.metrics.RecordEvaluator(ctx, opts.Name, time.Since(start).Seconds(), err != nil)
	}()

	results, err = opts.Evaluator(ctx, inputs, outputs)
	if err != nil {
		return nil, &EvaluatorError{Span: opts.Name, Err: err}
	}
	return results, nil
}
