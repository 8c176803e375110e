/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package tracing

import (
	"context"
	"iter"

	"chainguard.dev/evaltrace/tracing/aggregate"
	"chainguard.dev/evaltrace/tracing/backend"
	"chainguard.dev/evaltrace/tracing/finder"
	"chainguard.dev/evaltrace/tracing/instrument"
	"chainguard.dev/evaltrace/tracing/metrics"
	"chainguard.dev/evaltrace/tracing/mode"
	"chainguard.dev/evaltrace/tracing/recorder"
	"chainguard.dev/evaltrace/tracing/retry"
	"github.com/sethvargo/go-envconfig"
	"github.com/zoobzio/clockz"
	oteltrace "go.opentelemetry.io/otel/trace"
)

type config struct {
	retry          retry.Config
	instruments    *metrics.Instruments
	tracerProvider oteltrace.TracerProvider
	clock          clockz.Clock
	lookuper       envconfig.Lookuper
	pageSize       int
}

// Option configures a Context.
type Option func(*config)

// WithRetry sets the retry policy used for every backend call.
func WithRetry(cfg retry.Config) Option {
	return func(c *config) { c.retry = cfg }
}

// WithInstruments records engine metrics through m.
func WithInstruments(m *metrics.Instruments) Option {
	return func(c *config) { c.instruments = m }
}

// WithTracerProvider mirrors spans into tp.
func WithTracerProvider(tp oteltrace.TracerProvider) Option {
	return func(c *config) { c.tracerProvider = tp }
}

// WithClock sets the clock the finder measures its default window from.
func WithClock(clock clockz.Clock) Option {
	return func(c *config) { c.clock = clock }
}

// WithLookuper replaces the process environment for mode resolution.
func WithLookuper(l envconfig.Lookuper) Option {
	return func(c *config) { c.lookuper = l }
}

// WithPageSize sets the number of traces fetched per search request.
func WithPageSize(n int) Option {
	return func(c *config) { c.pageSize = n }
}

// Context holds the engine's components around one backend.
type Context struct {
	Backend      backend.Backend
	Resolver     *mode.Resolver
	Recorder     *recorder.Recorder
	Instrumenter *instrument.Instrumenter
	Finder       *finder.Finder
	Aggregator   *aggregate.Aggregator
}

// New wires a Context over be.
func New(be backend.Backend, opts ...Option) *Context {
	cfg := config{
		retry:    retry.DefaultConfig(),
		clock:    clockz.RealClock,
		pageSize: finder.DefaultPageSize,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	modeOpts := []mode.Option{mode.WithRetry(cfg.retry)}
	if cfg.lookuper != nil {
		modeOpts = append(modeOpts, mode.WithLookuper(cfg.lookuper))
	}
	resolver := mode.NewResolver(be, modeOpts...)

	recOpts := []recorder.Option{recorder.WithRetry(cfg.retry), recorder.WithInstruments(cfg.instruments)}
	if cfg.tracerProvider != nil {
		recOpts = append(recOpts, recorder.WithTracerProvider(cfg.tracerProvider))
	}
	rec := recorder.New(be, recOpts...)

	f := finder.New(be, finder.WithClock(cfg.clock), finder.WithPageSize(cfg.pageSize))

	return &Context{
		Backend:      be,
		Resolver:     resolver,
		Recorder:     rec,
		Instrumenter: instrument.New(rec, resolver, instrument.WithInstruments(cfg.instruments)),
		Finder:       f,
		Aggregator:   aggregate.New(f, be, resolver, aggregate.WithRetry(cfg.retry)),
	}
}

// Init resolves the process mode. It must complete before instrumented
// functions serve traffic.
func (c *Context) Init(ctx context.Context, opts mode.Options) (mode.Identity, error) {
	return c.Resolver.Resolve(ctx, opts)
}

// Identity returns the bound identity, or false before Init.
func (c *Context) Identity() (mode.Identity, bool) {
	return c.Resolver.Current()
}

// Find yields spans matching q.
func (c *Context) Find(ctx context.Context, q finder.Query) iter.Seq2[backend.Span, error] {
	return c.Finder.Find(ctx, q)
}

// LogSummaryMetric aggregates label in the bound scope and logs the metric.
func (c *Context) LogSummaryMetric(ctx context.Context, label string, fn aggregate.AggregationFunc) (aggregate.Summary, error) {
	return c.Aggregator.LogSummaryMetric(ctx, label, fn)
}

// NewTrace wraps fn so each call is a new root trace.
func NewTrace[In, Out any](c *Context, opts instrument.Options, fn func(context.Context, In) (Out, error)) func(context.Context, In) (Out, error) {
	return instrument.NewTrace(c.Instrumenter, opts, fn)
}

// ChildSpan wraps fn so each call is a span under the active trace.
func ChildSpan[In, Out any](c *Context, opts instrument.Options, fn func(context.Context, In) (Out, error)) func(context.Context, In) (Out, error) {
	return instrument.ChildSpan(c.Instrumenter, opts, fn)
}

type contextKey struct{}

// WithContext stores tc in ctx.
func WithContext(ctx context.Context, tc *Context) context.Context {
	return context.WithValue(ctx, contextKey{}, tc)
}

// FromContext returns the Context stored in ctx, or nil.
func FromContext(ctx context.Context) *Context {
	tc, _ := ctx.Value(contextKey{}).(*Context)
	return tc
}
