/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package judge

import (
	"context"
	"errors"
	"fmt"

	"chainguard.dev/evaltrace/tracing/autolog"
	"chainguard.dev/evaltrace/tracing/fieldpath"
	"chainguard.dev/evaltrace/tracing/instrument"
	"chainguard.dev/evaltrace/tracing/recorder"
)

// Completer sends one system prompt and one user message to a chat model and
// returns the text of its reply.
type Completer interface {
	// Provider names the autolog integration that traces this completer.
	Provider() string
	// Model is the chat model in use.
	Model() string
	Complete(ctx context.Context, system, user string) (string, error)
}

// Option configures a Judge.
type Option func(*Judge)

// WithRecorder records model calls as child spans while the completer's
// autolog integration is enabled.
func WithRecorder(rec *recorder.Recorder) Option {
	return func(j *Judge) { j.rec = rec }
}

// Judge scores question/answer pairs with a chat model.
type Judge struct {
	completer Completer
	rec       *recorder.Recorder
}

// New creates a Judge backed by c.
func New(c Completer, opts ...Option) *Judge {
	j := &Judge{completer: c}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Helpfulness judges whether answer helped with question: 1 if it did, 0 if not.
func (j *Judge) Helpfulness(ctx context.Context, question, answer any) (map[string]any, error) {
	reply, err := j.complete(ctx, helpfulnessPrompt, userMessage(question, answer))
	if err != nil {
		return nil, err
	}
	v, err := parseBinary(reply)
	if err != nil {
		return nil, err
	}
	return map[string]any{HelpfulnessLabel: v}, nil
}

// Fulfillment scores how completely answer fulfilled question, from 0.0
// (wrong or irrelevant) to 1.0 (completely correct).
func (j *Judge) Fulfillment(ctx context.Context, question, answer any) (map[string]any, error) {
	reply, err := j.complete(ctx, fulfillmentPrompt, userMessage(question, answer))
	if err != nil {
		return nil, err
	}
	v, err := parseScore(reply)
	if err != nil {
		return nil, err
	}
	return map[string]any{FulfillmentLabel: v}, nil
}

// HelpfulnessEvaluator adapts Helpfulness to an instrumented call, judging
// the call's first argument as the question.
func (j *Judge) HelpfulnessEvaluator() instrument.Evaluator {
	return func(ctx context.Context, inputs, outputs any) (map[string]any, error) {
		return j.Helpfulness(ctx, question(inputs), outputs)
	}
}

// FulfillmentEvaluator adapts Fulfillment to an instrumented call.
func (j *Judge) FulfillmentEvaluator() instrument.Evaluator {
	return func(ctx context.Context, inputs, outputs any) (map[string]any, error) {
		return j.Fulfillment(ctx, question(inputs), outputs)
	}
}

// question picks the first call argument out of recorded inputs.
func question(inputs any) any {
	if q, err := fieldpath.Extract(inputs, "args.0"); err == nil {
		return q
	}
	return inputs
}

func (j *Judge) complete(ctx context.Context, system, user string) (string, error) {
	if j.completer == nil {
		return "", errors.New("judge has no completer")
	}
	call := func(ctx context.Context) (string, error) {
		reply, err := j.completer.Complete(ctx, system, user)
		if err != nil {
			return "", fmt.Errorf("%s judge call: %w", j.completer.Provider(), err)
		}
		return reply, nil
	}
	if j.rec == nil || !autolog.Enabled(j.completer.Provider()) {
		return call(ctx)
	}

	ctx, h := j.rec.OpenChildSpan(ctx, j.completer.Provider()+".chat", map[string]any{
		"model": j.completer.Model(),
		"messages": []map[string]string{
			{"role": "system", "content": system},
			{"role": "user", "content": user},
		},
	})
	return recorder.Run(ctx, j.rec, h, call)
}
