/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

/*
Package instrument wraps functions so every call is traced and, in
development, evaluated.

NewTrace makes each call a new root trace. ChildSpan nests each call under the
trace already active in the context and does nothing extra when there is none.

	answer := instrument.NewTrace(ins, instrument.Options{
		Name:               "answer",
		Evaluator:          judge.Helpfulness,
		ExtractOutputField: "choices.0.message.content",
	}, func(ctx context.Context, q Question) (*Completion, error) {
		return client.Complete(ctx, q)
	})

The recorded inputs are {"args": [in]} and the recorded outputs are the
returned value. After the span closes the trace is tagged:

  - development with an evaluator: one result and one marker tag per label,
    domino.is_eval=true, the extraction hints and a sample of the call.
  - otherwise: domino.is_eval=false and the extraction hints.

Evaluator failures never reach the caller. They are logged and tagged with
domino.internal.eval_error. When the wrapped function fails, the span closes
with error status, the evaluator is skipped and the error is returned as is.
*/
package instrument
