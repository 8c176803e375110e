/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

/*
Package judge provides LLM-as-a-judge evaluators for instrumented calls.

Two judgments are available, each returning a single labelled result that
the instrumenter records on the trace:

  - Helpfulness asks whether an answer helped at all and yields 0 or 1 under
    the "helpfulness" label.
  - Fulfillment asks how completely an answer fulfilled the question and
    yields a score from 0.0 to 1.0 under the "fullfilled" label.

A Judge runs on any Completer. OpenAI and Claude completers are included:

	j := judge.New(judge.NewOpenAI("gpt-4o-mini"))

	answer := tracing.NewTrace(tc, instrument.Options{
		Name:      "answer_question",
		Evaluator: j.FulfillmentEvaluator(),
	}, answerQuestion)

# Tracing Judge Calls

Both completers register an autolog integration ("openai" and "anthropic").
When the integration is enabled at mode resolution and the Judge was given a
recorder with WithRecorder, each model call becomes a child span of the span
active in the context.
*/
package judge
