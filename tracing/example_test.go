/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package tracing_test

import (
	"context"
	"fmt"

	"chainguard.dev/evaltrace/tracing"
	"chainguard.dev/evaltrace/tracing/backend/memory"
	"chainguard.dev/evaltrace/tracing/instrument"
	"chainguard.dev/evaltrace/tracing/tagcodec"
)

// ExampleNewTrace shows a development call being traced and evaluated.
func ExampleNewTrace() {
	ctx := context.Background()
	be := memory.New()
	be.StartRun()

	tc := tracing.New(be)

	shout := tracing.NewTrace(tc, instrument.Options{
		Name: "shout",
		Evaluator: func(_ context.Context, _, out any) (map[string]any, error) {
			return map[string]any{"length": len(out.(string))}, nil
		},
	}, func(_ context.Context, s string) (string, error) {
		return s + "!", nil
	})

	out, _ := shout(ctx, "hello")
	tr := be.Traces()[0]

	fmt.Println(out)
	fmt.Println(tr.Tags[tagcodec.EvaluationResultKey("length")])
	fmt.Println(tr.Tags[tagcodec.KeyIsEval])
	// Output:
	// hello!
	// 6
	// true
}
