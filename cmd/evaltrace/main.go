/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Command evaltrace inspects evaluated traces on an MLflow tracking server
// and logs summary metrics over their evaluation results.
//
//	evaltrace find --parent answer_question --evals-only
//	evaltrace summarize --label helpfulness --label fullfilled --agg average
//	evaltrace schema > ai_system_config.schema.json
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/chainguard-dev/clog"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCommand(mlflowBackend).ExecuteContext(ctx); err != nil {
		clog.FatalContextf(ctx, "evaltrace: %v", err)
	}
}
