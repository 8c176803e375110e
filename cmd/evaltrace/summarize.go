/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package main

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"chainguard.dev/evaltrace/tracing/aggregate"
	"chainguard.dev/evaltrace/tracing/mode"
	"chainguard.dev/evaltrace/tracing/report"
	"github.com/chainguard-dev/clog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func (a *app) summarizeCommand() *cobra.Command {
	var (
		experiment string
		labels     []string
		agg        string
	)

	cmd := &cobra.Command{
		Use:   "summarize",
		Short: "Aggregate evaluation results into summary metrics",
		Long: `Summarize resolves the AI system identity the same way an instrumented
process does, aggregates every recorded value of each label and logs the
result as the evaluation_result.<label> metric. In development the metric is
logged to the active run (MLFLOW_RUN_ID); in production to the model named by
DOMINO_AI_SYSTEM_MODEL_ID.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			fn, err := aggregate.Lookup(agg)
			if err != nil {
				return fmt.Errorf("--agg: %w (expected one of %s)", err, strings.Join(slices.Sorted(maps.Keys(aggregate.Funcs)), ", "))
			}

			tc, _, err := a.connect(ctx)
			if err != nil {
				return err
			}
			prod, err := isProduction(ctx, a.lookuper)
			if err != nil {
				return fmt.Errorf("reading mode flag: %w", err)
			}
			if experiment == "" {
				experiment = a.cfg.Experiment
			}
			id, err := tc.Init(ctx, mode.Options{IsProduction: prod, ExperimentName: experiment})
			if err != nil {
				return err
			}
			clog.FromContext(ctx).With("mode", id.Mode.String()).With("model_id", id.Model.ID).Debug("Resolved AI system identity")

			summaries := make([]aggregate.Summary, len(labels))
			g, gctx := errgroup.WithContext(ctx)
			for i, label := range labels {
				g.Go(func() error {
					s, err := tc.LogSummaryMetric(gctx, label, fn)
					if err != nil {
						return fmt.Errorf("summarizing %q: %w", label, err)
					}
					summaries[i] = s
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}

			if err := report.Summaries(cmd.OutOrStdout(), summaries); err != nil {
				return err
			}
			if slices.ContainsFunc(summaries, func(s aggregate.Summary) bool { return errors.Is(s.Skipped, aggregate.ErrNoData) }) {
				writeErr(cmd, "Labels without evaluated traces were not logged.")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&experiment, "experiment", "", "Experiment to bind (default MLFLOW_EXPERIMENT_NAME)")
	cmd.Flags().StringSliceVarP(&labels, "label", "l", nil, "Evaluation label to summarize (repeatable)")
	cmd.Flags().StringVar(&agg, "agg", "average", "Aggregation: average, mean, min, max or count")
	_ = cmd.MarkFlagRequired("label")
	return cmd
}
