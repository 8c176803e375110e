/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"chainguard.dev/evaltrace/tracing/finder"
	"chainguard.dev/evaltrace/tracing/report"
	"github.com/spf13/cobra"
)

func (a *app) findCommand() *cobra.Command {
	var (
		experiment string
		parent     string
		spanNames  []string
		since      string
		until      string
		allTime    bool
		evalsOnly  bool
		maxResults int
		format     string
	)

	cmd := &cobra.Command{
		Use:   "find",
		Short: "List traces or spans with their evaluation results",
		Long: `Find lists each matching trace's root span, or with --span the named spans
within matching traces. Without --since or --all-time the last 24 hours are
searched; DOMINO_EVAL_EXTRACT_START_TS sets the default start.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if format != "table" && format != "json" {
				return fmt.Errorf("unknown --format %q (expected table or json)", format)
			}

			tc, uri, err := a.connect(ctx)
			if err != nil {
				return err
			}
			ids, err := a.experimentIDs(ctx, tc.Backend, experiment)
			if err != nil {
				return err
			}

			q := finder.Query{
				ExperimentIDs:   ids,
				ParentTraceName: parent,
				SpanNames:       spanNames,
				AllTime:         allTime,
				EvaluationsOnly: evalsOnly,
			}
			if !allTime {
				if q.Start, err = a.startTime(since); err != nil {
					return err
				}
				if until != "" {
					if q.End, err = parseTime(until); err != nil {
						return err
					}
				}
			}

			rows, truncated, err := collectRows(ctx, tc.Finder, q, uri, maxResults)
			if err != nil {
				return err
			}

			if format == "json" {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(rows); err != nil {
					return err
				}
			} else if err := report.Spans(cmd.OutOrStdout(), rows); err != nil {
				return err
			}
			if truncated {
				writeErr(cmd, "Showing the first %d spans; raise --max to see more.", maxResults)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&experiment, "experiment", "", "Experiment to search (default MLFLOW_EXPERIMENT_NAME)")
	cmd.Flags().StringVar(&parent, "parent", "", "Only traces whose root span has this name")
	cmd.Flags().StringSliceVar(&spanNames, "span", nil, "Span names to list instead of root spans (repeatable)")
	cmd.Flags().StringVar(&since, "since", "", "Earliest trace start, RFC 3339 or \""+time.DateTime+"\"")
	cmd.Flags().StringVar(&until, "until", "", "Latest trace start, same formats as --since")
	cmd.Flags().BoolVar(&allTime, "all-time", false, "Search without a time window")
	cmd.Flags().BoolVar(&evalsOnly, "evals-only", false, "Only traces with evaluation results")
	cmd.Flags().IntVar(&maxResults, "max", 100, "Maximum spans to list, 0 for no limit")
	cmd.Flags().StringVarP(&format, "format", "o", "table", "Output format: table or json")
	return cmd
}

// collectRows reports the spans q selects, stopping after maxResults rows.
func collectRows(ctx context.Context, f *finder.Finder, q finder.Query, uri string, maxResults int) ([]report.Row, bool, error) {
	var rows []report.Row
	for t, err := range f.Traces(ctx, q) {
		if err != nil {
			return nil, false, err
		}
		for _, r := range report.RowsFor(t, q.SpanNames, uri) {
			if maxResults > 0 && len(rows) == maxResults {
				return rows, true, nil
			}
			rows = append(rows, r)
		}
	}
	return rows, false, nil
}
