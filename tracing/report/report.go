/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package report

import (
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"time"

	"chainguard.dev/evaltrace/tracing/aggregate"
	"chainguard.dev/evaltrace/tracing/backend"
	"chainguard.dev/evaltrace/tracing/finder"
	"chainguard.dev/evaltrace/tracing/tagcodec"
)

// Row is one reported span.
type Row struct {
	TraceID  string         `json:"trace_id"`
	Span     string         `json:"span"`
	Status   backend.Status `json:"status"`
	Start    time.Time      `json:"start_time"`
	Duration time.Duration  `json:"duration_ns,omitempty"`
	// Evaluations are the trace's decoded evaluation results by label.
	Evaluations map[string]any `json:"evaluations,omitempty"`
	URL         string         `json:"url,omitempty"`
}

// RowsFor reports the spans of t that a finder query with spanNames would
// yield. trackingURI, when set, fills in links to the tracking UI.
func RowsFor(t backend.Trace, spanNames []string, trackingURI string) []Row {
	evals, err := tagcodec.ParseEvaluations(t.Tags)
	if err != nil {
		// Show what decoded; the table is for people.
		evals = map[string]any{}
	}
	var url string
	if trackingURI != "" {
		url = finder.TraceURL(trackingURI, t.ExperimentID, t.ID)
	}

	var spans []backend.Span
	if len(spanNames) == 0 {
		if root, ok := t.Root(); ok {
			spans = append(spans, root)
		}
	} else {
		for _, s := range t.Spans {
			if slices.Contains(spanNames, s.Name) {
				spans = append(spans, s)
			}
		}
	}

	rows := make([]Row, 0, len(spans))
	for _, s := range spans {
		r := Row{
			TraceID:     t.ID,
			Span:        s.Name,
			Status:      s.Status,
			Start:       s.StartTime,
			Evaluations: evals,
			URL:         url,
		}
		if !s.EndTime.IsZero() {
			r.Duration = s.EndTime.Sub(s.StartTime)
		}
		rows = append(rows, r)
	}
	return rows
}

// Spans writes rows as a table.
func Spans(w io.Writer, rows []Row) error {
	cols := []column{text("Trace"), text("Span"), text("Status"), text("Started"), numeric("Duration"), text("Evaluations")}
	withURL := slices.ContainsFunc(rows, func(r Row) bool { return r.URL != "" })
	if withURL {
		cols = append(cols, text("Link"))
	}

	table := newTable(w, cols...)
	for _, r := range rows {
		row := []string{
			r.TraceID,
			r.Span,
			string(r.Status),
			r.Start.UTC().Format(time.DateTime),
			formatDuration(r.Duration),
			formatEvaluations(r.Evaluations),
		}
		if withURL {
			row = append(row, r.URL)
		}
		if err := table.Append(row); err != nil {
			return fmt.Errorf("appending row: %w", err)
		}
	}
	return table.Render()
}

// Summaries writes the outcome of LogSummaryMetric calls as a table.
func Summaries(w io.Writer, summaries []aggregate.Summary) error {
	table := newTable(w, text("Label"), text("Metric"), numeric("Value"), numeric("Count"), text("Scope"), text("Target"))
	for _, s := range summaries {
		value := fmt.Sprintf("%.4f", s.Value)
		if errors.Is(s.Skipped, aggregate.ErrNoData) {
			value = "no data"
		}
		if err := table.Append([]string{
			s.Label,
			s.MetricKey,
			value,
			fmt.Sprint(s.Count),
			s.Scope,
			formatTarget(s.Target),
		}); err != nil {
			return fmt.Errorf("appending row: %w", err)
		}
	}
	return table.Render()
}

func formatDuration(d time.Duration) string {
	if d == 0 {
		return "-"
	}
	return d.Round(time.Millisecond).String()
}

func formatEvaluations(evals map[string]any) string {
	if len(evals) == 0 {
		return "-"
	}
	parts := make([]string, 0, len(evals))
	for _, label := range slices.Sorted(maps.Keys(evals)) {
		v := evals[label]
		if f, ok := v.(float64); ok {
			parts = append(parts, fmt.Sprintf("%s=%.2f", label, f))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s=%v", label, v))
	}
	return strings.Join(parts, ", ")
}

func formatTarget(t backend.MetricTarget) string {
	var parts []string
	if t.RunID != "" {
		parts = append(parts, "run "+t.RunID)
	}
	if t.ModelID != "" {
		parts = append(parts, "model "+t.ModelID)
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, ", ")
}
