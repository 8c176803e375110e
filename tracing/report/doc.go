/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package report renders found spans and summary metrics as markdown tables.
//
// Example:
//
//	var rows []report.Row
//	for t, err := range tc.Finder.Traces(ctx, q) {
//		if err != nil {
//			return err
//		}
//		rows = append(rows, report.RowsFor(t, q.SpanNames, trackingURI)...)
//	}
//	return report.Spans(os.Stdout, rows)
package report
