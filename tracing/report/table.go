/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package report

import (
	"io"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"
)

// column is a table header and how its cells line up.
type column struct {
	header string
	align  tw.Align
}

func text(header string) column    { return column{header: header, align: tw.AlignLeft} }
func numeric(header string) column { return column{header: header, align: tw.AlignRight} }

// newTable starts a markdown table with one column per cols entry. Numbers
// are right-aligned, everything else reads left to right. Cells never wrap,
// so trace links stay clickable.
func newTable(w io.Writer, cols ...column) *tablewriter.Table {
	headers := make([]string, len(cols))
	aligns := make([]tw.Align, len(cols))
	for i, c := range cols {
		headers[i], aligns[i] = c.header, c.align
	}
	return tablewriter.NewTable(w,
		tablewriter.WithConfig(tablewriter.Config{
			Header: tw.CellConfig{
				Alignment:  tw.CellAlignment{PerColumn: aligns},
				Formatting: tw.CellFormatting{AutoFormat: tw.Off},
			},
			Row: tw.CellConfig{
				Alignment: tw.CellAlignment{PerColumn: aligns},
			},
		}),
		tablewriter.WithHeader(headers),
		tablewriter.WithRenderer(renderer.NewMarkdown()),
		tablewriter.WithRowAutoWrap(tw.WrapNone),
	)
}
