// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package cli

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/vexec/pkg/col/coldata"
	"github.com/cockroachdb/vexec/pkg/sql/flowinfra"
	"github.com/olekukonko/tablewriter"
)

type tableDisplayFormat int

const (
	tableDisplayTSV tableDisplayFormat = iota
	tableDisplayCSV
	tableDisplayPretty
	tableDisplayRecords
)

var tableDisplayFormatNames = map[string]tableDisplayFormat{
	"tsv":     tableDisplayTSV,
	"csv":     tableDisplayCSV,
	"table":   tableDisplayPretty,
	"records": tableDisplayRecords,
}

// Type implements the pflag.Value interface.
func (f *tableDisplayFormat) Type() string { return "string" }

// String implements the pflag.Value interface.
func (f *tableDisplayFormat) String() string {
	for name, v := range tableDisplayFormatNames {
		if v == *f {
			return name
		}
	}
	return ""
}

// Set implements the pflag.Value interface.
func (f *tableDisplayFormat) Set(s string) error {
	v, ok := tableDisplayFormatNames[s]
	if !ok {
		return errors.Newf("invalid table display format: %s (possible values: tsv, csv, table, records)", s)
	}
	*f = v
	return nil
}

// formatValue renders one value of a batch. NULL renders as "NULL".
func formatValue(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case string:
		return val
	case []byte:
		return fmt.Sprintf("%q", val)
	default:
		return fmt.Sprint(val)
	}
}

// tableReceiver is a flowinfra.BatchReceiver that buffers the rows it is
// handed and writes them out as a table on flush. A schema change flushes
// the rows of the previous schema first. At most maxRows rows are kept when
// maxRows is positive; the receiver then asks the fragment to stop.
type tableReceiver struct {
	w       io.Writer
	format  tableDisplayFormat
	maxRows int

	cols  []string
	rows  [][]string
	nRows int
	err   error
}

var _ flowinfra.BatchReceiver = (*tableReceiver)(nil)

func newTableReceiver(w io.Writer, format tableDisplayFormat, maxRows int) *tableReceiver {
	return &tableReceiver{w: w, format: format, maxRows: maxRows}
}

// PushBatch implements the flowinfra.BatchReceiver interface.
func (r *tableReceiver) PushBatch(
	_ context.Context, b coldata.Batch, schema coldata.Schema,
) flowinfra.ConsumerStatus {
	if schema != nil {
		if r.cols != nil {
			r.flush()
		}
		r.cols = schema.Names()
	}
	vecs := b.ColVecs()
	for i := 0; i < b.Length(); i++ {
		row := make([]string, len(vecs))
		for j, v := range vecs {
			row[j] = formatValue(v.Get(i))
		}
		r.rows = append(r.rows, row)
		r.nRows++
		if r.maxRows > 0 && r.nRows >= r.maxRows {
			return flowinfra.ConsumerClosed
		}
	}
	return flowinfra.NeedMoreRows
}

// Flush writes out the buffered rows and returns the first write error.
func (r *tableReceiver) Flush() error {
	if r.cols != nil || len(r.rows) > 0 {
		r.flush()
	}
	return r.err
}

func (r *tableReceiver) flush() {
	if r.err == nil {
		r.err = printQueryOutput(r.w, r.cols, r.rows, r.format)
	}
	r.rows = r.rows[:0]
}

// printQueryOutput writes the column names and the rows to w in the given
// format.
func printQueryOutput(
	w io.Writer, cols []string, allRows [][]string, displayFormat tableDisplayFormat,
) error {
	switch displayFormat {
	case tableDisplayPretty:
		table := tablewriter.NewWriter(w)
		table.SetAutoFormatHeaders(false)
		table.SetAutoWrapText(false)
		table.SetHeader(cols)
		for _, row := range allRows {
			for i, r := range row {
				row[i] = expandTabsAndNewLines(r)
			}
			table.Append(row)
		}
		table.Render()
		_, err := fmt.Fprintf(w, "(%d row%s)\n", len(allRows), pluralize(len(allRows)))
		return err

	case tableDisplayTSV, tableDisplayCSV:
		if _, err := fmt.Fprintf(w, "%d row%s\n", len(allRows), pluralize(len(allRows))); err != nil {
			return err
		}
		csvWriter := csv.NewWriter(w)
		if displayFormat == tableDisplayTSV {
			csvWriter.Comma = '\t'
		}
		if err := csvWriter.Write(cols); err != nil {
			return err
		}
		return csvWriter.WriteAll(allRows)

	case tableDisplayRecords:
		maxColWidth := 0
		for _, col := range cols {
			if colLen := utf8.RuneCountInString(col); colLen > maxColWidth {
				maxColWidth = colLen
			}
		}
		for i, row := range allRows {
			if _, err := fmt.Fprintf(w, "-[ RECORD %d ]\n", i+1); err != nil {
				return err
			}
			for j, r := range row {
				for l, line := range strings.Split(r, "\n") {
					colLabel := cols[j]
					if l > 0 {
						colLabel = ""
					}
					if _, err := fmt.Fprintf(w, "%-*s | %s\n", maxColWidth, colLabel, line); err != nil {
						return err
					}
				}
			}
		}
		return nil

	default:
		return errors.AssertionFailedf("unknown display format %d", displayFormat)
	}
}

func pluralize(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}

// expandTabsAndNewLines ensures that multi-line row strings that may
// contain tabs are properly formatted: tabs are expanded to spaces,
// and newline characters are marked visually.
func expandTabsAndNewLines(s string) string {
	var buf strings.Builder
	// 4-wide columns, 1 character minimum width.
	col := 0
	for _, r := range s {
		switch r {
		case '\t':
			n := 4 - col%4
			buf.WriteString(strings.Repeat(" ", n))
			col += n
		case '\n':
			buf.WriteString("␤\n")
			col = 0
		default:
			buf.WriteRune(r)
			col++
		}
	}
	return buf.String()
}
