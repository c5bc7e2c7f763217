// Package batch runs the pipeline over an input dataset one row at a time,
// isolating failures to the smallest unit: a triple, then a row.
package batch

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/xuri/excelize/v2"
)

// DefaultContextColumn is the header of the input column holding row text.
const DefaultContextColumn = "context"

// InputRow is one unit of work. Index is the zero-based data row number and
// is stable across runs over the same file.
type InputRow struct {
	Index   int    `json:"index"`
	Context string `json:"context"`
}

// ReadRows reads the named column from the first sheet of an xlsx workbook.
// The first row is the header. Blank cells are skipped but keep their index.
func ReadRows(path, column string) ([]InputRow, error) {
	if column == "" {
		column = DefaultContextColumn
	}
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening input %s: %w", path, err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("reading sheet %s: %w", sheet, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("input %s has no header row", path)
	}

	col := -1
	for i, h := range rows[0] {
		if strings.EqualFold(strings.TrimSpace(h), column) {
			col = i
			break
		}
	}
	if col < 0 {
		return nil, fmt.Errorf("input %s has no %q column", path, column)
	}

	out := make([]InputRow, 0, len(rows)-1)
	for i, row := range rows[1:] {
		if col >= len(row) || strings.TrimSpace(row[col]) == "" {
			slog.Warn("batch: blank input row skipped", "row", i)
			continue
		}
		out = append(out, InputRow{Index: i, Context: strings.TrimSpace(row[col])})
	}
	slog.Info("batch: input loaded", "path", path, "sheet", sheet, "rows", len(out))
	return out, nil
}

// Rows wraps plain texts as input rows.
func Rows(texts ...string) []InputRow {
	out := make([]InputRow, len(texts))
	for i, t := range texts {
		out[i] = InputRow{Index: i, Context: t}
	}
	return out
}
