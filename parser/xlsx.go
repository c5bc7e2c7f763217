package parser

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

// XLSXParser turns every non-empty sheet into one section headed by the
// sheet name. The first row names the columns; each later row becomes one
// "column: value; column: value." line so corpus hits read as sentences.
type XLSXParser struct{}

func (p *XLSXParser) SupportedFormats() []string { return []string{"xlsx"} }

func (p *XLSXParser) Parse(ctx context.Context, path string) (*ParseResult, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening XLSX: %w", err)
	}
	defer f.Close()

	var sections []Section
	total := 0
	for _, sheet := range f.GetSheetList() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rows, err := f.GetRows(sheet)
		if err != nil {
			continue
		}
		lines := sheetLines(rows)
		if len(lines) == 0 {
			continue
		}
		total += len(lines)
		sections = append(sections, Section{
			Heading: sheet,
			Content: strings.Join(lines, "\n"),
			Type:    "records",
			Level:   1,
			Metadata: map[string]string{
				"sheet":   sheet,
				"records": strconv.Itoa(len(lines)),
			},
		})
	}

	if len(sections) == 0 {
		return nil, fmt.Errorf("no data found in XLSX")
	}
	return &ParseResult{
		Sections: sections,
		Metadata: map[string]string{
			"sheets":  strconv.Itoa(len(sections)),
			"records": strconv.Itoa(total),
		},
	}, nil
}

// sheetLines renders the data rows of a sheet against its header row. A
// sheet with only a header yields that header as a single line.
func sheetLines(rows [][]string) []string {
	for len(rows) > 0 && blankRow(rows[0]) {
		rows = rows[1:]
	}
	if len(rows) == 0 {
		return nil
	}
	header := rows[0]
	if len(rows) == 1 {
		return []string{strings.Join(nonEmpty(header), "; ")}
	}

	var lines []string
	for _, row := range rows[1:] {
		var fields []string
		for i, cell := range row {
			cell = strings.TrimSpace(cell)
			if cell == "" {
				continue
			}
			if i < len(header) && strings.TrimSpace(header[i]) != "" {
				cell = strings.TrimSpace(header[i]) + ": " + cell
			}
			fields = append(fields, cell)
		}
		if len(fields) > 0 {
			lines = append(lines, strings.Join(fields, "; ")+".")
		}
	}
	return lines
}

func blankRow(row []string) bool {
	return len(nonEmpty(row)) == 0
}

func nonEmpty(cells []string) []string {
	var out []string
	for _, c := range cells {
		if c = strings.TrimSpace(c); c != "" {
			out = append(out, c)
		}
	}
	return out
}
