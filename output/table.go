package output

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/brunobiangulo/kgsynth/dataset"
	"github.com/xuri/excelize/v2"
)

// TableColumns is the header row of the tabular output.
var TableColumns = []string{"context", "triples", "question", "answer"}

const tableSheet = "Sheet1"

// TableSink appends one spreadsheet row per record.
type TableSink struct {
	path string
	mu   sync.Mutex
	file *excelize.File
	next int
}

// NewTableSink creates a sink writing the workbook at path.
func NewTableSink(path string) *TableSink {
	return &TableSink{path: path}
}

func (s *TableSink) Name() string { return "table" }

// Init creates the workbook with its header row, or opens the existing one
// and continues after its last row.
func (s *TableSink) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file != nil {
		return nil
	}

	ok, err := exists(s.path)
	if err != nil {
		return err
	}
	if ok {
		f, err := excelize.OpenFile(s.path)
		if err != nil {
			return fmt.Errorf("opening %s: %w", s.path, err)
		}
		sheet := f.GetSheetName(0)
		rows, err := f.GetRows(sheet)
		if err != nil {
			f.Close()
			return fmt.Errorf("reading %s: %w", s.path, err)
		}
		if len(rows) == 0 {
			if err := f.SetSheetRow(sheet, "A1", &TableColumns); err != nil {
				f.Close()
				return err
			}
			rows = [][]string{TableColumns}
		}
		s.file, s.next = f, len(rows)+1
		return nil
	}

	f := excelize.NewFile()
	if err := f.SetSheetRow(tableSheet, "A1", &TableColumns); err != nil {
		f.Close()
		return err
	}
	if err := s.save(f); err != nil {
		f.Close()
		return err
	}
	s.file, s.next = f, 2
	return nil
}

// Write appends the row and saves the workbook.
func (s *TableSink) Write(ctx context.Context, rec *dataset.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return fmt.Errorf("%s written before init", s.path)
	}

	sheet := s.file.GetSheetName(0)
	cell, err := excelize.CoordinatesToCellName(1, s.next)
	if err != nil {
		return err
	}
	row := []any{rec.Context, rec.Triple.String(), rec.QA.Question, rec.QA.Answer}
	if err := s.file.SetSheetRow(sheet, cell, &row); err != nil {
		return err
	}
	if err := s.save(s.file); err != nil {
		return err
	}
	s.next++
	return nil
}

func (s *TableSink) save(f *excelize.File) error {
	return replaceFile(s.path, func(w io.Writer) error {
		_, err := f.WriteTo(w)
		return err
	})
}

func (s *TableSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}
