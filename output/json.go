package output

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/brunobiangulo/kgsynth/dataset"
)

// JSONArraySink keeps one JSON array file holding a record shape per
// accepted triple, in arrival order. Each write rewrites the file through a
// temporary file and a rename.
type JSONArraySink struct {
	name   string
	path   string
	pick   func(*dataset.Record) any
	mu     sync.Mutex
	items  []json.RawMessage
	loaded bool
}

// NewRTESink writes the RTE shape of each record to path.
func NewRTESink(path string) *JSONArraySink {
	return &JSONArraySink{name: "rte", path: path, pick: func(r *dataset.Record) any { return r.RTE }}
}

// NewKGCSink writes the KGC shape of each record to path.
func NewKGCSink(path string) *JSONArraySink {
	return &JSONArraySink{name: "kgc", path: path, pick: func(r *dataset.Record) any { return r.KGC }}
}

func (s *JSONArraySink) Name() string { return s.name }

// Path returns the file the sink writes.
func (s *JSONArraySink) Path() string { return s.path }

// Init creates an empty array file when none exists and loads the existing
// array otherwise.
func (s *JSONArraySink) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ok, err := exists(s.path)
	if err != nil {
		return err
	}
	if !ok {
		s.items = nil
		s.loaded = true
		return replaceFile(s.path, func(w io.Writer) error {
			_, err := io.WriteString(w, "[]")
			return err
		})
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}
	var items []json.RawMessage
	if len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, &items); err != nil {
			return fmt.Errorf("%s is not a JSON array: %w", s.path, err)
		}
	}
	s.items = items
	s.loaded = true
	return nil
}

// Write appends the record's shape and rewrites the file.
func (s *JSONArraySink) Write(ctx context.Context, rec *dataset.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loaded {
		return fmt.Errorf("%s written before init", s.path)
	}

	item, err := json.Marshal(s.pick(rec))
	if err != nil {
		return err
	}
	items := append(s.items, item)
	if err := replaceFile(s.path, func(w io.Writer) error { return encodeArray(w, items) }); err != nil {
		return err
	}
	s.items = items
	return nil
}

// Len returns the number of items in the array.
func (s *JSONArraySink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

func (s *JSONArraySink) Close() error { return nil }

// encodeArray writes items with a four-space indent, leaving non-ASCII and
// HTML characters unescaped.
func encodeArray(w io.Writer, items []json.RawMessage) error {
	if items == nil {
		items = []json.RawMessage{}
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	return enc.Encode(items)
}
