package output

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/brunobiangulo/kgsynth/dataset"
	"github.com/brunobiangulo/kgsynth/triple"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func testRecord(subject, relation, object, text string) *dataset.Record {
	t := triple.Triple{Subject: subject, Relation: relation, Object: object}
	return &dataset.Record{
		Context: text,
		Triple:  t,
		QA: dataset.QAPair{
			Question: "Question: What is the relationship between " + subject + " and " + object + "?",
			Answer:   "Answer: " + subject + " " + relation + " " + object + ".",
		},
		RTE: dataset.RTERecord{
			EntityName:      subject,
			EntityType:      "industry",
			TextDescription: text,
			Triplet:         []dataset.Predicate{{Subject: subject, Predicate: relation, Object: object}},
		},
		KGC: dataset.KGCRecord{
			HeadEntityName: subject,
			HeadEntityType: "industry",
			TailEntityName: object,
			TailEntityType: "industry",
			Relation:       relation,
			Context:        text,
		},
	}
}

func TestJSONArraySinkAppendsInOrder(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "out", "kgc.json")
	s := NewKGCSink(path)
	require.NoError(t, s.Init(ctx))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))

	require.NoError(t, s.Write(ctx, testRecord("Partial oxidation", "facilitates", "Oxygen", "Gasification <O2>")))
	require.NoError(t, s.Write(ctx, testRecord("Reformer", "produces", "Syngas", "Dampfreformierung")))

	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "\n    {\n        \"head entity name\": \"Partial oxidation\"")
	assert.Contains(t, string(data), "Gasification <O2>")

	var got []dataset.KGCRecord
	require.NoError(t, json.Unmarshal(data, &got))
	require.Len(t, got, 2)
	assert.Equal(t, "Partial oxidation", got[0].HeadEntityName)
	assert.Equal(t, "Syngas", got[1].TailEntityName)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files must not be left behind")
}

func TestJSONArraySinkInitIsIdempotent(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "rte.json")

	first := NewRTESink(path)
	require.NoError(t, first.Init(ctx))
	require.NoError(t, first.Write(ctx, testRecord("A", "b", "C", "ctx")))

	second := NewRTESink(path)
	require.NoError(t, second.Init(ctx))
	require.NoError(t, second.Init(ctx))
	assert.Equal(t, 1, second.Len())
	require.NoError(t, second.Write(ctx, testRecord("D", "e", "F", "ctx")))

	var got []dataset.RTERecord
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &got))
	require.Len(t, got, 2)
	assert.Equal(t, "A", got[0].EntityName)
	assert.Equal(t, "D", got[1].EntityName)
}

func TestJSONArraySinkRejectsNonArray(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rte.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"not": "an array"}`), 0o644))
	assert.Error(t, NewRTESink(path).Init(context.Background()))
}

func TestJSONArraySinkWriteBeforeInit(t *testing.T) {
	err := NewRTESink(filepath.Join(t.TempDir(), "rte.json")).Write(context.Background(), testRecord("A", "b", "C", "x"))
	assert.Error(t, err)
}

func TestTableSink(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "out.xlsx")

	s := NewTableSink(path)
	require.NoError(t, s.Init(ctx))
	require.NoError(t, s.Init(ctx))
	require.NoError(t, s.Write(ctx, testRecord("Partial oxidation", "facilitates", "Oxygen", "ctx one")))
	require.NoError(t, s.Close())

	// reopening continues after the existing rows
	s = NewTableSink(path)
	require.NoError(t, s.Init(ctx))
	require.NoError(t, s.Write(ctx, testRecord("Reformer", "produces", "Syngas", "ctx two")))
	require.NoError(t, s.Close())

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(f.GetSheetName(0))
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, TableColumns, rows[0])
	assert.Equal(t, []string{"ctx one", "(Partial oxidation, facilitates, Oxygen)",
		"Question: What is the relationship between Partial oxidation and Oxygen?",
		"Answer: Partial oxidation facilitates Oxygen."}, rows[1])
	assert.Equal(t, "(Reformer, produces, Syngas)", rows[2][1])
}

type fakeSink struct {
	name     string
	initErr  error
	writeErr error
	written  int
	closed   bool
	runID    string
}

func (f *fakeSink) Name() string               { return f.name }
func (f *fakeSink) Init(context.Context) error { return f.initErr }
func (f *fakeSink) BindRun(id string)          { f.runID = id }
func (f *fakeSink) Close() error               { f.closed = true; return nil }
func (f *fakeSink) Write(context.Context, *dataset.Record) error {
	if f.writeErr != nil {
		return f.writeErr
	}
	f.written++
	return nil
}

func TestMultiStopsAtFirstWriteFailure(t *testing.T) {
	disk := errors.New("disk full")
	a, b, c := &fakeSink{name: "a"}, &fakeSink{name: "b", writeErr: disk}, &fakeSink{name: "c"}
	m := Multi{a, b, c}

	require.NoError(t, m.Init(context.Background()))
	m.BindRun("run-1")
	assert.Equal(t, "run-1", a.runID)
	assert.Equal(t, "run-1", c.runID)

	err := m.Write(context.Background(), testRecord("A", "b", "C", "x"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.ErrorIs(t, err, disk)
	var oe *OutputError
	require.ErrorAs(t, err, &oe)
	assert.Equal(t, "b", oe.Sink)
	assert.Equal(t, "write", oe.Op)
	assert.Equal(t, 1, a.written)
	assert.Zero(t, c.written)

	require.NoError(t, m.Close())
	assert.True(t, a.closed && b.closed && c.closed)
}

func TestMultiInitFailure(t *testing.T) {
	m := Multi{&fakeSink{name: "broken", initErr: errors.New("refused")}}
	err := m.Init(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.True(t, strings.Contains(err.Error(), "broken"))
}
