package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/brunobiangulo/kgsynth/dataset"
	"github.com/brunobiangulo/kgsynth/graph"
	"github.com/brunobiangulo/kgsynth/output"
	"github.com/brunobiangulo/kgsynth/retrieval"
	"github.com/brunobiangulo/kgsynth/store"
	"github.com/brunobiangulo/kgsynth/triple"
	"github.com/google/uuid"
)

// ErrRow is wrapped by every RowError.
var ErrRow = errors.New("kgsynth: row failed")

// Row stages named by RowError.
const (
	StageRetrieval = "retrieval"
	StageSynthesis = "synthesis"
)

// RowError reports a row that produced no records.
type RowError struct {
	Index int
	Stage string
	Err   error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("row %d: %s: %v", e.Index, e.Stage, e.Err)
}

func (e *RowError) Unwrap() []error { return []error{ErrRow, e.Err} }

// Extractor runs the informational extraction pass.
type Extractor interface {
	Extract(ctx context.Context, text string) (*graph.Extraction, error)
}

// Synthesizer produces an accepted triple set for one context.
type Synthesizer interface {
	Run(ctx context.Context, text string) (*graph.Result, error)
}

// RecordBuilder turns one accepted triple into a record.
type RecordBuilder interface {
	Build(ctx context.Context, t triple.Triple, text string) (*dataset.Record, error)
}

// RowResult is the outcome of one row.
type RowResult struct {
	Index          int               `json:"index"`
	Context        string            `json:"context"`
	Retrieved      *retrieval.Result `json:"retrieved,omitempty"`
	Status         string            `json:"status"`
	Err            error             `json:"-"`
	ExtractionRole string            `json:"extraction_role,omitempty"`
	Extraction     []string          `json:"extraction,omitempty"`
	Attempts       []graph.Attempt   `json:"attempts,omitempty"`
	Triples        triple.Set        `json:"triples,omitempty"`
	Records        []*dataset.Record `json:"records,omitempty"`
	SkippedTriples int               `json:"skipped_triples"`
	ResumedTriples int               `json:"resumed_triples,omitempty"`
	Elapsed        time.Duration     `json:"elapsed"`
}

// Summary totals one run.
type Summary struct {
	RunID   string        `json:"run_id"`
	Source  string        `json:"source"`
	Rows    int           `json:"rows"`
	Resumed int           `json:"resumed"`
	OK      int           `json:"ok"`
	Skipped int           `json:"skipped"`
	Failed  int           `json:"failed"`
	Records int           `json:"records"`
	Elapsed time.Duration `json:"elapsed"`
}

// Options carries the optional collaborators of a Driver.
type Options struct {
	// Ledger, when set, receives the run, every row outcome and every
	// synthesis attempt.
	Ledger *store.Store
	// Checkpoint, when set, lets a run skip rows finished earlier.
	Checkpoint Checkpointer
	// Extractor, when set, runs the informational extraction pass.
	Extractor Extractor
}

// Driver processes rows strictly one after another.
type Driver struct {
	retriever retrieval.Retriever
	synth     Synthesizer
	builder   RecordBuilder
	sink      output.Sink
	opts      Options
	newID     func() string
}

// NewDriver creates a Driver writing every built record to sink.
func NewDriver(r retrieval.Retriever, s Synthesizer, b RecordBuilder, sink output.Sink, opts Options) *Driver {
	return &Driver{retriever: r, synth: s, builder: b, sink: sink, opts: opts, newID: uuid.NewString}
}

// Run initialises the sink and processes rows in order. Row and triple
// failures are logged and skipped; a sink failure or cancellation stops the
// run and is returned together with the partial summary.
func (d *Driver) Run(ctx context.Context, source string, rows []InputRow) (*Summary, error) {
	start := time.Now()
	sum := &Summary{RunID: d.newID(), Source: source, Rows: len(rows)}

	if err := d.sink.Init(ctx); err != nil {
		return sum, err
	}
	if b, ok := d.sink.(output.RunBinder); ok {
		b.BindRun(sum.RunID)
	}
	if d.opts.Ledger != nil {
		if err := d.opts.Ledger.StartRun(ctx, sum.RunID, source); err != nil {
			return sum, err
		}
	}

	var next Position
	if d.opts.Checkpoint != nil {
		pos, err := d.opts.Checkpoint.Load(ctx, source)
		if err != nil {
			slog.Warn("batch: checkpoint unavailable, starting from the first row", "source", source, "error", err)
		} else {
			next = pos
		}
	}

	slog.Info("batch: run started", "run_id", sum.RunID, "source", source, "rows", len(rows),
		"resume_row", next.Row, "resume_triple", next.Triple)

	runErr := d.runRows(ctx, source, rows, next, sum)
	sum.Elapsed = time.Since(start)

	status := store.RunFinished
	if runErr != nil {
		status = store.RunFailed
	}
	if d.opts.Ledger != nil {
		ferr := d.opts.Ledger.FinishRun(context.WithoutCancel(ctx), store.Run{
			ID:         sum.RunID,
			Status:     status,
			RowsTotal:  sum.Rows,
			RowsOK:     sum.OK,
			RowsFailed: sum.Failed + sum.Skipped,
			Records:    sum.Records,
		})
		if ferr != nil {
			slog.Warn("batch: finishing run in ledger", "run_id", sum.RunID, "error", ferr)
		}
	}
	if runErr == nil && d.opts.Checkpoint != nil {
		if err := d.opts.Checkpoint.Clear(ctx, source); err != nil {
			slog.Warn("batch: clearing checkpoint", "source", source, "error", err)
		}
	}

	slog.Info("batch: run finished",
		"run_id", sum.RunID,
		"status", status,
		"ok", sum.OK,
		"skipped", sum.Skipped,
		"failed", sum.Failed,
		"resumed", sum.Resumed,
		"records", sum.Records,
		"elapsed", sum.Elapsed.Round(time.Millisecond))
	return sum, runErr
}

func (d *Driver) runRows(ctx context.Context, source string, rows []InputRow, next Position, sum *Summary) error {
	for _, row := range rows {
		if row.Index < next.Row {
			sum.Resumed++
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		done := 0
		if row.Index == next.Row {
			done = next.Triple
		}
		res, err := d.processRow(ctx, row, done, func(n int) {
			d.saveCheckpoint(ctx, source, Position{Row: row.Index, Triple: n}, sum.RunID)
		})
		if res != nil {
			sum.Records += len(res.Records)
		}
		if err != nil {
			return err
		}
		switch res.Status {
		case store.RowOK:
			sum.OK++
		case store.RowSkipped:
			sum.Skipped++
		default:
			sum.Failed++
		}

		d.logRow(ctx, sum.RunID, res)
		d.saveCheckpoint(ctx, source, Position{Row: row.Index + 1}, sum.RunID)
	}
	return nil
}

// saveCheckpoint ignores cancellation so that a record already written is
// never processed again.
func (d *Driver) saveCheckpoint(ctx context.Context, source string, pos Position, runID string) {
	if d.opts.Checkpoint == nil {
		return
	}
	if err := d.opts.Checkpoint.Save(context.WithoutCancel(ctx), source, pos, runID); err != nil {
		slog.Warn("batch: saving checkpoint", "source", source, "row", pos.Row, "triple", pos.Triple, "error", err)
	}
}

// ProcessRow runs retrieval, extraction, synthesis and record building for
// one row and writes every record as soon as it is built. Row failures are
// reported in the result; only sink failures and cancellation are returned
// as errors.
func (d *Driver) ProcessRow(ctx context.Context, row InputRow) (*RowResult, error) {
	return d.processRow(ctx, row, 0, nil)
}

// processRow skips the first done accepted triples, whose records an earlier
// run already wrote, and calls written with the count of handled triples
// after every record that reaches the sink.
func (d *Driver) processRow(ctx context.Context, row InputRow, done int, written func(n int)) (*RowResult, error) {
	start := time.Now()
	res := &RowResult{Index: row.Index, Context: row.Context}
	defer func() { res.Elapsed = time.Since(start) }()

	retrieved, err := d.retriever.Retrieve(ctx, row.Context)
	if err != nil {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		res.Status = store.RowSkipped
		res.Err = &RowError{Index: row.Index, Stage: StageRetrieval, Err: err}
		slog.Warn("batch: row skipped", "row", row.Index, "error", res.Err)
		return res, nil
	}
	res.Retrieved = retrieved
	text := retrieved.Text

	if d.opts.Extractor != nil {
		ex, err := d.opts.Extractor.Extract(ctx, text)
		if err != nil {
			slog.Warn("batch: extraction failed", "row", row.Index, "error", err)
		} else {
			res.ExtractionRole = ex.Role
			res.Extraction = ex.Lines
		}
	}

	loop, err := d.synth.Run(ctx, text)
	if err != nil {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		var ex *graph.ExhaustedRetriesError
		if errors.As(err, &ex) {
			res.Attempts = ex.Attempts
		}
		res.Status = store.RowFailed
		res.Err = &RowError{Index: row.Index, Stage: StageSynthesis, Err: err}
		slog.Warn("batch: row failed", "row", row.Index, "error", res.Err)
		return res, nil
	}
	res.Attempts = loop.Attempts
	res.Triples = loop.Triples

	for i, t := range loop.Triples {
		if i < done {
			res.ResumedTriples++
			continue
		}
		rec, err := d.builder.Build(ctx, t, retrieved.Query)
		if err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			res.SkippedTriples++
			slog.Warn("batch: triple skipped", "row", row.Index, "triple", t.String(), "error", err)
			continue
		}
		if err := d.sink.Write(ctx, rec); err != nil {
			return res, err
		}
		res.Records = append(res.Records, rec)
		if written != nil {
			written(i + 1)
		}
	}

	res.Status = store.RowOK
	slog.Info("batch: row processed",
		"row", row.Index,
		"attempts", len(res.Attempts),
		"triples", len(res.Triples),
		"records", len(res.Records),
		"skipped_triples", res.SkippedTriples,
		"resumed_triples", res.ResumedTriples,
		"elapsed", time.Since(start).Round(time.Millisecond))
	return res, nil
}

func (d *Driver) logRow(ctx context.Context, runID string, res *RowResult) {
	if d.opts.Ledger == nil {
		return
	}
	o := store.RowOutcome{
		RunID:          runID,
		RowIndex:       res.Index,
		Context:        res.Context,
		Status:         res.Status,
		ExtractionRole: res.ExtractionRole,
		Attempts:       len(res.Attempts),
		Triples:        len(res.Triples),
		Records:        len(res.Records),
		ElapsedMS:      res.Elapsed.Milliseconds(),
	}
	if res.Err != nil {
		o.Error = res.Err.Error()
	}
	attempts := make([]store.SynthesisAttempt, 0, len(res.Attempts))
	for _, a := range res.Attempts {
		attempts = append(attempts, store.SynthesisAttempt{
			RunID:     runID,
			RowIndex:  res.Index,
			Attempt:   a.Number,
			Triples:   a.Triples.Render(),
			Verdict:   a.Verdict,
			Accepted:  a.Accepted,
			ElapsedMS: a.Elapsed.Milliseconds(),
		})
	}
	if err := d.opts.Ledger.LogRow(ctx, o, attempts); err != nil {
		slog.Warn("batch: logging row", "row", res.Index, "error", err)
	}
}
