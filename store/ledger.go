package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Run statuses.
const (
	RunRunning  = "running"
	RunFinished = "finished"
	RunFailed   = "failed"
)

// Row outcome statuses.
const (
	RowOK      = "ok"
	RowSkipped = "skipped"
	RowFailed  = "failed"
)

// Run is one row of the runs table.
type Run struct {
	ID         string `json:"id"`
	InputPath  string `json:"input_path"`
	Status     string `json:"status"`
	RowsTotal  int    `json:"rows_total"`
	RowsOK     int    `json:"rows_ok"`
	RowsFailed int    `json:"rows_failed"`
	Records    int    `json:"records"`
	StartedAt  string `json:"started_at"`
	FinishedAt string `json:"finished_at,omitempty"`
}

// RowOutcome is one row of the row_log table.
type RowOutcome struct {
	RunID          string `json:"run_id"`
	RowIndex       int    `json:"row_index"`
	Context        string `json:"context"`
	Status         string `json:"status"`
	Error          string `json:"error,omitempty"`
	ExtractionRole string `json:"extraction_role,omitempty"`
	Attempts       int    `json:"attempts"`
	Triples        int    `json:"triples"`
	Records        int    `json:"records"`
	ElapsedMS      int64  `json:"elapsed_ms"`
}

// SynthesisAttempt is one row of the synthesis_attempts table.
type SynthesisAttempt struct {
	RunID     string `json:"run_id"`
	RowIndex  int    `json:"row_index"`
	Attempt   int    `json:"attempt"`
	Triples   string `json:"triples"`
	Verdict   string `json:"verdict"`
	Accepted  bool   `json:"accepted"`
	ElapsedMS int64  `json:"elapsed_ms"`
}

// RecordRow is one row of the records table. RTE and KGC hold JSON.
type RecordRow struct {
	RunID    string `json:"run_id"`
	Context  string `json:"context"`
	Subject  string `json:"subject"`
	Relation string `json:"relation"`
	Object   string `json:"object"`
	Question string `json:"question"`
	Answer   string `json:"answer"`
	RTE      string `json:"rte"`
	KGC      string `json:"kgc"`
}

// StartRun inserts a running run.
func (s *Store) StartRun(ctx context.Context, id, inputPath string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO runs (id, input_path, status) VALUES (?, ?, ?)",
		id, inputPath, RunRunning)
	if err != nil {
		return fmt.Errorf("starting run %s: %w", id, err)
	}
	return nil
}

// FinishRun stores the final counters and status of a run.
func (s *Store) FinishRun(ctx context.Context, r Run) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE runs SET status = ?, rows_total = ?, rows_ok = ?, rows_failed = ?, records = ?,
			finished_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, r.Status, r.RowsTotal, r.RowsOK, r.RowsFailed, r.Records, r.ID)
	return err
}

// GetRun returns a run by ID, or (nil, nil) if it does not exist.
func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	r := &Run{}
	var finished sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, input_path, status, rows_total, rows_ok, rows_failed, records, started_at, finished_at
		FROM runs WHERE id = ?
	`, id).Scan(&r.ID, &r.InputPath, &r.Status, &r.RowsTotal, &r.RowsOK, &r.RowsFailed,
		&r.Records, &r.StartedAt, &finished)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	r.FinishedAt = finished.String
	return r, nil
}

// LogRow records the outcome of one input row together with its synthesis
// attempts.
func (s *Store) LogRow(ctx context.Context, o RowOutcome, attempts []SynthesisAttempt) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO row_log (run_id, row_index, context, status, error, extraction_role,
				attempts, triples, records, elapsed_ms)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, o.RunID, o.RowIndex, o.Context, o.Status, o.Error, o.ExtractionRole,
			o.Attempts, o.Triples, o.Records, o.ElapsedMS); err != nil {
			return fmt.Errorf("logging row %d: %w", o.RowIndex, err)
		}
		for _, a := range attempts {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO synthesis_attempts (run_id, row_index, attempt, triples, verdict, accepted, elapsed_ms)
				VALUES (?, ?, ?, ?, ?, ?, ?)
			`, o.RunID, o.RowIndex, a.Attempt, a.Triples, a.Verdict, a.Accepted, a.ElapsedMS); err != nil {
				return fmt.Errorf("logging attempt %d of row %d: %w", a.Attempt, o.RowIndex, err)
			}
		}
		return nil
	})
}

// RowOutcomes lists the logged rows of a run in row order, optionally
// filtered by status.
func (s *Store) RowOutcomes(ctx context.Context, runID string, statuses ...string) ([]RowOutcome, error) {
	query := `
		SELECT run_id, row_index, context, status, COALESCE(error, ''), COALESCE(extraction_role, ''),
			attempts, triples, records, elapsed_ms
		FROM row_log WHERE run_id = ?`
	args := []any{runID}
	if len(statuses) > 0 {
		query += " AND status IN (" + placeholders(len(statuses)) + ")"
		for _, st := range statuses {
			args = append(args, st)
		}
	}
	query += " ORDER BY row_index"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RowOutcome
	for rows.Next() {
		var o RowOutcome
		if err := rows.Scan(&o.RunID, &o.RowIndex, &o.Context, &o.Status, &o.Error, &o.ExtractionRole,
			&o.Attempts, &o.Triples, &o.Records, &o.ElapsedMS); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// Attempts lists the synthesis attempts of one row.
func (s *Store) Attempts(ctx context.Context, runID string, rowIndex int) ([]SynthesisAttempt, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, row_index, attempt, triples, COALESCE(verdict, ''), accepted, elapsed_ms
		FROM synthesis_attempts WHERE run_id = ? AND row_index = ?
		ORDER BY attempt
	`, runID, rowIndex)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SynthesisAttempt
	for rows.Next() {
		var a SynthesisAttempt
		if err := rows.Scan(&a.RunID, &a.RowIndex, &a.Attempt, &a.Triples, &a.Verdict,
			&a.Accepted, &a.ElapsedMS); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// InsertRecord appends one generated record.
func (s *Store) InsertRecord(ctx context.Context, r RecordRow) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO records (run_id, context, subject, relation, object, question, answer, rte, kgc)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.RunID, r.Context, r.Subject, r.Relation, r.Object, r.Question, r.Answer, r.RTE, r.KGC)
	return err
}

// Records lists the records of a run in insertion order.
func (s *Store) Records(ctx context.Context, runID string) ([]RecordRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, context, subject, relation, object, question, answer, rte, kgc
		FROM records WHERE run_id = ? ORDER BY id
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RecordRow
	for rows.Next() {
		var r RecordRow
		if err := rows.Scan(&r.RunID, &r.Context, &r.Subject, &r.Relation, &r.Object,
			&r.Question, &r.Answer, &r.RTE, &r.KGC); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// SaveCheckpoint records the resume point for source: the next row to
// process and how many triples of that row already reached the outputs.
func (s *Store) SaveCheckpoint(ctx context.Context, source string, nextRow, nextTriple int, runID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO checkpoints (source, next_row, next_triple, run_id) VALUES (?, ?, ?, ?)
		ON CONFLICT(source) DO UPDATE SET
			next_row = excluded.next_row,
			next_triple = excluded.next_triple,
			run_id = excluded.run_id,
			updated_at = CURRENT_TIMESTAMP
	`, source, nextRow, nextTriple, runID)
	return err
}

// LoadCheckpoint returns the resume point for source, or zeros.
func (s *Store) LoadCheckpoint(ctx context.Context, source string) (nextRow, nextTriple int, err error) {
	err = s.db.QueryRowContext(ctx,
		"SELECT next_row, next_triple FROM checkpoints WHERE source = ?", source).Scan(&nextRow, &nextTriple)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, 0, nil
	}
	return nextRow, nextTriple, err
}

// ClearCheckpoint forgets the resume point for source.
func (s *Store) ClearCheckpoint(ctx context.Context, source string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM checkpoints WHERE source = ?", source)
	return err
}
