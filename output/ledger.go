package output

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/brunobiangulo/kgsynth/dataset"
	"github.com/brunobiangulo/kgsynth/store"
)

// LedgerSink appends records to the run ledger so a run's output can be
// queried next to its row outcomes.
type LedgerSink struct {
	store *store.Store
	mu    sync.Mutex
	runID string
}

func NewLedgerSink(s *store.Store) *LedgerSink {
	return &LedgerSink{store: s}
}

func (s *LedgerSink) Name() string { return "ledger" }

func (s *LedgerSink) BindRun(runID string) {
	s.mu.Lock()
	s.runID = runID
	s.mu.Unlock()
}

// Init is a no-op; the schema is created when the store opens.
func (s *LedgerSink) Init(ctx context.Context) error { return nil }

func (s *LedgerSink) Write(ctx context.Context, rec *dataset.Record) error {
	rte, err := json.Marshal(rec.RTE)
	if err != nil {
		return err
	}
	kgc, err := json.Marshal(rec.KGC)
	if err != nil {
		return err
	}
	s.mu.Lock()
	runID := s.runID
	s.mu.Unlock()

	return s.store.InsertRecord(ctx, store.RecordRow{
		RunID:    runID,
		Context:  rec.Context,
		Subject:  rec.Triple.Subject,
		Relation: rec.Triple.Relation,
		Object:   rec.Triple.Object,
		Question: rec.QA.Question,
		Answer:   rec.QA.Answer,
		RTE:      string(rte),
		KGC:      string(kgc),
	})
}

// Close leaves the store open; its owner closes it.
func (s *LedgerSink) Close() error { return nil }
