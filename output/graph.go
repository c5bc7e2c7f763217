package output

import (
	"context"
	"fmt"
	"sync"

	"github.com/brunobiangulo/kgsynth/dataset"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Neo4jConfig addresses the graph database written by GraphSink.
type Neo4jConfig struct {
	URI      string `json:"uri" yaml:"uri"`
	User     string `json:"user" yaml:"user"`
	Password string `json:"password" yaml:"password"`
	Database string `json:"database" yaml:"database"`
}

const (
	entityConstraint = "CREATE CONSTRAINT kgsynth_entity_name IF NOT EXISTS FOR (e:Entity) REQUIRE e.name IS UNIQUE"

	mergeTriple = `
MERGE (h:Entity {name: $head})
  ON CREATE SET h.type = $headType
MERGE (t:Entity {name: $tail})
  ON CREATE SET t.type = $tailType
MERGE (h)-[r:RELATION {name: $relation, context: $context}]->(t)
SET r.question = $question, r.answer = $answer, r.run = $run`
)

// cypherFunc runs one write statement.
type cypherFunc func(ctx context.Context, cypher string, params map[string]any) error

// GraphSink merges every record into Neo4j as two Entity nodes joined by a
// RELATION edge. Re-sending a record updates the edge instead of adding one.
type GraphSink struct {
	run    cypherFunc
	verify func(ctx context.Context) error
	close  func(ctx context.Context) error
	mu     sync.Mutex
	runID  string
	closed bool
}

// NewGraphSink connects to Neo4j. The connection is verified by Init.
func NewGraphSink(cfg Neo4jConfig) (*GraphSink, error) {
	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.User, cfg.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("creating neo4j driver: %w", err)
	}
	run := func(ctx context.Context, cypher string, params map[string]any) error {
		session := driver.NewSession(ctx, neo4j.SessionConfig{
			DatabaseName: cfg.Database,
			AccessMode:   neo4j.AccessModeWrite,
		})
		defer session.Close(ctx)

		_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
			res, err := tx.Run(ctx, cypher, params)
			if err != nil {
				return nil, err
			}
			return res.Consume(ctx)
		})
		return err
	}
	s := newGraphSink(run, driver.Close)
	s.verify = driver.VerifyConnectivity
	return s, nil
}

func newGraphSink(run cypherFunc, closeFn func(ctx context.Context) error) *GraphSink {
	return &GraphSink{run: run, close: closeFn}
}

func (s *GraphSink) Name() string { return "neo4j" }

func (s *GraphSink) BindRun(runID string) {
	s.mu.Lock()
	s.runID = runID
	s.mu.Unlock()
}

// Init verifies connectivity and creates the entity name constraint.
func (s *GraphSink) Init(ctx context.Context) error {
	if s.verify != nil {
		if err := s.verify(ctx); err != nil {
			return fmt.Errorf("connecting to neo4j: %w", err)
		}
	}
	return s.run(ctx, entityConstraint, nil)
}

func (s *GraphSink) Write(ctx context.Context, rec *dataset.Record) error {
	s.mu.Lock()
	runID := s.runID
	s.mu.Unlock()

	return s.run(ctx, mergeTriple, map[string]any{
		"head":     rec.KGC.HeadEntityName,
		"headType": rec.KGC.HeadEntityType,
		"tail":     rec.KGC.TailEntityName,
		"tailType": rec.KGC.TailEntityType,
		"relation": rec.KGC.Relation,
		"context":  rec.KGC.Context,
		"question": rec.QA.Question,
		"answer":   rec.QA.Answer,
		"run":      runID,
	})
}

func (s *GraphSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.close == nil {
		return nil
	}
	s.closed = true
	return s.close(context.Background())
}
