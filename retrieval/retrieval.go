// Package retrieval turns an input row into the context text the agents work
// on. A Service optionally translates the row with a chat model, then asks a
// Backend (external GraphRAG command, local corpus index, or passthrough)
// for supporting text.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// ErrRetrieval is wrapped by every RetrievalError.
var ErrRetrieval = errors.New("kgsynth: retrieval failed")

// RetrievalError reports a failed or unusable retrieval for one query.
type RetrievalError struct {
	Query string
	Stage string // "translate", "search" or "empty"
	Err   error
}

func (e *RetrievalError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("retrieval %s for %q", e.Stage, truncate(e.Query, 80))
	}
	return fmt.Sprintf("retrieval %s for %q: %v", e.Stage, truncate(e.Query, 80), e.Err)
}

func (e *RetrievalError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrRetrieval}
	}
	return []error{ErrRetrieval, e.Err}
}

// Result is the outcome of one retrieval.
type Result struct {
	// Query is the (possibly translated) row text; records carry it as
	// their context.
	Query string `json:"query"`
	// Prompt is what the backend was asked.
	Prompt string `json:"prompt"`
	// Text is the retrieved supporting text the agents work on.
	Text string `json:"text"`
	// Source names the backend that produced Text.
	Source string `json:"source"`
}

// Retriever resolves one input row into a Result.
type Retriever interface {
	Retrieve(ctx context.Context, query string) (*Result, error)
}

// Request is what a Backend receives. Prompt carries the expansion
// instruction; Query is the bare query.
type Request struct {
	Query  string
	Prompt string
}

// Backend produces supporting text for a request.
type Backend interface {
	Search(ctx context.Context, req Request) (string, error)
	Name() string
}

// Service chains the optional translation step and a backend.
type Service struct {
	translator *Translator
	backend    Backend
}

// NewService creates a Service. A nil translator sends the query as is.
func NewService(backend Backend, translator *Translator) *Service {
	return &Service{translator: translator, backend: backend}
}

// Retrieve runs one retrieval. Every failure is a *RetrievalError.
func (s *Service) Retrieve(ctx context.Context, query string) (*Result, error) {
	start := time.Now()
	req := Request{Query: query, Prompt: query}
	if s.translator != nil {
		translated, err := s.translator.Translate(ctx, query)
		if err != nil {
			return nil, &RetrievalError{Query: query, Stage: "translate", Err: err}
		}
		req = Request{Query: translated, Prompt: translated + s.translator.Expansion()}
	}

	text, err := s.backend.Search(ctx, req)
	if err != nil {
		return nil, &RetrievalError{Query: req.Query, Stage: "search", Err: err}
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, &RetrievalError{Query: req.Query, Stage: "empty"}
	}

	slog.Info("retrieval: context retrieved",
		"backend", s.backend.Name(),
		"query", truncate(req.Query, 120),
		"chars", len(text),
		"elapsed", time.Since(start).Round(time.Millisecond))
	return &Result{Query: req.Query, Prompt: req.Prompt, Text: text, Source: s.backend.Name()}, nil
}

// Passthrough returns the query itself as the retrieved text.
type Passthrough struct{}

func (Passthrough) Name() string { return "passthrough" }

func (Passthrough) Search(_ context.Context, req Request) (string, error) {
	return req.Query, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
