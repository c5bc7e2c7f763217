// Package llmtest provides an in-memory llm.Provider for tests.
package llmtest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/brunobiangulo/kgsynth/llm"
)

// ErrExhausted is returned once a Scripted provider has no replies left.
var ErrExhausted = errors.New("llmtest: no scripted replies left")

// Reply is one scripted completion. A non-nil Err is returned instead of Text.
type Reply struct {
	Text string
	Err  error
}

// Scripted replays replies in order and records every request it receives.
// Route, when set, picks the reply for a request instead of the queue.
type Scripted struct {
	mu       sync.Mutex
	replies  []Reply
	Route    func(req llm.ChatRequest) (string, error)
	Requests []llm.ChatRequest
	Vectors  map[string][]float32
	// EmbedFunc, when set, computes vectors instead of Vectors.
	EmbedFunc func(text string) []float32
}

// Texts builds a Scripted provider from plain completion texts.
func Texts(texts ...string) *Scripted {
	s := &Scripted{}
	for _, t := range texts {
		s.replies = append(s.replies, Reply{Text: t})
	}
	return s
}

// Push appends replies to the queue.
func (s *Scripted) Push(r ...Reply) {
	s.mu.Lock()
	s.replies = append(s.replies, r...)
	s.mu.Unlock()
}

// Calls returns how many chat requests were received.
func (s *Scripted) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Requests)
}

func (s *Scripted) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.Requests = append(s.Requests, req)
	route := s.Route
	var next Reply
	var ok bool
	if route == nil && len(s.replies) > 0 {
		next, s.replies, ok = s.replies[0], s.replies[1:], true
	}
	s.mu.Unlock()

	if route != nil {
		text, err := route(req)
		if err != nil {
			return nil, err
		}
		return &llm.ChatResponse{Content: text, Model: "scripted"}, nil
	}
	if !ok {
		return nil, ErrExhausted
	}
	if next.Err != nil {
		return nil, next.Err
	}
	return &llm.ChatResponse{Content: next.Text, Model: "scripted"}, nil
}

// Embed returns the vector registered for each text in Vectors, or the
// output of EmbedFunc.
func (s *Scripted) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if s.EmbedFunc != nil {
			out[i] = s.EmbedFunc(t)
			continue
		}
		v, ok := s.Vectors[t]
		if !ok {
			return nil, fmt.Errorf("llmtest: no vector for %q", t)
		}
		out[i] = v
	}
	return out, nil
}
