package graph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/brunobiangulo/kgsynth/agent"
	"github.com/brunobiangulo/kgsynth/triple"
)

// DefaultAcceptPhrase marks a validator verdict as accepting.
const DefaultAcceptPhrase = "This is a loyal fact."

// DefaultMaxAttempts bounds synthesis attempts per context.
const DefaultMaxAttempts = 5

// ErrExhaustedRetries is wrapped by every ExhaustedRetriesError.
var ErrExhaustedRetries = errors.New("kgsynth: synthesis attempts exhausted")

// State is a position in the synthesize/validate state machine.
type State int

const (
	Synthesizing State = iota
	Validating
	Accepted
	Exhausted
)

func (s State) String() string {
	switch s {
	case Synthesizing:
		return "SYNTHESIZING"
	case Validating:
		return "VALIDATING"
	case Accepted:
		return "ACCEPTED"
	case Exhausted:
		return "EXHAUSTED"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// PreviousTriples selects what a regeneration request shows as the previous
// triple set.
type PreviousTriples string

const (
	// CarryPrevious sends the rejected set from the prior attempt.
	CarryPrevious PreviousTriples = "carry"
	// EmptyPrevious always sends an empty set.
	EmptyPrevious PreviousTriples = "empty"
)

// LoopConfig configures the synthesize/validate loop.
type LoopConfig struct {
	MaxAttempts     int             `json:"max_attempts"`
	AcceptPhrase    string          `json:"accept_phrase"`
	PreviousTriples PreviousTriples `json:"previous_triples"`
}

// Attempt records one synthesis round and its verdict.
type Attempt struct {
	Number   int           `json:"number"`
	Raw      string        `json:"raw"`
	Triples  triple.Set    `json:"triples"`
	Verdict  string        `json:"verdict"`
	Accepted bool          `json:"accepted"`
	Elapsed  time.Duration `json:"elapsed"`
}

// Result is the accepted outcome of the loop.
type Result struct {
	Triples  triple.Set
	Verdict  string
	Attempts []Attempt
}

// ExhaustedRetriesError reports a loop that never reached acceptance.
type ExhaustedRetriesError struct {
	Attempts []Attempt
}

func (e *ExhaustedRetriesError) Error() string {
	verdict := ""
	if n := len(e.Attempts); n > 0 {
		verdict = e.Attempts[n-1].Verdict
	}
	return fmt.Sprintf("no accepted triple set after %d attempts (last verdict %q)", len(e.Attempts), truncate(verdict, 120))
}

func (e *ExhaustedRetriesError) Unwrap() error { return ErrExhaustedRetries }

// Synthesizer runs the TripleSynthesizer and TripleValidator roles until the
// validator accepts a triple set or MaxAttempts synthesis rounds have run.
type Synthesizer struct {
	roles Invoker
	cfg   LoopConfig
}

// NewSynthesizer creates a Synthesizer. Zero config fields take defaults.
func NewSynthesizer(roles Invoker, cfg LoopConfig) *Synthesizer {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.AcceptPhrase == "" {
		cfg.AcceptPhrase = DefaultAcceptPhrase
	}
	if cfg.PreviousTriples == "" {
		cfg.PreviousTriples = CarryPrevious
	}
	return &Synthesizer{roles: roles, cfg: cfg}
}

// Config returns the effective loop configuration.
func (s *Synthesizer) Config() LoopConfig { return s.cfg }

// Run drives the loop for one context. Each round replaces the previous
// triple set wholesale. Backend errors end the loop immediately.
func (s *Synthesizer) Run(ctx context.Context, text string) (*Result, error) {
	var (
		attempts []Attempt
		current  triple.Set
		verdict  string
		state    = Synthesizing
	)

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		switch state {
		case Synthesizing:
			if len(attempts) == s.cfg.MaxAttempts {
				state = Exhausted
				continue
			}
			n := len(attempts) + 1
			start := time.Now()
			raw, err := s.synthesize(ctx, n, text, verdict, current)
			if err != nil {
				return nil, fmt.Errorf("synthesis attempt %d: %w", n, err)
			}
			current = triple.ParseText(raw)
			attempts = append(attempts, Attempt{Number: n, Raw: raw, Triples: current, Elapsed: time.Since(start)})
			slog.Info("graph: triples synthesized",
				"attempt", n,
				"parsed", len(current),
				"triples", current.Render())
			state = Validating

		case Validating:
			last := &attempts[len(attempts)-1]
			start := time.Now()
			v, ok, err := s.Validate(ctx, text, current)
			if err != nil {
				return nil, fmt.Errorf("validation attempt %d: %w", last.Number, err)
			}
			verdict = v
			last.Verdict = v
			last.Accepted = ok
			last.Elapsed += time.Since(start)
			slog.Info("graph: validator verdict",
				"attempt", last.Number,
				"accepted", ok,
				"verdict", v)
			if ok {
				state = Accepted
			} else {
				state = Synthesizing
			}

		case Accepted:
			return &Result{Triples: current, Verdict: verdict, Attempts: attempts}, nil

		case Exhausted:
			slog.Warn("graph: synthesis attempts exhausted", "attempts", len(attempts))
			return nil, &ExhaustedRetriesError{Attempts: attempts}
		}
	}
}

// synthesize issues attempt n. The first attempt sends only the context;
// regenerations add the previous verdict and the previous set.
func (s *Synthesizer) synthesize(ctx context.Context, n int, text, verdict string, previous triple.Set) (string, error) {
	if n == 1 {
		return s.roles.Invoke(ctx, agent.TripleSynthesizer, agent.User(text))
	}
	if s.cfg.PreviousTriples == EmptyPrevious {
		previous = nil
	}
	return s.roles.Invoke(ctx, agent.TripleSynthesizer,
		agent.User(labelInput+text),
		agent.User(labelVerdict+verdict),
		agent.User(labelPrevious+previous.Render()),
	)
}

// Validate asks the validator about one (context, set) pair and reports
// whether the verdict contains the accept phrase.
func (s *Synthesizer) Validate(ctx context.Context, text string, set triple.Set) (string, bool, error) {
	v, err := s.roles.Invoke(ctx, agent.TripleValidator,
		agent.User(labelInput+text),
		agent.User(labelTriples+set.Render()),
	)
	if err != nil {
		return "", false, err
	}
	return v, strings.Contains(v, s.cfg.AcceptPhrase), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
