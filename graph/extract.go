package graph

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"

	"github.com/brunobiangulo/kgsynth/agent"
	"github.com/brunobiangulo/kgsynth/triple"
)

// Picker chooses an index in [0, n). *rand.Rand satisfies it.
type Picker interface {
	IntN(n int) int
}

// Extraction is the informational output of the extraction pass.
type Extraction struct {
	Role  string
	Lines []string
}

// Extractor samples one of the two extraction roles per context. Its output
// is logged and returned to the caller but never feeds synthesis.
type Extractor struct {
	roles Invoker
	pick  Picker
}

// NewExtractor creates an Extractor. A nil picker uses an unseeded
// math/rand/v2 source.
func NewExtractor(roles Invoker, pick Picker) *Extractor {
	if pick == nil {
		pick = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Extractor{roles: roles, pick: pick}
}

// Extract runs the sampled role with the context as its only message.
func (e *Extractor) Extract(ctx context.Context, text string) (*Extraction, error) {
	choices := [2]agent.Role{agent.EntityExtractor, agent.RelationExtractor}
	role := choices[e.pick.IntN(len(choices))]
	slog.Info("graph: extraction role chosen", "role", role.Name)

	resp, err := e.roles.Invoke(ctx, role, agent.User(text))
	if err != nil {
		return nil, fmt.Errorf("extraction: %w", err)
	}

	lines := triple.SplitLines(resp)
	slog.Info("graph: extraction output", "role", role.Name, "lines", len(lines), "output", resp)
	return &Extraction{Role: role.Name, Lines: lines}, nil
}
