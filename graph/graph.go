// Package graph drives the knowledge-graph roles: an informational extraction
// pass and the synthesize/validate loop that produces an accepted triple set.
package graph

import (
	"context"

	"github.com/brunobiangulo/kgsynth/agent"
)

// Invoker runs one role exchange. *agent.Runner implements it.
type Invoker interface {
	Invoke(ctx context.Context, role agent.Role, msgs ...agent.Message) (string, error)
}

// Message labels prepended to caller-supplied context.
const (
	labelInput    = "User Original Input:\n"
	labelTriples  = "Generated Knowledge Graph Triples:\n"
	labelVerdict  = "Validation Result:\n"
	labelPrevious = "Previous Generated Knowledge Graph Triples:\n"
)
