// Package agent defines the capability contract every evaluator satisfies
// and the validated registration table that binds evaluator names to tasks
// and nominal weights.
package agent

import (
	"context"
	"fmt"
	"math"

	"abvalid/internal/protocol"
	"abvalid/internal/validation"
)

// WeightSumTolerance bounds the floating-point slack allowed when checking
// that nominal weights sum to 1.0.
const WeightSumTolerance = 1e-9

// Evaluator is the single contract an evaluator implementation must satisfy:
// given a request and the experiment context, produce a response carrying a
// numeric score in [0,100] plus detail, or fail. Returning an error and
// returning an ERROR message are treated the same by the executor.
type Evaluator interface {
	Handle(ctx context.Context, req *protocol.Message, vc *validation.Context) (*protocol.Message, error)
}

// Registration binds an evaluator name to its agent identifier, the task it
// answers, and its nominal share of the final score.
type Registration struct {
	Name    string
	AgentID string
	Task    string
	Weight  float64
}

// Registry is the static evaluator table. Order is preserved from
// construction so that planning is deterministic.
type Registry struct {
	entries []Registration
	byName  map[string]Registration
}

// NewRegistry validates the weight table and builds the registry. Nominal
// weights must sum to 1.0 across the full set; a violation is a
// configuration error, fatal at startup rather than per run.
func NewRegistry(entries []Registration) (*Registry, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("registry: no evaluators registered")
	}
	byName := make(map[string]Registration, len(entries))
	sum := 0.0
	for _, e := range entries {
		if e.Name == "" || e.AgentID == "" || e.Task == "" {
			return nil, fmt.Errorf("registry: incomplete registration %+v", e)
		}
		if e.Weight <= 0 {
			return nil, fmt.Errorf("registry: evaluator %q has non-positive weight %v", e.Name, e.Weight)
		}
		if _, dup := byName[e.Name]; dup {
			return nil, fmt.Errorf("registry: duplicate evaluator %q", e.Name)
		}
		byName[e.Name] = e
		sum += e.Weight
	}
	if math.Abs(sum-1.0) > WeightSumTolerance {
		return nil, fmt.Errorf("registry: nominal weights sum to %v, want 1.0", sum)
	}
	return &Registry{entries: entries, byName: byName}, nil
}

// Entries returns the registrations in registration order.
func (r *Registry) Entries() []Registration {
	out := make([]Registration, len(r.entries))
	copy(out, r.entries)
	return out
}

// Lookup returns the registration for an evaluator name.
func (r *Registry) Lookup(name string) (Registration, bool) {
	reg, ok := r.byName[name]
	return reg, ok
}

// Len returns the number of registered evaluators.
func (r *Registry) Len() int {
	return len(r.entries)
}
