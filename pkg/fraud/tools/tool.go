// Package tools implements the six deterministic, idempotent evidence
// gatherers the planner selects between. Every tool has the same uniform
// contract: it reads an InvestigationState and returns a new one — never a
// partial mutation of the caller's value, never a planning decision, never a
// direct persistence write (the executor and completion node own those).
package tools

import (
	"context"

	"github.com/ops-agent/fraud-investigator/pkg/fraud/types"
)

// Tool is the uniform contract every evidence gatherer implements.
type Tool interface {
	// Name returns the tool's registry name (one of the types.Tool* constants).
	Name() string
	// Description is shown to the planner LLM when it chooses a tool.
	Description() string
	// Execute runs the tool against state and returns a new state with this
	// tool's evidence bucket populated. Implementations must not mutate
	// fields reachable from the input state in place; call state.Clone()
	// before assigning.
	Execute(ctx context.Context, state *types.InvestigationState) (*types.InvestigationState, error)
}

// Registry is the canonical, ordered tool catalog.
type Registry struct {
	byName map[string]Tool
	order  []string
}

// NewRegistry builds a Registry from tools, in registration order.
func NewRegistry(toolList ...Tool) *Registry {
	r := &Registry{byName: make(map[string]Tool, len(toolList))}
	for _, t := range toolList {
		r.byName[t.Name()] = t
		r.order = append(r.order, t.Name())
	}
	return r
}

// Get looks up a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.byName[name]
	return t, ok
}

// All returns every registered tool in registration order.
func (r *Registry) All() []Tool {
	out := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.byName[name])
	}
	return out
}

// Descriptions returns the {name: description} map the planner prompt uses
// to describe available tools to the LLM.
func (r *Registry) Descriptions() map[string]string {
	out := make(map[string]string, len(r.byName))
	for name, t := range r.byName {
		out[name] = t.Description()
	}
	return out
}
