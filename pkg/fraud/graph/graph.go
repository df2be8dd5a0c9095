// Package graph runs the investigation's planner/tool-executor loop: a
// planner node chooses the next tool, a tool-executor node runs it, and a
// router decides whether to loop back to the planner, stop, or fail. It
// deliberately does not pull in a general-purpose graph framework — three
// fixed nodes and one router don't need one, and a hand-rolled loop keeps the
// step/time safeguards in plain, auditable Go.
package graph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ops-agent/fraud-investigator/pkg/fraud/executor"
	"github.com/ops-agent/fraud-investigator/pkg/fraud/metrics"
	"github.com/ops-agent/fraud-investigator/pkg/fraud/planner"
	"github.com/ops-agent/fraud-investigator/pkg/fraud/types"
)

// StateStore is the subset of repository.StateStore the graph depends on for
// resume-from-snapshot persistence after every step.
type StateStore interface {
	Save(ctx context.Context, investigationID string, state *types.InvestigationState) (int, error)
}

// Graph wires the planner and executor into the investigation's step loop.
type Graph struct {
	planner        *planner.Planner
	executor       *executor.Executor
	store          StateStore
	plannerTimeout time.Duration
}

// New builds a Graph.
func New(p *planner.Planner, e *executor.Executor, store StateStore, plannerTimeout time.Duration) *Graph {
	return &Graph{planner: p, executor: e, store: store, plannerTimeout: plannerTimeout}
}

// ErrStepCapReached is returned (alongside the final state, not as a hard
// failure) when an investigation hits its configured MaxSteps before the
// planner selects COMPLETE. Callers should treat this as a graceful stop,
// not an investigation failure: whatever evidence was gathered still feeds
// the completion node.
var ErrStepCapReached = errors.New("graph: max steps reached before planner selected COMPLETE")

// Run drives state through the planner/tool-executor loop until the planner
// selects COMPLETE, the step cap is hit, or ctx's deadline (the
// investigation-level timeout, set by the caller) expires. It persists state
// after every step via store.Save, so a crash or restart can resume from the
// last completed step rather than from scratch.
//
// Run never returns a nil state: even on error, the most recent snapshot is
// returned so the caller can still run completion/aggregation over partial
// evidence.
func (g *Graph) Run(ctx context.Context, state *types.InvestigationState) (*types.InvestigationState, error) {
	current := state

	for {
		if err := ctx.Err(); err != nil {
			return current, fmt.Errorf("graph: investigation deadline: %w", err)
		}
		if current.StepCount >= current.MaxSteps {
			return current, ErrStepCapReached
		}

		decision, err := g.planNext(ctx, current)
		if err != nil {
			return current, fmt.Errorf("graph: planner: %w", err)
		}

		current = recordPlannerDecision(current, decision)
		if err := g.persist(ctx, current); err != nil {
			slog.Warn("graph: failed to persist state after planner decision", "investigation_id", current.InvestigationID, "error", err)
		}

		if decision.Tool == types.ToolComplete {
			return current, nil
		}

		next, _, execErr := g.executor.Run(ctx, decision.Tool, current)
		current = next
		if persistErr := g.persist(ctx, current); persistErr != nil {
			slog.Warn("graph: failed to persist state after tool execution", "investigation_id", current.InvestigationID, "error", persistErr)
		}
		if execErr != nil {
			slog.Warn("graph: tool execution failed, continuing to next planner step", "investigation_id", current.InvestigationID, "tool", decision.Tool, "error", execErr)
		}
	}
}

func (g *Graph) planNext(ctx context.Context, state *types.InvestigationState) (planner.Decision, error) {
	plannerCtx, cancel := context.WithTimeout(ctx, g.plannerTimeout)
	defer cancel()
	return g.planner.Next(plannerCtx, state)
}

func recordPlannerDecision(state *types.InvestigationState, decision planner.Decision) *types.InvestigationState {
	next := state.Clone()
	next.PlannerDecisions = append(next.PlannerDecisions, decision.ToPlannerDecision(state.StepCount+1))
	if decision.UsedFallback {
		next.LLMUsage.FallbackCount++
		metrics.PlannerFallbackTotal.Inc()
	}
	if decision.FromLLM {
		next.LLMUsage.PlannerCalls++
		next.LLMUsage.TotalPromptTokens += decision.Usage.PromptTokens
		next.LLMUsage.TotalCompletionTokens += decision.Usage.CompletionTokens
	}
	return next
}

func (g *Graph) persist(ctx context.Context, state *types.InvestigationState) error {
	if g.store == nil {
		return nil
	}
	_, err := g.store.Save(ctx, state.InvestigationID, state)
	return err
}
