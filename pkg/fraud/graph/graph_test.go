package graph

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ops-agent/fraud-investigator/pkg/fraud/executor"
	"github.com/ops-agent/fraud-investigator/pkg/fraud/planner"
	"github.com/ops-agent/fraud-investigator/pkg/fraud/tools"
	"github.com/ops-agent/fraud-investigator/pkg/fraud/types"
)

type fakeTool struct {
	name string
	fn   func(*types.InvestigationState) *types.InvestigationState
}

func (f *fakeTool) Name() string        { return f.name }
func (f *fakeTool) Description() string { return f.name }
func (f *fakeTool) Execute(_ context.Context, state *types.InvestigationState) (*types.InvestigationState, error) {
	next := state.Clone()
	if f.fn != nil {
		next = f.fn(next)
	}
	return next, nil
}

func newFixture(maxSteps int) (*Graph, *types.InvestigationState) {
	reg := tools.NewRegistry(
		&fakeTool{name: types.ToolContext, fn: func(s *types.InvestigationState) *types.InvestigationState {
			s.Context = &types.TransactionContext{Transaction: types.Transaction{TransactionID: "txn-1"}}
			return s
		}},
		&fakeTool{name: types.ToolPattern},
		&fakeTool{name: types.ToolSimilarity},
		&fakeTool{name: types.ToolReasoning, fn: func(s *types.InvestigationState) *types.InvestigationState {
			s.Reasoning = &types.Reasoning{RiskLevel: types.SeverityLow, LLMStatus: "fallback"}
			return s
		}},
		&fakeTool{name: types.ToolRecommendation},
		&fakeTool{name: types.ToolRuleDraft},
	)

	p := planner.New(reg, nil, nil, "", types.FallbackSequence)
	e := executor.New(reg, time.Second)
	g := New(p, e, nil, time.Second)

	state := &types.InvestigationState{
		InvestigationID: "inv-1",
		TransactionID:   "txn-1",
		MaxSteps:        maxSteps,
	}
	return g, state
}

func TestGraph_Run_CompletesFallbackSequence(t *testing.T) {
	g, state := newFixture(20)

	final, err := g.Run(context.Background(), state)
	require.NoError(t, err)

	assert.Equal(t, types.FallbackSequence, final.CompletedSteps)
	assert.Equal(t, len(types.FallbackSequence)+1, len(final.PlannerDecisions)) // +1 for the COMPLETE decision
	assert.Equal(t, types.ToolComplete, final.PlannerDecisions[len(final.PlannerDecisions)-1].SelectedTool)
}

func TestGraph_Run_FallbackOnlyLeavesPlannerCallsZero(t *testing.T) {
	g, state := newFixture(20)

	final, err := g.Run(context.Background(), state)
	require.NoError(t, err)

	assert.Equal(t, 0, final.LLMUsage.PlannerCalls)
	// The first decision (context_tool) is forced by the non-negotiable
	// ordering constraint, not the deterministic fallback path, so it isn't
	// counted as a fallback; every decision after it is.
	assert.Equal(t, len(types.FallbackSequence), final.LLMUsage.FallbackCount)
}

func TestGraph_Run_StepCapReached(t *testing.T) {
	g, state := newFixture(2)

	final, err := g.Run(context.Background(), state)
	require.ErrorIs(t, err, ErrStepCapReached)
	assert.Equal(t, 2, final.StepCount)
}

func TestGraph_Run_RespectsCanceledContext(t *testing.T) {
	g, state := newFixture(20)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	final, err := g.Run(ctx, state)
	require.Error(t, err)
	assert.Equal(t, state, final)
}
