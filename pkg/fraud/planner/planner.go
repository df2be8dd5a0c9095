// Package planner selects the next tool to run given the investigation's
// current state. It prefers an LLM call constrained to the registered tool
// catalog, and falls back to a fixed deterministic sequence whenever the LLM
// is disabled, times out, or returns something the planner can't trust.
package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ops-agent/fraud-investigator/pkg/fraud/llm"
	"github.com/ops-agent/fraud-investigator/pkg/fraud/promptguard"
	"github.com/ops-agent/fraud-investigator/pkg/fraud/tools"
	"github.com/ops-agent/fraud-investigator/pkg/fraud/types"
)

// Decision is the planner's output for one step.
type Decision struct {
	Tool          string
	Reason        string
	Confidence    float64
	UsedFallback  bool
	FallbackCause string
	Usage         llm.Usage
	FromLLM       bool
}

// Planner chooses the next tool to execute.
type Planner struct {
	registry         *tools.Registry
	llmClient        llm.Client
	guard            *promptguard.Guard
	model            string
	fallbackSequence []string
}

// New builds a Planner. llmClient may be nil, which forces every decision
// through the deterministic fallback (equivalent to PlannerLLMEnabled=false).
func New(registry *tools.Registry, llmClient llm.Client, guard *promptguard.Guard, model string, fallbackSequence []string) *Planner {
	return &Planner{
		registry:         registry,
		llmClient:        llmClient,
		guard:            guard,
		model:            model,
		fallbackSequence: fallbackSequence,
	}
}

// plannerOutput is the structured JSON shape requested of the LLM.
type plannerOutput struct {
	Tool       string  `json:"tool"`
	Reason     string  `json:"reason"`
	Confidence float64 `json:"confidence"`
}

// Next decides the tool to run for state's current step. It enforces one
// code-level, non-negotiable constraint ahead of any LLM call: context_tool
// must run before any other tool, and COMPLETE is never selected before
// reasoning_tool has produced a result.
func (p *Planner) Next(ctx context.Context, state *types.InvestigationState) (Decision, error) {
	if forced, ok := p.codeLevelConstraint(state); ok {
		return Decision{Tool: forced, Reason: "non-negotiable ordering constraint"}, nil
	}

	if state.FeatureFlags.PlannerLLMEnabled && p.llmClient != nil {
		decision, err := p.decideWithLLM(ctx, state)
		if err == nil {
			return decision, nil
		}
		return p.fallbackDecision(state, err.Error()), nil
	}

	return p.fallbackDecision(state, "planner llm disabled"), nil
}

// codeLevelConstraint returns a forced tool selection that the LLM is never
// allowed to override, or ("", false) if none applies.
func (p *Planner) codeLevelConstraint(state *types.InvestigationState) (string, bool) {
	if !state.HasCompleted(types.ToolContext) {
		return types.ToolContext, true
	}
	return "", false
}

func (p *Planner) decideWithLLM(ctx context.Context, state *types.InvestigationState) (Decision, error) {
	prompt, err := p.buildPrompt(state)
	if err != nil {
		return Decision{}, err
	}

	resp, err := p.llmClient.Complete(ctx, llm.Request{
		Model: p.model,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: p.systemPrompt()},
			{Role: llm.RoleUser, Content: prompt},
		},
		Temperature: 0,
		MaxTokens:   400,
	})
	if err != nil {
		return Decision{}, fmt.Errorf("planner llm call failed: %w", err)
	}

	var out plannerOutput
	if err := json.Unmarshal([]byte(resp.Content), &out); err != nil {
		return Decision{}, fmt.Errorf("planner returned invalid json: %w", err)
	}

	if out.Tool != types.ToolComplete {
		if _, ok := p.registry.Get(out.Tool); !ok {
			return Decision{}, fmt.Errorf("planner selected unknown tool %q", out.Tool)
		}
		if state.HasCompleted(out.Tool) {
			return Decision{}, fmt.Errorf("planner re-selected already-completed tool %q", out.Tool)
		}
		if out.Tool == types.ToolRecommendation && state.Reasoning == nil {
			return Decision{}, fmt.Errorf("planner selected recommendation_tool before reasoning_tool ran")
		}
		if out.Tool == types.ToolRuleDraft && len(state.Recommendations) == 0 {
			return Decision{}, fmt.Errorf("planner selected rule_draft_tool with no recommendations")
		}
	} else if state.Reasoning == nil {
		return Decision{}, fmt.Errorf("planner selected COMPLETE before reasoning_tool ran")
	}

	return Decision{
		Tool:       out.Tool,
		Reason:     out.Reason,
		Confidence: clamp01(out.Confidence),
		Usage:      resp.Usage,
		FromLLM:    true,
	}, nil
}

// clamp01 restricts v to the [0, 1] confidence range.
func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

func (p *Planner) systemPrompt() string {
	return "You are the planner for a card-fraud investigation agent. Choose exactly one next step: either the name " +
		"of one of the available tools, or the literal string \"COMPLETE\" if enough evidence has been gathered. " +
		"Never select a tool already in completed_steps. Never select COMPLETE before reasoning has run. " +
		"Respond with a single JSON object only: {\"tool\":\"...\",\"reason\":\"...\",\"confidence\":0.0-1.0}."
}

func (p *Planner) buildPrompt(state *types.InvestigationState) (string, error) {
	redacted, err := p.guard.Redact(map[string]any{
		"mode":             state.Mode,
		"completed_steps":  state.CompletedSteps,
		"step_count":       state.StepCount,
		"max_steps":        state.MaxSteps,
		"available_tools":  p.registry.Descriptions(),
		"pattern_results":  state.PatternResults,
		"similarity_score": similarityScore(state),
		"has_reasoning":    state.Reasoning != nil,
	})
	if err != nil {
		return "", fmt.Errorf("redact planner prompt input: %w", err)
	}
	body, err := json.Marshal(redacted)
	if err != nil {
		return "", fmt.Errorf("marshal redacted planner input: %w", err)
	}
	return string(body), nil
}

func similarityScore(state *types.InvestigationState) float64 {
	if state.SimilarityResults == nil {
		return 0
	}
	return state.SimilarityResults.OverallScore
}

// fallbackDecision walks the canonical fallback sequence, returning the
// first tool not yet completed, or COMPLETE once every fallback step has run.
func (p *Planner) fallbackDecision(state *types.InvestigationState, cause string) Decision {
	for _, name := range p.fallbackSequence {
		if !state.HasCompleted(name) {
			return Decision{
				Tool:          name,
				Reason:        "deterministic fallback sequence",
				UsedFallback:  true,
				FallbackCause: cause,
			}
		}
	}
	return Decision{
		Tool:          types.ToolComplete,
		Reason:        "fallback sequence exhausted",
		UsedFallback:  true,
		FallbackCause: cause,
	}
}

// ToPlannerDecision converts a Decision into the audit record type, stamping
// step and timestamp.
func (d Decision) ToPlannerDecision(step int) types.PlannerDecision {
	return types.PlannerDecision{
		Step:          step,
		SelectedTool:  d.Tool,
		Reason:        d.Reason,
		Confidence:    d.Confidence,
		UsedFallback:  d.UsedFallback,
		FallbackCause: d.FallbackCause,
		Timestamp:     time.Now(),
	}
}
