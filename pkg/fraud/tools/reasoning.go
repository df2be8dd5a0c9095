package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ops-agent/fraud-investigator/pkg/fraud/llm"
	"github.com/ops-agent/fraud-investigator/pkg/fraud/promptguard"
	"github.com/ops-agent/fraud-investigator/pkg/fraud/types"
)

// ReasoningTool synthesizes the pattern and similarity evidence into a risk
// narrative. It prefers an LLM call but always has a deterministic fallback,
// so an investigation never stalls on a provider outage.
type ReasoningTool struct {
	llmClient llm.Client
	guard     *promptguard.Guard
	model     string
}

// NewReasoningTool builds a ReasoningTool bound to its collaborators.
func NewReasoningTool(llmClient llm.Client, guard *promptguard.Guard, model string) *ReasoningTool {
	return &ReasoningTool{llmClient: llmClient, guard: guard, model: model}
}

// Name implements Tool.
func (t *ReasoningTool) Name() string { return types.ToolReasoning }

// Description implements Tool.
func (t *ReasoningTool) Description() string {
	return "Synthesizes pattern scores and similar-transaction evidence into a risk level, explanation, and hypotheses."
}

// reasoningOutput is the structured JSON shape requested of the LLM.
type reasoningOutput struct {
	RiskLevel   string   `json:"risk_level"`
	Explanation string   `json:"explanation"`
	Hypotheses  []string `json:"hypotheses"`
	Confidence  float64  `json:"confidence"`
}

// Execute implements Tool.
func (t *ReasoningTool) Execute(ctx context.Context, state *types.InvestigationState) (*types.InvestigationState, error) {
	if state.Context.IsEmpty() {
		return nil, fmt.Errorf("reasoning_tool: requires context_tool to have run first")
	}

	next := state.Clone()

	reasoning, usage, err := t.reasonWithLLM(ctx, state)
	if err != nil {
		reasoning = fallbackReasoning(state)
	} else {
		next.LLMUsage.ReasoningCalls++
		next.LLMUsage.TotalPromptTokens += usage.PromptTokens
		next.LLMUsage.TotalCompletionTokens += usage.CompletionTokens
	}

	next.Reasoning = reasoning
	next.Severity = reasoning.RiskLevel
	next.ConfidenceScore = reasoning.Confidence
	next.Hypotheses = append([]string(nil), reasoning.Hypotheses...)
	next.Evidence = append(next.Evidence, types.EvidenceEnvelope{
		Category: "reasoning",
		Tool:     t.Name(),
		Data:     reasoning,
		Created:  time.Now(),
	})
	return next, nil
}

func (t *ReasoningTool) reasonWithLLM(ctx context.Context, state *types.InvestigationState) (*types.Reasoning, llm.Usage, error) {
	if t.llmClient == nil || !state.FeatureFlags.PlannerLLMEnabled {
		return nil, llm.Usage{}, fmt.Errorf("reasoning_tool: llm disabled")
	}

	prompt, err := t.buildPrompt(state)
	if err != nil {
		return nil, llm.Usage{}, err
	}

	resp, err := t.llmClient.Complete(ctx, llm.Request{
		Model: t.model,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: "You are a fraud analysis reasoning engine. Respond with a single JSON object only: {\"risk_level\":\"LOW|MEDIUM|HIGH|CRITICAL\",\"explanation\":\"...\",\"hypotheses\":[\"...\"],\"confidence\":0.0-1.0}."},
			{Role: llm.RoleUser, Content: prompt},
		},
		Temperature: 0,
		MaxTokens:   1000,
	})
	if err != nil {
		return nil, llm.Usage{}, fmt.Errorf("reasoning_tool: llm call failed: %w", err)
	}

	var out reasoningOutput
	if err := json.Unmarshal([]byte(resp.Content), &out); err != nil {
		return nil, llm.Usage{}, fmt.Errorf("reasoning_tool: invalid llm json: %w", err)
	}

	severity := normalizeRiskLevel(out.RiskLevel)

	return &types.Reasoning{
		RiskLevel:   severity,
		Explanation: truncateExplanation(out.Explanation),
		Hypotheses:  truncateHypotheses(out.Hypotheses),
		Confidence:  clamp01(out.Confidence),
		LLMStatus:   "llm",
	}, resp.Usage, nil
}

// maxExplanationChars and maxHypotheses bound the LLM's narrative output,
// truncated at 2,000 characters / 10 items.
const (
	maxExplanationChars = 2000
	maxHypotheses       = 10
)

// normalizeRiskLevel maps an unrecognized risk_level to MEDIUM rather than
// rejecting the response outright.
func normalizeRiskLevel(raw string) types.Severity {
	switch types.Severity(raw) {
	case types.SeverityLow, types.SeverityMedium, types.SeverityHigh, types.SeverityCritical:
		return types.Severity(raw)
	default:
		return types.SeverityMedium
	}
}

func truncateExplanation(s string) string {
	if len(s) <= maxExplanationChars {
		return s
	}
	return s[:maxExplanationChars]
}

func truncateHypotheses(h []string) []string {
	if len(h) <= maxHypotheses {
		return h
	}
	return h[:maxHypotheses]
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

func (t *ReasoningTool) buildPrompt(state *types.InvestigationState) (string, error) {
	redacted, err := t.guard.Redact(map[string]any{
		"transaction":        state.Context.Transaction,
		"card_history":       state.Context.CardHistory,
		"pattern_results":    state.PatternResults,
		"similarity_results": state.SimilarityResults,
		"matched_rules":      state.Context.MatchedRules,
		"mode":               state.Mode,
	})
	if err != nil {
		return "", fmt.Errorf("reasoning_tool: redact prompt input: %w", err)
	}
	body, err := json.Marshal(redacted)
	if err != nil {
		return "", fmt.Errorf("reasoning_tool: marshal redacted input: %w", err)
	}
	return string(body), nil
}

// fallbackReasoning deterministically derives a risk level and explanation
// from pattern_results.overall_score alone, used whenever the LLM call
// fails, times out, or returns an invalid response: >=0.7 HIGH, >=0.4
// MEDIUM, else LOW.
func fallbackReasoning(state *types.InvestigationState) *types.Reasoning {
	patternScore := 0.0
	if state.PatternResults != nil {
		patternScore = state.PatternResults.OverallScore
	}

	var level types.Severity
	switch {
	case patternScore >= 0.7:
		level = types.SeverityHigh
	case patternScore >= 0.4:
		level = types.SeverityMedium
	default:
		level = types.SeverityLow
	}

	var hypotheses []string
	if state.PatternResults != nil {
		hypotheses = append(hypotheses, state.PatternResults.PatternsDetected...)
	}

	return &types.Reasoning{
		RiskLevel:   level,
		Explanation: fmt.Sprintf("Deterministic fallback synthesis: pattern_score=%.2f", patternScore),
		Hypotheses:  truncateHypotheses(hypotheses),
		Confidence:  patternScore,
		LLMStatus:   "fallback",
	}
}
