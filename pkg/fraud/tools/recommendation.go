package tools

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ops-agent/fraud-investigator/pkg/fraud/types"
)

// RecommendationTool turns the accumulated evidence into a prioritized list
// of analyst-facing suggested actions. Purely derived from prior evidence
// buckets — no external calls, no further LLM use.
type RecommendationTool struct{}

// NewRecommendationTool builds a RecommendationTool.
func NewRecommendationTool() *RecommendationTool { return &RecommendationTool{} }

// Name implements Tool.
func (t *RecommendationTool) Name() string { return types.ToolRecommendation }

// Description implements Tool.
func (t *RecommendationTool) Description() string {
	return "Derives prioritized analyst recommendations (block card, escalate to review, no action) from the gathered evidence."
}

// Execute implements Tool.
func (t *RecommendationTool) Execute(ctx context.Context, state *types.InvestigationState) (*types.InvestigationState, error) {
	if state.Reasoning == nil {
		return nil, fmt.Errorf("recommendation_tool: requires reasoning_tool to have run first")
	}

	recs := buildRecommendations(state)
	// Deterministic ordering: priority (severity) descending, then type name
	// ascending as a stable tie-break.
	sort.SliceStable(recs, func(i, j int) bool {
		if recs[i].Priority != recs[j].Priority {
			return recs[i].Priority > recs[j].Priority
		}
		return recs[i].Type < recs[j].Type
	})

	next := state.Clone()
	next.Recommendations = recs
	next.Evidence = append(next.Evidence, types.EvidenceEnvelope{
		Category: "recommendation",
		Tool:     t.Name(),
		Data:     recs,
		Created:  time.Now(),
	})
	return next, nil
}

// actionableContext returns the minimum field set every recommendation
// payload carries so an analyst can act without re-querying the transaction:
// amount, merchant, MCC, and a relevant window stat.
func actionableContext(state *types.InvestigationState) map[string]any {
	ctx := map[string]any{"transaction_id": state.TransactionID}
	if state.Context == nil || state.Context.IsEmpty() {
		return ctx
	}
	txn := state.Context.Transaction
	ctx["card_id"] = txn.CardID
	ctx["amount_cents"] = txn.AmountCents
	ctx["merchant_id"] = txn.MerchantID
	ctx["mcc"] = txn.MCC
	ctx["window_24h_count"] = state.Context.Window24h.Count
	ctx["window_24h_unique_merchants"] = state.Context.Window24h.UniqueMerchants
	return ctx
}

func buildRecommendations(state *types.InvestigationState) []types.Recommendation {
	var recs []types.Recommendation
	base := actionableContext(state)

	withReason := func(reason string) map[string]any {
		payload := make(map[string]any, len(base)+1)
		for k, v := range base {
			payload[k] = v
		}
		payload["reason"] = reason
		return payload
	}

	switch state.Reasoning.RiskLevel {
	case types.SeverityCritical:
		recs = append(recs, types.Recommendation{
			Type:     "block_card",
			Priority: 100,
			Title:    "Block card immediately",
			Impact:   "Prevents further unauthorized use while the case is reviewed.",
			Payload:  withReason(state.Reasoning.Explanation),
		})
		recs = append(recs, types.Recommendation{
			Type:     "escalate_review",
			Priority: 90,
			Title:    "Escalate to fraud review queue",
			Impact:   "Ensures a human analyst confirms the automated assessment before further action.",
			Payload:  base,
		})
	case types.SeverityHigh:
		recs = append(recs, types.Recommendation{
			Type:     "escalate_review",
			Priority: 80,
			Title:    "Escalate to fraud review queue",
			Impact:   "High risk score warrants human confirmation before any customer-facing action.",
			Payload:  base,
		})
	case types.SeverityMedium:
		recs = append(recs, types.Recommendation{
			Type:     "monitor",
			Priority: 40,
			Title:    "Add card to watchlist",
			Impact:   "Flags subsequent transactions on this card for lighter-weight automated review.",
			Payload:  base,
		})
	default:
		recs = append(recs, types.Recommendation{
			Type:     "standard_review",
			Priority: 10,
			Title:    "Standard review",
			Impact:   "Evidence does not indicate elevated fraud risk; log for routine analyst review.",
			Payload:  base,
		})
	}

	if state.PatternResults != nil && len(state.PatternResults.PatternsDetected) >= 2 {
		rulePayload := make(map[string]any, len(base)+1)
		for k, v := range base {
			rulePayload[k] = v
		}
		rulePayload["patterns"] = state.PatternResults.PatternsDetected
		recs = append(recs, types.Recommendation{
			Type:     "rule_candidate",
			Priority: 60,
			Title:    "Consider a detection rule for this pattern combination",
			Impact:   "Multiple independent patterns fired together; a rule could catch repeats automatically.",
			Payload:  rulePayload,
		})
	}

	return recs
}
