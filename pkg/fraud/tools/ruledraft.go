package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/ops-agent/fraud-investigator/pkg/fraud/types"
)

// RuleDraftTool turns a rule_candidate recommendation into a concrete,
// exportable draft detection rule. It runs only when RuleDraftExportable is
// enabled and a rule_candidate recommendation exists; otherwise it is a
// deliberate no-op (Non-goal: automatic rule deployment — this only drafts).
type RuleDraftTool struct{}

// NewRuleDraftTool builds a RuleDraftTool.
func NewRuleDraftTool() *RuleDraftTool { return &RuleDraftTool{} }

// Name implements Tool.
func (t *RuleDraftTool) Name() string { return types.ToolRuleDraft }

// Description implements Tool.
func (t *RuleDraftTool) Description() string {
	return "Drafts a candidate detection rule (conditions and thresholds) from a rule_candidate recommendation, for human review and manual export."
}

// ruleCandidateType is the recommendation type recommendation_tool emits
// when two or more patterns fire together — the only recommendation kind
// this tool is allowed to turn into a draft rule.
const ruleCandidateType = "rule_candidate"

// Execute implements Tool.
func (t *RuleDraftTool) Execute(ctx context.Context, state *types.InvestigationState) (*types.InvestigationState, error) {
	next := state.Clone()

	// If recommendations is empty, rule_draft stays nil.
	if len(state.Recommendations) == 0 {
		return next, nil
	}
	if state.PatternResults == nil {
		return next, nil
	}

	candidate, ok := ruleCandidate(state.Recommendations)
	if !ok {
		// No rule_candidate recommendation (e.g. a single-pattern or clean
		// investigation): nothing to draft.
		return next, nil
	}

	draft := draftFromPatterns(state.TransactionID, candidate, *state.PatternResults)
	if draft == nil {
		// Every pattern score fell below the 0.5 condition filter — no
		// condition survived, so there is nothing worth drafting.
		return next, nil
	}

	next.RuleDraft = draft
	next.Evidence = append(next.Evidence, types.EvidenceEnvelope{
		Category: "rule_draft",
		Tool:     t.Name(),
		Data:     draft,
		Created:  time.Now(),
	})
	return next, nil
}

// ruleCandidate returns the highest-priority rule_candidate recommendation
// in recs, if any.
func ruleCandidate(recs []types.Recommendation) (types.Recommendation, bool) {
	for _, r := range recs {
		if r.Type == ruleCandidateType {
			return r, true
		}
	}
	return types.Recommendation{}, false
}

// draftFromPatterns builds a draft rule from every pattern that cleared the
// 0.5 detection threshold. It returns nil when no pattern survives the
// filter, so the caller never persists a rule with an empty condition list.
func draftFromPatterns(transactionID string, candidate types.Recommendation, patterns types.PatternResults) *types.RuleDraftPayload {
	var conditions []types.RuleCondition
	thresholds := map[string]float64{}

	for _, score := range patterns.Scores {
		if score.Score < 0.5 {
			continue
		}
		conditions = append(conditions, types.RuleCondition{
			FieldName: score.Name,
			Operator:  ">=",
			Value:     score.Score,
			LogicalOp: "AND",
		})
		thresholds[score.Name] = score.Score
	}

	if len(conditions) == 0 {
		return nil
	}

	return &types.RuleDraftPayload{
		RuleName:        fmt.Sprintf("auto_draft_%s", transactionID),
		RuleDescription: "Draft rule generated from a multi-pattern fraud investigation; requires analyst review before activation.",
		Conditions:      conditions,
		Thresholds:      thresholds,
		Metadata: types.RuleDraftMetadata{
			RecommendationID: candidate.ID,
			Source:           "ops-agent",
		},
	}
}
