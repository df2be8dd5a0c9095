package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ops-agent/fraud-investigator/pkg/fraud/apierr"
	"github.com/ops-agent/fraud-investigator/pkg/fraud/repository"
	"github.com/ops-agent/fraud-investigator/pkg/fraud/types"
)

// Get returns the full response envelope for one investigation, combining
// the durable lifecycle row with its latest working-memory snapshot. An
// investigation that completed and was later pruned from investigation_state
// still returns a minimal envelope built from the lifecycle row alone.
func (f *Facade) Get(ctx context.Context, investigationID string) (*types.InvestigationResponse, error) {
	inv, err := f.deps.Investigations.GetByID(ctx, investigationID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apierr.NotFound("investigation", investigationID)
		}
		return nil, fmt.Errorf("service: get investigation: %w", err)
	}

	state, _, err := f.deps.StateStore.Load(ctx, investigationID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return responseFromInvestigation(inv), nil
		}
		return nil, fmt.Errorf("service: load investigation state: %w", err)
	}
	return responseFromState(inv, state), nil
}

// RuleDraft returns the draft detection rule produced for an investigation,
// if RuleDraftTool produced one.
func (f *Facade) RuleDraft(ctx context.Context, investigationID string) (*types.RuleDraftRow, error) {
	row, err := f.deps.RuleDrafts.GetByInvestigation(ctx, investigationID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apierr.NotFound("rule draft", investigationID)
		}
		return nil, fmt.Errorf("service: get rule draft: %w", err)
	}
	return row, nil
}

// InsightsByTransaction returns every insight recorded for a transaction
// across its (possibly repeated) investigation runs.
func (f *Facade) InsightsByTransaction(ctx context.Context, transactionID string) ([]types.Insight, error) {
	rows, err := f.deps.Insights.ListByTransaction(ctx, transactionID)
	if err != nil {
		return nil, fmt.Errorf("service: list insights by transaction: %w", err)
	}
	return rows, nil
}

// ListRecommendations returns the cross-investigation recommendation
// worklist, filtered and keyset-paginated per filters.
func (f *Facade) ListRecommendations(ctx context.Context, filters repository.WorklistFilters) ([]types.RecommendationRow, error) {
	rows, err := f.deps.Recommendations.ListWorklist(ctx, filters)
	if err != nil {
		return nil, fmt.Errorf("service: list recommendation worklist: %w", err)
	}
	return rows, nil
}

// AcknowledgeRecommendation applies an analyst decision (ACKNOWLEDGED or
// REJECTED) to an OPEN recommendation, enforced as a compare-and-swap at the
// repository layer so a concurrent duplicate action surfaces as a conflict
// rather than silently double-applying.
func (f *Facade) AcknowledgeRecommendation(ctx context.Context, id string, action types.RecommendationStatus, comment string) (*types.RecommendationRow, error) {
	if action != types.RecommendationAcknowledged && action != types.RecommendationRejected {
		return nil, apierr.New(apierr.KindInvalidRequest, "action must be ACKNOWLEDGED or REJECTED")
	}

	row, err := f.deps.Recommendations.UpdateStatusWithGuard(ctx, id, types.RecommendationOpen, action)
	if err != nil {
		return nil, err
	}

	auditAction := types.AuditActionRecommendationAck
	if action == types.RecommendationRejected {
		auditAction = types.AuditActionRecommendationRej
	}
	if err := f.deps.AuditLog.Append(ctx, "recommendation", id, auditAction, "analyst", map[string]any{"comment": comment}); err != nil {
		slog.Error("service: failed to append recommendation audit entry", "recommendation_id", id, "error", err)
	}
	return row, nil
}

func responseFromState(inv *types.Investigation, state *types.InvestigationState) *types.InvestigationResponse {
	completedAt := completedAtOf(inv)
	return &types.InvestigationResponse{
		InvestigationID:  inv.InvestigationID,
		TransactionID:    inv.TransactionID,
		Status:           inv.Status,
		Severity:         inv.Severity,
		ConfidenceScore:  inv.FinalConfidence,
		StepCount:        state.StepCount,
		MaxSteps:         state.MaxSteps,
		PlannerDecisions: state.PlannerDecisions,
		ToolExecutions:   state.ToolExecutions,
		Recommendations:  state.Recommendations,
		StartedAt:        inv.StartedAt,
		CompletedAt:      completedAt,
		TotalDurationMs:  durationMs(inv.StartedAt, completedAt),
		AgenticTrace: types.AgenticTrace{
			LLMUsage:         state.LLMUsage,
			TMAPIUsage:       state.TMUsage,
			FeatureFlagsSnap: state.FeatureFlags,
			SafeguardsSnap:   state.Safeguards,
			EvidenceGaps:     evidenceGaps(state),
			ActionPlan:       actionPlan(state.Recommendations),
		},
	}
}

// responseFromInvestigation builds a minimal envelope when no working-memory
// snapshot is available (e.g. it was pruned after completion).
func responseFromInvestigation(inv *types.Investigation) *types.InvestigationResponse {
	completedAt := completedAtOf(inv)
	return &types.InvestigationResponse{
		InvestigationID: inv.InvestigationID,
		TransactionID:   inv.TransactionID,
		Status:          inv.Status,
		Severity:        inv.Severity,
		ConfidenceScore: inv.FinalConfidence,
		StepCount:       inv.StepCount,
		MaxSteps:        inv.MaxSteps,
		StartedAt:       inv.StartedAt,
		CompletedAt:     completedAt,
		TotalDurationMs: durationMs(inv.StartedAt, completedAt),
	}
}

func completedAtOf(inv *types.Investigation) time.Time {
	if inv.CompletedAt == nil {
		return time.Time{}
	}
	return *inv.CompletedAt
}

func durationMs(start, end time.Time) int64 {
	if end.IsZero() {
		return 0
	}
	return end.Sub(start).Milliseconds()
}

// evidenceGaps mirrors completion.evidenceGaps for the read path, where no
// live InvestigationState mutation is happening — only a persisted snapshot
// is available.
func evidenceGaps(state *types.InvestigationState) []string {
	var gaps []string
	if state.Context == nil || state.Context.IsEmpty() {
		gaps = append(gaps, "context")
	}
	if state.PatternResults == nil {
		gaps = append(gaps, "pattern_analysis")
	}
	if state.SimilarityResults == nil || state.SimilarityResults.Skipped {
		gaps = append(gaps, "similarity_search")
	}
	if state.Reasoning == nil {
		gaps = append(gaps, "reasoning")
	}
	return gaps
}

func actionPlan(recs []types.Recommendation) []string {
	plan := make([]string, 0, len(recs))
	for _, r := range recs {
		plan = append(plan, r.Type)
	}
	return plan
}
