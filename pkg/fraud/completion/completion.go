// Package completion runs after the graph stops: it aggregates the
// confidence/severity signals gathered by the tools into a final verdict,
// then persists the investigation's durable artifacts. Only the investigation
// row update is treated as must-succeed; every other write (insight,
// evidence, recommendations, rule draft, audit log) is best-effort and
// logged rather than rolled back, mirroring a queue worker's terminal
// status handling.
package completion

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ops-agent/fraud-investigator/pkg/fraud/graph"
	"github.com/ops-agent/fraud-investigator/pkg/fraud/metrics"
	"github.com/ops-agent/fraud-investigator/pkg/fraud/types"
)

// weights for the final confidence aggregation. Redistributed proportionally
// across whichever components actually ran, so a quick-mode investigation
// that skipped similarity_tool isn't penalized for a zero it never produced.
const (
	weightReasoning  = 0.5
	weightPattern    = 0.3
	weightSimilarity = 0.2
)

// Repositories is the narrow persistence surface completion depends on. Each
// method corresponds to one durable artifact; completion calls them in
// dependency order (insight before evidence/recommendations, investigation
// before insight) but only the investigation write's error aborts the run.
type Repositories struct {
	Investigation  InvestigationWriter
	ToolExecution  ToolExecutionWriter
	Insight        InsightWriter
	Evidence       EvidenceWriter
	Recommendation RecommendationWriter
	RuleDraft      RuleDraftWriter
	AuditLog       AuditLogWriter
}

// InvestigationWriter persists the terminal investigation row. Must succeed.
type InvestigationWriter interface {
	Complete(ctx context.Context, id string, status types.Status, severity types.Severity, confidence float64, completedAt sql.NullTime) error
}

// ToolExecutionWriter batch-persists the append-only tool execution log.
type ToolExecutionWriter interface {
	CreateAll(ctx context.Context, investigationID string, execs []types.ToolExecution) error
}

// InsightWriter persists the one-per-investigation summary row.
type InsightWriter interface {
	Create(ctx context.Context, in *types.Insight) error
}

// EvidenceWriter persists the flat evidence list under an insight.
type EvidenceWriter interface {
	AppendAll(ctx context.Context, insightID string, envelopes []types.EvidenceEnvelope) error
}

// RecommendationWriter persists the prioritized recommendation list.
type RecommendationWriter interface {
	CreateAll(ctx context.Context, insightID string, recs []types.Recommendation) ([]types.RecommendationRow, error)
}

// RuleDraftWriter persists an optional draft detection rule.
type RuleDraftWriter interface {
	Create(ctx context.Context, investigationID string, payload types.RuleDraftPayload) (*types.RuleDraftRow, error)
}

// AuditLogWriter appends an append-only audit trail entry.
type AuditLogWriter interface {
	Append(ctx context.Context, entityType, entityID, action, performedBy string, newValue any) error
}

// SeverityThresholds are the pattern-overall-score cutoffs used to derive a
// severity from PatternResults, independent of whatever the reasoning tool
// (or its fallback) produced. Mirrors pkg/fraud/config.ScoringConfig.
type SeverityThresholds struct {
	Critical float64
	High     float64
	Medium   float64
}

// Completer aggregates final scores and persists an investigation's outcome.
type Completer struct {
	repos      Repositories
	thresholds SeverityThresholds
}

// New builds a Completer bound to repos, deriving pattern-based severity
// using thresholds.
func New(repos Repositories, thresholds SeverityThresholds) *Completer {
	return &Completer{repos: repos, thresholds: thresholds}
}

// Finish aggregates state's final confidence/severity and persists every
// durable artifact. graphErr is the error (if any) graph.Run returned —
// ErrStepCapReached and a deadline-exceeded error still produce a completed
// investigation with partial evidence; any other error marks the
// investigation FAILED.
func (c *Completer) Finish(ctx context.Context, state *types.InvestigationState, graphErr error) (*types.InvestigationResponse, error) {
	status, severity, confidence := c.finalize(state, graphErr)
	metrics.StepCount.Observe(float64(state.StepCount))
	metrics.InvestigationsTotal.WithLabelValues(string(status)).Inc()

	completedAt := time.Now()
	if err := c.repos.Investigation.Complete(ctx, state.InvestigationID, status, severity, confidence, sql.NullTime{Time: completedAt, Valid: true}); err != nil {
		return nil, fmt.Errorf("completion: persist terminal investigation status: %w", err)
	}

	c.auditEscalationIfAny(ctx, state)
	c.persistBestEffort(ctx, state, status, severity)

	response := buildResponse(state, status, severity, confidence, completedAt)
	c.auditTerminal(ctx, state.InvestigationID, status)
	return response, nil
}

// finalize derives the terminal status, aggregate severity, and weighted
// confidence score from whatever evidence the graph collected.
func (c *Completer) finalize(state *types.InvestigationState, graphErr error) (types.Status, types.Severity, float64) {
	status := types.StatusCompleted
	switch {
	case errors.Is(graphErr, context.DeadlineExceeded):
		status = types.StatusTimedOut
	case errors.Is(graphErr, graph.ErrStepCapReached):
		status = types.StatusCompleted
	case graphErr != nil:
		status = types.StatusFailed
	}

	reasoningSeverity := types.SeverityLow
	if state.Reasoning != nil {
		reasoningSeverity = state.Reasoning.RiskLevel
	}
	patternSeverity := c.patternSeverity(state)
	severity := types.MaxSeverity(reasoningSeverity, patternSeverity)

	confidence := aggregateConfidence(state)
	return status, severity, confidence
}

// patternSeverity classifies PatternResults.OverallScore against the
// configured thresholds (CRITICAL >= 0.7, HIGH >= 0.5, MEDIUM >= 0.3, else
// LOW, by default).
func (c *Completer) patternSeverity(state *types.InvestigationState) types.Severity {
	if state.PatternResults == nil {
		return types.SeverityLow
	}
	score := state.PatternResults.OverallScore
	switch {
	case score >= c.thresholds.Critical:
		return types.SeverityCritical
	case score >= c.thresholds.High:
		return types.SeverityHigh
	case score >= c.thresholds.Medium:
		return types.SeverityMedium
	default:
		return types.SeverityLow
	}
}

// auditEscalationIfAny logs a severity_escalated audit entry when the
// pattern-derived severity outranks whatever the reasoning tool (or its
// fallback) produced.
func (c *Completer) auditEscalationIfAny(ctx context.Context, state *types.InvestigationState) {
	reasoningSeverity := types.SeverityLow
	if state.Reasoning != nil {
		reasoningSeverity = state.Reasoning.RiskLevel
	}
	patternSeverity := c.patternSeverity(state)
	if types.MaxSeverity(reasoningSeverity, patternSeverity) == patternSeverity && patternSeverity != reasoningSeverity {
		if err := c.repos.AuditLog.Append(ctx, "investigation", state.InvestigationID, types.AuditActionSeverityEscalated, "system", map[string]any{
			"from_reasoning": reasoningSeverity,
			"to_pattern":     patternSeverity,
		}); err != nil {
			slog.Error("completion: failed to append severity-escalation audit entry", "investigation_id", state.InvestigationID, "error", err)
		}
	}
}

// aggregateConfidence computes the weighted-mean final confidence across
// whichever of reasoning/pattern/similarity actually ran, redistributing the
// weight of any missing component across the rest.
func aggregateConfidence(state *types.InvestigationState) float64 {
	var sum, totalWeight float64

	if state.Reasoning != nil {
		sum += weightReasoning * state.Reasoning.Confidence
		totalWeight += weightReasoning
	}
	if state.PatternResults != nil {
		sum += weightPattern * state.PatternResults.OverallScore
		totalWeight += weightPattern
	}
	if state.SimilarityResults != nil && !state.SimilarityResults.Skipped {
		sum += weightSimilarity * state.SimilarityResults.OverallScore
		totalWeight += weightSimilarity
	}

	if totalWeight == 0 {
		return 0
	}
	return sum / totalWeight
}

// persistBestEffort writes the insight, evidence, recommendations, and rule
// draft. Every failure is logged and skipped, recorded as a
// dependency_failure audit entry — the investigation has already been marked
// terminal and does not roll back because a downstream write failed.
func (c *Completer) persistBestEffort(ctx context.Context, state *types.InvestigationState, status types.Status, severity types.Severity) string {
	if len(state.ToolExecutions) > 0 {
		if err := c.repos.ToolExecution.CreateAll(ctx, state.InvestigationID, state.ToolExecutions); err != nil {
			c.logAndAudit(ctx, state.InvestigationID, "failed to persist tool execution log", err)
		}
	}

	insight := &types.Insight{
		InvestigationID: state.InvestigationID,
		TransactionID:   state.TransactionID,
		IdempotencyKey:  types.DeriveIdempotencyKey(state.TransactionID, state.Mode),
		Severity:        severity,
		Summary:         summaryFor(state),
		EvidenceKind:    "agentic_investigation",
		ModelMode:       string(state.Mode),
	}
	if err := c.repos.Insight.Create(ctx, insight); err != nil {
		c.logAndAudit(ctx, state.InvestigationID, "failed to persist insight", err)
		return ""
	}

	if len(state.Evidence) > 0 {
		if err := c.repos.Evidence.AppendAll(ctx, insight.ID, state.Evidence); err != nil {
			c.logAndAudit(ctx, state.InvestigationID, "failed to persist evidence", err)
		}
	}

	if len(state.Recommendations) > 0 {
		if _, err := c.repos.Recommendation.CreateAll(ctx, insight.ID, state.Recommendations); err != nil {
			c.logAndAudit(ctx, state.InvestigationID, "failed to persist recommendations", err)
		}
	}

	if state.RuleDraft != nil {
		draft := *state.RuleDraft
		draft.Metadata.InsightID = insight.ID
		if _, err := c.repos.RuleDraft.Create(ctx, state.InvestigationID, draft); err != nil {
			c.logAndAudit(ctx, state.InvestigationID, "failed to persist rule draft", err)
		}
	}

	return insight.ID
}

func (c *Completer) logAndAudit(ctx context.Context, investigationID, message string, err error) {
	slog.Error("completion: "+message, "investigation_id", investigationID, "error", err)
	if auditErr := c.repos.AuditLog.Append(ctx, "investigation", investigationID, types.AuditActionDependencyFailure, "system", map[string]any{"message": message, "error": err.Error()}); auditErr != nil {
		slog.Error("completion: failed to append dependency-failure audit entry", "investigation_id", investigationID, "error", auditErr)
	}
}

func (c *Completer) auditTerminal(ctx context.Context, investigationID string, status types.Status) {
	action := types.AuditActionCompleted
	switch status {
	case types.StatusFailed:
		action = types.AuditActionFailed
	case types.StatusTimedOut:
		action = types.AuditActionTimedOut
	}
	if err := c.repos.AuditLog.Append(ctx, "investigation", investigationID, action, "system", map[string]any{"status": status}); err != nil {
		slog.Error("completion: failed to append terminal audit entry", "investigation_id", investigationID, "error", err)
	}
}

func summaryFor(state *types.InvestigationState) string {
	if state.Reasoning == nil {
		return "investigation stopped before reasoning completed"
	}
	return state.Reasoning.Explanation
}

func buildResponse(state *types.InvestigationState, status types.Status, severity types.Severity, confidence float64, completedAt time.Time) *types.InvestigationResponse {
	return &types.InvestigationResponse{
		InvestigationID:  state.InvestigationID,
		TransactionID:    state.TransactionID,
		Status:           status,
		Severity:         severity,
		ConfidenceScore:  confidence,
		StepCount:        state.StepCount,
		MaxSteps:         state.MaxSteps,
		PlannerDecisions: state.PlannerDecisions,
		ToolExecutions:   state.ToolExecutions,
		Recommendations:  state.Recommendations,
		StartedAt:        state.StartedAt,
		CompletedAt:      completedAt,
		TotalDurationMs:  completedAt.Sub(state.StartedAt).Milliseconds(),
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

// evidenceGaps names evidence buckets that never populated, so the response
// envelope is honest about what the investigation did NOT manage to gather
// (e.g. similarity search skipped by feature flag, or the graph stopped
// early on the step cap).
func evidenceGaps(state *types.InvestigationState) []string {
	var gaps []string
	if state.Context.IsEmpty() {
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
