package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ops-agent/fraud-investigator/pkg/fraud/apierr"
	"github.com/ops-agent/fraud-investigator/pkg/fraud/types"
)

func TestRecommendationRepository_CreateAllAndListByInsight(t *testing.T) {
	db := newTestClient(t)
	invID := insertTestInvestigation(t, db, "txn-rec-1")
	insightRepo := NewInsightRepository(db)
	require.NoError(t, insightRepo.Create(context.Background(), &types.Insight{
		InvestigationID: invID, TransactionID: "txn-rec-1",
		IdempotencyKey: types.DeriveIdempotencyKey("txn-rec-1", types.ModeFull),
		Severity:       types.SeverityCritical, Summary: "s", EvidenceKind: "reasoning", ModelMode: "FULL",
	}))
	insight, err := insightRepo.GetByInvestigation(context.Background(), invID)
	require.NoError(t, err)

	repo := NewRecommendationRepository(db)
	recs := []types.Recommendation{
		{Type: "block_card", Priority: 90, Title: "block", Impact: "high", Payload: map[string]any{"card_id": "card-1"}},
		{Type: "monitor", Priority: 10, Title: "monitor", Impact: "low", Payload: map[string]any{}},
	}
	rows, err := repo.CreateAll(context.Background(), insight.ID, recs)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	for _, row := range rows {
		assert.Equal(t, types.RecommendationOpen, row.Status)
	}

	listed, err := repo.ListByInsight(context.Background(), insight.ID)
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, "block_card", listed[0].Type, "ordered by priority desc")
}

// TestRecommendationRepository_CreateAll_ReplacesExisting verifies that
// re-running completion against the same insight replaces its
// recommendations instead of accumulating duplicates alongside them.
func TestRecommendationRepository_CreateAll_ReplacesExisting(t *testing.T) {
	db := newTestClient(t)
	invID := insertTestInvestigation(t, db, "txn-rec-replace")
	insightRepo := NewInsightRepository(db)
	require.NoError(t, insightRepo.Create(context.Background(), &types.Insight{
		InvestigationID: invID, TransactionID: "txn-rec-replace",
		IdempotencyKey: types.DeriveIdempotencyKey("txn-rec-replace", types.ModeFull),
		Severity:       types.SeverityHigh, Summary: "s", EvidenceKind: "reasoning", ModelMode: "FULL",
	}))
	insight, err := insightRepo.GetByInvestigation(context.Background(), invID)
	require.NoError(t, err)

	repo := NewRecommendationRepository(db)
	_, err = repo.CreateAll(context.Background(), insight.ID, []types.Recommendation{
		{Type: "block_card", Priority: 90, Title: "block", Impact: "high", Payload: map[string]any{}},
		{Type: "escalate_review", Priority: 80, Title: "escalate", Impact: "high", Payload: map[string]any{}},
	})
	require.NoError(t, err)

	rows, err := repo.CreateAll(context.Background(), insight.ID, []types.Recommendation{
		{Type: "standard_review", Priority: 10, Title: "review", Impact: "low", Payload: map[string]any{}},
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)

	listed, err := repo.ListByInsight(context.Background(), insight.ID)
	require.NoError(t, err)
	require.Len(t, listed, 1, "second CreateAll must replace the first run's rows")
	assert.Equal(t, "standard_review", listed[0].Type)
}

func TestRecommendationRepository_UpdateStatusWithGuard_AllowsValidTransition(t *testing.T) {
	db := newTestClient(t)
	invID := insertTestInvestigation(t, db, "txn-rec-2")
	insightRepo := NewInsightRepository(db)
	require.NoError(t, insightRepo.Create(context.Background(), &types.Insight{
		InvestigationID: invID, TransactionID: "txn-rec-2",
		IdempotencyKey: types.DeriveIdempotencyKey("txn-rec-2", types.ModeFull),
		Severity:       types.SeverityHigh, Summary: "s", EvidenceKind: "reasoning", ModelMode: "FULL",
	}))
	insight, err := insightRepo.GetByInvestigation(context.Background(), invID)
	require.NoError(t, err)

	repo := NewRecommendationRepository(db)
	rows, err := repo.CreateAll(context.Background(), insight.ID, []types.Recommendation{
		{Type: "standard_review", Priority: 10, Title: "review", Impact: "low", Payload: map[string]any{}},
	})
	require.NoError(t, err)

	updated, err := repo.UpdateStatusWithGuard(context.Background(), rows[0].ID, types.RecommendationOpen, types.RecommendationAcknowledged)
	require.NoError(t, err)
	assert.Equal(t, types.RecommendationAcknowledged, updated.Status)
}

func TestRecommendationRepository_UpdateStatusWithGuard_RejectsIllegalTransition(t *testing.T) {
	db := newTestClient(t)
	invID := insertTestInvestigation(t, db, "txn-rec-3")
	insightRepo := NewInsightRepository(db)
	require.NoError(t, insightRepo.Create(context.Background(), &types.Insight{
		InvestigationID: invID, TransactionID: "txn-rec-3",
		IdempotencyKey: types.DeriveIdempotencyKey("txn-rec-3", types.ModeFull),
		Severity:       types.SeverityHigh, Summary: "s", EvidenceKind: "reasoning", ModelMode: "FULL",
	}))
	insight, err := insightRepo.GetByInvestigation(context.Background(), invID)
	require.NoError(t, err)

	repo := NewRecommendationRepository(db)
	rows, err := repo.CreateAll(context.Background(), insight.ID, []types.Recommendation{
		{Type: "standard_review", Priority: 10, Title: "review", Impact: "low", Payload: map[string]any{}},
	})
	require.NoError(t, err)

	_, err = repo.UpdateStatusWithGuard(context.Background(), rows[0].ID, types.RecommendationOpen, types.RecommendationExported)
	require.Error(t, err)
	apiErr, ok := apierr.As(err)
	require.True(t, ok)
	assert.Equal(t, apierr.KindConflict, apiErr.Kind)
}

func TestRecommendationRepository_UpdateStatusWithGuard_StaleFromConflicts(t *testing.T) {
	db := newTestClient(t)
	invID := insertTestInvestigation(t, db, "txn-rec-4")
	insightRepo := NewInsightRepository(db)
	require.NoError(t, insightRepo.Create(context.Background(), &types.Insight{
		InvestigationID: invID, TransactionID: "txn-rec-4",
		IdempotencyKey: types.DeriveIdempotencyKey("txn-rec-4", types.ModeFull),
		Severity:       types.SeverityHigh, Summary: "s", EvidenceKind: "reasoning", ModelMode: "FULL",
	}))
	insight, err := insightRepo.GetByInvestigation(context.Background(), invID)
	require.NoError(t, err)

	repo := NewRecommendationRepository(db)
	rows, err := repo.CreateAll(context.Background(), insight.ID, []types.Recommendation{
		{Type: "standard_review", Priority: 10, Title: "review", Impact: "low", Payload: map[string]any{}},
	})
	require.NoError(t, err)

	_, err = repo.UpdateStatusWithGuard(context.Background(), rows[0].ID, types.RecommendationOpen, types.RecommendationAcknowledged)
	require.NoError(t, err)

	_, err = repo.UpdateStatusWithGuard(context.Background(), rows[0].ID, types.RecommendationOpen, types.RecommendationAcknowledged)
	require.Error(t, err)
	apiErr, ok := apierr.As(err)
	require.True(t, ok)
	assert.Equal(t, apierr.KindConflict, apiErr.Kind)
}

func TestRuleDraftRepository_CreateGetAndMarkExported(t *testing.T) {
	db := newTestClient(t)
	invID := insertTestInvestigation(t, db, "txn-rule-1")
	repo := NewRuleDraftRepository(db)

	payload := types.RuleDraftPayload{
		RuleName:        "velocity-burst-card-1",
		RuleDescription: "auto-drafted from repeated pattern evidence",
		Conditions: []types.RuleCondition{
			{FieldName: "txn_count_1h", Operator: ">=", Value: 10, LogicalOp: "AND"},
		},
		Thresholds: map[string]float64{"velocity": 0.8},
	}
	row, err := repo.Create(context.Background(), invID, payload)
	require.NoError(t, err)
	assert.Equal(t, types.RuleDraftPending, row.Status)

	got, err := repo.GetByInvestigation(context.Background(), invID)
	require.NoError(t, err)
	assert.Equal(t, row.ID, got.ID)

	require.NoError(t, repo.MarkExported(context.Background(), row.ID))

	got, err = repo.GetByInvestigation(context.Background(), invID)
	require.NoError(t, err)
	assert.Equal(t, types.RuleDraftExported, got.Status)
}

func TestRuleDraftRepository_MarkExported_NotFoundWhenAlreadyExported(t *testing.T) {
	db := newTestClient(t)
	invID := insertTestInvestigation(t, db, "txn-rule-2")
	repo := NewRuleDraftRepository(db)

	row, err := repo.Create(context.Background(), invID, types.RuleDraftPayload{RuleName: "r", Thresholds: map[string]float64{}})
	require.NoError(t, err)
	require.NoError(t, repo.MarkExported(context.Background(), row.ID))

	err = repo.MarkExported(context.Background(), row.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAuditLogRepository_Append(t *testing.T) {
	db := newTestClient(t)
	invID := insertTestInvestigation(t, db, "txn-audit-1")
	repo := NewAuditLogRepository(db)

	err := repo.Append(context.Background(), "investigation", invID, types.AuditActionCompleted, "ops-agent", map[string]any{"severity": "HIGH"})
	require.NoError(t, err)

	err = repo.Append(context.Background(), "investigation", invID, types.AuditActionFailed, "ops-agent", nil)
	require.NoError(t, err)
}
