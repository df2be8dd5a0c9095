package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ops-agent/fraud-investigator/pkg/fraud/types"
)

func TestInsightRepository_CreateAndGetByInvestigation(t *testing.T) {
	db := newTestClient(t)
	invID := insertTestInvestigation(t, db, "txn-insight-1")
	repo := NewInsightRepository(db)

	in := &types.Insight{
		InvestigationID: invID,
		TransactionID:   "txn-insight-1",
		IdempotencyKey:  types.DeriveIdempotencyKey("txn-insight-1", types.ModeFull),
		Severity:        types.SeverityHigh,
		Summary:         "elevated velocity and cross-merchant spread",
		EvidenceKind:    "pattern",
		ModelMode:       "FULL",
		CreatedAt:       time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, repo.Create(context.Background(), in))
	require.NotEmpty(t, in.ID)

	got, err := repo.GetByInvestigation(context.Background(), invID)
	require.NoError(t, err)
	assert.Equal(t, "txn-insight-1", got.TransactionID)
	assert.Equal(t, types.SeverityHigh, got.Severity)
	assert.Equal(t, "elevated velocity and cross-merchant spread", got.Summary)
}

// TestInsightRepository_Create_IdempotentReplace verifies that re-running
// the same transaction_id+mode (and therefore the same idempotency_key)
// under a new investigation_id replaces the existing insight's content in
// place, not insert a second row.
func TestInsightRepository_Create_IdempotentReplace(t *testing.T) {
	db := newTestClient(t)
	repo := NewInsightRepository(db)
	key := types.DeriveIdempotencyKey("txn-insight-replay", types.ModeFull)

	firstRun := insertTestInvestigation(t, db, "txn-insight-replay")
	first := &types.Insight{
		InvestigationID: firstRun, TransactionID: "txn-insight-replay",
		IdempotencyKey: key, Severity: types.SeverityLow, Summary: "first pass",
		EvidenceKind: "pattern", ModelMode: "FULL", CreatedAt: time.Now(),
	}
	require.NoError(t, repo.Create(context.Background(), first))

	secondRun := insertTestInvestigation(t, db, "txn-insight-replay")
	second := &types.Insight{
		InvestigationID: secondRun, TransactionID: "txn-insight-replay",
		IdempotencyKey: key, Severity: types.SeverityCritical, Summary: "replay with new evidence",
		EvidenceKind: "pattern", ModelMode: "FULL", CreatedAt: time.Now(),
	}
	require.NoError(t, repo.Create(context.Background(), second))

	assert.Equal(t, first.ID, second.ID, "replay must reuse the same insight row")

	rows, err := repo.ListByTransaction(context.Background(), "txn-insight-replay")
	require.NoError(t, err)
	require.Len(t, rows, 1, "replay must replace content, not duplicate the row")
	assert.Equal(t, types.SeverityCritical, rows[0].Severity)
	assert.Equal(t, "replay with new evidence", rows[0].Summary)
	assert.Equal(t, secondRun, rows[0].InvestigationID)
}

func TestInsightRepository_GetByInvestigation_NotFound(t *testing.T) {
	db := newTestClient(t)
	repo := NewInsightRepository(db)

	_, err := repo.GetByInvestigation(context.Background(), "00000000-0000-0000-0000-000000000000")
	assert.ErrorIs(t, err, ErrNotFound)
}

// TestInsightRepository_ListByTransaction_OrdersNewestFirst covers a
// transaction investigated in both modes: FULL and QUICK carry distinct
// idempotency_keys, so (unlike a same-mode replay) each keeps its own row.
func TestInsightRepository_ListByTransaction_OrdersNewestFirst(t *testing.T) {
	db := newTestClient(t)
	repo := NewInsightRepository(db)

	older := insertTestInvestigation(t, db, "txn-insight-2")
	require.NoError(t, repo.Create(context.Background(), &types.Insight{
		InvestigationID: older, TransactionID: "txn-insight-2",
		IdempotencyKey: types.DeriveIdempotencyKey("txn-insight-2", types.ModeFull),
		Severity:       types.SeverityLow, Summary: "first pass", EvidenceKind: "pattern",
		ModelMode: "FULL", CreatedAt: time.Now().Add(-time.Hour),
	}))

	newer := insertTestInvestigation(t, db, "txn-insight-2")
	require.NoError(t, repo.Create(context.Background(), &types.Insight{
		InvestigationID: newer, TransactionID: "txn-insight-2",
		IdempotencyKey: types.DeriveIdempotencyKey("txn-insight-2", types.ModeQuick),
		Severity:       types.SeverityCritical, Summary: "quick-mode investigation", EvidenceKind: "pattern",
		ModelMode: "QUICK", CreatedAt: time.Now(),
	}))

	rows, err := repo.ListByTransaction(context.Background(), "txn-insight-2")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "quick-mode investigation", rows[0].Summary)
	assert.Equal(t, "first pass", rows[1].Summary)
}

func TestEvidenceRepository_AppendAllAndListByInsight(t *testing.T) {
	db := newTestClient(t)
	invID := insertTestInvestigation(t, db, "txn-evidence-1")
	insightRepo := NewInsightRepository(db)
	evidenceRepo := NewEvidenceRepository(db)

	insight := &types.Insight{
		InvestigationID: invID, TransactionID: "txn-evidence-1",
		IdempotencyKey: types.DeriveIdempotencyKey("txn-evidence-1", types.ModeFull),
		Severity:       types.SeverityMedium, Summary: "evidence test", EvidenceKind: "context",
		ModelMode: "FULL", CreatedAt: time.Now(),
	}
	require.NoError(t, insightRepo.Create(context.Background(), insight))

	envelopes := []types.EvidenceEnvelope{
		{Category: "context", Tool: types.ToolContext, Data: map[string]any{"card_id": "card-1"}, Created: time.Now()},
		{Category: "pattern", Tool: types.ToolPattern, Data: map[string]any{"overall_score": 0.6}, Created: time.Now()},
	}
	require.NoError(t, evidenceRepo.AppendAll(context.Background(), insight.ID, envelopes))

	rows, err := evidenceRepo.ListByInsight(context.Background(), insight.ID)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "context", rows[0].Category)
	assert.Equal(t, "pattern", rows[1].Category)
}

func TestEvidenceRepository_AppendAll_EmptyIsNoOp(t *testing.T) {
	db := newTestClient(t)
	evidenceRepo := NewEvidenceRepository(db)

	require.NoError(t, evidenceRepo.AppendAll(context.Background(), "00000000-0000-0000-0000-000000000000", nil))
}
