package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/ops-agent/fraud-investigator/pkg/fraud/database"
	"github.com/ops-agent/fraud-investigator/pkg/fraud/types"
)

// InsightRepository persists the one-per-investigation durable summary and
// its attached evidence records.
type InsightRepository struct {
	db *database.Client
}

// NewInsightRepository builds a repository bound to db.
func NewInsightRepository(db *database.Client) *InsightRepository {
	return &InsightRepository{db: db}
}

// Create upserts the terminal insight row for a completed investigation,
// identified by its idempotency_key:
// re-running the same transaction_id+mode replaces the existing insight's
// content in place rather than inserting a duplicate row. in.ID is set to
// whichever row id now holds the content — the original insert's id on a
// first run, or the pre-existing row's id on a replay.
func (r *InsightRepository) Create(ctx context.Context, in *types.Insight) error {
	if in.ID == "" {
		in.ID = uuid.NewString()
	}
	const q = `
		INSERT INTO insights (id, investigation_id, transaction_id, idempotency_key, severity, summary, evidence_kind, model_mode, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
		ON CONFLICT (idempotency_key) DO UPDATE SET
			investigation_id = EXCLUDED.investigation_id,
			transaction_id   = EXCLUDED.transaction_id,
			severity         = EXCLUDED.severity,
			summary          = EXCLUDED.summary,
			evidence_kind    = EXCLUDED.evidence_kind,
			model_mode       = EXCLUDED.model_mode,
			updated_at       = EXCLUDED.updated_at
		RETURNING id`
	if err := r.db.QueryRowContext(ctx, q,
		in.ID, in.InvestigationID, in.TransactionID, in.IdempotencyKey, in.Severity,
		in.Summary, in.EvidenceKind, in.ModelMode, in.CreatedAt).Scan(&in.ID); err != nil {
		return fmt.Errorf("upsert insight: %w", err)
	}
	return nil
}

// GetByInvestigation fetches the insight row for one investigation.
func (r *InsightRepository) GetByInvestigation(ctx context.Context, investigationID string) (*types.Insight, error) {
	var in types.Insight
	const q = `SELECT id, investigation_id, transaction_id, idempotency_key, severity, summary, evidence_kind, model_mode, created_at, updated_at FROM insights WHERE investigation_id = $1`
	if err := r.db.GetContext(ctx, &in, q, investigationID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get insight: %w", err)
	}
	return &in, nil
}

// ListByTransaction returns every insight recorded for a transaction, newest
// first. A transaction normally carries exactly one insight per mode
// (FULL/QUICK each have their own idempotency_key, so a FULL and a QUICK
// investigation of the same transaction each keep their own row); repeated
// runs in the same mode replace that row's content rather than adding rows.
func (r *InsightRepository) ListByTransaction(ctx context.Context, transactionID string) ([]types.Insight, error) {
	var rows []types.Insight
	const q = `SELECT id, investigation_id, transaction_id, idempotency_key, severity, summary, evidence_kind, model_mode, created_at, updated_at FROM insights WHERE transaction_id = $1 ORDER BY created_at DESC`
	if err := r.db.SelectContext(ctx, &rows, q, transactionID); err != nil {
		return nil, fmt.Errorf("list insights by transaction: %w", err)
	}
	return rows, nil
}

// EvidenceRepository persists per-insight evidence records.
type EvidenceRepository struct {
	db *database.Client
}

// NewEvidenceRepository builds a repository bound to db.
func NewEvidenceRepository(db *database.Client) *EvidenceRepository {
	return &EvidenceRepository{db: db}
}

// AppendAll replaces every evidence row attached to insightID with the
// EvidenceEnvelopes gathered during this run: a replay of the same
// investigation replaces evidence, it does not duplicate it — the caller
// always passes the complete, final evidence list for the insight, never
// an incremental delta.
func (r *EvidenceRepository) AppendAll(ctx context.Context, insightID string, envelopes []types.EvidenceEnvelope) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM evidence WHERE insight_id = $1`, insightID); err != nil {
		return fmt.Errorf("clear existing evidence for insight: %w", err)
	}
	if len(envelopes) == 0 {
		return nil
	}
	const q = `INSERT INTO evidence (id, insight_id, category, tool, payload, created_at) VALUES ($1, $2, $3, $4, $5, $6)`
	for _, ev := range envelopes {
		payload, err := json.Marshal(ev.Data)
		if err != nil {
			return fmt.Errorf("marshal evidence payload for %s: %w", ev.Tool, err)
		}
		if _, err := r.db.ExecContext(ctx, q, uuid.NewString(), insightID, ev.Category, ev.Tool, payload, ev.Created); err != nil {
			return fmt.Errorf("insert evidence for %s: %w", ev.Tool, err)
		}
	}
	return nil
}

// ListByInsight returns every evidence record for an insight.
func (r *EvidenceRepository) ListByInsight(ctx context.Context, insightID string) ([]types.Evidence, error) {
	var rows []types.Evidence
	const q = `SELECT id, insight_id, category, tool, payload, created_at FROM evidence WHERE insight_id = $1 ORDER BY created_at ASC`
	if err := r.db.SelectContext(ctx, &rows, q, insightID); err != nil {
		return nil, fmt.Errorf("list evidence: %w", err)
	}
	return rows, nil
}
