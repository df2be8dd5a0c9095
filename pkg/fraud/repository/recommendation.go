package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/ops-agent/fraud-investigator/pkg/fraud/apierr"
	"github.com/ops-agent/fraud-investigator/pkg/fraud/database"
	"github.com/ops-agent/fraud-investigator/pkg/fraud/types"
)

// RecommendationRepository persists per-insight recommendation rows and
// enforces the status state machine at the storage layer via compare-and-swap
// updates.
type RecommendationRepository struct {
	db *database.Client
}

// NewRecommendationRepository builds a repository bound to db.
func NewRecommendationRepository(db *database.Client) *RecommendationRepository {
	return &RecommendationRepository{db: db}
}

// CreateAll replaces every recommendation row attached to insightID with the
// Recommendations produced by this run, all starting life OPEN: a replay of
// the same investigation replaces recommendations rather than duplicating
// them.
func (r *RecommendationRepository) CreateAll(ctx context.Context, insightID string, recs []types.Recommendation) ([]types.RecommendationRow, error) {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM recommendations WHERE insight_id = $1`, insightID); err != nil {
		return nil, fmt.Errorf("clear existing recommendations for insight: %w", err)
	}

	rows := make([]types.RecommendationRow, 0, len(recs))
	const q = `INSERT INTO recommendations (id, insight_id, type, priority, status, payload, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, now(), now()) RETURNING created_at, updated_at`

	for _, rec := range recs {
		payload, err := json.Marshal(rec.Payload)
		if err != nil {
			return nil, fmt.Errorf("marshal recommendation payload: %w", err)
		}
		row := types.RecommendationRow{
			ID:        uuid.NewString(),
			InsightID: insightID,
			Type:      rec.Type,
			Priority:  rec.Priority,
			Status:    types.RecommendationOpen,
			Payload:   payload,
		}
		if err := r.db.QueryRowContext(ctx, q, row.ID, row.InsightID, row.Type, row.Priority, row.Status, row.Payload).
			Scan(&row.CreatedAt, &row.UpdatedAt); err != nil {
			return nil, fmt.Errorf("insert recommendation: %w", err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// ListByInsight returns every recommendation attached to an insight.
func (r *RecommendationRepository) ListByInsight(ctx context.Context, insightID string) ([]types.RecommendationRow, error) {
	var rows []types.RecommendationRow
	const q = `SELECT id, insight_id, type, priority, status, payload, created_at, updated_at FROM recommendations WHERE insight_id = $1 ORDER BY priority DESC, created_at ASC`
	if err := r.db.SelectContext(ctx, &rows, q, insightID); err != nil {
		return nil, fmt.Errorf("list recommendations: %w", err)
	}
	return rows, nil
}

// allowedTransitions enumerates the only legal status moves; anything not
// listed here is rejected as a conflict rather than silently applied.
var allowedTransitions = map[types.RecommendationStatus][]types.RecommendationStatus{
	types.RecommendationOpen:         {types.RecommendationAcknowledged, types.RecommendationRejected},
	types.RecommendationAcknowledged: {types.RecommendationExported},
}

// UpdateStatusWithGuard performs the compare-and-swap transition
// from -> to, failing with apierr.KindConflict if the row's current status
// does not match from (e.g. a concurrent acknowledge already happened) or if
// the transition itself is not in the allowed state machine.
func (r *RecommendationRepository) UpdateStatusWithGuard(ctx context.Context, id string, from, to types.RecommendationStatus) (*types.RecommendationRow, error) {
	allowed := false
	for _, next := range allowedTransitions[from] {
		if next == to {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, apierr.Conflict(fmt.Sprintf("illegal recommendation transition %s -> %s", from, to), nil)
	}

	const q = `UPDATE recommendations SET status = $3, updated_at = now() WHERE id = $1 AND status = $2 RETURNING id, insight_id, type, priority, status, payload, created_at, updated_at`
	var row types.RecommendationRow
	err := r.db.QueryRowContext(ctx, q, id, from, to).Scan(
		&row.ID, &row.InsightID, &row.Type, &row.Priority, &row.Status, &row.Payload, &row.CreatedAt, &row.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			current, gerr := r.GetByID(ctx, id)
			if gerr != nil {
				return nil, gerr
			}
			return nil, apierr.Conflict(
				fmt.Sprintf("recommendation is %s, expected %s", current.Status, from),
				map[string]any{"current_status": current.Status})
		}
		return nil, fmt.Errorf("update recommendation status: %w", err)
	}
	return &row, nil
}

// WorklistFilters narrows the cross-investigation recommendation worklist.
type WorklistFilters struct {
	Status   types.RecommendationStatus
	Severity types.Severity
	Type     string
	Limit    int
	// Cursor is the recommendation_id to resume listing after (keyset pagination).
	Cursor string
}

// ListWorklist returns recommendations across every investigation, joined to
// their insight for the severity filter, ordered by priority desc then
// created_at desc with keyset pagination via Cursor.
func (r *RecommendationRepository) ListWorklist(ctx context.Context, f WorklistFilters) ([]types.RecommendationRow, error) {
	limit := f.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	query := `
		SELECT r.id, r.insight_id, r.type, r.priority, r.status, r.payload, r.created_at, r.updated_at
		FROM recommendations r
		JOIN insights i ON i.id = r.insight_id
		WHERE 1=1`
	args := []any{}
	argN := 0
	next := func(v any) string {
		argN++
		args = append(args, v)
		return fmt.Sprintf("$%d", argN)
	}

	if f.Status != "" {
		query += " AND r.status = " + next(f.Status)
	}
	if f.Severity != "" {
		query += " AND i.severity = " + next(f.Severity)
	}
	if f.Type != "" {
		query += " AND r.type = " + next(f.Type)
	}
	if f.Cursor != "" {
		query += " AND r.id < " + next(f.Cursor)
	}
	query += fmt.Sprintf(" ORDER BY r.priority DESC, r.created_at DESC LIMIT %s", next(limit))

	var rows []types.RecommendationRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list worklist recommendations: %w", err)
	}
	return rows, nil
}

// GetByID fetches a single recommendation row.
func (r *RecommendationRepository) GetByID(ctx context.Context, id string) (*types.RecommendationRow, error) {
	var row types.RecommendationRow
	const q = `SELECT id, insight_id, type, priority, status, payload, created_at, updated_at FROM recommendations WHERE id = $1`
	if err := r.db.GetContext(ctx, &row, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get recommendation: %w", err)
	}
	return &row, nil
}

// RuleDraftRepository persists the optional, at-most-one-per-investigation
// draft detection rule.
type RuleDraftRepository struct {
	db *database.Client
}

// NewRuleDraftRepository builds a repository bound to db.
func NewRuleDraftRepository(db *database.Client) *RuleDraftRepository {
	return &RuleDraftRepository{db: db}
}

// Create persists a rule draft for investigationID, PENDING by default.
func (r *RuleDraftRepository) Create(ctx context.Context, investigationID string, payload types.RuleDraftPayload) (*types.RuleDraftRow, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal rule draft payload: %w", err)
	}
	row := types.RuleDraftRow{
		ID:              uuid.NewString(),
		InvestigationID: investigationID,
		Payload:         raw,
		Status:          types.RuleDraftPending,
	}
	const q = `INSERT INTO rule_drafts (id, investigation_id, payload, status, created_at, updated_at) VALUES ($1, $2, $3, $4, now(), now()) RETURNING created_at, updated_at`
	if err := r.db.QueryRowContext(ctx, q, row.ID, row.InvestigationID, row.Payload, row.Status).
		Scan(&row.CreatedAt, &row.UpdatedAt); err != nil {
		return nil, fmt.Errorf("insert rule draft: %w", err)
	}
	return &row, nil
}

// GetByInvestigation fetches the rule draft for one investigation, if any.
func (r *RuleDraftRepository) GetByInvestigation(ctx context.Context, investigationID string) (*types.RuleDraftRow, error) {
	var row types.RuleDraftRow
	const q = `SELECT id, investigation_id, payload, status, created_at, updated_at FROM rule_drafts WHERE investigation_id = $1`
	if err := r.db.GetContext(ctx, &row, q, investigationID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get rule draft: %w", err)
	}
	return &row, nil
}

// MarkExported transitions a rule draft PENDING -> EXPORTED. The Rule
// Management service is out of scope; this only records that our side
// handed the draft off.
func (r *RuleDraftRepository) MarkExported(ctx context.Context, id string) error {
	const q = `UPDATE rule_drafts SET status = $2, updated_at = now() WHERE id = $1 AND status = $3`
	res, err := r.db.ExecContext(ctx, q, id, types.RuleDraftExported, types.RuleDraftPending)
	if err != nil {
		return fmt.Errorf("mark rule draft exported: %w", err)
	}
	return checkRowsAffected(res)
}

// AuditLogRepository appends entries to the immutable audit trail.
type AuditLogRepository struct {
	db *database.Client
}

// NewAuditLogRepository builds a repository bound to db.
func NewAuditLogRepository(db *database.Client) *AuditLogRepository {
	return &AuditLogRepository{db: db}
}

// Append writes one audit entry. Audit writes are themselves best-effort:
// a failure here is logged, never escalated to fail the caller's operation.
func (r *AuditLogRepository) Append(ctx context.Context, entityType, entityID, action, performedBy string, newValue any) error {
	var raw []byte
	if newValue != nil {
		var err error
		raw, err = json.Marshal(newValue)
		if err != nil {
			return fmt.Errorf("marshal audit new_value: %w", err)
		}
	}
	const q = `INSERT INTO audit_log (id, entity_type, entity_id, action, performed_by, new_value, created_at) VALUES ($1, $2, $3, $4, $5, $6, now())`
	_, err := r.db.ExecContext(ctx, q, uuid.NewString(), entityType, entityID, action, performedBy, raw)
	if err != nil {
		return fmt.Errorf("append audit log: %w", err)
	}
	return nil
}
