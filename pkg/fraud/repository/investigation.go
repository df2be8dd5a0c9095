// Package repository is the persistence layer for the investigation
// runtime: thin, transaction-aware wrappers around pgx/sqlx for each durable
// entity, in place of a generated ORM client (see DESIGN.md for why
// entgo.io/ent was dropped).
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

// ErrNotFound is returned by single-row lookups that match no rows. Callers
// at the service boundary translate it into apierr.KindNotFound.
var ErrNotFound = errors.New("repository: not found")

// InvestigationRepository persists Investigation lifecycle rows.
type InvestigationRepository struct {
	db *database.Client
}

// NewInvestigationRepository builds a repository bound to db.
func NewInvestigationRepository(db *database.Client) *InvestigationRepository {
	return &InvestigationRepository{db: db}
}

// Create inserts a new investigation row and returns its generated ID.
// idempotency_key has a unique index; a duplicate key surfaces as
// apierr.KindConflict carrying the existing investigation_id.
func (r *InvestigationRepository) Create(ctx context.Context, inv *types.Investigation) error {
	inv.InvestigationID = uuid.NewString()

	const q = `
		INSERT INTO investigations (id, transaction_id, mode, status, severity, final_confidence, step_count, max_steps, started_at, planner_model, case_id, idempotency_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := r.db.ExecContext(ctx, q,
		inv.InvestigationID, inv.TransactionID, inv.Mode, inv.Status, inv.Severity,
		inv.FinalConfidence, inv.StepCount, inv.MaxSteps, inv.StartedAt, inv.PlannerModel, inv.CaseID, inv.IdempotencyKey)
	if err != nil {
		if existing, ok := r.findByIdempotencyKeyOnConflict(ctx, err, inv.IdempotencyKey); ok {
			return apierr.Conflict("an investigation for this transaction and mode already exists",
				map[string]any{"investigation_id": existing})
		}
		return fmt.Errorf("insert investigation: %w", err)
	}
	return nil
}

// findByIdempotencyKeyOnConflict checks whether err is a unique-violation on
// idempotency_key and, if so, looks up the conflicting row's id.
func (r *InvestigationRepository) findByIdempotencyKeyOnConflict(ctx context.Context, err error, key string) (string, bool) {
	if !isUniqueViolation(err) {
		return "", false
	}
	var id string
	if qerr := r.db.GetContext(ctx, &id, `SELECT id FROM investigations WHERE idempotency_key = $1`, key); qerr != nil {
		return "", false
	}
	return id, true
}

// GetByID fetches a single investigation by its ID.
func (r *InvestigationRepository) GetByID(ctx context.Context, id string) (*types.Investigation, error) {
	var inv types.Investigation
	const q = `SELECT id AS investigation_id, transaction_id, mode, status, severity, final_confidence, step_count, max_steps, started_at, completed_at, planner_model, case_id, idempotency_key FROM investigations WHERE id = $1`
	if err := r.db.GetContext(ctx, &inv, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get investigation: %w", err)
	}
	return &inv, nil
}

// FindInProgress looks up an IN_PROGRESS investigation for transactionID, if
// any, used to reject a second concurrent run for the same transaction.
func (r *InvestigationRepository) FindInProgress(ctx context.Context, transactionID string) (*types.Investigation, error) {
	var inv types.Investigation
	const q = `SELECT id AS investigation_id, transaction_id, mode, status, severity, final_confidence, step_count, max_steps, started_at, completed_at, planner_model, case_id, idempotency_key FROM investigations WHERE transaction_id = $1 AND status = $2 LIMIT 1`
	if err := r.db.GetContext(ctx, &inv, q, transactionID, types.StatusInProgress); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find in-progress investigation: %w", err)
	}
	return &inv, nil
}

// GetByIdempotencyKey looks up an existing investigation for a
// (transaction_id, mode) pair, used to detect duplicate run requests.
func (r *InvestigationRepository) GetByIdempotencyKey(ctx context.Context, key string) (*types.Investigation, error) {
	var inv types.Investigation
	const q = `SELECT id AS investigation_id, transaction_id, mode, status, severity, final_confidence, step_count, max_steps, started_at, completed_at, planner_model, case_id, idempotency_key FROM investigations WHERE idempotency_key = $1`
	if err := r.db.GetContext(ctx, &inv, q, key); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get investigation by idempotency key: %w", err)
	}
	return &inv, nil
}

// UpdateProgress persists the in-flight step count, status, and severity.
// This is the "investigation row update must succeed" write the completion
// node treats as non-optional; every other downstream write is best-effort.
func (r *InvestigationRepository) UpdateProgress(ctx context.Context, id string, stepCount int, status types.Status, severity types.Severity, confidence float64) error {
	const q = `UPDATE investigations SET step_count = $2, status = $3, severity = $4, final_confidence = $5 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, q, id, stepCount, status, severity, confidence)
	if err != nil {
		return fmt.Errorf("update investigation progress: %w", err)
	}
	return checkRowsAffected(res)
}

// Complete marks an investigation terminal (COMPLETED, FAILED, or TIMED_OUT).
func (r *InvestigationRepository) Complete(ctx context.Context, id string, status types.Status, severity types.Severity, confidence float64, completedAt sql.NullTime) error {
	const q = `UPDATE investigations SET status = $2, severity = $3, final_confidence = $4, completed_at = $5 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, q, id, status, severity, confidence, completedAt)
	if err != nil {
		return fmt.Errorf("complete investigation: %w", err)
	}
	return checkRowsAffected(res)
}

// ListFilters narrows the investigation worklist.
type ListFilters struct {
	Status   types.Status
	Severity types.Severity
	Limit    int
	// Cursor is the investigation_id to resume listing after (keyset pagination).
	Cursor string
}

// List returns investigations ordered by started_at desc, id desc, with
// keyset pagination via Cursor to avoid OFFSET drift under concurrent writes.
func (r *InvestigationRepository) List(ctx context.Context, f ListFilters) ([]types.Investigation, error) {
	limit := f.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	query := `SELECT id AS investigation_id, transaction_id, mode, status, severity, final_confidence, step_count, max_steps, started_at, completed_at, planner_model, case_id, idempotency_key FROM investigations WHERE 1=1`
	args := []any{}
	argN := 0
	next := func(v any) string {
		argN++
		args = append(args, v)
		return fmt.Sprintf("$%d", argN)
	}

	if f.Status != "" {
		query += " AND status = " + next(f.Status)
	}
	if f.Severity != "" {
		query += " AND severity = " + next(f.Severity)
	}
	if f.Cursor != "" {
		query += " AND id < " + next(f.Cursor)
	}
	query += fmt.Sprintf(" ORDER BY started_at DESC, id DESC LIMIT %s", next(limit))

	var rows []types.Investigation
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list investigations: %w", err)
	}
	return rows, nil
}

// StateStore persists the versioned JSONB working-memory snapshot.
type StateStore struct {
	db *database.Client
}

// NewStateStore builds a StateStore bound to db.
func NewStateStore(db *database.Client) *StateStore {
	return &StateStore{db: db}
}

// Save atomically upserts the state snapshot, strictly incrementing version
// on conflict. This is the sole write path the graph runtime uses between
// steps, making resume-from-snapshot safe even if the process crashes
// mid-investigation.
func (s *StateStore) Save(ctx context.Context, investigationID string, state *types.InvestigationState) (int, error) {
	payload, err := json.Marshal(state)
	if err != nil {
		return 0, fmt.Errorf("marshal investigation state: %w", err)
	}

	const q = `
		INSERT INTO investigation_state (investigation_id, state, version)
		VALUES ($1, $2, 1)
		ON CONFLICT (investigation_id) DO UPDATE
			SET state = EXCLUDED.state,
			    version = investigation_state.version + 1,
			    updated_at = now()
		RETURNING version`

	var version int
	if err := s.db.GetContext(ctx, &version, q, investigationID, payload); err != nil {
		return 0, fmt.Errorf("upsert investigation state: %w", err)
	}
	return version, nil
}

// Load fetches the latest snapshot for resume.
func (s *StateStore) Load(ctx context.Context, investigationID string) (*types.InvestigationState, int, error) {
	var row types.InvestigationStateSnapshot
	const q = `SELECT investigation_id, state, version, created_at, updated_at FROM investigation_state WHERE investigation_id = $1`
	if err := s.db.GetContext(ctx, &row, q, investigationID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, 0, ErrNotFound
		}
		return nil, 0, fmt.Errorf("load investigation state: %w", err)
	}

	var state types.InvestigationState
	if err := json.Unmarshal(row.State, &state); err != nil {
		return nil, 0, fmt.Errorf("unmarshal investigation state: %w", err)
	}
	return &state, row.Version, nil
}

func checkRowsAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// isUniqueViolation reports whether err is a Postgres unique_violation
// (SQLSTATE 23505), recognized by pgx's wrapped error.
func isUniqueViolation(err error) bool {
	type sqlStater interface{ SQLState() string }
	var pgErr sqlStater
	if errors.As(err, &pgErr) {
		return pgErr.SQLState() == "23505"
	}
	return false
}
