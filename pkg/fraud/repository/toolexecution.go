package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/ops-agent/fraud-investigator/pkg/fraud/database"
	"github.com/ops-agent/fraud-investigator/pkg/fraud/types"
)

// ToolExecutionRepository persists the append-only tool execution audit log.
type ToolExecutionRepository struct {
	db *database.Client
}

// NewToolExecutionRepository builds a repository bound to db.
func NewToolExecutionRepository(db *database.Client) *ToolExecutionRepository {
	return &ToolExecutionRepository{db: db}
}

// Append records one tool execution. Failures here are logged as
// DependencyFailure audit entries by the completion node rather than
// aborting the investigation.
func (r *ToolExecutionRepository) Append(ctx context.Context, investigationID string, exec types.ToolExecution) error {
	const q = `
		INSERT INTO tool_execution_log (id, investigation_id, tool_name, step_number, status, input_summary, output_summary, execution_time_ms, error_message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := r.db.ExecContext(ctx, q,
		uuid.NewString(), investigationID, exec.ToolName, exec.StepNumber, exec.Status,
		exec.InputSummary, exec.OutputSummary, exec.ExecutionTimeMs, exec.ErrorMessage, exec.Timestamp)
	if err != nil {
		return fmt.Errorf("append tool execution log: %w", err)
	}
	return nil
}

// CreateAll batch-inserts the full tool execution log gathered during a run,
// in one logical completion step. The log is append-only: unlike
// evidence/recommendations it is never cleared before insert, since a given
// investigation_id only reaches completion once per run and Resume appends
// new step numbers rather than replaying old ones.
func (r *ToolExecutionRepository) CreateAll(ctx context.Context, investigationID string, execs []types.ToolExecution) error {
	for _, exec := range execs {
		if err := r.Append(ctx, investigationID, exec); err != nil {
			return fmt.Errorf("batch insert tool execution log: %w", err)
		}
	}
	return nil
}

// ListByInvestigation returns the ordered execution log for one investigation.
func (r *ToolExecutionRepository) ListByInvestigation(ctx context.Context, investigationID string) ([]types.ToolExecutionLogRow, error) {
	var rows []types.ToolExecutionLogRow
	const q = `SELECT id, investigation_id, tool_name, step_number, status, input_summary, output_summary, execution_time_ms, error_message, created_at FROM tool_execution_log WHERE investigation_id = $1 ORDER BY step_number ASC`
	if err := r.db.SelectContext(ctx, &rows, q, investigationID); err != nil {
		return nil, fmt.Errorf("list tool execution log: %w", err)
	}
	return rows, nil
}
