package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ops-agent/fraud-investigator/pkg/fraud/types"
)

func TestToolExecutionRepository_AppendAndListByInvestigation_PreservesStepOrder(t *testing.T) {
	db := newTestClient(t)
	invID := insertTestInvestigation(t, db, "txn-exec-1")
	repo := NewToolExecutionRepository(db)

	execs := []types.ToolExecution{
		{ToolName: types.ToolPattern, StepNumber: 2, Status: types.ExecutionSuccess, OutputSummary: "patterns detected", ExecutionTimeMs: 40, Timestamp: time.Now()},
		{ToolName: types.ToolContext, StepNumber: 1, Status: types.ExecutionSuccess, OutputSummary: "context gathered", ExecutionTimeMs: 120, Timestamp: time.Now()},
		{ToolName: types.ToolReasoning, StepNumber: 3, Status: types.ExecutionFailed, ErrorMessage: "llm timeout", ExecutionTimeMs: 5000, Timestamp: time.Now()},
	}
	for _, exec := range execs {
		require.NoError(t, repo.Append(context.Background(), invID, exec))
	}

	rows, err := repo.ListByInvestigation(context.Background(), invID)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, types.ToolContext, rows[0].ToolName)
	assert.Equal(t, types.ToolPattern, rows[1].ToolName)
	assert.Equal(t, types.ToolReasoning, rows[2].ToolName)
	assert.Equal(t, "FAILED", rows[2].Status)
	assert.Equal(t, "llm timeout", rows[2].ErrorMessage)
}

func TestToolExecutionRepository_CreateAll_BatchInsertsFullLog(t *testing.T) {
	db := newTestClient(t)
	invID := insertTestInvestigation(t, db, "txn-exec-2")
	repo := NewToolExecutionRepository(db)

	execs := []types.ToolExecution{
		{ToolName: types.ToolContext, StepNumber: 1, Status: types.ExecutionSuccess, OutputSummary: "context gathered", ExecutionTimeMs: 80, Timestamp: time.Now()},
		{ToolName: types.ToolPattern, StepNumber: 2, Status: types.ExecutionSuccess, OutputSummary: "patterns detected", ExecutionTimeMs: 30, Timestamp: time.Now()},
		{ToolName: types.ToolRecommendation, StepNumber: 3, Status: types.ExecutionSuccess, OutputSummary: "recommendations built", ExecutionTimeMs: 10, Timestamp: time.Now()},
	}
	require.NoError(t, repo.CreateAll(context.Background(), invID, execs))

	rows, err := repo.ListByInvestigation(context.Background(), invID)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, types.ToolContext, rows[0].ToolName)
	assert.Equal(t, types.ToolRecommendation, rows[2].ToolName)
}

func TestToolExecutionRepository_ListByInvestigation_EmptyForUnknownInvestigation(t *testing.T) {
	db := newTestClient(t)
	repo := NewToolExecutionRepository(db)

	rows, err := repo.ListByInvestigation(context.Background(), "00000000-0000-0000-0000-000000000000")
	require.NoError(t, err)
	assert.Empty(t, rows)
}
