package tools

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ops-agent/fraud-investigator/pkg/fraud/config"
	"github.com/ops-agent/fraud-investigator/pkg/fraud/types"
)

func testScoringConfig() config.ScoringConfig {
	return config.ScoringConfig{
		VelocityThreshold1h: 5,
		VelocityThreshold6h: 12,
		DeclineRatioHigh:    0.5,
		DeclineRatioMedium:  0.25,
		AmountHighCents:     100000,
		AmountElevatedCents: 50000,
		ZScoreOutlier:       3.0,
		ZScoreWarning:       2.0,
		UnusualHours:        map[int]bool{0: true, 1: true, 2: true, 3: true, 4: true, 5: true},
		RoundNumbers:        map[int64]bool{5000: true, 10000: true},
	}
}

func TestPatternTool_RequiresContext(t *testing.T) {
	tool := NewPatternTool(testScoringConfig())
	state := &types.InvestigationState{}

	_, err := tool.Execute(context.Background(), state)
	require.Error(t, err)
}

// TestPatternTool_VelocityBurst verifies that 12 transactions on one card
// within an hour surface "velocity" and push the overall score into at
// least the medium range.
func TestPatternTool_VelocityBurst(t *testing.T) {
	tool := NewPatternTool(testScoringConfig())

	base := time.Date(2026, 7, 30, 14, 0, 0, 0, time.UTC)
	state := &types.InvestigationState{
		Context: &types.TransactionContext{
			Transaction: types.Transaction{TransactionID: "txn-12", AmountCents: 2500, Timestamp: base.Add(55 * time.Minute)},
			Window1h:    types.WindowStats{Count: 12},
			Window6h:    types.WindowStats{Count: 12},
			Window24h:   types.WindowStats{Count: 12, UniqueMerchants: 1},
		},
	}

	next, err := tool.Execute(context.Background(), state)
	require.NoError(t, err)

	assert.Contains(t, next.PatternResults.PatternsDetected, "velocity")
	assert.GreaterOrEqual(t, next.PatternResults.OverallScore, 0.4)
	require.Len(t, next.Evidence, 1)
	assert.Equal(t, "pattern", next.Evidence[0].Category)
	assert.Equal(t, types.ToolPattern, next.Evidence[0].Tool)
}

// TestPatternTool_CrossMerchantSpread verifies a burst of transactions
// across many distinct merchants surfaces "cross_merchant".
func TestPatternTool_CrossMerchantSpread(t *testing.T) {
	tool := NewPatternTool(testScoringConfig())

	state := &types.InvestigationState{
		Context: &types.TransactionContext{
			Transaction: types.Transaction{TransactionID: "txn-11", AmountCents: 3000, Timestamp: time.Date(2026, 7, 30, 14, 0, 0, 0, time.UTC)},
			Window1h:    types.WindowStats{Count: 1},
			Window6h:    types.WindowStats{Count: 3},
			Window24h:   types.WindowStats{Count: 11, UniqueMerchants: 11},
		},
	}

	next, err := tool.Execute(context.Background(), state)
	require.NoError(t, err)

	assert.Contains(t, next.PatternResults.PatternsDetected, "cross_merchant")
	assert.GreaterOrEqual(t, next.PatternResults.OverallScore, 0.4)
}

// TestPatternTool_LegitimateTransactionScoresLow verifies a single ordinary
// transaction with no history does not trip any pattern.
func TestPatternTool_LegitimateTransactionScoresLow(t *testing.T) {
	tool := NewPatternTool(testScoringConfig())

	state := &types.InvestigationState{
		Context: &types.TransactionContext{
			Transaction: types.Transaction{TransactionID: "txn-1", AmountCents: 5000, Timestamp: time.Date(2026, 7, 30, 14, 0, 0, 0, time.UTC)},
			Window1h:    types.WindowStats{Count: 1},
			Window6h:    types.WindowStats{Count: 1},
			Window24h:   types.WindowStats{Count: 1, UniqueMerchants: 1},
		},
	}

	next, err := tool.Execute(context.Background(), state)
	require.NoError(t, err)

	assert.Empty(t, next.PatternResults.PatternsDetected)
	assert.Less(t, next.PatternResults.OverallScore, 0.3)
}

func TestPatternTool_CardTesting_ConsecutiveSmallDeclines(t *testing.T) {
	tool := NewPatternTool(testScoringConfig())

	history := []types.Transaction{
		{AmountCents: 100, Declined: true, Timestamp: time.Date(2026, 7, 30, 13, 0, 0, 0, time.UTC)},
		{AmountCents: 200, Declined: true, Timestamp: time.Date(2026, 7, 30, 13, 1, 0, 0, time.UTC)},
		{AmountCents: 150, Declined: true, Timestamp: time.Date(2026, 7, 30, 13, 2, 0, 0, time.UTC)},
		{AmountCents: 300, Declined: true, Timestamp: time.Date(2026, 7, 30, 13, 3, 0, 0, time.UTC)},
	}
	state := &types.InvestigationState{
		Context: &types.TransactionContext{
			Transaction: types.Transaction{TransactionID: "txn-5", AmountCents: 100, Timestamp: time.Date(2026, 7, 30, 13, 4, 0, 0, time.UTC)},
			CardHistory: history,
			Window24h:   types.WindowStats{Count: 4, DeclineCount: 4, UniqueMerchants: 1},
		},
	}

	next, err := tool.Execute(context.Background(), state)
	require.NoError(t, err)

	assert.Contains(t, next.PatternResults.PatternsDetected, "card_testing")
}
