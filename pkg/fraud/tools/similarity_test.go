package tools

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ops-agent/fraud-investigator/pkg/fraud/config"
	"github.com/ops-agent/fraud-investigator/pkg/fraud/repository"
	"github.com/ops-agent/fraud-investigator/pkg/fraud/types"
)

type fakeEmbedder struct {
	vector []float32
	err    error
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.vector, nil
}

type fakeSearcher struct {
	matches []repository.EmbeddingMatch
	err     error
}

func (f *fakeSearcher) SearchNearest(ctx context.Context, cardID string, vector []float32, excludeTransactionID string, windowDays, limit int) ([]repository.EmbeddingMatch, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.matches, nil
}

func TestSimilarityTool_RequiresContext(t *testing.T) {
	tool := NewSimilarityTool(&fakeEmbedder{}, &fakeSearcher{}, config.VectorConfig{})
	_, err := tool.Execute(context.Background(), &types.InvestigationState{})
	require.Error(t, err)
}

func TestSimilarityTool_SkipsWhenVectorDisabled(t *testing.T) {
	tool := NewSimilarityTool(&fakeEmbedder{}, &fakeSearcher{}, config.VectorConfig{})
	state := &types.InvestigationState{
		Context:      &types.TransactionContext{Transaction: types.Transaction{TransactionID: "txn-1"}},
		FeatureFlags: types.FeatureFlags{VectorEnabled: false},
	}

	next, err := tool.Execute(context.Background(), state)
	require.NoError(t, err)

	require.NotNil(t, next.SimilarityResults)
	assert.True(t, next.SimilarityResults.Skipped)
	assert.Empty(t, next.Evidence)
}

func TestSimilarityTool_BuildsWeightedMatches(t *testing.T) {
	anchor := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	searcher := &fakeSearcher{matches: []repository.EmbeddingMatch{
		{TransactionID: "txn-old", CosineDistance: 0.1, OccurredAt: anchor.AddDate(0, 0, -30), Outcome: "confirmed_fraud"},
		{TransactionID: "txn-recent", CosineDistance: 0.2, OccurredAt: anchor.AddDate(0, 0, -1), Outcome: "legitimate"},
		{TransactionID: "txn-far", CosineDistance: 0.95, OccurredAt: anchor.AddDate(0, 0, -2)}, // below min similarity, excluded
	}}
	tool := NewSimilarityTool(&fakeEmbedder{vector: []float32{0.1, 0.2}}, searcher, config.VectorConfig{MinSimilarity: 0.3, SearchLimit: 20, TimeWindowDays: 90})

	state := &types.InvestigationState{
		TransactionID: "txn-new",
		Context: &types.TransactionContext{
			Transaction: types.Transaction{TransactionID: "txn-new", CardID: "card-1", Timestamp: anchor},
		},
		FeatureFlags: types.FeatureFlags{VectorEnabled: true},
	}

	next, err := tool.Execute(context.Background(), state)
	require.NoError(t, err)

	require.NotNil(t, next.SimilarityResults)
	assert.False(t, next.SimilarityResults.Skipped)
	require.Len(t, next.SimilarityResults.Matches, 2)
	assert.Greater(t, next.SimilarityResults.OverallScore, 0.0)

	// The 1-day-old match should carry a higher age weight than the 30-day-old one.
	var oldWeight, recentWeight float64
	for _, m := range next.SimilarityResults.Matches {
		switch m.TransactionID {
		case "txn-old":
			oldWeight = m.AgeWeight
		case "txn-recent":
			recentWeight = m.AgeWeight
		}
	}
	assert.Greater(t, recentWeight, oldWeight)
	require.Len(t, next.Evidence, 1)
	assert.Equal(t, "similarity", next.Evidence[0].Category)
}

func TestSimilarityTool_EmbedError(t *testing.T) {
	tool := NewSimilarityTool(&fakeEmbedder{err: errors.New("embedding provider down")}, &fakeSearcher{}, config.VectorConfig{})
	state := &types.InvestigationState{
		Context:      &types.TransactionContext{Transaction: types.Transaction{TransactionID: "txn-1"}},
		FeatureFlags: types.FeatureFlags{VectorEnabled: true},
	}

	_, err := tool.Execute(context.Background(), state)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "embed transaction")
}

func TestSimilarityTool_SearchError(t *testing.T) {
	tool := NewSimilarityTool(&fakeEmbedder{vector: []float32{0.1}}, &fakeSearcher{err: errors.New("pgvector timeout")}, config.VectorConfig{})
	state := &types.InvestigationState{
		Context:      &types.TransactionContext{Transaction: types.Transaction{TransactionID: "txn-1"}},
		FeatureFlags: types.FeatureFlags{VectorEnabled: true},
	}

	_, err := tool.Execute(context.Background(), state)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "search nearest")
}
