package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimilarityRepository_UpsertAndSearchNearest(t *testing.T) {
	db := newTestClient(t)
	repo := NewSimilarityRepository(db)

	base := []float32{1, 0, 0, 0}
	near := []float32{0.98, 0.02, 0, 0}
	far := []float32{0, 0, 1, 0}

	require.NoError(t, repo.Upsert(context.Background(), "txn-sim-near", "card-sim-1", near, time.Now().Add(-24*time.Hour), "confirmed_fraud"))
	require.NoError(t, repo.Upsert(context.Background(), "txn-sim-far", "card-sim-1", far, time.Now().Add(-24*time.Hour), "legitimate"))
	require.NoError(t, repo.Upsert(context.Background(), "txn-sim-other-card", "card-sim-2", near, time.Now().Add(-24*time.Hour), "confirmed_fraud"))
	require.NoError(t, repo.Upsert(context.Background(), "txn-sim-old", "card-sim-1", near, time.Now().Add(-400*24*time.Hour), "confirmed_fraud"))

	matches, err := repo.SearchNearest(context.Background(), "card-sim-1", base, "txn-sim-self", 90, 10)
	require.NoError(t, err)

	var ids []string
	for _, m := range matches {
		ids = append(ids, m.TransactionID)
	}
	assert.Contains(t, ids, "txn-sim-near")
	assert.Contains(t, ids, "txn-sim-far")
	assert.NotContains(t, ids, "txn-sim-other-card", "search must be scoped to the given card")
	assert.NotContains(t, ids, "txn-sim-old", "search must respect the lookback window")

	require.GreaterOrEqual(t, len(matches), 2)
	assert.Less(t, matches[0].CosineDistance, matches[len(matches)-1].CosineDistance, "nearest neighbor must sort ascending by distance")
}

func TestSimilarityRepository_UpsertReplacesEmbeddingOnConflict(t *testing.T) {
	db := newTestClient(t)
	repo := NewSimilarityRepository(db)

	v1 := []float32{1, 0, 0, 0}
	v2 := []float32{0, 1, 0, 0}

	require.NoError(t, repo.Upsert(context.Background(), "txn-sim-refresh", "card-sim-3", v1, time.Now(), "legitimate"))
	require.NoError(t, repo.Upsert(context.Background(), "txn-sim-refresh", "card-sim-3", v2, time.Now(), "confirmed_fraud"))

	matches, err := repo.SearchNearest(context.Background(), "card-sim-3", v2, "txn-sim-absent", 30, 5)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "confirmed_fraud", matches[0].Outcome)
	assert.InDelta(t, 0, matches[0].CosineDistance, 1e-6, "refreshed embedding must match itself exactly")
}

func TestSimilarityRepository_SearchNearest_ExcludesSelf(t *testing.T) {
	db := newTestClient(t)
	repo := NewSimilarityRepository(db)

	v := []float32{1, 1, 0, 0}
	require.NoError(t, repo.Upsert(context.Background(), "txn-sim-self", "card-sim-4", v, time.Now(), "legitimate"))

	matches, err := repo.SearchNearest(context.Background(), "card-sim-4", v, "txn-sim-self", 30, 5)
	require.NoError(t, err)
	assert.Empty(t, matches)
}
