package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/pgvector/pgvector-go"

	"github.com/ops-agent/fraud-investigator/pkg/fraud/database"
)

// EmbeddingMatch is one nearest-neighbor row returned by the vector search.
type EmbeddingMatch struct {
	TransactionID string    `db:"transaction_id"`
	CosineDistance float64  `db:"cosine_distance"`
	OccurredAt    time.Time `db:"occurred_at"`
	Outcome       string    `db:"outcome"`
}

// SimilarityRepository performs pgvector cosine-distance nearest-neighbor
// search over the transaction_embeddings table, grounded on the vector
// search shape exercised by the pack's storage layer (ActionPattern /
// EffectivenessData freshness-weighted matches).
type SimilarityRepository struct {
	db *database.Client
}

// NewSimilarityRepository builds a repository bound to db.
func NewSimilarityRepository(db *database.Client) *SimilarityRepository {
	return &SimilarityRepository{db: db}
}

// Upsert stores (or refreshes) the embedding for one transaction.
func (r *SimilarityRepository) Upsert(ctx context.Context, transactionID, cardID string, embedding []float32, occurredAt time.Time, outcome string) error {
	const q = `
		INSERT INTO transaction_embeddings (transaction_id, card_id, embedding, occurred_at, outcome)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (transaction_id) DO UPDATE SET embedding = EXCLUDED.embedding, outcome = EXCLUDED.outcome`
	_, err := r.db.ExecContext(ctx, q, transactionID, cardID, pgvector.NewVector(embedding), occurredAt, outcome)
	if err != nil {
		return fmt.Errorf("upsert transaction embedding: %w", err)
	}
	return nil
}

// SearchNearest returns the limit nearest neighbors to embedding, restricted
// to the same card and a bounded lookback window, ordered by cosine
// distance ascending (closest first). excludeTransactionID omits the
// transaction under investigation from its own match set.
func (r *SimilarityRepository) SearchNearest(ctx context.Context, cardID string, embedding []float32, excludeTransactionID string, windowDays, limit int) ([]EmbeddingMatch, error) {
	const q = `
		SELECT transaction_id, (embedding <=> $1) AS cosine_distance, occurred_at, outcome
		FROM transaction_embeddings
		WHERE card_id = $2
		  AND transaction_id != $3
		  AND occurred_at >= now() - ($4 || ' days')::interval
		ORDER BY embedding <=> $1
		LIMIT $5`

	var rows []EmbeddingMatch
	if err := r.db.SelectContext(ctx, &rows, q, pgvector.NewVector(embedding), cardID, excludeTransactionID, windowDays, limit); err != nil {
		return nil, fmt.Errorf("vector similarity search: %w", err)
	}
	return rows, nil
}
