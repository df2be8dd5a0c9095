package tools

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/ops-agent/fraud-investigator/pkg/fraud/config"
	"github.com/ops-agent/fraud-investigator/pkg/fraud/embedding"
	"github.com/ops-agent/fraud-investigator/pkg/fraud/repository"
	"github.com/ops-agent/fraud-investigator/pkg/fraud/types"
)

// NearestNeighborSearcher is the subset of repository.SimilarityRepository
// the tool depends on.
type NearestNeighborSearcher interface {
	SearchNearest(ctx context.Context, cardID string, vector []float32, excludeTransactionID string, windowDays, limit int) ([]repository.EmbeddingMatch, error)
}

// SimilarityTool finds prior transactions on the same card whose embedding
// is nearest to the investigated transaction's, weighting each match by
// recency. When vector search is disabled by feature flag, it records a
// skipped result rather than failing the investigation.
type SimilarityTool struct {
	embedder embedding.Client
	searcher NearestNeighborSearcher
	cfg      config.VectorConfig
}

// NewSimilarityTool builds a SimilarityTool bound to its collaborators.
func NewSimilarityTool(embedder embedding.Client, searcher NearestNeighborSearcher, cfg config.VectorConfig) *SimilarityTool {
	return &SimilarityTool{embedder: embedder, searcher: searcher, cfg: cfg}
}

// Name implements Tool.
func (t *SimilarityTool) Name() string { return types.ToolSimilarity }

// Description implements Tool.
func (t *SimilarityTool) Description() string {
	return "Finds prior transactions on the same card with similar characteristics using vector similarity search, weighted by recency."
}

// Execute implements Tool.
func (t *SimilarityTool) Execute(ctx context.Context, state *types.InvestigationState) (*types.InvestigationState, error) {
	if state.Context.IsEmpty() {
		return nil, fmt.Errorf("similarity_tool: requires context_tool to have run first")
	}

	next := state.Clone()

	if !state.FeatureFlags.VectorEnabled {
		next.SimilarityResults = &types.SimilarityResults{Skipped: true}
		return next, nil
	}

	summary := transactionSummary(state.Context.Transaction)
	vector, err := t.embedder.Embed(ctx, summary)
	if err != nil {
		return nil, fmt.Errorf("similarity_tool: embed transaction: %w", err)
	}

	neighbors, err := t.searcher.SearchNearest(ctx, state.Context.Transaction.CardID, vector, state.TransactionID, t.cfg.TimeWindowDays, t.cfg.SearchLimit)
	if err != nil {
		return nil, fmt.Errorf("similarity_tool: search nearest: %w", err)
	}

	results := buildSimilarityResults(neighbors, state.Context.Transaction.Timestamp, t.cfg.MinSimilarity)

	next.SimilarityResults = results
	next.Evidence = append(next.Evidence, types.EvidenceEnvelope{
		Category: "similarity",
		Tool:     t.Name(),
		Data:     results,
		Created:  time.Now(),
	})
	return next, nil
}

// transactionSummary builds the free-text fed to the embedding model. Only
// non-sensitive attributes are included (no card ID, see promptguard for the
// LLM-prompt path — this is a separate, narrower surface going straight to
// an embedding endpoint rather than a chat completion).
func transactionSummary(txn types.Transaction) string {
	return fmt.Sprintf("merchant=%s mcc=%s amount_cents=%d currency=%s declined=%t hour=%d",
		txn.MerchantName, txn.MCC, txn.AmountCents, txn.Currency, txn.Declined, txn.Timestamp.UTC().Hour())
}

// buildSimilarityResults converts distance-ranked neighbors into
// similarity/age-weighted matches and an overall score.
func buildSimilarityResults(neighbors []repository.EmbeddingMatch, anchor time.Time, minSimilarity float64) *types.SimilarityResults {
	results := &types.SimilarityResults{}

	var weightedSum, weightTotal float64
	for _, n := range neighbors {
		similarity := 1 - n.CosineDistance
		if similarity < minSimilarity {
			continue
		}
		ageWeight := ageDecayWeight(anchor, n.OccurredAt)

		results.Matches = append(results.Matches, types.SimilarityMatch{
			TransactionID: n.TransactionID,
			Similarity:    similarity,
			AgeWeight:     ageWeight,
			OccurredAt:    n.OccurredAt,
			Outcome:       n.Outcome,
		})

		weighted := similarity * ageWeight
		weightedSum += weighted
		weightTotal += ageWeight
	}

	if weightTotal > 0 {
		results.OverallScore = weightedSum / weightTotal
	}
	return results
}

// ageDecayWeight halves a match's influence every 30 days of age relative to
// the anchor transaction.
func ageDecayWeight(anchor, occurredAt time.Time) float64 {
	ageDays := anchor.Sub(occurredAt).Hours() / 24
	if ageDays < 0 {
		ageDays = 0
	}
	const halfLifeDays = 30.0
	return math.Pow(0.5, ageDays/halfLifeDays)
}
