// Package embedding is the collaborator adapter for the transaction
// embedding provider used by SimilarityTool's vector search. The provider
// itself is out of scope; this package defines the narrow interface and a
// langchaingo-backed implementation.
package embedding

import "context"

// Client embeds free-text transaction summaries into fixed-dimension
// vectors for cosine-distance nearest-neighbor search.
type Client interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
