package embedding

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
)

// LangchainClient adapts langchaingo's embeddings.Embedder to our Client
// interface, giving the similarity tool a provider-agnostic embedding path
// independent of which model backs the planner/reasoning LLM.
type LangchainClient struct {
	embedder embeddings.Embedder
}

// NewLangchainClient builds a Client backed by an OpenAI-compatible
// embeddings endpoint (baseURL may point at any OpenAI-protocol provider).
func NewLangchainClient(apiKey, baseURL, model string) (*LangchainClient, error) {
	llm, err := openai.New(
		openai.WithToken(apiKey),
		openai.WithBaseURL(baseURL),
		openai.WithEmbeddingModel(model),
	)
	if err != nil {
		return nil, fmt.Errorf("construct openai embedding backend: %w", err)
	}

	embedder, err := embeddings.NewEmbedder(llm)
	if err != nil {
		return nil, fmt.Errorf("construct embedder: %w", err)
	}

	return &LangchainClient{embedder: embedder}, nil
}

// Embed returns the embedding vector for text.
func (c *LangchainClient) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.embedder.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("embed document: %w", err)
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("embedder returned no vectors")
	}
	return vectors[0], nil
}
