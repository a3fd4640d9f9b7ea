package providers

import (
	"context"

	"scholarag/internal/models"
)

// ProviderInfo identifies which provider, model and key alias served a
// call, for audit rows and logs.
type ProviderInfo struct {
	Name  string `json:"name"`
	Model string `json:"model"`
	Key   string `json:"key"`
}

type SearchRequest struct {
	Query string
	Limit int
}

type EmbedRequest struct {
	Operation string
	Inputs    []string
	Dimension int
}

type GenerateRequest struct {
	Operation   string
	Prompt      string
	Temperature float64
}

type GenerateResponse struct {
	Text string `json:"text"`
}

// PaperSearchProvider returns candidate papers for a refined query,
// ordered by the collaborator's own relevance ranking.
type PaperSearchProvider interface {
	SearchPapers(ctx context.Context, req SearchRequest) ([]models.Paper, ProviderInfo, error)
}

// EmbeddingProvider returns one fixed-dimension vector per input,
// preserving input order.
type EmbeddingProvider interface {
	Embed(ctx context.Context, req EmbedRequest) ([][]float32, ProviderInfo, error)
}

type LLMProvider interface {
	Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, ProviderInfo, error)
}
