package providers

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"regexp"
	"strings"

	"scholarag/internal/models"
)

// MockProvider backs tests and DB-less development with deterministic
// search results, embeddings and answers.
type MockProvider struct {
	dim int
}

var mockVenues = []string{"NeurIPS", "ICML", "ACL", "ICLR", "EMNLP"}

func NewMockProvider(dim int) *MockProvider {
	if dim <= 0 {
		dim = 1536
	}
	return &MockProvider{dim: dim}
}

func (m *MockProvider) SearchPapers(ctx context.Context, req SearchRequest) ([]models.Paper, ProviderInfo, error) {
	_ = ctx
	info := ProviderInfo{Name: "mock", Model: "mock-search-v1", Key: "mock"}
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, info, nil
	}
	limit := req.Limit
	if limit <= 0 {
		limit = 3
	}
	if limit > 5 {
		limit = 5
	}

	digest := sha256.Sum256([]byte(strings.ToLower(query)))
	tag := hex.EncodeToString(digest[:4])
	papers := make([]models.Paper, 0, limit)
	for i := 0; i < limit; i++ {
		year := 2018 + int(digest[i]%8)
		papers = append(papers, models.Paper{
			PaperID: fmt.Sprintf("mock-%s-%d", tag, i+1),
			Title:   fmt.Sprintf("On %s: Perspective %d", query, i+1),
			Abstract: fmt.Sprintf(
				"This paper examines %s through a systematic evaluation across standard benchmarks. "+
					"We review prior approaches to %s, identify their shared limitations, and propose a framework "+
					"that addresses them. Study %d reports consistent improvements and discusses implications for "+
					"future work on %s, including open problems the community has yet to resolve.",
				query, query, i+1, query),
			URL:    fmt.Sprintf("https://example.org/paper/mock-%s-%d", tag, i+1),
			Year:   &year,
			Venue:  mockVenues[int(digest[i+8])%len(mockVenues)],
			Source: "mock",
			Authors: []string{
				fmt.Sprintf("Author %c. Mockett", 'A'+digest[i+16]%26),
			},
		})
	}
	return papers, info, nil
}

func (m *MockProvider) Embed(ctx context.Context, req EmbedRequest) ([][]float32, ProviderInfo, error) {
	_ = ctx
	dim := req.Dimension
	if dim <= 0 {
		dim = m.dim
	}
	vectors := make([][]float32, 0, len(req.Inputs))
	for _, input := range req.Inputs {
		vectors = append(vectors, deterministicVector(input, dim))
	}
	return vectors, ProviderInfo{Name: "mock", Model: fmt.Sprintf("mock-embed-%d", dim), Key: "mock"}, nil
}

// Source headers put their token at the start of a line. Tokens quoted
// mid-line, like the citation examples in the prompt rules, are not offers.
var refTokenPattern = regexp.MustCompile(`(?m)^\[C\d+\]`)

func (m *MockProvider) Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, ProviderInfo, error) {
	_ = ctx
	info := ProviderInfo{Name: "mock", Model: "mock-llm-v1", Key: "mock"}

	refs := make([]string, 0, 2)
	seen := map[string]bool{}
	for _, tok := range refTokenPattern.FindAllString(req.Prompt, -1) {
		if seen[tok] {
			continue
		}
		seen[tok] = true
		refs = append(refs, tok)
		if len(refs) == 2 {
			break
		}
	}
	if len(refs) == 0 {
		return GenerateResponse{Text: "I could not find a definitive answer in the provided sources."}, info, nil
	}

	var sb strings.Builder
	sb.WriteString("The provided sources give a direct account of the topic ")
	sb.WriteString(refs[0])
	sb.WriteString(". They define its core mechanism and summarize the evidence reported across the retrieved papers")
	if len(refs) > 1 {
		sb.WriteString(", with complementary results in a second source ")
		sb.WriteString(refs[1])
	}
	sb.WriteString(". Overall the sources agree on the key concepts and their practical implications ")
	sb.WriteString(refs[0])
	sb.WriteString(".")
	return GenerateResponse{Text: sb.String()}, info, nil
}

func deterministicVector(input string, dim int) []float32 {
	vec := make([]float32, dim)
	seed := []byte(input)
	if len(seed) == 0 {
		seed = []byte("empty")
	}
	for i := 0; i < dim; i++ {
		h := sha256.Sum256(append(seed, byte(i%251)))
		u := binary.BigEndian.Uint32(h[:4])
		vec[i] = float32(u%2000)/1000.0 - 1.0
	}
	return normalize(vec)
}

func normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	inv := float32(1.0 / math.Sqrt(sum))
	for i := range v {
		v[i] *= inv
	}
	return v
}
