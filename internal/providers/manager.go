package providers

import (
	"fmt"
	"strings"

	"scholarag/internal/config"
)

type NamedSearchProvider struct {
	Ref      ProviderRef
	Provider PaperSearchProvider
}

type NamedEmbedProvider struct {
	Ref      ProviderRef
	Provider EmbeddingProvider
}

type NamedLLMProvider struct {
	Ref      ProviderRef
	Provider LLMProvider
}

// Manager builds the configured provider set once at startup and hands
// out collaborators in the order callers should try them.
type Manager struct {
	searchProviders []NamedSearchProvider
	embedProviders  []NamedEmbedProvider
	llmProviders    []NamedLLMProvider
}

func NewManager(cfg config.Config) (*Manager, error) {
	m := &Manager{}

	for _, ref := range ParseProviderList(cfg.SearchProviders) {
		p, err := buildSearchProvider(ref)
		if err != nil {
			return nil, err
		}
		m.searchProviders = append(m.searchProviders, NamedSearchProvider{Ref: ref, Provider: p})
	}
	for _, ref := range ParseProviderList(cfg.EmbedProviders) {
		p, err := buildModelProvider(ref, cfg.EmbedDim)
		if err != nil {
			return nil, err
		}
		embed, ok := p.(EmbeddingProvider)
		if !ok {
			return nil, fmt.Errorf("provider %s does not support embeddings", ref.Raw)
		}
		m.embedProviders = append(m.embedProviders, NamedEmbedProvider{Ref: ref, Provider: embed})
	}
	for _, ref := range ParseProviderList(cfg.LLMProviders) {
		p, err := buildModelProvider(ref, cfg.EmbedDim)
		if err != nil {
			return nil, err
		}
		llm, ok := p.(LLMProvider)
		if !ok {
			return nil, fmt.Errorf("provider %s does not support generation", ref.Raw)
		}
		m.llmProviders = append(m.llmProviders, NamedLLMProvider{Ref: ref, Provider: llm})
	}
	return m, nil
}

// SearchProvider returns the first configured retrieval collaborator.
func (m *Manager) SearchProvider() (PaperSearchProvider, ProviderRef) {
	if len(m.searchProviders) == 0 {
		return NewMockProvider(0), ProviderRef{Raw: "mock", Name: "mock"}
	}
	return m.searchProviders[0].Provider, m.searchProviders[0].Ref
}

// EmbedProvider returns the first configured embedding collaborator.
func (m *Manager) EmbedProvider() (EmbeddingProvider, ProviderRef) {
	if len(m.embedProviders) == 0 {
		return NewMockProvider(0), ProviderRef{Raw: "mock", Name: "mock"}
	}
	return m.embedProviders[0].Provider, m.embedProviders[0].Ref
}

// LLMOrder lists generation providers in the order callers should try
// them: configured order with mock moved last, so the deterministic
// fallback never shadows a live provider.
func (m *Manager) LLMOrder() []NamedLLMProvider {
	if len(m.llmProviders) == 0 {
		return []NamedLLMProvider{{Ref: ProviderRef{Raw: "mock", Name: "mock"}, Provider: NewMockProvider(0)}}
	}
	out := make([]NamedLLMProvider, 0, len(m.llmProviders))
	for _, p := range m.llmProviders {
		if strings.ToLower(p.Ref.Name) != "mock" {
			out = append(out, p)
		}
	}
	for _, p := range m.llmProviders {
		if strings.ToLower(p.Ref.Name) == "mock" {
			out = append(out, p)
		}
	}
	return out
}

func buildSearchProvider(ref ProviderRef) (PaperSearchProvider, error) {
	switch strings.ToLower(ref.Name) {
	case "mock":
		return NewMockProvider(0), nil
	case "semanticscholar":
		return NewSemanticScholarProvider(ref.KeyAlias), nil
	default:
		return nil, fmt.Errorf("unsupported search provider: %s", ref.Name)
	}
}

func buildModelProvider(ref ProviderRef, dim int) (any, error) {
	switch strings.ToLower(ref.Name) {
	case "mock":
		return NewMockProvider(dim), nil
	case "openai":
		return NewOpenAIProvider(ref.KeyAlias), nil
	case "gemini":
		return NewGeminiProvider(ref.KeyAlias), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", ref.Name)
	}
}
