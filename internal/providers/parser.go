package providers

import "strings"

// ProviderRef is one entry of a provider list string such as
// "semanticscholar|mock" or "openai:prod|gemini:research|mock".
type ProviderRef struct {
	Raw      string
	Name     string
	KeyAlias string
}

func ParseProviderList(raw string) []ProviderRef {
	out := make([]ProviderRef, 0, 4)
	for _, part := range strings.Split(raw, "|") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		ref := ProviderRef{Raw: part, Name: part}
		if name, alias, ok := strings.Cut(part, ":"); ok {
			ref.Name = strings.TrimSpace(name)
			ref.KeyAlias = strings.TrimSpace(alias)
		}
		out = append(out, ref)
	}
	if len(out) == 0 {
		out = append(out, ProviderRef{Raw: "mock", Name: "mock"})
	}
	return out
}
