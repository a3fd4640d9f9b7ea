package providers

import (
	"context"
	"math"
	"strings"
	"testing"
)

func TestMockEmbedDeterministicAndNormalized(t *testing.T) {
	m := NewMockProvider(64)
	a, _, err := m.Embed(context.Background(), EmbedRequest{Inputs: []string{"passage one", "passage two"}})
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	b, _, _ := m.Embed(context.Background(), EmbedRequest{Inputs: []string{"passage one", "passage two"}})
	if len(a) != 2 || len(a[0]) != 64 {
		t.Fatalf("unexpected shape: %d vectors of %d", len(a), len(a[0]))
	}
	for i := range a {
		for j := range a[i] {
			if a[i][j] != b[i][j] {
				t.Fatalf("vector %d not deterministic at %d", i, j)
			}
		}
	}
	var norm float64
	for _, x := range a[0] {
		norm += float64(x) * float64(x)
	}
	if math.Abs(math.Sqrt(norm)-1.0) > 1e-3 {
		t.Fatalf("vector not unit length: %f", math.Sqrt(norm))
	}
}

func TestMockSearchDeterministicFixtures(t *testing.T) {
	m := NewMockProvider(0)
	a, _, _ := m.SearchPapers(context.Background(), SearchRequest{Query: "transformer attention", Limit: 3})
	b, _, _ := m.SearchPapers(context.Background(), SearchRequest{Query: "transformer attention", Limit: 3})
	if len(a) != 3 {
		t.Fatalf("expected 3 papers, got %d", len(a))
	}
	for i := range a {
		if a[i].PaperID != b[i].PaperID || a[i].Title != b[i].Title {
			t.Fatalf("search results not deterministic at %d", i)
		}
		if a[i].Abstract == "" {
			t.Fatalf("mock paper %d has no abstract", i)
		}
	}
	other, _, _ := m.SearchPapers(context.Background(), SearchRequest{Query: "different topic", Limit: 3})
	if other[0].PaperID == a[0].PaperID {
		t.Fatal("different queries should yield different paper ids")
	}
}

func TestMockGenerateCitesPromptRefs(t *testing.T) {
	m := NewMockProvider(0)
	prompt := "Cite sources like [C7] after each claim.\nSOURCES:\n[C1] first passage\n[C2] second passage\n[C3] third passage\nQUESTION: q"
	resp, _, err := m.Generate(context.Background(), GenerateRequest{Operation: "ask", Prompt: prompt})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if !strings.Contains(resp.Text, "[C1]") {
		t.Fatalf("answer does not cite [C1]: %q", resp.Text)
	}
	if !strings.Contains(resp.Text, "[C2]") {
		t.Fatalf("answer does not cite [C2]: %q", resp.Text)
	}
	if strings.Contains(resp.Text, "[C7]") {
		t.Fatalf("mid-line example token should not be cited: %q", resp.Text)
	}
}

func TestMockGenerateWithoutRefsAdmitsIt(t *testing.T) {
	m := NewMockProvider(0)
	resp, _, err := m.Generate(context.Background(), GenerateRequest{Operation: "ask", Prompt: "no sources here"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if !strings.Contains(resp.Text, "could not find a definitive answer") {
		t.Fatalf("expected the no-sources sentence, got %q", resp.Text)
	}
}
