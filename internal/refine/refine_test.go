package refine

import (
	"strings"
	"testing"
)

func TestRefineDropsStopwordsKeepsDomainTerms(t *testing.T) {
	got := Refine("impact of transformer attention on long-context reasoning")
	if !strings.HasPrefix(got, "explanation and key concepts of ") {
		t.Fatalf("expected conceptual prefix, got %q", got)
	}
	body := strings.TrimPrefix(got, "explanation and key concepts of ")
	for _, term := range []string{"transformer", "attention", "long-context", "reasoning"} {
		if !strings.Contains(body, term) {
			t.Fatalf("refined query lost domain term %q: %q", term, got)
		}
	}
	for _, w := range strings.Fields(body) {
		if w == "of" || w == "on" {
			t.Fatalf("refined query kept stopword %q: %q", w, got)
		}
	}
}

func TestRefineDeterministic(t *testing.T) {
	q := "impact of transformer attention on long-context reasoning"
	if Refine(q) != Refine(q) {
		t.Fatal("refine is not deterministic")
	}
}

func TestRefineDefinitionalQueryKeepsShape(t *testing.T) {
	got := Refine("what is a transformer")
	if got != "transformer" {
		t.Fatalf("unexpected refinement of definitional query: %q", got)
	}
}

func TestRefineEmptyInputReturnsSentinel(t *testing.T) {
	if got := Refine(""); got != "" {
		t.Fatalf("expected empty sentinel, got %q", got)
	}
	if got := Refine("   \t\n "); got != "" {
		t.Fatalf("expected empty sentinel for whitespace, got %q", got)
	}
}

func TestRefineExpandsAliases(t *testing.T) {
	got := Refine("hallucination rates llm agents")
	if !strings.Contains(got, "large language model") {
		t.Fatalf("alias not expanded: %q", got)
	}
}

func TestRefineExpandsShortAliases(t *testing.T) {
	// Two-letter shorthand must expand before short words are dropped.
	got := Refine("ml interpretability methods")
	if !strings.Contains(got, "machine learning") {
		t.Fatalf("short alias not expanded: %q", got)
	}
}

func TestRefineNeverStacksPrefix(t *testing.T) {
	once := Refine("graph neural networks survey")
	twice := Refine(once)
	if strings.Count(twice, "explanation and key concepts of") > 1 {
		t.Fatalf("prefix applied twice: %q", twice)
	}
}

func TestRefineKeepsOverFilteredQueryIntact(t *testing.T) {
	got := Refine("how do you do it")
	if !strings.Contains(got, "how do you do it") {
		t.Fatalf("over-filtered query should fall back to original words, got %q", got)
	}
}
