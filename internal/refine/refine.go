// Package refine rewrites raw user questions into search-optimized
// queries for academic paper retrieval. Rule-based and offline: the
// whole point is better retrieval precision without spending a
// collaborator call.
package refine

import "strings"

const conceptPrefix = "explanation and key concepts of "

// Queries already containing one of these read as definitional and keep
// their shape instead of getting the conceptual prefix.
var definitionalKeywords = []string{
	"definition", "explanation", "key concepts", "introduction to",
	"principles of", "overview of", "what is",
}

// Function words dropped during compaction. Domain terms always survive
// because only listed short words are removed.
var stopwords = map[string]struct{}{
	"please": {}, "help": {}, "how": {}, "can": {}, "you": {},
	"the": {}, "and": {}, "for": {}, "are": {}, "was": {}, "were": {},
	"been": {}, "being": {}, "have": {}, "has": {}, "had": {},
	"will": {}, "would": {}, "could": {}, "should": {}, "may": {},
	"might": {}, "must": {}, "shall": {}, "does": {}, "did": {},
	"about": {}, "with": {}, "into": {}, "between": {}, "what": {},
	"when": {}, "where": {}, "which": {}, "some": {}, "such": {},
	"this": {}, "that": {}, "these": {}, "those": {},
}

// Shorthand normalized to the long form used in paper titles and
// abstracts.
var aliases = map[string]string{
	"llm":  "large language model",
	"llms": "large language models",
	"rag":  "retrieval augmented generation",
	"ml":   "machine learning",
	"dl":   "deep learning",
	"ai":   "artificial intelligence",
	"nlp":  "natural language processing",
	"cnn":  "convolutional neural network",
	"rnn":  "recurrent neural network",
	"rl":   "reinforcement learning",
}

// Refine rewrites a raw question into a search query. Pure and
// deterministic; the empty string is the degenerate-input sentinel the
// caller short-circuits on. The transformation chain is fixed:
// whitespace normalization, alias expansion, stopword compaction, and
// at most one conceptual prefix.
func Refine(raw string) string {
	q := strings.Join(strings.Fields(raw), " ")
	if q == "" {
		return ""
	}
	lower := strings.ToLower(q)

	// Aliases expand first so two-letter shorthand like "ml" is not lost
	// to the short-word drop below.
	expanded := expandAliases(lower)
	compact := dropStopwords(expanded)
	// If compaction removed too much signal, keep the full query.
	if len(compact) < len(expanded)/3 {
		compact = expanded
	}

	if isDefinitional(lower) {
		return compact
	}
	return conceptPrefix + compact
}

func isDefinitional(lower string) bool {
	for _, kw := range definitionalKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func dropStopwords(lower string) string {
	words := strings.Fields(lower)
	kept := make([]string, 0, len(words))
	for _, w := range words {
		if len(w) <= 2 {
			continue
		}
		if _, ok := stopwords[w]; ok {
			continue
		}
		kept = append(kept, w)
	}
	return strings.Join(kept, " ")
}

func expandAliases(q string) string {
	words := strings.Fields(q)
	for i, w := range words {
		if long, ok := aliases[w]; ok {
			words[i] = long
		}
	}
	return strings.Join(words, " ")
}
