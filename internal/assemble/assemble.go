// Package assemble turns a retrieval result into the bounded context
// window handed to generation.
package assemble

import (
	"unicode/utf8"

	"scholarag/internal/models"
)

// Assemble takes passages greedily in descending score order, skipping
// any whose paper already contributed maxPerPaper passages, and stops
// when adding one would exceed the maxChars budget. Deterministic for
// identical input.
func Assemble(retrieval models.RetrievalResult, maxChars, maxPerPaper int) []models.Passage {
	if maxChars <= 0 {
		maxChars = 4000
	}
	if maxPerPaper <= 0 {
		maxPerPaper = 2
	}

	out := make([]models.Passage, 0, len(retrieval))
	perPaper := make(map[string]int, len(retrieval))
	used := 0
	for _, sp := range retrieval {
		if perPaper[sp.PaperID] >= maxPerPaper {
			continue
		}
		size := utf8.RuneCountInString(sp.Text)
		if used+size > maxChars {
			break
		}
		out = append(out, sp.Passage)
		perPaper[sp.PaperID]++
		used += size
	}
	return out
}
