package chunk

import (
	"strings"

	"scholarag/internal/models"
)

// Split cuts text into size-bounded chunks, consecutive chunks sharing
// overlap runes so information at a boundary is not lost. Degenerate
// arguments fall back to safe defaults.
func Split(text string, size, overlap int) []string {
	if size <= 0 {
		size = 1000
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}
	runes := []rune(text)
	step := size - overlap
	if step <= 0 {
		step = size
	}
	out := make([]string, 0)
	for i := 0; i < len(runes); i += step {
		end := i + size
		if end > len(runes) {
			end = len(runes)
		}
		part := strings.TrimSpace(string(runes[i:end]))
		if part != "" {
			out = append(out, part)
		}
		if end == len(runes) {
			break
		}
	}
	return out
}

// Passages chunks a paper's abstract into passages with chunk indexes
// assigned in order. Papers without an abstract yield no passages and
// drop out of retrieval. Embeddings are attached by the caller.
func Passages(p models.Paper, size, overlap int) []models.Passage {
	parts := Split(strings.TrimSpace(p.Abstract), size, overlap)
	out := make([]models.Passage, 0, len(parts))
	for i, part := range parts {
		out = append(out, models.Passage{
			PaperID:    p.PaperID,
			ChunkIndex: i,
			Text:       part,
		})
	}
	return out
}
