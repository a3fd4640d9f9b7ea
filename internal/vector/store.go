// Package vector persists passage embeddings and answers
// nearest-neighbor queries over them. Two implementations share one
// contract: pgvector-backed Postgres for production and an in-memory
// brute-force store for tests and DB-less runs.
package vector

import (
	"context"
	"strconv"
	"strings"

	"scholarag/internal/models"
)

const (
	MetricCosine = "cosine"
	MetricL2     = "l2"
)

// Store is the passage vector store. Upsert is idempotent per
// (paper ID, chunk index): re-embedding a chunk overwrites. Query
// returns at most k passages descending by score; a non-empty paperIDs
// scopes the search to those papers, ties preferring their order.
type Store interface {
	Upsert(ctx context.Context, passages []models.Passage) error
	Query(ctx context.Context, vec []float32, k int, paperIDs []string) (models.RetrievalResult, error)
}

// ToLiteral renders a vector in pgvector's input syntax.
func ToLiteral(v []float32) string {
	parts := make([]string, 0, len(v))
	for _, x := range v {
		parts = append(parts, strconv.FormatFloat(float64(x), 'f', -1, 32))
	}
	return "[" + strings.Join(parts, ",") + "]"
}
