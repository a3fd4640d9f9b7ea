package vector

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"scholarag/internal/models"
)

// Pool is the slice of pgxpool.Pool the store needs.
type Pool interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PGStore keeps passage vectors in a pgvector column on the passages
// table.
type PGStore struct {
	pool    Pool
	metric  string
	dim     int
	version string
}

func NewPGStore(pool Pool, metric string, dim int, embedVersion string) *PGStore {
	if metric != MetricL2 {
		metric = MetricCosine
	}
	return &PGStore{pool: pool, metric: metric, dim: dim, version: embedVersion}
}

func (s *PGStore) Upsert(ctx context.Context, passages []models.Passage) error {
	if len(passages) == 0 {
		return nil
	}
	for _, p := range passages {
		if len(p.Embedding) != s.dim {
			return fmt.Errorf("passage %s/%d: embedding dimension %d, store expects %d", p.PaperID, p.ChunkIndex, len(p.Embedding), s.dim)
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx upsert passages: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	for _, p := range passages {
		_, err := tx.Exec(ctx, `
INSERT INTO passages (paper_id, chunk_index, text, embedding, embedding_version)
VALUES ($1, $2, $3, $4::vector, $5)
ON CONFLICT (paper_id, chunk_index)
DO UPDATE SET
  text = EXCLUDED.text,
  embedding = EXCLUDED.embedding,
  embedding_version = EXCLUDED.embedding_version`,
			p.PaperID, p.ChunkIndex, p.Text, ToLiteral(p.Embedding), s.version,
		)
		if err != nil {
			return fmt.Errorf("upsert passage %s/%d: %w", p.PaperID, p.ChunkIndex, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit passages tx: %w", err)
	}
	return nil
}

func (s *PGStore) Query(ctx context.Context, vec []float32, k int, paperIDs []string) (models.RetrievalResult, error) {
	if k <= 0 {
		k = 8
	}
	if len(vec) != s.dim {
		return nil, fmt.Errorf("query vector dimension %d, store expects %d", len(vec), s.dim)
	}

	op, scoreExpr := "<=>", "1 - (embedding <=> $1::vector)"
	if s.metric == MetricL2 {
		op, scoreExpr = "<->", "1 / (1 + (embedding <-> $1::vector))"
	}

	args := []any{ToLiteral(vec), s.version, k}
	filterSQL := ""
	orderSQL := fmt.Sprintf("ORDER BY embedding %s $1::vector, paper_id, chunk_index", op)
	if len(paperIDs) > 0 {
		filterSQL = " AND paper_id = ANY($4)"
		orderSQL = fmt.Sprintf("ORDER BY embedding %s $1::vector, array_position($4, paper_id), chunk_index", op)
		args = append(args, paperIDs)
	}

	query := fmt.Sprintf(`
SELECT paper_id, chunk_index, text, %s AS score
FROM passages
WHERE embedding IS NOT NULL
  AND embedding_version = $2%s
%s
LIMIT $3`, scoreExpr, filterSQL, orderSQL)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query passages: %w", err)
	}
	defer rows.Close()

	out := make(models.RetrievalResult, 0, k)
	for rows.Next() {
		var sp models.ScoredPassage
		if err := rows.Scan(&sp.PaperID, &sp.ChunkIndex, &sp.Text, &sp.Score); err != nil {
			return nil, fmt.Errorf("scan passage row: %w", err)
		}
		out = append(out, sp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate passage rows: %w", err)
	}
	return out, nil
}
