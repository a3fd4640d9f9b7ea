package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"scholarag/internal/models"
)

type CorpusRepo struct {
	db *DB
}

func NewCorpusRepo(db *DB) *CorpusRepo {
	return &CorpusRepo{db: db}
}

func (r *CorpusRepo) CreateCorpus(ctx context.Context, corpus models.Corpus) error {
	_, err := r.db.Pool.Exec(ctx, `INSERT INTO corpora (corpus_id, name) VALUES ($1, $2)`, corpus.CorpusID, corpus.Name)
	if err != nil {
		return fmt.Errorf("insert corpus: %w", err)
	}
	return nil
}

func (r *CorpusRepo) GetCorpus(ctx context.Context, corpusID string) (models.Corpus, error) {
	// The column is a UUID; a malformed id can never match a row.
	if uuid.Validate(corpusID) != nil {
		return models.Corpus{}, ErrNotFound
	}
	var c models.Corpus
	err := r.db.Pool.QueryRow(ctx,
		`SELECT corpus_id::text, name, created_at FROM corpora WHERE corpus_id=$1`, corpusID).
		Scan(&c.CorpusID, &c.Name, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Corpus{}, ErrNotFound
		}
		return models.Corpus{}, fmt.Errorf("get corpus: %w", err)
	}
	return c, nil
}

func (r *CorpusRepo) ListCorpora(ctx context.Context) ([]models.Corpus, error) {
	rows, err := r.db.Pool.Query(ctx, `SELECT corpus_id::text, name, created_at FROM corpora ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list corpora: %w", err)
	}
	defer rows.Close()

	out := make([]models.Corpus, 0)
	for rows.Next() {
		var c models.Corpus
		if err := rows.Scan(&c.CorpusID, &c.Name, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan corpus: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate corpora: %w", err)
	}
	return out, nil
}

func (r *CorpusRepo) UpsertCorpusPaper(ctx context.Context, cp models.CorpusPaper) error {
	_, err := r.db.Pool.Exec(ctx, `
INSERT INTO corpus_papers (corpus_id, paper_id, filename, status, fail_reason)
VALUES ($1, $2, $3, $4, NULLIF($5,''))
ON CONFLICT (corpus_id, paper_id)
DO UPDATE SET
  filename = EXCLUDED.filename,
  status = EXCLUDED.status,
  fail_reason = EXCLUDED.fail_reason,
  updated_at = NOW()`,
		cp.CorpusID, cp.PaperID, cp.Filename, cp.Status, cp.FailReason,
	)
	if err != nil {
		return fmt.Errorf("upsert corpus paper: %w", err)
	}
	return nil
}

func (r *CorpusRepo) UpdateCorpusPaperStatus(ctx context.Context, corpusID, paperID, status, failReason string) error {
	_, err := r.db.Pool.Exec(ctx, `
UPDATE corpus_papers
SET status=$3, fail_reason=NULLIF($4,''), updated_at=NOW()
WHERE corpus_id=$1 AND paper_id=$2`,
		corpusID, paperID, status, failReason)
	if err != nil {
		return fmt.Errorf("update corpus paper status: %w", err)
	}
	return nil
}

func (r *CorpusRepo) ListCorpusPapers(ctx context.Context, corpusID string) ([]models.CorpusPaper, error) {
	rows, err := r.db.Pool.Query(ctx, `
SELECT corpus_id::text, paper_id, filename, status, COALESCE(fail_reason,''), created_at, updated_at
FROM corpus_papers
WHERE corpus_id=$1
ORDER BY created_at DESC`, corpusID)
	if err != nil {
		return nil, fmt.Errorf("list corpus papers: %w", err)
	}
	defer rows.Close()

	out := make([]models.CorpusPaper, 0)
	for rows.Next() {
		var cp models.CorpusPaper
		if err := rows.Scan(&cp.CorpusID, &cp.PaperID, &cp.Filename, &cp.Status, &cp.FailReason, &cp.CreatedAt, &cp.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan corpus paper: %w", err)
		}
		out = append(out, cp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate corpus papers: %w", err)
	}
	return out, nil
}

// ListReadyPaperIDs returns the papers of a corpus that finished ingestion,
// in upload order. Used to scope retrieval to a corpus.
func (r *CorpusRepo) ListReadyPaperIDs(ctx context.Context, corpusID string) ([]string, error) {
	rows, err := r.db.Pool.Query(ctx, `
SELECT paper_id FROM corpus_papers
WHERE corpus_id=$1 AND status='ready'
ORDER BY created_at ASC`, corpusID)
	if err != nil {
		return nil, fmt.Errorf("list ready papers: %w", err)
	}
	defer rows.Close()

	out := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan paper id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// CountCorpusPapersByStatus is the DB-backed fallback for ingest progress
// when the workflow query is unavailable.
func (r *CorpusRepo) CountCorpusPapersByStatus(ctx context.Context, corpusID string) (map[string]int, error) {
	rows, err := r.db.Pool.Query(ctx, `
SELECT status, COUNT(*) FROM corpus_papers
WHERE corpus_id=$1
GROUP BY status`, corpusID)
	if err != nil {
		return nil, fmt.Errorf("count corpus papers: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		out[status] = n
	}
	return out, rows.Err()
}
