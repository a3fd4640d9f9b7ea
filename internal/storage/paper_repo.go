package storage

import (
	"context"
	"fmt"

	"scholarag/internal/models"
)

type PaperRepo struct {
	db *DB
}

func NewPaperRepo(db *DB) *PaperRepo {
	return &PaperRepo{db: db}
}

// UpsertPapers writes search results in one transaction. Existing rows keep
// their metadata when the incoming copy is missing a field, so a sparse
// result from one provider never blanks out a richer row from another.
func (r *PaperRepo) UpsertPapers(ctx context.Context, papers []models.Paper) error {
	if len(papers) == 0 {
		return nil
	}
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin upsert papers: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, p := range papers {
		_, err := tx.Exec(ctx, `
INSERT INTO papers (paper_id, title, abstract, url, year, venue, authors, source)
VALUES ($1, NULLIF($2,''), NULLIF($3,''), NULLIF($4,''), $5, NULLIF($6,''), $7, $8)
ON CONFLICT (paper_id)
DO UPDATE SET
  title = COALESCE(EXCLUDED.title, papers.title),
  abstract = COALESCE(EXCLUDED.abstract, papers.abstract),
  url = COALESCE(EXCLUDED.url, papers.url),
  year = COALESCE(EXCLUDED.year, papers.year),
  venue = COALESCE(EXCLUDED.venue, papers.venue),
  authors = COALESCE(EXCLUDED.authors, papers.authors),
  source = EXCLUDED.source,
  updated_at = NOW()`,
			p.PaperID, p.Title, p.Abstract, p.URL, p.Year, p.Venue, p.Authors, p.Source,
		)
		if err != nil {
			return fmt.Errorf("upsert paper %s: %w", p.PaperID, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit upsert papers: %w", err)
	}
	return nil
}

func (r *PaperRepo) ListPapersByIDs(ctx context.Context, paperIDs []string) ([]models.Paper, error) {
	if len(paperIDs) == 0 {
		return []models.Paper{}, nil
	}
	rows, err := r.db.Pool.Query(ctx, `
SELECT paper_id, COALESCE(title,''), COALESCE(abstract,''), COALESCE(url,''), year,
       COALESCE(venue,''), COALESCE(authors,'{}'), source
FROM papers
WHERE paper_id = ANY($1)
ORDER BY array_position($1, paper_id)`, paperIDs)
	if err != nil {
		return nil, fmt.Errorf("list papers by ids: %w", err)
	}
	defer rows.Close()

	out := make([]models.Paper, 0, len(paperIDs))
	for rows.Next() {
		var p models.Paper
		if err := rows.Scan(&p.PaperID, &p.Title, &p.Abstract, &p.URL, &p.Year, &p.Venue, &p.Authors, &p.Source); err != nil {
			return nil, fmt.Errorf("scan paper: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate papers: %w", err)
	}
	return out, nil
}

// HasPassages reports whether a paper already has embedded passages for the
// given embedding version, so the pipeline can skip re-chunking it.
func (r *PaperRepo) HasPassages(ctx context.Context, paperID, embedVersion string) (bool, error) {
	var exists bool
	err := r.db.Pool.QueryRow(ctx, `
SELECT EXISTS (
  SELECT 1 FROM passages
  WHERE paper_id=$1 AND embedding_version=$2 AND embedding IS NOT NULL
)`, paperID, embedVersion).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check passages: %w", err)
	}
	return exists, nil
}
