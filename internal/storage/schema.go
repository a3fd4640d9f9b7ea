package storage

import (
	"context"
	"fmt"
)

// EnsureSchema creates the pgvector extension and all tables if they are
// missing. It runs once per process; later calls are no-ops. embedDim fixes
// the width of the passage embedding column, metric picks the ANN opclass.
func (d *DB) EnsureSchema(ctx context.Context, embedDim int, metric string) error {
	d.schemaMu.Lock()
	defer d.schemaMu.Unlock()

	if d.schemaPrepared {
		return nil
	}
	if embedDim <= 0 {
		embedDim = 1536
	}
	opclass := "vector_cosine_ops"
	if metric == "l2" {
		opclass = "vector_l2_ops"
	}

	// Keep schema setup resilient even if the operator never ran migrations.
	ddl := fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS papers (
  paper_id TEXT PRIMARY KEY,
  title TEXT,
  abstract TEXT,
  url TEXT,
  year INT,
  venue TEXT,
  authors TEXT[],
  source TEXT NOT NULL DEFAULT '',
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS passages (
  paper_id TEXT NOT NULL REFERENCES papers(paper_id) ON DELETE CASCADE,
  chunk_index INT NOT NULL,
  text TEXT NOT NULL,
  embedding vector(%d),
  embedding_version TEXT NOT NULL DEFAULT '',
  PRIMARY KEY (paper_id, chunk_index)
);

CREATE INDEX IF NOT EXISTS idx_passages_embedding ON passages USING hnsw (embedding %s);

CREATE TABLE IF NOT EXISTS interactions (
  interaction_id UUID PRIMARY KEY,
  query TEXT NOT NULL,
  refined_query TEXT NOT NULL DEFAULT '',
  paper_ids TEXT[] NOT NULL DEFAULT '{}',
  answer TEXT NOT NULL DEFAULT '',
  citations JSONB NOT NULL DEFAULT '[]',
  stage_latencies_ms JSONB NOT NULL DEFAULT '{}',
  outcome TEXT NOT NULL,
  error_detail TEXT,
  feedback TEXT CHECK (feedback IN ('positive','negative')),
  feedback_at TIMESTAMPTZ,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_interactions_created ON interactions(created_at DESC);

CREATE TABLE IF NOT EXISTS corpora (
  corpus_id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
  name TEXT NOT NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS corpus_papers (
  corpus_id UUID NOT NULL REFERENCES corpora(corpus_id) ON DELETE CASCADE,
  paper_id TEXT NOT NULL,
  filename TEXT NOT NULL DEFAULT '',
  status TEXT NOT NULL CHECK (status IN ('uploaded','extracting','embedding','ready','failed')),
  fail_reason TEXT,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  PRIMARY KEY (corpus_id, paper_id)
);

CREATE INDEX IF NOT EXISTS idx_corpus_papers_status ON corpus_papers(corpus_id, status);

CREATE TABLE IF NOT EXISTS llm_calls (
  call_id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
  operation TEXT NOT NULL,
  provider_name TEXT NOT NULL,
  model TEXT NOT NULL DEFAULT '',
  status TEXT NOT NULL CHECK (status IN ('ok','error')),
  error_type TEXT,
  duration_ms BIGINT NOT NULL DEFAULT 0,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`, embedDim, opclass)

	if _, err := d.Pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	d.schemaPrepared = true
	return nil
}
