package vector

import (
	"context"
	"testing"

	"scholarag/internal/models"
)

func passage(paperID string, idx int, text string, emb []float32) models.Passage {
	return models.Passage{PaperID: paperID, ChunkIndex: idx, Text: text, Embedding: emb}
}

func TestMemoryStoreUpsertIdempotent(t *testing.T) {
	s := NewMemoryStore(3, MetricCosine)
	ctx := context.Background()
	batch := []models.Passage{
		passage("p1", 0, "alpha", []float32{1, 0, 0}),
		passage("p1", 1, "beta", []float32{0, 1, 0}),
	}
	if err := s.Upsert(ctx, batch); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := s.Upsert(ctx, batch); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	got, err := s.Query(ctx, []float32{1, 0, 0}, 10, nil)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("duplicate insertion changed result size: %d", len(got))
	}
	if got[0].Text != "alpha" {
		t.Fatalf("expected alpha first, got %q", got[0].Text)
	}
}

func TestMemoryStoreReembedOverwrites(t *testing.T) {
	s := NewMemoryStore(3, MetricCosine)
	ctx := context.Background()
	if err := s.Upsert(ctx, []models.Passage{passage("p1", 0, "old", []float32{1, 0, 0})}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := s.Upsert(ctx, []models.Passage{passage("p1", 0, "new", []float32{0, 0, 1})}); err != nil {
		t.Fatalf("re-upsert: %v", err)
	}
	got, err := s.Query(ctx, []float32{0, 0, 1}, 10, nil)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 1 || got[0].Text != "new" {
		t.Fatalf("expected single overwritten passage, got %+v", got)
	}
}

func TestMemoryStoreBoundsK(t *testing.T) {
	s := NewMemoryStore(3, MetricCosine)
	ctx := context.Background()
	for i := 0; i < 10; i++ {
		if err := s.Upsert(ctx, []models.Passage{passage("p1", i, "t", []float32{1, 0, 0})}); err != nil {
			t.Fatalf("upsert %d: %v", i, err)
		}
	}
	got, err := s.Query(ctx, []float32{1, 0, 0}, 4, nil)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("expected 4 results, got %d", len(got))
	}
}

func TestMemoryStoreScopesToPaperIDs(t *testing.T) {
	s := NewMemoryStore(3, MetricCosine)
	ctx := context.Background()
	if err := s.Upsert(ctx, []models.Passage{
		passage("mine", 0, "in scope", []float32{1, 0, 0}),
		passage("other", 0, "out of scope", []float32{1, 0, 0}),
	}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	got, err := s.Query(ctx, []float32{1, 0, 0}, 10, []string{"mine"})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 1 || got[0].PaperID != "mine" {
		t.Fatalf("scope not applied: %+v", got)
	}
}

func TestMemoryStoreTiesPreferCallerPaperOrder(t *testing.T) {
	s := NewMemoryStore(3, MetricCosine)
	ctx := context.Background()
	same := []float32{0, 1, 0}
	if err := s.Upsert(ctx, []models.Passage{
		passage("second", 0, "b", same),
		passage("first", 0, "a", same),
	}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, err := s.Query(ctx, same, 2, []string{"first", "second"})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if got[0].PaperID != "first" {
		t.Fatalf("tie should prefer caller order, got %+v", got)
	}

	unscoped, err := s.Query(ctx, same, 2, nil)
	if err != nil {
		t.Fatalf("unscoped query: %v", err)
	}
	if unscoped[0].PaperID != "second" {
		t.Fatalf("unscoped tie should keep insertion order, got %+v", unscoped)
	}
}

func TestMemoryStoreValidatesDimension(t *testing.T) {
	s := NewMemoryStore(3, MetricCosine)
	ctx := context.Background()
	if err := s.Upsert(ctx, []models.Passage{passage("p", 0, "t", []float32{1, 0})}); err == nil {
		t.Fatal("expected upsert dimension error")
	}
	if _, err := s.Query(ctx, []float32{1, 0}, 4, nil); err == nil {
		t.Fatal("expected query dimension error")
	}
}

func TestMemoryStoreL2Scoring(t *testing.T) {
	s := NewMemoryStore(2, MetricL2)
	ctx := context.Background()
	if err := s.Upsert(ctx, []models.Passage{
		passage("near", 0, "n", []float32{1, 0}),
		passage("far", 0, "f", []float32{0, 5}),
	}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	got, err := s.Query(ctx, []float32{1, 0}, 2, nil)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if got[0].PaperID != "near" {
		t.Fatalf("expected nearest first, got %+v", got)
	}
	if got[0].Score != 1 {
		t.Fatalf("identical vectors should score 1 under l2 mapping, got %f", got[0].Score)
	}
	if got[1].Score <= 0 || got[1].Score >= got[0].Score {
		t.Fatalf("far passage should score in (0, 1): %f", got[1].Score)
	}
}
