package vector

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"scholarag/internal/models"
)

type passageKey struct {
	paperID string
	index   int
}

// MemoryStore is a brute-force in-memory Store. Safe for concurrent
// readers and writers; upserts by passage identity are last-write-wins.
type MemoryStore struct {
	mu     sync.RWMutex
	dim    int
	metric string
	order  []passageKey
	items  map[passageKey]models.Passage
}

func NewMemoryStore(dim int, metric string) *MemoryStore {
	if metric != MetricL2 {
		metric = MetricCosine
	}
	return &MemoryStore{
		dim:    dim,
		metric: metric,
		items:  make(map[passageKey]models.Passage),
	}
}

func (s *MemoryStore) Upsert(ctx context.Context, passages []models.Passage) error {
	_ = ctx
	for _, p := range passages {
		if len(p.Embedding) != s.dim {
			return fmt.Errorf("passage %s/%d: embedding dimension %d, store expects %d", p.PaperID, p.ChunkIndex, len(p.Embedding), s.dim)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range passages {
		key := passageKey{paperID: p.PaperID, index: p.ChunkIndex}
		if _, ok := s.items[key]; !ok {
			s.order = append(s.order, key)
		}
		s.items[key] = p
	}
	return nil
}

func (s *MemoryStore) Query(ctx context.Context, vec []float32, k int, paperIDs []string) (models.RetrievalResult, error) {
	_ = ctx
	if k <= 0 {
		k = 8
	}
	if len(vec) != s.dim {
		return nil, fmt.Errorf("query vector dimension %d, store expects %d", len(vec), s.dim)
	}

	scope := map[string]int{}
	for i, id := range paperIDs {
		if _, ok := scope[id]; !ok {
			scope[id] = i
		}
	}

	s.mu.RLock()
	candidates := make(models.RetrievalResult, 0, len(s.order))
	for _, key := range s.order {
		if len(scope) > 0 {
			if _, ok := scope[key.paperID]; !ok {
				continue
			}
		}
		p := s.items[key]
		candidates = append(candidates, models.ScoredPassage{
			Passage: p,
			Score:   s.score(vec, p.Embedding),
		})
	}
	s.mu.RUnlock()

	// Stable sort keeps insertion order on equal scores; scoped queries
	// additionally prefer the caller's paper order.
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		if len(scope) > 0 && candidates[i].PaperID != candidates[j].PaperID {
			return scope[candidates[i].PaperID] < scope[candidates[j].PaperID]
		}
		return false
	})

	if len(candidates) > k {
		candidates = candidates[:k]
	}
	return candidates, nil
}

func (s *MemoryStore) score(a, b []float32) float64 {
	switch s.metric {
	case MetricL2:
		var sum float64
		for i := range a {
			d := float64(a[i]) - float64(b[i])
			sum += d * d
		}
		return 1 / (1 + math.Sqrt(sum))
	default:
		var dot, na, nb float64
		for i := range a {
			dot += float64(a[i]) * float64(b[i])
			na += float64(a[i]) * float64(a[i])
			nb += float64(b[i]) * float64(b[i])
		}
		if na == 0 || nb == 0 {
			return 0
		}
		return dot / (math.Sqrt(na) * math.Sqrt(nb))
	}
}
