// Package pipeline orchestrates one ask request: refine the query, find
// papers, chunk and embed them, retrieve the closest passages, assemble a
// context and generate a cited answer. Every request ends with exactly one
// interaction row, whatever the outcome.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"scholarag/internal/answer"
	"scholarag/internal/assemble"
	"scholarag/internal/chunk"
	"scholarag/internal/config"
	"scholarag/internal/metrics"
	"scholarag/internal/models"
	"scholarag/internal/providers"
	"scholarag/internal/refine"
	"scholarag/internal/retry"
	"scholarag/internal/vector"
)

type Searcher interface {
	SearchPapers(ctx context.Context, req providers.SearchRequest) ([]models.Paper, providers.ProviderInfo, error)
}

type Embedder interface {
	Embed(ctx context.Context, req providers.EmbedRequest) ([][]float32, providers.ProviderInfo, error)
}

type Generator interface {
	Generate(ctx context.Context, query string, passages []models.Passage, titles map[string]string) (answer.Answer, error)
}

// PaperStore persists and reads paper metadata. Optional: without it the
// pipeline re-embeds papers on every request and corpus papers join the
// scope with bare ids.
type PaperStore interface {
	UpsertPapers(ctx context.Context, papers []models.Paper) error
	ListPapersByIDs(ctx context.Context, paperIDs []string) ([]models.Paper, error)
	HasPassages(ctx context.Context, paperID, embedVersion string) (bool, error)
}

// InteractionLogger appends interaction rows. Failures are logged and
// swallowed; they never surface to the caller.
type InteractionLogger interface {
	Insert(ctx context.Context, in models.Interaction) error
}

type Deps struct {
	Search       Searcher
	Embed        Embedder
	Store        vector.Store
	Generator    Generator
	Papers       PaperStore
	Interactions InteractionLogger
	Policy       *retry.Policy
	Audit        providers.CallAuditor
	Observers    []StageObserver
	Log          *logrus.Entry
}

type Pipeline struct {
	cfg config.Config
	d   Deps
}

func New(cfg config.Config, d Deps) *Pipeline {
	return &Pipeline{cfg: cfg, d: d}
}

// AskRequest carries one question. PaperIDs widens the retrieval scope to
// already-ingested papers, typically the ready papers of a corpus.
type AskRequest struct {
	Query    string
	PaperIDs []string
}

type AskResult struct {
	InteractionID  string                 `json:"interaction_id"`
	Query          string                 `json:"query"`
	RefinedQuery   string                 `json:"refined_query"`
	Answer         string                 `json:"answer,omitempty"`
	Citations      []models.Citation      `json:"citations"`
	Papers         []models.Paper         `json:"papers"`
	Outcome        string                 `json:"outcome"`
	ErrorDetail    string                 `json:"-"`
	Provider       providers.ProviderInfo `json:"-"`
	StageLatencies map[string]int64       `json:"stage_latencies_ms"`
}

// Ask runs the full pipeline for one query. Collaborator failures before
// generation degrade to an empty result with an explanatory outcome; only a
// failed generation is returned as an error, after the interaction is logged.
func (p *Pipeline) Ask(ctx context.Context, req AskRequest) (AskResult, error) {
	res := AskResult{
		InteractionID:  uuid.NewString(),
		Query:          req.Query,
		Citations:      []models.Citation{},
		Papers:         []models.Paper{},
		StageLatencies: make(map[string]int64),
	}

	stage := func(name string, fn func() error) error {
		start := time.Now()
		err := fn()
		d := time.Since(start)
		res.StageLatencies[name] = d.Milliseconds()
		for _, o := range p.d.Observers {
			o.OnStage(ctx, res.InteractionID, name, d, err)
		}
		return err
	}

	var refined string
	_ = stage("refine", func() error {
		refined = refine.Refine(req.Query)
		return nil
	})
	res.RefinedQuery = refined
	if refined == "" {
		res.Outcome = models.OutcomeEmptyQuery
		p.logInteraction(ctx, &res, nil)
		return res, ErrEmptyQuery
	}

	var papers []models.Paper
	searchErr := stage("search", func() error {
		return p.d.Policy.Do(ctx, "search papers", func(ctx context.Context) error {
			var err error
			papers, _, err = p.d.Search.SearchPapers(ctx, providers.SearchRequest{
				Query: refined,
				Limit: p.cfg.MaxSearchResults,
			})
			return err
		})
	})
	if searchErr != nil {
		if len(req.PaperIDs) == 0 {
			res.Outcome = models.OutcomeNoPapers
			res.ErrorDetail = searchErr.Error()
			p.logInteraction(ctx, &res, nil)
			return res, nil
		}
		// Corpus-scoped requests can still answer from stored passages.
		if p.d.Log != nil {
			p.d.Log.WithError(searchErr).Warn("paper search degraded, continuing with corpus papers")
		}
		papers = nil
	}
	papers = dedupe(papers, p.cfg.DedupeByTitle)

	var scope []models.Paper
	if len(papers) > 0 {
		scope = p.embedPapers(ctx, stage, papers)
	}
	scope = p.mergeCorpusPapers(ctx, scope, req.PaperIDs)
	if len(scope) == 0 {
		if len(papers) == 0 && len(req.PaperIDs) == 0 {
			res.Outcome = models.OutcomeNoPapers
		} else {
			res.Outcome = models.OutcomeNoContext
			res.ErrorDetail = "every candidate paper was dropped before retrieval"
		}
		p.logInteraction(ctx, &res, nil)
		return res, nil
	}
	scopeIDs := make([]string, 0, len(scope))
	titles := make(map[string]string, len(scope))
	for _, paper := range scope {
		scopeIDs = append(scopeIDs, paper.PaperID)
		titles[paper.PaperID] = paper.Title
	}
	res.Papers = scope

	var retrieval models.RetrievalResult
	retrieveErr := stage("retrieve", func() error {
		vec, err := p.embedQuery(ctx, req.Query)
		if err != nil {
			return err
		}
		retrieval, err = p.d.Store.Query(ctx, vec, p.cfg.TopK, scopeIDs)
		return err
	})
	if retrieveErr != nil {
		res.Outcome = models.OutcomeNoContext
		res.ErrorDetail = retrieveErr.Error()
		p.logInteraction(ctx, &res, scopeIDs)
		return res, nil
	}

	var ctxPassages []models.Passage
	_ = stage("assemble", func() error {
		ctxPassages = assemble.Assemble(retrieval, p.cfg.MaxContextChars, p.cfg.MaxPassagesPerPaper)
		return nil
	})
	if len(ctxPassages) == 0 {
		res.Outcome = models.OutcomeNoContext
		p.logInteraction(ctx, &res, scopeIDs)
		return res, nil
	}

	var ans answer.Answer
	genErr := stage("generate", func() error {
		var err error
		ans, err = p.d.Generator.Generate(ctx, refined, ctxPassages, titles)
		return err
	})
	if genErr != nil {
		res.Outcome = models.OutcomeGenerationUnavailable
		res.ErrorDetail = genErr.Error()
		p.logInteraction(ctx, &res, scopeIDs)
		return res, fmt.Errorf("generate answer: %w", genErr)
	}

	res.Answer = ans.Text
	res.Citations = ans.Citations
	res.Provider = ans.Provider
	res.Outcome = models.OutcomeAnswered
	if ans.DroppedCitations > 0 {
		metrics.DroppedCitationsTotal.Add(float64(ans.DroppedCitations))
		if p.d.Log != nil {
			p.d.Log.WithFields(logrus.Fields{
				"interaction_id": res.InteractionID,
				"failure_kind":   string(FailureCitation),
				"dropped":        ans.DroppedCitations,
			}).Warn("answer cited unknown sources")
		}
	}
	p.logInteraction(ctx, &res, scopeIDs)
	return res, nil
}

// embedPapers chunks and embeds every paper that is not already stored,
// bounded by the configured concurrency. Papers whose embedding fails are
// dropped from the request with a warning; the survivors are returned in
// their search order.
func (p *Pipeline) embedPapers(ctx context.Context, stage func(string, func() error) error, papers []models.Paper) []models.Paper {
	failed := make(map[string]bool, len(papers))
	embedErr := stage("embed", func() error {
		if p.d.Papers != nil {
			if err := p.d.Papers.UpsertPapers(ctx, papers); err != nil && p.d.Log != nil {
				p.d.Log.WithError(err).Warn("failed to persist paper metadata")
			}
		}

		var (
			mu       sync.Mutex
			toUpsert []models.Passage
		)
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(p.cfg.EmbedConcurrency)
		for _, paper := range papers {
			g.Go(func() error {
				if p.d.Papers != nil {
					if ok, err := p.d.Papers.HasPassages(gctx, paper.PaperID, p.cfg.EmbedVersion); err == nil && ok {
						return nil
					}
				}
				passages := chunk.Passages(paper, p.cfg.ChunkSize, p.cfg.ChunkOverlap)
				if len(passages) == 0 {
					return nil
				}
				texts := make([]string, len(passages))
				for i, ps := range passages {
					texts[i] = ps.Text
				}

				var (
					vecs [][]float32
					info providers.ProviderInfo
				)
				start := time.Now()
				err := p.d.Policy.Do(gctx, "embed passages", func(ctx context.Context) error {
					var callErr error
					vecs, info, callErr = p.d.Embed.Embed(ctx, providers.EmbedRequest{
						Operation: "embed_passages",
						Inputs:    texts,
						Dimension: p.cfg.EmbedDim,
					})
					return callErr
				})
				if p.d.Audit != nil {
					p.d.Audit.RecordCall(gctx, info, "embed_passages", time.Since(start), err)
				}
				if err == nil && len(vecs) != len(texts) {
					err = fmt.Errorf("embedding count mismatch: %d inputs, %d vectors", len(texts), len(vecs))
				}
				if err != nil {
					mu.Lock()
					failed[paper.PaperID] = true
					mu.Unlock()
					metrics.PapersDroppedTotal.WithLabelValues("embed_failed").Inc()
					if p.d.Log != nil {
						p.d.Log.WithFields(logrus.Fields{
							"paper_id": paper.PaperID,
							"error":    err.Error(),
						}).Warn("dropping paper after failed embedding")
					}
					return nil
				}
				for i := range passages {
					passages[i].Embedding = vecs[i]
				}
				mu.Lock()
				toUpsert = append(toUpsert, passages...)
				mu.Unlock()
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
		if len(toUpsert) == 0 {
			return nil
		}
		return p.d.Store.Upsert(ctx, toUpsert)
	})
	if embedErr != nil && p.d.Log != nil {
		// Retrieval can still hit passages stored by earlier requests.
		p.d.Log.WithError(embedErr).Warn("embedding stage degraded")
	}

	scope := make([]models.Paper, 0, len(papers))
	for _, paper := range papers {
		if !failed[paper.PaperID] {
			scope = append(scope, paper)
		}
	}
	return scope
}

// mergeCorpusPapers appends requested corpus papers to the retrieval scope.
// Their passages were embedded at ingest time, so they join without an embed
// pass. Papers already in scope from search keep their search metadata.
func (p *Pipeline) mergeCorpusPapers(ctx context.Context, scope []models.Paper, paperIDs []string) []models.Paper {
	if len(paperIDs) == 0 {
		return scope
	}
	inScope := make(map[string]bool, len(scope))
	for _, paper := range scope {
		inScope[paper.PaperID] = true
	}

	var known map[string]models.Paper
	if p.d.Papers != nil {
		papers, err := p.d.Papers.ListPapersByIDs(ctx, paperIDs)
		if err != nil {
			if p.d.Log != nil {
				p.d.Log.WithError(err).Warn("failed to load corpus paper metadata")
			}
		} else {
			known = make(map[string]models.Paper, len(papers))
			for _, paper := range papers {
				known[paper.PaperID] = paper
			}
		}
	}

	for _, id := range paperIDs {
		if id == "" || inScope[id] {
			continue
		}
		inScope[id] = true
		if paper, ok := known[id]; ok {
			scope = append(scope, paper)
			continue
		}
		scope = append(scope, models.Paper{PaperID: id, Source: "corpus"})
	}
	return scope
}

func (p *Pipeline) embedQuery(ctx context.Context, query string) ([]float32, error) {
	var (
		vecs [][]float32
		info providers.ProviderInfo
	)
	start := time.Now()
	err := p.d.Policy.Do(ctx, "embed query", func(ctx context.Context) error {
		var callErr error
		vecs, info, callErr = p.d.Embed.Embed(ctx, providers.EmbedRequest{
			Operation: "embed_query",
			Inputs:    []string{query},
			Dimension: p.cfg.EmbedDim,
		})
		return callErr
	})
	if p.d.Audit != nil {
		p.d.Audit.RecordCall(ctx, info, "embed_query", time.Since(start), err)
	}
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, fmt.Errorf("embed query: empty response")
	}
	return vecs[0], nil
}

// logInteraction records the interaction and notifies observers of the log
// stage. It must succeed silently or fail silently: the caller's response
// does not depend on it.
func (p *Pipeline) logInteraction(ctx context.Context, res *AskResult, paperIDs []string) {
	if paperIDs == nil {
		paperIDs = []string{}
	}
	in := models.Interaction{
		InteractionID:  res.InteractionID,
		Query:          res.Query,
		RefinedQuery:   res.RefinedQuery,
		PaperIDs:       paperIDs,
		Answer:         res.Answer,
		Citations:      res.Citations,
		StageLatencies: res.StageLatencies,
		Outcome:        res.Outcome,
		ErrorDetail:    res.ErrorDetail,
	}

	// A canceled request still deserves its row.
	logCtx := context.WithoutCancel(ctx)
	start := time.Now()
	err := p.d.Interactions.Insert(logCtx, in)
	d := time.Since(start)
	res.StageLatencies["log"] = d.Milliseconds()
	for _, o := range p.d.Observers {
		o.OnStage(ctx, res.InteractionID, "log", d, err)
	}
	if err != nil && p.d.Log != nil {
		p.d.Log.WithError(err).WithField("interaction_id", res.InteractionID).Error("failed to log interaction")
	}
	metrics.InteractionsTotal.WithLabelValues(res.Outcome).Inc()
}

// dedupe drops repeated papers, always by id and optionally by normalized
// title. First occurrence wins so provider ranking is preserved.
func dedupe(papers []models.Paper, byTitle bool) []models.Paper {
	seenID := make(map[string]bool, len(papers))
	seenTitle := make(map[string]bool, len(papers))
	out := make([]models.Paper, 0, len(papers))
	for _, p := range papers {
		if p.PaperID == "" || seenID[p.PaperID] {
			metrics.PapersDroppedTotal.WithLabelValues("duplicate").Inc()
			continue
		}
		if byTitle {
			key := strings.ToLower(strings.Join(strings.Fields(p.Title), " "))
			if key != "" && seenTitle[key] {
				metrics.PapersDroppedTotal.WithLabelValues("duplicate").Inc()
				continue
			}
			seenTitle[key] = true
		}
		seenID[p.PaperID] = true
		out = append(out, p)
	}
	return out
}
