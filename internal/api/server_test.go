package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scholarag/internal/config"
	"scholarag/internal/logging"
	"scholarag/internal/models"
	"scholarag/internal/pipeline"
	"scholarag/internal/storage"
)

type fakeAsker struct {
	lastReq pipeline.AskRequest
	res     pipeline.AskResult
	err     error
}

func (f *fakeAsker) Ask(ctx context.Context, req pipeline.AskRequest) (pipeline.AskResult, error) {
	f.lastReq = req
	return f.res, f.err
}

type fakeInteractions struct {
	rows     map[string]models.Interaction
	feedback map[string]string
}

func (f *fakeInteractions) SetFeedback(ctx context.Context, interactionID, rating string) error {
	if _, ok := f.rows[interactionID]; !ok {
		return storage.ErrNotFound
	}
	f.feedback[interactionID] = rating
	return nil
}

func (f *fakeInteractions) GetInteraction(ctx context.Context, interactionID string) (models.Interaction, error) {
	in, ok := f.rows[interactionID]
	if !ok {
		return models.Interaction{}, storage.ErrNotFound
	}
	return in, nil
}

func (f *fakeInteractions) ListRecent(ctx context.Context, limit int) ([]models.Interaction, error) {
	out := make([]models.Interaction, 0, len(f.rows))
	for _, in := range f.rows {
		out = append(out, in)
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type fakeCorpora struct {
	corpora map[string]models.Corpus
	papers  map[string][]models.CorpusPaper
	ready   map[string][]string
	counts  map[string]int
}

func (f *fakeCorpora) CreateCorpus(ctx context.Context, c models.Corpus) error {
	f.corpora[c.CorpusID] = c
	return nil
}

func (f *fakeCorpora) GetCorpus(ctx context.Context, corpusID string) (models.Corpus, error) {
	c, ok := f.corpora[corpusID]
	if !ok {
		return models.Corpus{}, storage.ErrNotFound
	}
	return c, nil
}

func (f *fakeCorpora) ListCorpora(ctx context.Context) ([]models.Corpus, error) {
	out := make([]models.Corpus, 0, len(f.corpora))
	for _, c := range f.corpora {
		out = append(out, c)
	}
	return out, nil
}

func (f *fakeCorpora) UpsertCorpusPaper(ctx context.Context, cp models.CorpusPaper) error {
	f.papers[cp.CorpusID] = append(f.papers[cp.CorpusID], cp)
	return nil
}

func (f *fakeCorpora) ListCorpusPapers(ctx context.Context, corpusID string) ([]models.CorpusPaper, error) {
	return f.papers[corpusID], nil
}

func (f *fakeCorpora) CountCorpusPapersByStatus(ctx context.Context, corpusID string) (map[string]int, error) {
	return f.counts, nil
}

func (f *fakeCorpora) ListReadyPaperIDs(ctx context.Context, corpusID string) ([]string, error) {
	return f.ready[corpusID], nil
}

func newTestServer(t *testing.T) (*Server, *fakeAsker, *fakeInteractions, *fakeCorpora) {
	t.Helper()
	cfg := config.Config{APIAddr: ":0", DataRoot: t.TempDir()}
	asker := &fakeAsker{}
	inter := &fakeInteractions{rows: map[string]models.Interaction{}, feedback: map[string]string{}}
	corp := &fakeCorpora{
		corpora: map[string]models.Corpus{},
		papers:  map[string][]models.CorpusPaper{},
		ready:   map[string][]string{},
		counts:  map[string]int{},
	}
	log := logging.Component(logging.New("error"), "api")
	return NewServer(cfg, log, asker, inter, corp, nil), asker, inter, corp
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestAskEndpointAnswers(t *testing.T) {
	srv, asker, _, _ := newTestServer(t)
	asker.res = pipeline.AskResult{
		InteractionID: "i-1",
		Query:         "what is attention",
		Answer:        "Attention weighs tokens. [C1]",
		Citations:     []models.Citation{{Ref: "C1", PaperID: "p1", Title: "Attention"}},
		Outcome:       models.OutcomeAnswered,
	}

	rec := doJSON(t, srv.Routes(), http.MethodPost, "/api/ask", map[string]string{"query": "what is attention"})
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "i-1", body["interaction_id"])
	assert.Equal(t, models.OutcomeAnswered, body["outcome"])
	assert.NotEmpty(t, body["answer"])
	assert.Equal(t, "what is attention", asker.lastReq.Query)
	assert.Empty(t, asker.lastReq.PaperIDs)
}

func TestAskEndpointEmptyQuery(t *testing.T) {
	srv, asker, _, _ := newTestServer(t)
	asker.res = pipeline.AskResult{InteractionID: "i-2", Outcome: models.OutcomeEmptyQuery}
	asker.err = pipeline.ErrEmptyQuery

	rec := doJSON(t, srv.Routes(), http.MethodPost, "/api/ask", map[string]string{"query": "   "})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	body := decodeBody(t, rec)
	require.Contains(t, body, "error")
	assert.Equal(t, "SR-API-4001", body["error"].(map[string]any)["code"])
	assert.Equal(t, "i-2", body["interaction_id"])
}

func TestAskEndpointGenerationFailure(t *testing.T) {
	srv, asker, _, _ := newTestServer(t)
	asker.res = pipeline.AskResult{InteractionID: "i-3", Outcome: models.OutcomeGenerationUnavailable}
	asker.err = errors.New("generate answer: all providers exhausted")

	rec := doJSON(t, srv.Routes(), http.MethodPost, "/api/ask", map[string]string{"query": "anything"})
	require.Equal(t, http.StatusBadGateway, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "SR-GEN-5001", body["error"].(map[string]any)["code"])
	assert.Equal(t, "i-3", body["interaction_id"])
}

func TestAskEndpointScopesToCorpus(t *testing.T) {
	srv, asker, _, corp := newTestServer(t)
	corp.corpora["c-1"] = models.Corpus{CorpusID: "c-1", Name: "uploads"}
	corp.ready["c-1"] = []string{"p-a", "p-b"}
	asker.res = pipeline.AskResult{InteractionID: "i-4", Outcome: models.OutcomeAnswered}

	rec := doJSON(t, srv.Routes(), http.MethodPost, "/api/ask", map[string]string{
		"query":     "what do my papers say",
		"corpus_id": "c-1",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"p-a", "p-b"}, asker.lastReq.PaperIDs)

	rec = doJSON(t, srv.Routes(), http.MethodPost, "/api/ask", map[string]string{
		"query":     "q",
		"corpus_id": "nope",
	})
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestFeedbackEndpoint(t *testing.T) {
	srv, _, inter, _ := newTestServer(t)
	inter.rows["i-1"] = models.Interaction{InteractionID: "i-1"}
	h := srv.Routes()

	rec := doJSON(t, h, http.MethodPost, "/api/feedback", map[string]string{"interaction_id": "i-1", "rating": "positive"})
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "positive", inter.feedback["i-1"])

	// Feedback is an overwrite, not an append.
	rec = doJSON(t, h, http.MethodPost, "/api/feedback", map[string]string{"interaction_id": "i-1", "rating": "negative"})
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "negative", inter.feedback["i-1"])

	rec = doJSON(t, h, http.MethodPost, "/api/feedback", map[string]string{"interaction_id": "ghost", "rating": "positive"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/api/feedback", map[string]string{"interaction_id": "i-1", "rating": "meh"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestInteractionEndpoints(t *testing.T) {
	srv, _, inter, _ := newTestServer(t)
	inter.rows["i-1"] = models.Interaction{InteractionID: "i-1", Query: "q", Outcome: models.OutcomeAnswered}
	h := srv.Routes()

	rec := doJSON(t, h, http.MethodGet, "/api/interactions/i-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "i-1", decodeBody(t, rec)["interaction_id"])

	rec = doJSON(t, h, http.MethodGet, "/api/interactions/ghost", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/api/interactions?limit=5", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, decodeBody(t, rec), "interactions")

	rec = doJSON(t, h, http.MethodGet, "/api/interactions?limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCorpusUpload(t *testing.T) {
	srv, _, _, corp := newTestServer(t)
	corp.corpora["c-1"] = models.Corpus{CorpusID: "c-1", Name: "uploads"}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("files", "paper.pdf")
	require.NoError(t, err)
	_, err = fw.Write([]byte("%PDF-1.4 minimal test payload"))
	require.NoError(t, err)
	fw, err = mw.CreateFormFile("files", "notes.txt")
	require.NoError(t, err)
	_, err = fw.Write([]byte("not a pdf"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/corpora/c-1/papers", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decodeBody(t, rec)
	uploaded := body["uploaded"].([]any)
	require.Len(t, uploaded, 1)
	entry := uploaded[0].(map[string]any)
	paperID := entry["paper_id"].(string)
	assert.Len(t, paperID, 16)
	assert.Equal(t, models.CorpusPaperUploaded, entry["status"])

	skipped := body["skipped"].([]any)
	require.Len(t, skipped, 1)
	assert.Equal(t, "notes.txt", skipped[0])

	// The file lands under the corpus directory named by its hash.
	stored := filepath.Join(srv.cfg.DataRoot, "c-1", paperID+".pdf")
	if _, err := os.Stat(stored); err != nil {
		t.Fatalf("stored pdf missing: %v", err)
	}
	require.Len(t, corp.papers["c-1"], 1)
	assert.Equal(t, "paper.pdf", corp.papers["c-1"][0].Filename)
}

func TestCorpusUploadSamePDFKeepsOnePaper(t *testing.T) {
	srv, _, _, corp := newTestServer(t)
	corp.corpora["c-1"] = models.Corpus{CorpusID: "c-1", Name: "uploads"}

	upload := func() string {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		fw, err := mw.CreateFormFile("files", "paper.pdf")
		require.NoError(t, err)
		_, err = fw.Write([]byte("%PDF-1.4 identical bytes"))
		require.NoError(t, err)
		require.NoError(t, mw.Close())

		req := httptest.NewRequest(http.MethodPost, "/api/corpora/c-1/papers", &buf)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		rec := httptest.NewRecorder()
		srv.Routes().ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
		entry := decodeBody(t, rec)["uploaded"].([]any)[0].(map[string]any)
		return entry["paper_id"].(string)
	}

	first := upload()
	second := upload()
	assert.Equal(t, first, second)
}

func TestProgressFallsBackToStatusCounts(t *testing.T) {
	srv, _, _, corp := newTestServer(t)
	corp.corpora["c-1"] = models.Corpus{CorpusID: "c-1", Name: "uploads"}
	corp.counts = map[string]int{
		models.CorpusPaperReady:      2,
		models.CorpusPaperExtracting: 1,
		models.CorpusPaperFailed:     1,
	}

	rec := doJSON(t, srv.Routes(), http.MethodGet, "/api/corpora/c-1/progress", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, float64(4), body["total"])
	assert.Equal(t, float64(3), body["done"])
	assert.Equal(t, "database", body["source"])
}

func TestIngestWithoutTemporal(t *testing.T) {
	srv, _, _, corp := newTestServer(t)
	corp.corpora["c-1"] = models.Corpus{CorpusID: "c-1", Name: "uploads"}

	rec := doJSON(t, srv.Routes(), http.MethodPost, "/api/corpora/c-1/ingest", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestCreateAndListCorpora(t *testing.T) {
	srv, _, _, corp := newTestServer(t)
	h := srv.Routes()

	rec := doJSON(t, h, http.MethodPost, "/api/corpora", map[string]string{"name": "thesis sources"})
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decodeBody(t, rec)
	assert.NotEmpty(t, created["corpus_id"])
	assert.Equal(t, "thesis sources", created["name"])
	require.Len(t, corp.corpora, 1)

	rec = doJSON(t, h, http.MethodPost, "/api/corpora", map[string]string{"name": "  "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/api/corpora", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, decodeBody(t, rec), "corpora")
}

func TestRateLimitKicksIn(t *testing.T) {
	srv, asker, _, _ := newTestServer(t)
	srv.limiter = newRateLimiter(0.0001, 1)
	asker.res = pipeline.AskResult{InteractionID: "i-1", Outcome: models.OutcomeAnswered}
	h := srv.Routes()

	first := doJSON(t, h, http.MethodPost, "/api/ask", map[string]string{"query": "q"})
	require.Equal(t, http.StatusOK, first.Code)

	second := doJSON(t, h, http.MethodPost, "/api/ask", map[string]string{"query": "q"})
	require.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Equal(t, "SR-API-4029", decodeBody(t, second)["error"].(map[string]any)["code"])

	// Probes stay exempt.
	health := doJSON(t, h, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, health.Code)
}
