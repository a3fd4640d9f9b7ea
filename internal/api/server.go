// Package api exposes the research assistant over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	tclient "go.temporal.io/sdk/client"

	"scholarag/internal/config"
	"scholarag/internal/models"
	"scholarag/internal/pipeline"
	"scholarag/internal/storage"
)

// Asker runs one question through the retrieval pipeline.
type Asker interface {
	Ask(ctx context.Context, req pipeline.AskRequest) (pipeline.AskResult, error)
}

// InteractionStore reads and annotates logged interactions.
type InteractionStore interface {
	SetFeedback(ctx context.Context, interactionID, rating string) error
	GetInteraction(ctx context.Context, interactionID string) (models.Interaction, error)
	ListRecent(ctx context.Context, limit int) ([]models.Interaction, error)
}

// CorpusStore manages uploaded corpora and their papers.
type CorpusStore interface {
	CreateCorpus(ctx context.Context, corpus models.Corpus) error
	GetCorpus(ctx context.Context, corpusID string) (models.Corpus, error)
	ListCorpora(ctx context.Context) ([]models.Corpus, error)
	UpsertCorpusPaper(ctx context.Context, cp models.CorpusPaper) error
	ListCorpusPapers(ctx context.Context, corpusID string) ([]models.CorpusPaper, error)
	CountCorpusPapersByStatus(ctx context.Context, corpusID string) (map[string]int, error)
	ListReadyPaperIDs(ctx context.Context, corpusID string) ([]string, error)
}

type Server struct {
	cfg          config.Config
	log          *logrus.Entry
	asker        Asker
	interactions InteractionStore
	corpora      CorpusStore
	temporal     tclient.Client
	limiter      *rateLimiter
}

// NewServer wires the HTTP layer. temporal may be nil, in which case ingest
// returns an error and progress falls back to corpus paper counts.
func NewServer(cfg config.Config, log *logrus.Entry, asker Asker, interactions InteractionStore, corpora CorpusStore, temporal tclient.Client) *Server {
	s := &Server{
		cfg:          cfg,
		log:          log,
		asker:        asker,
		interactions: interactions,
		corpora:      corpora,
		temporal:     temporal,
	}
	if cfg.RateLimitRPS > 0 {
		s.limiter = newRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	}
	return s
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/api/ask", s.handleAsk)
	mux.HandleFunc("/api/feedback", s.handleFeedback)
	mux.HandleFunc("/api/interactions", s.handleInteractions)
	mux.HandleFunc("/api/interactions/", s.handleInteractionByID)
	mux.HandleFunc("/api/corpora", s.handleCorpora)
	mux.HandleFunc("/api/corpora/", s.handleCorporaScoped)

	var h http.Handler = mux
	h = s.withRateLimit(h)
	h = s.withRequestLog(h)
	h = withTracing(h)
	return withCORS(h)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type askRequest struct {
	Query    string `json:"query"`
	CorpusID string `json:"corpus_id"`
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErr(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
		return
	}
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, errors.New("invalid JSON body"))
		return
	}

	askReq := pipeline.AskRequest{Query: req.Query}
	if cid := strings.TrimSpace(req.CorpusID); cid != "" {
		if _, err := s.corpora.GetCorpus(r.Context(), cid); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				writeErr(w, http.StatusNotFound, errors.New("corpus not found"))
				return
			}
			writeErr(w, http.StatusInternalServerError, err)
			return
		}
		ids, err := s.corpora.ListReadyPaperIDs(r.Context(), cid)
		if err != nil {
			writeErr(w, http.StatusInternalServerError, err)
			return
		}
		askReq.PaperIDs = ids
	}

	res, err := s.asker.Ask(r.Context(), askReq)
	switch pipeline.Classify(err) {
	case pipeline.FailureInput:
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error": map[string]any{
				"code":    "SR-API-4001",
				"message": "Query must not be empty.",
			},
			"interaction_id": res.InteractionID,
		})
	case pipeline.FailureTransient, pipeline.FailurePermanent:
		s.log.WithError(err).WithField("interaction_id", res.InteractionID).Error("ask failed")
		writeJSON(w, http.StatusBadGateway, map[string]any{
			"error": map[string]any{
				"code":    "SR-GEN-5001",
				"message": "Answer generation is unavailable right now. The interaction was logged.",
			},
			"interaction_id": res.InteractionID,
			"outcome":        res.Outcome,
		})
	default:
		body := map[string]any{
			"interaction_id":     res.InteractionID,
			"query":              res.Query,
			"refined_query":      res.RefinedQuery,
			"answer":             res.Answer,
			"citations":          res.Citations,
			"papers":             res.Papers,
			"outcome":            res.Outcome,
			"stage_latencies_ms": res.StageLatencies,
		}
		if msg := outcomeMessage(res.Outcome); msg != "" {
			body["message"] = msg
		}
		writeJSON(w, http.StatusOK, body)
	}
}

// outcomeMessage explains degraded outcomes to clients. Answered responses
// speak for themselves.
func outcomeMessage(outcome string) string {
	switch outcome {
	case models.OutcomeNoPapers:
		return "No relevant papers were found for this query."
	case models.OutcomeNoContext:
		return "The retrieved papers produced no usable context."
	default:
		return ""
	}
}

type feedbackRequest struct {
	InteractionID string `json:"interaction_id"`
	Rating        string `json:"rating"`
}

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErr(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
		return
	}
	var req feedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, errors.New("invalid JSON body"))
		return
	}
	req.InteractionID = strings.TrimSpace(req.InteractionID)
	if req.InteractionID == "" {
		writeErr(w, http.StatusBadRequest, errors.New("interaction_id is required"))
		return
	}
	if req.Rating != models.FeedbackPositive && req.Rating != models.FeedbackNegative {
		writeErr(w, http.StatusBadRequest, errors.New("rating must be positive or negative"))
		return
	}
	if err := s.interactions.SetFeedback(r.Context(), req.InteractionID, req.Rating); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeErr(w, http.StatusNotFound, errors.New("interaction not found"))
			return
		}
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleInteractions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErr(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
		return
	}
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeErr(w, http.StatusBadRequest, errors.New("limit must be an integer"))
			return
		}
		limit = n
	}
	rows, err := s.interactions.ListRecent(r.Context(), limit)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"interactions": rows})
}

func (s *Server) handleInteractionByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErr(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
		return
	}
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/interactions/"), "/")
	if id == "" || strings.Contains(id, "/") {
		writeErr(w, http.StatusNotFound, errors.New("not found"))
		return
	}
	row, err := s.interactions.GetInteraction(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeErr(w, http.StatusNotFound, errors.New("interaction not found"))
			return
		}
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, row)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, status int, err error) {
	code, msg := toAPIError(status, err)
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": msg,
		},
	})
}

// toAPIError maps an error to a stable code and a client-safe message.
// Internal detail stays in the logs.
func toAPIError(status int, err error) (string, string) {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	switch status {
	case http.StatusBadRequest:
		return "SR-API-4001", msg
	case http.StatusNotFound:
		return "SR-API-4004", msg
	case http.StatusMethodNotAllowed:
		return "SR-API-4005", msg
	case http.StatusConflict:
		return "SR-API-4009", msg
	case http.StatusServiceUnavailable:
		return "SR-API-5030", msg
	}

	low := strings.ToLower(msg)
	switch {
	case strings.Contains(low, "does not exist") && strings.Contains(low, "relation"):
		return "SR-DB-5001", "The database schema is missing. Run the server once with a reachable database so it can prepare the schema."
	case strings.Contains(low, "connection refused") || strings.Contains(low, "failed to connect"):
		return "SR-DB-5002", "The database is unreachable."
	case strings.Contains(low, "workflow"):
		return "SR-JOB-5003", "The ingest service rejected the request: " + msg
	}
	return "SR-API-5000", "Something went wrong. Check the server logs."
}
