package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	enums "go.temporal.io/api/enums/v1"
	tclient "go.temporal.io/sdk/client"

	"scholarag/internal/models"
	"scholarag/internal/storage"
	"scholarag/internal/util"
	"scholarag/internal/workflows"
)

const maxUploadBytes = 128 << 20

func (s *Server) handleCorpora(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		list, err := s.corpora.ListCorpora(r.Context())
		if err != nil {
			writeErr(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"corpora": list})
	case http.MethodPost:
		var req struct {
			Name string `json:"name"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeErr(w, http.StatusBadRequest, errors.New("invalid JSON body"))
			return
		}
		req.Name = strings.TrimSpace(req.Name)
		if req.Name == "" {
			writeErr(w, http.StatusBadRequest, errors.New("name is required"))
			return
		}
		c := models.Corpus{
			CorpusID:  uuid.NewString(),
			Name:      req.Name,
			CreatedAt: time.Now().UTC(),
		}
		if err := s.corpora.CreateCorpus(r.Context(), c); err != nil {
			writeErr(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusCreated, c)
	default:
		writeErr(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
	}
}

// handleCorporaScoped routes /api/corpora/{id}[/...] by hand. The id is a
// UUID, so a stray path never shadows a subresource name.
func (s *Server) handleCorporaScoped(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/corpora/"), "/")
	parts := strings.Split(rest, "/")
	if len(parts) == 0 || parts[0] == "" {
		writeErr(w, http.StatusNotFound, errors.New("corpus id is required"))
		return
	}
	corpusID := parts[0]

	corpus, err := s.corpora.GetCorpus(r.Context(), corpusID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeErr(w, http.StatusNotFound, errors.New("corpus not found"))
			return
		}
		writeErr(w, http.StatusInternalServerError, err)
		return
	}

	if len(parts) == 1 {
		if r.Method != http.MethodGet {
			writeErr(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
			return
		}
		counts, err := s.corpora.CountCorpusPapersByStatus(r.Context(), corpusID)
		if err != nil {
			writeErr(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"corpus": corpus, "paper_counts": counts})
		return
	}

	switch {
	case parts[1] == "papers" && r.Method == http.MethodPost:
		s.handleUpload(w, r, corpusID)
	case parts[1] == "papers" && r.Method == http.MethodGet:
		papers, err := s.corpora.ListCorpusPapers(r.Context(), corpusID)
		if err != nil {
			writeErr(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"papers": papers})
	case parts[1] == "ingest" && r.Method == http.MethodPost:
		s.handleIngest(w, r, corpusID)
	case parts[1] == "progress" && r.Method == http.MethodGet:
		s.handleProgress(w, r, corpusID)
	default:
		writeErr(w, http.StatusNotFound, errors.New("unknown corpus resource"))
	}
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request, corpusID string) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeErr(w, http.StatusBadRequest, errors.New("invalid multipart form"))
		return
	}
	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		if single := firstSingleFile(r); single != nil {
			files = []*multipart.FileHeader{single}
		}
	}
	if len(files) == 0 {
		writeErr(w, http.StatusBadRequest, errors.New("no files in upload, use the files field"))
		return
	}

	dir := filepath.Join(s.cfg.DataRoot, corpusID)
	if err := util.EnsureDir(dir); err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}

	var uploaded []models.CorpusPaper
	var skipped []string
	for _, fh := range files {
		if !strings.EqualFold(filepath.Ext(fh.Filename), ".pdf") {
			skipped = append(skipped, fh.Filename)
			continue
		}
		paperID, err := s.saveUploadedFile(dir, fh)
		if err != nil {
			s.log.WithError(err).WithField("filename", fh.Filename).Warn("failed to store upload")
			skipped = append(skipped, fh.Filename)
			continue
		}
		cp := models.CorpusPaper{
			CorpusID: corpusID,
			PaperID:  paperID,
			Filename: fh.Filename,
			Status:   models.CorpusPaperUploaded,
		}
		if err := s.corpora.UpsertCorpusPaper(r.Context(), cp); err != nil {
			writeErr(w, http.StatusInternalServerError, err)
			return
		}
		uploaded = append(uploaded, cp)
	}
	if len(uploaded) == 0 {
		writeErr(w, http.StatusBadRequest, errors.New("no usable PDF files in upload"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"uploaded": uploaded, "skipped": skipped})
}

// firstSingleFile accepts clients that post one file under a field named
// file instead of files.
func firstSingleFile(r *http.Request) *multipart.FileHeader {
	for _, name := range []string{"file", "pdf"} {
		if fhs := r.MultipartForm.File[name]; len(fhs) > 0 {
			return fhs[0]
		}
	}
	return nil
}

// saveUploadedFile streams one upload to disk and derives the paper id from
// the content hash, so re-uploading the same PDF never forks a new paper.
func (s *Server) saveUploadedFile(dir string, fh *multipart.FileHeader) (string, error) {
	src, err := fh.Open()
	if err != nil {
		return "", err
	}
	defer src.Close()

	tmp, err := os.CreateTemp(dir, "upload-*.pdf")
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp.Name())

	digest, err := util.SHA256HexFromReader(io.TeeReader(src, tmp))
	if err != nil {
		tmp.Close()
		return "", err
	}
	info, err := tmp.Stat()
	if err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	if info.Size() == 0 {
		return "", errors.New("empty file")
	}

	paperID := digest[:16]
	if err := os.Rename(tmp.Name(), filepath.Join(dir, paperID+".pdf")); err != nil {
		return "", err
	}
	return paperID, nil
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request, corpusID string) {
	if s.temporal == nil {
		writeErr(w, http.StatusServiceUnavailable, errors.New("ingest is unavailable, no workflow service is configured"))
		return
	}
	input := workflows.CorpusIngestInput{
		CorpusID:              corpusID,
		InputDir:              filepath.Join(s.cfg.DataRoot, corpusID),
		MaxConcurrentChildren: s.cfg.IngestMaxChildren,
	}
	opts := tclient.StartWorkflowOptions{
		ID:                                       "ingest-" + corpusID,
		TaskQueue:                                s.cfg.TemporalTaskQueue,
		WorkflowIDReusePolicy:                    enums.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE,
		WorkflowExecutionErrorWhenAlreadyStarted: true,
	}
	we, err := s.temporal.ExecuteWorkflow(r.Context(), opts, workflows.CorpusIngestWorkflow, input)
	if err != nil {
		writeErr(w, http.StatusConflict, errors.New("an ingest run is already in progress for this corpus"))
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"workflow_id": we.GetID(),
		"run_id":      we.GetRunID(),
	})
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request, corpusID string) {
	if s.temporal != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		resp, err := s.temporal.QueryWorkflow(ctx, "ingest-"+corpusID, "", workflows.QueryGetProgress)
		if err == nil {
			var progress workflows.IngestProgress
			if err := resp.Get(&progress); err == nil {
				writeJSON(w, http.StatusOK, progress)
				return
			}
		}
		// No live run to query. The status counts below cover finished and
		// never-started corpora.
	}
	counts, err := s.corpora.CountCorpusPapersByStatus(r.Context(), corpusID)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	total := 0
	done := 0
	for status, n := range counts {
		total += n
		if status == models.CorpusPaperReady || status == models.CorpusPaperFailed {
			done += n
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"corpus_id": corpusID,
		"total":     total,
		"done":      done,
		"by_status": counts,
		"source":    "database",
	})
}
