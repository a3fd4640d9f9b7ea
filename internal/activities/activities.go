// Package activities holds the worker-side operations of corpus ingest:
// listing uploads, extracting PDF text, chunking, embedding and storing
// passages, and tracking per-paper status.
package activities

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"
	"github.com/sirupsen/logrus"

	"scholarag/internal/chunk"
	"scholarag/internal/config"
	"scholarag/internal/models"
	"scholarag/internal/providers"
	"scholarag/internal/storage"
	"scholarag/internal/util"
	"scholarag/internal/vector"
)

// ErrNoExtractableText marks scanned PDFs without a text layer. The ingest
// workflow records it as a terminal paper failure instead of retrying.
var ErrNoExtractableText = errors.New("no extractable text found in PDF")

type Activities struct {
	cfg     config.Config
	papers  *storage.PaperRepo
	corpora *storage.CorpusRepo
	audit   *storage.LLMAuditRepo
	store   vector.Store
	pm      *providers.Manager
	log     *logrus.Entry
}

func New(cfg config.Config, db *storage.DB, log *logrus.Entry) (*Activities, error) {
	pm, err := providers.NewManager(cfg)
	if err != nil {
		return nil, err
	}
	return &Activities{
		cfg:     cfg,
		papers:  storage.NewPaperRepo(db),
		corpora: storage.NewCorpusRepo(db),
		audit:   storage.NewLLMAuditRepo(db, log),
		store:   vector.NewPGStore(db.Pool, cfg.DistanceMetric, cfg.EmbedDim, cfg.EmbedVersion),
		pm:      pm,
		log:     log,
	}, nil
}

func (a *Activities) ListPDFsActivity(ctx context.Context, in ListPDFsInput) (ListPDFsOutput, error) {
	_ = ctx
	entries, err := os.ReadDir(in.InputDir)
	if err != nil {
		return ListPDFsOutput{}, fmt.Errorf("read input dir: %w", err)
	}
	paths := make([]string, 0)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.HasSuffix(strings.ToLower(e.Name()), ".pdf") {
			paths = append(paths, filepath.Join(in.InputDir, e.Name()))
		}
	}
	sort.Strings(paths)
	return ListPDFsOutput{Paths: paths}, nil
}

func (a *Activities) ExtractTextActivity(ctx context.Context, in ExtractTextInput) (ExtractTextOutput, error) {
	_ = ctx
	f, r, err := pdf.Open(in.PaperPath)
	if err != nil {
		return ExtractTextOutput{}, fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	reader, err := r.GetPlainText()
	if err != nil {
		return ExtractTextOutput{}, fmt.Errorf("extract pdf text: %w", err)
	}
	buf := new(strings.Builder)
	if _, err := io.Copy(buf, reader); err != nil {
		return ExtractTextOutput{}, fmt.Errorf("read extracted text: %w", err)
	}
	text := util.SanitizeText(buf.String())
	if text == "" {
		return ExtractTextOutput{}, ErrNoExtractableText
	}

	artifact := strings.TrimSuffix(in.PaperPath, filepath.Ext(in.PaperPath)) + ".txt"
	if err := util.WriteTextAtomic(artifact, text); err != nil {
		a.log.WithError(err).WithField("path", artifact).Warn("failed to write text artifact")
	}
	return ExtractTextOutput{Text: text, Title: titleFromText(text)}, nil
}

func (a *Activities) ChunkTextActivity(ctx context.Context, in ChunkTextInput) (ChunkTextOutput, error) {
	_ = ctx
	parts := chunk.Split(in.Text, a.cfg.ChunkSize, a.cfg.ChunkOverlap)
	passages := make([]models.Passage, 0, len(parts))
	for i, part := range parts {
		part = util.SanitizeText(part)
		if part == "" {
			continue
		}
		passages = append(passages, models.Passage{
			PaperID:    in.PaperID,
			ChunkIndex: i,
			Text:       part,
		})
	}
	return ChunkTextOutput{Passages: passages}, nil
}

func (a *Activities) EmbedPassagesActivity(ctx context.Context, in EmbedPassagesInput) (EmbedPassagesOutput, error) {
	provider, _ := a.pm.EmbedProvider()
	start := time.Now()
	vectors, info, err := provider.Embed(ctx, providers.EmbedRequest{
		Operation: "embed_passages",
		Inputs:    in.Texts,
		Dimension: a.cfg.EmbedDim,
	})
	a.audit.RecordCall(ctx, info, "embed_passages", time.Since(start), err)
	if err != nil {
		return EmbedPassagesOutput{}, err
	}
	if len(vectors) != len(in.Texts) {
		return EmbedPassagesOutput{}, fmt.Errorf("embedding count mismatch: %d inputs, %d vectors", len(in.Texts), len(vectors))
	}
	return EmbedPassagesOutput{Vectors: vectors, ProviderName: info.Name, Model: info.Model}, nil
}

func (a *Activities) StorePassagesActivity(ctx context.Context, in StorePassagesInput) error {
	if len(in.Vectors) != len(in.Passages) {
		return fmt.Errorf("store passages: %d passages, %d vectors", len(in.Passages), len(in.Vectors))
	}
	// The paper row must exist before its passages reference it.
	if err := a.papers.UpsertPapers(ctx, []models.Paper{in.Paper}); err != nil {
		return err
	}
	passages := make([]models.Passage, len(in.Passages))
	copy(passages, in.Passages)
	for i := range passages {
		passages[i].Embedding = in.Vectors[i]
	}
	return a.store.Upsert(ctx, passages)
}

func (a *Activities) SetPaperStatusActivity(ctx context.Context, in SetPaperStatusInput) error {
	return a.corpora.UpdateCorpusPaperStatus(ctx, in.CorpusID, in.PaperID, in.Status, in.FailReason)
}

// titleFromText guesses a display title from the first non-empty line of
// extracted text. PDFs rarely carry reliable metadata.
func titleFromText(text string) string {
	s := bufio.NewScanner(strings.NewReader(text))
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if line == "" {
			continue
		}
		if r := []rune(line); len(r) > 200 {
			return string(r[:200])
		}
		return line
	}
	return ""
}
