// Package workflows coordinates corpus ingest on Temporal: one parent run
// per corpus fans out to one child workflow per uploaded PDF.
package workflows

import (
	"path/filepath"
	"strings"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"scholarag/internal/activities"
	"scholarag/internal/models"
)

const (
	QueryGetProgress    = "GetProgress"
	QueryGetPaperStatus = "GetPaperStatus"
)

func CorpusIngestWorkflow(ctx workflow.Context, input CorpusIngestInput) (string, error) {
	progress := IngestProgress{
		CorpusID: input.CorpusID,
		PerPaper: map[string]string{},
	}
	if err := workflow.SetQueryHandler(ctx, QueryGetProgress, func() (IngestProgress, error) {
		return progress, nil
	}); err != nil {
		return "", err
	}

	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 2 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    2 * time.Second,
			BackoffCoefficient: 2,
			MaximumInterval:    20 * time.Second,
			MaximumAttempts:    3,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	var listOut activities.ListPDFsOutput
	if err := workflow.ExecuteActivity(ctx, "ListPDFsActivity", activities.ListPDFsInput{InputDir: input.InputDir}).Get(ctx, &listOut); err != nil {
		return "", err
	}
	paths := listOut.Paths
	progress.Total = len(paths)

	maxChildren := input.MaxConcurrentChildren
	if maxChildren <= 0 {
		maxChildren = 3
	}

	for i := 0; i < len(paths); i += maxChildren {
		end := i + maxChildren
		if end > len(paths) {
			end = len(paths)
		}
		futures := make([]workflow.ChildWorkflowFuture, 0, end-i)
		names := make([]string, 0, end-i)
		for _, path := range paths[i:end] {
			name := filepath.Base(path)
			progress.PerPaper[name] = "processing"
			cwo := workflow.ChildWorkflowOptions{
				WorkflowID: "paper-" + sanitizeID(input.CorpusID) + "-" + sanitizeID(name),
			}
			childCtx := workflow.WithChildOptions(ctx, cwo)
			futures = append(futures, workflow.ExecuteChildWorkflow(childCtx, PaperIngestWorkflow, PaperIngestInput{
				CorpusID:  input.CorpusID,
				PaperPath: path,
			}))
			names = append(names, name)
		}

		for idx, f := range futures {
			var status string
			err := f.Get(ctx, &status)
			name := names[idx]
			if err != nil {
				progress.Failed++
				progress.PerPaper[name] = models.CorpusPaperFailed
				continue
			}
			if status == models.CorpusPaperFailed {
				progress.Failed++
			}
			progress.Done++
			progress.PerPaper[name] = status
		}
	}
	return "completed", nil
}

// PaperIngestWorkflow takes one PDF from upload to searchable passages. It
// returns the terminal corpus paper status; expected failures like scanned
// PDFs end the workflow normally so the parent keeps going.
func PaperIngestWorkflow(ctx workflow.Context, input PaperIngestInput) (string, error) {
	filename := filepath.Base(input.PaperPath)
	// Uploads are stored under their content hash, so the file name is the
	// paper id.
	paperID := strings.TrimSuffix(filename, filepath.Ext(filename))
	status := PaperIngestStatus{
		PaperID:     paperID,
		CurrentStep: "init",
		Status:      "processing",
		Steps:       map[string]string{},
	}
	if err := workflow.SetQueryHandler(ctx, QueryGetPaperStatus, func() (PaperIngestStatus, error) {
		return status, nil
	}); err != nil {
		return "", err
	}

	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 5 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    2 * time.Second,
			BackoffCoefficient: 2,
			MaximumInterval:    20 * time.Second,
			MaximumAttempts:    2,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	setStatus := func(st, reason string) {
		_ = workflow.ExecuteActivity(ctx, "SetPaperStatusActivity", activities.SetPaperStatusInput{
			CorpusID:   input.CorpusID,
			PaperID:    paperID,
			Status:     st,
			FailReason: reason,
		}).Get(ctx, nil)
	}
	fail := func(step, reason string) (string, error) {
		status.Status = models.CorpusPaperFailed
		status.FailReason = reason
		status.Steps[step] = "failed"
		setStatus(models.CorpusPaperFailed, reason)
		return models.CorpusPaperFailed, nil
	}

	status.CurrentStep = "extract_text"
	status.Steps[status.CurrentStep] = "processing"
	setStatus(models.CorpusPaperExtracting, "")
	var textOut activities.ExtractTextOutput
	if err := workflow.ExecuteActivity(ctx, "ExtractTextActivity", activities.ExtractTextInput{PaperPath: input.PaperPath}).Get(ctx, &textOut); err != nil {
		if isNoTextError(err) {
			return fail(status.CurrentStep, "no extractable text found (scanned PDF?)")
		}
		setStatus(models.CorpusPaperFailed, trimReason(err.Error()))
		return "", err
	}
	status.Steps[status.CurrentStep] = "done"

	status.CurrentStep = "chunk_text"
	status.Steps[status.CurrentStep] = "processing"
	var chunkOut activities.ChunkTextOutput
	if err := workflow.ExecuteActivity(ctx, "ChunkTextActivity", activities.ChunkTextInput{PaperID: paperID, Text: textOut.Text}).Get(ctx, &chunkOut); err != nil {
		setStatus(models.CorpusPaperFailed, trimReason(err.Error()))
		return "", err
	}
	if len(chunkOut.Passages) == 0 {
		return fail(status.CurrentStep, "extracted text produced no usable chunks")
	}
	status.Steps[status.CurrentStep] = "done"

	status.CurrentStep = "embed_passages"
	status.Steps[status.CurrentStep] = "processing"
	setStatus(models.CorpusPaperEmbedding, "")
	texts := make([]string, 0, len(chunkOut.Passages))
	for _, p := range chunkOut.Passages {
		texts = append(texts, p.Text)
	}
	var embedOut activities.EmbedPassagesOutput
	if err := workflow.ExecuteActivity(ctx, "EmbedPassagesActivity", activities.EmbedPassagesInput{Texts: texts}).Get(ctx, &embedOut); err != nil {
		setStatus(models.CorpusPaperFailed, trimReason(err.Error()))
		return "", err
	}
	status.Provider = embedOut.ProviderName
	status.Steps[status.CurrentStep] = "done"

	status.CurrentStep = "store_passages"
	status.Steps[status.CurrentStep] = "processing"
	if err := workflow.ExecuteActivity(ctx, "StorePassagesActivity", activities.StorePassagesInput{
		Paper: models.Paper{
			PaperID: paperID,
			Title:   paperTitle(textOut.Title, filename),
			Source:  "upload",
		},
		Passages: chunkOut.Passages,
		Vectors:  embedOut.Vectors,
	}).Get(ctx, nil); err != nil {
		if isEncodingError(err) {
			return fail(status.CurrentStep, "paper contains invalid text encoding after extraction")
		}
		setStatus(models.CorpusPaperFailed, trimReason(err.Error()))
		return "", err
	}
	status.Steps[status.CurrentStep] = "done"

	status.CurrentStep = "done"
	status.Status = models.CorpusPaperReady
	setStatus(models.CorpusPaperReady, "")
	return models.CorpusPaperReady, nil
}

// isNoTextError matches by message because activity errors cross the wire
// as application errors, not wrapped sentinels.
func isNoTextError(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "no extractable text")
}

func isEncodingError(err error) bool {
	e := strings.ToLower(err.Error())
	return strings.Contains(e, "invalid byte sequence") || strings.Contains(e, "sqlstate 22021")
}

func trimReason(s string) string {
	if r := []rune(s); len(r) > 500 {
		return string(r[:500])
	}
	return s
}

func paperTitle(extracted, filename string) string {
	if strings.TrimSpace(extracted) != "" {
		return extracted
	}
	return strings.TrimSuffix(filename, filepath.Ext(filename))
}

func sanitizeID(s string) string {
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, "_", "-")
	s = strings.ReplaceAll(s, ".", "-")
	s = strings.ReplaceAll(s, "/", "-")
	return s
}
