package workflows

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/testsuite"

	"scholarag/internal/activities"
	"scholarag/internal/models"
)

func registerActivityName[T any](env *testsuite.TestWorkflowEnvironment, name string, fn T) {
	env.RegisterActivityWithOptions(fn, activity.RegisterOptions{Name: name})
}

func registerPaperActivities(env *testsuite.TestWorkflowEnvironment) {
	registerActivityName(env, "ExtractTextActivity", func(context.Context, activities.ExtractTextInput) (activities.ExtractTextOutput, error) {
		return activities.ExtractTextOutput{}, nil
	})
	registerActivityName(env, "ChunkTextActivity", func(context.Context, activities.ChunkTextInput) (activities.ChunkTextOutput, error) {
		return activities.ChunkTextOutput{}, nil
	})
	registerActivityName(env, "EmbedPassagesActivity", func(context.Context, activities.EmbedPassagesInput) (activities.EmbedPassagesOutput, error) {
		return activities.EmbedPassagesOutput{}, nil
	})
	registerActivityName(env, "StorePassagesActivity", func(context.Context, activities.StorePassagesInput) error { return nil })
	registerActivityName(env, "SetPaperStatusActivity", func(context.Context, activities.SetPaperStatusInput) error { return nil })
}

func TestPaperIngestWorkflowSuccess(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(PaperIngestWorkflow)
	registerPaperActivities(env)

	var statuses []activities.SetPaperStatusInput
	env.OnActivity("SetPaperStatusActivity", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		statuses = append(statuses, args.Get(1).(activities.SetPaperStatusInput))
	}).Return(nil)
	env.OnActivity("ExtractTextActivity", mock.Anything, activities.ExtractTextInput{PaperPath: "/up/c1/abc123.pdf"}).
		Return(activities.ExtractTextOutput{Text: "Alpha Networks\nbody text", Title: "Alpha Networks"}, nil)
	env.OnActivity("ChunkTextActivity", mock.Anything, mock.Anything).
		Return(activities.ChunkTextOutput{Passages: []models.Passage{{PaperID: "abc123", ChunkIndex: 0, Text: "body text"}}}, nil)
	env.OnActivity("EmbedPassagesActivity", mock.Anything, activities.EmbedPassagesInput{Texts: []string{"body text"}}).
		Return(activities.EmbedPassagesOutput{Vectors: [][]float32{{0.1, 0.2}}, ProviderName: "mock", Model: "mock-embed"}, nil)
	env.OnActivity("StorePassagesActivity", mock.Anything, mock.Anything).Return(nil)

	env.ExecuteWorkflow(PaperIngestWorkflow, PaperIngestInput{CorpusID: "c1", PaperPath: "/up/c1/abc123.pdf"})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out string
	require.NoError(t, env.GetWorkflowResult(&out))
	require.Equal(t, models.CorpusPaperReady, out)

	require.NotEmpty(t, statuses)
	require.Equal(t, models.CorpusPaperExtracting, statuses[0].Status)
	require.Equal(t, models.CorpusPaperReady, statuses[len(statuses)-1].Status)
	for _, s := range statuses {
		require.Equal(t, "abc123", s.PaperID)
	}
}

func TestPaperIngestWorkflowNoTextFailsGracefully(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(PaperIngestWorkflow)
	registerPaperActivities(env)

	var statuses []activities.SetPaperStatusInput
	env.OnActivity("SetPaperStatusActivity", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		statuses = append(statuses, args.Get(1).(activities.SetPaperStatusInput))
	}).Return(nil)
	env.OnActivity("ExtractTextActivity", mock.Anything, mock.Anything).
		Return(activities.ExtractTextOutput{}, errors.New("no extractable text found in PDF"))

	env.ExecuteWorkflow(PaperIngestWorkflow, PaperIngestInput{CorpusID: "c1", PaperPath: "/up/c1/scan.pdf"})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out string
	require.NoError(t, env.GetWorkflowResult(&out))
	require.Equal(t, models.CorpusPaperFailed, out)

	last := statuses[len(statuses)-1]
	require.Equal(t, models.CorpusPaperFailed, last.Status)
	require.NotEmpty(t, last.FailReason)
}

func TestPaperIngestWorkflowEmptyChunksFail(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(PaperIngestWorkflow)
	registerPaperActivities(env)

	env.OnActivity("SetPaperStatusActivity", mock.Anything, mock.Anything).Return(nil)
	env.OnActivity("ExtractTextActivity", mock.Anything, mock.Anything).
		Return(activities.ExtractTextOutput{Text: "x", Title: "x"}, nil)
	env.OnActivity("ChunkTextActivity", mock.Anything, mock.Anything).
		Return(activities.ChunkTextOutput{}, nil)

	env.ExecuteWorkflow(PaperIngestWorkflow, PaperIngestInput{CorpusID: "c1", PaperPath: "/up/c1/empty.pdf"})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out string
	require.NoError(t, env.GetWorkflowResult(&out))
	require.Equal(t, models.CorpusPaperFailed, out)
}

func TestCorpusIngestWorkflowTracksProgress(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(CorpusIngestWorkflow)
	env.RegisterWorkflow(PaperIngestWorkflow)
	registerPaperActivities(env)
	registerActivityName(env, "ListPDFsActivity", func(context.Context, activities.ListPDFsInput) (activities.ListPDFsOutput, error) {
		return activities.ListPDFsOutput{}, nil
	})

	env.OnActivity("ListPDFsActivity", mock.Anything, activities.ListPDFsInput{InputDir: "/up/c1"}).
		Return(activities.ListPDFsOutput{Paths: []string{"/up/c1/good.pdf", "/up/c1/scan.pdf"}}, nil)
	env.OnActivity("SetPaperStatusActivity", mock.Anything, mock.Anything).Return(nil)
	env.OnActivity("ExtractTextActivity", mock.Anything, activities.ExtractTextInput{PaperPath: "/up/c1/good.pdf"}).
		Return(activities.ExtractTextOutput{Text: "Good Paper\nbody", Title: "Good Paper"}, nil)
	env.OnActivity("ExtractTextActivity", mock.Anything, activities.ExtractTextInput{PaperPath: "/up/c1/scan.pdf"}).
		Return(activities.ExtractTextOutput{}, errors.New("no extractable text found in PDF"))
	env.OnActivity("ChunkTextActivity", mock.Anything, mock.Anything).
		Return(activities.ChunkTextOutput{Passages: []models.Passage{{PaperID: "good", ChunkIndex: 0, Text: "body"}}}, nil)
	env.OnActivity("EmbedPassagesActivity", mock.Anything, mock.Anything).
		Return(activities.EmbedPassagesOutput{Vectors: [][]float32{{0.1, 0.2}}, ProviderName: "mock"}, nil)
	env.OnActivity("StorePassagesActivity", mock.Anything, mock.Anything).Return(nil)

	env.ExecuteWorkflow(CorpusIngestWorkflow, CorpusIngestInput{CorpusID: "c1", InputDir: "/up/c1", MaxConcurrentChildren: 2})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out string
	require.NoError(t, env.GetWorkflowResult(&out))
	require.Equal(t, "completed", out)

	val, err := env.QueryWorkflow(QueryGetProgress)
	require.NoError(t, err)
	var progress IngestProgress
	require.NoError(t, val.Get(&progress))
	require.Equal(t, 2, progress.Total)
	require.Equal(t, 2, progress.Done)
	require.Equal(t, 1, progress.Failed)
	require.Equal(t, models.CorpusPaperReady, progress.PerPaper["good.pdf"])
	require.Equal(t, models.CorpusPaperFailed, progress.PerPaper["scan.pdf"])
}
