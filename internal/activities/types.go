package activities

import "scholarag/internal/models"

type ListPDFsInput struct {
	InputDir string
}

type ListPDFsOutput struct {
	Paths []string
}

type ExtractTextInput struct {
	PaperPath string
}

type ExtractTextOutput struct {
	Text  string
	Title string
}

type ChunkTextInput struct {
	PaperID string
	Text    string
}

type ChunkTextOutput struct {
	Passages []models.Passage
}

type EmbedPassagesInput struct {
	Texts []string
}

type EmbedPassagesOutput struct {
	Vectors      [][]float32
	ProviderName string
	Model        string
}

// StorePassagesInput pairs passages with their vectors by index. Embeddings
// travel separately because the passage JSON shape hides them.
type StorePassagesInput struct {
	Paper    models.Paper
	Passages []models.Passage
	Vectors  [][]float32
}

type SetPaperStatusInput struct {
	CorpusID   string
	PaperID    string
	Status     string
	FailReason string
}
