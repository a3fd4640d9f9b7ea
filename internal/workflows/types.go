package workflows

type CorpusIngestInput struct {
	CorpusID              string
	InputDir              string
	MaxConcurrentChildren int
}

// IngestProgress is served by the parent workflow's query handler. Done
// counts children that finished with a status; Failed also counts children
// that errored outright.
type IngestProgress struct {
	CorpusID string            `json:"corpus_id"`
	Total    int               `json:"total"`
	Done     int               `json:"done"`
	Failed   int               `json:"failed"`
	PerPaper map[string]string `json:"per_paper"`
}

type PaperIngestInput struct {
	CorpusID  string
	PaperPath string
}

type PaperIngestStatus struct {
	PaperID     string            `json:"paper_id"`
	CurrentStep string            `json:"current_step"`
	Status      string            `json:"status"`
	FailReason  string            `json:"fail_reason,omitempty"`
	Provider    string            `json:"provider,omitempty"`
	Steps       map[string]string `json:"steps"`
}
