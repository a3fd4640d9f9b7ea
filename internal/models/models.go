package models

import "time"

const (
	OutcomeAnswered              = "answered"
	OutcomeEmptyQuery            = "empty_query"
	OutcomeNoPapers              = "no_papers"
	OutcomeNoContext             = "no_context"
	OutcomeGenerationUnavailable = "generation_unavailable"
)

const (
	FeedbackPositive = "positive"
	FeedbackNegative = "negative"
)

// Corpus paper lifecycle. Papers move forward only; failed is terminal until
// the next ingest run retries the paper.
const (
	CorpusPaperUploaded   = "uploaded"
	CorpusPaperExtracting = "extracting"
	CorpusPaperEmbedding  = "embedding"
	CorpusPaperReady      = "ready"
	CorpusPaperFailed     = "failed"
)

type Paper struct {
	PaperID  string   `json:"paper_id"`
	Title    string   `json:"title"`
	Abstract string   `json:"abstract,omitempty"`
	URL      string   `json:"url,omitempty"`
	Year     *int     `json:"year,omitempty"`
	Venue    string   `json:"venue,omitempty"`
	Authors  []string `json:"authors,omitempty"`
	Source   string   `json:"source,omitempty"`
}

type Passage struct {
	PaperID    string    `json:"paper_id"`
	ChunkIndex int       `json:"chunk_index"`
	Text       string    `json:"text"`
	Embedding  []float32 `json:"-"`
}

type ScoredPassage struct {
	Passage
	Score float64 `json:"score"`
}

// RetrievalResult is ordered descending by score; ties keep first-seen
// paper order.
type RetrievalResult []ScoredPassage

type Citation struct {
	Ref     string `json:"ref"`
	PaperID string `json:"paper_id"`
	Title   string `json:"title,omitempty"`
}

type Interaction struct {
	InteractionID  string           `json:"interaction_id"`
	Query          string           `json:"query"`
	RefinedQuery   string           `json:"refined_query"`
	PaperIDs       []string         `json:"paper_ids"`
	Answer         string           `json:"answer"`
	Citations      []Citation       `json:"citations"`
	StageLatencies map[string]int64 `json:"stage_latencies_ms"`
	Outcome        string           `json:"outcome"`
	ErrorDetail    string           `json:"error_detail,omitempty"`
	Feedback       *string          `json:"feedback,omitempty"`
	FeedbackAt     *time.Time       `json:"feedback_at,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
}

type Corpus struct {
	CorpusID  string    `json:"corpus_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type CorpusPaper struct {
	PaperID    string    `json:"paper_id"`
	CorpusID   string    `json:"corpus_id"`
	Filename   string    `json:"filename"`
	Status     string    `json:"status"`
	FailReason string    `json:"fail_reason,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
