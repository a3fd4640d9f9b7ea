package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"scholarag/internal/models"
)

// SemanticScholarProvider queries the Semantic Scholar graph API for
// candidate papers. Works without a key at a lower rate limit; a key is
// sent via the x-api-key header when configured.
type SemanticScholarProvider struct {
	keyName string
	apiKey  string
	baseURL string
	client  *http.Client
}

func NewSemanticScholarProvider(keyName string) *SemanticScholarProvider {
	return &SemanticScholarProvider{
		keyName: keyName,
		apiKey:  resolveKey("semanticscholar", keyName),
		baseURL: "https://api.semanticscholar.org/graph/v1",
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (s *SemanticScholarProvider) SearchPapers(ctx context.Context, req SearchRequest) ([]models.Paper, ProviderInfo, error) {
	info := ProviderInfo{Name: "semanticscholar", Model: "graph/v1", Key: s.keyName}

	q := url.Values{}
	q.Set("query", req.Query)
	q.Set("limit", strconv.Itoa(req.Limit))
	q.Set("fields", "title,abstract,url,year,venue,authors,externalIds")
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/paper/search?"+q.Encode(), nil)
	if err != nil {
		return nil, info, fmt.Errorf("build search request: %w", err)
	}
	if s.apiKey != "" {
		httpReq.Header.Set("x-api-key", s.apiKey)
	}

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, info, &Error{Provider: "semanticscholar", Op: "search_papers", Type: ErrorTransient, Err: err}
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		return nil, info, httpError("semanticscholar", "search_papers", resp.StatusCode, body)
	}

	var parsed struct {
		Data []struct {
			PaperID  string `json:"paperId"`
			Title    string `json:"title"`
			Abstract string `json:"abstract"`
			URL      string `json:"url"`
			Year     *int   `json:"year"`
			Venue    string `json:"venue"`
			Authors  []struct {
				Name string `json:"name"`
			} `json:"authors"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, info, &Error{Provider: "semanticscholar", Op: "search_papers", Type: ErrorPermanent, Err: fmt.Errorf("decode search response: %w", err)}
	}

	papers := make([]models.Paper, 0, len(parsed.Data))
	for _, d := range parsed.Data {
		if d.PaperID == "" {
			continue
		}
		p := models.Paper{
			PaperID:  d.PaperID,
			Title:    d.Title,
			Abstract: d.Abstract,
			URL:      d.URL,
			Year:     d.Year,
			Venue:    d.Venue,
			Source:   "semanticscholar",
		}
		for _, a := range d.Authors {
			p.Authors = append(p.Authors, a.Name)
		}
		papers = append(papers, p)
	}
	return papers, info, nil
}
