package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// GeminiProvider generates through the Google Generative Language API.
type GeminiProvider struct {
	keyName string
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

func NewGeminiProvider(keyName string) *GeminiProvider {
	model := os.Getenv("SCHOLARAG_GEMINI_MODEL")
	if strings.TrimSpace(model) == "" {
		model = "gemini-1.5-flash-latest"
	}
	return &GeminiProvider{
		keyName: keyName,
		apiKey:  resolveGeminiKey(keyName),
		model:   model,
		baseURL: "https://generativelanguage.googleapis.com/v1beta",
		client:  &http.Client{Timeout: 60 * time.Second},
	}
}

func (g *GeminiProvider) Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, ProviderInfo, error) {
	info := ProviderInfo{Name: "gemini", Model: g.model, Key: g.keyName}
	if g.apiKey == "" {
		return GenerateResponse{}, info, &Error{Provider: "gemini", Op: req.Operation, Type: ErrorPermanent, Err: fmt.Errorf("key missing for alias %q", g.keyName)}
	}

	payload, _ := json.Marshal(map[string]any{
		"contents": []map[string]any{
			{"parts": []map[string]string{{"text": req.Prompt}}},
		},
		"generationConfig": map[string]any{"temperature": req.Temperature},
	})
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/models/"+g.model+":generateContent", bytes.NewReader(payload))
	if err != nil {
		return GenerateResponse{}, info, fmt.Errorf("build gemini request: %w", err)
	}
	httpReq.Header.Set("x-goog-api-key", g.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return GenerateResponse{}, info, &Error{Provider: "gemini", Op: req.Operation, Type: ErrorTransient, Err: err}
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		return GenerateResponse{}, info, httpError("gemini", req.Operation, resp.StatusCode, body)
	}

	var parsed struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return GenerateResponse{}, info, &Error{Provider: "gemini", Op: req.Operation, Type: ErrorPermanent, Err: fmt.Errorf("decode gemini response: %w", err)}
	}
	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return GenerateResponse{}, info, &Error{Provider: "gemini", Op: req.Operation, Type: ErrorPermanent, Err: fmt.Errorf("empty candidates")}
	}

	var sb strings.Builder
	for _, part := range parsed.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}
	return GenerateResponse{Text: sb.String()}, info, nil
}

// resolveGeminiKey also accepts GOOGLE_API_KEY, the name the Google
// SDKs conventionally read.
func resolveGeminiKey(alias string) string {
	if k := resolveKey("gemini", alias); k != "" {
		return k
	}
	return os.Getenv("GOOGLE_API_KEY")
}
