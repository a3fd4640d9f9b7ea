package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// OpenAIProvider serves embeddings and generation through the standard
// OpenAI REST APIs.
type OpenAIProvider struct {
	keyName string
	apiKey  string
	baseURL string
	client  *http.Client
}

func NewOpenAIProvider(keyName string) *OpenAIProvider {
	return &OpenAIProvider{
		keyName: keyName,
		apiKey:  resolveKey("openai", keyName),
		baseURL: "https://api.openai.com/v1",
		client:  &http.Client{Timeout: 60 * time.Second},
	}
}

func (o *OpenAIProvider) Embed(ctx context.Context, req EmbedRequest) ([][]float32, ProviderInfo, error) {
	model := "text-embedding-3-small"
	info := ProviderInfo{Name: "openai", Model: model, Key: o.keyName}
	if o.apiKey == "" {
		return nil, info, &Error{Provider: "openai", Op: req.Operation, Type: ErrorPermanent, Err: fmt.Errorf("key missing for alias %q", o.keyName)}
	}

	payload, _ := json.Marshal(map[string]any{
		"model":      model,
		"input":      req.Inputs,
		"dimensions": req.Dimension,
	})
	body, err := o.post(ctx, req.Operation, "/embeddings", payload)
	if err != nil {
		return nil, info, err
	}

	var parsed struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, info, &Error{Provider: "openai", Op: req.Operation, Type: ErrorPermanent, Err: fmt.Errorf("decode embedding response: %w", err)}
	}
	out := make([][]float32, 0, len(parsed.Data))
	for _, d := range parsed.Data {
		out = append(out, d.Embedding)
	}
	if len(out) != len(req.Inputs) {
		return nil, info, &Error{Provider: "openai", Op: req.Operation, Type: ErrorPermanent, Err: fmt.Errorf("got %d vectors for %d inputs", len(out), len(req.Inputs))}
	}
	return out, info, nil
}

func (o *OpenAIProvider) Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, ProviderInfo, error) {
	model := "gpt-4o-mini"
	info := ProviderInfo{Name: "openai", Model: model, Key: o.keyName}
	if o.apiKey == "" {
		return GenerateResponse{}, info, &Error{Provider: "openai", Op: req.Operation, Type: ErrorPermanent, Err: fmt.Errorf("key missing for alias %q", o.keyName)}
	}

	payload, _ := json.Marshal(map[string]any{
		"model":       model,
		"temperature": req.Temperature,
		"messages": []map[string]string{
			{"role": "system", "content": "You are an expert research assistant. Ground every claim in the provided sources and cite them."},
			{"role": "user", "content": req.Prompt},
		},
	})
	body, err := o.post(ctx, req.Operation, "/chat/completions", payload)
	if err != nil {
		return GenerateResponse{}, info, err
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return GenerateResponse{}, info, &Error{Provider: "openai", Op: req.Operation, Type: ErrorPermanent, Err: fmt.Errorf("decode generate response: %w", err)}
	}
	if len(parsed.Choices) == 0 {
		return GenerateResponse{}, info, &Error{Provider: "openai", Op: req.Operation, Type: ErrorPermanent, Err: fmt.Errorf("empty choices")}
	}
	return GenerateResponse{Text: parsed.Choices[0].Message.Content}, info, nil
}

func (o *OpenAIProvider) post(ctx context.Context, op, path string, payload []byte) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build openai request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(httpReq)
	if err != nil {
		return nil, &Error{Provider: "openai", Op: op, Type: ErrorTransient, Err: err}
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		return nil, httpError("openai", op, resp.StatusCode, body)
	}
	return body, nil
}
