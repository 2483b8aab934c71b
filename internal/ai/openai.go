package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// RemoteConfig holds API settings for an OpenAI-compatible /embeddings
// endpoint.
type RemoteConfig struct {
	BaseURL string
	APIKey  string
	Model   string
}

// RemoteEmbedder calls an OpenAI-compatible embedding API.
type RemoteEmbedder struct {
	cfg        RemoteConfig
	httpClient *http.Client
}

func NewRemoteEmbedder(cfg RemoteConfig) *RemoteEmbedder {
	return &RemoteEmbedder{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

// Init validates configuration; the remote model needs no local loading.
func (e *RemoteEmbedder) Init(ctx context.Context) error {
	if e.cfg.BaseURL == "" || e.cfg.Model == "" {
		return fmt.Errorf("%w: base url or model not configured", ErrModelUnavailable)
	}
	return nil
}

// Embed returns one vector per input text.
func (e *RemoteEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := e.Init(ctx); err != nil {
		return nil, err
	}
	trimmed := make([]string, 0, len(texts))
	for _, t := range texts {
		if s := strings.TrimSpace(t); s != "" {
			trimmed = append(trimmed, s)
		}
	}
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: no non-empty texts", ErrInference)
	}

	reqBody := map[string]interface{}{
		"model": e.cfg.Model,
		"input": trimmed,
	}
	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal request: %v", ErrInference, err)
	}

	url := strings.TrimRight(e.cfg.BaseURL, "/") + "/embeddings"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrInference, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.cfg.APIKey)

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInference, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrInference, err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: status %d: %s", ErrInference, resp.StatusCode, string(raw))
	}

	var parsed struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("%w: parse json: %v", ErrInference, err)
	}
	if len(parsed.Data) != len(trimmed) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d texts", ErrInference, len(parsed.Data), len(trimmed))
	}
	result := make([][]float32, len(parsed.Data))
	for i := range parsed.Data {
		if len(parsed.Data[i].Embedding) == 0 {
			return nil, fmt.Errorf("%w: empty embedding at %d", ErrInference, i)
		}
		result[i] = parsed.Data[i].Embedding
	}
	return result, nil
}
