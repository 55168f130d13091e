package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"
)

// HTTPProvider calls an OpenAI-compatible /embeddings endpoint or an
// Ollama-compatible /api/embeddings endpoint.
type HTTPProvider struct {
	kind      string
	endpoint  string
	model     string
	apiKey    string
	dimension int
	client    *http.Client

	learned atomic.Int64
}

// NewHTTPProvider creates an HTTPProvider. cfg.Provider selects the wire format.
func NewHTTPProvider(cfg Config) *HTTPProvider {
	kind := cfg.Provider
	if kind != KindOllama {
		kind = KindOpenAI
	}
	return &HTTPProvider{
		kind:      kind,
		endpoint:  cfg.Endpoint,
		model:     cfg.Model,
		apiKey:    cfg.APIKey,
		dimension: cfg.Dimension,
		client:    &http.Client{Timeout: 30 * time.Second},
	}
}

type openAIRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type openAIResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

type ollamaRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaResponse struct {
	Embedding []float32 `json:"embedding"`
}

// Embed returns one vector per text.
func (p *HTTPProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	var out [][]float32
	if p.kind == KindOllama {
		for _, text := range texts {
			var resp ollamaResponse
			if err := p.post(ctx, "/api/embeddings", ollamaRequest{Model: p.model, Prompt: text}, &resp); err != nil {
				return nil, err
			}
			out = append(out, resp.Embedding)
		}
	} else {
		var resp openAIResponse
		if err := p.post(ctx, "/embeddings", openAIRequest{Model: p.model, Input: texts}, &resp); err != nil {
			return nil, err
		}
		for _, d := range resp.Data {
			out = append(out, d.Embedding)
		}
	}

	if len(out) > 0 && len(out[0]) > 0 {
		p.learned.CompareAndSwap(0, int64(len(out[0])))
	}
	return out, nil
}

func (p *HTTPProvider) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("embedding: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("embedding: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("embedding: send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("embedding: %s returned status %d: %s", p.kind, resp.StatusCode, string(msg))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("embedding: decode response: %w", err)
	}
	return nil
}

// Dimension returns the dimension seen in the first response, or the
// configured one before any call.
func (p *HTTPProvider) Dimension() int {
	if d := p.learned.Load(); d > 0 {
		return int(d)
	}
	return p.dimension
}
