package embedding

import (
	"context"
	"fmt"
)

// Provider generates vector embeddings from text.
type Provider interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// Provider kinds.
const (
	KindOpenAI = "openai"
	KindOllama = "ollama"
	KindHash   = "hash"
)

// Config holds embedding provider configuration.
type Config struct {
	Provider  string `json:"provider"` // "openai", "ollama" or "hash"
	Endpoint  string `json:"endpoint"`
	Model     string `json:"model"`
	APIKey    string `json:"api_key"`
	Dimension int    `json:"dimension"`
}

// New builds the provider named by cfg.Provider.
func New(cfg Config) (Provider, error) {
	switch cfg.Provider {
	case KindOpenAI, KindOllama:
		if cfg.Endpoint == "" {
			return nil, fmt.Errorf("embedding: %s provider needs an endpoint", cfg.Provider)
		}
		return NewHTTPProvider(cfg), nil
	case KindHash, "":
		return NewHashProvider(cfg.Dimension), nil
	default:
		return nil, fmt.Errorf("embedding: unknown provider %q", cfg.Provider)
	}
}

// One embeds a single text.
func One(ctx context.Context, p Provider, text string) ([]float32, error) {
	vecs, err := p.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("embedding: got %d vectors for 1 text", len(vecs))
	}
	return vecs[0], nil
}
