package embedding

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPProvider_OpenAI(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/embeddings", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		var req openAIRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, []string{"你好", "退货"}, req.Input)
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{
				{"embedding": []float32{0.1, 0.2, 0.3}},
				{"embedding": []float32{0.3, 0.2, 0.1}},
			},
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	p := NewHTTPProvider(Config{Provider: KindOpenAI, Endpoint: srv.URL, Model: "m", APIKey: "sk-test", Dimension: 8})
	assert.Equal(t, 8, p.Dimension())

	vecs, err := p.Embed(context.Background(), []string{"你好", "退货"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.Equal(t, 3, p.Dimension())
}

func TestHTTPProvider_Ollama(t *testing.T) {
	calls := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/api/embeddings", func(w http.ResponseWriter, r *http.Request) {
		calls++
		var req ollamaRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		json.NewEncoder(w).Encode(ollamaResponse{Embedding: []float32{float32(len(req.Prompt)), 1}})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	p := NewHTTPProvider(Config{Provider: KindOllama, Endpoint: srv.URL, Model: "nomic-embed-text"})
	vecs, err := p.Embed(context.Background(), []string{"a", "bb"})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, [][]float32{{1, 1}, {2, 1}}, vecs)
}

func TestHTTPProvider_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	p := NewHTTPProvider(Config{Provider: KindOpenAI, Endpoint: srv.URL})
	_, err := p.Embed(context.Background(), []string{"x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestHTTPProvider_Empty(t *testing.T) {
	p := NewHTTPProvider(Config{Endpoint: "http://unused"})
	vecs, err := p.Embed(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, vecs)
}

func TestHashProvider(t *testing.T) {
	p := NewHashProvider(0)
	assert.Equal(t, defaultHashDimension, p.Dimension())

	a, err := One(context.Background(), p, "退货政策")
	require.NoError(t, err)
	b, err := One(context.Background(), p, "退货政策")
	require.NoError(t, err)
	c, err := One(context.Background(), p, "发货时间")
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)

	var norm float64
	for _, v := range a {
		norm += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-4)
}

func TestNew(t *testing.T) {
	p, err := New(Config{})
	require.NoError(t, err)
	assert.IsType(t, &HashProvider{}, p)

	p, err = New(Config{Provider: KindOllama, Endpoint: "http://localhost:11434"})
	require.NoError(t, err)
	assert.IsType(t, &HTTPProvider{}, p)

	_, err = New(Config{Provider: KindOpenAI})
	assert.Error(t, err)
	_, err = New(Config{Provider: "word2vec"})
	assert.Error(t, err)
}
