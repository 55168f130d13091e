package knowledge

import (
	"context"
	"fmt"
	"maps"

	chromem "github.com/philippgille/chromem-go"

	"github.com/nidhogg/nuka-cs/internal/embedding"
)

// ChromemSource is an in-process vector collection.
type ChromemSource struct {
	name     string
	col      *chromem.Collection
	embedder embedding.Provider
}

// NewChromemSource creates an empty in-memory collection. Vectors come
// from embedder, never from chromem's own embedding function.
func NewChromemSource(name string, embedder embedding.Provider) (*ChromemSource, error) {
	db := chromem.NewDB()
	col, err := db.CreateCollection(name, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("create collection %s: %w", name, err)
	}
	return &ChromemSource{name: name, col: col, embedder: embedder}, nil
}

// Add embeds and stores documents. A document with an empty Type is classified.
func (s *ChromemSource) Add(ctx context.Context, docs ...Document) error {
	if len(docs) == 0 {
		return nil
	}
	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Text
	}
	vecs, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed documents: %w", err)
	}
	if len(vecs) != len(docs) {
		return fmt.Errorf("embed documents: got %d vectors for %d texts", len(vecs), len(docs))
	}

	for i, d := range docs {
		meta := make(map[string]string, len(d.Metadata)+1)
		maps.Copy(meta, d.Metadata)
		typ := d.Type
		if typ == "" {
			typ = Classify(d.Text)
		}
		meta[metaType] = string(typ)

		err := s.col.AddDocument(ctx, chromem.Document{
			ID:        d.ID,
			Content:   d.Text,
			Embedding: vecs[i],
			Metadata:  meta,
		})
		if err != nil {
			return fmt.Errorf("add document %s: %w", d.ID, err)
		}
	}
	return nil
}

// Count returns the number of stored documents.
func (s *ChromemSource) Count() int { return s.col.Count() }

// Search returns the nearest documents with cosine similarity as BaseScore.
func (s *ChromemSource) Search(ctx context.Context, query string, limit int) ([]Candidate, error) {
	// chromem rejects nResults above the collection size.
	n := min(limit, s.col.Count())
	if n <= 0 {
		return nil, nil
	}
	vec, err := embedding.One(ctx, s.embedder, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	res, err := s.col.QueryEmbedding(ctx, vec, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", s.name, err)
	}

	out := make([]Candidate, 0, len(res))
	for _, r := range res {
		meta := maps.Clone(r.Metadata)
		typ := Type(meta[metaType])
		delete(meta, metaType)
		out = append(out, Candidate{
			ID:        r.ID,
			Text:      r.Content,
			SourceID:  "chromem:" + s.name,
			Type:      typ,
			BaseScore: float64(r.Similarity),
			Metadata:  meta,
		})
	}
	return out, nil
}
