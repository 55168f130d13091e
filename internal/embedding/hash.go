package embedding

import (
	"context"
	"hash/fnv"
	"math"
)

const defaultHashDimension = 384

// HashProvider derives a deterministic unit vector from the text's FNV
// hash. Equal texts get equal vectors; it carries no semantics.
type HashProvider struct {
	dimension int
}

// NewHashProvider creates a HashProvider. dimension <= 0 uses 384.
func NewHashProvider(dimension int) *HashProvider {
	if dimension <= 0 {
		dimension = defaultHashDimension
	}
	return &HashProvider{dimension: dimension}
}

// Embed returns one vector per text.
func (h *HashProvider) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = h.vector(t)
	}
	return out, nil
}

func (h *HashProvider) vector(text string) []float32 {
	f := fnv.New64a()
	f.Write([]byte(text))
	seed := f.Sum64()

	vec := make([]float32, h.dimension)
	var norm float64
	for i := range vec {
		seed = seed*6364136223846793005 + 1442695040888963407
		v := float64(int64(seed)) / math.MaxInt64
		vec[i] = float32(v)
		norm += v * v
	}
	if norm == 0 {
		return vec
	}
	n := float32(math.Sqrt(norm))
	for i := range vec {
		vec[i] /= n
	}
	return vec
}

// Dimension returns the vector size.
func (h *HashProvider) Dimension() int { return h.dimension }
