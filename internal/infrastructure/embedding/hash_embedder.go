package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"math/bits"
	"strings"
)

// HashEmbedder is the deterministic fallback provider. Each token spreads a
// sin-of-hash signature across all 384 dimensions, token positions rotate a
// per-position nudge so reorderings stay distinguishable, and the sum is
// l2-normalized. Same input, same vector — on every platform, every run —
// and texts sharing tokens land near each other.
type HashEmbedder struct {
	dimension int
}

const defaultHashDimension = 384

// NewHashEmbedder creates the fallback embedder.
func NewHashEmbedder(dimension int) *HashEmbedder {
	if dimension <= 0 {
		dimension = defaultHashDimension
	}
	return &HashEmbedder{dimension: dimension}
}

func (e *HashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float64, e.dimension)

	for pos, token := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New64a()
		_, _ = h.Write([]byte(token))
		seed := h.Sum64()

		for i := range vec {
			hi := seed ^ (uint64(i+1) * 0x9E3779B97F4A7C15)
			vec[i] += math.Sin(float64(hi % 1000003))
		}

		// Token-position rotation: word order perturbs one component per
		// token, so anagram texts diverge without losing token overlap.
		rot := bits.RotateLeft64(seed, pos%63+1)
		vec[int(rot%uint64(e.dimension))] += 0.5 * math.Sin(float64(rot%999983))
	}

	norm := 0.0
	for _, v := range vec {
		norm += v * v
	}
	norm = math.Sqrt(norm)

	out := make([]float32, e.dimension)
	if norm > 0 {
		for i, v := range vec {
			out[i] = float32(v / norm)
		}
	}
	return out, nil
}

func (e *HashEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		vec, err := e.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func (e *HashEmbedder) Dimension() int { return e.dimension }
