package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"
)

// HashEngine derives a deterministic unit vector from a SHA-256 digest of
// the input text. It has no semantic content — it exists so a profile
// with no reachable backend still produces comparable, reproducible
// vectors instead of failing every enrichment batch.
type HashEngine struct {
	dim int
}

// NewHashEngine builds a hash-fallback engine of the given dimension.
func NewHashEngine(dim int) *HashEngine {
	if dim <= 0 {
		dim = 256
	}
	return &HashEngine{dim: dim}
}

// Embed derives a deterministic vector from text; same text always
// produces the same vector, and unrelated texts are uncorrelated.
func (e *HashEngine) Embed(_ context.Context, text string) ([]float32, error) {
	out := make([]float32, e.dim)
	seed := []byte(text)
	block := 0
	digest := sha256.Sum256(append(seed, byte(block)))
	offset := 0
	for i := 0; i < e.dim; i++ {
		if offset+4 > len(digest) {
			block++
			digest = sha256.Sum256(append(seed, byte(block)))
			offset = 0
		}
		bits := binary.LittleEndian.Uint32(digest[offset : offset+4])
		offset += 4
		out[i] = float32(int32(bits)) / float32(math.MaxInt32)
	}
	normalize(out)
	return out, nil
}

// EmbedBatch embeds each text independently.
func (e *HashEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := e.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// Dimensions returns the configured vector width.
func (e *HashEngine) Dimensions() int { return e.dim }

// Name identifies the engine for logging and enrichment attempt records.
func (e *HashEngine) Name() string { return "hash" }

func normalize(v []float32) {
	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}
	if sumSq == 0 {
		return
	}
	norm := math.Sqrt(sumSq)
	for i, x := range v {
		v[i] = float32(float64(x) / norm)
	}
}
