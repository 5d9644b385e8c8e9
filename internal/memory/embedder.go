package memory

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
)

// Embedder turns text into fixed-size vectors for similarity search.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
}

// HashingEmbedder is a deterministic, dependency-free embedder: tokens
// are feature-hashed into a fixed number of buckets and the vector is
// L2-normalized. It captures lexical overlap, which is enough for
// retrieving prior records about the same tools, mailboxes, and users.
type HashingEmbedder struct {
	dim int
}

// NewHashingEmbedder creates an embedder with the given dimension.
// Non-positive dimensions fall back to 256.
func NewHashingEmbedder(dim int) *HashingEmbedder {
	if dim <= 0 {
		dim = 256
	}
	return &HashingEmbedder{dim: dim}
}

// Dimension returns the vector size.
func (e *HashingEmbedder) Dimension() int { return e.dim }

// EmbedQuery embeds a single text.
func (e *HashingEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return e.embed(text), nil
}

// EmbedDocuments embeds a batch of texts.
func (e *HashingEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.embed(t)
	}
	return out, nil
}

func (e *HashingEmbedder) embed(text string) []float32 {
	vec := make([]float32, e.dim)
	for _, token := range tokenize(text) {
		h := fnv.New32a()
		h.Write([]byte(token))
		vec[int(h.Sum32())%e.dim]++
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		// Zero vectors break cosine similarity; give empty text a stable
		// unit direction instead.
		vec[0] = 1
		return vec
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		switch {
		case r >= 'a' && r <= 'z':
			return false
		case r >= '0' && r <= '9':
			return false
		case r == '_' || r == '@' || r == '.':
			return false
		}
		return true
	})
}
