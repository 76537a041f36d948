// Package embedding provides the gateway between the ingestion pipeline and
// the embedding model backend. The gateway owns backend lifecycle (lazy
// one-time load, teardown), enforces the fixed vector dimensionality, and
// batches requests for throughput.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"strings"
	"sync"

	"github.com/procsight/procsight/pkg/types"
)

var (
	// ErrModelLoad indicates the embedding backend could not be reached or
	// produced vectors of the wrong dimensionality at load time. This is
	// fatal for service readiness, never a per-request condition.
	ErrModelLoad = errors.New("embedding backend unavailable")

	// ErrDimensionMismatch indicates two vectors of different lengths were
	// compared, or the backend returned a vector that does not match the
	// configured dimension. This is an internal invariant violation.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// Backend is the black-box embedding model interface: an ordered batch of
// texts in, one vector per text out.
type Backend interface {
	// EmbedBatch returns exactly one vector per input, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Healthy verifies the backend is reachable.
	Healthy(ctx context.Context) error

	// Model returns the backend model name.
	Model() string
}

// Gateway wraps a Backend with lazy loading, dimension enforcement and
// zero-vector handling for empty inputs. Construct one Gateway at startup
// and pass it by reference; no other component talks to the backend.
type Gateway struct {
	backend Backend
	dim     int

	loadOnce sync.Once
	loadErr  error
}

// NewGateway creates a gateway over the given backend expecting vectors of
// the canonical dimension. The backend is not contacted until the first
// embedding call (or an explicit Load).
func NewGateway(backend Backend) *Gateway {
	return &Gateway{backend: backend, dim: types.EmbeddingDim}
}

// Load performs the one-time backend initialization: a health probe followed
// by a dimension check against a probe embedding. Safe to call repeatedly;
// only the first call does work. A load failure is sticky and every later
// embedding call fails fast with the same error.
func (g *Gateway) Load(ctx context.Context) error {
	g.loadOnce.Do(func() {
		if err := g.backend.Healthy(ctx); err != nil {
			g.loadErr = fmt.Errorf("%w: %v", ErrModelLoad, err)
			return
		}

		vecs, err := g.backend.EmbedBatch(ctx, []string{"dimension probe"})
		if err != nil {
			g.loadErr = fmt.Errorf("%w: probe embedding failed: %v", ErrModelLoad, err)
			return
		}
		if len(vecs) != 1 || len(vecs[0]) != g.dim {
			got := 0
			if len(vecs) == 1 {
				got = len(vecs[0])
			}
			g.loadErr = fmt.Errorf("%w: model %q produces %d-dimensional vectors, need %d",
				ErrDimensionMismatch, g.backend.Model(), got, g.dim)
			return
		}

		log.Printf("embedding: backend ready, model=%s dimension=%d", g.backend.Model(), g.dim)
	})
	return g.loadErr
}

// Dimension returns the fixed embedding dimensionality.
func (g *Gateway) Dimension() int {
	return g.dim
}

// Embed generates the embedding vector for a single text. An empty (or
// whitespace-only) text maps to the zero vector by convention, without a
// backend call.
func (g *Gateway) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := g.EmbedBatch(ctx, []string{text}, 1)
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch generates one vector per input text, preserving input order.
// Inputs are sent to the backend in batches of batchSize; batch boundaries
// affect throughput only, never output content or ordering. Empty texts map
// to the zero vector and are not sent to the backend at all.
func (g *Gateway) EmbedBatch(ctx context.Context, texts []string, batchSize int) ([][]float32, error) {
	if err := g.Load(ctx); err != nil {
		return nil, err
	}
	if batchSize <= 0 {
		batchSize = len(texts)
	}

	out := make([][]float32, len(texts))

	// Collect the non-empty texts; empties get zero vectors directly.
	var pending []string
	var pendingIdx []int
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			out[i] = make([]float32, g.dim)
			continue
		}
		pending = append(pending, text)
		pendingIdx = append(pendingIdx, i)
	}

	for off := 0; off < len(pending); off += batchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		end := off + batchSize
		if end > len(pending) {
			end = len(pending)
		}

		vecs, err := g.backend.EmbedBatch(ctx, pending[off:end])
		if err != nil {
			return nil, fmt.Errorf("embed batch [%d:%d]: %w", off, end, err)
		}
		if len(vecs) != end-off {
			return nil, fmt.Errorf("backend returned %d vectors for %d inputs", len(vecs), end-off)
		}

		for j, vec := range vecs {
			if len(vec) != g.dim {
				return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vec), g.dim)
			}
			out[pendingIdx[off+j]] = vec
		}
	}

	return out, nil
}

// Similarity computes the cosine similarity of two vectors, in [-1, 1].
// Vectors of different lengths fail with ErrDimensionMismatch. A zero vector
// has similarity 0 with everything.
func Similarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrDimensionMismatch, len(a), len(b))
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), nil
}
