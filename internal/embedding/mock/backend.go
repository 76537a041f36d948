// Package mock provides a test double for the embedding backend.
//
// MockBackend produces deterministic vectors derived from the input text
// hash, so tests can assert batch/sequential equivalence and bit-identical
// re-embedding without a running model server.
package mock

import (
	"context"
	"hash/fnv"
	"sync/atomic"

	"github.com/procsight/procsight/pkg/types"
)

// MockBackend is a test double for embedding.Backend. Behavior can be
// overridden per test via the function fields; the defaults are
// deterministic and always healthy.
type MockBackend struct {
	// Dim is the vector dimensionality (defaults to types.EmbeddingDim).
	Dim int

	// EmbedBatchFunc overrides EmbedBatch when set.
	EmbedBatchFunc func(ctx context.Context, texts []string) ([][]float32, error)

	// HealthyFunc overrides Healthy when set.
	HealthyFunc func(ctx context.Context) error

	batchCalls atomic.Int64
}

// NewMockBackend creates a mock backend producing vectors of the canonical
// dimension.
func NewMockBackend() *MockBackend {
	return &MockBackend{Dim: types.EmbeddingDim}
}

// EmbedBatch returns one deterministic vector per input text.
func (m *MockBackend) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	m.batchCalls.Add(1)

	if m.EmbedBatchFunc != nil {
		return m.EmbedBatchFunc(ctx, texts)
	}

	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = DeterministicVector(text, m.Dim)
	}
	return out, nil
}

// Healthy reports the backend as reachable unless overridden.
func (m *MockBackend) Healthy(ctx context.Context) error {
	if m.HealthyFunc != nil {
		return m.HealthyFunc(ctx)
	}
	return nil
}

// Model returns a fixed model name.
func (m *MockBackend) Model() string {
	return "mock-embedder"
}

// BatchCalls returns how many times EmbedBatch was invoked.
func (m *MockBackend) BatchCalls() int {
	return int(m.batchCalls.Load())
}

// DeterministicVector derives a pseudo-random but stable vector from the FNV
// hash of text. The same text always yields the same vector.
func DeterministicVector(text string, dim int) []float32 {
	h := fnv.New32a()
	h.Write([]byte(text))
	seed := h.Sum32()

	vec := make([]float32, dim)
	for i := 0; i < dim; i++ {
		seed = seed*1664525 + 1013904223
		vec[i] = float32(seed%1000)/500.0 - 1.0
	}
	return vec
}
