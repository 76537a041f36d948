package embedding_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/procsight/procsight/internal/embedding"
	"github.com/procsight/procsight/internal/embedding/mock"
	"github.com/procsight/procsight/pkg/types"
)

func TestEmbedReturnsCanonicalDimension(t *testing.T) {
	gw := embedding.NewGateway(mock.NewMockBackend())

	vec, err := gw.Embed(context.Background(), "hello world")
	require.NoError(t, err)
	assert.Len(t, vec, types.EmbeddingDim)
}

func TestEmbedDeterministic(t *testing.T) {
	gw := embedding.NewGateway(mock.NewMockBackend())
	ctx := context.Background()

	a, err := gw.Embed(ctx, "invoice approved by manager")
	require.NoError(t, err)
	b, err := gw.Embed(ctx, "invoice approved by manager")
	require.NoError(t, err)

	assert.Equal(t, a, b, "identical text must produce identical vectors")
}

func TestEmptyTextMapsToZeroVector(t *testing.T) {
	backend := mock.NewMockBackend()
	gw := embedding.NewGateway(backend)

	// Load first so the probe embedding is out of the way, then forbid
	// further backend calls.
	require.NoError(t, gw.Load(context.Background()))
	backend.EmbedBatchFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		t.Fatalf("backend should not be called for empty inputs, got %v", texts)
		return nil, nil
	}

	vec, err := gw.Embed(context.Background(), "   ")
	require.NoError(t, err)

	require.Len(t, vec, types.EmbeddingDim)
	for _, v := range vec {
		assert.Zero(t, v)
	}
}

func TestBatchEquivalentToSequential(t *testing.T) {
	gw := embedding.NewGateway(mock.NewMockBackend())
	ctx := context.Background()

	texts := []string{
		"Case C1 | Activity: Start",
		"",
		"Case C1 | Activity: End",
		"Case C2 | Activity: Start",
		"shipping manifest for order 4711",
	}

	batched, err := gw.EmbedBatch(ctx, texts, 2)
	require.NoError(t, err)
	require.Len(t, batched, len(texts))

	for i, text := range texts {
		single, err := gw.Embed(ctx, text)
		require.NoError(t, err)
		assert.Equal(t, single, batched[i], "vector %d differs between batch and sequential", i)
	}
}

func TestBatchSizeDoesNotAffectOutput(t *testing.T) {
	ctx := context.Background()
	texts := []string{"a", "b", "c", "d", "e", "f", "g"}

	var results [][][]float32
	for _, batchSize := range []int{1, 2, 3, 100} {
		gw := embedding.NewGateway(mock.NewMockBackend())
		vecs, err := gw.EmbedBatch(ctx, texts, batchSize)
		require.NoError(t, err)
		results = append(results, vecs)
	}

	for i := 1; i < len(results); i++ {
		assert.Equal(t, results[0], results[i])
	}
}

func TestLoadFailureIsStickyAndFatal(t *testing.T) {
	backend := mock.NewMockBackend()
	backend.HealthyFunc = func(ctx context.Context) error {
		return errors.New("connection refused")
	}
	gw := embedding.NewGateway(backend)

	err := gw.Load(context.Background())
	require.ErrorIs(t, err, embedding.ErrModelLoad)

	// Backend recovers, but the gateway load already failed permanently.
	backend.HealthyFunc = nil
	_, err = gw.Embed(context.Background(), "text")
	assert.ErrorIs(t, err, embedding.ErrModelLoad)
}

func TestLoadRejectsWrongDimension(t *testing.T) {
	backend := mock.NewMockBackend()
	backend.Dim = 768
	gw := embedding.NewGateway(backend)

	err := gw.Load(context.Background())
	assert.ErrorIs(t, err, embedding.ErrDimensionMismatch)
}

func TestSimilarity(t *testing.T) {
	a := []float32{1, 0, 0}
	b := []float32{1, 0, 0}
	c := []float32{-1, 0, 0}
	d := []float32{0, 1, 0}

	sim, err := embedding.Similarity(a, b)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, sim, 1e-9)

	sim, err = embedding.Similarity(a, c)
	require.NoError(t, err)
	assert.InDelta(t, -1.0, sim, 1e-9)

	sim, err = embedding.Similarity(a, d)
	require.NoError(t, err)
	assert.InDelta(t, 0.0, sim, 1e-9)
}

func TestSimilarityDimensionMismatch(t *testing.T) {
	_, err := embedding.Similarity([]float32{1, 2}, []float32{1, 2, 3})
	assert.ErrorIs(t, err, embedding.ErrDimensionMismatch)
}

func TestSimilarityZeroVector(t *testing.T) {
	sim, err := embedding.Similarity([]float32{0, 0, 0}, []float32{1, 2, 3})
	require.NoError(t, err)
	assert.Zero(t, sim)
}
