// Package tests holds end-to-end pipeline tests running the real coordinator
// against an in-memory SQLite store and a deterministic embedding backend.
package tests

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/procsight/procsight/internal/embedding"
	"github.com/procsight/procsight/internal/embedding/mock"
	"github.com/procsight/procsight/internal/ingest"
	"github.com/procsight/procsight/internal/storage/sqlite"
	"github.com/procsight/procsight/pkg/types"
)

type pipeline struct {
	store       *sqlite.Store
	gateway     *embedding.Gateway
	coordinator *ingest.Coordinator
}

func newPipeline(t *testing.T) *pipeline {
	t.Helper()

	store, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)

	gateway := embedding.NewGateway(mock.NewMockBackend())
	coordinator, err := ingest.NewCoordinator(store, gateway, ingest.CoordinatorConfig{})
	require.NoError(t, err)

	t.Cleanup(func() {
		coordinator.Close()
		_ = store.Close()
	})

	return &pipeline{store: store, gateway: gateway, coordinator: coordinator}
}

func (p *pipeline) newProject(t *testing.T, name string) string {
	t.Helper()
	project := &types.Project{ID: name, Name: name, DatasetType: types.DatasetHybrid}
	require.NoError(t, p.store.CreateProject(context.Background(), project))
	return project.ID
}

func TestPipelineStructuredEndToEnd(t *testing.T) {
	p := newPipeline(t)
	id := p.newProject(t, "orders")

	csv := "case_id,activity,timestamp\nC1,Start,2024-01-01T10:00:00\nC1,End,2024-01-01T11:00:00\nC2,Start,2024-01-02T10:00:00\n"
	result, err := p.coordinator.Ingest(context.Background(), []byte(csv), "orders.csv", id)
	require.NoError(t, err)

	require.NotNil(t, result.Structured)
	assert.Equal(t, 3, result.Structured.Metrics.TotalEvents)
	assert.Equal(t, 2, result.Structured.Metrics.UniqueCases)
	assert.Equal(t, 2, result.Structured.Metrics.UniqueActivities)

	project, err := p.store.GetProject(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, types.StatusCompleted, project.Status)

	// The persisted vectors are searchable.
	query, err := p.gateway.Embed(context.Background(), "Case C1 | Activity: Start | by Unknown | at 2024-01-01T10:00:00Z")
	require.NoError(t, err)

	matches, err := p.store.SearchSimilarEvents(context.Background(), query, id, 3)
	require.NoError(t, err)
	require.Len(t, matches, 3)
	// The exact summary embeds to the identical vector: similarity 1.
	assert.InDelta(t, 1.0, matches[0].Similarity, 1e-6)
	assert.Equal(t, "Start", matches[0].Activity)
}

func TestPipelineUnstructuredEndToEnd(t *testing.T) {
	p := newPipeline(t)
	id := p.newProject(t, "handbook")

	text := strings.Repeat("Claims above the threshold route to a senior adjuster for review. ", 30)
	result, err := p.coordinator.Ingest(context.Background(), []byte(text), "handbook.txt", id)
	require.NoError(t, err)

	require.NotNil(t, result.Unstructured)
	assert.Greater(t, result.Unstructured.ChunksCreated, 1)

	query, err := p.gateway.Embed(context.Background(), "senior adjuster review")
	require.NoError(t, err)

	matches, err := p.store.SearchSimilarChunks(context.Background(), query, id, 5)
	require.NoError(t, err)
	assert.NotEmpty(t, matches)
	assert.Equal(t, result.Unstructured.DocumentID, matches[0].DocumentID)
}

func TestPipelineHybridProjectAcceptsBothKinds(t *testing.T) {
	p := newPipeline(t)
	id := p.newProject(t, "hybrid")

	csv := "case_id,activity,timestamp\nC1,Submit,2024-05-01T08:00:00\n"
	_, err := p.coordinator.Ingest(context.Background(), []byte(csv), "log.csv", id)
	require.NoError(t, err)

	// Completed projects re-enter processing for further uploads.
	_, err = p.coordinator.Ingest(context.Background(), []byte("The submit step is manual."), "note.txt", id)
	require.NoError(t, err)

	project, err := p.store.GetProject(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, types.StatusCompleted, project.Status)
}

func TestPipelineEmptyTextMarksProjectFailed(t *testing.T) {
	p := newPipeline(t)
	id := p.newProject(t, "p")

	_, err := p.coordinator.Ingest(context.Background(), nil, "empty.txt", id)
	assert.ErrorIs(t, err, ingest.ErrEmptyInput)

	project, err := p.store.GetProject(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, types.StatusFailed, project.Status)
}

func TestPipelineUnsupportedFormatLeavesProjectPending(t *testing.T) {
	p := newPipeline(t)
	id := p.newProject(t, "p")

	_, err := p.coordinator.Ingest(context.Background(), []byte{0x4D, 0x5A}, "setup.exe", id)
	assert.ErrorIs(t, err, ingest.ErrUnsupportedFormat)

	project, err := p.store.GetProject(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, types.StatusPending, project.Status)
}

func TestPipelineReingestionAfterFailure(t *testing.T) {
	p := newPipeline(t)
	id := p.newProject(t, "p")

	_, err := p.coordinator.Ingest(context.Background(), nil, "empty.txt", id)
	require.Error(t, err)

	// The failed project accepts a corrected upload.
	csv := "case_id,activity,timestamp\nC1,Fix,2024-02-02T00:00:00\n"
	result, err := p.coordinator.Ingest(context.Background(), []byte(csv), "fixed.csv", id)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Structured.RecordsProcessed)

	project, err := p.store.GetProject(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, types.StatusCompleted, project.Status)
}

func TestPipelineDeterministicReembedding(t *testing.T) {
	p := newPipeline(t)

	first, err := p.gateway.Embed(context.Background(), "Case C1 | Activity: Ship | by alice | at 2024-03-01T00:00:00Z")
	require.NoError(t, err)
	second, err := p.gateway.Embed(context.Background(), "Case C1 | Activity: Ship | by alice | at 2024-03-01T00:00:00Z")
	require.NoError(t, err)

	assert.Equal(t, first, second, "identical text must embed to bit-identical vectors")
}

func TestPipelineSearchAcrossProjects(t *testing.T) {
	p := newPipeline(t)
	a := p.newProject(t, "a")
	b := p.newProject(t, "b")

	csv := "case_id,activity,timestamp\nC1,Pay,2024-01-01T00:00:00\n"
	_, err := p.coordinator.Ingest(context.Background(), []byte(csv), "a.csv", a)
	require.NoError(t, err)
	_, err = p.coordinator.Ingest(context.Background(), []byte(csv), "b.csv", b)
	require.NoError(t, err)

	query, err := p.gateway.Embed(context.Background(), "payment")
	require.NoError(t, err)

	// Empty project ID searches every project.
	all, err := p.store.SearchSimilarEvents(context.Background(), query, "", 10)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	scoped, err := p.store.SearchSimilarEvents(context.Background(), query, a, 10)
	require.NoError(t, err)
	assert.Len(t, scoped, 1)
}
