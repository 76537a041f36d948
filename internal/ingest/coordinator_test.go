package ingest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/procsight/procsight/internal/embedding"
	"github.com/procsight/procsight/internal/embedding/mock"
	"github.com/procsight/procsight/internal/storage"
	"github.com/procsight/procsight/pkg/types"
)

// memStore is an in-memory storage.Store double recording every write, with
// per-operation injectable failures.
type memStore struct {
	mu sync.Mutex

	projects    map[string]*types.Project
	transitions []types.ProjectStatus
	events      []types.CanonicalEvent
	embeddings  []types.EventEmbedding
	documents   []*types.Document
	chunks      []types.Chunk
	chunkCounts map[string]int

	// failures maps an op name to how many times it should fail before
	// succeeding. Negative means fail forever.
	failures map[string]int
}

func newMemStore() *memStore {
	return &memStore{
		projects:    map[string]*types.Project{},
		chunkCounts: map[string]int{},
		failures:    map[string]int{},
	}
}

func (m *memStore) seed(id string, status types.ProjectStatus) {
	m.projects[id] = &types.Project{ID: id, Name: id, DatasetType: types.DatasetHybrid, Status: status}
}

func (m *memStore) fail(op string) error {
	n, ok := m.failures[op]
	if !ok || n == 0 {
		return nil
	}
	if n > 0 {
		m.failures[op] = n - 1
	}
	return fmt.Errorf("injected %s failure", op)
}

func (m *memStore) CreateProject(ctx context.Context, p *types.Project) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p.Status = types.StatusPending
	m.projects[p.ID] = p
	return nil
}

func (m *memStore) GetProject(ctx context.Context, id string) (*types.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.projects[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return p, nil
}

func (m *memStore) ListProjects(ctx context.Context) ([]*types.Project, error) {
	return nil, nil
}

func (m *memStore) UpdateProjectStatus(ctx context.Context, id string, status types.ProjectStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("status"); err != nil {
		return err
	}
	if err := m.fail("status:" + string(status)); err != nil {
		return err
	}
	p, ok := m.projects[id]
	if !ok {
		return storage.ErrNotFound
	}
	if !types.IsValidStatusTransition(p.Status, status) {
		return fmt.Errorf("%w: %s -> %s", storage.ErrInvalidTransition, p.Status, status)
	}
	p.Status = status
	m.transitions = append(m.transitions, status)
	return nil
}

func (m *memStore) InsertEvents(ctx context.Context, events []types.CanonicalEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("events"); err != nil {
		return err
	}
	m.events = append(m.events, events...)
	return nil
}

func (m *memStore) InsertEventEmbeddings(ctx context.Context, embeddings []types.EventEmbedding) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("embeddings"); err != nil {
		return err
	}
	m.embeddings = append(m.embeddings, embeddings...)
	return nil
}

func (m *memStore) InsertDocument(ctx context.Context, doc *types.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("document"); err != nil {
		return err
	}
	m.documents = append(m.documents, doc)
	return nil
}

func (m *memStore) InsertChunks(ctx context.Context, chunks []types.Chunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("chunks"); err != nil {
		return err
	}
	m.chunks = append(m.chunks, chunks...)
	return nil
}

func (m *memStore) UpdateChunkCount(ctx context.Context, documentID string, count int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("chunkcount"); err != nil {
		return err
	}
	m.chunkCounts[documentID] = count
	return nil
}

func (m *memStore) SearchSimilarEvents(ctx context.Context, query []float32, projectID string, limit int) ([]storage.EventMatch, error) {
	return nil, nil
}

func (m *memStore) SearchSimilarChunks(ctx context.Context, query []float32, projectID string, limit int) ([]storage.ChunkMatch, error) {
	return nil, nil
}

func (m *memStore) Close() error { return nil }

var _ storage.Store = (*memStore)(nil)

func newTestCoordinator(t *testing.T, store storage.Store) *Coordinator {
	t.Helper()
	gw := embedding.NewGateway(mock.NewMockBackend())
	coord, err := NewCoordinator(store, gw, CoordinatorConfig{})
	require.NoError(t, err)
	t.Cleanup(coord.Close)
	return coord
}

const eventLogCSV = "case_id,activity,timestamp\nC1,Start,2024-01-01T10:00:00\nC1,End,2024-01-01T11:00:00\nC2,Start,2024-01-02T10:00:00\n"

func TestIngestStructuredHappyPath(t *testing.T) {
	store := newMemStore()
	store.seed("p1", types.StatusPending)
	coord := newTestCoordinator(t, store)

	res, err := coord.Ingest(context.Background(), []byte(eventLogCSV), "events.csv", "p1")
	require.NoError(t, err)
	require.Equal(t, KindStructured, res.Kind)
	require.NotNil(t, res.Structured)

	assert.Equal(t, 3, res.Structured.RecordsProcessed)
	assert.Equal(t, 3, res.Structured.EmbeddingsCreated)
	assert.Equal(t, 2, res.Structured.Metrics.UniqueCases)

	assert.Equal(t, []types.ProjectStatus{types.StatusProcessing, types.StatusCompleted}, store.transitions)
	require.Len(t, store.events, 3)
	require.Len(t, store.embeddings, 3)

	for _, ev := range store.events {
		assert.NotEmpty(t, ev.ID)
		assert.Equal(t, "p1", ev.ProjectID)
	}
	for _, emb := range store.embeddings {
		assert.Len(t, emb.Embedding, types.EmbeddingDim)
		assert.Contains(t, emb.SummaryText, "Case C")
		// No resource column in the source, so the default shows up.
		assert.Contains(t, emb.SummaryText, "by Unknown")
	}
}

func TestIngestUnstructuredHappyPath(t *testing.T) {
	store := newMemStore()
	store.seed("p1", types.StatusPending)
	coord := newTestCoordinator(t, store)

	text := strings.Repeat("The approval step waits on a manager signature. ", 40)
	res, err := coord.Ingest(context.Background(), []byte(text), "handbook.txt", "p1")
	require.NoError(t, err)
	require.Equal(t, KindUnstructured, res.Kind)
	require.NotNil(t, res.Unstructured)

	require.Len(t, store.documents, 1)
	doc := store.documents[0]
	assert.Equal(t, doc.ID, res.Unstructured.DocumentID)
	assert.Equal(t, "handbook.txt", doc.Filename)
	assert.Equal(t, int64(len(text)), doc.FileSize)

	require.Greater(t, res.Unstructured.ChunksCreated, 1)
	assert.Len(t, store.chunks, res.Unstructured.ChunksCreated)
	assert.Equal(t, res.Unstructured.ChunksCreated, store.chunkCounts[doc.ID])

	for i, chunk := range store.chunks {
		assert.Equal(t, i, chunk.ChunkIndex)
		assert.Equal(t, doc.ID, chunk.DocumentID)
		assert.Len(t, chunk.Embedding, types.EmbeddingDim)
	}

	assert.Equal(t, []types.ProjectStatus{types.StatusProcessing, types.StatusCompleted}, store.transitions)
	assert.Greater(t, res.Unstructured.Metrics.WordCount, 0)
	assert.Equal(t, res.Unstructured.ChunksCreated, res.Unstructured.Metrics.TotalChunks)
}

func TestIngestEmptyTextFails(t *testing.T) {
	store := newMemStore()
	store.seed("p1", types.StatusPending)
	coord := newTestCoordinator(t, store)

	_, err := coord.Ingest(context.Background(), []byte{}, "empty.txt", "p1")
	assert.ErrorIs(t, err, ErrEmptyInput)
	assert.Equal(t, []types.ProjectStatus{types.StatusProcessing, types.StatusFailed}, store.transitions)
}

func TestIngestUnsupportedFormatLeavesStatusUntouched(t *testing.T) {
	store := newMemStore()
	store.seed("p1", types.StatusPending)
	coord := newTestCoordinator(t, store)

	_, err := coord.Ingest(context.Background(), []byte("MZ"), "installer.exe", "p1")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
	assert.Empty(t, store.transitions)

	p, err := store.GetProject(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, types.StatusPending, p.Status)
}

func TestIngestOversizedUploadRejected(t *testing.T) {
	store := newMemStore()
	store.seed("p1", types.StatusPending)

	gw := embedding.NewGateway(mock.NewMockBackend())
	coord, err := NewCoordinator(store, gw, CoordinatorConfig{MaxUploadBytes: 16})
	require.NoError(t, err)
	defer coord.Close()

	_, err = coord.Ingest(context.Background(), []byte(strings.Repeat("x", 17)), "big.csv", "p1")
	assert.ErrorIs(t, err, ErrFileTooLarge)
	assert.Empty(t, store.transitions)
}

func TestIngestRejectsBusyProject(t *testing.T) {
	store := newMemStore()
	store.seed("p1", types.StatusPending)
	coord := newTestCoordinator(t, store)

	release, err := coord.acquire(context.Background(), "p1")
	require.NoError(t, err)
	defer release()

	_, err = coord.Ingest(context.Background(), []byte(eventLogCSV), "events.csv", "p1")
	assert.ErrorIs(t, err, ErrProjectBusy)
}

func TestIngestSchemaValidationFailure(t *testing.T) {
	store := newMemStore()
	store.seed("p1", types.StatusPending)
	coord := newTestCoordinator(t, store)

	_, err := coord.Ingest(context.Background(), []byte("foo,bar\n1,2\n"), "events.csv", "p1")

	var schemaErr *SchemaValidationError
	require.ErrorAs(t, err, &schemaErr)
	assert.ElementsMatch(t, []string{"case_id", "activity", "timestamp"}, schemaErr.MissingColumns)
	assert.Equal(t, []types.ProjectStatus{types.StatusProcessing, types.StatusFailed}, store.transitions)
}

func TestIngestRetriesTransientWriteOnce(t *testing.T) {
	store := newMemStore()
	store.seed("p1", types.StatusPending)
	store.failures["events"] = 1 // first insert fails, retry succeeds
	coord := newTestCoordinator(t, store)

	res, err := coord.Ingest(context.Background(), []byte(eventLogCSV), "events.csv", "p1")
	require.NoError(t, err)
	assert.Equal(t, 3, res.Structured.RecordsProcessed)
	assert.Equal(t, []types.ProjectStatus{types.StatusProcessing, types.StatusCompleted}, store.transitions)
}

func TestIngestPersistentWriteFailureMarksFailed(t *testing.T) {
	store := newMemStore()
	store.seed("p1", types.StatusPending)
	store.failures["embeddings"] = -1
	coord := newTestCoordinator(t, store)

	_, err := coord.Ingest(context.Background(), []byte(eventLogCSV), "events.csv", "p1")

	var perr *storage.PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, []types.ProjectStatus{types.StatusProcessing, types.StatusFailed}, store.transitions)

	// Earlier batches stay persisted; re-ingestion writes a fresh batch.
	assert.Len(t, store.events, 3)
	assert.Empty(t, store.embeddings)
}

func TestIngestCompletedWriteFailureMarksFailed(t *testing.T) {
	store := newMemStore()
	store.seed("p1", types.StatusPending)
	store.failures["status:completed"] = 2 // initial write plus its retry
	coord := newTestCoordinator(t, store)

	_, err := coord.Ingest(context.Background(), []byte(eventLogCSV), "events.csv", "p1")

	var perr *storage.PersistenceError
	require.ErrorAs(t, err, &perr)

	// The project must land in failed, never stay stuck in processing,
	// or every later upload would be rejected as an invalid transition.
	project, err := store.GetProject(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, types.StatusFailed, project.Status)

	res, err := coord.Ingest(context.Background(), []byte(eventLogCSV), "events.csv", "p1")
	require.NoError(t, err)
	assert.Equal(t, 3, res.Structured.RecordsProcessed)

	project, err = store.GetProject(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, types.StatusCompleted, project.Status)
}

func TestIngestHeaderOnlyCSVCompletesWithZeroRows(t *testing.T) {
	store := newMemStore()
	store.seed("p1", types.StatusPending)
	coord := newTestCoordinator(t, store)

	res, err := coord.Ingest(context.Background(), []byte("case_id,activity,timestamp\n"), "events.csv", "p1")
	require.NoError(t, err)
	require.NotNil(t, res.Structured)

	assert.Equal(t, 0, res.Structured.RecordsProcessed)
	assert.Equal(t, 0, res.Structured.EmbeddingsCreated)
	assert.Equal(t, 0, res.Structured.Metrics.TotalEvents)
	assert.Nil(t, res.Structured.Metrics.DateRange[0])
	assert.Nil(t, res.Structured.Metrics.DateRange[1])

	assert.Equal(t, []types.ProjectStatus{types.StatusProcessing, types.StatusCompleted}, store.transitions)
	assert.Empty(t, store.events)
	assert.Empty(t, store.embeddings)
}

func TestIngestAllowsRerunAfterFailure(t *testing.T) {
	store := newMemStore()
	store.seed("p1", types.StatusFailed)
	coord := newTestCoordinator(t, store)

	res, err := coord.Ingest(context.Background(), []byte(eventLogCSV), "events.csv", "p1")
	require.NoError(t, err)
	assert.Equal(t, 3, res.Structured.RecordsProcessed)
	assert.Equal(t, []types.ProjectStatus{types.StatusProcessing, types.StatusCompleted}, store.transitions)
}

func TestIngestCancelledContext(t *testing.T) {
	store := newMemStore()
	store.seed("p1", types.StatusPending)
	coord := newTestCoordinator(t, store)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := coord.Ingest(ctx, []byte(eventLogCSV), "events.csv", "p1")
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotContains(t, store.transitions, types.StatusCompleted)
	assert.Contains(t, store.transitions, types.StatusFailed)
}
