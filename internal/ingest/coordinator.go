package ingest

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"

	"github.com/procsight/procsight/internal/embedding"
	"github.com/procsight/procsight/internal/storage"
	"github.com/procsight/procsight/pkg/types"
)

const (
	// DefaultEventBatchSize is how many event summaries are embedded and
	// persisted per batch. Batch boundaries affect throughput only, never
	// the resulting vectors.
	DefaultEventBatchSize = 100

	// DefaultChunkBatchSize is the persistence/embedding batch size for
	// document chunks.
	DefaultChunkBatchSize = 50

	// DefaultMaxUploadBytes caps accepted upload payloads at 50MB.
	DefaultMaxUploadBytes = 50 * 1024 * 1024

	// DefaultIngestTimeout bounds a single ingestion run end to end.
	DefaultIngestTimeout = 5 * time.Minute

	// DefaultEmbedWorkers bounds concurrent embedding batches in flight.
	DefaultEmbedWorkers = 4
)

// CoordinatorConfig tunes the ingestion pipeline. Zero values fall back to
// the defaults above.
type CoordinatorConfig struct {
	EventBatchSize int
	ChunkBatchSize int
	MaxUploadBytes int64
	Timeout        time.Duration
	EmbedWorkers   int
}

// Result is the tagged outcome of an upload, populated according to Kind.
type Result struct {
	Kind         UploadKind                `json:"kind"`
	Structured   *types.StructuredResult   `json:"structured,omitempty"`
	Unstructured *types.UnstructuredResult `json:"unstructured,omitempty"`
}

// Coordinator drives uploads through validation, normalization or
// extraction, embedding and persistence, and owns the project status
// transitions along the way. A project accepts one upload at a time;
// concurrent attempts are rejected with ErrProjectBusy.
type Coordinator struct {
	store      storage.Store
	gateway    *embedding.Gateway
	normalizer *Normalizer
	extractor  *Extractor
	chunker    *Chunker
	pool       *ants.Pool

	eventBatchSize int
	chunkBatchSize int
	maxUploadBytes int64
	timeout        time.Duration

	mu     sync.Mutex
	active map[string]struct{}
}

// NewCoordinator wires the pipeline against a store and an embedding
// gateway. The chunker runs with its default window unless reconfigured
// via SetChunker.
func NewCoordinator(store storage.Store, gateway *embedding.Gateway, cfg CoordinatorConfig) (*Coordinator, error) {
	if cfg.EventBatchSize <= 0 {
		cfg.EventBatchSize = DefaultEventBatchSize
	}
	if cfg.ChunkBatchSize <= 0 {
		cfg.ChunkBatchSize = DefaultChunkBatchSize
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultIngestTimeout
	}
	if cfg.EmbedWorkers <= 0 {
		cfg.EmbedWorkers = DefaultEmbedWorkers
	}

	pool, err := ants.NewPool(cfg.EmbedWorkers)
	if err != nil {
		return nil, fmt.Errorf("coordinator: failed to create worker pool: %w", err)
	}

	chunker, err := NewChunker(DefaultChunkSize, DefaultOverlap)
	if err != nil {
		pool.Release()
		return nil, err
	}

	return &Coordinator{
		store:          store,
		gateway:        gateway,
		normalizer:     NewNormalizer(),
		extractor:      NewExtractor(),
		chunker:        chunker,
		pool:           pool,
		eventBatchSize: cfg.EventBatchSize,
		chunkBatchSize: cfg.ChunkBatchSize,
		maxUploadBytes: cfg.MaxUploadBytes,
		timeout:        cfg.Timeout,
		active:         make(map[string]struct{}),
	}, nil
}

// SetChunker replaces the chunking window, for callers that tune it from
// configuration. Not safe to call after ingestion has started.
func (c *Coordinator) SetChunker(chunker *Chunker) {
	c.chunker = chunker
}

// Close releases the embedding worker pool.
func (c *Coordinator) Close() {
	c.pool.Release()
}

// Ingest classifies the upload by filename extension and dispatches to the
// structured or unstructured pipeline. Unsupported formats and oversized
// payloads are rejected before any project state changes.
func (c *Coordinator) Ingest(ctx context.Context, data []byte, filename, projectID string) (*Result, error) {
	if int64(len(data)) > c.maxUploadBytes {
		return nil, fmt.Errorf("%w: %d bytes exceeds limit of %d", ErrFileTooLarge, len(data), c.maxUploadBytes)
	}

	kind, ext := Classify(filename)
	switch kind {
	case KindStructured:
		res, err := c.IngestStructured(ctx, data, ext, projectID)
		if err != nil {
			return nil, err
		}
		return &Result{Kind: KindStructured, Structured: res}, nil
	case KindUnstructured:
		res, err := c.IngestUnstructured(ctx, data, filename, ext, projectID)
		if err != nil {
			return nil, err
		}
		return &Result{Kind: KindUnstructured, Unstructured: res}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, filename)
	}
}

// IngestStructured runs the event-log pipeline: parse the table, normalize
// rows into canonical events, persist them, embed the event summaries and
// persist the vectors. The project is marked completed only after every
// batch is durably written.
func (c *Coordinator) IngestStructured(ctx context.Context, data []byte, ext, projectID string) (*types.StructuredResult, error) {
	release, err := c.acquire(ctx, projectID)
	if err != nil {
		return nil, err
	}
	defer release()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	table, err := ReadTable(data, ext)
	if err != nil {
		c.markFailed(projectID)
		return nil, err
	}

	events, metrics, err := c.normalizer.Normalize(table)
	if err != nil {
		c.markFailed(projectID)
		return nil, err
	}

	for i := range events {
		events[i].ID = uuid.New().String()
		events[i].ProjectID = projectID
	}

	for start := 0; start < len(events); start += c.eventBatchSize {
		batch := events[start:min(start+c.eventBatchSize, len(events))]
		err := storage.WriteOnce(ctx, "insert events", func() error {
			return c.store.InsertEvents(ctx, batch)
		})
		if err != nil {
			c.markFailed(projectID)
			return nil, err
		}
	}

	summaries := make([]string, len(events))
	for i := range events {
		summaries[i] = events[i].SummaryText()
	}

	vectors, err := c.embedConcurrently(ctx, summaries, c.eventBatchSize)
	if err != nil {
		c.markFailed(projectID)
		return nil, err
	}

	embeddings := make([]types.EventEmbedding, len(events))
	for i := range events {
		embeddings[i] = types.EventEmbedding{
			ProjectID:   projectID,
			EventID:     events[i].ID,
			SummaryText: summaries[i],
			Embedding:   vectors[i],
		}
	}

	for start := 0; start < len(embeddings); start += c.eventBatchSize {
		batch := embeddings[start:min(start+c.eventBatchSize, len(embeddings))]
		err := storage.WriteOnce(ctx, "insert event embeddings", func() error {
			return c.store.InsertEventEmbeddings(ctx, batch)
		})
		if err != nil {
			c.markFailed(projectID)
			return nil, err
		}
	}

	if err := c.transition(ctx, projectID, types.StatusCompleted); err != nil {
		c.markFailed(projectID)
		return nil, err
	}

	log.Printf("coordinator: project %s ingested %d events, %d embeddings", projectID, len(events), len(embeddings))
	return &types.StructuredResult{
		RecordsProcessed:  len(events),
		EmbeddingsCreated: len(embeddings),
		Metrics:           metrics,
	}, nil
}

// IngestUnstructured runs the document pipeline: extract text, persist the
// document, chunk, embed and persist the chunks, then record the final
// chunk count.
func (c *Coordinator) IngestUnstructured(ctx context.Context, data []byte, filename, ext, projectID string) (*types.UnstructuredResult, error) {
	release, err := c.acquire(ctx, projectID)
	if err != nil {
		return nil, err
	}
	defer release()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	text, err := c.extractor.Extract(data, ext)
	if err != nil {
		c.markFailed(projectID)
		return nil, err
	}

	doc := &types.Document{
		ID:        uuid.New().String(),
		ProjectID: projectID,
		Filename:  filename,
		FileType:  ext,
		RawText:   text,
		FileSize:  int64(len(data)),
	}
	err = storage.WriteOnce(ctx, "insert document", func() error {
		return c.store.InsertDocument(ctx, doc)
	})
	if err != nil {
		c.markFailed(projectID)
		return nil, err
	}

	pieces := c.chunker.Chunk(text)
	vectors, err := c.embedConcurrently(ctx, pieces, c.chunkBatchSize)
	if err != nil {
		c.markFailed(projectID)
		return nil, err
	}

	chunks := make([]types.Chunk, len(pieces))
	for i, piece := range pieces {
		chunks[i] = types.Chunk{
			DocumentID: doc.ID,
			ProjectID:  projectID,
			ChunkIndex: i,
			Text:       piece,
			Embedding:  vectors[i],
		}
	}

	for start := 0; start < len(chunks); start += c.chunkBatchSize {
		batch := chunks[start:min(start+c.chunkBatchSize, len(chunks))]
		err := storage.WriteOnce(ctx, "insert chunks", func() error {
			return c.store.InsertChunks(ctx, batch)
		})
		if err != nil {
			c.markFailed(projectID)
			return nil, err
		}
	}

	err = storage.WriteOnce(ctx, "update chunk count", func() error {
		return c.store.UpdateChunkCount(ctx, doc.ID, len(chunks))
	})
	if err != nil {
		c.markFailed(projectID)
		return nil, err
	}

	if err := c.transition(ctx, projectID, types.StatusCompleted); err != nil {
		c.markFailed(projectID)
		return nil, err
	}

	log.Printf("coordinator: project %s ingested document %s as %d chunks", projectID, doc.ID, len(chunks))
	return &types.UnstructuredResult{
		ChunksCreated: len(chunks),
		DocumentID:    doc.ID,
		Metrics:       unstructuredMetrics(text, pieces),
	}, nil
}

// acquire claims the project for a single ingestion run: it rejects a
// project that already has an upload in flight, then moves it into
// StatusProcessing. The returned release func frees the claim but leaves
// the project in whatever terminal status the run set.
func (c *Coordinator) acquire(ctx context.Context, projectID string) (func(), error) {
	c.mu.Lock()
	if _, busy := c.active[projectID]; busy {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: project %s", ErrProjectBusy, projectID)
	}
	c.active[projectID] = struct{}{}
	c.mu.Unlock()

	release := func() {
		c.mu.Lock()
		delete(c.active, projectID)
		c.mu.Unlock()
	}

	if err := c.transition(ctx, projectID, types.StatusProcessing); err != nil {
		release()
		return nil, err
	}
	return release, nil
}

// embedConcurrently embeds texts in batches through the worker pool,
// stitching results back in input order. Output is identical to a single
// sequential EmbedBatch call; only wall-clock time differs.
func (c *Coordinator) embedConcurrently(ctx context.Context, texts []string, batchSize int) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vectors := make([][]float32, len(texts))
	var wg sync.WaitGroup
	var once sync.Once
	var firstErr error

	for start := 0; start < len(texts); start += batchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := min(start+batchSize, len(texts))

		wg.Add(1)
		submit := func() {
			defer wg.Done()
			out, err := c.gateway.EmbedBatch(ctx, texts[start:end], end-start)
			if err != nil {
				once.Do(func() { firstErr = err })
				return
			}
			copy(vectors[start:], out)
		}
		if err := c.pool.Submit(submit); err != nil {
			wg.Done()
			once.Do(func() { firstErr = fmt.Errorf("coordinator: failed to submit embedding batch: %w", err) })
			break
		}
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	return vectors, nil
}

// transition moves the project's lifecycle status with a single retry on
// transient persistence failure.
func (c *Coordinator) transition(ctx context.Context, projectID string, status types.ProjectStatus) error {
	return storage.WriteOnce(ctx, "update project status", func() error {
		return c.store.UpdateProjectStatus(ctx, projectID, status)
	})
}

// markFailed moves the project to StatusFailed on a fresh context so the
// terminal status lands even when the run's context is already cancelled.
func (c *Coordinator) markFailed(projectID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := c.transition(ctx, projectID, types.StatusFailed); err != nil {
		log.Printf("coordinator: failed to mark project %s failed: %v", projectID, err)
	}
}

func unstructuredMetrics(text string, chunks []string) types.UnstructuredMetrics {
	m := types.UnstructuredMetrics{
		CharacterCount:      utf8.RuneCountInString(text),
		WordCount:           len(strings.Fields(text)),
		TotalChunks:         len(chunks),
		EmbeddingsGenerated: len(chunks),
	}
	if len(chunks) > 0 {
		total := 0
		for _, c := range chunks {
			total += utf8.RuneCountInString(c)
		}
		m.AverageChunkSize = float64(total) / float64(len(chunks))
	}
	return m
}
