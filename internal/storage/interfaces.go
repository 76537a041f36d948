// Package storage defines the write contract the ingestion pipeline holds
// against its persistence backends, plus the shared error taxonomy and the
// textual vector encoding used when a backend has no native vector type.
//
// The interfaces are small and composable; Postgres (with pgvector) and
// SQLite implementations live in subpackages.
package storage

import (
	"context"

	"github.com/procsight/procsight/pkg/types"
)

// ProjectStore provides project CRUD and lifecycle status persistence.
type ProjectStore interface {
	// CreateProject persists a new project. The project starts in
	// StatusPending; CreatedAt/UpdatedAt are set by the store.
	CreateProject(ctx context.Context, project *types.Project) error

	// GetProject retrieves a project by ID. Returns ErrNotFound if absent.
	GetProject(ctx context.Context, id string) (*types.Project, error)

	// ListProjects returns all projects, newest first.
	ListProjects(ctx context.Context) ([]*types.Project, error)

	// UpdateProjectStatus transitions a project's lifecycle status. The
	// store enforces the transition rules in types.IsValidStatusTransition
	// and returns ErrInvalidTransition for anything else.
	UpdateProjectStatus(ctx context.Context, id string, status types.ProjectStatus) error
}

// EventStore persists canonical events and their embeddings in bulk.
// Events are immutable once written; corrections require re-ingestion.
type EventStore interface {
	// InsertEvents bulk-inserts canonical events in one transaction.
	InsertEvents(ctx context.Context, events []types.CanonicalEvent) error

	// InsertEventEmbeddings bulk-inserts event embeddings in one transaction.
	InsertEventEmbeddings(ctx context.Context, embeddings []types.EventEmbedding) error
}

// DocumentStore persists documents and their chunks.
type DocumentStore interface {
	// InsertDocument persists document metadata and extracted text.
	InsertDocument(ctx context.Context, doc *types.Document) error

	// InsertChunks bulk-inserts chunks with embeddings in one transaction.
	InsertChunks(ctx context.Context, chunks []types.Chunk) error

	// UpdateChunkCount records the final chunk count after chunking completes.
	UpdateChunkCount(ctx context.Context, documentID string, count int) error
}

// EventMatch is one similarity-search hit over event embeddings.
type EventMatch struct {
	EventID     string  `json:"event_id"`
	CaseID      string  `json:"case_id"`
	Activity    string  `json:"activity"`
	SummaryText string  `json:"summary_text"`
	Similarity  float64 `json:"similarity"`
}

// ChunkMatch is one similarity-search hit over document chunks.
type ChunkMatch struct {
	DocumentID string  `json:"document_id"`
	Filename   string  `json:"filename"`
	ChunkIndex int     `json:"chunk_index"`
	Text       string  `json:"text"`
	Similarity float64 `json:"similarity"`
}

// SearchStore provides cosine-similarity retrieval over stored vectors.
type SearchStore interface {
	// SearchSimilarEvents returns the events nearest to the query vector,
	// highest similarity first. An empty projectID searches all projects.
	SearchSimilarEvents(ctx context.Context, query []float32, projectID string, limit int) ([]EventMatch, error)

	// SearchSimilarChunks returns the chunks nearest to the query vector.
	SearchSimilarChunks(ctx context.Context, query []float32, projectID string, limit int) ([]ChunkMatch, error)
}

// Store is the full persistence contract the coordinator depends on.
type Store interface {
	ProjectStore
	EventStore
	DocumentStore
	SearchStore

	// Close releases any resources held by the store.
	Close() error
}
