// Package types defines the canonical data model shared across the
// procsight ingestion pipeline: projects, normalized events, documents,
// text chunks and their embeddings.
package types

import (
	"fmt"
	"strings"
	"time"
)

// EmbeddingDim is the fixed dimensionality of every embedding vector in the
// system. All stored vectors must have exactly this many components; a
// mismatch is a configuration error, never a per-record condition.
const EmbeddingDim = 384

// DatasetType describes what kind of data a project holds.
type DatasetType string

const (
	DatasetStructured   DatasetType = "structured"   // tabular event logs
	DatasetUnstructured DatasetType = "unstructured" // free-form documents
	DatasetHybrid       DatasetType = "hybrid"       // both
)

// IsValidDatasetType reports whether t is a recognized dataset type.
func IsValidDatasetType(t DatasetType) bool {
	switch t {
	case DatasetStructured, DatasetUnstructured, DatasetHybrid:
		return true
	}
	return false
}

// Project is the top-level container and unit of lifecycle tracking for all
// ingested data. Status is mutated only by the ingestion coordinator.
type Project struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	DatasetType DatasetType   `json:"dataset_type"`
	Status      ProjectStatus `json:"status"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// CanonicalEvent is a normalized process-mining record. After schema
// normalization CaseID and Activity are always non-empty; Timestamp is
// timezone-aware (UTC) and may be nil only when the source value could not
// be parsed by any supported layout.
type CanonicalEvent struct {
	ID          string     `json:"id"`
	ProjectID   string     `json:"project_id"`
	CaseID      string     `json:"case_id"`
	Activity    string     `json:"activity"`
	Timestamp   *time.Time `json:"timestamp"`
	Resource    string     `json:"resource"`
	Cost        float64    `json:"cost"`
	Location    string     `json:"location,omitempty"`
	ProductType string     `json:"product_type,omitempty"`
}

// SummaryText builds the deterministic one-line description of an event used
// for embedding generation. Optional parts are omitted when absent, so two
// events with identical fields always produce identical summaries.
func (e *CanonicalEvent) SummaryText() string {
	parts := []string{fmt.Sprintf("Case %s", e.CaseID)}
	if e.Activity != "" {
		parts = append(parts, fmt.Sprintf("Activity: %s", e.Activity))
	}
	if e.Resource != "" {
		parts = append(parts, fmt.Sprintf("by %s", e.Resource))
	}
	if e.Timestamp != nil {
		parts = append(parts, fmt.Sprintf("at %s", e.Timestamp.UTC().Format(time.RFC3339)))
	}
	return strings.Join(parts, " | ")
}

// Document holds the metadata and extracted text of one unstructured upload.
// ChunkCount is written after chunking completes; a re-ingestion of the same
// file creates a new Document rather than updating this one.
type Document struct {
	ID         string    `json:"id"`
	ProjectID  string    `json:"project_id"`
	Filename   string    `json:"filename"`
	FileType   string    `json:"file_type"`
	RawText    string    `json:"-"`
	FileSize   int64     `json:"file_size"`
	ChunkCount int       `json:"chunk_count"`
	CreatedAt  time.Time `json:"created_at"`
}

// Chunk is a bounded-length text segment of a document, the unit of
// embedding and retrieval for unstructured content. ChunkIndex is contiguous
// starting at 0 within a document and chunks are never updated in place.
type Chunk struct {
	DocumentID string    `json:"document_id"`
	ProjectID  string    `json:"project_id"`
	ChunkIndex int       `json:"chunk_index"`
	Text       string    `json:"text"`
	Embedding  []float32 `json:"-"`
}

// EventEmbedding is the vector representation of one canonical event,
// derived deterministically from the event's fields via SummaryText.
type EventEmbedding struct {
	ProjectID   string    `json:"project_id"`
	EventID     string    `json:"event_id"`
	SummaryText string    `json:"summary_text"`
	Embedding   []float32 `json:"-"`
}

// StructuredMetrics summarizes one structured ingestion run.
// UniqueResources, TotalCost and AverageCost are only populated when the
// source table carried the corresponding optional columns.
type StructuredMetrics struct {
	TotalEvents      int        `json:"total_events"`
	UniqueCases      int        `json:"unique_cases"`
	UniqueActivities int        `json:"unique_activities"`
	UniqueResources  *int       `json:"unique_resources,omitempty"`
	TotalCost        *float64   `json:"total_cost,omitempty"`
	AverageCost      *float64   `json:"average_cost,omitempty"`
	DateRange        [2]*string `json:"date_range"`
}

// UnstructuredMetrics summarizes one unstructured ingestion run.
type UnstructuredMetrics struct {
	CharacterCount      int     `json:"character_count"`
	WordCount           int     `json:"word_count"`
	TotalChunks         int     `json:"total_chunks"`
	AverageChunkSize    float64 `json:"average_chunk_size"`
	EmbeddingsGenerated int     `json:"embeddings_generated,omitempty"`
}

// StructuredResult is returned by the coordinator for event-log uploads.
type StructuredResult struct {
	RecordsProcessed  int               `json:"records_processed"`
	EmbeddingsCreated int               `json:"embeddings_created"`
	Metrics           StructuredMetrics `json:"metrics"`
}

// UnstructuredResult is returned by the coordinator for document uploads.
type UnstructuredResult struct {
	ChunksCreated int                 `json:"chunks_created"`
	DocumentID    string              `json:"document_id"`
	Metrics       UnstructuredMetrics `json:"metrics"`
}
