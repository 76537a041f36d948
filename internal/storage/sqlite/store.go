package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/procsight/procsight/internal/embedding"
	"github.com/procsight/procsight/internal/storage"
	"github.com/procsight/procsight/pkg/types"
)

// Store implements storage.Store using SQLite. Embeddings are stored as the
// textual vector literal and similarity search is an in-process cosine scan,
// which is fine at the dataset sizes a single-file deployment sees.
type Store struct {
	db *sql.DB
}

// NewStore opens (or creates) a SQLite store at the given path. Use
// ":memory:" for an ephemeral store in tests.
func NewStore(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to open database: %w", err)
	}

	// SQLite handles one writer at a time; serialize access through a
	// single connection to avoid SQLITE_BUSY under concurrent ingestion.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: failed to enable foreign keys: %w", err)
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: failed to apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// GetDB returns the underlying database connection.
func (s *Store) GetDB() *sql.DB {
	return s.db
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateProject persists a new project in StatusPending.
func (s *Store) CreateProject(ctx context.Context, project *types.Project) error {
	if project.ID == "" || project.Name == "" {
		return fmt.Errorf("%w: project ID and name are required", storage.ErrInvalidInput)
	}
	if !types.IsValidDatasetType(project.DatasetType) {
		return fmt.Errorf("%w: unknown dataset type %q", storage.ErrInvalidInput, project.DatasetType)
	}

	now := time.Now().UTC()
	project.Status = types.StatusPending
	project.CreatedAt = now
	project.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO projects (id, name, description, dataset_type, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, project.ID, project.Name, project.Description, project.DatasetType, project.Status, now, now)
	if err != nil {
		return fmt.Errorf("sqlite: failed to create project: %w", err)
	}
	return nil
}

// GetProject retrieves a project by ID.
func (s *Store) GetProject(ctx context.Context, id string) (*types.Project, error) {
	var p types.Project
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, COALESCE(description, ''), dataset_type, status, created_at, updated_at
		FROM projects
		WHERE id = ?
	`, id).Scan(&p.ID, &p.Name, &p.Description, &p.DatasetType, &p.Status, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to get project: %w", err)
	}
	return &p, nil
}

// ListProjects returns all projects, newest first.
func (s *Store) ListProjects(ctx context.Context) ([]*types.Project, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, COALESCE(description, ''), dataset_type, status, created_at, updated_at
		FROM projects
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to list projects: %w", err)
	}
	defer rows.Close()

	var projects []*types.Project
	for rows.Next() {
		var p types.Project
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.DatasetType, &p.Status, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: failed to scan project: %w", err)
		}
		projects = append(projects, &p)
	}
	return projects, rows.Err()
}

// UpdateProjectStatus transitions a project's lifecycle status, enforcing
// the state machine. The current status is re-checked in the UPDATE.
func (s *Store) UpdateProjectStatus(ctx context.Context, id string, status types.ProjectStatus) error {
	if !types.IsValidProjectStatus(status) {
		return fmt.Errorf("%w: unknown status %q", storage.ErrInvalidInput, status)
	}

	current, err := s.GetProject(ctx, id)
	if err != nil {
		return err
	}
	if !types.IsValidStatusTransition(current.Status, status) {
		return fmt.Errorf("%w: %s -> %s", storage.ErrInvalidTransition, current.Status, status)
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE projects
		SET status = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`, status, time.Now().UTC(), id, current.Status)
	if err != nil {
		return fmt.Errorf("sqlite: failed to update project status: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: failed to check rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: project %s changed status concurrently", storage.ErrInvalidTransition, id)
	}
	return nil
}

// InsertEvents bulk-inserts canonical events in one transaction.
func (s *Store) InsertEvents(ctx context.Context, events []types.CanonicalEvent) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO events (id, project_id, case_id, activity, timestamp, resource, cost, location, product_type)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("sqlite: failed to prepare event insert: %w", err)
	}
	defer stmt.Close()

	for i := range events {
		ev := &events[i]
		var ts interface{}
		if ev.Timestamp != nil {
			ts = ev.Timestamp.UTC()
		}
		if _, err := stmt.ExecContext(ctx,
			ev.ID, ev.ProjectID, ev.CaseID, ev.Activity, ts,
			ev.Resource, ev.Cost, ev.Location, ev.ProductType,
		); err != nil {
			return fmt.Errorf("sqlite: failed to insert event %d: %w", i, err)
		}
	}

	return tx.Commit()
}

// InsertEventEmbeddings bulk-inserts event embeddings as textual vectors.
func (s *Store) InsertEventEmbeddings(ctx context.Context, embeddings []types.EventEmbedding) error {
	if len(embeddings) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO event_embeddings (event_id, project_id, summary_text, embedding, created_at)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("sqlite: failed to prepare embedding insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for i := range embeddings {
		emb := &embeddings[i]
		if len(emb.Embedding) != types.EmbeddingDim {
			return fmt.Errorf("%w: event embedding has %d components, want %d",
				storage.ErrInvalidInput, len(emb.Embedding), types.EmbeddingDim)
		}
		if _, err := stmt.ExecContext(ctx,
			emb.EventID, emb.ProjectID, emb.SummaryText, storage.EncodeVector(emb.Embedding), now,
		); err != nil {
			return fmt.Errorf("sqlite: failed to insert event embedding %d: %w", i, err)
		}
	}

	return tx.Commit()
}

// InsertDocument persists document metadata and extracted text.
func (s *Store) InsertDocument(ctx context.Context, doc *types.Document) error {
	if doc.ID == "" || doc.ProjectID == "" {
		return fmt.Errorf("%w: document ID and project ID are required", storage.ErrInvalidInput)
	}

	doc.CreatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (id, project_id, filename, file_type, raw_text, file_size, chunk_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, doc.ID, doc.ProjectID, doc.Filename, doc.FileType, doc.RawText, doc.FileSize, doc.ChunkCount, doc.CreatedAt)
	if err != nil {
		return fmt.Errorf("sqlite: failed to insert document: %w", err)
	}
	return nil
}

// InsertChunks bulk-inserts chunks with textual vector embeddings.
func (s *Store) InsertChunks(ctx context.Context, chunks []types.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO document_chunks (document_id, project_id, chunk_index, chunk_text, embedding, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("sqlite: failed to prepare chunk insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for i := range chunks {
		c := &chunks[i]
		if len(c.Embedding) != types.EmbeddingDim {
			return fmt.Errorf("%w: chunk embedding has %d components, want %d",
				storage.ErrInvalidInput, len(c.Embedding), types.EmbeddingDim)
		}
		if _, err := stmt.ExecContext(ctx,
			c.DocumentID, c.ProjectID, c.ChunkIndex, c.Text, storage.EncodeVector(c.Embedding), now,
		); err != nil {
			return fmt.Errorf("sqlite: failed to insert chunk %d: %w", i, err)
		}
	}

	return tx.Commit()
}

// UpdateChunkCount records the final chunk count for a document.
func (s *Store) UpdateChunkCount(ctx context.Context, documentID string, count int) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE documents SET chunk_count = ? WHERE id = ?`, count, documentID)
	if err != nil {
		return fmt.Errorf("sqlite: failed to update chunk count: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: failed to check rows affected: %w", err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// SearchSimilarEvents scans stored event embeddings and ranks them by
// cosine similarity in process.
func (s *Store) SearchSimilarEvents(ctx context.Context, query []float32, projectID string, limit int) ([]storage.EventMatch, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT ee.event_id, e.case_id, e.activity, ee.summary_text, ee.embedding
		FROM event_embeddings ee
		JOIN events e ON ee.event_id = e.id
		WHERE (? = '' OR ee.project_id = ?)
	`, projectID, projectID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: event similarity search failed: %w", err)
	}
	defer rows.Close()

	var matches []storage.EventMatch
	for rows.Next() {
		var m storage.EventMatch
		var literal string
		if err := rows.Scan(&m.EventID, &m.CaseID, &m.Activity, &m.SummaryText, &literal); err != nil {
			return nil, fmt.Errorf("sqlite: failed to scan event match: %w", err)
		}

		vec, err := storage.DecodeVector(literal)
		if err != nil {
			return nil, fmt.Errorf("sqlite: corrupt stored embedding for event %s: %w", m.EventID, err)
		}
		sim, err := embedding.Similarity(query, vec)
		if err != nil {
			return nil, err
		}
		m.Similarity = sim
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return topMatches(matches, limit, func(m storage.EventMatch) float64 { return m.Similarity }), nil
}

// SearchSimilarChunks scans stored chunk embeddings and ranks them by cosine
// similarity in process.
func (s *Store) SearchSimilarChunks(ctx context.Context, query []float32, projectID string, limit int) ([]storage.ChunkMatch, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT dc.document_id, d.filename, dc.chunk_index, dc.chunk_text, dc.embedding
		FROM document_chunks dc
		JOIN documents d ON dc.document_id = d.id
		WHERE (? = '' OR dc.project_id = ?)
	`, projectID, projectID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: chunk similarity search failed: %w", err)
	}
	defer rows.Close()

	var matches []storage.ChunkMatch
	for rows.Next() {
		var m storage.ChunkMatch
		var literal string
		if err := rows.Scan(&m.DocumentID, &m.Filename, &m.ChunkIndex, &m.Text, &literal); err != nil {
			return nil, fmt.Errorf("sqlite: failed to scan chunk match: %w", err)
		}

		vec, err := storage.DecodeVector(literal)
		if err != nil {
			return nil, fmt.Errorf("sqlite: corrupt stored embedding for chunk %s/%d: %w", m.DocumentID, m.ChunkIndex, err)
		}
		sim, err := embedding.Similarity(query, vec)
		if err != nil {
			return nil, err
		}
		m.Similarity = sim
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return topMatches(matches, limit, func(m storage.ChunkMatch) float64 { return m.Similarity }), nil
}

// topMatches sorts by similarity descending and truncates to limit.
func topMatches[T any](matches []T, limit int, score func(T) float64) []T {
	sort.SliceStable(matches, func(i, j int) bool {
		return score(matches[i]) > score(matches[j])
	})
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches
}

// Compile-time assertion that Store satisfies the full storage contract.
var _ storage.Store = (*Store)(nil)
