// Package postgres provides the PostgreSQL + pgvector implementation of the
// storage contract.
package postgres

// Schema contains the SQL statements creating the ingestion schema.
// All statements are idempotent (IF NOT EXISTS) so the schema can be applied
// on every startup. The vector(384) columns require the pgvector extension,
// which NewStore enables before applying this.
const Schema = `
-- Projects: top-level containers and lifecycle tracking
CREATE TABLE IF NOT EXISTS projects (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    description TEXT,
    dataset_type TEXT NOT NULL DEFAULT 'structured',
    status TEXT NOT NULL DEFAULT 'pending',
    created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
);

-- Canonical event rows, immutable once written
CREATE TABLE IF NOT EXISTS events (
    id TEXT PRIMARY KEY,
    project_id TEXT NOT NULL,
    case_id TEXT NOT NULL,
    activity TEXT NOT NULL,
    timestamp TIMESTAMPTZ,
    resource TEXT NOT NULL DEFAULT 'Unknown',
    cost DOUBLE PRECISION NOT NULL DEFAULT 0.0,
    location TEXT NOT NULL DEFAULT '',
    product_type TEXT NOT NULL DEFAULT '',

    FOREIGN KEY (project_id) REFERENCES projects(id) ON DELETE CASCADE
);

-- One embedding per canonical event
CREATE TABLE IF NOT EXISTS event_embeddings (
    event_id TEXT PRIMARY KEY,
    project_id TEXT NOT NULL,
    summary_text TEXT NOT NULL,
    embedding vector(384) NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,

    FOREIGN KEY (event_id) REFERENCES events(id) ON DELETE CASCADE,
    FOREIGN KEY (project_id) REFERENCES projects(id) ON DELETE CASCADE
);

-- Documents: metadata plus extracted text of unstructured uploads
CREATE TABLE IF NOT EXISTS documents (
    id TEXT PRIMARY KEY,
    project_id TEXT NOT NULL,
    filename TEXT NOT NULL,
    file_type TEXT NOT NULL,
    raw_text TEXT,
    file_size BIGINT NOT NULL DEFAULT 0,
    chunk_count INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,

    FOREIGN KEY (project_id) REFERENCES projects(id) ON DELETE CASCADE
);

-- Document chunks, contiguous chunk_index from 0, never updated in place
CREATE TABLE IF NOT EXISTS document_chunks (
    document_id TEXT NOT NULL,
    project_id TEXT NOT NULL,
    chunk_index INTEGER NOT NULL,
    chunk_text TEXT NOT NULL,
    embedding vector(384) NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,

    PRIMARY KEY (document_id, chunk_index),
    FOREIGN KEY (document_id) REFERENCES documents(id) ON DELETE CASCADE,
    FOREIGN KEY (project_id) REFERENCES projects(id) ON DELETE CASCADE
);

-- Indexes

CREATE INDEX IF NOT EXISTS idx_projects_status ON projects(status);
CREATE INDEX IF NOT EXISTS idx_projects_created_at ON projects(created_at);

CREATE INDEX IF NOT EXISTS idx_events_project ON events(project_id);
CREATE INDEX IF NOT EXISTS idx_events_case ON events(project_id, case_id);
CREATE INDEX IF NOT EXISTS idx_events_timestamp ON events(timestamp);

CREATE INDEX IF NOT EXISTS idx_event_embeddings_project ON event_embeddings(project_id);

CREATE INDEX IF NOT EXISTS idx_documents_project ON documents(project_id);
CREATE INDEX IF NOT EXISTS idx_document_chunks_project ON document_chunks(project_id);

-- Approximate nearest-neighbor indexes for cosine distance
CREATE INDEX IF NOT EXISTS idx_event_embeddings_vec
    ON event_embeddings USING ivfflat (embedding vector_cosine_ops) WITH (lists = 100);
CREATE INDEX IF NOT EXISTS idx_document_chunks_vec
    ON document_chunks USING ivfflat (embedding vector_cosine_ops) WITH (lists = 100);
`
