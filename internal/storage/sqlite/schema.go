// Package sqlite provides the SQLite implementation of the storage contract.
// SQLite has no native vector type, so embeddings are stored as the textual
// bracketed literal "[v1,v2,...]" and similarity search scans in process.
package sqlite

// Schema contains the SQL statements creating the ingestion schema.
// All statements are idempotent (IF NOT EXISTS).
const Schema = `
CREATE TABLE IF NOT EXISTS projects (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    description TEXT,
    dataset_type TEXT NOT NULL DEFAULT 'structured',
    status TEXT NOT NULL DEFAULT 'pending',
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS events (
    id TEXT PRIMARY KEY,
    project_id TEXT NOT NULL,
    case_id TEXT NOT NULL,
    activity TEXT NOT NULL,
    timestamp TIMESTAMP,
    resource TEXT NOT NULL DEFAULT 'Unknown',
    cost REAL NOT NULL DEFAULT 0.0,
    location TEXT NOT NULL DEFAULT '',
    product_type TEXT NOT NULL DEFAULT '',

    FOREIGN KEY (project_id) REFERENCES projects(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS event_embeddings (
    event_id TEXT PRIMARY KEY,
    project_id TEXT NOT NULL,
    summary_text TEXT NOT NULL,
    embedding TEXT NOT NULL, -- "[v1,v2,...]" literal
    created_at TIMESTAMP NOT NULL,

    FOREIGN KEY (event_id) REFERENCES events(id) ON DELETE CASCADE,
    FOREIGN KEY (project_id) REFERENCES projects(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS documents (
    id TEXT PRIMARY KEY,
    project_id TEXT NOT NULL,
    filename TEXT NOT NULL,
    file_type TEXT NOT NULL,
    raw_text TEXT,
    file_size INTEGER NOT NULL DEFAULT 0,
    chunk_count INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL,

    FOREIGN KEY (project_id) REFERENCES projects(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS document_chunks (
    document_id TEXT NOT NULL,
    project_id TEXT NOT NULL,
    chunk_index INTEGER NOT NULL,
    chunk_text TEXT NOT NULL,
    embedding TEXT NOT NULL, -- "[v1,v2,...]" literal
    created_at TIMESTAMP NOT NULL,

    PRIMARY KEY (document_id, chunk_index),
    FOREIGN KEY (document_id) REFERENCES documents(id) ON DELETE CASCADE,
    FOREIGN KEY (project_id) REFERENCES projects(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_projects_status ON projects(status);
CREATE INDEX IF NOT EXISTS idx_events_project ON events(project_id);
CREATE INDEX IF NOT EXISTS idx_events_case ON events(project_id, case_id);
CREATE INDEX IF NOT EXISTS idx_event_embeddings_project ON event_embeddings(project_id);
CREATE INDEX IF NOT EXISTS idx_documents_project ON documents(project_id);
CREATE INDEX IF NOT EXISTS idx_document_chunks_project ON document_chunks(project_id);
`
