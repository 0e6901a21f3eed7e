// Package db provides SQLite storage for download runs and saved documents.
package db

// Schema defines the SQL statements to create database tables.
const Schema = `
-- Download runs
-- One row per bl-docs download invocation
CREATE TABLE IF NOT EXISTS runs (
    run_id TEXT PRIMARY KEY,            -- UUID v4
    mode TEXT NOT NULL,                 -- 'download-documents' or 'discover-tenant'
    start_date TEXT NOT NULL,           -- YYYY-MM-DD
    end_date TEXT NOT NULL,             -- YYYY-MM-DD
    started_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    finished_at TIMESTAMP,
    journals INTEGER NOT NULL DEFAULT 0,
    documents INTEGER NOT NULL DEFAULT 0,
    files_written INTEGER NOT NULL DEFAULT 0,
    failures INTEGER NOT NULL DEFAULT 0,
    error TEXT
);

-- Saved documents
-- One row per PDF written; a re-run overwrites the file and adds a new row
CREATE TABLE IF NOT EXISTS downloads (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT NOT NULL REFERENCES runs(run_id),
    document_id TEXT NOT NULL,
    journal_id TEXT NOT NULL,
    account_id TEXT NOT NULL,
    path TEXT NOT NULL,
    size INTEGER NOT NULL,
    downloaded_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_downloads_run
    ON downloads(run_id);

CREATE INDEX IF NOT EXISTS idx_downloads_document
    ON downloads(document_id);

-- Key-value metadata, e.g. the last successful run
CREATE TABLE IF NOT EXISTS metadata (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
`

// InitializeSchema initializes the database schema.
// It creates all tables if they don't exist.
func InitializeSchema(conn *Connection) error {
	if _, err := conn.Exec(Schema); err != nil {
		return err
	}
	return nil
}
