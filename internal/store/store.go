// Package store persists document content to a local SQLite database. It is
// the client-side boundary of the out-of-band save path: always the current
// full content, never a diff.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/teamspace-collab/sync-client/internal/model"
)

// DocumentStore saves and loads full document snapshots.
type DocumentStore struct {
	db *sql.DB
}

// Open opens (and if needed creates) the database at path. Callers own the
// returned store and must Close it; there is no package-level instance.
func Open(path string) (*DocumentStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// WAL mode for concurrent reads while a save is in flight.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &DocumentStore{db: db}, nil
}

func migrate(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		content TEXT NOT NULL,
		version INTEGER NOT NULL,
		updated_at DATETIME NOT NULL
	);
	`
	_, err := db.Exec(schema)
	return err
}

// SaveDocument upserts the full content and version of a document.
func (s *DocumentStore) SaveDocument(ctx context.Context, documentID, content string, version int) error {
	query := `
		INSERT INTO documents (id, content, version, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			content = excluded.content,
			version = excluded.version,
			updated_at = excluded.updated_at
	`
	if _, err := s.db.ExecContext(ctx, query, documentID, content, version, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to save document: %w", err)
	}
	return nil
}

// LoadDocument returns the stored content and version of a document.
func (s *DocumentStore) LoadDocument(ctx context.Context, documentID string) (content string, version int, err error) {
	query := `SELECT content, version FROM documents WHERE id = ?`
	err = s.db.QueryRowContext(ctx, query, documentID).Scan(&content, &version)
	if err == sql.ErrNoRows {
		return "", 0, model.ErrDocumentNotFound
	}
	if err != nil {
		return "", 0, fmt.Errorf("failed to load document: %w", err)
	}
	return content, version, nil
}

// DeleteDocument removes a stored document snapshot.
func (s *DocumentStore) DeleteDocument(ctx context.Context, documentID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, documentID); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *DocumentStore) Close() error {
	return s.db.Close()
}
