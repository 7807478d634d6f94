// Package store provides the local document store the sync engine writes
// into.
//
// Documents are JSON objects kept in an embedded SQLite database
// (ncruces/go-sqlite3, WAL mode). A libSQL/Turso URL may be used instead of a
// file path when the binary is built with cgo.
//
// Architecture:
//   - documents: one row per document, body stored as JSON text
//   - assets: uploaded binary assets, content addressed by SHA-256
//   - Queries use SQLite's JSON1 functions over the body column
//
// The store supports the operations the engine needs: point reads, create,
// JSON queries, field-level patches (set, unset, setIfMissing) and asset
// upload.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

var (
	// ErrNotFound is returned when patching a document that does not exist.
	ErrNotFound = errors.New("document not found")

	// ErrExists is returned when creating a document whose id is taken.
	ErrExists = errors.New("document already exists")
)

// Store wraps the SQLite connection.
type Store struct {
	conn   *sql.DB
	path   string
	remote bool
	assets AssetBackend
}

// Option configures a Store.
type Option func(*Store)

// WithAssetBackend stores asset bytes in b instead of inline in SQLite.
func WithAssetBackend(b AssetBackend) Option {
	return func(s *Store) { s.assets = b }
}

// Open creates or opens the database at path and initializes the schema.
//
// The caller MUST call Close() when done.
//
// Example:
//
//	st, err := store.Open(".arena-sync/documents.db")
//	if err != nil {
//	    return err
//	}
//	defer st.Close()
func Open(path string, opts ...Option) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(8)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(5 * time.Minute)

	s := &Store{conn: conn, path: path}
	for _, opt := range opts {
		opt(s)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := conn.Exec(pragma); err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	if err := s.InitSchema(context.Background()); err != nil {
		_ = s.Close()
		return nil, err
	}

	return s, nil
}

func openRemote(conn *sql.DB, dbURL string, opts []Option) (*Store, error) {
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping remote database: %w", err)
	}

	s := &Store{conn: conn, path: dbURL, remote: true}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.InitSchema(context.Background()); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// RawDB returns the underlying sql.DB connection.
func (s *Store) RawDB() *sql.DB {
	return s.conn
}

// Path returns the database path or URL.
func (s *Store) Path() string {
	return s.path
}

// Close closes the database connection, checkpointing the WAL first for
// local files.
func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}

	if !s.remote {
		if _, err := s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
		}
	}

	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	s.conn = nil
	return nil
}

// InitSchema creates the tables if they don't exist. Idempotent.
func (s *Store) InitSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		body TEXT NOT NULL,  -- JSON object
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS assets (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		filename TEXT,
		content_type TEXT,
		size INTEGER NOT NULL,
		sha256 TEXT NOT NULL,
		location TEXT NOT NULL,  -- "inline" or backend URL
		data BLOB,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_documents_type ON documents(type);
	CREATE INDEX IF NOT EXISTS idx_assets_sha ON assets(kind, sha256);
	`

	if _, err := s.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// GetDocument returns the document with id, or nil (and no error) when it
// does not exist.
func (s *Store) GetDocument(ctx context.Context, id string) (Document, error) {
	var body string
	err := s.conn.QueryRowContext(ctx, `SELECT body FROM documents WHERE id = ?`, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read document %s: %w", id, err)
	}
	return decodeDocument([]byte(body))
}

// Create inserts a new document. It fails with ErrExists when the id is taken.
func (s *Store) Create(ctx context.Context, doc Document) error {
	id := doc.ID()
	if id == "" {
		return fmt.Errorf("document _id is required")
	}
	if doc.Type() == "" {
		return fmt.Errorf("document %s: _type is required", id)
	}

	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode document %s: %w", id, err)
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.conn.ExecContext(ctx, `
	INSERT INTO documents (id, type, body, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(id) DO NOTHING
	`, id, doc.Type(), string(body), now, now)
	if err != nil {
		return fmt.Errorf("failed to create document %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("create %s: %w", id, ErrExists)
	}
	return nil
}

// Patch starts a patch against the document id.
func (s *Store) Patch(id string) *Patch {
	return NewPatch(id, s.commitPatch)
}

// commitPatch applies p inside a transaction.
func (s *Store) commitPatch(ctx context.Context, p *Patch) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var body string
	err = tx.QueryRowContext(ctx, `SELECT body FROM documents WHERE id = ?`, p.ID).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("patch %s: %w", p.ID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to read document %s: %w", p.ID, err)
	}

	doc, err := decodeDocument([]byte(body))
	if err != nil {
		return err
	}
	doc = p.Apply(doc)

	updated, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode document %s: %w", p.ID, err)
	}

	_, err = tx.ExecContext(ctx, `UPDATE documents SET body = ?, type = ?, updated_at = ? WHERE id = ?`,
		string(updated), doc.Type(), time.Now().UTC().Format(time.RFC3339Nano), p.ID)
	if err != nil {
		return fmt.Errorf("failed to update document %s: %w", p.ID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit patch %s: %w", p.ID, err)
	}
	return nil
}

// Query runs a SELECT returning a single JSON body column and decodes each
// row. params are bound as named parameters (":slug").
//
// Example:
//
//	docs, err := st.Query(ctx,
//	    `SELECT body FROM documents WHERE type = :type`,
//	    map[string]any{"type": "areNaBlock"})
func (s *Store) Query(ctx context.Context, query string, params map[string]any) ([]Document, error) {
	args := make([]any, 0, len(params))
	for name, v := range params {
		args = append(args, sql.Named(strings.TrimPrefix(name, ":"), v))
	}

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		doc, err := decodeDocument([]byte(body))
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating documents: %w", err)
	}
	return docs, nil
}

// channelMembersQuery selects documents of :type whose channels list holds
// an entry with :slug.
const channelMembersQuery = `
SELECT d.body FROM documents d
WHERE d.type = :type
  AND EXISTS (
    SELECT 1 FROM json_each(d.body, '$.channels') c
    WHERE json_extract(c.value, '$.slug') = :slug
  )`

// FindByChannel returns every document of docType claiming membership in
// the channel slug.
func (s *Store) FindByChannel(ctx context.Context, docType, slug string) ([]Document, error) {
	docs, err := s.Query(ctx, channelMembersQuery, map[string]any{"type": docType, "slug": slug})
	if err != nil {
		return nil, fmt.Errorf("failed to find members of %s: %w", slug, err)
	}
	return docs, nil
}
