// Package store persists post records in SQLite and keeps the search
// index in step with them. The database is the system of record; the
// index is derived and rebuilt from it on demand.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)
)

// Post is one catalog record. Tags is the normalized comma-joined list;
// AltText is the accessibility description derived from the caption or
// the tags.
type Post struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	ImageURL string `json:"imageURL"`
	Date     string `json:"date"`
	Tags     string `json:"llmTags"`
	AltText  string `json:"altText"`
}

// ErrNotFound is returned by Get when no post has the given id.
var ErrNotFound = errors.New("post not found")

// PostStore is the SQLite-backed record store. A single connection is
// used so writes serialize inside the driver rather than failing with
// SQLITE_BUSY.
type PostStore struct {
	db     *sql.DB
	logger *slog.Logger
}

const schema = `
CREATE TABLE IF NOT EXISTS posts (
	id        TEXT PRIMARY KEY,
	title     TEXT NOT NULL,
	image_url TEXT NOT NULL,
	date      TEXT NOT NULL,
	tags      TEXT NOT NULL DEFAULT '',
	alt_text  TEXT NOT NULL DEFAULT ''
);
`

// OpenStore opens (or creates) the post database at path. Pass ":memory:"
// for an ephemeral store in tests.
func OpenStore(path string, logger *slog.Logger) (*PostStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single connection: serializes writers and keeps :memory: databases
	// from silently becoming one-per-connection.
	db.SetMaxOpenConns(1)

	// WAL must be set via PRAGMA statements for modernc.org/sqlite;
	// DSN parameters are not honored.
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &PostStore{db: db, logger: logger}, nil
}

// Upsert writes the post, replacing any previous record with the same id.
func (s *PostStore) Upsert(ctx context.Context, p Post) error {
	if p.ID == "" {
		return fmt.Errorf("post id must not be empty")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO posts (id, title, image_url, date, tags, alt_text)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title     = excluded.title,
			image_url = excluded.image_url,
			date      = excluded.date,
			tags      = excluded.tags,
			alt_text  = excluded.alt_text`,
		p.ID, p.Title, p.ImageURL, p.Date, p.Tags, p.AltText)
	if err != nil {
		return fmt.Errorf("failed to upsert post %s: %w", p.ID, err)
	}
	return nil
}

// Get loads a single post by id.
func (s *PostStore) Get(ctx context.Context, id string) (Post, error) {
	var p Post
	err := s.db.QueryRowContext(ctx, `
		SELECT id, title, image_url, date, tags, alt_text
		FROM posts WHERE id = ?`, id).
		Scan(&p.ID, &p.Title, &p.ImageURL, &p.Date, &p.Tags, &p.AltText)
	if errors.Is(err, sql.ErrNoRows) {
		return Post{}, ErrNotFound
	}
	if err != nil {
		return Post{}, fmt.Errorf("failed to load post %s: %w", id, err)
	}
	return p, nil
}

// All returns every post ordered by date then id, for index rebuilds.
func (s *PostStore) All(ctx context.Context) ([]Post, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, image_url, date, tags, alt_text
		FROM posts ORDER BY date, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list posts: %w", err)
	}
	defer rows.Close()

	var posts []Post
	for rows.Next() {
		var p Post
		if err := rows.Scan(&p.ID, &p.Title, &p.ImageURL, &p.Date, &p.Tags, &p.AltText); err != nil {
			return nil, fmt.Errorf("failed to scan post: %w", err)
		}
		posts = append(posts, p)
	}
	return posts, rows.Err()
}

// Count returns the number of stored posts.
func (s *PostStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM posts").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count posts: %w", err)
	}
	return n, nil
}

// Close closes the database.
func (s *PostStore) Close() error {
	return s.db.Close()
}
