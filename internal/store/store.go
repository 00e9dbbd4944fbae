// Package store provides a SQLite-backed log of answered questions. Every
// Ask is recorded with its outcome and cited chunk ids so operators can
// review what the service answered across restarts.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver
)

// Source is one cited chunk of a recorded answer.
type Source struct {
	// ID is the chunk id within the index at the time of the answer.
	ID int `json:"id"`
	// Score is the boosted retrieval score.
	Score float64 `json:"score"`
}

// Entry is a single recorded question and its answer.
type Entry struct {
	// ID is the row id assigned on insert.
	ID int64 `json:"id"`
	// Question is the user's question as received.
	Question string `json:"question"`
	// Answer is the text returned to the user.
	Answer string `json:"answer"`
	// Intent is the detected question intent (e.g. "DEFINE").
	Intent string `json:"intent"`
	// Outcome is "answered", "empty_index" or "insufficient_evidence".
	Outcome string `json:"outcome"`
	// Sources are the chunks cited by the answer, in ranked order.
	Sources []Source `json:"sources"`
	// ElapsedMS is the end-to-end latency of the Ask in milliseconds.
	ElapsedMS int64 `json:"elapsed_ms"`
	// CreatedAt is when the entry was persisted.
	CreatedAt time.Time `json:"created_at"`
}

// AskLog persists and retrieves answered questions. Implementations must be
// safe for concurrent use.
type AskLog interface {
	// Record persists one entry. ID and CreatedAt are assigned by the store.
	Record(ctx context.Context, e Entry) error
	// Recent returns the most recent n entries, newest first.
	Recent(ctx context.Context, n int) ([]Entry, error)
	// Close releases any resources held by the store.
	Close() error
}

// SQLiteStore is an AskLog backed by a local SQLite database.
type SQLiteStore struct {
	// db is the underlying database connection pool.
	db *sql.DB
	// now is the clock used for CreatedAt; replaced in tests.
	now func() time.Time
}

// DefaultDBPath returns the default path for the ask history database.
// It resolves to ~/.docqa/history.db, creating the directory if needed.
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("store: could not determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".docqa")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("store: could not create %s: %w", dir, err)
	}
	return filepath.Join(dir, "history.db"), nil
}

// Open opens (or creates) a SQLiteStore at the given path and runs the schema
// migration. Use ":memory:" for an in-memory database in tests.
func Open(path string) (*SQLiteStore, error) {
	// WAL mode improves concurrent read performance and is safe for single-host use.
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// Limit to a single writer connection to avoid SQLITE_BUSY under concurrent writes.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// migrate creates the schema if it does not already exist.
func (s *SQLiteStore) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS asks (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    question     TEXT    NOT NULL,
    answer       TEXT    NOT NULL,
    intent       TEXT    NOT NULL,
    outcome      TEXT    NOT NULL CHECK(outcome IN ('answered','empty_index','insufficient_evidence')),
    sources      TEXT    NOT NULL,  -- JSON array of {id, score}
    elapsed_ms   INTEGER NOT NULL,
    created_at   INTEGER NOT NULL   -- Unix timestamp (milliseconds)
);
CREATE INDEX IF NOT EXISTS idx_asks_created ON asks (created_at);
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// Record persists a single entry.
func (s *SQLiteStore) Record(ctx context.Context, e Entry) error {
	sources := e.Sources
	if sources == nil {
		sources = []Source{}
	}
	raw, err := json.Marshal(sources)
	if err != nil {
		return fmt.Errorf("store: record: encode sources: %w", err)
	}

	const q = `INSERT INTO asks (question, answer, intent, outcome, sources, elapsed_ms, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, q,
		e.Question, e.Answer, e.Intent, e.Outcome, string(raw),
		e.ElapsedMS, s.now().UnixMilli(),
	); err != nil {
		return fmt.Errorf("store: record: %w", err)
	}
	return nil
}

// Recent returns the most recent n entries, newest first. n <= 0 returns nil.
func (s *SQLiteStore) Recent(ctx context.Context, n int) ([]Entry, error) {
	if n <= 0 {
		return nil, nil
	}
	const q = `
SELECT id, question, answer, intent, outcome, sources, elapsed_ms, created_at
FROM   asks
ORDER  BY created_at DESC, id DESC
LIMIT  ?`

	rows, err := s.db.QueryContext(ctx, q, n)
	if err != nil {
		return nil, fmt.Errorf("store: recent: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e   Entry
			raw string
			ts  int64
		)
		if err := rows.Scan(&e.ID, &e.Question, &e.Answer, &e.Intent, &e.Outcome, &raw, &e.ElapsedMS, &ts); err != nil {
			return nil, fmt.Errorf("store: recent scan: %w", err)
		}
		if err := json.Unmarshal([]byte(raw), &e.Sources); err != nil {
			return nil, fmt.Errorf("store: recent decode sources for row %d: %w", e.ID, err)
		}
		e.CreatedAt = time.UnixMilli(ts)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: recent rows: %w", err)
	}
	return entries, nil
}

// Ping verifies the database connection is alive.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("store: ping: %w", err)
	}
	return nil
}

// Close releases the database connection pool.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("store: close: %w", err)
	}
	return nil
}
