package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver registration
)

const (
	schemaVersion      = 1
	defaultBusyTimeout = 5000 // milliseconds
)

// schemaStatements are executed in order to create the database schema.
// All use IF NOT EXISTS for idempotent re-application.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS room_sessions (
		room_id    TEXT PRIMARY KEY,
		record     TEXT NOT NULL,
		updated_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now'))
	)`,

	`CREATE INDEX IF NOT EXISTS idx_room_sessions_updated ON room_sessions(updated_at)`,
}

// SQLiteStore is a RoomStore backed by a local SQLite database.
// Pure Go driver (modernc.org/sqlite), WAL mode, single connection.
type SQLiteStore struct {
	db *sql.DB
}

var _ RoomStore = (*SQLiteStore)(nil)

// OpenSQLite opens (creating if needed) the database at path and migrates the
// schema. Close releases the underlying handle.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("store: create directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}

	// SQLite handles one writer at a time; limit pool to 1 connection
	// so PRAGMAs apply consistently.
	db.SetMaxOpenConns(1)

	ctx := context.Background()
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: enable WAL: %w", err)
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout=%d", defaultBusyTimeout)); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: set busy_timeout: %w", err)
	}

	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &SQLiteStore{db: db}, nil
}

// migrate creates or updates the database schema to the latest version.
// All DDL uses IF NOT EXISTS, making migration idempotent.
func migrate(db *sql.DB) error {
	ctx := context.Background()

	if _, err := db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS schema_version (version INTEGER PRIMARY KEY)"); err != nil {
		return fmt.Errorf("store: create schema_version: %w", err)
	}

	var current int
	if err := db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&current); err != nil {
		return fmt.Errorf("store: read schema version: %w", err)
	}
	if current >= schemaVersion {
		return nil
	}

	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("store: migrate: %w\nstatement: %s", err, stmt)
		}
	}

	if _, err := db.ExecContext(ctx, "INSERT OR REPLACE INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("store: record schema version: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Get implements RoomStore.
func (s *SQLiteStore) Get(ctx context.Context, roomID string) (*RoomSessionRecord, error) {
	var (
		recordJSON   string
		updatedAtStr string
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT record, updated_at FROM room_sessions WHERE room_id = ?", roomID,
	).Scan(&recordJSON, &updatedAtStr)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get %s: %w", roomID, err)
	}

	var rec RoomSessionRecord
	if err := json.Unmarshal([]byte(recordJSON), &rec); err != nil {
		return nil, fmt.Errorf("store: unmarshal record for %s: %w", roomID, err)
	}
	if t, err := time.Parse(time.RFC3339Nano, updatedAtStr); err == nil {
		rec.UpdatedAt = t
	}
	return &rec, nil
}

// Put implements RoomStore.
func (s *SQLiteStore) Put(ctx context.Context, roomID string, rec *RoomSessionRecord) error {
	now := time.Now().UTC()
	cp := *rec
	cp.UpdatedAt = now

	data, err := json.Marshal(&cp)
	if err != nil {
		return fmt.Errorf("store: marshal record for %s: %w", roomID, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO room_sessions (room_id, record, updated_at)
		VALUES (?, ?, ?)`,
		roomID, string(data), now.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("store: put %s: %w", roomID, err)
	}
	return nil
}

// Delete implements RoomStore. Deleting an absent record is a no-op.
func (s *SQLiteStore) Delete(ctx context.Context, roomID string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM room_sessions WHERE room_id = ?", roomID); err != nil {
		return fmt.Errorf("store: delete %s: %w", roomID, err)
	}
	return nil
}

// List implements RoomStore.
func (s *SQLiteStore) List(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT room_id FROM room_sessions")
	if err != nil {
		return nil, fmt.Errorf("store: list: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("store: scan list row: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list rows: %w", err)
	}
	return ids, nil
}

// Stale implements RoomStore.
func (s *SQLiteStore) Stale(ctx context.Context, cutoff time.Time) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT room_id FROM room_sessions WHERE updated_at < ?",
		cutoff.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("store: list stale: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("store: scan stale row: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: stale rows: %w", err)
	}
	return ids, nil
}
