package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// DB wraps the SQLite store holding audio-history metadata rows. The
// core pipeline only ever inserts; nothing reads this store at runtime.
type DB struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS audio_history (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	event_id TEXT NOT NULL,
	match_id TEXT,
	path TEXT NOT NULL,
	duration_seconds REAL NOT NULL,
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audio_history_match ON audio_history(match_id);
`

// OpenDB opens (or creates) the history database at path.
func OpenDB(path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute pragma %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate history database: %w", err)
	}

	return &DB{db: db}, nil
}

// InsertRow appends one audio-history metadata row.
func (d *DB) InsertRow(eventID, matchID, path string, durationSeconds float64, createdAt time.Time) error {
	_, err := d.db.Exec(
		`INSERT INTO audio_history (event_id, match_id, path, duration_seconds, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		eventID, matchID, path, durationSeconds, createdAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert history row: %w", err)
	}
	return nil
}

// CountRows returns the number of stored rows, used by tests.
func (d *DB) CountRows() (int, error) {
	var n int
	err := d.db.QueryRow(`SELECT COUNT(*) FROM audio_history`).Scan(&n)
	return n, err
}

// Close closes the underlying database.
func (d *DB) Close() error {
	return d.db.Close()
}
