package slot

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // Registers the "sqlite" driver.

	domain "github.com/oshokin/persistent-last-changed/internal/domain/sensor"
)

// SQLiteRepository stores one row per sensor in a SQLite database.
type SQLiteRepository struct {
	db *sql.DB
}

var _ Repository = (*SQLiteRepository)(nil)

// NewSQLiteRepository opens (or creates) the database at path.
// Use ":memory:" for an in-memory database.
func NewSQLiteRepository(ctx context.Context, path string) (*SQLiteRepository, error) {
	dsn := path
	if path != ":memory:" {
		dsn = "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	// A single connection keeps ":memory:" databases alive and serializes writers.
	db.SetMaxOpenConns(1)

	if _, err = db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS sensor_slots (
  key        TEXT PRIMARY KEY,
  state      TEXT NOT NULL,
  attributes TEXT NOT NULL,
  updated_at DATETIME NOT NULL
);`); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

// Load reads the snapshot stored under key.
func (r *SQLiteRepository) Load(ctx context.Context, key string) (*domain.Snapshot, error) {
	var (
		state      string
		attributes []byte
	)

	err := r.db.QueryRowContext(ctx,
		"SELECT state, attributes FROM sensor_slots WHERE key = ?", key,
	).Scan(&state, &attributes)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("query slot: %w", err)
	}

	snapshot, err := decode(attributes)
	if err != nil {
		return nil, err
	}

	snapshot.State = state

	return snapshot, nil
}

// Save upserts the snapshot stored under key.
func (r *SQLiteRepository) Save(ctx context.Context, key string, snapshot *domain.Snapshot) error {
	// The whole record goes into attributes; state is duplicated into its own column for queries.
	data, err := encode(snapshot)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO sensor_slots(key, state, attributes, updated_at) VALUES(?, ?, ?, ?)
ON CONFLICT(key) DO UPDATE SET state = excluded.state, attributes = excluded.attributes, updated_at = excluded.updated_at`,
		key, snapshot.State, string(data), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert slot: %w", err)
	}

	return nil
}

// Close releases the database handle.
func (r *SQLiteRepository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}

	return r.db.Close()
}
