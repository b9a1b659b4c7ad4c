package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// ErrCorruptQueue means persisted queue bytes could not be decoded. The
// sync pass must abort rather than self-heal: truncating the queue would
// silently lose user mutations.
var ErrCorruptQueue = errors.New("pending operation queue is corrupt")

type DB struct {
	db *sql.DB
}

func New(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := createTables(db); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return &DB{db: db}, nil
}

func createTables(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS pending_operations (
            id TEXT PRIMARY KEY,
            op_type TEXT NOT NULL,
            business_id TEXT,
            payload TEXT,
            status TEXT NOT NULL DEFAULT 'pending',
            attempts INTEGER NOT NULL DEFAULT 0,
            last_error TEXT,
            created_at DATETIME NOT NULL,
            processed_at DATETIME
        )`,
		`CREATE TABLE IF NOT EXISTS businesses (
            id TEXT PRIMARY KEY,
            name TEXT NOT NULL,
            category TEXT,
            subcategory TEXT,
            description TEXT,
            address TEXT,
            phone TEXT,
            latitude REAL,
            longitude REAL,
            rating REAL,
            image TEXT,
            is_open BOOLEAN NOT NULL DEFAULT 0,
            opening_hours TEXT,
            sync_status TEXT NOT NULL DEFAULT '',
            updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
        )`,
		`CREATE TABLE IF NOT EXISTS kv (
            key TEXT PRIMARY KEY,
            value TEXT NOT NULL,
            updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
        )`,

		`CREATE INDEX IF NOT EXISTS idx_pending_operations_status ON pending_operations(status)`,
		`CREATE INDEX IF NOT EXISTS idx_pending_operations_created_at ON pending_operations(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_businesses_category ON businesses(category)`,
		`CREATE INDEX IF NOT EXISTS idx_businesses_sync_status ON businesses(sync_status)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("error executing query %s: %w", query, err)
		}
	}
	return nil
}

func (d *DB) Close() error {
	return d.db.Close()
}
