// Package db provides the SQLite connection and schema for deckd.
package db

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps the SQLite database connection
type DB struct {
	*sql.DB
}

// Open opens the database and initializes the schema
func Open(dbPath string) (*DB, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &DB{db}, nil
}

// initSchema creates all required tables
func initSchema(db *sql.DB) error {
	// Entity registry snapshot - last known entities and their capabilities,
	// so the surface renders immediately on restart before the first
	// backend connect.
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS entity_registry (
			entity_id TEXT PRIMARY KEY,
			friendly_name TEXT NOT NULL DEFAULT '',
			domain TEXT NOT NULL,
			capabilities TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_registry_domain ON entity_registry(domain);
	`)
	if err != nil {
		return fmt.Errorf("failed to create entity_registry table: %w", err)
	}

	return nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.DB.Close()
}
