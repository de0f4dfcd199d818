// Package registry persists the last known entity registry so the control
// surface has names and capabilities available before the first connect.
package registry

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/deckd/deckd/internal/control"
)

// Entry is one persisted entity.
type Entry struct {
	EntityID     string                `json:"entity_id"`
	FriendlyName string                `json:"friendly_name"`
	Capabilities control.CapabilitySet `json:"capabilities"`
}

// Domain returns the entity-id domain prefix.
func (e Entry) Domain() string {
	if i := strings.IndexByte(e.EntityID, '.'); i > 0 {
		return e.EntityID[:i]
	}
	return ""
}

// Snapshot reads and writes the entity_registry table. Saves are full
// replacements, mirroring the in-memory capability registry semantics.
type Snapshot struct {
	db *sql.DB
}

// NewSnapshot creates a snapshot store on the given database.
func NewSnapshot(db *sql.DB) *Snapshot {
	return &Snapshot{db: db}
}

// Save replaces the stored registry with the given entries atomically.
func (s *Snapshot) Save(entries []Entry) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM entity_registry`); err != nil {
		return fmt.Errorf("failed to clear registry: %w", err)
	}

	now := time.Now().UTC().Unix()
	stmt, err := tx.Prepare(`
		INSERT INTO entity_registry (entity_id, friendly_name, domain, capabilities, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		caps, err := json.Marshal(e.Capabilities)
		if err != nil {
			return fmt.Errorf("failed to marshal capabilities: %w", err)
		}
		if _, err := stmt.Exec(e.EntityID, e.FriendlyName, e.Domain(), string(caps), now); err != nil {
			return fmt.Errorf("failed to insert %s: %w", e.EntityID, err)
		}
	}

	return tx.Commit()
}

// Load returns all stored entries. An empty database yields an empty slice.
func (s *Snapshot) Load() ([]Entry, error) {
	rows, err := s.db.Query(`
		SELECT entity_id, friendly_name, capabilities FROM entity_registry
		ORDER BY entity_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query registry: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var caps string
		if err := rows.Scan(&e.EntityID, &e.FriendlyName, &caps); err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		if err := json.Unmarshal([]byte(caps), &e.Capabilities); err != nil {
			// Skip rows written by an incompatible version
			continue
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// CapabilityMap converts entries to the shape the in-memory registry wants.
func CapabilityMap(entries []Entry) map[string]control.CapabilitySet {
	out := make(map[string]control.CapabilitySet, len(entries))
	for _, e := range entries {
		out[e.EntityID] = e.Capabilities
	}
	return out
}
