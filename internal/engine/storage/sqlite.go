// Package storage persists the exclusion list: listings the user has
// dismissed, kept durable so later searches can silently drop anything
// that matches one of them again.
package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/flatscout/flatscout/internal/model"
)

type ExclusionStore struct {
	db *sql.DB
	mu sync.Mutex
}

func NewExclusionStore(dbPath string) (*ExclusionStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening db: %w", err)
	}

	// Optimize for write throughput
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA cache_size=-64000",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return nil, fmt.Errorf("setting pragma %q: %w", p, err)
		}
	}

	if err := createSchema(db); err != nil {
		return nil, err
	}

	return &ExclusionStore{db: db}, nil
}

func createSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS exclusions (
		id TEXT PRIMARY KEY,
		title TEXT,
		price INTEGER NOT NULL,
		rooms REAL NOT NULL,
		size_m2 REAL,
		lat REAL NOT NULL,
		lng REAL NOT NULL,
		sources TEXT NOT NULL,
		excluded_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_exclusions_coords ON exclusions(lat, lng);
	`
	_, err := db.Exec(schema)
	if err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}

// Add persists one exclusion. Re-excluding the same id refreshes the
// stored fields, so a listing whose price moved still matches.
func (s *ExclusionStore) Add(l model.Listing) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sources, err := json.Marshal(l.Sources)
	if err != nil {
		return fmt.Errorf("encoding sources: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT OR REPLACE INTO exclusions
		(id, title, price, rooms, size_m2, lat, lng, sources, excluded_at)
		VALUES (?,?,?,?,?,?,?,?,?)
	`, l.ID, l.Title, l.Price, l.Rooms, l.SizeM2, l.Lat, l.Lng, string(sources), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("inserting exclusion: %w", err)
	}
	return nil
}

// Remove drops an exclusion, by exact id. Removing an unknown id is not
// an error.
func (s *ExclusionStore) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec("DELETE FROM exclusions WHERE id = ?", id); err != nil {
		return fmt.Errorf("deleting exclusion: %w", err)
	}
	return nil
}

// All loads every excluded listing, with just the fields the duplicate
// heuristic needs.
func (s *ExclusionStore) All() ([]model.Listing, error) {
	rows, err := s.db.Query(`
		SELECT id, title, price, rooms, size_m2, lat, lng, sources
		FROM exclusions ORDER BY excluded_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("querying exclusions: %w", err)
	}
	defer rows.Close()

	var listings []model.Listing
	for rows.Next() {
		var l model.Listing
		var sources string
		if err := rows.Scan(&l.ID, &l.Title, &l.Price, &l.Rooms, &l.SizeM2, &l.Lat, &l.Lng, &sources); err != nil {
			return nil, fmt.Errorf("scanning exclusion: %w", err)
		}
		if err := json.Unmarshal([]byte(sources), &l.Sources); err != nil {
			return nil, fmt.Errorf("decoding sources for %s: %w", l.ID, err)
		}
		listings = append(listings, l)
	}
	return listings, rows.Err()
}

func (s *ExclusionStore) Count() (int, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM exclusions").Scan(&count)
	return count, err
}

func (s *ExclusionStore) Close() error {
	return s.db.Close()
}
