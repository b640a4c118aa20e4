// Package sqlite adapts fetchgraph.Cache to a SQLite-backed store,
// grounded on the teacher's own health-monitor example (examples/health-monitor/database.go):
// sql.Open("sqlite3", ...) plus an explicit schema-init step, generalized
// from service/health-check tables into a single cache-entries table.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	fetchgraph "github.com/fetchgraph/fetchgraph"
)

// Cache is a SQLite-backed fetchgraph.Cache.
type Cache struct {
	db       *sql.DB
	registry *fetchgraph.Registry
}

// Open opens (creating if necessary) a SQLite database at dbPath and
// prepares its cache-entries schema.
func Open(dbPath string, registry *fetchgraph.Registry) (*Cache, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if err := initSchema(db); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &Cache{db: db, registry: registry}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS cache_entries (
		cache_key TEXT PRIMARY KEY,
		success INTEGER NOT NULL,
		data TEXT NOT NULL,
		attempts INTEGER NOT NULL,
		cached_at INTEGER NOT NULL
	);
	`
	_, err := db.Exec(schema)
	return err
}

// Close releases the underlying database handle.
func (c *Cache) Close() error {
	return c.db.Close()
}

// Get implements fetchgraph.Cache.
func (c *Cache) Get(ctx context.Context, _ fetchgraph.Path, source *fetchgraph.ResolvedSource) (*fetchgraph.Result, bool, error) {
	key := fetchgraph.CanonicalCacheKey(source, nil, c.registry)

	row := c.db.QueryRowContext(ctx,
		`SELECT success, data, attempts, cached_at FROM cache_entries WHERE cache_key = ?`, key)

	var success int
	var rawData string
	var attempts int
	var cachedAt int64
	if err := row.Scan(&success, &rawData, &attempts, &cachedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, err
	}

	var data any
	if err := json.Unmarshal([]byte(rawData), &data); err != nil {
		return nil, false, err
	}

	return &fetchgraph.Result{
		Success:   success != 0,
		Data:      data,
		Attempts:  attempts,
		Retryable: true,
		Cached:    true,
		CachedAt:  cachedAt,
	}, true, nil
}

// Put implements fetchgraph.Cache.
func (c *Cache) Put(ctx context.Context, _ fetchgraph.Path, source *fetchgraph.ResolvedSource, result *fetchgraph.Result) error {
	key := fetchgraph.CanonicalCacheKey(source, nil, c.registry)

	rawData, err := json.Marshal(result.Data)
	if err != nil {
		return err
	}

	success := 0
	if result.Success {
		success = 1
	}

	_, err = c.db.ExecContext(ctx,
		`INSERT INTO cache_entries (cache_key, success, data, attempts, cached_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(cache_key) DO UPDATE SET
			success = excluded.success,
			data = excluded.data,
			attempts = excluded.attempts,
			cached_at = excluded.cached_at`,
		key, success, string(rawData), result.Attempts, result.CachedAt)
	return err
}
