package registry

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

const createCacheTable = `
CREATE TABLE IF NOT EXISTS containers (
    id             TEXT PRIMARY KEY,
    path           TEXT NOT NULL,
    mtime_ns       INTEGER NOT NULL,
    name           TEXT NOT NULL,
    container_type TEXT NOT NULL,
    metadata_json  TEXT NOT NULL
);
`

// CachedMetadata is one container's cached header: enough to list and
// filter containers without parsing their payloads.
type CachedMetadata struct {
	ID       string
	Path     string
	ModTime  time.Time
	Name     string
	Type     string
	Metadata map[string]string
}

// MetadataCache persists container headers between runs so payloads whose
// files have not changed skip parsing. Backed by SQLite; safe for
// concurrent use.
type MetadataCache struct {
	mu sync.RWMutex
	db *sql.DB
}

// OpenMetadataCache opens or creates the cache database at path. Pass
// ":memory:" for an ephemeral cache.
func OpenMetadataCache(path string) (*MetadataCache, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("registry: open metadata cache: %w", err)
	}
	// One connection keeps ":memory:" databases coherent across calls.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(createCacheTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("registry: init metadata cache: %w", err)
	}
	return &MetadataCache{db: db}, nil
}

// Lookup returns the cached header for id. The second return reports
// whether the cache holds one.
func (c *MetadataCache) Lookup(ctx context.Context, id string) (CachedMetadata, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.db == nil {
		return CachedMetadata{}, false, fmt.Errorf("registry: metadata cache is closed")
	}
	row := c.db.QueryRowContext(ctx,
		`SELECT path, mtime_ns, name, container_type, metadata_json FROM containers WHERE id = ?`, id)
	var (
		path     string
		mtime    int64
		name     string
		ctype    string
		metaJSON string
	)
	if err := row.Scan(&path, &mtime, &name, &ctype, &metaJSON); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return CachedMetadata{}, false, nil
		}
		return CachedMetadata{}, false, fmt.Errorf("registry: metadata cache lookup: %w", err)
	}
	metadata := map[string]string{}
	if err := json.Unmarshal([]byte(metaJSON), &metadata); err != nil {
		return CachedMetadata{}, false, fmt.Errorf("registry: metadata cache decode %q: %w", id, err)
	}
	return CachedMetadata{
		ID:       id,
		Path:     path,
		ModTime:  time.Unix(0, mtime),
		Name:     name,
		Type:     ctype,
		Metadata: metadata,
	}, true, nil
}

// Store upserts one header.
func (c *MetadataCache) Store(ctx context.Context, meta CachedMetadata) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db == nil {
		return fmt.Errorf("registry: metadata cache is closed")
	}
	if meta.ID == "" {
		return fmt.Errorf("registry: cached metadata requires an id")
	}
	metaJSON, err := json.Marshal(meta.Metadata)
	if err != nil {
		return fmt.Errorf("registry: metadata cache encode %q: %w", meta.ID, err)
	}
	_, err = c.db.ExecContext(ctx,
		`INSERT INTO containers (id, path, mtime_ns, name, container_type, metadata_json)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		     path = excluded.path,
		     mtime_ns = excluded.mtime_ns,
		     name = excluded.name,
		     container_type = excluded.container_type,
		     metadata_json = excluded.metadata_json`,
		meta.ID, meta.Path, meta.ModTime.UnixNano(), meta.Name, meta.Type, string(metaJSON))
	if err != nil {
		return fmt.Errorf("registry: metadata cache store %q: %w", meta.ID, err)
	}
	return nil
}

// Delete drops one header. Deleting an absent id is not an error.
func (c *MetadataCache) Delete(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db == nil {
		return fmt.Errorf("registry: metadata cache is closed")
	}
	if _, err := c.db.ExecContext(ctx, `DELETE FROM containers WHERE id = ?`, id); err != nil {
		return fmt.Errorf("registry: metadata cache delete %q: %w", id, err)
	}
	return nil
}

// Close releases the database. Further calls fail.
func (c *MetadataCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db == nil {
		return nil
	}
	err := c.db.Close()
	c.db = nil
	return err
}
