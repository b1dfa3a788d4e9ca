package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Meta describes one stored container payload.
type Meta struct {
	ID      string
	Path    string
	ModTime time.Time
}

// Provider streams serialized containers in and out of storage.
type Provider interface {
	List(ctx context.Context) ([]Meta, error)
	Load(ctx context.Context, id string) ([]byte, error)
	Save(ctx context.Context, id string, data []byte) error
}

// MemoryProvider is a map-backed Provider for tests and examples. Paths
// follow the container file naming so the MimeDatabase can type them.
type MemoryProvider struct {
	mu      sync.RWMutex
	records map[string]memoryRecord
}

type memoryRecord struct {
	path    string
	data    []byte
	modTime time.Time
}

// NewMemoryProvider builds an empty provider.
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{records: map[string]memoryRecord{}}
}

// Put stores data under id with an explicit file name, so callers control
// the container type the name implies.
func (p *MemoryProvider) Put(id, path string, data []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.records[id] = memoryRecord{
		path:    path,
		data:    append([]byte(nil), data...),
		modTime: time.Now(),
	}
}

// List returns the stored payload descriptors sorted by id.
func (p *MemoryProvider) List(_ context.Context) ([]Meta, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]Meta, 0, len(p.records))
	for id, record := range p.records {
		out = append(out, Meta{ID: id, Path: record.path, ModTime: record.modTime})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Load returns the payload stored under id.
func (p *MemoryProvider) Load(_ context.Context, id string) ([]byte, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	record, ok := p.records[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrContainerNotFound, id)
	}
	return append([]byte(nil), record.data...), nil
}

// Save replaces the payload stored under id, keeping its path.
func (p *MemoryProvider) Save(_ context.Context, id string, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	record, ok := p.records[id]
	if !ok {
		return fmt.Errorf("%w: %q", ErrContainerNotFound, id)
	}
	record.data = append([]byte(nil), data...)
	record.modTime = time.Now()
	p.records[id] = record
	return nil
}
