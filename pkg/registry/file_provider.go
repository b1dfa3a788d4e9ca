package registry

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// FileProvider reads containers from a directory tree, typing files through
// a MimeDatabase. Files with unregistered suffixes are ignored.
type FileProvider struct {
	dir  string
	mime *MimeDatabase

	mu    sync.RWMutex
	paths map[string]string
}

// NewFileProvider builds a provider over dir. A nil mime database falls
// back to the standard container types.
func NewFileProvider(dir string, mime *MimeDatabase) *FileProvider {
	if mime == nil {
		mime = DefaultMimeDatabase()
	}
	return &FileProvider{
		dir:   dir,
		mime:  mime,
		paths: map[string]string{},
	}
}

// List walks the directory and returns a descriptor per typed file. The
// id→path index kept for Load and Save is rebuilt on every call.
func (p *FileProvider) List(ctx context.Context) ([]Meta, error) {
	var out []Meta
	paths := map[string]string{}

	err := filepath.WalkDir(p.dir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if entry.IsDir() {
			return nil
		}
		id, ok := p.mime.IDForPath(path)
		if !ok || id == "" {
			return nil
		}
		info, err := entry.Info()
		if err != nil {
			return err
		}
		out = append(out, Meta{ID: id, Path: path, ModTime: info.ModTime()})
		paths[id] = path
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("registry: list %s: %w", p.dir, err)
	}

	p.mu.Lock()
	p.paths = paths
	p.mu.Unlock()
	return out, nil
}

// Load reads the file indexed under id. Ids unseen by List resolve through
// a fresh walk.
func (p *FileProvider) Load(ctx context.Context, id string) ([]byte, error) {
	path, ok := p.pathFor(id)
	if !ok {
		if _, err := p.List(ctx); err != nil {
			return nil, err
		}
		if path, ok = p.pathFor(id); !ok {
			return nil, fmt.Errorf("%w: %q", ErrContainerNotFound, id)
		}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("registry: load %q: %w", id, err)
	}
	return data, nil
}

// Save rewrites the file indexed under id. Unknown ids fail: creating a new
// container file needs SaveAs with an explicit type.
func (p *FileProvider) Save(_ context.Context, id string, data []byte) error {
	path, ok := p.pathFor(id)
	if !ok {
		return fmt.Errorf("%w: %q", ErrContainerNotFound, id)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("registry: save %q: %w", id, err)
	}
	return nil
}

// SaveAs writes a new container file named after id and the mime type's
// first suffix, then indexes it for later loads.
func (p *FileProvider) SaveAs(_ context.Context, id string, mime MimeType, data []byte) error {
	if len(mime.Suffixes) == 0 {
		return fmt.Errorf("registry: mime type %q has no suffix", mime.Name)
	}
	path := filepath.Join(p.dir, id+"."+mime.Suffixes[0])
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("registry: save %q: %w", id, err)
	}
	p.mu.Lock()
	p.paths[id] = path
	p.mu.Unlock()
	return nil
}

func (p *FileProvider) pathFor(id string) (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	path, ok := p.paths[id]
	return path, ok
}
