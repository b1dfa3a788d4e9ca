package registry

import (
	"context"
	"fmt"
	"sort"

	settings "github.com/goliatone/go-settings-stack"
)

// LoadResult reports one payload's load outcome.
type LoadResult struct {
	ID   string
	Path string
	Err  error
}

// LoadAll reads every payload the provider lists, builds containers through
// the mime database, and registers them ordered by loading priority:
// definitions, then instances, then machine stacks, then extruder stacks,
// so extruder re-linking finds its machine already registered. Per-payload
// failures are reported in the results without aborting the batch.
func (r *Registry) LoadAll(ctx context.Context, provider Provider, mime *MimeDatabase, opts ...settings.Option) ([]LoadResult, error) {
	if provider == nil {
		return nil, fmt.Errorf("registry: provider is required")
	}
	if mime == nil {
		mime = DefaultMimeDatabase()
	}
	metas, err := provider.List(ctx)
	if err != nil {
		return nil, err
	}

	type pending struct {
		meta     Meta
		factory  ContainerFactory
		priority int
	}
	var queue []pending
	for _, meta := range metas {
		_, factory, priority, ok := mime.TypeForPath(meta.Path)
		if !ok {
			continue
		}
		queue = append(queue, pending{meta: meta, factory: factory, priority: priority})
	}
	sort.SliceStable(queue, func(i, j int) bool { return queue[i].priority < queue[j].priority })

	// Containers get the registry itself wired in, so deserialization can
	// resolve layer ids, inheritance parents and machines. Inheritance
	// additionally falls back to the provider for parents that have not
	// been reached yet in this batch.
	chain := &chainLoader{ctx: ctx, registry: r, provider: provider}
	baseOpts := append([]settings.Option{
		settings.WithContainerLookup(r),
		settings.WithStackFinder(r),
	}, opts...)
	baseOpts = append(baseOpts, settings.WithDefinitionLoader(chain))
	chain.opts = baseOpts

	results := make([]LoadResult, 0, len(queue))
	for _, item := range queue {
		result := LoadResult{ID: item.meta.ID, Path: item.meta.Path}
		result.Err = r.loadOne(ctx, provider, item.meta, item.factory, baseOpts)
		results = append(results, result)
	}
	return results, nil
}

func (r *Registry) loadOne(ctx context.Context, provider Provider, meta Meta, factory ContainerFactory, opts []settings.Option) error {
	if _, exists := r.Container(meta.ID); exists {
		// Already pulled in through an inheritance chain.
		return nil
	}
	data, err := provider.Load(ctx, meta.ID)
	if err != nil {
		return err
	}
	container := factory(meta.ID, opts...)
	if err := container.Deserialize(data); err != nil {
		return fmt.Errorf("registry: deserialize %q: %w", meta.ID, err)
	}
	if err := r.AddContainer(container); err != nil {
		return err
	}
	if _, ok := container.(*settings.Definition); ok {
		r.MarkReadOnly(meta.ID)
	}
	return nil
}

// chainLoader resolves inheritance parents: registry first, provider as
// fallback so definition load order within a batch does not matter.
type chainLoader struct {
	ctx      context.Context
	registry *Registry
	provider Provider
	opts     []settings.Option
}

func (l *chainLoader) Definition(id string) (*settings.Definition, bool) {
	if def, ok := l.registry.Definition(id); ok {
		return def, true
	}
	data, err := l.provider.Load(l.ctx, id)
	if err != nil {
		return nil, false
	}
	def := settings.NewDefinition(id, l.opts...)
	if err := def.Deserialize(data); err != nil {
		return nil, false
	}
	if err := l.registry.AddContainer(def); err == nil {
		l.registry.MarkReadOnly(id)
	}
	return def, true
}

// LoadMetadata lists provider payloads and returns their metadata headers
// without registering anything. Payloads the cache has seen at their
// current modification time skip parsing entirely; a nil cache parses
// everything. Definition inheritance resolves against a throwaway registry
// backed by the provider, so child definitions list like any other payload.
func LoadMetadata(ctx context.Context, provider Provider, mime *MimeDatabase, cache *MetadataCache) ([]CachedMetadata, error) {
	if provider == nil {
		return nil, fmt.Errorf("registry: provider is required")
	}
	if mime == nil {
		mime = DefaultMimeDatabase()
	}
	metas, err := provider.List(ctx)
	if err != nil {
		return nil, err
	}

	scratch := New()
	chain := &chainLoader{ctx: ctx, registry: scratch, provider: provider}
	stubOpts := []settings.Option{
		settings.WithContainerLookup(stubLookup{}),
		settings.WithDefinitionLoader(chain),
	}
	chain.opts = stubOpts

	var out []CachedMetadata
	for _, meta := range metas {
		_, factory, _, ok := mime.TypeForPath(meta.Path)
		if !ok {
			continue
		}
		if cache != nil {
			cached, hit, err := cache.Lookup(ctx, meta.ID)
			if err == nil && hit && cached.Path == meta.Path && cached.ModTime.Equal(meta.ModTime) {
				out = append(out, cached)
				continue
			}
		}
		container, ok := scratch.Container(meta.ID)
		if !ok {
			data, err := provider.Load(ctx, meta.ID)
			if err != nil {
				continue
			}
			container = factory(meta.ID, stubOpts...)
			if err := container.Deserialize(data); err != nil {
				continue
			}
			if _, isDefinition := container.(*settings.Definition); isDefinition {
				_ = scratch.AddContainer(container)
			}
		}
		cached := CachedMetadata{
			ID:       meta.ID,
			Path:     meta.Path,
			ModTime:  meta.ModTime,
			Name:     container.Name(),
			Type:     container.MetaDataEntry("type", ""),
			Metadata: metadataMap(container),
		}
		if cache != nil {
			_ = cache.Store(ctx, cached)
		}
		out = append(out, cached)
	}
	return out, nil
}

// stubLookup satisfies layer resolution during metadata-only parsing: the
// placeholder containers are discarded with the stack.
type stubLookup struct{}

func (stubLookup) Container(id string) (settings.Container, bool) {
	return settings.NewInstance(id), true
}

func metadataMap(container settings.Container) map[string]string {
	metadata := container.Metadata()
	out := make(map[string]string, metadata.Len())
	for _, key := range metadata.Keys() {
		out[key] = metadata.Get(key, "")
	}
	return out
}
