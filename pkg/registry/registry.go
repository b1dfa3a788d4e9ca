package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"

	settings "github.com/goliatone/go-settings-stack"
	"github.com/goliatone/go-settings-stack/pkg/events"
)

var (
	// ErrDuplicateContainer is returned when a container id is already taken.
	ErrDuplicateContainer = errors.New("registry: duplicate container id")

	// ErrContainerNotFound is returned for lookups of unknown ids.
	ErrContainerNotFound = errors.New("registry: container not found")

	// ErrReadOnly is returned when a read-only container is removed.
	ErrReadOnly = errors.New("registry: container is read only")
)

// Option configures a Registry.
type Option func(*Registry)

// WithEmitter wires an event emitter notified on container membership
// changes.
func WithEmitter(emitter *events.Emitter) Option {
	return func(r *Registry) {
		r.emitter = emitter
	}
}

// Registry is an indexed container store. It satisfies the lookup contracts
// of the settings package: settings.ContainerLookup, settings.StackFinder
// and settings.DefinitionLoader.
type Registry struct {
	mu         sync.RWMutex
	containers map[string]settings.Container
	order      []string
	readOnly   map[string]bool
	emitter    *events.Emitter
}

// New builds an empty registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		containers: map[string]settings.Container{},
		readOnly:   map[string]bool{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// AddContainer indexes container under its id.
func (r *Registry) AddContainer(container settings.Container) error {
	if container == nil {
		return settings.ErrNilContainer
	}
	id := container.ID()
	if id == "" {
		return fmt.Errorf("registry: container must have an id")
	}

	r.mu.Lock()
	if _, exists := r.containers[id]; exists {
		r.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrDuplicateContainer, id)
	}
	r.containers[id] = container
	r.order = append(r.order, id)
	r.mu.Unlock()

	r.emit(events.BuildContainerAddedEvent(events.ContainerEventInput{
		ContainerID:   id,
		ContainerType: container.MetaDataEntry("type", ""),
	}))
	return nil
}

// RemoveContainer drops the container with id. Read-only containers stay.
func (r *Registry) RemoveContainer(id string) error {
	r.mu.Lock()
	container, exists := r.containers[id]
	if !exists {
		r.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrContainerNotFound, id)
	}
	if r.readOnly[id] {
		r.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrReadOnly, id)
	}
	delete(r.containers, id)
	delete(r.readOnly, id)
	for i, existing := range r.order {
		if existing == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	r.mu.Unlock()

	r.emit(events.BuildContainerRemovedEvent(events.ContainerEventInput{
		ContainerID:   id,
		ContainerType: container.MetaDataEntry("type", ""),
	}))
	return nil
}

// Container returns the container registered under id.
func (r *Registry) Container(id string) (settings.Container, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	container, ok := r.containers[id]
	return container, ok
}

// Definition returns the definition container registered under id. It
// satisfies settings.DefinitionLoader for inheritance chains.
func (r *Registry) Definition(id string) (*settings.Definition, bool) {
	container, ok := r.Container(id)
	if !ok {
		return nil, false
	}
	def, ok := container.(*settings.Definition)
	return def, ok
}

// FindContainers returns the containers matching every filter entry, in
// registration order. The "id" and "name" keys match the container fields;
// every other key matches a metadata entry.
func (r *Registry) FindContainers(filter map[string]string) []settings.Container {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matches []settings.Container
	for _, id := range r.order {
		container := r.containers[id]
		if matchesFilter(container, filter) {
			matches = append(matches, container)
		}
	}
	return matches
}

// FindContainerStacks returns the stacks registered under id, in
// registration order. It satisfies settings.StackFinder for extruder
// re-linking.
func (r *Registry) FindContainerStacks(id string) []settings.Container {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matches []settings.Container
	for _, existing := range r.order {
		if existing != id {
			continue
		}
		container := r.containers[existing]
		if isStack(container) {
			matches = append(matches, container)
		}
	}
	return matches
}

// Stacks lists every registered stack in registration order.
func (r *Registry) Stacks() []settings.Container {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var stacks []settings.Container
	for _, id := range r.order {
		if container := r.containers[id]; isStack(container) {
			stacks = append(stacks, container)
		}
	}
	return stacks
}

// Containers lists every registered container in registration order.
func (r *Registry) Containers() []settings.Container {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]settings.Container, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.containers[id])
	}
	return out
}

// Len reports the number of registered containers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.containers)
}

// MarkReadOnly protects id from removal. Containers loaded from packaged
// resources are marked this way.
func (r *Registry) MarkReadOnly(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.containers[id]; exists {
		r.readOnly[id] = true
	}
}

// IsReadOnly reports whether id is protected from removal.
func (r *Registry) IsReadOnly(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.readOnly[id]
}

func (r *Registry) emit(event events.Event) {
	if r.emitter == nil {
		return
	}
	r.emitter.Emit(context.Background(), event)
}

func matchesFilter(container settings.Container, filter map[string]string) bool {
	for key, want := range filter {
		switch key {
		case "id":
			if container.ID() != want {
				return false
			}
		case "name":
			if container.Name() != want {
				return false
			}
		default:
			if container.MetaDataEntry(key, "") != want {
				return false
			}
		}
	}
	return true
}

func isStack(container settings.Container) bool {
	switch container.(type) {
	case *settings.Stack, *settings.MachineStack, *settings.ExtruderStack:
		return true
	}
	return false
}
