package settings

import (
	"context"
	"fmt"

	"github.com/goliatone/go-settings-stack/internal/conffile"
	"github.com/goliatone/go-settings-stack/pkg/events"
)

// stackFileVersion is the format version of serialized stack files.
const stackFileVersion = 3

// contextRoot binds formulas discovered during resolution to the stack kind
// that owns them, so referenced setting keys re-enter the owner's full
// algorithm instead of the plain layered walk.
type contextRoot interface {
	propertyResolver
	formulaMachine() *MachineStack
	formulaPosition() string
}

// Stack is an ordered pile of containers with the strongest layer at index
// 0. Lookups walk the layers top down and evaluate formulas on the way out;
// machine and extruder stacks embed it and add their own resolution rules.
type Stack struct {
	id         string
	name       string
	metadata   *Metadata
	containers []Container
	next       *MachineStack

	evaluator    Evaluator
	programCache ProgramCache
	functions    *FunctionRegistry
	logger       FormulaLogger
	finder       StackFinder
	registrar    ExtruderRegistrar
	lookup       ContainerLookup
	hooks        events.Hooks

	root contextRoot
}

// NewStack builds a plain container stack.
func NewStack(id string, opts ...Option) *Stack {
	s := &Stack{}
	*s = newStack(id, opts)
	s.root = s
	return s
}

func newStack(id string, opts []Option) Stack {
	cfg := applyOptions(opts)
	s := Stack{
		id:           id,
		name:         cfg.name,
		metadata:     NewMetadata(),
		containers:   append([]Container(nil), cfg.containers...),
		evaluator:    cfg.evaluator,
		programCache: cfg.programCache,
		functions:    cfg.functions,
		logger:       cfg.logger,
		finder:       cfg.finder,
		registrar:    cfg.registrar,
		lookup:       cfg.lookup,
		hooks:        cfg.eventHooks,
	}
	for _, pair := range cfg.metadata {
		s.metadata.Set(pair.key, pair.value)
	}
	return s
}

func (s *Stack) ID() string { return s.id }

func (s *Stack) Name() string { return s.name }

func (s *Stack) SetName(name string) { s.name = name }

func (s *Stack) Metadata() *Metadata { return s.metadata }

func (s *Stack) MetaDataEntry(key, def string) string {
	return s.metadata.Get(key, def)
}

func (s *Stack) SetMetaDataEntry(key, value string) {
	s.metadata.Set(key, value)
}

// AddContainer pushes container as the new strongest layer.
func (s *Stack) AddContainer(container Container) error {
	if container == nil {
		return ErrNilContainer
	}
	if self, ok := s.resolverRoot().(Container); ok && container == self {
		return fmt.Errorf("settings: cannot add stack %q to itself", s.id)
	}
	s.containers = append([]Container{container}, s.containers...)
	s.notifyContainerChange(true, container)
	return nil
}

// InsertContainer places container at index, shifting weaker layers down.
func (s *Stack) InsertContainer(index int, container Container) error {
	if container == nil {
		return ErrNilContainer
	}
	if index < 0 || index > len(s.containers) {
		return fmt.Errorf("settings: container index %d out of range for stack %q", index, s.id)
	}
	s.containers = append(s.containers, nil)
	copy(s.containers[index+1:], s.containers[index:])
	s.containers[index] = container
	s.notifyContainerChange(true, container)
	return nil
}

// ReplaceContainer swaps the layer at index for container.
func (s *Stack) ReplaceContainer(index int, container Container) error {
	if container == nil {
		return ErrNilContainer
	}
	if index < 0 || index >= len(s.containers) {
		return fmt.Errorf("settings: container index %d out of range for stack %q", index, s.id)
	}
	previous := s.containers[index]
	s.containers[index] = container
	s.notifyContainerChange(false, previous)
	s.notifyContainerChange(true, container)
	return nil
}

// RemoveContainer drops the layer at index.
func (s *Stack) RemoveContainer(index int) error {
	if index < 0 || index >= len(s.containers) {
		return fmt.Errorf("settings: container index %d out of range for stack %q", index, s.id)
	}
	removed := s.containers[index]
	s.containers = append(s.containers[:index], s.containers[index+1:]...)
	s.notifyContainerChange(false, removed)
	return nil
}

// ContainerAt returns the layer at index.
func (s *Stack) ContainerAt(index int) (Container, bool) {
	if index < 0 || index >= len(s.containers) {
		return nil, false
	}
	return s.containers[index], true
}

// Containers returns the layers in resolution order, strongest first.
func (s *Stack) Containers() []Container {
	out := make([]Container, len(s.containers))
	copy(out, s.containers)
	return out
}

// Definition returns the weakest layer when it is a definition container.
func (s *Stack) Definition() (*Definition, bool) {
	if len(s.containers) == 0 {
		return nil, false
	}
	def, ok := s.containers[len(s.containers)-1].(*Definition)
	return def, ok
}

// Property resolves the effective value of property for key. Absent values
// come back as (nil, nil).
func (s *Stack) Property(key, property string) (any, error) {
	return s.resolverRoot().resolveProperty(key, property, newResolveContext())
}

// PropertyWithTrace resolves like Property and records every stage the
// lookup went through.
func (s *Stack) PropertyWithTrace(key, property string) (any, *Trace, error) {
	rc := newResolveContext()
	rc.trace = &Trace{Key: key, Property: property}
	value, err := s.resolverRoot().resolveProperty(key, property, rc)
	return value, rc.trace, err
}

// RawProperty walks the layers without evaluating formulas, falling back to
// the next stack's layers. This is the Container view of a stack.
func (s *Stack) RawProperty(key, property string) (any, bool) {
	return s.rawProperty(key, property, nil)
}

func (s *Stack) resolveProperty(key, property string, rc *resolveContext) (any, error) {
	return s.baseProperty(key, property, rc)
}

func (s *Stack) formulaMachine() *MachineStack { return nil }

func (s *Stack) formulaPosition() string { return "" }

func (s *Stack) resolverRoot() contextRoot {
	if s.root != nil {
		return s.root
	}
	return s
}

// baseProperty is the shared layered resolution: raw lookup first, then
// formula evaluation rooted at the owning stack kind.
func (s *Stack) baseProperty(key, property string, rc *resolveContext) (any, error) {
	raw, ok := s.rawProperty(key, property, rc.trace)
	if !ok {
		return nil, nil
	}
	if formula, isFormula := raw.(*Formula); isFormula {
		return s.evalFormula(formula, key, property, rc)
	}
	return raw, nil
}

// rawProperty returns the first non-absent raw value across the layers,
// consulting the next stack's layers when none of the own layers carry the
// property.
func (s *Stack) rawProperty(key, property string, trace *Trace) (any, bool) {
	for _, container := range s.containers {
		if value, ok := container.RawProperty(key, property); ok {
			trace.add(Step{
				StackID:     s.id,
				ContainerID: container.ID(),
				Action:      TraceContainer,
				Key:         key,
				Property:    property,
				Value:       displayValue(value),
				Found:       true,
			})
			return value, true
		}
	}
	if s.next != nil {
		trace.add(Step{
			StackID:  s.id,
			Action:   TraceNextStack,
			Key:      key,
			Property: property,
		})
		return s.next.rawProperty(key, property, trace)
	}
	return nil, false
}

func (s *Stack) notifyContainerChange(added bool, container Container) {
	if len(s.hooks) == 0 || container == nil {
		return
	}
	input := events.ContainerEventInput{
		ContainerID:   container.ID(),
		ContainerType: container.MetaDataEntry("type", ""),
		Metadata:      map[string]any{"stack_id": s.id},
	}
	event := events.BuildContainerAddedEvent(input)
	if !added {
		event = events.BuildContainerRemovedEvent(input)
	}
	s.hooks.Notify(context.Background(), event)
}

// Serialize writes the INI stack form: the container list is stored as ids
// and resolved again through a ContainerLookup on the way back in.
func (s *Stack) Serialize() ([]byte, error) {
	payload := conffile.StackPayload{
		Version: stackFileVersion,
		Name:    s.name,
		ID:      s.id,
	}
	for _, key := range s.metadata.Keys() {
		payload.Metadata = append(payload.Metadata, conffile.KV{Key: key, Value: s.metadata.Get(key, "")})
	}
	for _, container := range s.containers {
		payload.ContainerIDs = append(payload.ContainerIDs, container.ID())
	}
	return conffile.WriteStack(payload)
}

// Deserialize replaces the stack's state with the parsed file content.
// Layer ids resolve through the configured ContainerLookup.
func (s *Stack) Deserialize(data []byte) error {
	payload, err := conffile.ParseStack(data)
	if err != nil {
		return err
	}
	if payload.Version != stackFileVersion {
		return fmt.Errorf("%w: stack file version %d", ErrUnsupportedVersion, payload.Version)
	}

	if payload.ID != "" {
		s.id = payload.ID
	}
	if payload.Name != "" {
		s.name = payload.Name
	}
	metadata := NewMetadata()
	for _, pair := range payload.Metadata {
		metadata.Set(pair.Key, pair.Value)
	}
	s.metadata = metadata

	if len(payload.ContainerIDs) > 0 && s.lookup == nil {
		return fmt.Errorf("settings: stack %q has serialized containers but no container lookup is configured", s.id)
	}
	containers := make([]Container, 0, len(payload.ContainerIDs))
	for _, id := range payload.ContainerIDs {
		container, ok := s.lookup.Container(id)
		if !ok {
			return fmt.Errorf("%w: %q", ErrContainerNotFound, id)
		}
		containers = append(containers, container)
	}
	s.containers = containers
	return nil
}
