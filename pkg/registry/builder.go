package registry

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/google/uuid"

	settings "github.com/goliatone/go-settings-stack"
)

// Builder assembles ready-to-use machine stacks from registered
// definitions: one machine stack plus one linked extruder stack per
// machine_extruder_trains entry, everything registered as it is built.
type Builder struct {
	registry  *Registry
	registrar settings.ExtruderRegistrar
	opts      []settings.Option
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// BuilderWithRegistrar wires the extruder registrar handed to every stack
// the builder creates.
func BuilderWithRegistrar(registrar settings.ExtruderRegistrar) BuilderOption {
	return func(b *Builder) { b.registrar = registrar }
}

// BuilderWithStackOptions appends options handed to every stack the
// builder creates.
func BuilderWithStackOptions(opts ...settings.Option) BuilderOption {
	return func(b *Builder) { b.opts = append(b.opts, opts...) }
}

// NewBuilder returns a Builder registering its stacks with registry.
func NewBuilder(registry *Registry, opts ...BuilderOption) *Builder {
	b := &Builder{registry: registry}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

// BuildMachine creates a machine stack for the definition, with extruder
// stacks linked per the definition's machine_extruder_trains metadata.
// The machine id carries a random suffix so several machines can share
// one definition.
func (b *Builder) BuildMachine(definitionID string) (*settings.MachineStack, error) {
	def, ok := b.registry.Definition(definitionID)
	if !ok {
		return nil, fmt.Errorf("registry: definition %q is not registered", definitionID)
	}

	machineID := definitionID + "_" + shortID()
	layout := b.emptyLayout()
	layout.Definition = def
	machine, err := settings.NewSlottedMachineStack(machineID, layout, b.stackOptions()...)
	if err != nil {
		return nil, err
	}
	if err := b.registerStack(machine); err != nil {
		return nil, err
	}

	trains := extruderTrains(def)
	for _, position := range sortedTrainPositions(trains) {
		extruderDefID := trains[position]
		extruderDef, ok := b.registry.Definition(extruderDefID)
		if !ok {
			return nil, fmt.Errorf("registry: extruder definition %q is not registered", extruderDefID)
		}
		extruderLayout := b.emptyLayout()
		extruderLayout.Definition = extruderDef
		extruder, err := settings.NewSlottedExtruderStack(
			machineID+"_e"+position,
			extruderLayout,
			append(b.stackOptions(), settings.WithMetadataEntry("position", position))...,
		)
		if err != nil {
			return nil, err
		}
		if err := extruder.SetNextStack(machine); err != nil {
			return nil, err
		}
		if err := b.registerStack(extruder); err != nil {
			return nil, err
		}
	}
	return machine, nil
}

func (b *Builder) stackOptions() []settings.Option {
	opts := []settings.Option{
		settings.WithContainerLookup(b.registry),
		settings.WithDefinitionLoader(b.registry),
		settings.WithStackFinder(b.registry),
	}
	if b.registrar != nil {
		opts = append(opts, settings.WithExtruderRegistrar(b.registrar))
	}
	return append(opts, b.opts...)
}

// AddEmptyContainers registers the shared placeholder containers used by
// canonical slot layouts, so serialized stacks can resolve them on reload.
// Already registered placeholders are kept.
func (r *Registry) AddEmptyContainers() error {
	for slot := settings.SlotQualityChanges; slot <= settings.SlotDefinitionChanges; slot++ {
		empty := settings.NewEmptyContainer(slot)
		if _, exists := r.Container(empty.ID()); exists {
			continue
		}
		if err := r.AddContainer(empty); err != nil {
			return err
		}
		r.MarkReadOnly(empty.ID())
	}
	return nil
}

// emptyLayout fills the optional slots with the registered shared
// placeholders where present; absent ones fall back to fresh placeholders
// during assembly.
func (b *Builder) emptyLayout() settings.SlotLayout {
	lookup := func(slot settings.Slot) settings.Container {
		container, _ := b.registry.Container("empty_" + slot.String())
		return container
	}
	return settings.SlotLayout{
		QualityChanges:    lookup(settings.SlotQualityChanges),
		Quality:           lookup(settings.SlotQuality),
		Material:          lookup(settings.SlotMaterial),
		Variant:           lookup(settings.SlotVariant),
		DefinitionChanges: lookup(settings.SlotDefinitionChanges),
	}
}

type builtStack interface {
	settings.Container
	UserChanges() (settings.Container, bool)
}

// registerStack registers the stack and its freshly created user layer.
func (b *Builder) registerStack(stack builtStack) error {
	if user, ok := stack.UserChanges(); ok {
		if err := b.registry.AddContainer(user); err != nil {
			return err
		}
	}
	return b.registry.AddContainer(stack)
}

// extruderTrains maps position to extruder definition id, read from the
// machine definition's machine_extruder_trains metadata.
func extruderTrains(def *settings.Definition) map[string]string {
	raw, ok := def.RawMetadataValue("machine_extruder_trains")
	if !ok {
		return nil
	}
	switch typed := raw.(type) {
	case map[string]string:
		return typed
	case map[string]any:
		out := make(map[string]string, len(typed))
		for position, id := range typed {
			if s, ok := id.(string); ok {
				out[position] = s
			}
		}
		return out
	}
	return nil
}

func sortedTrainPositions(trains map[string]string) []string {
	positions := make([]string, 0, len(trains))
	for position := range trains {
		positions = append(positions, position)
	}
	sort.Slice(positions, func(i, j int) bool {
		a, aerr := strconv.Atoi(positions[i])
		b, berr := strconv.Atoi(positions[j])
		if aerr == nil && berr == nil {
			return a < b
		}
		return positions[i] < positions[j]
	})
	return positions
}

func shortID() string {
	return uuid.NewString()[:8]
}
