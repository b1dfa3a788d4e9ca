package settings

import "fmt"

// Slot identifies one of the canonical layers of a fully assembled machine
// or extruder stack. Lower values are stronger.
type Slot int

const (
	SlotUser Slot = iota
	SlotQualityChanges
	SlotQuality
	SlotMaterial
	SlotVariant
	SlotDefinitionChanges
	SlotDefinition

	slotCount
)

// SlotCount is the number of layers in the canonical layout.
const SlotCount = int(slotCount)

// String returns the container type conventionally stored in the slot.
func (s Slot) String() string {
	switch s {
	case SlotUser:
		return "user"
	case SlotQualityChanges:
		return "quality_changes"
	case SlotQuality:
		return "quality"
	case SlotMaterial:
		return "material"
	case SlotVariant:
		return "variant"
	case SlotDefinitionChanges:
		return "definition_changes"
	case SlotDefinition:
		return "definition"
	default:
		return "unknown"
	}
}

// SlotLayout names the canonical layers for stack assembly. The definition
// is required; a nil User slot gets a fresh per-stack container; every
// other nil slot is filled with an empty placeholder so slot indices stay
// stable.
type SlotLayout struct {
	User              Container
	QualityChanges    Container
	Quality           Container
	Material          Container
	Variant           Container
	DefinitionChanges Container
	Definition        *Definition
}

func (l SlotLayout) containers(stackID string) ([]Container, error) {
	if l.Definition == nil {
		return nil, ErrNoDefinition
	}
	user := l.User
	if user == nil {
		user = newUserContainer(stackID)
	}
	fill := func(container Container, slot Slot) Container {
		if container != nil {
			return container
		}
		return NewEmptyContainer(slot)
	}
	return []Container{
		user,
		fill(l.QualityChanges, SlotQualityChanges),
		fill(l.Quality, SlotQuality),
		fill(l.Material, SlotMaterial),
		fill(l.Variant, SlotVariant),
		fill(l.DefinitionChanges, SlotDefinitionChanges),
		l.Definition,
	}, nil
}

// NewSlottedMachineStack assembles a machine stack with the canonical layer
// layout. The layout defines the layers; WithContainers is ignored.
func NewSlottedMachineStack(id string, layout SlotLayout, opts ...Option) (*MachineStack, error) {
	containers, err := layout.containers(id)
	if err != nil {
		return nil, err
	}
	m := NewMachineStack(id, opts...)
	m.containers = containers
	return m, nil
}

// NewSlottedExtruderStack assembles an extruder stack with the canonical
// layer layout. The layout defines the layers; WithContainers is ignored.
func NewSlottedExtruderStack(id string, layout SlotLayout, opts ...Option) (*ExtruderStack, error) {
	containers, err := layout.containers(id)
	if err != nil {
		return nil, err
	}
	e := NewExtruderStack(id, opts...)
	e.containers = containers
	return e, nil
}

// NewEmptyContainer returns the placeholder instance for an unused slot.
func NewEmptyContainer(slot Slot) *Instance {
	return NewInstance("empty_"+slot.String(), WithMetadataEntry("type", slot.String()))
}

func newUserContainer(stackID string) *Instance {
	return NewInstance(stackID+"_user", WithMetadataEntry("type", "user"))
}

// SlotContainer returns the layer at the canonical slot. It reports false
// when the stack does not follow the canonical layout.
func (s *Stack) SlotContainer(slot Slot) (Container, bool) {
	if len(s.containers) != SlotCount || slot < 0 || slot >= slotCount {
		return nil, false
	}
	return s.containers[slot], true
}

// SetSlotContainer replaces the layer at the canonical slot.
func (s *Stack) SetSlotContainer(slot Slot, container Container) error {
	if len(s.containers) != SlotCount {
		return fmt.Errorf("settings: stack %q does not follow the canonical slot layout", s.id)
	}
	if slot < 0 || slot >= slotCount {
		return fmt.Errorf("settings: slot %d out of range", int(slot))
	}
	return s.ReplaceContainer(int(slot), container)
}

// UserChanges returns the user slot container.
func (s *Stack) UserChanges() (Container, bool) { return s.SlotContainer(SlotUser) }

// QualityChanges returns the quality_changes slot container.
func (s *Stack) QualityChanges() (Container, bool) { return s.SlotContainer(SlotQualityChanges) }

// Quality returns the quality slot container.
func (s *Stack) Quality() (Container, bool) { return s.SlotContainer(SlotQuality) }

// Material returns the material slot container.
func (s *Stack) Material() (Container, bool) { return s.SlotContainer(SlotMaterial) }

// Variant returns the variant slot container.
func (s *Stack) Variant() (Container, bool) { return s.SlotContainer(SlotVariant) }

// DefinitionChanges returns the definition_changes slot container.
func (s *Stack) DefinitionChanges() (Container, bool) { return s.SlotContainer(SlotDefinitionChanges) }
