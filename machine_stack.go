package settings

import (
	"encoding/json"
	"fmt"
)

// MachineTypeName is the metadata type stamped on machine stacks.
const MachineTypeName = "machine"

// MachineStack is the top-level stack of one machine. Extruder stacks link
// to it and delegate machine-wide settings back to it.
type MachineStack struct {
	Stack

	extruders map[string]*ExtruderStack
}

// NewMachineStack builds an empty machine stack.
func NewMachineStack(id string, opts ...Option) *MachineStack {
	m := &MachineStack{
		Stack:     newStack(id, opts),
		extruders: map[string]*ExtruderStack{},
	}
	m.root = m
	m.metadata.Set("type", MachineTypeName)
	return m
}

// AddExtruder claims a position on the machine for extruder. It fails when
// the extruder carries no position metadata, when another extruder already
// holds the position, or when the machine's extruder count would be
// exceeded. Re-adding the same extruder is a no-op.
func (m *MachineStack) AddExtruder(extruder *ExtruderStack) error {
	if extruder == nil {
		return fmt.Errorf("settings: extruder must not be nil")
	}
	position := extruder.MetaDataEntry("position", "")
	if position == "" {
		return fmt.Errorf("%w: extruder %q", ErrPositionMetadataMissing, extruder.ID())
	}
	if existing, ok := m.extruders[position]; ok {
		if existing == extruder || existing.ID() == extruder.ID() {
			return nil
		}
		return &DuplicatePositionError{MachineID: m.id, Position: position}
	}
	if limit, ok := m.extruderLimit(); ok && len(m.extruders)+1 > limit {
		return &TooManyExtrudersError{MachineID: m.id, Limit: limit}
	}
	m.extruders[position] = extruder
	return nil
}

// RemoveExtruder releases the extruder's position. Unknown extruders are
// ignored.
func (m *MachineStack) RemoveExtruder(extruder *ExtruderStack) {
	if extruder == nil {
		return
	}
	for position, existing := range m.extruders {
		if existing == extruder || existing.ID() == extruder.ID() {
			delete(m.extruders, position)
			return
		}
	}
}

// Extruder returns the extruder stack at position.
func (m *MachineStack) Extruder(position string) (*ExtruderStack, bool) {
	extruder, ok := m.extruders[position]
	return extruder, ok
}

// Extruders returns the linked extruder stacks keyed by position.
func (m *MachineStack) Extruders() map[string]*ExtruderStack {
	out := make(map[string]*ExtruderStack, len(m.extruders))
	for position, extruder := range m.extruders {
		out[position] = extruder
	}
	return out
}

// ExtruderPositions lists the claimed positions in numeric order.
func (m *MachineStack) ExtruderPositions() []string {
	positions := make([]string, 0, len(m.extruders))
	for position := range m.extruders {
		positions = append(positions, position)
	}
	return sortedPositions(positions)
}

// ExtruderCount reports how many extruder stacks are linked.
func (m *MachineStack) ExtruderCount() int {
	return len(m.extruders)
}

// MachineDefinition returns the machine's own definition container.
func (m *MachineStack) MachineDefinition() (*Definition, bool) {
	return m.Definition()
}

// Deserialize restores the stack from its file form and re-stamps the
// machine type.
func (m *MachineStack) Deserialize(data []byte) error {
	if err := m.Stack.Deserialize(data); err != nil {
		return err
	}
	m.metadata.Set("type", MachineTypeName)
	return nil
}

func (m *MachineStack) formulaMachine() *MachineStack { return m }

// resolveProperty handles machine-wide value queries: keys unknown to the
// definition are absent, and keys whose definition carries a resolve
// formula prefer its result over the layered value.
func (m *MachineStack) resolveProperty(key, property string, rc *resolveContext) (any, error) {
	if def, ok := m.Definition(); ok {
		if _, known := def.Setting(key); !known {
			return nil, nil
		}
	}
	if m.shouldResolve(key, property, rc) {
		rc.resolvingKeys[key] = true
		value, err := m.baseProperty(key, "resolve", rc)
		delete(rc.resolvingKeys, key)
		if err != nil {
			return nil, err
		}
		if value != nil {
			rc.trace.add(Step{
				StackID:  m.id,
				Action:   TraceResolve,
				Key:      key,
				Property: property,
				Value:    value,
				Found:    true,
			})
			return value, nil
		}
	}
	return m.baseProperty(key, property, rc)
}

// shouldResolve gates resolve handling: only value queries on keys whose
// definition carries a resolve formula, and never while that key's resolve
// is already running.
func (m *MachineStack) shouldResolve(key, property string, rc *resolveContext) bool {
	if property != "value" {
		return false
	}
	if rc.resolvingKeys[key] {
		return false
	}
	def, ok := m.Definition()
	if !ok {
		return false
	}
	setting, ok := def.Setting(key)
	return ok && setting.Resolve != nil
}

// extruderLimit reads machine_extruder_count when the stack can resolve it
// to a number. Anything else leaves the machine unbounded.
func (m *MachineStack) extruderLimit() (int, bool) {
	value, err := m.resolveProperty("machine_extruder_count", "value", newResolveContext())
	if err != nil || value == nil {
		return 0, false
	}
	switch typed := value.(type) {
	case int:
		return typed, true
	case int64:
		return int(typed), true
	case float64:
		return int(typed), true
	case json.Number:
		parsed, err := typed.Int64()
		if err != nil {
			return 0, false
		}
		return int(parsed), true
	}
	return 0, false
}
