// Package extruders tracks extruder stacks per machine so components can
// answer machine-scoped questions without holding the stacks themselves.
package extruders

import (
	"sort"
	"strconv"
	"sync"

	settings "github.com/goliatone/go-settings-stack"
)

// Manager records which extruder stacks belong to which machine. It
// implements settings.ExtruderRegistrar, so wiring it into a stack via
// settings.WithExtruderRegistrar keeps it current as stacks link.
type Manager struct {
	mu       sync.RWMutex
	machines map[string]map[string]*settings.ExtruderStack
	active   map[string]string
}

// NewManager builds an empty manager.
func NewManager() *Manager {
	return &Manager{
		machines: map[string]map[string]*settings.ExtruderStack{},
		active:   map[string]string{},
	}
}

// RegisterExtruder records extruder under machineID, keyed by its position
// metadata. A stack previously registered to another machine moves; the
// first extruder registered for a machine becomes its active one.
func (m *Manager) RegisterExtruder(extruder *settings.ExtruderStack, machineID string) {
	if extruder == nil || machineID == "" {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.removeLocked(extruder)
	byPosition := m.machines[machineID]
	if byPosition == nil {
		byPosition = map[string]*settings.ExtruderStack{}
		m.machines[machineID] = byPosition
	}
	position := extruder.Position()
	byPosition[position] = extruder
	if _, ok := m.active[machineID]; !ok {
		m.active[machineID] = position
	}
}

// UnregisterExtruder drops extruder from whichever machine holds it.
func (m *Manager) UnregisterExtruder(extruder *settings.ExtruderStack) {
	if extruder == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeLocked(extruder)
}

// Extruder returns the extruder registered for machineID at position.
func (m *Manager) Extruder(machineID, position string) (*settings.ExtruderStack, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	extruder, ok := m.machines[machineID][position]
	return extruder, ok
}

// Extruders lists the machine's extruder stacks in position order.
func (m *Manager) Extruders(machineID string) []*settings.ExtruderStack {
	m.mu.RLock()
	defer m.mu.RUnlock()
	byPosition := m.machines[machineID]
	out := make([]*settings.ExtruderStack, 0, len(byPosition))
	for _, position := range sortPositions(byPosition) {
		out = append(out, byPosition[position])
	}
	return out
}

// ExtruderCount reports how many extruders are registered for machineID.
func (m *Manager) ExtruderCount(machineID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.machines[machineID])
}

// ActiveExtruder returns the machine's active extruder stack.
func (m *Manager) ActiveExtruder(machineID string) (*settings.ExtruderStack, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	position, ok := m.active[machineID]
	if !ok {
		return nil, false
	}
	extruder, ok := m.machines[machineID][position]
	return extruder, ok
}

// SetActiveExtruder marks the extruder at position active. It reports false
// when no extruder is registered there.
func (m *Manager) SetActiveExtruder(machineID, position string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.machines[machineID][position]; !ok {
		return false
	}
	m.active[machineID] = position
	return true
}

// Machines lists the machine ids with registered extruders, sorted.
func (m *Manager) Machines() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.machines))
	for machineID := range m.machines {
		out = append(out, machineID)
	}
	sort.Strings(out)
	return out
}

func (m *Manager) removeLocked(extruder *settings.ExtruderStack) {
	for machineID, byPosition := range m.machines {
		for position, existing := range byPosition {
			if existing != extruder && existing.ID() != extruder.ID() {
				continue
			}
			delete(byPosition, position)
			if len(byPosition) == 0 {
				delete(m.machines, machineID)
			}
			if m.active[machineID] == position {
				delete(m.active, machineID)
				if remaining := sortPositions(byPosition); len(remaining) > 0 {
					m.active[machineID] = remaining[0]
				}
			}
			return
		}
	}
}

// sortPositions orders position keys numerically when possible, lexically
// otherwise.
func sortPositions(byPosition map[string]*settings.ExtruderStack) []string {
	positions := make([]string, 0, len(byPosition))
	for position := range byPosition {
		positions = append(positions, position)
	}
	sort.Slice(positions, func(i, j int) bool {
		a, errA := strconv.Atoi(positions[i])
		b, errB := strconv.Atoi(positions[j])
		if errA == nil && errB == nil {
			return a < b
		}
		return positions[i] < positions[j]
	})
	return positions
}
