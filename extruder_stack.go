package settings

import (
	"context"
	"fmt"

	"github.com/goliatone/go-settings-stack/pkg/events"
)

// ExtruderTypeName is the metadata type stamped on extruder stacks.
const ExtruderTypeName = "extruder_train"

// ExtruderStack is the per-extruder stack of a machine. On its own it
// cannot resolve anything: every lookup requires a linked machine stack,
// which it delegates machine-wide settings to.
type ExtruderStack struct {
	Stack
}

// NewExtruderStack builds an unlinked extruder stack.
func NewExtruderStack(id string, opts ...Option) *ExtruderStack {
	e := &ExtruderStack{Stack: newStack(id, opts)}
	e.root = e
	e.metadata.Set("type", ExtruderTypeName)
	return e
}

// Position returns the extruder's position metadata, "" when unset.
func (e *ExtruderStack) Position() string {
	return e.MetaDataEntry("position", "")
}

// SetNextStack links the extruder to machine: the reference is stored, the
// machine claims the extruder's position, the "machine" metadata entry is
// set, and the configured registrar is notified. A position claim error
// stops the remaining steps and propagates as is. Linking to a different
// machine releases the previous one first; re-linking to the same machine
// is harmless.
func (e *ExtruderStack) SetNextStack(machine *MachineStack) error {
	if machine == nil {
		return fmt.Errorf("settings: next stack must not be nil")
	}
	previous := e.next
	if previous != nil && previous != machine {
		previous.RemoveExtruder(e)
		e.notifyLink(events.BuildStackUnlinkedEvent, previous)
	}
	e.next = machine
	if err := machine.AddExtruder(e); err != nil {
		return err
	}
	e.metadata.Set("machine", machine.ID())
	if e.registrar != nil {
		e.registrar.RegisterExtruder(e, machine.ID())
	}
	e.notifyLink(events.BuildStackLinkedEvent, machine)
	return nil
}

// NextStack returns the linked machine stack, nil while unlinked.
func (e *ExtruderStack) NextStack() *MachineStack { return e.next }

// MachineDefinition returns the linked machine's definition container.
func (e *ExtruderStack) MachineDefinition() (*Definition, error) {
	if e.next == nil {
		return nil, &NoMachineStackError{StackID: e.id}
	}
	def, ok := e.next.Definition()
	if !ok {
		return nil, ErrNoDefinition
	}
	return def, nil
}

// Deserialize restores the stack from its file form, re-stamps the extruder
// type, and re-links to the machine named by the "machine" metadata entry
// through the configured StackFinder. The first matching machine stack
// wins; no match leaves the stack unlinked without error.
func (e *ExtruderStack) Deserialize(data []byte) error {
	if err := e.Stack.Deserialize(data); err != nil {
		return err
	}
	e.metadata.Set("type", ExtruderTypeName)
	if e.finder == nil {
		return nil
	}
	machineID := e.MetaDataEntry("machine", "")
	for _, candidate := range e.finder.FindContainerStacks(machineID) {
		if machine, ok := candidate.(*MachineStack); ok {
			return e.SetNextStack(machine)
		}
	}
	return nil
}

func (e *ExtruderStack) formulaMachine() *MachineStack { return e.next }

func (e *ExtruderStack) formulaPosition() string { return e.Position() }

// resolveProperty implements the per-extruder resolution order:
//
//  1. An unlinked stack resolves nothing.
//  2. Keys that are not settable per extruder delegate to the machine in
//     full.
//  3. A limit_to_extruder value redirects to the sibling at that position,
//     unless it is the "-1" sentinel or the extruder's own position. A
//     missing sibling or an absent sibling value falls through silently; a
//     redirection chain revisiting a position fails.
//  4. Everything else is the extruder's own layered lookup.
func (e *ExtruderStack) resolveProperty(key, property string, rc *resolveContext) (any, error) {
	if e.next == nil {
		return nil, &NoMachineStackError{StackID: e.id}
	}

	settable, err := e.baseProperty(key, "settable_per_extruder", rc)
	if err != nil {
		return nil, err
	}
	if !truthy(settable) {
		rc.trace.add(Step{StackID: e.id, Action: TraceDelegate, Key: key, Property: property})
		return e.next.resolveProperty(key, property, rc)
	}

	limit, err := e.baseProperty(key, "limit_to_extruder", rc)
	if err != nil {
		return nil, err
	}
	target := positionString(limit)
	own := e.Position()
	if target != "" && target != "-1" && target != own {
		if sibling, ok := e.next.Extruder(target); ok {
			if rc.positionVisited(key, target) {
				return nil, &RedirectionLoopError{StackID: e.id, Key: key, Position: target}
			}
			rc.trace.add(Step{StackID: e.id, Action: TraceRedirect, Key: key, Property: property, Value: target})
			rc.visitPosition(key, own)
			value, err := sibling.resolveProperty(key, property, rc)
			if err != nil {
				return nil, err
			}
			if value != nil {
				return value, nil
			}
		}
	}

	return e.baseProperty(key, property, rc)
}

func (e *ExtruderStack) notifyLink(build func(events.StackEventInput) events.Event, machine *MachineStack) {
	if len(e.hooks) == 0 || machine == nil {
		return
	}
	e.hooks.Notify(context.Background(), build(events.StackEventInput{
		StackID:   e.id,
		MachineID: machine.ID(),
		Position:  e.Position(),
	}))
}
