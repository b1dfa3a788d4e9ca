package settings

import (
	"errors"
	"fmt"
)

var (
	// ErrNoEvaluator is returned when no formula engine could be resolved.
	ErrNoEvaluator = errors.New("settings: evaluator not configured")

	// ErrNilContainer is returned when a nil container is added to a stack.
	ErrNilContainer = errors.New("settings: container must not be nil")

	// ErrPositionMetadataMissing is returned when an extruder stack without
	// position metadata is added to a machine.
	ErrPositionMetadataMissing = errors.New("settings: extruder stack has no position metadata")

	// ErrContainerNotFound is returned when a serialized layer id cannot be
	// resolved during deserialization.
	ErrContainerNotFound = errors.New("settings: container not found")

	// ErrUnsupportedVersion is returned for serialized payloads written by an
	// incompatible format version.
	ErrUnsupportedVersion = errors.New("settings: unsupported serialization version")

	// ErrCircularInheritance is returned when a definition inheritance chain
	// revisits a definition id.
	ErrCircularInheritance = errors.New("settings: circular definition inheritance")

	// ErrCircularFormula is returned when formula evaluation re-enters the
	// key it is computing.
	ErrCircularFormula = errors.New("settings: circular formula reference")

	// ErrNoDefinition is returned when a stack operation requires a
	// definition layer and none is present.
	ErrNoDefinition = errors.New("settings: stack has no definition container")
)

// NoMachineStackError reports a per-extruder operation on a stack that has
// not been linked to a machine stack yet.
type NoMachineStackError struct {
	StackID string
}

func (e *NoMachineStackError) Error() string {
	return fmt.Sprintf("settings: extruder stack %q is missing the next stack", e.StackID)
}

// DuplicatePositionError reports a second extruder stack claiming a position
// already held on the machine.
type DuplicatePositionError struct {
	MachineID string
	Position  string
}

func (e *DuplicatePositionError) Error() string {
	return fmt.Sprintf("settings: machine %q already has an extruder at position %q", e.MachineID, e.Position)
}

// TooManyExtrudersError reports an extruder add that would exceed the
// machine's extruder count.
type TooManyExtrudersError struct {
	MachineID string
	Limit     int
}

func (e *TooManyExtrudersError) Error() string {
	return fmt.Sprintf("settings: machine %q supports at most %d extruders", e.MachineID, e.Limit)
}

// RedirectionLoopError reports per-extruder resolution bouncing between
// positions without terminating.
type RedirectionLoopError struct {
	StackID  string
	Key      string
	Position string
}

func (e *RedirectionLoopError) Error() string {
	return fmt.Sprintf("settings: resolving %q on stack %q revisited extruder position %q", e.Key, e.StackID, e.Position)
}
