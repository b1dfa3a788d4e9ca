package events

import (
	"strings"
	"time"
)

// StackEventInput describes the common fields for stack lifecycle events.
type StackEventInput struct {
	StackID    string
	MachineID  string
	Position   string
	Channel    string
	Metadata   map[string]any
	OccurredAt time.Time
}

// BuildStackLinkedEvent constructs a normalized event for an extruder stack
// linking to its machine.
func BuildStackLinkedEvent(input StackEventInput) Event {
	return Event{
		Verb:       "stack.linked",
		StackID:    strings.TrimSpace(input.StackID),
		MachineID:  strings.TrimSpace(input.MachineID),
		Position:   strings.TrimSpace(input.Position),
		ObjectType: "stack",
		ObjectID:   strings.TrimSpace(input.StackID),
		Channel:    strings.TrimSpace(input.Channel),
		Metadata:   cloneMap(input.Metadata),
		OccurredAt: input.OccurredAt,
	}
}

// BuildStackUnlinkedEvent constructs a normalized event for an extruder
// stack leaving its previous machine during a re-link.
func BuildStackUnlinkedEvent(input StackEventInput) Event {
	event := BuildStackLinkedEvent(input)
	event.Verb = "stack.unlinked"
	return event
}

// ContainerEventInput describes the fields of container registry events.
type ContainerEventInput struct {
	ContainerID   string
	ContainerType string
	Channel       string
	Metadata      map[string]any
	OccurredAt    time.Time
}

// BuildContainerAddedEvent constructs a normalized event for a container
// entering the registry.
func BuildContainerAddedEvent(input ContainerEventInput) Event {
	return buildContainerEvent("container.added", input)
}

// BuildContainerRemovedEvent constructs a normalized event for a container
// leaving the registry.
func BuildContainerRemovedEvent(input ContainerEventInput) Event {
	return buildContainerEvent("container.removed", input)
}

func buildContainerEvent(verb string, input ContainerEventInput) Event {
	metadata := cloneMap(input.Metadata)
	if input.ContainerType != "" {
		if metadata == nil {
			metadata = map[string]any{}
		}
		metadata["container_type"] = input.ContainerType
	}
	return Event{
		Verb:       verb,
		ObjectType: "container",
		ObjectID:   strings.TrimSpace(input.ContainerID),
		Channel:    strings.TrimSpace(input.Channel),
		Metadata:   metadata,
		OccurredAt: input.OccurredAt,
	}
}

// SettingChangedInput describes a mutated setting value on an instance
// layer.
type SettingChangedInput struct {
	ContainerID string
	Key         string
	Channel     string
	OldValue    any
	NewValue    any
	Metadata    map[string]any
	OccurredAt  time.Time
}

// BuildSettingChangedEvent constructs a normalized event for a setting
// value change.
func BuildSettingChangedEvent(input SettingChangedInput) Event {
	metadata := cloneMap(input.Metadata)
	ensure := func() {
		if metadata == nil {
			metadata = map[string]any{}
		}
	}
	if input.ContainerID != "" {
		ensure()
		metadata["container_id"] = input.ContainerID
	}
	if input.OldValue != nil {
		ensure()
		metadata["old_value"] = input.OldValue
	}
	if input.NewValue != nil {
		ensure()
		metadata["new_value"] = input.NewValue
	}
	return Event{
		Verb:       "setting.changed",
		ObjectType: "setting",
		ObjectID:   strings.TrimSpace(input.Key),
		Channel:    strings.TrimSpace(input.Channel),
		Metadata:   metadata,
		OccurredAt: input.OccurredAt,
	}
}
