package events

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestHooksNotifyFanOut(t *testing.T) {
	first := &CaptureHook{}
	second := &CaptureHook{}
	hooks := Hooks{first, second}

	if !hooks.Enabled() {
		t.Fatalf("expected hooks to be enabled")
	}

	err := hooks.Notify(context.Background(), Event{
		Verb:       "  stack.linked  ",
		StackID:    " e0 ",
		ObjectType: "stack",
		ObjectID:   "e0",
	})
	if err != nil {
		t.Fatalf("notify: %v", err)
	}

	for _, hook := range []*CaptureHook{first, second} {
		if len(hook.Events) != 1 {
			t.Fatalf("expected one event, got %d", len(hook.Events))
		}
		event := hook.Events[0]
		if event.Verb != "stack.linked" || event.StackID != "e0" {
			t.Fatalf("event was not normalized: %+v", event)
		}
		if event.ID == "" {
			t.Fatalf("expected a generated event id")
		}
		if event.OccurredAt.IsZero() {
			t.Fatalf("expected a timestamp")
		}
	}
}

func TestHooksNotifySkipsIncompleteEvents(t *testing.T) {
	cases := []struct {
		name  string
		event Event
	}{
		{name: "missing verb", event: Event{ObjectType: "stack", ObjectID: "e0"}},
		{name: "missing object type", event: Event{Verb: "stack.linked", ObjectID: "e0"}},
		{name: "missing object id", event: Event{Verb: "stack.linked", ObjectType: "stack"}},
		{name: "whitespace only", event: Event{Verb: "  ", ObjectType: "stack", ObjectID: "e0"}},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			capture := &CaptureHook{}
			if err := (Hooks{capture}).Notify(context.Background(), tc.event); err != nil {
				t.Fatalf("notify: %v", err)
			}
			if len(capture.Events) != 0 {
				t.Fatalf("incomplete event should be dropped, got %+v", capture.Events)
			}
		})
	}
}

func TestHooksNotifyJoinsErrors(t *testing.T) {
	errFirst := errors.New("first hook failed")
	errLast := errors.New("last hook failed")
	failing := &CaptureHook{Err: errFirst}
	healthy := &CaptureHook{}
	alsoFailing := &CaptureHook{Err: errLast}

	err := Hooks{failing, healthy, alsoFailing}.Notify(context.Background(), Event{
		Verb:       "container.added",
		ObjectType: "container",
		ObjectID:   "user_1",
	})
	if !errors.Is(err, errFirst) || !errors.Is(err, errLast) {
		t.Fatalf("expected both hook errors joined, got %v", err)
	}
	// A failing hook does not stop delivery to the others.
	if len(healthy.Events) != 1 {
		t.Fatalf("healthy hook missed the event")
	}
}

func TestHooksNotifyEmptyAndNilEntries(t *testing.T) {
	if err := (Hooks)(nil).Notify(context.Background(), Event{Verb: "v", ObjectType: "t", ObjectID: "i"}); err != nil {
		t.Fatalf("nil hooks should be a no-op, got %v", err)
	}
	if (Hooks)(nil).Enabled() {
		t.Fatalf("nil hooks should not report enabled")
	}

	capture := &CaptureHook{}
	hooks := Hooks{nil, capture}
	if err := hooks.Notify(nil, Event{Verb: "v", ObjectType: "t", ObjectID: "i"}); err != nil {
		t.Fatalf("notify with nil entry: %v", err)
	}
	if len(capture.Events) != 1 {
		t.Fatalf("nil entry should be skipped, not abort delivery")
	}
}

func TestHookFuncNil(t *testing.T) {
	var fn HookFunc
	if err := fn.Notify(context.Background(), Event{}); err != nil {
		t.Fatalf("nil HookFunc should be a no-op, got %v", err)
	}
}

func TestNormalizeEvent(t *testing.T) {
	t.Run("fills id and timestamp", func(t *testing.T) {
		normalized := NormalizeEvent(Event{Verb: "v"})
		if normalized.ID == "" {
			t.Fatalf("expected generated id")
		}
		if normalized.OccurredAt.IsZero() {
			t.Fatalf("expected generated timestamp")
		}
	})

	t.Run("keeps provided id and timestamp", func(t *testing.T) {
		at := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
		normalized := NormalizeEvent(Event{ID: " evt-1 ", OccurredAt: at})
		if normalized.ID != "evt-1" {
			t.Fatalf("id = %q", normalized.ID)
		}
		if !normalized.OccurredAt.Equal(at) {
			t.Fatalf("timestamp replaced: %v", normalized.OccurredAt)
		}
	})

	t.Run("trims string fields", func(t *testing.T) {
		normalized := NormalizeEvent(Event{
			Verb:       " stack.linked ",
			StackID:    " e0 ",
			MachineID:  " m1 ",
			Position:   " 0 ",
			ObjectType: " stack ",
			ObjectID:   " e0 ",
			Channel:    " settings ",
		})
		if normalized.Verb != "stack.linked" || normalized.StackID != "e0" ||
			normalized.MachineID != "m1" || normalized.Position != "0" ||
			normalized.ObjectType != "stack" || normalized.ObjectID != "e0" ||
			normalized.Channel != "settings" {
			t.Fatalf("fields not trimmed: %+v", normalized)
		}
	})

	t.Run("clones metadata", func(t *testing.T) {
		source := map[string]any{"machine": "m1"}
		normalized := NormalizeEvent(Event{Metadata: source})
		source["machine"] = "changed"
		if normalized.Metadata["machine"] != "m1" {
			t.Fatalf("metadata shares storage with the input")
		}
	})

	t.Run("empty metadata stays nil", func(t *testing.T) {
		if normalized := NormalizeEvent(Event{Metadata: map[string]any{}}); normalized.Metadata != nil {
			t.Fatalf("expected nil metadata, got %v", normalized.Metadata)
		}
	})
}

func TestEmitterEnabled(t *testing.T) {
	capture := &CaptureHook{}
	cases := []struct {
		name    string
		emitter *Emitter
		want    bool
	}{
		{name: "enabled with hooks", emitter: NewEmitter(Hooks{capture}, Config{Enabled: true}), want: true},
		{name: "config disabled", emitter: NewEmitter(Hooks{capture}, Config{Enabled: false}), want: false},
		{name: "no hooks", emitter: NewEmitter(nil, Config{Enabled: true}), want: false},
		{name: "only nil hooks", emitter: NewEmitter(Hooks{nil, nil}, Config{Enabled: true}), want: false},
		{name: "nil emitter", emitter: nil, want: false},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.emitter.Enabled(); got != tc.want {
				t.Fatalf("Enabled() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestEmitterChannelDefaults(t *testing.T) {
	t.Run("default channel", func(t *testing.T) {
		capture := &CaptureHook{}
		emitter := NewEmitter(Hooks{capture}, Config{Enabled: true})
		if err := emitter.Emit(context.Background(), Event{Verb: "v", ObjectType: "t", ObjectID: "i"}); err != nil {
			t.Fatalf("emit: %v", err)
		}
		if capture.Events[0].Channel != "settings" {
			t.Fatalf("channel = %q, want settings", capture.Events[0].Channel)
		}
	})

	t.Run("configured channel", func(t *testing.T) {
		capture := &CaptureHook{}
		emitter := NewEmitter(Hooks{capture}, Config{Enabled: true, Channel: "printer-bus"})
		if err := emitter.Emit(context.Background(), Event{Verb: "v", ObjectType: "t", ObjectID: "i"}); err != nil {
			t.Fatalf("emit: %v", err)
		}
		if capture.Events[0].Channel != "printer-bus" {
			t.Fatalf("channel = %q, want printer-bus", capture.Events[0].Channel)
		}
	})

	t.Run("event channel wins", func(t *testing.T) {
		capture := &CaptureHook{}
		emitter := NewEmitter(Hooks{capture}, Config{Enabled: true, Channel: "printer-bus"})
		event := Event{Verb: "v", ObjectType: "t", ObjectID: "i", Channel: "override"}
		if err := emitter.Emit(context.Background(), event); err != nil {
			t.Fatalf("emit: %v", err)
		}
		if capture.Events[0].Channel != "override" {
			t.Fatalf("channel = %q, want override", capture.Events[0].Channel)
		}
	})

	t.Run("disabled emitter drops events", func(t *testing.T) {
		capture := &CaptureHook{}
		emitter := NewEmitter(Hooks{capture}, Config{Enabled: false})
		if err := emitter.Emit(context.Background(), Event{Verb: "v", ObjectType: "t", ObjectID: "i"}); err != nil {
			t.Fatalf("emit: %v", err)
		}
		if len(capture.Events) != 0 {
			t.Fatalf("disabled emitter delivered events: %+v", capture.Events)
		}
	})
}

func TestStackEventBuilders(t *testing.T) {
	metadata := map[string]any{"machine": "m1"}
	linked := BuildStackLinkedEvent(StackEventInput{
		StackID:   " e0 ",
		MachineID: " m1 ",
		Position:  " 0 ",
		Metadata:  metadata,
	})

	if linked.Verb != "stack.linked" {
		t.Fatalf("verb = %q", linked.Verb)
	}
	if linked.ObjectType != "stack" || linked.ObjectID != "e0" {
		t.Fatalf("object = %s/%s", linked.ObjectType, linked.ObjectID)
	}
	if linked.StackID != "e0" || linked.MachineID != "m1" || linked.Position != "0" {
		t.Fatalf("fields not trimmed: %+v", linked)
	}

	metadata["machine"] = "changed"
	if linked.Metadata["machine"] != "m1" {
		t.Fatalf("metadata shares storage with the input")
	}

	unlinked := BuildStackUnlinkedEvent(StackEventInput{StackID: "e0", MachineID: "m1"})
	if unlinked.Verb != "stack.unlinked" {
		t.Fatalf("verb = %q", unlinked.Verb)
	}
	if unlinked.ObjectID != "e0" {
		t.Fatalf("object id = %q", unlinked.ObjectID)
	}
}

func TestContainerEventBuilders(t *testing.T) {
	t.Run("type lands in metadata", func(t *testing.T) {
		added := BuildContainerAddedEvent(ContainerEventInput{
			ContainerID:   "user_1",
			ContainerType: "user",
			Metadata:      map[string]any{"source": "disk"},
		})
		if added.Verb != "container.added" || added.ObjectType != "container" || added.ObjectID != "user_1" {
			t.Fatalf("unexpected event: %+v", added)
		}
		if added.Metadata["container_type"] != "user" || added.Metadata["source"] != "disk" {
			t.Fatalf("metadata = %v", added.Metadata)
		}
	})

	t.Run("empty type leaves metadata alone", func(t *testing.T) {
		removed := BuildContainerRemovedEvent(ContainerEventInput{ContainerID: "user_1"})
		if removed.Verb != "container.removed" {
			t.Fatalf("verb = %q", removed.Verb)
		}
		if removed.Metadata != nil {
			t.Fatalf("expected nil metadata, got %v", removed.Metadata)
		}
	})
}

func TestSettingChangedBuilder(t *testing.T) {
	event := BuildSettingChangedEvent(SettingChangedInput{
		ContainerID: "machine_1_user",
		Key:         " speed_print ",
		OldValue:    60.0,
		NewValue:    45.0,
	})

	if event.Verb != "setting.changed" || event.ObjectType != "setting" {
		t.Fatalf("unexpected event: %+v", event)
	}
	if event.ObjectID != "speed_print" {
		t.Fatalf("object id = %q", event.ObjectID)
	}
	if event.Metadata["container_id"] != "machine_1_user" {
		t.Fatalf("metadata container_id = %v", event.Metadata["container_id"])
	}
	if event.Metadata["old_value"] != 60.0 || event.Metadata["new_value"] != 45.0 {
		t.Fatalf("metadata values = %v", event.Metadata)
	}

	bare := BuildSettingChangedEvent(SettingChangedInput{Key: "speed_print"})
	if bare.Metadata != nil {
		t.Fatalf("expected nil metadata without container or values, got %v", bare.Metadata)
	}
}
