package settings

import (
	"errors"
	"strings"
	"testing"

	"github.com/goliatone/go-settings-stack/internal/conffile"
	"github.com/goliatone/go-settings-stack/pkg/events"
)

func TestInstanceSetProperty(t *testing.T) {
	inst := NewInstance("profile")

	if err := inst.SetProperty("wall_thickness", "value", 0.8); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := inst.SetProperty("speed_print", "value", 55); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := inst.SetProperty("wall_thickness", "label", "nope"); err == nil {
		t.Fatalf("expected non-value properties to be rejected")
	}

	value, ok := inst.RawProperty("wall_thickness", "value")
	if !ok || value.(float64) != 0.8 {
		t.Fatalf("expected 0.8, got %v %v", value, ok)
	}
	if _, ok := inst.RawProperty("wall_thickness", "label"); ok {
		t.Fatalf("expected instance layers to only hold values")
	}
	if _, ok := inst.RawProperty("missing", "value"); ok {
		t.Fatalf("expected absent keys to report absence")
	}

	// Updates keep the key's original position.
	if err := inst.SetProperty("wall_thickness", "value", 1.4); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := strings.Join(inst.Keys(), ","); got != "wall_thickness,speed_print" {
		t.Fatalf("expected insertion order, got %v", got)
	}

	inst.RemoveValue("wall_thickness")
	inst.RemoveValue("never_there")
	if got := strings.Join(inst.Keys(), ","); got != "speed_print" {
		t.Fatalf("expected only speed_print left, got %v", got)
	}
}

func TestInstanceSettingChangedEvent(t *testing.T) {
	capture := &events.CaptureHook{}
	inst := NewInstance("profile", WithEventHooks(capture))

	if err := inst.SetProperty("wall_thickness", "value", 0.8); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(capture.Events) != 1 {
		t.Fatalf("expected one event, got %d", len(capture.Events))
	}
	event := capture.Events[0]
	if event.Verb != "setting.changed" || event.ObjectID != "wall_thickness" {
		t.Fatalf("expected a setting.changed event for the key, got %+v", event)
	}
	if event.Metadata["container_id"] != "profile" {
		t.Fatalf("expected the container id in the event, got %+v", event.Metadata)
	}
}

func TestInstanceSerializeRoundTrip(t *testing.T) {
	inst := NewInstance("profile", WithName("Fine Profile"), WithMetadataEntry("type", "quality_changes"))
	inst.SetDefinitionID("test_printer")

	values := []struct {
		key   string
		value any
	}{
		{"wall_thickness", 0.8},
		{"retraction_enabled", true},
		{"ironing_enabled", false},
		{"adhesion_type", "brim"},
		{"speed_wall", NewFormula("speed_print / 2.0")},
		{"line_count", 42},
	}
	for _, pair := range values {
		if err := inst.SetProperty(pair.key, "value", pair.value); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	data, err := inst.Serialize()
	if err != nil {
		t.Fatalf("unexpected serialize error: %v", err)
	}

	restored := NewInstance("profile")
	if err := restored.Deserialize(data); err != nil {
		t.Fatalf("unexpected deserialize error: %v", err)
	}

	if restored.Name() != "Fine Profile" || restored.DefinitionID() != "test_printer" {
		t.Fatalf("expected identity to survive, got %q %q", restored.Name(), restored.DefinitionID())
	}
	if restored.MetaDataEntry("type", "") != "quality_changes" {
		t.Fatalf("expected metadata to survive, got %v", restored.Metadata().Keys())
	}
	wantOrder := "wall_thickness,retraction_enabled,ironing_enabled,adhesion_type,speed_wall,line_count"
	if got := strings.Join(restored.Keys(), ","); got != wantOrder {
		t.Fatalf("expected value order to survive, got %v", got)
	}

	checks := []struct {
		key  string
		want any
	}{
		{"wall_thickness", 0.8},
		{"retraction_enabled", true},
		{"ironing_enabled", false},
		{"adhesion_type", "brim"},
		// Numbers come back as float64 regardless of how they went in.
		{"line_count", 42.0},
	}
	for _, tc := range checks {
		value, ok := restored.RawProperty(tc.key, "value")
		if !ok || value != tc.want {
			t.Fatalf("expected %v for %q, got %v", tc.want, tc.key, value)
		}
	}

	formula, _ := restored.RawProperty("speed_wall", "value")
	if typed, ok := formula.(*Formula); !ok || typed.Expression() != "speed_print / 2.0" {
		t.Fatalf("expected the formula to survive, got %v", formula)
	}
}

func TestInstanceDeserializeFailures(t *testing.T) {
	t.Run("unsupported version", func(t *testing.T) {
		data, err := conffile.WriteInstance(conffile.InstancePayload{Version: 1, Name: "old"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		inst := NewInstance("profile")
		if err := inst.Deserialize(data); !errors.Is(err, ErrUnsupportedVersion) {
			t.Fatalf("expected version error, got %v", err)
		}
	})

	t.Run("missing general section", func(t *testing.T) {
		inst := NewInstance("profile")
		if err := inst.Deserialize([]byte("[values]\nwall_thickness = 1\n")); err == nil {
			t.Fatalf("expected an error for a headerless profile")
		}
	})
}

func TestLiteralParsingAndFormatting(t *testing.T) {
	parseCases := []struct {
		raw  string
		want any
	}{
		{"true", true},
		{"False", false},
		{"1.5", 1.5},
		{" 2 ", 2.0},
		{"brim", "brim"},
	}
	for _, tc := range parseCases {
		if got := parseLiteral(tc.raw); got != tc.want {
			t.Fatalf("expected %v for %q, got %v", tc.want, tc.raw, got)
		}
	}

	formatCases := []struct {
		value any
		want  string
	}{
		{true, "True"},
		{false, "False"},
		{0.5, "0.5"},
		{4.0, "4"},
		{42, "42"},
		{"brim", "brim"},
		{NewFormula("speed_print / 2.0"), "=speed_print / 2.0"},
		{nil, ""},
	}
	for _, tc := range formatCases {
		if got := formatValue(tc.value); got != tc.want {
			t.Fatalf("expected %q for %v, got %q", tc.want, tc.value, got)
		}
	}
}
