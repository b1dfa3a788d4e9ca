package settings

import (
	"errors"
	"strings"
	"testing"

	"github.com/goliatone/go-settings-stack/internal/conffile"
	"github.com/goliatone/go-settings-stack/pkg/events"
)

func TestAddContainerOrder(t *testing.T) {
	stack := NewStack("s1")
	first := NewInstance("first")
	second := NewInstance("second")

	if err := stack.AddContainer(first); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := stack.AddContainer(second); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	containers := stack.Containers()
	if len(containers) != 2 || containers[0] != second || containers[1] != first {
		t.Fatalf("expected the newest container on top, got %v", containerIDs(containers))
	}
	if top, ok := stack.ContainerAt(0); !ok || top != second {
		t.Fatalf("expected the newest container at index 0")
	}
	if _, ok := stack.ContainerAt(5); ok {
		t.Fatalf("expected out of range index to report absence")
	}

	if err := stack.AddContainer(nil); !errors.Is(err, ErrNilContainer) {
		t.Fatalf("expected nil container error, got %v", err)
	}
	if err := stack.AddContainer(stack); err == nil {
		t.Fatalf("expected adding a stack to itself to fail")
	}
}

func TestInsertReplaceRemove(t *testing.T) {
	stack := NewStack("s1", WithContainers(NewInstance("b"), NewInstance("a")))

	if err := stack.InsertContainer(1, NewInstance("c")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := containerIDs(stack.Containers()); strings.Join(got, ",") != "b,c,a" {
		t.Fatalf("expected b,c,a after insert, got %v", got)
	}

	if err := stack.ReplaceContainer(0, NewInstance("d")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := containerIDs(stack.Containers()); strings.Join(got, ",") != "d,c,a" {
		t.Fatalf("expected d,c,a after replace, got %v", got)
	}

	if err := stack.RemoveContainer(1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := containerIDs(stack.Containers()); strings.Join(got, ",") != "d,a" {
		t.Fatalf("expected d,a after remove, got %v", got)
	}

	cases := []struct {
		name string
		call func() error
	}{
		{"insert below zero", func() error { return stack.InsertContainer(-1, NewInstance("x")) }},
		{"insert past end", func() error { return stack.InsertContainer(4, NewInstance("x")) }},
		{"insert nil", func() error { return stack.InsertContainer(0, nil) }},
		{"replace past end", func() error { return stack.ReplaceContainer(2, NewInstance("x")) }},
		{"replace nil", func() error { return stack.ReplaceContainer(0, nil) }},
		{"remove past end", func() error { return stack.RemoveContainer(9) }},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.call(); err == nil {
				t.Fatalf("expected an error")
			}
		})
	}
}

func TestDefinitionIsTheWeakestLayer(t *testing.T) {
	def := newTestDefinition(t, "plain_def", testPrinterDefinition)

	stack := NewStack("s1", WithContainers(NewInstance("user"), def))
	if got, ok := stack.Definition(); !ok || got != def {
		t.Fatalf("expected the bottom definition layer")
	}

	noDef := NewStack("s2", WithContainers(NewInstance("user")))
	if _, ok := noDef.Definition(); ok {
		t.Fatalf("expected no definition when the bottom layer is an instance")
	}
	if _, ok := NewStack("empty").Definition(); ok {
		t.Fatalf("expected no definition on an empty stack")
	}
}

func TestLayeredLookupPrefersStrongerLayers(t *testing.T) {
	def := newTestDefinition(t, "plain_def", testPrinterDefinition)
	weak := NewInstance("weak")
	strong := NewInstance("strong")
	if err := weak.SetProperty("wall_thickness", "value", 2.0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := strong.SetProperty("wall_thickness", "value", 3.0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stack := NewStack("s1",
		WithContainers(strong, weak, def),
		WithEvaluator(NewExprEvaluator()),
	)

	value, err := stack.Property("wall_thickness", "value")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got, ok := value.(float64); !ok || got != 3.0 {
		t.Fatalf("expected the strongest layer to win, got %v", value)
	}

	// Absent on every layer falls back to the definition default.
	value, err = stack.Property("speed_print", "value")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got, ok := value.(float64); !ok || got != 60 {
		t.Fatalf("expected the definition default, got %v", value)
	}
}

func TestFormulaValuesEvaluateOnLookup(t *testing.T) {
	def := newTestDefinition(t, "plain_def", testPrinterDefinition)
	user := NewInstance("user")
	if err := user.SetProperty("wall_thickness", "value", NewFormula("speed_print / 2.0")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stack := NewStack("s1",
		WithContainers(user, def),
		WithEvaluator(NewExprEvaluator()),
	)

	raw, ok := stack.RawProperty("wall_thickness", "value")
	if !ok {
		t.Fatalf("expected a raw value")
	}
	if _, isFormula := raw.(*Formula); !isFormula {
		t.Fatalf("expected the raw lookup to keep the formula, got %T", raw)
	}

	value, trace, err := stack.PropertyWithTrace("wall_thickness", "value")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got, ok := value.(float64); !ok || got != 30.0 {
		t.Fatalf("expected 30.0, got %v", value)
	}
	if !hasTraceAction(trace, TraceContainer) || !hasTraceAction(trace, TraceFormula) {
		t.Fatalf("expected container and formula steps, got %+v", trace.Steps)
	}
}

func TestStackSerializeRoundTrip(t *testing.T) {
	def := newTestDefinition(t, "plain_def", testPrinterDefinition)
	user := NewInstance("user_layer")
	original := NewStack("s1",
		WithName("Round Trip"),
		WithMetadataEntry("flavor", "lime"),
		WithMetadataEntry("shape", "square"),
		WithContainers(user, def),
	)

	data, err := original.Serialize()
	if err != nil {
		t.Fatalf("unexpected serialize error: %v", err)
	}

	lookup := fakeLookup{"user_layer": user, "plain_def": def}
	restored := NewStack("placeholder", WithContainerLookup(lookup))
	if err := restored.Deserialize(data); err != nil {
		t.Fatalf("unexpected deserialize error: %v", err)
	}

	if restored.ID() != "s1" || restored.Name() != "Round Trip" {
		t.Fatalf("expected identity from the payload, got %q %q", restored.ID(), restored.Name())
	}
	if restored.MetaDataEntry("flavor", "") != "lime" || restored.MetaDataEntry("shape", "") != "square" {
		t.Fatalf("expected metadata to survive, got %v", restored.Metadata().Keys())
	}
	if got := containerIDs(restored.Containers()); strings.Join(got, ",") != "user_layer,plain_def" {
		t.Fatalf("expected the layer order to survive, got %v", got)
	}
}

func TestStackDeserializeFailures(t *testing.T) {
	t.Run("unsupported version", func(t *testing.T) {
		data, err := conffile.WriteStack(conffile.StackPayload{Version: 99, ID: "bad"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		stack := NewStack("s1")
		if err := stack.Deserialize(data); !errors.Is(err, ErrUnsupportedVersion) {
			t.Fatalf("expected version error, got %v", err)
		}
	})

	t.Run("missing lookup", func(t *testing.T) {
		data, err := conffile.WriteStack(conffile.StackPayload{
			Version:      3,
			ID:           "s1",
			ContainerIDs: []string{"user_layer"},
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		stack := NewStack("s1")
		if err := stack.Deserialize(data); err == nil || !strings.Contains(err.Error(), "no container lookup") {
			t.Fatalf("expected a missing lookup error, got %v", err)
		}
	})

	t.Run("unknown container id", func(t *testing.T) {
		data, err := conffile.WriteStack(conffile.StackPayload{
			Version:      3,
			ID:           "s1",
			ContainerIDs: []string{"ghost"},
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		stack := NewStack("s1", WithContainerLookup(fakeLookup{}))
		if err := stack.Deserialize(data); !errors.Is(err, ErrContainerNotFound) {
			t.Fatalf("expected unknown container error, got %v", err)
		}
	})
}

func TestContainerChangeEvents(t *testing.T) {
	capture := &events.CaptureHook{}
	stack := NewStack("s1", WithEventHooks(capture))
	layer := NewInstance("layer", WithMetadataEntry("type", "user"))

	if err := stack.AddContainer(layer); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := stack.ReplaceContainer(0, NewInstance("other")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := stack.RemoveContainer(0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	verbs := make([]string, 0, len(capture.Events))
	for _, event := range capture.Events {
		verbs = append(verbs, event.Verb)
	}
	want := []string{"container.added", "container.removed", "container.added", "container.removed"}
	if strings.Join(verbs, ",") != strings.Join(want, ",") {
		t.Fatalf("expected events %v, got %v", want, verbs)
	}

	first := capture.Events[0]
	if first.ObjectID != "layer" || first.Metadata["stack_id"] != "s1" {
		t.Fatalf("expected the event to name the container and stack, got %+v", first)
	}
	if first.Metadata["container_type"] != "user" {
		t.Fatalf("expected the container type in the event, got %+v", first.Metadata)
	}
}

func TestEvaluateAdHocExpression(t *testing.T) {
	machine, _ := newTestMachine(t)

	value, err := machine.Evaluate("speed_print * 2.0")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got, ok := value.(float64); !ok || got != 120.0 {
		t.Fatalf("expected 120.0, got %v", value)
	}

	if _, err := machine.Evaluate(""); err == nil {
		t.Fatalf("expected an empty expression to fail")
	}
}

func containerIDs(containers []Container) []string {
	out := make([]string, 0, len(containers))
	for _, container := range containers {
		out = append(out, container.ID())
	}
	return out
}
