package registry

import (
	"testing"

	settings "github.com/goliatone/go-settings-stack"
)

func TestTypeForPath(t *testing.T) {
	db := DefaultMimeDatabase()
	cases := []struct {
		name     string
		path     string
		wantName string
		wantOK   bool
	}{
		{name: "definition", path: "fdmprinter.def.json", wantName: MimeDefinition, wantOK: true},
		{name: "instance", path: "draft_quality.inst.cfg", wantName: MimeInstance, wantOK: true},
		{name: "machine stack", path: "my_printer.global.cfg", wantName: MimeMachineStack, wantOK: true},
		{name: "extruder stack", path: "my_printer_e0.extruder.cfg", wantName: MimeExtruderStack, wantOK: true},
		{name: "nested path", path: "resources/definitions/fdmprinter.def.json", wantName: MimeDefinition, wantOK: true},
		{name: "suffix needs a dot before it", path: "notadef.json", wantOK: false},
		{name: "unknown suffix", path: "readme.txt", wantOK: false},
		{name: "bare suffix without id", path: "def.json", wantOK: false},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			mime, factory, _, ok := db.TypeForPath(tc.path)
			if ok != tc.wantOK {
				t.Fatalf("TypeForPath(%q) ok = %v, want %v", tc.path, ok, tc.wantOK)
			}
			if !tc.wantOK {
				return
			}
			if mime.Name != tc.wantName {
				t.Fatalf("mime = %q, want %q", mime.Name, tc.wantName)
			}
			if factory == nil {
				t.Fatalf("expected a factory")
			}
		})
	}
}

func TestIDForPath(t *testing.T) {
	db := DefaultMimeDatabase()
	cases := []struct {
		path   string
		wantID string
		wantOK bool
	}{
		{path: "fdmprinter.def.json", wantID: "fdmprinter", wantOK: true},
		{path: "resources/quality/draft.inst.cfg", wantID: "draft", wantOK: true},
		{path: "my_printer_e0.extruder.cfg", wantID: "my_printer_e0", wantOK: true},
		{path: "readme.txt", wantOK: false},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.path, func(t *testing.T) {
			id, ok := db.IDForPath(tc.path)
			if ok != tc.wantOK || id != tc.wantID {
				t.Fatalf("IDForPath(%q) = %q, %v, want %q, %v", tc.path, id, ok, tc.wantID, tc.wantOK)
			}
		})
	}
}

func TestFactoriesBuildMatchingContainers(t *testing.T) {
	db := DefaultMimeDatabase()

	_, factory, priority, ok := db.TypeForPath("printer.global.cfg")
	if !ok || priority != PriorityMachineStack {
		t.Fatalf("unexpected machine stack resolution: %v, %d", ok, priority)
	}
	if _, isMachine := factory("m1").(*settings.MachineStack); !isMachine {
		t.Fatalf("factory did not build a machine stack")
	}

	_, factory, priority, ok = db.TypeForPath("printer_e0.extruder.cfg")
	if !ok || priority != PriorityExtruderStack {
		t.Fatalf("unexpected extruder stack resolution: %v, %d", ok, priority)
	}
	if _, isExtruder := factory("e0").(*settings.ExtruderStack); !isExtruder {
		t.Fatalf("factory did not build an extruder stack")
	}
}

func TestTypeByName(t *testing.T) {
	db := DefaultMimeDatabase()
	if mime, ok := db.TypeByName(MimeInstance); !ok || len(mime.Suffixes) == 0 || mime.Suffixes[0] != "inst.cfg" {
		t.Fatalf("TypeByName(%q) = %+v, %v", MimeInstance, mime, ok)
	}
	if _, ok := db.TypeByName("application/x-unknown"); ok {
		t.Fatalf("unknown mime name resolved")
	}
}

func TestTypesOrderedByPriority(t *testing.T) {
	types := DefaultMimeDatabase().Types()
	want := []string{MimeDefinition, MimeInstance, MimeMachineStack, MimeExtruderStack}
	if len(types) != len(want) {
		t.Fatalf("got %d types, want %d", len(types), len(want))
	}
	for i, mime := range types {
		if mime.Name != want[i] {
			t.Fatalf("types[%d] = %q, want %q", i, mime.Name, want[i])
		}
	}
}

func TestRegisterTypeLaterWins(t *testing.T) {
	db := DefaultMimeDatabase()
	db.RegisterType(MimeType{
		Name:     "application/x-legacy-profile",
		Suffixes: []string{"inst.cfg"},
	}, PriorityInstance, func(id string, opts ...settings.Option) settings.Container {
		return settings.NewInstance(id, opts...)
	})

	mime, _, _, ok := db.TypeForPath("draft.inst.cfg")
	if !ok || mime.Name != "application/x-legacy-profile" {
		t.Fatalf("later registration should win the suffix, got %q", mime.Name)
	}
}
