package registry

import (
	"path/filepath"
	"sort"
	"strings"
	"sync"

	settings "github.com/goliatone/go-settings-stack"
)

// MimeType describes one container file type by its filename suffixes.
type MimeType struct {
	Name     string
	Comment  string
	Suffixes []string
}

// ContainerFactory builds an empty container ready for deserialization.
type ContainerFactory func(id string, opts ...settings.Option) settings.Container

// Loading priorities of the standard container types. Lower loads earlier:
// definitions before the profiles that reference them, machines before the
// extruders that re-link to them.
const (
	PriorityDefinition    = 0
	PriorityInstance      = 1
	PriorityMachineStack  = 2
	PriorityExtruderStack = 3
)

// Names of the standard container mime types.
const (
	MimeDefinition    = "application/x-settings-definition"
	MimeInstance      = "application/x-settings-instance"
	MimeMachineStack  = "application/x-settings-machine-stack"
	MimeExtruderStack = "application/x-settings-extruder-stack"
)

type containerType struct {
	mime     MimeType
	factory  ContainerFactory
	priority int
}

// MimeDatabase resolves file names to container types.
type MimeDatabase struct {
	mu    sync.RWMutex
	types []containerType
}

// NewMimeDatabase builds an empty database.
func NewMimeDatabase() *MimeDatabase {
	return &MimeDatabase{}
}

// DefaultMimeDatabase registers the four standard container types.
func DefaultMimeDatabase() *MimeDatabase {
	db := NewMimeDatabase()
	db.RegisterType(MimeType{
		Name:     MimeDefinition,
		Comment:  "Setting definition",
		Suffixes: []string{"def.json"},
	}, PriorityDefinition, func(id string, opts ...settings.Option) settings.Container {
		return settings.NewDefinition(id, opts...)
	})
	db.RegisterType(MimeType{
		Name:     MimeInstance,
		Comment:  "Setting profile",
		Suffixes: []string{"inst.cfg"},
	}, PriorityInstance, func(id string, opts ...settings.Option) settings.Container {
		return settings.NewInstance(id, opts...)
	})
	db.RegisterType(MimeType{
		Name:     MimeMachineStack,
		Comment:  "Machine stack",
		Suffixes: []string{"global.cfg"},
	}, PriorityMachineStack, func(id string, opts ...settings.Option) settings.Container {
		return settings.NewMachineStack(id, opts...)
	})
	db.RegisterType(MimeType{
		Name:     MimeExtruderStack,
		Comment:  "Extruder stack",
		Suffixes: []string{"extruder.cfg"},
	}, PriorityExtruderStack, func(id string, opts ...settings.Option) settings.Container {
		return settings.NewExtruderStack(id, opts...)
	})
	return db
}

// RegisterType adds a container type. Later registrations win on suffix
// conflicts.
func (db *MimeDatabase) RegisterType(mime MimeType, priority int, factory ContainerFactory) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.types = append([]containerType{{mime: mime, factory: factory, priority: priority}}, db.types...)
}

// TypeForPath resolves the container type of a file name.
func (db *MimeDatabase) TypeForPath(path string) (MimeType, ContainerFactory, int, bool) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	name := filepath.Base(path)
	for _, ct := range db.types {
		for _, suffix := range ct.mime.Suffixes {
			if matchesSuffix(name, suffix) {
				return ct.mime, ct.factory, ct.priority, true
			}
		}
	}
	return MimeType{}, nil, 0, false
}

// TypeByName resolves a registered mime type by its name.
func (db *MimeDatabase) TypeByName(name string) (MimeType, bool) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	for _, ct := range db.types {
		if ct.mime.Name == name {
			return ct.mime, true
		}
	}
	return MimeType{}, false
}

// IDForPath derives the container id from a file name by stripping the
// registered suffix: "fdmprinter.def.json" becomes "fdmprinter".
func (db *MimeDatabase) IDForPath(path string) (string, bool) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	name := filepath.Base(path)
	for _, ct := range db.types {
		for _, suffix := range ct.mime.Suffixes {
			if matchesSuffix(name, suffix) {
				return strings.TrimSuffix(name, "."+suffix), true
			}
		}
	}
	return "", false
}

// Types lists the registered types ordered by loading priority.
func (db *MimeDatabase) Types() []MimeType {
	db.mu.RLock()
	defer db.mu.RUnlock()

	ordered := make([]containerType, len(db.types))
	copy(ordered, db.types)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].priority < ordered[j].priority
	})
	out := make([]MimeType, len(ordered))
	for i, ct := range ordered {
		out[i] = ct.mime
	}
	return out
}

// matchesSuffix reports whether name ends in "."+suffix, so "def.json"
// matches "fdmprinter.def.json" but not "defnotdef.json".
func matchesSuffix(name, suffix string) bool {
	return strings.HasSuffix(name, "."+suffix)
}
