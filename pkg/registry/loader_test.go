package registry

import (
	"context"
	"strings"
	"testing"

	settings "github.com/goliatone/go-settings-stack"
)

const loaderBaseDefinition = `{
    "version": 2,
    "name": "Omega Base",
    "metadata": {"type": "machine", "author": "acme"},
    "settings": {
        "speed_print": {
            "label": "Print Speed",
            "type": "float",
            "default_value": 60,
            "settable_per_extruder": false
        },
        "machine_extruder_count": {
            "label": "Extruder Count",
            "type": "int",
            "default_value": 2,
            "settable_per_extruder": false
        }
    }
}`

const loaderChildDefinition = `{
    "version": 2,
    "name": "Alpha Printer",
    "inherits": "omega_base",
    "metadata": {"type": "machine"},
    "overrides": {
        "speed_print": {"default_value": 45}
    }
}`

const loaderExtruderDefinition = `{
    "version": 2,
    "name": "Test Extruder",
    "metadata": {"type": "extruder"},
    "settings": {
        "machine_nozzle_size": {
            "label": "Nozzle Diameter",
            "type": "float",
            "default_value": 0.4,
            "settable_per_extruder": true
        }
    }
}`

func newLoaderProvider() *MemoryProvider {
	provider := NewMemoryProvider()
	provider.Put("omega_base", "omega_base.def.json", []byte(loaderBaseDefinition))
	provider.Put("alpha_printer", "alpha_printer.def.json", []byte(loaderChildDefinition))
	provider.Put("fdm_extruder", "fdm_extruder.def.json", []byte(loaderExtruderDefinition))
	provider.Put("printer_1_user", "printer_1_user.inst.cfg",
		[]byte("[general]\nversion = 2\nname = Printer One User\ndefinition = alpha_printer\n\n[metadata]\ntype = user\n"))
	provider.Put("printer_1_e0_user", "printer_1_e0_user.inst.cfg",
		[]byte("[general]\nversion = 2\nname = Extruder User\ndefinition = fdm_extruder\n\n[metadata]\ntype = user\n"))
	provider.Put("printer_1", "printer_1.global.cfg",
		[]byte("[general]\nversion = 3\nname = Printer One\n\n[metadata]\ntype = machine\n\n[containers]\n0 = printer_1_user\n1 = alpha_printer\n"))
	provider.Put("printer_1_e0", "printer_1_e0.extruder.cfg",
		[]byte("[general]\nversion = 3\nname = First Extruder\n\n[metadata]\nposition = 0\nmachine = printer_1\ntype = extruder_train\n\n[containers]\n0 = printer_1_e0_user\n1 = fdm_extruder\n"))
	return provider
}

func TestLoadAllAssemblesTheWholeTree(t *testing.T) {
	ctx := context.Background()
	reg := New()

	results, err := reg.LoadAll(ctx, newLoaderProvider(), nil)
	if err != nil {
		t.Fatalf("load all: %v", err)
	}
	for _, result := range results {
		if result.Err != nil {
			t.Fatalf("load %s: %v", result.ID, result.Err)
		}
	}
	if reg.Len() != 7 {
		t.Fatalf("Len = %d, want 7", reg.Len())
	}

	// The child definition pulled its parent through the chain loader, and
	// both ended up protected from removal.
	child, ok := reg.Definition("alpha_printer")
	if !ok {
		t.Fatalf("child definition missing")
	}
	if !reg.IsReadOnly("alpha_printer") || !reg.IsReadOnly("omega_base") {
		t.Fatalf("definitions should be read only after loading")
	}
	if value, _ := child.RawProperty("speed_print", "value"); value != 45.0 {
		t.Fatalf("inherited override lost: %v", value)
	}
	if value, _ := child.RawProperty("machine_extruder_count", "value"); value != 2.0 {
		t.Fatalf("inherited setting lost: %v", value)
	}
	if reg.IsReadOnly("printer_1_user") {
		t.Fatalf("instances should stay writable")
	}

	machine, ok := reg.Container("printer_1")
	if !ok {
		t.Fatalf("machine stack missing")
	}
	machineStack, ok := machine.(*settings.MachineStack)
	if !ok {
		t.Fatalf("printer_1 is a %T", machine)
	}

	extruder, ok := reg.Container("printer_1_e0")
	if !ok {
		t.Fatalf("extruder stack missing")
	}
	extruderStack, ok := extruder.(*settings.ExtruderStack)
	if !ok {
		t.Fatalf("printer_1_e0 is a %T", extruder)
	}

	// Loading order guarantees the machine was registered before the
	// extruder re-linked to it.
	if extruderStack.NextStack() != machineStack {
		t.Fatalf("extruder did not re-link to its machine")
	}
	if count := len(machineStack.Extruders()); count != 1 {
		t.Fatalf("machine holds %d extruders, want 1", count)
	}

	value, err := extruderStack.Property("speed_print", "value")
	if err != nil {
		t.Fatalf("resolve speed_print: %v", err)
	}
	if value != 45.0 {
		t.Fatalf("speed_print = %v, want 45 (machine-wide)", value)
	}
	value, err = extruderStack.Property("machine_nozzle_size", "value")
	if err != nil {
		t.Fatalf("resolve machine_nozzle_size: %v", err)
	}
	if value != 0.4 {
		t.Fatalf("machine_nozzle_size = %v, want 0.4", value)
	}
}

func TestLoadAllReportsPerItemFailures(t *testing.T) {
	ctx := context.Background()
	provider := newLoaderProvider()
	provider.Put("broken", "broken.def.json", []byte(`{"version": 1, "name": "Too Old"}`))

	reg := New()
	results, err := reg.LoadAll(ctx, provider, nil)
	if err != nil {
		t.Fatalf("load all: %v", err)
	}

	var brokenResult *LoadResult
	for i := range results {
		if results[i].ID == "broken" {
			brokenResult = &results[i]
			break
		}
	}
	if brokenResult == nil {
		t.Fatalf("missing result for the broken payload")
	}
	if brokenResult.Err == nil || !strings.Contains(brokenResult.Err.Error(), `deserialize "broken"`) {
		t.Fatalf("unexpected error: %v", brokenResult.Err)
	}
	if _, ok := reg.Container("broken"); ok {
		t.Fatalf("broken payload must not be registered")
	}
	// The rest of the batch still loaded.
	if _, ok := reg.Container("printer_1"); !ok {
		t.Fatalf("failure aborted the batch")
	}
}

func TestLoadAllRequiresProvider(t *testing.T) {
	if _, err := New().LoadAll(context.Background(), nil, nil); err == nil {
		t.Fatalf("expected error without provider")
	}
}

func TestLoadMetadataUsesCache(t *testing.T) {
	ctx := context.Background()
	inner := NewMemoryProvider()
	inner.Put("omega_base", "omega_base.def.json", []byte(loaderBaseDefinition))
	inner.Put("draft", "draft.inst.cfg",
		[]byte("[general]\nversion = 2\nname = Draft\ndefinition = omega_base\n\n[metadata]\ntype = quality\nquality_type = draft\n"))
	inner.Put("mangled", "mangled.def.json", []byte("not json"))
	provider := &countingProvider{inner: inner, loads: map[string]int{}}

	cache, err := OpenMetadataCache(":memory:")
	if err != nil {
		t.Fatalf("open cache: %v", err)
	}
	defer cache.Close()

	headers, err := LoadMetadata(ctx, provider, nil, cache)
	if err != nil {
		t.Fatalf("load metadata: %v", err)
	}
	if len(headers) != 2 {
		t.Fatalf("expected 2 headers, got %d", len(headers))
	}
	byID := map[string]CachedMetadata{}
	for _, header := range headers {
		byID[header.ID] = header
	}
	if byID["omega_base"].Name != "Omega Base" || byID["omega_base"].Type != "machine" {
		t.Fatalf("definition header = %+v", byID["omega_base"])
	}
	if byID["omega_base"].Metadata["author"] != "acme" {
		t.Fatalf("metadata map = %v", byID["omega_base"].Metadata)
	}
	if byID["draft"].Metadata["quality_type"] != "draft" {
		t.Fatalf("instance header = %+v", byID["draft"])
	}

	// Unchanged payloads skip parsing on the second pass; the mangled one
	// was never cached, so it gets read (and skipped) again.
	headers, err = LoadMetadata(ctx, provider, nil, cache)
	if err != nil {
		t.Fatalf("second load metadata: %v", err)
	}
	if len(headers) != 2 {
		t.Fatalf("expected 2 headers, got %d", len(headers))
	}
	if provider.loads["omega_base"] != 1 || provider.loads["draft"] != 1 {
		t.Fatalf("cached payloads were re-read: %v", provider.loads)
	}
	if provider.loads["mangled"] != 2 {
		t.Fatalf("unparseable payload should be re-read each pass: %v", provider.loads)
	}

	// A rewrite bumps the modification time and invalidates the entry.
	inner.Put("draft", "draft.inst.cfg",
		[]byte("[general]\nversion = 2\nname = Draft Renamed\ndefinition = omega_base\n\n[metadata]\ntype = quality\n"))
	headers, err = LoadMetadata(ctx, provider, nil, cache)
	if err != nil {
		t.Fatalf("third load metadata: %v", err)
	}
	if provider.loads["draft"] != 2 {
		t.Fatalf("stale entry was served from cache: %v", provider.loads)
	}
	for _, header := range headers {
		if header.ID == "draft" && header.Name != "Draft Renamed" {
			t.Fatalf("stale name: %q", header.Name)
		}
	}
}

func TestLoadMetadataWithoutCache(t *testing.T) {
	provider := NewMemoryProvider()
	provider.Put("omega_base", "omega_base.def.json", []byte(loaderBaseDefinition))

	headers, err := LoadMetadata(context.Background(), provider, nil, nil)
	if err != nil {
		t.Fatalf("load metadata: %v", err)
	}
	if len(headers) != 1 || headers[0].Name != "Omega Base" {
		t.Fatalf("headers = %+v", headers)
	}
}

func TestLoadMetadataResolvesInheritance(t *testing.T) {
	inner := NewMemoryProvider()
	inner.Put("omega_base", "omega_base.def.json", []byte(loaderBaseDefinition))
	inner.Put("alpha_printer", "alpha_printer.def.json", []byte(loaderChildDefinition))
	provider := &countingProvider{inner: inner, loads: map[string]int{}}

	headers, err := LoadMetadata(context.Background(), provider, nil, nil)
	if err != nil {
		t.Fatalf("load metadata: %v", err)
	}
	if len(headers) != 2 {
		t.Fatalf("expected 2 headers, got %d: %+v", len(headers), headers)
	}
	byID := map[string]CachedMetadata{}
	for _, header := range headers {
		byID[header.ID] = header
	}
	child := byID["alpha_printer"]
	if child.Name != "Alpha Printer" || child.Type != "machine" {
		t.Fatalf("child header = %+v", child)
	}
	// The author entry only exists on the parent, so its presence proves the
	// inheritance chain was merged during the listing.
	if child.Metadata["author"] != "acme" {
		t.Fatalf("child metadata = %v", child.Metadata)
	}

	// The parent was pulled in through the child's chain and must not be
	// read again for its own listing entry.
	if provider.loads["omega_base"] != 1 || provider.loads["alpha_printer"] != 1 {
		t.Fatalf("payload reads = %v", provider.loads)
	}
}

// countingProvider counts payload reads per id.
type countingProvider struct {
	inner *MemoryProvider
	loads map[string]int
}

func (p *countingProvider) List(ctx context.Context) ([]Meta, error) {
	return p.inner.List(ctx)
}

func (p *countingProvider) Load(ctx context.Context, id string) ([]byte, error) {
	p.loads[id]++
	return p.inner.Load(ctx, id)
}

func (p *countingProvider) Save(ctx context.Context, id string, data []byte) error {
	return p.inner.Save(ctx, id, data)
}
