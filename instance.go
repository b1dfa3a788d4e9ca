package settings

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/goliatone/go-settings-stack/internal/conffile"
	"github.com/goliatone/go-settings-stack/pkg/events"
)

// instanceFileVersion is the INI profile version this package reads and
// writes.
const instanceFileVersion = 2

// Instance is a mutable profile layer: user changes, quality, material or
// variant settings. Values keep their file order; a "=expr" value is stored
// as a *Formula.
type Instance struct {
	id           string
	name         string
	version      int
	definitionID string
	metadata     *Metadata
	values       map[string]any
	valueOrder   []string
	hooks        events.Hooks
}

// NewInstance constructs an empty instance container.
func NewInstance(id string, opts ...Option) *Instance {
	cfg := applyOptions(opts)
	inst := &Instance{
		id:       id,
		name:     cfg.name,
		version:  instanceFileVersion,
		metadata: NewMetadata(),
		values:   map[string]any{},
		hooks:    cfg.eventHooks,
	}
	for _, pair := range cfg.metadata {
		inst.metadata.Set(pair.key, pair.value)
	}
	return inst
}

func (i *Instance) ID() string   { return i.id }
func (i *Instance) Name() string { return i.name }

// Version reports the profile version of the deserialized payload.
func (i *Instance) Version() int { return i.version }

// DefinitionID names the definition this profile was written against.
func (i *Instance) DefinitionID() string { return i.definitionID }

func (i *Instance) Metadata() *Metadata { return i.metadata }

func (i *Instance) MetaDataEntry(key, def string) string {
	return i.metadata.Get(key, def)
}

func (i *Instance) SetMetaDataEntry(key, value string) {
	i.metadata.Set(key, value)
}

// RawProperty returns the stored value for key. Instance layers only hold
// the "value" property; everything else is absent.
func (i *Instance) RawProperty(key, property string) (any, bool) {
	if property != "value" {
		return nil, false
	}
	value, ok := i.values[key]
	return value, ok
}

// SetProperty stores value under key and notifies the configured hooks.
// Only the "value" property is settable on an instance layer.
func (i *Instance) SetProperty(key, property string, value any) error {
	if property != "value" {
		return fmt.Errorf("settings: instance %q cannot set property %q", i.id, property)
	}
	if _, exists := i.values[key]; !exists {
		i.valueOrder = append(i.valueOrder, key)
	}
	i.values[key] = value
	if len(i.hooks) > 0 {
		event := events.BuildSettingChangedEvent(events.SettingChangedInput{
			ContainerID: i.id,
			Key:         key,
		})
		i.hooks.Notify(context.Background(), event)
	}
	return nil
}

// RemoveValue drops key from the layer.
func (i *Instance) RemoveValue(key string) {
	if _, exists := i.values[key]; !exists {
		return
	}
	delete(i.values, key)
	for index, existing := range i.valueOrder {
		if existing == key {
			i.valueOrder = append(i.valueOrder[:index], i.valueOrder[index+1:]...)
			break
		}
	}
}

// Keys lists stored value keys in insertion order.
func (i *Instance) Keys() []string {
	out := make([]string, len(i.valueOrder))
	copy(out, i.valueOrder)
	return out
}

// Serialize writes the INI profile form.
func (i *Instance) Serialize() ([]byte, error) {
	payload := conffile.InstancePayload{
		Version:    i.version,
		Name:       i.name,
		Definition: i.definitionID,
	}
	for _, key := range i.metadata.Keys() {
		payload.Metadata = append(payload.Metadata, conffile.KV{Key: key, Value: i.metadata.Get(key, "")})
	}
	for _, key := range i.valueOrder {
		payload.Values = append(payload.Values, conffile.KV{Key: key, Value: formatValue(i.values[key])})
	}
	data, err := conffile.WriteInstance(payload)
	if err != nil {
		return nil, fmt.Errorf("settings: serialize instance %q: %w", i.id, err)
	}
	return data, nil
}

// Deserialize parses the INI profile form.
func (i *Instance) Deserialize(data []byte) error {
	payload, err := conffile.ParseInstance(data)
	if err != nil {
		return fmt.Errorf("settings: instance %q: %w", i.id, err)
	}
	if payload.Version != instanceFileVersion {
		return fmt.Errorf("%w: instance %q version %d", ErrUnsupportedVersion, i.id, payload.Version)
	}

	i.version = payload.Version
	i.name = payload.Name
	i.definitionID = payload.Definition
	i.metadata = NewMetadata()
	for _, pair := range payload.Metadata {
		i.metadata.Set(pair.Key, pair.Value)
	}
	i.values = make(map[string]any, len(payload.Values))
	i.valueOrder = i.valueOrder[:0]
	for _, pair := range payload.Values {
		if formula := ParseFormula(pair.Value); formula != nil {
			i.values[pair.Key] = formula
		} else {
			i.values[pair.Key] = parseLiteral(pair.Value)
		}
		i.valueOrder = append(i.valueOrder, pair.Key)
	}
	return nil
}

// SetDefinitionID records the definition this profile belongs to.
func (i *Instance) SetDefinitionID(id string) {
	i.definitionID = id
}

// parseLiteral types a stored INI value: booleans and numbers convert, the
// rest stays a string.
func parseLiteral(raw string) any {
	trimmed := strings.TrimSpace(raw)
	if strings.EqualFold(trimmed, "true") {
		return true
	}
	if strings.EqualFold(trimmed, "false") {
		return false
	}
	if number, err := strconv.ParseFloat(trimmed, 64); err == nil {
		return number
	}
	return raw
}

// formatValue renders a typed value back to its INI form.
func formatValue(value any) string {
	switch typed := value.(type) {
	case nil:
		return ""
	case *Formula:
		return typed.String()
	case bool:
		if typed {
			return "True"
		}
		return "False"
	case string:
		return typed
	default:
		return positionString(typed)
	}
}
