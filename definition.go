package settings

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/goliatone/go-settings-stack/internal/conffile"
)

// definitionFileVersion is the JSON document version this package reads and
// writes.
const definitionFileVersion = 2

// SettingDefinition is one setting's property bag inside a definition:
// presentation fields, the default, the computed-value formulas and the
// per-extruder flags.
type SettingDefinition struct {
	Key                 string
	Category            string
	Label               string
	Description         string
	Type                string
	Unit                string
	DefaultValue        any
	Value               *Formula
	Resolve             *Formula
	Enabled             any
	MinimumValue        any
	MaximumValue        any
	Options             map[string]string
	SettablePerExtruder any
	LimitToExtruder     any
	Children            []string
}

// settingNode is the raw JSON shape of one setting entry.
type settingNode struct {
	Label               string            `json:"label"`
	Description         string            `json:"description"`
	Type                string            `json:"type"`
	Unit                string            `json:"unit"`
	DefaultValue        any               `json:"default_value"`
	Value               any               `json:"value"`
	Resolve             any               `json:"resolve"`
	Enabled             any               `json:"enabled"`
	MinimumValue        any               `json:"minimum_value"`
	MaximumValue        any               `json:"maximum_value"`
	Options             map[string]string `json:"options"`
	SettablePerExtruder any               `json:"settable_per_extruder"`
	LimitToExtruder     any               `json:"limit_to_extruder"`
}

var settingNodeDecoder = conffile.NewDecoder[settingNode]()

// Definition is the read-only bottom layer of a stack: a JSON document with
// file-level inheritance, nested setting categories and per-setting property
// bags. Deserialize flattens the inheritance chain and the children nesting.
type Definition struct {
	id          string
	name        string
	version     int
	metadata    *Metadata
	rawMetadata map[string]any
	settings    map[string]*SettingDefinition
	rawPayload  map[string]any
	loader      DefinitionLoader
}

// NewDefinition constructs an empty definition container. Provide
// WithDefinitionLoader when the serialized form may use "inherits".
func NewDefinition(id string, opts ...Option) *Definition {
	cfg := applyOptions(opts)
	def := &Definition{
		id:       id,
		name:     cfg.name,
		version:  definitionFileVersion,
		metadata: NewMetadata(),
		settings: map[string]*SettingDefinition{},
		loader:   cfg.definitions,
	}
	for _, pair := range cfg.metadata {
		def.SetMetaDataEntry(pair.key, pair.value)
	}
	return def
}

func (d *Definition) ID() string   { return d.id }
func (d *Definition) Name() string { return d.name }

// Version reports the document version of the deserialized payload.
func (d *Definition) Version() int { return d.version }

func (d *Definition) Metadata() *Metadata { return d.metadata }

func (d *Definition) MetaDataEntry(key, def string) string {
	return d.metadata.Get(key, def)
}

func (d *Definition) SetMetaDataEntry(key, value string) {
	d.metadata.Set(key, value)
	if d.rawMetadata == nil {
		d.rawMetadata = map[string]any{}
	}
	d.rawMetadata[key] = value
}

// RawMetadataValue exposes structured metadata values such as the extruder
// train table, which do not fit the flat string form.
func (d *Definition) RawMetadataValue(key string) (any, bool) {
	value, ok := d.rawMetadata[key]
	return value, ok
}

// Setting returns the property bag for key.
func (d *Definition) Setting(key string) (*SettingDefinition, bool) {
	setting, ok := d.settings[key]
	return setting, ok
}

// SettingKeys lists all flattened setting keys sorted alphabetically.
func (d *Definition) SettingKeys() []string {
	keys := make([]string, 0, len(d.settings))
	for key := range d.settings {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// RawProperty returns the stored property for key. The "value" property
// falls back to the default when no formula is set; formulas come back as
// *Formula without evaluation.
func (d *Definition) RawProperty(key, property string) (any, bool) {
	setting, ok := d.settings[key]
	if !ok {
		return nil, false
	}
	var value any
	switch property {
	case "value":
		if setting.Value != nil {
			value = setting.Value
		} else {
			value = setting.DefaultValue
		}
	case "default_value":
		value = setting.DefaultValue
	case "resolve":
		value = setting.Resolve
	case "label":
		value = orNil(setting.Label)
	case "description":
		value = orNil(setting.Description)
	case "type":
		value = orNil(setting.Type)
	case "unit":
		value = orNil(setting.Unit)
	case "enabled":
		value = setting.Enabled
	case "minimum_value":
		value = setting.MinimumValue
	case "maximum_value":
		value = setting.MaximumValue
	case "options":
		if len(setting.Options) > 0 {
			value = setting.Options
		}
	case "settable_per_extruder":
		value = setting.SettablePerExtruder
	case "limit_to_extruder":
		value = setting.LimitToExtruder
	case "children":
		if len(setting.Children) > 0 {
			value = setting.Children
		}
	case "category":
		value = orNil(setting.Category)
	default:
		return nil, false
	}
	if isNil(value) {
		return nil, false
	}
	return value, true
}

// Serialize writes the flattened document: the inheritance chain is already
// merged in, so the output stands alone.
func (d *Definition) Serialize() ([]byte, error) {
	payload := d.rawPayload
	if payload == nil {
		payload = map[string]any{}
	}
	payload["name"] = d.name
	payload["version"] = d.version
	if len(d.rawMetadata) > 0 {
		payload["metadata"] = d.rawMetadata
	}
	data, err := json.MarshalIndent(payload, "", "    ")
	if err != nil {
		return nil, fmt.Errorf("settings: serialize definition %q: %w", d.id, err)
	}
	return data, nil
}

// Deserialize parses a definition document, resolves its inheritance chain
// through the configured loader and flattens nested children into a flat
// key space.
func (d *Definition) Deserialize(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("settings: parse definition %q: %w", d.id, err)
	}

	version, ok := raw["version"].(float64)
	if !ok || int(version) != definitionFileVersion {
		return fmt.Errorf("%w: definition %q version %v", ErrUnsupportedVersion, d.id, raw["version"])
	}

	merged, err := d.resolveInheritance(raw, map[string]bool{d.id: true})
	if err != nil {
		return err
	}
	delete(merged, "inherits")

	d.version = definitionFileVersion
	if name, ok := merged["name"].(string); ok {
		d.name = name
	}

	d.metadata = NewMetadata()
	d.rawMetadata = map[string]any{}
	if metadata, ok := merged["metadata"].(map[string]any); ok {
		d.rawMetadata = metadata
		for _, key := range sortedKeys(metadata) {
			if text, ok := scalarString(metadata[key]); ok {
				d.metadata.Set(key, text)
			}
		}
	}

	flat := map[string]map[string]any{}
	childKeys := map[string][]string{}
	categories := map[string]string{}
	if settings, ok := merged["settings"].(map[string]any); ok {
		flattenSettings(settings, "", flat, childKeys, categories)
	}
	if overrides, ok := merged["overrides"].(map[string]any); ok {
		for _, key := range sortedKeys(overrides) {
			override, ok := overrides[key].(map[string]any)
			if !ok {
				continue
			}
			if base, exists := flat[key]; exists {
				flat[key] = conffile.MergePayloads(base, override)
			} else {
				flat[key] = override
			}
		}
	}

	settings := make(map[string]*SettingDefinition, len(flat))
	for key, node := range flat {
		decoded, err := settingNodeDecoder.Decode(conffile.Context{ID: key, Kind: "setting"}, node)
		if err != nil {
			return fmt.Errorf("settings: definition %q: %w", d.id, err)
		}
		settings[key] = &SettingDefinition{
			Key:                 key,
			Category:            categories[key],
			Label:               decoded.Label,
			Description:         decoded.Description,
			Type:                decoded.Type,
			Unit:                decoded.Unit,
			DefaultValue:        decoded.DefaultValue,
			Value:               formulaFromRaw(decoded.Value),
			Resolve:             formulaFromRaw(decoded.Resolve),
			Enabled:             formulaOrLiteral(decoded.Enabled),
			MinimumValue:        formulaOrLiteral(decoded.MinimumValue),
			MaximumValue:        formulaOrLiteral(decoded.MaximumValue),
			Options:             decoded.Options,
			SettablePerExtruder: decoded.SettablePerExtruder,
			LimitToExtruder:     formulaOrLiteral(decoded.LimitToExtruder),
			Children:            childKeys[key],
		}
	}

	d.settings = settings
	d.rawPayload = merged
	return nil
}

func (d *Definition) resolveInheritance(raw map[string]any, visited map[string]bool) (map[string]any, error) {
	parentID, ok := raw["inherits"].(string)
	if !ok || parentID == "" {
		return raw, nil
	}
	if visited[parentID] {
		return nil, fmt.Errorf("%w: %q revisits %q", ErrCircularInheritance, d.id, parentID)
	}
	visited[parentID] = true
	if d.loader == nil {
		return nil, fmt.Errorf("settings: definition %q inherits %q but no definition loader is configured", d.id, parentID)
	}
	parent, ok := d.loader.Definition(parentID)
	if !ok {
		return nil, fmt.Errorf("%w: inherited definition %q", ErrContainerNotFound, parentID)
	}
	if parent.rawPayload == nil {
		return nil, fmt.Errorf("settings: inherited definition %q has no payload", parentID)
	}
	return conffile.MergePayloads(parent.rawPayload, raw), nil
}

// flattenSettings walks nested category/children trees into a flat node
// map, recording each key's category and parent/child relations on the way.
func flattenSettings(nodes map[string]any, category string, flat map[string]map[string]any, childKeys map[string][]string, categories map[string]string) {
	for _, key := range sortedKeys(nodes) {
		node, ok := nodes[key].(map[string]any)
		if !ok {
			continue
		}
		entry := make(map[string]any, len(node))
		for field, value := range node {
			if field == "children" {
				continue
			}
			entry[field] = value
		}
		nodeCategory := category
		if typeName, _ := node["type"].(string); typeName == "category" {
			nodeCategory = key
		} else {
			categories[key] = category
		}
		flat[key] = entry

		if children, ok := node["children"].(map[string]any); ok {
			keys := sortedKeys(children)
			childKeys[key] = append(childKeys[key], keys...)
			flattenSettings(children, nodeCategory, flat, childKeys, categories)
		}
	}
}

// formulaFromRaw treats any string value as an expression. value/resolve
// entries in definitions never carry literals.
func formulaFromRaw(value any) *Formula {
	text, ok := value.(string)
	if !ok || text == "" {
		return nil
	}
	return NewFormula(text)
}

// formulaOrLiteral wraps strings as formulas and keeps every other literal
// as is. Definition entries like enabled and limit_to_extruder take both
// forms.
func formulaOrLiteral(value any) any {
	if text, ok := value.(string); ok && text != "" {
		return NewFormula(text)
	}
	return value
}

func scalarString(value any) (string, bool) {
	switch typed := value.(type) {
	case string:
		return typed, true
	case bool:
		return fmt.Sprintf("%t", typed), true
	case float64:
		return positionString(typed), true
	default:
		return "", false
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func orNil(text string) any {
	if text == "" {
		return nil
	}
	return text
}

func isNil(value any) bool {
	if value == nil {
		return true
	}
	if formula, ok := value.(*Formula); ok {
		return formula == nil
	}
	return false
}
