package settings

// SettingDescriptor summarises one setting of a definition for listings and
// exports.
type SettingDescriptor struct {
	Key                 string `json:"key" yaml:"key"`
	Label               string `json:"label,omitempty" yaml:"label,omitempty"`
	Type                string `json:"type,omitempty" yaml:"type,omitempty"`
	Unit                string `json:"unit,omitempty" yaml:"unit,omitempty"`
	Category            string `json:"category,omitempty" yaml:"category,omitempty"`
	Default             any    `json:"default,omitempty" yaml:"default,omitempty"`
	SettablePerExtruder bool   `json:"settable_per_extruder" yaml:"settable_per_extruder"`
	Computed            bool   `json:"computed" yaml:"computed"`
}

// Catalog derives a descriptor for every setting of def, sorted by key.
func Catalog(def *Definition) []SettingDescriptor {
	if def == nil {
		return nil
	}
	keys := def.SettingKeys()
	descriptors := make([]SettingDescriptor, 0, len(keys))
	for _, key := range keys {
		setting, ok := def.Setting(key)
		if !ok {
			continue
		}
		descriptors = append(descriptors, describeSetting(key, setting))
	}
	return descriptors
}

func describeSetting(key string, setting *SettingDefinition) SettingDescriptor {
	return SettingDescriptor{
		Key:                 key,
		Label:               setting.Label,
		Type:                setting.Type,
		Unit:                setting.Unit,
		Category:            setting.Category,
		Default:             setting.DefaultValue,
		SettablePerExtruder: truthy(setting.SettablePerExtruder),
		Computed:            setting.Value != nil || setting.Resolve != nil,
	}
}
