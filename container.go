package settings

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Container is a single layer in a stack: a definition, an instance
// profile, or a nested stack. RawProperty returns the stored value without
// formula evaluation; computed values come back as *Formula.
type Container interface {
	ID() string
	Name() string
	Metadata() *Metadata
	MetaDataEntry(key, def string) string
	SetMetaDataEntry(key, value string)
	RawProperty(key, property string) (any, bool)
	Serialize() ([]byte, error)
	Deserialize(data []byte) error
}

// Metadata is an insertion-ordered string map. Serialization depends on the
// order entries were first set, so a plain map does not cut it.
type Metadata struct {
	keys   []string
	values map[string]string
}

func NewMetadata() *Metadata {
	return &Metadata{values: map[string]string{}}
}

// Get returns the value for key, or def when the key is missing.
func (m *Metadata) Get(key, def string) string {
	if m == nil {
		return def
	}
	if value, ok := m.values[key]; ok {
		return value
	}
	return def
}

// Has reports whether key is present.
func (m *Metadata) Has(key string) bool {
	if m == nil {
		return false
	}
	_, ok := m.values[key]
	return ok
}

// Set stores value under key, keeping the key's original position when it
// already exists.
func (m *Metadata) Set(key, value string) {
	if m.values == nil {
		m.values = map[string]string{}
	}
	if _, ok := m.values[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.values[key] = value
}

// Delete removes key and its position.
func (m *Metadata) Delete(key string) {
	if m == nil {
		return
	}
	if _, ok := m.values[key]; !ok {
		return
	}
	delete(m.values, key)
	for i, existing := range m.keys {
		if existing == key {
			m.keys = append(m.keys[:i], m.keys[i+1:]...)
			break
		}
	}
}

// Keys returns the keys in insertion order.
func (m *Metadata) Keys() []string {
	if m == nil {
		return nil
	}
	out := make([]string, len(m.keys))
	copy(out, m.keys)
	return out
}

func (m *Metadata) Len() int {
	if m == nil {
		return 0
	}
	return len(m.keys)
}

// Clone returns an independent copy preserving order.
func (m *Metadata) Clone() *Metadata {
	clone := NewMetadata()
	if m == nil {
		return clone
	}
	for _, key := range m.keys {
		clone.Set(key, m.values[key])
	}
	return clone
}

// truthy mirrors the loose boolean interpretation applied to property
// values: nil and empty are false, numbers compare against zero, everything
// else is true.
func truthy(value any) bool {
	switch typed := value.(type) {
	case nil:
		return false
	case bool:
		return typed
	case string:
		return typed != ""
	case int:
		return typed != 0
	case int64:
		return typed != 0
	case float64:
		return typed != 0
	case json.Number:
		parsed, err := typed.Float64()
		return err == nil && parsed != 0
	default:
		return true
	}
}

// positionString normalises a redirection target to its canonical position
// form: integral floats lose their fraction so a formula result of 1.0
// matches the position metadata "1".
func positionString(value any) string {
	switch typed := value.(type) {
	case nil:
		return ""
	case string:
		return typed
	case json.Number:
		return typed.String()
	case int:
		return strconv.Itoa(typed)
	case int64:
		return strconv.FormatInt(typed, 10)
	case float64:
		if typed == float64(int64(typed)) {
			return strconv.FormatInt(int64(typed), 10)
		}
		return strconv.FormatFloat(typed, 'g', -1, 64)
	default:
		return fmt.Sprint(typed)
	}
}
