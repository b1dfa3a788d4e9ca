package conffile

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"

	"gopkg.in/ini.v1"
)

// KV is a single ordered key/value pair from an INI section.
type KV struct {
	Key   string
	Value string
}

// StackPayload is the parsed form of a serialized container stack: the
// [general] header, ordered [metadata] entries, and the [containers] layer
// list with index 0 as the strongest layer.
type StackPayload struct {
	Version      int
	Name         string
	ID           string
	Metadata     []KV
	ContainerIDs []string
}

// InstancePayload is the parsed form of a serialized instance container.
// Values keep file order; a value starting with "=" is a formula and is
// passed through verbatim.
type InstancePayload struct {
	Version    int
	Name       string
	Definition string
	Metadata   []KV
	Values     []KV
}

// loadOptions keeps formula values intact: inline ";" or "#" must not be
// treated as comments inside expressions.
var loadOptions = ini.LoadOptions{IgnoreInlineComment: true}

// ParseStack decodes a stack file.
func ParseStack(data []byte) (StackPayload, error) {
	file, err := ini.LoadSources(loadOptions, data)
	if err != nil {
		return StackPayload{}, fmt.Errorf("conffile: parse stack: %w", err)
	}

	general, err := file.GetSection("general")
	if err != nil {
		return StackPayload{}, fmt.Errorf("conffile: stack is missing the [general] section")
	}

	payload := StackPayload{
		Name: general.Key("name").String(),
		ID:   general.Key("id").String(),
	}
	payload.Version, err = general.Key("version").Int()
	if err != nil {
		return StackPayload{}, fmt.Errorf("conffile: stack version: %w", err)
	}

	payload.Metadata = sectionPairs(file, "metadata")

	if containers, err := file.GetSection("containers"); err == nil {
		payload.ContainerIDs, err = orderedContainerIDs(containers)
		if err != nil {
			return StackPayload{}, err
		}
	}

	return payload, nil
}

// WriteStack encodes a stack payload back to its file form.
func WriteStack(payload StackPayload) ([]byte, error) {
	file := ini.Empty(loadOptions)

	general, err := file.NewSection("general")
	if err != nil {
		return nil, fmt.Errorf("conffile: write stack: %w", err)
	}
	general.NewKey("version", strconv.Itoa(payload.Version))
	general.NewKey("name", payload.Name)
	if payload.ID != "" {
		general.NewKey("id", payload.ID)
	}

	if err := writePairs(file, "metadata", payload.Metadata); err != nil {
		return nil, err
	}

	containers, err := file.NewSection("containers")
	if err != nil {
		return nil, fmt.Errorf("conffile: write stack: %w", err)
	}
	for index, id := range payload.ContainerIDs {
		containers.NewKey(strconv.Itoa(index), id)
	}

	var buf bytes.Buffer
	if _, err := file.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("conffile: write stack: %w", err)
	}
	return buf.Bytes(), nil
}

// ParseInstance decodes an instance container file.
func ParseInstance(data []byte) (InstancePayload, error) {
	file, err := ini.LoadSources(loadOptions, data)
	if err != nil {
		return InstancePayload{}, fmt.Errorf("conffile: parse instance: %w", err)
	}

	general, err := file.GetSection("general")
	if err != nil {
		return InstancePayload{}, fmt.Errorf("conffile: instance is missing the [general] section")
	}

	payload := InstancePayload{
		Name:       general.Key("name").String(),
		Definition: general.Key("definition").String(),
	}
	payload.Version, err = general.Key("version").Int()
	if err != nil {
		return InstancePayload{}, fmt.Errorf("conffile: instance version: %w", err)
	}

	payload.Metadata = sectionPairs(file, "metadata")
	payload.Values = sectionPairs(file, "values")

	return payload, nil
}

// WriteInstance encodes an instance payload back to its file form.
func WriteInstance(payload InstancePayload) ([]byte, error) {
	file := ini.Empty(loadOptions)

	general, err := file.NewSection("general")
	if err != nil {
		return nil, fmt.Errorf("conffile: write instance: %w", err)
	}
	general.NewKey("version", strconv.Itoa(payload.Version))
	general.NewKey("name", payload.Name)
	if payload.Definition != "" {
		general.NewKey("definition", payload.Definition)
	}

	if err := writePairs(file, "metadata", payload.Metadata); err != nil {
		return nil, err
	}
	if err := writePairs(file, "values", payload.Values); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if _, err := file.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("conffile: write instance: %w", err)
	}
	return buf.Bytes(), nil
}

func sectionPairs(file *ini.File, name string) []KV {
	section, err := file.GetSection(name)
	if err != nil {
		return nil
	}
	keys := section.Keys()
	pairs := make([]KV, 0, len(keys))
	for _, key := range keys {
		pairs = append(pairs, KV{Key: key.Name(), Value: key.Value()})
	}
	return pairs
}

func writePairs(file *ini.File, name string, pairs []KV) error {
	if len(pairs) == 0 {
		return nil
	}
	section, err := file.NewSection(name)
	if err != nil {
		return fmt.Errorf("conffile: write section %q: %w", name, err)
	}
	for _, pair := range pairs {
		section.NewKey(pair.Key, pair.Value)
	}
	return nil
}

func orderedContainerIDs(section *ini.Section) ([]string, error) {
	type entry struct {
		index int
		id    string
	}
	keys := section.Keys()
	entries := make([]entry, 0, len(keys))
	for _, key := range keys {
		index, err := strconv.Atoi(key.Name())
		if err != nil {
			return nil, fmt.Errorf("conffile: container index %q is not numeric", key.Name())
		}
		entries = append(entries, entry{index: index, id: key.Value()})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].index < entries[j].index })

	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.id)
	}
	return ids, nil
}
