package conffile

// MergePayloads overlays child on top of parent and returns a fresh map.
// Nested maps merge recursively with child values winning; any other value
// kind is replaced wholesale. Neither input is mutated.
func MergePayloads(parent, child map[string]any) map[string]any {
	out := make(map[string]any, len(parent)+len(child))
	for key, value := range parent {
		out[key] = copyValue(value)
	}
	for key, value := range child {
		base, ok := out[key]
		if !ok {
			out[key] = copyValue(value)
			continue
		}
		baseMap, baseIsMap := base.(map[string]any)
		childMap, childIsMap := value.(map[string]any)
		if baseIsMap && childIsMap {
			out[key] = MergePayloads(baseMap, childMap)
			continue
		}
		out[key] = copyValue(value)
	}
	return out
}

func copyValue(value any) any {
	switch typed := value.(type) {
	case map[string]any:
		return MergePayloads(nil, typed)
	case []any:
		out := make([]any, len(typed))
		for i, item := range typed {
			out[i] = copyValue(item)
		}
		return out
	default:
		return value
	}
}
