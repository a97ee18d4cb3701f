package wizard

// DeepMerge returns a new map holding base overlaid with patch. Nested objects
// merge recursively; scalars and arrays from patch replace those in base.
// Neither input is modified.
func DeepMerge(base, patch map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(patch))
	for k, v := range base {
		out[k] = deepCopy(v)
	}
	for k, v := range patch {
		existing, hasExisting := out[k].(map[string]any)
		incoming, isObject := v.(map[string]any)
		if hasExisting && isObject {
			out[k] = DeepMerge(existing, incoming)
			continue
		}
		out[k] = deepCopy(v)
	}
	return out
}

func deepCopy(v any) any {
	switch val := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(val))
		for k, inner := range val {
			m[k] = deepCopy(inner)
		}
		return m
	case []any:
		s := make([]any, len(val))
		for i, inner := range val {
			s[i] = deepCopy(inner)
		}
		return s
	default:
		return val
	}
}
