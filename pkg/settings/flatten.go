package settings

// Values is a flattened configuration mapping for one resource.
type Values = map[string]any

// Mappings is a three-level mapping tree resolved by ^map macros and the
// template's Mappings section.
type Mappings = map[string]any

// Flatten resolves environment-scoped variants in a configuration tree.
// For every key whose value is a mapping containing a key equal to the
// current environment name, that per-environment value replaces the whole
// mapping and is taken as final. Other mappings are walked recursively, as
// are mapping members of lists; scalars pass through unchanged. Flattening
// an already-flat tree is a no-op.
func Flatten(config map[string]any, environment string) map[string]any {
	out := make(map[string]any, len(config))
	for key, value := range config {
		out[key] = flattenValue(value, environment)
	}
	return out
}

func flattenValue(value any, environment string) any {
	switch v := value.(type) {
	case map[string]any:
		if scoped, ok := v[environment]; ok {
			return scoped
		}
		return Flatten(v, environment)
	case []any:
		out := make([]any, len(v))
		for i, member := range v {
			if m, ok := member.(map[string]any); ok {
				out[i] = Flatten(m, environment)
			} else {
				out[i] = member
			}
		}
		return out
	default:
		return value
	}
}

// MergeMappings deep-merges overlay into base and returns the result.
// Overlay wins on scalar conflicts; mapping/mapping conflicts merge
// recursively; a mapping on one side replaces a non-mapping on the other
// without erroring. Neither input is mutated.
func MergeMappings(base, overlay map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(overlay))
	for key, value := range base {
		out[key] = value
	}
	for key, value := range overlay {
		existing, ok := out[key]
		if !ok {
			out[key] = value
			continue
		}
		existingMap, existingIsMap := existing.(map[string]any)
		valueMap, valueIsMap := value.(map[string]any)
		if existingIsMap && valueIsMap {
			out[key] = MergeMappings(existingMap, valueMap)
		} else {
			out[key] = value
		}
	}
	return out
}
