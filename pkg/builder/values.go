package builder

import (
	"sort"

	"github.com/stratusforge/stratus/pkg/settings"
)

// Typed accessors over flattened settings. Configuration files may arrive
// from YAML, JSON or TOML decoders, so numbers show up as int, int64 or
// float64 depending on the source format.

func strValue(values settings.Values, key string) string {
	s, _ := values[key].(string)
	return s
}

func strDefault(values settings.Values, key, fallback string) string {
	if s, ok := values[key].(string); ok && s != "" {
		return s
	}
	return fallback
}

func boolValue(values settings.Values, key string) bool {
	b, _ := values[key].(bool)
	return b
}

func boolDefault(values settings.Values, key string, fallback bool) bool {
	if b, ok := values[key].(bool); ok {
		return b
	}
	return fallback
}

func intDefault(values settings.Values, key string, fallback int) int {
	switch v := values[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return fallback
	}
}

func intValue(value any, fallback int) (int, bool) {
	switch v := value.(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return fallback, false
	}
}

func mapValueOf(values settings.Values, key string) map[string]any {
	m, _ := values[key].(map[string]any)
	return m
}

func listValue(values settings.Values, key string) []any {
	l, _ := values[key].([]any)
	return l
}

// sortedKeys keeps iteration over settings maps deterministic.
func sortedKeys(values map[string]any) []string {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
