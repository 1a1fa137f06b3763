// Package resolve turns the symbolic references that appear in
// configuration (^map macros, human-readable names, port specifications)
// into literal values or CloudFormation reference constructs.
package resolve

import (
	"strings"

	"github.com/iancoleman/strcase"
	"github.com/stratusforge/stratus/pkg/cfn"
	"github.com/stratusforge/stratus/pkg/settings"
)

const macroPrefix = "^map "

// LogicalID converts a dash or underscore delimited name into the CamelCase
// logical id used to key resources within a template. It is total: any
// string in, a string out.
func LogicalID(name string) string {
	return strcase.ToCamel(name)
}

// IsMapMacro reports whether a value is a ^map configuration macro.
func IsMapMacro(value any) bool {
	s, ok := value.(string)
	return ok && strings.HasPrefix(s, macroPrefix)
}

// MapMacro resolves a ^map A.B.C macro to the literal value at that path in
// the merged mapping tree. Non-macro values pass through unchanged. The
// macro must split into exactly three dot-separated segments and the path
// must exist.
func MapMacro(value any, mappings settings.Mappings) (any, error) {
	path, ok, err := macroPath(value)
	if err != nil || !ok {
		return value, err
	}
	node := any(mappings)
	for _, segment := range path {
		tree, ok := node.(map[string]any)
		if !ok {
			return nil, settings.NewConfigurationError(
				"map reference %q not found in mappings", strings.Join(path, "."))
		}
		node, ok = tree[segment]
		if !ok {
			return nil, settings.NewConfigurationError(
				"map reference %q not found in mappings", strings.Join(path, "."))
		}
	}
	return node, nil
}

// MapMacroRef resolves a ^map A.B.C macro to a symbolic Fn::FindInMap
// reference, for call sites where the value must stay dynamic until the
// provider applies the template. Non-macro values pass through unchanged.
func MapMacroRef(value any) (any, error) {
	path, ok, err := macroPath(value)
	if err != nil || !ok {
		return value, err
	}
	return cfn.FindInMap(path[0], path[1], path[2]), nil
}

func macroPath(value any) ([]string, bool, error) {
	s, ok := value.(string)
	if !ok || !strings.HasPrefix(s, macroPrefix) {
		return nil, false, nil
	}
	ref := strings.TrimPrefix(s, macroPrefix)
	path := strings.Split(ref, ".")
	if len(path) != 3 {
		return nil, false, settings.NewConfigurationError("invalid map reference: %s", ref)
	}
	return path, true, nil
}
