package cfn

import "fmt"

// Intrinsic reference shapes. Once constructed these are opaque pass-through
// values: builders never attempt to resolve them locally, the provisioning
// API substitutes them at apply time.

// Ref returns a {"Ref": logicalID} reference to a named resource.
func Ref(logicalID string) map[string]any {
	return map[string]any{"Ref": logicalID}
}

// GetAtt returns a {"Fn::GetAtt": [logicalID, attribute]} reference. The
// attribute may be a dotted path such as "Outputs.SecurityGroupId" when the
// target is a nested stack.
func GetAtt(logicalID, attribute string) map[string]any {
	return map[string]any{"Fn::GetAtt": []any{logicalID, attribute}}
}

// FindInMap returns a {"Fn::FindInMap": [mapName, key, subKey]} lookup into
// the template's Mappings section.
func FindInMap(mapName, key, subKey string) map[string]any {
	return map[string]any{"Fn::FindInMap": []any{mapName, key, subKey}}
}

// Join returns a {"Fn::Join": [delimiter, parts]} concatenation.
func Join(delimiter string, parts []any) map[string]any {
	return map[string]any{"Fn::Join": []any{delimiter, parts}}
}

// Base64 wraps a value in {"Fn::Base64": value} so the provider encodes it
// at apply time. User data payloads need this because some of their parts
// (for example another resource's runtime-assigned address) only resolve
// on the provider side.
func Base64(value any) map[string]any {
	return map[string]any{"Fn::Base64": value}
}

// Output is the {"Description", "Value"} document stored under a template's
// Outputs section.
type Output struct {
	Description string `json:"Description"`
	Value       any    `json:"Value"`
}

func (o Output) String() string {
	return fmt.Sprintf("Output(%s)", o.Description)
}
