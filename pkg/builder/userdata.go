package builder

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/stratusforge/stratus/pkg/cfn"
	"github.com/stratusforge/stratus/pkg/settings"
)

var (
	// {^instance KEY}, {^map A.B.C} and {^s3file path/to/file} substitution
	// tokens in user-data payloads.
	userDataToken = regexp.MustCompile(`\{\^(instance|map|s3file)\s+([\w./-]+)\}`)

	// Embedded intrinsic fragments such as {"Ref": "WaitHandle"} or
	// {"Fn::GetAtt": ["Db", "Endpoint.Address"]} that must survive as live
	// template objects rather than literal text.
	userDataFragment = regexp.MustCompile(`\{"(?:Ref|Fn::\w+)"[\s:]+(?:".*?"|\[.*?\])\}`)
)

// renderUserData runs the three-stage user-data pipeline: token
// substitution, per-line promotion of embedded intrinsic fragments, and the
// Fn::Base64(Fn::Join) envelope CloudFormation expects for UserData.
func renderUserData(ctx context.Context, content string, tokens map[string]string,
	mappings settings.Mappings, fetcher Fetcher) (any, error) {

	expanded, err := expandTokens(ctx, content, tokens, mappings, fetcher)
	if err != nil {
		return nil, err
	}

	var parts []any
	for _, line := range strings.Split(expanded, "\n") {
		parts = append(parts, promoteFragments(line)...)
	}
	return cfn.Base64(cfn.Join("", parts)), nil
}

func expandTokens(ctx context.Context, content string, tokens map[string]string,
	mappings settings.Mappings, fetcher Fetcher) (string, error) {

	for _, match := range userDataToken.FindAllStringSubmatch(content, -1) {
		token, command, key := match[0], match[1], match[2]
		var value string
		switch command {
		case "instance":
			v, ok := tokens[key]
			if !ok {
				return "", settings.NewConfigurationError(
					"unknown instance value %q in user-data", key)
			}
			value = v
		case "map":
			v, err := mappingString(mappings, key)
			if err != nil {
				return "", err
			}
			value = v
		case "s3file":
			if fetcher == nil {
				return "", settings.NewConfigurationError(
					"user-data references %q but no object store is configured", key)
			}
			body, err := fetcher.Fetch(ctx, key)
			if err != nil {
				return "", err
			}
			value = string(body)
		}
		content = strings.ReplaceAll(content, token, value)
	}
	return content, nil
}

func mappingString(mappings settings.Mappings, path string) (string, error) {
	var value any = map[string]any(mappings)
	for _, key := range strings.Split(path, ".") {
		node, ok := value.(map[string]any)
		if !ok {
			return "", settings.NewConfigurationError(
				"user-data mapping %q not found", path)
		}
		value, ok = node[strings.TrimSpace(key)]
		if !ok {
			return "", settings.NewConfigurationError(
				"user-data mapping %q not found", path)
		}
	}
	s, ok := value.(string)
	if !ok {
		return "", settings.NewConfigurationError(
			"user-data mapping %q is not a string", path)
	}
	return s, nil
}

// promoteFragments splits one line around embedded intrinsic fragments,
// decoding each fragment into a live object. The trailing newline stays
// attached to text but becomes its own part after an object.
func promoteFragments(line string) []any {
	spans := userDataFragment.FindAllStringIndex(line, -1)
	if len(spans) == 0 {
		return []any{line + "\n"}
	}

	var parts []any
	cursor := 0
	for _, span := range spans {
		if span[0] > cursor {
			parts = append(parts, line[cursor:span[0]])
		}
		fragment := line[span[0]:span[1]]
		decoded := map[string]any{}
		if err := json.Unmarshal([]byte(fragment), &decoded); err != nil {
			parts = append(parts, fragment)
		} else {
			parts = append(parts, decoded)
		}
		cursor = span[1]
	}
	if cursor < len(line) {
		parts = append(parts, line[cursor:])
	}

	if text, ok := parts[len(parts)-1].(string); ok {
		parts[len(parts)-1] = text + "\n"
	} else {
		parts = append(parts, "\n")
	}
	return parts
}
