package settings

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Folder layout inside a configuration directory. Environments and services
// get a folder per name holding a type-named settings file plus optional
// local files (mappings overrides, user-data payloads); the remaining kinds
// are flat folders keyed by resource name.
var resourceFolders = map[string]string{
	"cache":       "cache",
	"database":    "database",
	"dns":         "dns",
	"environment": "environments",
	"service":     "services",
	"stack":       "stacks",
}

var extensions = []string{"yaml", "yml", "json", "toml"}

// Dir loads resource configuration from a conventional directory layout and
// resolves environment overlays. It is the only component that touches
// configuration files; builders receive fully-flattened values.
type Dir struct {
	base        string
	environment string
	log         *zap.SugaredLogger
}

func NewDir(base, environment string) *Dir {
	return &Dir{
		base:        base,
		environment: environment,
		log:         zap.S().Named("settings"),
	}
}

func (d *Dir) Environment() string {
	return d.environment
}

// ResourceSettings returns the flattened settings for one resource. A
// missing settings file is a ConfigurationError: every declared resource
// must be backed by configuration.
func (d *Dir) ResourceSettings(resourceType, name string) (Values, error) {
	folder, ok := resourceFolders[resourceType]
	if !ok {
		return nil, NewConfigurationError("unknown resource type %q", resourceType)
	}
	var path string
	switch resourceType {
	case "environment", "service":
		path = d.findFile(filepath.Join(d.base, folder, name), resourceType)
	default:
		path = d.findFile(filepath.Join(d.base, folder), name)
	}
	if path == "" {
		return nil, NewConfigurationError("no %s configuration found for %q in %s",
			resourceType, name, d.base)
	}
	raw, err := loadFile(path)
	if err != nil {
		return nil, err
	}
	d.log.Debugf("loaded configuration from %s", path)
	return Flatten(raw, d.environment), nil
}

// Mappings returns the merged mapping tree for a resource: global mappings,
// overlaid with the environment's, overlaid with the resource's own. Absent
// files contribute nothing.
func (d *Dir) Mappings(resourceType, name string) (Mappings, error) {
	merged, err := d.optionalFile(d.base, "mappings")
	if err != nil {
		return nil, err
	}
	if resourceType != "environment" && d.environment != "" {
		envDir := filepath.Join(d.base, resourceFolders["environment"], d.environment)
		envMappings, err := d.optionalFile(envDir, "mappings")
		if err != nil {
			return nil, err
		}
		merged = MergeMappings(merged, envMappings)
	}
	local, err := d.optionalFile(d.ResourceFolder(resourceType, name), "mappings")
	if err != nil {
		return nil, err
	}
	return MergeMappings(merged, local), nil
}

// AMIs returns the global AMI table keyed by region then logical name.
func (d *Dir) AMIs() (map[string]map[string]string, error) {
	raw, err := d.optionalFile(d.base, "amis")
	if err != nil {
		return nil, err
	}
	out := make(map[string]map[string]string, len(raw))
	for region, names := range raw {
		table, ok := names.(map[string]any)
		if !ok {
			return nil, NewConfigurationError("malformed AMI table for region %q", region)
		}
		out[region] = make(map[string]string, len(table))
		for logical, id := range table {
			s, ok := id.(string)
			if !ok {
				return nil, NewConfigurationError("malformed AMI id for %s/%s", region, logical)
			}
			out[region][logical] = s
		}
	}
	return out, nil
}

// ResourceFolder returns the directory holding a resource's local files.
func (d *Dir) ResourceFolder(resourceType, name string) string {
	folder := resourceFolders[resourceType]
	switch resourceType {
	case "environment", "service":
		return filepath.Join(d.base, folder, name)
	default:
		return filepath.Join(d.base, folder)
	}
}

// ReadLocalFile reads a file, such as a user-data payload, from a resource's
// configuration folder.
func (d *Dir) ReadLocalFile(resourceType, name, filename string) (string, error) {
	content, err := os.ReadFile(filepath.Join(d.ResourceFolder(resourceType, name), filename))
	if err != nil {
		return "", err
	}
	return string(content), nil
}

func (d *Dir) optionalFile(dir, stem string) (map[string]any, error) {
	path := d.findFile(dir, stem)
	if path == "" {
		d.log.Debugf("configuration file not found: %s", filepath.Join(dir, stem))
		return map[string]any{}, nil
	}
	return loadFile(path)
}

func (d *Dir) findFile(dir, stem string) string {
	for _, ext := range extensions {
		path := filepath.Join(dir, stem+"."+ext)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

func loadFile(path string) (map[string]any, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close() // nolint:errcheck

	out := map[string]any{}
	switch filepath.Ext(path) {
	case ".json":
		err = json.NewDecoder(f).Decode(&out)
	case ".toml":
		err = toml.NewDecoder(f).Decode(&out)
	default:
		err = yaml.NewDecoder(f).Decode(&out)
	}
	if err != nil {
		return nil, err
	}
	return normalize(out).(map[string]any), nil
}

// normalize rewrites decoder-specific container types into map[string]any
// and []any so the overlay and macro code see one shape regardless of the
// source format.
func normalize(value any) any {
	switch v := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, member := range v {
			out[key] = normalize(member)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(v))
		for key, member := range v {
			out[fmt.Sprint(key)] = normalize(member)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, member := range v {
			out[i] = normalize(member)
		}
		return out
	default:
		return value
	}
}
