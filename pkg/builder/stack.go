package builder

import (
	"context"
	"errors"

	"github.com/dominikbraun/graph"
	"github.com/mitchellh/mapstructure"
	"github.com/stratusforge/stratus/pkg/cfn"
	"github.com/stratusforge/stratus/pkg/resolve"
	"github.com/stratusforge/stratus/pkg/settings"
)

const defaultWaitTimeout = 3600

type (
	// StackEntry is one declared resource of a composed stack.
	StackEntry struct {
		Type       string
		Name       string
		Dependency string
		Wait       string
		Handle     string
		Count      int
		Timeout    int
	}

	// StackBuilder drives composition of a full stack: it walks the
	// declared resource list in order, instantiates the matching builder
	// per entry and merges every child's resources and outputs, threading
	// dependency and wait-handle references between entries.
	StackBuilder struct {
		Builder
		network *Network
		amis    map[string]map[string]string
		source  SettingsSource
		fetcher Fetcher
		stager  Stager
	}
)

// NewStack builds the composed stack named name. Declared entry types are a
// closed set: service, cache, database, wait-condition and wait-handle.
func NewStack(ctx context.Context, cfg *Config, name string, network *Network,
	amis map[string]map[string]string, source SettingsSource, fetcher Fetcher,
	stager Stager) (*StackBuilder, error) {

	b := &StackBuilder{
		Builder: newBuilder(cfg, name),
		network: network,
		amis:    amis,
		source:  source,
		fetcher: fetcher,
		stager:  stager,
	}

	entries, err := stackEntries(cfg.Settings)
	if err != nil {
		return nil, err
	}
	if err := validateOrdering(entries); err != nil {
		return nil, err
	}
	for _, entry := range entries {
		if err := b.addEntry(ctx, entry); err != nil {
			return nil, err
		}
	}
	return b, nil
}

func (b *StackBuilder) addEntry(ctx context.Context, entry StackEntry) error {
	b.log.Debugf("adding %s %q", entry.Type, entry.Name)
	switch entry.Type {
	case "service":
		return b.addService(ctx, entry)
	case "cache":
		cfg, err := b.childConfig(entry)
		if err != nil {
			return err
		}
		child, err := NewCache(cfg, entry.Name, b.network)
		if err != nil {
			return err
		}
		return b.mergeChild(entry.Name, &child.Builder)
	case "database":
		cfg, err := b.childConfig(entry)
		if err != nil {
			return err
		}
		child, err := NewDatabase(cfg, entry.Name, b.network)
		if err != nil {
			return err
		}
		return b.mergeChild(entry.Name, &child.Builder)
	case "wait-condition":
		return b.addWaitCondition(entry)
	case "wait-handle":
		_, err := b.AddResource(entry.Name,
			cfn.NewUntaggedResource("AWS::CloudFormation::WaitConditionHandle"))
		return err
	default:
		return &UnsupportedResourceType{Type: entry.Type}
	}
}

func (b *StackBuilder) addService(ctx context.Context, entry StackEntry) error {
	cfg, err := b.childConfig(entry)
	if err != nil {
		return err
	}
	var dependency any
	if entry.Dependency != "" {
		dependency = resolve.LogicalID(entry.Dependency)
	}
	var waitHandle string
	if entry.Wait != "" {
		waitHandle = resolve.LogicalID(entry.Wait)
	}
	child, err := NewService(ctx, cfg, entry.Name, b.network, b.amis,
		b.source, b.fetcher, b.stager, dependency, waitHandle)
	if err != nil {
		return err
	}
	return b.mergeChild(entry.Name, &child.Builder)
}

// mergeChild absorbs a child's resources and parameters, re-registering its
// outputs under the child's logical id so sibling entries never collide on
// generic names like SecurityGroupId or Address.
func (b *StackBuilder) mergeChild(name string, child *Builder) error {
	outputs := child.outputs
	child.outputs = nil
	if err := b.Merge(child); err != nil {
		return err
	}
	prefix := resolve.LogicalID(name)
	for _, o := range outputs {
		out := o.Value.(cfn.Output)
		if err := b.AddOutput(prefix+o.Name, out.Description, out.Value); err != nil {
			return err
		}
	}
	return nil
}

// addWaitCondition emits a wait condition either bound to a declared handle
// or carrying a creation policy when no handle is given.
func (b *StackBuilder) addWaitCondition(entry StackEntry) error {
	count := entry.Count
	if count <= 0 {
		count = 1
	}
	timeout := entry.Timeout
	if timeout <= 0 {
		timeout = defaultWaitTimeout
	}

	wait := cfn.NewUntaggedResource("AWS::CloudFormation::WaitCondition")
	if entry.Handle != "" {
		wait.AddProperty("Count", count)
		wait.AddProperty("Handle", cfn.Ref(resolve.LogicalID(entry.Handle)))
		wait.AddProperty("Timeout", timeout)
	} else {
		wait.SetCreationPolicy(count, timeout)
	}
	if entry.Dependency != "" {
		wait.SetDependency(resolve.LogicalID(entry.Dependency))
	}

	id, err := b.AddResource(entry.Name, wait)
	if err != nil {
		return err
	}
	return b.AddOutput(id+"Data", "WaitCondition return data", cfn.GetAtt(id, "Data"))
}

// childConfig loads and flattens the entry's own settings and overlays its
// mapping tree on the stack's.
func (b *StackBuilder) childConfig(entry StackEntry) (*Config, error) {
	values, err := b.source.ResourceSettings(entry.Type, entry.Name)
	if err != nil {
		return nil, err
	}
	mappings, err := b.source.Mappings(entry.Type, entry.Name)
	if err != nil {
		return nil, err
	}
	return &Config{
		Settings:    values,
		Mappings:    settings.MergeMappings(b.cfg.Mappings, mappings),
		Region:      b.cfg.Region,
		Bucket:      b.cfg.Bucket,
		Prefix:      b.cfg.Prefix,
		Profile:     b.cfg.Profile,
		Environment: b.cfg.Environment,
		Service:     entry.Name,
	}, nil
}

func stackEntries(values settings.Values) ([]StackEntry, error) {
	declared, ok := values["resources"].([]any)
	if !ok || len(declared) == 0 {
		return nil, settings.NewConfigurationError("stack declares no resources")
	}
	entries := make([]StackEntry, 0, len(declared))
	for index, raw := range declared {
		var entry StackEntry
		if err := mapstructure.Decode(raw, &entry); err != nil {
			return nil, settings.NewConfigurationError(
				"malformed stack resource %d: %s", index, err)
		}
		if entry.Type == "" || entry.Name == "" {
			return nil, settings.NewConfigurationError(
				"stack resource %d needs both type and name", index)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// validateOrdering checks that dependency and wait references point at
// declared entries and form no cycle.
func validateOrdering(entries []StackEntry) error {
	g := graph.New(graph.StringHash, graph.Directed(), graph.PreventCycles())
	for _, entry := range entries {
		if err := g.AddVertex(entry.Name); err != nil {
			return settings.NewConfigurationError(
				"stack resource %q declared twice", entry.Name)
		}
	}
	for _, entry := range entries {
		for _, ref := range []string{entry.Dependency, entry.Wait, entry.Handle} {
			if ref == "" {
				continue
			}
			err := g.AddEdge(ref, entry.Name)
			switch {
			case errors.Is(err, graph.ErrVertexNotFound):
				return settings.NewConfigurationError(
					"stack resource %q references undeclared %q", entry.Name, ref)
			case errors.Is(err, graph.ErrEdgeCreatesCycle):
				return settings.NewConfigurationError(
					"stack resource %q creates a dependency cycle", entry.Name)
			case errors.Is(err, graph.ErrEdgeAlreadyExists):
			case err != nil:
				return err
			}
		}
	}
	return nil
}
