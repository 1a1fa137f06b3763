// Package builder assembles CloudFormation resources, parameters and
// outputs for logical infrastructure units: networks, services, caches,
// databases, DNS record sets and composed stacks.
package builder

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/stratusforge/stratus/pkg/cfn"
	"github.com/stratusforge/stratus/pkg/resolve"
	"github.com/stratusforge/stratus/pkg/settings"
	"go.uber.org/zap"
)

type (
	// Config carries the flattened settings and merged mappings one builder
	// works from, plus the run-scoped identity (environment, region, staging
	// bucket) shared by every builder in a run.
	Config struct {
		Settings    settings.Values
		Mappings    settings.Mappings
		Region      string
		Bucket      string
		Prefix      string
		Profile     string
		Environment string
		Service     string
	}

	// Builder is the stateful assembly context for one logical unit. It is
	// single-use: populated synchronously at construction, then either
	// merged into a parent or serialized and staged as a nested template.
	Builder struct {
		cfg        *Config
		name       string
		resources  []cfn.Named
		parameters []cfn.Named
		outputs    []cfn.Named
		seen       map[string]struct{}
		log        *zap.SugaredLogger
	}

	// Stager is the narrow blob-storage surface builders need: staging
	// nested templates and fetching ^s3file user-data content.
	Stager interface {
		Upload(ctx context.Context, key string, content []byte) (string, error)
		Fetch(ctx context.Context, key string) ([]byte, error)
		Delete(ctx context.Context, key string) error
	}

	// Fetcher is the read-only subset of Stager used while rendering
	// user-data payloads.
	Fetcher interface {
		Fetch(ctx context.Context, key string) ([]byte, error)
	}

	// SettingsSource supplies per-resource configuration to composite
	// builders that instantiate children by declared type and name.
	SettingsSource interface {
		ResourceSettings(resourceType, name string) (settings.Values, error)
		Mappings(resourceType, name string) (settings.Mappings, error)
		ReadLocalFile(resourceType, name, filename string) (string, error)
	}
)

// DuplicateResourceError reports two resources, outputs or parameters
// registered under the same derived logical id within one builder. This is
// always a configuration or programming bug, never retried.
type DuplicateResourceError struct {
	Builder   string
	LogicalID string
}

func (e *DuplicateResourceError) Error() string {
	return fmt.Sprintf("builder %q already has a resource with logical id %q",
		e.Builder, e.LogicalID)
}

// UnsupportedResourceType reports a declared stack resource type outside the
// closed set the orchestrator knows how to build.
type UnsupportedResourceType struct {
	Type string
}

func (e *UnsupportedResourceType) Error() string {
	return fmt.Sprintf("unsupported resource type: %s", e.Type)
}

func newBuilder(cfg *Config, name string) Builder {
	return Builder{
		cfg:  cfg,
		name: name,
		seen: make(map[string]struct{}),
		log:  zap.S().Named("builder"),
	}
}

// Name returns the builder's resource name.
func (b *Builder) Name() string {
	return b.name
}

// FullName returns the environment-qualified resource name.
func (b *Builder) FullName() string {
	if b.cfg.Environment == "" {
		return b.name
	}
	return b.cfg.Environment + "-" + b.name
}

// ReferenceID returns the logical id derived from the builder's name.
func (b *Builder) ReferenceID() string {
	return resolve.LogicalID(b.name)
}

// Environment returns the environment this builder assembles for.
func (b *Builder) Environment() string {
	return b.cfg.Environment
}

// AddResource registers a resource under the logical id derived from name
// and returns that id for use in caller-held references.
func (b *Builder) AddResource(name string, resource *cfn.Resource) (string, error) {
	logicalID := resolve.LogicalID(name)
	if _, dup := b.seen[logicalID]; dup {
		return "", &DuplicateResourceError{Builder: b.name, LogicalID: logicalID}
	}
	b.seen[logicalID] = struct{}{}
	b.resources = append(b.resources, cfn.Named{Name: logicalID, Value: resource})
	return logicalID, nil
}

// AddParameter registers a template parameter spec.
func (b *Builder) AddParameter(name string, spec any) error {
	for _, p := range b.parameters {
		if p.Name == name {
			return &DuplicateResourceError{Builder: b.name, LogicalID: name}
		}
	}
	b.parameters = append(b.parameters, cfn.Named{Name: name, Value: spec})
	return nil
}

// AddOutput registers a template output.
func (b *Builder) AddOutput(name, description string, value any) error {
	for _, o := range b.outputs {
		if o.Name == name {
			return &DuplicateResourceError{Builder: b.name, LogicalID: name}
		}
	}
	b.outputs = append(b.outputs, cfn.Named{
		Name:  name,
		Value: cfn.Output{Description: description, Value: value},
	})
	return nil
}

// AddNestedStack synthesizes an AWS::CloudFormation::Stack resource whose
// body is a separately staged template, wiring the given parameters
// (typically Fn::GetAtt reads of a sibling stack's Outputs.*) and an
// optional ordering dependency.
func (b *Builder) AddNestedStack(name, templateURL string, parameters map[string]any,
	notifications []any, timeoutMinutes int, dependency any) (string, error) {

	resource := cfn.NewUntaggedResource("AWS::CloudFormation::Stack")
	resource.AddProperty("NotificationARNs", notifications)
	resource.AddProperty("Parameters", parameters)
	resource.AddProperty("TemplateURL", templateURL)
	if timeoutMinutes > 0 {
		resource.AddProperty("TimeoutInMinutes", timeoutMinutes)
	}
	if dependency != nil {
		resource.SetDependency(dependency)
	}
	return b.AddResource(name, resource)
}

// Resources returns a copy of the (logicalID, resource) pairs in insertion
// order.
func (b *Builder) Resources() []cfn.Named {
	out := make([]cfn.Named, len(b.resources))
	copy(out, b.resources)
	return out
}

// Parameters returns a copy of the named parameter specs.
func (b *Builder) Parameters() []cfn.Named {
	out := make([]cfn.Named, len(b.parameters))
	copy(out, b.parameters)
	return out
}

// Outputs returns a copy of the named outputs.
func (b *Builder) Outputs() []cfn.Named {
	out := make([]cfn.Named, len(b.outputs))
	copy(out, b.outputs)
	return out
}

// Merge absorbs a child builder's resources, outputs and parameters,
// preserving their order and enforcing logical id uniqueness across the
// combined set.
func (b *Builder) Merge(child *Builder) error {
	for _, r := range child.resources {
		if _, dup := b.seen[r.Name]; dup {
			return &DuplicateResourceError{Builder: b.name, LogicalID: r.Name}
		}
		b.seen[r.Name] = struct{}{}
		b.resources = append(b.resources, r)
	}
	for _, o := range child.outputs {
		for _, existing := range b.outputs {
			if existing.Name == o.Name {
				return &DuplicateResourceError{Builder: b.name, LogicalID: o.Name}
			}
		}
		b.outputs = append(b.outputs, o)
	}
	for _, p := range child.parameters {
		if err := b.AddParameter(p.Name, p.Value); err != nil {
			return err
		}
	}
	return nil
}

// Template assembles this builder's contributions into a standalone
// template named after the builder.
func (b *Builder) Template() *cfn.Template {
	t := cfn.NewTemplate(b.ReferenceID())
	t.UpdateMappings(b.cfg.Mappings)
	t.UpdateOutputs(b.Outputs())
	t.UpdateParameters(b.Parameters())
	t.UpdateResources(b.Resources())
	return t
}

// Upload serializes this builder's template and stages it, returning the
// staging key and the presigned retrieval URL for nested-stack wiring.
func (b *Builder) Upload(ctx context.Context, stager Stager) (string, string, error) {
	body, err := b.Template().AsJSON(2)
	if err != nil {
		return "", "", err
	}
	key := uuid.NewString()
	url, err := stager.Upload(ctx, key, []byte(body))
	if err != nil {
		return "", "", err
	}
	return key, url, nil
}

// tagResources applies one tag across every resource this builder holds.
// Untaggable resource kinds ignore tags at serialization.
func (b *Builder) tagResources(name, value string) {
	for _, r := range b.resources {
		r.Value.(*cfn.Resource).AddTag(name, value)
	}
}

// mapValue resolves a ^map macro against the builder's merged mappings,
// returning the literal value. Non-macro values pass through.
func (b *Builder) mapValue(value any) (any, error) {
	return resolve.MapMacro(value, b.cfg.Mappings)
}
