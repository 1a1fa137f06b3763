package cfn

import (
	"bytes"
	"encoding/json"
	"strings"
)

// FormatVersion is the constant format marker the provisioning API expects
// at the top of every template document.
const FormatVersion = "2010-09-09"

const defaultDescription = "Stratus created Cloud Formation stack"

// Template aggregates the mappings, parameters, outputs and resources
// contributed by one or more builders and serializes them as a template
// document. Section contents keep insertion order; the six top-level keys
// are always present, empty sections serialize as empty objects.
type Template struct {
	name        string
	description string
	mappings    map[string]any
	outputs     *Object
	parameters  *Object
	resources   *Object
}

func NewTemplate(name string) *Template {
	return &Template{
		name:        name,
		description: defaultDescription,
		mappings:    make(map[string]any),
		outputs:     NewObject(),
		parameters:  NewObject(),
		resources:   NewObject(),
	}
}

// Name returns the template name used as the stack name on submission.
func (t *Template) Name() string {
	return t.name
}

func (t *Template) SetDescription(description string) {
	t.description = description
}

// AddResource registers a resource under its logical id. Last write wins at
// the template level; builders are responsible for collision detection
// before resources reach the template.
func (t *Template) AddResource(logicalID string, resource *Resource) {
	t.resources.Set(logicalID, resource)
}

// AddOutput registers a {"Ref": reference} output.
func (t *Template) AddOutput(name, description, reference string) {
	t.outputs.Set(name, Output{Description: description, Value: Ref(reference)})
}

// UpdateMappings merges mapping trees into the template, last write winning
// per top-level key.
func (t *Template) UpdateMappings(mappings map[string]any) {
	for key, value := range mappings {
		t.mappings[key] = value
	}
}

// UpdateOutputs appends named outputs in order.
func (t *Template) UpdateOutputs(outputs []Named) {
	for _, o := range outputs {
		t.outputs.Set(o.Name, o.Value)
	}
}

// UpdateParameters appends named parameter specs in order.
func (t *Template) UpdateParameters(parameters []Named) {
	for _, p := range parameters {
		t.parameters.Set(p.Name, p.Value)
	}
}

// UpdateResources appends resources in order.
func (t *Template) UpdateResources(resources []Named) {
	for _, r := range resources {
		t.resources.Set(r.Name, r.Value)
	}
}

// Named is an ordered (name, value) pair handed from a builder to the
// template. Value is a *Resource for resources, an Output for outputs, or a
// parameter spec document for parameters.
type Named struct {
	Name  string
	Value any
}

// AsJSON serializes the template document indented by the given number of
// spaces. Mappings serialize with sorted keys (encoding/json map behavior);
// outputs, parameters and resources keep insertion order.
func (t *Template) AsJSON(indent int) (string, error) {
	doc := NewObject()
	doc.Set("AWSTemplateFormatVersion", FormatVersion)
	doc.Set("Description", t.description)
	doc.Set("Mappings", t.mappings)
	doc.Set("Outputs", t.outputs)
	doc.Set("Parameters", t.parameters)
	doc.Set("Resources", t.resources)

	raw, err := json.Marshal(doc)
	if err != nil {
		return "", err
	}
	if indent <= 0 {
		return string(raw), nil
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", strings.Repeat(" ", indent)); err != nil {
		return "", err
	}
	return buf.String(), nil
}
