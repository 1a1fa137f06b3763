package cfn

type (
	// Resource represents one CloudFormation resource declaration: a typed,
	// ordered set of properties plus tags and top-level attributes. The
	// resource type is fixed at construction; everything else is mutated by
	// the owning builder before the resource is added to a template and
	// never afterwards.
	Resource struct {
		resourceType   string
		properties     *Object
		tags           *Object
		attributes     *Object
		displayName    string
		dependency     any
		creationPolicy *Object
		taggable       bool
	}

	// Property is an embedded value object attached to a resource property,
	// such as one ingress rule or a load balancer health check. It shares
	// the resource pruning rule: nil and empty-collection fields are dropped
	// at serialization time.
	Property struct {
		values *Object
	}
)

// NewResource creates a resource of the given type, e.g. "AWS::EC2::Route".
// The resource accepts tags; use NewUntaggedResource for kinds that do not.
func NewResource(resourceType string) *Resource {
	return &Resource{
		resourceType: resourceType,
		properties:   NewObject(),
		tags:         NewObject(),
		attributes:   NewObject(),
		taggable:     true,
	}
}

// NewUntaggedResource creates a resource whose kind never takes a Tags
// property: ingress rules, nested stacks, wait condition handles, DNS record
// sets and the like.
func NewUntaggedResource(resourceType string) *Resource {
	r := NewResource(resourceType)
	r.taggable = false
	return r
}

// Type returns the immutable resource type identifier.
func (r *Resource) Type() string {
	return r.resourceType
}

// Taggable reports whether this resource kind supports a Tags property.
func (r *Resource) Taggable() bool {
	return r.taggable
}

// AddProperty sets a named property, overwriting any previous value.
func (r *Resource) AddProperty(name string, value any) {
	r.properties.Set(name, value)
}

// AddTag sets a named tag, overwriting any previous value.
func (r *Resource) AddTag(name, value string) {
	r.tags.Set(name, value)
}

// AddAttribute sets a top-level attribute such as DeletionPolicy.
func (r *Resource) AddAttribute(name string, value any) {
	r.attributes.Set(name, value)
}

// SetDisplayName records the human-readable name emitted as a trailing
// {"Key": "Name"} tag entry.
func (r *Resource) SetDisplayName(name string) {
	r.displayName = name
}

// SetDependency records a DependsOn value: either a logical id string or a
// list of them. Later calls overwrite.
func (r *Resource) SetDependency(dependency any) {
	r.dependency = dependency
}

// SetCreationPolicy attaches a ResourceSignal creation policy, used by
// resources that block until an external signal arrives.
func (r *Resource) SetCreationPolicy(signalCount int, timeout int) {
	signal := NewObject()
	signal.Set("Count", signalCount)
	signal.Set("Timeout", timeout)
	policy := NewObject()
	policy.Set("ResourceSignal", signal)
	r.creationPolicy = policy
}

// AsMap renders the resource document: {"Type", "Properties"} plus any
// top-level attributes, DependsOn and CreationPolicy. Properties whose value
// is nil or an empty collection are dropped; if nothing remains the
// Properties key is omitted entirely. When the resource kind is taggable and
// has tags or a display name, a Tags list is appended after the explicit
// properties, with the Name entry last.
func (r *Resource) AsMap() *Object {
	doc := NewObject()
	doc.Set("Type", r.resourceType)

	props := NewObject()
	for _, key := range r.properties.Keys() {
		value, _ := r.properties.Get(key)
		if isEmpty(value) {
			continue
		}
		props.Set(key, value)
	}

	if r.taggable && (r.tags.Len() > 0 || r.displayName != "") {
		props.Set("Tags", r.tagList())
	}

	if props.Len() > 0 {
		doc.Set("Properties", props)
	}
	for _, key := range r.attributes.Keys() {
		value, _ := r.attributes.Get(key)
		doc.Set(key, value)
	}
	if r.dependency != nil {
		doc.Set("DependsOn", r.dependency)
	}
	if r.creationPolicy != nil {
		doc.Set("CreationPolicy", r.creationPolicy)
	}
	return doc
}

func (r *Resource) tagList() []any {
	tags := make([]any, 0, r.tags.Len()+1)
	for _, key := range r.tags.Keys() {
		value, _ := r.tags.Get(key)
		entry := NewObject()
		entry.Set("Key", key)
		entry.Set("Value", value)
		tags = append(tags, entry)
	}
	if r.displayName != "" {
		entry := NewObject()
		entry.Set("Key", "Name")
		entry.Set("Value", r.displayName)
		tags = append(tags, entry)
	}
	return tags
}

func (r *Resource) MarshalJSON() ([]byte, error) {
	return r.AsMap().MarshalJSON()
}

func NewProperty() *Property {
	return &Property{values: NewObject()}
}

// Set stores a field on the property, overwriting any previous value.
func (p *Property) Set(name string, value any) *Property {
	p.values.Set(name, value)
	return p
}

func (p *Property) Len() int {
	return p.values.Len()
}

// AsMap renders the property with nil and empty-collection fields dropped.
func (p *Property) AsMap() *Object {
	out := NewObject()
	for _, key := range p.values.Keys() {
		value, _ := p.values.Get(key)
		if isEmpty(value) {
			continue
		}
		out.Set(key, value)
	}
	return out
}

func (p *Property) MarshalJSON() ([]byte, error) {
	return p.AsMap().MarshalJSON()
}
