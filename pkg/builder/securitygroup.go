package builder

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/stratusforge/stratus/pkg/cfn"
	"github.com/stratusforge/stratus/pkg/resolve"
)

// Ingress sources declared with this token are handled by the companion
// ingress builder: provider self-referencing rules need split resources in
// the nested-stack pattern.
const selfReferenceSource = "security-group"

// ingressEntry is one declared {port-spec: source} ingress pair.
type ingressEntry struct {
	Port   any
	Source string
}

// SecurityGroupBuilder assembles a security group and its ingress rules, or
// passes through an externally managed group id when configuration supplies
// a plain string instead of a structured definition.
type SecurityGroupBuilder struct {
	Builder
	owner    string
	groupRef any
	external bool
}

// NewSecurityGroup builds a security group for owner inside the network.
// When the security-group setting is a string it names a pre-existing
// group: no resource is created and GroupRef returns the string unchanged,
// letting operators point services at externally managed groups.
func NewSecurityGroup(cfg *Config, name string, network *Network, owner string) (*SecurityGroupBuilder, error) {
	b := &SecurityGroupBuilder{
		Builder: newBuilder(cfg, name),
		owner:   owner,
	}

	if external, ok := cfg.Settings["security-group"].(string); ok {
		b.groupRef = external
		b.external = true
		return b, nil
	}

	rules, err := b.ingressRules()
	if err != nil {
		return nil, err
	}

	group := cfn.NewResource("AWS::EC2::SecurityGroup")
	group.SetDisplayName(name)
	group.AddProperty("GroupDescription",
		fmt.Sprintf("Security Group for the %s service in %s",
			capitalize(owner), capitalize(cfg.Environment)))
	group.AddProperty("SecurityGroupIngress", rules)
	group.AddProperty("VpcId", network.VPC)
	group.AddTag("Environment", cfg.Environment)
	group.AddTag("Service", owner)

	groupID, err := b.AddResource(name, group)
	if err != nil {
		return nil, err
	}
	b.groupRef = cfn.Ref(groupID)

	err = b.AddOutput("SecurityGroupId", "The physical ID for the security group", cfn.Ref(groupID))
	if err != nil {
		return nil, err
	}
	return b, nil
}

// GroupRef returns the value downstream resources use to reference this
// group: a literal external id or a Ref to the created resource.
func (b *SecurityGroupBuilder) GroupRef() any {
	return b.groupRef
}

// External reports whether the group is externally managed.
func (b *SecurityGroupBuilder) External() bool {
	return b.external
}

func (b *SecurityGroupBuilder) ingressRules() ([]any, error) {
	var rules []any
	for _, entry := range ingressEntries(b.cfg.Settings) {
		if entry.Source == selfReferenceSource {
			continue
		}
		spec, err := resolve.ParsePortSpec(entry.Port, "")
		if err != nil {
			return nil, err
		}
		cidr, err := resolve.MapMacroRef(entry.Source)
		if err != nil {
			return nil, err
		}
		rule := cfn.NewProperty().
			Set("CidrIp", cidr).
			Set("FromPort", spec.FromPort).
			Set("IpProtocol", spec.Protocol).
			Set("ToPort", spec.ToPort)
		rules = append(rules, rule)
	}
	return rules, nil
}

// SecurityGroupIngressBuilder emits the split self-referencing ingress
// rules for ports whose declared source is the group itself. The group id
// arrives through a template parameter wired by the parent stack.
type SecurityGroupIngressBuilder struct {
	Builder
}

func NewSecurityGroupIngress(cfg *Config, name, owner string) (*SecurityGroupIngressBuilder, error) {
	b := &SecurityGroupIngressBuilder{Builder: newBuilder(cfg, name)}
	if err := b.AddParameter("SecurityGroupId", map[string]any{"Type": "String"}); err != nil {
		return nil, err
	}

	for _, entry := range ingressEntries(cfg.Settings) {
		if entry.Source != selfReferenceSource {
			continue
		}
		spec, err := resolve.ParsePortSpec(entry.Port, "")
		if err != nil {
			return nil, err
		}
		groupID := cfn.Ref("SecurityGroupId")
		rule := cfn.NewUntaggedResource("AWS::EC2::SecurityGroupIngress")
		rule.AddProperty("GroupId", groupID)
		rule.AddProperty("IpProtocol", spec.Protocol)
		rule.AddProperty("FromPort", spec.FromPort)
		rule.AddProperty("ToPort", spec.ToPort)
		rule.AddProperty("SourceSecurityGroupId", groupID)

		if _, err := b.AddResource(ingressRuleName(name, spec), rule); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// ingressRuleName derives a rule's logical name from its port spec. Range
// rules carry both ends so a range and a single port on the same protocol
// and to-port get distinct names.
func ingressRuleName(prefix string, spec resolve.PortSpec) string {
	if spec.FromPort != spec.ToPort {
		return fmt.Sprintf("%s-%s-%d-%d", prefix, spec.Protocol, spec.FromPort, spec.ToPort)
	}
	return fmt.Sprintf("%s-%s-%d", prefix, spec.Protocol, spec.ToPort)
}

// ingressEntries collects the declarative {port-spec: source} pairs from a
// security-group settings block. Integer port keys that survived decoding
// as strings are restored to ints.
func ingressEntries(values map[string]any) []ingressEntry {
	group, _ := values["security-group"].(map[string]any)
	ingress, _ := group["ingress"].([]any)

	var entries []ingressEntry
	for _, row := range ingress {
		pair, ok := row.(map[string]any)
		if !ok {
			continue
		}
		for port, source := range pair {
			src, _ := source.(string)
			entries = append(entries, ingressEntry{Port: portKey(port), Source: src})
		}
	}
	return entries
}

func portKey(key string) any {
	if n, err := strconv.Atoi(key); err == nil {
		return n
	}
	return key
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
