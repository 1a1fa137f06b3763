package builder

import (
	"context"
	"fmt"

	"github.com/stratusforge/stratus/pkg/cfn"
	"github.com/stratusforge/stratus/pkg/resolve"
	"github.com/stratusforge/stratus/pkg/settings"
)

const defaultInstanceType = "t2.small"

// ServiceBuilder assembles a complete service unit: security group,
// instances placed per the configured strategy, optional load balancers and
// DNS records.
type ServiceBuilder struct {
	Builder
	network         *Network
	amis            map[string]map[string]string
	source          SettingsSource
	fetcher         Fetcher
	group           *SecurityGroupBuilder
	dependency      any
	waitHandle      string
	instanceIDs     []string
	instanceSubnets []any
}

// NewService builds the service unit named name inside network. The amis
// table supplies region-scoped image ids; source reads local user-data
// payloads; dependency and waitHandle, when set, thread stack-level
// ordering and wait-condition signaling into the instances.
func NewService(ctx context.Context, cfg *Config, name string, network *Network,
	amis map[string]map[string]string, source SettingsSource, fetcher Fetcher,
	stager Stager, dependency any, waitHandle string) (*ServiceBuilder, error) {

	b := &ServiceBuilder{
		Builder:    newBuilder(cfg, name),
		network:    network,
		amis:       amis,
		source:     source,
		fetcher:    fetcher,
		dependency: dependency,
		waitHandle: waitHandle,
	}

	group, err := NewSecurityGroup(cfg, name, network, name)
	if err != nil {
		return nil, err
	}
	if err := b.Merge(&group.Builder); err != nil {
		return nil, err
	}
	b.group = group

	if err := b.addSelfIngress(ctx, stager); err != nil {
		return nil, err
	}
	if err := b.addInstances(ctx); err != nil {
		return nil, err
	}
	if err := b.addLoadBalancers(); err != nil {
		return nil, err
	}

	b.tagResources("Environment", cfg.Environment)
	b.tagResources("Service", name)

	if records := mapValueOf(cfg.Settings, "route53_resource"); strValue(records, "type") == "A" {
		if err := b.addARecords(records); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// InstanceIDs returns the logical ids of the instances this service built.
func (b *ServiceBuilder) InstanceIDs() []string {
	out := make([]string, len(b.instanceIDs))
	copy(out, b.instanceIDs)
	return out
}

func (b *ServiceBuilder) addInstances(ctx context.Context) error {
	if instances := mapValueOf(b.cfg.Settings, "instances"); len(instances) > 0 {
		return b.addDeclaredInstances(ctx, instances)
	}
	switch strategy := strValue(b.cfg.Settings, "instance-strategy"); strategy {
	case "same-az":
		return b.addSameZoneInstances(ctx)
	case "az-balanced":
		return b.addBalancedInstances(ctx)
	case "":
		return nil
	default:
		return settings.NewConfigurationError("unknown instance-strategy: %s", strategy)
	}
}

// addDeclaredInstances builds one instance per entry of the instances map,
// overlaying each entry's values on the service settings. Placement values
// may be ^map macros resolved to literals.
func (b *ServiceBuilder) addDeclaredInstances(ctx context.Context, instances map[string]any) error {
	for _, name := range sortedKeys(instances) {
		overrides, ok := instances[name].(map[string]any)
		if !ok {
			return settings.NewConfigurationError("malformed instance config %q", name)
		}
		config := make(map[string]any, len(b.cfg.Settings))
		for key, value := range b.cfg.Settings {
			if key != "instances" {
				config[key] = value
			}
		}
		for key, value := range overrides {
			config[key] = value
		}
		for _, key := range []string{"availability_zone", "private_ip"} {
			resolved, err := b.mapValue(config[key])
			if err != nil {
				return err
			}
			config[key] = resolved
		}

		subnet, err := b.placementSubnet(strValue(config, "availability_zone"))
		if err != nil {
			return err
		}
		if err := b.addInstance(ctx, name, subnet, config); err != nil {
			return err
		}
	}
	return nil
}

func (b *ServiceBuilder) addSameZoneInstances(ctx context.Context) error {
	subnet, err := b.placementSubnet(strValue(b.cfg.Settings, "availability_zone"))
	if err != nil {
		return err
	}
	for index := 0; index < intDefault(b.cfg.Settings, "instance-count", 1); index++ {
		name := fmt.Sprintf("%s%d", b.name, index)
		if err := b.addInstance(ctx, name, subnet, b.cfg.Settings); err != nil {
			return err
		}
	}
	return nil
}

func (b *ServiceBuilder) addBalancedInstances(ctx context.Context) error {
	if len(b.network.Subnets) == 0 {
		return settings.NewConfigurationError("network %q has no subnets", b.network.Name)
	}
	for index := 0; index < intDefault(b.cfg.Settings, "instance-count", 1); index++ {
		subnet := b.network.Subnets[index%len(b.network.Subnets)]
		name := fmt.Sprintf("%s%d", b.name, index)
		if err := b.addInstance(ctx, name, subnet, b.cfg.Settings); err != nil {
			return err
		}
	}
	return nil
}

// placementSubnet resolves an availability zone to its subnet. An empty
// zone picks the first subnet, which keeps placement deterministic.
func (b *ServiceBuilder) placementSubnet(zone string) (Subnet, error) {
	if len(b.network.Subnets) == 0 {
		return Subnet{}, settings.NewConfigurationError("network %q has no subnets", b.network.Name)
	}
	if zone == "" {
		return b.network.Subnets[0], nil
	}
	subnet, ok := b.network.SubnetByZone(zone)
	if !ok {
		return Subnet{}, settings.NewConfigurationError(
			"no subnet in availability zone %q", zone)
	}
	return subnet, nil
}

func (b *ServiceBuilder) addInstance(ctx context.Context, name string, subnet Subnet,
	config map[string]any) error {

	fullName := fmt.Sprintf("%s-service-%s", b.cfg.Environment, name)

	ami, err := b.amiID(strValue(config, "ami"))
	if err != nil {
		return err
	}
	userData, err := b.localUserData(strValue(config, "user-data"))
	if err != nil {
		return err
	}

	spec := InstanceSpec{
		Name:          fullName,
		AMI:           ami,
		InstanceType:  strDefault(config, "instance-type", defaultInstanceType),
		StorageSize:   intDefault(config, "storage-capacity", 0),
		PrivateIP:     strValue(config, "private_ip"),
		SecurityGroup: b.group.GroupRef(),
		Subnet:        subnet,
		UserData:      userData,
		Dependency:    b.dependency,
	}
	if b.waitHandle != "" {
		spec.Metadata = map[string]string{"wait_handle": b.waitHandle}
	}

	resource, err := b.instanceResource(ctx, spec, b.fetcher)
	if err != nil {
		return err
	}
	id, err := b.AddResource(fullName, resource)
	if err != nil {
		return err
	}

	err = b.AddOutput(resolve.LogicalID(name+"-private-ip"),
		fmt.Sprintf("Private IP address for %s", fullName), cfn.GetAtt(id, "PrivateIp"))
	if err != nil {
		return err
	}
	err = b.AddOutput(resolve.LogicalID(name+"-public-ip"),
		fmt.Sprintf("Public IP address for %s", fullName), cfn.GetAtt(id, "PublicIp"))
	if err != nil {
		return err
	}

	b.instanceIDs = append(b.instanceIDs, id)
	b.instanceSubnets = append(b.instanceSubnets, subnet.ID)
	return nil
}

func (b *ServiceBuilder) amiID(name string) (string, error) {
	if id, ok := b.amis[b.cfg.Region][name]; ok {
		return id, nil
	}
	return "", settings.NewConfigurationError("AMI %q not found for region %s",
		name, b.cfg.Region)
}

func (b *ServiceBuilder) localUserData(filename string) (string, error) {
	if filename == "" {
		return "", nil
	}
	return b.source.ReadLocalFile("service", b.name, filename)
}

// addSelfIngress handles ingress entries whose source is the group itself.
// With a stager available the rules become a separately staged nested stack
// parameterized on the group id; without one they are added inline.
func (b *ServiceBuilder) addSelfIngress(ctx context.Context, stager Stager) error {
	if b.group.External() {
		return nil
	}
	var ports []any
	for _, entry := range ingressEntries(b.cfg.Settings) {
		if entry.Source == selfReferenceSource {
			ports = append(ports, entry.Port)
		}
	}
	if len(ports) == 0 {
		return nil
	}

	if stager != nil {
		child, err := NewSecurityGroupIngress(b.cfg, b.name+"-ingress", b.name)
		if err != nil {
			return err
		}
		_, url, err := child.Upload(ctx, stager)
		if err != nil {
			return err
		}
		parameters := map[string]any{"SecurityGroupId": b.group.GroupRef()}
		_, err = b.AddNestedStack(b.name+"-ingress", url, parameters, nil, 0, nil)
		return err
	}

	for _, port := range ports {
		spec, err := resolve.ParsePortSpec(port, "")
		if err != nil {
			return err
		}
		rule := cfn.NewUntaggedResource("AWS::EC2::SecurityGroupIngress")
		rule.AddProperty("GroupId", b.group.GroupRef())
		rule.AddProperty("IpProtocol", spec.Protocol)
		rule.AddProperty("FromPort", spec.FromPort)
		rule.AddProperty("ToPort", spec.ToPort)
		rule.AddProperty("SourceSecurityGroupId", b.group.GroupRef())
		if _, err := b.AddResource(ingressRuleName(b.name+"-ingress", spec), rule); err != nil {
			return err
		}
	}
	return nil
}

func (b *ServiceBuilder) addLoadBalancers() error {
	elbs := mapValueOf(b.cfg.Settings, "elb")
	for _, name := range sortedKeys(elbs) {
		config, ok := elbs[name].(map[string]any)
		if !ok {
			return settings.NewConfigurationError("malformed elb config %q", name)
		}
		fullName := fmt.Sprintf("%s-%s", b.cfg.Environment, name)
		lb, err := NewLoadBalancer(b.cfg, fullName, b.name, config,
			b.instanceIDs, b.group.GroupRef(), b.instanceSubnets)
		if err != nil {
			return err
		}
		if err := b.Merge(&lb.Builder); err != nil {
			return err
		}
		if alias := mapValueOf(config, "route53_resource"); len(alias) > 0 {
			if err := b.addAliasRecord(lb.ResourceID(), alias); err != nil {
				return err
			}
		}
	}
	return nil
}

// addAliasRecord points a DNS name at a load balancer through an alias
// target rather than resolved addresses.
func (b *ServiceBuilder) addAliasRecord(elbID string, config map[string]any) error {
	alias := cfn.NewProperty().
		Set("DNSName", cfn.GetAtt(elbID, "DNSName")).
		Set("HostedZoneId", cfn.GetAtt(elbID, "CanonicalHostedZoneNameID")).
		Set("EvaluateTargetHealth", false)
	resource := recordSetResource(strValue(config, "domain_name"),
		strValue(config, "hostname"), nil, alias, "A", 0)
	_, err := b.AddResource("route53-alias-"+strValue(config, "hostname"), resource)
	return err
}

// addARecords publishes every instance's public address under each
// configured hostname.
func (b *ServiceBuilder) addARecords(config map[string]any) error {
	hostnames := listValue(config, "hostnames")
	if len(hostnames) == 0 {
		if hostname := strValue(config, "hostname"); hostname != "" {
			hostnames = []any{hostname}
		}
	}
	for _, entry := range hostnames {
		hostname, _ := entry.(string)
		records := make([]any, 0, len(b.instanceIDs))
		for _, id := range b.instanceIDs {
			records = append(records, cfn.GetAtt(id, "PublicIp"))
		}
		resource := recordSetResource(strValue(config, "domain_name"),
			hostname, records, nil, "A", defaultRecordTTL)
		if _, err := b.AddResource("route53-a-"+hostname, resource); err != nil {
			return err
		}
	}
	return nil
}
