package builder

import (
	"fmt"
	"sort"
	"strings"

	"github.com/stratusforge/stratus/pkg/cfn"
	"github.com/stratusforge/stratus/pkg/resolve"
	"github.com/stratusforge/stratus/pkg/settings"
)

type (
	// Subnet describes one environment subnet for consumption by sibling
	// builders. ID is either a Ref to the subnet's logical id (same-stack
	// composition) or a literal physical id.
	Subnet struct {
		LogicalID        string
		ID               any
		AvailabilityZone string
		CIDR             string
	}

	// Network is the one-directional hand-off from a built network to the
	// service, cache and database builders that place resources in it.
	// Subnets are sorted by availability zone; consumers may rely on
	// index-based selection.
	Network struct {
		Name        string
		Environment string
		VPC         any
		CIDR        string
		Subnets     []Subnet
		Mappings    settings.Mappings
	}

	// NetworkBuilder assembles the environment's network container: VPC,
	// DHCP options, gateway, routing, network ACLs and one subnet per
	// configured zone.
	NetworkBuilder struct {
		Builder
		network    *Network
		vpcName    string
		vpcID      string
		gateway    string
		attachment string
		routeTable string
		acl        string
	}
)

// SubnetByZone returns the subnet in the given availability zone.
func (n *Network) SubnetByZone(zone string) (Subnet, bool) {
	for _, s := range n.Subnets {
		if s.AvailabilityZone == zone {
			return s, true
		}
	}
	return Subnet{}, false
}

// NewNetwork builds the full network unit from flattened environment
// settings.
func NewNetwork(cfg *Config, name string) (*NetworkBuilder, error) {
	b := &NetworkBuilder{Builder: newBuilder(cfg, name)}
	b.vpcName = strings.ReplaceAll(name, "_", "-")
	b.network = &Network{
		Name:        b.vpcName,
		Environment: cfg.Environment,
		CIDR:        strValue(cfg.Settings, "cidr"),
		Mappings:    cfg.Mappings,
	}

	steps := []func() error{
		b.addVPC,
		b.addDHCP,
		b.addGateway,
		b.addRouting,
		b.addNetworkACL,
		b.addSubnets,
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return nil, err
		}
	}

	err := b.AddOutput("VPCId", fmt.Sprintf("VPC ID for %s", b.vpcName), cfn.Ref(b.vpcID))
	if err != nil {
		return nil, err
	}
	return b, nil
}

// Network returns the built network description for sibling builders.
func (b *NetworkBuilder) Network() *Network {
	return b.network
}

func (b *NetworkBuilder) addVPC() error {
	vpc := cfn.NewResource("AWS::EC2::VPC")
	vpc.SetDisplayName(b.vpcName)
	vpc.AddProperty("EnableDnsSupport", boolDefault(b.cfg.Settings, "dns-support", true))
	vpc.AddProperty("EnableDnsHostnames", boolDefault(b.cfg.Settings, "dns-hostnames", false))
	vpc.AddProperty("CidrBlock", strValue(b.cfg.Settings, "cidr"))
	vpc.AddTag("Environment", b.cfg.Environment)

	id, err := b.AddResource(b.vpcName, vpc)
	if err != nil {
		return err
	}
	b.vpcID = id
	b.network.VPC = cfn.Ref(id)
	return nil
}

func (b *NetworkBuilder) addDHCP() error {
	options := mapValueOf(b.cfg.Settings, "dhcp-options")
	dhcp := cfn.NewResource("AWS::EC2::DHCPOptions")
	dhcp.AddProperty("DomainName", options["domain-name"])
	dhcp.AddProperty("DomainNameServers", options["name-servers"])
	dhcp.AddProperty("NtpServers", options["ntp-servers"])
	dhcp.AddTag("Environment", b.cfg.Environment)

	dhcpName := b.vpcName + "-dhcp"
	dhcpID, err := b.AddResource(dhcpName, dhcp)
	if err != nil {
		return err
	}

	assoc := cfn.NewResource("AWS::EC2::VPCDHCPOptionsAssociation")
	assoc.AddProperty("DhcpOptionsId", cfn.Ref(dhcpID))
	assoc.AddProperty("VpcId", cfn.Ref(b.vpcID))
	_, err = b.AddResource(dhcpName+"-assoc", assoc)
	return err
}

func (b *NetworkBuilder) addGateway() error {
	gatewayName := b.vpcName + "-gateway"
	gateway := cfn.NewResource("AWS::EC2::InternetGateway")
	gateway.AddTag("Environment", b.cfg.Environment)
	gatewayID, err := b.AddResource(gatewayName, gateway)
	if err != nil {
		return err
	}
	b.gateway = gatewayID

	attachment := cfn.NewResource("AWS::EC2::VPCGatewayAttachment")
	attachment.AddProperty("InternetGatewayId", cfn.Ref(gatewayID))
	attachment.AddProperty("VpcId", cfn.Ref(b.vpcID))
	attachmentID, err := b.AddResource(gatewayName+"-attachment", attachment)
	if err != nil {
		return err
	}
	b.attachment = attachmentID
	return nil
}

func (b *NetworkBuilder) addRouting() error {
	routeTable := cfn.NewResource("AWS::EC2::RouteTable")
	routeTable.AddProperty("VpcId", cfn.Ref(b.vpcID))
	routeTable.AddTag("Environment", b.cfg.Environment)
	routeTableID, err := b.AddResource(b.vpcName+"-route-table", routeTable)
	if err != nil {
		return err
	}
	b.routeTable = routeTableID

	// The public route CIDR stays symbolic so environment mappings can
	// override it per deployment.
	route := cfn.NewResource("AWS::EC2::Route")
	route.AddProperty("RouteTableId", cfn.Ref(routeTableID))
	route.AddProperty("DestinationCidrBlock", cfn.FindInMap("SubnetConfig", "Public", "CIDR"))
	route.AddProperty("GatewayId", cfn.Ref(b.gateway))
	route.SetDependency(b.attachment)
	_, err = b.AddResource(b.vpcName+"-route", route)
	return err
}

func (b *NetworkBuilder) addNetworkACL() error {
	acl := cfn.NewResource("AWS::EC2::NetworkAcl")
	acl.SetDisplayName(b.vpcName + "-acl")
	acl.AddProperty("VpcId", cfn.Ref(b.vpcID))
	acl.AddTag("Environment", b.cfg.Environment)

	aclName := b.vpcName + "-network-acl"
	aclID, err := b.AddResource(aclName, acl)
	if err != nil {
		return err
	}
	b.acl = aclID

	for index, value := range listValue(b.cfg.Settings, "network-acls") {
		entry, ok := value.(map[string]any)
		if !ok {
			return settings.NewConfigurationError("malformed network ACL entry %d", index)
		}
		resource, err := b.aclEntry(entry)
		if err != nil {
			return err
		}
		if _, err := b.AddResource(fmt.Sprintf("%s%d", aclName, index), resource); err != nil {
			return err
		}
	}
	return nil
}

func (b *NetworkBuilder) aclEntry(entry map[string]any) (*cfn.Resource, error) {
	spec, err := resolve.ParsePortSpec(entry["ports"], "")
	if err != nil {
		return nil, err
	}
	protocol, explicit := intValue(entry["protocol"], 0)
	if !explicit {
		protocol = aclProtocolNumber(spec.Protocol)
	}
	number, _ := intValue(entry["number"], 1)

	resource := cfn.NewUntaggedResource("AWS::EC2::NetworkAclEntry")
	resource.AddProperty("NetworkAclId", cfn.Ref(b.acl))
	resource.AddProperty("CidrBlock", entry["cidr"])
	resource.AddProperty("RuleNumber", number)
	resource.AddProperty("Protocol", protocol)
	resource.AddProperty("RuleAction", entry["action"])
	resource.AddProperty("Egress", entry["egress"])

	portRange := cfn.NewObject()
	portRange.Set("From", spec.FromPort)
	portRange.Set("To", spec.ToPort)
	resource.AddProperty("PortRange", portRange)
	return resource, nil
}

func (b *NetworkBuilder) addSubnets() error {
	subnets := mapValueOf(b.cfg.Settings, "subnets")

	names := make([]string, 0, len(subnets))
	for name := range subnets {
		names = append(names, name)
	}
	// Sorting by zone keeps subnet outputs stable across runs so consumers
	// can select by index.
	sort.Slice(names, func(i, j int) bool {
		zi := subnetZone(subnets, names[i])
		zj := subnetZone(subnets, names[j])
		if zi != zj {
			return zi < zj
		}
		return names[i] < names[j]
	})

	for _, name := range names {
		config, ok := subnets[name].(map[string]any)
		if !ok {
			return settings.NewConfigurationError("malformed subnet config %q", name)
		}
		subnetName := fmt.Sprintf("%s%s-subnet", b.vpcName, name)
		zone := strValue(config, "availability-zone")
		cidr := strValue(config, "cidr")

		subnet := cfn.NewResource("AWS::EC2::Subnet")
		subnet.SetDisplayName(subnetName)
		subnet.AddProperty("AvailabilityZone", zone)
		subnet.AddProperty("CidrBlock", cidr)
		subnet.AddProperty("VpcId", cfn.Ref(b.vpcID))
		subnet.AddTag("Environment", b.cfg.Environment)

		subnetID, err := b.AddResource(subnetName, subnet)
		if err != nil {
			return err
		}

		assoc := cfn.NewResource("AWS::EC2::SubnetRouteTableAssociation")
		assoc.AddProperty("SubnetId", cfn.Ref(subnetID))
		assoc.AddProperty("RouteTableId", cfn.Ref(b.routeTable))
		if _, err := b.AddResource(subnetName+"-assoc", assoc); err != nil {
			return err
		}

		b.network.Subnets = append(b.network.Subnets, Subnet{
			LogicalID:        subnetID,
			ID:               cfn.Ref(subnetID),
			AvailabilityZone: zone,
			CIDR:             cidr,
		})
	}
	return nil
}

// NetworkFromConfig describes an already-provisioned network from
// environment configuration, for builders whose template does not contain
// the network resources themselves. The physical ids come from the
// environment's Network mapping tree (Network.VPC.Id and
// Network.Subnet<Name>.Id); zones and CIDRs come from the subnet settings.
func NetworkFromConfig(cfg *Config, name string) (*Network, error) {
	vpcID, err := resolve.MapMacro("^map Network.VPC.Id", cfg.Mappings)
	if err != nil {
		return nil, err
	}
	network := &Network{
		Name:        strings.ReplaceAll(name, "_", "-"),
		Environment: cfg.Environment,
		VPC:         vpcID,
		CIDR:        strValue(cfg.Settings, "cidr"),
		Mappings:    cfg.Mappings,
	}

	subnets := mapValueOf(cfg.Settings, "subnets")
	names := make([]string, 0, len(subnets))
	for subnetName := range subnets {
		names = append(names, subnetName)
	}
	sort.Slice(names, func(i, j int) bool {
		zi := subnetZone(subnets, names[i])
		zj := subnetZone(subnets, names[j])
		if zi != zj {
			return zi < zj
		}
		return names[i] < names[j]
	})

	for _, subnetName := range names {
		config, ok := subnets[subnetName].(map[string]any)
		if !ok {
			return nil, settings.NewConfigurationError("malformed subnet config %q", subnetName)
		}
		macro := fmt.Sprintf("^map Network.Subnet%s.Id", resolve.LogicalID(subnetName))
		id, err := resolve.MapMacro(macro, cfg.Mappings)
		if err != nil {
			return nil, err
		}
		network.Subnets = append(network.Subnets, Subnet{
			LogicalID:        resolve.LogicalID(fmt.Sprintf("%s%s-subnet", network.Name, subnetName)),
			ID:               id,
			AvailabilityZone: strValue(config, "availability-zone"),
			CIDR:             strValue(config, "cidr"),
		})
	}
	return network, nil
}

func subnetZone(subnets map[string]any, name string) string {
	if config, ok := subnets[name].(map[string]any); ok {
		return strValue(config, "availability-zone")
	}
	return ""
}

func aclProtocolNumber(protocol string) int {
	switch protocol {
	case "icmp":
		return 1
	case "tcp":
		return 6
	case "udp":
		return 17
	default:
		return -1
	}
}
