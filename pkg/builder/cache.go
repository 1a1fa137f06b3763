package builder

import (
	"fmt"

	"github.com/stratusforge/stratus/pkg/cfn"
	"github.com/stratusforge/stratus/pkg/settings"
)

// CacheBuilder assembles an ElastiCache cluster with its subnet group and
// security group. Placement follows the multi-az flag: a single preferred
// zone, or the full zone list of the network.
type CacheBuilder struct {
	Builder
	network *Network
}

func NewCache(cfg *Config, name string, network *Network) (*CacheBuilder, error) {
	fullName := fmt.Sprintf("%s-%s", cfg.Environment, name)
	b := &CacheBuilder{Builder: newBuilder(cfg, fullName), network: network}

	if len(network.Subnets) == 0 {
		return nil, settings.NewConfigurationError("network %q has no subnets", network.Name)
	}

	group, err := NewSecurityGroup(cfg, fullName+"-security-group", network, name)
	if err != nil {
		return nil, err
	}
	if err := b.Merge(&group.Builder); err != nil {
		return nil, err
	}

	subnetGroupID, err := b.addSubnetGroup()
	if err != nil {
		return nil, err
	}
	clusterID, err := b.addCluster(subnetGroupID, group.GroupRef())
	if err != nil {
		return nil, err
	}

	err = b.AddOutput("Address", fmt.Sprintf("The endpoint address for %s", b.FullName()),
		cfn.GetAtt(clusterID, "ConfigurationEndpoint.Address"))
	if err != nil {
		return nil, err
	}
	err = b.AddOutput("Port", fmt.Sprintf("The endpoint port for %s", b.FullName()),
		cfn.GetAtt(clusterID, "ConfigurationEndpoint.Port"))
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (b *CacheBuilder) addSubnetGroup() (string, error) {
	subnets := make([]any, 0, len(b.network.Subnets))
	for _, subnet := range b.network.Subnets {
		subnets = append(subnets, subnet.ID)
	}
	name := b.name + "-subnet-group"
	resource := cfn.NewUntaggedResource("AWS::ElastiCache::SubnetGroup")
	resource.AddProperty("Description", fmt.Sprintf("Subnet Group for %s", name))
	resource.AddProperty("SubnetIds", subnets)
	return b.AddResource(name, resource)
}

func (b *CacheBuilder) addCluster(subnetGroupID string, securityGroup any) (string, error) {
	values := b.cfg.Settings

	resource := cfn.NewResource("AWS::ElastiCache::CacheCluster")
	resource.AddProperty("AutoMinorVersionUpgrade", boolValue(values, "minor-version-upgrade"))
	resource.AddProperty("CacheNodeType", strValue(values, "instance-type"))
	resource.AddProperty("CacheSubnetGroupName", cfn.Ref(subnetGroupID))
	resource.AddProperty("ClusterName", b.name)
	resource.AddProperty("Engine", strValue(values, "engine"))
	resource.AddProperty("EngineVersion", strValue(values, "engine-version"))
	resource.AddProperty("NumCacheNodes", intDefault(values, "instance-count", 1))
	resource.AddProperty("Port", values["port"])
	resource.AddProperty("VpcSecurityGroupIds", []any{securityGroup})

	if boolValue(values, "multi-az") {
		zones := make([]any, 0, len(b.network.Subnets))
		for _, subnet := range b.network.Subnets {
			zones = append(zones, subnet.AvailabilityZone)
		}
		resource.AddProperty("AZMode", "cross-az")
		resource.AddProperty("PreferredAvailabilityZones", zones)
	} else {
		resource.AddProperty("PreferredAvailabilityZone",
			b.network.Subnets[0].AvailabilityZone)
	}

	resource.AddTag("Environment", b.cfg.Environment)
	resource.AddTag("Service", b.name)
	return b.AddResource(b.name, resource)
}
