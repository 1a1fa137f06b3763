package builder

import (
	"fmt"

	"github.com/stratusforge/stratus/pkg/cfn"
	"github.com/stratusforge/stratus/pkg/settings"
)

// DatabaseBuilder assembles an RDS instance with its subnet group and
// security group. Single-AZ databases pin to the network's first zone;
// multi-AZ deployments leave zone selection to the provider.
type DatabaseBuilder struct {
	Builder
	network *Network
}

func NewDatabase(cfg *Config, name string, network *Network) (*DatabaseBuilder, error) {
	fullName := fmt.Sprintf("%s-%s", cfg.Environment, name)
	b := &DatabaseBuilder{Builder: newBuilder(cfg, fullName), network: network}

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
	instanceID, err := b.addInstance(subnetGroupID, group.GroupRef())
	if err != nil {
		return nil, err
	}

	err = b.AddOutput("Address", fmt.Sprintf("The endpoint address for %s", b.FullName()),
		cfn.GetAtt(instanceID, "Endpoint.Address"))
	if err != nil {
		return nil, err
	}
	err = b.AddOutput("Port", fmt.Sprintf("The endpoint port for %s", b.FullName()),
		cfn.GetAtt(instanceID, "Endpoint.Port"))
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (b *DatabaseBuilder) addSubnetGroup() (string, error) {
	subnets := make([]any, 0, len(b.network.Subnets))
	for _, subnet := range b.network.Subnets {
		subnets = append(subnets, subnet.ID)
	}
	name := b.name + "-subnet-group"
	resource := cfn.NewUntaggedResource("AWS::RDS::DBSubnetGroup")
	resource.AddProperty("DBSubnetGroupDescription", fmt.Sprintf("Subnet Group for %s", name))
	resource.AddProperty("SubnetIds", subnets)
	return b.AddResource(name, resource)
}

func (b *DatabaseBuilder) addInstance(subnetGroupID string, securityGroup any) (string, error) {
	values := b.cfg.Settings
	multiAZ := boolValue(values, "multi-az")

	resource := cfn.NewResource("AWS::RDS::DBInstance")
	resource.AddProperty("AllocatedStorage", values["storage-capacity"])
	resource.AddProperty("AutoMinorVersionUpgrade", boolValue(values, "minor-version-upgrade"))
	resource.AddProperty("BackupRetentionPeriod", values["backup-retention"])
	resource.AddProperty("DBName", strValue(values, "dbname"))
	resource.AddProperty("DBInstanceClass", strValue(values, "instance-type"))
	resource.AddProperty("DBInstanceIdentifier", b.name)
	resource.AddProperty("DBSubnetGroupName", cfn.Ref(subnetGroupID))
	resource.AddProperty("Engine", strValue(values, "engine"))
	resource.AddProperty("EngineVersion", strValue(values, "engine-version"))
	resource.AddProperty("Iops", values["iops"])
	resource.AddProperty("MasterUsername", strValue(values, "username"))
	resource.AddProperty("MasterUserPassword", strValue(values, "password"))
	resource.AddProperty("MultiAZ", multiAZ)
	resource.AddProperty("Port", values["port"])
	resource.AddProperty("PubliclyAccessible", boolValue(values, "public"))
	resource.AddProperty("VPCSecurityGroups", []any{securityGroup})
	if !multiAZ {
		zone := strDefault(values, "availability_zone",
			b.network.Subnets[0].AvailabilityZone)
		resource.AddProperty("AvailabilityZone", zone)
	}
	resource.AddAttribute("DeletionPolicy",
		capitalize(strDefault(values, "deletion-policy", "delete")))

	resource.AddTag("Environment", b.cfg.Environment)
	resource.AddTag("Service", b.name)
	return b.AddResource(b.name, resource)
}
