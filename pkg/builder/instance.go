package builder

import (
	"context"
	"fmt"

	"github.com/stratusforge/stratus/pkg/cfn"
)

const defaultStorageSize = 20

// InstanceSpec carries everything needed to synthesize one EC2 instance:
// placement, image, sizing and the raw user-data payload before rendering.
type InstanceSpec struct {
	Name          string
	AMI           string
	InstanceType  string
	StorageSize   int
	PrivateIP     string
	SecurityGroup any
	Subnet        Subnet
	UserData      string
	Dependency    any

	// Metadata adds caller-defined {^instance KEY} substitution values,
	// such as a wait-condition handle id threaded in by the orchestrator.
	Metadata map[string]string
}

// InstanceBuilder assembles a standalone EC2 instance unit with the
// standard identity and address outputs, for use as its own nested stack.
type InstanceBuilder struct {
	Builder
	resourceID string
}

// NewInstance builds an instance from spec, rendering its user-data through
// the token and fragment pipeline.
func NewInstance(ctx context.Context, cfg *Config, spec InstanceSpec, fetcher Fetcher) (*InstanceBuilder, error) {
	b := &InstanceBuilder{Builder: newBuilder(cfg, spec.Name)}

	resource, err := b.instanceResource(ctx, spec, fetcher)
	if err != nil {
		return nil, err
	}
	id, err := b.AddResource(spec.Name, resource)
	if err != nil {
		return nil, err
	}
	b.resourceID = id

	outputs := []struct {
		name        string
		description string
		value       any
	}{
		{"InstanceId", "The logical ID for %s", cfn.Ref(id)},
		{"PrivateIP", "Private IP address for %s", cfn.GetAtt(id, "PrivateIp")},
		{"PublicIP", "Public IP address for %s", cfn.GetAtt(id, "PublicIp")},
		{"PrivateDnsName", "Private DNS for %s", cfn.GetAtt(id, "PrivateDnsName")},
		{"PublicDnsName", "Public DNS for %s", cfn.GetAtt(id, "PublicDnsName")},
	}
	for _, o := range outputs {
		if err := b.AddOutput(o.name, fmt.Sprintf(o.description, b.FullName()), o.value); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// ResourceID returns the instance's logical id.
func (b *InstanceBuilder) ResourceID() string {
	return b.resourceID
}

// instanceResource synthesizes the AWS::EC2::Instance resource shared by
// the standalone instance unit and the service builder.
func (b *Builder) instanceResource(ctx context.Context, spec InstanceSpec, fetcher Fetcher) (*cfn.Resource, error) {
	userData, err := b.renderInstanceUserData(ctx, spec, fetcher)
	if err != nil {
		return nil, err
	}

	nic := cfn.NewProperty().
		Set("AssociatePublicIpAddress", true).
		Set("DeviceIndex", "0").
		Set("GroupSet", []any{spec.SecurityGroup}).
		Set("SubnetId", spec.Subnet.ID)
	if spec.PrivateIP != "" {
		nic.Set("PrivateIpAddress", spec.PrivateIP)
	}

	size := spec.StorageSize
	if size <= 0 {
		size = defaultStorageSize
	}
	volume := cfn.NewProperty().
		Set("DeviceName", "/dev/xvda").
		Set("Ebs", map[string]any{"VolumeType": "gp2", "VolumeSize": size})

	resource := cfn.NewResource("AWS::EC2::Instance")
	resource.SetDisplayName(spec.Name)
	resource.AddProperty("AvailabilityZone", spec.Subnet.AvailabilityZone)
	resource.AddProperty("BlockDeviceMappings", []any{volume})
	resource.AddProperty("DisableApiTermination", false)
	resource.AddProperty("EbsOptimized", false)
	resource.AddProperty("ImageId", spec.AMI)
	resource.AddProperty("InstanceInitiatedShutdownBehavior", "stop")
	resource.AddProperty("InstanceType", spec.InstanceType)
	resource.AddProperty("KeyName", cfn.FindInMap("AWS", "KeyName", "Value"))
	resource.AddProperty("Monitoring", false)
	resource.AddProperty("NetworkInterfaces", []any{nic})
	resource.AddProperty("UserData", userData)
	if spec.Dependency != nil {
		resource.SetDependency(spec.Dependency)
	}
	return resource, nil
}

func (b *Builder) renderInstanceUserData(ctx context.Context, spec InstanceSpec, fetcher Fetcher) (any, error) {
	if spec.UserData == "" {
		return nil, nil
	}
	tokens := map[string]string{
		"name":              spec.Name,
		"ami":               spec.AMI,
		"availability_zone": spec.Subnet.AvailabilityZone,
		"instance_type":     spec.InstanceType,
		"private_ip":        spec.PrivateIP,
		"environment":       b.cfg.Environment,
		"region":            b.cfg.Region,
		"service":           b.cfg.Service,
		"ref_id":            b.ReferenceID(),
	}
	for key, value := range spec.Metadata {
		tokens[key] = value
	}
	return renderUserData(ctx, spec.UserData, tokens, b.cfg.Mappings, fetcher)
}
