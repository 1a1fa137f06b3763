package builder

import (
	"encoding/json"
	"testing"

	"github.com/lithammer/dedent"
	"github.com/stratusforge/stratus/pkg/cfn"
	"github.com/stratusforge/stratus/pkg/settings"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

const networkFixture = `
	cidr: 192.168.0.0/16
	dns-support: true
	dns-hostnames: true
	dhcp-options:
	  domain-name: testing.example.com
	  name-servers: [AmazonProvidedDNS]
	  ntp-servers: [169.254.169.123]
	network-acls:
	  - ports: 0-65535
	    cidr: 0.0.0.0/0
	    action: allow
	    number: 100
	    egress: false
	subnets:
	  b:
	    availability-zone: us-east-1b
	    cidr: 192.168.2.0/24
	  a:
	    availability-zone: us-east-1a
	    cidr: 192.168.1.0/24
`

func networkSettings(t *testing.T) settings.Values {
	t.Helper()
	values := settings.Values{}
	require.NoError(t, yaml.Unmarshal([]byte(dedent.Dedent(networkFixture)), &values))
	return values
}

func Test_NewNetwork(t *testing.T) {
	assert := assert.New(t)

	cfg := testConfig(networkSettings(t), settings.Mappings{
		"SubnetConfig": map[string]any{"Public": map[string]any{"CIDR": "0.0.0.0/0"}},
	})
	b, err := NewNetwork(cfg, "testing")
	require.NoError(t, err)

	var ids []string
	for _, r := range b.Resources() {
		ids = append(ids, r.Name)
	}
	assert.Equal([]string{
		"Testing",
		"TestingDhcp",
		"TestingDhcpAssoc",
		"TestingGateway",
		"TestingGatewayAttachment",
		"TestingRouteTable",
		"TestingRoute",
		"TestingNetworkAcl",
		"TestingNetworkAcl0",
		"TestingaSubnet",
		"TestingaSubnetAssoc",
		"TestingbSubnet",
		"TestingbSubnetAssoc",
	}, ids)

	outputs := b.Outputs()
	require.Len(t, outputs, 1)
	assert.Equal("VPCId", outputs[0].Name)
	assert.Equal(cfn.Ref("Testing"), outputs[0].Value.(cfn.Output).Value)

	network := b.Network()
	assert.Equal(cfn.Ref("Testing"), network.VPC)
	assert.Equal("192.168.0.0/16", network.CIDR)
	require.Len(t, network.Subnets, 2)
	assert.Equal("us-east-1a", network.Subnets[0].AvailabilityZone)
	assert.Equal("us-east-1b", network.Subnets[1].AvailabilityZone)

	zoned, ok := network.SubnetByZone("us-east-1b")
	require.True(t, ok)
	assert.Equal("TestingbSubnet", zoned.LogicalID)
	_, ok = network.SubnetByZone("eu-west-1a")
	assert.False(ok)
}

func Test_NewNetworkVPCResource(t *testing.T) {
	assert := assert.New(t)

	cfg := testConfig(networkSettings(t), nil)
	b, err := NewNetwork(cfg, "testing")
	require.NoError(t, err)

	vpc := b.Resources()[0].Value.(*cfn.Resource)
	raw, err := json.Marshal(vpc.AsMap())
	require.NoError(t, err)
	assert.JSONEq(`{
		"Type": "AWS::EC2::VPC",
		"Properties": {
			"EnableDnsSupport": true,
			"EnableDnsHostnames": true,
			"CidrBlock": "192.168.0.0/16",
			"Tags": [
				{"Key": "Environment", "Value": "testing"},
				{"Key": "Name", "Value": "testing"}
			]
		}
	}`, string(raw))
}

func Test_NewNetworkACLEntry(t *testing.T) {
	assert := assert.New(t)

	cfg := testConfig(networkSettings(t), nil)
	b, err := NewNetwork(cfg, "testing")
	require.NoError(t, err)

	var entry *cfn.Resource
	for _, r := range b.Resources() {
		if r.Name == "TestingNetworkAcl0" {
			entry = r.Value.(*cfn.Resource)
		}
	}
	require.NotNil(t, entry)

	raw, err := json.Marshal(entry.AsMap())
	require.NoError(t, err)
	assert.JSONEq(`{
		"Type": "AWS::EC2::NetworkAclEntry",
		"Properties": {
			"NetworkAclId": {"Ref": "TestingNetworkAcl"},
			"CidrBlock": "0.0.0.0/0",
			"RuleNumber": 100,
			"Protocol": 6,
			"RuleAction": "allow",
			"PortRange": {"From": 0, "To": 65535}
		}
	}`, string(raw))
}

func Test_NetworkFromConfig(t *testing.T) {
	assert := assert.New(t)

	cfg := testConfig(networkSettings(t), settings.Mappings{
		"Network": map[string]any{
			"VPC":     map[string]any{"Id": "vpc-0123"},
			"SubnetA": map[string]any{"Id": "subnet-aaaa"},
			"SubnetB": map[string]any{"Id": "subnet-bbbb"},
		},
	})

	network, err := NetworkFromConfig(cfg, "testing")
	require.NoError(t, err)
	assert.Equal("vpc-0123", network.VPC)
	require.Len(t, network.Subnets, 2)
	assert.Equal("subnet-aaaa", network.Subnets[0].ID)
	assert.Equal("us-east-1a", network.Subnets[0].AvailabilityZone)
	assert.Equal("subnet-bbbb", network.Subnets[1].ID)
}

func Test_NetworkFromConfigMissingMapping(t *testing.T) {
	cfg := testConfig(networkSettings(t), settings.Mappings{})
	_, err := NetworkFromConfig(cfg, "testing")
	var cfgErr *settings.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
}
