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

func securityGroupSettings(t *testing.T, fixture string) settings.Values {
	t.Helper()
	values := settings.Values{}
	require.NoError(t, yaml.Unmarshal([]byte(dedent.Dedent(fixture)), &values))
	return values
}

func Test_NewSecurityGroup(t *testing.T) {
	assert := assert.New(t)

	values := securityGroupSettings(t, `
		security-group:
		  ingress:
		    - "80": 0.0.0.0/0
		    - "443": ^map Network.Office.CIDR
		    - "9300": security-group
	`)
	network := &Network{VPC: cfn.Ref("Testing")}
	b, err := NewSecurityGroup(testConfig(values, nil), "web-security-group", network, "web")
	require.NoError(t, err)

	assert.False(b.External())
	assert.Equal(cfn.Ref("WebSecurityGroup"), b.GroupRef())

	require.Len(t, b.Resources(), 1)
	raw, err := json.Marshal(b.Resources()[0].Value.(*cfn.Resource).AsMap())
	require.NoError(t, err)
	assert.JSONEq(`{
		"Type": "AWS::EC2::SecurityGroup",
		"Properties": {
			"GroupDescription": "Security Group for the Web service in Testing",
			"SecurityGroupIngress": [
				{"CidrIp": "0.0.0.0/0", "FromPort": 80, "IpProtocol": "tcp", "ToPort": 80},
				{"CidrIp": {"Fn::FindInMap": ["Network", "Office", "CIDR"]},
					"FromPort": 443, "IpProtocol": "tcp", "ToPort": 443}
			],
			"VpcId": {"Ref": "Testing"},
			"Tags": [
				{"Key": "Environment", "Value": "testing"},
				{"Key": "Service", "Value": "web"},
				{"Key": "Name", "Value": "web-security-group"}
			]
		}
	}`, string(raw))

	outputs := b.Outputs()
	require.Len(t, outputs, 1)
	assert.Equal("SecurityGroupId", outputs[0].Name)
}

func Test_NewSecurityGroupExternal(t *testing.T) {
	assert := assert.New(t)

	values := settings.Values{"security-group": "sg-0badcafe"}
	b, err := NewSecurityGroup(testConfig(values, nil), "web-security-group", &Network{}, "web")
	require.NoError(t, err)

	assert.True(b.External())
	assert.Equal("sg-0badcafe", b.GroupRef())
	assert.Empty(b.Resources())
	assert.Empty(b.Outputs())
}

func Test_NewSecurityGroupBadPort(t *testing.T) {
	values := securityGroupSettings(t, `
		security-group:
		  ingress:
		    - not-a-port: 0.0.0.0/0
	`)
	_, err := NewSecurityGroup(testConfig(values, nil), "web-security-group", &Network{}, "web")
	var cfgErr *settings.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
}

func Test_NewSecurityGroupIngress(t *testing.T) {
	assert := assert.New(t)

	values := securityGroupSettings(t, `
		security-group:
		  ingress:
		    - "80": 0.0.0.0/0
		    - 9300-9400: security-group
		    - 54328/udp: security-group
	`)
	b, err := NewSecurityGroupIngress(testConfig(values, nil), "web", "web")
	require.NoError(t, err)

	params := b.Parameters()
	require.Len(t, params, 1)
	assert.Equal("SecurityGroupId", params[0].Name)

	// Only the self-referencing entries become split rules.
	var ids []string
	for _, r := range b.Resources() {
		ids = append(ids, r.Name)
	}
	assert.Equal([]string{"WebTcp93009400", "WebUdp54328"}, ids)

	raw, err := json.Marshal(b.Resources()[0].Value.(*cfn.Resource).AsMap())
	require.NoError(t, err)
	assert.JSONEq(`{
		"Type": "AWS::EC2::SecurityGroupIngress",
		"Properties": {
			"GroupId": {"Ref": "SecurityGroupId"},
			"IpProtocol": "tcp",
			"FromPort": 9300,
			"ToPort": 9400,
			"SourceSecurityGroupId": {"Ref": "SecurityGroupId"}
		}
	}`, string(raw))
}

func Test_NewSecurityGroupIngressRangeAndPort(t *testing.T) {
	assert := assert.New(t)

	// A range and a single port ending on the same port must not collide.
	values := securityGroupSettings(t, `
		security-group:
		  ingress:
		    - 9300-9400: security-group
		    - "9400": security-group
	`)
	b, err := NewSecurityGroupIngress(testConfig(values, nil), "web", "web")
	require.NoError(t, err)

	var ids []string
	for _, r := range b.Resources() {
		ids = append(ids, r.Name)
	}
	assert.Equal([]string{"WebTcp93009400", "WebTcp9400"}, ids)
}
