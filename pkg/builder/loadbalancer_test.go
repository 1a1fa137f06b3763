package builder

import (
	"encoding/json"
	"testing"

	"github.com/stratusforge/stratus/pkg/cfn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_NewLoadBalancer(t *testing.T) {
	assert := assert.New(t)

	elb := map[string]any{
		"port":     443,
		"protocol": "https",
		"check":    "/ping",
		"internal": true,
	}
	b, err := NewLoadBalancer(testConfig(nil, nil), "testing-web-lb", "web", elb,
		[]string{"TestingServiceWeb0"}, cfn.Ref("Web"), []any{"subnet-aaaa"})
	require.NoError(t, err)
	assert.Equal("TestingWebLb", b.ResourceID())

	raw, err := json.Marshal(b.Resources()[0].Value.(*cfn.Resource).AsMap())
	require.NoError(t, err)
	assert.JSONEq(`{
		"Type": "AWS::ElasticLoadBalancing::LoadBalancer",
		"Properties": {
			"CrossZone": true,
			"HealthCheck": {
				"HealthyThreshold": 10,
				"Interval": 30,
				"Target": "HTTPS:443/ping",
				"Timeout": 5,
				"UnhealthyThreshold": 2
			},
			"LoadBalancerName": "testing-web-lb",
			"Instances": [{"Ref": "TestingServiceWeb0"}],
			"Listeners": [{
				"InstancePort": 443,
				"InstanceProtocol": "https",
				"LoadBalancerPort": 443,
				"Protocol": "https"
			}],
			"Scheme": "internal",
			"SecurityGroups": [{"Ref": "Web"}],
			"Subnets": ["subnet-aaaa"],
			"Tags": [
				{"Key": "Environment", "Value": "testing"},
				{"Key": "Service", "Value": "web"}
			]
		}
	}`, string(raw))

	var outputs []string
	for _, o := range b.Outputs() {
		outputs = append(outputs, o.Name)
	}
	assert.Equal([]string{"DNSName", "HostedZoneId"}, outputs)
}

func Test_LoadBalancerListenerList(t *testing.T) {
	assert := assert.New(t)

	elb := map[string]any{
		"listeners": []any{
			map[string]any{"port": 80},
			map[string]any{
				"port":               443,
				"protocol":           "https",
				"instance_port":      8080,
				"instance_protocol":  "http",
				"ssl_certificate_id": "arn:aws:iam::123456789012:server-certificate/www",
			},
		},
	}
	b, err := NewLoadBalancer(testConfig(nil, nil), "testing-web-lb", "web", elb,
		nil, cfn.Ref("Web"), nil)
	require.NoError(t, err)

	raw, err := json.Marshal(b.Resources()[0].Value.(*cfn.Resource).AsMap())
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	listeners := decoded["Properties"].(map[string]any)["Listeners"].([]any)
	require.Len(t, listeners, 2)
	assert.Equal(map[string]any{
		"InstancePort":     float64(80),
		"InstanceProtocol": "http",
		"LoadBalancerPort": float64(80),
		"Protocol":         "http",
	}, listeners[0])
	assert.Equal("arn:aws:iam::123456789012:server-certificate/www",
		listeners[1].(map[string]any)["SSLCertificateId"])
}
