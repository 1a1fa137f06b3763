package builder

import (
	"fmt"
	"strings"

	"github.com/stratusforge/stratus/pkg/cfn"
)

const (
	defaultListenerPort     = 80
	defaultListenerProtocol = "http"
)

// LoadBalancerBuilder assembles a classic load balancer fronting a
// service's instances: listeners, health check and the DNS outputs the
// record-set builders alias against.
type LoadBalancerBuilder struct {
	Builder
	resourceID string
}

// NewLoadBalancer builds a load balancer named name over the given instance
// logical ids. The elb settings map supplies listeners and health-check
// tuning; a single listener may be declared inline or several under a
// "listeners" list.
func NewLoadBalancer(cfg *Config, name, service string, elb map[string]any,
	instanceIDs []string, securityGroup any, subnets []any) (*LoadBalancerBuilder, error) {

	b := &LoadBalancerBuilder{Builder: newBuilder(cfg, name)}

	instances := make([]any, 0, len(instanceIDs))
	for _, id := range instanceIDs {
		instances = append(instances, cfn.Ref(id))
	}

	scheme := "internet-facing"
	if boolValue(elb, "internal") {
		scheme = "internal"
	}

	resource := cfn.NewResource("AWS::ElasticLoadBalancing::LoadBalancer")
	resource.AddProperty("CrossZone", true)
	resource.AddProperty("HealthCheck", healthCheck(elb))
	resource.AddProperty("LoadBalancerName", name)
	resource.AddProperty("Instances", instances)
	resource.AddProperty("Listeners", listeners(elb))
	resource.AddProperty("Scheme", scheme)
	resource.AddProperty("SecurityGroups", []any{securityGroup})
	resource.AddProperty("Subnets", subnets)
	resource.AddTag("Environment", cfg.Environment)
	resource.AddTag("Service", service)

	id, err := b.AddResource(name, resource)
	if err != nil {
		return nil, err
	}
	b.resourceID = id

	err = b.AddOutput("DNSName", fmt.Sprintf("The DNSName for %s", b.FullName()),
		cfn.GetAtt(id, "DNSName"))
	if err != nil {
		return nil, err
	}
	err = b.AddOutput("HostedZoneId", fmt.Sprintf("The HostedZoneId for %s", b.FullName()),
		cfn.GetAtt(id, "CanonicalHostedZoneNameID"))
	if err != nil {
		return nil, err
	}
	return b, nil
}

// ResourceID returns the load balancer's logical id.
func (b *LoadBalancerBuilder) ResourceID() string {
	return b.resourceID
}

func listeners(elb map[string]any) []any {
	declared := listValue(elb, "listeners")
	if len(declared) == 0 {
		return []any{listener(elb)}
	}
	out := make([]any, 0, len(declared))
	for _, entry := range declared {
		config, _ := entry.(map[string]any)
		out = append(out, listener(config))
	}
	return out
}

func listener(config map[string]any) *cfn.Property {
	port := intDefault(config, "port", defaultListenerPort)
	protocol := strDefault(config, "protocol", defaultListenerProtocol)
	instancePort := intDefault(config, "instance_port", port)
	instanceProtocol := strDefault(config, "instance_protocol", protocol)

	p := cfn.NewProperty().
		Set("InstancePort", instancePort).
		Set("InstanceProtocol", instanceProtocol).
		Set("LoadBalancerPort", port).
		Set("Protocol", protocol)
	if cert := strValue(config, "ssl_certificate_id"); cert != "" {
		p.Set("SSLCertificateId", cert)
	}
	return p
}

// healthCheck derives the ping target from the instance-side listener
// settings: PROTOCOL:PORT plus an optional path for HTTP-style checks.
func healthCheck(elb map[string]any) *cfn.Property {
	protocol := strDefault(elb, "instance_protocol", strDefault(elb, "protocol", defaultListenerProtocol))
	port := intDefault(elb, "instance_port", intDefault(elb, "port", defaultListenerPort))
	target := fmt.Sprintf("%s:%d%s", strings.ToUpper(protocol), port, strValue(elb, "check"))

	return cfn.NewProperty().
		Set("HealthyThreshold", intDefault(elb, "healthy", 10)).
		Set("Interval", intDefault(elb, "interval", 30)).
		Set("Target", target).
		Set("Timeout", intDefault(elb, "timeout", 5)).
		Set("UnhealthyThreshold", intDefault(elb, "unhealthy", 2))
}
