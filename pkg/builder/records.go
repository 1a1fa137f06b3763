package builder

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/stratusforge/stratus/pkg/cfn"
	"github.com/stratusforge/stratus/pkg/settings"
)

const defaultRecordTTL = 300

// RecordSetBuilder assembles DNS record sets in one of three mutually
// exclusive shapes: an alias to another resource (wired through DNSName and
// HostedZoneId parameters), direct resource-record values, or SRV records
// joined from priority/weight/port/target tuples.
type RecordSetBuilder struct {
	Builder
}

func NewRecordSet(cfg *Config, name string) (*RecordSetBuilder, error) {
	b := &RecordSetBuilder{Builder: newBuilder(cfg, name)}

	hostname := strValue(cfg.Settings, "hostname")
	domain := strValue(cfg.Settings, "domain_name")
	if hostname == "" || domain == "" {
		return nil, settings.NewConfigurationError(
			"dns record %q requires hostname and domain_name", name)
	}

	srv := mapValueOf(cfg.Settings, "srv")
	isAlias := boolValue(cfg.Settings, "alias")
	records := listValue(cfg.Settings, "records")

	switch {
	case len(srv) > 0 && isAlias:
		return nil, settings.NewConfigurationError(
			"dns record %q cannot be both an alias and SRV", name)

	case len(srv) > 0:
		values, err := srvRecords(srv, cfg.Settings)
		if err != nil {
			return nil, err
		}
		resource := recordSetResource(domain, hostname, values, nil, "SRV",
			intDefault(cfg.Settings, "ttl", defaultRecordTTL))
		if _, err := b.AddResource("route53-"+hostname+"-srv", resource); err != nil {
			return nil, err
		}

	case isAlias:
		if err := b.AddParameter("DNSName", map[string]any{"Type": "String"}); err != nil {
			return nil, err
		}
		if err := b.AddParameter("HostedZoneId", map[string]any{"Type": "String"}); err != nil {
			return nil, err
		}
		alias := cfn.NewProperty().
			Set("DNSName", cfn.Ref("DNSName")).
			Set("HostedZoneId", cfn.Ref("HostedZoneId")).
			Set("EvaluateTargetHealth", false)
		resource := recordSetResource(domain, hostname, nil, alias, "A", 0)
		if _, err := b.AddResource("route53-"+hostname+"-a", resource); err != nil {
			return nil, err
		}

	case len(records) > 0:
		recordType := strDefault(cfg.Settings, "type", "A")
		resource := recordSetResource(domain, hostname, records, nil, recordType,
			intDefault(cfg.Settings, "ttl", defaultRecordTTL))
		name := fmt.Sprintf("route53-%s-%s", hostname, strings.ToLower(recordType))
		if _, err := b.AddResource(name, resource); err != nil {
			return nil, err
		}

	default:
		return nil, settings.NewConfigurationError(
			"dns record %q needs an alias, records, or an srv block", name)
	}
	return b, nil
}

// srvRecords joins each target with the shared priority/weight/port tuple
// into the space-separated value form SRV records use.
func srvRecords(srv map[string]any, values settings.Values) ([]any, error) {
	targets := listValue(values, "targets")
	if len(targets) == 0 {
		return nil, settings.NewConfigurationError("srv record declares no targets")
	}
	priority := intDefault(srv, "priority", 10)
	weight := intDefault(srv, "weight", 10)
	port := intDefault(srv, "port", 0)
	if port == 0 {
		return nil, settings.NewConfigurationError("srv record requires a port")
	}

	records := make([]any, 0, len(targets))
	for _, target := range targets {
		records = append(records,
			fmt.Sprintf("%d %d %d %v", priority, weight, port, target))
	}
	return records, nil
}

// recordSetResource synthesizes an AWS::Route53::RecordSet. Record sets
// never take tags. An alias target suppresses the TTL.
func recordSetResource(domain, hostname string, records []any, alias *cfn.Property,
	recordType string, ttl int) *cfn.Resource {

	domain = strings.TrimRight(domain, ".") + "."

	resource := cfn.NewUntaggedResource("AWS::Route53::RecordSet")
	resource.AddProperty("AliasTarget", alias)
	resource.AddProperty("HostedZoneName", domain)
	resource.AddProperty("Name", fmt.Sprintf("%s.%s", hostname, domain))
	resource.AddProperty("ResourceRecords", records)
	if alias == nil && ttl > 0 {
		resource.AddProperty("TTL", strconv.Itoa(ttl))
	}
	resource.AddProperty("Type", recordType)
	return resource
}
