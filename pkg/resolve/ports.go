package resolve

import (
	"strconv"
	"strings"

	"github.com/stratusforge/stratus/pkg/settings"
)

const defaultProtocol = "tcp"

// PortSpec is a normalized port range plus protocol parsed from a
// configuration port declaration.
type PortSpec struct {
	Protocol string
	FromPort int
	ToPort   int
}

// ParsePortSpec normalizes a port declaration: a bare integer, "port",
// "port/protocol", "from-to" or "from/protocol-to/protocol". The first
// explicit protocol found wins, scanning the from side then the to side,
// falling back to fallbackProtocol, then to "tcp". Protocols are folded to
// lower case.
func ParsePortSpec(value any, fallbackProtocol string) (PortSpec, error) {
	switch v := value.(type) {
	case int:
		return PortSpec{Protocol: orDefault("", fallbackProtocol), FromPort: v, ToPort: v}, nil
	case int64:
		return PortSpec{Protocol: orDefault("", fallbackProtocol), FromPort: int(v), ToPort: int(v)}, nil
	case float64:
		return PortSpec{Protocol: orDefault("", fallbackProtocol), FromPort: int(v), ToPort: int(v)}, nil
	case string:
		return parsePortString(v, fallbackProtocol)
	default:
		return PortSpec{}, settings.NewConfigurationError("invalid port specification: %v", value)
	}
}

func parsePortString(value, fallbackProtocol string) (PortSpec, error) {
	if from, to, ok := strings.Cut(value, "-"); ok {
		fromPort, fromProtocol, err := splitPort(from)
		if err != nil {
			return PortSpec{}, err
		}
		toPort, toProtocol, err := splitPort(to)
		if err != nil {
			return PortSpec{}, err
		}
		protocol := fromProtocol
		if protocol == "" {
			protocol = toProtocol
		}
		return PortSpec{
			Protocol: orDefault(protocol, fallbackProtocol),
			FromPort: fromPort,
			ToPort:   toPort,
		}, nil
	}

	port, protocol, err := splitPort(value)
	if err != nil {
		return PortSpec{}, err
	}
	return PortSpec{
		Protocol: orDefault(protocol, fallbackProtocol),
		FromPort: port,
		ToPort:   port,
	}, nil
}

func splitPort(value string) (int, string, error) {
	port, protocol, _ := strings.Cut(value, "/")
	n, err := strconv.Atoi(strings.TrimSpace(port))
	if err != nil {
		return 0, "", settings.NewConfigurationError("invalid port specification: %s", value)
	}
	return n, strings.ToLower(protocol), nil
}

func orDefault(protocol, fallback string) string {
	if protocol != "" {
		return protocol
	}
	if fallback != "" {
		return strings.ToLower(fallback)
	}
	return defaultProtocol
}
