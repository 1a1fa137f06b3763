package resolve

import (
	"testing"

	"github.com/stratusforge/stratus/pkg/settings"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_ParsePortSpec(t *testing.T) {
	tests := []struct {
		name     string
		value    any
		fallback string
		want     PortSpec
	}{
		{name: "bare int", value: 80,
			want: PortSpec{Protocol: "tcp", FromPort: 80, ToPort: 80}},
		{name: "int with fallback protocol", value: 80, fallback: "ICMP",
			want: PortSpec{Protocol: "icmp", FromPort: 80, ToPort: 80}},
		{name: "json decoded float", value: float64(443),
			want: PortSpec{Protocol: "tcp", FromPort: 443, ToPort: 443}},
		{name: "string port", value: "8080",
			want: PortSpec{Protocol: "tcp", FromPort: 8080, ToPort: 8080}},
		{name: "port with protocol", value: "53/UDP",
			want: PortSpec{Protocol: "udp", FromPort: 53, ToPort: 53}},
		{name: "plain range", value: "1024-65535",
			want: PortSpec{Protocol: "tcp", FromPort: 1024, ToPort: 65535}},
		{name: "range with conflicting protocols", value: "1024/TCP-65535/UDP",
			want: PortSpec{Protocol: "tcp", FromPort: 1024, ToPort: 65535}},
		{name: "range with to-side protocol only", value: "1024-65535/UDP",
			want: PortSpec{Protocol: "udp", FromPort: 1024, ToPort: 65535}},
		{name: "range ignores fallback when explicit", value: "22/tcp-22/tcp", fallback: "udp",
			want: PortSpec{Protocol: "tcp", FromPort: 22, ToPort: 22}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePortSpec(tt.value, tt.fallback)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func Test_ParsePortSpecErrors(t *testing.T) {
	tests := []struct {
		name  string
		value any
	}{
		{name: "not a number", value: "http"},
		{name: "malformed range", value: "80-high"},
		{name: "unsupported type", value: []any{80}},
		{name: "nil", value: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePortSpec(tt.value, "")
			var cfgErr *settings.ConfigurationError
			require.ErrorAs(t, err, &cfgErr)
		})
	}
}
