package resolve

import (
	"testing"

	"github.com/stratusforge/stratus/pkg/settings"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_LogicalID(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "dashes", in: "my-thing", want: "MyThing"},
		{name: "mixed dashes and underscores", in: "my-thing_two", want: "MyThingTwo"},
		{name: "single word", in: "staging", want: "Staging"},
		{name: "already camel", in: "MyThing", want: "MyThing"},
		{name: "empty", in: "", want: ""},
		{name: "trailing dash", in: "web-", want: "Web"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, LogicalID(tt.in))
		})
	}
}

func Test_MapMacro(t *testing.T) {
	mappings := settings.Mappings{
		"Network": map[string]any{
			"Global": map[string]any{"CIDR": "10.0.0.0/8"},
		},
	}

	t.Run("resolves literal", func(t *testing.T) {
		value, err := MapMacro("^map Network.Global.CIDR", mappings)
		require.NoError(t, err)
		assert.Equal(t, "10.0.0.0/8", value)
	})

	t.Run("non-macro passes through", func(t *testing.T) {
		value, err := MapMacro("0.0.0.0/0", mappings)
		require.NoError(t, err)
		assert.Equal(t, "0.0.0.0/0", value)
	})

	t.Run("non-string passes through", func(t *testing.T) {
		value, err := MapMacro(443, mappings)
		require.NoError(t, err)
		assert.Equal(t, 443, value)
	})

	t.Run("two segments is an error", func(t *testing.T) {
		_, err := MapMacro("^map Network.Global", mappings)
		var cfgErr *settings.ConfigurationError
		require.ErrorAs(t, err, &cfgErr)
	})

	t.Run("four segments is an error", func(t *testing.T) {
		_, err := MapMacro("^map A.B.C.D", mappings)
		var cfgErr *settings.ConfigurationError
		require.ErrorAs(t, err, &cfgErr)
	})

	t.Run("missing path is an error", func(t *testing.T) {
		_, err := MapMacro("^map Network.Missing.CIDR", mappings)
		var cfgErr *settings.ConfigurationError
		require.ErrorAs(t, err, &cfgErr)
	})
}

func Test_MapMacroRef(t *testing.T) {
	assert := assert.New(t)

	value, err := MapMacroRef("^map Network.Global.CIDR")
	require.NoError(t, err)
	assert.Equal(map[string]any{"Fn::FindInMap": []any{"Network", "Global", "CIDR"}}, value)

	passthrough, err := MapMacroRef("10.1.0.0/16")
	require.NoError(t, err)
	assert.Equal("10.1.0.0/16", passthrough)
}

func Test_IsMapMacro(t *testing.T) {
	assert := assert.New(t)
	assert.True(IsMapMacro("^map A.B.C"))
	assert.False(IsMapMacro("A.B.C"))
	assert.False(IsMapMacro(42))
}
