package builder

import (
	"context"
	"testing"

	"github.com/lithammer/dedent"
	"github.com/stratusforge/stratus/pkg/settings"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_RenderUserData(t *testing.T) {
	assert := assert.New(t)

	stager := newFakeStager()
	stager.objects["scripts/bootstrap.sh"] = []byte("echo bootstrapped")

	content := dedent.Dedent(`
		#!/bin/bash
		hostname {^instance name}
		export REGION={^map AWS.Region.Value}
		{^s3file scripts/bootstrap.sh}
	`)
	mappings := settings.Mappings{
		"AWS": map[string]any{"Region": map[string]any{"Value": "us-east-1"}},
	}
	tokens := map[string]string{"name": "testing-service-web"}

	rendered, err := renderUserData(context.Background(), content, tokens, mappings, stager)
	require.NoError(t, err)

	envelope := rendered.(map[string]any)
	join := envelope["Fn::Base64"].(map[string]any)["Fn::Join"].([]any)
	assert.Equal("", join[0])
	assert.Equal([]any{
		"\n",
		"#!/bin/bash\n",
		"hostname testing-service-web\n",
		"export REGION=us-east-1\n",
		"echo bootstrapped\n",
		"\n",
	}, join[1])
}

func Test_RenderUserDataFragments(t *testing.T) {
	assert := assert.New(t)

	content := `cfn-signal '{"Ref": "WaitHandle"}'` + "\n" +
		`db={"Fn::GetAtt": ["Db", "Endpoint.Address"]} port=5432`

	rendered, err := renderUserData(context.Background(), content, nil, nil, nil)
	require.NoError(t, err)

	parts := rendered.(map[string]any)["Fn::Base64"].(map[string]any)["Fn::Join"].([]any)[1].([]any)
	assert.Equal([]any{
		"cfn-signal '",
		map[string]any{"Ref": "WaitHandle"},
		"'\n",
		"db=",
		map[string]any{"Fn::GetAtt": []any{"Db", "Endpoint.Address"}},
		" port=5432\n",
	}, parts)
}

func Test_RenderUserDataFragmentEndsLine(t *testing.T) {
	assert := assert.New(t)

	rendered, err := renderUserData(context.Background(),
		`handle={"Ref": "WaitHandle"}`, nil, nil, nil)
	require.NoError(t, err)

	parts := rendered.(map[string]any)["Fn::Base64"].(map[string]any)["Fn::Join"].([]any)[1].([]any)
	// The newline becomes its own part when a fragment closes the line.
	assert.Equal([]any{
		"handle=",
		map[string]any{"Ref": "WaitHandle"},
		"\n",
	}, parts)
}

func Test_RenderUserDataErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "unknown instance key", content: "{^instance nope}"},
		{name: "missing mapping", content: "{^map A.B.C}"},
		{name: "s3file without a store", content: "{^s3file scripts/x.sh}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := renderUserData(context.Background(), tt.content,
				map[string]string{"name": "x"}, settings.Mappings{}, nil)
			var cfgErr *settings.ConfigurationError
			require.ErrorAs(t, err, &cfgErr)
		})
	}
}
