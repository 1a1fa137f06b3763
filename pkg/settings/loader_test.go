package settings

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/lithammer/dedent"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, base, relative, content string) {
	t.Helper()
	path := filepath.Join(base, relative)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(dedent.Dedent(content)), 0o644))
}

func Test_DirResourceSettings(t *testing.T) {
	base := t.TempDir()
	writeConfig(t, base, "services/web/service.yaml", `
		instance-type:
		  staging: t2.small
		  production: m4.large
		security-group:
		  ingress:
		    - 80: 0.0.0.0/0
	`)
	d := NewDir(base, "staging")

	values, err := d.ResourceSettings("service", "web")
	require.NoError(t, err)
	assert.Equal(t, "t2.small", values["instance-type"])

	// Integer YAML keys come back as strings.
	ingress := values["security-group"].(map[string]any)["ingress"].([]any)
	assert.Equal(t, map[string]any{"80": "0.0.0.0/0"}, ingress[0])
}

func Test_DirResourceSettingsFormats(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{name: "json", file: "database/shared.json",
			content: `{"engine": "postgres"}`},
		{name: "toml", file: "database/shared.toml",
			content: `engine = "postgres"`},
		{name: "yml", file: "database/shared.yml",
			content: `engine: postgres`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert := assert.New(t)
			base := t.TempDir()
			writeConfig(t, base, tt.file, tt.content)

			values, err := NewDir(base, "staging").ResourceSettings("database", "shared")
			require.NoError(t, err)
			assert.Equal("postgres", values["engine"])
		})
	}
}

func Test_DirResourceSettingsMissing(t *testing.T) {
	d := NewDir(t.TempDir(), "staging")
	_, err := d.ResourceSettings("service", "absent")
	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)

	_, err = d.ResourceSettings("rocket", "absent")
	require.ErrorAs(t, err, &cfgErr)
}

func Test_DirMappings(t *testing.T) {
	base := t.TempDir()
	writeConfig(t, base, "mappings.yaml", `
		AWS:
		  KeyName:
		    Value: global-key
		  Region:
		    Value: us-east-1
	`)
	writeConfig(t, base, "environments/staging/mappings.yaml", `
		AWS:
		  KeyName:
		    Value: staging-key
	`)
	writeConfig(t, base, "services/web/mappings.yaml", `
		Service:
		  Port:
		    Value: "8080"
	`)
	writeConfig(t, base, "services/web/service.yaml", "instance-type: t2.small")
	d := NewDir(base, "staging")

	mappings, err := d.Mappings("service", "web")
	require.NoError(t, err)

	aws := mappings["AWS"].(map[string]any)
	assert.Equal(t, map[string]any{"Value": "staging-key"}, aws["KeyName"])
	assert.Equal(t, map[string]any{"Value": "us-east-1"}, aws["Region"])
	assert.Equal(t, map[string]any{"Port": map[string]any{"Value": "8080"}}, mappings["Service"])
}

func Test_DirMappingsEnvironmentSkipsOwnOverlay(t *testing.T) {
	base := t.TempDir()
	writeConfig(t, base, "mappings.yaml", "Shared:\n  A:\n    Value: global")
	writeConfig(t, base, "environments/staging/mappings.yaml", "Shared:\n  A:\n    Value: env")
	d := NewDir(base, "staging")

	mappings, err := d.Mappings("environment", "staging")
	require.NoError(t, err)
	// The environment overlay for "environment" resources comes from the
	// resource folder itself, applied once.
	assert.Equal(t, map[string]any{"A": map[string]any{"Value": "env"}}, mappings["Shared"])
}

func Test_DirAMIs(t *testing.T) {
	base := t.TempDir()
	writeConfig(t, base, "amis.yaml", `
		us-east-1:
		  default: ami-11111111
		  worker: ami-22222222
		eu-west-1:
		  default: ami-33333333
	`)
	amis, err := NewDir(base, "staging").AMIs()
	require.NoError(t, err)
	assert.Equal(t, map[string]map[string]string{
		"us-east-1": {"default": "ami-11111111", "worker": "ami-22222222"},
		"eu-west-1": {"default": "ami-33333333"},
	}, amis)
}

func Test_DirAMIsMalformed(t *testing.T) {
	base := t.TempDir()
	writeConfig(t, base, "amis.yaml", "us-east-1: not-a-table")
	_, err := NewDir(base, "staging").AMIs()
	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
}

func Test_DirReadLocalFile(t *testing.T) {
	base := t.TempDir()
	writeConfig(t, base, "services/web/user-data.sh", "#!/bin/bash\necho hello\n")
	content, err := NewDir(base, "staging").ReadLocalFile("service", "web", "user-data.sh")
	require.NoError(t, err)
	assert.Equal(t, "#!/bin/bash\necho hello\n", content)
}
