package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
log:
  level: debug
image:
  name: registry.example.com/app
target_defaults:
  user: deploy
  private_key_path: /home/deploy/.ssh/id_ed25519
  deploy_dir: /srv/deployments
targets:
  - name: production
    host: prod.example.com
    container_name: app
    host_port: 80
  - name: staging
    host: staging.example.com
    container_name: app
    user: staging-deploy
    password: hunter2
`

func TestParse(t *testing.T) {
	cfg, err := Parse(FormatYAML, []byte(sampleConfig))
	require.NoError(t, err)

	// Explicit values
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "registry.example.com/app", cfg.Image.Name)

	// Defaults applied
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, "mvn", cfg.Build.Binary)
	assert.True(t, cfg.Build.SkipTests)
	assert.Equal(t, "docker", cfg.Image.Binary)
	assert.Equal(t, 24, cfg.Image.RetentionHours)
	assert.Equal(t, ":8080", cfg.Server.ListenAddress)
	assert.Equal(t, 2, cfg.Deploy.MaximumDeploymentsPerMinute)

	require.Len(t, cfg.Targets, 2)
}

func TestParseTargetDefaultsMerge(t *testing.T) {
	cfg, err := Parse(FormatYAML, []byte(sampleConfig))
	require.NoError(t, err)
	require.Len(t, cfg.Targets, 2)

	production := cfg.Targets[0]
	staging := cfg.Targets[1]

	// Defaults propagate onto each target
	assert.Equal(t, "deploy", production.User)
	assert.Equal(t, "/home/deploy/.ssh/id_ed25519", production.PrivateKeyPath)
	assert.Equal(t, "/srv/deployments", production.DeployDir)
	assert.Equal(t, 22, production.Port)
	assert.True(t, production.Lock.Enabled)

	// Per-target overrides win over defaults
	assert.Equal(t, 80, production.HostPort)
	assert.Equal(t, "staging-deploy", staging.User)
	assert.Equal(t, "hunter2", staging.Password)
}

func TestParseFile(t *testing.T) {
	dir := t.TempDir()

	path := filepath.Join(dir, "deckhand.yml")
	require.NoError(t, os.WriteFile(path, []byte(sampleConfig), 0o600))

	cfg, err := ParseFile(path)
	require.NoError(t, err)
	assert.Len(t, cfg.Targets, 2)

	_, err = ParseFile(filepath.Join(dir, "deckhand.json"))
	assert.Error(t, err)

	_, err = ParseFile(filepath.Join(dir, "absent.yml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg, err := Parse(FormatYAML, []byte(sampleConfig))
	require.NoError(t, err)
	assert.NoError(t, cfg.Validate())
}

func TestValidateNoTargets(t *testing.T) {
	cfg, err := Parse(FormatYAML, []byte(`
image:
  name: registry.example.com/app
`))
	require.NoError(t, err)
	assert.Error(t, cfg.Validate())
}

func TestValidateMissingCredentials(t *testing.T) {
	cfg, err := Parse(FormatYAML, []byte(`
image:
  name: registry.example.com/app
targets:
  - name: production
    host: prod.example.com
    container_name: app
    user: deploy
`))
	require.NoError(t, err)

	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "password or private_key_path")
}

func TestValidateMissingContainerName(t *testing.T) {
	cfg, err := Parse(FormatYAML, []byte(`
image:
  name: registry.example.com/app
targets:
  - name: production
    host: prod.example.com
    user: deploy
    password: hunter2
`))
	require.NoError(t, err)

	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "container_name")
}

func TestValidateWebhookRequiresSecretToken(t *testing.T) {
	cfg, err := Parse(FormatYAML, []byte(sampleConfig+`
server:
  webhook:
    enabled: true
`))
	require.NoError(t, err)
	assert.Error(t, cfg.Validate())
}

func TestToYAMLMasksSecrets(t *testing.T) {
	cfg, err := Parse(FormatYAML, []byte(sampleConfig+`
server:
  webhook:
    enabled: true
    secret_token: super-secret
`))
	require.NoError(t, err)

	out := cfg.ToYAML()
	assert.NotContains(t, out, "super-secret")
	assert.NotContains(t, out, "hunter2")
	assert.Contains(t, out, "*******")
}

func TestConfigTargetLookup(t *testing.T) {
	cfg, err := Parse(FormatYAML, []byte(sampleConfig))
	require.NoError(t, err)

	tgt, err := cfg.Target("staging")
	require.NoError(t, err)
	assert.Equal(t, "staging.example.com", tgt.Host)

	// Empty name falls back to the first configured target
	tgt, err = cfg.Target("")
	require.NoError(t, err)
	assert.Equal(t, "production", tgt.Name)

	_, err = cfg.Target("unknown")
	assert.Error(t, err)
}
