package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWithEnv(t *testing.T) {
	t.Setenv("KILN_SIGNING_KEY", "secret")
	t.Setenv("KILN_LISTEN_ADDR", ":9090")
	t.Setenv("KILN_API_KEYS", "dev_123:dev:5:5")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.ListenAddr)
	assert.Equal(t, "dev_123:dev:5:5", cfg.APIKeys)
	assert.Equal(t, 10*time.Minute, cfg.URLTTL)
	assert.Equal(t, "kilnrun/runner-python:latest", cfg.Images["python"])
}

func TestLoadRequiresSigningKey(t *testing.T) {
	_, err := Load("")
	assert.Error(t, err)
}

func TestLoadYAMLFileWithEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kiln.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
listen_addr: ":7070"
signing_key: file-secret
work_root: /tmp/kiln-work
images:
  python: custom/python:3
  node: custom/node:22
  ruby: custom/ruby:3
  php: custom/php:8
  go: custom/go:1
`), 0o644))

	t.Setenv("KILN_LISTEN_ADDR", ":6060")

	cfg, err := Load(path)
	require.NoError(t, err)
	// Environment wins over the file.
	assert.Equal(t, ":6060", cfg.ListenAddr)
	assert.Equal(t, "file-secret", cfg.SigningKey)
	assert.Equal(t, "custom/python:3", cfg.Images["python"])
	assert.Equal(t, "/tmp/kiln-work", cfg.WorkRoot)
}

func TestImagesEnvOverride(t *testing.T) {
	t.Setenv("KILN_SIGNING_KEY", "secret")
	t.Setenv("KILN_IMAGES", "python=myorg/py:latest, go=myorg/go:latest")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "myorg/py:latest", cfg.Images["python"])
	assert.Equal(t, "myorg/go:latest", cfg.Images["go"])
	assert.Equal(t, "kilnrun/runner-node:latest", cfg.Images["node"])
}

func TestDisableSandboxSecurityFlag(t *testing.T) {
	t.Setenv("KILN_SIGNING_KEY", "secret")
	t.Setenv("DISABLE_SANDBOX_SECURITY", "true")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.True(t, cfg.DisableSandboxSecurity)
}
