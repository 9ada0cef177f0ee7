package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultValues(t *testing.T) {
	cfg := Default()
	assert.Equal(t, ":8000", cfg.HTTPBindAddr)
	assert.Equal(t, 100, cfg.InvestigateQueueCapacity)
	assert.Equal(t, "root", cfg.SSH.User)
	assert.Equal(t, 22, cfg.SSH.Port)
}

func TestLoadMergesYAMLOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "commissaire.yaml")
	require.NoError(t, os.WriteFile(path, []byte("http_bind_addr: \":9000\"\nssh:\n  user: deploy\n"), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.HTTPBindAddr)
	assert.Equal(t, "deploy", cfg.SSH.User)
	assert.Equal(t, 100, cfg.InvestigateQueueCapacity, "unset fields keep their default")
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	t.Setenv("COMMISSAIRE_HTTP_BIND_ADDR", ":9999")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.HTTPBindAddr)
}

func TestLoadMissingFileErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
