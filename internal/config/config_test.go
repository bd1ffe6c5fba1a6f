package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := defaults()

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "./data/bridge.db", cfg.Database.Path)
	assert.Equal(t, 5, cfg.Bridge.ClaimBatch)
	assert.Equal(t, 5*time.Minute, cfg.Bridge.ReclaimTimeout)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.NoError(t, cfg.Validate())
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`
server:
  port: 9090
bridge:
  claim_batch: 10
logging:
  level: debug
  format: text
`)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 10, cfg.Bridge.ClaimBatch)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	// Sections absent from the file keep their defaults.
	assert.Equal(t, "./data/bridge.db", cfg.Database.Path)
	assert.NoError(t, cfg.Validate())
}

func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: ["), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("BRIDGE_PORT", "9191")
	t.Setenv("BRIDGE_DB_PATH", "/tmp/test.db")
	t.Setenv("BRIDGE_CLAIM_BATCH", "7")
	t.Setenv("BRIDGE_LOG_LEVEL", "warn")

	cfg := LoadFromEnv()
	assert.Equal(t, 9191, cfg.Server.Port)
	assert.Equal(t, "/tmp/test.db", cfg.Database.Path)
	assert.Equal(t, 7, cfg.Bridge.ClaimBatch)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }},
		{"missing db path", func(c *Config) { c.Database.Path = "" }},
		{"zero claim batch", func(c *Config) { c.Bridge.ClaimBatch = 0 }},
		{"zero reclaim timeout", func(c *Config) { c.Bridge.ReclaimTimeout = 0 }},
		{"zero webhook workers", func(c *Config) { c.Webhooks.WorkerCount = 0 }},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := defaults()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
