package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	t.Setenv("DOCSYNC_TEST_REDIS_PASSWORD", "secret")

	yamlContent := `
sync:
  collection: "profiles"
  doc_id: "user-1"
  pull_interval: 30s
database:
  path: "cache.db"
redis:
  address: "localhost:6379"
  password: "${DOCSYNC_TEST_REDIS_PASSWORD}"
connectivity:
  probe_enabled: true
  probe_interval: 3s
  backoff:
    initial_delay: 500ms
api:
  enabled: true
  auth:
    api_keys:
      - key: "k1"
        extra: "e1"
        name: "ops"
        permissions: ["read:document"]
`
	require.NoError(t, os.WriteFile(configPath, []byte(yamlContent), 0o644))

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, "profiles", cfg.Sync.Collection)
	assert.Equal(t, "user-1", cfg.Sync.DocID)
	assert.Equal(t, "profiles:user-1", cfg.Sync.CacheKey)
	assert.Equal(t, 30*time.Second, cfg.Sync.PullInterval)
	assert.Equal(t, "secret", cfg.Redis.Password)
	assert.Equal(t, "docsync:", cfg.Redis.KeyPrefix)
	assert.True(t, cfg.Connectivity.ProbeEnabled)
	assert.Equal(t, 3*time.Second, cfg.Connectivity.ProbeInterval)
	assert.Equal(t, 500*time.Millisecond, cfg.Connectivity.Backoff.InitialDelay)
	assert.Equal(t, time.Minute, cfg.Connectivity.Backoff.MaxDelay)
	assert.Equal(t, float64(2), cfg.Connectivity.Backoff.Factor)
	assert.True(t, cfg.API.HTTP.Enabled)
	assert.Equal(t, 8080, cfg.API.HTTP.Port)
	assert.Equal(t, "x-api-key", cfg.API.Auth.HeaderAPIKey)
	require.Len(t, cfg.API.Auth.APIKeys, 1)
	assert.Equal(t, []string{"read:document"}, cfg.API.Auth.APIKeys[0].Permissions)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestParseInvalidYAML(t *testing.T) {
	_, err := Parse([]byte("sync: [unclosed"))
	assert.Error(t, err)
}

func TestValidateConfig(t *testing.T) {
	valid := func() Config {
		return Config{
			Sync:     SyncConfig{Collection: "c", DocID: "d"},
			Database: DatabaseConfig{Path: "cache.db"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "valid config", mutate: func(c *Config) {}},
		{name: "missing collection", mutate: func(c *Config) { c.Sync.Collection = "" }, wantErr: true},
		{name: "missing doc id", mutate: func(c *Config) { c.Sync.DocID = " " }, wantErr: true},
		{name: "missing database path", mutate: func(c *Config) { c.Database.Path = "" }, wantErr: true},
		{name: "backup without storage", mutate: func(c *Config) { c.Backup.Enabled = true }, wantErr: true},
		{name: "negative backoff", mutate: func(c *Config) { c.Connectivity.Backoff.Factor = -1 }, wantErr: true},
		{
			name: "duplicate api keys",
			mutate: func(c *Config) {
				c.API.Auth.APIKeys = []APIClientKey{{Key: "a", Name: "x"}, {Key: "a", Name: "y"}}
			},
			wantErr: true,
		},
		{
			name:    "empty api key",
			mutate:  func(c *Config) { c.API.Auth.APIKeys = []APIClientKey{{Name: "x"}} },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestApplyDefaultsKeepsExplicitValues(t *testing.T) {
	cfg := Config{
		Sync:       SyncConfig{Collection: "c", DocID: "d", CacheKey: "custom"},
		Monitoring: MonitoringConfig{PrometheusEnabled: true},
	}
	cfg.applyDefaults()

	assert.Equal(t, "custom", cfg.Sync.CacheKey)
	assert.Equal(t, "docsync", cfg.App.Name)
	assert.Equal(t, 9090, cfg.Monitoring.PrometheusPort)
	assert.Equal(t, 24*time.Hour, cfg.Backup.Interval)
	assert.False(t, cfg.API.HTTP.Enabled)
}
