package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv(ConfigPathEnvVar, filepath.Join(t.TempDir(), "missing.yaml"))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Cache.Backend)
	assert.Equal(t, 10000, cfg.Cache.MaxSize)
	assert.Equal(t, time.Hour, cfg.Cache.ObjectTTL)
	assert.Equal(t, 2*time.Hour, cfg.Cache.ResolveTTL)
	assert.Equal(t, 24*time.Hour, cfg.Cache.HotTTL)
	assert.Equal(t, 6, cfg.Allocator.DefaultLength)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := []byte("cache:\n  backend: redis\n  max_size: 50\nanalytics:\n  workers: 8\n")
	require.NoError(t, os.WriteFile(path, yaml, 0o600))

	t.Setenv(ConfigPathEnvVar, path)
	t.Setenv("CACHE_MAX_SIZE", "75")
	t.Setenv("CACHE_OBJECT_TTL", "30m")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("DATABASE_URL", "file:test.sqlite")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "redis", cfg.Cache.Backend)
	assert.Equal(t, 75, cfg.Cache.MaxSize)
	assert.Equal(t, 30*time.Minute, cfg.Cache.ObjectTTL)
	assert.Equal(t, 8, cfg.Analytics.Workers)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Security.CORSOrigins)
	assert.Equal(t, "file:test.sqlite", cfg.Database.URL)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "bad backend", mutate: func(c *Config) { c.Cache.Backend = "memcached" }, wantErr: true},
		{name: "zero max size", mutate: func(c *Config) { c.Cache.MaxSize = 0 }, wantErr: true},
		{name: "short length", mutate: func(c *Config) { c.Allocator.DefaultLength = 2 }, wantErr: true},
		{name: "default secret in production", mutate: func(c *Config) { c.Server.Environment = "production" }, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
