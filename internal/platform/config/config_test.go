package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	return Config{
		Addr:                ":8080",
		Environment:         "development",
		UpstreamBaseURL:     "https://hr.example.com",
		UpstreamTimeout:     15 * time.Second,
		CacheTTL:            5 * time.Minute,
		CacheStaleRetention: time.Hour,
		MaxBodyBytes:        1 << 20,
		RateLimitPerMinute:  60,
	}
}

func TestLoadDefaultsFromEnvironment(t *testing.T) {
	t.Setenv(FileEnv, "")
	t.Setenv("UPSTREAM_BASE_URL", "https://hr.example.com")
	t.Setenv("CACHE_TTL", "2m")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, 2*time.Minute, cfg.CacheTTL)
	assert.Equal(t, 24*time.Hour, cfg.CacheStaleRetention)
	assert.Equal(t, 60, cfg.RateLimitPerMinute)
	assert.True(t, cfg.MetricsEnabled)
	assert.Equal(t, 90*24*time.Hour, cfg.AuditRetention)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "leavedesk.yaml")
	require.NoError(t, os.WriteFile(path, []byte("upstream_base_url: http://localhost:9000\ncache_ttl: 90s\n"), 0o600))
	t.Setenv(FileEnv, path)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:9000", cfg.UpstreamBaseURL)
	assert.Equal(t, 90*time.Second, cfg.CacheTTL)
	assert.Equal(t, ":8080", cfg.Addr)
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing upstream", func(c *Config) { c.UpstreamBaseURL = "" }},
		{"non http upstream", func(c *Config) { c.UpstreamBaseURL = "ftp://hr" }},
		{"production without secret", func(c *Config) { c.Environment = "production" }},
		{"zero ttl", func(c *Config) { c.CacheTTL = 0 }},
		{"retention below ttl", func(c *Config) { c.CacheStaleRetention = time.Minute }},
		{"bad contact pattern", func(c *Config) { c.ContactPattern = "([" }},
		{"tiny body limit", func(c *Config) { c.MaxBodyBytes = 10 }},
		{"zero rate limit", func(c *Config) { c.RateLimitPerMinute = 0 }},
		{"negative audit retention", func(c *Config) { c.AuditRetention = -time.Hour }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	cfg := validConfig()
	cfg.Environment = "production"
	cfg.JWTSecret = "s3cret"
	assert.NoError(t, cfg.Validate())
}
