package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// FileEnv names an optional YAML file read before the environment.
const FileEnv = "LEAVEDESK_CONFIG"

type Config struct {
	Addr        string `yaml:"addr" env:"APP_ADDR" env-default:":8080"`
	Environment string `yaml:"env" env:"APP_ENV" env-default:"development"`
	LogLevel    string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`

	UpstreamBaseURL      string        `yaml:"upstream_base_url" env:"UPSTREAM_BASE_URL"`
	UpstreamTimeout      time.Duration `yaml:"upstream_timeout" env:"UPSTREAM_TIMEOUT" env-default:"15s"`
	UpstreamServiceToken string        `yaml:"upstream_service_token" env:"UPSTREAM_SERVICE_TOKEN"`

	JWTSecret   string `yaml:"jwt_secret" env:"JWT_SECRET"`
	DatabaseURL string `yaml:"database_url" env:"DATABASE_URL"`
	RedisAddr   string `yaml:"redis_addr" env:"REDIS_ADDR"`

	CacheEncryptionKey string        `yaml:"cache_encryption_key" env:"CACHE_ENCRYPTION_KEY"`
	AuditRetention     time.Duration `yaml:"audit_retention" env:"AUDIT_RETENTION" env-default:"2160h"`

	CacheTTL            time.Duration `yaml:"cache_ttl" env:"CACHE_TTL" env-default:"5m"`
	CacheStaleRetention time.Duration `yaml:"cache_stale_retention" env:"CACHE_STALE_RETENTION" env-default:"24h"`
	ContactPattern      string        `yaml:"contact_pattern" env:"CONTACT_PATTERN"`

	MaxBodyBytes       int64 `yaml:"max_body_bytes" env:"MAX_BODY_BYTES" env-default:"1048576"`
	RateLimitPerMinute int   `yaml:"rate_limit_per_minute" env:"RATE_LIMIT_PER_MINUTE" env-default:"60"`

	HolidayRefreshInterval time.Duration `yaml:"holiday_refresh_interval" env:"HOLIDAY_REFRESH_INTERVAL" env-default:"6h"`
	CachePruneInterval     time.Duration `yaml:"cache_prune_interval" env:"CACHE_PRUNE_INTERVAL" env-default:"10m"`
	MetricsEnabled         bool          `yaml:"metrics_enabled" env:"METRICS_ENABLED" env-default:"true"`
}

// Load reads the YAML file named by LEAVEDESK_CONFIG, when set, and then the
// environment. Environment values win.
func Load() (Config, error) {
	var cfg Config
	if path := strings.TrimSpace(os.Getenv(FileEnv)); path != "" {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("read config file %s: %w", path, err)
		}
		return cfg, nil
	}
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return Config{}, fmt.Errorf("read config from environment: %w", err)
	}
	return cfg, nil
}

func (c Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.UpstreamBaseURL) == "" {
		return errors.New("UPSTREAM_BASE_URL is required")
	}
	if !strings.HasPrefix(c.UpstreamBaseURL, "http://") && !strings.HasPrefix(c.UpstreamBaseURL, "https://") {
		return fmt.Errorf("UPSTREAM_BASE_URL must be an http(s) URL, got %q", c.UpstreamBaseURL)
	}
	if c.IsProduction() && strings.TrimSpace(c.JWTSecret) == "" {
		return errors.New("JWT_SECRET must be set in production so cached data is keyed by verified users")
	}
	if c.UpstreamTimeout <= 0 {
		return errors.New("UPSTREAM_TIMEOUT must be positive")
	}
	if c.CacheTTL <= 0 {
		return errors.New("CACHE_TTL must be positive")
	}
	if c.CacheStaleRetention < c.CacheTTL {
		return errors.New("CACHE_STALE_RETENTION must be at least CACHE_TTL")
	}
	if c.ContactPattern != "" {
		if _, err := regexp.Compile(c.ContactPattern); err != nil {
			return fmt.Errorf("CONTACT_PATTERN is not a valid regular expression: %w", err)
		}
	}
	if c.MaxBodyBytes < 1024 {
		return errors.New("MAX_BODY_BYTES must be at least 1024")
	}
	if c.RateLimitPerMinute <= 0 {
		return errors.New("RATE_LIMIT_PER_MINUTE must be positive")
	}
	if c.AuditRetention < 0 {
		return errors.New("AUDIT_RETENTION must not be negative")
	}
	if c.HolidayRefreshInterval < 0 || c.CachePruneInterval < 0 {
		return errors.New("job intervals must not be negative")
	}
	return nil
}
