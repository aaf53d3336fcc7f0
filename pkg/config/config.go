package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Database  DatabaseConfig  `koanf:"database"`
	Cache     CacheConfig     `koanf:"cache"`
	Geo       GeoConfig       `koanf:"geo"`
	Analytics AnalyticsConfig `koanf:"analytics"`
	Allocator AllocatorConfig `koanf:"allocator"`
	Security  SecurityConfig  `koanf:"security"`
	Logging   LoggingConfig   `koanf:"logging"`
}

type ServerConfig struct {
	Port            string        `koanf:"port"`
	BaseURL         string        `koanf:"base_url"`
	Environment     string        `koanf:"environment"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

type DatabaseConfig struct {
	// URL is a modernc sqlite DSN, or a libsql:// / wss:// URL for Turso.
	URL       string        `koanf:"url"`
	OpTimeout time.Duration `koanf:"op_timeout"`
}

type CacheConfig struct {
	Backend    string        `koanf:"backend"` // memory or redis
	RedisURL   string        `koanf:"redis_url"`
	MaxSize    int           `koanf:"max_size"`
	ObjectTTL  time.Duration `koanf:"object_ttl"`
	ResolveTTL time.Duration `koanf:"resolve_ttl"`
	HotTTL     time.Duration `koanf:"hot_ttl"`
	OpTimeout  time.Duration `koanf:"op_timeout"`
}

type GeoConfig struct {
	CityDBPath    string        `koanf:"city_db_path"`
	CountryDBPath string        `koanf:"country_db_path"`
	LookupTimeout time.Duration `koanf:"lookup_timeout"`
}

type AnalyticsConfig struct {
	QueueSize     int           `koanf:"queue_size"`
	Workers       int           `koanf:"workers"`
	AppendTimeout time.Duration `koanf:"append_timeout"`
	DrainTimeout  time.Duration `koanf:"drain_timeout"`
}

type AllocatorConfig struct {
	DefaultLength int    `koanf:"default_length"`
	DefaultMethod string `koanf:"default_method"`
}

type SecurityConfig struct {
	JWTSecret         string   `koanf:"jwt_secret"`
	PolicyPath        string   `koanf:"policy_path"`
	DefaultRole       string   `koanf:"default_role"`
	CORSOrigins       []string `koanf:"cors_origins"`
	RateLimitDisabled bool     `koanf:"rate_limit_disabled"`
}

type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// ConfigPathEnvVar overrides where the optional YAML file is read from.
const ConfigPathEnvVar = "CONFIG_PATH"

var defaultConfigPaths = []string{"config.yaml", "config.yml"}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            "8080",
			BaseURL:         "http://localhost:8080",
			Environment:     "local",
			ReadTimeout:     5 * time.Second,
			WriteTimeout:    10 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{
			URL:       "file:db.sqlite",
			OpTimeout: 3 * time.Second,
		},
		Cache: CacheConfig{
			Backend:    "memory",
			RedisURL:   "redis://localhost:6379/0",
			MaxSize:    10000,
			ObjectTTL:  time.Hour,
			ResolveTTL: 2 * time.Hour,
			HotTTL:     24 * time.Hour,
			OpTimeout:  200 * time.Millisecond,
		},
		Geo: GeoConfig{
			LookupTimeout: 100 * time.Millisecond,
		},
		Analytics: AnalyticsConfig{
			QueueSize:     1024,
			Workers:       4,
			AppendTimeout: 2 * time.Second,
			DrainTimeout:  5 * time.Second,
		},
		Allocator: AllocatorConfig{
			DefaultLength: 6,
			DefaultMethod: "random",
		},
		Security: SecurityConfig{
			JWTSecret:   "secret",
			DefaultRole: "editor",
			CORSOrigins: []string{"*"},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load layers defaults, an optional YAML file and the environment (a .env file
// is loaded into the environment first), in increasing priority.
func Load() (*Config, error) {
	_ = godotenv.Load() // Ignore error if .env not found (e.g. prod)

	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	if err := splitSliceFields(k); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range defaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// envMappings maps environment variable names to koanf paths.
// Unmapped variables are ignored.
var envMappings = map[string]string{
	"port":             "server.port",
	"base_url":         "server.base_url",
	"app_env":          "server.environment",
	"read_timeout":     "server.read_timeout",
	"write_timeout":    "server.write_timeout",
	"shutdown_timeout": "server.shutdown_timeout",

	"database_url":        "database.url",
	"database_op_timeout": "database.op_timeout",

	"cache_backend":     "cache.backend",
	"redis_url":         "cache.redis_url",
	"cache_max_size":    "cache.max_size",
	"cache_object_ttl":  "cache.object_ttl",
	"cache_resolve_ttl": "cache.resolve_ttl",
	"cache_hot_ttl":     "cache.hot_ttl",
	"cache_op_timeout":  "cache.op_timeout",

	"geoip_database_path":         "geo.city_db_path",
	"geoip_country_database_path": "geo.country_db_path",
	"geo_lookup_timeout":          "geo.lookup_timeout",

	"analytics_queue_size":     "analytics.queue_size",
	"analytics_workers":        "analytics.workers",
	"analytics_append_timeout": "analytics.append_timeout",
	"analytics_drain_timeout":  "analytics.drain_timeout",

	"shortcode_length": "allocator.default_length",
	"shortcode_method": "allocator.default_method",

	"jwt_secret":          "security.jwt_secret",
	"casbin_policy_path":  "security.policy_path",
	"default_role":        "security.default_role",
	"cors_origins":        "security.cors_origins",
	"rate_limit_disabled": "security.rate_limit_disabled",

	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",
}

func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}

var sliceConfigPaths = []string{"security.cors_origins"}

// splitSliceFields turns comma-separated env values into slices.
func splitSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		raw, ok := k.Get(path).(string)
		if !ok {
			continue
		}
		var parts []string
		for _, p := range strings.Split(raw, ",") {
			if p = strings.TrimSpace(p); p != "" {
				parts = append(parts, p)
			}
		}
		if err := k.Set(path, parts); err != nil {
			return fmt.Errorf("set %s: %w", path, err)
		}
	}
	return nil
}

// Validate rejects settings the server cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port == "" {
		errs = append(errs, errors.New("server.port is required"))
	}
	if c.Database.URL == "" {
		errs = append(errs, errors.New("database.url is required"))
	}
	switch c.Cache.Backend {
	case "memory", "redis":
	default:
		errs = append(errs, fmt.Errorf("cache.backend must be memory or redis, got %q", c.Cache.Backend))
	}
	if c.Cache.MaxSize <= 0 {
		errs = append(errs, errors.New("cache.max_size must be positive"))
	}
	if c.Cache.ObjectTTL <= 0 || c.Cache.ResolveTTL <= 0 || c.Cache.HotTTL <= 0 {
		errs = append(errs, errors.New("cache ttls must be positive"))
	}
	if c.Analytics.QueueSize <= 0 || c.Analytics.Workers <= 0 {
		errs = append(errs, errors.New("analytics.queue_size and analytics.workers must be positive"))
	}
	if c.Allocator.DefaultLength < 3 || c.Allocator.DefaultLength > 50 {
		errs = append(errs, errors.New("allocator.default_length must be between 3 and 50"))
	}
	if c.Server.Environment == "production" && c.Security.JWTSecret == "secret" {
		errs = append(errs, errors.New("security.jwt_secret must be set in production"))
	}
	return errors.Join(errs...)
}

// IsProduction reports whether the server runs with production settings.
func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}
