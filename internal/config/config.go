package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Log      LoggingConfig   `yaml:"log"`
	HTTP     HTTPConfig      `yaml:"http"`
	State    StateConfig     `yaml:"state"`
	Upstream UpstreamConfig  `yaml:"upstream"`
	Audit    AuditConfig     `yaml:"audit"`
	Metrics  MetricsConfig   `yaml:"metrics"`
	Telegram TelegramConfig  `yaml:"telegram"`
	Scales   ScalesConfig    `yaml:"scales"`
	Features map[string]bool `yaml:"features"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

type HTTPConfig struct {
	Address           string        `yaml:"address"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
}

const (
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
	DriverMemory = "memory"
)

type StateConfig struct {
	Driver     string `yaml:"driver"`
	SQLitePath string `yaml:"sqlite_path"`
	RedisURL   string `yaml:"redis_url"`
	KeyPrefix  string `yaml:"key_prefix"`
}

type UpstreamConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

type AuditConfig struct {
	Enabled         bool          `yaml:"enabled"`
	DSN             string        `yaml:"dsn"`
	Schema          string        `yaml:"schema"`
	QueueSize       int           `yaml:"queue_size"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

type MetricsConfig struct {
	Enabled *bool  `yaml:"enabled"`
	Address string `yaml:"address"`
	Path    string `yaml:"path"`
}

func (m MetricsConfig) EnabledValue() bool {
	return m.Enabled != nil && *m.Enabled
}

type TelegramConfig struct {
	Enabled bool   `yaml:"enabled"`
	Token   string `yaml:"token"`
	ChatID  string `yaml:"chat_id"`
}

type ScalesConfig struct {
	Dir string `yaml:"dir"`
}

func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	applyEnv(&cfg)
	applyDefaults(&cfg)
	return &cfg, validate(&cfg)
}

// FeatureEnabled reports whether the named module is switched on. Names are
// matched case-insensitively; unknown modules are off.
func (c *Config) FeatureEnabled(name string) bool {
	if c == nil {
		return false
	}
	for key, enabled := range c.Features {
		if strings.EqualFold(key, name) {
			return enabled
		}
	}
	return false
}

func applyEnv(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("NURSEOS_UPSTREAM_URL")); v != "" {
		cfg.Upstream.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("NURSEOS_REDIS_URL")); v != "" {
		cfg.State.RedisURL = v
	}
	if v := strings.TrimSpace(os.Getenv("NURSEOS_AUDIT_DSN")); v != "" {
		cfg.Audit.DSN = v
	}
	if v := strings.TrimSpace(os.Getenv("NURSEOS_TELEGRAM_TOKEN")); v != "" {
		cfg.Telegram.Token = v
	}
	if v := strings.TrimSpace(os.Getenv("NURSEOS_TELEGRAM_CHAT_ID")); v != "" {
		cfg.Telegram.ChatID = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.HTTP.Address == "" {
		cfg.HTTP.Address = ":8080"
	}
	if cfg.HTTP.ReadHeaderTimeout == 0 {
		cfg.HTTP.ReadHeaderTimeout = 5 * time.Second
	}
	if cfg.HTTP.ShutdownTimeout == 0 {
		cfg.HTTP.ShutdownTimeout = 10 * time.Second
	}
	cfg.State.Driver = strings.ToLower(strings.TrimSpace(cfg.State.Driver))
	if cfg.State.Driver == "" {
		cfg.State.Driver = DriverSQLite
	}
	if cfg.State.SQLitePath == "" {
		cfg.State.SQLitePath = "data/nurseos.db"
	}
	if cfg.State.KeyPrefix == "" {
		cfg.State.KeyPrefix = "nurseos"
	}
	cfg.State.KeyPrefix = strings.TrimRight(cfg.State.KeyPrefix, "/")
	if cfg.Upstream.Timeout == 0 {
		cfg.Upstream.Timeout = 10 * time.Second
	}
	cfg.Upstream.BaseURL = strings.TrimRight(cfg.Upstream.BaseURL, "/")
	if cfg.Audit.Schema == "" {
		cfg.Audit.Schema = "public"
	}
	if cfg.Audit.QueueSize <= 0 {
		cfg.Audit.QueueSize = 256
	}
	if cfg.Metrics.Enabled == nil {
		enabled := true
		cfg.Metrics.Enabled = &enabled
	}
	if cfg.Metrics.Address == "" {
		cfg.Metrics.Address = "127.0.0.1:9001"
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
	if cfg.Scales.Dir == "" {
		cfg.Scales.Dir = "scales/definitions"
	}
	if cfg.Features == nil {
		cfg.Features = make(map[string]bool)
	}
}

func validate(cfg *Config) error {
	switch cfg.State.Driver {
	case DriverSQLite, DriverRedis, DriverMemory:
	default:
		return fmt.Errorf("state.driver %q is not supported", cfg.State.Driver)
	}
	if cfg.State.Driver == DriverRedis && strings.TrimSpace(cfg.State.RedisURL) == "" {
		return errors.New("state.redis_url is required for the redis driver")
	}
	if cfg.Upstream.BaseURL == "" {
		return errors.New("upstream.base_url is required")
	}
	if !strings.HasPrefix(cfg.Upstream.BaseURL, "http://") && !strings.HasPrefix(cfg.Upstream.BaseURL, "https://") {
		return errors.New("upstream.base_url must be an http(s) url")
	}
	if cfg.Audit.Enabled && strings.TrimSpace(cfg.Audit.DSN) == "" {
		return errors.New("audit.dsn is required when audit is enabled")
	}
	if cfg.Metrics.EnabledValue() && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		return errors.New("metrics.path must start with /")
	}
	if cfg.Telegram.Enabled && (strings.TrimSpace(cfg.Telegram.Token) == "" || strings.TrimSpace(cfg.Telegram.ChatID) == "") {
		return errors.New("telegram.token and telegram.chat_id are required when telegram is enabled")
	}
	return nil
}
