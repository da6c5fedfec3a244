package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server   ServerConfig    `yaml:"server"`
	Engine   EngineConfig    `yaml:"engine"`
	Journal  JournalConfig   `yaml:"journal"`
	Tracing  TracingConfig   `yaml:"tracing"`
	Log      LogConfig       `yaml:"log"`
	Accounts []AccountConfig `yaml:"accounts"`
}

// ServerConfig holds the HTTP server configuration.
type ServerConfig struct {
	Host                     string        `yaml:"host"`
	Port                     string        `yaml:"port"`
	ReadHeaderTimeoutSeconds int           `yaml:"read_header_timeout_seconds"`
	ReadHeaderTimeout        time.Duration `yaml:"-"`
	ShutdownTimeoutSeconds   int           `yaml:"shutdown_timeout_seconds"`
	ShutdownTimeout          time.Duration `yaml:"-"`
	LivenessEndpoint         string        `yaml:"liveness_endpoint"`
	RateLimitPerSec          float64       `yaml:"rate_limit_per_sec"`
	RateBurst                int           `yaml:"rate_burst"`
	RateLimiterIdleSeconds   int           `yaml:"rate_limiter_idle_seconds"`
	RateLimiterIdleTTL       time.Duration `yaml:"-"`
	CORSAllowedOrigins       []string      `yaml:"cors_allowed_origins"`
}

// EngineConfig tunes the room-share engine.
type EngineConfig struct {
	HorizonDays           int           `yaml:"horizon_days"`
	RefundExcess          *bool         `yaml:"refund_excess"`
	IdempotencyTTLSeconds int           `yaml:"idempotency_ttl_seconds"`
	IdempotencyTTL        time.Duration `yaml:"-"`
}

// JournalConfig points at the database holding the operation journal.
type JournalConfig struct {
	Enabled                bool   `yaml:"enabled"`
	Driver                 string `yaml:"driver"`
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
}

// TracingConfig enables OTLP trace export.
type TracingConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Endpoint    string `yaml:"endpoint"`
	Insecure    bool   `yaml:"insecure"`
	ServiceName string `yaml:"service_name"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// AccountConfig seeds an account balance at startup.
type AccountConfig struct {
	Identity string `yaml:"identity"`
	Balance  int64  `yaml:"balance"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	var cfg Config

	cfg.applyDefaults()

	return &cfg
}

// Load reads the configuration from the given path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config

	decoder := yaml.NewDecoder(f)
	decoder.KnownFields(true)

	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}

	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// LoadOrDefault behaves like Load but falls back to Default when the file
// does not exist.
func LoadOrDefault(path string) (*Config, bool, error) {
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), false, nil
	}

	if err != nil {
		return nil, false, err
	}

	return cfg, true, nil
}

func (c *Config) RefundExcess() bool {
	return c.Engine.RefundExcess == nil || *c.Engine.RefundExcess
}

func (c *Config) applyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "localhost"
	}

	if c.Server.Port == "" {
		c.Server.Port = "8092"
	}

	if c.Server.ReadHeaderTimeoutSeconds <= 0 {
		c.Server.ReadHeaderTimeoutSeconds = 20
	}
	c.Server.ReadHeaderTimeout = time.Duration(c.Server.ReadHeaderTimeoutSeconds) * time.Second

	if c.Server.ShutdownTimeoutSeconds <= 0 {
		c.Server.ShutdownTimeoutSeconds = 4
	}
	c.Server.ShutdownTimeout = time.Duration(c.Server.ShutdownTimeoutSeconds) * time.Second

	if c.Server.LivenessEndpoint == "" {
		c.Server.LivenessEndpoint = "/liveness"
	}

	if c.Server.RateLimitPerSec <= 0 {
		c.Server.RateLimitPerSec = 20
	}

	if c.Server.RateBurst <= 0 {
		c.Server.RateBurst = 40
	}

	if c.Server.RateLimiterIdleSeconds <= 0 {
		c.Server.RateLimiterIdleSeconds = 600
	}
	c.Server.RateLimiterIdleTTL = time.Duration(c.Server.RateLimiterIdleSeconds) * time.Second

	if c.Engine.HorizonDays <= 0 {
		c.Engine.HorizonDays = 365
	}

	if c.Engine.IdempotencyTTLSeconds <= 0 {
		c.Engine.IdempotencyTTLSeconds = 600
	}
	c.Engine.IdempotencyTTL = time.Duration(c.Engine.IdempotencyTTLSeconds) * time.Second

	if c.Journal.Driver == "" {
		c.Journal.Driver = "sqlite"
	}

	if c.Journal.DSN == "" && c.Journal.Driver == "sqlite" {
		c.Journal.DSN = "roomshare.db"
	}

	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = "roomshare"
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}

	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
}

var ErrInvalidConfig = errors.New("invalid config")

func (c *Config) validate() error {
	if c.Journal.Driver != "sqlite" && c.Journal.Driver != "postgres" {
		return fmt.Errorf("journal.driver must be sqlite or postgres, got %q: %w", c.Journal.Driver, ErrInvalidConfig)
	}

	if c.Journal.Enabled && c.Journal.DSN == "" {
		return fmt.Errorf("journal.dsn is required when the journal is enabled: %w", ErrInvalidConfig)
	}

	if c.Tracing.Enabled && c.Tracing.Endpoint == "" {
		return fmt.Errorf("tracing.endpoint is required when tracing is enabled: %w", ErrInvalidConfig)
	}

	for i, acc := range c.Accounts {
		if acc.Identity == "" {
			return fmt.Errorf("accounts[%d].identity is empty: %w", i, ErrInvalidConfig)
		}

		if acc.Balance < 0 {
			return fmt.Errorf("accounts[%d].balance is negative: %w", i, ErrInvalidConfig)
		}
	}

	return nil
}
