// Package config loads runtime configuration from the environment and the
// optional access file.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/DeBounty-Network/escrow_layer/internal/engine"
	"github.com/DeBounty-Network/escrow_layer/pkg/logger"
)

// Config is the full runtime configuration, decoded from environment
// variables with ESCROW_ prefixes.
type Config struct {
	Server    ServerConfig
	Store     StoreConfig
	Logging   LoggingConfig
	RateLimit RateLimitConfig
	Audit     AuditConfig

	// AccessFile points at the YAML file holding the authorization policy
	// and API tokens. Missing file means defaults: open policy, open auth.
	AccessFile string `env:"ESCROW_ACCESS_FILE"`

	// ReconcileSchedule is a cron expression for conservation sweeps.
	ReconcileSchedule string `env:"ESCROW_RECONCILE_SCHEDULE,default=* * * * *"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Host            string        `env:"ESCROW_HOST,default=0.0.0.0"`
	Port            int           `env:"ESCROW_PORT,default=8080"`
	ReadTimeout     time.Duration `env:"ESCROW_READ_TIMEOUT,default=15s"`
	WriteTimeout    time.Duration `env:"ESCROW_WRITE_TIMEOUT,default=30s"`
	ShutdownTimeout time.Duration `env:"ESCROW_SHUTDOWN_TIMEOUT,default=10s"`
}

// StoreConfig selects and configures the ledger store backend.
type StoreConfig struct {
	// Backend is "memory" or "postgres".
	Backend      string        `env:"ESCROW_STORE,default=memory"`
	DatabaseURL  string        `env:"ESCROW_DATABASE_URL"`
	MaxOpenConns int           `env:"ESCROW_DB_MAX_OPEN_CONNS,default=10"`
	MaxIdleConns int           `env:"ESCROW_DB_MAX_IDLE_CONNS,default=5"`
	ConnLifetime time.Duration `env:"ESCROW_DB_CONN_LIFETIME,default=30m"`
}

// LoggingConfig mirrors logger.LoggingConfig with env bindings.
type LoggingConfig struct {
	Level      string `env:"ESCROW_LOG_LEVEL,default=info"`
	Format     string `env:"ESCROW_LOG_FORMAT,default=json"`
	Output     string `env:"ESCROW_LOG_OUTPUT,default=stdout"`
	FilePrefix string `env:"ESCROW_LOG_FILE_PREFIX,default=escrow_layer"`
}

// RateLimitConfig throttles API callers.
type RateLimitConfig struct {
	RequestsPerSecond int `env:"ESCROW_RATE_LIMIT_RPS,default=50"`
	Burst             int `env:"ESCROW_RATE_LIMIT_BURST,default=100"`
}

// AuditConfig controls the request audit trail.
type AuditConfig struct {
	Max  int    `env:"ESCROW_AUDIT_MAX,default=200"`
	Path string `env:"ESCROW_AUDIT_PATH"`
}

// Load reads configuration from the environment, honoring a local .env
// file when present.
func Load() (*Config, error) {
	_ = godotenv.Load() // allow .env for local runs

	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch strings.ToLower(strings.TrimSpace(c.Store.Backend)) {
	case "memory":
	case "postgres":
		if strings.TrimSpace(c.Store.DatabaseURL) == "" {
			return fmt.Errorf("ESCROW_DATABASE_URL is required for the postgres store")
		}
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Server.Port)
	}
	return nil
}

// LoggerConfig converts to the logger package's configuration type.
func (c *Config) LoggerConfig() logger.LoggingConfig {
	return logger.LoggingConfig{
		Level:      c.Logging.Level,
		Format:     c.Logging.Format,
		Output:     c.Logging.Output,
		FilePrefix: c.Logging.FilePrefix,
	}
}

// AccessConfig holds the authorization policy and the API token map. Tokens
// map bearer tokens to account addresses; an empty map leaves the gateway
// in open header-based mode.
type AccessConfig struct {
	Policy engine.Policy     `yaml:"policy"`
	Tokens map[string]string `yaml:"tokens"`
}

// LoadAccessConfig reads and validates an access file.
func LoadAccessConfig(path string) (*AccessConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read access config: %w", err)
	}

	var cfg AccessConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse access config: %w", err)
	}

	cfg.Policy.Normalize()
	if err := cfg.Policy.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadAccessConfigOrDefault returns the default open policy when no path
// is configured. A configured path that cannot be read or parsed is an
// error: falling back silently would discard the operator's policy and
// token map and leave the gateway wide open.
func LoadAccessConfigOrDefault(path string) (*AccessConfig, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultAccessConfig(), nil
	}
	return LoadAccessConfig(path)
}

// DefaultAccessConfig returns the open policy with no tokens.
func DefaultAccessConfig() *AccessConfig {
	return &AccessConfig{Policy: engine.DefaultPolicy()}
}
