// ABOUTME: Configuration loading and parsing for orders-mcp
// ABOUTME: Supports YAML or TOML files with environment variable expansion and duration parsing

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Config represents the complete orders-mcp configuration
type Config struct {
	Server   ServerConfig   `yaml:"server" toml:"server"`
	Database DatabaseConfig `yaml:"database" toml:"database"`
	Auth     AuthConfig     `yaml:"auth" toml:"auth"`
	SSE      SSEConfig      `yaml:"sse" toml:"sse"`
	Tools    ToolsConfig    `yaml:"tools" toml:"tools"`
	Mail     MailConfig     `yaml:"mail" toml:"mail"`
	Logging  LoggingConfig  `yaml:"logging" toml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics" toml:"metrics"`
}

// ServerConfig holds the HTTP listener and the identity reported to MCP clients
type ServerConfig struct {
	HTTPAddr        string        `yaml:"http_addr" toml:"http_addr"`
	Name            string        `yaml:"name" toml:"name"`
	Version         string        `yaml:"version" toml:"version"`
	ShutdownTimeout time.Duration `yaml:"-" toml:"-"`

	ShutdownTimeoutRaw string `yaml:"shutdown_timeout" toml:"shutdown_timeout"`
}

// DatabaseConfig holds database configuration.
// DSN may be a bare SQLite path, sqlite://path, mysql://... or postgres://...
type DatabaseConfig struct {
	DSN    string `yaml:"dsn" toml:"dsn"`
	Driver string `yaml:"driver" toml:"driver"` // optional override: sqlite, mysql, postgres
}

// AuthConfig holds optional bearer-token protection for the HTTP routes
type AuthConfig struct {
	Enabled   bool     `yaml:"enabled" toml:"enabled"`
	JWTSecret string   `yaml:"jwt_secret" toml:"jwt_secret"`
	APIKeys   []string `yaml:"api_keys" toml:"api_keys"` // bcrypt hashes
}

// SSEConfig holds the streaming transport's lifecycle timing
type SSEConfig struct {
	HeartbeatInterval time.Duration `yaml:"-" toml:"-"`
	CheckInterval     time.Duration `yaml:"-" toml:"-"`
	MaxLifetime       time.Duration `yaml:"-" toml:"-"`
	MaxFailures       int           `yaml:"max_failures" toml:"max_failures"`
	QueueSize         int           `yaml:"queue_size" toml:"queue_size"`

	// Raw string values for YAML/TOML unmarshaling
	HeartbeatIntervalRaw string `yaml:"heartbeat_interval" toml:"heartbeat_interval"`
	CheckIntervalRaw     string `yaml:"check_interval" toml:"check_interval"`
	MaxLifetimeRaw       string `yaml:"max_lifetime" toml:"max_lifetime"`
}

// ToolsConfig holds per-collaborator timeouts and export limits for tool handlers
type ToolsConfig struct {
	QueryTimeout  time.Duration `yaml:"-" toml:"-"`
	ExportTimeout time.Duration `yaml:"-" toml:"-"`
	MailTimeout   time.Duration `yaml:"-" toml:"-"`
	ExportDir     string        `yaml:"export_dir" toml:"export_dir"`
	MaxExportRows int           `yaml:"max_export_rows" toml:"max_export_rows"`

	QueryTimeoutRaw  string `yaml:"query_timeout" toml:"query_timeout"`
	ExportTimeoutRaw string `yaml:"export_timeout" toml:"export_timeout"`
	MailTimeoutRaw   string `yaml:"mail_timeout" toml:"mail_timeout"`
}

// MailConfig selects how exported spreadsheets are delivered
type MailConfig struct {
	Driver   string     `yaml:"driver" toml:"driver"`     // ses, smtp, log
	Fallback string     `yaml:"fallback" toml:"fallback"` // optional secondary driver
	From     string     `yaml:"from" toml:"from"`
	SES      SESConfig  `yaml:"ses" toml:"ses"`
	SMTP     SMTPConfig `yaml:"smtp" toml:"smtp"`
}

// SESConfig holds Amazon SES settings; credentials come from the default AWS chain
type SESConfig struct {
	Region           string `yaml:"region" toml:"region"`
	ConfigurationSet string `yaml:"configuration_set" toml:"configuration_set"`
}

// SMTPConfig holds SMTP relay settings
type SMTPConfig struct {
	Host     string `yaml:"host" toml:"host"`
	Port     int    `yaml:"port" toml:"port"`
	Username string `yaml:"username" toml:"username"`
	Password string `yaml:"password" toml:"password"`
	TLS      string `yaml:"tls" toml:"tls"` // mandatory, opportunistic, none
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// MetricsConfig holds metrics endpoint configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	Path    string `yaml:"path" toml:"path"`
}

var validMailDrivers = map[string]bool{"ses": true, "smtp": true, "log": true}

// Default returns a configuration that runs against a local SQLite file
// with mail delivery logged instead of sent.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPAddr:           ":8080",
			Name:               "Orders MCP Server",
			Version:            "1.0.0",
			ShutdownTimeoutRaw: "10s",
			ShutdownTimeout:    10 * time.Second,
		},
		Database: DatabaseConfig{DSN: "orders.db"},
		SSE: SSEConfig{
			HeartbeatInterval:    15 * time.Second,
			CheckInterval:        time.Second,
			MaxLifetime:          time.Hour,
			MaxFailures:          3,
			QueueSize:            100,
			HeartbeatIntervalRaw: "15s",
			CheckIntervalRaw:     "1s",
			MaxLifetimeRaw:       "1h",
		},
		Tools: ToolsConfig{
			QueryTimeout:     30 * time.Second,
			ExportTimeout:    60 * time.Second,
			MailTimeout:      120 * time.Second,
			MaxExportRows:    10000,
			QueryTimeoutRaw:  "30s",
			ExportTimeoutRaw: "60s",
			MailTimeoutRaw:   "120s",
		},
		Mail: MailConfig{
			Driver: "log",
			From:   "orders-mcp@localhost",
			SMTP:   SMTPConfig{Port: 587, TLS: "opportunistic"},
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Metrics: MetricsConfig{Enabled: true, Path: "/metrics"},
	}
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are decoded as TOML, everything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded.
// Unset values keep the defaults from Default().
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw content
	expanded := expandEnvVars(string(data))

	cfg := Default()
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expanded, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault behaves like Load but returns Default() when the file does not exist.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}

	if c.SSE.HeartbeatInterval <= 0 {
		return fmt.Errorf("sse.heartbeat_interval must be positive")
	}
	if c.SSE.CheckInterval <= 0 || c.SSE.CheckInterval > c.SSE.HeartbeatInterval {
		return fmt.Errorf("sse.check_interval must be positive and no longer than sse.heartbeat_interval")
	}
	if c.SSE.MaxLifetime <= 0 {
		return fmt.Errorf("sse.max_lifetime must be positive")
	}
	if c.SSE.MaxFailures < 1 {
		return fmt.Errorf("sse.max_failures must be at least 1")
	}
	if c.SSE.QueueSize < 1 {
		return fmt.Errorf("sse.queue_size must be at least 1")
	}

	if c.Tools.MaxExportRows < 1 {
		return fmt.Errorf("tools.max_export_rows must be at least 1")
	}

	if c.Auth.Enabled {
		if c.Auth.JWTSecret == "" && len(c.Auth.APIKeys) == 0 {
			return fmt.Errorf("auth.jwt_secret or auth.api_keys is required when auth is enabled")
		}
		if c.Auth.JWTSecret != "" && len(c.Auth.JWTSecret) < 32 {
			return fmt.Errorf("auth.jwt_secret must be at least 32 bytes")
		}
	}

	if !validMailDrivers[c.Mail.Driver] {
		return fmt.Errorf("mail.driver %q is invalid (ses, smtp, log)", c.Mail.Driver)
	}
	if c.Mail.Fallback != "" && !validMailDrivers[c.Mail.Fallback] {
		return fmt.Errorf("mail.fallback %q is invalid (ses, smtp, log)", c.Mail.Fallback)
	}
	if c.Mail.Driver != "log" && c.Mail.From == "" {
		return fmt.Errorf("mail.from is required for the %s driver", c.Mail.Driver)
	}
	if (c.Mail.Driver == "smtp" || c.Mail.Fallback == "smtp") && c.Mail.SMTP.Host == "" {
		return fmt.Errorf("mail.smtp.host is required when smtp delivery is configured")
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"server.shutdown_timeout", cfg.Server.ShutdownTimeoutRaw, &cfg.Server.ShutdownTimeout},
		{"sse.heartbeat_interval", cfg.SSE.HeartbeatIntervalRaw, &cfg.SSE.HeartbeatInterval},
		{"sse.check_interval", cfg.SSE.CheckIntervalRaw, &cfg.SSE.CheckInterval},
		{"sse.max_lifetime", cfg.SSE.MaxLifetimeRaw, &cfg.SSE.MaxLifetime},
		{"tools.query_timeout", cfg.Tools.QueryTimeoutRaw, &cfg.Tools.QueryTimeout},
		{"tools.export_timeout", cfg.Tools.ExportTimeoutRaw, &cfg.Tools.ExportTimeout},
		{"tools.mail_timeout", cfg.Tools.MailTimeoutRaw, &cfg.Tools.MailTimeout},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}

	return nil
}
