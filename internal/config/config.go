// ABOUTME: Configuration loading and parsing for parley-gateway
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete parley-gateway configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Auth     AuthConfig     `yaml:"auth"`
	HTTP     HTTPConfig     `yaml:"http"`
	Sessions SessionsConfig `yaml:"sessions"`
	Stream   StreamConfig   `yaml:"stream"`
	Database DatabaseConfig `yaml:"database"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr  string `yaml:"http_addr"`
	APIPrefix string `yaml:"api_prefix"`
}

// AuthConfig holds authentication configuration.
// Token enables static bearer-token auth; JWTSecret enables HS256 JWT auth.
// When both are empty the API is open.
type AuthConfig struct {
	Token     string `yaml:"token"`
	JWTSecret string `yaml:"jwt_secret"`
}

// HTTPConfig holds front-door limits and CORS configuration
type HTTPConfig struct {
	CORSOrigins    string        `yaml:"cors_origins"`
	MaxRequestSize int64         `yaml:"max_request_size"`
	RequestTimeout time.Duration `yaml:"-"`

	// Raw string value for YAML unmarshaling
	RequestTimeoutRaw string `yaml:"request_timeout"`
}

// SessionsConfig holds session store tuning
type SessionsConfig struct {
	Timeout       time.Duration `yaml:"-"`
	SweepInterval time.Duration `yaml:"-"`
	MaxSessions   int           `yaml:"max_sessions"`

	// Raw string values for YAML unmarshaling
	TimeoutRaw       string `yaml:"timeout"`
	SweepIntervalRaw string `yaml:"sweep_interval"`
}

// StreamConfig holds SSE streaming tuning
type StreamConfig struct {
	DefaultTimeout time.Duration `yaml:"-"`
	Heartbeat      time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling
	DefaultTimeoutRaw string `yaml:"default_timeout"`
	HeartbeatRaw      string `yaml:"heartbeat"`
}

// DatabaseConfig holds message ledger configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig holds metrics endpoint configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Default returns a Config populated with defaults suitable for local use.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPAddr:  "0.0.0.0:8080",
			APIPrefix: "/api/v1",
		},
		HTTP: HTTPConfig{
			CORSOrigins:    "*",
			MaxRequestSize: 10 << 20, // 10MB
			RequestTimeout: 30 * time.Second,
		},
		Sessions: SessionsConfig{
			Timeout:       time.Hour,
			SweepInterval: time.Minute,
			MaxSessions:   1000,
		},
		Stream: StreamConfig{
			DefaultTimeout: 10 * time.Minute,
			Heartbeat:      60 * time.Second,
		},
		Database: DatabaseConfig{
			Path: ":memory:",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Path:    "/metrics",
		},
	}
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
// Fields missing from the file fall back to the defaults from Default().
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expandedData), cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Parse duration fields
	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	// Match ${VAR_NAME} pattern
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}

	if c.Server.APIPrefix != "" && !strings.HasPrefix(c.Server.APIPrefix, "/") {
		return fmt.Errorf("server.api_prefix must start with /")
	}

	if c.Sessions.MaxSessions <= 0 {
		return fmt.Errorf("sessions.max_sessions must be positive")
	}

	if c.HTTP.MaxRequestSize <= 0 {
		return fmt.Errorf("http.max_request_size must be positive")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required (use \":memory:\" for no file)")
	}

	if c.Auth.JWTSecret != "" && len(c.Auth.JWTSecret) < 32 {
		return fmt.Errorf("auth.jwt_secret must be at least 32 bytes")
	}

	return nil
}

// APIPrefix returns the configured API prefix without a trailing slash.
func (c *Config) APIPrefix() string {
	return strings.TrimRight(c.Server.APIPrefix, "/")
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		raw  string
		name string
		dst  *time.Duration
	}{
		{cfg.HTTP.RequestTimeoutRaw, "http.request_timeout", &cfg.HTTP.RequestTimeout},
		{cfg.Sessions.TimeoutRaw, "sessions.timeout", &cfg.Sessions.Timeout},
		{cfg.Sessions.SweepIntervalRaw, "sessions.sweep_interval", &cfg.Sessions.SweepInterval},
		{cfg.Stream.DefaultTimeoutRaw, "stream.default_timeout", &cfg.Stream.DefaultTimeout},
		{cfg.Stream.HeartbeatRaw, "stream.heartbeat", &cfg.Stream.Heartbeat},
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
