// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML loading, env var expansion, and duration parsing

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	configPath := writeConfig(t, `
server:
  http_addr: "0.0.0.0:9090"
  api_prefix: "/api/v2"

http:
  cors_origins: "https://example.com,https://other.example.com"
  max_request_size: 1048576
  request_timeout: "45s"

sessions:
  timeout: "2h"
  sweep_interval: "30s"
  max_sessions: 50

stream:
  default_timeout: "5m"
  heartbeat: "20s"

database:
  path: "./test.db"

logging:
  level: "debug"
  format: "json"

metrics:
  enabled: true
  path: "/metrics"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.HTTPAddr != "0.0.0.0:9090" {
		t.Errorf("unexpected http_addr: %s", cfg.Server.HTTPAddr)
	}
	if cfg.APIPrefix() != "/api/v2" {
		t.Errorf("unexpected api prefix: %s", cfg.APIPrefix())
	}
	if cfg.HTTP.RequestTimeout != 45*time.Second {
		t.Errorf("unexpected request_timeout: %v", cfg.HTTP.RequestTimeout)
	}
	if cfg.HTTP.MaxRequestSize != 1048576 {
		t.Errorf("unexpected max_request_size: %d", cfg.HTTP.MaxRequestSize)
	}
	if cfg.Sessions.Timeout != 2*time.Hour {
		t.Errorf("unexpected sessions.timeout: %v", cfg.Sessions.Timeout)
	}
	if cfg.Sessions.SweepInterval != 30*time.Second {
		t.Errorf("unexpected sessions.sweep_interval: %v", cfg.Sessions.SweepInterval)
	}
	if cfg.Sessions.MaxSessions != 50 {
		t.Errorf("unexpected max_sessions: %d", cfg.Sessions.MaxSessions)
	}
	if cfg.Stream.DefaultTimeout != 5*time.Minute {
		t.Errorf("unexpected stream.default_timeout: %v", cfg.Stream.DefaultTimeout)
	}
	if cfg.Stream.Heartbeat != 20*time.Second {
		t.Errorf("unexpected stream.heartbeat: %v", cfg.Stream.Heartbeat)
	}
	if cfg.Database.Path != "./test.db" {
		t.Errorf("unexpected database.path: %s", cfg.Database.Path)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("unexpected logging config: %+v", cfg.Logging)
	}
	if !cfg.Metrics.Enabled {
		t.Error("expected metrics enabled")
	}
}

func TestLoad_Defaults(t *testing.T) {
	configPath := writeConfig(t, `
server:
  http_addr: "127.0.0.1:8080"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.APIPrefix() != "/api/v1" {
		t.Errorf("expected default api prefix, got %s", cfg.APIPrefix())
	}
	if cfg.Sessions.MaxSessions != 1000 {
		t.Errorf("expected default max_sessions, got %d", cfg.Sessions.MaxSessions)
	}
	if cfg.Sessions.Timeout != time.Hour {
		t.Errorf("expected default session timeout, got %v", cfg.Sessions.Timeout)
	}
	if cfg.HTTP.RequestTimeout != 30*time.Second {
		t.Errorf("expected default request timeout, got %v", cfg.HTTP.RequestTimeout)
	}
	if cfg.Database.Path != ":memory:" {
		t.Errorf("expected in-memory database default, got %s", cfg.Database.Path)
	}
	if cfg.HTTP.CORSOrigins != "*" {
		t.Errorf("expected default cors origins, got %s", cfg.HTTP.CORSOrigins)
	}
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("PARLEY_TEST_TOKEN", "secret-token-value")

	configPath := writeConfig(t, `
server:
  http_addr: "0.0.0.0:8080"
auth:
  token: "${PARLEY_TEST_TOKEN}"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Auth.Token != "secret-token-value" {
		t.Errorf("expected expanded token, got %q", cfg.Auth.Token)
	}
}

func TestLoad_EnvVarExpansion_UnsetVar(t *testing.T) {
	configPath := writeConfig(t, `
server:
  http_addr: "0.0.0.0:8080"
auth:
  token: "${PARLEY_DEFINITELY_UNSET_VAR}"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Auth.Token != "" {
		t.Errorf("expected empty token for unset var, got %q", cfg.Auth.Token)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	configPath := writeConfig(t, "server: [not: valid: yaml")

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("expected error for invalid YAML")
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	configPath := writeConfig(t, `
server:
  http_addr: "0.0.0.0:8080"
sessions:
  timeout: "not-a-duration"
`)

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("expected error for invalid duration")
	}
	if !strings.Contains(err.Error(), "sessions.timeout") {
		t.Errorf("error should name the offending field: %v", err)
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{
			name:   "missing http_addr",
			mutate: func(c *Config) { c.Server.HTTPAddr = "" },
			want:   "http_addr",
		},
		{
			name:   "bad api prefix",
			mutate: func(c *Config) { c.Server.APIPrefix = "api/v1" },
			want:   "api_prefix",
		},
		{
			name:   "zero max_sessions",
			mutate: func(c *Config) { c.Sessions.MaxSessions = 0 },
			want:   "max_sessions",
		},
		{
			name:   "zero max_request_size",
			mutate: func(c *Config) { c.HTTP.MaxRequestSize = 0 },
			want:   "max_request_size",
		},
		{
			name:   "empty database path",
			mutate: func(c *Config) { c.Database.Path = "" },
			want:   "database.path",
		},
		{
			name:   "short jwt secret",
			mutate: func(c *Config) { c.Auth.JWTSecret = "too-short" },
			want:   "jwt_secret",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error mentioning %q, got %v", tt.want, err)
			}
		})
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("PARLEY_TEST_A", "alpha")
	t.Setenv("PARLEY_TEST_B", "beta")

	result := expandEnvVars("x: ${PARLEY_TEST_A}-${PARLEY_TEST_B}")
	if result != "x: alpha-beta" {
		t.Errorf("unexpected expansion: %q", result)
	}
}
