// Package config handles configuration loading for parley-gateway.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable expansion.
// The package provides validation and sensible defaults.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	auth:
//	  token: "${PARLEY_AUTH_TOKEN}"
//
// Syntax: ${VAR_NAME}
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	sessions:
//	  timeout: "1h"
//	  sweep_interval: "1m"
//
// Supported units: ns, us, ms, s, m, h
//
// # Configuration Sections
//
// Server settings:
//
//	server:
//	  http_addr: "0.0.0.0:8080"
//	  api_prefix: "/api/v1"
//
// Authentication (leave both empty to disable auth):
//
//	auth:
//	  token: "${PARLEY_AUTH_TOKEN}"      # static bearer token
//	  jwt_secret: "${PARLEY_JWT_SECRET}" # HS256 JWT verification
//
// Front door limits:
//
//	http:
//	  cors_origins: "*"
//	  max_request_size: 10485760
//	  request_timeout: "30s"
//
// Session store:
//
//	sessions:
//	  timeout: "1h"
//	  sweep_interval: "1m"
//	  max_sessions: 1000
//
// Streaming:
//
//	stream:
//	  default_timeout: "10m"
//	  heartbeat: "60s"
//
// Message ledger:
//
//	database:
//	  path: ":memory:"
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// Metrics:
//
//	metrics:
//	  enabled: true
//	  path: "/metrics"
package config
