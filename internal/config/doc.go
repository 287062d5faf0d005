// Package config handles configuration loading for prachand-server.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable expansion.
// Missing values fall back to defaults before validation runs.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path given with --config
//  2. Path from PRACHAND_CONFIG environment variable
//  3. $XDG_CONFIG_HOME/prachand/server.yaml (or ~/.config/prachand/server.yaml)
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	database:
//	  password: "${PRACHAND_DB_PASSWORD}"
//
// # Configuration Sections
//
// Server settings:
//
//	server:
//	  host: "127.0.0.1"
//	  port: 1234
//	  read_header_timeout: "10s"
//	  shutdown_timeout: "5s"
//	  tls:
//	    cert_file: "/etc/prachand/server.crt"
//	    key_file: "/etc/prachand/server.key"
//
// Database and connection pool:
//
//	database:
//	  driver: "postgres"        # sqlite (default) or postgres
//	  path: "./prachand.db"     # sqlite only
//	  host: "localhost"
//	  port: 5432
//	  user: "prachand"
//	  password: "${PRACHAND_DB_PASSWORD}"
//	  name: "prachand"
//	  sslmode: "disable"
//	  max_connections: 10
//
// Token issuance:
//
//	auth:
//	  issuer: "prachand"
//	  key_attempts: 16
//
// Logging and metrics:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//	metrics:
//	  enabled: true
//	  path: "/metrics"
package config
