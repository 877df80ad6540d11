// Package config handles configuration loading for orders-mcp.
//
// # Overview
//
// Configuration is loaded from YAML (default) or TOML (.toml extension) files
// with environment variable expansion. Every field has a default, so a missing
// file yields a runnable local setup backed by SQLite.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from ORDERS_MCP_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/orders-mcp/config.yaml
//  3. ~/.config/orders-mcp/config.yaml
//
// # Environment Variable Expansion
//
//	database:
//	  dsn: "${ORDERS_DATABASE_DSN}"
//
// # Configuration Sections
//
//	server:
//	  http_addr: ":8080"
//	  name: "Orders MCP Server"
//	  shutdown_timeout: "10s"
//
//	database:
//	  dsn: "orders.db"              # or mysql://..., postgres://...
//
//	sse:
//	  heartbeat_interval: "15s"
//	  check_interval: "1s"          # disconnect re-check granularity
//	  max_lifetime: "1h"
//	  max_failures: 3
//	  queue_size: 100
//
//	tools:
//	  query_timeout: "30s"
//	  export_timeout: "60s"
//	  mail_timeout: "120s"
//	  max_export_rows: 10000
//
//	mail:
//	  driver: "ses"                 # ses, smtp, log
//	  fallback: "smtp"
//	  from: "reports@example.com"
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
package config
