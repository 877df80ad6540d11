// Package gateway assembles the orders-mcp server from configuration.
//
// # Overview
//
// NewCore opens the data store, builds the mail sender and spreadsheet
// exporter, registers the built-in tools, and puts a JSON-RPC dispatcher in
// front of them. The stdio command stops there. New adds the HTTP side:
//
//   - POST /mcp and the convenience routes from package mcp
//   - GET|POST /mcp/sse and POST /mcp/message from package sse
//   - GET /healthz (liveness) and GET /readyz (database ping)
//   - GET /metrics when metrics are enabled
//
// When auth is enabled only the /mcp routes require a bearer token. Every
// response carries permissive CORS headers.
//
// # Lifecycle
//
// Run listens on server.http_addr and blocks until the context is canceled.
// Shutdown closes SSE sessions first, then stops the HTTP server and closes
// the store, all bounded by server.shutdown_timeout.
package gateway
