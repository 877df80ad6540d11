// Package mcp implements the Model Context Protocol JSON-RPC layer for the orders server.
//
// # Overview
//
// The Dispatcher turns one JSON-RPC 2.0 message into at most one response.
// It holds no per-connection state, so the same instance backs every
// transport:
//
//   - stdio: Dispatcher.ServeStdio reads one message per line
//   - plain HTTP: Server handles POST /mcp and the convenience routes
//   - SSE: the sse package pushes dispatcher responses onto a live stream
//
// # Methods
//
//   - initialize: protocol version negotiation and the tool name list
//   - tools/list: every registered tool with its input schema
//   - tools/call: validated execution through the tools.Router
//   - ping: liveness, answers {"status":"pong"}
//   - notifications/*: acknowledged, or silently accepted when sent without an id
//
// # Errors
//
// Failures are returned as JSON-RPC error objects:
//
//	-32700  parse error (id is null)
//	-32600  invalid request
//	-32601  unknown method or tool
//	-32602  invalid params; data holds {"errors": [{field, message}]}
//	-32603  tool failure, timeout, or recovered panic
//
// # Usage
//
//	router := tools.NewRouter(tools.RouterConfig{Registry: registry, Logger: logger})
//	dispatcher, err := mcp.NewDispatcher(mcp.Config{Router: router, Info: info, Logger: logger})
//	server, err := mcp.NewServer(dispatcher, logger)
//	server.RegisterRoutes(mux)
package mcp
