// Package sse implements the Server-Sent Events transport and its connection lifecycle.
//
// # Endpoints
//
//   - GET /mcp/sse opens a stream. The first frame is the MCP "endpoint" event
//     naming /mcp/message?sessionId=<id>, followed by a welcome frame.
//   - POST /mcp/sse opens a stream whose first frame is the response to the body.
//   - POST /mcp/message?sessionId=<id> dispatches one JSON-RPC message and queues
//     the response onto that session's stream. Unknown sessions get 404.
//
// # Lifecycle
//
// Each stream is a Session driven by Manager.Run:
//
//	ESTABLISHING -> ACTIVE -> CLOSING -> CLOSED
//
// While ACTIVE the manager waits one heartbeat interval in check-interval steps.
// Every step checks the three disconnect signals (request aborted, connection
// abnormal, failed keepalive write), the lifetime ceiling, and the session queue.
// After each full interval it sends a ping frame; consecutive write failures
// up to the limit close the session.
//
// CLOSING sends a best-effort close frame, releases the channel, and removes
// the session from the lookup table.
//
// # Frames
//
//	event: ping
//	id: 3
//	data: {"type":"ping","ping_count":3,"uptime":45.0,"timestamp":"...","connection_id":"..."}
package sse
