// ABOUTME: JSON-RPC 2.0 dispatcher shared by the stdio, SSE, and plain HTTP transports.
// ABOUTME: Routes initialize, tools/list, tools/call, ping, and notifications to the tool router.

package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/2389/orders-mcp/internal/metrics"
	"github.com/2389/orders-mcp/internal/schema"
	"github.com/2389/orders-mcp/internal/tools"
)

// Supported MCP protocol versions
var supportedProtocolVersions = map[string]bool{
	"2024-11-05": true,
	"2025-03-26": true,
	"2025-06-18": true,
}

// DefaultProtocolVersion is advertised when the client asks for a version we do not know
const DefaultProtocolVersion = "2024-11-05"

// JSON-RPC 2.0 types

// Request represents a JSON-RPC 2.0 request or notification.
// ID is nil when the member is absent and "null" when it was sent as null.
type Request struct {
	JSONRPC *string         `json:"jsonrpc,omitempty"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response represents a JSON-RPC 2.0 response. Exactly one of Result and Error is set.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Error represents a JSON-RPC 2.0 error object.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Standard JSON-RPC error codes
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// Method names
const (
	MethodInitialize  = "initialize"
	MethodToolsList   = "tools/list"
	MethodToolsCall   = "tools/call"
	MethodPing        = "ping"
	MethodInitialized = "notifications/initialized"

	notificationPrefix = "notifications/"
)

var nullID = json.RawMessage("null")

// MCP-specific types

// ServerInfo identifies this server to clients.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// InitializeParams are the params for initialize.
type InitializeParams struct {
	ProtocolVersion string         `json:"protocolVersion"`
	Capabilities    map[string]any `json:"capabilities,omitempty"`
	ClientInfo      *ServerInfo    `json:"clientInfo,omitempty"`
}

// InitializeResult is the result for initialize.
type InitializeResult struct {
	ProtocolVersion string       `json:"protocolVersion"`
	Capabilities    Capabilities `json:"capabilities"`
	ServerInfo      ServerInfo   `json:"serverInfo"`
}

// Capabilities advertises what the server supports.
type Capabilities struct {
	Tools ToolsCapability `json:"tools"`
}

// ToolsCapability lists the tools surfaced at initialize time.
type ToolsCapability struct {
	ListChanged bool     `json:"listChanged"`
	Available   []string `json:"available"`
}

// ListToolsResult is the result for tools/list.
type ListToolsResult struct {
	Tools []tools.Descriptor `json:"tools"`
}

// CallToolParams are the params for tools/call.
type CallToolParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// CallToolResult is the result for tools/call.
type CallToolResult struct {
	Content []Content `json:"content"`
}

// Content represents content in a tool result.
type Content struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// StatusResult is the result for ping and acknowledged notifications.
type StatusResult struct {
	Status string `json:"status"`
}

// Config holds configuration for the Dispatcher.
type Config struct {
	Router *tools.Router
	Info   ServerInfo
	Logger *slog.Logger
}

// Dispatcher maps JSON-RPC envelopes to tool router calls. It holds no
// per-session state, so one instance serves every transport.
type Dispatcher struct {
	router *tools.Router
	info   ServerInfo
	logger *slog.Logger
}

// NewDispatcher creates a new Dispatcher with the given configuration.
func NewDispatcher(cfg Config) (*Dispatcher, error) {
	if cfg.Router == nil {
		return nil, errors.New("router is required")
	}
	if cfg.Info.Name == "" {
		return nil, errors.New("server name is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Dispatcher{
		router: cfg.Router,
		info:   cfg.Info,
		logger: logger.With("component", "mcp"),
	}, nil
}

// Info returns the server identity reported by initialize.
func (d *Dispatcher) Info() ServerInfo {
	return d.info
}

// Registry returns the registry backing tools/list.
func (d *Dispatcher) Registry() *tools.Registry {
	return d.router.Registry()
}

// Dispatch handles one raw JSON-RPC message. It returns the encoded response
// and true, or nil and false when the message is a notification that gets no reply.
func (d *Dispatcher) Dispatch(ctx context.Context, raw []byte) ([]byte, bool) {
	req, errResp := parseRequest(raw)
	var resp *Response
	if errResp != nil {
		metrics.RPCRequestsTotal.WithLabelValues("invalid", outcomeFor(errResp)).Inc()
		d.logger.Debug("rejected malformed message", "code", errResp.Error.Code, "error", errResp.Error.Message)
		resp = errResp
	} else {
		resp = d.Handle(ctx, req)
	}
	if resp == nil {
		return nil, false
	}

	data, err := json.Marshal(resp)
	if err != nil {
		// Only reachable when a result holds an unencodable value
		d.logger.Error("encoding response", "error", err)
		data, _ = json.Marshal(errorResponse(resp.ID, CodeInternalError, "Internal error", err.Error()))
	}
	return data, true
}

// Handle executes a parsed request. It returns nil for notifications.
func (d *Dispatcher) Handle(ctx context.Context, req *Request) *Response {
	id := req.ID
	notification := id == nil && strings.HasPrefix(req.Method, notificationPrefix)
	if id == nil {
		id = nullID
	}

	resp := d.route(ctx, id, req)

	metrics.RPCRequestsTotal.WithLabelValues(methodLabel(req.Method), outcomeFor(resp)).Inc()
	d.logger.Debug("dispatched", "method", req.Method, "id", string(id), "error", resp.Error != nil)

	if notification {
		return nil
	}
	return resp
}

func (d *Dispatcher) route(ctx context.Context, id json.RawMessage, req *Request) *Response {
	switch req.Method {
	case MethodInitialize:
		return d.handleInitialize(id, req.Params)
	case MethodToolsList:
		return resultResponse(id, ListToolsResult{Tools: d.router.Registry().Descriptors()})
	case MethodToolsCall:
		return d.handleToolsCall(ctx, id, req.Params)
	case MethodPing:
		return resultResponse(id, StatusResult{Status: "pong"})
	default:
		if strings.HasPrefix(req.Method, notificationPrefix) {
			return resultResponse(id, StatusResult{Status: "ok"})
		}
		return errorResponse(id, CodeMethodNotFound, "Method not found: "+req.Method, nil)
	}
}

func (d *Dispatcher) handleInitialize(id, params json.RawMessage) *Response {
	var p InitializeParams
	if len(params) > 0 && !isNull(params) {
		if err := json.Unmarshal(params, &p); err != nil {
			return errorResponse(id, CodeInvalidParams, "Invalid params", err.Error())
		}
	}

	version := DefaultProtocolVersion
	if supportedProtocolVersions[p.ProtocolVersion] {
		version = p.ProtocolVersion
	}

	clientName := ""
	if p.ClientInfo != nil {
		clientName = p.ClientInfo.Name
	}
	d.logger.Info("client initialized", "client", clientName, "requested_version", p.ProtocolVersion, "protocol_version", version)

	return resultResponse(id, InitializeResult{
		ProtocolVersion: version,
		Capabilities: Capabilities{
			Tools: ToolsCapability{ListChanged: false, Available: d.router.Registry().Names()},
		},
		ServerInfo: d.info,
	})
}

func (d *Dispatcher) handleToolsCall(ctx context.Context, id, params json.RawMessage) *Response {
	if len(params) == 0 || isNull(params) {
		return errorResponse(id, CodeInvalidParams, "Invalid params", "params.name is required")
	}

	var p CallToolParams
	if err := json.Unmarshal(params, &p); err != nil {
		return errorResponse(id, CodeInvalidParams, "Invalid params", err.Error())
	}
	if p.Name == "" {
		return errorResponse(id, CodeInvalidParams, "Invalid params", "params.name is required")
	}

	var args map[string]any
	if len(p.Arguments) > 0 && !isNull(p.Arguments) {
		if err := json.Unmarshal(p.Arguments, &args); err != nil {
			return errorResponse(id, CodeInvalidParams, "Invalid params", "params.arguments must be an object")
		}
	}

	result, err := d.router.Call(ctx, tools.Call{Name: p.Name, Arguments: args, RequestID: id})
	if err != nil {
		return d.toolError(id, p.Name, err)
	}

	text, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return errorResponse(id, CodeInternalError, "Internal error", fmt.Sprintf("encoding tool result: %v", err))
	}

	return resultResponse(id, CallToolResult{Content: []Content{{Type: "text", Text: string(text)}}})
}

// toolError maps router errors to JSON-RPC error responses.
func (d *Dispatcher) toolError(id json.RawMessage, name string, err error) *Response {
	var verr *schema.ValidationError
	switch {
	case errors.Is(err, tools.ErrToolNotFound):
		return errorResponse(id, CodeMethodNotFound, "Tool not found: "+name, nil)
	case errors.As(err, &verr):
		return errorResponse(id, CodeInvalidParams, "Invalid params", map[string]any{"errors": verr.Fields})
	case errors.Is(err, tools.ErrToolTimeout), errors.Is(err, context.DeadlineExceeded):
		return errorResponse(id, CodeInternalError, "Internal error", "tool execution timed out: "+err.Error())
	default:
		return errorResponse(id, CodeInternalError, "Internal error", err.Error())
	}
}

// parseRequest decodes and structurally validates one message. On failure it
// returns an error response carrying the id when it could be recovered.
func parseRequest(raw []byte) (*Request, *Response) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, errorResponse(nullID, CodeParseError, "Parse error", "empty message")
	}
	if !json.Valid(raw) {
		return nil, errorResponse(nullID, CodeParseError, "Parse error", nil)
	}
	if raw[0] != '{' {
		return nil, errorResponse(nullID, CodeInvalidRequest, "Invalid Request", "message must be a JSON object")
	}

	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		// Valid JSON with mistyped members, e.g. "method": 5
		return nil, errorResponse(recoverID(raw), CodeInvalidRequest, "Invalid Request", err.Error())
	}

	if req.ID != nil && !validID(req.ID) {
		return nil, errorResponse(nullID, CodeInvalidRequest, "Invalid Request", "id must be a string, number, or null")
	}
	id := req.ID
	if id == nil {
		id = nullID
	}
	if req.JSONRPC != nil && *req.JSONRPC != "2.0" {
		return nil, errorResponse(id, CodeInvalidRequest, "Invalid Request", `jsonrpc must be "2.0"`)
	}
	if req.Method == "" {
		return nil, errorResponse(id, CodeInvalidRequest, "Invalid Request", "method is required")
	}
	return &req, nil
}

// recoverID extracts a usable id from an object whose other members failed to decode.
func recoverID(raw []byte) json.RawMessage {
	var peek struct {
		ID json.RawMessage `json:"id"`
	}
	if json.Unmarshal(raw, &peek) == nil && peek.ID != nil && validID(peek.ID) {
		return peek.ID
	}
	return nullID
}

func validID(id json.RawMessage) bool {
	switch id[0] {
	case '"', 'n', '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		return true
	default:
		return false
	}
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), nullID)
}

func resultResponse(id json.RawMessage, result any) *Response {
	return &Response{JSONRPC: "2.0", ID: id, Result: result}
}

func errorResponse(id json.RawMessage, code int, message string, data any) *Response {
	return &Response{JSONRPC: "2.0", ID: id, Error: &Error{Code: code, Message: message, Data: data}}
}

func methodLabel(method string) string {
	switch method {
	case MethodInitialize, MethodToolsList, MethodToolsCall, MethodPing, MethodInitialized:
		return method
	default:
		if strings.HasPrefix(method, notificationPrefix) {
			return "notification"
		}
		return "unknown"
	}
}

func outcomeFor(resp *Response) string {
	if resp.Error == nil {
		return metrics.OutcomeOK
	}
	switch resp.Error.Code {
	case CodeInvalidParams:
		return metrics.OutcomeInvalid
	case CodeMethodNotFound:
		return metrics.OutcomeNotFound
	default:
		return metrics.OutcomeError
	}
}
