// ABOUTME: Tests for JSON-RPC dispatching: envelope validation, method routing, and error mapping.
// ABOUTME: Uses function-backed tools so the dispatcher is exercised without a database.

package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/orders-mcp/internal/schema"
	"github.com/2389/orders-mcp/internal/tools"
)

type rawResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *Error          `json:"error"`
}

type testHarness struct {
	dispatcher *Dispatcher
	calls      atomic.Int32
}

func newTestHarness(t *testing.T) *testHarness {
	t.Helper()
	h := &testHarness{}

	registry := tools.NewRegistry(nil)
	registry.MustRegister(
		&tools.Func{
			ToolName:        "get_orders",
			ToolDescription: "Query orders",
			Schema: schema.Object(map[string]*schema.Schema{
				"status": schema.String("Order status").OneOf("pending", "completed", "all"),
				"limit":  schema.Integer("Max rows").Min(1).Max(100).WithDefault(10),
			}),
			Handler: func(_ context.Context, args map[string]any) (any, error) {
				h.calls.Add(1)
				return map[string]any{"success": true, "limit": args["limit"]}, nil
			},
		},
		&tools.Func{
			ToolName:        "explode",
			ToolDescription: "Always panics",
			Schema:          schema.Object(nil),
			Handler: func(context.Context, map[string]any) (any, error) {
				panic("kaboom")
			},
		},
		&tools.Func{
			ToolName:        "fail",
			ToolDescription: "Always errors",
			Schema:          schema.Object(nil),
			Handler: func(context.Context, map[string]any) (any, error) {
				return nil, errors.New("store unavailable")
			},
		},
	)

	d, err := NewDispatcher(Config{
		Router: tools.NewRouter(tools.RouterConfig{Registry: registry}),
		Info:   ServerInfo{Name: "Orders MCP Server", Version: "1.0.0"},
	})
	require.NoError(t, err)
	h.dispatcher = d
	return h
}

func (h *testHarness) dispatch(t *testing.T, msg string) rawResponse {
	t.Helper()
	out, ok := h.dispatcher.Dispatch(context.Background(), []byte(msg))
	require.True(t, ok, "expected a response for %s", msg)

	var resp rawResponse
	require.NoError(t, json.Unmarshal(out, &resp))
	assert.Equal(t, "2.0", resp.JSONRPC)
	return resp
}

func TestNewDispatcherValidation(t *testing.T) {
	_, err := NewDispatcher(Config{Info: ServerInfo{Name: "x"}})
	assert.Error(t, err)

	router := tools.NewRouter(tools.RouterConfig{Registry: tools.NewRegistry(nil)})
	_, err = NewDispatcher(Config{Router: router})
	assert.Error(t, err)
}

func TestDispatch_ParseError(t *testing.T) {
	h := newTestHarness(t)

	resp := h.dispatch(t, `{"method": "tools/list", "id": 1`)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeParseError, resp.Error.Code)
	assert.Equal(t, "null", string(resp.ID))
}

func TestDispatch_InvalidRequest(t *testing.T) {
	h := newTestHarness(t)

	tests := []struct {
		name   string
		msg    string
		wantID string
	}{
		{"array body", `[1,2,3]`, "null"},
		{"missing method", `{"jsonrpc":"2.0","id":7}`, "7"},
		{"wrong version", `{"jsonrpc":"1.0","id":"a","method":"ping"}`, `"a"`},
		{"object id", `{"jsonrpc":"2.0","id":{"x":1},"method":"ping"}`, "null"},
		{"non-string method", `{"jsonrpc":"2.0","id":3,"method":5}`, "3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := h.dispatch(t, tt.msg)
			require.NotNil(t, resp.Error)
			assert.Equal(t, CodeInvalidRequest, resp.Error.Code)
			assert.Equal(t, tt.wantID, string(resp.ID))
		})
	}
}

func TestDispatch_UnknownMethodEchoesID(t *testing.T) {
	h := newTestHarness(t)

	resp := h.dispatch(t, `{"jsonrpc":"2.0","id":"abc","method":"resources/list"}`)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeMethodNotFound, resp.Error.Code)
	assert.Equal(t, "Method not found: resources/list", resp.Error.Message)
	assert.Equal(t, `"abc"`, string(resp.ID))
	assert.Nil(t, resp.Result)
}

func TestDispatch_Notifications(t *testing.T) {
	h := newTestHarness(t)

	t.Run("notification without id gets no response", func(t *testing.T) {
		out, ok := h.dispatcher.Dispatch(context.Background(), []byte(`{"jsonrpc":"2.0","method":"notifications/initialized"}`))
		assert.False(t, ok)
		assert.Nil(t, out)
	})

	t.Run("notification with id is acknowledged", func(t *testing.T) {
		resp := h.dispatch(t, `{"jsonrpc":"2.0","id":1,"method":"notifications/initialized"}`)
		assert.Nil(t, resp.Error)
		assert.JSONEq(t, `{"status":"ok"}`, string(resp.Result))
	})

	t.Run("request without id answered with null id", func(t *testing.T) {
		resp := h.dispatch(t, `{"jsonrpc":"2.0","method":"ping"}`)
		assert.Equal(t, "null", string(resp.ID))
		assert.JSONEq(t, `{"status":"pong"}`, string(resp.Result))
	})
}

func TestDispatch_Initialize(t *testing.T) {
	h := newTestHarness(t)

	t.Run("echoes supported version", func(t *testing.T) {
		resp := h.dispatch(t, `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-03-26","clientInfo":{"name":"test","version":"0"}}}`)
		require.Nil(t, resp.Error)

		var result InitializeResult
		require.NoError(t, json.Unmarshal(resp.Result, &result))
		assert.Equal(t, "2025-03-26", result.ProtocolVersion)
		assert.Equal(t, "Orders MCP Server", result.ServerInfo.Name)
		assert.Equal(t, []string{"get_orders", "explode", "fail"}, result.Capabilities.Tools.Available)
		assert.False(t, result.Capabilities.Tools.ListChanged)
	})

	t.Run("falls back to default version", func(t *testing.T) {
		resp := h.dispatch(t, `{"jsonrpc":"2.0","id":2,"method":"initialize","params":{"protocolVersion":"1999-01-01"}}`)
		var result InitializeResult
		require.NoError(t, json.Unmarshal(resp.Result, &result))
		assert.Equal(t, DefaultProtocolVersion, result.ProtocolVersion)
	})

	t.Run("no params", func(t *testing.T) {
		resp := h.dispatch(t, `{"jsonrpc":"2.0","id":3,"method":"initialize"}`)
		require.Nil(t, resp.Error)
	})
}

func TestDispatch_ToolsList(t *testing.T) {
	h := newTestHarness(t)

	first := h.dispatch(t, `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`)
	second := h.dispatch(t, `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`)
	assert.Equal(t, string(first.Result), string(second.Result), "tools/list must be stable")

	var result struct {
		Tools []struct {
			Name        string          `json:"name"`
			InputSchema json.RawMessage `json:"inputSchema"`
		} `json:"tools"`
	}
	require.NoError(t, json.Unmarshal(first.Result, &result))
	require.Len(t, result.Tools, 3)
	assert.Equal(t, "get_orders", result.Tools[0].Name)
	assert.Contains(t, string(result.Tools[0].InputSchema), `"maximum":100`)
}

func TestDispatch_ToolsCall(t *testing.T) {
	t.Run("success wraps indented JSON text", func(t *testing.T) {
		h := newTestHarness(t)
		resp := h.dispatch(t, `{"jsonrpc":"2.0","id":5,"method":"tools/call","params":{"name":"get_orders","arguments":{"limit":3}}}`)
		require.Nil(t, resp.Error)

		var result CallToolResult
		require.NoError(t, json.Unmarshal(resp.Result, &result))
		require.Len(t, result.Content, 1)
		assert.Equal(t, "text", result.Content[0].Type)
		assert.JSONEq(t, `{"success":true,"limit":3}`, result.Content[0].Text)
		assert.Contains(t, result.Content[0].Text, "\n  ")
	})

	t.Run("validation failure never reaches handler", func(t *testing.T) {
		h := newTestHarness(t)
		resp := h.dispatch(t, `{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"get_orders","arguments":{"limit":500}}}`)
		require.NotNil(t, resp.Error)
		assert.Equal(t, CodeInvalidParams, resp.Error.Code)
		assert.Equal(t, "2", string(resp.ID))

		data, err := json.Marshal(resp.Error.Data)
		require.NoError(t, err)
		assert.Contains(t, string(data), `"field":"limit"`)
		assert.Zero(t, h.calls.Load())
	})

	t.Run("unknown tool", func(t *testing.T) {
		h := newTestHarness(t)
		resp := h.dispatch(t, `{"jsonrpc":"2.0","id":9,"method":"tools/call","params":{"name":"drop_tables"}}`)
		require.NotNil(t, resp.Error)
		assert.Equal(t, CodeMethodNotFound, resp.Error.Code)
		assert.Equal(t, "Tool not found: drop_tables", resp.Error.Message)
	})

	t.Run("missing name", func(t *testing.T) {
		h := newTestHarness(t)
		resp := h.dispatch(t, `{"jsonrpc":"2.0","id":9,"method":"tools/call","params":{"arguments":{}}}`)
		require.NotNil(t, resp.Error)
		assert.Equal(t, CodeInvalidParams, resp.Error.Code)
	})

	t.Run("arguments must be an object", func(t *testing.T) {
		h := newTestHarness(t)
		resp := h.dispatch(t, `{"jsonrpc":"2.0","id":9,"method":"tools/call","params":{"name":"get_orders","arguments":[1]}}`)
		require.NotNil(t, resp.Error)
		assert.Equal(t, CodeInvalidParams, resp.Error.Code)
	})

	t.Run("handler panic becomes internal error", func(t *testing.T) {
		h := newTestHarness(t)
		resp := h.dispatch(t, `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"explode"}}`)
		require.NotNil(t, resp.Error)
		assert.Equal(t, CodeInternalError, resp.Error.Code)
		assert.Contains(t, resp.Error.Data, "kaboom")
	})

	t.Run("handler error becomes internal error", func(t *testing.T) {
		h := newTestHarness(t)
		resp := h.dispatch(t, `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"fail"}}`)
		require.NotNil(t, resp.Error)
		assert.Equal(t, CodeInternalError, resp.Error.Code)
		assert.Equal(t, "store unavailable", resp.Error.Data)
	})
}

func TestHandle_ReturnsNilForNotification(t *testing.T) {
	h := newTestHarness(t)
	assert.Nil(t, h.dispatcher.Handle(context.Background(), &Request{Method: "notifications/cancelled"}))

	resp := h.dispatcher.Handle(context.Background(), &Request{Method: MethodPing, ID: json.RawMessage(`42`)})
	require.NotNil(t, resp)
	assert.Equal(t, "42", string(resp.ID))
}
