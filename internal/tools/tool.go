// ABOUTME: Tool capability interface shared by every invocable tool.
// ABOUTME: Defines descriptors, calls, and a function-backed Tool for small handlers.

package tools

import (
	"context"
	"encoding/json"
	"time"

	"github.com/2389/orders-mcp/internal/schema"
)

// Tool is one named, schema-described capability.
// Execute receives arguments already validated and coerced against InputSchema
// and returns a JSON-serializable value.
type Tool interface {
	Name() string
	Description() string
	InputSchema() *schema.Schema
	Execute(ctx context.Context, args map[string]any) (any, error)
}

// Timeouter is implemented by tools that need more than the router default.
type Timeouter interface {
	Timeout() time.Duration
}

// Descriptor is the client-facing view of a Tool.
type Descriptor struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema *schema.Schema `json:"inputSchema"`
}

// Describe builds a descriptor holding a copy of the tool's schema.
func Describe(t Tool) Descriptor {
	return Descriptor{
		Name:        t.Name(),
		Description: t.Description(),
		InputSchema: t.InputSchema().Clone(),
	}
}

// Call is one request to execute a tool.
type Call struct {
	Name      string
	Arguments map[string]any
	RequestID json.RawMessage
}

// ExecuteFunc is the handler signature used by Func.
type ExecuteFunc func(ctx context.Context, args map[string]any) (any, error)

// Func adapts a plain function into a Tool.
type Func struct {
	ToolName        string
	ToolDescription string
	Schema          *schema.Schema
	Handler         ExecuteFunc
	MaxDuration     time.Duration
}

func (f *Func) Name() string                { return f.ToolName }
func (f *Func) Description() string         { return f.ToolDescription }
func (f *Func) InputSchema() *schema.Schema { return f.Schema }

func (f *Func) Execute(ctx context.Context, args map[string]any) (any, error) {
	return f.Handler(ctx, args)
}

// Timeout implements Timeouter; zero defers to the router default.
func (f *Func) Timeout() time.Duration { return f.MaxDuration }
