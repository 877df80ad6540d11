// ABOUTME: Tests for the tool registry including registration, collision detection, and lookup.
// ABOUTME: Validates ordering, schema isolation, and thread-safe reads.

package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"

	"github.com/2389/orders-mcp/internal/schema"
)

func testTool(name string) *Func {
	return &Func{
		ToolName:        name,
		ToolDescription: name + " description",
		Schema: schema.Object(map[string]*schema.Schema{
			"limit": schema.Integer("Max rows").Min(1).Max(100).WithDefault(10),
		}),
		Handler: func(_ context.Context, args map[string]any) (any, error) {
			return map[string]any{"tool": name, "args": args}, nil
		},
	}
}

func TestRegistryRegister(t *testing.T) {
	t.Run("registers tool successfully", func(t *testing.T) {
		registry := NewRegistry(slog.Default())
		if err := registry.Register(testTool("get_orders")); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		tool, err := registry.Resolve("get_orders")
		if err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}
		if tool.Name() != "get_orders" {
			t.Errorf("expected name 'get_orders', got '%s'", tool.Name())
		}
	})

	t.Run("rejects name collision", func(t *testing.T) {
		registry := NewRegistry(slog.Default())
		if err := registry.Register(testTool("get_orders")); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		err := registry.Register(testTool("get_orders"))
		if !errors.Is(err, ErrToolCollision) {
			t.Errorf("expected ErrToolCollision, got %v", err)
		}
		if registry.Len() != 1 {
			t.Errorf("expected 1 tool after collision, got %d", registry.Len())
		}
	})

	t.Run("rejects tool without name or schema", func(t *testing.T) {
		registry := NewRegistry(nil)

		if err := registry.Register(&Func{Schema: schema.Object(nil)}); !errors.Is(err, ErrInvalidTool) {
			t.Errorf("expected ErrInvalidTool for empty name, got %v", err)
		}
		if err := registry.Register(&Func{ToolName: "no_schema"}); !errors.Is(err, ErrInvalidTool) {
			t.Errorf("expected ErrInvalidTool for nil schema, got %v", err)
		}
	})

	t.Run("MustRegister panics on collision", func(t *testing.T) {
		registry := NewRegistry(nil)
		defer func() {
			if recover() == nil {
				t.Error("expected panic on duplicate registration")
			}
		}()
		registry.MustRegister(testTool("a"), testTool("a"))
	})
}

func TestRegistryResolveUnknown(t *testing.T) {
	registry := NewRegistry(nil)

	_, err := registry.Resolve("does_not_exist")
	if !errors.Is(err, ErrToolNotFound) {
		t.Errorf("expected ErrToolNotFound, got %v", err)
	}
}

func TestRegistryListPreservesRegistrationOrder(t *testing.T) {
	registry := NewRegistry(nil)
	names := []string{"get_orders", "get_products", "get_customer_stats", "get_order_analytics", "send_excel_email"}
	for _, n := range names {
		registry.MustRegister(testTool(n))
	}

	for i, tool := range registry.List() {
		if tool.Name() != names[i] {
			t.Errorf("List()[%d] = %s, want %s", i, tool.Name(), names[i])
		}
	}
	for i, d := range registry.Descriptors() {
		if d.Name != names[i] {
			t.Errorf("Descriptors()[%d] = %s, want %s", i, d.Name, names[i])
		}
	}
}

func TestRegistryDescriptorsAreStable(t *testing.T) {
	registry := NewRegistry(nil)
	registry.MustRegister(testTool("get_orders"))

	first, err := json.Marshal(registry.Descriptors())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	// Mutating a returned descriptor must not leak into the registry
	d := registry.Descriptors()[0]
	d.InputSchema.Properties["limit"].Max(5)
	d.InputSchema.Properties["injected"] = schema.String("nope")

	second, err := json.Marshal(registry.Descriptors())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(first) != string(second) {
		t.Errorf("descriptors changed between calls:\n%s\n%s", first, second)
	}
}

func TestRegistryConcurrentReads(t *testing.T) {
	registry := NewRegistry(nil)
	for i := 0; i < 10; i++ {
		registry.MustRegister(testTool(fmt.Sprintf("tool_%d", i)))
	}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := registry.Resolve(fmt.Sprintf("tool_%d", i%10)); err != nil {
				t.Errorf("Resolve() error = %v", err)
			}
			_ = registry.Descriptors()
		}(i)
	}
	wg.Wait()
}
