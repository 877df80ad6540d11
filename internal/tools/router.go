// ABOUTME: Routes tool calls through lookup, argument validation, and guarded execution.
// ABOUTME: Handles timeouts, panics, logging, and per-tool metrics.

package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/2389/orders-mcp/internal/metrics"
	"github.com/2389/orders-mcp/internal/schema"
)

// ErrToolPanic indicates a tool handler panicked.
var ErrToolPanic = errors.New("tool panicked")

// ErrToolTimeout indicates a tool handler did not finish in time.
var ErrToolTimeout = errors.New("tool execution timed out")

// DefaultTimeout is the default timeout for tool execution.
const DefaultTimeout = 30 * time.Second

// Router validates and executes tool calls.
type Router struct {
	registry *Registry
	logger   *slog.Logger
	timeout  time.Duration
}

// RouterConfig contains configuration options for the Router.
type RouterConfig struct {
	Registry *Registry
	Logger   *slog.Logger
	Timeout  time.Duration
}

// NewRouter creates a new Router with the given configuration.
func NewRouter(cfg RouterConfig) *Router {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Router{
		registry: cfg.Registry,
		logger:   logger.With("component", "router"),
		timeout:  timeout,
	}
}

// Registry returns the registry the router resolves against.
func (r *Router) Registry() *Registry {
	return r.registry
}

type callResult struct {
	value any
	err   error
}

// Call resolves, validates, and executes a tool call.
//
// Errors: ErrToolNotFound for unknown names, *schema.ValidationError for bad
// arguments, ErrToolTimeout when the handler overruns, ErrToolPanic when it
// panics, or the handler's own error. The handler runs detached from ctx's
// cancellation so a disconnecting client does not interrupt it; only the
// timeout bounds it.
func (r *Router) Call(ctx context.Context, call Call) (any, error) {
	tool, err := r.registry.Resolve(call.Name)
	if err != nil {
		r.logger.Debug("tool not found in registry", "tool_name", call.Name, "request_id", string(call.RequestID))
		metrics.ToolCallsTotal.WithLabelValues(call.Name, metrics.OutcomeNotFound).Inc()
		return nil, err
	}

	args, err := schema.Validate(tool.InputSchema(), call.Arguments)
	if err != nil {
		r.logger.Info("tool arguments rejected", "tool_name", call.Name, "request_id", string(call.RequestID), "error", err)
		metrics.ToolCallsTotal.WithLabelValues(call.Name, metrics.OutcomeInvalid).Inc()
		return nil, err
	}

	timeout := r.timeout
	if t, ok := tool.(Timeouter); ok && t.Timeout() > 0 {
		timeout = t.Timeout()
	}

	execCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	r.logger.Info("→ dispatching to tool", "tool_name", call.Name, "request_id", string(call.RequestID))
	start := time.Now()

	done := make(chan callResult, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- callResult{err: fmt.Errorf("%w: %v", ErrToolPanic, p)}
			}
		}()
		v, err := tool.Execute(execCtx, args)
		done <- callResult{value: v, err: err}
	}()

	var res callResult
	select {
	case res = <-done:
	case <-execCtx.Done():
		res = callResult{err: fmt.Errorf("%w after %s", ErrToolTimeout, timeout)}
	}

	elapsed := time.Since(start)
	metrics.ToolCallDuration.WithLabelValues(call.Name).Observe(elapsed.Seconds())

	if res.err != nil {
		outcome := metrics.OutcomeError
		if errors.Is(res.err, ErrToolTimeout) || errors.Is(res.err, context.DeadlineExceeded) {
			outcome = metrics.OutcomeTimeout
		}
		metrics.ToolCallsTotal.WithLabelValues(call.Name, outcome).Inc()
		r.logger.Warn("tool error",
			"tool_name", call.Name,
			"request_id", string(call.RequestID),
			"duration", elapsed,
			"error", res.err,
		)
		return nil, res.err
	}

	metrics.ToolCallsTotal.WithLabelValues(call.Name, metrics.OutcomeOK).Inc()
	r.logger.Info("← tool responded", "tool_name", call.Name, "request_id", string(call.RequestID), "duration", elapsed)
	return res.value, nil
}
