// ABOUTME: Prometheus collectors for tool calls, JSON-RPC dispatch, and SSE session lifecycle.
// ABOUTME: Collectors register on the default registry and are served by Handler.

package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Label constants.
const (
	Tool    = "tool"
	Outcome = "outcome"
	Method  = "method"
	Reason  = "reason"
	Type    = "type"
)

// Outcome label values.
const (
	OutcomeOK       = "ok"
	OutcomeInvalid  = "invalid_params"
	OutcomeNotFound = "not_found"
	OutcomeError    = "error"
	OutcomeTimeout  = "timeout"
)

var (
	//nolint:gochecknoglobals // collectors are process-wide
	// ToolCallsTotal counts tool executions by tool and outcome.
	ToolCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orders_mcp_tool_calls_total",
			Help: "Total number of tool calls by tool and outcome",
		},
		[]string{Tool, Outcome},
	)

	//nolint:gochecknoglobals
	// ToolCallDuration observes handler latency.
	ToolCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "orders_mcp_tool_call_duration_seconds",
			Help:    "Tool handler execution time",
			Buckets: prometheus.DefBuckets,
		},
		[]string{Tool},
	)

	//nolint:gochecknoglobals
	// RPCRequestsTotal counts dispatched JSON-RPC messages by method and outcome.
	RPCRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orders_mcp_rpc_requests_total",
			Help: "Total number of JSON-RPC messages dispatched",
		},
		[]string{Method, Outcome},
	)

	//nolint:gochecknoglobals
	// SSESessionsActive is the number of open SSE streams.
	SSESessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "orders_mcp_sse_sessions_active",
			Help: "Current number of open SSE sessions",
		},
	)

	//nolint:gochecknoglobals
	// SSEHeartbeatsTotal counts heartbeat attempts by outcome.
	SSEHeartbeatsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orders_mcp_sse_heartbeats_total",
			Help: "Total number of SSE heartbeat attempts",
		},
		[]string{Outcome},
	)

	//nolint:gochecknoglobals
	// SSESessionsClosedTotal counts session teardowns by reason.
	SSESessionsClosedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orders_mcp_sse_sessions_closed_total",
			Help: "Total number of SSE sessions closed by reason",
		},
		[]string{Reason},
	)

	//nolint:gochecknoglobals
	// SSEMessagesDroppedTotal counts queued responses evicted because a session's queue was full.
	SSEMessagesDroppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "orders_mcp_sse_messages_dropped_total",
			Help: "Total number of queued SSE messages dropped by the queue bound",
		},
	)

	//nolint:gochecknoglobals
	// ExportsTotal counts spreadsheet exports by data type and outcome.
	ExportsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orders_mcp_exports_total",
			Help: "Total number of spreadsheet exports by type and outcome",
		},
		[]string{Type, Outcome},
	)
)

//nolint:gochecknoinits
func init() {
	prometheus.MustRegister(
		ToolCallsTotal,
		ToolCallDuration,
		RPCRequestsTotal,
		SSESessionsActive,
		SSEHeartbeatsTotal,
		SSESessionsClosedTotal,
		SSEMessagesDroppedTotal,
		ExportsTotal,
	)
}

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
