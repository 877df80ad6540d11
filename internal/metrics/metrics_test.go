// ABOUTME: Tests for the metrics endpoint.
// ABOUTME: Verifies collectors are registered and exported by Handler.

package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandler_ExportsCollectors(t *testing.T) {
	ToolCallsTotal.WithLabelValues("get_orders", OutcomeOK).Inc()
	SSEHeartbeatsTotal.WithLabelValues(OutcomeOK).Inc()

	srv := httptest.NewServer(Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `orders_mcp_tool_calls_total{outcome="ok",tool="get_orders"}`)
	assert.Contains(t, string(body), "orders_mcp_sse_heartbeats_total")
	assert.Contains(t, string(body), "orders_mcp_sse_sessions_active")
}

func TestGaugeMovesBothWays(t *testing.T) {
	before := testutil.ToFloat64(SSESessionsActive)
	SSESessionsActive.Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(SSESessionsActive))
	SSESessionsActive.Dec()
	assert.Equal(t, before, testutil.ToFloat64(SSESessionsActive))
}
