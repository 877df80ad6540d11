// ABOUTME: End-to-end tests for the SSE HTTP endpoints over a real listener.
// ABOUTME: Reads the stream with go-sse's parser and posts follow-up messages by session id.

package sse

import (
	"context"
	"iter"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gosse "github.com/tmaxmax/go-sse"
)

func newTestServer(t *testing.T) (*Manager, *httptest.Server) {
	t.Helper()
	m := newTestManager(t, func(c *Config) {
		c.HeartbeatInterval = time.Hour
		c.CheckInterval = 5 * time.Millisecond
	})

	mux := http.NewServeMux()
	NewHandler(m, nil).RegisterRoutes(mux)
	srv := httptest.NewServer(mux)

	t.Cleanup(srv.Close)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = m.Shutdown(ctx)
	})
	return m, srv
}

func openStream(t *testing.T, resp *http.Response) (func() gosse.Event, func()) {
	t.Helper()
	next, stop := iter.Pull2(gosse.Read(resp.Body, nil))
	read := func() gosse.Event {
		t.Helper()
		ev, err, ok := next()
		require.True(t, ok, "stream ended early")
		require.NoError(t, err)
		return ev
	}
	return read, func() {
		stop()
		resp.Body.Close()
	}
}

func TestHandler_StreamAndMessageEndpoint(t *testing.T) {
	m, srv := newTestServer(t)

	resp, err := http.Get(srv.URL + StreamPath)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/event-stream")
	assert.Equal(t, "no", resp.Header.Get("X-Accel-Buffering"))

	read, closeStream := openStream(t, resp)

	endpoint := read()
	require.Equal(t, "endpoint", endpoint.Type)
	require.True(t, strings.HasPrefix(endpoint.Data, MessagePath+"?sessionId="))

	welcome := read()
	assert.Equal(t, "welcome", welcome.Type)
	assert.Contains(t, welcome.Data, `"connection_id"`)
	assert.Equal(t, 1, m.Active())

	post, err := http.Post(srv.URL+endpoint.Data, "application/json", strings.NewReader(`{"jsonrpc":"2.0","id":7,"method":"ping"}`))
	require.NoError(t, err)
	post.Body.Close()
	assert.Equal(t, http.StatusAccepted, post.StatusCode)

	msg := read()
	assert.Equal(t, "message", msg.Type)
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":7,"result":{"method":"ping"}}`, msg.Data)

	// Notifications are accepted without queueing anything
	post, err = http.Post(srv.URL+endpoint.Data, "application/json", strings.NewReader(`{"jsonrpc":"2.0","method":"notifications/initialized"}`))
	require.NoError(t, err)
	post.Body.Close()
	assert.Equal(t, http.StatusAccepted, post.StatusCode)

	closeStream()
	require.Eventually(t, func() bool { return m.Active() == 0 }, 2*time.Second, 5*time.Millisecond)

	post, err = http.Post(srv.URL+endpoint.Data, "application/json", strings.NewReader(`{"jsonrpc":"2.0","id":8,"method":"ping"}`))
	require.NoError(t, err)
	post.Body.Close()
	assert.Equal(t, http.StatusNotFound, post.StatusCode)
}

func TestHandler_PostStreamDispatchesOpeningRequest(t *testing.T) {
	m, srv := newTestServer(t)

	resp, err := http.Post(srv.URL+StreamPath, "application/json", strings.NewReader(`{"jsonrpc":"2.0","id":"first","method":"tools/list"}`))
	require.NoError(t, err)
	read, closeStream := openStream(t, resp)
	defer closeStream()

	ev := read()
	assert.Equal(t, "message", ev.Type)
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":"first","result":{"method":"tools/list"}}`, ev.Data)
	assert.Equal(t, 1, m.Active())
}

func TestHandler_UnknownSession(t *testing.T) {
	_, srv := newTestServer(t)

	resp, err := http.Post(srv.URL+MessagePath+"?sessionId=nope", "application/json", strings.NewReader(`{}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHandler_RejectsStreamsAfterShutdown(t *testing.T) {
	m, srv := newTestServer(t)
	require.NoError(t, m.Shutdown(context.Background()))

	resp, err := http.Get(srv.URL + StreamPath)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
