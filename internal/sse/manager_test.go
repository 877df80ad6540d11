// ABOUTME: Tests for the SSE lifecycle manager using an in-memory channel with failure injection.
// ABOUTME: Intervals are milliseconds so heartbeat, teardown, and lifetime paths run quickly.

package sse

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gosse "github.com/tmaxmax/go-sse"
)

type frame struct {
	event string
	id    string
	data  string
}

func parseFrame(text string) frame {
	var f frame
	var data []string
	for _, line := range strings.Split(text, "\n") {
		switch {
		case strings.HasPrefix(line, "event: "):
			f.event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "id: "):
			f.id = strings.TrimPrefix(line, "id: ")
		case strings.HasPrefix(line, "data: "):
			data = append(data, strings.TrimPrefix(line, "data: "))
		}
	}
	f.data = strings.Join(data, "\n")
	return f
}

// fakeChannel records delivered frames. failSend decides per attempt whether a
// frame write fails; nth counts attempts per event name starting at 1.
type fakeChannel struct {
	mu           sync.Mutex
	frames       []frame
	attempts     map[string]int
	failSend     func(f frame, nth int) error
	keepaliveErr error

	aborted      atomic.Bool
	panicAborted atomic.Bool
	finished     atomic.Bool
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{attempts: make(map[string]int)}
}

func (c *fakeChannel) Send(msg *gosse.Message) error {
	var buf bytes.Buffer
	if _, err := msg.WriteTo(&buf); err != nil {
		return err
	}
	f := parseFrame(buf.String())

	c.mu.Lock()
	defer c.mu.Unlock()
	c.attempts[f.event]++
	if c.failSend != nil {
		if err := c.failSend(f, c.attempts[f.event]); err != nil {
			return err
		}
	}
	c.frames = append(c.frames, f)
	return nil
}

func (c *fakeChannel) Flush() error { return nil }

func (c *fakeChannel) Keepalive() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.keepaliveErr
}

func (c *fakeChannel) Aborted() bool {
	if c.panicAborted.Load() {
		panic("connection state unavailable")
	}
	return c.aborted.Load()
}

func (c *fakeChannel) Abnormal() bool { return false }
func (c *fakeChannel) Finish()        { c.finished.Store(true) }

func (c *fakeChannel) setKeepaliveErr(err error) {
	c.mu.Lock()
	c.keepaliveErr = err
	c.mu.Unlock()
}

func (c *fakeChannel) byEvent(event string) []frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []frame
	for _, f := range c.frames {
		if f.event == event {
			out = append(out, f)
		}
	}
	return out
}

func (c *fakeChannel) first() frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.frames) == 0 {
		return frame{}
	}
	return c.frames[0]
}

type stubDispatcher struct{}

func (stubDispatcher) Dispatch(_ context.Context, raw []byte) ([]byte, bool) {
	var req struct {
		ID     json.RawMessage `json:"id"`
		Method string          `json:"method"`
	}
	if json.Unmarshal(raw, &req) != nil {
		return []byte(`{"jsonrpc":"2.0","id":null,"error":{"code":-32700,"message":"Parse error"}}`), true
	}
	if req.ID == nil {
		return nil, false
	}
	return []byte(`{"jsonrpc":"2.0","id":` + string(req.ID) + `,"result":{"method":"` + req.Method + `"}}`), true
}

func newTestManager(t *testing.T, mutate func(*Config)) *Manager {
	t.Helper()
	cfg := Config{
		HeartbeatInterval: 10 * time.Millisecond,
		CheckInterval:     2 * time.Millisecond,
		MaxFailures:       3,
		QueueSize:         4,
		Server:            ServerInfo{Name: "Orders MCP Server", Version: "1.0.0"},
		Dispatcher:        stubDispatcher{},
	}
	if mutate != nil {
		mutate(&cfg)
	}
	m, err := NewManager(cfg)
	require.NoError(t, err)
	return m
}

func runSession(t *testing.T, m *Manager, ch Channel, start Start) (*Session, <-chan struct{}) {
	t.Helper()
	sess, err := m.Open()
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		m.Run(context.Background(), sess, ch, start)
	}()
	return sess, done
}

func waitClosed(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("session did not close")
	}
}

func closeReason(t *testing.T, ch *fakeChannel) string {
	t.Helper()
	frames := ch.byEvent("close")
	require.Len(t, frames, 1)
	var payload closePayload
	require.NoError(t, json.Unmarshal([]byte(frames[0].data), &payload))
	return payload.Reason
}

func TestNewManagerValidation(t *testing.T) {
	_, err := NewManager(Config{})
	assert.Error(t, err, "dispatcher is required")

	_, err = NewManager(Config{Dispatcher: stubDispatcher{}, HeartbeatInterval: time.Second, CheckInterval: time.Minute})
	assert.Error(t, err)

	m, err := NewManager(Config{Dispatcher: stubDispatcher{}})
	require.NoError(t, err)
	assert.Equal(t, DefaultHeartbeatInterval, m.cfg.HeartbeatInterval)
	assert.Equal(t, DefaultMaxLifetime, m.cfg.MaxLifetime)
	assert.Equal(t, DefaultQueueSize, m.cfg.QueueSize)
}

func TestRun_WelcomeThenMonotonicHeartbeats(t *testing.T) {
	m := newTestManager(t, nil)
	ch := newFakeChannel()
	sess, done := runSession(t, m, ch, Start{MessageEndpoint: "/mcp/message?sessionId=x"})

	require.Eventually(t, func() bool { return len(ch.byEvent("ping")) >= 4 }, 2*time.Second, time.Millisecond)
	assert.Equal(t, StateActive, sess.State())

	ch.aborted.Store(true)
	waitClosed(t, done)

	welcome := ch.first()
	assert.Equal(t, "welcome", welcome.event)
	var w welcomePayload
	require.NoError(t, json.Unmarshal([]byte(welcome.data), &w))
	assert.Equal(t, sess.ID, w.ConnectionID)
	assert.Equal(t, "Orders MCP Server", w.Server.Name)
	assert.Equal(t, "/mcp/message?sessionId=x", w.MessageEndpoint)

	pings := ch.byEvent("ping")
	var prev heartbeatPayload
	for i, f := range pings {
		var hb heartbeatPayload
		require.NoError(t, json.Unmarshal([]byte(f.data), &hb))
		assert.Equal(t, "ping", hb.Type)
		assert.Equal(t, i+1, hb.PingCount)
		assert.Equal(t, strconv.Itoa(hb.PingCount), f.id)
		assert.Equal(t, sess.ID, hb.ConnectionID)
		if i > 0 {
			assert.Greater(t, hb.PingCount, prev.PingCount)
			assert.GreaterOrEqual(t, hb.Uptime, prev.Uptime)
		}
		_, err := time.Parse(time.RFC3339Nano, hb.Timestamp)
		assert.NoError(t, err)
		prev = hb
	}

	assert.Equal(t, ReasonClientGone, closeReason(t, ch))
}

func TestRun_ClosesAfterConsecutiveHeartbeatFailures(t *testing.T) {
	m := newTestManager(t, nil)
	ch := newFakeChannel()
	ch.failSend = func(f frame, _ int) error {
		if f.event == "ping" {
			return errors.New("write: broken pipe")
		}
		return nil
	}

	sess, done := runSession(t, m, ch, Start{})
	waitClosed(t, done)

	assert.Equal(t, StateClosed, sess.State())
	assert.Equal(t, 3, sess.HeartbeatCount())
	assert.Equal(t, 3, sess.ConsecutiveFailures())
	_, found := m.Lookup(sess.ID)
	assert.False(t, found, "closed session must leave the lookup table")
	assert.Zero(t, m.Active())
	assert.Equal(t, ReasonHeartbeatFailures, closeReason(t, ch))
	assert.True(t, ch.finished.Load())
}

func TestRun_FailuresFromFourthHeartbeatCloseSession(t *testing.T) {
	m := newTestManager(t, nil)
	ch := newFakeChannel()
	ch.failSend = func(f frame, nth int) error {
		if f.event == "ping" && nth >= 4 {
			return errors.New("write timeout")
		}
		return nil
	}

	sess, done := runSession(t, m, ch, Start{})
	waitClosed(t, done)

	pings := ch.byEvent("ping")
	require.Len(t, pings, 3)
	var hb heartbeatPayload
	require.NoError(t, json.Unmarshal([]byte(pings[0].data), &hb))
	assert.Equal(t, 1, hb.PingCount)
	assert.Equal(t, 6, sess.HeartbeatCount())
	assert.Equal(t, ReasonHeartbeatFailures, closeReason(t, ch))
}

func TestRun_SuccessfulWriteResetsFailures(t *testing.T) {
	m := newTestManager(t, nil)
	ch := newFakeChannel()
	ch.failSend = func(f frame, nth int) error {
		if f.event == "ping" && (nth == 2 || nth == 3) {
			return errors.New("transient")
		}
		return nil
	}

	sess, done := runSession(t, m, ch, Start{})
	require.Eventually(t, func() bool { return sess.HeartbeatCount() >= 5 }, 2*time.Second, time.Millisecond)
	assert.Zero(t, sess.ConsecutiveFailures())
	assert.Equal(t, StateActive, sess.State())

	ch.aborted.Store(true)
	waitClosed(t, done)
}

func TestRun_KeepaliveFailureDetectsDisconnect(t *testing.T) {
	m := newTestManager(t, func(c *Config) { c.HeartbeatInterval = time.Hour })
	ch := newFakeChannel()

	sess, done := runSession(t, m, ch, Start{})
	require.Eventually(t, func() bool { return sess.State() == StateActive }, time.Second, time.Millisecond)

	ch.setKeepaliveErr(errors.New("connection reset by peer"))
	waitClosed(t, done)

	assert.Equal(t, StateClosed, sess.State())
	assert.Zero(t, sess.HeartbeatCount())
	assert.Equal(t, ReasonClientGone, closeReason(t, ch))
}

func TestRun_MaxLifetime(t *testing.T) {
	m := newTestManager(t, func(c *Config) { c.MaxLifetime = 30 * time.Millisecond })
	ch := newFakeChannel()

	start := time.Now()
	_, done := runSession(t, m, ch, Start{})
	waitClosed(t, done)

	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
	assert.Equal(t, ReasonMaxLifetime, closeReason(t, ch))
}

func TestRun_ContextCancelCloses(t *testing.T) {
	m := newTestManager(t, func(c *Config) { c.HeartbeatInterval = time.Hour })
	ch := newFakeChannel()
	sess, err := m.Open()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		m.Run(ctx, sess, ch, Start{})
	}()

	cancel()
	waitClosed(t, done)
	assert.Equal(t, ReasonClientGone, closeReason(t, ch))
}

func TestRun_PanicStillCloses(t *testing.T) {
	m := newTestManager(t, nil)
	ch := newFakeChannel()
	ch.failSend = func(f frame, _ int) error {
		if f.event == "welcome" {
			panic("frame encoder bug")
		}
		return nil
	}
	ch.panicAborted.Store(true)

	sess, done := runSession(t, m, ch, Start{})
	waitClosed(t, done)

	assert.Equal(t, StateClosed, sess.State())
	assert.Equal(t, 1, sess.ConsecutiveFailures(), "panicking write counts as a failure")
	assert.Zero(t, m.Active())
	assert.Equal(t, ReasonInternalError, closeReason(t, ch))
}

func TestRun_InitialRequestIsDispatchedFirst(t *testing.T) {
	m := newTestManager(t, func(c *Config) { c.HeartbeatInterval = time.Hour })
	ch := newFakeChannel()

	_, done := runSession(t, m, ch, Start{Request: []byte(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`)})
	require.Eventually(t, func() bool { return len(ch.byEvent("message")) == 1 }, time.Second, time.Millisecond)

	first := ch.first()
	assert.Equal(t, "message", first.event)
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":1,"result":{"method":"tools/list"}}`, first.data)
	assert.Empty(t, ch.byEvent("welcome"))

	ch.aborted.Store(true)
	waitClosed(t, done)
}

func TestRun_AnnouncesEndpoint(t *testing.T) {
	m := newTestManager(t, func(c *Config) { c.HeartbeatInterval = time.Hour })
	ch := newFakeChannel()

	_, done := runSession(t, m, ch, Start{MessageEndpoint: "/mcp/message?sessionId=abc", AnnounceEndpoint: true})
	require.Eventually(t, func() bool { return len(ch.byEvent("welcome")) == 1 }, time.Second, time.Millisecond)

	assert.Equal(t, frame{event: "endpoint", data: "/mcp/message?sessionId=abc"}, ch.first())

	ch.aborted.Store(true)
	waitClosed(t, done)
}

func TestEnqueue_DeliversMessagesInOrder(t *testing.T) {
	m := newTestManager(t, func(c *Config) { c.HeartbeatInterval = time.Hour })
	ch := newFakeChannel()
	sess, done := runSession(t, m, ch, Start{})

	require.NoError(t, m.Enqueue(sess.ID, []byte(`{"id":1}`)))
	require.NoError(t, m.Enqueue(sess.ID, []byte(`{"id":2}`)))
	require.Eventually(t, func() bool { return len(ch.byEvent("message")) == 2 }, time.Second, time.Millisecond)

	msgs := ch.byEvent("message")
	assert.Equal(t, `{"id":1}`, msgs[0].data)
	assert.Equal(t, `{"id":2}`, msgs[1].data)

	ch.aborted.Store(true)
	waitClosed(t, done)

	err := m.Enqueue(sess.ID, []byte(`{}`))
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestQueue_DropsOldest(t *testing.T) {
	q := newQueue(2)
	dropped, ok := q.push([]byte("a"))
	require.True(t, ok)
	assert.Zero(t, dropped)
	dropped, _ = q.push([]byte("b"))
	assert.Zero(t, dropped)
	dropped, _ = q.push([]byte("c"))
	assert.Equal(t, 1, dropped)
	assert.Equal(t, 2, q.len())

	got := q.drain()
	assert.Equal(t, [][]byte{[]byte("b"), []byte("c")}, got)
	assert.Nil(t, q.drain())
}

func TestQueue_PushAfterCloseFails(t *testing.T) {
	q := newQueue(2)
	_, ok := q.push([]byte("a"))
	require.True(t, ok)

	assert.Equal(t, [][]byte{[]byte("a")}, q.close())
	_, ok = q.push([]byte("b"))
	assert.False(t, ok)
	assert.Zero(t, q.len())
}

func TestEnqueue_FailsOnceSessionIsClosing(t *testing.T) {
	m := newTestManager(t, func(c *Config) { c.HeartbeatInterval = time.Hour })
	ch := newFakeChannel()
	sess, done := runSession(t, m, ch, Start{})
	require.Eventually(t, func() bool { return sess.State() == StateActive }, time.Second, time.Millisecond)

	// A handler that looked the session up before it closed still holds it.
	held, ok := m.Lookup(sess.ID)
	require.True(t, ok)

	ch.aborted.Store(true)
	waitClosed(t, done)

	assert.ErrorIs(t, m.enqueue(held, []byte(`{"id":1}`)), ErrSessionNotFound)
	assert.ErrorIs(t, m.Enqueue(sess.ID, []byte(`{"id":1}`)), ErrSessionNotFound)
	assert.Empty(t, ch.byEvent("message"))
}

func TestClose_SendsPendingMessagesBeforeCloseFrame(t *testing.T) {
	m := newTestManager(t, nil)
	ch := newFakeChannel()
	sess, err := m.Open()
	require.NoError(t, err)

	require.NoError(t, m.Enqueue(sess.ID, []byte(`{"id":7}`)))
	sess.setReason(ReasonClientGone)
	m.close(sess, ch)

	require.Len(t, ch.frames, 2)
	assert.Equal(t, "message", ch.frames[0].event)
	assert.Equal(t, `{"id":7}`, ch.frames[0].data)
	assert.Equal(t, "close", ch.frames[1].event)
	assert.Equal(t, StateClosed, sess.State())
	assert.ErrorIs(t, m.Enqueue(sess.ID, []byte(`{}`)), ErrSessionNotFound)
}

func TestShutdown_ClosesSessions(t *testing.T) {
	m := newTestManager(t, func(c *Config) { c.HeartbeatInterval = time.Hour })
	ch1, ch2 := newFakeChannel(), newFakeChannel()
	_, done1 := runSession(t, m, ch1, Start{})
	_, done2 := runSession(t, m, ch2, Start{})
	require.Equal(t, 2, m.Active())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, m.Shutdown(ctx))

	waitClosed(t, done1)
	waitClosed(t, done2)
	assert.Zero(t, m.Active())
	assert.Equal(t, ReasonShutdown, closeReason(t, ch1))

	_, err := m.Open()
	assert.ErrorIs(t, err, ErrShuttingDown)
	require.NoError(t, m.Shutdown(ctx), "shutdown is idempotent")
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "ESTABLISHING", StateEstablishing.String())
	assert.Equal(t, "ACTIVE", StateActive.String())
	assert.Equal(t, "CLOSING", StateClosing.String())
	assert.Equal(t, "CLOSED", StateClosed.String())
}

func TestDiscard(t *testing.T) {
	m := newTestManager(t, nil)
	sess, err := m.Open()
	require.NoError(t, err)

	m.Discard(sess)
	m.Discard(sess)
	assert.Zero(t, m.Active())
	assert.Equal(t, StateClosed, sess.State())
	require.NoError(t, m.Shutdown(context.Background()))
}
