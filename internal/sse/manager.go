// ABOUTME: Connection lifecycle manager driving each SSE session from ESTABLISHING to CLOSED.
// ABOUTME: Owns the session lookup table, per-session queues, heartbeats, and disconnect detection.

package sse

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	gosse "github.com/tmaxmax/go-sse"

	"github.com/2389/orders-mcp/internal/metrics"
)

// Default tunables.
const (
	DefaultHeartbeatInterval = 15 * time.Second
	DefaultCheckInterval     = time.Second
	DefaultMaxLifetime       = time.Hour
	DefaultMaxFailures       = 3
	DefaultQueueSize         = 100
)

// ErrSessionNotFound indicates no open session has the given id.
var ErrSessionNotFound = errors.New("session not found")

// ErrShuttingDown indicates the manager no longer accepts sessions.
var ErrShuttingDown = errors.New("sse manager is shutting down")

var errWritePanic = errors.New("panic while writing frame")

// WaitResult is the outcome of waiting between heartbeats.
type WaitResult int

const (
	WaitContinue WaitResult = iota
	WaitDisconnected
	WaitTimedOut
)

// Dispatcher handles one raw JSON-RPC message.
type Dispatcher interface {
	Dispatch(ctx context.Context, raw []byte) ([]byte, bool)
}

// ServerInfo identifies the server in welcome frames.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Config holds configuration for the Manager.
type Config struct {
	HeartbeatInterval time.Duration
	CheckInterval     time.Duration
	MaxLifetime       time.Duration
	MaxFailures       int
	QueueSize         int
	Server            ServerInfo
	Dispatcher        Dispatcher
	Logger            *slog.Logger
}

// Start describes how a session opens.
type Start struct {
	// MessageEndpoint is where the client posts follow-up requests.
	MessageEndpoint string
	// AnnounceEndpoint sends the standard MCP "endpoint" frame first.
	AnnounceEndpoint bool
	// Request is the JSON-RPC body of the opening request, if any.
	Request []byte
}

// Manager runs SSE sessions.
type Manager struct {
	cfg        Config
	dispatcher Dispatcher
	logger     *slog.Logger

	mu       sync.Mutex
	sessions map[string]*Session
	stopping bool
	done     chan struct{}
	running  sync.WaitGroup
}

// NewManager creates a Manager, filling zero tunables with defaults.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Dispatcher == nil {
		return nil, errors.New("dispatcher is required")
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = DefaultCheckInterval
	}
	if cfg.CheckInterval > cfg.HeartbeatInterval {
		return nil, fmt.Errorf("check interval %s exceeds heartbeat interval %s", cfg.CheckInterval, cfg.HeartbeatInterval)
	}
	if cfg.MaxLifetime <= 0 {
		cfg.MaxLifetime = DefaultMaxLifetime
	}
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = DefaultMaxFailures
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Manager{
		cfg:        cfg,
		dispatcher: cfg.Dispatcher,
		logger:     logger.With("component", "sse"),
		sessions:   make(map[string]*Session),
		done:       make(chan struct{}),
	}, nil
}

// Open registers a new session in the lookup table. The caller must hand it to Run.
func (m *Manager) Open() (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopping {
		return nil, ErrShuttingDown
	}

	sess := newSession(uuid.New().String(), time.Now(), m.cfg.QueueSize)
	m.sessions[sess.ID] = sess
	m.running.Add(1)

	metrics.SSESessionsActive.Inc()
	m.logger.Info("session opened", "connection_id", sess.ID)
	return sess, nil
}

// Discard releases a session that was opened but never run.
func (m *Manager) Discard(sess *Session) {
	m.mu.Lock()
	_, ok := m.sessions[sess.ID]
	delete(m.sessions, sess.ID)
	m.mu.Unlock()
	if !ok {
		return
	}

	sess.setState(StateClosed)
	metrics.SSESessionsActive.Dec()
	m.running.Done()
}

// Lookup returns the open session with the given id.
func (m *Manager) Lookup(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[id]
	return sess, ok
}

// Active returns the number of open sessions.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Done is closed when Shutdown begins.
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

// Enqueue pushes an encoded JSON-RPC message onto the session's queue. The
// oldest messages are dropped when the queue is full.
func (m *Manager) Enqueue(id string, msg []byte) error {
	sess, ok := m.Lookup(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return m.enqueue(sess, msg)
}

// enqueue queues msg on sess. A session that started closing after it was
// looked up no longer accepts messages.
func (m *Manager) enqueue(sess *Session, msg []byte) error {
	dropped, ok := sess.queue.push(msg)
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sess.ID)
	}
	if dropped > 0 {
		metrics.SSEMessagesDroppedTotal.Add(float64(dropped))
		m.logger.Warn("session queue full, dropped oldest messages", "connection_id", sess.ID, "dropped", dropped)
	}
	return nil
}

// Shutdown stops every session and waits for them to reach CLOSED or for ctx to end.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if !m.stopping {
		m.stopping = true
		close(m.done)
	}
	m.mu.Unlock()

	finished := make(chan struct{})
	go func() {
		m.running.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for sse sessions: %w", ctx.Err())
	}
}

// Run drives sess until it closes. It always leaves the session CLOSED and
// removed from the lookup table, even if a frame write panics.
func (m *Manager) Run(ctx context.Context, sess *Session, ch Channel, start Start) {
	defer func() {
		if p := recover(); p != nil {
			m.logger.Error("session loop panicked", "connection_id", sess.ID, "panic", p)
			sess.setReason(ReasonInternalError)
		}
		m.close(sess, ch)
	}()

	m.establish(ctx, sess, ch, start)
	sess.setState(StateActive)

	for {
		switch m.wait(ctx, sess, ch, m.cfg.HeartbeatInterval) {
		case WaitDisconnected:
			return
		case WaitTimedOut:
			sess.setReason(ReasonMaxLifetime)
			return
		}

		if !m.heartbeat(sess, ch) {
			sess.setReason(ReasonHeartbeatFailures)
			return
		}
	}
}

type welcomePayload struct {
	ConnectionID    string     `json:"connection_id"`
	Server          ServerInfo `json:"server"`
	MessageEndpoint string     `json:"message_endpoint"`
}

type heartbeatPayload struct {
	Type         string  `json:"type"`
	PingCount    int     `json:"ping_count"`
	Uptime       float64 `json:"uptime"`
	Timestamp    string  `json:"timestamp"`
	ConnectionID string  `json:"connection_id"`
}

type closePayload struct {
	ConnectionID string  `json:"connection_id"`
	Reason       string  `json:"reason"`
	PingCount    int     `json:"ping_count"`
	Uptime       float64 `json:"uptime"`
}

func (m *Manager) establish(ctx context.Context, sess *Session, ch Channel, start Start) {
	if start.AnnounceEndpoint {
		msg := &gosse.Message{Type: gosse.Type("endpoint")}
		msg.AppendData(start.MessageEndpoint)
		m.deliver(sess, ch, msg, "endpoint")
	}

	if len(start.Request) > 0 {
		if resp, ok := m.dispatcher.Dispatch(ctx, start.Request); ok {
			m.deliver(sess, ch, rawFrame("message", resp), "message")
			return
		}
	}

	m.deliver(sess, ch, jsonFrame("welcome", "", welcomePayload{
		ConnectionID:    sess.ID,
		Server:          m.cfg.Server,
		MessageEndpoint: start.MessageEndpoint,
	}), "welcome")
}

// wait sleeps for d in CheckInterval steps, checking for disconnects, the
// lifetime ceiling, and queued messages at every step.
func (m *Manager) wait(ctx context.Context, sess *Session, ch Channel, d time.Duration) WaitResult {
	deadline := time.Now().Add(d)

	for {
		if reason, gone := m.disconnected(ctx, ch); gone {
			sess.setReason(reason)
			return WaitDisconnected
		}
		if sess.Uptime() >= m.cfg.MaxLifetime {
			return WaitTimedOut
		}
		if !m.drainQueue(sess, ch) {
			sess.setReason(ReasonHeartbeatFailures)
			return WaitDisconnected
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return WaitContinue
		}

		timer := time.NewTimer(min(m.cfg.CheckInterval, remaining))
		select {
		case <-ctx.Done():
			timer.Stop()
			sess.setReason(ReasonClientGone)
			return WaitDisconnected
		case <-m.done:
			timer.Stop()
			sess.setReason(ReasonShutdown)
			return WaitDisconnected
		case <-sess.queue.notify:
			timer.Stop()
		case <-timer.C:
		}
	}
}

// disconnected combines every signal that the peer is gone. Any one suffices.
func (m *Manager) disconnected(ctx context.Context, ch Channel) (string, bool) {
	select {
	case <-m.done:
		return ReasonShutdown, true
	default:
	}

	if ctx.Err() != nil || ch.Aborted() {
		return ReasonClientGone, true
	}
	if ch.Abnormal() {
		return ReasonShutdown, true
	}
	if err := guard(ch.Keepalive); err != nil {
		m.logger.Debug("keepalive write failed", "error", err)
		return ReasonClientGone, true
	}
	return "", false
}

// heartbeat sends the next ping frame. It returns false once consecutive
// failures reach the configured limit.
func (m *Manager) heartbeat(sess *Session, ch Channel) bool {
	n := sess.nextHeartbeat()
	msg := jsonFrame("ping", strconv.Itoa(n), heartbeatPayload{
		Type:         "ping",
		PingCount:    n,
		Uptime:       sess.Uptime().Seconds(),
		Timestamp:    time.Now().UTC().Format(time.RFC3339Nano),
		ConnectionID: sess.ID,
	})
	return m.deliver(sess, ch, msg, "ping")
}

func (m *Manager) drainQueue(sess *Session, ch Channel) bool {
	for _, raw := range sess.queue.drain() {
		if !m.deliver(sess, ch, rawFrame("message", raw), "message") {
			return false
		}
	}
	return true
}

// deliver writes and flushes one frame, counting the result against the
// session's consecutive failure limit. It returns false when the limit is hit.
func (m *Manager) deliver(sess *Session, ch Channel, msg *gosse.Message, event string) bool {
	err := guard(func() error {
		if err := ch.Send(msg); err != nil {
			return err
		}
		return ch.Flush()
	})
	failures := sess.recordWrite(err)

	if event == "ping" {
		outcome := metrics.OutcomeOK
		if err != nil {
			outcome = metrics.OutcomeError
		}
		metrics.SSEHeartbeatsTotal.WithLabelValues(outcome).Inc()
	}

	if err != nil {
		m.logger.Warn("frame write failed",
			"connection_id", sess.ID,
			"event", event,
			"consecutive_failures", failures,
			"error", err,
		)
		return failures < m.cfg.MaxFailures
	}
	return true
}

// close runs CLOSING and ends in CLOSED.
func (m *Manager) close(sess *Session, ch Channel) {
	sess.setState(StateClosing)
	pending := sess.queue.close()
	reason := sess.closeReason()

	msg := jsonFrame("close", "", closePayload{
		ConnectionID: sess.ID,
		Reason:       reason,
		PingCount:    sess.HeartbeatCount(),
		Uptime:       sess.Uptime().Seconds(),
	})
	// Messages accepted before CLOSING go out ahead of the close frame.
	if err := guard(func() error {
		for _, raw := range pending {
			if err := ch.Send(rawFrame("message", raw)); err != nil {
				return err
			}
		}
		if err := ch.Send(msg); err != nil {
			return err
		}
		return ch.Flush()
	}); err != nil {
		m.logger.Debug("close frame not delivered", "connection_id", sess.ID, "error", err)
	}

	if f, ok := ch.(Finisher); ok {
		_ = guard(func() error {
			f.Finish()
			return nil
		})
	}

	m.mu.Lock()
	delete(m.sessions, sess.ID)
	m.mu.Unlock()
	sess.setState(StateClosed)

	metrics.SSESessionsActive.Dec()
	metrics.SSESessionsClosedTotal.WithLabelValues(reason).Inc()
	m.logger.Info("session closed",
		"connection_id", sess.ID,
		"reason", reason,
		"ping_count", sess.HeartbeatCount(),
		"uptime", sess.Uptime(),
	)
	m.running.Done()
}

// guard runs fn, converting a panic into an error.
func guard(fn func() error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: %v", errWritePanic, p)
		}
	}()
	return fn()
}

func jsonFrame(event, id string, payload any) *gosse.Message {
	data, err := json.Marshal(payload)
	if err != nil {
		data = []byte(`{}`)
	}
	msg := rawFrame(event, data)
	if id != "" {
		msg.ID = gosse.ID(id)
	}
	return msg
}

func rawFrame(event string, data []byte) *gosse.Message {
	msg := &gosse.Message{Type: gosse.Type(event)}
	msg.AppendData(string(data))
	return msg
}
