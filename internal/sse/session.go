// ABOUTME: Transport session state for one SSE client connection.
// ABOUTME: Counters and state are mutated only by the Manager running the session.

package sse

import (
	"sync"
	"time"
)

// State is the lifecycle state of a Session.
type State int

const (
	StateEstablishing State = iota
	StateActive
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateEstablishing:
		return "ESTABLISHING"
	case StateActive:
		return "ACTIVE"
	case StateClosing:
		return "CLOSING"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// Close reasons reported in the close frame and the closed-sessions metric.
const (
	ReasonClientGone        = "client_disconnected"
	ReasonHeartbeatFailures = "heartbeat_failures"
	ReasonMaxLifetime       = "max_lifetime"
	ReasonShutdown          = "server_shutdown"
	ReasonInternalError     = "internal_error"
)

// Session is one logical client connection.
type Session struct {
	ID       string
	OpenedAt time.Time

	mu         sync.Mutex
	state      State
	heartbeats int
	failures   int
	reason     string

	queue *queue
}

func newSession(id string, now time.Time, queueSize int) *Session {
	return &Session{
		ID:       id,
		OpenedAt: now,
		state:    StateEstablishing,
		queue:    newQueue(queueSize),
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// HeartbeatCount returns how many heartbeats have been attempted.
func (s *Session) HeartbeatCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.heartbeats
}

// ConsecutiveFailures returns the number of failed writes since the last success.
func (s *Session) ConsecutiveFailures() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failures
}

// Uptime returns how long the session has been open.
func (s *Session) Uptime() time.Duration {
	return time.Since(s.OpenedAt)
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

func (s *Session) nextHeartbeat() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.heartbeats++
	return s.heartbeats
}

// recordWrite updates the failure counter and returns its new value.
func (s *Session) recordWrite(err error) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		s.failures = 0
	} else {
		s.failures++
	}
	return s.failures
}

// setReason records why the session is closing. The first reason wins.
func (s *Session) setReason(reason string) {
	s.mu.Lock()
	if s.reason == "" {
		s.reason = reason
	}
	s.mu.Unlock()
}

func (s *Session) closeReason() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.reason == "" {
		return ReasonClientGone
	}
	return s.reason
}
