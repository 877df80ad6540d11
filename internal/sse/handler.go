// ABOUTME: HTTP handlers for the SSE transport: the event stream and the message endpoint.
// ABOUTME: Messages posted for a session are dispatched and queued onto that session's stream.

package sse

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
)

// MaxMessageSize bounds request bodies on both endpoints.
const MaxMessageSize = 1 << 20

// Route paths.
const (
	StreamPath  = "/mcp/sse"
	MessagePath = "/mcp/message"
)

// Handler serves the SSE endpoints for a Manager.
type Handler struct {
	manager    *Manager
	dispatcher Dispatcher
	logger     *slog.Logger
}

// NewHandler creates the HTTP front end for m.
func NewHandler(m *Manager, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		manager:    m,
		dispatcher: m.dispatcher,
		logger:     logger.With("component", "sse_http"),
	}
}

// RegisterRoutes registers the stream and message endpoints on mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET "+StreamPath, h.handleStream)
	mux.HandleFunc("POST "+StreamPath, h.handleStream)
	mux.HandleFunc("POST "+MessagePath, h.handleMessage)
}

// handleStream opens a session and blocks until it closes.
func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	var body []byte
	if r.Method == http.MethodPost {
		var err error
		if body, err = readLimited(r); err != nil {
			http.Error(w, err.Error(), http.StatusRequestEntityTooLarge)
			return
		}
	}

	sess, err := h.manager.Open()
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	ch, err := newHTTPChannel(w, r, h.manager.Done())
	if err != nil {
		h.manager.Discard(sess)
		h.logger.Error("failed to open event stream", "error", err)
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	h.manager.Run(r.Context(), sess, ch, Start{
		MessageEndpoint:  MessagePath + "?sessionId=" + url.QueryEscape(sess.ID),
		AnnounceEndpoint: r.Method == http.MethodGet,
		Request:          body,
	})
}

// handleMessage dispatches one JSON-RPC message for an open session and
// queues the response onto its stream.
func (h *Handler) handleMessage(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("sessionId")
	if id == "" {
		id = r.URL.Query().Get("sessionID")
	}
	if _, ok := h.manager.Lookup(id); !ok {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	body, err := readLimited(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusRequestEntityTooLarge)
		return
	}

	resp, ok := h.dispatcher.Dispatch(r.Context(), body)
	if ok {
		if err := h.manager.Enqueue(id, resp); err != nil {
			// Session closed while the request was being handled
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}
	}

	w.WriteHeader(http.StatusAccepted)
	_, _ = io.WriteString(w, "Accepted")
}

var errMessageTooLarge = errors.New("message too large")

func readLimited(r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, MaxMessageSize+1))
	if err != nil {
		return nil, err
	}
	if len(body) > MaxMessageSize {
		return nil, errMessageTooLarge
	}
	return body, nil
}
