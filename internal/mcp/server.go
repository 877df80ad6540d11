// ABOUTME: Plain HTTP POST transport for the JSON-RPC dispatcher plus REST-style convenience routes.
// ABOUTME: One request body in, one JSON-RPC response out; notifications answer 202.

package mcp

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sort"

	"github.com/google/uuid"
)

// MaxRequestBodySize is the maximum allowed size for request bodies (1MB).
const MaxRequestBodySize = 1 << 20

var errBodyTooLarge = errors.New("request body too large")

// Server exposes a Dispatcher over plain HTTP.
type Server struct {
	dispatcher *Dispatcher
	logger     *slog.Logger
}

// NewServer creates a new HTTP transport for the given dispatcher.
func NewServer(d *Dispatcher, logger *slog.Logger) (*Server, error) {
	if d == nil {
		return nil, errors.New("dispatcher is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		dispatcher: d,
		logger:     logger.With("component", "mcp_http"),
	}, nil
}

// RegisterRoutes registers the JSON-RPC endpoint and the convenience routes on mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /mcp", s.handleRPC)

	for _, method := range []string{MethodInitialize, MethodToolsList, MethodToolsCall, MethodPing} {
		mux.HandleFunc("POST /mcp/"+method, s.handleMethod(method))
	}

	mux.HandleFunc("GET /mcp/tools", s.handleGet(MethodToolsList))
	mux.HandleFunc("GET /mcp/ping", s.handleGet(MethodPing))
	mux.HandleFunc("GET /mcp/info", s.handleInfo)
}

// handleRPC accepts any JSON-RPC envelope.
func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		s.writeBodyError(w, err)
		return
	}
	s.dispatch(w, r, body)
}

// handleMethod serves POST /mcp/<method>. The body is either the params
// object or a complete envelope; either way the method comes from the path.
func (s *Server) handleMethod(method string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := readBody(r)
		if err != nil {
			s.writeBodyError(w, err)
			return
		}

		envelope, err := envelopeFor(method, body)
		if err != nil {
			// Not an object: let the dispatcher produce the matching parse error
			envelope = body
		}
		s.dispatch(w, r, envelope)
	}
}

func (s *Server) handleGet(method string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		envelope, _ := envelopeFor(method, nil)
		s.dispatch(w, r, envelope)
	}
}

// InfoResponse describes the server for GET /mcp/info.
type InfoResponse struct {
	Name              string            `json:"name"`
	Version           string            `json:"version"`
	ProtocolVersion   string            `json:"protocolVersion"`
	SupportedVersions []string          `json:"supportedVersions"`
	Tools             []string          `json:"tools"`
	Endpoints         map[string]string `json:"endpoints"`
}

func (s *Server) handleInfo(w http.ResponseWriter, _ *http.Request) {
	versions := make([]string, 0, len(supportedProtocolVersions))
	for v := range supportedProtocolVersions {
		versions = append(versions, v)
	}
	sort.Strings(versions)

	info := s.dispatcher.Info()
	writeJSON(w, http.StatusOK, InfoResponse{
		Name:              info.Name,
		Version:           info.Version,
		ProtocolVersion:   DefaultProtocolVersion,
		SupportedVersions: versions,
		Tools:             s.dispatcher.Registry().Names(),
		Endpoints: map[string]string{
			"rpc":     "POST /mcp",
			"sse":     "GET /mcp/sse",
			"message": "POST /mcp/message?sessionId={id}",
			"tools":   "GET /mcp/tools",
			"ping":    "GET /mcp/ping",
		},
	})
}

func (s *Server) dispatch(w http.ResponseWriter, r *http.Request, body []byte) {
	resp, ok := s.dispatcher.Dispatch(r.Context(), body)
	if !ok {
		w.WriteHeader(http.StatusAccepted)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(resp); err != nil {
		s.logger.Warn("failed to write JSON-RPC response", "error", err)
	}
}

func (s *Server) writeBodyError(w http.ResponseWriter, err error) {
	status := http.StatusBadRequest
	code := CodeParseError
	if errors.Is(err, errBodyTooLarge) {
		status = http.StatusRequestEntityTooLarge
		code = CodeInvalidRequest
	}
	s.logger.Debug("rejecting request body", "error", err)
	writeJSON(w, status, errorResponse(nullID, code, err.Error(), nil))
}

// envelopeFor wraps a convenience-route body into a JSON-RPC request for method.
func envelopeFor(method string, body []byte) ([]byte, error) {
	fields := map[string]json.RawMessage{}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &fields); err != nil {
			return nil, err
		}
		if fields == nil {
			fields = map[string]json.RawMessage{}
		}
	}

	if _, isEnvelope := fields["method"]; !isEnvelope {
		params := body
		if len(params) == 0 {
			params = []byte("{}")
		}
		fields = map[string]json.RawMessage{
			"jsonrpc": json.RawMessage(`"2.0"`),
			"params":  params,
		}
	}

	name, _ := json.Marshal(method)
	fields["method"] = name
	if _, ok := fields["id"]; !ok {
		id, _ := json.Marshal(uuid.New().String())
		fields["id"] = id
	}
	return json.Marshal(fields)
}

func readBody(r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, MaxRequestBodySize+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > MaxRequestBodySize {
		return nil, errBodyTooLarge
	}
	return body, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// CORS wraps next with the permissive cross-origin headers MCP browser clients
// expect and answers preflight requests directly.
func CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Cache-Control, Last-Event-ID, Mcp-Session-Id")
		h.Set("Access-Control-Expose-Headers", "Mcp-Session-Id")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
