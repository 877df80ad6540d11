// ABOUTME: Gateway assembles store, tools, dispatcher, and transports from config
// ABOUTME: Owns the HTTP server, health endpoints, and graceful shutdown

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/2389/orders-mcp/internal/auth"
	"github.com/2389/orders-mcp/internal/builtins"
	"github.com/2389/orders-mcp/internal/config"
	"github.com/2389/orders-mcp/internal/export"
	"github.com/2389/orders-mcp/internal/mail"
	"github.com/2389/orders-mcp/internal/mcp"
	"github.com/2389/orders-mcp/internal/metrics"
	"github.com/2389/orders-mcp/internal/sse"
	"github.com/2389/orders-mcp/internal/store"
	"github.com/2389/orders-mcp/internal/tools"
)

// Health endpoints.
const (
	HealthPath = "/healthz"
	ReadyPath  = "/readyz"
)

const (
	defaultShutdownTimeout = 10 * time.Second
	readyPingTimeout       = 2 * time.Second
)

// Gateway orchestrates the orders-mcp server components.
type Gateway struct {
	config     *config.Config
	store      *store.SQLStore
	registry   *tools.Registry
	dispatcher *mcp.Dispatcher
	mcpServer  *mcp.Server
	sessions   *sse.Manager
	httpServer *http.Server
	logger     *slog.Logger
}

// Core holds the transport-independent components: the store and the
// dispatcher serving every registered tool. The stdio command uses it directly.
type Core struct {
	Store      *store.SQLStore
	Registry   *tools.Registry
	Dispatcher *mcp.Dispatcher
}

// Close releases the store.
func (c *Core) Close() error {
	return c.Store.Close()
}

// NewCore opens the database and registers the built-in tools behind a dispatcher.
func NewCore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Core, error) {
	if logger == nil {
		logger = slog.Default()
	}

	st, err := store.Open(ctx, cfg.Database.DSN, cfg.Database.Driver, logger)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	registry, err := buildRegistry(ctx, cfg, st, logger)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	router := tools.NewRouter(tools.RouterConfig{
		Registry: registry,
		Logger:   logger,
		Timeout:  cfg.Tools.QueryTimeout,
	})

	dispatcher, err := mcp.NewDispatcher(mcp.Config{
		Router: router,
		Info:   mcp.ServerInfo{Name: cfg.Server.Name, Version: cfg.Server.Version},
		Logger: logger,
	})
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("creating dispatcher: %w", err)
	}

	return &Core{Store: st, Registry: registry, Dispatcher: dispatcher}, nil
}

// buildRegistry wires the store, exporter, and mailer into the built-in tools.
func buildRegistry(ctx context.Context, cfg *config.Config, st store.Store, logger *slog.Logger) (*tools.Registry, error) {
	mailer, err := mail.New(ctx, cfg.Mail, logger)
	if err != nil {
		return nil, fmt.Errorf("creating mail sender: %w", err)
	}

	registry := tools.NewRegistry(logger)
	err = builtins.Register(registry, builtins.Deps{
		Store:         st,
		Exporter:      export.NewExcelExporter(cfg.Tools.ExportDir, logger),
		Mailer:        mailer,
		Timeouts:      builtins.TimeoutsFrom(cfg.Tools),
		MaxExportRows: cfg.Tools.MaxExportRows,
		Logger:        logger,
	})
	if err != nil {
		return nil, fmt.Errorf("registering tools: %w", err)
	}

	logger.Info("tools registered", "tools", registry.Names())
	return registry, nil
}

// New creates a Gateway with every component built from cfg.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}

	core, err := NewCore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	gw, err := newGateway(cfg, core, logger)
	if err != nil {
		_ = core.Close()
		return nil, err
	}
	return gw, nil
}

func newGateway(cfg *config.Config, core *Core, logger *slog.Logger) (*Gateway, error) {
	mcpServer, err := mcp.NewServer(core.Dispatcher, logger)
	if err != nil {
		return nil, fmt.Errorf("creating MCP HTTP server: %w", err)
	}

	sessions, err := sse.NewManager(sse.Config{
		HeartbeatInterval: cfg.SSE.HeartbeatInterval,
		CheckInterval:     cfg.SSE.CheckInterval,
		MaxLifetime:       cfg.SSE.MaxLifetime,
		MaxFailures:       cfg.SSE.MaxFailures,
		QueueSize:         cfg.SSE.QueueSize,
		Server:            sse.ServerInfo{Name: cfg.Server.Name, Version: cfg.Server.Version},
		Dispatcher:        core.Dispatcher,
		Logger:            logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating SSE manager: %w", err)
	}

	gw := &Gateway{
		config:     cfg,
		store:      core.Store,
		registry:   core.Registry,
		dispatcher: core.Dispatcher,
		mcpServer:  mcpServer,
		sessions:   sessions,
		logger:     logger.With("component", "gateway"),
	}

	handler, err := gw.routes(sse.NewHandler(sessions, logger))
	if err != nil {
		return nil, err
	}

	gw.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return gw, nil
}

// routes builds the HTTP handler. MCP routes sit behind the auth middleware
// when auth is enabled; health and metrics stay open.
func (g *Gateway) routes(sseHandler *sse.Handler) (http.Handler, error) {
	mcpMux := http.NewServeMux()
	g.mcpServer.RegisterRoutes(mcpMux)
	sseHandler.RegisterRoutes(mcpMux)

	var mcpRoutes http.Handler = mcpMux
	if g.config.Auth.Enabled {
		verifier, err := auth.NewVerifier(g.config.Auth)
		if err != nil {
			return nil, fmt.Errorf("creating auth verifier: %w", err)
		}
		mcpRoutes = auth.HTTPAuthMiddleware(verifier, g.logger)(mcpMux)
		g.logger.Info("auth enabled for MCP routes")
	}

	mux := http.NewServeMux()
	mux.Handle("/mcp", mcpRoutes)
	mux.Handle("/mcp/", mcpRoutes)
	mux.HandleFunc("GET "+HealthPath, g.handleHealth)
	mux.HandleFunc("GET "+ReadyPath, g.handleReady)
	if g.config.Metrics.Enabled {
		path := g.config.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		mux.Handle("GET "+path, metrics.Handler())
	}

	return mcp.CORS(mux), nil
}

// Handler exposes the assembled HTTP handler, mainly for tests.
func (g *Gateway) Handler() http.Handler {
	return g.httpServer.Handler
}

// Dispatcher returns the JSON-RPC dispatcher shared by every transport.
func (g *Gateway) Dispatcher() *mcp.Dispatcher {
	return g.dispatcher
}

// Run listens on the configured address and blocks until ctx is canceled or
// the server fails. Returns nil on graceful shutdown.
func (g *Gateway) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listening on HTTP address: %w", err)
	}
	return g.Serve(ctx, ln)
}

// Serve runs the HTTP server on ln until ctx is canceled.
func (g *Gateway) Serve(ctx context.Context, ln net.Listener) error {
	g.logger.Info("HTTP server listening", "addr", ln.Addr().String())

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		if err := g.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server: %w", err)
		}
		return nil
	})
	eg.Go(func() error {
		<-egCtx.Done()
		if ctx.Err() != nil {
			g.logger.Info("context canceled, initiating shutdown")
		}
		return g.gracefulShutdown()
	})

	return eg.Wait()
}

func (g *Gateway) gracefulShutdown() error {
	timeout := g.config.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return g.Shutdown(ctx)
}

func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// Shutdown closes open SSE sessions, stops the HTTP server, and closes the store.
// SSE sessions go first so their handlers return before the server waits on them.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway", "active_sessions", g.sessions.Active())

	var errs []error
	errs = appendCloseError(errs, "SSE shutdown", g.sessions.Shutdown(ctx))
	errs = appendCloseError(errs, "HTTP shutdown", g.httpServer.Shutdown(ctx))
	errs = appendCloseError(errs, "store close", g.store.Close())

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %w", errors.Join(errs...))
	}
	return nil
}

func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyPingTimeout)
	defer cancel()

	if err := g.store.Ping(ctx); err != nil {
		g.logger.Warn("readiness check failed", "error", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("database unavailable"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "ready (%d sessions)", g.sessions.Active())
}
