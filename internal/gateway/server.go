// Package gateway exposes the bridge's HTTP surface: host-platform webhooks
// driving the orchestrator, a per-room widget WebSocket stream, health, and
// Prometheus metrics.
package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/relaydesk/labridge/internal/liveagent"
)

// Orchestrator is the subset of session operations the gateway drives.
type Orchestrator interface {
	StartSession(ctx context.Context, roomID string, visitor liveagent.Visitor) error
	VisitorMessage(ctx context.Context, roomID, text string) error
	VisitorTyping(ctx context.Context, roomID string, typing bool, partial string) error
	CloseByVisitor(ctx context.Context, roomID string) error
	CloseByTimeout(ctx context.Context, roomID string) error
	ActiveLoops() int
}

// Config holds the gateway's listen and auth settings.
type Config struct {
	Bind            string
	AuthToken       string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

func (c *Config) defaults() {
	if c.Bind == "" {
		c.Bind = "127.0.0.1:8945"
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 15 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 15 * time.Second
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 10 * time.Second
	}
}

// Gateway is the HTTP server. It is a leaf component: it drives the
// orchestrator and reads the hub, nothing depends on it.
type Gateway struct {
	config   Config
	orch     Orchestrator
	hub      *Hub
	registry *prometheus.Registry
	logger   *slog.Logger
	server   *http.Server
}

// New creates a Gateway. hub and registry may be nil, in which case the
// /ws and /metrics routes are not mounted.
func New(cfg Config, orch Orchestrator, hub *Hub, registry *prometheus.Registry, logger *slog.Logger) *Gateway {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		config:   cfg,
		orch:     orch,
		hub:      hub,
		registry: registry,
		logger:   logger.With("component", "gateway"),
	}
}

// buildRouter constructs the chi mux with all routes wired.
func (g *Gateway) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Public, no auth required.
	r.Get("/health", g.handleHealth())

	if g.registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(g.registry, promhttp.HandlerOpts{}))
	}

	// Widget stream. The room id in the path is the only credential the
	// widget holds, same trust model as the webhook room ids.
	if g.hub != nil {
		r.Get("/ws/rooms/{roomID}", g.hub.ServeRoom)
	}

	// Webhooks from the host platform, bearer auth required.
	r.Group(func(r chi.Router) {
		r.Use(authMiddleware(g.config.AuthToken))
		r.Post("/webhooks/start", g.handleStart())
		r.Post("/webhooks/message", g.handleMessage())
		r.Post("/webhooks/typing", g.handleTyping())
		r.Post("/webhooks/close", g.handleClose())
		r.Post("/webhooks/timeout", g.handleTimeout())
	})

	return r
}

// Start begins serving. The listener is opened synchronously so a bind
// failure is reported to the caller, then serving continues in background.
func (g *Gateway) Start() error {
	g.server = &http.Server{
		Addr:         g.config.Bind,
		Handler:      g.buildRouter(),
		ReadTimeout:  g.config.ReadTimeout,
		WriteTimeout: g.config.WriteTimeout,
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(context.Background(), "tcp", g.config.Bind)
	if err != nil {
		return errors.New("gateway: listen failed: " + err.Error())
	}

	go func() {
		g.logger.Info("gateway listening", "addr", g.config.Bind)
		if err := g.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			g.logger.Error("gateway serve error", "error", err)
		}
	}()

	return nil
}

// Stop gracefully shuts down the server.
func (g *Gateway) Stop(ctx context.Context) error {
	if g.server == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, g.config.ShutdownTimeout)
	defer cancel()

	g.logger.Info("gateway shutting down")
	return g.server.Shutdown(shutdownCtx)
}
