package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/relaydesk/labridge/internal/config"
	"github.com/relaydesk/labridge/internal/cron"
	"github.com/relaydesk/labridge/internal/gateway"
	"github.com/relaydesk/labridge/internal/handoff"
	"github.com/relaydesk/labridge/internal/host"
	"github.com/relaydesk/labridge/internal/idle"
	"github.com/relaydesk/labridge/internal/liveagent"
	"github.com/relaydesk/labridge/internal/relay"
	"github.com/relaydesk/labridge/internal/session"
	"github.com/relaydesk/labridge/internal/store"
	"github.com/relaydesk/labridge/internal/telemetry"
)

// app holds the wired components of a running bridge.
type app struct {
	cfg    *config.Config
	logger *slog.Logger

	gateway       *gateway.Gateway
	scheduler     *cron.Scheduler
	orchestrator  *session.Orchestrator
	storeCloser   io.Closer
	traceShutdown func(context.Context) error
}

// newApp wires every component from configuration. Nothing is started and no
// network call is made; the bot logs in lazily on first use.
func newApp(cfg *config.Config) (*app, error) {
	logger := newLogger(cfg.LogLevel)

	traceShutdown, err := telemetry.Init(context.Background(), cfg.Telemetry.Enabled, cfg.Telemetry.Endpoint, logger)
	if err != nil {
		return nil, err
	}

	var (
		st     store.RoomStore
		closer io.Closer
	)
	if cfg.Store.Path != "" {
		sq, err := store.OpenSQLite(cfg.Store.Path)
		if err != nil {
			return nil, err
		}
		st, closer = sq, sq
		logger.Info("using sqlite store", "path", cfg.Store.Path)
	} else {
		st = store.NewMemoryStore()
		logger.Warn("using in-memory store, session records will not survive a restart")
	}

	backend := liveagent.NewClient(cfg.Backend.URL)
	bot := host.NewBot(host.NewClient(cfg.Host.URL), cfg.Host.BotUsername, cfg.Host.BotPassword)

	hub := gateway.NewHub(logger)
	roomRelay := relay.New(bot, hub, logger)
	idleMgr := idle.NewManager(st, roomRelay, bot, logger)

	strategy, err := handoff.New(cfg.Handoff, bot, logger)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	metrics := session.NewMetrics(registry)

	orch := session.New(backend, st, roomRelay, strategy, idleMgr, logger, metrics, session.Config{
		OrganizationID: cfg.Backend.OrganizationID,
		DeploymentID:   cfg.Backend.DeploymentID,
		ButtonID:       cfg.Backend.ButtonID,
		Debug:          cfg.Debug,
		DebugRoomID:    cfg.DebugRoomID,
		SneakPeek:      cfg.SneakPeek,
		Idle:           cfg.Idle.Record(),
		Messages:       cfg.Messages,
	})
	idleMgr.SetEnder(orch)

	scheduler := cron.NewScheduler(logger)
	if err := scheduler.RegisterJob(&cron.StaleSessionSweepJob{
		Store:        st,
		Sessions:     orch,
		MaxAge:       cfg.Sweep.MaxAge,
		Logger:       logger.With("job", "stale_session_sweep"),
		ScheduleExpr: cfg.Sweep.Schedule,
	}); err != nil {
		return nil, err
	}

	gw := gateway.New(gateway.Config{
		Bind:         cfg.Gateway.Bind,
		AuthToken:    cfg.Gateway.AuthToken,
		ReadTimeout:  cfg.Gateway.ReadTimeout,
		WriteTimeout: cfg.Gateway.WriteTimeout,
	}, orch, hub, registry, logger)

	return &app{
		cfg:           cfg,
		logger:        logger,
		gateway:       gw,
		scheduler:     scheduler,
		orchestrator:  orch,
		storeCloser:   closer,
		traceShutdown: traceShutdown,
	}, nil
}

// Run starts the bridge and blocks until ctx is cancelled, then shuts
// everything down in dependency order.
func (a *app) Run(ctx context.Context) error {
	if n := a.orchestrator.Resume(ctx); n > 0 {
		a.logger.Info("resumed persisted sessions", "count", n)
	}
	if err := a.scheduler.Start(); err != nil {
		a.orchestrator.Shutdown()
		return err
	}
	if err := a.gateway.Start(); err != nil {
		_ = a.scheduler.Stop(context.Background())
		a.orchestrator.Shutdown()
		return err
	}

	a.logger.Info("labridge started")
	<-ctx.Done()
	a.logger.Info("shutting down")

	shutdownCtx := context.Background()
	if err := a.gateway.Stop(shutdownCtx); err != nil {
		a.logger.Error("gateway shutdown failed", "error", err)
	}
	a.orchestrator.Shutdown()
	if err := a.scheduler.Stop(shutdownCtx); err != nil {
		a.logger.Error("scheduler shutdown failed", "error", err)
	}
	if a.storeCloser != nil {
		if err := a.storeCloser.Close(); err != nil {
			a.logger.Error("closing store failed", "error", err)
		}
	}
	if err := a.traceShutdown(shutdownCtx); err != nil {
		a.logger.Error("trace shutdown failed", "error", err)
	}
	return nil
}

// newLogger builds the process logger at the configured level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// loadConfig loads and validates the configuration at path.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}
