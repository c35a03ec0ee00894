// Package handoff implements the conversation hand-off strategies run when a
// human agent accepts a chat and when the chat ends. Two strategies exist,
// selected by configuration: transferring the room to an agent queue, or
// leaving the bridge bot attached as the active agent.
package handoff

import (
	"context"
	"fmt"
	"log/slog"
)

// Platform is the subset of host-platform bot operations the strategies
// need. Implemented by *host.Bot, which logs the bot in lazily on the first
// authenticated call.
type Platform interface {
	SetStatus(ctx context.Context, status string) error
	SendMessage(ctx context.Context, roomID, text string) error
	TransferRoom(ctx context.Context, roomID, department string) error
}

// Config selects and parameterizes a strategy.
type Config struct {
	// Mode is "queue" or "direct".
	Mode string `yaml:"mode"`

	// Department is the target queue for the queue strategy.
	Department string `yaml:"department"`

	// HandbackDepartment, when set, receives the conversation back after the
	// session ends. When empty, a terminal message is posted instead and the
	// visitor dismisses the chat from the widget.
	HandbackDepartment string `yaml:"handback_department"`
}

// Strategy modes.
const (
	ModeQueue  = "queue"
	ModeDirect = "direct"
)

// Defaults applies default values to unset fields.
func (c *Config) Defaults() {
	if c.Mode == "" {
		c.Mode = ModeDirect
	}
}

// Validate checks mode-specific requirements.
func (c *Config) Validate() error {
	switch c.Mode {
	case ModeQueue:
		if c.Department == "" {
			return fmt.Errorf("handoff: queue mode requires a department")
		}
	case ModeDirect:
	default:
		return fmt.Errorf("handoff: unknown mode %q (want %q or %q)", c.Mode, ModeQueue, ModeDirect)
	}
	return nil
}

// Strategy is the pair of lifecycle hooks the session orchestrator invokes.
type Strategy interface {
	// OnEstablished runs after a human agent accepts the chat.
	OnEstablished(ctx context.Context, roomID string) error

	// OnEnded runs after the session terminated; message is the rendered
	// visitor-facing end text.
	OnEnded(ctx context.Context, roomID, message string) error
}

// New builds the strategy selected by cfg.
func New(cfg Config, platform Platform, logger *slog.Logger) (Strategy, error) {
	cfg.Defaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "handoff")

	switch cfg.Mode {
	case ModeQueue:
		return &QueueStrategy{
			platform: platform,
			cfg:      cfg,
			logger:   logger,
		}, nil
	default:
		return &DirectStrategy{
			platform: platform,
			cfg:      cfg,
			logger:   logger,
		}, nil
	}
}
