// Package config handles YAML configuration loading, environment variable
// expansion, and validation for labridge.
package config

import (
	"time"

	"github.com/relaydesk/labridge/internal/handoff"
	"github.com/relaydesk/labridge/internal/session"
	"github.com/relaydesk/labridge/internal/store"
)

// Config is the top-level configuration structure.
type Config struct {
	Backend   BackendConfig    `yaml:"backend"`
	Host      HostConfig       `yaml:"host"`
	Handoff   handoff.Config   `yaml:"handoff"`
	Gateway   GatewayConfig    `yaml:"gateway"`
	Store     StoreConfig      `yaml:"store"`
	Idle      IdleConfig       `yaml:"idle"`
	Messages  session.Messages `yaml:"messages"`
	Sweep     SweepConfig      `yaml:"sweep"`
	Telemetry TelemetryConfig  `yaml:"telemetry"`

	// SneakPeek selects sneak-peek over plain typing signals for new
	// sessions.
	SneakPeek bool `yaml:"sneak_peek"`

	// Debug enables typing-indicator relay and debug-channel diagnostics.
	Debug bool `yaml:"debug"`

	// DebugRoomID receives diagnostic copies when Debug is on.
	DebugRoomID string `yaml:"debug_room_id"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`
}

// BackendConfig identifies the LiveAgent-style chat backend deployment.
type BackendConfig struct {
	URL            string `yaml:"url"`
	OrganizationID string `yaml:"organization_id"`
	DeploymentID   string `yaml:"deployment_id"`
	ButtonID       string `yaml:"button_id"`
}

// HostConfig identifies the host messaging platform and the bridge bot.
type HostConfig struct {
	URL         string `yaml:"url"`
	BotUsername string `yaml:"bot_username"`
	BotPassword string `yaml:"bot_password"`
}

// GatewayConfig configures the HTTP surface.
type GatewayConfig struct {
	Bind         string        `yaml:"bind"`
	AuthToken    string        `yaml:"auth_token"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// StoreConfig selects the room record store. An empty path selects the
// in-memory store (records do not survive a restart).
type StoreConfig struct {
	Path string `yaml:"path"`
}

// IdleConfig is the inactivity-timeout policy applied to new sessions.
type IdleConfig struct {
	Enabled        bool   `yaml:"enabled"`
	WarningSeconds int    `yaml:"warning_seconds"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	Mode           string `yaml:"mode"` // "app" or "host"
}

// Record converts the config into the per-room record form.
func (c IdleConfig) Record() store.IdleTimeoutConfig {
	return store.IdleTimeoutConfig{
		Enabled:        c.Enabled,
		WarningSeconds: c.WarningSeconds,
		TimeoutSeconds: c.TimeoutSeconds,
		Mode:           store.TimerMode(c.Mode),
	}
}

// SweepConfig configures the stale-record sweep job.
type SweepConfig struct {
	Schedule string        `yaml:"schedule"`
	MaxAge   time.Duration `yaml:"max_age"`
}

// TelemetryConfig configures the OTLP trace exporter.
type TelemetryConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
}

// Defaults applies default values to unset fields.
func (c *Config) Defaults() {
	if c.Gateway.Bind == "" {
		c.Gateway.Bind = "127.0.0.1:8945"
	}
	if c.Gateway.ReadTimeout <= 0 {
		c.Gateway.ReadTimeout = 15 * time.Second
	}
	if c.Gateway.WriteTimeout <= 0 {
		c.Gateway.WriteTimeout = 15 * time.Second
	}
	if c.Idle.Mode == "" {
		c.Idle.Mode = string(store.TimerAppScheduled)
	}
	if c.Idle.Enabled {
		if c.Idle.TimeoutSeconds == 0 {
			c.Idle.TimeoutSeconds = 300
		}
		if c.Idle.WarningSeconds == 0 {
			c.Idle.WarningSeconds = 240
		}
	}
	if c.Sweep.Schedule == "" {
		c.Sweep.Schedule = "*/5 * * * *"
	}
	if c.Sweep.MaxAge <= 0 {
		c.Sweep.MaxAge = 2 * time.Hour
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	c.Handoff.Defaults()
	c.Messages.Defaults()
}
