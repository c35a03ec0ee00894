package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"

	"github.com/relaydesk/labridge/internal/store"
)

// Validate checks the structural validity of a Config. All problems are
// reported at once so a broken file can be fixed in a single edit.
func Validate(cfg *Config) error {
	var errs []error

	errs = append(errs, validateBackend(cfg.Backend)...)
	errs = append(errs, validateHost(cfg.Host)...)
	errs = append(errs, validateGateway(cfg.Gateway)...)
	errs = append(errs, validateIdle(cfg.Idle)...)

	if err := cfg.Handoff.Validate(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

func validateBackend(b BackendConfig) []error {
	var errs []error
	if b.URL == "" {
		errs = append(errs, errors.New("config: backend.url is required"))
	} else if _, err := url.ParseRequestURI(b.URL); err != nil {
		errs = append(errs, fmt.Errorf("config: backend.url: %w", err))
	}
	if b.OrganizationID == "" {
		errs = append(errs, errors.New("config: backend.organization_id is required"))
	}
	if b.DeploymentID == "" {
		errs = append(errs, errors.New("config: backend.deployment_id is required"))
	}
	if b.ButtonID == "" {
		errs = append(errs, errors.New("config: backend.button_id is required"))
	}
	return errs
}

func validateHost(h HostConfig) []error {
	var errs []error
	if h.URL == "" {
		errs = append(errs, errors.New("config: host.url is required"))
	} else if _, err := url.ParseRequestURI(h.URL); err != nil {
		errs = append(errs, fmt.Errorf("config: host.url: %w", err))
	}
	if h.BotUsername == "" {
		errs = append(errs, errors.New("config: host.bot_username is required"))
	}
	if h.BotPassword == "" {
		errs = append(errs, errors.New("config: host.bot_password is required"))
	}
	return errs
}

func validateGateway(g GatewayConfig) []error {
	var errs []error
	if _, _, err := net.SplitHostPort(g.Bind); err != nil {
		errs = append(errs, fmt.Errorf("config: gateway.bind %q: %w", g.Bind, err))
	}
	if g.AuthToken == "" {
		errs = append(errs, errors.New("config: gateway.auth_token is required"))
	}
	return errs
}

func validateIdle(i IdleConfig) []error {
	if !i.Enabled {
		return nil
	}
	var errs []error

	switch store.TimerMode(i.Mode) {
	case store.TimerAppScheduled, store.TimerHostScheduled:
	default:
		errs = append(errs, fmt.Errorf("config: idle.mode %q: must be %q or %q",
			i.Mode, store.TimerAppScheduled, store.TimerHostScheduled))
	}

	if i.TimeoutSeconds <= 0 {
		errs = append(errs, errors.New("config: idle.timeout_seconds must be positive"))
	}
	if i.WarningSeconds < 0 {
		errs = append(errs, errors.New("config: idle.warning_seconds must not be negative"))
	}
	if i.WarningSeconds >= i.TimeoutSeconds && i.TimeoutSeconds > 0 {
		errs = append(errs, errors.New("config: idle.warning_seconds must be less than idle.timeout_seconds"))
	}
	return errs
}
