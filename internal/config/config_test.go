package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/relaydesk/labridge/internal/store"
)

const minimalYAML = `
backend:
  url: https://chat.example.com
  organization_id: org
  deployment_id: dep
  button_id: btn
host:
  url: https://rooms.example.com
  bot_username: bridge-bot
  bot_password: ${LABRIDGE_BOT_PASSWORD}
gateway:
  bind: 127.0.0.1:9000
  auth_token: ${LABRIDGE_WEBHOOK_TOKEN:-fallback-token}
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "labridge.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoad_ExpandsEnvironment(t *testing.T) {
	t.Setenv("LABRIDGE_BOT_PASSWORD", "hunter2")

	cfg, err := Load(writeConfig(t, minimalYAML))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Host.BotPassword != "hunter2" {
		t.Errorf("BotPassword = %q, want env value", cfg.Host.BotPassword)
	}
	if cfg.Gateway.AuthToken != "fallback-token" {
		t.Errorf("AuthToken = %q, want default value", cfg.Gateway.AuthToken)
	}
	if cfg.Gateway.Bind != "127.0.0.1:9000" {
		t.Errorf("Bind = %q", cfg.Gateway.Bind)
	}
}

func TestLoad_UnresolvedVariable(t *testing.T) {
	os.Unsetenv("LABRIDGE_BOT_PASSWORD")

	_, err := Load(writeConfig(t, minimalYAML))
	if err == nil {
		t.Fatal("Load() error = nil, want unresolved variable")
	}
	if !strings.Contains(err.Error(), "LABRIDGE_BOT_PASSWORD") {
		t.Errorf("error %q does not name the unresolved variable", err)
	}
}

func TestLoad_AppliesDefaults(t *testing.T) {
	t.Setenv("LABRIDGE_BOT_PASSWORD", "pw")

	cfg, err := Load(writeConfig(t, minimalYAML))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Idle.Mode != string(store.TimerAppScheduled) {
		t.Errorf("Idle.Mode = %q, want app default", cfg.Idle.Mode)
	}
	if cfg.Sweep.Schedule != "*/5 * * * *" {
		t.Errorf("Sweep.Schedule = %q", cfg.Sweep.Schedule)
	}
	if cfg.Sweep.MaxAge != 2*time.Hour {
		t.Errorf("Sweep.MaxAge = %v", cfg.Sweep.MaxAge)
	}
	if cfg.Handoff.Mode != "direct" {
		t.Errorf("Handoff.Mode = %q, want direct default", cfg.Handoff.Mode)
	}
	if cfg.Messages.QueueNext == "" {
		t.Error("Messages defaults not applied")
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want info default", cfg.LogLevel)
	}
}

func validConfig() *Config {
	cfg := &Config{}
	cfg.Backend = BackendConfig{
		URL:            "https://chat.example.com",
		OrganizationID: "org",
		DeploymentID:   "dep",
		ButtonID:       "btn",
	}
	cfg.Host = HostConfig{
		URL:         "https://rooms.example.com",
		BotUsername: "bot",
		BotPassword: "pw",
	}
	cfg.Gateway.AuthToken = "tok"
	cfg.Defaults()
	return cfg
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"missing backend url", func(c *Config) { c.Backend.URL = "" }, "backend.url"},
		{"missing org", func(c *Config) { c.Backend.OrganizationID = "" }, "organization_id"},
		{"missing deployment", func(c *Config) { c.Backend.DeploymentID = "" }, "deployment_id"},
		{"missing button", func(c *Config) { c.Backend.ButtonID = "" }, "button_id"},
		{"missing host url", func(c *Config) { c.Host.URL = "" }, "host.url"},
		{"missing bot username", func(c *Config) { c.Host.BotUsername = "" }, "bot_username"},
		{"missing bot password", func(c *Config) { c.Host.BotPassword = "" }, "bot_password"},
		{"missing auth token", func(c *Config) { c.Gateway.AuthToken = "" }, "auth_token"},
		{"bad bind", func(c *Config) { c.Gateway.Bind = "not-a-hostport" }, "gateway.bind"},
		{"bad idle mode", func(c *Config) {
			c.Idle = IdleConfig{Enabled: true, Mode: "cosmic", TimeoutSeconds: 60, WarningSeconds: 30}
		}, "idle.mode"},
		{"warning past timeout", func(c *Config) {
			c.Idle = IdleConfig{Enabled: true, Mode: "app", TimeoutSeconds: 60, WarningSeconds: 90}
		}, "warning_seconds"},
		{"queue handoff without department", func(c *Config) {
			c.Handoff.Mode = "queue"
		}, "department"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := validConfig()
			tt.mutate(cfg)
			err := Validate(cfg)

			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestIdleConfig_Record(t *testing.T) {
	t.Parallel()

	c := IdleConfig{Enabled: true, WarningSeconds: 240, TimeoutSeconds: 300, Mode: "host"}
	rec := c.Record()
	if !rec.Enabled || rec.WarningSeconds != 240 || rec.TimeoutSeconds != 300 || rec.Mode != store.TimerHostScheduled {
		t.Errorf("Record() = %+v", rec)
	}
}
