package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/relaydesk/labridge/internal/config"
)

// initCmd interactively generates a starter configuration file.
func initCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Interactively generate a configuration file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "labridge.yaml"
			if len(args) == 1 {
				path = args[0]
			}

			force, _ := cmd.Flags().GetBool("force")
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}

			cfg, err := promptConfig()
			if err != nil {
				return err
			}

			data, err := yaml.Marshal(cfg)
			if err != nil {
				return err
			}
			if err := os.WriteFile(path, data, 0o600); err != nil {
				return err
			}

			fmt.Printf("Wrote %s\n", path)
			fmt.Println("Review it, then run: labridge start -c " + path)
			return nil
		},
	}
	cmd.Flags().Bool("force", false, "Overwrite an existing file")
	return cmd
}

// promptConfig walks the operator through the required settings.
func promptConfig() (*config.Config, error) {
	var cfg config.Config
	var idleEnabled bool

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Backend URL").
				Description("Base URL of the agent chat backend").
				Value(&cfg.Backend.URL),
			huh.NewInput().
				Title("Organization ID").
				Value(&cfg.Backend.OrganizationID),
			huh.NewInput().
				Title("Deployment ID").
				Value(&cfg.Backend.DeploymentID),
			huh.NewInput().
				Title("Button ID").
				Value(&cfg.Backend.ButtonID),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Host platform URL").
				Description("Base URL of the messaging platform the visitors use").
				Value(&cfg.Host.URL),
			huh.NewInput().
				Title("Bridge bot username").
				Value(&cfg.Host.BotUsername),
			huh.NewInput().
				Title("Bridge bot password").
				EchoMode(huh.EchoModePassword).
				Value(&cfg.Host.BotPassword),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Gateway bind address").
				Placeholder("127.0.0.1:8945").
				Value(&cfg.Gateway.Bind),
			huh.NewInput().
				Title("Webhook auth token").
				Description("Bearer token the host platform sends on webhooks").
				EchoMode(huh.EchoModePassword).
				Value(&cfg.Gateway.AuthToken),
			huh.NewInput().
				Title("Store path").
				Description("SQLite file for session records, empty for in-memory").
				Value(&cfg.Store.Path),
			huh.NewConfirm().
				Title("Enable idle timeout?").
				Value(&idleEnabled),
		),
	)

	if err := form.Run(); err != nil {
		return nil, err
	}

	cfg.Idle.Enabled = idleEnabled
	cfg.Defaults()
	return &cfg, nil
}
