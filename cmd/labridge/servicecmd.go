package main

import (
	"context"
	"fmt"
	"os"

	"github.com/kardianos/service"
	"github.com/spf13/cobra"
)

// serviceCmd manages labridge as a system service (systemd, launchd, SCM).
func serviceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:       "service <install|uninstall|start|stop|restart|run>",
		Short:     "Run or manage labridge as a system service",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"install", "uninstall", "start", "stop", "restart", "run"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath, _ := cmd.Flags().GetString("config")

			svcArgs := []string{"service", "run"}
			if cfgPath != "" {
				svcArgs = append(svcArgs, "-c", cfgPath)
			}

			prg := &program{cfgPath: cfgPath}
			svc, err := service.New(prg, &service.Config{
				Name:        "labridge",
				DisplayName: "labridge",
				Description: "Bridges live-chat rooms with a LiveAgent-style agent backend",
				Arguments:   svcArgs,
			})
			if err != nil {
				return err
			}

			action := args[0]
			if action == "run" {
				return svc.Run()
			}
			if err := service.Control(svc, action); err != nil {
				return err
			}
			fmt.Printf("service %s: done\n", action)
			return nil
		},
	}
	cmd.Flags().StringP("config", "c", "", "Path to configuration file")
	return cmd
}

// program adapts the app lifecycle to the service manager's Start/Stop calls.
type program struct {
	cfgPath string
	cancel  context.CancelFunc
	done    chan struct{}
}

// Start implements service.Interface. It must not block.
func (p *program) Start(service.Service) error {
	cfgPath := p.cfgPath
	if cfgPath == "" {
		resolved, err := resolveConfigPath()
		if err != nil {
			return err
		}
		cfgPath = resolved
	}

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return err
	}
	a, err := newApp(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan struct{})

	go func() {
		defer close(p.done)
		if err := a.Run(ctx); err != nil {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
	}()
	return nil
}

// Stop implements service.Interface.
func (p *program) Stop(service.Service) error {
	if p.cancel != nil {
		p.cancel()
		<-p.done
	}
	return nil
}
