package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mschirtzinger/logsync/internal/daemon"
	"github.com/mschirtzinger/logsync/internal/dashboard"
	"github.com/mschirtzinger/logsync/internal/orchestrator"
	"github.com/mschirtzinger/logsync/internal/ui"
)

func newDaemonCmd(opts *globalOptions) *cobra.Command {
	var (
		interval time.Duration
		port     int
	)

	cmd := &cobra.Command{
		Use:     "daemon",
		GroupID: "sync",
		Short:   "Sync on an interval until interrupted",
		Long: `Run sync passes at startup and then every interval until interrupted.

The config file is watched: saving it runs a pass with the new settings
shortly afterwards. Each pass takes the same lock as "logsync sync", so a
cron-driven sync and the daemon never run at the same time.

With a dashboard port, a WebSocket server streams run progress:
  ws://HOST:PORT/ws      hello, run_started, user_synced, run_complete
  http://HOST:PORT/health

Examples:
  logsync daemon                          # interval from config (default 15m)
  logsync daemon --interval 5m
  logsync daemon --dashboard-port 8080`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.loadApp()
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.cfg.RequireSecrets(true); err != nil {
				return err
			}
			if interval <= 0 {
				interval = a.cfg.Daemon.Interval
			}
			if port < 0 {
				port = a.cfg.Dashboard.Port
			}

			var observer orchestrator.Observer
			if port > 0 {
				server := dashboard.NewServer(&dashboard.Config{
					Port:   port,
					Host:   a.cfg.Dashboard.Host,
					Logger: a.logger("dashboard"),
				})
				if err := server.Start(); err != nil {
					return fmt.Errorf("failed to start dashboard: %w", err)
				}
				defer server.Stop()
				observer = dashboard.NewHandler(server, a.logger("dashboard"))
				fmt.Fprintf(cmd.OutOrStdout(), "%s Dashboard on ws://%s/ws\n", ui.RenderAccent("📡"), server.GetAddr())
			}

			logger := a.logger("daemon")
			run := func(ctx context.Context, reason daemon.Reason) error {
				if reason == daemon.ReasonConfigChanged {
					cfg, err := opts.loadConfig()
					if err != nil {
						logger.Printf("WARNING: Failed to reload config, keeping previous settings: %v", err)
					} else if err := cfg.RequireSecrets(true); err != nil {
						logger.Printf("WARNING: Reloaded config is missing credentials, keeping previous settings: %v", err)
					} else {
						a.cfg = cfg
						logger.Printf("Reloaded config from %s (%d users)", cfg.Path(), len(cfg.Users))
					}
				}
				sum, err := a.runOnce(ctx, runOptions{observer: observer})
				if err != nil {
					return err
				}
				logger.Printf("Run %s: %d users, %d failed users, %d failed operations",
					sum.RunID, len(sum.Users), sum.FailedUsers(), sum.FailedOps())
				return nil
			}

			d, err := daemon.NewWithConfig(run, &daemon.Config{
				Interval:   interval,
				ConfigFile: a.cfg.Path(),
				LockPath:   a.cfg.Daemon.LockPath,
				Logger:     logger,
			})
			if err != nil {
				return err
			}

			ctx, cancel := notifyContext(cmd.Context())
			defer cancel()

			fmt.Fprintf(cmd.OutOrStdout(), "%s Syncing every %v, press Ctrl+C to stop\n", ui.RenderAccent("🔄"), interval)
			return d.Start(ctx)
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", 0, "Time between passes (default from config)")
	cmd.Flags().IntVarP(&port, "dashboard-port", "p", -1, "Serve the WebSocket dashboard on this port (0 disables, default from config)")
	return cmd
}
