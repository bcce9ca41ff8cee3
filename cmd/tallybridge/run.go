package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rajlabs/tallybridge/internal/config"
	"github.com/rajlabs/tallybridge/internal/dashboard"
	"github.com/rajlabs/tallybridge/internal/sync"
	"github.com/rajlabs/tallybridge/internal/ui"
)

var runCmd = &cobra.Command{
	Use:     "run",
	GroupID: "sync",
	Short:   "Run the sync scheduler and update poller until interrupted",
	Long: `Start the background engine: the auto-sync scheduler uploads ledger
deltas on its interval, and the update poller applies pending backend edits
back into Tally on its own interval.

Interval changes in the config file are picked up live without a restart.

Example usage:
  tallybridge run                  # scheduler + poller
  tallybridge run --dashboard      # also serve the WebSocket dashboard`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, loader, err := loadConfig()
		if err != nil {
			return err
		}
		withDashboard, _ := cmd.Flags().GetBool("dashboard")

		var events sync.Events
		var server *dashboard.Server
		var eng *engine

		if withDashboard {
			server = dashboard.NewServer(&dashboard.Config{
				Port:   cfg.DashboardPort,
				Logger: newLogger("dashboard", cfg.LogFile),
				Status: func() dashboard.StatusData {
					data := dashboard.StatusData{Company: cfg.CompanyName}
					if eng != nil {
						stats := eng.scheduler.Stats()
						data.Running = eng.scheduler.Running()
						data.Summary = stats.String()
						if !stats.LastRun.IsZero() {
							data.LastPass = stats.LastRun.Format("15:04:05")
						}
					}
					return data
				},
			})
			events = dashboard.NewEventSink(server)
		}

		eng, cleanup, err := buildEngine(cfg, events)
		if err != nil {
			return err
		}
		defer cleanup()

		if server != nil {
			if err := server.Start(); err != nil {
				return err
			}
			fmt.Printf("%s Dashboard on ws://localhost:%d/ws\n",
				ui.RenderAccent("▸"), cfg.DashboardPort)
		}

		if err := eng.scheduler.Start(); err != nil {
			return err
		}
		if err := eng.poller.Start(); err != nil {
			eng.scheduler.Stop()
			return err
		}

		// Interval edits in config.yaml apply on the next tick.
		loader.Watch(func(fresh *config.Config) {
			eng.scheduler.SetInterval(fresh.SyncInterval)
			eng.poller.SetInterval(fresh.PollInterval)
		})

		fmt.Printf("%s Syncing %q every %s, polling updates every %s\n",
			ui.RenderPass("✓"), cfg.CompanyName, cfg.SyncInterval, cfg.PollInterval)
		fmt.Println("Press Ctrl+C to stop...")

		ctx, cancel := signal.NotifyContext(context.Background(),
			os.Interrupt, syscall.SIGTERM)
		defer cancel()
		<-ctx.Done()

		fmt.Println("\nShutting down...")
		eng.poller.Stop()
		eng.scheduler.Stop()
		if server != nil {
			if err := server.Stop(); err != nil {
				fmt.Fprintf(os.Stderr, "Error stopping dashboard: %v\n", err)
			}
		}
		fmt.Println("Stopped")
		return nil
	},
}

func init() {
	runCmd.Flags().Bool("dashboard", false, "Serve the monitoring dashboard")
	rootCmd.AddCommand(runCmd)
}
