package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/ledgerline/chronicle/internal/daemon"
	"github.com/ledgerline/chronicle/internal/printer"
	"github.com/spf13/cobra"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the scheduling loop in the foreground",
	Long: `Run the chronicle daemon: a short timer drains the operation queue,
a longer timer folds raw events into batch documents, and an optional
filesystem watcher processes new requests immediately.

The daemon runs until interrupted (SIGINT or SIGTERM).

Examples:
  # Run with the configured store root
  chronicle daemon

  # Run against an explicit root
  chronicle daemon --root /srv/chronicle`,
	RunE: runDaemon,
}

func init() {
	rootCmd.AddCommand(daemonCmd)
}

func runDaemon(cmd *cobra.Command, args []string) error {
	app, err := buildApp()
	if err != nil {
		return printer.Error("Failed to start daemon", err.Error(), []string{
			"Check the configuration file for invalid values",
			"Verify the store root is writable",
		})
	}
	defer app.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	printer.Success("chronicle daemon running (store root: %s)\n", app.layout.Root)
	printer.Info("press Ctrl+C to stop\n")

	if err := app.daemon().Run(ctx); err != nil {
		return printer.Error("Daemon exited with an error", err.Error(), nil)
	}
	printer.Info("daemon stopped\n")
	return nil
}

// daemon builds the scheduling loop over the app's pipeline.
func (a *app) daemon() *daemon.Daemon {
	return daemon.New(daemon.Config{
		ProcessInterval: a.cfg.ProcessInterval,
		FlushInterval:   a.cfg.FlushInterval,
		Watch:           a.cfg.Watch,
	}, a.proc, a.journal, a.agg, a.queue, a.logger)
}
