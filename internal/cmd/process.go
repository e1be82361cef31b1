package cmd

import (
	"github.com/ledgerline/chronicle/internal/errors"
	"github.com/ledgerline/chronicle/internal/lockfile"
	"github.com/ledgerline/chronicle/internal/printer"
	"github.com/spf13/cobra"
)

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Run one queue processing cycle",
	Long: `Drain the operation queue once in the foreground and exit.

Useful for scripting and for forcing work through without waiting for
the daemon's next tick. If another process holds the store lock, the
cycle is skipped and retried by whoever holds it.`,
	RunE: runProcess,
}

func init() {
	rootCmd.AddCommand(processCmd)
}

func runProcess(cmd *cobra.Command, args []string) error {
	app, err := buildApp()
	if err != nil {
		return printer.Error("Failed to initialize", err.Error(), nil)
	}
	defer app.Close()

	before := app.queue.Depth()
	if before == 0 {
		printer.Info("operation queue is empty\n")
		return nil
	}

	if err := app.proc.ProcessQueue(); err != nil {
		if errors.Is(err, errors.ErrLockHeld) {
			if holder, _ := lockfile.Inspect(app.layout.LockFile()); holder != nil {
				printer.Warning("store is busy: locked by PID %d on %s since %s\n",
					holder.PID, holder.Hostname, holder.AcquiredAt.Format("15:04:05"))
			} else {
				printer.Warning("store is busy, try again shortly\n")
			}
			return nil
		}
		return printer.Error("Processing failed", err.Error(), []string{
			"Check the log file for details",
			"Run 'chronicle status' to inspect the store",
		})
	}

	remaining := app.queue.Depth()
	printer.Success("processed %d request(s)\n", before-remaining)
	if remaining > 0 {
		printer.Warning("%d request(s) still pending (failures are retried next cycle)\n", remaining)
	}
	return nil
}
