package cmd

import (
	"fmt"

	"github.com/ledgerline/chronicle/internal/lockfile"
	"github.com/ledgerline/chronicle/internal/printer"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show store and queue status",
	Long:  `Display queue depths, dead-letter counts, lock state, and store health.`,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	app, err := buildApp()
	if err != nil {
		return printer.Error("Failed to initialize", err.Error(), nil)
	}
	defer app.Close()

	fmt.Printf("Store root: %s\n\n", app.layout.Root)

	raw, err := app.journal.List()
	if err != nil {
		return printer.Error("Failed to read journal queue", err.Error(), nil)
	}
	fmt.Printf("Raw events:       %d pending, %d staged, %d quarantined\n",
		len(raw), app.agg.StagedCount(), app.agg.QuarantinedCount())
	fmt.Printf("Operation queue:  %d pending, %d dead-lettered\n\n",
		app.queue.Depth(), app.queue.DeadLettered())

	if last, ok := app.store.LastHousekeeping(); ok {
		fmt.Printf("Housekeeping:     last ran %s\n", last.Format("2006-01-02"))
	} else {
		fmt.Printf("Housekeeping:     never ran\n")
	}

	if holder, live := lockfile.Inspect(app.layout.LockFile()); holder != nil {
		state := "stale"
		if live {
			state = "held"
		}
		fmt.Printf("Lock:             %s by PID %d on %s since %s\n",
			state, holder.PID, holder.Hostname, holder.AcquiredAt.Format("2006-01-02 15:04:05"))
	} else {
		fmt.Printf("Lock:             free\n")
	}

	fmt.Println()
	if err := app.store.Check(); err != nil {
		printer.Warning("store health: %v\n", err)
		printer.Info("the store self-heals on the next commit; the previous copy is kept beside the root\n")
	} else {
		printer.Success("store is healthy\n")
	}

	return nil
}
