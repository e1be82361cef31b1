package cmd

import (
	"github.com/ledgerline/chronicle/internal/journal"
	"github.com/ledgerline/chronicle/internal/printer"
	"github.com/spf13/cobra"
)

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record one file-save event",
	Long: `Append one raw event to the journal queue. This is the producer
surface: editor integrations call it on save, and the daemon folds the
accumulated events into batch documents on its next flush.

Examples:
  chronicle record --project /home/me/src/app --file main.go
  chronicle record --project /home/me/src/app --file util.go --branch feature/login`,
	RunE: runRecord,
}

var (
	recordProject string
	recordFile    string
	recordBranch  string
)

func init() {
	rootCmd.AddCommand(recordCmd)

	recordCmd.Flags().StringVarP(&recordProject, "project", "p", "", "Project directory the event belongs to (required)")
	recordCmd.Flags().StringVarP(&recordFile, "file", "f", "", "File that was saved (required)")
	recordCmd.Flags().StringVarP(&recordBranch, "branch", "b", "", "Branch the work happened on")
	_ = recordCmd.MarkFlagRequired("project")
	_ = recordCmd.MarkFlagRequired("file")
}

func runRecord(cmd *cobra.Command, args []string) error {
	app, err := buildApp()
	if err != nil {
		return printer.Error("Failed to initialize", err.Error(), nil)
	}
	defer app.Close()

	name, err := app.journal.Add(journal.Entry{
		Directory: recordProject,
		File:      recordFile,
		Branch:    recordBranch,
	})
	if err != nil {
		return printer.Error("Failed to record event", err.Error(), []string{
			"Verify the store root is writable",
		})
	}

	printer.Success("event recorded (%s)\n", name)
	return nil
}
