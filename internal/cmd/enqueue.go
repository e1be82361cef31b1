package cmd

import (
	"encoding/json"

	"github.com/ledgerline/chronicle/internal/opqueue"
	"github.com/ledgerline/chronicle/internal/printer"
	"github.com/spf13/cobra"
)

var enqueueCmd = &cobra.Command{
	Use:   "enqueue",
	Short: "Add an operation request to the queue",
	Long: `Durably enqueue one operation request. The daemon (or 'chronicle
process') picks it up, and failures are retried until the request either
succeeds or is dead-lettered.`,
}

var enqueueBatchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Request aggregation of pending raw events",
	RunE:  runEnqueueBatch,
}

var enqueueHousekeepingCmd = &cobra.Command{
	Use:   "housekeeping",
	Short: "Request day-boundary maintenance",
	Long: `Request a housekeeping run: collect finished batch days, then gc,
push to the backup replica, and stamp the daily marker. The request is a
no-op if housekeeping already ran today.`,
	RunE: runEnqueueHousekeeping,
}

var enqueueWriteCmd = &cobra.Command{
	Use:   "write",
	Short: "Request a write-and-commit of a JSON document",
	Long: `Request a durable write: the body is written to the given path under
the store root and committed with a kind-tagged message.

Examples:
  chronicle enqueue write --file reports/2026/02/15.json --body '{"date":"2026-02-15"}'
  chronicle enqueue write --kind report --file projects.json --body '{"active":3}'`,
	RunE: runEnqueueWrite,
}

var (
	enqueueWriteKind string
	enqueueWriteFile string
	enqueueWriteBody string
)

func init() {
	rootCmd.AddCommand(enqueueCmd)
	enqueueCmd.AddCommand(enqueueBatchCmd)
	enqueueCmd.AddCommand(enqueueHousekeepingCmd)
	enqueueCmd.AddCommand(enqueueWriteCmd)

	enqueueWriteCmd.Flags().StringVarP(&enqueueWriteKind, "kind", "k", "write", "Kind tag used in the commit message")
	enqueueWriteCmd.Flags().StringVarP(&enqueueWriteFile, "file", "f", "", "Target path relative to the store root (required)")
	enqueueWriteCmd.Flags().StringVarP(&enqueueWriteBody, "body", "b", "", "JSON body to write (required)")
	_ = enqueueWriteCmd.MarkFlagRequired("file")
	_ = enqueueWriteCmd.MarkFlagRequired("body")
}

func runEnqueueBatch(cmd *cobra.Command, args []string) error {
	return enqueue(opqueue.NewProcessBatchRequest())
}

func runEnqueueHousekeeping(cmd *cobra.Command, args []string) error {
	return enqueue(opqueue.NewHousekeepingRequest())
}

func runEnqueueWrite(cmd *cobra.Command, args []string) error {
	if !json.Valid([]byte(enqueueWriteBody)) {
		return printer.Error("Invalid body", "the --body argument must be valid JSON", []string{
			`Quote the document: --body '{"key":"value"}'`,
		})
	}
	return enqueue(opqueue.NewWriteRequest(enqueueWriteKind, enqueueWriteFile, json.RawMessage(enqueueWriteBody)))
}

func enqueue(req opqueue.Request) error {
	app, err := buildApp()
	if err != nil {
		return printer.Error("Failed to initialize", err.Error(), nil)
	}
	defer app.Close()

	name, err := app.queue.Add(req)
	if err != nil {
		return printer.Error("Failed to enqueue request", err.Error(), []string{
			"Verify the store root is writable",
		})
	}

	printer.Success("request enqueued (%s)\n", name)
	return nil
}
