package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/ledgerline/chronicle/internal/batch"
	"github.com/ledgerline/chronicle/internal/config"
	"github.com/ledgerline/chronicle/internal/event"
	"github.com/ledgerline/chronicle/internal/gitstore"
	"github.com/ledgerline/chronicle/internal/journal"
	"github.com/ledgerline/chronicle/internal/lockfile"
	"github.com/ledgerline/chronicle/internal/logging"
	"github.com/ledgerline/chronicle/internal/opqueue"
	"github.com/ledgerline/chronicle/internal/printer"
	"github.com/ledgerline/chronicle/internal/processor"
)

// app bundles the wired pipeline for one store root.
type app struct {
	cfg     *config.Config
	layout  config.Layout
	logger  *logging.Logger
	bus     *event.Bus
	journal *journal.Store
	queue   *opqueue.Store
	agg     *batch.Aggregator
	store   *gitstore.Store
	lock    *lockfile.Lock
	proc    *processor.Processor
}

// buildApp loads the configuration and wires every component against the
// resolved store root.
func buildApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	layout := cfg.Layout()
	if err := os.MkdirAll(layout.Root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create store root: %w", err)
	}

	logger, err := logging.NewRotatingLogger(cfg.LogFile(), logging.ParseLevel(cfg.Log.Level), logging.RotationConfig{
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		Compress:   cfg.Log.Compress,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	bus := event.NewBus()
	bus.SubscribeAll(func(e event.Event) {
		logger.Debug("event published", "event_type", e.EventType())
	})
	printer.Attach(bus)

	jstore := journal.NewStore(layout.Queue(), logger)
	queue := opqueue.NewStore(layout.OperationQueue(), layout.OperationQueueBackup(), logger)
	agg := batch.NewAggregator(batch.Dirs{
		Queue:     layout.Queue(),
		Workspace: layout.BatchWorkspace(),
		Backup:    layout.QueueBackup(),
		Batches:   layout.Batches(),
	}, logger, bus)

	store := gitstore.NewStore(layout.Data(), layout.Replica(), gitstore.Identity{
		Name:  cfg.Git.AuthorName,
		Email: cfg.Git.AuthorEmail,
	}, nil, logger, bus)
	if cfg.ExportCommand != "" {
		store.SetExporter(shellExporter(cfg.ExportCommand, layout.Root))
	}

	lock := lockfile.New(layout.LockFile(), logger)
	proc := processor.NewProcessor(queue, agg, store, lock, logger, bus)
	proc.SetLockTimeout(cfg.LockTimeout)

	return &app{
		cfg:     cfg,
		layout:  layout,
		logger:  logger,
		bus:     bus,
		journal: jstore,
		queue:   queue,
		agg:     agg,
		store:   store,
		lock:    lock,
		proc:    proc,
	}, nil
}

// shellExporter runs the configured export command through the shell in
// the store root during housekeeping.
func shellExporter(command, dir string) gitstore.Exporter {
	executor := gitstore.CLIExecutor{}
	return gitstore.ExporterFunc(func() error {
		output, err := executor.Run(dir, "sh", "-c", command)
		if err != nil {
			return fmt.Errorf("export command failed: %w (output: %s)", err, strings.TrimSpace(string(output)))
		}
		return nil
	})
}

// Close flushes and releases the app's resources.
func (a *app) Close() {
	_ = a.logger.Close()
}
