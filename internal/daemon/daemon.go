// Package daemon runs the long-lived scheduling loop: a short timer that
// drains the operation queue, a longer timer that turns raw journal
// entries into batch requests, and an optional filesystem watcher that
// collapses the queue-to-processing latency to near zero.
package daemon

import (
	"context"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/ledgerline/chronicle/internal/batch"
	"github.com/ledgerline/chronicle/internal/errors"
	"github.com/ledgerline/chronicle/internal/journal"
	"github.com/ledgerline/chronicle/internal/logging"
	"github.com/ledgerline/chronicle/internal/opqueue"
	"github.com/ledgerline/chronicle/internal/processor"
)

const (
	// DefaultProcessInterval drives the operation queue drain.
	DefaultProcessInterval = 10 * time.Second
	// DefaultFlushInterval drives raw-event aggregation.
	DefaultFlushInterval = 2 * time.Minute
	// watchDebounce batches the flurry of create events one enqueue can
	// produce into a single processing cycle.
	watchDebounce = 100 * time.Millisecond
)

// Config controls the daemon's scheduling.
type Config struct {
	// ProcessInterval is the operation queue polling period.
	ProcessInterval time.Duration
	// FlushInterval is the raw-event aggregation period.
	FlushInterval time.Duration
	// Watch enables filesystem notification on the operation queue
	// directory so new requests are processed without waiting for the
	// next poll. Watch failures degrade to timer-only operation.
	Watch bool
}

// Daemon owns the scheduling loop over one store root.
type Daemon struct {
	cfg        Config
	processor  *processor.Processor
	journal    *journal.Store
	aggregator *batch.Aggregator
	queue      *opqueue.Store
	logger     *logging.Logger
}

// New creates a Daemon. Non-positive intervals fall back to the defaults.
func New(cfg Config, proc *processor.Processor, journal *journal.Store, aggregator *batch.Aggregator, queue *opqueue.Store, logger *logging.Logger) *Daemon {
	if cfg.ProcessInterval <= 0 {
		cfg.ProcessInterval = DefaultProcessInterval
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultFlushInterval
	}
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Daemon{
		cfg:        cfg,
		processor:  proc,
		journal:    journal,
		aggregator: aggregator,
		queue:      queue,
		logger:     logger.WithComponent("daemon"),
	}
}

// Run blocks until ctx is cancelled, then returns nil. One immediate
// processing cycle runs at startup so a backlog left by a crash is
// drained without waiting for the first tick.
func (d *Daemon) Run(ctx context.Context) error {
	process := time.NewTicker(d.cfg.ProcessInterval)
	defer process.Stop()
	flush := time.NewTicker(d.cfg.FlushInterval)
	defer flush.Stop()

	var watchEvents <-chan fsnotify.Event
	var watchErrors <-chan error
	if d.cfg.Watch {
		watcher, err := d.newQueueWatcher()
		if err != nil {
			d.logger.Warn("file watching unavailable, relying on timers", "error", err)
		} else {
			defer watcher.Close()
			watchEvents = watcher.Events
			watchErrors = watcher.Errors
		}
	}

	// Many editors and writers produce several events per save; the
	// debounce timer folds them into one cycle.
	debounce := time.NewTimer(0)
	<-debounce.C

	d.logger.Info("daemon started",
		"process_interval", d.cfg.ProcessInterval.String(),
		"flush_interval", d.cfg.FlushInterval.String(),
		"watch", watchEvents != nil,
	)
	d.cycle()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("daemon stopped")
			return nil

		case <-process.C:
			d.cycle()

		case <-flush.C:
			d.flush()

		case ev, ok := <-watchEvents:
			if !ok {
				watchEvents = nil
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			debounce.Reset(watchDebounce)

		case <-debounce.C:
			d.cycle()

		case err, ok := <-watchErrors:
			if !ok {
				watchErrors = nil
				continue
			}
			d.logger.Warn("file watcher error", "error", err)
		}
	}
}

// newQueueWatcher watches the operation queue directory, creating it
// first since fsnotify cannot watch a path that does not exist yet.
func (d *Daemon) newQueueWatcher() (*fsnotify.Watcher, error) {
	if err := os.MkdirAll(d.queue.Dir(), 0755); err != nil {
		return nil, err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(d.queue.Dir()); err != nil {
		watcher.Close()
		return nil, err
	}
	return watcher, nil
}

// cycle runs one queue drain. A lock held by another process is routine
// contention, not a failure.
func (d *Daemon) cycle() {
	err := d.processor.ProcessQueue()
	switch {
	case err == nil:
	case errors.Is(err, errors.ErrLockHeld):
		d.logger.Debug("store locked by another process, will retry")
	default:
		d.logger.Error("processing cycle failed", "error", err)
	}
}

// flush schedules batch aggregation when raw entries are waiting, either
// in the journal or left staged by an interrupted run. The request is
// picked up by the watcher or the next processing tick.
func (d *Daemon) flush() {
	if !d.journal.HasPending() && !d.aggregator.HasStaged() {
		return
	}
	if _, err := d.queue.Add(opqueue.NewProcessBatchRequest()); err != nil {
		d.logger.Error("failed to enqueue batch request", "error", err)
		return
	}
	d.logger.Debug("batch aggregation scheduled")
}
