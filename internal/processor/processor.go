// Package processor orchestrates the operation queue: it drains pending
// requests one cycle at a time, serialized across processes by the store
// lock, and routes every failure through a bounded retry counter that ends
// in the dead-letter directory. One processor instance owns the cycle; a
// concurrent call while a cycle is running is a no-op.
package processor

import (
	"sync/atomic"
	"time"

	"github.com/ledgerline/chronicle/internal/batch"
	"github.com/ledgerline/chronicle/internal/errors"
	"github.com/ledgerline/chronicle/internal/event"
	"github.com/ledgerline/chronicle/internal/gitstore"
	"github.com/ledgerline/chronicle/internal/lockfile"
	"github.com/ledgerline/chronicle/internal/logging"
	"github.com/ledgerline/chronicle/internal/opqueue"
)

// maxAttempts is the retry budget per request. The counter lives in memory,
// so a process restart grants a fresh budget.
const maxAttempts = 5

// DefaultLockTimeout bounds how long a cycle waits for the store lock
// before deferring to the next tick.
const DefaultLockTimeout = 1 * time.Second

// Processor drains the operation queue against the versioned store.
type Processor struct {
	queue       *opqueue.Store
	aggregator  *batch.Aggregator
	store       *gitstore.Store
	lock        *lockfile.Lock
	lockTimeout time.Duration
	logger      *logging.Logger
	bus         *event.Bus

	inFlight atomic.Bool
	// failures counts processing attempts per request file. Only touched
	// while inFlight is held, so no further locking is needed.
	failures map[string]int
}

// NewProcessor creates a Processor over the given collaborators.
func NewProcessor(queue *opqueue.Store, aggregator *batch.Aggregator, store *gitstore.Store, lock *lockfile.Lock, logger *logging.Logger, bus *event.Bus) *Processor {
	if logger == nil {
		logger = logging.NopLogger()
	}
	if bus == nil {
		bus = event.NewBus()
	}
	return &Processor{
		queue:       queue,
		aggregator:  aggregator,
		store:       store,
		lock:        lock,
		lockTimeout: DefaultLockTimeout,
		logger:      logger.WithComponent("processor"),
		bus:         bus,
		failures:    make(map[string]int),
	}
}

// SetLockTimeout overrides the store lock wait budget.
func (p *Processor) SetLockTimeout(d time.Duration) {
	if d > 0 {
		p.lockTimeout = d
	}
}

// ProcessQueue runs one processing cycle. It snapshots the mailbox, takes
// the store lock, and attempts every pending request in queue order, each
// at most once per cycle. Requests enqueued mid-cycle (such as the
// self-scheduled housekeeping request) are picked up before the cycle
// ends, so a cycle that only sees successes leaves the mailbox empty.
//
// A concurrent call while a cycle is in flight returns nil immediately.
// Failure to take the lock returns an error wrapping ErrLockHeld; the
// caller's next tick retries.
func (p *Processor) ProcessQueue() error {
	if !p.inFlight.CompareAndSwap(false, true) {
		p.logger.Debug("processing cycle already in flight")
		return nil
	}
	defer p.inFlight.Store(false)

	pending, err := p.queue.Pending()
	if err != nil {
		p.logger.Error("failed to read operation queue", "error", err)
		return err
	}
	if len(pending) == 0 {
		return nil
	}

	if !p.lock.Acquire(p.lockTimeout) {
		p.logger.Debug("store lock busy, deferring cycle")
		return errors.Wrap(errors.ErrLockHeld, "queue processing deferred")
	}
	defer p.lock.Release()

	attempted := make(map[string]bool)
	for {
		progressed := false
		for _, req := range pending {
			if attempted[req.FileName()] {
				continue
			}
			attempted[req.FileName()] = true
			progressed = true
			p.handle(req)
		}
		if !progressed {
			return nil
		}
		pending, err = p.queue.Pending()
		if err != nil {
			p.logger.Error("failed to re-read operation queue", "error", err)
			return err
		}
	}
}

// handle attempts one request. Failures are absorbed into the retry
// counter so one bad request never aborts the rest of the cycle.
func (p *Processor) handle(req opqueue.Request) {
	name := req.FileName()
	if err := p.dispatch(req); err != nil {
		p.recordFailure(req, err)
		return
	}

	p.queue.Delete(name)
	delete(p.failures, name)
	p.logger.Debug("operation request completed",
		"request_file", name,
		"type", string(req.Type),
	)

	// The first completed operation of a new day schedules maintenance.
	// Extra requests enqueued before housekeeping actually runs are
	// consumed as no-ops by the marker gate.
	if req.Type != opqueue.TypeHousekeeping && p.store.IsFirstOperationToday() {
		if _, err := p.queue.Add(opqueue.NewHousekeepingRequest()); err != nil {
			p.logger.Warn("failed to schedule housekeeping", "error", err)
		}
	}
}

func (p *Processor) dispatch(req opqueue.Request) error {
	switch req.Type {
	case opqueue.TypeProcessBatch:
		return p.processBatch()
	case opqueue.TypeWrite:
		return p.processWrite(req)
	case opqueue.TypeHousekeeping:
		return p.processHousekeeping()
	default:
		return errors.Wrapf(errors.ErrInvalidRequest, "type %q", string(req.Type))
	}
}

// processBatch folds staged queue entries into one batch document and
// commits it. An empty workspace is a successful no-op. The consumed
// entries are deleted only after the commit, so a crash in between
// re-folds them on the next attempt rather than losing them.
func (p *Processor) processBatch() error {
	staged, err := p.aggregator.Stage()
	if err != nil {
		return err
	}
	if len(staged) == 0 {
		return nil
	}

	name, err := p.aggregator.Fold(staged)
	if err != nil {
		return err
	}
	if name != "" {
		if err := p.store.Commit(""); err != nil {
			return err
		}
	}
	p.aggregator.Discard(staged)
	return nil
}

func (p *Processor) processWrite(req opqueue.Request) error {
	if err := p.store.WriteFile(req.File, req.Body); err != nil {
		return err
	}
	kind := req.Kind
	if kind == "" {
		kind = "write"
	}
	return p.store.Commit(kind + " " + req.File)
}

// processHousekeeping runs day-boundary maintenance at most once per
// calendar day: collect finished batch days, commit the result, then
// gc, push, export, and stamp the marker. On any other call it consumes
// the request without side effects.
func (p *Processor) processHousekeeping() error {
	if !p.store.IsFirstOperationToday() {
		p.logger.Debug("housekeeping already ran today")
		return nil
	}
	if err := p.store.Ensure(); err != nil {
		return err
	}

	collected, consumed, err := p.aggregator.Collect()
	if err != nil {
		return err
	}
	if collected {
		if err := p.store.Commit("collect batches"); err != nil {
			return err
		}
		p.logger.Info("batch days collected", "entries", consumed)
	}

	return p.store.Housekeeping()
}

// recordFailure bumps the request's attempt counter and dead-letters it
// once the budget is spent. The request file is moved, never deleted.
func (p *Processor) recordFailure(req opqueue.Request, cause error) {
	name := req.FileName()
	p.failures[name]++
	attempts := p.failures[name]

	if attempts < maxAttempts {
		p.logger.Warn("operation request failed, will retry",
			"request_file", name,
			"type", string(req.Type),
			"attempt", attempts,
			"max_attempts", maxAttempts,
			"error", cause,
		)
		return
	}

	delete(p.failures, name)
	qerr := errors.NewQueueError("request retries exhausted", errors.ErrRetriesExhausted).
		WithFile(name).
		WithAttempts(attempts)
	p.logger.Error("operation request dead-lettered",
		"request_file", name,
		"attempts", attempts,
		"last_error", cause,
		"error", qerr,
	)
	if err := p.queue.DeadLetter(name); err != nil {
		p.logger.Error("failed to dead-letter operation request",
			"request_file", name,
			"error", err,
		)
		return
	}
	p.bus.Publish(event.NewDeadLetterEvent(name, attempts))
}
