package processor

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ledgerline/chronicle/internal/batch"
	"github.com/ledgerline/chronicle/internal/errors"
	"github.com/ledgerline/chronicle/internal/event"
	"github.com/ledgerline/chronicle/internal/gitstore"
	"github.com/ledgerline/chronicle/internal/journal"
	"github.com/ledgerline/chronicle/internal/lockfile"
	"github.com/ledgerline/chronicle/internal/logging"
	"github.com/ledgerline/chronicle/internal/opqueue"
	"github.com/ledgerline/chronicle/internal/testutil"
)

// recordingExecutor passes every git call through to the real CLI while
// remembering the subcommands, so tests can assert on side effects like
// gc and push without parsing repositories.
type recordingExecutor struct {
	real  gitstore.CLIExecutor
	calls []string
}

func (r *recordingExecutor) Run(dir, name string, args ...string) ([]byte, error) {
	if len(args) > 0 {
		r.calls = append(r.calls, args[0])
	}
	return r.real.Run(dir, name, args...)
}

func (r *recordingExecutor) count(subcommand string) int {
	n := 0
	for _, c := range r.calls {
		if c == subcommand {
			n++
		}
	}
	return n
}

type fixture struct {
	root    string
	queue   *opqueue.Store
	journal *journal.Store
	agg     *batch.Aggregator
	store   *gitstore.Store
	proc    *Processor
	bus     *event.Bus
	exec    *recordingExecutor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	testutil.SkipIfNoGit(t)

	root := t.TempDir()
	bus := event.NewBus()
	logger := logging.NopLogger()
	exec := &recordingExecutor{}

	queue := opqueue.NewStore(
		filepath.Join(root, "operation_queue"),
		filepath.Join(root, "operation_queue_backup"),
		logger,
	)
	jstore := journal.NewStore(filepath.Join(root, "queue"), logger)
	agg := batch.NewAggregator(batch.Dirs{
		Queue:     filepath.Join(root, "queue"),
		Workspace: filepath.Join(root, "queue_batch"),
		Backup:    filepath.Join(root, "queue_backup"),
		Batches:   filepath.Join(root, "data", "batches"),
	}, logger, bus)
	store := gitstore.NewStore(
		filepath.Join(root, "data"),
		filepath.Join(root, "backup"),
		gitstore.Identity{Name: "Chronicle Test", Email: "test@chronicle.dev"},
		exec,
		logger,
		bus,
	)
	lock := lockfile.New(filepath.Join(root, "store.lock"), logger)

	return &fixture{
		root:    root,
		queue:   queue,
		journal: jstore,
		agg:     agg,
		store:   store,
		proc:    NewProcessor(queue, agg, store, lock, logger, bus),
		bus:     bus,
		exec:    exec,
	}
}

func (f *fixture) dataDir() string {
	return filepath.Join(f.root, "data")
}

func TestProcessQueue_EmptyMailbox(t *testing.T) {
	f := newFixture(t)

	if err := f.proc.ProcessQueue(); err != nil {
		t.Fatalf("ProcessQueue on empty mailbox = %v, want nil", err)
	}
	if _, err := os.Stat(filepath.Join(f.root, "store.lock")); !os.IsNotExist(err) {
		t.Error("Empty cycle should not have taken the store lock")
	}
}

func TestProcessQueue_WriteRequest(t *testing.T) {
	f := newFixture(t)

	body := json.RawMessage(`{"date":"2026-02-15"}`)
	if _, err := f.queue.Add(opqueue.NewWriteRequest("report", "reports/2026/02/15.json", body)); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	if err := f.proc.ProcessQueue(); err != nil {
		t.Fatalf("ProcessQueue failed: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(f.dataDir(), "reports", "2026", "02", "15.json"))
	if err != nil {
		t.Fatalf("Target file missing: %v", err)
	}
	if string(data) != `{"date":"2026-02-15"}` {
		t.Errorf("File content = %s, want the request body verbatim", data)
	}
	if got := testutil.HeadMessage(t, f.dataDir()); got != "report reports/2026/02/15.json" {
		t.Errorf("Head message = %q, want kind-tagged message", got)
	}

	// The first success of the day scheduled housekeeping, and the same
	// cycle consumed it: the mailbox ends empty with the marker stamped.
	if got := f.queue.Depth(); got != 0 {
		t.Errorf("Queue depth = %d, want 0", got)
	}
	if f.store.IsFirstOperationToday() {
		t.Error("Housekeeping should have stamped today's marker")
	}
}

func TestProcessQueue_SecondOperationDoesNotRescheduleHousekeeping(t *testing.T) {
	f := newFixture(t)

	if _, err := f.queue.Add(opqueue.NewWriteRequest("write", "a.json", json.RawMessage(`{}`))); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if err := f.proc.ProcessQueue(); err != nil {
		t.Fatalf("First cycle failed: %v", err)
	}
	gcRuns := f.exec.count("gc")

	if _, err := f.queue.Add(opqueue.NewWriteRequest("write", "b.json", json.RawMessage(`{}`))); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if err := f.proc.ProcessQueue(); err != nil {
		t.Fatalf("Second cycle failed: %v", err)
	}

	if got := f.queue.Depth(); got != 0 {
		t.Errorf("Queue depth = %d, want 0", got)
	}
	if got := f.exec.count("gc"); got != gcRuns {
		t.Errorf("gc runs = %d, want %d (housekeeping must not repeat today)", got, gcRuns)
	}
}

func TestProcessQueue_ProcessBatchRequest(t *testing.T) {
	f := newFixture(t)

	entries := []journal.Entry{
		{Directory: "/proj/app", File: "main.go", Branch: "main"},
		{Directory: "/proj/app", File: "util.go", Branch: "main"},
	}
	for _, e := range entries {
		if _, err := f.journal.Add(e); err != nil {
			t.Fatalf("journal.Add failed: %v", err)
		}
	}
	if _, err := f.queue.Add(opqueue.NewProcessBatchRequest()); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	if err := f.proc.ProcessQueue(); err != nil {
		t.Fatalf("ProcessQueue failed: %v", err)
	}

	docs, err := filepath.Glob(filepath.Join(f.dataDir(), "batches", "batch_*.json"))
	if err != nil || len(docs) != 1 {
		t.Fatalf("Batch documents = %v, want exactly one (err %v)", docs, err)
	}
	raw, err := os.ReadFile(docs[0])
	if err != nil {
		t.Fatalf("Failed to read batch document: %v", err)
	}
	var doc batch.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("Failed to parse batch document: %v", err)
	}
	if got := len(doc["main"]["/proj/app"]); got != 2 {
		t.Errorf("Folded events = %d, want 2", got)
	}

	if f.journal.HasPending() {
		t.Error("Raw queue should be drained")
	}
	if f.agg.HasStaged() {
		t.Error("Workspace should be drained")
	}
	if testutil.HasUncommittedChanges(t, f.dataDir()) {
		t.Error("Batch document should be committed")
	}
	if got := f.queue.Depth(); got != 0 {
		t.Errorf("Queue depth = %d, want 0", got)
	}
}

func TestProcessQueue_EmptyBatchWorkspaceConsumesRequest(t *testing.T) {
	f := newFixture(t)

	if _, err := f.queue.Add(opqueue.NewProcessBatchRequest()); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if err := f.proc.ProcessQueue(); err != nil {
		t.Fatalf("ProcessQueue failed: %v", err)
	}
	if got := f.queue.Depth(); got != 0 {
		t.Errorf("Queue depth = %d, want 0 (empty batch is a no-op success)", got)
	}
	// Only the init commit from the housekeeping that followed.
	if got := testutil.CommitCount(t, f.dataDir()); got != 1 {
		t.Errorf("Commit count = %d, want 1", got)
	}
}

func TestProcessQueue_FailingRequestDeadLetters(t *testing.T) {
	f := newFixture(t)

	deadLettered := 0
	f.bus.Subscribe("queue.dead_letter", func(e event.Event) {
		deadLettered++
	})

	const name = "1765804000000_deadbeef.json"
	testutil.WriteFile(t, filepath.Join(f.root, "operation_queue", name), "{broken")

	for i := 1; i <= maxAttempts; i++ {
		if err := f.proc.ProcessQueue(); err != nil {
			t.Fatalf("Cycle %d failed: %v", i, err)
		}
		if i < maxAttempts {
			if got := f.queue.Depth(); got != 1 {
				t.Fatalf("After cycle %d depth = %d, want 1", i, got)
			}
		}
	}

	if got := f.queue.Depth(); got != 0 {
		t.Errorf("Queue depth = %d, want 0 after dead-letter", got)
	}
	if got := f.queue.DeadLettered(); got != 1 {
		t.Errorf("Dead-lettered count = %d, want 1", got)
	}
	if _, err := os.Stat(filepath.Join(f.root, "operation_queue_backup", name)); err != nil {
		t.Errorf("Dead-lettered file should keep its name: %v", err)
	}
	if deadLettered != 1 {
		t.Errorf("Dead-letter events = %d, want 1", deadLettered)
	}
	if len(f.proc.failures) != 0 {
		t.Errorf("Failure counters = %v, want empty after dead-letter", f.proc.failures)
	}
}

func TestProcessQueue_FailureDoesNotBlockQueue(t *testing.T) {
	f := newFixture(t)

	// The corrupt request sorts first, the valid write after it.
	testutil.WriteFile(t, filepath.Join(f.root, "operation_queue", "1765804000000_bad.json"), "{broken")
	if _, err := f.queue.Add(opqueue.NewWriteRequest("write", "ok.json", json.RawMessage(`{"ok":true}`))); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	if err := f.proc.ProcessQueue(); err != nil {
		t.Fatalf("ProcessQueue failed: %v", err)
	}

	if _, err := os.Stat(filepath.Join(f.dataDir(), "ok.json")); err != nil {
		t.Errorf("Valid request behind a failing one was not processed: %v", err)
	}
	if got := f.queue.Depth(); got != 1 {
		t.Errorf("Queue depth = %d, want 1 (only the corrupt request remains)", got)
	}
}

func TestProcessQueue_HousekeepingGate(t *testing.T) {
	f := newFixture(t)

	if _, err := f.queue.Add(opqueue.NewHousekeepingRequest()); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if err := f.proc.ProcessQueue(); err != nil {
		t.Fatalf("First cycle failed: %v", err)
	}
	if f.exec.count("gc") != 1 || f.exec.count("push") != 1 {
		t.Fatalf("First housekeeping: gc=%d push=%d, want 1 each",
			f.exec.count("gc"), f.exec.count("push"))
	}
	commits := testutil.CommitCount(t, f.dataDir())

	// Marker now equals today: the next housekeeping request is consumed
	// without any repository side effects.
	if _, err := f.queue.Add(opqueue.NewHousekeepingRequest()); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if err := f.proc.ProcessQueue(); err != nil {
		t.Fatalf("Second cycle failed: %v", err)
	}

	if got := f.queue.Depth(); got != 0 {
		t.Errorf("Queue depth = %d, want 0 (gated request still consumed)", got)
	}
	if got := f.exec.count("gc"); got != 1 {
		t.Errorf("gc runs = %d, want 1", got)
	}
	if got := f.exec.count("push"); got != 1 {
		t.Errorf("push runs = %d, want 1", got)
	}
	if got := testutil.CommitCount(t, f.dataDir()); got != commits {
		t.Errorf("Commit count = %d, want %d", got, commits)
	}
}

func TestProcessQueue_LockHeldAbortsCycle(t *testing.T) {
	f := newFixture(t)

	if _, err := f.queue.Add(opqueue.NewWriteRequest("write", "a.json", json.RawMessage(`{}`))); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	intruder := lockfile.New(filepath.Join(f.root, "store.lock"), logging.NopLogger())
	if !intruder.Acquire(time.Second) {
		t.Fatal("Failed to take the lock for the test")
	}

	f.proc.SetLockTimeout(50 * time.Millisecond)
	err := f.proc.ProcessQueue()
	if err == nil {
		t.Fatal("ProcessQueue should fail while the lock is held")
	}
	if !errors.Is(err, errors.ErrLockHeld) {
		t.Errorf("Error = %v, want ErrLockHeld", err)
	}
	if got := f.queue.Depth(); got != 1 {
		t.Errorf("Queue depth = %d, want 1 (nothing consumed)", got)
	}

	intruder.Release()
	if err := f.proc.ProcessQueue(); err != nil {
		t.Fatalf("ProcessQueue after release failed: %v", err)
	}
	if got := f.queue.Depth(); got != 0 {
		t.Errorf("Queue depth = %d, want 0", got)
	}
}

func TestProcessQueue_InFlightCycleSkipsConcurrentCall(t *testing.T) {
	f := newFixture(t)

	if _, err := f.queue.Add(opqueue.NewWriteRequest("write", "a.json", json.RawMessage(`{}`))); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	f.proc.inFlight.Store(true)
	if err := f.proc.ProcessQueue(); err != nil {
		t.Fatalf("Concurrent call = %v, want nil no-op", err)
	}
	if got := f.queue.Depth(); got != 1 {
		t.Errorf("Queue depth = %d, want 1 (no-op must not consume)", got)
	}

	f.proc.inFlight.Store(false)
	if err := f.proc.ProcessQueue(); err != nil {
		t.Fatalf("ProcessQueue failed: %v", err)
	}
	if got := f.queue.Depth(); got != 0 {
		t.Errorf("Queue depth = %d, want 0", got)
	}
}
