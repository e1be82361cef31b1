// Cross-package integration tests: verify that the chronicle packages
// compose into a working pipeline, with raw entries flowing through the
// operation queue and batch aggregator into the versioned store and
// events surfacing on the bus along the way.
package internal

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ledgerline/chronicle/internal/batch"
	"github.com/ledgerline/chronicle/internal/config"
	"github.com/ledgerline/chronicle/internal/event"
	"github.com/ledgerline/chronicle/internal/gitstore"
	"github.com/ledgerline/chronicle/internal/journal"
	"github.com/ledgerline/chronicle/internal/lockfile"
	"github.com/ledgerline/chronicle/internal/logging"
	"github.com/ledgerline/chronicle/internal/opqueue"
	"github.com/ledgerline/chronicle/internal/processor"
	"github.com/ledgerline/chronicle/internal/testutil"
)

// pipeline is a fully wired chronicle stack over one store root, built the
// same way the CLI's composition root builds it.
type pipeline struct {
	layout  config.Layout
	bus     *event.Bus
	journal *journal.Store
	queue   *opqueue.Store
	agg     *batch.Aggregator
	store   *gitstore.Store
	proc    *processor.Processor
}

func newPipeline(t *testing.T, root string) *pipeline {
	t.Helper()

	layout := config.Layout{Root: root}
	bus := event.NewBus()
	logger := logging.NopLogger()

	jstore := journal.NewStore(layout.Queue(), logger)
	queue := opqueue.NewStore(layout.OperationQueue(), layout.OperationQueueBackup(), logger)
	agg := batch.NewAggregator(batch.Dirs{
		Queue:     layout.Queue(),
		Workspace: layout.BatchWorkspace(),
		Backup:    layout.QueueBackup(),
		Batches:   layout.Batches(),
	}, logger, bus)
	store := gitstore.NewStore(layout.Data(), layout.Replica(), gitstore.Identity{
		Name:  "Chronicle Test",
		Email: "test@chronicle.dev",
	}, nil, logger, bus)
	lock := lockfile.New(layout.LockFile(), logger)
	proc := processor.NewProcessor(queue, agg, store, lock, logger, bus)

	return &pipeline{
		layout:  layout,
		bus:     bus,
		journal: jstore,
		queue:   queue,
		agg:     agg,
		store:   store,
		proc:    proc,
	}
}

// TestPipelineIntegration drives the full path on a fresh root: record raw
// entries, enqueue a batch request, process, and verify the folded
// document is committed while every intermediate directory drains.
func TestPipelineIntegration(t *testing.T) {
	testutil.SkipIfNoGit(t)

	p := newPipeline(t, t.TempDir())

	var seen []string
	p.bus.SubscribeAll(func(e event.Event) {
		seen = append(seen, e.EventType())
	})

	entries := []journal.Entry{
		{Directory: "/proj/app", File: "main.go", Branch: "main"},
		{Directory: "/proj/app", File: "util.go", Branch: "main"},
		{Directory: "/proj/lib", File: "parse.go", Branch: "feature/parser"},
	}
	for _, e := range entries {
		if _, err := p.journal.Add(e); err != nil {
			t.Fatalf("journal.Add failed: %v", err)
		}
	}

	if _, err := p.queue.Add(opqueue.NewProcessBatchRequest()); err != nil {
		t.Fatalf("queue.Add failed: %v", err)
	}
	if err := p.proc.ProcessQueue(); err != nil {
		t.Fatalf("ProcessQueue failed: %v", err)
	}

	// Every intermediate stage drained
	if p.journal.HasPending() {
		t.Error("queue should be empty after processing")
	}
	if p.agg.HasStaged() {
		t.Error("batch workspace should be empty after processing")
	}
	if depth := p.queue.Depth(); depth != 0 {
		t.Errorf("queue.Depth() = %d, want 0", depth)
	}

	// Exactly one committed batch document holding all three events
	docs, err := filepath.Glob(filepath.Join(p.layout.Batches(), "batch_*.json"))
	if err != nil || len(docs) != 1 {
		t.Fatalf("batch documents = %v, want exactly one (err: %v)", docs, err)
	}
	data, err := os.ReadFile(docs[0])
	if err != nil {
		t.Fatalf("Failed to read batch document: %v", err)
	}
	var doc batch.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("Failed to parse batch document: %v", err)
	}
	if doc.Events() != len(entries) {
		t.Errorf("document holds %d events, want %d", doc.Events(), len(entries))
	}
	if got := len(doc["main"]["/proj/app"]); got != 2 {
		t.Errorf("main branch events for /proj/app = %d, want 2", got)
	}
	if testutil.HasUncommittedChanges(t, p.layout.Data()) {
		t.Error("working tree should be clean after the commit")
	}

	// The first completed operation of the day scheduled housekeeping and
	// the same cycle consumed it.
	if p.store.IsFirstOperationToday() {
		t.Error("housekeeping should have run within the cycle")
	}
	wantEvents := map[string]bool{"batch.folded": false, "housekeeping.completed": false}
	for _, typ := range seen {
		if _, ok := wantEvents[typ]; ok {
			wantEvents[typ] = true
		}
	}
	for typ, found := range wantEvents {
		if !found {
			t.Errorf("event %s was never published (saw %v)", typ, seen)
		}
	}
}

// TestPipelineRecoversStagedEntries simulates a crash between staging and
// folding: a fresh stack over the same root picks the workspace leftovers
// up on its next batch request.
func TestPipelineRecoversStagedEntries(t *testing.T) {
	testutil.SkipIfNoGit(t)

	root := t.TempDir()
	first := newPipeline(t, root)

	if _, err := first.journal.Add(journal.Entry{Directory: "/proj/app", File: "crash.go", Branch: "main"}); err != nil {
		t.Fatalf("journal.Add failed: %v", err)
	}
	staged, err := first.agg.Stage()
	if err != nil {
		t.Fatalf("Stage failed: %v", err)
	}
	if len(staged) != 1 {
		t.Fatalf("staged %d entries, want 1", len(staged))
	}
	// The process dies here: the entry sits in the workspace, no document
	// was written, no request was consumed.

	restarted := newPipeline(t, root)
	if _, err := restarted.queue.Add(opqueue.NewProcessBatchRequest()); err != nil {
		t.Fatalf("queue.Add failed: %v", err)
	}
	if err := restarted.proc.ProcessQueue(); err != nil {
		t.Fatalf("ProcessQueue after restart failed: %v", err)
	}

	if restarted.agg.HasStaged() {
		t.Error("workspace should drain after the restarted run")
	}
	docs, err := filepath.Glob(filepath.Join(restarted.layout.Batches(), "batch_*.json"))
	if err != nil || len(docs) != 1 {
		t.Fatalf("batch documents = %v, want exactly one (err: %v)", docs, err)
	}
	data, err := os.ReadFile(docs[0])
	if err != nil {
		t.Fatalf("Failed to read batch document: %v", err)
	}
	var doc batch.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("Failed to parse batch document: %v", err)
	}
	if got := len(doc["main"]["/proj/app"]); got != 1 {
		t.Errorf("recovered document holds %d events, want 1", got)
	}
}

// TestPipelineReportIntegration folds a processed day back out through
// the report path, then verifies a second merge is incremental.
func TestPipelineReportIntegration(t *testing.T) {
	testutil.SkipIfNoGit(t)

	p := newPipeline(t, t.TempDir())

	if _, err := p.journal.Add(journal.Entry{Directory: "/proj/app", File: "main.go", Branch: "main"}); err != nil {
		t.Fatalf("journal.Add failed: %v", err)
	}
	if _, err := p.queue.Add(opqueue.NewProcessBatchRequest()); err != nil {
		t.Fatalf("queue.Add failed: %v", err)
	}
	if err := p.proc.ProcessQueue(); err != nil {
		t.Fatalf("ProcessQueue failed: %v", err)
	}

	report := batch.NewReport()
	processed := make(map[string]bool)
	folded, err := p.agg.MergeIntoReport(report, time.Now(), 60, processed)
	if err != nil {
		t.Fatalf("MergeIntoReport failed: %v", err)
	}
	if folded != 1 {
		t.Errorf("folded %d documents, want 1", folded)
	}

	found := false
	for _, byBranch := range report {
		for branch, byDir := range byBranch {
			if branch != "main" {
				continue
			}
			for dir, files := range byDir {
				if dir == "/proj/app" && len(files) == 1 && files[0] == "main.go" {
					found = true
				}
			}
		}
	}
	if !found {
		t.Errorf("report is missing the recorded entry: %v", report)
	}

	folded, err = p.agg.MergeIntoReport(report, time.Now(), 60, processed)
	if err != nil {
		t.Fatalf("Second MergeIntoReport failed: %v", err)
	}
	if folded != 0 {
		t.Errorf("second merge folded %d documents, want 0", folded)
	}
}
