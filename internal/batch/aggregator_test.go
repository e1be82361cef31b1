package batch

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ledgerline/chronicle/internal/event"
	"github.com/ledgerline/chronicle/internal/journal"
	"github.com/ledgerline/chronicle/internal/logging"
)

func newTestAggregator(t *testing.T) (*Aggregator, Dirs) {
	t.Helper()
	root := t.TempDir()
	dirs := Dirs{
		Queue:     filepath.Join(root, "queue"),
		Workspace: filepath.Join(root, "queue_batch"),
		Backup:    filepath.Join(root, "queue_backup"),
		Batches:   filepath.Join(root, "data", "batches"),
	}
	return NewAggregator(dirs, logging.NopLogger(), event.NewBus()), dirs
}

// plantEntry writes a raw queue entry file and returns its name.
func plantEntry(t *testing.T, dir string, seq int, entry journal.Entry) string {
	t.Helper()
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("Failed to create dir: %v", err)
	}
	data, err := json.Marshal(entry)
	if err != nil {
		t.Fatalf("Failed to marshal entry: %v", err)
	}
	name := fmt.Sprintf("%d_%04d.json", time.Now().UnixMilli(), seq)
	if err := os.WriteFile(filepath.Join(dir, name), data, 0644); err != nil {
		t.Fatalf("Failed to write entry: %v", err)
	}
	return name
}

// plantDocument writes a batch document under the batches directory.
func plantDocument(t *testing.T, dirs Dirs, name string, doc Document) {
	t.Helper()
	path := filepath.Join(dirs.Batches, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("Failed to create batches dir: %v", err)
	}
	data, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("Failed to marshal document: %v", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("Failed to write document: %v", err)
	}
}

func TestAggregator_Stage(t *testing.T) {
	agg, dirs := newTestAggregator(t)

	first := plantEntry(t, dirs.Queue, 1, journal.Entry{Directory: "proj", File: "a.go", Timestamp: 1})
	second := plantEntry(t, dirs.Queue, 2, journal.Entry{Directory: "proj", File: "b.go", Timestamp: 2})

	staged, err := agg.Stage()
	if err != nil {
		t.Fatalf("Stage failed: %v", err)
	}
	if len(staged) != 2 {
		t.Fatalf("Staged = %d files, want 2", len(staged))
	}

	// Queue is drained, workspace holds the files
	if queued, _ := listJSON(dirs.Queue); len(queued) != 0 {
		t.Errorf("Queue should be empty after Stage, has %v", queued)
	}
	for _, name := range []string{first, second} {
		if _, err := os.Stat(filepath.Join(dirs.Workspace, name)); err != nil {
			t.Errorf("Staged file %s not in workspace: %v", name, err)
		}
	}
}

func TestAggregator_Stage_PicksUpLeftovers(t *testing.T) {
	agg, dirs := newTestAggregator(t)

	// A leftover from a crashed run sits in the workspace already
	leftover := plantEntry(t, dirs.Workspace, 1, journal.Entry{Directory: "proj", File: "old.go", Timestamp: 1})
	fresh := plantEntry(t, dirs.Queue, 2, journal.Entry{Directory: "proj", File: "new.go", Timestamp: 2})

	staged, err := agg.Stage()
	if err != nil {
		t.Fatalf("Stage failed: %v", err)
	}
	if len(staged) != 2 {
		t.Fatalf("Staged = %d files, want 2 (leftover + fresh)", len(staged))
	}
	found := map[string]bool{}
	for _, name := range staged {
		found[name] = true
	}
	if !found[leftover] || !found[fresh] {
		t.Errorf("Staged set %v should contain %s and %s", staged, leftover, fresh)
	}
}

func TestAggregator_Stage_EmptyQueue(t *testing.T) {
	agg, _ := newTestAggregator(t)

	staged, err := agg.Stage()
	if err != nil {
		t.Fatalf("Stage on empty queue failed: %v", err)
	}
	if len(staged) != 0 {
		t.Errorf("Staged = %d files, want 0", len(staged))
	}
}

func TestAggregator_Fold(t *testing.T) {
	agg, dirs := newTestAggregator(t)

	plantEntry(t, dirs.Workspace, 1, journal.Entry{Directory: "proj", File: "a.go", Branch: "main", Timestamp: 100})
	plantEntry(t, dirs.Workspace, 2, journal.Entry{Directory: "proj", File: "b.go", Branch: "main", Timestamp: 200})
	plantEntry(t, dirs.Workspace, 3, journal.Entry{Directory: "lib", File: "c.go", Timestamp: 300})

	staged, err := agg.Stage()
	if err != nil {
		t.Fatalf("Stage failed: %v", err)
	}

	name, err := agg.Fold(staged)
	if err != nil {
		t.Fatalf("Fold failed: %v", err)
	}
	if name == "" {
		t.Fatal("Fold returned empty document name")
	}

	data, err := os.ReadFile(filepath.Join(dirs.Batches, name))
	if err != nil {
		t.Fatalf("Failed to read folded document: %v", err)
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("Failed to parse folded document: %v", err)
	}

	if got := len(doc["main"]["proj"]); got != 2 {
		t.Errorf("main/proj events = %d, want 2", got)
	}
	if got := len(doc[""]["lib"]); got != 1 {
		t.Errorf("empty-branch lib events = %d, want 1", got)
	}

	// Workspace files are NOT removed by Fold; that is Discard's job
	if !agg.HasStaged() {
		t.Error("Workspace should still hold staged files after Fold")
	}
}

func TestAggregator_Fold_QuarantinesCorruptEntries(t *testing.T) {
	agg, dirs := newTestAggregator(t)

	good := plantEntry(t, dirs.Workspace, 1, journal.Entry{Directory: "proj", File: "a.go", Timestamp: 100})
	if err := os.WriteFile(filepath.Join(dirs.Workspace, "9999999999999_bad.json"), []byte("{nope"), 0644); err != nil {
		t.Fatalf("Failed to plant corrupt entry: %v", err)
	}

	quarantined := 0
	bus := event.NewBus()
	bus.Subscribe("queue.entry_quarantined", func(e event.Event) {
		quarantined++
	})
	agg.bus = bus

	name, err := agg.Fold([]string{good, "9999999999999_bad.json"})
	if err != nil {
		t.Fatalf("Fold failed: %v", err)
	}
	if name == "" {
		t.Fatal("Fold should still produce a document from the valid entry")
	}

	// The corrupt entry moved to the backup dir, preserved
	if _, err := os.Stat(filepath.Join(dirs.Backup, "9999999999999_bad.json")); err != nil {
		t.Errorf("Corrupt entry not found in backup dir: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dirs.Workspace, "9999999999999_bad.json")); !os.IsNotExist(err) {
		t.Error("Corrupt entry should no longer be in the workspace")
	}
	if quarantined != 1 {
		t.Errorf("Expected 1 quarantine event, got %d", quarantined)
	}
}

func TestAggregator_Fold_AllCorrupt(t *testing.T) {
	agg, dirs := newTestAggregator(t)

	if err := os.MkdirAll(dirs.Workspace, 0755); err != nil {
		t.Fatalf("Failed to create workspace: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dirs.Workspace, "1_bad.json"), []byte("garbage"), 0644); err != nil {
		t.Fatalf("Failed to plant corrupt entry: %v", err)
	}

	name, err := agg.Fold([]string{"1_bad.json"})
	if err != nil {
		t.Fatalf("Fold failed: %v", err)
	}
	if name != "" {
		t.Errorf("Fold with no valid entries should return empty name, got %q", name)
	}
}

func TestAggregator_Fold_Empty(t *testing.T) {
	agg, _ := newTestAggregator(t)

	name, err := agg.Fold(nil)
	if err != nil {
		t.Fatalf("Fold of nothing failed: %v", err)
	}
	if name != "" {
		t.Errorf("Fold of nothing should return empty name, got %q", name)
	}
}

func TestAggregator_Discard(t *testing.T) {
	agg, dirs := newTestAggregator(t)

	name := plantEntry(t, dirs.Workspace, 1, journal.Entry{Directory: "proj", File: "a.go", Timestamp: 100})
	if !agg.HasStaged() {
		t.Fatal("Expected staged entries")
	}

	agg.Discard([]string{name, "not_there.json"})

	if agg.HasStaged() {
		t.Error("Workspace should be empty after Discard")
	}
}

func TestParseBatchTimestamp(t *testing.T) {
	tests := []struct {
		name   string
		file   string
		wantTS int64
		wantOK bool
	}{
		{name: "pending document", file: "batch_1765804000000_abcd.json", wantTS: 1765804000000, wantOK: true},
		{name: "uuid suffix", file: "batch_1765804000000_550e8400-e29b-41d4-a716-446655440000.json", wantTS: 1765804000000, wantOK: true},
		{name: "no prefix", file: "1765804000000_abcd.json", wantOK: false},
		{name: "no suffix", file: "batch_1765804000000.json", wantOK: false},
		{name: "not json", file: "batch_1765804000000_abcd.txt", wantOK: false},
		{name: "garbage timestamp", file: "batch_notanumber_abcd.json", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts, ok := parseBatchTimestamp(tt.file)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && ts != tt.wantTS {
				t.Errorf("ts = %d, want %d", ts, tt.wantTS)
			}
		})
	}
}
