package batch

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ledgerline/chronicle/internal/errors"
	"github.com/ledgerline/chronicle/internal/event"
	"github.com/ledgerline/chronicle/internal/fsio"
	"github.com/ledgerline/chronicle/internal/journal"
	"github.com/ledgerline/chronicle/internal/logging"
)

// Dirs names the four directories the aggregator works across.
type Dirs struct {
	// Queue holds raw producer entries, consumed by Stage.
	Queue string
	// Workspace holds staged entries between Stage and Discard. Entries
	// left here by a crashed run are picked up by the next Stage.
	Workspace string
	// Backup receives quarantined raw entries that could not be parsed.
	Backup string
	// Batches holds pending documents (flat) and collected documents
	// (YYYY/MM/DD.json). It lives inside the versioned store working tree
	// so that folded data is committed.
	Batches string
}

// Aggregator moves queue entries through the workspace into batch
// documents and rolls completed days up into collected documents.
type Aggregator struct {
	dirs   Dirs
	logger *logging.Logger
	bus    *event.Bus
}

// NewAggregator creates an aggregator over the given directories.
func NewAggregator(dirs Dirs, logger *logging.Logger, bus *event.Bus) *Aggregator {
	if logger == nil {
		logger = logging.NopLogger()
	}
	if bus == nil {
		bus = event.NewBus()
	}
	return &Aggregator{
		dirs:   dirs,
		logger: logger.WithComponent("batch"),
		bus:    bus,
	}
}

// Stage moves every raw queue entry into the workspace and returns all
// workspace file names in chronological order. The returned set includes
// leftovers from an earlier run that crashed between Fold and Discard,
// which is what makes the fold re-runnable.
func (a *Aggregator) Stage() ([]string, error) {
	if err := os.MkdirAll(a.dirs.Workspace, 0755); err != nil {
		return nil, errors.NewStoreError("failed to create batch workspace", err).WithPath(a.dirs.Workspace)
	}

	names, err := listJSON(a.dirs.Queue)
	if err != nil {
		return nil, err
	}
	for _, name := range names {
		src := filepath.Join(a.dirs.Queue, name)
		if err := os.Rename(src, filepath.Join(a.dirs.Workspace, name)); err != nil {
			return nil, errors.NewStoreError("failed to stage queue entry", err).WithPath(src)
		}
	}

	staged, err := listJSON(a.dirs.Workspace)
	if err != nil {
		return nil, err
	}
	if leftovers := len(staged) - len(names); leftovers > 0 {
		a.logger.Info("recovered staged entries from an earlier run", "count", leftovers)
	}
	return staged, nil
}

// Fold parses the staged entries into one new pending batch document under
// the batches directory and returns its file name. Unparseable entries are
// quarantined to the backup directory instead of failing the fold. Returns
// an empty name when no valid entries existed; the caller then has nothing
// to commit or discard.
func (a *Aggregator) Fold(files []string) (string, error) {
	doc := NewDocument()
	valid := 0
	for _, name := range files {
		entry, err := a.readEntry(filepath.Join(a.dirs.Workspace, name))
		if err != nil {
			if errors.Is(err, errors.ErrEntryCorrupt) {
				a.quarantineEntry(name, err)
				continue
			}
			return "", err
		}
		doc.Add(entry.Branch, entry.Directory, FileEvent{File: entry.File, Timestamp: entry.Timestamp})
		valid++
	}
	if valid == 0 {
		return "", nil
	}

	if err := os.MkdirAll(a.dirs.Batches, 0755); err != nil {
		return "", errors.NewStoreError("failed to create batches directory", err).WithPath(a.dirs.Batches)
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", errors.NewStoreError("failed to encode batch document", err)
	}

	name := fmt.Sprintf("batch_%d_%s.json", time.Now().UnixMilli(), uuid.NewString())
	path := filepath.Join(a.dirs.Batches, name)
	if err := fsio.AtomicWriteFile(path, data, 0644); err != nil {
		return "", errors.NewStoreError("failed to write batch document", err).WithPath(path)
	}

	a.logger.Info("batch document folded", "document", name, "events", valid)
	a.bus.Publish(event.NewBatchFoldedEvent(name, valid))
	return name, nil
}

// Discard deletes consumed workspace files. Called only after the fold's
// commit succeeded; a crash before this point leaves the files staged, and
// the next run folds them again. That window is the documented
// at-least-once duplication risk.
func (a *Aggregator) Discard(files []string) {
	for _, name := range files {
		path := filepath.Join(a.dirs.Workspace, name)
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			a.logger.Warn("failed to discard staged entry", "file", name, "error", err)
		}
	}
}

// HasStaged reports whether the workspace holds entries from an
// interrupted run.
func (a *Aggregator) HasStaged() bool {
	return a.StagedCount() > 0
}

// StagedCount returns the number of entries sitting in the workspace.
func (a *Aggregator) StagedCount() int {
	names, err := listJSON(a.dirs.Workspace)
	if err != nil {
		return 0
	}
	return len(names)
}

// QuarantinedCount returns the number of raw entries set aside as
// unreadable.
func (a *Aggregator) QuarantinedCount() int {
	names, err := listJSON(a.dirs.Backup)
	if err != nil {
		return 0
	}
	return len(names)
}

// readEntry parses one staged queue entry. Content failures are wrapped in
// ErrEntryCorrupt so callers can tell quarantine cases from IO errors.
func (a *Aggregator) readEntry(path string) (journal.Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return journal.Entry{}, errors.NewStoreError("failed to read staged entry", err).WithPath(path)
	}
	var entry journal.Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return journal.Entry{}, fmt.Errorf("%w: %v", errors.ErrEntryCorrupt, err)
	}
	if err := entry.Validate(); err != nil {
		return journal.Entry{}, fmt.Errorf("%w: %v", errors.ErrEntryCorrupt, err)
	}
	return entry, nil
}

// quarantineEntry moves a corrupt staged entry to the backup directory.
func (a *Aggregator) quarantineEntry(name string, cause error) {
	src := filepath.Join(a.dirs.Workspace, name)
	dst := filepath.Join(a.dirs.Backup, name)
	if err := fsio.MoveFile(src, dst); err != nil {
		a.logger.Error("failed to quarantine queue entry", "file", name, "error", err)
		return
	}
	a.logger.Warn("queue entry quarantined", "file", name, "error", cause)
	a.bus.Publish(event.NewEntryQuarantinedEvent(name))
}

// readDocument parses a batch document. Unmarshal failures are wrapped in
// ErrEntryCorrupt; a missing file passes through os.IsNotExist.
func (a *Aggregator) readDocument(path string) (Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrEntryCorrupt, err)
	}
	return doc, nil
}

// pendingDoc is one pending batch document and the creation time embedded
// in its file name.
type pendingDoc struct {
	name string
	ts   int64
}

// pendingDocuments lists the flat batch_<ms>_<uuid>.json files in the
// batches directory in chronological order. Collected documents live in
// YYYY/MM/ subdirectories and are never returned here.
func (a *Aggregator) pendingDocuments() ([]pendingDoc, error) {
	names, err := listJSON(a.dirs.Batches)
	if err != nil {
		return nil, err
	}

	var docs []pendingDoc
	for _, name := range names {
		ts, ok := parseBatchTimestamp(name)
		if !ok {
			continue
		}
		docs = append(docs, pendingDoc{name: name, ts: ts})
	}
	return docs, nil
}

// parseBatchTimestamp extracts the epoch milliseconds embedded in a
// pending document file name.
func parseBatchTimestamp(name string) (int64, bool) {
	if !strings.HasPrefix(name, "batch_") || !strings.HasSuffix(name, ".json") {
		return 0, false
	}
	rest := strings.TrimSuffix(strings.TrimPrefix(name, "batch_"), ".json")
	parts := strings.SplitN(rest, "_", 2)
	if len(parts) != 2 {
		return 0, false
	}
	ms, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, false
	}
	return ms, true
}

// listJSON returns the sorted .json file names directly under dir. A
// missing directory is empty, not an error.
func listJSON(dir string) ([]string, error) {
	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.NewStoreError("failed to read directory", err).WithPath(dir)
	}

	var names []string
	for _, de := range dirEntries {
		if de.IsDir() || !strings.HasSuffix(de.Name(), ".json") {
			continue
		}
		names = append(names, de.Name())
	}
	sort.Strings(names)
	return names, nil
}
