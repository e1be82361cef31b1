package batch

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/ledgerline/chronicle/internal/errors"
	"github.com/ledgerline/chronicle/internal/event"
	"github.com/ledgerline/chronicle/internal/fsio"
)

// collectedLayout is the date layout of collected document paths, relative
// to the batches directory.
const collectedLayout = "2006/01/02"

// Collect merges every pending document from before the start of the
// current UTC day into per-day collected documents at YYYY/MM/DD.json,
// grouped by the UTC date embedded in each file name. The merge is
// additive: an existing collected document for the day is folded in first,
// then the pending documents in chronological order, with no
// deduplication. Consumed pending files are deleted only after the merged
// document is safely written; a crash in between re-merges them next time,
// which can double-count one cycle of events.
//
// Returns whether anything was collected and how many pending files were
// consumed. Pending documents from the current UTC day are left alone.
func (a *Aggregator) Collect() (bool, int, error) {
	pending, err := a.pendingDocuments()
	if err != nil {
		return false, 0, err
	}

	now := time.Now().UTC()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).UnixMilli()

	groups := make(map[string][]pendingDoc)
	for _, p := range pending {
		if p.ts >= dayStart {
			continue
		}
		date := time.UnixMilli(p.ts).UTC().Format(collectedLayout)
		groups[date] = append(groups[date], p)
	}
	if len(groups) == 0 {
		return false, 0, nil
	}

	dates := make([]string, 0, len(groups))
	for date := range groups {
		dates = append(dates, date)
	}
	sort.Strings(dates)

	days := 0
	consumed := 0
	for _, date := range dates {
		n, err := a.collectDay(date, groups[date])
		if err != nil {
			return days > 0, consumed, err
		}
		if n > 0 {
			days++
			consumed += n
		}
	}

	if days > 0 {
		a.logger.Info("batch documents collected", "days", days, "documents", consumed)
		a.bus.Publish(event.NewBatchCollectedEvent(days, consumed))
	}
	return days > 0, consumed, nil
}

// collectDay merges one day's pending documents into its collected
// document. Returns how many pending files were consumed.
func (a *Aggregator) collectDay(date string, docs []pendingDoc) (int, error) {
	merged := NewDocument()

	collectedPath := filepath.Join(a.dirs.Batches, filepath.FromSlash(date)+".json")
	existing, err := a.readDocument(collectedPath)
	switch {
	case err == nil:
		merged.Merge(existing)
	case os.IsNotExist(err):
		// First collection for this day
	case errors.Is(err, errors.ErrEntryCorrupt):
		// Set the unreadable collected document aside and rebuild the day
		// from the pending files alone. Its data stays on disk and in the
		// store history.
		a.quarantineDocument(collectedPath, err)
	default:
		return 0, errors.NewStoreError("failed to read collected document", err).WithPath(collectedPath)
	}

	var consumedPaths []string
	for _, p := range docs {
		path := filepath.Join(a.dirs.Batches, p.name)
		doc, err := a.readDocument(path)
		if err != nil {
			if errors.Is(err, errors.ErrEntryCorrupt) {
				a.quarantineDocument(path, err)
				continue
			}
			return 0, errors.NewStoreError("failed to read pending document", err).WithPath(path)
		}
		merged.Merge(doc)
		consumedPaths = append(consumedPaths, path)
	}
	if len(consumedPaths) == 0 {
		return 0, nil
	}

	if err := os.MkdirAll(filepath.Dir(collectedPath), 0755); err != nil {
		return 0, errors.NewStoreError("failed to create collected directory", err).WithPath(collectedPath)
	}
	data, err := json.MarshalIndent(merged, "", "  ")
	if err != nil {
		return 0, errors.NewStoreError("failed to encode collected document", err)
	}
	if err := fsio.AtomicWriteFile(collectedPath, data, 0644); err != nil {
		return 0, errors.NewStoreError("failed to write collected document", err).WithPath(collectedPath)
	}

	// The merged document is durable; now the sources can go.
	for _, path := range consumedPaths {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			a.logger.Warn("failed to remove consumed pending document", "path", path, "error", err)
		}
	}

	a.logger.Debug("day collected", "date", date, "documents", len(consumedPaths), "events", merged.Events())
	return len(consumedPaths), nil
}

// quarantineDocument renames an unreadable document aside so later passes
// stop tripping over it. The .corrupt suffix takes it out of every listing
// that filters on .json.
func (a *Aggregator) quarantineDocument(path string, cause error) {
	dst := fmt.Sprintf("%s.corrupt_%d", path, time.Now().UnixMilli())
	if err := os.Rename(path, dst); err != nil {
		a.logger.Error("failed to quarantine document", "path", path, "error", err)
		return
	}
	a.logger.Warn("corrupt batch document set aside", "path", path, "moved_to", dst, "error", cause)
}
