package batch

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/ledgerline/chronicle/internal/errors"
)

// Report is the read-side fold: time bucket ("HH:MM", local wall clock) to
// branch to directory to file names, deduplicated within a bucket.
type Report map[string]map[string]map[string][]string

// NewReport creates an empty report.
func NewReport() Report {
	return make(Report)
}

// add records file under the bucket, branch, and directory, skipping
// duplicates. Returns true when the file was newly added.
func (r Report) add(bucket, branch, directory, file string) bool {
	byBranch, ok := r[bucket]
	if !ok {
		byBranch = make(map[string]map[string][]string)
		r[bucket] = byBranch
	}
	byDir, ok := byBranch[branch]
	if !ok {
		byDir = make(map[string][]string)
		byBranch[branch] = byDir
	}
	for _, f := range byDir[directory] {
		if f == file {
			return false
		}
	}
	byDir[directory] = append(byDir[directory], file)
	return true
}

// MergeIntoReport folds the documents relevant to day into report and
// returns how many source documents were newly folded. Sources are:
//
//   - pending documents whose file-name timestamp falls inside day's local
//     00:00-24:00 window, folded whole;
//   - the at most two collected documents whose UTC dates overlap the
//     local window, with events filtered to the window.
//
// Bucket keys are the local wall clock floored to bucketMinutes. When
// processed is non-nil, sources named in it are skipped and sources folded
// by this call are added to it, which makes repeated calls incremental:
// only documents that appeared since the last call contribute. The report
// path never mutates the batches directory.
func (a *Aggregator) MergeIntoReport(report Report, day time.Time, bucketMinutes int, processed map[string]bool) (int, error) {
	if bucketMinutes <= 0 {
		bucketMinutes = 60
	}
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	dayEnd := dayStart.Add(24 * time.Hour)

	folded := 0

	pending, err := a.pendingDocuments()
	if err != nil {
		return 0, err
	}
	for _, p := range pending {
		ts := time.UnixMilli(p.ts)
		if ts.Before(dayStart) || !ts.Before(dayEnd) {
			continue
		}
		if processed != nil && processed[p.name] {
			continue
		}
		doc, err := a.readDocument(filepath.Join(a.dirs.Batches, p.name))
		if err != nil {
			if errors.Is(err, errors.ErrEntryCorrupt) {
				a.logger.Warn("skipping corrupt pending document in report", "file", p.name, "error", err)
				continue
			}
			return folded, errors.NewStoreError("failed to read pending document", err).WithPath(p.name)
		}
		foldDocument(report, doc, dayStart, dayEnd, bucketMinutes, false)
		if processed != nil {
			processed[p.name] = true
		}
		folded++
	}

	for _, rel := range collectedDocsFor(dayStart, dayEnd) {
		if processed != nil && processed[rel] {
			continue
		}
		path := filepath.Join(a.dirs.Batches, filepath.FromSlash(rel))
		doc, err := a.readDocument(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			if errors.Is(err, errors.ErrEntryCorrupt) {
				a.logger.Warn("skipping corrupt collected document in report", "file", rel, "error", err)
				continue
			}
			return folded, errors.NewStoreError("failed to read collected document", err).WithPath(path)
		}
		// Collected documents span a UTC day, which can hang over either
		// edge of the local one; their events are filtered to the window.
		foldDocument(report, doc, dayStart, dayEnd, bucketMinutes, true)
		if processed != nil {
			processed[rel] = true
		}
		folded++
	}

	return folded, nil
}

// collectedDocsFor returns the collected document names (slash-separated,
// relative to the batches directory) whose UTC dates overlap the local
// window. The window spans at most two UTC dates.
func collectedDocsFor(dayStart, dayEnd time.Time) []string {
	first := dayStart.UTC().Format(collectedLayout) + ".json"
	last := dayEnd.Add(-time.Millisecond).UTC().Format(collectedLayout) + ".json"
	if first == last {
		return []string{first}
	}
	return []string{first, last}
}

// foldDocument folds every event of doc into report. With filter set,
// events outside [dayStart, dayEnd) are dropped. Keys are walked in sorted
// order so bucket file lists build deterministically.
func foldDocument(report Report, doc Document, dayStart, dayEnd time.Time, bucketMinutes int, filter bool) {
	branches := make([]string, 0, len(doc))
	for branch := range doc {
		branches = append(branches, branch)
	}
	sort.Strings(branches)

	for _, branch := range branches {
		byDir := doc[branch]
		dirs := make([]string, 0, len(byDir))
		for dir := range byDir {
			dirs = append(dirs, dir)
		}
		sort.Strings(dirs)

		for _, dir := range dirs {
			for _, ev := range byDir[dir] {
				t := time.UnixMilli(ev.Timestamp).In(dayStart.Location())
				if filter && (t.Before(dayStart) || !t.Before(dayEnd)) {
					continue
				}
				report.add(bucketKey(t, bucketMinutes), branch, dir, ev.File)
			}
		}
	}
}

// bucketKey floors t's wall clock to bucketMinutes and formats it "HH:MM".
func bucketKey(t time.Time, bucketMinutes int) string {
	minutes := t.Hour()*60 + t.Minute()
	floored := minutes - minutes%bucketMinutes
	return fmt.Sprintf("%02d:%02d", floored/60, floored%60)
}
