// Package batch folds raw queue entries into time-bucketed, branch and
// directory grouped documents, rolls completed days up into one collected
// document per calendar date, and assembles read-side reports. It owns the
// consumption side of the queue: entries leave the queue by being moved
// into the batch workspace, folded, and only then discarded.
package batch

// FileEvent is one file save carried inside a batch document. Timestamp is
// epoch milliseconds.
type FileEvent struct {
	File      string `json:"file"`
	Timestamp int64  `json:"timestamp"`
}

// Document groups file events by branch, then by directory. Both pending
// documents (one per aggregation cycle) and collected documents (one per
// calendar day) share this shape.
type Document map[string]map[string][]FileEvent

// NewDocument creates an empty document.
func NewDocument() Document {
	return make(Document)
}

// Add appends one event under branch and directory. The branch may be
// empty; it is kept as-is rather than normalized.
func (d Document) Add(branch, directory string, ev FileEvent) {
	byDir, ok := d[branch]
	if !ok {
		byDir = make(map[string][]FileEvent)
		d[branch] = byDir
	}
	byDir[directory] = append(byDir[directory], ev)
}

// Merge folds other into d additively. Event lists are concatenated, never
// deduplicated, so merging the same document twice doubles its events.
// Collection relies on this: same-day documents accumulate.
func (d Document) Merge(other Document) {
	for branch, byDir := range other {
		for directory, events := range byDir {
			for _, ev := range events {
				d.Add(branch, directory, ev)
			}
		}
	}
}

// Events returns the total number of file events across all branches.
func (d Document) Events() int {
	total := 0
	for _, byDir := range d {
		for _, events := range byDir {
			total += len(events)
		}
	}
	return total
}
