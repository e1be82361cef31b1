// Package journal is the producer-facing entry store: an append-only
// directory of raw event records, one JSON file per save event. Producers
// only ever add entries here; the batch aggregator consumes them by moving
// the files into its workspace, so the journal itself never deletes.
package journal

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ledgerline/chronicle/internal/errors"
	"github.com/ledgerline/chronicle/internal/fsio"
	"github.com/ledgerline/chronicle/internal/logging"
)

// Entry is one raw event: a file was saved in a directory, optionally on a
// branch. Timestamp is epoch milliseconds.
type Entry struct {
	Directory string `json:"directory"`
	File      string `json:"file"`
	Branch    string `json:"branch,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// Validate checks that the entry carries the required fields.
func (e Entry) Validate() error {
	if strings.TrimSpace(e.Directory) == "" {
		return errors.NewValidationError("queue entry requires a directory").WithField("directory")
	}
	if strings.TrimSpace(e.File) == "" {
		return errors.NewValidationError("queue entry requires a file").WithField("file")
	}
	return nil
}

// Store is the append-only entry directory.
type Store struct {
	dir    string
	logger *logging.Logger
}

// NewStore creates a store rooted at dir. The directory is created on first
// Add, not here, so constructing a store is always side-effect free.
func NewStore(dir string, logger *logging.Logger) *Store {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Store{
		dir:    dir,
		logger: logger.WithComponent("journal"),
	}
}

// Dir returns the directory the store writes into.
func (s *Store) Dir() string {
	return s.dir
}

// Add validates and persists one entry, returning the file name it was
// written under. A zero timestamp defaults to the current time. File names
// embed the creation time in epoch milliseconds, so lexicographic order is
// arrival order.
func (s *Store) Add(entry Entry) (string, error) {
	if err := entry.Validate(); err != nil {
		return "", err
	}
	if entry.Timestamp == 0 {
		entry.Timestamp = time.Now().UnixMilli()
	}

	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return "", errors.NewStoreError("failed to create queue directory", err).WithPath(s.dir)
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return "", errors.NewStoreError("failed to encode queue entry", err)
	}

	name := fmt.Sprintf("%d_%s.json", time.Now().UnixMilli(), uuid.NewString())
	path := filepath.Join(s.dir, name)
	if err := fsio.AtomicWriteFile(path, data, 0644); err != nil {
		return "", errors.NewStoreError("failed to write queue entry", err).WithPath(path)
	}

	s.logger.Debug("queue entry recorded",
		"file", name,
		"directory", entry.Directory,
		"entry_file", entry.File)
	return name, nil
}

// HasPending reports whether at least one entry is waiting. Used by the
// flush tick to decide if a processBatch request is worth enqueueing.
func (s *Store) HasPending() bool {
	names, err := s.List()
	if err != nil {
		return false
	}
	return len(names) > 0
}

// List returns the entry file names in chronological order. A missing
// directory is an empty store, not an error.
func (s *Store) List() ([]string, error) {
	dirEntries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.NewStoreError("failed to read queue directory", err).WithPath(s.dir)
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
