package opqueue

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

// Store persists operation requests under dir and relocates exhausted
// ones to backupDir. Any writer wanting a durable, serialized, retried
// write goes through Add; only the processor consumes.
type Store struct {
	dir       string
	backupDir string
	logger    *logging.Logger
}

// NewStore creates a request store. dir holds pending requests and
// backupDir holds dead-lettered ones; both are created on demand.
func NewStore(dir, backupDir string, logger *logging.Logger) *Store {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Store{
		dir:       dir,
		backupDir: backupDir,
		logger:    logger.WithComponent("opqueue"),
	}
}

// Dir returns the pending request directory.
func (s *Store) Dir() string {
	return s.dir
}

// BackupDir returns the dead-letter directory.
func (s *Store) BackupDir() string {
	return s.backupDir
}

// Add validates and persists one request, returning the file name it was
// written under.
func (s *Store) Add(req Request) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}

	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return "", errors.NewStoreError("failed to create operation queue directory", err).WithPath(s.dir)
	}

	data, err := json.Marshal(req)
	if err != nil {
		return "", errors.NewStoreError("failed to encode operation request", err)
	}

	name := fmt.Sprintf("%d_%s.json", time.Now().UnixMilli(), uuid.NewString())
	path := filepath.Join(s.dir, name)
	if err := fsio.AtomicWriteFile(path, data, 0644); err != nil {
		return "", errors.NewStoreError("failed to write operation request", err).WithPath(path)
	}

	s.logger.Debug("operation request enqueued", "file", name, "type", req.Type.String())
	return name, nil
}

// Pending returns every request in the mailbox in enqueue order. A file
// that fails to parse is returned as a TypeInvalid request carrying its
// file name, so malformed input flows through the same dispatch and
// failure path as everything else instead of being skipped. A missing
// directory is an empty mailbox.
func (s *Store) Pending() ([]Request, error) {
	names, err := s.list(s.dir)
	if err != nil {
		return nil, err
	}

	requests := make([]Request, 0, len(names))
	for _, name := range names {
		req, err := s.read(name)
		if err != nil {
			s.logger.Warn("unparseable operation request", "file", name, "error", err)
			req = Request{Type: TypeInvalid}
		}
		req.fileName = name
		requests = append(requests, req)
	}
	return requests, nil
}

// Delete removes a consumed request file. Best effort: a missing file is
// fine (already consumed), anything else is logged and swallowed because
// the worst outcome is one redundant reprocessing on the next cycle.
func (s *Store) Delete(fileName string) {
	path := filepath.Join(s.dir, fileName)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		s.logger.Warn("failed to delete operation request", "file", fileName, "error", err)
	}
}

// DeadLetter relocates a request file to the backup directory under the
// same name. Data is moved, never deleted, so an exhausted request stays
// inspectable.
func (s *Store) DeadLetter(fileName string) error {
	src := filepath.Join(s.dir, fileName)
	dst := filepath.Join(s.backupDir, fileName)
	if err := fsio.MoveFile(src, dst); err != nil {
		return errors.NewQueueError("failed to dead-letter operation request", err).WithFile(fileName)
	}
	s.logger.Warn("operation request dead-lettered", "file", fileName)
	return nil
}

// Depth returns the number of pending request files.
func (s *Store) Depth() int {
	names, err := s.list(s.dir)
	if err != nil {
		return 0
	}
	return len(names)
}

// DeadLettered returns the number of dead-lettered request files.
func (s *Store) DeadLettered() int {
	names, err := s.list(s.backupDir)
	if err != nil {
		return 0
	}
	return len(names)
}

// read parses one request file.
func (s *Store) read(name string) (Request, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		return Request{}, err
	}
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return Request{}, err
	}
	return req, nil
}

// list returns the sorted .json file names in dir. Sorting is what makes
// dispatch order equal enqueue order, given the timestamp-prefixed names.
func (s *Store) list(dir string) ([]string, error) {
	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.NewStoreError("failed to read operation queue directory", err).WithPath(dir)
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
