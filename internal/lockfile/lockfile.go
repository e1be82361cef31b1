// Package lockfile provides cross-process mutual exclusion over a store
// root. One lock file guards the whole root: whichever process creates it
// atomically owns the store until it releases. Holders are identified by
// PID so a crashed process never wedges the pipeline; its stale lock is
// detected with a liveness probe and cleaned by the next contender.
package lockfile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ledgerline/chronicle/internal/logging"
)

// pollInterval is how long a contender waits between acquisition attempts.
const pollInterval = 100 * time.Millisecond

// Holder identifies the process that owns a lock file.
type Holder struct {
	PID        int       `json:"pid"`
	Hostname   string    `json:"hostname"`
	AcquiredAt time.Time `json:"acquired_at"`
}

// Lock is one process's handle on the store lock. Reentrant acquisition is
// not supported; the pipeline has a single flow of control per process.
type Lock struct {
	path   string
	logger *logging.Logger
	pid    int
}

// New creates a lock handle for the given lock file path.
func New(path string, logger *logging.Logger) *Lock {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Lock{
		path:   path,
		logger: logger.WithComponent("lockfile"),
		pid:    os.Getpid(),
	}
}

// Path returns the lock file path.
func (l *Lock) Path() string {
	return l.path
}

// Acquire polls for the lock until it is obtained or timeout elapses.
// The first attempt always happens, even with a zero timeout. Returns
// false when the lock could not be obtained; the caller retries on its
// next cycle. There is no fairness guarantee between contenders.
func (l *Lock) Acquire(timeout time.Duration) bool {
	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		l.logger.Error("failed to create lock directory", "path", l.path, "error", err)
		return false
	}

	deadline := time.Now().Add(timeout)
	for {
		if l.attempt() {
			l.logger.Debug("lock acquired", "path", l.path, "pid", l.pid)
			return true
		}
		if !time.Now().Before(deadline) {
			return false
		}
		time.Sleep(pollInterval)
	}
}

// attempt makes one pass at taking the lock: a create, and when the
// existing lock turns out stale or unreadable, its removal followed by one
// more create. A live holder or a lost race leaves the lock untaken.
func (l *Lock) attempt() bool {
	if l.tryCreate() {
		return true
	}

	// Lock file exists - check whether the holder is still alive
	holder, rerr := readHolder(l.path)
	if rerr != nil {
		if os.IsNotExist(rerr) {
			// Released between our create attempt and the read
			return l.tryCreate()
		}
		l.logger.Warn("removing unreadable lock file", "path", l.path, "error", rerr)
	} else if isProcessAlive(holder.PID) {
		return false
	} else {
		l.logger.Warn("stale lock cleaned", "path", l.path, "old_pid", holder.PID)
	}

	if removeErr := os.Remove(l.path); removeErr != nil && !os.IsNotExist(removeErr) {
		return false
	}
	return l.tryCreate()
}

// tryCreate makes a single atomic attempt to create the lock file with
// this process's identity as its payload.
func (l *Lock) tryCreate() bool {
	// O_EXCL makes create-if-absent atomic; losing the race shows up as
	// os.IsExist.
	f, err := os.OpenFile(l.path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if !os.IsExist(err) {
			l.logger.Error("failed to create lock file", "path", l.path, "error", err)
		}
		return false
	}

	holder := Holder{
		PID:        l.pid,
		Hostname:   hostname(),
		AcquiredAt: time.Now(),
	}
	data, werr := json.MarshalIndent(holder, "", "  ")
	if werr == nil {
		_, werr = f.Write(data)
	}
	f.Close()
	if werr != nil {
		os.Remove(l.path)
		l.logger.Error("failed to write lock file", "path", l.path, "error", werr)
		return false
	}
	return true
}

// Release removes the lock file if this process owns it. Safe to call
// multiple times and safe to call without a prior successful Acquire;
// failures are logged, never returned, because release runs on cleanup
// paths that must not fail.
func (l *Lock) Release() {
	holder, err := readHolder(l.path)
	if err != nil {
		// Nothing on disk, nothing to release.
		return
	}

	// Another process may have cleaned our stale lock and taken over;
	// never remove a lock we no longer own.
	if holder.PID != l.pid {
		return
	}

	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		l.logger.Error("failed to release lock", "path", l.path, "error", err)
		return
	}
	l.logger.Debug("lock released", "path", l.path)
}

// Inspect reports who holds the lock at path. The second return value is
// true only when the lock file exists and its holder is still alive; a
// stale holder is returned with false so callers can show who crashed.
func Inspect(path string) (*Holder, bool) {
	holder, err := readHolder(path)
	if err != nil {
		return nil, false
	}
	if !isProcessAlive(holder.PID) {
		return holder, false
	}
	return holder, true
}

// readHolder reads and parses a lock file.
func readHolder(path string) (*Holder, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var holder Holder
	if err := json.Unmarshal(data, &holder); err != nil {
		return nil, fmt.Errorf("failed to parse lock file: %w", err)
	}
	return &holder, nil
}

// isProcessAlive probes for a running process with the given PID.
func isProcessAlive(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// Signal 0 performs the existence check without delivering anything.
	return process.Signal(syscall.Signal(0)) == nil
}

func hostname() string {
	name, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return name
}
