package gitstore

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ledgerline/chronicle/internal/errors"
	"github.com/ledgerline/chronicle/internal/event"
	"github.com/ledgerline/chronicle/internal/fsio"
	"github.com/ledgerline/chronicle/internal/logging"
	"github.com/ledgerline/chronicle/internal/version"
)

const (
	// remoteName is the remote on the working repository that targets the
	// replica.
	remoteName = "backup"

	// markerFile records the local date of the last housekeeping run,
	// relative to the working tree root. It is git-ignored so updating it
	// never creates a commit by itself.
	markerFile = ".last-housekeeping"

	// dateLayout is the format of the housekeeping marker.
	dateLayout = "2006-01-02"
)

// gitignoreContent is written into fresh repositories. The marker changes
// daily and .DS_Store appears wherever macOS looks at a folder; neither
// belongs in history.
const gitignoreContent = ".last-housekeeping\n.DS_Store\n"

// Identity is the commit author configured on managed repositories.
type Identity struct {
	Name  string
	Email string
}

// DefaultIdentity returns the author used when none is configured.
func DefaultIdentity() Identity {
	return Identity{Name: "chronicle", Email: "chronicle@localhost"}
}

// Exporter is the housekeeping export hook. Export runs after gc and the
// replica push; failures are logged and never fail housekeeping.
type Exporter interface {
	Export() error
}

// ExporterFunc adapts a function to the Exporter interface.
type ExporterFunc func() error

// Export calls f.
func (f ExporterFunc) Export() error {
	return f()
}

// Store manages the working repository and its bare replica. The working
// tree is "always committable": every operation starts with Ensure, which
// detects a broken repository, relocates it to a timestamped sibling, and
// reinitializes at the original path.
type Store struct {
	dataDir    string
	replicaDir string
	identity   Identity
	executor   CommandExecutor
	exporter   Exporter
	logger     *logging.Logger
	bus        *event.Bus
}

// NewStore creates a store for the working tree at dataDir and the bare
// replica at replicaDir. A nil executor defaults to the git CLI; a zero
// identity defaults to DefaultIdentity.
func NewStore(dataDir, replicaDir string, identity Identity, executor CommandExecutor, logger *logging.Logger, bus *event.Bus) *Store {
	if identity.Name == "" {
		identity.Name = DefaultIdentity().Name
	}
	if identity.Email == "" {
		identity.Email = DefaultIdentity().Email
	}
	if executor == nil {
		executor = CLIExecutor{}
	}
	if logger == nil {
		logger = logging.NopLogger()
	}
	if bus == nil {
		bus = event.NewBus()
	}
	return &Store{
		dataDir:    dataDir,
		replicaDir: replicaDir,
		identity:   identity,
		executor:   executor,
		logger:     logger.WithComponent("gitstore"),
		bus:        bus,
	}
}

// SetExporter wires the housekeeping export hook.
func (s *Store) SetExporter(e Exporter) {
	s.exporter = e
}

// DataDir returns the working tree root.
func (s *Store) DataDir() string {
	return s.dataDir
}

// ReplicaDir returns the bare replica path.
func (s *Store) ReplicaDir() string {
	return s.replicaDir
}

// ---- Self-healing state machine ----

// Ensure brings both repositories to a healthy state and points the
// working repository's backup remote at the replica. Safe to call before
// every operation; the probes are cheap.
func (s *Store) Ensure() error {
	if err := s.ensureRepository(); err != nil {
		return err
	}
	if err := s.ensureReplica(); err != nil {
		return err
	}
	return s.ensureRemote()
}

// ensureRepository creates or repairs the working repository.
func (s *Store) ensureRepository() error {
	if !dirExists(s.dataDir) {
		return s.initRepository()
	}
	if s.healthy(s.dataDir, ".git") {
		return nil
	}

	backupPath := fmt.Sprintf("%s_backup_%d", s.dataDir, time.Now().UnixMilli())
	if err := os.Rename(s.dataDir, backupPath); err != nil {
		return errors.NewStoreError("failed to relocate broken repository", err).WithPath(s.dataDir)
	}
	s.logger.Warn("repository failed integrity check, relocated",
		"path", s.dataDir,
		"backup", backupPath)

	if err := s.initRepository(); err != nil {
		return err
	}
	s.bus.Publish(event.NewStoreRepairedEvent(s.dataDir, backupPath))
	return nil
}

// ensureReplica creates or repairs the bare replica.
func (s *Store) ensureReplica() error {
	if !dirExists(s.replicaDir) {
		return s.initReplica()
	}
	if s.healthy(s.replicaDir, ".") {
		return nil
	}

	brokenPath := fmt.Sprintf("%s_broken_%d", s.replicaDir, time.Now().UnixMilli())
	if err := os.Rename(s.replicaDir, brokenPath); err != nil {
		return errors.NewStoreError("failed to relocate broken replica", err).WithPath(s.replicaDir)
	}
	s.logger.Warn("replica failed integrity check, relocated",
		"path", s.replicaDir,
		"backup", brokenPath)

	if err := s.initReplica(); err != nil {
		return err
	}
	s.bus.Publish(event.NewReplicaRepairedEvent(s.replicaDir, brokenPath))
	return nil
}

// ensureRemote keeps the working repository's backup remote pointed at the
// replica path: added if missing, repointed if drifted.
func (s *Store) ensureRemote() error {
	out, err := s.executor.Run(s.dataDir, "git", "remote", "get-url", remoteName)
	if err != nil {
		if _, err := s.git(s.dataDir, "remote", "add", remoteName, s.replicaDir); err != nil {
			return err
		}
		s.logger.Info("backup remote added", "remote", remoteName, "url", s.replicaDir)
		return nil
	}

	current := strings.TrimSpace(string(out))
	if current == s.replicaDir {
		return nil
	}
	if _, err := s.git(s.dataDir, "remote", "set-url", remoteName, s.replicaDir); err != nil {
		return err
	}
	s.logger.Info("backup remote repointed", "remote", remoteName, "from", current, "to", s.replicaDir)
	return nil
}

// initRepository creates a fresh working repository with identity, ignore
// rules, and an initial commit.
func (s *Store) initRepository() error {
	if err := os.MkdirAll(s.dataDir, 0755); err != nil {
		return errors.NewStoreError("failed to create repository directory", err).WithPath(s.dataDir)
	}
	if _, err := s.git(s.dataDir, "init"); err != nil {
		return err
	}
	if _, err := s.git(s.dataDir, "config", "user.name", s.identity.Name); err != nil {
		return err
	}
	if _, err := s.git(s.dataDir, "config", "user.email", s.identity.Email); err != nil {
		return err
	}
	if err := fsio.AtomicWriteFile(filepath.Join(s.dataDir, ".gitignore"), []byte(gitignoreContent), 0644); err != nil {
		return errors.NewStoreError("failed to write ignore rules", err).WithPath(s.dataDir)
	}
	if _, err := s.git(s.dataDir, "add", "-A"); err != nil {
		return err
	}
	if _, err := s.git(s.dataDir, "commit", "-m", "initialize store"); err != nil {
		return err
	}
	s.logger.Info("repository initialized", "path", s.dataDir)
	return nil
}

// initReplica creates a fresh bare replica.
func (s *Store) initReplica() error {
	if err := os.MkdirAll(s.replicaDir, 0755); err != nil {
		return errors.NewStoreError("failed to create replica directory", err).WithPath(s.replicaDir)
	}
	if _, err := s.git(s.replicaDir, "init", "--bare"); err != nil {
		return err
	}
	s.logger.Info("replica initialized", "path", s.replicaDir)
	return nil
}

// healthy probes a repository with rev-parse. The expected --git-dir
// output pins the probe to the directory itself: a repository whose .git
// is missing or mangled makes git fail or resolve to an enclosing
// repository, and either way the output differs from want.
func (s *Store) healthy(dir, want string) bool {
	out, err := s.executor.Run(dir, "git", "rev-parse", "--git-dir")
	if err != nil {
		return false
	}
	return strings.TrimSpace(string(out)) == want
}

// Check reports on repository health without repairing anything. Used by
// the status command; the pipeline itself always goes through Ensure.
func (s *Store) Check() error {
	if !dirExists(s.dataDir) {
		return errors.NewStoreError("repository not initialized", nil).WithPath(s.dataDir)
	}
	if !s.healthy(s.dataDir, ".git") {
		return errors.Wrap(errors.ErrRepositoryBroken, "working repository")
	}
	if dirExists(s.replicaDir) && !s.healthy(s.replicaDir, ".") {
		return errors.Wrap(errors.ErrRepositoryBroken, "backup replica")
	}
	return nil
}

// ---- Operations ----

// Commit stages everything and commits with message. A clean tree is a
// no-op, not an error. An empty message falls back to the build
// identifier.
func (s *Store) Commit(message string) error {
	if err := s.Ensure(); err != nil {
		return err
	}

	if _, err := s.git(s.dataDir, "add", "-A"); err != nil {
		return err
	}

	out, err := s.executor.Run(s.dataDir, "git", "status", "--porcelain")
	if err != nil {
		return errors.NewGitError("git status failed", err).
			WithRepository(s.dataDir).
			WithGitOutput(strings.TrimSpace(string(out)))
	}
	if strings.TrimSpace(string(out)) == "" {
		s.logger.Debug("nothing to commit", "repository", s.dataDir)
		return nil
	}

	if message == "" {
		message = version.String()
	}
	if out, err := s.executor.Run(s.dataDir, "git", "commit", "-m", message); err != nil {
		// A racing writer can drain the diff between status and commit
		if strings.Contains(string(out), "nothing to commit") {
			s.logger.Debug("nothing to commit", "repository", s.dataDir)
			return nil
		}
		return errors.NewGitError("git commit failed", err).
			WithRepository(s.dataDir).
			WithGitOutput(strings.TrimSpace(string(out)))
	}

	s.logger.Info("changes committed", "message", message)
	return nil
}

// WriteFile writes data to the relative path rel under the working tree,
// creating parent directories. Absolute paths and paths escaping the root
// are rejected.
func (s *Store) WriteFile(rel string, data []byte) error {
	if rel == "" {
		return errors.NewValidationError("write path must not be empty").WithField("file")
	}
	if filepath.IsAbs(rel) {
		return errors.NewValidationError("write path must be relative").
			WithField("file").
			WithValue(rel)
	}
	clean := filepath.Clean(filepath.FromSlash(rel))
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return errors.NewValidationError("write path escapes the store root").
			WithField("file").
			WithValue(rel)
	}

	full := filepath.Join(s.dataDir, clean)
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return errors.NewStoreError("failed to create parent directories", err).WithPath(full)
	}
	if err := fsio.AtomicWriteFile(full, data, 0644); err != nil {
		return errors.NewStoreError("failed to write store file", err).WithPath(full)
	}
	return nil
}

// ---- Housekeeping ----

// Housekeeping runs the daily maintenance pass: repack the repository,
// push everything to the replica, invoke the export hook, and persist
// today's date as the marker. The push and the export are best-effort;
// only gc and the marker write can fail the operation.
func (s *Store) Housekeeping() error {
	if _, err := s.git(s.dataDir, "gc"); err != nil {
		return err
	}

	if out, err := s.executor.Run(s.dataDir, "git", "push", remoteName, "--all"); err != nil {
		trimmed := strings.TrimSpace(string(out))
		s.logger.Warn("backup push failed",
			"remote", remoteName,
			"error", err,
			"output", trimmed)
		s.bus.Publish(event.NewPushFailedEvent(remoteName, trimmed))
	}

	if s.exporter != nil {
		if err := s.exporter.Export(); err != nil {
			s.logger.Warn("export hook failed", "error", err)
		}
	}

	if err := s.writeMarker(); err != nil {
		return err
	}

	s.logger.Info("housekeeping completed", "repository", s.dataDir)
	s.bus.Publish(event.NewHousekeepingDoneEvent(s.dataDir))
	return nil
}

// IsFirstOperationToday reports whether housekeeping has not yet run on
// the current local date. An absent or unreadable marker counts as first.
func (s *Store) IsFirstOperationToday() bool {
	data, err := os.ReadFile(filepath.Join(s.dataDir, markerFile))
	if err != nil {
		return true
	}
	return strings.TrimSpace(string(data)) != time.Now().Format(dateLayout)
}

// LastHousekeeping returns the marker date, if one is readable.
func (s *Store) LastHousekeeping() (time.Time, bool) {
	data, err := os.ReadFile(filepath.Join(s.dataDir, markerFile))
	if err != nil {
		return time.Time{}, false
	}
	t, err := time.ParseInLocation(dateLayout, strings.TrimSpace(string(data)), time.Local)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// writeMarker persists today's local date.
func (s *Store) writeMarker() error {
	path := filepath.Join(s.dataDir, markerFile)
	today := time.Now().Format(dateLayout)
	if err := fsio.AtomicWriteFile(path, []byte(today+"\n"), 0644); err != nil {
		return errors.NewStoreError("failed to write housekeeping marker", err).WithPath(path)
	}
	return nil
}

// ---- Helpers ----

// git runs a git subcommand in dir, wrapping failures with the command
// output.
func (s *Store) git(dir string, args ...string) ([]byte, error) {
	out, err := s.executor.Run(dir, "git", args...)
	if err != nil {
		return out, errors.NewGitError(fmt.Sprintf("git %s failed", args[0]), err).
			WithRepository(dir).
			WithGitOutput(strings.TrimSpace(string(out)))
	}
	return out, nil
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
