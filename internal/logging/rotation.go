package logging

import (
	"compress/gzip"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// RotationConfig controls size-based rotation of the daemon log.
type RotationConfig struct {
	// MaxSizeMB is the size at which the live log is rotated out.
	// Zero disables rotation entirely.
	MaxSizeMB int
	// MaxBackups is how many rotated files to retain. Zero keeps none.
	MaxBackups int
	// Compress gzips rotated files in the background.
	Compress bool
}

// DefaultRotationConfig returns the rotation settings used when the
// configuration file does not override them.
func DefaultRotationConfig() RotationConfig {
	return RotationConfig{
		MaxSizeMB:  10,
		MaxBackups: 3,
		Compress:   false,
	}
}

// RotatingWriter is an io.Writer over a single log file that rotates the
// file once it would exceed a size limit. Rotated files are renamed to
// <path>.1 through <path>.N, with .1 the most recent. Safe for concurrent
// use.
type RotatingWriter struct {
	mu sync.Mutex

	filePath   string
	limit      int64
	maxBackups int
	compress   bool

	file *os.File
	size int64
}

// NewRotatingWriter opens (or creates) the log file at filePath and returns
// a writer that rotates it per config. With MaxSizeMB of 0 the writer never
// rotates and simply appends.
func NewRotatingWriter(filePath string, config RotationConfig) (*RotatingWriter, error) {
	w := &RotatingWriter{
		filePath:   filePath,
		limit:      int64(config.MaxSizeMB) * 1024 * 1024,
		maxBackups: config.MaxBackups,
		compress:   config.Compress,
	}
	if err := w.open(); err != nil {
		return nil, err
	}
	return w, nil
}

// open opens the live log file for appending and records its size. Callers
// must hold w.mu.
func (w *RotatingWriter) open() error {
	if err := os.MkdirAll(filepath.Dir(w.filePath), 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	f, err := os.OpenFile(w.filePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("failed to stat log file: %w", err)
	}

	w.file = f
	w.size = info.Size()
	return nil
}

// Write appends p to the log, rotating beforehand if the write would push
// the file over the limit. Rotation failures are reported on stderr and the
// write proceeds against the current file so no log data is dropped.
func (w *RotatingWriter) Write(p []byte) (n int, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return 0, fmt.Errorf("log file is closed")
	}

	if w.limit > 0 && w.size+int64(len(p)) > w.limit {
		if err := w.rotate(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: log rotation failed, continuing on current file: %v\n", err)
		}
	}

	n, err = w.file.Write(p)
	w.size += int64(n)
	return n, err
}

// rotate closes the live file, shifts the backup chain, renames the live
// file to .1 and reopens a fresh one. Callers must hold w.mu.
func (w *RotatingWriter) rotate() error {
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync log file: %w", err)
	}
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("failed to close log file: %w", err)
	}
	w.file = nil

	w.shiftBackups()

	rotated := w.backupPath(1)
	if err := os.Rename(w.filePath, rotated); err != nil {
		// Logging must survive a failed rename, so get the live file back.
		if openErr := w.open(); openErr != nil {
			return fmt.Errorf("failed to rename log file and reopen: %w", openErr)
		}
		return fmt.Errorf("failed to rename log file: %w", err)
	}

	if w.compress {
		go w.compressBackup(rotated)
	}

	return w.open()
}

// shiftBackups renumbers existing backups one slot down the chain, letting
// the oldest fall off. Each slot may hold either a plain or a gzipped file.
func (w *RotatingWriter) shiftBackups() {
	if w.maxBackups <= 0 {
		os.Remove(w.backupPath(1))
		os.Remove(w.backupPath(1) + ".gz")
		return
	}

	oldest := w.backupPath(w.maxBackups)
	os.Remove(oldest)
	os.Remove(oldest + ".gz")

	for i := w.maxBackups - 1; i >= 1; i-- {
		src, dst := w.backupPath(i), w.backupPath(i+1)
		if _, err := os.Stat(src + ".gz"); err == nil {
			os.Rename(src+".gz", dst+".gz")
		} else if _, err := os.Stat(src); err == nil {
			os.Rename(src, dst)
		}
	}
}

func (w *RotatingWriter) backupPath(n int) string {
	return fmt.Sprintf("%s.%d", w.filePath, n)
}

// compressBackup gzips a rotated file and deletes the plain copy. It runs in
// its own goroutine, so failures are reported on stderr; the plain file is
// only removed once the gzipped copy is complete.
func (w *RotatingWriter) compressBackup(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: cannot read %s for compression: %v\n", path, err)
		return
	}

	gzPath := path + ".gz"
	out, err := os.Create(gzPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: cannot create %s: %v\n", gzPath, err)
		return
	}
	defer out.Close()

	zw := gzip.NewWriter(out)
	if _, err := zw.Write(data); err != nil {
		os.Remove(gzPath)
		fmt.Fprintf(os.Stderr, "Warning: compressing %s failed: %v\n", gzPath, err)
		return
	}
	if err := zw.Close(); err != nil {
		os.Remove(gzPath)
		fmt.Fprintf(os.Stderr, "Warning: closing %s failed: %v\n", gzPath, err)
		return
	}

	os.Remove(path)
}

// Sync flushes the live log file to disk.
func (w *RotatingWriter) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return nil
	}
	return w.file.Sync()
}

// Close syncs and closes the live log file. Closing twice is a no-op.
func (w *RotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return nil
	}
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync log file: %w", err)
	}
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("failed to close log file: %w", err)
	}
	w.file = nil
	return nil
}

// CurrentSize reports the size of the live log file in bytes.
func (w *RotatingWriter) CurrentSize() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.size
}

// FilePath reports the path of the live log file.
func (w *RotatingWriter) FilePath() string {
	return w.filePath
}
