// Package fsio provides filesystem primitives shared by the journal, queue,
// and batch stores. Every durable write in chronicle goes through
// AtomicWriteFile so that a crash mid-write never leaves a partial file
// behind for a later pass to misread.
package fsio

import (
	"fmt"
	"os"
	"path/filepath"
)

// AtomicWriteFile writes data to path atomically by writing to a temporary
// file in the same directory, syncing it to disk, and renaming it into
// place. Readers see either the old content or the new content, never a
// partial write.
func AtomicWriteFile(path string, data []byte, perm os.FileMode) error {
	// The temp file must live next to the target; rename is only atomic
	// within one filesystem.
	tmpFile, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	renamed := false
	defer func() {
		if !renamed {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Chmod(tmpPath, perm); err != nil {
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	renamed = true
	return nil
}

// MoveFile renames src to dst, creating dst's parent directory if needed.
// Both paths are expected to live on the same filesystem; the rename is
// atomic there, which is what the queue relies on when shifting entries
// between directories.
func MoveFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("failed to create destination directory: %w", err)
	}
	if err := os.Rename(src, dst); err != nil {
		return fmt.Errorf("failed to move file: %w", err)
	}
	return nil
}
