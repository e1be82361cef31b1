// Package testutil provides testing utilities for chronicle tests.
package testutil

import (
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

// SkipIfNoGit skips the test when no git binary is on PATH.
func SkipIfNoGit(t *testing.T) {
	t.Helper()

	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not found in PATH, skipping test")
	}
}

// RunGit runs a git command in the specified directory, failing the test
// on a nonzero exit.
func RunGit(t *testing.T, dir string, args ...string) {
	t.Helper()

	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(),
		"GIT_AUTHOR_NAME=Chronicle Test",
		"GIT_AUTHOR_EMAIL=test@chronicle.dev",
		"GIT_COMMITTER_NAME=Chronicle Test",
		"GIT_COMMITTER_EMAIL=test@chronicle.dev",
	)
	output, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("git %s failed: %v\n%s", strings.Join(args, " "), err, output)
	}
}

// GitOutput runs a git command and returns its trimmed stdout, failing
// the test on a nonzero exit.
func GitOutput(t *testing.T, dir string, args ...string) string {
	t.Helper()

	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	output, err := cmd.Output()
	if err != nil {
		t.Fatalf("git %s failed: %v", strings.Join(args, " "), err)
	}
	return strings.TrimSpace(string(output))
}

// CommitCount returns the number of commits on HEAD.
func CommitCount(t *testing.T, repoDir string) int {
	t.Helper()

	out := GitOutput(t, repoDir, "rev-list", "--count", "HEAD")
	count, err := strconv.Atoi(out)
	if err != nil {
		t.Fatalf("failed to parse commit count %q: %v", out, err)
	}
	return count
}

// HeadMessage returns the subject line of the HEAD commit.
func HeadMessage(t *testing.T, repoDir string) string {
	t.Helper()

	return GitOutput(t, repoDir, "log", "-1", "--pretty=%s")
}

// HasUncommittedChanges returns true if the repository has staged or
// unstaged changes.
func HasUncommittedChanges(t *testing.T, repoDir string) bool {
	t.Helper()

	return GitOutput(t, repoDir, "status", "--porcelain") != ""
}

// WriteFile writes content to path, creating parent directories, and
// fails the test on error.
func WriteFile(t *testing.T, path, content string) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("failed to create directory for %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write file %s: %v", path, err)
	}
}

// BreakRepository mangles a repository's HEAD so integrity probes fail.
// Works on both working repositories (dir/.git/HEAD) and bare ones
// (dir/HEAD).
func BreakRepository(t *testing.T, dir string) {
	t.Helper()

	head := filepath.Join(dir, ".git", "HEAD")
	if _, err := os.Stat(filepath.Join(dir, ".git")); os.IsNotExist(err) {
		head = filepath.Join(dir, "HEAD")
	}
	if err := os.WriteFile(head, []byte("not a ref\n"), 0644); err != nil {
		t.Fatalf("failed to break repository %s: %v", dir, err)
	}
}
