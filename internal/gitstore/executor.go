// Package gitstore manages the versioned store: a git-backed working tree
// that self-heals on corruption, mirrors to a bare replica, and runs
// scheduled maintenance. All git access goes through a subprocess executor
// so the store logic stays insulated from invocation details and tests can
// substitute a fake.
package gitstore

import (
	"os/exec"
)

// CommandExecutor abstracts subprocess invocation. Run executes name with
// args in dir and returns the combined output; a nonzero exit is returned
// as the error with the output still populated.
type CommandExecutor interface {
	Run(dir, name string, args ...string) ([]byte, error)
}

// CLIExecutor runs commands through os/exec.
type CLIExecutor struct{}

// Run executes the command in dir and returns its combined output.
func (CLIExecutor) Run(dir, name string, args ...string) ([]byte, error) {
	cmd := exec.Command(name, args...)
	cmd.Dir = dir
	return cmd.CombinedOutput()
}
