// Package version exposes the build identifier stamped into the binary.
package version

import "fmt"

// Version is the build identifier. It is overridden at build time via
// -ldflags "-X github.com/ledgerline/chronicle/internal/version.Version=...".
var Version = "dev"

// String returns the program name together with its version, in the form
// used for default commit messages and the --version flag.
func String() string {
	return fmt.Sprintf("chronicle %s", Version)
}
