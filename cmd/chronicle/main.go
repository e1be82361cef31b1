package main

import (
	"os"

	"github.com/ledgerline/chronicle/internal/cmd"
)

func main() {
	// Errors are printed by the printer package with color formatting,
	// so a failed command only needs the exit code here.
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
