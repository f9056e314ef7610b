// ============================================================================
// Falcon-SQL - Main Entry Point
// ============================================================================
//
// File: cmd/falcon-sql/main.go
// Purpose: Application entry point and CLI initialization
//
// Responsibilities:
//   1. Version Management - Inject build info via ldflags
//   2. Panic Recovery - Catch unexpected panics gracefully
//   3. CLI Setup - Build and configure Cobra command interface
//   4. Error Handling - Unified command execution error handling
//
// Version Injection:
//   Variables injected at build time via -ldflags:
//   go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
//
// Usage:
//   ./falcon-sql --help               # Show help
//   ./falcon-sql --version            # Show version
//   ./falcon-sql serve                # Start the server
//   ./falcon-sql exec -s "SELECT 1"   # Run one statement against a server
//   ./falcon-sql status               # View system status
//
// ============================================================================

package main

import (
	"fmt"
	"os"

	"github.com/ChuLiYu/falcon-sql/internal/cli"
)

// Build-time version injection via ldflags.
var (
	version = "1.0.0"
	commit  = "dev"
	date    = "unknown"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "Fatal error: %v\n", r)
			os.Exit(1)
		}
	}()

	rootCmd := cli.BuildCLI()
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
