// Package main is the entry point for the cortexd daemon and its CLI.
//
// Usage:
//
//	cortexd [flags] <command> [args]
//
// Commands:
//
//	run      - Run the coordinator daemon
//	status   - Show the running daemon's state
//	cmd      - Send a raw protocol line to the daemon
//	db       - Query tables and snapshot the database
//	files    - List, fetch, upload, and delete artifacts
//	token    - Show or rotate the API token
//	version  - Show version information
package main

import (
	"fmt"
	"os"

	"github.com/cortexcore/cortexd/cmd/cortexd/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
