// Package main hosts the clipforge CLI entrypoint and command graph.
//
// The Cobra command tree runs the daemon in the foreground, starts and stops
// it in the background, and translates job and health commands into calls
// against the daemon's HTTP API. Configuration resolution and API client
// construction live in one place so subcommands only deal with presentation.
package main
