// Package api defines the transport types shared by the daemon HTTP API and
// the CLI, plus a small HTTP client for the CLI.
//
// Keep these structs stable: they are the JSON contract for external callers
// and the SSE progress stream.
package api
