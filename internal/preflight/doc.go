// Package preflight provides readiness checks for the directories and
// external services clipforge depends on.
//
// The CLI runs them from "clipforge config validate" and "clipforge status".
// Each service check is gated by its config section; unconfigured services
// are skipped.
package preflight
