// Package health cross-checks every non-terminal job independently of the
// lifecycle manager's own callbacks.
//
// Evaluate is a pure function deriving a Record from a stored job and the
// configured thresholds. The Monitor runs Evaluate on a fixed interval,
// recovers orphaned processing jobs (left behind by a daemon restart), and
// drives bounded restarts or terminal failures through the lifecycle manager,
// which deduplicates failure notifications per session id.
package health
