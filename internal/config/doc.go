// Package config loads, normalizes, and validates clipforge configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// CLIPFORGE_API_TOKEN. The Config type centralizes every knob the daemon and
// CLI need: where the job database and outputs live, how the transcoder is
// invoked, admission limits, estimator weights, and health monitor thresholds.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
