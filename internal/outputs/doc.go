// Package outputs maintains the per-job artifact directories under
// paths.output_dir: removing a job's directory when its record is deleted and
// pruning directories that no stored job owns any more.
package outputs
