// Package transcode drives the external transcoder for a single operation.
//
// The Runner interface is the boundary the lifecycle manager talks to. The
// FFmpeg implementation builds an argument list per export type, streams the
// process output line by line to the caller (ffmpeg is run with
// "-progress pipe:1" so status blocks arrive on stdout), and on cancellation
// terminates the whole process group: SIGTERM first, SIGKILL after the
// configured grace period.
//
// The package also writes the per-job manifest that lists produced
// artifacts once every operation has finished.
package transcode
