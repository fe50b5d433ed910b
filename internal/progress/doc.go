// Package progress decodes the transcoder's streaming status output into
// structured snapshots.
//
// Parse is a pure function over one chunk of status text (an ffmpeg
// "-progress" key=value block or a classic stderr stats line). The Assembler
// turns a line stream into such chunks, and the Tracker enforces that the
// percentage reported within one run epoch never moves backwards even when a
// later chunk carries an earlier timestamp.
package progress
