// Package progress reads ffmpeg's machine-readable progress side channel.
//
// ffmpeg writes groups of key=value lines to the path given with -progress.
// Each group ends with a progress=continue or progress=end line. Parse turns
// one group into a Snapshot. Monitor listens on a pipe.Channel in the
// background, frames and parses records as they arrive, and delivers them in
// order through a bounded channel without ever stalling the pipe reader.
package progress
