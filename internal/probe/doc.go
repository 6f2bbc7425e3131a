// Package probe inspects media with ffprobe and exposes the fields ffpipe
// uses: stream layout, container duration, size, and bitrate.
//
// Inspect runs ffprobe with JSON output; BinaryFor picks the ffprobe that
// ships next to a located ffmpeg before falling back to PATH.
package probe
