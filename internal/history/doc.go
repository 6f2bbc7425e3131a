// Package history records ffmpeg invocations in a SQLite database: the exact
// argument vector, when the run started and finished, how it ended, and the
// last progress snapshot seen.
package history
