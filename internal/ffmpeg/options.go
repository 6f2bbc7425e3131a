package ffmpeg

import (
	"log/slog"
	"time"

	"ffpipe/internal/logging"
	"ffpipe/internal/progress"
)

// DefaultStopGrace is how long Stop waits for ffmpeg to exit after sending q.
const DefaultStopGrace = 10 * time.Second

// progressDrainGrace bounds how long the progress monitor keeps listening
// after ffmpeg exited without sending an end record.
const progressDrainGrace = 500 * time.Millisecond

type options struct {
	logger           *slog.Logger
	stopGrace        time.Duration
	progressCapacity int
	progressChunk    int
	tempDir          string
	env              []string
	dir              string
}

func defaultOptions() options {
	return options{
		logger:           logging.NewNop(),
		stopGrace:        DefaultStopGrace,
		progressCapacity: progress.DefaultCapacity,
		progressChunk:    progress.DefaultChunkSize,
	}
}

// Option configures a Builder and the Command it starts.
type Option func(*options)

// WithLogger sets the logger used by the builder, the command, and its
// progress monitor.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithStopGrace bounds how long Stop waits before killing the process.
func WithStopGrace(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.stopGrace = d
		}
	}
}

// WithProgressCapacity sets the buffer of the progress delivery channel.
func WithProgressCapacity(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.progressCapacity = n
		}
	}
}

// WithProgressChunkSize sets the read size used on the progress channel.
func WithProgressChunkSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.progressChunk = n
		}
	}
}

// WithTempDir sets where in-memory buffers are staged. Defaults to
// os.TempDir.
func WithTempDir(dir string) Option {
	return func(o *options) {
		o.tempDir = dir
	}
}

// WithEnv replaces the environment of the spawned process.
func WithEnv(env []string) Option {
	return func(o *options) {
		o.env = append([]string(nil), env...)
	}
}

// WithDir sets the working directory of the spawned process.
func WithDir(dir string) Option {
	return func(o *options) {
		o.dir = dir
	}
}
