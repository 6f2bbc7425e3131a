package install

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"ffpipe/internal/deps"
	"ffpipe/internal/faults"
	"ffpipe/internal/fileutil"
	"ffpipe/internal/logging"
)

const (
	component     = "install"
	lockFileName  = ".install.lock"
	lockRetry     = 250 * time.Millisecond
	unknownStride = 1 << 20
)

// Option configures an Installer.
type Option func(*Installer)

// WithFetcher replaces the HTTP fetcher (primarily for tests).
func WithFetcher(f Fetcher) Option {
	return func(i *Installer) {
		if f != nil {
			i.fetcher = f
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(i *Installer) {
		if logger != nil {
			i.logger = logger
		}
	}
}

// WithForce reinstalls even when a binary is already present.
func WithForce(force bool) Option {
	return func(i *Installer) {
		i.force = force
	}
}

// Installer places a downloaded ffmpeg in dir.
type Installer struct {
	dir     string
	url     string
	fetcher Fetcher
	logger  *slog.Logger
	force   bool
}

// New returns an installer for dir. An empty url selects DefaultURL.
func New(dir, url string, opts ...Option) *Installer {
	inst := &Installer{
		dir:     dir,
		url:     url,
		fetcher: NewHTTPFetcher(),
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(inst)
		}
	}
	inst.logger = logging.NewComponentLogger(inst.logger, component)
	return inst
}

// Target is the path the binary is installed to.
func (i *Installer) Target() string {
	return deps.InstalledPath(i.dir)
}

// Install downloads, decompresses, and installs the binary. Events are sent
// without blocking and may be dropped if events is full.
func (i *Installer) Install(ctx context.Context, events chan<- Event) error {
	url := i.url
	if url == "" {
		var err error
		if url, err = DefaultURL(); err != nil {
			return err
		}
	}
	if err := os.MkdirAll(i.dir, 0o755); err != nil {
		return faults.Wrap(faults.ErrIO, component, "prepare", i.dir, err)
	}

	lock := flock.New(filepath.Join(i.dir, lockFileName))
	locked, err := lock.TryLockContext(ctx, lockRetry)
	if err != nil {
		return faults.Wrap(faults.ErrIO, component, "lock", i.dir, err)
	}
	if !locked {
		return faults.Wrap(faults.ErrIO, component, "lock", "install directory is busy", nil)
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			i.logger.Warn("failed to release install lock", logging.Error(err))
		}
	}()

	target := i.Target()
	if !i.force && (deps.Locator{InstallDir: i.dir}).IsInstalled() {
		i.logger.Info("ffmpeg already installed", logging.String("path", target))
		emit(events, Event{Stage: StageFinished})
		return nil
	}

	runID := uuid.NewString()
	logger := i.logger.With(logging.String("install_id", runID))
	logger.Info("ffmpeg download started", logging.String("url", url), logging.String("target", target))
	emit(events, Event{Stage: StageStarting})

	archive, err := i.download(ctx, url, events)
	if archive != "" {
		defer os.Remove(archive)
	}
	if err != nil {
		return err
	}

	emit(events, Event{Stage: StageExtracting})
	written, err := extract(archive, target)
	if err != nil {
		return faults.Wrap(faults.ErrDownload, component, "extract", url, err)
	}

	logger.Info("ffmpeg installed",
		logging.String("path", target),
		logging.Int64("bytes", written),
	)
	emit(events, Event{Stage: StageFinished})
	return nil
}

func (i *Installer) download(ctx context.Context, url string, events chan<- Event) (string, error) {
	body, length, err := i.fetcher.Fetch(ctx, url)
	if err != nil {
		return "", faults.Wrap(faults.ErrDownload, component, "fetch", url, err)
	}
	defer body.Close()

	tmp, err := fileutil.CreateExclusive(fileutil.RandomTempPath(i.dir, ".download"), 0o600)
	if err != nil {
		return "", faults.Wrap(faults.ErrIO, component, "download", "create temp file", err)
	}
	path := tmp.Name()

	counter := &progressWriter{total: length, events: events, lastPercent: -1}
	_, copyErr := io.Copy(io.MultiWriter(tmp, counter), body)
	closeErr := tmp.Close()
	if copyErr != nil {
		return path, faults.Wrap(faults.ErrDownload, component, "download", url, copyErr)
	}
	if closeErr != nil {
		return path, faults.Wrap(faults.ErrIO, component, "download", "close temp file", closeErr)
	}
	if length >= 0 && counter.written != length {
		return path, faults.Wrap(faults.ErrDownload, component, "download",
			fmt.Sprintf("received %d of %d bytes", counter.written, length), nil)
	}
	return path, nil
}

func extract(archive, target string) (int64, error) {
	f, err := os.Open(archive)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	gz, err := gzip.NewReader(f)
	if err != nil {
		return 0, fmt.Errorf("open gzip stream: %w", err)
	}
	defer gz.Close()
	return fileutil.WriteAtomic(target, gz, 0o755)
}

// progressWriter turns byte counts into Downloading events. With a known
// length it emits once per percentage point; otherwise once per MiB.
type progressWriter struct {
	total       int64
	written     int64
	lastPercent int
	lastMark    int64
	events      chan<- Event
}

func (p *progressWriter) Write(b []byte) (int, error) {
	p.written += int64(len(b))
	if p.total > 0 {
		percent := int(p.written * 100 / p.total)
		if percent != p.lastPercent {
			p.lastPercent = percent
			emit(p.events, Event{
				Stage:      StageDownloading,
				Percent:    percent,
				HasPercent: true,
				Downloaded: p.written,
				Total:      p.total,
			})
		}
		return len(b), nil
	}
	if p.written-p.lastMark >= unknownStride || p.lastMark == 0 {
		p.lastMark = p.written
		emit(p.events, Event{Stage: StageDownloading, Downloaded: p.written, Total: -1})
	}
	return len(b), nil
}

// Download is an installation running in the background.
type Download struct {
	events chan Event
	done   chan struct{}
	err    error
	path   string
}

// Events delivers progress. It is closed when the download finishes.
func (d *Download) Events() <-chan Event {
	return d.events
}

// Wait blocks until the installation finishes.
func (d *Download) Wait() error {
	<-d.done
	return d.err
}

// Path is the binary that will exist after a successful Wait.
func (d *Download) Path() string {
	return d.path
}

// AutoInstall starts a background install unless loc can already find ffmpeg,
// in which case it returns nil.
func AutoInstall(ctx context.Context, loc deps.Locator, url string, opts ...Option) (*Download, error) {
	if _, err := loc.Locate(); err == nil {
		return nil, nil
	} else if !errors.Is(err, faults.ErrNotFound) {
		return nil, err
	}
	dir := loc.InstallDir
	if dir == "" {
		var err error
		if dir, err = deps.DefaultInstallDir(); err != nil {
			return nil, faults.Wrap(faults.ErrConfiguration, component, "auto install", "install directory", err)
		}
	}
	inst := New(dir, url, opts...)
	d := &Download{
		events: make(chan Event, EventBuffer),
		done:   make(chan struct{}),
		path:   inst.Target(),
	}
	go func() {
		defer close(d.done)
		defer close(d.events)
		d.err = inst.Install(ctx, d.events)
	}()
	return d, nil
}
