package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"ffpipe/internal/config"
	"ffpipe/internal/faults"
	"ffpipe/internal/feed"
	"ffpipe/internal/ffmpeg"
	"ffpipe/internal/history"
	"ffpipe/internal/logging"
	"ffpipe/internal/pipe"
	"ffpipe/internal/probe"
	"ffpipe/internal/progress"
)

const (
	stderrTailLines = 20
	interruptedCode = 130
	probeTimeout    = 10 * time.Second
	relayDrainGrace = time.Second
)

type runOptions struct {
	inputs       []string
	inputFormat  string
	output       string
	outputFormat string
	videoCodec   string
	audioCodec   string
	overwrite    bool
	noProgress   bool
	noHistory    bool
	showOutput   bool
	autoInstall  bool
	dryRun       bool
	viaChannel   bool
	feedBind     string
}

// exitStatusError carries ffmpeg's exit status to the process exit code.
type exitStatusError struct {
	code int
	tail []string
}

func (e *exitStatusError) Error() string {
	msg := fmt.Sprintf("ffmpeg exited with status %d", e.code)
	if e.code == interruptedCode {
		msg = "ffmpeg run interrupted"
	}
	if len(e.tail) == 0 {
		return msg
	}
	return msg + ":\n  " + strings.Join(e.tail, "\n  ")
}

func newRunCommand(ctx *commandContext) *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run -i INPUT -o OUTPUT [flags] [-- output options...]",
		Short: "Run ffmpeg with live progress",
		Long: `Run ffmpeg on one or more inputs, reporting progress as it goes.

Arguments after -- are passed to ffmpeg as options of the output. Press
Ctrl-C to ask ffmpeg to finish the output cleanly; it is killed if it does
not exit within ffmpeg.stop_grace_seconds.`,
		Example: `  ffpipe run -i in.flv -o out.webm --vcodec libvpx-vp9 --acodec libopus -- -shortest
  ffpipe run -i - --input-format s16le -o out.wav -- -ar 48000
  cat in.wav | ffpipe run --channel -i - -o - -f flac > out.flac`,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.feedBind = strings.TrimSpace(opts.feedBind)
			if len(opts.inputs) == 0 {
				return faults.Wrap(faults.ErrConfiguration, "cli", "run", "at least one --input is required", nil)
			}
			stdinInputs := 0
			for _, input := range opts.inputs {
				if input == "-" {
					stdinInputs++
				}
			}
			if stdinInputs > 1 {
				return faults.Wrap(faults.ErrConfiguration, "cli", "run", "stdin can feed only one --input", nil)
			}
			if strings.TrimSpace(opts.output) == "" {
				return faults.Wrap(faults.ErrConfiguration, "cli", "run", "--output is required", nil)
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if opts.feedBind == "" {
				opts.feedBind = cfg.Feed.Bind
			}
			if opts.feedBind != "" {
				if _, _, err := net.SplitHostPort(opts.feedBind); err != nil {
					return faults.Wrap(faults.ErrConfiguration, "cli", "run", "--feed must be host:port", err)
				}
			}
			if !opts.overwrite && isLocalPath(opts.output) {
				if _, err := os.Stat(opts.output); err == nil {
					return faults.Wrap(faults.ErrConfiguration, "cli", "run",
						fmt.Sprintf("%s already exists (use --overwrite to replace it)", opts.output), nil)
				}
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			binary, err := resolveBinary(runCtx, cmd, ctx, opts.autoInstall)
			if err != nil {
				return err
			}

			b, relays := buildInvocation(binary, cfg, ctx.loggerValue(), opts, args)
			if err := b.Err(); err != nil {
				return err
			}
			if opts.dryRun {
				fmt.Fprintln(cmd.OutOrStdout(), commandLine(binary, b.Argv()))
				b.Discard()
				return nil
			}

			r := &runner{
				program:  binary,
				logger:   ctx.loggerValue(),
				errOut:   cmd.ErrOrStderr(),
				live:     isTerminal(cmd.ErrOrStderr()) && cfg.Logging.Format == "console",
				feedBind: opts.feedBind,
				tail:     !opts.showOutput,
				relays:   relays,
				in:       cmd.InOrStdin(),
				out:      cmd.OutOrStdout(),
			}
			if !opts.noProgress {
				r.duration = probeDuration(runCtx, ctx, opts.inputs)
			}
			if opts.noHistory {
				return r.execute(runCtx, b, nil)
			}
			return ctx.withHistory(func(store *history.Store) error {
				return r.execute(runCtx, b, store)
			})
		},
	}

	cmd.Flags().StringArrayVarP(&opts.inputs, "input", "i", nil, "Input file or URL, \"-\" for stdin (repeatable)")
	cmd.Flags().StringVar(&opts.inputFormat, "input-format", "", "Force the format of every input")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "Output file or URL, \"-\" for stdout")
	cmd.Flags().StringVarP(&opts.outputFormat, "format", "f", "", "Force the output format")
	cmd.Flags().StringVar(&opts.videoCodec, "vcodec", "", "Video codec for the output")
	cmd.Flags().StringVar(&opts.audioCodec, "acodec", "", "Audio codec for the output")
	cmd.Flags().BoolVarP(&opts.overwrite, "overwrite", "y", false, "Replace the output file if it already exists")
	cmd.Flags().BoolVar(&opts.noProgress, "no-progress", false, "Do not request progress from ffmpeg")
	cmd.Flags().BoolVar(&opts.noHistory, "no-history", false, "Do not record this run in the history database")
	cmd.Flags().BoolVar(&opts.showOutput, "show-output", false, "Pass ffmpeg's own log output through to stderr")
	cmd.Flags().BoolVar(&opts.autoInstall, "auto-install", false, "Download ffmpeg first if it cannot be found")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "Print the ffmpeg command line without running it")
	cmd.Flags().BoolVar(&opts.viaChannel, "channel", false, "Carry \"-\" input and output over named channels instead of ffmpeg's stdio, keeping Ctrl-C graceful")
	cmd.Flags().StringVar(&opts.feedBind, "feed", "", "Serve live progress over WebSocket on host:port (overrides feed.bind)")

	return cmd
}

// channelRelay copies between ffpipe's own stdio and a channel handed to
// ffmpeg in place of pipe:0 or pipe:1.
type channelRelay struct {
	ch    *pipe.Channel
	input bool
}

func buildInvocation(binary string, cfg *config.Config, logger *slog.Logger, opts runOptions, extra []string) (*ffmpeg.Builder, []channelRelay) {
	b := ffmpeg.New(binary,
		ffmpeg.WithLogger(logger),
		ffmpeg.WithStopGrace(cfg.StopGrace()),
		ffmpeg.WithProgressCapacity(cfg.Progress.QueueCapacity),
		ffmpeg.WithProgressChunkSize(cfg.Progress.ChunkSize),
	)
	b.Arg("-hide_banner")

	var relays []channelRelay
	stdinUsed := false
	for _, input := range opts.inputs {
		var sb *ffmpeg.StreamBuilder
		switch {
		case input == "-" && opts.viaChannel:
			sb = b.InputChannel()
			relays = append(relays, channelRelay{ch: sb.Channel(), input: true})
		case input == "-":
			sb = b.InputFile("pipe:0")
			stdinUsed = true
		default:
			sb = b.InputFile(input)
		}
		if opts.inputFormat != "" {
			sb.Format(opts.inputFormat)
		}
		sb.Done()
	}

	var sb *ffmpeg.StreamBuilder
	switch {
	case opts.output == "-" && opts.viaChannel:
		sb = b.OutputChannel()
		relays = append(relays, channelRelay{ch: sb.Channel()})
	case opts.output == "-":
		sb = b.OutputFile("pipe:1")
	default:
		sb = b.OutputFile(opts.output)
	}
	if opts.videoCodec != "" {
		sb.CodecVideo(opts.videoCodec)
	}
	if opts.audioCodec != "" {
		sb.CodecAudio(opts.audioCodec)
	}
	if opts.outputFormat != "" {
		sb.Format(opts.outputFormat)
	}
	sb.Args(extra...).Done()

	// Reading media from stdin rules out sending q through it.
	if stdinUsed {
		b.Stdin(ffmpeg.Inherit())
	}
	b.Stdout(ffmpeg.Inherit())
	if opts.showOutput {
		b.Stderr(ffmpeg.Inherit())
	}
	if !opts.noProgress {
		b.WithProgress()
	}
	return b, relays
}

// isLocalPath reports whether target names a file rather than stdout or a
// protocol URL.
func isLocalPath(target string) bool {
	if target == "-" || strings.HasPrefix(target, "pipe:") {
		return false
	}
	scheme, _, found := strings.Cut(target, "://")
	return !found || scheme == "file"
}

// probeDuration returns the length of a single local input so progress can be
// shown as a percentage. Zero means unknown.
func probeDuration(ctx context.Context, cc *commandContext, inputs []string) time.Duration {
	if len(inputs) != 1 || !isLocalPath(inputs[0]) {
		return 0
	}
	if _, err := os.Stat(inputs[0]); err != nil {
		return 0
	}
	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	result, err := probe.Inspect(probeCtx, cc.probeBinary(), inputs[0])
	if err != nil {
		cc.loggerValue().Debug("input duration unavailable", logging.Error(err))
		return 0
	}
	duration, _ := result.Duration()
	return duration
}

// commandLine renders program and args for pasting into a POSIX shell.
func commandLine(program string, args []string) string {
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, shellQuote(program))
	for _, arg := range args {
		parts = append(parts, shellQuote(arg))
	}
	return strings.Join(parts, " ")
}

func shellQuote(arg string) string {
	if arg == "" {
		return "''"
	}
	if !strings.ContainsAny(arg, " \t\n'\"\\$`|&;<>()*?[]#~{}!") {
		return arg
	}
	return "'" + strings.ReplaceAll(arg, "'", `'\''`) + "'"
}

type runner struct {
	program  string
	logger   *slog.Logger
	errOut   io.Writer
	live     bool
	feedBind string
	tail     bool
	duration time.Duration
	relays   []channelRelay
	in       io.Reader
	out      io.Writer
}

func (r *runner) execute(ctx context.Context, b *ffmpeg.Builder, store *history.Store) error {
	args := b.Argv()

	runID := uuid.NewString()
	if store != nil {
		id, err := store.Begin(context.Background(), r.program, args)
		if err != nil {
			logging.WarnWithContext(r.logger, "run history unavailable", "history_begin_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "this run will not appear in ffpipe history"),
			)
			store = nil
		} else {
			runID = id
		}
	}
	logger := logging.WithContext(logging.WithRunID(ctx, runID), logging.NewComponentLogger(r.logger, "run"))

	hub, stopFeed := r.startFeed(logger)
	defer stopFeed()
	hub.Publish(feed.RunStarted(runID, args))

	started := time.Now()
	command, err := b.Start()
	if err != nil {
		r.finish(logger, store, hub, runID, history.Outcome{Status: history.StatusFailed, Err: err})
		return err
	}
	defer command.Close()

	drainRelays, err := r.startRelays(logger)
	if err != nil {
		_ = command.ForceStop()
		r.finish(logger, store, hub, runID, history.Outcome{Status: history.StatusFailed, Err: err})
		return err
	}

	var tail *tailBuffer
	if r.tail {
		tail = newTailBuffer(stderrTailLines)
		go tail.consume(command.TakeStderr())
	}

	exited := make(chan struct{})
	interrupted := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			close(interrupted)
			logger.Info("stopping ffmpeg", logging.String(logging.FieldAlert, "interrupt received"))
			if err := command.Stop(); err != nil {
				logger.Warn("ffmpeg did not stop cleanly", logging.Error(err))
			}
		case <-exited:
		}
	}()

	last := r.followProgress(logger, hub, runID, command.Progress())

	state, waitErr := command.Wait()
	close(exited)
	drainRelays()
	if tail != nil {
		tail.wait()
	}

	outcome := history.Outcome{Status: history.StatusSucceeded, Last: last}
	if state != nil {
		if code := state.ExitCode(); code >= 0 {
			outcome.ExitCode = &code
		}
	}
	var result error
	select {
	case <-interrupted:
		outcome.Status = history.StatusStopped
		result = &exitStatusError{code: interruptedCode}
	default:
		switch {
		case waitErr != nil:
			outcome.Status = history.StatusFailed
			result = faults.Wrap(faults.ErrIO, "cli", "wait", "", waitErr)
		case outcome.ExitCode == nil || *outcome.ExitCode != 0:
			outcome.Status = history.StatusFailed
			code := 1
			if outcome.ExitCode != nil {
				code = *outcome.ExitCode
			}
			result = &exitStatusError{code: code, tail: tail.lines()}
		}
	}
	outcome.Err = result

	attrs := []logging.Attr{
		logging.String("status", string(outcome.Status)),
		logging.Duration("elapsed", time.Since(started)),
	}
	if outcome.ExitCode != nil {
		attrs = append(attrs, logging.Int("exit_code", *outcome.ExitCode))
	}
	if last != nil && last.TotalSize != nil {
		attrs = append(attrs, logging.Uint64("total_size", *last.TotalSize))
	}
	logger.Info("ffmpeg finished", logging.Args(attrs...)...)

	r.finish(logger, store, hub, runID, outcome)
	return result
}

// startRelays listens on every relay channel and starts copying. The returned
// func blocks until output relays have drained; one that has received nothing
// relayDrainGrace after ffmpeg exited is closed, since ffmpeg never opened it.
func (r *runner) startRelays(logger *slog.Logger) (func(), error) {
	var (
		wg      sync.WaitGroup
		outputs []pipe.Stream
		got     atomic.Bool
	)
	for _, relay := range r.relays {
		stream, err := relay.ch.Listen()
		if err != nil {
			for _, s := range outputs {
				_ = s.Close()
			}
			return nil, err
		}
		if relay.input {
			go r.feedInput(logger, stream)
			continue
		}
		outputs = append(outputs, stream)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := io.Copy(&seenWriter{w: r.out, seen: &got}, stream); err != nil {
				logger.Warn("output relay stopped", logging.Error(err))
			}
		}()
	}
	return func() {
		done := make(chan struct{})
		go func() {
			wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(relayDrainGrace):
			if !got.Load() {
				for _, s := range outputs {
					_ = s.Close()
				}
			}
			<-done
		}
		for _, s := range outputs {
			_ = s.Close()
		}
	}, nil
}

func (r *runner) feedInput(logger *slog.Logger, stream pipe.Stream) {
	_, err := io.Copy(stream, r.in)
	if closeErr := stream.Close(); err == nil {
		err = closeErr
	}
	// ffmpeg is free to stop reading once it has what it needs.
	if err != nil && !errors.Is(err, io.ErrClosedPipe) {
		logger.Warn("input relay stopped", logging.Error(err))
	}
}

type seenWriter struct {
	w    io.Writer
	seen *atomic.Bool
}

func (s *seenWriter) Write(p []byte) (int, error) {
	if len(p) > 0 {
		s.seen.Store(true)
	}
	return s.w.Write(p)
}

// followProgress consumes updates until the monitor closes the channel and
// returns the last snapshot seen.
func (r *runner) followProgress(logger *slog.Logger, hub *feed.Hub, runID string, updates <-chan progress.Snapshot) *progress.Snapshot {
	if updates == nil {
		return nil
	}
	var line *liveLine
	if r.live {
		line = newLiveLine(r.errOut)
		defer line.Finish()
	}
	sampler := logging.NewProgressSampler(logging.DefaultProgressInterval)

	var last *progress.Snapshot
	for snap := range updates {
		last = &snap
		hub.Publish(feed.ProgressUpdate(runID, snap))
		if line != nil {
			line.Update(formatProgressLine(snap, r.duration))
			continue
		}
		elapsed, ok := snap.Elapsed()
		if !ok {
			elapsed = -1
		}
		if sampler.ShouldLog(elapsed, snap.Status.String()) {
			logger.Info("ffmpeg progress", logging.Args(progressAttrs(snap, r.duration)...)...)
		}
	}
	return last
}

func progressAttrs(snap progress.Snapshot, total time.Duration) []logging.Attr {
	attrs := []logging.Attr{logging.String(logging.FieldProgressStatus, snap.Status.String())}
	if elapsed, ok := snap.Elapsed(); ok {
		attrs = append(attrs, logging.Duration(logging.FieldProgressElapsed, elapsed))
	}
	if percent, ok := progressPercent(snap, total); ok {
		attrs = append(attrs, logging.Float64(logging.FieldProgressPercent, percent))
	}
	if snap.Speed != nil {
		attrs = append(attrs, logging.String(logging.FieldProgressSpeed, fmt.Sprintf("%.2fx", *snap.Speed)))
	}
	if snap.Frame != nil {
		attrs = append(attrs, logging.Uint64("frame", *snap.Frame))
	}
	if snap.FPS != nil {
		attrs = append(attrs, logging.Float64("fps", *snap.FPS))
	}
	if snap.TotalSize != nil {
		attrs = append(attrs, logging.Uint64("total_size", *snap.TotalSize))
	}
	return attrs
}

func (r *runner) finish(logger *slog.Logger, store *history.Store, hub *feed.Hub, runID string, outcome history.Outcome) {
	hub.Publish(feed.RunFinished(runID, string(outcome.Status), outcome.ExitCode, outcome.Err))
	if store == nil {
		return
	}
	if err := store.Finish(context.Background(), runID, outcome); err != nil {
		logging.WarnWithContext(logger, "failed to record run outcome", "history_finish_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "ffpipe history shows this run as still running"),
		)
	}
}

// startFeed serves the progress feed for the duration of one run. The
// returned hub is nil when no feed is configured; Publish on a nil hub is a
// no-op.
func (r *runner) startFeed(logger *slog.Logger) (*feed.Hub, func()) {
	if r.feedBind == "" {
		return nil, func() {}
	}
	hub := feed.NewHub(logger)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		err := feed.Serve(ctx, r.feedBind, hub, func(addr net.Addr) {
			logger.Info("progress feed listening", logging.String("url", "ws://"+addr.String()+"/ws"))
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.WarnWithContext(logger, "progress feed stopped", "feed_serve_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "observers will not receive live progress"),
				logging.String(logging.FieldErrorHint, "choose a free address for feed.bind"),
			)
		}
	}()
	return hub, func() {
		cancel()
		<-done
	}
}

// tailBuffer keeps the last lines ffmpeg wrote to stderr for error reports.
type tailBuffer struct {
	max  int
	buf  []string
	done chan struct{}
}

func newTailBuffer(max int) *tailBuffer {
	return &tailBuffer{max: max, done: make(chan struct{})}
}

func (t *tailBuffer) consume(r io.ReadCloser) {
	defer close(t.done)
	if r == nil {
		return
	}
	defer r.Close()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		t.buf = append(t.buf, line)
		if len(t.buf) > t.max {
			t.buf = t.buf[len(t.buf)-t.max:]
		}
	}
}

func (t *tailBuffer) wait() {
	<-t.done
}

func (t *tailBuffer) lines() []string {
	if t == nil {
		return nil
	}
	return t.buf
}
