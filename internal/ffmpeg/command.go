package ffmpeg

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"runtime"
	"slices"
	"sync"
	"time"

	"ffpipe/internal/faults"
	"ffpipe/internal/logging"
	"ffpipe/internal/progress"
)

// Start spawns ffmpeg with the accumulated arguments and consumes the builder.
func (b *Builder) Start() (*Command, error) {
	s := b.s
	if s.started {
		return nil, faults.Wrap(faults.ErrStateViolation, component, "start", "builder already started", nil)
	}
	if s.err == nil && s.open != 0 {
		s.fail(faults.Wrap(faults.ErrStateViolation, component, "start", "a stream description is still open; call Done first", nil))
	}
	s.started = true
	if s.err != nil {
		s.release()
		return nil, s.err
	}
	c, err := spawn(s)
	if err != nil {
		s.release()
		return nil, err
	}
	return c, nil
}

// Command owns a running ffmpeg process and the parent ends of its standard
// streams.
type Command struct {
	p         *process
	args      []string
	logger    *slog.Logger
	stopGrace time.Duration
	monitor   *progress.Monitor
	inputs    []*Buffer
	release   func()

	mu     sync.Mutex
	stdin  *os.File
	stdout *os.File
	stderr *os.File

	closeOnce sync.Once
	cleanup   runtime.Cleanup
}

// process is kept apart from Command so the cleanup attached to a dropped
// Command can still reach it.
type process struct {
	cmd     *exec.Cmd
	grouped bool
	logger  *slog.Logger

	done  chan struct{}
	state *os.ProcessState
	err   error
}

func spawn(s *state) (*Command, error) {
	args := slices.Clone(s.args)
	cmd := exec.Command(s.program, args...)
	cmd.Env = s.opts.env
	cmd.Dir = s.opts.dir
	grouped := s.stdin.kind != stdioInherit
	configureProcess(cmd, grouped)

	var childEnds, parentEnds []*os.File
	closeAll := func(files []*os.File) {
		for _, f := range files {
			_ = f.Close()
		}
	}
	connect := func(cfg Stdio, inherit *os.File, childReads bool) (*os.File, *os.File, error) {
		child, parent, err := cfg.endpoints(inherit, childReads)
		if err != nil {
			return nil, nil, err
		}
		if parent != nil {
			childEnds = append(childEnds, child)
			parentEnds = append(parentEnds, parent)
		}
		return child, parent, nil
	}

	stdinChild, stdinParent, err := connect(s.stdin, os.Stdin, true)
	if err == nil && stdinChild != nil {
		cmd.Stdin = stdinChild
	}
	var stdoutChild, stdoutParent, stderrChild, stderrParent *os.File
	if err == nil {
		stdoutChild, stdoutParent, err = connect(s.stdout, os.Stdout, false)
		if err == nil && stdoutChild != nil {
			cmd.Stdout = stdoutChild
		}
	}
	if err == nil {
		stderrChild, stderrParent, err = connect(s.stderr, os.Stderr, false)
		if err == nil && stderrChild != nil {
			cmd.Stderr = stderrChild
		}
	}
	if err != nil {
		closeAll(childEnds)
		closeAll(parentEnds)
		return nil, faults.Wrap(faults.ErrIO, component, "start", "create stdio pipes", err)
	}

	if err := cmd.Start(); err != nil {
		closeAll(childEnds)
		closeAll(parentEnds)
		return nil, faults.Wrap(faults.ErrSpawnFailed, component, "start", s.program, err)
	}
	closeAll(childEnds)

	logger := s.opts.logger
	p := &process{cmd: cmd, grouped: grouped, logger: logger, done: make(chan struct{})}
	go p.reap()

	c := &Command{
		p:         p,
		args:      args,
		logger:    logger,
		stopGrace: s.opts.stopGrace,
		inputs:    s.inputs,
		stdin:     stdinParent,
		stdout:    stdoutParent,
		stderr:    stderrParent,
	}
	channels := s.channels
	c.release = func() {
		for _, ch := range channels {
			_ = ch.Close()
		}
	}
	if s.progress != nil {
		c.monitor = progress.Start(s.progress,
			progress.WithCapacity(s.opts.progressCapacity),
			progress.WithChunkSize(s.opts.progressChunk),
			progress.WithLogger(logger),
		)
		go func(m *progress.Monitor) {
			<-p.done
			m.Release(progressDrainGrace)
		}(c.monitor)
	}
	c.cleanup = runtime.AddCleanup(c, func(p *process) {
		if err := p.kill(); err != nil {
			p.logger.Debug("kill of dropped ffmpeg handle failed", logging.Error(err))
		}
	}, p)

	logger.Info("ffmpeg started",
		logging.Int("pid", cmd.Process.Pid),
		logging.String("program", s.program),
		logging.Any("args", args),
	)
	return c, nil
}

func (p *process) reap() {
	err := p.cmd.Wait()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		err = nil
	}
	p.state = p.cmd.ProcessState
	if err != nil {
		p.err = faults.Wrap(faults.ErrIO, component, "wait", "", err)
	}
	if p.state != nil {
		p.logger.Debug("ffmpeg exited",
			logging.Int("pid", p.state.Pid()),
			logging.Int("exit_code", p.state.ExitCode()),
		)
	}
	close(p.done)
}

func (p *process) exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

func (p *process) kill() error {
	if p.exited() {
		return nil
	}
	err := killProcess(p.cmd.Process, p.grouped)
	if err == nil || errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}

// PID returns the operating-system process id.
func (c *Command) PID() int {
	return c.p.cmd.Process.Pid
}

// Args returns the argument vector ffmpeg was started with.
func (c *Command) Args() []string {
	return slices.Clone(c.args)
}

// Exited reports whether the process has been reaped.
func (c *Command) Exited() bool {
	return c.p.exited()
}

// Wait blocks until the process exits. A non-zero exit is reported through
// the returned state, not as an error.
func (c *Command) Wait() (*os.ProcessState, error) {
	<-c.p.done
	return c.p.state, c.p.err
}

// WaitContext is Wait bounded by ctx. The process keeps running when ctx ends.
func (c *Command) WaitContext(ctx context.Context) (*os.ProcessState, error) {
	select {
	case <-c.p.done:
		return c.p.state, c.p.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Progress delivers parsed progress records, or nil when WithProgress was not
// requested. The channel closes after the end record, or shortly after ffmpeg
// exits when it never sends one.
func (c *Command) Progress() <-chan progress.Snapshot {
	if c.monitor == nil {
		return nil
	}
	return c.monitor.Updates()
}

// ProgressErr reports a failure of the progress side channel.
func (c *Command) ProgressErr() error {
	if c.monitor == nil {
		return nil
	}
	return c.monitor.Err()
}

// TakeStdin hands the write end of a piped stdin to the caller. Later calls
// return nil. Once taken, Stop can no longer ask ffmpeg to quit and falls
// back to killing it.
func (c *Command) TakeStdin() io.WriteCloser {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stdin == nil {
		return nil
	}
	f := c.stdin
	c.stdin = nil
	return f
}

// TakeStdout hands the read end of a piped stdout to the caller. Later calls
// return nil.
func (c *Command) TakeStdout() io.ReadCloser {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stdout == nil {
		return nil
	}
	f := c.stdout
	c.stdout = nil
	return f
}

// TakeStderr hands the read end of a piped stderr to the caller. Later calls
// return nil.
func (c *Command) TakeStderr() io.ReadCloser {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stderr == nil {
		return nil
	}
	f := c.stderr
	c.stderr = nil
	return f
}

// Stop asks ffmpeg to quit by writing q to its stdin and waits for it to
// exit. If the request cannot be delivered or ffmpeg outlives the grace
// period, the process is killed. Stop never returns while the process runs.
func (c *Command) Stop() error {
	if c.p.exited() {
		return nil
	}

	c.mu.Lock()
	stdin := c.stdin
	c.stdin = nil
	c.mu.Unlock()

	var writeErr error
	if stdin == nil {
		writeErr = faults.Wrap(faults.ErrIO, component, "stop", "stdin is not available to send quit", nil)
		logging.WarnWithContext(c.logger, "graceful stop unavailable", "stop_without_stdin",
			logging.Int("pid", c.PID()),
			logging.String(logging.FieldImpact, "ffmpeg is killed without finalizing its outputs"),
			logging.String(logging.FieldErrorHint, "keep stdin piped to allow a graceful stop"),
		)
	} else {
		_, err := stdin.Write([]byte("q"))
		_ = stdin.Close()
		if err != nil {
			writeErr = faults.Wrap(faults.ErrIO, component, "stop", "send quit", err)
		}
	}

	if writeErr == nil {
		timer := time.NewTimer(c.stopGrace)
		defer timer.Stop()
		select {
		case <-c.p.done:
			c.logger.Debug("ffmpeg stopped gracefully", logging.Int("pid", c.PID()))
			return nil
		case <-timer.C:
			logging.WarnWithContext(c.logger, "ffmpeg ignored quit request", "stop_grace_expired",
				logging.Int("pid", c.PID()),
				logging.Duration("grace", c.stopGrace),
				logging.String(logging.FieldImpact, "ffmpeg is killed and outputs may be incomplete"),
			)
		}
	}
	return errors.Join(writeErr, c.terminate())
}

// ForceStop kills the process without a grace period and reaps it.
func (c *Command) ForceStop() error {
	if c.p.exited() {
		return nil
	}
	return c.terminate()
}

// Close kills the process if it is still running, then releases the stream
// ends that were not taken, the progress monitor, unlistened channels, and
// staged input files.
func (c *Command) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cleanup.Stop()
		if !c.p.exited() {
			c.logger.Debug("closing running ffmpeg", logging.Int("pid", c.PID()))
		}
		err = c.terminate()

		c.mu.Lock()
		files := []*os.File{c.stdin, c.stdout, c.stderr}
		c.stdin, c.stdout, c.stderr = nil, nil, nil
		c.mu.Unlock()
		for _, f := range files {
			if f != nil {
				_ = f.Close()
			}
		}

		if c.monitor != nil {
			_ = c.monitor.Close()
		}
		if c.release != nil {
			c.release()
		}
		for _, buf := range c.inputs {
			_ = buf.Close()
		}
	})
	return err
}

func (c *Command) terminate() error {
	err := c.p.kill()
	<-c.p.done
	if err != nil {
		return faults.Wrap(faults.ErrIO, component, "kill", "", err)
	}
	return nil
}
