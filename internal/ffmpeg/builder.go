package ffmpeg

import (
	"fmt"
	"slices"

	"ffpipe/internal/faults"
	"ffpipe/internal/fileutil"
	"ffpipe/internal/logging"
	"ffpipe/internal/pipe"
)

const component = "ffmpeg"

const noCursor = -1

// state is shared by a Builder and the StreamBuilders it hands out.
type state struct {
	program string
	opts    options

	args   []string
	cursor int
	open   int
	nextID int

	stdin, stdout, stderr Stdio

	channels []*pipe.Channel
	inputs   []*Buffer
	progress *pipe.Channel

	err     error
	started bool
}

// Builder is the between-streams view of an invocation: whole-process options,
// stream declarations, and Start.
type Builder struct {
	s *state
}

// StreamBuilder describes the input or output most recently declared. Its
// modifiers are only valid until Done.
type StreamBuilder struct {
	s   *state
	id  int
	ch  *pipe.Channel
	buf *Buffer
}

// New returns a Builder for program with all standard streams piped.
func New(program string, opts ...Option) *Builder {
	o := defaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	o.logger = logging.NewComponentLogger(o.logger, component)
	return &Builder{s: &state{
		program: program,
		opts:    o,
		cursor:  noCursor,
		stdin:   Piped(),
		stdout:  Piped(),
		stderr:  Piped(),
	}}
}

// Err returns the first recorded failure.
func (b *Builder) Err() error {
	return b.s.err
}

// Argv returns a copy of the accumulated arguments.
func (b *Builder) Argv() []string {
	return slices.Clone(b.s.args)
}

// Inspect passes a copy of the accumulated arguments to fn.
func (b *Builder) Inspect(fn func(args []string)) *Builder {
	if fn != nil {
		fn(b.Argv())
	}
	return b
}

// Discard frees the channels and staged buffers the builder created without
// starting ffmpeg. The builder cannot be started afterwards.
func (b *Builder) Discard() {
	if b.s.started {
		return
	}
	b.s.started = true
	b.s.release()
}

// Arg appends a whole-process argument at the end of the vector.
func (b *Builder) Arg(arg string) *Builder {
	if b.s.check(0, "arg") {
		b.s.args = append(b.s.args, arg)
	}
	return b
}

// Args appends each argument in order.
func (b *Builder) Args(args ...string) *Builder {
	if b.s.check(0, "args") {
		b.s.args = append(b.s.args, args...)
	}
	return b
}

// Stdin configures the child's standard input.
func (b *Builder) Stdin(cfg Stdio) *Builder {
	if b.s.check(0, "stdin") {
		b.s.stdin = cfg
	}
	return b
}

// Stdout configures the child's standard output.
func (b *Builder) Stdout(cfg Stdio) *Builder {
	if b.s.check(0, "stdout") {
		b.s.stdout = cfg
	}
	return b
}

// Stderr configures the child's standard error.
func (b *Builder) Stderr(cfg Stdio) *Builder {
	if b.s.check(0, "stderr") {
		b.s.stderr = cfg
	}
	return b
}

// InputFile declares an input read from path.
func (b *Builder) InputFile(path string) *StreamBuilder {
	return b.declare("input", "-i", path, nil, nil)
}

// OutputFile declares an output written to path, overwriting it.
func (b *Builder) OutputFile(path string) *StreamBuilder {
	return b.declare("output", "-y", path, nil, nil)
}

// InputBytes stages data in a temp file and declares it as an input. The file
// is removed when the started Command is closed.
func (b *Builder) InputBytes(data []byte) *StreamBuilder {
	if !b.s.check(0, "input bytes") {
		return b.detached()
	}
	buf, err := b.s.stage(data)
	if err != nil {
		b.s.fail(faults.Wrap(faults.ErrIO, component, "input bytes", "stage temp file", err))
		return b.detached()
	}
	b.s.inputs = append(b.s.inputs, buf)
	return b.declare("input", "-i", buf.path, nil, buf)
}

// OutputBuffer declares an output captured in a temp file. Read it through
// StreamBuilder.Buffer once the command has exited; the caller closes it.
func (b *Builder) OutputBuffer() *StreamBuilder {
	if !b.s.check(0, "output buffer") {
		return b.detached()
	}
	buf, err := b.s.stage(nil)
	if err != nil {
		b.s.fail(faults.Wrap(faults.ErrIO, component, "output buffer", "stage temp file", err))
		return b.detached()
	}
	return b.declare("output", "-y", buf.path, nil, buf)
}

// InputChannel creates a named channel and declares it as an input. The caller
// listens on StreamBuilder.Channel and writes the media bytes.
func (b *Builder) InputChannel() *StreamBuilder {
	return b.declareChannel("input", "-i")
}

// OutputChannel creates a named channel and declares it as an output. The
// caller listens on StreamBuilder.Channel and reads the produced bytes.
func (b *Builder) OutputChannel() *StreamBuilder {
	return b.declareChannel("output", "-y")
}

// WithProgress creates the progress channel and points -progress at it. The
// option is placed at the front of the vector because ffmpeg ignores options
// that trail the last output.
func (b *Builder) WithProgress() *Builder {
	if !b.s.check(0, "progress") {
		return b
	}
	if b.s.progress != nil {
		b.s.fail(faults.Wrap(faults.ErrStateViolation, component, "progress", "progress already requested", nil))
		return b
	}
	ch, err := pipe.Create()
	if err != nil {
		b.s.fail(err)
		return b
	}
	b.s.progress = ch
	b.s.args = slices.Insert(b.s.args, 0, "-progress", ch.Path())
	return b
}

func (b *Builder) declareChannel(kind, flag string) *StreamBuilder {
	if !b.s.check(0, kind+" channel") {
		return b.detached()
	}
	ch, err := pipe.Create()
	if err != nil {
		b.s.fail(err)
		return b.detached()
	}
	b.s.channels = append(b.s.channels, ch)
	return b.declare(kind, flag, ch.Path(), ch, nil)
}

func (b *Builder) declare(kind, flag, target string, ch *pipe.Channel, buf *Buffer) *StreamBuilder {
	if !b.s.check(0, kind) {
		return b.detached()
	}
	b.s.nextID++
	b.s.open = b.s.nextID
	b.s.cursor = len(b.s.args)
	b.s.args = append(b.s.args, flag, target)
	b.s.opts.logger.Debug("stream declared",
		logging.String("kind", kind),
		logging.String("target", target),
		logging.Int("cursor", b.s.cursor),
	)
	return &StreamBuilder{s: b.s, id: b.s.open, ch: ch, buf: buf}
}

// detached returns a StreamBuilder that matches no open description, so every
// call on it is ignored behind the recorded error.
func (b *Builder) detached() *StreamBuilder {
	return &StreamBuilder{s: b.s, id: noCursor}
}

// Channel returns the named channel behind a channel declaration, or nil.
func (sb *StreamBuilder) Channel() *pipe.Channel {
	return sb.ch
}

// Buffer returns the staging buffer behind a bytes or buffer declaration, or
// nil.
func (sb *StreamBuilder) Buffer() *Buffer {
	return sb.buf
}

// Err returns the first recorded failure.
func (sb *StreamBuilder) Err() error {
	return sb.s.err
}

// Arg inserts arg before the stream token and advances the cursor, so repeated
// modifiers keep their call order.
func (sb *StreamBuilder) Arg(arg string) *StreamBuilder {
	if sb.s.check(sb.id, "arg") {
		sb.s.insert(arg)
	}
	return sb
}

// Args inserts each argument as Arg does.
func (sb *StreamBuilder) Args(args ...string) *StreamBuilder {
	if sb.s.check(sb.id, "args") {
		sb.s.insert(args...)
	}
	return sb
}

// Format inserts -f at the cursor without advancing it. A later Format call
// lands in front of earlier modifiers.
func (sb *StreamBuilder) Format(format string) *StreamBuilder {
	if sb.s.check(sb.id, "format") {
		sb.s.args = slices.Insert(sb.s.args, sb.s.cursor, "-f", format)
	}
	return sb
}

// CodecAudio sets the audio codec of the stream.
func (sb *StreamBuilder) CodecAudio(codec string) *StreamBuilder {
	return sb.Args("-c:a", codec)
}

// CodecVideo sets the video codec of the stream.
func (sb *StreamBuilder) CodecVideo(codec string) *StreamBuilder {
	return sb.Args("-c:v", codec)
}

// Done closes the description and returns to the Builder.
func (sb *StreamBuilder) Done() *Builder {
	if sb.s.check(sb.id, "done") {
		sb.s.open = 0
		sb.s.cursor = noCursor
	}
	return &Builder{s: sb.s}
}

// check reports whether a call made through a handle bound to id may mutate
// the state. id 0 is the Builder itself.
func (s *state) check(id int, op string) bool {
	if s.err != nil {
		return false
	}
	switch {
	case s.started:
		s.fail(faults.Wrap(faults.ErrStateViolation, component, op, "builder already started", nil))
	case id == 0 && s.open != 0:
		s.fail(faults.Wrap(faults.ErrStateViolation, component, op, "a stream description is still open; call Done first", nil))
	case id != 0 && id != s.open:
		s.fail(faults.Wrap(faults.ErrStateViolation, component, op, "stream description already finished", nil))
	default:
		return true
	}
	return false
}

func (s *state) fail(err error) {
	if s.err == nil {
		s.err = err
		s.opts.logger.Debug("builder error recorded", logging.Error(err))
	}
}

func (s *state) insert(args ...string) {
	s.args = slices.Insert(s.args, s.cursor, args...)
	s.cursor += len(args)
}

func (s *state) stage(data []byte) (*Buffer, error) {
	path := fileutil.RandomTempPath(s.opts.tempDir, "")
	f, err := fileutil.CreateExclusive(path, 0o600)
	if err != nil {
		return nil, err
	}
	if len(data) > 0 {
		if _, err := f.Write(data); err != nil {
			_ = f.Close()
			_ = removeQuietly(path)
			return nil, fmt.Errorf("write staged input: %w", err)
		}
	}
	if err := f.Close(); err != nil {
		_ = removeQuietly(path)
		return nil, err
	}
	return &Buffer{path: path}, nil
}

// release frees everything the builder created when no Command will own it.
func (s *state) release() {
	for _, ch := range s.channels {
		_ = ch.Close()
	}
	if s.progress != nil {
		_ = s.progress.Close()
	}
	for _, buf := range s.inputs {
		_ = buf.Close()
	}
}
