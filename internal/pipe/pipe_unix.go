//go:build !windows

package pipe

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

const fifoSuffix = ".pipe"

func pathForName(name string) string {
	return filepath.Join(os.TempDir(), name+fifoSuffix)
}

type endpoint struct {
	path string
}

func createEndpoint(path string) (*endpoint, error) {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("remove stale node: %w", err)
	}
	if err := unix.Mkfifo(path, 0o777); err != nil {
		return nil, fmt.Errorf("mkfifo: %w", err)
	}
	return &endpoint{path: path}, nil
}

func (e *endpoint) listen() (Stream, error) {
	return openFIFO(e.path, true)
}

func (e *endpoint) close() error {
	if err := os.Remove(e.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func dial(path string) (Stream, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.Mode()&fs.ModeNamedPipe == 0 {
		return nil, fmt.Errorf("%s is not a fifo", path)
	}
	return openFIFO(path, false)
}

// readerWait bounds how long a writing stream waits for its peer to open the
// node, both while filling the pipe buffer and on Close.
var readerWait = 10 * time.Second

const readerPoll = 10 * time.Millisecond

var errNoReader = errors.New("no reader opened the channel")

// fifoStream holds the node open read-write so that neither side blocks on
// open and a reader never sees end-of-stream before its peer arrives. Once a
// read-only user has received data the keep-alive descriptor is dropped, which
// turns the peer's close into io.EOF.
//
// A writing stream moves to a write-only descriptor and drops the keep-alive
// as soon as a peer reader shows up, so a vanished reader surfaces as
// io.ErrClosedPipe. Until then written bytes sit in the pipe buffer and Close
// waits for the peer before letting go of them.
type fifoStream struct {
	path  string
	owner bool

	wmu sync.Mutex

	mu       sync.Mutex
	rw       *os.File
	rd       *os.File
	wr       *os.File
	wrote    bool
	pending  bool
	peer     bool
	released bool
	closed   bool
}

func openFIFO(path string, owner bool) (*fifoStream, error) {
	rw, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, err
	}
	return &fifoStream{path: path, owner: owner, rw: rw}, nil
}

func (s *fifoStream) Read(p []byte) (int, error) {
	rd, err := s.reader()
	if err != nil {
		if errors.Is(err, os.ErrClosed) {
			return 0, io.EOF
		}
		return 0, err
	}
	n, err := rd.Read(p)
	if n > 0 {
		s.releaseKeepAlive()
	}
	if err != nil {
		if errors.Is(err, io.EOF) {
			return n, io.EOF
		}
		if errors.Is(err, os.ErrClosed) && s.isClosed() {
			return n, io.EOF
		}
		return n, err
	}
	return n, nil
}

func (s *fifoStream) Write(p []byte) (int, error) {
	s.wmu.Lock()
	defer s.wmu.Unlock()

	w, duplex, err := s.writer()
	if err != nil {
		return 0, err
	}
	if duplex {
		return w.Write(p)
	}

	var written int
	start := time.Now()
	for {
		peer, err := s.checkPeer()
		if err != nil {
			return written, writeError(err)
		}
		if peer {
			_ = w.SetWriteDeadline(time.Time{})
		} else {
			if time.Since(start) > readerWait {
				return written, errNoReader
			}
			_ = w.SetWriteDeadline(time.Now().Add(readerPoll))
		}
		n, err := w.Write(p[written:])
		if n > 0 && !peer {
			s.markPending()
		}
		written += n
		if err == nil {
			return written, nil
		}
		if !peer && errors.Is(err, os.ErrDeadlineExceeded) {
			continue
		}
		return written, writeError(err)
	}
}

func (s *fifoStream) Close() error {
	var errs []error
	s.mu.Lock()
	pending := !s.closed && s.pending && !s.peer
	s.mu.Unlock()
	if pending {
		if err := s.awaitReader(); err != nil {
			errs = append(errs, err)
		}
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	rw, rd, wr := s.rw, s.rd, s.wr
	s.rw, s.rd, s.wr = nil, nil, nil
	s.mu.Unlock()

	for _, f := range []*os.File{rd, wr, rw} {
		if f != nil {
			errs = append(errs, f.Close())
		}
	}
	// A peer that already opened the node keeps its descriptor, so the
	// unlink cannot take unread bytes with it.
	if s.owner {
		if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *fifoStream) reader() (*os.File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, os.ErrClosed
	}
	if s.rd != nil {
		return s.rd, nil
	}
	// The read-write descriptor counts as a writer, so this open never blocks.
	rd, err := os.OpenFile(s.path, os.O_RDONLY, 0)
	if err != nil {
		return nil, err
	}
	s.rd = rd
	return rd, nil
}

// writer returns the descriptor writes go through. A stream that also reads
// keeps writing through the keep-alive since its own reader hides the peer.
func (s *fifoStream) writer() (*os.File, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, false, os.ErrClosed
	}
	s.wrote = true
	if s.rw == nil && !s.peer {
		rw, err := os.OpenFile(s.path, os.O_RDWR, 0)
		if err != nil {
			return nil, false, err
		}
		s.rw = rw
		s.released = false
	}
	if s.rd != nil {
		return s.rw, true, nil
	}
	if s.wr == nil {
		// The keep-alive counts as a reader, so this open cannot fail with ENXIO.
		wr, err := os.OpenFile(s.path, os.O_WRONLY|unix.O_NONBLOCK, 0)
		if err != nil {
			return nil, false, err
		}
		s.wr = wr
	}
	return s.wr, false, nil
}

// checkPeer reports whether a reader other than this stream has the node
// open. On the first positive answer the keep-alive is dropped for good.
func (s *fifoStream) checkPeer() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, os.ErrClosed
	}
	if s.peer {
		return true, nil
	}
	// The keep-alive is itself a reader; the write-only descriptor keeps the
	// buffer alive while it is briefly gone.
	if s.rw != nil {
		_ = s.rw.Close()
		s.rw = nil
	}
	fd, err := unix.Open(s.path, unix.O_WRONLY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err == nil {
		_ = unix.Close(fd)
		s.peer = true
		s.released = true
		return true, nil
	}
	rw, openErr := os.OpenFile(s.path, os.O_RDWR, 0)
	if openErr != nil {
		return false, openErr
	}
	s.rw = rw
	if !errors.Is(err, unix.ENXIO) {
		return false, err
	}
	return false, nil
}

func (s *fifoStream) awaitReader() error {
	deadline := time.Now().Add(readerWait)
	for {
		peer, err := s.checkPeer()
		if err != nil {
			return err
		}
		if peer {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%w; buffered data dropped", errNoReader)
		}
		time.Sleep(readerPoll)
	}
}

func (s *fifoStream) markPending() {
	s.mu.Lock()
	s.pending = true
	s.mu.Unlock()
}

func (s *fifoStream) releaseKeepAlive() {
	s.mu.Lock()
	if s.released || s.wrote || s.rw == nil {
		s.mu.Unlock()
		return
	}
	rw := s.rw
	s.rw = nil
	s.released = true
	s.mu.Unlock()
	_ = rw.Close()
}

func (s *fifoStream) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func writeError(err error) error {
	if errors.Is(err, unix.EPIPE) || errors.Is(err, os.ErrClosed) {
		return io.ErrClosedPipe
	}
	return err
}
