package progress

import (
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"ffpipe/internal/faults"
	"ffpipe/internal/logging"
	"ffpipe/internal/pipe"
)

const (
	// DefaultCapacity bounds the delivery channel returned by Updates.
	DefaultCapacity = 128
	// DefaultChunkSize is the size of each read from the progress channel.
	DefaultChunkSize = 1024
)

// Option configures a Monitor.
type Option func(*Monitor)

// WithCapacity sets the buffer size of the Updates channel.
func WithCapacity(n int) Option {
	return func(m *Monitor) {
		if n > 0 {
			m.capacity = n
		}
	}
}

// WithChunkSize sets how many bytes are requested per read.
func WithChunkSize(n int) Option {
	return func(m *Monitor) {
		if n > 0 {
			m.chunkSize = n
		}
	}
}

// WithLogger attaches a logger for read failures.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Monitor) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// Monitor owns a progress channel and turns its bytes into Snapshots.
//
// A reader goroutine drains the channel into an unbounded queue; a forwarder
// goroutine moves queued snapshots into the bounded Updates channel. A slow
// consumer therefore blocks only the forwarder, never the read loop.
type Monitor struct {
	capacity  int
	chunkSize int
	logger    *slog.Logger
	path      string

	updates  chan Snapshot
	done     chan struct{}
	readDone chan struct{}
	quit     chan struct{}
	signal   chan struct{}

	closeOnce   sync.Once
	releaseOnce sync.Once

	mu       sync.Mutex
	queue    []Snapshot
	finished bool
	released bool
	stream   pipe.Stream
	err      error
}

// Start listens on ch in the background and begins delivering snapshots.
// The monitor takes ownership of ch.
func Start(ch *pipe.Channel, opts ...Option) *Monitor {
	m := &Monitor{
		capacity:  DefaultCapacity,
		chunkSize: DefaultChunkSize,
		logger:    logging.NewNop(),
		path:      ch.Path(),
		done:      make(chan struct{}),
		readDone:  make(chan struct{}),
		quit:      make(chan struct{}),
		signal:    make(chan struct{}, 1),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	m.logger = logging.NewComponentLogger(m.logger, "progress")
	m.updates = make(chan Snapshot, m.capacity)

	go m.read(ch)
	go m.forward()
	return m
}

// Updates delivers snapshots in the order ffmpeg wrote them. It is closed
// after the terminal record, when the channel ends, or after Close.
func (m *Monitor) Updates() <-chan Snapshot {
	return m.updates
}

// Done is closed once Updates has been closed.
func (m *Monitor) Done() <-chan struct{} {
	return m.done
}

// Err reports a listen or read failure. A peer that simply went away is not
// an error.
func (m *Monitor) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

// Path returns the address passed to ffmpeg.
func (m *Monitor) Path() string {
	return m.path
}

// Close abandons delivery and releases the channel.
func (m *Monitor) Close() error {
	m.closeOnce.Do(func() {
		close(m.quit)
		m.mu.Lock()
		stream := m.stream
		finished := m.finished
		m.mu.Unlock()
		switch {
		case stream != nil:
			_ = stream.Close()
		case !finished:
			go m.unblockListen()
		}
	})
	return nil
}

// Release tells the monitor that no writer will arrive any more, typically
// because ffmpeg exited. Reading continues for up to grace so that records
// still in flight are delivered; after that the channel is closed. Unlike
// Close, records already read are not discarded.
func (m *Monitor) Release(grace time.Duration) {
	m.releaseOnce.Do(func() {
		go func() {
			timer := time.NewTimer(grace)
			defer timer.Stop()
			select {
			case <-m.readDone:
				return
			case <-m.quit:
				return
			case <-timer.C:
			}
			m.mu.Lock()
			m.released = true
			stream := m.stream
			m.mu.Unlock()
			if stream != nil {
				m.logger.Debug("progress writer gone without end record", logging.String("path", m.path))
				_ = stream.Close()
				return
			}
			m.unblockListen()
		}()
	})
}

func (m *Monitor) read(ch *pipe.Channel) {
	defer m.finish()

	stream, err := ch.Listen()
	if err != nil {
		m.fail("listen", err)
		return
	}
	m.mu.Lock()
	m.stream = stream
	released := m.released
	m.mu.Unlock()
	defer stream.Close()

	if released {
		return
	}
	select {
	case <-m.quit:
		return
	default:
	}

	var fr framer
	buf := make([]byte, m.chunkSize)
	for {
		n, err := stream.Read(buf)
		if n > 0 {
			for _, record := range fr.push(buf[:n]) {
				snap := Parse(record)
				m.enqueue(snap)
				if snap.Terminal() {
					return
				}
			}
		}
		if err != nil {
			if rest := fr.flush(); strings.TrimSpace(rest) != "" {
				m.enqueue(Parse(rest))
			}
			if errors.Is(err, io.EOF) {
				m.logger.Debug("progress channel closed before end record")
				return
			}
			select {
			case <-m.quit:
			default:
				m.fail("read", err)
			}
			return
		}
	}
}

func (m *Monitor) forward() {
	defer close(m.done)
	defer close(m.updates)
	for {
		snap, ok, finished := m.next()
		if ok {
			select {
			case m.updates <- snap:
			case <-m.quit:
				return
			}
			continue
		}
		if finished {
			return
		}
		select {
		case <-m.signal:
		case <-m.quit:
			return
		}
	}
}

func (m *Monitor) enqueue(snap Snapshot) {
	m.mu.Lock()
	m.queue = append(m.queue, snap)
	m.mu.Unlock()
	m.notify()
}

func (m *Monitor) next() (Snapshot, bool, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.queue) == 0 {
		return Snapshot{}, false, m.finished
	}
	snap := m.queue[0]
	m.queue[0] = Snapshot{}
	m.queue = m.queue[1:]
	return snap, true, false
}

func (m *Monitor) finish() {
	m.mu.Lock()
	m.finished = true
	m.mu.Unlock()
	close(m.readDone)
	m.notify()
}

func (m *Monitor) notify() {
	select {
	case m.signal <- struct{}{}:
	default:
	}
}

func (m *Monitor) fail(op string, err error) {
	wrapped := faults.Wrap(faults.ErrIO, "progress", op, m.path, err)
	m.mu.Lock()
	m.err = wrapped
	m.mu.Unlock()
	logging.WarnWithContext(m.logger, "progress monitoring stopped",
		"progress_"+op+"_failed",
		logging.Error(err),
		logging.String("path", m.path),
		logging.String(logging.FieldImpact, "no further progress updates for this run"),
	)
}

// unblockListen connects to the channel once so a listener still waiting for
// ffmpeg can return after Close.
func (m *Monitor) unblockListen() {
	s, err := pipe.Connect(m.path)
	if err != nil {
		return
	}
	_ = s.Close()
}
