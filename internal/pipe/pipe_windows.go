//go:build windows

package pipe

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"golang.org/x/sys/windows"
)

const (
	pipePrefix     = `\\.\pipe\`
	pipeBufferSize = 65536
	pipeTimeoutMS  = 50

	dialTimeout  = 5 * time.Second
	dialMinDelay = 5 * time.Millisecond
	dialMaxDelay = 250 * time.Millisecond
)

func pathForName(name string) string {
	return pipePrefix + name
}

// endpoint keeps one unconnected server instance ready. Every accept hands the
// ready instance to the caller and rotates a fresh one in behind it, so the
// same name can serve repeated connection cycles.
type endpoint struct {
	path string
	name *uint16

	mu   sync.Mutex
	next windows.Handle
}

func createEndpoint(path string) (*endpoint, error) {
	name, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return nil, err
	}
	h, err := createInstance(name, true)
	if err != nil {
		return nil, err
	}
	return &endpoint{path: path, name: name, next: h}, nil
}

func createInstance(name *uint16, first bool) (windows.Handle, error) {
	flags := uint32(windows.PIPE_ACCESS_DUPLEX)
	if first {
		flags |= windows.FILE_FLAG_FIRST_PIPE_INSTANCE
	}
	h, err := windows.CreateNamedPipe(
		name,
		flags,
		windows.PIPE_TYPE_BYTE|windows.PIPE_READMODE_BYTE|windows.PIPE_WAIT,
		windows.PIPE_UNLIMITED_INSTANCES,
		pipeBufferSize,
		pipeBufferSize,
		pipeTimeoutMS,
		nil,
	)
	if err != nil {
		return windows.InvalidHandle, fmt.Errorf("create named pipe: %w", err)
	}
	return h, nil
}

func (e *endpoint) accept() (Stream, error) {
	e.mu.Lock()
	h := e.next
	if h == windows.InvalidHandle {
		e.mu.Unlock()
		return nil, errors.New("endpoint closed")
	}
	next, err := createInstance(e.name, false)
	if err != nil {
		e.mu.Unlock()
		return nil, err
	}
	e.next = next
	e.mu.Unlock()

	if err := windows.ConnectNamedPipe(h, nil); err != nil && !errors.Is(err, windows.ERROR_PIPE_CONNECTED) {
		_ = windows.CloseHandle(h)
		return nil, fmt.Errorf("connect named pipe: %w", err)
	}
	return &handleStream{h: h, server: true}, nil
}

func (e *endpoint) listen() (Stream, error) {
	s, err := e.accept()
	if err != nil {
		_ = e.close()
		return nil, err
	}
	// A listened channel is consumed; the spare instance has no future user.
	_ = e.close()
	return s, nil
}

func (e *endpoint) close() error {
	e.mu.Lock()
	h := e.next
	e.next = windows.InvalidHandle
	e.mu.Unlock()
	if h == windows.InvalidHandle {
		return nil
	}
	return windows.CloseHandle(h)
}

func dial(path string) (Stream, error) {
	name, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return nil, err
	}
	deadline := time.Now().Add(dialTimeout)
	delay := dialMinDelay
	for {
		h, err := windows.CreateFile(
			name,
			windows.GENERIC_READ|windows.GENERIC_WRITE,
			0,
			nil,
			windows.OPEN_EXISTING,
			0,
			0,
		)
		if err == nil {
			return &handleStream{h: h}, nil
		}
		if !errors.Is(err, windows.ERROR_PIPE_BUSY) && !errors.Is(err, windows.ERROR_FILE_NOT_FOUND) {
			return nil, err
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("no listener after %s: %w", dialTimeout, err)
		}
		time.Sleep(delay)
		delay = min(delay*2, dialMaxDelay)
	}
}

type handleStream struct {
	server bool

	mu     sync.Mutex
	h      windows.Handle
	wrote  bool
	closed bool
}

func (s *handleStream) handle() (windows.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return windows.InvalidHandle, io.ErrClosedPipe
	}
	return s.h, nil
}

func (s *handleStream) Read(p []byte) (int, error) {
	h, err := s.handle()
	if err != nil {
		return 0, io.EOF
	}
	var n uint32
	err = windows.ReadFile(h, p, &n, nil)
	if err != nil {
		if errors.Is(err, windows.ERROR_BROKEN_PIPE) ||
			errors.Is(err, windows.ERROR_PIPE_NOT_CONNECTED) ||
			errors.Is(err, windows.ERROR_OPERATION_ABORTED) {
			return int(n), io.EOF
		}
		return int(n), err
	}
	return int(n), nil
}

func (s *handleStream) Write(p []byte) (int, error) {
	h, err := s.handle()
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	s.wrote = true
	s.mu.Unlock()
	var total int
	for total < len(p) {
		var n uint32
		if err := windows.WriteFile(h, p[total:], &n, nil); err != nil {
			if errors.Is(err, windows.ERROR_NO_DATA) || errors.Is(err, windows.ERROR_BROKEN_PIPE) {
				return total + int(n), io.ErrClosedPipe
			}
			return total + int(n), err
		}
		total += int(n)
	}
	return total, nil
}

func (s *handleStream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	h, wrote := s.h, s.wrote
	s.mu.Unlock()

	_ = windows.CancelIoEx(h, nil)
	if s.server {
		if wrote {
			_ = windows.FlushFileBuffers(h)
		}
		_ = windows.DisconnectNamedPipe(h)
	}
	return windows.CloseHandle(h)
}
