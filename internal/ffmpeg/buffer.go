package ffmpeg

import (
	"errors"
	"io/fs"
	"os"
	"sync"
)

// Buffer is an in-memory input or output staged through a temp file that
// ffmpeg reads or writes by path.
type Buffer struct {
	path string

	mu      sync.Mutex
	removed bool
}

// Path returns the staging file.
func (b *Buffer) Path() string {
	return b.path
}

// Bytes reads the current contents, typically after the command has exited.
func (b *Buffer) Bytes() ([]byte, error) {
	return os.ReadFile(b.path)
}

// Open opens the staging file for streaming reads.
func (b *Buffer) Open() (*os.File, error) {
	return os.Open(b.path)
}

// Close removes the staging file.
func (b *Buffer) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.removed {
		return nil
	}
	b.removed = true
	return removeQuietly(b.path)
}

func removeQuietly(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
