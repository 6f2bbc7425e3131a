package fileutil

import (
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"path/filepath"
)

const nameAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// DefaultNameLength is the length of generated pipe and temp-file names.
const DefaultNameLength = 10

// RandomName returns n random alphanumeric characters. Collisions are treated
// as negligible by callers.
func RandomName(n int) string {
	if n <= 0 {
		n = DefaultNameLength
	}
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = nameAlphabet[rand.IntN(len(nameAlphabet))]
	}
	return string(buf)
}

// RandomTempPath returns a fresh path inside dir (os.TempDir when empty) whose
// base name is a random name followed by suffix. Nothing is created on disk.
func RandomTempPath(dir, suffix string) string {
	if dir == "" {
		dir = os.TempDir()
	}
	return filepath.Join(dir, RandomName(DefaultNameLength)+suffix)
}

// CreateExclusive creates path, failing when it already exists.
func CreateExclusive(path string, mode os.FileMode) (*os.File, error) {
	return os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, mode)
}

// WriteAtomic streams r into a temp file next to dst and renames it into
// place, so readers never observe a partially written dst. The temp file is
// removed on any failure.
func WriteAtomic(dst string, r io.Reader, mode os.FileMode) (int64, error) {
	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("create directory %q: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".partial-*")
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	written, copyErr := io.Copy(tmp, r)
	closeErr := tmp.Close()
	if copyErr != nil {
		_ = os.Remove(tmpPath)
		return written, fmt.Errorf("write %s: %w", filepath.Base(dst), copyErr)
	}
	if closeErr != nil {
		_ = os.Remove(tmpPath)
		return written, fmt.Errorf("close temp file: %w", closeErr)
	}
	if err := os.Chmod(tmpPath, mode); err != nil {
		_ = os.Remove(tmpPath)
		return written, fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		_ = os.Remove(tmpPath)
		return written, fmt.Errorf("rename into place: %w", err)
	}
	return written, nil
}
