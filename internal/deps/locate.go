package deps

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"ffpipe/internal/faults"
)

// ProgramName is the binary looked up on PATH.
const ProgramName = "ffmpeg"

// Locator finds the ffmpeg binary. Binary, when set, wins outright; otherwise
// PATH is searched, then the install directory used by the downloader.
type Locator struct {
	Binary     string
	InstallDir string
}

// DefaultInstallDir is the "ffmpeg" directory next to the running executable.
func DefaultInstallDir() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("resolve executable: %w", err)
	}
	return filepath.Join(filepath.Dir(exe), "ffmpeg"), nil
}

// InstalledPath is where a downloaded binary lives inside dir.
func InstalledPath(dir string) string {
	return filepath.Join(dir, ProgramName+executableSuffix)
}

// InstalledPath returns the download target for this locator.
func (l Locator) InstalledPath() (string, error) {
	dir := strings.TrimSpace(l.InstallDir)
	if dir == "" {
		var err error
		if dir, err = DefaultInstallDir(); err != nil {
			return "", err
		}
	}
	return InstalledPath(dir), nil
}

// IsInstalled reports whether a downloaded binary is present. It says nothing
// about PATH.
func (l Locator) IsInstalled() bool {
	path, err := l.InstalledPath()
	if err != nil {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && isExecutable(info)
}

// Locate returns a path suitable for exec, or an error marked
// faults.ErrNotFound.
func (l Locator) Locate() (string, error) {
	if binary := strings.TrimSpace(l.Binary); binary != "" {
		resolved, err := exec.LookPath(binary)
		if err != nil {
			return "", faults.Wrap(faults.ErrNotFound, "deps", "locate", fmt.Sprintf("configured binary %q", binary), err)
		}
		return resolved, nil
	}
	if resolved, err := exec.LookPath(ProgramName); err == nil {
		return resolved, nil
	} else if !errors.Is(err, exec.ErrNotFound) {
		return "", faults.Wrap(faults.ErrNotFound, "deps", "locate", "search PATH", err)
	}
	path, err := l.InstalledPath()
	if err != nil {
		return "", faults.Wrap(faults.ErrNotFound, "deps", "locate", "install directory", err)
	}
	if info, err := os.Stat(path); err == nil && isExecutable(info) {
		return path, nil
	}
	return "", faults.Wrap(faults.ErrNotFound, "deps", "locate",
		fmt.Sprintf("%s is not on PATH and %s does not exist", ProgramName, path), nil)
}
