//go:build !windows

package ffmpeg

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"
)

func killProcess(proc *os.Process, grouped bool) error {
	if grouped {
		err := unix.Kill(-proc.Pid, unix.SIGKILL)
		if err == nil {
			return nil
		}
		if !errors.Is(err, unix.ESRCH) && !errors.Is(err, unix.EPERM) {
			return err
		}
	}
	return proc.Kill()
}
