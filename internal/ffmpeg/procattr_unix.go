//go:build !linux && !windows

package ffmpeg

import (
	"os/exec"
	"syscall"
)

func configureProcess(cmd *exec.Cmd, grouped bool) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: grouped}
}
