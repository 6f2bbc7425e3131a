package ffmpeg

import (
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// configureProcess makes the kernel kill ffmpeg if the parent dies first.
// grouped places it in its own process group so a kill reaches any helpers.
func configureProcess(cmd *exec.Cmd, grouped bool) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Pdeathsig: unix.SIGKILL,
		Setpgid:   grouped,
	}
}
