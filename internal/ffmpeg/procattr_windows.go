package ffmpeg

import (
	"os"
	"os/exec"
)

func configureProcess(*exec.Cmd, bool) {}

func killProcess(proc *os.Process, _ bool) error {
	return proc.Kill()
}
