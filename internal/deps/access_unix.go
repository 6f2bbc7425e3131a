//go:build !windows

package deps

import "golang.org/x/sys/unix"

const executableSuffix = ""

func accessible(path string) error {
	return unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK)
}
