package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"ffpipe/internal/faults"
)

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(exitCode(err))
	}
}

// exitCode passes ffmpeg's own status through and maps everything else by
// error marker.
func exitCode(err error) int {
	var status *exitStatusError
	if errors.As(err, &status) {
		return status.code
	}
	return faults.ExitCode(err)
}
