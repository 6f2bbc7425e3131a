package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"ffpipe/internal/deps"
	"ffpipe/internal/faults"
	"ffpipe/internal/pipe"
)

type doctorCheck struct {
	name   string
	kind   statusKind
	detail string
}

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check that ffmpeg and ffpipe's directories are usable",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := ctx.ensureConfig(); err != nil {
				return err
			}
			checks := runDoctorChecks(ctx)

			colorize := isTerminal(cmd.OutOrStdout())
			rows := make([][]string, 0, len(checks))
			failed := 0
			for _, check := range checks {
				if check.kind == statusError {
					failed++
				}
				rows = append(rows, []string{check.name, renderStatus(check.kind, colorize), check.detail})
			}
			out := cmd.OutOrStdout()
			if ctx.configSeen {
				fmt.Fprintf(out, "Config: %s\n", ctx.configPath)
			} else {
				fmt.Fprintf(out, "Config: defaults (%s not found)\n", ctx.configPath)
			}
			fmt.Fprintln(out, renderTable([]string{"Check", "Status", "Detail"}, rows, nil))

			if failed > 0 {
				return faults.Wrap(faults.ErrNotFound, "cli", "doctor", fmt.Sprintf("%d check(s) failed", failed), nil)
			}
			return nil
		},
	}
}

func runDoctorChecks(ctx *commandContext) []doctorCheck {
	cfg := ctx.config
	loc := ctx.locator()
	var checks []doctorCheck

	if path, err := loc.Locate(); err != nil {
		checks = append(checks, doctorCheck{name: "ffmpeg", kind: statusError, detail: err.Error() + "; run `ffpipe install`"})
	} else {
		checks = append(checks, doctorCheck{name: "ffmpeg", kind: statusOK, detail: path})
	}

	for _, status := range deps.CheckBinaries([]deps.Requirement{
		{Name: "ffprobe", Command: ctx.probeBinary(), Description: "Input duration for progress percentages", Optional: true},
	}) {
		check := doctorCheck{name: status.Name, kind: statusOK, detail: status.Command}
		if !status.Available {
			check.kind = statusWarn
			check.detail = status.Detail + " (optional)"
		}
		checks = append(checks, check)
	}

	installDir := cfg.FFmpeg.InstallDir
	if installDir == "" {
		if dir, err := deps.DefaultInstallDir(); err == nil {
			installDir = dir
		}
	}
	dirs := []struct{ name, path string }{
		{"install dir", installDir},
		{"temp dir", os.TempDir()},
	}
	if cfg.History.Enabled {
		dirs = append(dirs, struct{ name, path string }{"history dir", filepath.Dir(cfg.History.Path)})
	}
	for _, dir := range dirs {
		if dir.path == "" {
			continue
		}
		status := deps.CheckDirectoryAccess(dir.name, dir.path)
		kind := statusOK
		if !status.Passed {
			kind = statusError
		}
		checks = append(checks, doctorCheck{name: status.Name, kind: kind, detail: status.Detail})
	}

	checks = append(checks, checkProgressChannel())
	return checks
}

// checkProgressChannel creates and removes a named channel the way a run with
// progress does.
func checkProgressChannel() doctorCheck {
	ch, err := pipe.Create()
	if err != nil {
		return doctorCheck{name: "progress channel", kind: statusError, detail: err.Error()}
	}
	path := ch.Path()
	if err := ch.Close(); err != nil {
		return doctorCheck{name: "progress channel", kind: statusWarn, detail: fmt.Sprintf("%s (cleanup failed: %v)", path, err)}
	}
	return doctorCheck{name: "progress channel", kind: statusOK, detail: "named channels supported"}
}
