package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"ffpipe/internal/deps"
	"ffpipe/internal/faults"
	"ffpipe/internal/install"
)

func newInstallCommand(ctx *commandContext) *cobra.Command {
	var force bool
	var url string
	var dir string

	cmd := &cobra.Command{
		Use:   "install",
		Short: "Download a static ffmpeg build into the install directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			target := strings.TrimSpace(dir)
			if target == "" {
				target = cfg.FFmpeg.InstallDir
			}
			if target == "" {
				if target, err = deps.DefaultInstallDir(); err != nil {
					return faults.Wrap(faults.ErrConfiguration, "cli", "install", "install directory", err)
				}
			}
			source := strings.TrimSpace(url)
			if source == "" {
				source = cfg.FFmpeg.DownloadURL
			}

			inst := install.New(target, source,
				install.WithLogger(ctx.loggerValue()),
				install.WithForce(force),
			)
			events := make(chan install.Event, install.EventBuffer)
			done := make(chan error, 1)
			go func() {
				done <- inst.Install(cmd.Context(), events)
				close(events)
			}()
			renderInstallEvents(cmd.ErrOrStderr(), events)
			if err := <-done; err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ffmpeg installed at %s\n", inst.Target())
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Download again even if ffmpeg is already installed")
	cmd.Flags().StringVar(&url, "url", "", "Download from this URL instead of ffmpeg.download_url")
	cmd.Flags().StringVar(&dir, "dir", "", "Install into this directory instead of ffmpeg.install_dir")
	return cmd
}

// renderInstallEvents draws a progress bar on terminals and plain stage
// lines elsewhere. It returns when events is closed.
func renderInstallEvents(w io.Writer, events <-chan install.Event) {
	interactive := isTerminal(w)
	var bar *progressbar.ProgressBar
	announced := false
	for ev := range events {
		switch ev.Stage {
		case install.StageDownloading:
			if !interactive {
				if !announced {
					fmt.Fprintln(w, "downloading ffmpeg")
					announced = true
				}
				continue
			}
			if bar == nil {
				total := int64(-1)
				if ev.Total > 0 {
					total = ev.Total
				}
				bar = progressbar.NewOptions64(total,
					progressbar.OptionSetWriter(w),
					progressbar.OptionSetDescription("downloading ffmpeg"),
					progressbar.OptionShowBytes(true),
					progressbar.OptionSetWidth(30),
					progressbar.OptionThrottle(100*time.Millisecond),
					progressbar.OptionClearOnFinish(),
				)
			}
			_ = bar.Set64(ev.Downloaded)
		case install.StageExtracting:
			if bar != nil {
				_ = bar.Finish()
			}
			fmt.Fprintln(w, "extracting ffmpeg")
		}
	}
}

// resolveBinary locates ffmpeg, downloading it first when allowed.
func resolveBinary(ctx context.Context, cmd *cobra.Command, cc *commandContext, autoInstall bool) (string, error) {
	loc := cc.locator()
	if autoInstall {
		url := ""
		if cc.config != nil {
			url = cc.config.FFmpeg.DownloadURL
		}
		dl, err := install.AutoInstall(ctx, loc, url, install.WithLogger(cc.loggerValue()))
		if err != nil {
			return "", err
		}
		if dl != nil {
			renderInstallEvents(cmd.ErrOrStderr(), dl.Events())
			if err := dl.Wait(); err != nil {
				return "", err
			}
		}
	}
	return loc.Locate()
}
