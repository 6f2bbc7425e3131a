package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"ffpipe/internal/probe"
)

func newProbeCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "probe FILE",
		Short: "Show the streams and duration of a media file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := probe.Inspect(cmd.Context(), ctx.probeBinary(), args[0])
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, result)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "File:     %s\n", args[0])
			fmt.Fprintf(out, "Format:   %s\n", valueOrDash(result.Format.FormatName))
			if duration, ok := result.Duration(); ok {
				fmt.Fprintf(out, "Duration: %s\n", formatClock(duration))
			} else {
				fmt.Fprintln(out, "Duration: unknown")
			}
			if size := result.SizeBytes(); size > 0 {
				fmt.Fprintf(out, "Size:     %s\n", humanize.IBytes(size))
			}
			if rate := result.BitRate(); rate > 0 {
				fmt.Fprintf(out, "Bitrate:  %s\n", numberPrinter.Sprintf("%d kbit/s", rate/1000))
			}
			if len(result.Streams) == 0 {
				return nil
			}
			rows := make([][]string, 0, len(result.Streams))
			for _, stream := range result.Streams {
				rows = append(rows, []string{
					strconv.Itoa(stream.Index),
					valueOrDash(stream.CodecType),
					valueOrDash(stream.CodecName),
					streamDetail(stream),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"#", "Type", "Codec", "Detail"},
				rows,
				[]columnAlignment{alignRight},
			))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the parsed report as JSON")
	return cmd
}

func streamDetail(stream probe.Stream) string {
	var parts []string
	if stream.Width > 0 && stream.Height > 0 {
		parts = append(parts, fmt.Sprintf("%dx%d", stream.Width, stream.Height))
	}
	if fps, ok := stream.FrameRate(); ok && strings.EqualFold(stream.CodecType, "video") {
		parts = append(parts, strconv.FormatFloat(fps, 'f', 2, 64)+" fps")
	}
	if stream.SampleRate != "" {
		parts = append(parts, stream.SampleRate+" Hz")
	}
	if stream.Channels > 0 {
		parts = append(parts, fmt.Sprintf("%d ch", stream.Channels))
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, ", ")
}

func valueOrDash(value string) string {
	if strings.TrimSpace(value) == "" {
		return "-"
	}
	return value
}
