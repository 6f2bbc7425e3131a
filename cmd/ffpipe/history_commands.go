package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"ffpipe/internal/faults"
	"ffpipe/internal/history"
)

const argsColumnWidth = 48

var statusTitle = cases.Title(language.English)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect previous ffmpeg runs",
	}
	historyCmd.AddCommand(newHistoryListCommand(ctx))
	historyCmd.AddCommand(newHistoryShowCommand(ctx))
	historyCmd.AddCommand(newHistoryPruneCommand(ctx))
	return historyCmd
}

func newHistoryListCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent runs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRequiredHistory(ctx, func(store *history.Store) error {
				runs, err := store.List(cmd.Context(), limit)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, runViews(runs))
				}
				if len(runs) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded")
					return nil
				}
				rows := make([][]string, 0, len(runs))
				for _, run := range runs {
					rows = append(rows, []string{
						run.ID,
						humanize.Time(run.StartedAt),
						statusTitle.String(string(run.Status)),
						formatExitCode(run.ExitCode),
						formatRunDuration(run),
						formatSize(run.TotalSize),
						truncate(strings.Join(run.Args, " "), argsColumnWidth),
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"ID", "Started", "Status", "Exit", "Duration", "Size", "Arguments"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignLeft},
				))
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of runs to show (0 for all)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print runs as JSON")
	return cmd
}

func newHistoryShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show RUN_ID",
		Short: "Show one run in detail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRequiredHistory(ctx, func(store *history.Store) error {
				run, err := store.Get(cmd.Context(), strings.TrimSpace(args[0]))
				if errors.Is(err, history.ErrNotFound) {
					return faults.Wrap(faults.ErrNotFound, "cli", "history show", args[0], err)
				}
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, newRunView(*run))
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Run:       %s\n", run.ID)
				fmt.Fprintf(out, "Program:   %s\n", run.Program)
				fmt.Fprintf(out, "Arguments: %s\n", strings.Join(run.Args, " "))
				fmt.Fprintf(out, "Status:    %s\n", statusTitle.String(string(run.Status)))
				fmt.Fprintf(out, "Exit code: %s\n", formatExitCode(run.ExitCode))
				fmt.Fprintf(out, "Started:   %s (%s)\n", run.StartedAt.Local().Format(time.DateTime), humanize.Time(run.StartedAt))
				fmt.Fprintf(out, "Duration:  %s\n", formatRunDuration(*run))
				if run.OutTimeUS != nil {
					fmt.Fprintf(out, "Media:     %s\n", formatClock(time.Duration(*run.OutTimeUS)*time.Microsecond))
				}
				if run.Frames != nil {
					fmt.Fprintf(out, "Frames:    %s\n", numberPrinter.Sprintf("%d", *run.Frames))
				}
				fmt.Fprintf(out, "Size:      %s\n", formatSize(run.TotalSize))
				if run.Speed != nil {
					fmt.Fprintf(out, "Speed:     %.2fx\n", *run.Speed)
				}
				if run.Error != "" {
					fmt.Fprintf(out, "Error:     %s\n", run.Error)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the run as JSON")
	return cmd
}

func newHistoryPruneCommand(ctx *commandContext) *cobra.Command {
	var keep int

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete all but the most recent runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			if keep < 0 {
				return faults.Wrap(faults.ErrConfiguration, "cli", "history prune", "--keep must not be negative", nil)
			}
			return withRequiredHistory(ctx, func(store *history.Store) error {
				removed, err := store.Prune(cmd.Context(), keep)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d run(s)\n", removed)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&keep, "keep", 100, "Number of most recent runs to keep")
	return cmd
}

func withRequiredHistory(ctx *commandContext, fn func(*history.Store) error) error {
	return ctx.withHistory(func(store *history.Store) error {
		if store == nil {
			return faults.Wrap(faults.ErrConfiguration, "cli", "history", "run history is disabled (history.enabled = false)", nil)
		}
		return fn(store)
	})
}

type runView struct {
	ID         string     `json:"id"`
	Program    string     `json:"program"`
	Args       []string   `json:"args"`
	Status     string     `json:"status"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	ExitCode   *int       `json:"exit_code,omitempty"`
	Frames     *uint64    `json:"frames,omitempty"`
	OutTimeUS  *uint64    `json:"out_time_us,omitempty"`
	TotalSize  *uint64    `json:"total_size,omitempty"`
	Speed      *float64   `json:"speed,omitempty"`
	Error      string     `json:"error,omitempty"`
}

func newRunView(run history.Run) runView {
	view := runView{
		ID:        run.ID,
		Program:   run.Program,
		Args:      run.Args,
		Status:    string(run.Status),
		StartedAt: run.StartedAt,
		ExitCode:  run.ExitCode,
		Frames:    run.Frames,
		OutTimeUS: run.OutTimeUS,
		TotalSize: run.TotalSize,
		Speed:     run.Speed,
		Error:     run.Error,
	}
	if !run.FinishedAt.IsZero() {
		finished := run.FinishedAt
		view.FinishedAt = &finished
	}
	return view
}

func runViews(runs []history.Run) []runView {
	views := make([]runView, 0, len(runs))
	for _, run := range runs {
		views = append(views, newRunView(run))
	}
	return views
}

func formatExitCode(code *int) string {
	if code == nil {
		return "-"
	}
	return strconv.Itoa(*code)
}

func formatRunDuration(run history.Run) string {
	if run.FinishedAt.IsZero() {
		return "-"
	}
	return run.Duration().Round(100 * time.Millisecond).String()
}

func formatSize(size *uint64) string {
	if size == nil {
		return "-"
	}
	return humanize.IBytes(*size)
}

func truncate(value string, width int) string {
	runes := []rune(value)
	if len(runes) <= width {
		return value
	}
	return string(runes[:width-1]) + "…"
}
