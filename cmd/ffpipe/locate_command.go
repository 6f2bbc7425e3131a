package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newLocateCommand(ctx *commandContext) *cobra.Command {
	var autoInstall bool

	cmd := &cobra.Command{
		Use:   "locate",
		Short: "Print the ffmpeg binary ffpipe would run",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := resolveBinary(cmd.Context(), cmd, ctx, autoInstall)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&autoInstall, "auto-install", false, "Download ffmpeg if it cannot be found")
	return cmd
}
