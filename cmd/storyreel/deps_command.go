package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ivlev/storyreel/internal/deps"
	"github.com/ivlev/storyreel/internal/system"
)

func newDepsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "deps",
		Short: "Check the external tools needed for rendering and captions",
		RunE: func(cmd *cobra.Command, args []string) error {
			statuses := deps.CheckBinaries(deps.MediaRequirements(ffmpegBinary, ffprobeBinary, ctx.config.Transcription.Command))

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderTable(
				[]string{"Name", "Command", "Status", "Purpose"},
				dependencyRows(statuses),
				nil,
			))
			if err := deps.Missing(statuses); err != nil {
				return err
			}
			fmt.Fprintf(out, "H.264 encoder: %s\n", system.GetBestH264Encoder(ffmpegBinary))
			return nil
		},
	}
}

func dependencyRows(statuses []deps.Status) [][]string {
	rows := make([][]string, 0, len(statuses))
	for _, s := range statuses {
		state := "ok"
		if !s.Available {
			state = s.Detail
			if s.Optional {
				state += " (optional)"
			}
		}
		rows = append(rows, []string{s.Name, s.Command, state, s.Description})
	}
	return rows
}
