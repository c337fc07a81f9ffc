package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ivlev/storyreel/internal/director"
)

func newPlanCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Create and inspect render plans",
	}
	cmd.AddCommand(newPlanInitCommand(ctx))
	cmd.AddCommand(newPlanShowCommand())
	return cmd
}

func newPlanInitCommand(ctx *commandContext) *cobra.Command {
	var (
		src    sourceFlags
		output string
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a plan for an image folder or PDF and an audio track",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(output) == "" {
				return fmt.Errorf("--output is required")
			}
			// План хранит абсолютные пути, чтобы его можно было переносить.
			for _, p := range []*string{&src.input, &src.audio, &output} {
				if *p == "" {
					continue
				}
				abs, err := filepath.Abs(*p)
				if err != nil {
					return err
				}
				*p = abs
			}
			stem := strings.TrimSuffix(filepath.Base(src.input), filepath.Ext(src.input))
			pageDir := filepath.Join(filepath.Dir(output), stem+"_pages")
			if src.pageDir != "" {
				abs, err := filepath.Abs(src.pageDir)
				if err != nil {
					return err
				}
				src.pageDir = abs
			}

			plan, err := src.buildPlan(cmd, ctx, pageDir)
			if err != nil {
				return err
			}
			if err := director.WritePlan(plan, output); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Plan written to %s (%d slides, %.2fs)\n", output, len(plan.Slides), plan.TotalDuration())
			return nil
		},
	}

	src.bind(cmd)
	cmd.Flags().StringVarP(&output, "output", "o", "", "Plan file to write (YAML)")
	return cmd
}

func newPlanShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "show <plan>",
		Short:       "Print the slides of a plan",
		Args:        cobra.ExactArgs(1),
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			plan, err := director.ReadPlan(args[0])
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(plan.Slides))
			for _, s := range plan.Slides {
				rows = append(rows, []string{
					fmt.Sprintf("%d", s.Index),
					truncateCell(filepath.Base(s.Input), 40),
					fmt.Sprintf("%.2f", s.Duration),
					s.Animation.Kind,
					truncateCell(formatParams(s.Animation.Params), 40),
				})
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s %dx%d, audio %s\n", plan.Title, plan.Width, plan.Height, plan.Audio.Path)
			fmt.Fprintln(out, renderTable(
				[]string{"#", "Image", "Seconds", "Animation", "Params"},
				rows,
				[]columnAlignment{alignRight, alignLeft, alignRight, alignLeft, alignLeft},
			))
			fmt.Fprintf(out, "Total: %.2fs\n", plan.TotalDuration())
			return nil
		},
	}
}
