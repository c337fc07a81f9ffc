package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"github.com/ivlev/storyreel/internal/director"
	"github.com/ivlev/storyreel/internal/store"
	"github.com/ivlev/storyreel/internal/workflow"
)

func newProjectCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "project",
		Aliases: []string{"video"},
		Short:   "Manage stored videos and run their pipeline stages",
	}
	cmd.AddCommand(newProjectCreateCommand(ctx))
	cmd.AddCommand(newProjectImportCommand(ctx))
	cmd.AddCommand(newProjectStageCommand(ctx, workflow.StageRender))
	cmd.AddCommand(newProjectStageCommand(ctx, workflow.StageCaption))
	cmd.AddCommand(newProjectRunCommand(ctx))
	cmd.AddCommand(newProjectStatusCommand(ctx))
	cmd.AddCommand(newProjectDeleteCommand(ctx))
	cmd.AddCommand(newProjectResetCommand(ctx))
	return cmd
}

func parseVideoID(arg string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid video id %q", arg)
	}
	return id, nil
}

func newProjectCreateCommand(ctx *commandContext) *cobra.Command {
	var (
		title  string
		preset string
		width  int
		height int
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an empty video record",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := ctx.openStore()
			if err != nil {
				return err
			}
			w, h, err := frameSize(preset, width, height, ctx.config.Video.Width, ctx.config.Video.Height)
			if err != nil {
				return err
			}
			v, err := st.CreateVideo(cmd.Context(), title, w, h)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created video %d (%dx%d, %s)\n", v.ID, v.Width, v.Height, v.Status)
			return nil
		},
	}

	cmd.Flags().StringVarP(&title, "title", "t", "", "Video title")
	cmd.Flags().StringVar(&preset, "preset", "", "Aspect preset: 16:9, 9:16 or 4:5")
	cmd.Flags().IntVar(&width, "width", 0, "Frame width (overrides config)")
	cmd.Flags().IntVar(&height, "height", 0, "Frame height (overrides config)")
	return cmd
}

func newProjectImportCommand(ctx *commandContext) *cobra.Command {
	var videoID int64

	cmd := &cobra.Command{
		Use:   "import <plan>",
		Short: "Attach a plan's images and audio to a video",
		Long: `Copy the images and audio of a plan into the data directory and record
them. Without --video a new video is created from the plan's title and size.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := ctx.openStore()
			if err != nil {
				return err
			}
			plan, err := director.ReadPlan(args[0])
			if err != nil {
				return err
			}
			v, err := ctx.pipeline(st).Import(cmd.Context(), videoID, plan)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Video %d: %d slides, %.2fs audio, status %s\n", v.ID, len(plan.Slides), v.AudioDuration, v.Status)
			return nil
		},
	}

	cmd.Flags().Int64Var(&videoID, "video", 0, "Existing video id (default creates one)")
	return cmd
}

func stageJob(p *workflow.Pipeline, stage workflow.Stage) workflow.Job {
	if stage == workflow.StageCaption {
		return p.Caption
	}
	return p.Render
}

// runStage submits one stage and blocks until it finishes.
func runStage(ctx context.Context, cctx *commandContext, st *store.Store, id int64, stage workflow.Stage, out io.Writer) error {
	d := workflow.NewDispatcher(st, cctx.layout(), cctx.log())
	runID, err := d.Submit(ctx, id, stage, stageJob(cctx.pipeline(st), stage))
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Started %s for video %d (run %s)\n", stage, id, runID)
	waitErr := d.Wait()

	v, err := st.GetVideo(context.WithoutCancel(ctx), id)
	if err != nil {
		return errors.Join(waitErr, err)
	}
	fmt.Fprintf(out, "Video %d: %s %d%%\n", v.ID, v.Status, v.ProgressPercent)
	return waitErr
}

func newProjectStageCommand(ctx *commandContext, stage workflow.Stage) *cobra.Command {
	short := "Render the stored images and audio into the plain video"
	if stage == workflow.StageCaption {
		short = "Transcribe the plain video and burn captions into it"
	}
	return &cobra.Command{
		Use:   string(stage) + " <video-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseVideoID(args[0])
			if err != nil {
				return err
			}
			st, err := ctx.openStore()
			if err != nil {
				return err
			}
			return runStage(cmd.Context(), ctx, st, id, stage, cmd.OutOrStdout())
		},
	}
}

func newProjectRunCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "run <video-id>",
		Short: "Render a video and caption it when captions are enabled",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseVideoID(args[0])
			if err != nil {
				return err
			}
			st, err := ctx.openStore()
			if err != nil {
				return err
			}
			if err := runStage(cmd.Context(), ctx, st, id, workflow.StageRender, cmd.OutOrStdout()); err != nil {
				return err
			}
			if !ctx.config.Captions.Enabled {
				return nil
			}
			return runStage(cmd.Context(), ctx, st, id, workflow.StageCaption, cmd.OutOrStdout())
		},
	}
}

func newProjectStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status [video-id]",
		Short: "Show the status of one or all videos",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := ctx.openStore()
			if err != nil {
				return err
			}
			var videos []*store.Video
			if len(args) == 1 {
				id, err := parseVideoID(args[0])
				if err != nil {
					return err
				}
				v, err := st.GetVideo(cmd.Context(), id)
				if err != nil {
					return err
				}
				videos = []*store.Video{v}
			} else if videos, err = st.ListVideos(cmd.Context()); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(videos) == 0 {
				fmt.Fprintln(out, "No videos")
				return nil
			}
			fmt.Fprintln(out, renderTable(
				[]string{"ID", "Title", "Status", "Progress", "Video", "Updated", "Error"},
				videoRows(videos),
				[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignLeft, alignLeft, alignLeft},
			))
			return nil
		},
	}
}

func videoRows(videos []*store.Video) [][]string {
	rows := make([][]string, 0, len(videos))
	for _, v := range videos {
		final := v.CaptionedVideo
		if final == "" {
			final = v.PlainVideo
		}
		rows = append(rows, []string{
			strconv.FormatInt(v.ID, 10),
			truncateCell(v.Title, 30),
			string(v.Status),
			fmt.Sprintf("%d%%", v.ProgressPercent),
			truncateCell(final, 40),
			v.UpdatedAt.Local().Format("2006-01-02 15:04"),
			truncateCell(v.ErrorMessage, 40),
		})
	}
	return rows
}

func newProjectDeleteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <video-id>",
		Short: "Remove a video, its images and every file it produced",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseVideoID(args[0])
			if err != nil {
				return err
			}
			st, err := ctx.openStore()
			if err != nil {
				return err
			}
			if err := ctx.pipeline(st).Delete(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted video %d\n", id)
			return nil
		},
	}
}

func newProjectResetCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reset <video-id>",
		Short: "Clear a processing status left behind by an interrupted run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseVideoID(args[0])
			if err != nil {
				return err
			}
			st, err := ctx.openStore()
			if err != nil {
				return err
			}
			// живой процесс держит lock-файл, его статус не трогаем
			if err := os.MkdirAll(ctx.layout().LocksDir(), 0o755); err != nil {
				return err
			}
			lock := flock.New(ctx.layout().Lock(id))
			locked, err := lock.TryLock()
			if err != nil {
				return fmt.Errorf("check video lock: %w", err)
			}
			if !locked {
				return fmt.Errorf("%w: video %d", workflow.ErrAlreadyRunning, id)
			}
			defer lock.Unlock()

			reset, err := st.ResetStuck(cmd.Context(), id)
			if err != nil {
				return err
			}
			if !reset {
				fmt.Fprintf(cmd.OutOrStdout(), "Video %d is not processing\n", id)
				return nil
			}
			v, err := st.GetVideo(cmd.Context(), id)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Video %d reset to %s\n", id, v.Status)
			return nil
		},
	}
}
