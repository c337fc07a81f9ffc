package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ivlev/storyreel/internal/burnin"
	"github.com/ivlev/storyreel/internal/director"
	"github.com/ivlev/storyreel/internal/engine"
	"github.com/ivlev/storyreel/internal/logging"
	"github.com/ivlev/storyreel/internal/system"
	"github.com/ivlev/storyreel/internal/transcribe"
)

type sourceFlags struct {
	input   string
	audio   string
	preset  string
	width   int
	height  int
	varied  bool
	seed    int64
	pageDir string
	dpi     int
	focus   bool
}

func (f *sourceFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.input, "input", "i", "", "Image folder, single image or PDF")
	cmd.Flags().StringVarP(&f.audio, "audio", "a", "", "Narration or music track")
	cmd.Flags().StringVar(&f.preset, "preset", "", "Aspect preset: 16:9, 9:16 or 4:5")
	cmd.Flags().IntVar(&f.width, "width", 0, "Frame width (overrides config)")
	cmd.Flags().IntVar(&f.height, "height", 0, "Frame height (overrides config)")
	cmd.Flags().BoolVar(&f.varied, "varied", false, "Vary clip durations instead of an even split")
	cmd.Flags().Int64Var(&f.seed, "seed", 0, "Seed for --varied (0 = time based)")
	cmd.Flags().StringVar(&f.pageDir, "page-dir", "", "Directory for rendered PDF pages")
	cmd.Flags().IntVar(&f.dpi, "dpi", 150, "Render resolution for PDF pages")
	cmd.Flags().BoolVar(&f.focus, "focus", false, "Aim zoom animations at the main content of each image")
}

// buildPlan probes the audio and lays the input out as a plan.
func (f *sourceFlags) buildPlan(cmd *cobra.Command, ctx *commandContext, pageDir string) (*director.Plan, error) {
	if strings.TrimSpace(f.input) == "" || strings.TrimSpace(f.audio) == "" {
		return nil, fmt.Errorf("--input and --audio are required")
	}
	cfg := ctx.config
	width, height, err := frameSize(f.preset, f.width, f.height, cfg.Video.Width, cfg.Video.Height)
	if err != nil {
		return nil, err
	}
	duration, err := system.GetMediaDuration(cmd.Context(), ffprobeBinary, f.audio)
	if err != nil {
		return nil, fmt.Errorf("probe audio: %w", err)
	}
	if f.pageDir != "" {
		pageDir = f.pageDir
	}
	seed := f.seed
	if f.varied && seed == 0 {
		seed = timeSeed()
	}
	return director.FromSource(f.input, director.Audio{Path: f.audio, Duration: duration}, director.Options{
		Width:   width,
		Height:  height,
		FPS:     cfg.Video.FPS,
		Varied:  f.varied,
		Seed:    seed,
		PageDir: pageDir,
		DPI:     f.dpi,
		Focus:   f.focus,
	})
}

func newRenderCommand(ctx *commandContext) *cobra.Command {
	var (
		src      sourceFlags
		planPath string
		output   string
		captions bool
	)

	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render a video from a plan or straight from images and audio",
		Long: `Render a video without a project record.

Either pass --plan with a plan file, or --input and --audio to split the
audio evenly (or with --varied) across the images. --captions transcribes
the result and burns the subtitles in.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ctx.config
			logger := ctx.log()

			scratch, err := os.MkdirTemp(cfg.Paths.TempDir, "storyreel_render_")
			if err != nil {
				return fmt.Errorf("create scratch dir: %w", err)
			}
			defer os.RemoveAll(scratch)

			var plan *director.Plan
			switch {
			case planPath != "":
				plan, err = director.ReadPlan(planPath)
			default:
				plan, err = src.buildPlan(cmd, ctx, filepath.Join(scratch, "pages"))
			}
			if err != nil {
				return err
			}

			fps := cfg.Video.FPS
			if fps <= 0 {
				fps = engine.FPS
			}
			audio := plan.AudioTrack()
			if audio.Duration <= 0 {
				if audio.Duration, err = system.GetMediaDuration(cmd.Context(), ffprobeBinary, audio.SourcePath); err != nil {
					return fmt.Errorf("probe audio: %w", err)
				}
			}
			if err := plan.FillDurations(audio.Duration, fps); err != nil {
				return err
			}

			if output == "" {
				output = timestampedOutput(filepath.Join(cfg.Paths.DataDir, "output"), plan.Title)
			}
			if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
				return fmt.Errorf("create output dir: %w", err)
			}

			comp := &engine.Compositor{
				Width:    plan.Width,
				Height:   plan.Height,
				FPS:      fps,
				Workers:  ctx.workers(plan.Width, plan.Height),
				Encoder:  ctx.encoder(),
				Progress: logReporter(logger),
				Logger:   logging.NewComponentLogger(logger, "engine"),
				TempDir:  scratch,
			}
			result, err := comp.Render(cmd.Context(), plan.ImageAssets(logger), audio, output)
			if err != nil {
				return err
			}
			final := result.Path

			if captions {
				conv := &transcribe.Converter{ASR: ctx.asr(), WorkDir: scratch, Logger: logging.NewComponentLogger(logger, "captions")}
				opts := ctx.captionOptions()
				opts.MediaDuration = result.Duration
				subs, err := conv.Generate(cmd.Context(), result.Path, "", opts)
				if err != nil {
					return fmt.Errorf("generate captions: %w", err)
				}
				final, err = ctx.burner().Burn(cmd.Context(), result.Path, subs, burnin.OutputPath(result.Path), ctx.captionStyle())
				if err != nil {
					return fmt.Errorf("burn captions: %w", err)
				}
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Video: %s\n", final)
			fmt.Fprintf(out, "Clips: %d (%.2fs)\n", result.Segments, result.Duration)
			if len(result.Skipped) > 0 {
				fmt.Fprintf(out, "Skipped: %v\n", result.Skipped)
			}
			return nil
		},
	}

	src.bind(cmd)
	cmd.Flags().StringVarP(&planPath, "plan", "p", "", "Plan file (YAML)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output video path")
	cmd.Flags().BoolVar(&captions, "captions", false, "Transcribe and burn captions into the result")
	cmd.MarkFlagsMutuallyExclusive("plan", "input")
	return cmd
}
