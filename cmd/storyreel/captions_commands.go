package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ivlev/storyreel/internal/burnin"
	"github.com/ivlev/storyreel/internal/logging"
	"github.com/ivlev/storyreel/internal/system"
	"github.com/ivlev/storyreel/internal/transcribe"
)

func newCaptionsCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "captions",
		Short: "Generate subtitles from speech and burn them into videos",
	}
	cmd.AddCommand(newCaptionsGenerateCommand(ctx))
	cmd.AddCommand(newCaptionsBurnCommand(ctx))
	return cmd
}

func newCaptionsGenerateCommand(ctx *commandContext) *cobra.Command {
	var (
		output    string
		maxWords  int
		highlight string
		format    string
		textCase  string
		keepAudio bool
	)

	cmd := &cobra.Command{
		Use:   "generate <media>",
		Short: "Transcribe an audio or video file into SRT or VTT",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			media := args[0]
			logger := logging.NewComponentLogger(ctx.log(), "captions")

			opts := ctx.captionOptions()
			if cmd.Flags().Changed("max-words") {
				opts.MaxWords = maxWords
			}
			if cmd.Flags().Changed("highlight") {
				opts.Highlight = highlight
			}
			if cmd.Flags().Changed("format") {
				opts.Format = format
			}
			if cmd.Flags().Changed("case") {
				opts.Case = textCase
			}
			if transcribe.IsVideo(media) {
				if d, err := system.GetMediaDuration(cmd.Context(), ffprobeBinary, media); err == nil {
					opts.MediaDuration = d
				} else {
					logger.Warn("could not probe media duration",
						logging.Error(err),
						logging.String(logging.FieldImpact, "cues are not clamped to the media length"),
					)
				}
			}

			conv := &transcribe.Converter{ASR: ctx.asr(), Logger: logger}
			if !keepAudio {
				workDir, err := os.MkdirTemp(ctx.config.Paths.TempDir, "storyreel_captions_")
				if err != nil {
					return fmt.Errorf("create work dir: %w", err)
				}
				defer os.RemoveAll(workDir)
				conv.WorkDir = workDir
			}
			path, err := conv.Generate(cmd.Context(), media, output, opts)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Subtitles: %s\n", path)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Subtitle file (default <media>.<format>)")
	cmd.Flags().IntVar(&maxWords, "max-words", 0, "Words per caption (0 = one caption per segment)")
	cmd.Flags().StringVar(&highlight, "highlight", "", "Highlight the spoken word: bold or a color")
	cmd.Flags().StringVar(&format, "format", "", "srt or vtt")
	cmd.Flags().StringVar(&textCase, "case", "", "none, upper, lower or title")
	cmd.Flags().BoolVar(&keepAudio, "keep-audio", false, "Keep the extracted WAV next to the subtitles")
	return cmd
}

func newCaptionsBurnCommand(ctx *commandContext) *cobra.Command {
	var (
		output     string
		fontSize   int
		color      string
		position   string
		background string
	)

	cmd := &cobra.Command{
		Use:   "burn <video> <subtitles>",
		Short: "Draw subtitles onto every frame of a video",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			style := ctx.captionStyle()
			if cmd.Flags().Changed("font-size") {
				style.FontSize = fontSize
			}
			if cmd.Flags().Changed("color") {
				style.Color = color
			}
			if cmd.Flags().Changed("position") {
				style.Position = burnin.Position(position)
			}
			if cmd.Flags().Changed("background") {
				style.Background = background
			}

			path, err := ctx.burner().Burn(cmd.Context(), args[0], args[1], output, style)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Video: %s\n", path)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Output video (default <video>_subbed.mp4)")
	cmd.Flags().IntVar(&fontSize, "font-size", 0, "Font size in pixels")
	cmd.Flags().StringVar(&color, "color", "", "Text color (name or #rrggbb)")
	cmd.Flags().StringVar(&position, "position", "", "top, middle or bottom")
	cmd.Flags().StringVar(&background, "background", "", "Box color behind the text, or none")
	return cmd
}
