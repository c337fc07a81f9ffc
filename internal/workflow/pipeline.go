package workflow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"github.com/ivlev/storyreel/internal/burnin"
	"github.com/ivlev/storyreel/internal/director"
	"github.com/ivlev/storyreel/internal/effects"
	"github.com/ivlev/storyreel/internal/engine"
	"github.com/ivlev/storyreel/internal/lifecycle"
	"github.com/ivlev/storyreel/internal/logging"
	"github.com/ivlev/storyreel/internal/progress"
	"github.com/ivlev/storyreel/internal/store"
	"github.com/ivlev/storyreel/internal/transcribe"
	"github.com/ivlev/storyreel/internal/video"
)

// CaptionSettings configures the caption stage.
type CaptionSettings struct {
	Enabled bool
	Options transcribe.Options
	Style   burnin.Style
	// KeepFinal cleans intermediates once the captioned video exists;
	// false leaves every artifact in place.
	KeepFinal bool
}

// Pipeline implements the render and caption stages against the store.
type Pipeline struct {
	Store    *store.Store
	Layout   lifecycle.Layout
	Encoder  video.VideoEncoder
	Workers  int
	TempDir  string
	Prober   burnin.Prober
	ASR      transcribe.Transcriber
	Burner   *burnin.Renderer
	Captions CaptionSettings
	Logger   *slog.Logger
}

func (p *Pipeline) logger(run Run) *slog.Logger {
	if run.Logger != nil {
		return run.Logger
	}
	if p.Logger != nil {
		return p.Logger
	}
	return logging.NewNop()
}

func reporter(run Run) progress.Reporter {
	if run.Progress == nil {
		return progress.Discard
	}
	return run.Progress
}

// Render composes the stored images and audio into the plain video.
func (p *Pipeline) Render(ctx context.Context, run Run) error {
	logger := p.logger(run)
	v, err := p.Store.GetVideo(ctx, run.VideoID)
	if err != nil {
		return err
	}
	images, err := p.Store.ListImages(ctx, run.VideoID)
	if err != nil {
		return err
	}
	if len(images) == 0 {
		return fmt.Errorf("%w: video %d has no images", ErrStageGated, v.ID)
	}
	if strings.TrimSpace(v.AudioPath) == "" {
		return fmt.Errorf("%w: video %d has no audio", ErrStageGated, v.ID)
	}

	assets := make([]engine.ImageAsset, 0, len(images))
	for _, img := range images {
		assets = append(assets, engine.ImageAsset{
			SequenceIndex: img.SequenceIndex,
			SourcePath:    img.SourcePath,
			Duration:      img.Duration,
			Animation:     effects.Resolve(img.AnimationKind, img.AnimationParams, logger),
		})
	}

	comp := &engine.Compositor{
		Width:    v.Width,
		Height:   v.Height,
		FPS:      engine.FPS,
		Workers:  p.Workers,
		Encoder:  p.Encoder,
		Progress: reporter(run),
		Logger:   logger,
		TempDir:  p.TempDir,
	}
	out := p.Layout.PlainVideo(v.ID)
	result, err := comp.Render(ctx, assets, engine.AudioTrack{SourcePath: v.AudioPath, Duration: v.AudioDuration}, out)
	if err != nil {
		return fmt.Errorf("render: %w", err)
	}

	a := store.Artifacts(v, images)
	a.PlainVideo = result.Path
	if err := p.Store.SetArtifacts(ctx, v.ID, a); err != nil {
		return err
	}
	if p.Captions.Enabled {
		if err := p.Store.SetStatus(ctx, v.ID, progress.StatusCaptionsPending); err != nil {
			return err
		}
	}
	logger.Info("video rendered",
		logging.String(logging.FieldEventType, "render_completed"),
		logging.String("output", result.Path),
		logging.Int("segments", result.Segments),
		logging.Float64("duration", result.Duration),
		logging.Int("skipped", len(result.Skipped)),
	)
	return nil
}

// Caption transcribes the plain video, burns the subtitles in and reclaims
// intermediates.
func (p *Pipeline) Caption(ctx context.Context, run Run) error {
	logger := p.logger(run)
	rep := reporter(run)
	v, err := p.Store.GetVideo(ctx, run.VideoID)
	if err != nil {
		return err
	}
	if v.PlainVideo == "" {
		return fmt.Errorf("%w: video %d has not been rendered", ErrStageGated, v.ID)
	}
	if _, err := os.Stat(v.PlainVideo); err != nil {
		return fmt.Errorf("%w: plain video %s: %v", ErrStageGated, v.PlainVideo, err)
	}
	if p.Burner == nil {
		return errors.New("caption stage: burn-in renderer not configured")
	}
	_ = rep.Report(ctx, progress.Progress{Percent: 0, Status: progress.StatusProcessing})

	workDir, err := os.MkdirTemp(p.TempDir, "storyreel_captions_")
	if err != nil {
		return fmt.Errorf("create work dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	opts := p.Captions.Options
	if opts.MediaDuration <= 0 && p.Prober != nil {
		if info, perr := p.Prober.Probe(ctx, v.PlainVideo); perr == nil {
			opts.MediaDuration = info.Duration
		} else {
			logger.Warn("could not probe video duration",
				logging.Error(perr),
				logging.String(logging.FieldImpact, "cues are not clamped to the video length"),
			)
		}
	}
	format := opts.Format
	if format == "" {
		format = "srt"
	}

	conv := &transcribe.Converter{ASR: p.ASR, WorkDir: workDir, Logger: logger}
	subs, err := conv.Generate(ctx, v.PlainVideo, p.Layout.Subtitles(v.ID, format), opts)
	if err != nil {
		return fmt.Errorf("generate captions: %w", err)
	}
	_ = rep.Report(ctx, progress.Progress{Percent: 40, Status: progress.StatusProcessing})

	captioned, err := p.Burner.Burn(ctx, v.PlainVideo, subs, p.Layout.CaptionedVideo(v.ID), p.Captions.Style)
	if err != nil {
		return fmt.Errorf("burn captions: %w", err)
	}
	_ = rep.Report(ctx, progress.Progress{Percent: 90, Status: progress.StatusProcessing})

	images, err := p.Store.ListImages(ctx, v.ID)
	if err != nil {
		return err
	}
	a := store.Artifacts(v, images)
	a.SubtitlePath = subs
	a.CaptionedVideo = captioned
	if p.Captions.KeepFinal {
		res := lifecycle.Cleanup(&a, true, logger)
		if len(res.Errors) > 0 {
			logger.Warn("intermediates left on disk",
				logging.Int("failed", len(res.Errors)),
				logging.String(logging.FieldImpact, "disk space not reclaimed"),
			)
		}
	}
	if err := p.Store.SetArtifacts(ctx, v.ID, a); err != nil {
		return err
	}
	return rep.Report(ctx, progress.Progress{Percent: 100, Status: progress.StatusCompleted})
}

// Delete removes every artifact of a video and then its records. Files that
// could not be removed keep the records in place so the call can be retried.
func (p *Pipeline) Delete(ctx context.Context, videoID int64) error {
	v, err := p.Store.GetVideo(ctx, videoID)
	if err != nil {
		return err
	}
	if v.Status.InProgress() {
		return fmt.Errorf("%w: video %d", ErrAlreadyRunning, videoID)
	}
	a, err := p.Store.Artifacts(ctx, videoID)
	if err != nil {
		return err
	}
	res := lifecycle.Cleanup(&a, false, p.Logger)
	if len(res.Errors) > 0 {
		if err := p.Store.SetArtifacts(ctx, videoID, a); err != nil {
			return err
		}
		paths := make([]string, 0, len(res.Errors))
		for _, e := range res.Errors {
			paths = append(paths, e.Path)
		}
		return fmt.Errorf("delete video %d: could not remove %s", videoID, strings.Join(paths, ", "))
	}
	_ = os.Remove(p.Layout.Lock(videoID))
	return p.Store.Delete(ctx, videoID)
}

// Import copies a plan's images and audio into the artifact layout and records
// them. videoID 0 creates a new video from the plan's title and size. Slides
// without a duration share the audio time the timed slides leave over. A failed
// import leaves no copied files and no records behind.
func (p *Pipeline) Import(ctx context.Context, videoID int64, plan *director.Plan) (_ *store.Video, err error) {
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	if err := p.Layout.Ensure(); err != nil {
		return nil, err
	}

	audio := plan.AudioTrack()
	duration := audio.Duration
	if duration <= 0 {
		if p.Prober == nil {
			return nil, fmt.Errorf("audio duration of %s unknown and no prober configured", audio.SourcePath)
		}
		info, err := p.Prober.Probe(ctx, audio.SourcePath)
		if err != nil {
			return nil, fmt.Errorf("probe audio: %w", err)
		}
		duration = info.Duration
	}

	// длительности заполняем на копии, план вызывающего не меняется
	timed := *plan
	timed.Slides = slices.Clone(plan.Slides)
	if err := timed.FillDurations(duration, engine.FPS); err != nil {
		return nil, err
	}

	var v *store.Video
	if videoID == 0 {
		v, err = p.Store.CreateVideo(ctx, plan.Title, plan.Width, plan.Height)
	} else {
		v, err = p.Store.GetVideo(ctx, videoID)
	}
	if err != nil {
		return nil, err
	}
	if existing, err := p.Store.ListImages(ctx, v.ID); err != nil {
		return nil, err
	} else if len(existing) > 0 {
		return nil, fmt.Errorf("video %d already has %d images", v.ID, len(existing))
	}

	var copied []string
	defer func() {
		if err == nil {
			return
		}
		for _, path := range copied {
			os.Remove(path)
		}
		if videoID == 0 {
			if derr := p.Store.Delete(context.WithoutCancel(ctx), v.ID); derr != nil {
				p.logger(Run{}).Warn("import rollback failed",
					logging.Int64("video_id", v.ID),
					logging.Error(derr),
					logging.String(logging.FieldImpact, "an empty video record remains"),
				)
			}
		}
	}()

	assets := timed.ImageAssets(p.Logger)
	sort.SliceStable(assets, func(i, j int) bool { return assets[i].SequenceIndex < assets[j].SequenceIndex })
	images := make([]store.Image, 0, len(assets))
	for i, asset := range assets {
		dest := p.Layout.Image(v.ID, i, filepath.Ext(asset.SourcePath))
		if err := copyFile(asset.SourcePath, dest); err != nil {
			return nil, fmt.Errorf("import image %d: %w", i, err)
		}
		copied = append(copied, dest)
		images = append(images, store.Image{
			SourcePath:      dest,
			Duration:        asset.Duration,
			AnimationKind:   string(asset.Animation.Kind()),
			AnimationParams: asset.Animation.Params(),
		})
	}

	audioDest := p.Layout.Audio(v.ID, filepath.Ext(audio.SourcePath))
	if err := copyFile(audio.SourcePath, audioDest); err != nil {
		return nil, fmt.Errorf("import audio: %w", err)
	}
	copied = append(copied, audioDest)
	if _, err := p.Store.AttachMedia(ctx, v.ID, images, audioDest, duration); err != nil {
		return nil, err
	}
	return p.Store.GetVideo(ctx, v.ID)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
