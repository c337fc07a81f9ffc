package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ivlev/storyreel/internal/effects"
	"github.com/ivlev/storyreel/internal/logging"
	"github.com/ivlev/storyreel/internal/progress"
	"github.com/ivlev/storyreel/internal/source"
	"github.com/ivlev/storyreel/internal/system"
	"github.com/ivlev/storyreel/internal/video"
)

// FPS is the fixed output frame rate.
const FPS = 24

var (
	ErrNoImages      = errors.New("no images found")
	ErrNoValidClips  = errors.New("no valid clips could be created")
	ErrAudioNotFound = errors.New("audio track not found")
)

// ImageAsset is one still that becomes one clip.
type ImageAsset struct {
	SequenceIndex int
	SourcePath    string
	Duration      float64
	Animation     effects.Effect
}

// AudioTrack is the single soundtrack of a video.
type AudioTrack struct {
	SourcePath string
	Duration   float64
}

// RenderedVideo describes a finished compositor output.
type RenderedVideo struct {
	Path     string
	Width    int
	Height   int
	FPS      int
	Duration float64
	Segments int
	// Skipped holds sequence indexes of assets that produced no clip.
	Skipped []int
}

// Compositor renders an ordered list of image clips plus one audio bed into a video file.
type Compositor struct {
	Width, Height int
	FPS           int
	Workers       int
	Encoder       video.VideoEncoder
	Progress      progress.Reporter
	Logger        *slog.Logger
	// TempDir is the parent for the per-render scratch directory; "" means os.TempDir.
	TempDir string
}

type clipJob struct {
	asset  ImageAsset
	frames int
	path   string
}

// Render composes assets in sequence order and attaches audio. Assets whose
// files are missing or fail to render are logged and skipped.
func (c *Compositor) Render(ctx context.Context, assets []ImageAsset, audio AudioTrack, outputPath string) (result RenderedVideo, err error) {
	logger := c.logger()
	fps := c.fps()
	rep := &milestones{reporter: c.reporter(), logger: logger}
	start := time.Now()

	rep.report(ctx, 0)
	defer func() {
		if err != nil {
			rep.fail(ctx, err)
			logger.Error("render failed",
				logging.String(logging.FieldEventType, "render_failed"),
				logging.Error(err),
			)
		}
	}()

	if len(assets) == 0 {
		return RenderedVideo{}, ErrNoImages
	}
	if _, statErr := os.Stat(audio.SourcePath); statErr != nil {
		return RenderedVideo{}, fmt.Errorf("%w: %s", ErrAudioNotFound, audio.SourcePath)
	}
	if c.Encoder == nil {
		return RenderedVideo{}, errors.New("compositor has no encoder")
	}

	tmpDir, err := os.MkdirTemp(c.TempDir, "storyreel_")
	if err != nil {
		return RenderedVideo{}, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	ordered := make([]ImageAsset, len(assets))
	copy(ordered, assets)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].SequenceIndex < ordered[j].SequenceIndex })

	var skipped []int
	var usable []ImageAsset
	for _, a := range ordered {
		if a.Duration <= 0 {
			logger.Warn("asset skipped",
				logging.Int("sequence_index", a.SequenceIndex),
				logging.Float64("duration", a.Duration),
				logging.String(logging.FieldErrorHint, "asset duration must be positive"),
			)
			skipped = append(skipped, a.SequenceIndex)
			continue
		}
		if _, statErr := os.Stat(a.SourcePath); statErr != nil {
			logger.Warn("asset skipped",
				logging.Int("sequence_index", a.SequenceIndex),
				logging.String("path", a.SourcePath),
				logging.Error(statErr),
				logging.String(logging.FieldImpact, "clip omitted from video"),
			)
			skipped = append(skipped, a.SequenceIndex)
			continue
		}
		usable = append(usable, a)
	}
	if len(usable) == 0 {
		return RenderedVideo{}, ErrNoValidClips
	}

	durations := make([]float64, len(usable))
	for i, a := range usable {
		durations[i] = a.Duration
	}
	counts := FrameCounts(durations, fps)

	jobs := make([]clipJob, len(usable))
	for i, a := range usable {
		jobs[i] = clipJob{asset: a, frames: counts[i], path: filepath.Join(tmpDir, fmt.Sprintf("s%d.mp4", i))}
	}

	rep.report(ctx, 10)
	ok := make([]bool, len(jobs))
	var done int
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers())
	for i := range jobs {
		g.Go(func() error {
			job := jobs[i]
			clipErr := c.renderClip(gctx, job, fps)
			if clipErr != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				logger.Warn("clip skipped",
					logging.Int("sequence_index", job.asset.SequenceIndex),
					logging.String("path", job.asset.SourcePath),
					logging.Error(clipErr),
					logging.String(logging.FieldImpact, "clip omitted from video"),
				)
			}

			mu.Lock()
			ok[i] = clipErr == nil
			done++
			percent := 10 + 40*done/len(jobs)
			mu.Unlock()
			rep.report(ctx, percent)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return RenderedVideo{}, err
	}

	var segments []string
	totalFrames := 0
	for i, job := range jobs {
		if !ok[i] {
			skipped = append(skipped, job.asset.SequenceIndex)
			continue
		}
		segments = append(segments, job.path)
		totalFrames += job.frames
	}
	if len(segments) == 0 {
		return RenderedVideo{}, ErrNoValidClips
	}
	sort.Ints(skipped)
	duration := float64(totalFrames) / float64(fps)

	rep.report(ctx, 50)
	concatPath := filepath.Join(tmpDir, "concat.mp4")
	if err := c.Encoder.Concatenate(ctx, segments, concatPath, tmpDir); err != nil {
		return RenderedVideo{}, fmt.Errorf("concatenate clips: %w", err)
	}

	rep.report(ctx, 60)
	if dir := filepath.Dir(outputPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return RenderedVideo{}, fmt.Errorf("create output dir: %w", err)
		}
	}
	rep.report(ctx, 70)
	if err := c.Encoder.MuxAudio(ctx, concatPath, audio.SourcePath, outputPath, duration); err != nil {
		return RenderedVideo{}, fmt.Errorf("attach audio: %w", err)
	}

	rep.complete(ctx)
	logger.Info("render completed",
		logging.String(logging.FieldEventType, "render_completed"),
		logging.String("output", outputPath),
		logging.Int("segments", len(segments)),
		logging.Int("skipped", len(skipped)),
		logging.Float64("duration", duration),
		logging.Duration("elapsed", time.Since(start)),
	)
	return RenderedVideo{
		Path:     outputPath,
		Width:    c.Width,
		Height:   c.Height,
		FPS:      fps,
		Duration: duration,
		Segments: len(segments),
		Skipped:  skipped,
	}, nil
}

// renderClip frames and animates one still and streams it to its own segment.
func (c *Compositor) renderClip(ctx context.Context, job clipJob, fps int) (err error) {
	if job.frames <= 0 {
		return fmt.Errorf("clip shorter than one frame (%.3fs)", job.asset.Duration)
	}
	img, err := source.Load(job.asset.SourcePath)
	if err != nil {
		return err
	}
	framed := source.Fit(img, c.Width, c.Height)

	anim := job.asset.Animation
	if anim == nil {
		anim = effects.DefaultFade()
	}

	frame := system.GetFrame(c.Width, c.Height)
	canvas := system.GetFrame(c.Width, c.Height)
	defer system.PutFrame(frame)
	defer system.PutFrame(canvas)

	w, err := c.Encoder.OpenSegment(ctx, job.path, video.SegmentParams{
		Width: c.Width, Height: c.Height, FPS: fps, Frames: job.frames,
	})
	if err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s transform failed: %v", anim.Kind(), r)
		}
		if err != nil {
			w.Abort()
		}
	}()

	clipDur := float64(job.frames) / float64(fps)
	for i := 0; i < job.frames; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		t := float64(i) / float64(fps)
		layer := anim.Apply(frame, framed, t, clipDur)
		effects.Composite(canvas, frame, layer)
		if err := w.WriteFrame(canvas); err != nil {
			return err
		}
	}
	return w.Close()
}

// FrameCounts splits durations into whole frames so that the running total
// never drifts more than half a frame from the exact cumulative time.
func FrameCounts(durations []float64, fps int) []int {
	counts := make([]int, len(durations))
	cum := 0.0
	prev := 0
	for i, d := range durations {
		cum += d
		next := int(math.Round(cum * float64(fps)))
		counts[i] = next - prev
		prev = next
	}
	return counts
}

func (c *Compositor) logger() *slog.Logger {
	if c.Logger == nil {
		return logging.NewNop()
	}
	return c.Logger
}

func (c *Compositor) reporter() progress.Reporter {
	if c.Progress == nil {
		return progress.Discard
	}
	return c.Progress
}

func (c *Compositor) fps() int {
	if c.FPS <= 0 {
		return FPS
	}
	return c.FPS
}

func (c *Compositor) workers() int {
	if c.Workers > 0 {
		return c.Workers
	}
	return system.RecommendedWorkers(c.Width * c.Height * 4)
}

// milestones keeps reported percentages monotonic across clip workers.
type milestones struct {
	mu       sync.Mutex
	last     int
	reporter progress.Reporter
	logger   *slog.Logger
}

func (m *milestones) report(ctx context.Context, percent int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if percent < m.last {
		return
	}
	m.last = percent
	m.send(ctx, progress.Progress{Percent: percent, Status: progress.StatusProcessing})
}

func (m *milestones) complete(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.last = 100
	m.send(ctx, progress.Progress{Percent: 100, Status: progress.StatusCompleted})
}

func (m *milestones) fail(ctx context.Context, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.send(context.WithoutCancel(ctx), progress.Failed(m.last, err))
}

func (m *milestones) send(ctx context.Context, p progress.Progress) {
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = time.Now().UTC()
	}
	if err := m.reporter.Report(ctx, p); err != nil {
		m.logger.Warn("progress update failed",
			logging.Int("percent", p.Percent),
			logging.Error(err),
		)
	}
}
