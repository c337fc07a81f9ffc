package burnin

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ivlev/storyreel/internal/captions"
	"github.com/ivlev/storyreel/internal/logging"
	"github.com/ivlev/storyreel/internal/video"
)

var ErrVideoNotFound = errors.New("video to caption not found")

// Prober reads the geometry and frame rate of a video.
type Prober interface {
	Probe(ctx context.Context, path string) (video.Info, error)
}

// Renderer burns subtitle files into videos.
type Renderer struct {
	Transcoder video.Transcoder
	Prober     Prober
	Logger     *slog.Logger
}

// pipelineDepth is how many decoded frames may wait for the overlay stage.
const pipelineDepth = 3

type cueLayout struct {
	start, end float64
	frags      []Fragment
}

// OutputPath derives <stem>_subbed<ext> from videoPath.
func OutputPath(videoPath string) string {
	ext := filepath.Ext(videoPath)
	return strings.TrimSuffix(videoPath, ext) + "_subbed" + ext
}

// Burn overlays every cue of subtitlePath onto videoPath and writes outputPath,
// keeping the source audio. An empty outputPath uses OutputPath.
func (r *Renderer) Burn(ctx context.Context, videoPath, subtitlePath, outputPath string, style Style) (string, error) {
	logger := r.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	if _, err := os.Stat(videoPath); err != nil {
		return "", fmt.Errorf("%w: %s", ErrVideoNotFound, videoPath)
	}
	if outputPath == "" {
		outputPath = OutputPath(videoPath)
	}
	style = style.withDefaults()

	cues, err := captions.ParseFile(subtitlePath)
	if err != nil {
		return "", err
	}
	info, err := r.Prober.Probe(ctx, videoPath)
	if err != nil {
		return "", err
	}
	if info.Width <= 0 || info.Height <= 0 {
		return "", fmt.Errorf("probe %s: invalid frame size %dx%d", videoPath, info.Width, info.Height)
	}
	fps, rate := info.FPS, info.FrameRate
	if fps <= 0 {
		fps, rate = 24, "24"
	}
	if rate == "" {
		rate = strconv.FormatFloat(fps, 'f', -1, 64)
	}

	faces, err := NewFaces(style.FontSize)
	if err != nil {
		return "", err
	}
	defer faces.Close()

	layouts := make([]cueLayout, 0, len(cues))
	for _, c := range cues {
		if c.End <= c.Start {
			continue
		}
		if frags := Layout(c, info.Width, info.Height, style, faces); len(frags) > 0 {
			layouts = append(layouts, cueLayout{start: c.Start, end: c.End, frags: frags})
		}
	}
	sort.SliceStable(layouts, func(i, j int) bool { return layouts[i].start < layouts[j].start })

	paint := newPainter(faces, style, logger)
	start := time.Now()
	frames, err := r.overlay(ctx, videoPath, outputPath, info, fps, rate, func(frame *image.RGBA, t float64) {
		for _, l := range layouts {
			if l.start > t {
				break
			}
			if t < l.end {
				for _, f := range l.frags {
					paint(frame, f)
				}
			}
		}
	})
	if err != nil {
		os.Remove(outputPath)
		return "", err
	}

	logger.Info("subtitles burned",
		logging.String(logging.FieldEventType, "burnin_completed"),
		logging.String("output", outputPath),
		logging.Int("cues", len(layouts)),
		logging.Int("frames", frames),
		logging.Duration("elapsed", time.Since(start)),
	)
	return outputPath, nil
}

// overlay runs decode → draw → encode. The decoder feeds a bounded channel of
// reusable frames; the consumer draws and streams them to the encoder. Frame n
// is drawn at n/fps, and rate is handed to the encoder unchanged.
func (r *Renderer) overlay(ctx context.Context, src, dst string, info video.Info, fps float64, rate string, draw func(*image.RGBA, float64)) (int, error) {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return 0, fmt.Errorf("create output dir: %w", err)
	}

	reader, err := r.Transcoder.Decode(ctx, src, info.Width, info.Height)
	if err != nil {
		return 0, err
	}
	defer reader.Close()
	writer, err := r.Transcoder.Overlay(ctx, src, dst, video.SegmentParams{
		Width:  info.Width,
		Height: info.Height,
		FPS:    int(math.Round(fps)),
		Rate:   rate,
	})
	if err != nil {
		return 0, err
	}

	// процессы ffmpeg живут на ctx: gctx отменяется сразу после g.Wait
	g, gctx := errgroup.WithContext(ctx)
	free := make(chan *image.RGBA, pipelineDepth)
	for range pipelineDepth {
		free <- image.NewRGBA(image.Rect(0, 0, info.Width, info.Height))
	}
	ready := make(chan *image.RGBA, pipelineDepth)

	g.Go(func() error {
		defer close(ready)
		for {
			var buf *image.RGBA
			select {
			case buf = <-free:
			case <-gctx.Done():
				return gctx.Err()
			}
			err := reader.ReadFrame(buf)
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return err
			}
			select {
			case ready <- buf:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
	})

	frames := 0
	g.Go(func() error {
		for buf := range ready {
			draw(buf, float64(frames)/fps)
			if err := writer.WriteFrame(buf); err != nil {
				return err
			}
			frames++
			free <- buf
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		writer.Abort()
		return frames, err
	}
	if err := writer.Close(); err != nil {
		return frames, err
	}
	if frames == 0 {
		return 0, fmt.Errorf("decode %s: no frames", src)
	}
	return frames, nil
}

// newPainter resolves colors once per distinct value and draws fragments.
func newPainter(faces *Faces, style Style, logger *slog.Logger) func(*image.RGBA, Fragment) {
	fallback, err := ParseColor(style.Color)
	if err != nil {
		fallback = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	}
	var bg color.Color
	if c, err := ParseColor(style.Background); err == nil {
		bg = c
	}

	cache := map[string]color.RGBA{}
	return func(frame *image.RGBA, f Fragment) {
		fg, ok := cache[f.Color]
		if !ok {
			c, err := ParseColor(f.Color)
			if err != nil {
				logger.Warn("unknown caption color",
					logging.String("color", f.Color),
					logging.String(logging.FieldImpact, "default color used"),
				)
				c = fallback
			}
			cache[f.Color] = c
			fg = c
		}
		faces.Draw(frame, f, fg, bg)
	}
}
