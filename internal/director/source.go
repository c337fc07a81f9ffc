package director

import (
	"fmt"
	"math"
	"path/filepath"
	"strings"

	"github.com/ivlev/storyreel/internal/analyzer"
	"github.com/ivlev/storyreel/internal/effects"
	"github.com/ivlev/storyreel/internal/engine"
	"github.com/ivlev/storyreel/internal/source"
)

// Options controls how FromSource lays out a plan.
type Options struct {
	Width, Height int
	FPS           int
	// Varied enables AllocateVaried instead of an even split.
	Varied bool
	Seed   int64
	// PageDir receives rendered PDF pages. Required for PDF input.
	PageDir string
	DPI     int
	// Focus aims zoom animations at the main content block of each image.
	Focus bool
}

// FromSource builds a plan from an image directory, a single image or a PDF,
// splitting the audio duration across the images.
func FromSource(src string, audio Audio, opts Options) (*Plan, error) {
	if audio.Duration <= 0 {
		return nil, fmt.Errorf("audio duration of %s must be known to allocate clips", audio.Path)
	}
	fps := opts.FPS
	if fps <= 0 {
		fps = engine.FPS
	}
	dpi := opts.DPI
	if dpi <= 0 {
		dpi = 150
	}

	s, err := source.Open(src)
	if err != nil {
		return nil, err
	}
	defer s.Close()

	stem := strings.TrimSuffix(filepath.Base(src), filepath.Ext(src))
	paths, err := source.WritePages(s, dpi, func(i int) string {
		return filepath.Join(opts.PageDir, fmt.Sprintf("%s_page_%03d.png", stem, i+1))
	})
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w in %s", engine.ErrNoImages, src)
	}

	var durations []float64
	if opts.Varied {
		durations = snap(AllocateVaried(audio.Duration, len(paths), 1.0/float64(fps), opts.Seed), fps)
	} else {
		durations = AllocateDurations(audio.Duration, len(paths), fps)
	}

	plan := &Plan{
		Version: PlanVersion,
		Title:   stem,
		Width:   opts.Width,
		Height:  opts.Height,
		Audio:   audio,
		Slides:  make([]Slide, len(paths)),
	}
	for i, p := range paths {
		plan.Slides[i] = Slide{Index: i, Input: p, Duration: durations[i]}
	}
	plan.AssignAnimations()
	if opts.Focus {
		if err := FocusZooms(plan, analyzer.NewContrastDetector()); err != nil {
			return nil, err
		}
	}
	return plan, nil
}

// FocusZooms sets focus_x and focus_y on every zoom slide without an explicit
// focus. Images with no distinct content keep the centered zoom.
func FocusZooms(plan *Plan, d analyzer.Detector) error {
	for i := range plan.Slides {
		s := &plan.Slides[i]
		switch effects.Kind(strings.ToLower(s.Animation.Kind)) {
		case effects.KindZoomIn, effects.KindZoomOut:
		default:
			continue
		}
		if _, set := s.Animation.Params["focus_x"]; set {
			continue
		}
		img, err := source.Load(plan.resolve(s.Input))
		if err != nil {
			return fmt.Errorf("slide %d: %w", s.Index, err)
		}
		fx, fy, ok, err := analyzer.Focus(d, img)
		if err != nil {
			return fmt.Errorf("slide %d: %w", s.Index, err)
		}
		if !ok {
			continue
		}
		if s.Animation.Params == nil {
			s.Animation.Params = effects.Params{}
		}
		s.Animation.Params["focus_x"] = round3(fx)
		s.Animation.Params["focus_y"] = round3(fy)
	}
	return nil
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

// snap moves clip boundaries onto the frame grid without changing the total frame count.
func snap(durations []float64, fps int) []float64 {
	counts := engine.FrameCounts(durations, fps)
	out := make([]float64, len(counts))
	for i, c := range counts {
		out[i] = float64(c) / float64(fps)
	}
	return out
}
