// Package director builds render plans: which images play in which order, for
// how long and with which animation.
package director

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/ivlev/storyreel/internal/effects"
	"github.com/ivlev/storyreel/internal/engine"
)

// PlanVersion is written into every new plan.
const PlanVersion = "1.0"

// DefaultCycle is the animation rotation for slides that leave the kind empty.
var DefaultCycle = []effects.Kind{effects.KindZoomIn, effects.KindZoomOut, effects.KindPulse, effects.KindFade}

var ErrEmptyPlan = errors.New("plan has no slides")

// Plan is a complete render manifest for one video.
type Plan struct {
	Version string  `yaml:"version"`
	VideoID int64   `yaml:"video_id,omitempty"`
	Title   string  `yaml:"title,omitempty"`
	Width   int     `yaml:"width"`
	Height  int     `yaml:"height"`
	Audio   Audio   `yaml:"audio"`
	Slides  []Slide `yaml:"slides"`

	// baseDir resolves relative paths of a plan read from disk.
	baseDir string
}

// Audio is the narration track of a plan.
type Audio struct {
	Path     string  `yaml:"path"`
	Duration float64 `yaml:"duration"` // seconds, 0 means "probe it"
}

// Slide is a single image with its animation.
type Slide struct {
	Index     int       `yaml:"index"`
	Input     string    `yaml:"input"`
	Duration  float64   `yaml:"duration"` // seconds
	Animation Animation `yaml:"animation,omitempty"`
}

// Animation names an effect kind and its parameters.
type Animation struct {
	Kind   string         `yaml:"kind,omitempty"`
	Params effects.Params `yaml:"params,omitempty"`
}

// Validate checks the plan is renderable.
func (p *Plan) Validate() error {
	if len(p.Slides) == 0 {
		return ErrEmptyPlan
	}
	if p.Width <= 0 || p.Height <= 0 {
		return fmt.Errorf("plan: invalid frame size %dx%d", p.Width, p.Height)
	}
	if strings.TrimSpace(p.Audio.Path) == "" {
		return errors.New("plan: audio.path is required")
	}
	seen := make(map[int]bool, len(p.Slides))
	for i, s := range p.Slides {
		if strings.TrimSpace(s.Input) == "" {
			return fmt.Errorf("plan: slide %d has no input", i)
		}
		if s.Duration < 0 {
			return fmt.Errorf("plan: slide %d has negative duration", i)
		}
		if seen[s.Index] {
			return fmt.Errorf("plan: duplicate slide index %d", s.Index)
		}
		seen[s.Index] = true
	}
	return nil
}

// AssignAnimations fills empty animation kinds by cycling DefaultCycle.
func (p *Plan) AssignAnimations() {
	n := 0
	for i := range p.Slides {
		if strings.TrimSpace(p.Slides[i].Animation.Kind) != "" {
			continue
		}
		p.Slides[i].Animation.Kind = string(DefaultCycle[n%len(DefaultCycle)])
		n++
	}
}

// TotalDuration sums the slide durations.
func (p *Plan) TotalDuration() float64 {
	total := 0.0
	for _, s := range p.Slides {
		total += s.Duration
	}
	return total
}

// ImageAssets converts slides into compositor input. Unknown animation kinds
// fall back to a fade and are logged.
func (p *Plan) ImageAssets(logger *slog.Logger) []engine.ImageAsset {
	assets := make([]engine.ImageAsset, 0, len(p.Slides))
	for _, s := range p.Slides {
		assets = append(assets, engine.ImageAsset{
			SequenceIndex: s.Index,
			SourcePath:    p.resolve(s.Input),
			Duration:      s.Duration,
			Animation:     effects.Resolve(s.Animation.Kind, s.Animation.Params, logger),
		})
	}
	return assets
}

// AudioTrack returns the narration as compositor input.
func (p *Plan) AudioTrack() engine.AudioTrack {
	return engine.AudioTrack{SourcePath: p.resolve(p.Audio.Path), Duration: p.Audio.Duration}
}

func (p *Plan) resolve(path string) string {
	if path == "" || filepath.IsAbs(path) || p.baseDir == "" {
		return path
	}
	return filepath.Join(p.baseDir, path)
}
