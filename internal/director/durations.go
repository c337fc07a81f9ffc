package director

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"github.com/ivlev/storyreel/internal/engine"
)

// ErrNoTimeLeft means the timed slides already use up the audio.
var ErrNoTimeLeft = errors.New("no audio time left for untimed slides")

// MaxVariation bounds the clip-to-clip change of AllocateVaried.
const MaxVariation = 0.15

// AllocateDurations splits total evenly over n clips on the fps frame grid.
// Clip boundaries are rounded cumulatively, so the durations sum to total
// rounded to whole frames.
func AllocateDurations(total float64, n, fps int) []float64 {
	if n <= 0 || total <= 0 || fps <= 0 {
		return nil
	}
	frames := math.Round(total * float64(fps))
	durations := make([]float64, n)
	prev := 0.0
	for i := range durations {
		boundary := math.Round(frames * float64(i+1) / float64(n))
		durations[i] = (boundary - prev) / float64(fps)
		prev = boundary
	}
	return durations
}

// AllocateVaried is AllocateDurations with a random drift: the first clip
// deviates up to ±MaxVariation from the even share and every next clip up to
// ±MaxVariation from its predecessor. Clips shorter than minClip are raised to
// it, then everything is rescaled so the sum is total. The same seed gives the
// same durations.
func AllocateVaried(total float64, n int, minClip float64, seed int64) []float64 {
	if n <= 0 || total <= 0 {
		return nil
	}
	r := rand.New(rand.NewSource(seed))
	base := total / float64(n)

	durations := make([]float64, n)
	// отклонение первой страницы от базовой длительности
	durations[0] = base * (1 + (r.Float64()*2*MaxVariation - MaxVariation))
	for i := 1; i < n; i++ {
		durations[i] = durations[i-1] * (1 + (r.Float64()*2*MaxVariation - MaxVariation))
		if durations[i] < minClip {
			durations[i] = minClip
		}
	}

	// масштабируем, чтобы сумма была в точности total
	sum := 0.0
	for _, d := range durations {
		sum += d
	}
	scale := total / sum
	for i := range durations {
		durations[i] *= scale
	}
	return durations
}

// FillDurations gives every slide without a duration an even share of the
// audio time the timed slides leave over, on the fps frame grid. Slides that
// already have a duration are kept as they are.
func (p *Plan) FillDurations(total float64, fps int) error {
	var untimed []int
	used := 0.0
	for i, s := range p.Slides {
		if s.Duration > 0 {
			used += s.Duration
			continue
		}
		untimed = append(untimed, i)
	}
	if len(untimed) == 0 {
		return nil
	}
	if fps <= 0 {
		fps = engine.FPS
	}
	shares := AllocateDurations(total-used, len(untimed), fps)
	for _, d := range shares {
		if d <= 0 {
			shares = nil
			break
		}
	}
	if shares == nil {
		return fmt.Errorf("%w: %d untimed slides, %.2fs of %.2fs audio left", ErrNoTimeLeft, len(untimed), max(total-used, 0), total)
	}
	for k, i := range untimed {
		p.Slides[i].Duration = shares[k]
	}
	return nil
}
