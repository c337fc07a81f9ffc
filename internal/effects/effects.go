package effects

import (
	"errors"
	"fmt"
	"image"
	"log/slog"
	"math"
	"sort"
	"strings"

	"github.com/ivlev/storyreel/internal/logging"
)

// Kind names an animation.
type Kind string

const (
	KindFade    Kind = "fade"
	KindZoomIn  Kind = "zoom_in"
	KindZoomOut Kind = "zoom_out"
	KindSlide   Kind = "slide"
	KindPulse   Kind = "pulse"
	KindRotate  Kind = "rotate"
)

// Kinds lists every supported animation in a stable order.
var Kinds = []Kind{KindFade, KindZoomIn, KindZoomOut, KindSlide, KindPulse, KindRotate}

var (
	ErrUnknownKind   = errors.New("unknown animation kind")
	ErrInvalidParams = errors.New("invalid animation parameters")
)

// Params holds named float parameters of an animation.
type Params map[string]float64

func (p Params) value(key string, def float64) float64 {
	if v, ok := p[key]; ok {
		return v
	}
	return def
}

// Keys returns the parameter names in sorted order.
func (p Params) Keys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Layer places a rendered frame on the clip canvas.
type Layer struct {
	Offset  image.Point
	Opacity float64
}

var opaque = Layer{Opacity: 1}

// Effect animates a still image over a clip of the given duration.
type Effect interface {
	Kind() Kind
	// Params returns the parameters that rebuild this effect through Parse.
	Params() Params
	// Apply renders instant t into dst, which must have the bounds of src.
	Apply(dst, src *image.RGBA, t, duration float64) Layer
}

// Fade ramps opacity in over In seconds and out over the last Out seconds.
type Fade struct {
	In, Out float64
}

// DefaultFade is the fallback for unknown animation kinds.
func DefaultFade() Fade { return Fade{In: 0.5, Out: 0.5} }

func (f Fade) Kind() Kind { return KindFade }

func (f Fade) Params() Params { return Params{"fade_in": f.In, "fade_out": f.Out} }

func (f Fade) Apply(dst, src *image.RGBA, t, duration float64) Layer {
	copyFrame(dst, src)
	return Layer{Opacity: f.opacity(t, duration)}
}

func (f Fade) opacity(t, duration float64) float64 {
	op := 1.0
	if f.In > 0 && t < f.In {
		op = math.Min(op, t/f.In)
	}
	if f.Out > 0 && t > duration-f.Out {
		op = math.Min(op, (duration-t)/f.Out)
	}
	return clamp01(op)
}

// Zoom interpolates the scale linearly from Start to End over the clip. The
// crop follows the normalized focus point, the frame center by default.
type Zoom struct {
	Variant        Kind
	Start, End     float64
	FocusX, FocusY float64
}

// NewZoom validates that the scale never drops below 1, which would expose borders.
func NewZoom(variant Kind, start, end float64) (Zoom, error) {
	if start < 1 || end < 1 {
		return Zoom{}, fmt.Errorf("%w: %s scale %.3f→%.3f must stay >= 1", ErrInvalidParams, variant, start, end)
	}
	return Zoom{Variant: variant, Start: start, End: end, FocusX: 0.5, FocusY: 0.5}, nil
}

// WithFocus moves the zoom toward (fx, fy), both in [0, 1].
func (z Zoom) WithFocus(fx, fy float64) (Zoom, error) {
	if fx < 0 || fx > 1 || fy < 0 || fy > 1 {
		return z, fmt.Errorf("%w: focus (%.3f, %.3f) outside [0, 1]", ErrInvalidParams, fx, fy)
	}
	z.FocusX, z.FocusY = fx, fy
	return z, nil
}

func (z Zoom) Kind() Kind { return z.Variant }

func (z Zoom) Params() Params {
	p := Params{"zoom_start": z.Start, "zoom_end": z.End}
	if z.FocusX != 0.5 || z.FocusY != 0.5 {
		p["focus_x"], p["focus_y"] = z.FocusX, z.FocusY
	}
	return p
}

func (z Zoom) Apply(dst, src *image.RGBA, t, duration float64) Layer {
	scaleCrop(dst, src, z.scaleAt(t, duration), z.FocusX, z.FocusY)
	return opaque
}

func (z Zoom) scaleAt(t, duration float64) float64 {
	if duration <= 0 {
		return z.Start
	}
	return lerp(z.Start, z.End, t/duration)
}

// Pulse oscillates the scale as 1 + ScaleFactor*sin(Frequency*t*π).
type Pulse struct {
	ScaleFactor float64
	Frequency   float64
}

func (p Pulse) Kind() Kind { return KindPulse }

func (p Pulse) Params() Params {
	return Params{"scale_factor": p.ScaleFactor, "frequency": p.Frequency}
}

func (p Pulse) Apply(dst, src *image.RGBA, t, _ float64) Layer {
	scaleCrop(dst, src, p.scaleAt(t), 0.5, 0.5)
	return opaque
}

// scaleAt clamps troughs of the sine to 1.
func (p Pulse) scaleAt(t float64) float64 {
	return math.Max(1, 1+p.ScaleFactor*math.Sin(p.Frequency*t*math.Pi))
}

// Rotate swings the frame by MaxAngle*sin(t*π/duration) degrees without expanding the canvas.
type Rotate struct {
	MaxAngle float64
}

func (r Rotate) Kind() Kind { return KindRotate }

func (r Rotate) Params() Params { return Params{"max_angle": r.MaxAngle} }

func (r Rotate) Apply(dst, src *image.RGBA, t, duration float64) Layer {
	rotateFrame(dst, src, r.angleAt(t, duration))
	return opaque
}

func (r Rotate) angleAt(t, duration float64) float64 {
	if duration <= 0 {
		return 0
	}
	return r.MaxAngle * math.Sin(t*math.Pi/duration)
}

// Direction selects the slide axis.
type Direction int

const (
	Horizontal Direction = iota
	Vertical
)

func (d Direction) String() string {
	if d == Vertical {
		return "vertical"
	}
	return "horizontal"
}

// Slide moves the whole clip in from off-canvas and back out again.
type Slide struct {
	TransitionTime float64
	Direction      Direction
}

func (s Slide) Kind() Kind { return KindSlide }

func (s Slide) Params() Params {
	return Params{"transition_time": s.TransitionTime, "direction": float64(s.Direction)}
}

func (s Slide) Apply(dst, src *image.RGBA, t, duration float64) Layer {
	copyFrame(dst, src)
	b := src.Bounds()
	return Layer{Offset: s.offset(t, duration, b.Dx(), b.Dy()), Opacity: 1}
}

func (s Slide) offset(t, duration float64, w, h int) image.Point {
	tt := s.TransitionTime
	var frac float64
	switch {
	case tt <= 0:
	case t < tt:
		frac = t/tt - 1
	case t > duration-tt:
		frac = (t - (duration - tt)) / tt
	}
	if s.Direction == Vertical {
		return image.Pt(0, int(frac*float64(h)))
	}
	return image.Pt(int(frac*float64(w)), 0)
}

// Parse builds the effect for kind, filling missing parameters with defaults.
func Parse(kind string, params Params) (Effect, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(kind)))
	switch k {
	case KindFade:
		f := Fade{In: params.value("fade_in", 0.5), Out: params.value("fade_out", 0.5)}
		if f.In < 0 || f.Out < 0 {
			return nil, fmt.Errorf("%w: fade durations must be >= 0", ErrInvalidParams)
		}
		return f, nil
	case KindZoomIn, KindZoomOut:
		start, end := 1.0, 1.5
		if k == KindZoomOut {
			start, end = 1.5, 1.0
		}
		z, err := NewZoom(k, params.value("zoom_start", start), params.value("zoom_end", end))
		if err != nil {
			return nil, err
		}
		if z, err = z.WithFocus(params.value("focus_x", 0.5), params.value("focus_y", 0.5)); err != nil {
			return nil, err
		}
		return z, nil
	case KindPulse:
		p := Pulse{ScaleFactor: params.value("scale_factor", 0.05), Frequency: params.value("frequency", 2.0)}
		if p.ScaleFactor < 0 {
			return nil, fmt.Errorf("%w: pulse scale_factor must be >= 0", ErrInvalidParams)
		}
		return p, nil
	case KindRotate:
		return Rotate{MaxAngle: params.value("max_angle", 5.0)}, nil
	case KindSlide:
		s := Slide{TransitionTime: params.value("transition_time", 0.5)}
		switch params.value("direction", 0) {
		case 0:
			s.Direction = Horizontal
		case 1:
			s.Direction = Vertical
		default:
			return nil, fmt.Errorf("%w: slide direction must be 0 or 1", ErrInvalidParams)
		}
		if s.TransitionTime < 0 {
			return nil, fmt.Errorf("%w: slide transition_time must be >= 0", ErrInvalidParams)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}

// Resolve never fails. Unknown kinds become DefaultFade; bad parameters fall back
// to the kind's defaults. Both cases are logged.
func Resolve(kind string, params Params, logger *slog.Logger) Effect {
	eff, err := Parse(kind, params)
	if err == nil {
		return eff
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if errors.Is(err, ErrUnknownKind) {
		logger.Warn("unknown animation kind, using fade",
			logging.String("kind", kind),
			logging.String(logging.FieldEventType, "animation_fallback"),
		)
		return DefaultFade()
	}
	logger.Warn("invalid animation parameters, using defaults",
		logging.String("kind", kind),
		logging.Error(err),
		logging.String(logging.FieldEventType, "animation_fallback"),
	)
	eff, _ = Parse(kind, nil)
	return eff
}

// lerp performs linear interpolation between a and b
func lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
