package effects

import (
	"errors"
	"image"
	"image/color"
	"math"
	"testing"

	"github.com/ivlev/storyreel/internal/logging"
)

func solid(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
	}
	return img
}

func TestCropBox(t *testing.T) {
	tests := []struct {
		w, h     int
		scale    float64
		wantSize image.Point
		wantCrop image.Rectangle
	}{
		{100, 50, 1.25, image.Pt(125, 62), image.Rect(12, 6, 112, 56)},
		{720, 1280, 1.5, image.Pt(1080, 1920), image.Rect(180, 320, 900, 1600)},
		{100, 100, 1.0, image.Pt(100, 100), image.Rect(0, 0, 100, 100)},
		{101, 33, 1.05, image.Pt(106, 34), image.Rect(2, 0, 103, 33)},
	}
	for _, tt := range tests {
		size, crop := CropBox(tt.w, tt.h, tt.scale)
		if size != tt.wantSize || crop != tt.wantCrop {
			t.Errorf("CropBox(%d, %d, %.2f) = %v %v, want %v %v",
				tt.w, tt.h, tt.scale, size, crop, tt.wantSize, tt.wantCrop)
		}
		if crop.Dx() != tt.w || crop.Dy() != tt.h {
			t.Errorf("crop %v does not match target %dx%d", crop, tt.w, tt.h)
		}
	}
}

func TestZoomFamilyNeverExposesBorder(t *testing.T) {
	red := color.RGBA{R: 255, A: 255}
	src := solid(64, 36, red)
	const duration = 3.0

	effects := map[string]Effect{
		"zoom_in":     mustParse(t, "zoom_in", nil),
		"zoom_out":    mustParse(t, "zoom_out", nil),
		"pulse":       mustParse(t, "pulse", nil),
		"pulse_large": mustParse(t, "pulse", Params{"scale_factor": 0.4, "frequency": 3}),
		"zoom_steep":  mustParse(t, "zoom_in", Params{"zoom_start": 1.0, "zoom_end": 2.3}),
	}
	for name, eff := range effects {
		t.Run(name, func(t *testing.T) {
			dst := image.NewRGBA(src.Bounds())
			for step := 0; step <= 24; step++ {
				ts := duration * float64(step) / 24
				layer := eff.Apply(dst, src, ts, duration)
				if dst.Bounds() != src.Bounds() {
					t.Fatalf("t=%.2f bounds %v, want %v", ts, dst.Bounds(), src.Bounds())
				}
				if layer.Offset != (image.Point{}) || layer.Opacity != 1 {
					t.Fatalf("t=%.2f unexpected layer %+v", ts, layer)
				}
				assertAllRed(t, dst, ts)
			}
		})
	}
}

func assertAllRed(t *testing.T, img *image.RGBA, ts float64) {
	t.Helper()
	for y := 0; y < img.Bounds().Dy(); y++ {
		for x := 0; x < img.Bounds().Dx(); x++ {
			c := img.RGBAAt(x, y)
			if c.R < 250 || c.G > 5 || c.B > 5 || c.A != 255 {
				t.Fatalf("t=%.2f pixel (%d,%d) = %v, border exposed", ts, x, y, c)
			}
		}
	}
}

func TestZoomRejectsScaleBelowOne(t *testing.T) {
	_, err := Parse("zoom_in", Params{"zoom_start": 0.8, "zoom_end": 1.2})
	if !errors.Is(err, ErrInvalidParams) {
		t.Fatalf("err = %v, want ErrInvalidParams", err)
	}
}

func TestZoomScaleInterpolation(t *testing.T) {
	z := mustParse(t, "zoom_in", nil).(Zoom)
	if got := z.scaleAt(0, 4); got != 1.0 {
		t.Errorf("scale at 0 = %v", got)
	}
	if got := z.scaleAt(2, 4); math.Abs(got-1.25) > 1e-9 {
		t.Errorf("scale at half = %v", got)
	}
	out := mustParse(t, "zoom_out", nil).(Zoom)
	if out.Start != 1.5 || out.End != 1.0 {
		t.Errorf("zoom_out preset = %+v", out)
	}
}

func TestPulseClampsTroughs(t *testing.T) {
	p := Pulse{ScaleFactor: 0.05, Frequency: 2}
	if got := p.scaleAt(0.25); math.Abs(got-1.05) > 1e-9 {
		t.Errorf("peak = %v, want 1.05", got)
	}
	if got := p.scaleAt(0.75); got != 1 {
		t.Errorf("trough = %v, want clamp to 1", got)
	}
}

func TestResolveUnknownKindFallsBackToFade(t *testing.T) {
	eff := Resolve("unknown_type", nil, logging.NewNop())
	fade, ok := eff.(Fade)
	if !ok {
		t.Fatalf("got %T, want Fade", eff)
	}
	if fade.In != 0.5 || fade.Out != 0.5 {
		t.Errorf("fade = %+v, want 0.5/0.5", fade)
	}
	if _, err := Parse("unknown_type", nil); !errors.Is(err, ErrUnknownKind) {
		t.Errorf("Parse err = %v, want ErrUnknownKind", err)
	}
}

func TestResolveInvalidParamsUsesKindDefaults(t *testing.T) {
	eff := Resolve("zoom_in", Params{"zoom_start": 0.5}, nil)
	z, ok := eff.(Zoom)
	if !ok || z.Start != 1.0 || z.End != 1.5 {
		t.Fatalf("got %#v, want default zoom_in", eff)
	}
}

func TestParamsRoundTripThroughParse(t *testing.T) {
	for _, kind := range Kinds {
		eff := mustParse(t, string(kind), nil)
		again := mustParse(t, string(eff.Kind()), eff.Params())
		if again != eff {
			t.Errorf("%s: rebuilt %#v, want %#v", kind, again, eff)
		}
	}
}

func TestFadeOpacity(t *testing.T) {
	f := DefaultFade()
	tests := []struct {
		t, want float64
	}{
		{0, 0},
		{0.25, 0.5},
		{0.5, 1},
		{1.5, 1},
		{2.75, 0.5},
		{3.0, 0},
	}
	for _, tt := range tests {
		if got := f.opacity(tt.t, 3.0); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("opacity(%.2f) = %v, want %v", tt.t, got, tt.want)
		}
	}
}

func TestFadeKeepsPixels(t *testing.T) {
	src := solid(8, 8, color.RGBA{G: 200, A: 255})
	dst := image.NewRGBA(src.Bounds())
	layer := DefaultFade().Apply(dst, src, 0.25, 2)
	if dst.RGBAAt(3, 3) != src.RGBAAt(3, 3) {
		t.Error("fade must not alter pixel content")
	}
	if layer.Opacity != 0.5 {
		t.Errorf("opacity = %v", layer.Opacity)
	}
}

func TestSlideOffsets(t *testing.T) {
	s := Slide{TransitionTime: 0.5, Direction: Horizontal}
	tests := []struct {
		t    float64
		want image.Point
	}{
		{0, image.Pt(-100, 0)},
		{0.25, image.Pt(-50, 0)},
		{1.0, image.Pt(0, 0)},
		{1.75, image.Pt(50, 0)},
		{2.0, image.Pt(100, 0)},
	}
	for _, tt := range tests {
		if got := s.offset(tt.t, 2.0, 100, 60); got != tt.want {
			t.Errorf("offset(%.2f) = %v, want %v", tt.t, got, tt.want)
		}
	}
	v := Slide{TransitionTime: 0.5, Direction: Vertical}
	if got := v.offset(0.25, 2.0, 100, 60); got != image.Pt(0, -30) {
		t.Errorf("vertical offset = %v", got)
	}
}

func TestRotateClipsCorners(t *testing.T) {
	src := solid(100, 100, color.RGBA{R: 255, A: 255})
	dst := image.NewRGBA(src.Bounds())
	Rotate{MaxAngle: 5}.Apply(dst, src, 1.5, 3.0)
	if dst.Bounds() != src.Bounds() {
		t.Fatalf("canvas expanded to %v", dst.Bounds())
	}
	if c := dst.RGBAAt(50, 50); c.R < 250 || c.A != 255 {
		t.Errorf("center = %v, want red", c)
	}
	if c := dst.RGBAAt(0, 0); c.A != 0 {
		t.Errorf("corner = %v, want clipped (transparent)", c)
	}

	canvas := image.NewRGBA(src.Bounds())
	Composite(canvas, dst, opaque)
	if c := canvas.RGBAAt(0, 0); c != (color.RGBA{A: 255}) {
		t.Errorf("composited corner = %v, want black", c)
	}
}

func TestCompositeOffsetAndOpacity(t *testing.T) {
	frame := solid(10, 4, color.RGBA{R: 255, A: 255})
	canvas := image.NewRGBA(frame.Bounds())

	Composite(canvas, frame, Layer{Offset: image.Pt(5, 0), Opacity: 1})
	if c := canvas.RGBAAt(2, 1); c != (color.RGBA{A: 255}) {
		t.Errorf("uncovered pixel = %v, want black", c)
	}
	if c := canvas.RGBAAt(7, 1); c.R != 255 {
		t.Errorf("covered pixel = %v, want red", c)
	}

	Composite(canvas, frame, Layer{Opacity: 0.5})
	if c := canvas.RGBAAt(2, 1); c.R < 126 || c.R > 129 {
		t.Errorf("half opacity pixel = %v", c)
	}
}

func mustParse(t *testing.T, kind string, p Params) Effect {
	t.Helper()
	eff, err := Parse(kind, p)
	if err != nil {
		t.Fatalf("Parse(%q): %v", kind, err)
	}
	return eff
}

func TestCropBoxAtFollowsFocus(t *testing.T) {
	tests := []struct {
		name   string
		fx, fy float64
		want   image.Rectangle
	}{
		{"center", 0.5, 0.5, image.Rect(25, 25, 125, 125)},
		{"top left clamps", 0, 0, image.Rect(0, 0, 100, 100)},
		{"bottom right clamps", 1, 1, image.Rect(50, 50, 150, 150)},
		{"off center", 0.375, 0.625, image.Rect(6, 43, 106, 143)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, crop := CropBoxAt(100, 100, 1.5, tt.fx, tt.fy)
			if crop != tt.want {
				t.Fatalf("crop = %v, want %v", crop, tt.want)
			}
		})
	}
}

func TestZoomFocusParams(t *testing.T) {
	z := mustParse(t, "zoom_in", Params{"focus_x": 0.2, "focus_y": 0.8}).(Zoom)
	if z.FocusX != 0.2 || z.FocusY != 0.8 {
		t.Fatalf("focus = (%v, %v)", z.FocusX, z.FocusY)
	}
	again := mustParse(t, "zoom_in", z.Params())
	if again != z {
		t.Fatalf("rebuilt %#v, want %#v", again, z)
	}
	if _, ok := mustParse(t, "zoom_out", nil).Params()["focus_x"]; ok {
		t.Fatal("centered zoom should not carry focus params")
	}
	if _, err := Parse("zoom_in", Params{"focus_x": 1.5}); !errors.Is(err, ErrInvalidParams) {
		t.Fatalf("err = %v, want ErrInvalidParams", err)
	}
}
