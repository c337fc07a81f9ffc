package effects

import (
	"image"
	"image/color"
	"math"

	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
)

// CropBox returns the size of a w×h frame upscaled by scale and the centered w×h
// crop inside it. Offsets are truncated to whole pixels.
func CropBox(w, h int, scale float64) (image.Point, image.Rectangle) {
	return CropBoxAt(w, h, scale, 0.5, 0.5)
}

// CropBoxAt is CropBox with the crop centered on the normalized focus point
// (fx, fy) of the upscaled frame, shifted as needed to stay inside it.
func CropBoxAt(w, h int, scale, fx, fy float64) (image.Point, image.Rectangle) {
	sw := int(float64(w) * scale)
	sh := int(float64(h) * scale)
	if sw < w {
		sw = w
	}
	if sh < h {
		sh = h
	}
	x0 := clampInt(int(fx*float64(sw)-float64(w)/2), 0, sw-w)
	y0 := clampInt(int(fy*float64(sh)-float64(h)/2), 0, sh-h)
	return image.Pt(sw, sh), image.Rect(x0, y0, x0+w, y0+h)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// scaleCrop renders the CropBoxAt region of src upscaled by scale into dst. The
// upscaled image is never materialized: the crop is one affine resample.
func scaleCrop(dst, src *image.RGBA, scale, fx, fy float64) {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	size, crop := CropBoxAt(w, h, scale, fx, fy)
	if size.X == w && size.Y == h {
		copyFrame(dst, src)
		return
	}
	sx := float64(size.X) / float64(w)
	sy := float64(size.Y) / float64(h)
	m := f64.Aff3{
		sx, 0, -float64(crop.Min.X) - sx*float64(b.Min.X),
		0, sy, -float64(crop.Min.Y) - sy*float64(b.Min.Y),
	}
	clearFrame(dst)
	draw.BiLinear.Transform(dst, m, src, b, draw.Src, nil)
}

// rotateFrame turns src counter-clockwise by degrees around its center. Pixels
// that fall outside the source stay transparent.
func rotateFrame(dst, src *image.RGBA, degrees float64) {
	if degrees == 0 {
		copyFrame(dst, src)
		return
	}
	b := src.Bounds()
	cx := float64(b.Min.X) + float64(b.Dx())/2
	cy := float64(b.Min.Y) + float64(b.Dy())/2
	rad := degrees * math.Pi / 180
	cos, sin := math.Cos(rad), math.Sin(rad)
	m := f64.Aff3{
		cos, sin, cx - cos*cx - sin*cy,
		-sin, cos, cy + sin*cx - cos*cy,
	}
	clearFrame(dst)
	draw.BiLinear.Transform(dst, m, src, b, draw.Src, nil)
}

// Composite flattens frame onto canvas over a black background.
func Composite(canvas, frame *image.RGBA, l Layer) {
	draw.Draw(canvas, canvas.Bounds(), image.Black, image.Point{}, draw.Src)
	if l.Opacity <= 0 {
		return
	}
	r := frame.Bounds().Add(l.Offset).Intersect(canvas.Bounds())
	if r.Empty() {
		return
	}
	sp := r.Min.Sub(l.Offset)
	if l.Opacity >= 1 {
		draw.Draw(canvas, r, frame, sp, draw.Over)
		return
	}
	mask := image.NewUniform(color.Alpha{A: uint8(math.Round(l.Opacity * 255))})
	draw.DrawMask(canvas, r, frame, sp, mask, image.Point{}, draw.Over)
}

func copyFrame(dst, src *image.RGBA) {
	if dst == src {
		return
	}
	if dst.Rect == src.Rect && dst.Stride == src.Stride {
		copy(dst.Pix, src.Pix)
		return
	}
	draw.Draw(dst, dst.Bounds(), src, src.Bounds().Min, draw.Src)
}

func clearFrame(img *image.RGBA) {
	clear(img.Pix)
}
