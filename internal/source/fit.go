package source

import (
	"image"

	"golang.org/x/image/draw"
)

// Fit covers a width×height canvas with img: the image is resized so the
// shorter relative side matches, then the overflow is cropped equally from both
// ends. Aspect ratio is preserved and the canvas is never letterboxed.
func Fit(img image.Image, width, height int) *image.RGBA {
	b := img.Bounds()
	srcRatio := float64(b.Dx()) / float64(b.Dy())
	dstRatio := float64(width) / float64(height)

	var newW, newH int
	if srcRatio > dstRatio {
		newH = height
		newW = int(float64(height) * srcRatio)
	} else {
		newW = width
		newH = int(float64(width) / srcRatio)
	}
	newW = max(newW, width)
	newH = max(newH, height)

	resized := image.NewRGBA(image.Rect(0, 0, newW, newH))
	draw.CatmullRom.Scale(resized, resized.Bounds(), img, b, draw.Src, nil)

	left := (newW - width) / 2
	top := (newH - height) / 2
	out := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(out, out.Bounds(), resized, image.Pt(left, top), draw.Src)
	return out
}
