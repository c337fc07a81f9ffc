package burnin

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

// Faces holds the regular and bold Go font faces at one pixel size. A Faces
// value is not safe for concurrent use.
type Faces struct {
	regular font.Face
	bold    font.Face
}

// NewFaces loads the embedded Go fonts at size pixels (72 DPI, so points equal pixels).
func NewFaces(size int) (*Faces, error) {
	regular, err := loadFace(goregular.TTF, size)
	if err != nil {
		return nil, fmt.Errorf("load regular font: %w", err)
	}
	bold, err := loadFace(gobold.TTF, size)
	if err != nil {
		regular.Close()
		return nil, fmt.Errorf("load bold font: %w", err)
	}
	return &Faces{regular: regular, bold: bold}, nil
}

func loadFace(ttf []byte, size int) (font.Face, error) {
	f, err := opentype.Parse(ttf)
	if err != nil {
		return nil, err
	}
	return opentype.NewFace(f, &opentype.FaceOptions{
		Size:    float64(size),
		DPI:     72,
		Hinting: font.HintingFull,
	})
}

func (f *Faces) face(bold bool) font.Face {
	if bold {
		return f.bold
	}
	return f.regular
}

// Measure returns the advance width and line height of text.
func (f *Faces) Measure(text string, bold bool) (int, int) {
	face := f.face(bold)
	m := face.Metrics()
	return font.MeasureString(face, text).Ceil(), (m.Ascent + m.Descent).Ceil()
}

// Draw paints frag onto dst: the background box first, then the glyphs.
func (f *Faces) Draw(dst draw.Image, frag Fragment, fg, bg color.Color) {
	if bg != nil {
		draw.Draw(dst, frag.Rect, image.NewUniform(bg), image.Point{}, draw.Over)
	}
	face := f.face(frag.Bold)
	d := font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(fg),
		Face: face,
		Dot:  fixed.Point26_6{X: fixed.I(frag.Rect.Min.X), Y: fixed.I(frag.Rect.Min.Y) + face.Metrics().Ascent},
	}
	d.DrawString(frag.Text)
}

func (f *Faces) Close() error {
	f.regular.Close()
	return f.bold.Close()
}
