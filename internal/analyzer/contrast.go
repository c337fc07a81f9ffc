package analyzer

import (
	"image"
	"image/color"
	"math"

	"golang.org/x/image/draw"
)

// ContrastDetector finds content with a Sobel edge pass, joins nearby edges by
// dilation and reports the bounding box of every connected region.
type ContrastDetector struct {
	MinBlockArea  int     // in source pixels
	EdgeThreshold float64 // gradient magnitude
	// MaxSide bounds the analysis resolution; larger images are downscaled first.
	MaxSide int
}

// NewContrastDetector returns a detector tuned for slides and photos.
func NewContrastDetector() *ContrastDetector {
	return &ContrastDetector{
		MinBlockArea:  500, // ~22x22
		EdgeThreshold: 30.0,
		MaxSide:       320,
	}
}

// Detect returns content blocks in img coordinates.
func (d *ContrastDetector) Detect(img image.Image) ([]Block, error) {
	b := img.Bounds()
	if b.Empty() {
		return nil, nil
	}
	gray, scale := d.grayscale(img)

	edges := sobel(gray, d.EdgeThreshold)
	joined := dilate(edges, 5, 2)

	// ограничение площади переводим в пиксели уменьшенного кадра
	minArea := float64(d.MinBlockArea) * scale * scale
	var blocks []Block
	for _, r := range components(joined) {
		if float64(r.Dx()*r.Dy()) < minArea {
			continue
		}
		blocks = append(blocks, Block{
			Rect:    upscale(r, scale, b),
			Density: density(edges, r),
		})
	}
	return blocks, nil
}

// grayscale converts img to luma, downscaling so the longer side fits MaxSide.
// scale is analysis pixels per source pixel.
func (d *ContrastDetector) grayscale(img image.Image) (*image.Gray, float64) {
	b := img.Bounds()
	scale := 1.0
	if long := max(b.Dx(), b.Dy()); d.MaxSide > 0 && long > d.MaxSide {
		scale = float64(d.MaxSide) / float64(long)
	}
	w := max(1, int(math.Round(float64(b.Dx())*scale)))
	h := max(1, int(math.Round(float64(b.Dy())*scale)))

	gray := image.NewGray(image.Rect(0, 0, w, h))
	if scale == 1 {
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				gray.SetGray(x, y, color.GrayModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.Gray))
			}
		}
		return gray, scale
	}
	draw.ApproxBiLinear.Scale(gray, gray.Bounds(), img, b, draw.Src, nil)
	return gray, scale
}

// sobel marks pixels whose gradient magnitude exceeds threshold.
func sobel(gray *image.Gray, threshold float64) *image.Gray {
	b := gray.Bounds()
	edges := image.NewGray(b)
	at := func(x, y int) float64 { return float64(gray.Pix[(y-b.Min.Y)*gray.Stride+(x-b.Min.X)]) }

	for y := b.Min.Y + 1; y < b.Max.Y-1; y++ {
		for x := b.Min.X + 1; x < b.Max.X-1; x++ {
			gx := -at(x-1, y-1) + at(x+1, y-1) - 2*at(x-1, y) + 2*at(x+1, y) - at(x-1, y+1) + at(x+1, y+1)
			gy := -at(x-1, y-1) - 2*at(x, y-1) - at(x+1, y-1) + at(x-1, y+1) + 2*at(x, y+1) + at(x+1, y+1)
			if math.Hypot(gx, gy) > threshold {
				edges.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}
	return edges
}

// dilate grows marked pixels by a kernelSize square, iterations times.
func dilate(img *image.Gray, kernelSize, iterations int) *image.Gray {
	b := img.Bounds()
	half := kernelSize / 2
	result := img
	for range iterations {
		next := image.NewGray(b)
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				if result.GrayAt(x, y).Y == 0 {
					continue
				}
				for ky := max(b.Min.Y, y-half); ky <= min(b.Max.Y-1, y+half); ky++ {
					for kx := max(b.Min.X, x-half); kx <= min(b.Max.X-1, x+half); kx++ {
						next.SetGray(kx, ky, color.Gray{Y: 255})
					}
				}
			}
		}
		result = next
	}
	return result
}

// components returns the bounding boxes of 4-connected marked regions.
func components(img *image.Gray) []image.Rectangle {
	b := img.Bounds()
	visited := make([]bool, b.Dx()*b.Dy())
	idx := func(x, y int) int { return (y-b.Min.Y)*b.Dx() + (x - b.Min.X) }
	marked := func(x, y int) bool { return img.GrayAt(x, y).Y > 128 }

	var rects []image.Rectangle
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if visited[idx(x, y)] || !marked(x, y) {
				continue
			}
			r := image.Rect(x, y, x+1, y+1)
			stack := []image.Point{{X: x, Y: y}}
			visited[idx(x, y)] = true
			for len(stack) > 0 {
				p := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				r = r.Union(image.Rect(p.X, p.Y, p.X+1, p.Y+1))
				for _, n := range [4]image.Point{{X: p.X + 1, Y: p.Y}, {X: p.X - 1, Y: p.Y}, {X: p.X, Y: p.Y + 1}, {X: p.X, Y: p.Y - 1}} {
					if !n.In(b) || visited[idx(n.X, n.Y)] || !marked(n.X, n.Y) {
						continue
					}
					visited[idx(n.X, n.Y)] = true
					stack = append(stack, n)
				}
			}
			rects = append(rects, r)
		}
	}
	return rects
}

func density(edges *image.Gray, r image.Rectangle) float64 {
	area := r.Dx() * r.Dy()
	if area == 0 {
		return 0
	}
	n := 0
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			if edges.GrayAt(x, y).Y > 0 {
				n++
			}
		}
	}
	return float64(n) / float64(area)
}

// upscale maps an analysis rectangle back onto the source bounds.
func upscale(r image.Rectangle, scale float64, src image.Rectangle) image.Rectangle {
	if scale == 1 {
		return r.Add(src.Min).Intersect(src)
	}
	out := image.Rect(
		int(float64(r.Min.X)/scale), int(float64(r.Min.Y)/scale),
		int(math.Ceil(float64(r.Max.X)/scale)), int(math.Ceil(float64(r.Max.Y)/scale)),
	)
	return out.Add(src.Min).Intersect(src)
}
