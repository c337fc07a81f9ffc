// Package analyzer finds the regions of a slide that carry content, so zoom
// animations can move toward them instead of the frame center.
package analyzer

import (
	"errors"
	"fmt"
	"image"
)

var ErrUnknownDetector = errors.New("unknown detector")

// Block is a detected region of interest in image coordinates.
type Block struct {
	Rect image.Rectangle
	// Density is the share of edge pixels inside Rect, 0..1.
	Density float64
}

// Area returns the pixel area of the block.
func (b Block) Area() int { return b.Rect.Dx() * b.Rect.Dy() }

// Detector finds content regions in an image.
type Detector interface {
	Detect(img image.Image) ([]Block, error)
}

// NewDetector returns the detector for variant. Only "contrast" exists; "" selects it.
func NewDetector(variant string) (Detector, error) {
	switch variant {
	case "contrast", "":
		return NewContrastDetector(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDetector, variant)
	}
}

// maxCoverage drops blocks that span nearly the whole frame: they point at the
// center anyway.
const maxCoverage = 0.9

// Focus returns the normalized center of the largest content block in img.
// ok is false when nothing stands out.
func Focus(d Detector, img image.Image) (fx, fy float64, ok bool, err error) {
	blocks, err := d.Detect(img)
	if err != nil {
		return 0.5, 0.5, false, err
	}
	b := img.Bounds()
	frame := float64(b.Dx() * b.Dy())
	if frame == 0 {
		return 0.5, 0.5, false, nil
	}

	var best Block
	for _, blk := range blocks {
		if float64(blk.Area()) > maxCoverage*frame {
			continue
		}
		if blk.Area() > best.Area() {
			best = blk
		}
	}
	if best.Area() == 0 {
		return 0.5, 0.5, false, nil
	}
	cx := float64(best.Rect.Min.X+best.Rect.Max.X)/2 - float64(b.Min.X)
	cy := float64(best.Rect.Min.Y+best.Rect.Max.Y)/2 - float64(b.Min.Y)
	return cx / float64(b.Dx()), cy / float64(b.Dy()), true, nil
}
