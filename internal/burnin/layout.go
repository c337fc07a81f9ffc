package burnin

import (
	"image"
	"strings"

	"github.com/ivlev/storyreel/internal/captions"
)

// Measurer reports the pixel box of a text run.
type Measurer interface {
	Measure(text string, bold bool) (width, height int)
}

// Fragment is one positioned text run of a cue.
type Fragment struct {
	Text  string
	Color string
	Bold  bool
	Rect  image.Rectangle
	Start float64
	End   float64
}

// Layout splits the cue into styled runs and places them side by side,
// centered as a group on one line. Every fragment shares the cue's timing.
func Layout(cue captions.Cue, frameW, frameH int, style Style, m Measurer) []Fragment {
	style = style.withDefaults()
	text := strings.ReplaceAll(cue.Text, "\n", " ")
	spans := captions.ParseSpans(text, style.Color)
	if len(spans) == 0 {
		return nil
	}

	frags := make([]Fragment, len(spans))
	total, maxH := 0, 0
	for i, s := range spans {
		w, h := m.Measure(s.Text, s.Bold)
		frags[i] = Fragment{
			Text:  s.Text,
			Color: s.Color,
			Bold:  s.Bold,
			Rect:  image.Rect(0, 0, w, h),
			Start: cue.Start,
			End:   cue.End,
		}
		total += w
		maxH = max(maxH, h)
	}

	x := floorDiv(frameW-total, 2)
	y := lineTop(frameH, maxH, style)
	for i := range frags {
		frags[i].Rect = frags[i].Rect.Add(image.Pt(x, y))
		x = frags[i].Rect.Max.X
	}
	return frags
}

func lineTop(frameH, textH int, style Style) int {
	switch style.Position {
	case PositionTop:
		return style.Margin
	case PositionMiddle:
		return floorDiv(frameH-textH, 2)
	default:
		return frameH - textH - style.Margin
	}
}

// floorDiv rounds toward negative infinity so oversized text stays centered.
func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
