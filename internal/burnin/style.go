// Package burnin renders subtitle cues into video pixels.
package burnin

import (
	"fmt"
	"image/color"
	"strconv"
	"strings"

	"golang.org/x/image/colornames"
)

// Position is the vertical anchor of the caption line.
type Position string

const (
	PositionTop    Position = "top"
	PositionMiddle Position = "middle"
	PositionBottom Position = "bottom"
)

// Defaults for a bare burn-in call.
const (
	DefaultFontSize   = 24
	DefaultColor      = "white"
	DefaultBackground = "#00000090"
	DefaultMargin     = 20
)

// Style configures caption appearance.
type Style struct {
	FontSize   int
	Color      string
	Position   Position
	Background string
	Margin     int
}

// DefaultStyle returns white 24px text on a translucent black box at the bottom.
func DefaultStyle() Style {
	return Style{
		FontSize:   DefaultFontSize,
		Color:      DefaultColor,
		Position:   PositionBottom,
		Background: DefaultBackground,
		Margin:     DefaultMargin,
	}
}

// withDefaults fills zero fields from DefaultStyle. Unknown positions become bottom.
func (s Style) withDefaults() Style {
	d := DefaultStyle()
	if s.FontSize <= 0 {
		s.FontSize = d.FontSize
	}
	if strings.TrimSpace(s.Color) == "" {
		s.Color = d.Color
	}
	if s.Background == "" {
		s.Background = d.Background
	}
	if s.Margin <= 0 {
		s.Margin = d.Margin
	}
	switch Position(strings.ToLower(string(s.Position))) {
	case PositionTop:
		s.Position = PositionTop
	case PositionMiddle:
		s.Position = PositionMiddle
	default:
		s.Position = PositionBottom
	}
	return s
}

// ParseColor accepts CSS/SVG color names and #RGB, #RRGGBB or #RRGGBBAA.
func ParseColor(s string) (color.RGBA, error) {
	s = strings.TrimSpace(s)
	if c, ok := colornames.Map[strings.ToLower(s)]; ok {
		return c, nil
	}
	hex, ok := strings.CutPrefix(s, "#")
	if !ok {
		return color.RGBA{}, fmt.Errorf("unknown color %q", s)
	}
	if len(hex) == 3 {
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	}
	if len(hex) == 6 {
		hex += "ff"
	}
	if len(hex) != 8 {
		return color.RGBA{}, fmt.Errorf("invalid color %q", s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("invalid color %q", s)
	}
	r, g, b, a := uint8(v>>24), uint8(v>>16), uint8(v>>8), uint8(v)
	// image/color хранит premultiplied alpha
	return color.RGBA{
		R: uint8(uint32(r) * uint32(a) / 255),
		G: uint8(uint32(g) * uint32(a) / 255),
		B: uint8(uint32(b) * uint32(a) / 255),
		A: a,
	}, nil
}
