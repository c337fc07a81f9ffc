// Package captions models timed caption cues: grouping recognized words into
// cues, embedding per-word highlight markup, and reading and writing SRT and
// WebVTT files.
package captions

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// MinCueDuration is the shortest cue emitted; zero-length ASR words are stretched to it.
const MinCueDuration = 0.01

// Word is one recognized word with its timing in seconds.
type Word struct {
	Text  string
	Start float64
	End   float64
}

// Segment is one ASR segment. Words may be empty when the recognizer gave no
// word timings.
type Segment struct {
	Text  string
	Start float64
	End   float64
	Words []Word
}

// Cue is a single timed caption unit.
type Cue struct {
	Index int
	Start float64
	End   float64
	Text  string
}

// Duration returns End-Start.
func (c Cue) Duration() float64 { return c.End - c.Start }

// Style is the markup wrapped around the spoken word. The zero value adds none.
type Style struct {
	Open, Close string
}

// ParseStyle maps a highlight request to markup: "" is none, "bold" is <b>,
// anything else is a colored span carrying the value verbatim.
func ParseStyle(highlight string) Style {
	switch highlight = strings.TrimSpace(highlight); highlight {
	case "":
		return Style{}
	case "bold":
		return Style{Open: "<b>", Close: "</b>"}
	default:
		return Style{Open: fmt.Sprintf(`<span foreground="%s">`, highlight), Close: "</span>"}
	}
}

// Enabled reports whether the style adds markup.
func (s Style) Enabled() bool { return s.Open != "" }

func (s Style) wrap(text string) string {
	if !s.Enabled() {
		return text
	}
	return s.Open + text + s.Close
}

// Case is a text transform applied to words before markup.
type Case string

const (
	CaseNone  Case = "none"
	CaseUpper Case = "upper"
	CaseLower Case = "lower"
	CaseTitle Case = "title"
)

// ParseCase accepts "", none, upper, lower and title.
func ParseCase(s string) (Case, error) {
	switch c := Case(strings.ToLower(strings.TrimSpace(s))); c {
	case "", CaseNone:
		return CaseNone, nil
	case CaseUpper, CaseLower, CaseTitle:
		return c, nil
	default:
		return "", fmt.Errorf("unknown caption case %q", s)
	}
}

func (c Case) apply(s string) string {
	switch c {
	case CaseUpper:
		return cases.Upper(language.Und).String(s)
	case CaseLower:
		return cases.Lower(language.Und).String(s)
	case CaseTitle:
		return cases.Title(language.Und).String(s)
	default:
		return s
	}
}

// Group re-segments ASR output into cues of at most maxWords words. Chunks
// never cross segment boundaries; maxWords <= 0 keeps one chunk per segment.
//
// With an enabled style every chunk yields one cue per word, timed to that
// word, showing the whole chunk with the current word wrapped in markup.
func Group(segments []Segment, maxWords int, style Style, textCase Case) []Cue {
	var cues []Cue
	for _, seg := range segments {
		words := cleanWords(seg.Words, textCase)
		if len(words) == 0 {
			text := textCase.apply(strings.TrimSpace(seg.Text))
			if text == "" {
				continue
			}
			cues = append(cues, newCue(seg.Start, seg.End, text))
			continue
		}

		size := maxWords
		if size <= 0 {
			size = len(words)
		}
		for i := 0; i < len(words); i += size {
			chunk := words[i:min(i+size, len(words))]
			if !style.Enabled() {
				cues = append(cues, newCue(chunk[0].Start, chunk[len(chunk)-1].End, joinWords(chunk, -1, style)))
				continue
			}
			for k, w := range chunk {
				cues = append(cues, newCue(w.Start, w.End, joinWords(chunk, k, style)))
			}
		}
	}
	return Normalize(cues)
}

func cleanWords(words []Word, textCase Case) []Word {
	out := make([]Word, 0, len(words))
	for _, w := range words {
		text := strings.TrimSpace(w.Text)
		if text == "" {
			continue
		}
		w.Text = textCase.apply(text)
		out = append(out, w)
	}
	return out
}

func joinWords(chunk []Word, highlight int, style Style) string {
	parts := make([]string, len(chunk))
	for i, w := range chunk {
		if i == highlight {
			parts[i] = style.wrap(w.Text)
		} else {
			parts[i] = w.Text
		}
	}
	return strings.Join(parts, " ")
}

func newCue(start, end float64, text string) Cue {
	return Cue{Start: start, End: end, Text: text}
}

// Normalize enforces cue ordering: start >= 0, end >= start+MinCueDuration,
// stable sort by start, indexes renumbered from 1.
func Normalize(cues []Cue) []Cue {
	for i := range cues {
		if cues[i].Start < 0 {
			cues[i].Start = 0
		}
		if cues[i].End < cues[i].Start+MinCueDuration {
			cues[i].End = cues[i].Start + MinCueDuration
		}
	}
	sort.SliceStable(cues, func(i, j int) bool { return cues[i].Start < cues[j].Start })
	for i := range cues {
		cues[i].Index = i + 1
	}
	return cues
}

// Clamp fits cues into [0, duration]. Cues starting at or past the end are
// dropped. A non-positive duration leaves cues untouched.
func Clamp(cues []Cue, duration float64) []Cue {
	if duration <= 0 {
		return cues
	}
	out := cues[:0]
	for _, c := range cues {
		if c.Start >= duration {
			continue
		}
		c.End = min(c.End, duration)
		out = append(out, c)
	}
	for i := range out {
		out[i].Index = i + 1
	}
	return out
}
