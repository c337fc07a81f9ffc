package captions

import "strings"

// Span is a run of cue text sharing one color and weight.
type Span struct {
	Text  string
	Color string
	Bold  bool
}

const (
	spanOpenPrefix = `<span foreground="`
	spanOpenSuffix = `">`
	spanClose      = `</span>`
	boldOpen       = `<b>`
	boldClose      = `</b>`
)

// ParseSpans splits cue text into styled runs, left to right.
//
// Grammar, with no nesting:
//
//	text  = { plain | span | bold }
//	span  = `<span foreground="` color `">` inner `</span>`
//	bold  = `<b>` inner `</b>`
//	plain = any run without '<'
//	inner = any run without '<'
//
// Text outside markup takes defaultColor. Anything that does not fit the
// grammar turns the whole input into a single default-colored run.
func ParseSpans(text, defaultColor string) []Span {
	spans, ok := parseSpans(text, defaultColor)
	if !ok {
		if text == "" {
			return nil
		}
		return []Span{{Text: text, Color: defaultColor}}
	}
	return spans
}

func parseSpans(text, defaultColor string) ([]Span, bool) {
	var spans []Span
	add := func(s Span) {
		if s.Text != "" {
			spans = append(spans, s)
		}
	}

	rest := text
	for rest != "" {
		lt := strings.IndexByte(rest, '<')
		if lt < 0 {
			add(Span{Text: rest, Color: defaultColor})
			break
		}
		add(Span{Text: rest[:lt], Color: defaultColor})
		rest = rest[lt:]

		switch {
		case strings.HasPrefix(rest, spanOpenPrefix):
			rest = rest[len(spanOpenPrefix):]
			end := strings.Index(rest, spanOpenSuffix)
			if end <= 0 {
				return nil, false
			}
			color := rest[:end]
			if strings.ContainsAny(color, `<>"`) {
				return nil, false
			}
			inner, after, ok := closeTag(rest[end+len(spanOpenSuffix):], spanClose)
			if !ok {
				return nil, false
			}
			add(Span{Text: inner, Color: color})
			rest = after
		case strings.HasPrefix(rest, boldOpen):
			inner, after, ok := closeTag(rest[len(boldOpen):], boldClose)
			if !ok {
				return nil, false
			}
			add(Span{Text: inner, Color: defaultColor, Bold: true})
			rest = after
		default:
			return nil, false
		}
	}
	return spans, true
}

// closeTag reads inner text up to closing. Inner text may not contain '<'.
func closeTag(s, closing string) (inner, rest string, ok bool) {
	lt := strings.IndexByte(s, '<')
	if lt < 0 || !strings.HasPrefix(s[lt:], closing) {
		return "", "", false
	}
	return s[:lt], s[lt+len(closing):], true
}

// VisibleText is the cue text as shown on screen, markup removed.
func VisibleText(text string) string {
	var b strings.Builder
	for _, s := range ParseSpans(text, "") {
		b.WriteString(s.Text)
	}
	return b.String()
}
