package captions

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Format is a subtitle file syntax.
type Format string

const (
	FormatSRT Format = "srt"
	FormatVTT Format = "vtt"
)

var ErrNoCues = errors.New("subtitle file has no cues")

// ResolveFormat picks the explicit format when set, otherwise the output extension.
func ResolveFormat(explicit, path string) (Format, error) {
	f := strings.ToLower(strings.TrimSpace(explicit))
	if f == "" {
		f = strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	}
	switch Format(f) {
	case FormatSRT, "":
		return FormatSRT, nil
	case FormatVTT, "webvtt":
		return FormatVTT, nil
	default:
		return "", fmt.Errorf("unsupported caption format %q", f)
	}
}

// WriteFile writes cues to path, creating parent directories.
func WriteFile(path string, cues []Cue, format Format) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create subtitle dir: %w", err)
	}
	var buf bytes.Buffer
	if err := Write(&buf, cues, format); err != nil {
		return err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write subtitles: %w", err)
	}
	return nil
}

// Write serializes cues as SRT or WebVTT.
func Write(w io.Writer, cues []Cue, format Format) error {
	bw := bufio.NewWriter(w)
	sep := ","
	if format == FormatVTT {
		sep = "."
		bw.WriteString("WEBVTT\n\n")
	}
	for i, c := range cues {
		idx := c.Index
		if idx <= 0 {
			idx = i + 1
		}
		fmt.Fprintf(bw, "%d\n%s --> %s\n%s\n\n", idx, formatTimestamp(c.Start, sep), formatTimestamp(c.End, sep), c.Text)
	}
	return bw.Flush()
}

func formatTimestamp(seconds float64, sep string) string {
	ms := int64(math.Round(math.Max(seconds, 0) * 1000))
	h := ms / 3_600_000
	ms -= h * 3_600_000
	m := ms / 60_000
	ms -= m * 60_000
	s := ms / 1000
	ms -= s * 1000
	return fmt.Sprintf("%02d:%02d:%02d%s%03d", h, m, s, sep, ms)
}

// ParseFile reads an SRT or WebVTT file; the syntax is detected from content.
func ParseFile(path string) ([]Cue, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read subtitles: %w", err)
	}
	cues, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return cues, nil
}

// Parse decodes SRT or WebVTT content. Blocks without a timing line are ignored.
func Parse(data []byte) ([]Cue, error) {
	content := strings.TrimPrefix(string(data), "\ufeff")
	content = strings.ReplaceAll(content, "\r\n", "\n")
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrNoCues
	}

	var cues []Cue
	for _, block := range strings.Split(content, "\n\n") {
		lines := strings.Split(strings.Trim(block, "\n"), "\n")
		timing := -1
		for i, line := range lines {
			if strings.Contains(line, "-->") {
				timing = i
				break
			}
		}
		if timing < 0 {
			continue // WEBVTT header, NOTE, STYLE
		}
		start, end, err := parseTiming(lines[timing])
		if err != nil {
			return nil, fmt.Errorf("cue %d: %w", len(cues)+1, err)
		}
		cues = append(cues, Cue{
			Index: len(cues) + 1,
			Start: start,
			End:   end,
			Text:  strings.Join(lines[timing+1:], "\n"),
		})
	}
	if len(cues) == 0 {
		return nil, ErrNoCues
	}
	return cues, nil
}

func parseTiming(line string) (float64, float64, error) {
	left, right, _ := strings.Cut(line, "-->")
	// в VTT после времени окончания могут идти настройки cue
	fields := strings.Fields(right)
	if len(fields) == 0 {
		return 0, 0, fmt.Errorf("invalid timing line %q", line)
	}
	start, err := parseTimestamp(left)
	if err != nil {
		return 0, 0, err
	}
	end, err := parseTimestamp(fields[0])
	if err != nil {
		return 0, 0, err
	}
	return start, end, nil
}

// parseTimestamp accepts HH:MM:SS,mmm and the WebVTT forms HH:MM:SS.mmm and MM:SS.mmm.
func parseTimestamp(value string) (float64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, fmt.Errorf("empty timestamp")
	}
	value = strings.ReplaceAll(value, ",", ".")
	clock, frac, ok := strings.Cut(value, ".")
	if !ok {
		return 0, fmt.Errorf("invalid timestamp %q", value)
	}
	parts := strings.Split(clock, ":")
	if len(parts) == 2 {
		parts = append([]string{"0"}, parts...)
	}
	if len(parts) != 3 {
		return 0, fmt.Errorf("invalid timestamp %q", value)
	}
	hours, errH := strconv.Atoi(parts[0])
	minutes, errM := strconv.Atoi(parts[1])
	seconds, errS := strconv.Atoi(parts[2])
	millis, errMS := strconv.Atoi(frac)
	if errH != nil || errM != nil || errS != nil || errMS != nil || len(frac) != 3 {
		return 0, fmt.Errorf("invalid timestamp %q", value)
	}
	return float64(hours*3600+minutes*60+seconds) + float64(millis)/1000, nil
}
