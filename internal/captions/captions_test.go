package captions

import (
	"bytes"
	"errors"
	"math"
	"path/filepath"
	"strings"
	"testing"
)

func tenWords() []Segment {
	texts := []string{"the", "quick", "brown", "fox", "jumps", "over", "the", "lazy", "sleeping", "dog"}
	var first, second Segment
	for i, text := range texts {
		w := Word{Text: " " + text, Start: float64(i) * 0.5, End: float64(i)*0.5 + 0.4}
		if i < 5 {
			first.Words = append(first.Words, w)
		} else {
			second.Words = append(second.Words, w)
		}
	}
	first.Start, first.End = 0, 2.4
	second.Start, second.End = 2.5, 4.9
	return []Segment{first, second}
}

func TestGroupOneWordPerCue(t *testing.T) {
	cues := Group(tenWords(), 1, Style{}, CaseNone)
	if len(cues) != 10 {
		t.Fatalf("got %d cues, want 10", len(cues))
	}
	for i, c := range cues {
		if strings.Contains(c.Text, " ") {
			t.Errorf("cue %d has more than one word: %q", i, c.Text)
		}
		if c.Index != i+1 {
			t.Errorf("cue %d index = %d", i, c.Index)
		}
		if i > 0 {
			if c.Start < cues[i-1].Start {
				t.Errorf("cue %d starts before previous", i)
			}
			if gap := c.Start - cues[i-1].End; gap > 0.1+1e-9 {
				t.Errorf("gap before cue %d = %.3f", i, gap)
			}
		}
	}
	if cues[0].Start != 0 || math.Abs(cues[9].End-4.9) > 1e-9 {
		t.Errorf("coverage = [%v, %v]", cues[0].Start, cues[9].End)
	}
}

func TestGroupNeverCrossesSegments(t *testing.T) {
	cues := Group(tenWords(), 3, Style{}, CaseNone)
	want := []string{"the quick brown", "fox jumps", "over the lazy", "sleeping dog"}
	if len(cues) != len(want) {
		t.Fatalf("cues = %+v", cues)
	}
	for i := range want {
		if cues[i].Text != want[i] {
			t.Errorf("cue %d = %q, want %q", i, cues[i].Text, want[i])
		}
	}

	whole := Group(tenWords(), 0, Style{}, CaseNone)
	if len(whole) != 2 || whole[1].Text != "over the lazy sleeping dog" {
		t.Errorf("maxWords=0 cues = %+v", whole)
	}
}

func TestGroupHighlightsSpokenWord(t *testing.T) {
	segs := []Segment{{Words: []Word{{"hello", 0, 0.5}, {"there", 0.5, 1.0}}}}

	cues := Group(segs, 2, ParseStyle("yellow"), CaseUpper)
	if len(cues) != 2 {
		t.Fatalf("cues = %+v", cues)
	}
	if cues[0].Text != `<span foreground="yellow">HELLO</span> THERE` {
		t.Errorf("cue 0 = %q", cues[0].Text)
	}
	if cues[1].Text != `HELLO <span foreground="yellow">THERE</span>` {
		t.Errorf("cue 1 = %q", cues[1].Text)
	}
	if cues[1].Start != 0.5 || cues[1].End != 1.0 {
		t.Errorf("cue 1 timing = %v-%v", cues[1].Start, cues[1].End)
	}

	bold := Group(segs, 1, ParseStyle("bold"), CaseNone)
	if bold[0].Text != "<b>hello</b>" {
		t.Errorf("bold cue = %q", bold[0].Text)
	}
}

func TestGroupEnforcesMinimumDuration(t *testing.T) {
	segs := []Segment{{Words: []Word{{"b", 1, 1}, {"a", 0.2, 0.1}}}}
	cues := Group(segs, 1, Style{}, CaseNone)
	if cues[0].Text != "a" || cues[1].Text != "b" {
		t.Fatalf("cues not sorted: %+v", cues)
	}
	for _, c := range cues {
		if c.End-c.Start < MinCueDuration-1e-9 {
			t.Errorf("cue %q too short: %v", c.Text, c.Duration())
		}
	}
}

func TestGroupSegmentWithoutWords(t *testing.T) {
	cues := Group([]Segment{{Text: " no timings ", Start: 1, End: 2}, {Text: "  "}}, 1, Style{}, CaseTitle)
	if len(cues) != 1 || cues[0].Text != "No Timings" {
		t.Errorf("cues = %+v", cues)
	}
}

func TestClamp(t *testing.T) {
	cues := []Cue{{Start: 0, End: 1}, {Start: 1.5, End: 3}, {Start: 3, End: 4}}
	got := Clamp(cues, 2)
	if len(got) != 2 || got[1].End != 2 || got[1].Index != 2 {
		t.Errorf("Clamp = %+v", got)
	}
}

func TestParseCase(t *testing.T) {
	if c, err := ParseCase("UPPER"); err != nil || c != CaseUpper {
		t.Errorf("ParseCase(UPPER) = %v, %v", c, err)
	}
	if _, err := ParseCase("shout"); err == nil {
		t.Error("expected error")
	}
}

func TestParseSpans(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []Span
	}{
		{"plain", "HELLO", []Span{{"HELLO", "white", false}}},
		{"colored suffix", `HE<span foreground="#FF0000">LLO</span>`, []Span{{"HE", "white", false}, {"LLO", "#FF0000", false}}},
		{"bold middle", "a <b>b</b> c", []Span{{"a ", "white", false}, {"b", "white", true}, {" c", "white", false}}},
		{"two spans", `<span foreground="red">x</span><span foreground="blue">y</span>`, []Span{{"x", "red", false}, {"y", "blue", false}}},
		{"unclosed", `HE<span foreground="red">LLO`, []Span{{`HE<span foreground="red">LLO`, "white", false}}},
		{"nested", `<b>a<b>b</b></b>`, []Span{{`<b>a<b>b</b></b>`, "white", false}}},
		{"stray tag", "a <i>b</i>", []Span{{"a <i>b</i>", "white", false}}},
		{"mismatched close", `<span foreground="red">a</b>`, []Span{{`<span foreground="red">a</b>`, "white", false}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseSpans(tt.text, "white")
			if len(got) != len(tt.want) {
				t.Fatalf("ParseSpans = %+v, want %+v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("span %d = %+v, want %+v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestSpanCoverage(t *testing.T) {
	texts := map[string]string{
		`<span foreground="yellow">HELLO</span> THERE`: "HELLO THERE",
		"one <b>two</b> three":                         "one two three",
		"<b>broken":                                    "<b>broken",
		"":                                             "",
	}
	for in, want := range texts {
		if got := VisibleText(in); got != want {
			t.Errorf("VisibleText(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestWriteAndParseSRT(t *testing.T) {
	cues := []Cue{
		{Index: 1, Start: 0, End: 0.5, Text: `<span foreground="yellow">hi</span>`},
		{Index: 2, Start: 3661.25, End: 3662, Text: "two\nlines"},
	}
	var buf bytes.Buffer
	if err := Write(&buf, cues, FormatSRT); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, "01:01:01,250 --> 01:01:02,000") {
		t.Errorf("srt output:\n%s", out)
	}

	parsed, err := Parse(buf.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	if len(parsed) != 2 || parsed[0].Text != cues[0].Text || parsed[1].Text != "two\nlines" || parsed[1].Start != 3661.25 {
		t.Errorf("parsed = %+v", parsed)
	}
}

func TestParseVTT(t *testing.T) {
	data := "\ufeffWEBVTT\r\n\r\nNOTE generated\r\n\r\n00:01.500 --> 00:02.000 align:center\r\n<b>word</b>\r\n\r\n2\r\n00:00:02.000 --> 00:00:02.400\r\nnext\r\n"
	cues, err := Parse([]byte(data))
	if err != nil {
		t.Fatal(err)
	}
	if len(cues) != 2 {
		t.Fatalf("cues = %+v", cues)
	}
	if cues[0].Start != 1.5 || cues[0].End != 2 || cues[0].Text != "<b>word</b>" {
		t.Errorf("cue 0 = %+v", cues[0])
	}
	if cues[1].Index != 2 || cues[1].Text != "next" {
		t.Errorf("cue 1 = %+v", cues[1])
	}
}

func TestWriteVTTHeader(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, []Cue{{Start: 1, End: 2, Text: "x"}}, FormatVTT); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(buf.String(), "WEBVTT\n\n1\n00:00:01.000 --> 00:00:02.000\nx\n") {
		t.Errorf("vtt output:\n%q", buf.String())
	}
}

func TestParseRejectsEmptyAndBadTimings(t *testing.T) {
	if _, err := Parse([]byte("  \n")); !errors.Is(err, ErrNoCues) {
		t.Errorf("empty: %v", err)
	}
	if _, err := Parse([]byte("1\n00:00:01 --> 00:00:02,000\nx\n")); err == nil {
		t.Error("expected timestamp error")
	}
}

func TestResolveFormat(t *testing.T) {
	tests := []struct {
		explicit, path string
		want           Format
		wantErr        bool
	}{
		{"", "out.srt", FormatSRT, false},
		{"", "out.VTT", FormatVTT, false},
		{"vtt", "out.srt", FormatVTT, false},
		{"", "out", FormatSRT, false},
		{"ass", "out.ass", "", true},
	}
	for _, tt := range tests {
		got, err := ResolveFormat(tt.explicit, tt.path)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ResolveFormat(%q, %q) = %q, %v", tt.explicit, tt.path, got, err)
		}
	}
}

func TestWriteFileCreatesDirs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "subtitles", "video_3.srt")
	if err := WriteFile(path, []Cue{{Start: 0, End: 1, Text: "a"}}, FormatSRT); err != nil {
		t.Fatal(err)
	}
	cues, err := ParseFile(path)
	if err != nil || len(cues) != 1 {
		t.Errorf("ParseFile = %+v, %v", cues, err)
	}
}
