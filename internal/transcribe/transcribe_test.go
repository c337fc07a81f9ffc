package transcribe

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/ivlev/storyreel/internal/captions"
)

func TestCheckReportsMissingCommand(t *testing.T) {
	svc := NewService(Config{Command: "storyreel-missing-whisperx"}, "")
	err := svc.Check()
	if !errors.Is(err, ErrCapabilityUnavailable) {
		t.Fatalf("Check() = %v, want capability error", err)
	}
	var capErr *CapabilityError
	if !errors.As(err, &capErr) || capErr.Command != "storyreel-missing-whisperx" {
		t.Errorf("error = %#v", err)
	}
	if _, err := svc.Transcribe(context.Background(), "a.wav", t.TempDir()); !errors.Is(err, ErrCapabilityUnavailable) {
		t.Errorf("Transcribe() = %v", err)
	}
}

func TestBuildArgs(t *testing.T) {
	svc := NewService(Config{Language: "EN"}, "")
	args := svc.buildArgs("/w/a.wav", "/w")
	want := []string{
		"--index-url", PypiIndexURL, "whisperx",
		"/w/a.wav",
		"--model", "base",
		"--batch_size", BatchSize,
		"--output_dir", "/w",
		"--output_format", "json",
		"--language", "en",
		"--device", "cpu",
		"--compute_type", "float32",
	}
	if !slices.Equal(args, want) {
		t.Errorf("buildArgs =\n%v\nwant\n%v", args, want)
	}

	direct := NewService(Config{Command: "/opt/bin/whisperx", Device: "cuda", ComputeType: "float16"}, "")
	args = direct.buildArgs("a.wav", "out")
	if args[0] != "a.wav" || slices.Contains(args, "--index-url") {
		t.Errorf("direct binary args = %v", args)
	}
	if i := slices.Index(args, "--compute_type"); i < 0 || args[i+1] != "float16" {
		t.Errorf("compute type missing: %v", args)
	}
}

func TestTranscribeLoadsWhisperJSON(t *testing.T) {
	dir := t.TempDir()
	svc := NewService(Config{Command: "sh"}, "")
	var calls [][]string
	svc.WithCommandRunner(func(_ context.Context, name string, args ...string) error {
		calls = append(calls, append([]string{name}, args...))
		payload := `{"segments":[{"text":" Hello 42 world","start":0.0,"end":1.5,
			"words":[{"word":"Hello","start":0.0,"end":0.4},{"word":"42"},{"word":"world","start":0.9,"end":1.5}]}]}`
		return os.WriteFile(filepath.Join(dir, "clip_audio.json"), []byte(payload), 0o644)
	})

	segs, err := svc.Transcribe(context.Background(), filepath.Join(dir, "clip_audio.wav"), dir)
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if len(calls) != 1 || calls[0][0] != "sh" {
		t.Fatalf("calls = %v", calls)
	}
	if len(segs) != 1 || segs[0].Text != "Hello 42 world" || len(segs[0].Words) != 3 {
		t.Fatalf("segments = %+v", segs)
	}
	// слово без таймингов наследует конец предыдущего
	if w := segs[0].Words[1]; w.Start != 0.4 || w.End != 0.4 {
		t.Errorf("untimed word = %+v", w)
	}
}

func TestExtractAudioArgs(t *testing.T) {
	svc := NewService(Config{}, "ffmpeg-test")
	var got []string
	svc.WithCommandRunner(func(_ context.Context, name string, args ...string) error {
		got = append([]string{name}, args...)
		return nil
	})
	dest := filepath.Join(t.TempDir(), "work", "v_audio.wav")
	if err := svc.ExtractAudio(context.Background(), "v.mp4", dest); err != nil {
		t.Fatal(err)
	}
	joined := strings.Join(got, " ")
	for _, want := range []string{"ffmpeg-test", "-i v.mp4", "-vn", "-ac 1", "-ar 16000", "-c:a pcm_s16le"} {
		if !strings.Contains(joined, want) {
			t.Errorf("args %q missing %q", joined, want)
		}
	}
	if got[len(got)-1] != dest {
		t.Errorf("dest = %s", got[len(got)-1])
	}
}

type fakeASR struct {
	checkErr  error
	segments  []captions.Segment
	extracted []string
}

func (f *fakeASR) Check() error { return f.checkErr }

func (f *fakeASR) ExtractAudio(_ context.Context, source, dest string) error {
	f.extracted = append(f.extracted, source+"->"+dest)
	return os.WriteFile(dest, []byte("RIFF"), 0o644)
}

func (f *fakeASR) Transcribe(context.Context, string, string) ([]captions.Segment, error) {
	return f.segments, nil
}

func tenWordTranscript() []captions.Segment {
	words := strings.Fields("we built a tiny engine that turns stills into video")
	seg := captions.Segment{Start: 0, End: float64(len(words)) * 0.3}
	for i, w := range words {
		seg.Words = append(seg.Words, captions.Word{Text: w, Start: float64(i) * 0.3, End: float64(i)*0.3 + 0.25})
	}
	return []captions.Segment{seg}
}

func TestGenerateOneWordCues(t *testing.T) {
	dir := t.TempDir()
	media := filepath.Join(dir, "final_video.mp4")
	if err := os.WriteFile(media, []byte("mp4"), 0o644); err != nil {
		t.Fatal(err)
	}
	asr := &fakeASR{segments: tenWordTranscript()}
	conv := &Converter{ASR: asr}

	out, err := conv.Generate(context.Background(), media, "", Options{MaxWords: 1})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if out != filepath.Join(dir, "final_video.srt") {
		t.Errorf("output = %s", out)
	}
	if len(asr.extracted) != 1 || !strings.HasSuffix(asr.extracted[0], "final_video_audio.wav") {
		t.Errorf("extracted = %v", asr.extracted)
	}

	cues, err := captions.ParseFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if len(cues) != 10 {
		t.Fatalf("got %d cues, want 10", len(cues))
	}
	for i, c := range cues {
		if strings.Contains(c.Text, " ") {
			t.Errorf("cue %d = %q", i, c.Text)
		}
	}
}

func TestGenerateHighlightVTT(t *testing.T) {
	dir := t.TempDir()
	media := filepath.Join(dir, "voice.wav")
	if err := os.WriteFile(media, []byte("RIFF"), 0o644); err != nil {
		t.Fatal(err)
	}
	conv := &Converter{ASR: &fakeASR{segments: tenWordTranscript()}, WorkDir: filepath.Join(dir, "work")}
	if err := os.Mkdir(conv.WorkDir, 0o755); err != nil {
		t.Fatal(err)
	}
	out := filepath.Join(dir, "subs", "video_2.vtt")

	if _, err := conv.Generate(context.Background(), media, out, Options{MaxWords: 5, Highlight: "yellow", Case: "upper"}); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(data), "WEBVTT") {
		t.Errorf("not a vtt file:\n%s", data)
	}
	cues, err := captions.Parse(data)
	if err != nil {
		t.Fatal(err)
	}
	if len(cues) != 10 {
		t.Fatalf("cues = %d", len(cues))
	}
	if cues[0].Text != `<span foreground="yellow">WE</span> BUILT A TINY ENGINE` {
		t.Errorf("cue 0 = %q", cues[0].Text)
	}
}

func TestGenerateFailsFastWithoutASR(t *testing.T) {
	conv := &Converter{ASR: &fakeASR{checkErr: &CapabilityError{Capability: "speech recognition", Command: "uvx", Detail: "missing"}}}
	if _, err := conv.Generate(context.Background(), "whatever.mp4", "", Options{}); !errors.Is(err, ErrCapabilityUnavailable) {
		t.Errorf("Generate() = %v", err)
	}
}

func TestGenerateNoSpeech(t *testing.T) {
	dir := t.TempDir()
	media := filepath.Join(dir, "silence.mp3")
	if err := os.WriteFile(media, []byte("ID3"), 0o644); err != nil {
		t.Fatal(err)
	}
	conv := &Converter{ASR: &fakeASR{}}
	if _, err := conv.Generate(context.Background(), media, "", Options{MaxWords: 1}); !errors.Is(err, ErrNoSpeech) {
		t.Errorf("Generate() = %v", err)
	}
}

func TestIsVideo(t *testing.T) {
	for path, want := range map[string]bool{
		"a.mp4": true, "b.MOV": true, "c.mkv": true, "d.wav": false, "e.mp3": false, "f": false,
	} {
		if got := IsVideo(path); got != want {
			t.Errorf("IsVideo(%q) = %v", path, got)
		}
	}
}
