package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ivlev/storyreel/internal/director"
	"github.com/ivlev/storyreel/internal/effects"
)

type cliEnv struct {
	base       string
	configPath string
	dataDir    string
}

func setupCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	base := t.TempDir()
	t.Setenv("HOME", filepath.Join(base, "home"))
	t.Setenv("STORYREEL_DATA_DIR", "")

	env := &cliEnv{
		base:       base,
		configPath: filepath.Join(base, "storyreel.toml"),
		dataDir:    filepath.Join(base, "data"),
	}
	content := fmt.Sprintf(`[paths]
data_dir = %q
temp_dir = %q
log_dir = %q

[video]
encoder = "libx264"
`, env.dataDir, filepath.Join(base, "tmp"), filepath.Join(base, "logs"))
	if err := os.WriteFile(env.configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return env
}

func runCLI(t *testing.T, env *cliEnv, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	if env != nil {
		args = append([]string{"--config", env.configPath, "--log-level", "error"}, args...)
	}
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func requireContains(t *testing.T, haystack, needle string) {
	t.Helper()
	if !strings.Contains(haystack, needle) {
		t.Fatalf("expected %q in output:\n%s", needle, haystack)
	}
}

func TestConfigInitAndValidate(t *testing.T) {
	env := setupCLIEnv(t)
	target := filepath.Join(env.base, "sample", "config.toml")

	out, err := runCLI(t, nil, "config", "init", "--path", target)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}

	if _, err := runCLI(t, nil, "config", "init", "--path", target); err == nil || !strings.Contains(err.Error(), "already exists") {
		t.Fatalf("expected already exists error, got %v", err)
	}
	if _, err := runCLI(t, nil, "config", "init", "--path", target, "--overwrite"); err != nil {
		t.Fatalf("config init --overwrite: %v", err)
	}

	out, err = runCLI(t, nil, "--config", target, "config", "validate")
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Configuration valid")
}

func TestConfigShowPrintsEffectiveValues(t *testing.T) {
	env := setupCLIEnv(t)
	out, err := runCLI(t, env, "config", "show")
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	requireContains(t, out, env.dataDir)
	requireContains(t, out, "libx264")
}

func TestProjectLifecycleThroughCLI(t *testing.T) {
	env := setupCLIEnv(t)

	src := filepath.Join(env.base, "src")
	if err := os.MkdirAll(src, 0o755); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"a.png", "b.png", "voice.mp3"} {
		if err := os.WriteFile(filepath.Join(src, name), []byte(name), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	plan := &director.Plan{
		Version: director.PlanVersion,
		Title:   "Demo",
		Width:   720,
		Height:  1280,
		Audio:   director.Audio{Path: "voice.mp3", Duration: 4},
		Slides: []director.Slide{
			{Index: 0, Input: "a.png", Duration: 2, Animation: director.Animation{Kind: "zoom_in"}},
			{Index: 1, Input: "b.png", Duration: 2, Animation: director.Animation{Kind: "fade"}},
		},
	}
	planPath := filepath.Join(src, "plan.yaml")
	if err := director.WritePlan(plan, planPath); err != nil {
		t.Fatal(err)
	}

	out, err := runCLI(t, env, "project", "import", planPath)
	if err != nil {
		t.Fatalf("project import: %v", err)
	}
	requireContains(t, out, "Video 1: 2 slides")
	requireContains(t, out, "video_pending")

	out, err = runCLI(t, env, "project", "status")
	if err != nil {
		t.Fatalf("project status: %v", err)
	}
	requireContains(t, out, "Demo")
	requireContains(t, out, "video_pending")

	out, err = runCLI(t, env, "project", "reset", "1")
	if err != nil {
		t.Fatalf("project reset: %v", err)
	}
	requireContains(t, out, "is not processing")

	out, err = runCLI(t, env, "project", "delete", "1")
	if err != nil {
		t.Fatalf("project delete: %v", err)
	}
	requireContains(t, out, "Deleted video 1")

	entries, err := os.ReadDir(filepath.Join(env.dataDir, "images"))
	if err != nil {
		t.Fatalf("read images dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected imported images removed, found %d", len(entries))
	}
	if _, err := runCLI(t, env, "project", "status", "1"); err == nil {
		t.Fatal("expected status of deleted video to fail")
	}
}

func TestProjectCreateUsesPreset(t *testing.T) {
	env := setupCLIEnv(t)
	out, err := runCLI(t, env, "project", "create", "--title", "Square-ish", "--preset", "4:5")
	if err != nil {
		t.Fatalf("project create: %v", err)
	}
	requireContains(t, out, "1080x1350")
	requireContains(t, out, "images_pending")

	if _, err := runCLI(t, env, "project", "create", "--preset", "1:1"); err == nil {
		t.Fatal("expected unknown preset error")
	}
}

func TestPlanShow(t *testing.T) {
	dir := t.TempDir()
	plan := &director.Plan{
		Version: director.PlanVersion,
		Title:   "Deck",
		Width:   1280,
		Height:  720,
		Audio:   director.Audio{Path: "a.mp3"},
		Slides: []director.Slide{
			{Index: 0, Input: "one.png", Duration: 1.5, Animation: director.Animation{
					Kind:   "pulse",
					Params: effects.Params{"scale_factor": 0.1, "frequency": 3},
				}},
			{Index: 1, Input: "two.png", Duration: 2.5},
		},
	}
	path := filepath.Join(dir, "plan.yaml")
	if err := director.WritePlan(plan, path); err != nil {
		t.Fatal(err)
	}

	out, err := runCLI(t, nil, "plan", "show", path)
	if err != nil {
		t.Fatalf("plan show: %v", err)
	}
	requireContains(t, out, "one.png")
	requireContains(t, out, "pulse")
	requireContains(t, out, "frequency=3 scale_factor=0.1")
	requireContains(t, out, "Total: 4.00s")
}

func TestFrameSize(t *testing.T) {
	tests := []struct {
		name          string
		preset        string
		width, height int
		wantW, wantH  int
		wantErr       bool
	}{
		{name: "landscape", preset: "16:9", wantW: 1280, wantH: 720},
		{name: "vertical", preset: "9:16", wantW: 720, wantH: 1280},
		{name: "portrait", preset: "4:5", wantW: 1080, wantH: 1350},
		{name: "flags", width: 640, height: 360, wantW: 640, wantH: 360},
		{name: "config defaults", wantW: 720, wantH: 1280},
		{name: "unknown", preset: "21:9", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, h, err := frameSize(tt.preset, tt.width, tt.height, 720, 1280)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("frameSize: %v", err)
			}
			if w != tt.wantW || h != tt.wantH {
				t.Fatalf("got %dx%d, want %dx%d", w, h, tt.wantW, tt.wantH)
			}
		})
	}
}

func TestParseVideoID(t *testing.T) {
	if id, err := parseVideoID(" 42 "); err != nil || id != 42 {
		t.Fatalf("parseVideoID: %d %v", id, err)
	}
	for _, bad := range []string{"", "0", "-3", "abc"} {
		if _, err := parseVideoID(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}

func TestRenderTable(t *testing.T) {
	out := renderTable(
		[]string{"ID", "Title"},
		[][]string{{"1", "first"}, {"22"}},
		[]columnAlignment{alignRight, alignLeft},
	)
	// StyleRounded prints headers upper-cased
	for _, want := range []string{"ID", "TITLE", "first", "22"} {
		requireContains(t, out, want)
	}
	if renderTable(nil, nil, nil) != "" {
		t.Fatal("expected empty table for no headers")
	}
}

func TestTimestampedOutput(t *testing.T) {
	got := timestampedOutput("/out", "/slides/My Deck.pdf")
	if filepath.Dir(got) != "/out" {
		t.Fatalf("unexpected dir %s", got)
	}
	base := filepath.Base(got)
	if !strings.HasPrefix(base, "My_Deck_") || !strings.HasSuffix(base, ".mp4") {
		t.Fatalf("unexpected name %s", base)
	}
}

func TestFormatParams(t *testing.T) {
	if got := formatParams(nil); got != "" {
		t.Fatalf("got %q", got)
	}
	got := formatParams(effects.Params{"zoom_start": 1, "focus_y": 0.25, "focus_x": 0.7})
	if want := "focus_x=0.7 focus_y=0.25 zoom_start=1"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestTruncateCell(t *testing.T) {
	if got := truncateCell("short", 10); got != "short" {
		t.Fatalf("got %q", got)
	}
	if got := truncateCell("line one\nline two", 8); got != "line on…" {
		t.Fatalf("got %q", got)
	}
}
