package source

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

var (
	red   = color.RGBA{R: 255, A: 255}
	green = color.RGBA{G: 255, A: 255}
	blue  = color.RGBA{B: 255, A: 255}
)

// stripes paints three equal bands along the long axis.
func stripes(w, h int, horizontal bool) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	bands := []color.RGBA{red, green, blue}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			pos, size := x, w
			if !horizontal {
				pos, size = y, h
			}
			img.SetRGBA(x, y, bands[pos*3/size])
		}
	}
	return img
}

func TestFitCropsToCenter(t *testing.T) {
	tests := []struct {
		name   string
		img    *image.RGBA
		w, h   int
		probes []image.Point
	}{
		{"wider source", stripes(400, 100, true), 100, 100, []image.Point{{0, 50}, {50, 50}, {99, 50}}},
		{"taller source", stripes(100, 400, false), 100, 100, []image.Point{{50, 0}, {50, 50}, {50, 99}}},
		{"portrait target", stripes(300, 200, true), 60, 120, []image.Point{{30, 10}, {30, 60}, {30, 110}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := Fit(tt.img, tt.w, tt.h)
			if out.Bounds() != image.Rect(0, 0, tt.w, tt.h) {
				t.Fatalf("bounds = %v", out.Bounds())
			}
			for _, p := range tt.probes {
				c := out.RGBAAt(p.X, p.Y)
				if c.G < 240 || c.R > 15 || c.B > 15 {
					t.Errorf("pixel %v = %v, want center band (green)", p, c)
				}
			}
		})
	}
}

func TestFitSameAspect(t *testing.T) {
	out := Fit(stripes(200, 100, true), 100, 50)
	if out.Bounds().Dx() != 100 || out.Bounds().Dy() != 50 {
		t.Fatalf("bounds = %v", out.Bounds())
	}
	if c := out.RGBAAt(2, 25); c.R < 240 {
		t.Errorf("left edge = %v, want red band kept", c)
	}
}

func TestImageSourceOrdersAndFilters(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.png", "a.png", "notes.txt", "c.PNG"} {
		writeTestPNG(t, filepath.Join(dir, name), 4, 3)
	}
	src, err := NewImageSource(dir)
	if err != nil {
		t.Fatalf("NewImageSource: %v", err)
	}
	got := src.Paths()
	want := []string{"a.png", "b.png", "c.PNG"}
	if len(got) != len(want) {
		t.Fatalf("paths = %v", got)
	}
	for i := range want {
		if filepath.Base(got[i]) != want[i] {
			t.Errorf("path[%d] = %s, want %s", i, got[i], want[i])
		}
	}
	w, h, err := src.GetPageDimensions(0)
	if err != nil || w != 4 || h != 3 {
		t.Errorf("dimensions = %vx%v, %v", w, h, err)
	}
}

func TestWritePagesUsesFilePaths(t *testing.T) {
	dir := t.TempDir()
	writeTestPNG(t, filepath.Join(dir, "one.png"), 2, 2)
	src, err := NewImageSource(dir)
	if err != nil {
		t.Fatal(err)
	}
	paths, err := WritePages(src, 150, func(i int) string { t.Fatal("should not render file-backed pages"); return "" })
	if err != nil || len(paths) != 1 {
		t.Fatalf("WritePages = %v, %v", paths, err)
	}
}

type memorySource struct{ pages []image.Image }

func (m memorySource) PageCount() int { return len(m.pages) }
func (m memorySource) GetPageDimensions(i int) (float64, float64, error) {
	b := m.pages[i].Bounds()
	return float64(b.Dx()), float64(b.Dy()), nil
}
func (m memorySource) RenderPage(i int, _ int) (image.Image, error) { return m.pages[i], nil }
func (m memorySource) Close() error                                 { return nil }

func TestWritePagesRendersToPNG(t *testing.T) {
	dir := t.TempDir()
	src := memorySource{pages: []image.Image{stripes(6, 3, true), stripes(3, 6, false)}}
	paths, err := WritePages(src, 72, func(i int) string {
		return filepath.Join(dir, "pages", "video_1_image_"+string(rune('0'+i))+".png")
	})
	if err != nil {
		t.Fatalf("WritePages: %v", err)
	}
	if len(paths) != 2 {
		t.Fatalf("paths = %v", paths)
	}
	img, err := Load(paths[1])
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if img.Bounds().Dx() != 3 || img.Bounds().Dy() != 6 {
		t.Errorf("page 1 bounds = %v", img.Bounds())
	}
}

func TestLoadRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.png")
	if err := os.WriteFile(path, []byte("not an image"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected decode error")
	}
}

func writeTestPNG(t *testing.T, path string, w, h int) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, stripes(w, h, true)); err != nil {
		t.Fatal(err)
	}
}
