package lifecycle

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Layout places durable artifacts under Root, named from the video id.
type Layout struct {
	Root string
}

func (l Layout) VideosDir() string    { return filepath.Join(l.Root, "videos") }
func (l Layout) ImagesDir() string    { return filepath.Join(l.Root, "images") }
func (l Layout) SubtitlesDir() string { return filepath.Join(l.Root, "subtitles") }
func (l Layout) AudioDir() string     { return filepath.Join(l.Root, "audio") }
func (l Layout) LocksDir() string     { return filepath.Join(l.Root, "locks") }

// PlainVideo is videos/video_<id>.mp4.
func (l Layout) PlainVideo(id int64) string {
	return filepath.Join(l.VideosDir(), fmt.Sprintf("video_%d.mp4", id))
}

// CaptionedVideo is videos/video_<id>_with_subs.mp4.
func (l Layout) CaptionedVideo(id int64) string {
	return filepath.Join(l.VideosDir(), fmt.Sprintf("video_%d_with_subs.mp4", id))
}

// Image is images/video_<id>_image_<index><ext>; ext defaults to .png.
func (l Layout) Image(id int64, index int, ext string) string {
	return filepath.Join(l.ImagesDir(), fmt.Sprintf("video_%d_image_%d%s", id, index, normExt(ext, ".png")))
}

// Subtitles is subtitles/video_<id>.<format>.
func (l Layout) Subtitles(id int64, format string) string {
	return filepath.Join(l.SubtitlesDir(), fmt.Sprintf("video_%d%s", id, normExt(format, ".srt")))
}

// Audio is audio/video_<id><ext>.
func (l Layout) Audio(id int64, ext string) string {
	return filepath.Join(l.AudioDir(), fmt.Sprintf("video_%d%s", id, normExt(ext, ".mp3")))
}

// Lock is the per-video lock file guarding renders across processes.
func (l Layout) Lock(id int64) string {
	return filepath.Join(l.LocksDir(), fmt.Sprintf("video_%d.lock", id))
}

// Ensure creates every artifact directory.
func (l Layout) Ensure() error {
	for _, dir := range []string{l.VideosDir(), l.ImagesDir(), l.SubtitlesDir(), l.AudioDir(), l.LocksDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}

func normExt(ext, def string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext == "" {
		return def
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}
