package video

import (
	"context"
	"fmt"
)

// Transcoder decodes an existing video into frames and re-encodes overlaid
// frames while copying the source soundtrack across.
type Transcoder interface {
	Decode(ctx context.Context, path string, width, height int) (FrameReader, error)
	Overlay(ctx context.Context, source, output string, p SegmentParams) (FrameWriter, error)
}

func (e *FFmpegEncoder) Decode(ctx context.Context, path string, width, height int) (FrameReader, error) {
	return startReader(ctx, e.binary(), buildDecodeArgs(path, width, height))
}

func buildDecodeArgs(path string, width, height int) []string {
	return []string{
		"-hide_banner", "-loglevel", "error",
		"-i", path,
		"-vf", fmt.Sprintf("scale=%d:%d", width, height),
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-",
	}
}

// Overlay opens an encoder that takes frames on stdin and audio from source.
// p.Frames is ignored; ffmpeg stops when the frame stream ends.
func (e *FFmpegEncoder) Overlay(ctx context.Context, source, output string, p SegmentParams) (FrameWriter, error) {
	return startPipe(ctx, e.binary(), e.buildOverlayArgs(source, output, p))
}

func (e *FFmpegEncoder) buildOverlayArgs(source, output string, p SegmentParams) []string {
	args := []string{
		"-y", "-hide_banner", "-loglevel", "error",
		"-f", "rawvideo",
		"-pixel_format", "rgba",
		"-video_size", fmt.Sprintf("%dx%d", p.Width, p.Height),
		"-framerate", p.inputRate(),
		"-i", "-",
		"-i", source,
		"-map", "0:v:0",
		"-map", "1:a:0?",
		"-pix_fmt", "yuv420p",
		"-c:v", e.codec(),
	}
	args = append(args, qualityArgs(e.codec(), e.Quality)...)
	return append(args, "-c:a", "aac", "-shortest", output)
}
