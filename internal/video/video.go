package video

import (
	"context"
	"fmt"
	"image"
	"image/draw"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// SegmentParams describes one encoded clip.
type SegmentParams struct {
	Width, Height int
	FPS           int
	Frames        int
	// Rate overrides FPS as the input rate when set ("30000/1001").
	Rate          string
}

func (p SegmentParams) inputRate() string {
	if p.Rate != "" {
		return p.Rate
	}
	return strconv.Itoa(p.FPS)
}

// FrameWriter accepts raw frames for one encoder process.
type FrameWriter interface {
	WriteFrame(img *image.RGBA) error
	// Close flushes the stream and waits for the encoder to finish.
	Close() error
	// Abort kills the encoder. Safe to call after Close.
	Abort()
}

// VideoEncoder turns frame streams into clips and clips into the final video.
type VideoEncoder interface {
	OpenSegment(ctx context.Context, path string, p SegmentParams) (FrameWriter, error)
	Concatenate(ctx context.Context, segmentPaths []string, finalPath string, tmpDir string) error
	MuxAudio(ctx context.Context, videoPath, audioPath, finalPath string, duration float64) error
}

// FFmpegEncoder shells out to ffmpeg for every encode step.
type FFmpegEncoder struct {
	Binary  string
	Codec   string // libx264, h264_nvenc, h264_videotoolbox
	Quality int
}

func (e *FFmpegEncoder) binary() string {
	if e.Binary == "" {
		return "ffmpeg"
	}
	return e.Binary
}

func (e *FFmpegEncoder) codec() string {
	if e.Codec == "" {
		return "libx264"
	}
	return e.Codec
}

func (e *FFmpegEncoder) OpenSegment(ctx context.Context, path string, p SegmentParams) (FrameWriter, error) {
	return startPipe(ctx, e.binary(), e.buildSegmentArgs(path, p))
}

// Используем rawvideo через stdin, чтобы кадры не проходили через диск.
func (e *FFmpegEncoder) buildSegmentArgs(path string, p SegmentParams) []string {
	args := []string{
		"-y", "-hide_banner", "-loglevel", "error",
		"-f", "rawvideo",
		"-pixel_format", "rgba",
		"-video_size", fmt.Sprintf("%dx%d", p.Width, p.Height),
		"-framerate", fmt.Sprintf("%d", p.FPS),
		"-i", "-",
		"-frames:v", fmt.Sprintf("%d", p.Frames),
		"-r", fmt.Sprintf("%d", p.FPS),
		"-an",
		"-pix_fmt", "yuv420p",
		"-c:v", e.codec(),
	}
	args = append(args, qualityArgs(e.codec(), e.Quality)...)
	return append(args, path)
}

// Concatenate joins same-format segments with the concat demuxer, without re-encoding.
func (e *FFmpegEncoder) Concatenate(ctx context.Context, segmentPaths []string, finalPath string, tmpDir string) error {
	listPath := filepath.Join(tmpDir, "inputs.txt")
	if err := writeConcatList(listPath, segmentPaths); err != nil {
		return err
	}
	cmd := exec.CommandContext(ctx, e.binary(), "-y", "-hide_banner", "-loglevel", "error",
		"-f", "concat", "-safe", "0", "-i", listPath,
		"-c", "copy", finalPath,
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("ffmpeg concat: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}

// MuxAudio attaches audioPath as the only soundtrack. The audio is padded with
// silence or cut so the output runs exactly duration seconds.
func (e *FFmpegEncoder) MuxAudio(ctx context.Context, videoPath, audioPath, finalPath string, duration float64) error {
	cmd := exec.CommandContext(ctx, e.binary(), buildMuxArgs(videoPath, audioPath, finalPath, duration)...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("ffmpeg mux audio: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}

func buildMuxArgs(videoPath, audioPath, finalPath string, duration float64) []string {
	return []string{
		"-y", "-hide_banner", "-loglevel", "error",
		"-i", videoPath,
		"-i", audioPath,
		"-map", "0:v:0",
		"-map", "1:a:0",
		"-c:v", "copy",
		"-c:a", "aac",
		"-b:a", "192k",
		"-af", "apad",
		"-t", fmt.Sprintf("%.3f", duration),
		"-movflags", "+faststart",
		finalPath,
	}
}

func writeConcatList(listPath string, segmentPaths []string) error {
	f, err := os.Create(listPath)
	if err != nil {
		return fmt.Errorf("create concat list: %w", err)
	}
	for _, p := range segmentPaths {
		absPath, err := filepath.Abs(p)
		if err != nil {
			f.Close()
			return err
		}
		// в concat-листе одинарная кавычка экранируется как '\''
		fmt.Fprintf(f, "file '%s'\n", strings.ReplaceAll(absPath, "'", `'\''`))
	}
	return f.Close()
}

// qualityArgs maps a single quality number onto each encoder's rate control.
func qualityArgs(codec string, quality int) []string {
	switch codec {
	case "h264_videotoolbox":
		// VideoToolbox не везде поддерживает -q:v, используем битрейт: 75 -> 7.5 Мбит/с
		return []string{"-b:v", fmt.Sprintf("%dk", quality*100)}
	case "h264_nvenc":
		return []string{"-cq", fmt.Sprintf("%d", quality)}
	default: // libx264
		return []string{"-crf", fmt.Sprintf("%d", quality), "-preset", "medium"}
	}
}

func writeRawRGBA(w io.Writer, img image.Image) error {
	bounds := img.Bounds()
	rgba, ok := img.(*image.RGBA)
	// Проверяем, является ли изображение уже RGBA и имеет ли стандартный шаг (stride)
	if !ok || rgba.Stride != bounds.Dx()*4 || rgba.Rect.Min.X != 0 || rgba.Rect.Min.Y != 0 {
		rgba = image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
		draw.Draw(rgba, rgba.Bounds(), img, bounds.Min, draw.Src)
	}
	_, err := w.Write(rgba.Pix)
	return err
}
