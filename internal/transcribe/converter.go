package transcribe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ivlev/storyreel/internal/captions"
	"github.com/ivlev/storyreel/internal/logging"
)

// ErrNoSpeech is returned when recognition produced no words at all.
var ErrNoSpeech = errors.New("no speech recognized")

// Transcriber is the speech recognition capability the converter needs.
type Transcriber interface {
	Check() error
	ExtractAudio(ctx context.Context, source, dest string) error
	Transcribe(ctx context.Context, source, outputDir string) ([]captions.Segment, error)
}

// Options controls cue grouping and output.
type Options struct {
	// MaxWords per cue; <= 0 keeps one cue per recognized segment.
	MaxWords int
	// Highlight is "", "bold" or a color for the spoken word.
	Highlight string
	// Format is "srt" or "vtt"; empty picks from the output extension.
	Format string
	// Case is none, upper, lower or title.
	Case string
	// MediaDuration clamps cues when positive.
	MediaDuration float64
}

// Converter turns a media file's speech into a subtitle file.
type Converter struct {
	ASR Transcriber
	// WorkDir receives the extracted WAV; empty means the output directory.
	WorkDir string
	Logger  *slog.Logger
}

// Generate transcribes mediaPath and writes cues to outputPath. An empty
// outputPath becomes <stem>.<format> next to the media. The extracted
// <stem>_audio.wav is left in place for the caller.
func (c *Converter) Generate(ctx context.Context, mediaPath, outputPath string, opts Options) (string, error) {
	logger := c.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	if c.ASR == nil {
		return "", &CapabilityError{Capability: "speech recognition", Command: "", Detail: "not configured"}
	}
	if err := c.ASR.Check(); err != nil {
		return "", err
	}
	if _, err := os.Stat(mediaPath); err != nil {
		return "", fmt.Errorf("media file: %w", err)
	}

	textCase, err := captions.ParseCase(opts.Case)
	if err != nil {
		return "", err
	}
	format, err := captions.ResolveFormat(opts.Format, outputPath)
	if err != nil {
		return "", err
	}
	stem := strings.TrimSuffix(filepath.Base(mediaPath), filepath.Ext(mediaPath))
	if outputPath == "" {
		outputPath = filepath.Join(filepath.Dir(mediaPath), stem+"."+string(format))
	}

	workDir := c.WorkDir
	if workDir == "" {
		workDir = filepath.Dir(outputPath)
	}
	audioPath := filepath.Join(workDir, stem+"_audio.wav")

	start := time.Now()
	logger.Info("extracting audio",
		logging.String("media", mediaPath),
		logging.Bool("video_input", IsVideo(mediaPath)),
		logging.String("audio", audioPath),
	)
	if err := c.ASR.ExtractAudio(ctx, mediaPath, audioPath); err != nil {
		return "", err
	}

	segments, err := c.ASR.Transcribe(ctx, audioPath, workDir)
	if err != nil {
		return "", err
	}

	cues := captions.Group(segments, opts.MaxWords, captions.ParseStyle(opts.Highlight), textCase)
	cues = captions.Clamp(cues, opts.MediaDuration)
	if len(cues) == 0 {
		return "", ErrNoSpeech
	}
	if err := captions.WriteFile(outputPath, cues, format); err != nil {
		return "", err
	}

	logger.Info("captions generated",
		logging.String(logging.FieldEventType, "captions_generated"),
		logging.String("output", outputPath),
		logging.Int("cues", len(cues)),
		logging.String("format", string(format)),
		logging.Duration("elapsed", time.Since(start)),
	)
	return outputPath, nil
}

var videoExtensions = map[string]bool{
	".mp4": true, ".avi": true, ".mov": true, ".mkv": true,
	".webm": true, ".flv": true, ".wmv": true,
}

// IsVideo reports whether path names a video file, by MIME type first and extension second.
func IsVideo(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	if mt := mime.TypeByExtension(ext); mt != "" {
		return strings.HasPrefix(mt, "video/")
	}
	return videoExtensions[ext]
}
