// Package lifecycle names durable artifacts and reclaims intermediates once a
// later stage supersedes them.
package lifecycle

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/ivlev/storyreel/internal/logging"
)

// Artifacts are the file references a video owns. Empty strings mean "none".
type Artifacts struct {
	AudioPath      string
	ImagePaths     []string
	PlainVideo     string
	CaptionedVideo string
	SubtitlePath   string
}

// FinalVideo returns the captioned video if present on disk, else the plain one.
func (a *Artifacts) FinalVideo() string {
	if exists(a.CaptionedVideo) {
		return a.CaptionedVideo
	}
	if exists(a.PlainVideo) {
		return a.PlainVideo
	}
	return ""
}

// Result contains the outcome of a cleanup pass.
type Result struct {
	Removed []string
	Errors  []CleanupError
}

// CleanupError pairs a path with its removal error.
type CleanupError struct {
	Path  string
	Error error
}

// Cleanup removes artifacts under the keep policy and clears the references
// it no longer needs.
//
// With keepFinal it does nothing until a final video exists. Then it drops the
// subtitle, audio and image files, and the plain video when a captioned one
// exists. Without keepFinal everything goes. Missing files are not errors; a
// failed removal is recorded, keeps its reference and does not stop the pass.
func Cleanup(a *Artifacts, keepFinal bool, logger *slog.Logger) Result {
	if logger == nil {
		logger = logging.NewNop()
	}
	c := cleaner{logger: logger}
	if a == nil {
		return c.result
	}

	if keepFinal {
		if a.FinalVideo() == "" {
			return c.result
		}
		if exists(a.PlainVideo) && exists(a.CaptionedVideo) {
			a.PlainVideo = c.remove(a.PlainVideo)
		}
	} else {
		a.PlainVideo = c.remove(a.PlainVideo)
		a.CaptionedVideo = c.remove(a.CaptionedVideo)
	}

	a.SubtitlePath = c.remove(a.SubtitlePath)
	a.AudioPath = c.remove(a.AudioPath)
	var kept []string
	for _, p := range a.ImagePaths {
		if left := c.remove(p); left != "" {
			kept = append(kept, left)
		}
	}
	a.ImagePaths = kept
	return c.result
}

type cleaner struct {
	logger *slog.Logger
	result Result
}

// remove deletes path and returns the reference to keep: "" unless removal failed.
func (c *cleaner) remove(path string) string {
	if strings.TrimSpace(path) == "" {
		return ""
	}
	err := os.Remove(path)
	switch {
	case err == nil:
		c.result.Removed = append(c.result.Removed, path)
		c.logger.Info("removed artifact",
			logging.String("path", path),
			logging.String(logging.FieldEventType, "artifact_cleanup"),
		)
		return ""
	case errors.Is(err, fs.ErrNotExist):
		return ""
	default:
		c.result.Errors = append(c.result.Errors, CleanupError{Path: path, Error: err})
		c.logger.Warn("failed to remove artifact",
			logging.String("path", path),
			logging.Error(err),
			logging.String(logging.FieldEventType, "artifact_cleanup_failed"),
			logging.String(logging.FieldErrorHint, "check data_dir permissions"),
			logging.String(logging.FieldImpact, "disk space not reclaimed"),
		)
		return path
	}
}

func exists(path string) bool {
	if strings.TrimSpace(path) == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
