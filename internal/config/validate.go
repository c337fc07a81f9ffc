package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	var err error
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.TempDir) == "" {
		c.Paths.TempDir = filepath.Join(os.TempDir(), "storyreel")
	}
	if c.Paths.TempDir, err = expandPath(c.Paths.TempDir); err != nil {
		return fmt.Errorf("paths.temp_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.Database) == "" {
		c.Paths.Database = filepath.Join(c.Paths.DataDir, "storyreel.db")
	}
	if c.Paths.Database, err = expandPath(c.Paths.Database); err != nil {
		return fmt.Errorf("paths.database: %w", err)
	}

	c.Video.Encoder = strings.ToLower(strings.TrimSpace(c.Video.Encoder))
	if c.Video.Encoder == "" {
		c.Video.Encoder = "auto"
	}
	c.Captions.Format = strings.ToLower(strings.TrimSpace(c.Captions.Format))
	c.Captions.Case = strings.ToLower(strings.TrimSpace(c.Captions.Case))
	if c.Captions.Case == "" {
		c.Captions.Case = "none"
	}
	c.Captions.Position = strings.ToLower(strings.TrimSpace(c.Captions.Position))
	c.Captions.Highlight = strings.TrimSpace(c.Captions.Highlight)
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	return nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Video.Width <= 0 || c.Video.Height <= 0 {
		errs = append(errs, fmt.Errorf("video: width and height must be positive"))
	}
	if c.Video.Width%2 != 0 || c.Video.Height%2 != 0 {
		errs = append(errs, fmt.Errorf("video: width and height must be even for yuv420p"))
	}
	if c.Video.FPS <= 0 {
		errs = append(errs, fmt.Errorf("video.fps must be positive"))
	}
	if c.Video.Workers < 0 {
		errs = append(errs, fmt.Errorf("video.workers must be >= 0"))
	}
	switch c.Captions.Format {
	case "srt", "vtt":
	default:
		errs = append(errs, fmt.Errorf("captions.format: unsupported value %q", c.Captions.Format))
	}
	switch c.Captions.Case {
	case "none", "upper", "lower", "title":
	default:
		errs = append(errs, fmt.Errorf("captions.case: unsupported value %q", c.Captions.Case))
	}
	switch c.Captions.Position {
	case "top", "middle", "bottom":
	default:
		errs = append(errs, fmt.Errorf("captions.position: unsupported value %q", c.Captions.Position))
	}
	if c.Captions.FontSize <= 0 {
		errs = append(errs, fmt.Errorf("captions.font_size must be positive"))
	}
	if c.Captions.MaxWordsPerCaption < 0 {
		errs = append(errs, fmt.Errorf("captions.max_words_per_caption must be >= 0"))
	}
	if strings.TrimSpace(c.Transcription.Command) == "" {
		errs = append(errs, fmt.Errorf("transcription.command is required"))
	}
	switch c.Logging.Format {
	case "auto", "console", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format))
	}
	return errors.Join(errs...)
}
