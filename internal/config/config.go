package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths holds the durable artifact directories.
type Paths struct {
	DataDir  string `toml:"data_dir"`
	TempDir  string `toml:"temp_dir"`
	LogDir   string `toml:"log_dir"`
	Database string `toml:"database"`
}

// Video holds compositor settings.
type Video struct {
	Width   int    `toml:"width"`
	Height  int    `toml:"height"`
	FPS     int    `toml:"fps"`
	Encoder string `toml:"encoder"` // "auto", "libx264", "h264_nvenc", "h264_videotoolbox"
	Quality int    `toml:"quality"`
	Workers int    `toml:"workers"` // 0 = derive from CPU and memory
}

// Captions holds caption generation and burn-in settings.
type Captions struct {
	Enabled            bool   `toml:"enabled"`
	MaxWordsPerCaption int    `toml:"max_words_per_caption"`
	Highlight          string `toml:"highlight"` // "", "bold" or a color
	Format             string `toml:"format"`    // "srt" or "vtt"
	Case               string `toml:"case"`      // "none", "upper", "lower", "title"
	FontSize           int    `toml:"font_size"`
	Color              string `toml:"color"`
	Position           string `toml:"position"`
	Background         string `toml:"background"`
	KeepFinal          bool   `toml:"keep_final"`
}

// Transcription holds speech recognition settings.
type Transcription struct {
	Command     string `toml:"command"`
	Model       string `toml:"model"`
	Device      string `toml:"device"`
	ComputeType string `toml:"compute_type"`
	Language    string `toml:"language"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for storyreel.
type Config struct {
	Paths         Paths         `toml:"paths"`
	Video         Video         `toml:"video"`
	Captions      Captions      `toml:"captions"`
	Transcription Transcription `toml:"transcription"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. Missing files are not an
// error; defaults apply. Values from a .env file in the working directory and
// STORYREEL_* environment variables override the file.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, "", false, fmt.Errorf("load .env: %w", err)
	}
	cfg.applyEnv()

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}
	return &cfg, resolvedPath, exists, nil
}

// CreateSample writes the sample configuration to path, refusing to overwrite.
func CreateSample(path string) error {
	expanded, err := expandPath(path)
	if err != nil {
		return err
	}
	if _, err := os.Stat(expanded); err == nil {
		return fmt.Errorf("config already exists at %s", expanded)
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	return os.WriteFile(expanded, []byte(sampleConfig), 0o644)
}

// EnsureDirectories creates the data, temp and log directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.TempDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// LogFile returns the log file path, or "" when file logging is disabled.
func (c *Config) LogFile() string {
	if c.Paths.LogDir == "" {
		return ""
	}
	return filepath.Join(c.Paths.LogDir, "storyreel.log")
}

func (c *Config) applyEnv() {
	if v := strings.TrimSpace(os.Getenv("STORYREEL_DATA_DIR")); v != "" {
		c.Paths.DataDir = v
	}
	if v := strings.TrimSpace(os.Getenv("STORYREEL_LOG_LEVEL")); v != "" {
		c.Logging.Level = v
	}
	if v := strings.TrimSpace(os.Getenv("STORYREEL_WHISPER_MODEL")); v != "" {
		c.Transcription.Model = v
	}
	if v := strings.TrimSpace(os.Getenv("STORYREEL_VIDEO_ENCODER")); v != "" {
		c.Video.Encoder = v
	}
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		if _, err := os.Stat(expanded); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}
	projectPath, err := filepath.Abs("storyreel.toml")
	if err != nil {
		return "", false, err
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}
	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	return defaultPath, false, nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	absolute, err := filepath.Abs(filepath.Clean(pathValue))
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", pathValue, err)
	}
	return absolute, nil
}
