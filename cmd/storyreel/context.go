package main

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/ivlev/storyreel/internal/burnin"
	"github.com/ivlev/storyreel/internal/config"
	"github.com/ivlev/storyreel/internal/lifecycle"
	"github.com/ivlev/storyreel/internal/logging"
	"github.com/ivlev/storyreel/internal/store"
	"github.com/ivlev/storyreel/internal/system"
	"github.com/ivlev/storyreel/internal/transcribe"
	"github.com/ivlev/storyreel/internal/video"
	"github.com/ivlev/storyreel/internal/workflow"
)

const (
	ffmpegBinary  = "ffmpeg"
	ffprobeBinary = "ffprobe"
)

type commandContext struct {
	configFlag   *string
	logLevelFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error

	loggerOnce sync.Once
	logger     *slog.Logger

	storeOnce sync.Once
	store     *store.Store
	storeErr  error
}

func newCommandContext(configFlag, logLevelFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag, logLevelFlag: logLevelFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if c.logLevelFlag != nil && strings.TrimSpace(*c.logLevelFlag) != "" {
			cfg.Logging.Level = strings.ToLower(strings.TrimSpace(*c.logLevelFlag))
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// log builds the process logger once: stderr plus the configured log file.
func (c *commandContext) log() *slog.Logger {
	c.loggerOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.logger = logging.NewNop()
			return
		}
		logger, err := logging.New(logging.Options{
			Level:       cfg.Logging.Level,
			Format:      cfg.Logging.Format,
			OutputPaths: []string{"stderr", cfg.LogFile()},
		})
		if err != nil {
			c.logger = logging.NewNop()
			return
		}
		system.InitResourceLimits(logger)
		c.logger = logger
	})
	return c.logger
}

func (c *commandContext) openStore() (*store.Store, error) {
	c.storeOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.storeErr = err
			return
		}
		c.store, c.storeErr = store.Open(cfg.Paths.Database)
	})
	return c.store, c.storeErr
}

func (c *commandContext) close() error {
	if c.store != nil {
		return c.store.Close()
	}
	return nil
}

func (c *commandContext) layout() lifecycle.Layout {
	return lifecycle.Layout{Root: c.config.Paths.DataDir}
}

// encoder resolves "auto" to the best available H.264 encoder. Quality 0 takes
// the per-encoder default.
func (c *commandContext) encoder() *video.FFmpegEncoder {
	codec := c.config.Video.Encoder
	if codec == "" || codec == "auto" {
		codec = system.GetBestH264Encoder(ffmpegBinary)
	}
	quality := c.config.Video.Quality
	if quality == 0 {
		quality = defaultQuality(codec)
	}
	return &video.FFmpegEncoder{Binary: ffmpegBinary, Codec: codec, Quality: quality}
}

func defaultQuality(codec string) int {
	switch codec {
	case "h264_videotoolbox":
		return 75 // битрейт Q*100 кбит/с
	case "h264_nvenc":
		return 28
	default:
		return 23
	}
}

func (c *commandContext) workers(width, height int) int {
	if c.config.Video.Workers > 0 {
		return c.config.Video.Workers
	}
	return system.RecommendedWorkers(width * height * 4)
}

func (c *commandContext) asr() *transcribe.Service {
	t := c.config.Transcription
	return transcribe.NewService(transcribe.Config{
		Command:     t.Command,
		Model:       t.Model,
		Device:      t.Device,
		ComputeType: t.ComputeType,
		Language:    t.Language,
	}, ffmpegBinary)
}

func (c *commandContext) burner() *burnin.Renderer {
	return &burnin.Renderer{
		Transcoder: c.encoder(),
		Prober:     video.FFprobe{Binary: ffprobeBinary},
		Logger:     logging.NewComponentLogger(c.log(), "burnin"),
	}
}

func (c *commandContext) captionOptions() transcribe.Options {
	cc := c.config.Captions
	return transcribe.Options{
		MaxWords:  cc.MaxWordsPerCaption,
		Highlight: cc.Highlight,
		Format:    cc.Format,
		Case:      cc.Case,
	}
}

func (c *commandContext) captionStyle() burnin.Style {
	cc := c.config.Captions
	style := burnin.DefaultStyle()
	style.FontSize = cc.FontSize
	style.Color = cc.Color
	style.Position = burnin.Position(cc.Position)
	style.Background = cc.Background
	return style
}

func (c *commandContext) pipeline(st *store.Store) *workflow.Pipeline {
	return &workflow.Pipeline{
		Store:   st,
		Layout:  c.layout(),
		Encoder: c.encoder(),
		Workers: c.workers(c.config.Video.Width, c.config.Video.Height),
		TempDir: c.config.Paths.TempDir,
		Prober:  video.FFprobe{Binary: ffprobeBinary},
		ASR:     c.asr(),
		Burner:  c.burner(),
		Captions: workflow.CaptionSettings{
			Enabled:   c.config.Captions.Enabled,
			Options:   c.captionOptions(),
			Style:     c.captionStyle(),
			KeepFinal: c.config.Captions.KeepFinal,
		},
		Logger: logging.NewComponentLogger(c.log(), "pipeline"),
	}
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
