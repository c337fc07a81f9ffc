package config

const (
	defaultConfigPath = "~/.config/storyreel/config.toml"
	defaultDataDir    = "~/.local/share/storyreel"
	defaultLogDir     = "~/.local/state/storyreel/logs"

	DefaultWidth   = 720
	DefaultHeight  = 1280
	DefaultFPS     = 24
	DefaultQuality = 23

	DefaultFontSize   = 40
	DefaultColor      = "white"
	DefaultPosition   = "bottom"
	DefaultBackground = "#00000090"

	DefaultWhisperCommand = "uvx"
	DefaultWhisperModel   = "base"
)

// Default returns a Config populated with the built-in defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
		},
		Video: Video{
			Width:   DefaultWidth,
			Height:  DefaultHeight,
			FPS:     DefaultFPS,
			Encoder: "auto",
			Quality: DefaultQuality,
		},
		Captions: Captions{
			Enabled:            true,
			MaxWordsPerCaption: 1,
			Format:             "srt",
			Case:               "none",
			FontSize:           DefaultFontSize,
			Color:              DefaultColor,
			Position:           DefaultPosition,
			Background:         DefaultBackground,
			KeepFinal:          true,
		},
		Transcription: Transcription{
			Command:     DefaultWhisperCommand,
			Model:       DefaultWhisperModel,
			Device:      "cpu",
			ComputeType: "float32",
			Language:    "en",
		},
		Logging: Logging{
			Format: "auto",
			Level:  "info",
		},
	}
}
