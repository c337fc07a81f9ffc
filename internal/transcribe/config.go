package transcribe

// Config captures runtime settings for WhisperX runs.
type Config struct {
	// Command launches WhisperX. "uvx" runs it from PyPI; any other value is
	// treated as a whisperx executable.
	Command     string
	Model       string
	Device      string
	ComputeType string
	// Language is an ISO 639-1 code; empty lets WhisperX detect it.
	Language string
}

// WhisperX configuration constants.
const (
	DefaultModel   = "base"
	PypiIndexURL   = "https://pypi.org/simple"
	OutputFormat   = "json"
	CPUDevice      = "cpu"
	CPUComputeType = "float32"
	BatchSize      = "4"
)

// Command names for external tools.
const (
	UVXCommand     = "uvx"
	FFmpegCommand  = "ffmpeg"
	WhisperCommand = "whisperx"
)
