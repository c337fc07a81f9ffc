// Package transcribe runs speech recognition through WhisperX and turns the
// word timings into caption files.
package transcribe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ivlev/storyreel/internal/captions"
	"github.com/ivlev/storyreel/internal/deps"
)

// ErrCapabilityUnavailable marks a missing speech recognition install.
var ErrCapabilityUnavailable = errors.New("speech recognition unavailable")

// CapabilityError names the missing capability and the command that was looked up.
type CapabilityError struct {
	Capability string
	Command    string
	Detail     string
}

func (e *CapabilityError) Error() string {
	return fmt.Sprintf("%s unavailable: %s (%s)", e.Capability, e.Command, e.Detail)
}

func (e *CapabilityError) Is(target error) bool {
	return target == ErrCapabilityUnavailable
}

// Service provides WhisperX transcription.
type Service struct {
	cfg           Config
	ffmpegBinary  string
	commandRunner func(ctx context.Context, name string, args ...string) error

	checkOnce sync.Once
	checkErr  error
}

// NewService creates a WhisperX service with the given configuration.
func NewService(cfg Config, ffmpegBinary string) *Service {
	if ffmpegBinary == "" {
		ffmpegBinary = FFmpegCommand
	}
	if cfg.Command == "" {
		cfg.Command = UVXCommand
	}
	return &Service{cfg: cfg, ffmpegBinary: ffmpegBinary}
}

// WithCommandRunner sets a custom command runner (for testing).
func (s *Service) WithCommandRunner(runner func(ctx context.Context, name string, args ...string) error) {
	s.commandRunner = runner
}

// Model returns the configured model name for logging.
func (s *Service) Model() string {
	if s.cfg.Model != "" {
		return s.cfg.Model
	}
	return DefaultModel
}

// Check verifies once that the recognizer can be launched. The result is cached.
func (s *Service) Check() error {
	s.checkOnce.Do(func() {
		statuses := deps.CheckBinaries([]deps.Requirement{{
			Name:        "WhisperX",
			Command:     s.cfg.Command,
			Description: "Speech recognition for captions",
		}})
		if st := statuses[0]; !st.Available {
			s.checkErr = &CapabilityError{Capability: "speech recognition", Command: st.Command, Detail: st.Detail}
		}
	})
	return s.checkErr
}

// ExtractAudio converts any media file to the mono 16 kHz PCM WAV WhisperX expects.
func (s *Service) ExtractAudio(ctx context.Context, source, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("extract audio: ensure dir: %w", err)
	}
	if err := s.run(ctx, s.ffmpegBinary, buildExtractArgs(source, dest)...); err != nil {
		return fmt.Errorf("extract audio: %w", err)
	}
	return nil
}

func buildExtractArgs(source, dest string) []string {
	return []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-i", source,
		"-vn",
		"-sn",
		"-dn",
		"-ac", "1",
		"-ar", "16000",
		"-c:a", "pcm_s16le",
		dest,
	}
}

// Transcribe runs WhisperX on a WAV file and returns its segments with word timings.
func (s *Service) Transcribe(ctx context.Context, source, outputDir string) ([]captions.Segment, error) {
	if source == "" {
		return nil, fmt.Errorf("transcribe: source path required")
	}
	if err := s.Check(); err != nil {
		return nil, err
	}
	if outputDir == "" {
		outputDir = filepath.Dir(source)
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("transcribe: ensure output dir: %w", err)
	}

	if err := s.run(ctx, s.cfg.Command, s.buildArgs(source, outputDir)...); err != nil {
		return nil, fmt.Errorf("whisperx: %w", err)
	}

	baseName := strings.TrimSuffix(filepath.Base(source), filepath.Ext(source))
	segments, err := LoadSegments(filepath.Join(outputDir, baseName+".json"))
	if err != nil {
		return nil, fmt.Errorf("whisperx: %w", err)
	}
	return segments, nil
}

// buildArgs constructs the command arguments for WhisperX.
func (s *Service) buildArgs(source, outputDir string) []string {
	args := make([]string, 0, 24)
	if filepath.Base(s.cfg.Command) == UVXCommand {
		args = append(args, "--index-url", PypiIndexURL, WhisperCommand)
	}

	args = append(args,
		source,
		"--model", s.Model(),
		"--batch_size", BatchSize,
		"--output_dir", outputDir,
		"--output_format", OutputFormat,
	)
	if lang := strings.ToLower(strings.TrimSpace(s.cfg.Language)); lang != "" {
		args = append(args, "--language", lang)
	}

	device := s.cfg.Device
	if device == "" {
		device = CPUDevice
	}
	args = append(args, "--device", device)
	if computeType := s.cfg.ComputeType; computeType != "" {
		args = append(args, "--compute_type", computeType)
	} else if device == CPUDevice {
		args = append(args, "--compute_type", CPUComputeType)
	}
	return args
}

// run executes a command, using the custom runner if set.
func (s *Service) run(ctx context.Context, name string, args ...string) error {
	if s.commandRunner != nil {
		return s.commandRunner(ctx, name, args...)
	}
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec

	// Torch 2.6 changed torch.load default to weights_only=true, breaking WhisperX/pyannote.
	if os.Getenv("TORCH_FORCE_NO_WEIGHTS_ONLY_LOAD") == "" {
		cmd.Env = append(os.Environ(), "TORCH_FORCE_NO_WEIGHTS_ONLY_LOAD=1")
	}
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(output)))
	}
	return nil
}

type whisperWord struct {
	Word  string   `json:"word"`
	Start *float64 `json:"start"`
	End   *float64 `json:"end"`
}

type whisperSegment struct {
	Text  string        `json:"text"`
	Start float64       `json:"start"`
	End   float64       `json:"end"`
	Words []whisperWord `json:"words"`
}

type whisperXPayload struct {
	Segments []whisperSegment `json:"segments"`
}

// LoadSegments loads segments from a WhisperX JSON file. Words the aligner
// could not time (numbers, symbols) inherit the neighbouring word's edges.
func LoadSegments(jsonPath string) ([]captions.Segment, error) {
	data, err := os.ReadFile(jsonPath)
	if err != nil {
		return nil, err
	}
	var payload whisperXPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("parse whisperx json: %w", err)
	}

	out := make([]captions.Segment, 0, len(payload.Segments))
	for _, seg := range payload.Segments {
		s := captions.Segment{Text: strings.TrimSpace(seg.Text), Start: seg.Start, End: seg.End}
		cursor := seg.Start
		for _, w := range seg.Words {
			word := captions.Word{Text: strings.TrimSpace(w.Word), Start: cursor, End: cursor}
			if w.Start != nil {
				word.Start = *w.Start
			}
			if w.End != nil {
				word.End = *w.End
			} else {
				word.End = word.Start
			}
			cursor = word.End
			s.Words = append(s.Words, word)
		}
		out = append(out, s)
	}
	return out, nil
}
