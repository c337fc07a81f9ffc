package video

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// Info is what the pipeline needs to know about an existing video file.
type Info struct {
	Width  int
	Height int
	FPS    float64
	// FrameRate is the stream rate as ffprobe reports it, e.g. "30000/1001".
	FrameRate string
	Duration  float64
	HasAudio  bool
}

type probeResult struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
	Streams []struct {
		CodecType  string `json:"codec_type"`
		CodecName  string `json:"codec_name"`
		Width      int    `json:"width"`
		Height     int    `json:"height"`
		RFrameRate string `json:"r_frame_rate"`
	} `json:"streams"`
}

// Probe runs ffprobe on path and reads the first video stream.
func Probe(ctx context.Context, ffprobe, path string) (Info, error) {
	if ffprobe == "" {
		ffprobe = "ffprobe"
	}
	cmd := exec.CommandContext(ctx, ffprobe,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)
	out, err := cmd.Output()
	if err != nil {
		return Info{}, fmt.Errorf("ffprobe %s: %w", path, err)
	}
	return parseProbe(out)
}

func parseProbe(data []byte) (Info, error) {
	var res probeResult
	if err := json.Unmarshal(data, &res); err != nil {
		return Info{}, fmt.Errorf("parse ffprobe output: %w", err)
	}

	var info Info
	foundVideo := false
	for _, s := range res.Streams {
		switch s.CodecType {
		case "video":
			if foundVideo {
				continue
			}
			foundVideo = true
			info.Width = s.Width
			info.Height = s.Height
			if info.FPS = parseFrameRate(s.RFrameRate); info.FPS > 0 {
				info.FrameRate = strings.TrimSpace(s.RFrameRate)
			}
		case "audio":
			info.HasAudio = true
		}
	}
	if !foundVideo {
		return Info{}, fmt.Errorf("no video stream")
	}
	if d, err := strconv.ParseFloat(strings.TrimSpace(res.Format.Duration), 64); err == nil {
		info.Duration = d
	}
	return info, nil
}

// parseFrameRate accepts "30000/1001" or "24". Returns 0 when unparsable.
func parseFrameRate(s string) float64 {
	num, den, ok := strings.Cut(s, "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	if !ok {
		return n
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return 0
	}
	return n / d
}

// FFprobe probes files with an ffprobe binary.
type FFprobe struct {
	Binary string
}

func (p FFprobe) Probe(ctx context.Context, path string) (Info, error) {
	return Probe(ctx, p.Binary, path)
}
