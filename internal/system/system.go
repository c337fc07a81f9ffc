package system

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"sync"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"golang.org/x/sys/unix"

	"github.com/ivlev/storyreel/internal/logging"
)

// InitResourceLimits raises the open-file limit. Each clip worker keeps an
// encoder pipe and a segment file open.
func InitResourceLimits(logger *slog.Logger) {
	var rLimit unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &rLimit); err != nil {
		logger.Warn("read open file limit", logging.Error(err))
		return
	}

	want := uint64(2048)
	if rLimit.Cur >= want {
		return
	}
	if want > rLimit.Max {
		want = rLimit.Max
	}
	rLimit.Cur = want
	if err := unix.Setrlimit(unix.RLIMIT_NOFILE, &rLimit); err != nil {
		logger.Warn("raise open file limit", logging.Error(err))
		return
	}
	logger.Debug("open file limit raised", logging.Int64("limit", int64(rLimit.Cur)))
}

// GetMediaDuration returns the container duration reported by ffprobe, in seconds.
func GetMediaDuration(ctx context.Context, ffprobe, path string) (float64, error) {
	if ffprobe == "" {
		ffprobe = "ffprobe"
	}
	cmd := exec.CommandContext(ctx, ffprobe, "-v", "error", "-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1", path)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return 0, fmt.Errorf("ffprobe %s: %w: %s", path, err, strings.TrimSpace(string(out)))
	}
	duration, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", strings.TrimSpace(string(out)), err)
	}
	return duration, nil
}

var (
	encoderOnce sync.Once
	encoderName string
)

// GetBestH264Encoder picks a hardware H.264 encoder when ffmpeg offers one.
// Priority: VideoToolbox (macOS), NVENC (NVIDIA), then libx264.
func GetBestH264Encoder(ffmpeg string) string {
	encoderOnce.Do(func() {
		encoderName = "libx264"
		if ffmpeg == "" {
			ffmpeg = "ffmpeg"
		}
		out, err := exec.Command(ffmpeg, "-hide_banner", "-encoders").CombinedOutput()
		if err != nil {
			return
		}
		encoderName = pickEncoder(string(out))
	})
	return encoderName
}

func pickEncoder(listing string) string {
	for _, name := range []string{"h264_videotoolbox", "h264_nvenc"} {
		if strings.Contains(listing, name) {
			return name
		}
	}
	return "libx264"
}

// RecommendedWorkers sizes the clip worker pool. It uses one worker per logical CPU,
// capped so that frameBytes per worker fits in a quarter of the available memory.
func RecommendedWorkers(frameBytes int) int {
	workers, err := cpu.Counts(true)
	if err != nil || workers <= 0 {
		workers = runtime.NumCPU()
	}
	if vm, err := mem.VirtualMemory(); err == nil && frameBytes > 0 {
		// три буфера кадра на воркер плюс запас под ffmpeg
		perWorker := uint64(frameBytes) * 4
		if limit := int(vm.Available / 4 / perWorker); limit < workers {
			workers = limit
		}
	}
	if workers < 1 {
		workers = 1
	}
	return workers
}
