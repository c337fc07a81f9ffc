package main

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ivlev/storyreel/internal/effects"
	"github.com/ivlev/storyreel/internal/logging"
	"github.com/ivlev/storyreel/internal/progress"
)

// presetSize maps an aspect preset to a frame size.
func presetSize(preset string) (int, int, bool) {
	switch strings.TrimSpace(preset) {
	case "16:9":
		return 1280, 720, true
	case "9:16":
		return 720, 1280, true // Shorts/TikTok
	case "4:5":
		return 1080, 1350, true // Instagram
	}
	return 0, 0, false
}

// frameSize resolves the output size from a preset, then explicit flags, then config.
func frameSize(preset string, width, height, defW, defH int) (int, int, error) {
	if preset != "" {
		w, h, ok := presetSize(preset)
		if !ok {
			return 0, 0, fmt.Errorf("unknown preset %q (use 16:9, 9:16 or 4:5)", preset)
		}
		return w, h, nil
	}
	if width <= 0 {
		width = defW
	}
	if height <= 0 {
		height = defH
	}
	return width, height, nil
}

// timestampedOutput names an output like <name>_<timestamp>.mp4 inside dir.
func timestampedOutput(dir, nameSource string) string {
	base := filepath.Base(nameSource)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	clean := strings.ReplaceAll(name, " ", "_")
	if clean == "" || clean == "." {
		clean = "video"
	}
	timestamp := time.Now().Format("2006-01-02_15-04-05")
	return filepath.Join(dir, fmt.Sprintf("%s_%s.mp4", clean, timestamp))
}

// logReporter writes milestones to the logger.
func logReporter(logger *slog.Logger) progress.Reporter {
	return progress.ReporterFunc(func(_ context.Context, p progress.Progress) error {
		attrs := []any{
			logging.Int("percent", p.Percent),
			logging.String("status", string(p.Status)),
		}
		if p.ErrorMessage != "" {
			attrs = append(attrs, logging.String("error", p.ErrorMessage))
		}
		logger.Info("render progress", attrs...)
		return nil
	})
}

func truncateCell(s string, limit int) string {
	s = strings.ReplaceAll(strings.TrimSpace(s), "\n", " ")
	if len([]rune(s)) <= limit {
		return s
	}
	return string([]rune(s)[:limit-1]) + "…"
}

func timeSeed() int64 {
	return time.Now().UnixNano()
}

// formatParams renders animation params as "key=value" pairs in key order.
func formatParams(p effects.Params) string {
	parts := make([]string, 0, len(p))
	for _, k := range p.Keys() {
		parts = append(parts, k+"="+strconv.FormatFloat(p[k], 'g', -1, 64))
	}
	return strings.Join(parts, " ")
}
