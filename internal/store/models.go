package store

import (
	"time"

	"github.com/ivlev/storyreel/internal/effects"
	"github.com/ivlev/storyreel/internal/lifecycle"
	"github.com/ivlev/storyreel/internal/progress"
)

// Video is one row of the videos table.
type Video struct {
	ID              int64
	Title           string
	Status          progress.Status
	ProgressPercent int
	ErrorMessage    string
	Width           int
	Height          int
	AudioPath       string
	AudioDuration   float64
	PlainVideo      string
	CaptionedVideo  string
	SubtitlePath    string
	RunID           string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Progress returns the render progress view of the record.
func (v *Video) Progress() progress.Progress {
	return progress.Progress{
		Percent:      v.ProgressPercent,
		Status:       v.Status,
		ErrorMessage: v.ErrorMessage,
		UpdatedAt:    v.UpdatedAt,
	}
}

// Image is one ordered clip of a video.
type Image struct {
	ID              int64
	VideoID         int64
	SequenceIndex   int
	SourcePath      string
	Duration        float64
	AnimationKind   string
	AnimationParams effects.Params
}

// Artifacts collects the file references owned by a video and its images.
func Artifacts(v *Video, images []Image) lifecycle.Artifacts {
	a := lifecycle.Artifacts{
		AudioPath:      v.AudioPath,
		PlainVideo:     v.PlainVideo,
		CaptionedVideo: v.CaptionedVideo,
		SubtitlePath:   v.SubtitlePath,
	}
	for _, img := range images {
		if img.SourcePath != "" {
			a.ImagePaths = append(a.ImagePaths, img.SourcePath)
		}
	}
	return a
}

// gateStatus derives the upstream pending status from what a video has so far.
func gateStatus(images int, hasAudio bool) progress.Status {
	switch {
	case images == 0:
		return progress.StatusImagesPending
	case !hasAudio:
		return progress.StatusAudioPending
	default:
		return progress.StatusVideoPending
	}
}

func isGating(s progress.Status) bool {
	switch s {
	case progress.StatusImagesPending, progress.StatusAudioPending, progress.StatusVideoPending:
		return true
	}
	return false
}
