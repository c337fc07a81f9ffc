// Package progress defines the render status model shared by the compositor, the
// store and the dispatcher.
package progress

import (
	"context"
	"sync"
	"time"
	"unicode/utf8"
)

// Status is the pipeline state of one video.
type Status string

const (
	StatusScriptPending   Status = "script_pending"
	StatusScriptFailed    Status = "script_failed"
	StatusImagesPending   Status = "images_pending"
	StatusAudioPending    Status = "audio_pending"
	StatusVideoPending    Status = "video_pending"
	StatusProcessing      Status = "processing"
	StatusCaptionsPending Status = "captions_pending"
	StatusCompleted       Status = "completed"
	StatusError           Status = "error"
)

// MaxErrorMessage bounds the stored error text.
const MaxErrorMessage = 500

// InProgress reports whether a render currently owns the video.
func (s Status) InProgress() bool {
	return s == StatusProcessing
}

// Progress is a point-in-time view of a render.
type Progress struct {
	Percent      int
	Status       Status
	ErrorMessage string
	UpdatedAt    time.Time
}

// Reporter receives milestone updates. Implementations must be safe for concurrent use.
type Reporter interface {
	Report(ctx context.Context, p Progress) error
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(ctx context.Context, p Progress) error

func (f ReporterFunc) Report(ctx context.Context, p Progress) error { return f(ctx, p) }

// Discard is a Reporter that drops every update.
var Discard Reporter = ReporterFunc(func(context.Context, Progress) error { return nil })

// Failed builds an error-state update with a bounded message.
func Failed(percent int, err error) Progress {
	msg := ""
	if err != nil {
		msg = Truncate(err.Error(), MaxErrorMessage)
	}
	return Progress{Percent: percent, Status: StatusError, ErrorMessage: msg}
}

// Truncate shortens s to at most limit bytes without splitting a rune.
func Truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// Tracker is an in-memory Reporter that keeps the latest update and the full history.
type Tracker struct {
	mu      sync.Mutex
	current Progress
	history []Progress
}

func (t *Tracker) Report(_ context.Context, p Progress) error {
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = time.Now().UTC()
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.current = p
	t.history = append(t.history, p)
	return nil
}

// Current returns the most recent update.
func (t *Tracker) Current() Progress {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current
}

// History returns a copy of every update in arrival order.
func (t *Tracker) History() []Progress {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Progress, len(t.history))
	copy(out, t.history)
	return out
}
