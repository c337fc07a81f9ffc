// Package workflow runs pipeline stages for stored videos, one run per video at a time.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"github.com/ivlev/storyreel/internal/lifecycle"
	"github.com/ivlev/storyreel/internal/logging"
	"github.com/ivlev/storyreel/internal/progress"
	"github.com/ivlev/storyreel/internal/store"
)

var (
	// ErrAlreadyRunning rejects a submission for a video another run owns.
	ErrAlreadyRunning = errors.New("video already has a run in progress")
	// ErrStageGated means a stage's predecessor output is missing.
	ErrStageGated = errors.New("stage prerequisites are missing")
)

// Stage names a pipeline step.
type Stage string

const (
	StageRender  Stage = "render"
	StageCaption Stage = "caption"
)

// Run is handed to a job. Progress persists milestones for the video.
type Run struct {
	ID       string
	VideoID  int64
	Stage    Stage
	Progress progress.Reporter
	Logger   *slog.Logger
}

// Job is the work of one stage.
type Job func(ctx context.Context, run Run) error

// RunStore is the persistence the dispatcher needs.
type RunStore interface {
	ClaimRun(ctx context.Context, id int64, runID string) error
	Reporter(id int64) progress.Reporter
	Progress(ctx context.Context, id int64) (progress.Progress, error)
}

// Dispatcher starts jobs on their own goroutines. Callers observe them by
// polling the store, or block with Wait.
type Dispatcher struct {
	store  RunStore
	layout lifecycle.Layout
	logger *slog.Logger

	mu       sync.Mutex
	running  map[int64]string
	failures []error
	wg       sync.WaitGroup
}

// NewDispatcher creates a dispatcher that keeps per-video lock files under layout.
func NewDispatcher(st RunStore, layout lifecycle.Layout, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Dispatcher{
		store:   st,
		layout:  layout,
		logger:  logging.NewComponentLogger(logger, "dispatcher"),
		running: make(map[int64]string),
	}
}

// Submit claims videoID and starts job. It returns the run id, or
// ErrAlreadyRunning when this process, another process or the stored status
// says the video is busy.
func (d *Dispatcher) Submit(ctx context.Context, videoID int64, stage Stage, job Job) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if runID, ok := d.running[videoID]; ok {
		return "", fmt.Errorf("%w: video %d (run %s)", ErrAlreadyRunning, videoID, runID)
	}

	if err := os.MkdirAll(d.layout.LocksDir(), 0o755); err != nil {
		return "", fmt.Errorf("create lock dir: %w", err)
	}
	lock := flock.New(d.layout.Lock(videoID))
	locked, err := lock.TryLock()
	if err != nil {
		return "", fmt.Errorf("acquire lock: %w", err)
	}
	if !locked {
		return "", fmt.Errorf("%w: video %d is locked by another process", ErrAlreadyRunning, videoID)
	}

	runID := uuid.NewString()
	if err := d.store.ClaimRun(ctx, videoID, runID); err != nil {
		_ = lock.Unlock()
		if errors.Is(err, store.ErrInProgress) {
			return "", fmt.Errorf("%w: video %d", ErrAlreadyRunning, videoID)
		}
		return "", err
	}

	d.running[videoID] = runID
	run := Run{
		ID:       runID,
		VideoID:  videoID,
		Stage:    stage,
		Progress: d.store.Reporter(videoID),
		Logger: d.logger.With(
			logging.Int64(logging.FieldVideoID, videoID),
			logging.String(logging.FieldRunID, runID),
			logging.String(logging.FieldStage, string(stage)),
		),
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() {
			if err := lock.Unlock(); err != nil {
				run.Logger.Warn("failed to release video lock", logging.Error(err))
			}
			d.mu.Lock()
			delete(d.running, videoID)
			d.mu.Unlock()
		}()
		d.execute(ctx, run, job)
	}()
	return runID, nil
}

func (d *Dispatcher) execute(ctx context.Context, run Run, job Job) {
	start := time.Now()
	run.Logger.Info("stage started", logging.String(logging.FieldEventType, "stage_start"))

	err := safeRun(ctx, run, job)
	if err == nil {
		// задача не выставила итоговый статус сама
		if current, perr := d.store.Progress(ctx, run.VideoID); perr == nil && current.Status.InProgress() {
			done := progress.Progress{Percent: 100, Status: progress.StatusCompleted}
			if rerr := run.Progress.Report(context.WithoutCancel(ctx), done); rerr != nil {
				run.Logger.Error("failed to persist stage completion", logging.Error(rerr))
			}
		}
		run.Logger.Info("stage completed",
			logging.String(logging.FieldEventType, "stage_complete"),
			logging.Duration("elapsed", time.Since(start)),
		)
		return
	}

	err = fmt.Errorf("%s video %d: %w", run.Stage, run.VideoID, err)
	d.mu.Lock()
	d.failures = append(d.failures, err)
	d.mu.Unlock()

	// статус пишется даже после отмены ctx
	saveCtx := context.WithoutCancel(ctx)
	percent := 0
	if current, perr := d.store.Progress(saveCtx, run.VideoID); perr == nil {
		percent = current.Percent
	}
	if rerr := run.Progress.Report(saveCtx, progress.Failed(percent, err)); rerr != nil {
		run.Logger.Error("failed to persist stage failure", logging.Error(rerr))
	}
	run.Logger.Error("stage failed",
		logging.Error(err),
		logging.String(logging.FieldEventType, "stage_failed"),
		logging.Duration("elapsed", time.Since(start)),
	)
}

func safeRun(ctx context.Context, run Run, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("stage panic: %v", r)
		}
	}()
	return job(ctx, run)
}

// Running returns the run id currently owning videoID in this process.
func (d *Dispatcher) Running(videoID int64) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	id, ok := d.running[videoID]
	return id, ok
}

// Wait blocks until every submitted job has finished and returns their failures joined.
func (d *Dispatcher) Wait() error {
	d.wg.Wait()
	d.mu.Lock()
	defer d.mu.Unlock()
	err := errors.Join(d.failures...)
	d.failures = nil
	return err
}
