package store_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/ivlev/storyreel/internal/effects"
	"github.com/ivlev/storyreel/internal/lifecycle"
	"github.com/ivlev/storyreel/internal/progress"
	"github.com/ivlev/storyreel/internal/store"
)

func openStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "db", "storyreel.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestCreateAndGetVideo(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	v, err := s.CreateVideo(ctx, "Short story", 720, 1280)
	if err != nil {
		t.Fatalf("CreateVideo failed: %v", err)
	}
	if v.ID == 0 || v.Status != progress.StatusImagesPending {
		t.Fatalf("unexpected video: %#v", v)
	}
	if v.CreatedAt.IsZero() || v.UpdatedAt.IsZero() {
		t.Error("timestamps not parsed")
	}

	if _, err := s.GetVideo(ctx, v.ID+100); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("GetVideo(missing) = %v", err)
	}
	if _, err := s.CreateVideo(ctx, "bad", 0, 10); err == nil {
		t.Error("expected error for zero width")
	}
}

func TestReopenKeepsSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "storyreel.db")
	s, err := store.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.CreateVideo(context.Background(), "a", 10, 10); err != nil {
		t.Fatal(err)
	}
	s.Close()

	s, err = store.Open(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer s.Close()
	videos, err := s.ListVideos(context.Background())
	if err != nil || len(videos) != 1 {
		t.Fatalf("ListVideos = %v, %v", videos, err)
	}
}

func TestGateStatusFollowsInputs(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	v, _ := s.CreateVideo(ctx, "gate", 100, 100)

	first, err := s.AddImage(ctx, v.ID, store.Image{
		SourcePath:      "/img/a.png",
		Duration:        2,
		AnimationKind:   "ZOOM_IN",
		AnimationParams: effects.Params{"zoom_start": 1, "zoom_end": 1.2},
	})
	if err != nil {
		t.Fatalf("AddImage failed: %v", err)
	}
	second, _ := s.AddImage(ctx, v.ID, store.Image{SourcePath: "/img/b.png", Duration: 3})
	if first.SequenceIndex != 0 || second.SequenceIndex != 1 {
		t.Errorf("sequence = %d, %d", first.SequenceIndex, second.SequenceIndex)
	}
	if got, _ := s.Progress(ctx, v.ID); got.Status != progress.StatusAudioPending {
		t.Errorf("status after images = %s", got.Status)
	}

	if _, err := s.AttachMedia(ctx, v.ID, nil, "/audio/a.mp3", 5); err != nil {
		t.Fatal(err)
	}
	if got, _ := s.Progress(ctx, v.ID); got.Status != progress.StatusVideoPending {
		t.Errorf("status after audio = %s", got.Status)
	}

	images, err := s.ListImages(ctx, v.ID)
	if err != nil || len(images) != 2 {
		t.Fatalf("ListImages = %v, %v", images, err)
	}
	if images[0].AnimationKind != "zoom_in" || images[0].AnimationParams["zoom_end"] != 1.2 {
		t.Errorf("image 0 = %#v", images[0])
	}
	if images[1].AnimationParams != nil {
		t.Errorf("image 1 params = %v", images[1].AnimationParams)
	}

	if _, err := s.AddImage(ctx, 9999, store.Image{Duration: 1}); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("AddImage(missing video) = %v", err)
	}
}

func TestAttachMediaIsAllOrNothing(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	v, _ := s.CreateVideo(ctx, "attach", 100, 100)

	bad := []store.Image{{SourcePath: "/img/a.png", Duration: 1}, {SourcePath: "/img/b.png", Duration: -1}}
	if _, err := s.AttachMedia(ctx, v.ID, bad, "/audio/a.mp3", 2); err == nil {
		t.Fatal("expected error for negative duration")
	}
	if images, _ := s.ListImages(ctx, v.ID); len(images) != 0 {
		t.Fatalf("images after failed attach = %d", len(images))
	}
	if got, _ := s.GetVideo(ctx, v.ID); got.AudioPath != "" || got.Status != progress.StatusImagesPending {
		t.Fatalf("video after failed attach = %+v", got)
	}

	good := []store.Image{{SourcePath: "/img/a.png", Duration: 1}, {SourcePath: "/img/b.png", Duration: 1}}
	added, err := s.AttachMedia(ctx, v.ID, good, "/audio/a.mp3", 2)
	if err != nil {
		t.Fatalf("AttachMedia: %v", err)
	}
	if len(added) != 2 || added[1].SequenceIndex != 1 || added[1].ID == 0 {
		t.Errorf("added = %+v", added)
	}
	if got, _ := s.Progress(ctx, v.ID); got.Status != progress.StatusVideoPending {
		t.Errorf("status = %s", got.Status)
	}
	if _, err := s.AttachMedia(ctx, 9999, good, "/audio/a.mp3", 2); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("AttachMedia(missing video) = %v", err)
	}
}

func TestClaimRunRejectsSecondClaim(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	v, _ := s.CreateVideo(ctx, "claim", 100, 100)

	if err := s.ClaimRun(ctx, v.ID, "run-1"); err != nil {
		t.Fatalf("ClaimRun failed: %v", err)
	}
	if err := s.ClaimRun(ctx, v.ID, "run-2"); !errors.Is(err, store.ErrInProgress) {
		t.Fatalf("second ClaimRun = %v", err)
	}
	got, _ := s.GetVideo(ctx, v.ID)
	if got.RunID != "run-1" || got.Status != progress.StatusProcessing {
		t.Errorf("video = %#v", got)
	}

	reset, err := s.ResetStuck(ctx, v.ID)
	if err != nil || !reset {
		t.Fatalf("ResetStuck = %v, %v", reset, err)
	}
	if err := s.ClaimRun(ctx, v.ID, "run-3"); err != nil {
		t.Errorf("claim after reset: %v", err)
	}
}

func TestReporterPersistsMilestones(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	v, _ := s.CreateVideo(ctx, "progress", 100, 100)
	r := s.Reporter(v.ID)

	var wg sync.WaitGroup
	for _, pct := range []int{10, 20, 30, 40} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := r.Report(ctx, progress.Progress{Percent: pct, Status: progress.StatusProcessing}); err != nil {
				t.Errorf("Report(%d): %v", pct, err)
			}
		}()
	}
	wg.Wait()

	long := make([]byte, 2*progress.MaxErrorMessage)
	for i := range long {
		long[i] = 'x'
	}
	if err := r.Report(ctx, progress.Failed(60, errors.New(string(long)))); err != nil {
		t.Fatal(err)
	}
	got, err := s.Progress(ctx, v.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != progress.StatusError || got.Percent != 60 || len(got.ErrorMessage) != progress.MaxErrorMessage {
		t.Errorf("progress = %+v (message len %d)", got, len(got.ErrorMessage))
	}
}

func TestArtifactsRoundTripAndDelete(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	v, _ := s.CreateVideo(ctx, "files", 100, 100)
	s.AddImage(ctx, v.ID, store.Image{SourcePath: "/i/0.png", Duration: 1})
	s.AddImage(ctx, v.ID, store.Image{SourcePath: "/i/1.png", Duration: 1})
	s.AttachMedia(ctx, v.ID, nil, "/a/v.mp3", 2)

	a, err := s.Artifacts(ctx, v.ID)
	if err != nil {
		t.Fatal(err)
	}
	if a.AudioPath != "/a/v.mp3" || len(a.ImagePaths) != 2 {
		t.Fatalf("artifacts = %+v", a)
	}

	next := lifecycle.Artifacts{CaptionedVideo: "/v/video_1_with_subs.mp4", ImagePaths: []string{"/i/1.png"}}
	if err := s.SetArtifacts(ctx, v.ID, next); err != nil {
		t.Fatal(err)
	}
	a, _ = s.Artifacts(ctx, v.ID)
	if a.AudioPath != "" || a.CaptionedVideo != next.CaptionedVideo || len(a.ImagePaths) != 1 || a.ImagePaths[0] != "/i/1.png" {
		t.Errorf("after SetArtifacts = %+v", a)
	}
	images, _ := s.ListImages(ctx, v.ID)
	if len(images) != 2 {
		t.Errorf("image slots should survive path clearing, got %d", len(images))
	}

	if err := s.Delete(ctx, v.ID); err != nil {
		t.Fatal(err)
	}
	if images, _ := s.ListImages(ctx, v.ID); len(images) != 0 {
		t.Errorf("images not cascaded: %v", images)
	}
	if err := s.Delete(ctx, v.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("second Delete = %v", err)
	}
}
