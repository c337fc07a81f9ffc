package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ivlev/storyreel/internal/lifecycle"
	"github.com/ivlev/storyreel/internal/progress"
)

const videoColumns = "id, title, status, progress_percent, error_message, width, height, audio_path, audio_duration, plain_video, captioned_video, subtitle_path, run_id, created_at, updated_at"

func scanVideo(scanner interface{ Scan(dest ...any) error }) (*Video, error) {
	var (
		v          Video
		status     string
		errMsg     sql.NullString
		audioPath  sql.NullString
		plain      sql.NullString
		captioned  sql.NullString
		subtitle   sql.NullString
		runID      sql.NullString
		createdRaw string
		updatedRaw string
	)
	if err := scanner.Scan(
		&v.ID, &v.Title, &status, &v.ProgressPercent, &errMsg, &v.Width, &v.Height,
		&audioPath, &v.AudioDuration, &plain, &captioned, &subtitle, &runID,
		&createdRaw, &updatedRaw,
	); err != nil {
		return nil, err
	}
	v.Status = progress.Status(status)
	v.ErrorMessage = errMsg.String
	v.AudioPath = audioPath.String
	v.PlainVideo = plain.String
	v.CaptionedVideo = captioned.String
	v.SubtitlePath = subtitle.String
	v.RunID = runID.String
	if t, err := parseTimeString(createdRaw); err == nil {
		v.CreatedAt = t
	}
	if t, err := parseTimeString(updatedRaw); err == nil {
		v.UpdatedAt = t
	}
	return &v, nil
}

// CreateVideo inserts a video awaiting its images.
func (s *Store) CreateVideo(ctx context.Context, title string, width, height int) (*Video, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid frame size %dx%d", width, height)
	}
	ts := now()
	res, err := s.execWithRetry(ctx,
		`INSERT INTO videos (title, status, width, height, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?)`,
		title, progress.StatusImagesPending, width, height, ts, ts,
	)
	if err != nil {
		return nil, fmt.Errorf("insert video: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetVideo(ctx, id)
}

// GetVideo fetches a video by identifier.
func (s *Store) GetVideo(ctx context.Context, id int64) (*Video, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+videoColumns+` FROM videos WHERE id = ?`, id)
	v, err := scanVideo(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get video: %w", err)
	}
	return v, nil
}

// ListVideos returns every video ordered by id.
func (s *Store) ListVideos(ctx context.Context) ([]*Video, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), `SELECT `+videoColumns+` FROM videos ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list videos: %w", err)
	}
	defer rows.Close()

	var out []*Video
	for rows.Next() {
		v, err := scanVideo(rows)
		if err != nil {
			return nil, fmt.Errorf("scan video: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// SetStatus overwrites the status of a video without touching its progress.
func (s *Store) SetStatus(ctx context.Context, id int64, status progress.Status) error {
	res, err := s.execWithRetry(ctx,
		`UPDATE videos SET status = ?, updated_at = ? WHERE id = ?`, status, now(), id)
	if err != nil {
		return fmt.Errorf("set status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return nil
}

// ClaimRun marks the video processing under runID. It fails with ErrInProgress
// when another run already owns it.
func (s *Store) ClaimRun(ctx context.Context, id int64, runID string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		var status string
		err := tx.QueryRowContext(ctx, `SELECT status FROM videos WHERE id = ?`, id).Scan(&status)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %d", ErrNotFound, id)
		}
		if err != nil {
			return fmt.Errorf("read status: %w", err)
		}
		if progress.Status(status).InProgress() {
			return ErrInProgress
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE videos SET status = ?, progress_percent = 0, error_message = NULL, run_id = ?, updated_at = ?
             WHERE id = ?`,
			progress.StatusProcessing, runID, now(), id)
		if err != nil {
			return fmt.Errorf("claim run: %w", err)
		}
		return nil
	})
}

// ResetStuck moves a video left in processing by a dead process into error.
func (s *Store) ResetStuck(ctx context.Context, id int64) (bool, error) {
	res, err := s.execWithRetry(ctx,
		`UPDATE videos SET status = ?, error_message = ?, updated_at = ? WHERE id = ? AND status = ?`,
		progress.StatusError, "run interrupted", now(), id, progress.StatusProcessing)
	if err != nil {
		return false, fmt.Errorf("reset stuck: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// Reporter persists each milestone of the video in its own transaction.
func (s *Store) Reporter(id int64) progress.Reporter {
	return progress.ReporterFunc(func(ctx context.Context, p progress.Progress) error {
		return s.inTx(ctx, func(tx *sql.Tx) error {
			_, err := tx.ExecContext(ctx,
				`UPDATE videos SET status = ?, progress_percent = ?, error_message = ?, updated_at = ? WHERE id = ?`,
				p.Status, p.Percent,
				nullableString(progress.Truncate(p.ErrorMessage, progress.MaxErrorMessage)),
				now(), id)
			if err != nil {
				return fmt.Errorf("record progress: %w", err)
			}
			return nil
		})
	})
}

// Progress returns the last committed progress of a video.
func (s *Store) Progress(ctx context.Context, id int64) (progress.Progress, error) {
	v, err := s.GetVideo(ctx, id)
	if err != nil {
		return progress.Progress{}, err
	}
	return v.Progress(), nil
}

// Artifacts loads the file references of a video.
func (s *Store) Artifacts(ctx context.Context, id int64) (lifecycle.Artifacts, error) {
	v, err := s.GetVideo(ctx, id)
	if err != nil {
		return lifecycle.Artifacts{}, err
	}
	images, err := s.ListImages(ctx, id)
	if err != nil {
		return lifecycle.Artifacts{}, err
	}
	return Artifacts(v, images), nil
}

// SetArtifacts stores the file references after a stage or cleanup. Images whose
// paths are absent from a.ImagePaths lose their source path but keep their slot.
func (s *Store) SetArtifacts(ctx context.Context, id int64, a lifecycle.Artifacts) error {
	keep := make(map[string]bool, len(a.ImagePaths))
	for _, p := range a.ImagePaths {
		keep[p] = true
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE videos SET audio_path = ?, plain_video = ?, captioned_video = ?, subtitle_path = ?, updated_at = ?
             WHERE id = ?`,
			nullableString(a.AudioPath), nullableString(a.PlainVideo), nullableString(a.CaptionedVideo),
			nullableString(a.SubtitlePath), now(), id)
		if err != nil {
			return fmt.Errorf("set artifacts: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("%w: %d", ErrNotFound, id)
		}

		rows, err := tx.QueryContext(ctx, `SELECT id, source_path FROM images WHERE video_id = ? AND source_path IS NOT NULL`, id)
		if err != nil {
			return fmt.Errorf("list image paths: %w", err)
		}
		var drop []int64
		for rows.Next() {
			var imageID int64
			var path string
			if err := rows.Scan(&imageID, &path); err != nil {
				rows.Close()
				return fmt.Errorf("scan image path: %w", err)
			}
			if !keep[path] {
				drop = append(drop, imageID)
			}
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}
		for _, imageID := range drop {
			if _, err := tx.ExecContext(ctx, `UPDATE images SET source_path = NULL WHERE id = ?`, imageID); err != nil {
				return fmt.Errorf("clear image path: %w", err)
			}
		}
		return nil
	})
}

// Delete removes a video and its images.
func (s *Store) Delete(ctx context.Context, id int64) error {
	res, err := s.execWithRetry(ctx, `DELETE FROM videos WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete video: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return nil
}

// refreshGate recomputes the upstream status while the video has not started rendering.
func refreshGate(ctx context.Context, tx *sql.Tx, id int64) error {
	var (
		status    string
		audioPath sql.NullString
		images    int
	)
	if err := tx.QueryRowContext(ctx, `SELECT status, audio_path FROM videos WHERE id = ?`, id).Scan(&status, &audioPath); err != nil {
		return fmt.Errorf("read gate: %w", err)
	}
	if !isGating(progress.Status(status)) {
		return nil
	}
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM images WHERE video_id = ?`, id).Scan(&images); err != nil {
		return fmt.Errorf("count images: %w", err)
	}
	next := gateStatus(images, audioPath.Valid && audioPath.String != "")
	if next == progress.Status(status) {
		return nil
	}
	_, err := tx.ExecContext(ctx, `UPDATE videos SET status = ? WHERE id = ?`, next, id)
	return err
}
