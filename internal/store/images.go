package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ivlev/storyreel/internal/effects"
)

// AddImage appends an image to the video. The sequence index is the next free slot.
func (s *Store) AddImage(ctx context.Context, videoID int64, img Image) (*Image, error) {
	var added *Image
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if err := videoExists(ctx, tx, videoID); err != nil {
			return err
		}
		var err error
		if added, err = insertImage(ctx, tx, videoID, img); err != nil {
			return err
		}
		return refreshGate(ctx, tx, videoID)
	})
	if err != nil {
		return nil, err
	}
	return added, nil
}

// AttachMedia appends images and sets the narration track in one transaction.
// Either everything is recorded or nothing is.
func (s *Store) AttachMedia(ctx context.Context, videoID int64, images []Image, audioPath string, audioDuration float64) ([]Image, error) {
	if audioDuration <= 0 {
		return nil, fmt.Errorf("invalid audio duration %.3f", audioDuration)
	}
	added := make([]Image, 0, len(images))
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if err := videoExists(ctx, tx, videoID); err != nil {
			return err
		}
		for _, img := range images {
			a, err := insertImage(ctx, tx, videoID, img)
			if err != nil {
				return err
			}
			added = append(added, *a)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE videos SET audio_path = ?, audio_duration = ?, updated_at = ? WHERE id = ?`,
			nullableString(audioPath), audioDuration, now(), videoID,
		); err != nil {
			return fmt.Errorf("set audio: %w", err)
		}
		return refreshGate(ctx, tx, videoID)
	})
	if err != nil {
		return nil, err
	}
	return added, nil
}

func videoExists(ctx context.Context, tx *sql.Tx, videoID int64) error {
	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM videos WHERE id = ?`, videoID).Scan(&exists); err != nil {
		return fmt.Errorf("check video: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("%w: %d", ErrNotFound, videoID)
	}
	return nil
}

func insertImage(ctx context.Context, tx *sql.Tx, videoID int64, img Image) (*Image, error) {
	if img.Duration < 0 {
		return nil, fmt.Errorf("invalid image duration %.3f", img.Duration)
	}
	params, err := encodeParams(img.AnimationParams)
	if err != nil {
		return nil, err
	}
	img.VideoID = videoID
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(sequence_index) + 1, 0) FROM images WHERE video_id = ?`, videoID,
	).Scan(&img.SequenceIndex); err != nil {
		return nil, fmt.Errorf("next sequence index: %w", err)
	}
	res, err := tx.ExecContext(ctx,
		`INSERT INTO images (video_id, sequence_index, source_path, duration, animation_kind, animation_params)
         VALUES (?, ?, ?, ?, ?, ?)`,
		videoID, img.SequenceIndex, nullableString(img.SourcePath), img.Duration,
		nullableString(strings.ToLower(img.AnimationKind)), params)
	if err != nil {
		return nil, fmt.Errorf("insert image: %w", err)
	}
	if img.ID, err = res.LastInsertId(); err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return &img, nil
}

// ListImages returns the images of a video in sequence order.
func (s *Store) ListImages(ctx context.Context, videoID int64) ([]Image, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT id, video_id, sequence_index, source_path, duration, animation_kind, animation_params
         FROM images WHERE video_id = ? ORDER BY sequence_index`, videoID)
	if err != nil {
		return nil, fmt.Errorf("list images: %w", err)
	}
	defer rows.Close()

	var out []Image
	for rows.Next() {
		var (
			img    Image
			path   sql.NullString
			kind   sql.NullString
			params sql.NullString
		)
		if err := rows.Scan(&img.ID, &img.VideoID, &img.SequenceIndex, &path, &img.Duration, &kind, &params); err != nil {
			return nil, fmt.Errorf("scan image: %w", err)
		}
		img.SourcePath = path.String
		img.AnimationKind = kind.String
		if params.Valid && params.String != "" {
			if err := json.Unmarshal([]byte(params.String), &img.AnimationParams); err != nil {
				return nil, fmt.Errorf("decode animation params of image %d: %w", img.ID, err)
			}
		}
		out = append(out, img)
	}
	return out, rows.Err()
}

func encodeParams(p effects.Params) (any, error) {
	if len(p) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode animation params: %w", err)
	}
	return string(data), nil
}
