/**
 * @description
 * Video generation record and contact message persistence.
 */
package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/reelforge/backend/internal/domain"
)

const videoColumns = `id, user_id, title, topic, status, scene_count, credits_spent, video_url, created_at, updated_at`

func scanVideo(row pgx.Row) (*domain.Video, error) {
	var v domain.Video
	err := row.Scan(&v.ID, &v.UserID, &v.Title, &v.Topic, &v.Status, &v.SceneCount,
		&v.CreditsSpent, &v.VideoURL, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrVideoNotFound
		}
		return nil, err
	}
	return &v, nil
}

// CreateVideo inserts a pending generation record.
func (r *Repository) CreateVideo(ctx context.Context, userID, title, topic string, sceneCount, creditsSpent int) (*domain.Video, error) {
	query := `
        INSERT INTO videos (user_id, title, topic, status, scene_count, credits_spent)
        VALUES ($1, $2, $3, 'pending', $4, $5)
        RETURNING ` + videoColumns
	return scanVideo(r.db.QueryRow(ctx, query, userID, title, topic, sceneCount, creditsSpent))
}

// GetVideoByID retrieves a video owned by the given user.
func (r *Repository) GetVideoByID(ctx context.Context, userID, videoID string) (*domain.Video, error) {
	query := `SELECT ` + videoColumns + ` FROM videos WHERE id = $1 AND user_id = $2`
	return scanVideo(r.db.QueryRow(ctx, query, videoID, userID))
}

// ListVideosByUserID returns a user's videos, newest first.
func (r *Repository) ListVideosByUserID(ctx context.Context, userID string, limit int) ([]domain.Video, error) {
	query := `SELECT ` + videoColumns + ` FROM videos WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`
	rows, err := r.db.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var videos []domain.Video
	for rows.Next() {
		v, err := scanVideo(rows)
		if err != nil {
			return nil, err
		}
		videos = append(videos, *v)
	}
	return videos, rows.Err()
}

// UpdateVideoStatus moves a generation record through its lifecycle.
func (r *Repository) UpdateVideoStatus(ctx context.Context, videoID, status, videoURL string) error {
	tag, err := r.db.Exec(ctx, `
        UPDATE videos SET status = $2,
               video_url = CASE WHEN $3 = '' THEN video_url ELSE $3 END,
               updated_at = NOW()
        WHERE id = $1`,
		videoID, status, videoURL)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrVideoNotFound
	}
	return nil
}

// DeleteVideo removes a video owned by the given user.
func (r *Repository) DeleteVideo(ctx context.Context, userID, videoID string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM videos WHERE id = $1 AND user_id = $2`, videoID, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrVideoNotFound
	}
	return nil
}

// CreateContactMessage stores a contact-form submission.
func (r *Repository) CreateContactMessage(ctx context.Context, name, email, subject, message string) (*domain.ContactMessage, error) {
	var m domain.ContactMessage
	err := r.db.QueryRow(ctx, `
        INSERT INTO contact_messages (name, email, subject, message)
        VALUES ($1, $2, $3, $4)
        RETURNING id, name, email, subject, message, created_at`,
		name, email, subject, message,
	).Scan(&m.ID, &m.Name, &m.Email, &m.Subject, &m.Message, &m.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}
