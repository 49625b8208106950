/**
 * @description
 * Video generation records. A generation consumes one credit per scene
 * before the record is written; if the write fails the credits are refunded
 * best-effort. The actual rendering is an external pipeline reporting back
 * through status updates.
 */
package app

import (
	"context"
	"errors"
	"log/slog"

	"github.com/reelforge/backend/internal/domain"
)

// ErrInvalidSceneCount is returned for non-positive or oversized batches.
var ErrInvalidSceneCount = errors.New("scene count must be between 1 and 20")

// ErrInvalidVideoStatus is returned for callback statuses outside the
// pipeline lifecycle.
var ErrInvalidVideoStatus = errors.New("video status must be rendering, completed, or failed")

// VideoRepository defines the database operations video management needs.
type VideoRepository interface {
	CreateVideo(ctx context.Context, userID, title, topic string, sceneCount, creditsSpent int) (*domain.Video, error)
	GetVideoByID(ctx context.Context, userID, videoID string) (*domain.Video, error)
	ListVideosByUserID(ctx context.Context, userID string, limit int) ([]domain.Video, error)
	UpdateVideoStatus(ctx context.Context, videoID, status, videoURL string) error
	DeleteVideo(ctx context.Context, userID, videoID string) error
}

// CreditConsumer is the slice of the subscription service videos need.
type CreditConsumer interface {
	ConsumeCredits(ctx context.Context, userID string, n int) (*domain.Subscription, error)
	RefundCredits(ctx context.Context, userID string, n int)
}

// VideoService provides generation record management.
type VideoService struct {
	repo    VideoRepository
	credits CreditConsumer
	logger  *slog.Logger
}

// NewVideoService creates a new video service.
func NewVideoService(repo VideoRepository, credits CreditConsumer, logger *slog.Logger) VideoService {
	return VideoService{repo: repo, credits: credits, logger: logger}
}

// CreateGeneration consumes credits for the batch and records a pending
// generation. Returns ErrCreditLimitReached (no mutation) when the balance
// cannot cover the scene count.
func (v VideoService) CreateGeneration(ctx context.Context, userID, title, topic string, sceneCount int) (*domain.Video, error) {
	if sceneCount <= 0 {
		sceneCount = 1
	}
	if sceneCount > 20 {
		return nil, ErrInvalidSceneCount
	}

	if _, err := v.credits.ConsumeCredits(ctx, userID, sceneCount); err != nil {
		return nil, err
	}

	video, err := v.repo.CreateVideo(ctx, userID, title, topic, sceneCount, sceneCount)
	if err != nil {
		v.credits.RefundCredits(ctx, userID, sceneCount)
		return nil, err
	}
	return video, nil
}

// UpdateStatus records a rendering pipeline callback for a generation.
func (v VideoService) UpdateStatus(ctx context.Context, videoID, status, videoURL string) error {
	switch status {
	case domain.VideoStatusRendering, domain.VideoStatusCompleted, domain.VideoStatusFailed:
	default:
		return ErrInvalidVideoStatus
	}

	if err := v.repo.UpdateVideoStatus(ctx, videoID, status, videoURL); err != nil {
		return err
	}
	v.logger.Info("video status updated", "video_id", videoID, "status", status)
	return nil
}

// List returns the user's videos, newest first.
func (v VideoService) List(ctx context.Context, userID string) ([]domain.Video, error) {
	return v.repo.ListVideosByUserID(ctx, userID, 100)
}

// Get returns a single video owned by the user.
func (v VideoService) Get(ctx context.Context, userID, videoID string) (*domain.Video, error) {
	return v.repo.GetVideoByID(ctx, userID, videoID)
}

// Delete removes a video owned by the user.
func (v VideoService) Delete(ctx context.Context, userID, videoID string) error {
	return v.repo.DeleteVideo(ctx, userID, videoID)
}
