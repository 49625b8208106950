/**
 * @description
 * Video generation records. Creating a generation consumes one credit per
 * scene before any work is recorded; the actual rendering happens in an
 * external pipeline and reports back through status updates.
 */
package domain

import "time"

// Video statuses.
const (
	VideoStatusPending   = "pending"
	VideoStatusRendering = "rendering"
	VideoStatusCompleted = "completed"
	VideoStatusFailed    = "failed"
)

// Video represents a single generation request and its output.
type Video struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	Title        string    `json:"title"`
	Topic        string    `json:"topic,omitempty"`
	Status       string    `json:"status"`
	SceneCount   int       `json:"scene_count"`
	CreditsSpent int       `json:"credits_spent"`
	VideoURL     string    `json:"video_url,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ContactMessage is a stored contact-form submission.
type ContactMessage struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Subject   string    `json:"subject,omitempty"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}
