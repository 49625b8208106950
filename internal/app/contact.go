/**
 * @description
 * Contact form intake. Messages are stored and handed to the events exchange
 * for the notification consumer to email support.
 */
package app

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/reelforge/backend/internal/domain"
)

// ErrInvalidContactMessage is returned when required fields are missing.
var ErrInvalidContactMessage = errors.New("name, email, and message are required")

// ContactRepository defines the database operations contact intake needs.
type ContactRepository interface {
	CreateContactMessage(ctx context.Context, name, email, subject, message string) (*domain.ContactMessage, error)
}

// ContactService stores inbound contact messages.
type ContactService struct {
	repo      ContactRepository
	publisher EventPublisher
	logger    *slog.Logger
}

// NewContactService creates a new contact service.
func NewContactService(repo ContactRepository, publisher EventPublisher, logger *slog.Logger) ContactService {
	return ContactService{repo: repo, publisher: publisher, logger: logger}
}

// Submit validates and stores a contact message.
func (c ContactService) Submit(ctx context.Context, name, email, subject, message string) (*domain.ContactMessage, error) {
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(email)
	message = strings.TrimSpace(message)
	if name == "" || !strings.Contains(email, "@") || message == "" {
		return nil, ErrInvalidContactMessage
	}

	msg, err := c.repo.CreateContactMessage(ctx, name, email, strings.TrimSpace(subject), message)
	if err != nil {
		return nil, err
	}

	if c.publisher != nil {
		if err := c.publisher.Publish(ctx, domain.EventsExchange, "contact.received", msg); err != nil {
			c.logger.Warn("failed to publish contact event", "error", err)
		}
	}
	return msg, nil
}
