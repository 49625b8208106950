/**
 * @description
 * Read side of the payment ledger and the subscription audit trail.
 */
package app

import (
	"context"

	"github.com/reelforge/backend/internal/domain"
)

// PaymentRepository defines the database operations the ledger needs.
type PaymentRepository interface {
	ListPaymentsByUserID(ctx context.Context, userID string, limit int) ([]domain.Payment, error)
	ListSubscriptionLogs(ctx context.Context, userID string, limit int) ([]domain.SubscriptionLog, error)
}

// PaymentService exposes a user's own payment history.
type PaymentService struct {
	repo PaymentRepository
}

// NewPaymentService creates a new payment service.
func NewPaymentService(repo PaymentRepository) PaymentService {
	return PaymentService{repo: repo}
}

// ListPayments returns the user's ledger rows, newest first.
func (p PaymentService) ListPayments(ctx context.Context, userID string) ([]domain.Payment, error) {
	return p.repo.ListPaymentsByUserID(ctx, userID, 100)
}

// ListLogs returns the user's subscription audit trail, newest first.
func (p PaymentService) ListLogs(ctx context.Context, userID string) ([]domain.SubscriptionLog, error) {
	return p.repo.ListSubscriptionLogs(ctx, userID, 100)
}
