/**
 * @description
 * Admin-only operations: platform stats, subscription listing, and manual
 * retry of failed payments. Retry kicks the provider; the outcome lands
 * through the normal webhook path.
 */
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/reelforge/backend/internal/domain"
)

// Admin errors surfaced to clients.
var (
	ErrPaymentNotRetryable = errors.New("only failed payments can be retried")
	ErrRetryUnsupported    = errors.New("manual retry is not supported for this provider")
)

// AdminRepository defines the database operations admin endpoints need.
type AdminRepository interface {
	CountUsers(ctx context.Context) (int64, error)
	CountActiveSubscriptions(ctx context.Context) (int64, error)
	SumSucceededPayments(ctx context.Context) (int64, error)
	ListSubscriptions(ctx context.Context, plan string, onlyActive bool, limit int) ([]domain.Subscription, error)
	GetPaymentByID(ctx context.Context, id string) (*domain.Payment, error)
	AppendSubscriptionLog(ctx context.Context, entry *domain.SubscriptionLog) error
}

// AdminService provides platform-level operations.
type AdminService struct {
	repo   AdminRepository
	stripe StripeGateway
	logger *slog.Logger
}

// NewAdminService creates a new admin service.
func NewAdminService(repo AdminRepository, stripe StripeGateway, logger *slog.Logger) AdminService {
	return AdminService{repo: repo, stripe: stripe, logger: logger}
}

// PlatformStats summarizes platform activity.
type PlatformStats struct {
	Users               int64 `json:"users"`
	ActiveSubscriptions int64 `json:"active_subscriptions"`
	RevenueCents        int64 `json:"revenue_cents"`
}

// Stats returns counts for the admin dashboard.
func (a AdminService) Stats(ctx context.Context) (*PlatformStats, error) {
	users, err := a.repo.CountUsers(ctx)
	if err != nil {
		return nil, err
	}
	active, err := a.repo.CountActiveSubscriptions(ctx)
	if err != nil {
		return nil, err
	}
	revenue, err := a.repo.SumSucceededPayments(ctx)
	if err != nil {
		return nil, err
	}
	return &PlatformStats{
		Users:               users,
		ActiveSubscriptions: active,
		RevenueCents:        revenue,
	}, nil
}

// ListSubscriptions returns subscriptions, optionally filtered by plan and
// activity.
func (a AdminService) ListSubscriptions(ctx context.Context, plan string, onlyActive bool) ([]domain.Subscription, error) {
	return a.repo.ListSubscriptions(ctx, plan, onlyActive, 500)
}

// RetryPayment asks the provider to re-attempt a failed charge. Only Stripe
// invoices can be retried on demand; PayPal retries on its own schedule.
func (a AdminService) RetryPayment(ctx context.Context, paymentID string) (*domain.Payment, error) {
	payment, err := a.repo.GetPaymentByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if payment.Status != domain.PaymentStatusFailed {
		return nil, ErrPaymentNotRetryable
	}
	if payment.Provider != domain.ProviderStripe {
		return nil, ErrRetryUnsupported
	}

	if err := a.stripe.PayInvoice(ctx, payment.ProviderPaymentID); err != nil {
		return nil, fmt.Errorf("retry stripe invoice: %w", err)
	}

	entry := &domain.SubscriptionLog{
		UserID:   payment.UserID,
		Event:    domain.LogPaymentRetried,
		Provider: payment.Provider,
		Detail:   "manual retry of invoice " + payment.ProviderPaymentID,
	}
	if err := a.repo.AppendSubscriptionLog(ctx, entry); err != nil {
		a.logger.Warn("failed to log payment retry", "payment_id", paymentID, "error", err)
	}

	a.logger.Info("payment retry requested", "payment_id", paymentID, "user_id", payment.UserID)
	return payment, nil
}
