/**
 * @description
 * Webhook reconciliation logic. Provider callbacks arrive asynchronously and
 * out of order with respect to the request path, so every handler re-derives
 * the intended state from the payload instead of trusting local state:
 * invoice.payment_succeeded distinguishes a brand-new subscription from a
 * renewal from a mid-cycle upgrade by comparing the stored provider
 * subscription ID and plan against the invoice, and payment rows are keyed by
 * the provider's payment ID so redelivered events cannot double-write the
 * ledger.
 */
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/reelforge/backend/internal/domain"
	"github.com/reelforge/backend/internal/store"
)

// ErrUnmatchedWebhook is returned when a provider event references no known
// subscription. The HTTP layer acknowledges these with 200 so the provider
// stops redelivering.
var ErrUnmatchedWebhook = errors.New("webhook references no known subscription")

// WebhookRepository defines the database operations webhook handling needs.
type WebhookRepository interface {
	GetSubscriptionByStripeCustomerID(ctx context.Context, customerID string) (*domain.Subscription, error)
	GetSubscriptionByPayPalSubscriptionID(ctx context.Context, paypalSubID string) (*domain.Subscription, error)
	GetSubscriptionByUserID(ctx context.Context, userID string) (*domain.Subscription, error)
	ActivateSubscription(ctx context.Context, userID, plan string, creditsTotal int, billingCycle, provider, providerSubID, stripeCustomerID string, now time.Time) (*domain.Subscription, error)
	ChangePlan(ctx context.Context, userID, plan string, creditsTotal int, billingCycle string) (*domain.Subscription, error)
	RenewCycle(ctx context.Context, userID string, creditsTotal int, now time.Time) (*domain.Subscription, error)
	RevertToFree(ctx context.Context, userID string, stampCanceled bool, now time.Time) (*domain.Subscription, error)
	SetPaymentFailed(ctx context.Context, userID string, failed bool) error
	GetPlan(ctx context.Context, name string) (*domain.Plan, error)
	GetPlanByStripePriceID(ctx context.Context, priceID string) (*domain.Plan, string, error)
	GetPlanByPayPalPlanID(ctx context.Context, paypalPlanID string) (*domain.Plan, string, error)
	RecordPayment(ctx context.Context, p *domain.Payment) (*domain.Payment, bool, error)
	GetPaymentByProviderPaymentID(ctx context.Context, providerPaymentID string) (*domain.Payment, error)
	MarkPaymentStatus(ctx context.Context, id, status string) error
	AppendSubscriptionLog(ctx context.Context, entry *domain.SubscriptionLog) error
}

// InvoicePaid carries the fields extracted from a successful provider charge.
type InvoicePaid struct {
	Provider       string
	PaymentID      string // invoice/sale ID, the idempotency key
	CustomerID     string // Stripe customer reference, empty for PayPal
	SubscriptionID string // provider subscription reference
	PriceID        string // Stripe price ID, empty for PayPal
	Amount         int64
	Currency       string
	ReceiptURL     string
	Description    string
}

// InvoiceFetcher retrieves a normalized invoice from the billing provider.
// Used by the direct confirmation path so client-reported payments are never
// trusted without a provider round trip.
type InvoiceFetcher interface {
	GetInvoice(ctx context.Context, invoiceID string) (*InvoicePaid, error)
}

// InvoiceFailed carries the fields extracted from a failed provider charge.
type InvoiceFailed struct {
	Provider       string
	PaymentID      string
	CustomerID     string
	SubscriptionID string
	Amount         int64
	Currency       string
	FailureReason  string
}

// WebhookService reconciles provider callbacks with the subscription state.
type WebhookService struct {
	repo      WebhookRepository
	invoices  InvoiceFetcher
	publisher EventPublisher
	logger    *slog.Logger
}

// NewWebhookService creates a new webhook reconciliation service.
func NewWebhookService(repo WebhookRepository, invoices InvoiceFetcher, publisher EventPublisher, logger *slog.Logger) WebhookService {
	return WebhookService{repo: repo, invoices: invoices, publisher: publisher, logger: logger}
}

// ErrPaymentMismatch is returned when a client-reported invoice does not
// belong to the calling user.
var ErrPaymentMismatch = errors.New("payment does not belong to this user")

// ConfirmStripePayment is the direct confirmation path: the client reports a
// paid invoice after checkout, the server re-fetches it from Stripe and runs
// the same reconciliation as the webhook. Safe to race with the webhook, the
// ledger row is keyed by the invoice ID either way.
func (w WebhookService) ConfirmStripePayment(ctx context.Context, userID, invoiceID string) error {
	inv, err := w.invoices.GetInvoice(ctx, invoiceID)
	if err != nil {
		return fmt.Errorf("fetch stripe invoice: %w", err)
	}

	sub, err := w.findSubscription(ctx, inv.Provider, inv.CustomerID, inv.SubscriptionID)
	if err != nil {
		return err
	}
	if sub.UserID != userID {
		return ErrPaymentMismatch
	}

	return w.HandleInvoicePaid(ctx, *inv)
}

// HandleInvoicePaid processes a successful charge: activates, renews, or
// upgrades the subscription as appropriate and appends an idempotent ledger
// row.
func (w WebhookService) HandleInvoicePaid(ctx context.Context, inv InvoicePaid) error {
	sub, err := w.findSubscription(ctx, inv.Provider, inv.CustomerID, inv.SubscriptionID)
	if err != nil {
		return err
	}

	plan, billingCycle, err := w.resolvePlan(ctx, inv, sub)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	var logEvent string

	switch {
	case w.storedSubID(sub, inv.Provider) != inv.SubscriptionID:
		// Brand-new subscription (or a replacement one): fresh cycle, usage
		// resets to zero.
		_, err = w.repo.ActivateSubscription(ctx, sub.UserID, plan.Name, plan.CreditsTotal, billingCycle, inv.Provider, inv.SubscriptionID, inv.CustomerID, now)
		logEvent = domain.LogSubscriptionCreated
	case sub.Plan != plan.Name:
		// Mid-cycle upgrade confirmed by the provider: usage is preserved.
		_, err = w.repo.ChangePlan(ctx, sub.UserID, plan.Name, plan.CreditsTotal, billingCycle)
		logEvent = domain.LogSubscriptionUpgraded
	default:
		// Renewal invoice for the same subscription and plan: roll the cycle.
		_, err = w.repo.RenewCycle(ctx, sub.UserID, plan.CreditsTotal, now)
		logEvent = domain.LogSubscriptionRenewed
	}
	if err != nil {
		return err
	}

	payment := &domain.Payment{
		UserID:                 sub.UserID,
		Provider:               inv.Provider,
		ProviderPaymentID:      inv.PaymentID,
		ProviderSubscriptionID: inv.SubscriptionID,
		Amount:                 inv.Amount,
		Currency:               inv.Currency,
		Plan:                   plan.Name,
		BillingCycle:           billingCycle,
		Status:                 domain.PaymentStatusSucceeded,
		Description:            inv.Description,
		ReceiptURL:             inv.ReceiptURL,
	}
	if recorded, created, err := w.repo.RecordPayment(ctx, payment); err != nil {
		w.logger.Warn("failed to record payment", "provider_payment_id", inv.PaymentID, "error", err)
	} else if !created {
		if recorded.Status == domain.PaymentStatusFailed {
			// A retried charge succeeded: flip the earlier failed row.
			if err := w.repo.MarkPaymentStatus(ctx, recorded.ID, domain.PaymentStatusSucceeded); err != nil {
				w.logger.Warn("failed to mark retried payment succeeded", "payment_id", recorded.ID, "error", err)
			}
		} else {
			w.logger.Info("payment already recorded, skipping", "provider_payment_id", inv.PaymentID)
		}
	}

	w.appendLog(ctx, sub.UserID, logEvent, sub.Plan, plan.Name, inv.Provider, inv.PaymentID)
	w.appendLog(ctx, sub.UserID, domain.LogPaymentSucceeded, "", plan.Name, inv.Provider, inv.PaymentID)
	w.publishPaymentEvent(ctx, domain.EventPaymentSucceeded, sub.UserID, inv.Provider, inv.PaymentID, inv.Amount, inv.Currency, plan.Name, domain.PaymentStatusSucceeded, nil)

	return nil
}

// HandleInvoiceFailed flags the subscription and records the failed charge.
// No retry is scheduled here; retries are manual admin actions.
func (w WebhookService) HandleInvoiceFailed(ctx context.Context, inv InvoiceFailed) error {
	sub, err := w.findSubscription(ctx, inv.Provider, inv.CustomerID, inv.SubscriptionID)
	if err != nil {
		return err
	}

	if err := w.repo.SetPaymentFailed(ctx, sub.UserID, true); err != nil {
		return err
	}

	if inv.PaymentID != "" {
		payment := &domain.Payment{
			UserID:                 sub.UserID,
			Provider:               inv.Provider,
			ProviderPaymentID:      inv.PaymentID,
			ProviderSubscriptionID: inv.SubscriptionID,
			Amount:                 inv.Amount,
			Currency:               inv.Currency,
			Plan:                   sub.Plan,
			BillingCycle:           sub.BillingCycle,
			Status:                 domain.PaymentStatusFailed,
			Description:            inv.FailureReason,
		}
		if _, _, err := w.repo.RecordPayment(ctx, payment); err != nil {
			w.logger.Warn("failed to record failed payment", "provider_payment_id", inv.PaymentID, "error", err)
		}
	}

	w.appendLog(ctx, sub.UserID, domain.LogPaymentFailed, sub.Plan, "", inv.Provider, inv.FailureReason)
	reason := inv.FailureReason
	w.publishPaymentEvent(ctx, domain.EventPaymentFailed, sub.UserID, inv.Provider, inv.PaymentID, inv.Amount, inv.Currency, sub.Plan, domain.PaymentStatusFailed, &reason)

	return nil
}

// HandlePaymentRefunded flips the ledger row for a refunded charge. The
// subscription itself is untouched; the provider reports any resulting
// cancellation separately.
func (w WebhookService) HandlePaymentRefunded(ctx context.Context, provider, providerPaymentID string) error {
	payment, err := w.repo.GetPaymentByProviderPaymentID(ctx, providerPaymentID)
	if err != nil {
		if errors.Is(err, store.ErrPaymentNotFound) {
			return ErrUnmatchedWebhook
		}
		return err
	}
	if payment.Status == domain.PaymentStatusRefunded {
		return nil
	}

	if err := w.repo.MarkPaymentStatus(ctx, payment.ID, domain.PaymentStatusRefunded); err != nil {
		return err
	}

	w.appendLog(ctx, payment.UserID, domain.LogPaymentRefunded, payment.Plan, "", provider, providerPaymentID)
	w.publishPaymentEvent(ctx, domain.EventPaymentRefunded, payment.UserID, provider, providerPaymentID, payment.Amount, payment.Currency, payment.Plan, domain.PaymentStatusRefunded, nil)

	return nil
}

// HandlePayPalSubscriptionActivated binds a freshly-approved PayPal
// subscription to the user named in its custom ID. PayPal activation arrives
// before any row references the subscription ID, so the lookup is by user.
func (w WebhookService) HandlePayPalSubscriptionActivated(ctx context.Context, userID, subscriptionID, paypalPlanID string) error {
	sub, err := w.repo.GetSubscriptionByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrSubscriptionNotFound) {
			return ErrUnmatchedWebhook
		}
		return err
	}

	plan, billingCycle, err := w.repo.GetPlanByPayPalPlanID(ctx, paypalPlanID)
	if err != nil {
		if errors.Is(err, store.ErrPlanNotFound) {
			return ErrUnmatchedWebhook
		}
		return err
	}

	now := time.Now().UTC()
	updated, err := w.repo.ActivateSubscription(ctx, sub.UserID, plan.Name, plan.CreditsTotal, billingCycle, domain.ProviderPayPal, subscriptionID, "", now)
	if err != nil {
		return err
	}

	w.appendLog(ctx, sub.UserID, domain.LogSubscriptionCreated, sub.Plan, plan.Name, domain.ProviderPayPal, subscriptionID)
	if w.publisher != nil {
		payload := domain.SubscriptionEvent{
			UserID:       updated.UserID,
			Plan:         updated.Plan,
			PreviousPlan: sub.Plan,
			BillingCycle: billingCycle,
			Provider:     domain.ProviderPayPal,
			Timestamp:    now,
		}
		if err := w.publisher.Publish(ctx, domain.EventsExchange, domain.EventSubscriptionCreated, payload); err != nil {
			w.logger.Warn("failed to publish subscription event", "error", err)
		}
	}
	return nil
}

// HandleSubscriptionDeleted reverts the user to the free plan, preserving
// credit counters, when the provider reports the subscription gone.
func (w WebhookService) HandleSubscriptionDeleted(ctx context.Context, provider, customerID, subscriptionID string) error {
	sub, err := w.findSubscription(ctx, provider, customerID, subscriptionID)
	if err != nil {
		return err
	}

	updated, err := w.repo.RevertToFree(ctx, sub.UserID, true, time.Now().UTC())
	if err != nil {
		return err
	}

	w.appendLog(ctx, sub.UserID, domain.LogSubscriptionLapsed, sub.Plan, domain.PlanFree, provider, subscriptionID)
	if w.publisher != nil {
		payload := domain.SubscriptionEvent{
			UserID:       updated.UserID,
			Plan:         updated.Plan,
			PreviousPlan: sub.Plan,
			Provider:     provider,
			Timestamp:    time.Now().UTC(),
		}
		if err := w.publisher.Publish(ctx, domain.EventsExchange, domain.EventSubscriptionCanceled, payload); err != nil {
			w.logger.Warn("failed to publish subscription event", "error", err)
		}
	}
	return nil
}

func (w WebhookService) findSubscription(ctx context.Context, provider, customerID, subscriptionID string) (*domain.Subscription, error) {
	var sub *domain.Subscription
	var err error
	if provider == domain.ProviderPayPal {
		sub, err = w.repo.GetSubscriptionByPayPalSubscriptionID(ctx, subscriptionID)
	} else {
		sub, err = w.repo.GetSubscriptionByStripeCustomerID(ctx, customerID)
	}
	if err != nil {
		if errors.Is(err, store.ErrSubscriptionNotFound) {
			return nil, ErrUnmatchedWebhook
		}
		return nil, err
	}
	return sub, nil
}

// resolvePlan re-derives the plan from the invoice. For Stripe the price ID
// on the invoice line is authoritative; for PayPal the plan was fixed when
// the subscription was created, so the stored plan is used.
func (w WebhookService) resolvePlan(ctx context.Context, inv InvoicePaid, sub *domain.Subscription) (*domain.Plan, string, error) {
	if inv.Provider == domain.ProviderStripe && inv.PriceID != "" {
		return w.repo.GetPlanByStripePriceID(ctx, inv.PriceID)
	}
	plan, err := w.repo.GetPlan(ctx, sub.Plan)
	if err != nil {
		return nil, "", err
	}
	billingCycle := sub.BillingCycle
	if billingCycle == domain.BillingCycleNone {
		billingCycle = domain.BillingCycleMonthly
	}
	return plan, billingCycle, nil
}

func (w WebhookService) storedSubID(sub *domain.Subscription, provider string) string {
	if provider == domain.ProviderPayPal {
		return sub.PayPalSubscriptionID
	}
	return sub.StripeSubscriptionID
}

func (w WebhookService) appendLog(ctx context.Context, userID, event, fromPlan, toPlan, provider, detail string) {
	entry := &domain.SubscriptionLog{
		UserID:   userID,
		Event:    event,
		FromPlan: fromPlan,
		ToPlan:   toPlan,
		Provider: provider,
		Detail:   detail,
	}
	if err := w.repo.AppendSubscriptionLog(ctx, entry); err != nil {
		w.logger.Warn("failed to append subscription log", "user_id", userID, "event", event, "error", err)
	}
}

func (w WebhookService) publishPaymentEvent(ctx context.Context, routingKey, userID, provider, paymentID string, amount int64, currency, plan, status string, failureReason *string) {
	if w.publisher == nil {
		return
	}
	payload := domain.PaymentEvent{
		UserID:            userID,
		Provider:          provider,
		ProviderPaymentID: paymentID,
		Amount:            amount,
		Currency:          currency,
		Plan:              plan,
		Status:            status,
		FailureReason:     failureReason,
		Timestamp:         time.Now().UTC(),
	}
	if err := w.publisher.Publish(ctx, domain.EventsExchange, routingKey, payload); err != nil {
		w.logger.Warn("failed to publish payment event", "routing_key", routingKey, "error", err)
	}
}
