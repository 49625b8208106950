/**
 * @description
 * Core business logic for subscription and credit management. The Service
 * orchestrates the repository, the billing provider gateways, and the event
 * publisher, and applies the plan/credit rules: upgrades preserve used
 * credits, downgrades are deferred to the cycle boundary, cancellation is
 * immediate on our side and best-effort on the provider's.
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

// Validation errors surfaced to clients as 400s.
var (
	ErrUnknownPlan            = errors.New("unknown plan")
	ErrInvalidBillingCycle    = errors.New("billing cycle must be monthly or yearly")
	ErrNotAnUpgrade           = errors.New("target plan price must be higher than the current plan")
	ErrNotADowngrade          = errors.New("target plan price must be lower than the current plan under the same billing cycle")
	ErrNoProviderSubscription = errors.New("no active billing subscription; create one via checkout first")
	ErrDowngradeToFree        = errors.New("use cancel to move to the free plan")
	ErrCreditLimitReached     = errors.New("credit limit reached")
)

// Repository defines the database operations the service needs.
type Repository interface {
	GetSubscriptionByUserID(ctx context.Context, userID string) (*domain.Subscription, error)
	CreateFreeSubscription(ctx context.Context, userID string, creditsTotal int, now time.Time) (*domain.Subscription, error)
	ActivateSubscription(ctx context.Context, userID, plan string, creditsTotal int, billingCycle, provider, providerSubID, stripeCustomerID string, now time.Time) (*domain.Subscription, error)
	ChangePlan(ctx context.Context, userID, plan string, creditsTotal int, billingCycle string) (*domain.Subscription, error)
	ScheduleDowngrade(ctx context.Context, userID, targetPlan string, at time.Time) (*domain.Subscription, error)
	RevertToFree(ctx context.Context, userID string, stampCanceled bool, now time.Time) (*domain.Subscription, error)
	ConsumeCredits(ctx context.Context, userID string, n int) (*domain.Subscription, error)
	RefundCredits(ctx context.Context, userID string, n int) error
	GetPlan(ctx context.Context, name string) (*domain.Plan, error)
	ListPlans(ctx context.Context) ([]domain.Plan, error)
	AppendSubscriptionLog(ctx context.Context, entry *domain.SubscriptionLog) error
}

// StripeGateway wraps the Stripe operations the service needs.
type StripeGateway interface {
	EnsureCustomer(ctx context.Context, userID, email, existingCustomerID string) (string, error)
	CreateCheckoutSession(ctx context.Context, customerID, priceID, successURL, cancelURL string) (sessionID, sessionURL string, err error)
	ChangeSubscriptionPrice(ctx context.Context, subscriptionID, priceID string, prorate bool) error
	CancelSubscriptionAtPeriodEnd(ctx context.Context, subscriptionID string) error
	CreateBillingPortalSession(ctx context.Context, customerID, returnURL string) (string, error)
	PayInvoice(ctx context.Context, invoiceID string) error
}

// PayPalGateway wraps the PayPal operations the service needs.
type PayPalGateway interface {
	CreateSubscription(ctx context.Context, planID, userID string) (subscriptionID, approvalURL string, err error)
	ReviseSubscriptionPlan(ctx context.Context, subscriptionID, planID string) error
	CancelSubscription(ctx context.Context, subscriptionID, reason string) error
}

// EventPublisher defines the interface for publishing lifecycle events.
type EventPublisher interface {
	Publish(ctx context.Context, exchange, routingKey string, body interface{}) error
}

// Service provides the business logic for subscription management.
type Service struct {
	repo        Repository
	stripe      StripeGateway
	paypal      PayPalGateway
	publisher   EventPublisher
	logger      *slog.Logger
	frontendURL string
}

// NewService creates a new subscription service.
func NewService(repo Repository, stripe StripeGateway, paypal PayPalGateway, publisher EventPublisher, logger *slog.Logger, frontendURL string) Service {
	return Service{
		repo:        repo,
		stripe:      stripe,
		paypal:      paypal,
		publisher:   publisher,
		logger:      logger,
		frontendURL: frontendURL,
	}
}

// ensureSubscription returns the user's subscription row, creating the free
// tier record on first access.
func (s Service) ensureSubscription(ctx context.Context, userID string) (*domain.Subscription, error) {
	sub, err := s.repo.GetSubscriptionByUserID(ctx, userID)
	if err == nil {
		return sub, nil
	}
	if !errors.Is(err, store.ErrSubscriptionNotFound) {
		return nil, err
	}

	freePlan, err := s.repo.GetPlan(ctx, domain.PlanFree)
	if err != nil {
		return nil, err
	}
	return s.repo.CreateFreeSubscription(ctx, userID, freePlan.CreditsTotal, time.Now().UTC())
}

// ListPlans returns the public plan catalog.
func (s Service) ListPlans(ctx context.Context) ([]domain.Plan, error) {
	return s.repo.ListPlans(ctx)
}

// GetStatus retrieves the subscription status for a user.
func (s Service) GetStatus(ctx context.Context, userID string) (*domain.SubscriptionStatus, error) {
	sub, err := s.ensureSubscription(ctx, userID)
	if err != nil {
		return nil, err
	}

	status := &domain.SubscriptionStatus{
		Plan:              sub.Plan,
		IsActive:          sub.IsActive,
		BillingCycle:      sub.BillingCycle,
		CreditsTotal:      sub.CreditsTotal,
		CreditsUsed:       sub.CreditsUsed,
		CreditsRemaining:  sub.CreditsRemaining(),
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
		IsCanceled:        sub.IsCanceled,
		PaymentFailed:     sub.PaymentFailed,
		PendingDowngrade:  sub.PendingDowngradePlan,
	}
	if sub.IsActive {
		status.CycleStartDate = &sub.CycleStartDate
		status.CycleEndDate = &sub.CycleEndDate
	}
	return status, nil
}

// GetUsage reports credit consumption for the current cycle.
func (s Service) GetUsage(ctx context.Context, userID string) (*domain.UsageSummary, error) {
	sub, err := s.ensureSubscription(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &domain.UsageSummary{
		Plan:             sub.Plan,
		CreditsTotal:     sub.CreditsTotal,
		CreditsUsed:      sub.CreditsUsed,
		CreditsRemaining: sub.CreditsRemaining(),
		CycleStartDate:   sub.CycleStartDate,
		CycleEndDate:     sub.CycleEndDate,
	}, nil
}

// CheckoutSession is the response for a new Stripe Checkout flow.
type CheckoutSession struct {
	SessionID  string `json:"session_id"`
	SessionURL string `json:"session_url"`
}

// CreateCheckoutSession starts a Stripe Checkout flow for a plan and billing
// cycle. The subscription itself is activated later by the webhook.
func (s Service) CreateCheckoutSession(ctx context.Context, userID, email, planName, billingCycle string) (*CheckoutSession, error) {
	plan, billingCycle, err := s.resolvePaidPlan(ctx, planName, billingCycle)
	if err != nil {
		return nil, err
	}

	sub, err := s.ensureSubscription(ctx, userID)
	if err != nil {
		return nil, err
	}

	customerID, err := s.stripe.EnsureCustomer(ctx, userID, email, sub.StripeCustomerID)
	if err != nil {
		return nil, fmt.Errorf("ensure stripe customer: %w", err)
	}

	successURL := s.frontendURL + "/billing/success?session_id={CHECKOUT_SESSION_ID}"
	cancelURL := s.frontendURL + "/billing/cancel"
	sessionID, sessionURL, err := s.stripe.CreateCheckoutSession(ctx, customerID, plan.StripePriceFor(billingCycle), successURL, cancelURL)
	if err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}

	return &CheckoutSession{SessionID: sessionID, SessionURL: sessionURL}, nil
}

// PayPalSubscription is the response for a new PayPal approval flow.
type PayPalSubscription struct {
	SubscriptionID string `json:"subscription_id"`
	ApprovalURL    string `json:"approval_url"`
}

// CreatePayPalSubscription starts a PayPal subscription approval flow.
func (s Service) CreatePayPalSubscription(ctx context.Context, userID, planName, billingCycle string) (*PayPalSubscription, error) {
	plan, billingCycle, err := s.resolvePaidPlan(ctx, planName, billingCycle)
	if err != nil {
		return nil, err
	}
	if _, err := s.ensureSubscription(ctx, userID); err != nil {
		return nil, err
	}

	subID, approvalURL, err := s.paypal.CreateSubscription(ctx, plan.PayPalPlanFor(billingCycle), userID)
	if err != nil {
		return nil, fmt.Errorf("create paypal subscription: %w", err)
	}
	return &PayPalSubscription{SubscriptionID: subID, ApprovalURL: approvalURL}, nil
}

// BillingPortal returns a Stripe billing portal URL for the user.
func (s Service) BillingPortal(ctx context.Context, userID string) (string, error) {
	sub, err := s.ensureSubscription(ctx, userID)
	if err != nil {
		return "", err
	}
	if sub.StripeCustomerID == "" {
		return "", ErrNoProviderSubscription
	}
	return s.stripe.CreateBillingPortalSession(ctx, sub.StripeCustomerID, s.frontendURL+"/billing")
}

// UpgradeResult reports the outcome of a mid-cycle plan change.
type UpgradeResult struct {
	Subscription   *domain.Subscription `json:"subscription"`
	ProratedCharge int64                `json:"prorated_charge"` // cents
}

// Upgrade switches the user to a higher-priced plan mid-cycle. The new
// allotment replaces credits_total while credits_used is preserved; the
// charge for the remainder of the cycle is prorated linearly by days left in
// the 30-day credit window.
func (s Service) Upgrade(ctx context.Context, userID, planName string) (*UpgradeResult, error) {
	sub, err := s.ensureSubscription(ctx, userID)
	if err != nil {
		return nil, err
	}
	if sub.Provider() == "" {
		return nil, ErrNoProviderSubscription
	}

	billingCycle := sub.BillingCycle
	target, billingCycle, err := s.resolvePaidPlan(ctx, planName, billingCycle)
	if err != nil {
		return nil, err
	}
	current, err := s.repo.GetPlan(ctx, sub.Plan)
	if err != nil {
		return nil, err
	}
	if target.PriceFor(billingCycle) <= current.PriceFor(billingCycle) {
		return nil, ErrNotAnUpgrade
	}

	prorated := prorateCharge(current.PriceFor(billingCycle), target.PriceFor(billingCycle), sub.CycleEndDate, time.Now().UTC())

	switch sub.Provider() {
	case domain.ProviderStripe:
		if err := s.stripe.ChangeSubscriptionPrice(ctx, sub.StripeSubscriptionID, target.StripePriceFor(billingCycle), true); err != nil {
			return nil, fmt.Errorf("change stripe subscription price: %w", err)
		}
	case domain.ProviderPayPal:
		if err := s.paypal.ReviseSubscriptionPlan(ctx, sub.PayPalSubscriptionID, target.PayPalPlanFor(billingCycle)); err != nil {
			return nil, fmt.Errorf("revise paypal subscription: %w", err)
		}
	}

	updated, err := s.repo.ChangePlan(ctx, userID, target.Name, target.CreditsTotal, billingCycle)
	if err != nil {
		return nil, err
	}

	s.appendLog(ctx, userID, domain.LogSubscriptionUpgraded, sub.Plan, target.Name, sub.Provider(), "")
	s.publishSubscriptionEvent(ctx, domain.EventSubscriptionUpgraded, updated, sub.Plan)

	return &UpgradeResult{Subscription: updated, ProratedCharge: prorated}, nil
}

// Downgrade schedules a plan decrease for the next cycle boundary. The
// target must be a strictly cheaper paid plan under the user's current
// billing cycle; moving to the free plan is a cancellation, not a downgrade,
// because the provider subscription has to stop invoicing.
func (s Service) Downgrade(ctx context.Context, userID, planName string) (*domain.Subscription, error) {
	if planName == domain.PlanFree {
		return nil, ErrDowngradeToFree
	}

	sub, err := s.ensureSubscription(ctx, userID)
	if err != nil {
		return nil, err
	}
	if sub.Provider() == "" {
		return nil, ErrNoProviderSubscription
	}

	target, err := s.repo.GetPlan(ctx, planName)
	if err != nil {
		if errors.Is(err, store.ErrPlanNotFound) {
			return nil, ErrUnknownPlan
		}
		return nil, err
	}
	current, err := s.repo.GetPlan(ctx, sub.Plan)
	if err != nil {
		return nil, err
	}
	if target.PriceFor(sub.BillingCycle) >= current.PriceFor(sub.BillingCycle) {
		return nil, ErrNotADowngrade
	}

	// Provider-side change is scheduled for period end; our row only records
	// the intent. The scheduler commits it at the cycle boundary.
	switch sub.Provider() {
	case domain.ProviderStripe:
		if err := s.stripe.ChangeSubscriptionPrice(ctx, sub.StripeSubscriptionID, target.StripePriceFor(sub.BillingCycle), false); err != nil {
			return nil, fmt.Errorf("schedule stripe downgrade: %w", err)
		}
	case domain.ProviderPayPal:
		if err := s.paypal.ReviseSubscriptionPlan(ctx, sub.PayPalSubscriptionID, target.PayPalPlanFor(sub.BillingCycle)); err != nil {
			return nil, fmt.Errorf("schedule paypal downgrade: %w", err)
		}
	}

	updated, err := s.repo.ScheduleDowngrade(ctx, userID, target.Name, sub.CycleEndDate)
	if err != nil {
		return nil, err
	}

	s.appendLog(ctx, userID, domain.LogDowngradeScheduled, sub.Plan, target.Name, sub.Provider(), "applies at cycle end")
	s.publishSubscriptionEvent(ctx, domain.EventDowngradeScheduled, updated, sub.Plan)

	return updated, nil
}

// Cancel immediately reverts the user to the free plan, preserving both
// credit counters. The provider-side subscription is cancelled best-effort:
// a provider error is logged and the local cancellation proceeds.
func (s Service) Cancel(ctx context.Context, userID string) (*domain.Subscription, error) {
	sub, err := s.ensureSubscription(ctx, userID)
	if err != nil {
		return nil, err
	}

	switch sub.Provider() {
	case domain.ProviderStripe:
		if err := s.stripe.CancelSubscriptionAtPeriodEnd(ctx, sub.StripeSubscriptionID); err != nil {
			s.logger.Warn("stripe cancel failed, continuing with local cancellation", "user_id", userID, "error", err)
		}
	case domain.ProviderPayPal:
		if err := s.paypal.CancelSubscription(ctx, sub.PayPalSubscriptionID, "user requested cancellation"); err != nil {
			s.logger.Warn("paypal cancel failed, continuing with local cancellation", "user_id", userID, "error", err)
		}
	}

	updated, err := s.repo.RevertToFree(ctx, userID, true, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	s.appendLog(ctx, userID, domain.LogSubscriptionCanceled, sub.Plan, domain.PlanFree, sub.Provider(), "")
	s.publishSubscriptionEvent(ctx, domain.EventSubscriptionCanceled, updated, sub.Plan)

	return updated, nil
}

// ConsumeCredits decrements the remaining balance by n (1 for a single
// generation, the scene count for batch image generation). Returns
// ErrCreditLimitReached without mutating when the balance cannot cover n.
func (s Service) ConsumeCredits(ctx context.Context, userID string, n int) (*domain.Subscription, error) {
	if n <= 0 {
		n = 1
	}
	if _, err := s.ensureSubscription(ctx, userID); err != nil {
		return nil, err
	}
	sub, err := s.repo.ConsumeCredits(ctx, userID, n)
	if err != nil {
		if errors.Is(err, store.ErrInsufficientCredits) {
			return nil, ErrCreditLimitReached
		}
		return nil, err
	}
	return sub, nil
}

// RefundCredits returns credits after a failed generation. Best effort.
func (s Service) RefundCredits(ctx context.Context, userID string, n int) {
	if n <= 0 {
		return
	}
	if err := s.repo.RefundCredits(ctx, userID, n); err != nil {
		s.logger.Warn("failed to refund credits", "user_id", userID, "credits", n, "error", err)
	}
}

// resolvePaidPlan validates a plan/cycle pair for checkout and plan changes.
func (s Service) resolvePaidPlan(ctx context.Context, planName, billingCycle string) (*domain.Plan, string, error) {
	if billingCycle == "" {
		billingCycle = domain.BillingCycleMonthly
	}
	if billingCycle != domain.BillingCycleMonthly && billingCycle != domain.BillingCycleYearly {
		return nil, "", ErrInvalidBillingCycle
	}
	plan, err := s.repo.GetPlan(ctx, planName)
	if err != nil {
		if errors.Is(err, store.ErrPlanNotFound) {
			return nil, "", ErrUnknownPlan
		}
		return nil, "", err
	}
	if plan.Name == domain.PlanFree {
		return nil, "", ErrUnknownPlan
	}
	return plan, billingCycle, nil
}

// prorateCharge computes the price delta for the remainder of the credit
// cycle, linear by days remaining in the 30-day window.
func prorateCharge(currentPrice, targetPrice int64, cycleEnd, now time.Time) int64 {
	remaining := cycleEnd.Sub(now).Hours() / 24
	if remaining < 0 {
		remaining = 0
	}
	if remaining > domain.CreditCycleDays {
		remaining = domain.CreditCycleDays
	}
	delta := targetPrice - currentPrice
	return int64(float64(delta) * remaining / domain.CreditCycleDays)
}

func (s Service) appendLog(ctx context.Context, userID, event, fromPlan, toPlan, provider, detail string) {
	entry := &domain.SubscriptionLog{
		UserID:   userID,
		Event:    event,
		FromPlan: fromPlan,
		ToPlan:   toPlan,
		Provider: provider,
		Detail:   detail,
	}
	if err := s.repo.AppendSubscriptionLog(ctx, entry); err != nil {
		s.logger.Warn("failed to append subscription log", "user_id", userID, "event", event, "error", err)
	}
}

func (s Service) publishSubscriptionEvent(ctx context.Context, routingKey string, sub *domain.Subscription, previousPlan string) {
	if s.publisher == nil {
		return
	}
	payload := domain.SubscriptionEvent{
		UserID:       sub.UserID,
		Plan:         sub.Plan,
		PreviousPlan: previousPlan,
		BillingCycle: sub.BillingCycle,
		Provider:     sub.Provider(),
		Timestamp:    time.Now().UTC(),
	}
	if err := s.publisher.Publish(ctx, domain.EventsExchange, routingKey, payload); err != nil {
		s.logger.Warn("failed to publish subscription event", "routing_key", routingKey, "error", err)
	}
}
