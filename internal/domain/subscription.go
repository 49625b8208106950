/**
 * @description
 * This file defines the core domain models for subscription and credit
 * management. The Subscription struct maps to the subscriptions table and
 * carries both the billing state (provider IDs, cancellation bookkeeping)
 * and the credit-cycle state (a rolling 30-day window independent of the
 * provider's invoice period).
 */
package domain

import "time"

// Billing providers.
const (
	ProviderStripe = "stripe"
	ProviderPayPal = "paypal"
)

// Billing cycles.
const (
	BillingCycleMonthly = "monthly"
	BillingCycleYearly  = "yearly"
	BillingCycleNone    = "none"
)

// CreditCycleDays is the length of the rolling credit window. Credits reset
// on this window, not on the provider's invoice dates.
const CreditCycleDays = 30

// Subscription represents a user's subscription row.
type Subscription struct {
	ID                   string     `json:"id"`
	UserID               string     `json:"user_id"`
	Plan                 string     `json:"plan"`
	CreditsTotal         int        `json:"credits_total"`
	CreditsUsed          int        `json:"credits_used"`
	IsActive             bool       `json:"is_active"`
	BillingCycle         string     `json:"billing_cycle"`
	CycleStartDate       time.Time  `json:"cycle_start_date"`
	CycleEndDate         time.Time  `json:"cycle_end_date"`
	StripeCustomerID     string     `json:"stripe_customer_id,omitempty"`
	StripeSubscriptionID string     `json:"stripe_subscription_id,omitempty"`
	PayPalSubscriptionID string     `json:"paypal_subscription_id,omitempty"`
	CanceledAt           *time.Time `json:"canceled_at,omitempty"`
	CancelAtPeriodEnd    bool       `json:"cancel_at_period_end"`
	IsCanceled           bool       `json:"is_canceled"`
	PaymentFailed        bool       `json:"payment_failed"`
	PendingDowngradePlan *string    `json:"pending_downgrade_plan,omitempty"`
	PendingDowngradeAt   *time.Time `json:"pending_downgrade_at,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

// CreditsRemaining returns the usable credit balance, never negative.
func (s *Subscription) CreditsRemaining() int {
	remaining := s.CreditsTotal - s.CreditsUsed
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Provider reports which billing provider owns this subscription. Exactly one
// provider subscription ID is populated at a time.
func (s *Subscription) Provider() string {
	if s.PayPalSubscriptionID != "" {
		return ProviderPayPal
	}
	if s.StripeSubscriptionID != "" {
		return ProviderStripe
	}
	return ""
}

// SubscriptionStatus is the DTO returned to clients asking for their
// subscription state.
type SubscriptionStatus struct {
	Plan              string     `json:"plan"`
	IsActive          bool       `json:"is_active"`
	BillingCycle      string     `json:"billing_cycle"`
	CreditsTotal      int        `json:"credits_total"`
	CreditsUsed       int        `json:"credits_used"`
	CreditsRemaining  int        `json:"credits_remaining"`
	CycleStartDate    *time.Time `json:"cycle_start_date,omitempty"`
	CycleEndDate      *time.Time `json:"cycle_end_date,omitempty"`
	CancelAtPeriodEnd bool       `json:"cancel_at_period_end"`
	IsCanceled        bool       `json:"is_canceled"`
	PaymentFailed     bool       `json:"payment_failed"`
	PendingDowngrade  *string    `json:"pending_downgrade,omitempty"`
}

// UsageSummary reports credit consumption for the current cycle.
type UsageSummary struct {
	Plan             string    `json:"plan"`
	CreditsTotal     int       `json:"credits_total"`
	CreditsUsed      int       `json:"credits_used"`
	CreditsRemaining int       `json:"credits_remaining"`
	CycleStartDate   time.Time `json:"cycle_start_date"`
	CycleEndDate     time.Time `json:"cycle_end_date"`
}
