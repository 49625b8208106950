/**
 * @description
 * Payment ledger and audit log models. Payments are append-only rows, one per
 * successful or failed charge, keyed by the provider's payment/invoice ID so
 * the webhook path and the direct confirmation path cannot double-write.
 */
package domain

import "time"

// Payment statuses.
const (
	PaymentStatusSucceeded = "succeeded"
	PaymentStatusFailed    = "failed"
	PaymentStatusRefunded  = "refunded"
)

// Payment represents a ledger row for a single charge.
type Payment struct {
	ID                     string    `json:"id"`
	UserID                 string    `json:"user_id"`
	Provider               string    `json:"provider"`
	ProviderPaymentID      string    `json:"provider_payment_id"`
	ProviderSubscriptionID string    `json:"provider_subscription_id,omitempty"`
	Amount                 int64     `json:"amount"` // cents
	Currency               string    `json:"currency"`
	Plan                   string    `json:"plan"`
	BillingCycle           string    `json:"billing_cycle"`
	Status                 string    `json:"status"`
	Description            string    `json:"description,omitempty"`
	ReceiptURL             string    `json:"receipt_url,omitempty"`
	CreatedAt              time.Time `json:"created_at"`
}

// Subscription log event kinds.
const (
	LogSubscriptionCreated  = "subscription_created"
	LogSubscriptionRenewed  = "subscription_renewed"
	LogSubscriptionUpgraded = "subscription_upgraded"
	LogDowngradeScheduled   = "downgrade_scheduled"
	LogDowngradeApplied     = "downgrade_applied"
	LogSubscriptionCanceled = "subscription_canceled"
	LogSubscriptionLapsed   = "subscription_lapsed"
	LogPaymentSucceeded     = "payment_succeeded"
	LogPaymentFailed        = "payment_failed"
	LogPaymentRetried       = "payment_retried"
	LogPaymentRefunded      = "payment_refunded"
	LogCreditCycleReset     = "credit_cycle_reset"
)

// SubscriptionLog is an append-only audit trail entry for lifecycle events.
type SubscriptionLog struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Event     string    `json:"event"`
	FromPlan  string    `json:"from_plan,omitempty"`
	ToPlan    string    `json:"to_plan,omitempty"`
	Provider  string    `json:"provider,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
