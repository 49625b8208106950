/**
 * @description
 * Internal event payloads published to RabbitMQ for decoupled consumers
 * (notifications, analytics). Events are published best-effort: a broker
 * failure never fails the originating request.
 */
package domain

import "time"

// Exchange and routing keys for lifecycle events.
const (
	EventsExchange = "reelforge.events"

	EventSubscriptionCreated  = "subscription.created"
	EventSubscriptionUpgraded = "subscription.upgraded"
	EventDowngradeScheduled   = "subscription.downgrade_scheduled"
	EventDowngradeApplied     = "subscription.downgrade_applied"
	EventSubscriptionCanceled = "subscription.canceled"
	EventPaymentSucceeded     = "payment.succeeded"
	EventPaymentFailed        = "payment.failed"
	EventPaymentRefunded      = "payment.refunded"
	EventCreditCycleReset     = "credits.cycle_reset"
)

// SubscriptionEvent is the payload for subscription lifecycle events.
type SubscriptionEvent struct {
	UserID       string    `json:"user_id"`
	Plan         string    `json:"plan"`
	PreviousPlan string    `json:"previous_plan,omitempty"`
	BillingCycle string    `json:"billing_cycle,omitempty"`
	Provider     string    `json:"provider,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// PaymentEvent is the payload for payment outcome events.
type PaymentEvent struct {
	UserID            string    `json:"user_id"`
	Provider          string    `json:"provider"`
	ProviderPaymentID string    `json:"provider_payment_id"`
	Amount            int64     `json:"amount"`
	Currency          string    `json:"currency"`
	Plan              string    `json:"plan,omitempty"`
	Status            string    `json:"status"`
	FailureReason     *string   `json:"failure_reason,omitempty"`
	Timestamp         time.Time `json:"timestamp"`
}
