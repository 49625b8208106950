/**
 * @description
 * Subscription persistence. The interesting mutations here are written as
 * single conditional UPDATE statements: credit consumption only succeeds when
 * the balance allows it, and cycle resets apply any pending downgrade in the
 * same statement that rolls the window forward, so two scheduler instances
 * (or two concurrent requests) cannot double-apply either.
 */
package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/reelforge/backend/internal/domain"
)

const subscriptionColumns = `
	id, user_id, plan, credits_total, credits_used, is_active, billing_cycle,
	cycle_start_date, cycle_end_date, stripe_customer_id, stripe_subscription_id,
	paypal_subscription_id, canceled_at, cancel_at_period_end, is_canceled,
	payment_failed, pending_downgrade_plan, pending_downgrade_at, created_at, updated_at`

func scanSubscription(row pgx.Row) (*domain.Subscription, error) {
	var s domain.Subscription
	err := row.Scan(
		&s.ID, &s.UserID, &s.Plan, &s.CreditsTotal, &s.CreditsUsed, &s.IsActive,
		&s.BillingCycle, &s.CycleStartDate, &s.CycleEndDate, &s.StripeCustomerID,
		&s.StripeSubscriptionID, &s.PayPalSubscriptionID, &s.CanceledAt,
		&s.CancelAtPeriodEnd, &s.IsCanceled, &s.PaymentFailed,
		&s.PendingDowngradePlan, &s.PendingDowngradeAt, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSubscriptionNotFound
		}
		return nil, err
	}
	return &s, nil
}

// GetSubscriptionByUserID retrieves the subscription row for a user.
func (r *Repository) GetSubscriptionByUserID(ctx context.Context, userID string) (*domain.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE user_id = $1`
	return scanSubscription(r.db.QueryRow(ctx, query, userID))
}

// GetSubscriptionByStripeCustomerID resolves a subscription from a Stripe customer reference.
func (r *Repository) GetSubscriptionByStripeCustomerID(ctx context.Context, customerID string) (*domain.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE stripe_customer_id = $1`
	return scanSubscription(r.db.QueryRow(ctx, query, customerID))
}

// GetSubscriptionByPayPalSubscriptionID resolves a subscription from a PayPal reference.
func (r *Repository) GetSubscriptionByPayPalSubscriptionID(ctx context.Context, paypalSubID string) (*domain.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE paypal_subscription_id = $1`
	return scanSubscription(r.db.QueryRow(ctx, query, paypalSubID))
}

// CreateFreeSubscription inserts the default free-tier row for a user. If a
// row already exists it is returned unchanged.
func (r *Repository) CreateFreeSubscription(ctx context.Context, userID string, creditsTotal int, now time.Time) (*domain.Subscription, error) {
	query := `
        INSERT INTO subscriptions (user_id, plan, credits_total, credits_used, is_active, billing_cycle, cycle_start_date, cycle_end_date)
        VALUES ($1, 'free', $2, 0, TRUE, 'none', $3, $4)
        ON CONFLICT (user_id) DO UPDATE SET updated_at = subscriptions.updated_at
        RETURNING ` + subscriptionColumns
	cycleEnd := now.AddDate(0, 0, domain.CreditCycleDays)
	return scanSubscription(r.db.QueryRow(ctx, query, userID, creditsTotal, now, cycleEnd))
}

// ActivateSubscription switches a user onto a paid plan. Used on first
// checkout and on webhook-confirmed new subscriptions; resets the credit
// window and the usage counter and clears cancellation bookkeeping.
func (r *Repository) ActivateSubscription(ctx context.Context, userID, plan string, creditsTotal int, billingCycle, provider, providerSubID, stripeCustomerID string, now time.Time) (*domain.Subscription, error) {
	stripeSubID := ""
	paypalSubID := ""
	if provider == domain.ProviderPayPal {
		paypalSubID = providerSubID
	} else {
		stripeSubID = providerSubID
	}
	query := `
        UPDATE subscriptions SET
            plan = $2,
            credits_total = $3,
            credits_used = 0,
            is_active = TRUE,
            billing_cycle = $4,
            cycle_start_date = $5,
            cycle_end_date = $6,
            stripe_subscription_id = $7,
            paypal_subscription_id = $8,
            stripe_customer_id = CASE WHEN $9 = '' THEN stripe_customer_id ELSE $9 END,
            canceled_at = NULL,
            cancel_at_period_end = FALSE,
            is_canceled = FALSE,
            payment_failed = FALSE,
            pending_downgrade_plan = NULL,
            pending_downgrade_at = NULL,
            updated_at = NOW()
        WHERE user_id = $1
        RETURNING ` + subscriptionColumns
	cycleEnd := now.AddDate(0, 0, domain.CreditCycleDays)
	return scanSubscription(r.db.QueryRow(ctx, query, userID, plan, creditsTotal, billingCycle, now, cycleEnd, stripeSubID, paypalSubID, stripeCustomerID))
}

// ChangePlan mutates plan and allotment in place, preserving credits_used up
// to the new allotment. The clamp matters when a scheduled downgrade's first
// invoice at the cheaper price lands before the cycle-reset job runs: usage
// may exceed the smaller allotment and would otherwise trip the
// credits_within_allotment check. Any pending downgrade is cleared.
func (r *Repository) ChangePlan(ctx context.Context, userID, plan string, creditsTotal int, billingCycle string) (*domain.Subscription, error) {
	query := `
        UPDATE subscriptions SET
            plan = $2,
            credits_total = $3,
            credits_used = LEAST(credits_used, $3),
            billing_cycle = $4,
            is_active = TRUE,
            payment_failed = FALSE,
            pending_downgrade_plan = NULL,
            pending_downgrade_at = NULL,
            updated_at = NOW()
        WHERE user_id = $1
        RETURNING ` + subscriptionColumns
	return scanSubscription(r.db.QueryRow(ctx, query, userID, plan, creditsTotal, billingCycle))
}

// RenewCycle rolls the credit window forward after a renewal invoice,
// zeroing the usage counter.
func (r *Repository) RenewCycle(ctx context.Context, userID string, creditsTotal int, now time.Time) (*domain.Subscription, error) {
	query := `
        UPDATE subscriptions SET
            credits_total = $2,
            credits_used = 0,
            is_active = TRUE,
            payment_failed = FALSE,
            cycle_start_date = $3,
            cycle_end_date = $4,
            updated_at = NOW()
        WHERE user_id = $1
        RETURNING ` + subscriptionColumns
	cycleEnd := now.AddDate(0, 0, domain.CreditCycleDays)
	return scanSubscription(r.db.QueryRow(ctx, query, userID, creditsTotal, now, cycleEnd))
}

// ScheduleDowngrade stores a deferred plan change to be applied at the cycle
// boundary by the scheduler.
func (r *Repository) ScheduleDowngrade(ctx context.Context, userID, targetPlan string, at time.Time) (*domain.Subscription, error) {
	query := `
        UPDATE subscriptions SET
            pending_downgrade_plan = $2,
            pending_downgrade_at = $3,
            updated_at = NOW()
        WHERE user_id = $1
        RETURNING ` + subscriptionColumns
	return scanSubscription(r.db.QueryRow(ctx, query, userID, targetPlan, at))
}

// RevertToFree downgrades a subscription to the free plan, preserving both
// credit counters. Provider references are cleared; cancellation bookkeeping
// is stamped when stampCanceled is set. is_active is always forced false
// together with is_canceled.
func (r *Repository) RevertToFree(ctx context.Context, userID string, stampCanceled bool, now time.Time) (*domain.Subscription, error) {
	query := `
        UPDATE subscriptions SET
            plan = 'free',
            is_active = FALSE,
            billing_cycle = 'none',
            stripe_subscription_id = '',
            paypal_subscription_id = '',
            is_canceled = CASE WHEN $2 THEN TRUE ELSE is_canceled END,
            canceled_at = CASE WHEN $2 THEN $3 ELSE canceled_at END,
            cancel_at_period_end = FALSE,
            pending_downgrade_plan = NULL,
            pending_downgrade_at = NULL,
            updated_at = NOW()
        WHERE user_id = $1
        RETURNING ` + subscriptionColumns
	return scanSubscription(r.db.QueryRow(ctx, query, userID, stampCanceled, now))
}

// ConsumeCredits decrements the remaining balance by n in a single
// conditional statement. Returns ErrInsufficientCredits without mutating when
// the balance cannot cover n.
func (r *Repository) ConsumeCredits(ctx context.Context, userID string, n int) (*domain.Subscription, error) {
	query := `
        UPDATE subscriptions SET
            credits_used = credits_used + $2,
            updated_at = NOW()
        WHERE user_id = $1
          AND credits_used + $2 <= credits_total
        RETURNING ` + subscriptionColumns
	sub, err := scanSubscription(r.db.QueryRow(ctx, query, userID, n))
	if err != nil {
		if errors.Is(err, ErrSubscriptionNotFound) {
			// Distinguish a missing row from an exhausted balance.
			if _, getErr := r.GetSubscriptionByUserID(ctx, userID); getErr != nil {
				return nil, getErr
			}
			return nil, ErrInsufficientCredits
		}
		return nil, err
	}
	return sub, nil
}

// RefundCredits returns n credits to the balance, clamped at zero used.
func (r *Repository) RefundCredits(ctx context.Context, userID string, n int) error {
	_, err := r.db.Exec(ctx, `
        UPDATE subscriptions SET
            credits_used = GREATEST(credits_used - $2, 0),
            updated_at = NOW()
        WHERE user_id = $1`,
		userID, n)
	return err
}

// SetPaymentFailed flags (or clears) a failed-payment marker.
func (r *Repository) SetPaymentFailed(ctx context.Context, userID string, failed bool) error {
	_, err := r.db.Exec(ctx,
		`UPDATE subscriptions SET payment_failed = $2, updated_at = NOW() WHERE user_id = $1`,
		userID, failed)
	return err
}

// CycleReset pairs a freshly reset subscription with the plan it was on
// before the reset, so callers can tell when a pending downgrade landed.
type CycleReset struct {
	Subscription domain.Subscription
	PreviousPlan string
}

// ResetDueCreditCycles rolls every expired credit window forward in one
// statement, applying any pending downgrade as it does so. The join against
// plans resolves the allotment for whichever plan the row lands on; the
// self-join surfaces the pre-update plan in RETURNING.
func (r *Repository) ResetDueCreditCycles(ctx context.Context, now time.Time) ([]CycleReset, error) {
	query := `
        UPDATE subscriptions s SET
            plan = COALESCE(s.pending_downgrade_plan, s.plan),
            credits_total = p.credits_total,
            credits_used = 0,
            cycle_start_date = $1,
            cycle_end_date = $2,
            pending_downgrade_plan = NULL,
            pending_downgrade_at = NULL,
            updated_at = NOW()
        FROM subscriptions prev
        JOIN plans p ON p.name = COALESCE(prev.pending_downgrade_plan, prev.plan)
        WHERE prev.id = s.id
          AND s.is_active = TRUE
          AND s.cycle_end_date <= $1
        RETURNING ` + prefixColumns("s", subscriptionColumns) + `, prev.plan`
	cycleEnd := now.AddDate(0, 0, domain.CreditCycleDays)
	rows, err := r.db.Query(ctx, query, now, cycleEnd)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var resets []CycleReset
	for rows.Next() {
		var s domain.Subscription
		var prevPlan string
		err := rows.Scan(
			&s.ID, &s.UserID, &s.Plan, &s.CreditsTotal, &s.CreditsUsed, &s.IsActive,
			&s.BillingCycle, &s.CycleStartDate, &s.CycleEndDate, &s.StripeCustomerID,
			&s.StripeSubscriptionID, &s.PayPalSubscriptionID, &s.CanceledAt,
			&s.CancelAtPeriodEnd, &s.IsCanceled, &s.PaymentFailed,
			&s.PendingDowngradePlan, &s.PendingDowngradeAt, &s.CreatedAt, &s.UpdatedAt,
			&prevPlan,
		)
		if err != nil {
			return nil, err
		}
		resets = append(resets, CycleReset{Subscription: s, PreviousPlan: prevPlan})
	}
	return resets, rows.Err()
}

// LapseCanceledSubscriptions reverts deferred-cancel rows that have passed
// their period end back to the free plan, preserving credit counters.
func (r *Repository) LapseCanceledSubscriptions(ctx context.Context, now time.Time) ([]domain.Subscription, error) {
	query := `
        UPDATE subscriptions SET
            plan = 'free',
            is_active = FALSE,
            billing_cycle = 'none',
            stripe_subscription_id = '',
            paypal_subscription_id = '',
            is_canceled = TRUE,
            canceled_at = COALESCE(canceled_at, $1),
            cancel_at_period_end = FALSE,
            updated_at = NOW()
        WHERE cancel_at_period_end = TRUE
          AND cycle_end_date <= $1
        RETURNING ` + subscriptionColumns
	rows, err := r.db.Query(ctx, query, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSubscriptions(rows)
}

// ListSubscriptions returns subscription rows for admin views, newest first.
func (r *Repository) ListSubscriptions(ctx context.Context, plan string, onlyActive bool, limit int) ([]domain.Subscription, error) {
	query := `
        SELECT ` + subscriptionColumns + `
        FROM subscriptions
        WHERE ($1 = '' OR plan = $1)
          AND (NOT $2 OR is_active = TRUE)
        ORDER BY updated_at DESC
        LIMIT $3`
	rows, err := r.db.Query(ctx, query, plan, onlyActive, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSubscriptions(rows)
}

// CountActiveSubscriptions returns the number of active paid subscriptions.
func (r *Repository) CountActiveSubscriptions(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM subscriptions WHERE is_active = TRUE AND plan <> 'free'`).Scan(&count)
	return count, err
}

func collectSubscriptions(rows pgx.Rows) ([]domain.Subscription, error) {
	var subs []domain.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, *sub)
	}
	return subs, rows.Err()
}
