/**
 * @description
 * Plan reference data access. Plans are seeded by migration and read-only at
 * runtime.
 */
package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/reelforge/backend/internal/domain"
)

const planColumns = `
	name, monthly_price, yearly_price, stripe_monthly_price_id, stripe_yearly_price_id,
	paypal_monthly_plan_id, paypal_yearly_plan_id, credits_total, sort_order`

func scanPlan(row pgx.Row) (*domain.Plan, error) {
	var p domain.Plan
	err := row.Scan(
		&p.Name, &p.MonthlyPrice, &p.YearlyPrice, &p.StripeMonthlyPrice, &p.StripeYearlyPrice,
		&p.PayPalMonthlyPlanID, &p.PayPalYearlyPlanID, &p.CreditsTotal, &p.SortOrder,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPlanNotFound
		}
		return nil, err
	}
	return &p, nil
}

// GetPlan retrieves a plan by name.
func (r *Repository) GetPlan(ctx context.Context, name string) (*domain.Plan, error) {
	query := `SELECT ` + planColumns + ` FROM plans WHERE name = $1`
	return scanPlan(r.db.QueryRow(ctx, query, name))
}

// GetPlanByStripePriceID resolves the plan and billing cycle for a Stripe
// price reference found on an invoice.
func (r *Repository) GetPlanByStripePriceID(ctx context.Context, priceID string) (*domain.Plan, string, error) {
	query := `
        SELECT ` + planColumns + `,
               CASE WHEN stripe_yearly_price_id = $1 THEN 'yearly' ELSE 'monthly' END
        FROM plans
        WHERE stripe_monthly_price_id = $1 OR stripe_yearly_price_id = $1`
	var p domain.Plan
	var billingCycle string
	err := r.db.QueryRow(ctx, query, priceID).Scan(
		&p.Name, &p.MonthlyPrice, &p.YearlyPrice, &p.StripeMonthlyPrice, &p.StripeYearlyPrice,
		&p.PayPalMonthlyPlanID, &p.PayPalYearlyPlanID, &p.CreditsTotal, &p.SortOrder,
		&billingCycle,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, "", ErrPlanNotFound
		}
		return nil, "", err
	}
	return &p, billingCycle, nil
}

// GetPlanByPayPalPlanID resolves the plan and billing cycle for a PayPal
// plan reference found on a subscription event.
func (r *Repository) GetPlanByPayPalPlanID(ctx context.Context, paypalPlanID string) (*domain.Plan, string, error) {
	query := `
        SELECT ` + planColumns + `,
               CASE WHEN paypal_yearly_plan_id = $1 THEN 'yearly' ELSE 'monthly' END
        FROM plans
        WHERE paypal_monthly_plan_id = $1 OR paypal_yearly_plan_id = $1`
	var p domain.Plan
	var billingCycle string
	err := r.db.QueryRow(ctx, query, paypalPlanID).Scan(
		&p.Name, &p.MonthlyPrice, &p.YearlyPrice, &p.StripeMonthlyPrice, &p.StripeYearlyPrice,
		&p.PayPalMonthlyPlanID, &p.PayPalYearlyPlanID, &p.CreditsTotal, &p.SortOrder,
		&billingCycle,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, "", ErrPlanNotFound
		}
		return nil, "", err
	}
	return &p, billingCycle, nil
}

// ListPlans returns the full plan catalog in display order.
func (r *Repository) ListPlans(ctx context.Context) ([]domain.Plan, error) {
	query := `SELECT ` + planColumns + ` FROM plans ORDER BY sort_order`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var plans []domain.Plan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, err
		}
		plans = append(plans, *p)
	}
	return plans, rows.Err()
}
