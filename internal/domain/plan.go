/**
 * @description
 * Plan reference data. Plans are read-only rows seeded by migration; prices
 * are in cents and each paid plan carries the provider-side price/plan IDs
 * used when creating checkout sessions and subscriptions.
 */
package domain

// Plan names.
const (
	PlanFree    = "free"
	PlanStarter = "starter"
	PlanGrowth  = "growth"
	PlanScale   = "scale"
)

// Plan represents a subscription tier.
type Plan struct {
	Name                string `json:"name"`
	MonthlyPrice        int64  `json:"monthly_price"` // cents
	YearlyPrice         int64  `json:"yearly_price"`  // cents
	StripeMonthlyPrice  string `json:"stripe_monthly_price_id,omitempty"`
	StripeYearlyPrice   string `json:"stripe_yearly_price_id,omitempty"`
	PayPalMonthlyPlanID string `json:"paypal_monthly_plan_id,omitempty"`
	PayPalYearlyPlanID  string `json:"paypal_yearly_plan_id,omitempty"`
	CreditsTotal        int    `json:"credits_total"`
	SortOrder           int    `json:"sort_order"`
}

// PriceFor returns the plan price for the given billing cycle.
func (p Plan) PriceFor(billingCycle string) int64 {
	if billingCycle == BillingCycleYearly {
		return p.YearlyPrice
	}
	return p.MonthlyPrice
}

// StripePriceFor returns the Stripe price ID for the given billing cycle.
func (p Plan) StripePriceFor(billingCycle string) string {
	if billingCycle == BillingCycleYearly {
		return p.StripeYearlyPrice
	}
	return p.StripeMonthlyPrice
}

// PayPalPlanFor returns the PayPal plan ID for the given billing cycle.
func (p Plan) PayPalPlanFor(billingCycle string) string {
	if billingCycle == BillingCycleYearly {
		return p.PayPalYearlyPlanID
	}
	return p.PayPalMonthlyPlanID
}
