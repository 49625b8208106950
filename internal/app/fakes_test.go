package app

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/reelforge/backend/internal/domain"
	"github.com/reelforge/backend/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testPlans() map[string]domain.Plan {
	return map[string]domain.Plan{
		domain.PlanFree:    {Name: domain.PlanFree, CreditsTotal: 5},
		domain.PlanStarter: {Name: domain.PlanStarter, MonthlyPrice: 1900, YearlyPrice: 19000, StripeMonthlyPrice: "price_starter_m", StripeYearlyPrice: "price_starter_y", PayPalMonthlyPlanID: "P-STARTER-M", CreditsTotal: 10},
		domain.PlanGrowth:  {Name: domain.PlanGrowth, MonthlyPrice: 4900, YearlyPrice: 49000, StripeMonthlyPrice: "price_growth_m", StripeYearlyPrice: "price_growth_y", PayPalMonthlyPlanID: "P-GROWTH-M", CreditsTotal: 50},
		domain.PlanScale:   {Name: domain.PlanScale, MonthlyPrice: 9900, YearlyPrice: 99000, StripeMonthlyPrice: "price_scale_m", StripeYearlyPrice: "price_scale_y", PayPalMonthlyPlanID: "P-SCALE-M", CreditsTotal: 150},
	}
}

// fakeRepo is an in-memory stand-in for the store mirroring its conditional
// update semantics.
type fakeRepo struct {
	sub      *domain.Subscription
	plans    map[string]domain.Plan
	logs     []domain.SubscriptionLog
	payments map[string]domain.Payment
}

func newFakeRepo(sub *domain.Subscription) *fakeRepo {
	return &fakeRepo{
		sub:      sub,
		plans:    testPlans(),
		payments: map[string]domain.Payment{},
	}
}

func (f *fakeRepo) copySub() *domain.Subscription {
	c := *f.sub
	return &c
}

func (f *fakeRepo) GetSubscriptionByUserID(_ context.Context, userID string) (*domain.Subscription, error) {
	if f.sub == nil || f.sub.UserID != userID {
		return nil, store.ErrSubscriptionNotFound
	}
	return f.copySub(), nil
}

func (f *fakeRepo) GetSubscriptionByStripeCustomerID(_ context.Context, customerID string) (*domain.Subscription, error) {
	if f.sub == nil || f.sub.StripeCustomerID != customerID {
		return nil, store.ErrSubscriptionNotFound
	}
	return f.copySub(), nil
}

func (f *fakeRepo) GetSubscriptionByPayPalSubscriptionID(_ context.Context, paypalSubID string) (*domain.Subscription, error) {
	if f.sub == nil || f.sub.PayPalSubscriptionID != paypalSubID {
		return nil, store.ErrSubscriptionNotFound
	}
	return f.copySub(), nil
}

func (f *fakeRepo) CreateFreeSubscription(_ context.Context, userID string, creditsTotal int, now time.Time) (*domain.Subscription, error) {
	if f.sub == nil || f.sub.UserID != userID {
		f.sub = &domain.Subscription{
			ID:             "sub-" + userID,
			UserID:         userID,
			Plan:           domain.PlanFree,
			CreditsTotal:   creditsTotal,
			IsActive:       true,
			BillingCycle:   domain.BillingCycleNone,
			CycleStartDate: now,
			CycleEndDate:   now.AddDate(0, 0, domain.CreditCycleDays),
		}
	}
	return f.copySub(), nil
}

func (f *fakeRepo) ActivateSubscription(_ context.Context, userID, plan string, creditsTotal int, billingCycle, provider, providerSubID, stripeCustomerID string, now time.Time) (*domain.Subscription, error) {
	f.sub.Plan = plan
	f.sub.CreditsTotal = creditsTotal
	f.sub.CreditsUsed = 0
	f.sub.IsActive = true
	f.sub.BillingCycle = billingCycle
	f.sub.CycleStartDate = now
	f.sub.CycleEndDate = now.AddDate(0, 0, domain.CreditCycleDays)
	if provider == domain.ProviderPayPal {
		f.sub.PayPalSubscriptionID = providerSubID
		f.sub.StripeSubscriptionID = ""
	} else {
		f.sub.StripeSubscriptionID = providerSubID
		f.sub.PayPalSubscriptionID = ""
	}
	if stripeCustomerID != "" {
		f.sub.StripeCustomerID = stripeCustomerID
	}
	f.sub.IsCanceled = false
	f.sub.CancelAtPeriodEnd = false
	f.sub.CanceledAt = nil
	f.sub.PaymentFailed = false
	f.sub.PendingDowngradePlan = nil
	f.sub.PendingDowngradeAt = nil
	return f.copySub(), nil
}

func (f *fakeRepo) ChangePlan(_ context.Context, userID, plan string, creditsTotal int, billingCycle string) (*domain.Subscription, error) {
	f.sub.Plan = plan
	f.sub.CreditsTotal = creditsTotal
	if f.sub.CreditsUsed > creditsTotal {
		f.sub.CreditsUsed = creditsTotal
	}
	f.sub.BillingCycle = billingCycle
	f.sub.PendingDowngradePlan = nil
	f.sub.PendingDowngradeAt = nil
	return f.copySub(), nil
}

func (f *fakeRepo) RenewCycle(_ context.Context, userID string, creditsTotal int, now time.Time) (*domain.Subscription, error) {
	f.sub.CreditsTotal = creditsTotal
	f.sub.CreditsUsed = 0
	f.sub.CycleStartDate = now
	f.sub.CycleEndDate = now.AddDate(0, 0, domain.CreditCycleDays)
	f.sub.PaymentFailed = false
	return f.copySub(), nil
}

func (f *fakeRepo) ScheduleDowngrade(_ context.Context, userID, targetPlan string, at time.Time) (*domain.Subscription, error) {
	f.sub.PendingDowngradePlan = &targetPlan
	f.sub.PendingDowngradeAt = &at
	return f.copySub(), nil
}

func (f *fakeRepo) RevertToFree(_ context.Context, userID string, stampCanceled bool, now time.Time) (*domain.Subscription, error) {
	f.sub.Plan = domain.PlanFree
	f.sub.IsActive = false
	f.sub.BillingCycle = domain.BillingCycleNone
	f.sub.StripeSubscriptionID = ""
	f.sub.PayPalSubscriptionID = ""
	f.sub.PendingDowngradePlan = nil
	f.sub.PendingDowngradeAt = nil
	if stampCanceled {
		f.sub.IsCanceled = true
		f.sub.CanceledAt = &now
	}
	return f.copySub(), nil
}

func (f *fakeRepo) ConsumeCredits(_ context.Context, userID string, n int) (*domain.Subscription, error) {
	if f.sub == nil || f.sub.UserID != userID {
		return nil, store.ErrSubscriptionNotFound
	}
	if f.sub.CreditsUsed+n > f.sub.CreditsTotal {
		return nil, store.ErrInsufficientCredits
	}
	f.sub.CreditsUsed += n
	return f.copySub(), nil
}

func (f *fakeRepo) RefundCredits(_ context.Context, userID string, n int) error {
	f.sub.CreditsUsed -= n
	if f.sub.CreditsUsed < 0 {
		f.sub.CreditsUsed = 0
	}
	return nil
}

func (f *fakeRepo) SetPaymentFailed(_ context.Context, userID string, failed bool) error {
	f.sub.PaymentFailed = failed
	return nil
}

func (f *fakeRepo) GetPlan(_ context.Context, name string) (*domain.Plan, error) {
	p, ok := f.plans[name]
	if !ok {
		return nil, store.ErrPlanNotFound
	}
	return &p, nil
}

func (f *fakeRepo) GetPlanByStripePriceID(_ context.Context, priceID string) (*domain.Plan, string, error) {
	for _, p := range f.plans {
		if p.StripeMonthlyPrice == priceID {
			return &p, domain.BillingCycleMonthly, nil
		}
		if p.StripeYearlyPrice == priceID {
			return &p, domain.BillingCycleYearly, nil
		}
	}
	return nil, "", store.ErrPlanNotFound
}

func (f *fakeRepo) GetPlanByPayPalPlanID(_ context.Context, paypalPlanID string) (*domain.Plan, string, error) {
	for _, p := range f.plans {
		if p.PayPalMonthlyPlanID == paypalPlanID {
			return &p, domain.BillingCycleMonthly, nil
		}
		if p.PayPalYearlyPlanID == paypalPlanID {
			return &p, domain.BillingCycleYearly, nil
		}
	}
	return nil, "", store.ErrPlanNotFound
}

func (f *fakeRepo) ListPlans(_ context.Context) ([]domain.Plan, error) {
	plans := make([]domain.Plan, 0, len(f.plans))
	for _, p := range f.plans {
		plans = append(plans, p)
	}
	return plans, nil
}

func (f *fakeRepo) RecordPayment(_ context.Context, p *domain.Payment) (*domain.Payment, bool, error) {
	if existing, ok := f.payments[p.ProviderPaymentID]; ok {
		return &existing, false, nil
	}
	stored := *p
	if stored.ID == "" {
		stored.ID = "pay-" + stored.ProviderPaymentID
	}
	f.payments[stored.ProviderPaymentID] = stored
	return &stored, true, nil
}

func (f *fakeRepo) GetPaymentByProviderPaymentID(_ context.Context, providerPaymentID string) (*domain.Payment, error) {
	if p, ok := f.payments[providerPaymentID]; ok {
		return &p, nil
	}
	return nil, store.ErrPaymentNotFound
}

func (f *fakeRepo) MarkPaymentStatus(_ context.Context, id, status string) error {
	for key, p := range f.payments {
		if p.ID == id {
			p.Status = status
			f.payments[key] = p
			return nil
		}
	}
	return store.ErrPaymentNotFound
}

func (f *fakeRepo) AppendSubscriptionLog(_ context.Context, entry *domain.SubscriptionLog) error {
	f.logs = append(f.logs, *entry)
	return nil
}

// stubStripe records gateway calls.
type stubStripe struct {
	changedPriceID string
	prorated       bool
	canceledSubID  string
	paidInvoiceID  string
	err            error
}

func (s *stubStripe) EnsureCustomer(_ context.Context, userID, email, existingCustomerID string) (string, error) {
	if existingCustomerID != "" {
		return existingCustomerID, nil
	}
	return "cus_new", s.err
}

func (s *stubStripe) CreateCheckoutSession(_ context.Context, customerID, priceID, successURL, cancelURL string) (string, string, error) {
	return "cs_test", "https://checkout.stripe.test/cs_test", s.err
}

func (s *stubStripe) ChangeSubscriptionPrice(_ context.Context, subscriptionID, priceID string, prorate bool) error {
	s.changedPriceID = priceID
	s.prorated = prorate
	return s.err
}

func (s *stubStripe) CancelSubscriptionAtPeriodEnd(_ context.Context, subscriptionID string) error {
	s.canceledSubID = subscriptionID
	return s.err
}

func (s *stubStripe) CreateBillingPortalSession(_ context.Context, customerID, returnURL string) (string, error) {
	return "https://billing.stripe.test/session", s.err
}

func (s *stubStripe) PayInvoice(_ context.Context, invoiceID string) error {
	s.paidInvoiceID = invoiceID
	return s.err
}

// stubPayPal records gateway calls.
type stubPayPal struct {
	revisedPlanID string
	canceledSubID string
	err           error
}

func (s *stubPayPal) CreateSubscription(_ context.Context, planID, userID string) (string, string, error) {
	return "I-TEST", "https://paypal.test/approve", s.err
}

func (s *stubPayPal) ReviseSubscriptionPlan(_ context.Context, subscriptionID, planID string) error {
	s.revisedPlanID = planID
	return s.err
}

func (s *stubPayPal) CancelSubscription(_ context.Context, subscriptionID, reason string) error {
	s.canceledSubID = subscriptionID
	return s.err
}

// stubPublisher collects published routing keys.
type stubPublisher struct {
	routingKeys []string
}

func (s *stubPublisher) Publish(_ context.Context, exchange, routingKey string, body interface{}) error {
	s.routingKeys = append(s.routingKeys, routingKey)
	return nil
}

func activeStarterSub(userID string) *domain.Subscription {
	now := time.Now().UTC()
	return &domain.Subscription{
		ID:                   "sub-1",
		UserID:               userID,
		Plan:                 domain.PlanStarter,
		CreditsTotal:         10,
		CreditsUsed:          3,
		IsActive:             true,
		BillingCycle:         domain.BillingCycleMonthly,
		CycleStartDate:       now.AddDate(0, 0, -10),
		CycleEndDate:         now.AddDate(0, 0, 20),
		StripeCustomerID:     "cus_123",
		StripeSubscriptionID: "sub_stripe_123",
	}
}
