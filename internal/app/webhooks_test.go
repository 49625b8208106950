package app

import (
	"context"
	"errors"
	"testing"

	"github.com/reelforge/backend/internal/domain"
)

// stubInvoiceFetcher returns a canned invoice for the confirmation path.
type stubInvoiceFetcher struct {
	invoice *InvoicePaid
	err     error
}

func (s *stubInvoiceFetcher) GetInvoice(_ context.Context, invoiceID string) (*InvoicePaid, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.invoice, nil
}

func newTestWebhookService(repo *fakeRepo, fetcher InvoiceFetcher) (WebhookService, *stubPublisher) {
	publisher := &stubPublisher{}
	return NewWebhookService(repo, fetcher, publisher, testLogger()), publisher
}

func growthInvoice(paymentID, subscriptionID string) InvoicePaid {
	return InvoicePaid{
		Provider:       domain.ProviderStripe,
		PaymentID:      paymentID,
		CustomerID:     "cus_123",
		SubscriptionID: subscriptionID,
		PriceID:        "price_growth_m",
		Amount:         4900,
		Currency:       "usd",
	}
}

func TestInvoicePaidNewSubscriptionResetsUsage(t *testing.T) {
	sub := activeStarterSub("user-1")
	sub.StripeSubscriptionID = "" // no provider subscription bound yet
	repo := newFakeRepo(sub)
	svc, publisher := newTestWebhookService(repo, nil)

	if err := svc.HandleInvoicePaid(context.Background(), growthInvoice("in_1", "sub_stripe_new")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if repo.sub.Plan != domain.PlanGrowth {
		t.Fatalf("expected plan=growth, got %q", repo.sub.Plan)
	}
	if repo.sub.CreditsUsed != 0 {
		t.Fatalf("expected credits_used reset to 0, got %d", repo.sub.CreditsUsed)
	}
	if repo.sub.CreditsTotal != 50 {
		t.Fatalf("expected credits_total=50, got %d", repo.sub.CreditsTotal)
	}
	if repo.sub.StripeSubscriptionID != "sub_stripe_new" {
		t.Fatalf("expected provider subscription bound, got %q", repo.sub.StripeSubscriptionID)
	}
	if len(publisher.routingKeys) == 0 || publisher.routingKeys[0] != domain.EventPaymentSucceeded {
		t.Fatalf("expected %s event, got %v", domain.EventPaymentSucceeded, publisher.routingKeys)
	}
}

func TestInvoicePaidMidCycleUpgradePreservesUsage(t *testing.T) {
	repo := newFakeRepo(activeStarterSub("user-1"))
	svc, _ := newTestWebhookService(repo, nil)

	// Same provider subscription, different price: an upgrade, not a renewal.
	if err := svc.HandleInvoicePaid(context.Background(), growthInvoice("in_2", "sub_stripe_123")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if repo.sub.Plan != domain.PlanGrowth {
		t.Fatalf("expected plan=growth, got %q", repo.sub.Plan)
	}
	if repo.sub.CreditsUsed != 3 {
		t.Fatalf("expected credits_used preserved at 3, got %d", repo.sub.CreditsUsed)
	}
}

func TestInvoicePaidRenewalRollsCycle(t *testing.T) {
	repo := newFakeRepo(activeStarterSub("user-1"))
	svc, _ := newTestWebhookService(repo, nil)

	inv := growthInvoice("in_3", "sub_stripe_123")
	inv.PriceID = "price_starter_m"
	inv.Amount = 1900
	if err := svc.HandleInvoicePaid(context.Background(), inv); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if repo.sub.Plan != domain.PlanStarter {
		t.Fatalf("expected plan unchanged, got %q", repo.sub.Plan)
	}
	if repo.sub.CreditsUsed != 0 {
		t.Fatalf("expected credits_used reset on renewal, got %d", repo.sub.CreditsUsed)
	}
}

func TestInvoicePaidEarlyDowngradeClampsUsage(t *testing.T) {
	// A scheduled downgrade's first invoice at the cheaper price can land
	// before the cycle-reset job runs. The plan change must not leave usage
	// above the smaller allotment.
	sub := activeStarterSub("user-1")
	sub.Plan = domain.PlanGrowth
	sub.CreditsTotal = 50
	sub.CreditsUsed = 40
	pending := domain.PlanStarter
	sub.PendingDowngradePlan = &pending
	repo := newFakeRepo(sub)
	svc, _ := newTestWebhookService(repo, nil)

	inv := growthInvoice("in_early", "sub_stripe_123")
	inv.PriceID = "price_starter_m"
	inv.Amount = 1900
	if err := svc.HandleInvoicePaid(context.Background(), inv); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if repo.sub.Plan != domain.PlanStarter {
		t.Fatalf("expected plan=starter, got %q", repo.sub.Plan)
	}
	if repo.sub.CreditsTotal != 10 {
		t.Fatalf("expected credits_total=10, got %d", repo.sub.CreditsTotal)
	}
	if repo.sub.CreditsUsed != 10 {
		t.Fatalf("expected credits_used clamped to 10, got %d", repo.sub.CreditsUsed)
	}
	if repo.sub.PendingDowngradePlan != nil {
		t.Fatal("expected pending downgrade cleared")
	}
}

func TestInvoicePaidFlipsRetriedFailedPayment(t *testing.T) {
	repo := newFakeRepo(activeStarterSub("user-1"))
	svc, _ := newTestWebhookService(repo, nil)

	fail := InvoiceFailed{
		Provider:       domain.ProviderStripe,
		PaymentID:      "in_retry",
		CustomerID:     "cus_123",
		SubscriptionID: "sub_stripe_123",
		FailureReason:  "card_declined",
	}
	if err := svc.HandleInvoiceFailed(context.Background(), fail); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// The retried charge succeeds and redelivers the same invoice ID.
	inv := growthInvoice("in_retry", "sub_stripe_123")
	inv.PriceID = "price_starter_m"
	if err := svc.HandleInvoicePaid(context.Background(), inv); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(repo.payments) != 1 {
		t.Fatalf("expected a single ledger row, got %d", len(repo.payments))
	}
	if p := repo.payments["in_retry"]; p.Status != domain.PaymentStatusSucceeded {
		t.Fatalf("expected ledger row flipped to succeeded, got %q", p.Status)
	}
}

func TestInvoicePaidIsIdempotent(t *testing.T) {
	repo := newFakeRepo(activeStarterSub("user-1"))
	svc, _ := newTestWebhookService(repo, nil)

	inv := growthInvoice("in_dup", "sub_stripe_123")
	if err := svc.HandleInvoicePaid(context.Background(), inv); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := svc.HandleInvoicePaid(context.Background(), inv); err != nil {
		t.Fatalf("unexpected error on redelivery: %v", err)
	}

	if len(repo.payments) != 1 {
		t.Fatalf("expected a single ledger row, got %d", len(repo.payments))
	}
}

func TestInvoicePaidUnknownCustomer(t *testing.T) {
	repo := newFakeRepo(activeStarterSub("user-1"))
	svc, _ := newTestWebhookService(repo, nil)

	inv := growthInvoice("in_4", "sub_stripe_123")
	inv.CustomerID = "cus_unknown"
	err := svc.HandleInvoicePaid(context.Background(), inv)
	if !errors.Is(err, ErrUnmatchedWebhook) {
		t.Fatalf("expected ErrUnmatchedWebhook, got %v", err)
	}
}

func TestInvoiceFailedFlagsSubscription(t *testing.T) {
	repo := newFakeRepo(activeStarterSub("user-1"))
	svc, publisher := newTestWebhookService(repo, nil)

	err := svc.HandleInvoiceFailed(context.Background(), InvoiceFailed{
		Provider:       domain.ProviderStripe,
		PaymentID:      "in_fail",
		CustomerID:     "cus_123",
		SubscriptionID: "sub_stripe_123",
		Amount:         1900,
		Currency:       "usd",
		FailureReason:  "card_declined",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !repo.sub.PaymentFailed {
		t.Fatal("expected payment_failed flag set")
	}
	if repo.sub.IsActive != true {
		t.Fatal("expected subscription still active after a single failure")
	}
	if p, ok := repo.payments["in_fail"]; !ok || p.Status != domain.PaymentStatusFailed {
		t.Fatalf("expected failed ledger row, got %+v", repo.payments)
	}
	if len(publisher.routingKeys) == 0 || publisher.routingKeys[0] != domain.EventPaymentFailed {
		t.Fatalf("expected %s event, got %v", domain.EventPaymentFailed, publisher.routingKeys)
	}
}

func TestPaymentRefundedFlipsLedgerRow(t *testing.T) {
	repo := newFakeRepo(activeStarterSub("user-1"))
	svc, publisher := newTestWebhookService(repo, nil)

	if err := svc.HandleInvoicePaid(context.Background(), growthInvoice("in_ref", "sub_stripe_123")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := svc.HandlePaymentRefunded(context.Background(), domain.ProviderStripe, "in_ref"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if p := repo.payments["in_ref"]; p.Status != domain.PaymentStatusRefunded {
		t.Fatalf("expected ledger row refunded, got %q", p.Status)
	}
	last := publisher.routingKeys[len(publisher.routingKeys)-1]
	if last != domain.EventPaymentRefunded {
		t.Fatalf("expected %s event, got %v", domain.EventPaymentRefunded, publisher.routingKeys)
	}
	found := false
	for _, l := range repo.logs {
		if l.Event == domain.LogPaymentRefunded {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected refund log entry, got %+v", repo.logs)
	}

	// Redelivery is a no-op.
	if err := svc.HandlePaymentRefunded(context.Background(), domain.ProviderStripe, "in_ref"); err != nil {
		t.Fatalf("unexpected error on redelivery: %v", err)
	}
}

func TestPaymentRefundedUnknownCharge(t *testing.T) {
	repo := newFakeRepo(activeStarterSub("user-1"))
	svc, _ := newTestWebhookService(repo, nil)

	err := svc.HandlePaymentRefunded(context.Background(), domain.ProviderStripe, "in_ghost")
	if !errors.Is(err, ErrUnmatchedWebhook) {
		t.Fatalf("expected ErrUnmatchedWebhook, got %v", err)
	}
}

func TestSubscriptionDeletedRevertsToFree(t *testing.T) {
	repo := newFakeRepo(activeStarterSub("user-1"))
	svc, _ := newTestWebhookService(repo, nil)

	err := svc.HandleSubscriptionDeleted(context.Background(), domain.ProviderStripe, "cus_123", "sub_stripe_123")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if repo.sub.Plan != domain.PlanFree || repo.sub.IsActive {
		t.Fatalf("expected free/inactive, got %q active=%t", repo.sub.Plan, repo.sub.IsActive)
	}
	if repo.sub.CreditsTotal != 10 || repo.sub.CreditsUsed != 3 {
		t.Fatalf("expected credit counters preserved, got %d/%d", repo.sub.CreditsTotal, repo.sub.CreditsUsed)
	}
}

func TestPayPalActivationBindsSubscription(t *testing.T) {
	sub := activeStarterSub("user-1")
	sub.Plan = domain.PlanFree
	sub.CreditsTotal = 5
	sub.CreditsUsed = 2
	sub.StripeCustomerID = ""
	sub.StripeSubscriptionID = ""
	repo := newFakeRepo(sub)
	svc, _ := newTestWebhookService(repo, nil)

	err := svc.HandlePayPalSubscriptionActivated(context.Background(), "user-1", "I-NEW", "P-GROWTH-M")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if repo.sub.PayPalSubscriptionID != "I-NEW" {
		t.Fatalf("expected paypal subscription bound, got %q", repo.sub.PayPalSubscriptionID)
	}
	if repo.sub.Plan != domain.PlanGrowth || repo.sub.CreditsUsed != 0 {
		t.Fatalf("expected fresh growth cycle, got plan=%q used=%d", repo.sub.Plan, repo.sub.CreditsUsed)
	}
}

func TestConfirmStripePaymentRejectsForeignInvoice(t *testing.T) {
	repo := newFakeRepo(activeStarterSub("user-1"))
	inv := growthInvoice("in_confirm", "sub_stripe_123")
	svc, _ := newTestWebhookService(repo, &stubInvoiceFetcher{invoice: &inv})

	err := svc.ConfirmStripePayment(context.Background(), "user-2", "in_confirm")
	if !errors.Is(err, ErrPaymentMismatch) {
		t.Fatalf("expected ErrPaymentMismatch, got %v", err)
	}

	if err := svc.ConfirmStripePayment(context.Background(), "user-1", "in_confirm"); err != nil {
		t.Fatalf("unexpected error for owner: %v", err)
	}
	if len(repo.payments) != 1 {
		t.Fatalf("expected a single ledger row, got %d", len(repo.payments))
	}
}
