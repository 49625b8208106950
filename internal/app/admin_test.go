package app

import (
	"context"
	"errors"
	"testing"

	"github.com/reelforge/backend/internal/domain"
	"github.com/reelforge/backend/internal/store"
)

type fakeAdminRepo struct {
	payment *domain.Payment
	logs    []domain.SubscriptionLog
}

func (f *fakeAdminRepo) CountUsers(_ context.Context) (int64, error)               { return 12, nil }
func (f *fakeAdminRepo) CountActiveSubscriptions(_ context.Context) (int64, error) { return 7, nil }
func (f *fakeAdminRepo) SumSucceededPayments(_ context.Context) (int64, error)     { return 34300, nil }

func (f *fakeAdminRepo) ListSubscriptions(_ context.Context, plan string, onlyActive bool, limit int) ([]domain.Subscription, error) {
	return nil, nil
}

func (f *fakeAdminRepo) GetPaymentByID(_ context.Context, id string) (*domain.Payment, error) {
	if f.payment == nil || f.payment.ID != id {
		return nil, store.ErrPaymentNotFound
	}
	return f.payment, nil
}

func (f *fakeAdminRepo) AppendSubscriptionLog(_ context.Context, entry *domain.SubscriptionLog) error {
	f.logs = append(f.logs, *entry)
	return nil
}

func TestAdminStats(t *testing.T) {
	svc := NewAdminService(&fakeAdminRepo{}, &stubStripe{}, testLogger())

	stats, err := svc.Stats(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.Users != 12 || stats.ActiveSubscriptions != 7 || stats.RevenueCents != 34300 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestRetryPayment(t *testing.T) {
	tests := []struct {
		name    string
		payment *domain.Payment
		want    error
	}{
		{
			name: "failed stripe payment retried",
			payment: &domain.Payment{
				ID:                "pay-1",
				UserID:            "user-1",
				Provider:          domain.ProviderStripe,
				ProviderPaymentID: "in_fail",
				Status:            domain.PaymentStatusFailed,
			},
		},
		{
			name: "succeeded payment is not retryable",
			payment: &domain.Payment{
				ID:       "pay-1",
				Provider: domain.ProviderStripe,
				Status:   domain.PaymentStatusSucceeded,
			},
			want: ErrPaymentNotRetryable,
		},
		{
			name: "paypal retry unsupported",
			payment: &domain.Payment{
				ID:       "pay-1",
				Provider: domain.ProviderPayPal,
				Status:   domain.PaymentStatusFailed,
			},
			want: ErrRetryUnsupported,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &fakeAdminRepo{payment: tt.payment}
			stripe := &stubStripe{}
			svc := NewAdminService(repo, stripe, testLogger())

			_, err := svc.RetryPayment(context.Background(), "pay-1")
			if tt.want != nil {
				if !errors.Is(err, tt.want) {
					t.Fatalf("expected %v, got %v", tt.want, err)
				}
				if stripe.paidInvoiceID != "" {
					t.Fatal("expected no provider call")
				}
				return
			}

			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if stripe.paidInvoiceID != "in_fail" {
				t.Fatalf("expected invoice in_fail paid, got %q", stripe.paidInvoiceID)
			}
			if len(repo.logs) != 1 || repo.logs[0].Event != domain.LogPaymentRetried {
				t.Fatalf("expected retry log entry, got %+v", repo.logs)
			}
		})
	}
}

func TestRetryPaymentNotFound(t *testing.T) {
	svc := NewAdminService(&fakeAdminRepo{}, &stubStripe{}, testLogger())
	_, err := svc.RetryPayment(context.Background(), "ghost")
	if !errors.Is(err, store.ErrPaymentNotFound) {
		t.Fatalf("expected ErrPaymentNotFound, got %v", err)
	}
}
