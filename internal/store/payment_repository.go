/**
 * @description
 * Payment ledger and subscription audit log persistence. Payment inserts are
 * idempotent on the provider's payment/invoice ID: the webhook handler and
 * the direct confirmation path can both record the same charge and only one
 * ledger row results.
 */
package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/reelforge/backend/internal/domain"
)

const paymentColumns = `
	id, user_id, provider, provider_payment_id, provider_subscription_id,
	amount, currency, plan, billing_cycle, status, description, receipt_url, created_at`

func scanPayment(row pgx.Row) (*domain.Payment, error) {
	var p domain.Payment
	err := row.Scan(
		&p.ID, &p.UserID, &p.Provider, &p.ProviderPaymentID, &p.ProviderSubscriptionID,
		&p.Amount, &p.Currency, &p.Plan, &p.BillingCycle, &p.Status, &p.Description,
		&p.ReceiptURL, &p.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	return &p, nil
}

// RecordPayment appends a ledger row. Returns (payment, true) when a new row
// was written, (existing, false) when the provider payment ID was already
// recorded.
func (r *Repository) RecordPayment(ctx context.Context, p *domain.Payment) (*domain.Payment, bool, error) {
	query := `
        INSERT INTO payments (user_id, provider, provider_payment_id, provider_subscription_id,
                              amount, currency, plan, billing_cycle, status, description, receipt_url)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
        ON CONFLICT (provider_payment_id) DO NOTHING
        RETURNING ` + paymentColumns
	created, err := scanPayment(r.db.QueryRow(ctx, query,
		p.UserID, p.Provider, p.ProviderPaymentID, p.ProviderSubscriptionID,
		p.Amount, p.Currency, p.Plan, p.BillingCycle, p.Status, p.Description, p.ReceiptURL,
	))
	if err != nil {
		if !errors.Is(err, ErrPaymentNotFound) {
			return nil, false, err
		}
		// Conflict: the charge was already recorded by the other write path.
		existing, getErr := r.GetPaymentByProviderPaymentID(ctx, p.ProviderPaymentID)
		if getErr != nil {
			return nil, false, getErr
		}
		return existing, false, nil
	}
	return created, true, nil
}

// GetPaymentByID retrieves a payment by its internal ID.
func (r *Repository) GetPaymentByID(ctx context.Context, id string) (*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1`
	return scanPayment(r.db.QueryRow(ctx, query, id))
}

// GetPaymentByProviderPaymentID retrieves a payment by the provider's reference.
func (r *Repository) GetPaymentByProviderPaymentID(ctx context.Context, providerPaymentID string) (*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE provider_payment_id = $1`
	return scanPayment(r.db.QueryRow(ctx, query, providerPaymentID))
}

// ListPaymentsByUserID returns a user's ledger rows, newest first.
func (r *Repository) ListPaymentsByUserID(ctx context.Context, userID string, limit int) ([]domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`
	rows, err := r.db.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []domain.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, *p)
	}
	return payments, rows.Err()
}

// SumSucceededPayments returns the total volume of successful charges, in cents.
func (r *Repository) SumSucceededPayments(ctx context.Context) (int64, error) {
	var total int64
	err := r.db.QueryRow(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM payments WHERE status = 'succeeded'`).Scan(&total)
	return total, err
}

// MarkPaymentStatus updates a ledger row's status (admin retry outcomes).
func (r *Repository) MarkPaymentStatus(ctx context.Context, id, status string) error {
	tag, err := r.db.Exec(ctx, `UPDATE payments SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrPaymentNotFound
	}
	return nil
}

// AppendSubscriptionLog writes an audit trail entry.
func (r *Repository) AppendSubscriptionLog(ctx context.Context, entry *domain.SubscriptionLog) error {
	_, err := r.db.Exec(ctx, `
        INSERT INTO subscription_logs (user_id, event, from_plan, to_plan, provider, detail)
        VALUES ($1, $2, $3, $4, $5, $6)`,
		entry.UserID, entry.Event, entry.FromPlan, entry.ToPlan, entry.Provider, entry.Detail)
	return err
}

// ListSubscriptionLogs returns recent audit entries for a user.
func (r *Repository) ListSubscriptionLogs(ctx context.Context, userID string, limit int) ([]domain.SubscriptionLog, error) {
	query := `
        SELECT id, user_id, event, from_plan, to_plan, provider, detail, created_at
        FROM subscription_logs
        WHERE user_id = $1
        ORDER BY created_at DESC
        LIMIT $2`
	rows, err := r.db.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []domain.SubscriptionLog
	for rows.Next() {
		var l domain.SubscriptionLog
		if err := rows.Scan(&l.ID, &l.UserID, &l.Event, &l.FromPlan, &l.ToPlan, &l.Provider, &l.Detail, &l.CreatedAt); err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}
