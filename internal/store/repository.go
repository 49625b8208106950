/**
 * @description
 * Data access layer for the backend. A single Repository wraps the pgx pool;
 * its methods are split across files by aggregate (users, subscriptions,
 * plans, payments, videos). All multi-step credit mutations are expressed as
 * single conditional UPDATE statements so concurrent requests cannot overdraw
 * a balance.
 */
package store

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Sentinel errors returned by repository methods.
var (
	ErrUserNotFound         = errors.New("user not found")
	ErrEmailTaken           = errors.New("email already registered")
	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrPlanNotFound         = errors.New("plan not found")
	ErrPaymentNotFound      = errors.New("payment not found")
	ErrVideoNotFound        = errors.New("video not found")
	ErrInsufficientCredits  = errors.New("credit limit reached")
)

// Repository handles database operations.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// prefixColumns qualifies a comma-separated column list with a table alias,
// for UPDATE ... FROM ... RETURNING clauses.
func prefixColumns(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, part := range parts {
		parts[i] = alias + "." + strings.TrimSpace(part)
	}
	return strings.Join(parts, ", ")
}
