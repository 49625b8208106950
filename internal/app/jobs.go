/**
 * @description
 * Scheduled job implementations: credit-cycle resets (which also commit any
 * pending downgrade) and lapse handling for deferred cancellations. Each run
 * is guarded by a lease so concurrent scheduler instances skip rather than
 * double-process.
 */
package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/reelforge/backend/internal/domain"
	"github.com/reelforge/backend/internal/store"
)

// Lease lock keys, one per job.
const (
	lockKeyCycleReset = "scheduler:cycle_reset"
	lockKeyLapseCheck = "scheduler:lapse_check"
)

// JobsRepository defines the database operations the jobs need.
type JobsRepository interface {
	ResetDueCreditCycles(ctx context.Context, now time.Time) ([]store.CycleReset, error)
	LapseCanceledSubscriptions(ctx context.Context, now time.Time) ([]domain.Subscription, error)
	AppendSubscriptionLog(ctx context.Context, entry *domain.SubscriptionLog) error
}

// Locker is a lease lock preventing concurrent job runs across instances.
// A nil or unavailable locker fails open: the conditional SQL keeps the jobs
// safe to double-run, the lock just avoids wasted work.
type Locker interface {
	TryAcquire(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string)
}

// Jobs contains the logic for all scheduled tasks.
type Jobs struct {
	repo      JobsRepository
	publisher EventPublisher
	locker    Locker
	logger    *slog.Logger
	now       func() time.Time
}

// NewJobs creates a new Jobs runner. The clock is injected for tests.
func NewJobs(repo JobsRepository, publisher EventPublisher, locker Locker, logger *slog.Logger) *Jobs {
	return &Jobs{
		repo:      repo,
		publisher: publisher,
		locker:    locker,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// ResetCreditCycles rolls every expired 30-day credit window forward,
// applying pending downgrades at the boundary.
func (j *Jobs) ResetCreditCycles() {
	ctx := context.Background()
	if !j.acquire(ctx, lockKeyCycleReset) {
		return
	}
	defer j.release(ctx, lockKeyCycleReset)

	j.logger.Info("starting credit cycle reset job")
	now := j.now()

	resets, err := j.repo.ResetDueCreditCycles(ctx, now)
	if err != nil {
		j.logger.Error("failed to reset credit cycles", "error", err)
		return
	}
	if len(resets) == 0 {
		j.logger.Info("no credit cycles due for reset")
		return
	}

	for _, reset := range resets {
		sub := reset.Subscription
		j.logger.Info("credit cycle reset", "user_id", sub.UserID, "plan", sub.Plan, "credits_total", sub.CreditsTotal)

		if reset.PreviousPlan != sub.Plan {
			entry := &domain.SubscriptionLog{
				UserID:   sub.UserID,
				Event:    domain.LogDowngradeApplied,
				FromPlan: reset.PreviousPlan,
				ToPlan:   sub.Plan,
				Detail:   "applied at cycle boundary",
			}
			if err := j.repo.AppendSubscriptionLog(ctx, entry); err != nil {
				j.logger.Warn("failed to log applied downgrade", "user_id", sub.UserID, "error", err)
			}
			j.publish(ctx, domain.EventDowngradeApplied, sub, reset.PreviousPlan)
		}

		entry := &domain.SubscriptionLog{
			UserID: sub.UserID,
			Event:  domain.LogCreditCycleReset,
			ToPlan: sub.Plan,
			Detail: "cycle rolled forward",
		}
		if err := j.repo.AppendSubscriptionLog(ctx, entry); err != nil {
			j.logger.Warn("failed to log cycle reset", "user_id", sub.UserID, "error", err)
		}

		j.publish(ctx, domain.EventCreditCycleReset, sub, "")
	}

	j.logger.Info("credit cycle reset job finished", "count", len(resets))
}

// DeactivateLapsed reverts deferred-cancel subscriptions that have passed
// their period end back to the free plan.
func (j *Jobs) DeactivateLapsed() {
	ctx := context.Background()
	if !j.acquire(ctx, lockKeyLapseCheck) {
		return
	}
	defer j.release(ctx, lockKeyLapseCheck)

	j.logger.Info("starting lapse check job")
	now := j.now()

	subs, err := j.repo.LapseCanceledSubscriptions(ctx, now)
	if err != nil {
		j.logger.Error("failed to lapse canceled subscriptions", "error", err)
		return
	}

	for _, sub := range subs {
		j.logger.Info("subscription lapsed", "user_id", sub.UserID)

		entry := &domain.SubscriptionLog{
			UserID: sub.UserID,
			Event:  domain.LogSubscriptionLapsed,
			ToPlan: domain.PlanFree,
		}
		if err := j.repo.AppendSubscriptionLog(ctx, entry); err != nil {
			j.logger.Warn("failed to log lapse", "user_id", sub.UserID, "error", err)
		}

		j.publish(ctx, domain.EventSubscriptionCanceled, sub, "")
	}

	j.logger.Info("lapse check job finished", "count", len(subs))
}

func (j *Jobs) acquire(ctx context.Context, key string) bool {
	if j.locker == nil {
		return true
	}
	ok, err := j.locker.TryAcquire(ctx, key)
	if err != nil {
		// Fail open: the SQL is conditional, double-running is safe.
		j.logger.Warn("scheduler lock unavailable, running anyway", "key", key, "error", err)
		return true
	}
	if !ok {
		j.logger.Info("another scheduler instance holds the lock, skipping", "key", key)
	}
	return ok
}

func (j *Jobs) release(ctx context.Context, key string) {
	if j.locker != nil {
		j.locker.Release(ctx, key)
	}
}

func (j *Jobs) publish(ctx context.Context, routingKey string, sub domain.Subscription, previousPlan string) {
	if j.publisher == nil {
		return
	}
	payload := domain.SubscriptionEvent{
		UserID:       sub.UserID,
		Plan:         sub.Plan,
		PreviousPlan: previousPlan,
		BillingCycle: sub.BillingCycle,
		Provider:     sub.Provider(),
		Timestamp:    j.now(),
	}
	if err := j.publisher.Publish(ctx, domain.EventsExchange, routingKey, payload); err != nil {
		j.logger.Warn("failed to publish scheduler event", "routing_key", routingKey, "error", err)
	}
}
