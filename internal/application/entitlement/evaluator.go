package entitlement

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/openbilling/backend/internal/domain/entitlement"
	"github.com/openbilling/backend/internal/domain/shared"
)

// Evaluator answers entitlement and usage-limit questions from current grant
// state. It never calls the payment provider: grants from canceled
// subscriptions are revoked by the reconciler before they reach this path, so
// reads here are safe on a hot path.
type Evaluator struct {
	grants entitlement.GrantRepository
	limits entitlement.UsageLimitRepository
	logger *zap.Logger
	now    func() time.Time
}

// EvaluatorConfig contains the collaborators of an Evaluator
type EvaluatorConfig struct {
	Grants entitlement.GrantRepository
	Limits entitlement.UsageLimitRepository
	Logger *zap.Logger

	// Now overrides the clock, for tests
	Now func() time.Time
}

// NewEvaluator creates a new Evaluator
func NewEvaluator(cfg EvaluatorConfig) *Evaluator {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Evaluator{
		grants: cfg.Grants,
		limits: cfg.Limits,
		logger: logger,
		now:    now,
	}
}

// HasEntitlement returns true if the customer holds any non-expired grant for
// the key. Multiple grants for the same key union: one live grant suffices.
func (e *Evaluator) HasEntitlement(ctx context.Context, customerID uuid.UUID, key string) (bool, error) {
	grants, err := e.grants.FindByCustomerAndKey(ctx, customerID, key)
	if err != nil {
		return false, fmt.Errorf("failed to load grants: %w", err)
	}
	now := e.now()
	for i := range grants {
		if !grants[i].IsExpired(now) {
			return true, nil
		}
	}
	return false, nil
}

// CheckLimit reports whether recording requestedAmount would stay within the
// customer's cap for limitKey. Caps of stacked records are summed, not maxed.
// Elapsed windows are reset lazily here and the reset is persisted; the check
// itself consumes nothing. Check-then-act races are the caller's to manage:
// recording is always a separate RecordUsage call.
func (e *Evaluator) CheckLimit(ctx context.Context, customerID uuid.UUID, limitKey string, requestedAmount int64) (entitlement.LimitCheckResult, error) {
	result := entitlement.LimitCheckResult{LimitKey: limitKey}
	if requestedAmount < 0 {
		return result, shared.NewDomainError("INVALID_AMOUNT", "Requested amount cannot be negative")
	}

	records, err := e.rolledRecords(ctx, customerID, limitKey)
	if err != nil {
		return result, err
	}
	if len(records) == 0 {
		return result, nil
	}

	var capSum, consumedSum int64
	unlimited := false
	for i := range records {
		if records[i].IsUnlimited() {
			unlimited = true
		}
		capSum += records[i].Cap
		consumedSum += records[i].Consumed
	}
	result.Consumed = consumedSum

	if unlimited {
		result.Allowed = true
		result.Cap = -1
		result.Remaining = -1
		return result, nil
	}

	result.Cap = capSum
	result.Allowed = consumedSum+requestedAmount <= capSum
	remaining := capSum - consumedSum
	if remaining < 0 {
		remaining = 0
	}
	result.Remaining = remaining
	return result, nil
}

// RecordUsage adds amount to the customer's consumption for limitKey as a
// single atomic increment delegated to storage. It performs no cap check;
// callers that need one call CheckLimit first.
func (e *Evaluator) RecordUsage(ctx context.Context, customerID uuid.UUID, limitKey string, amount int64) error {
	if amount <= 0 {
		return shared.NewDomainError("INVALID_AMOUNT", "Usage amount must be positive")
	}

	records, err := e.rolledRecords(ctx, customerID, limitKey)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return shared.ErrNotFound
	}

	// stacked records share a summed cap, so the increment lands on one
	// record; the oldest keeps attribution stable
	target := &records[0]
	for i := range records {
		if records[i].CreatedAt.Before(target.CreatedAt) {
			target = &records[i]
		}
	}
	if err := e.limits.IncrementConsumed(ctx, target.ID, amount); err != nil {
		return fmt.Errorf("failed to record usage: %w", err)
	}
	return nil
}

// rolledRecords loads the customer's limit records and persists any lazy
// window resets that are due.
func (e *Evaluator) rolledRecords(ctx context.Context, customerID uuid.UUID, limitKey string) ([]entitlement.UsageLimit, error) {
	records, err := e.limits.FindByCustomerAndKey(ctx, customerID, limitKey)
	if err != nil {
		return nil, fmt.Errorf("failed to load usage limits: %w", err)
	}
	now := e.now()
	for i := range records {
		if records[i].RollWindow(now) {
			if err := e.limits.Save(ctx, &records[i]); err != nil {
				return nil, fmt.Errorf("failed to persist window reset: %w", err)
			}
			e.logger.Debug("Usage window reset",
				zap.String("customer_id", customerID.String()),
				zap.String("limit_key", limitKey),
				zap.Time("period_start", records[i].PeriodStart))
		}
	}
	return records, nil
}
