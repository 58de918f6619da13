package entitlement

import (
	"time"

	"github.com/google/uuid"
	"github.com/openbilling/backend/internal/domain/shared"
)

// ResetPeriod defines when a usage limit's consumption resets
type ResetPeriod string

const (
	ResetPeriodDaily   ResetPeriod = "daily"
	ResetPeriodWeekly  ResetPeriod = "weekly"
	ResetPeriodMonthly ResetPeriod = "monthly"
	ResetPeriodYearly  ResetPeriod = "yearly"
	ResetPeriodNever   ResetPeriod = "never"
)

// IsValid returns true if the reset period is valid
func (p ResetPeriod) IsValid() bool {
	switch p {
	case ResetPeriodDaily, ResetPeriodWeekly, ResetPeriodMonthly, ResetPeriodYearly, ResetPeriodNever:
		return true
	}
	return false
}

// NextBoundary returns the first period boundary strictly after start
func (p ResetPeriod) NextBoundary(start time.Time) time.Time {
	switch p {
	case ResetPeriodDaily:
		return start.AddDate(0, 0, 1)
	case ResetPeriodWeekly:
		return start.AddDate(0, 0, 7)
	case ResetPeriodMonthly:
		return start.AddDate(0, 1, 0)
	case ResetPeriodYearly:
		return start.AddDate(1, 0, 0)
	default:
		// never resets
		return time.Date(9999, 1, 1, 0, 0, 0, 0, time.UTC)
	}
}

// CurrentWindowStart walks forward from the anchor to the start of the window
// containing now. The anchor is the grant's activation date, so windows align
// to activation rather than calendar boundaries.
func (p ResetPeriod) CurrentWindowStart(anchor, now time.Time) time.Time {
	if p == ResetPeriodNever || !anchor.Before(now) {
		return anchor
	}
	start := anchor
	for {
		next := p.NextBoundary(start)
		if next.After(now) {
			return start
		}
		start = next
	}
}

// UsageLimit tracks consumption of one metered resource for one customer.
// Consumed resets to zero at each window boundary; the reset is applied
// lazily on read, never by a background job.
type UsageLimit struct {
	shared.BaseAggregateRoot
	CustomerID  uuid.UUID
	LimitKey    string
	Cap         int64 // maximum allowed per window; -1 = unlimited
	Consumed    int64
	ResetPeriod ResetPeriod
	PeriodStart time.Time // start of the window Consumed belongs to
	SourceID    string    // grant or subscription that provisioned this limit
}

// NewUsageLimit creates a new usage limit record anchored at activatedAt
func NewUsageLimit(customerID uuid.UUID, limitKey string, cap int64, resetPeriod ResetPeriod, activatedAt time.Time, sourceID string) (*UsageLimit, error) {
	if customerID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_CUSTOMER", "Customer ID cannot be empty")
	}
	if limitKey == "" {
		return nil, shared.NewDomainError("INVALID_KEY", "Limit key cannot be empty")
	}
	if cap < -1 {
		return nil, shared.NewDomainError("INVALID_CAP", "Cap must be -1 (unlimited) or non-negative")
	}
	if !resetPeriod.IsValid() {
		return nil, shared.NewDomainError("INVALID_RESET_PERIOD", "Invalid reset period")
	}

	return &UsageLimit{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		CustomerID:        customerID,
		LimitKey:          limitKey,
		Cap:               cap,
		ResetPeriod:       resetPeriod,
		PeriodStart:       activatedAt,
		SourceID:          sourceID,
	}, nil
}

// IsUnlimited returns true if the limit has no cap
func (l *UsageLimit) IsUnlimited() bool {
	return l.Cap == -1
}

// RollWindow resets Consumed when the stored window has elapsed. Returns true
// if a reset happened. The cap resets exactly once per elapsed period: the new
// window start is computed from the original anchor, never from now.
func (l *UsageLimit) RollWindow(now time.Time) bool {
	if l.ResetPeriod == ResetPeriodNever {
		return false
	}
	boundary := l.ResetPeriod.NextBoundary(l.PeriodStart)
	if boundary.After(now) {
		return false
	}
	l.PeriodStart = l.ResetPeriod.CurrentWindowStart(l.PeriodStart, now)
	l.Consumed = 0
	l.Touch()
	l.IncrementVersion()
	return true
}

// Record adds to the consumed amount
func (l *UsageLimit) Record(amount int64) error {
	if amount <= 0 {
		return shared.NewDomainError("INVALID_AMOUNT", "Usage amount must be positive")
	}
	l.Consumed += amount
	l.Touch()
	l.IncrementVersion()
	return nil
}

// LimitCheckResult is the outcome of a limit check
type LimitCheckResult struct {
	Allowed   bool
	LimitKey  string
	Consumed  int64
	Cap       int64 // summed across stacked grants; -1 = unlimited
	Remaining int64 // -1 when unlimited
}
