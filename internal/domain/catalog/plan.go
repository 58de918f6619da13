package catalog

import (
	"strings"
	"time"

	"github.com/openbilling/backend/internal/domain/entitlement"
	"github.com/openbilling/backend/internal/domain/shared"
	"github.com/openbilling/backend/internal/domain/shared/valueobject"
)

// BillingInterval represents how often a plan bills
type BillingInterval string

const (
	IntervalDay   BillingInterval = "day"
	IntervalWeek  BillingInterval = "week"
	IntervalMonth BillingInterval = "month"
	IntervalYear  BillingInterval = "year"
)

// IsValid returns true if the billing interval is valid
func (i BillingInterval) IsValid() bool {
	switch i {
	case IntervalDay, IntervalWeek, IntervalMonth, IntervalYear:
		return true
	}
	return false
}

// LimitDefinition declares a usage limit a plan provisions on activation
type LimitDefinition struct {
	Key         string                  `json:"key"`
	Cap         int64                   `json:"cap"` // -1 = unlimited
	ResetPeriod entitlement.ResetPeriod `json:"reset_period"`
}

// Plan is a pricing definition. Plans referenced by a live subscription are
// immutable; Revise produces the next version as a new aggregate so existing
// subscriptions keep billing against the version they signed up for.
type Plan struct {
	shared.BaseAggregateRoot
	Code            string // stable identity across versions
	PlanVersion     int
	Name            string
	AmountMinor     int64 // price per interval in minor currency units
	Currency        valueobject.Currency
	Interval        BillingInterval
	TrialDays       int
	EntitlementKeys []string
	LimitDefs       []LimitDefinition
	Active          bool
}

// NewPlan creates version 1 of a plan
func NewPlan(code, name string, amountMinor int64, currency valueobject.Currency, interval BillingInterval) (*Plan, error) {
	if err := validatePlanCode(code); err != nil {
		return nil, err
	}
	if name == "" {
		return nil, shared.NewDomainError("INVALID_NAME", "Plan name cannot be empty")
	}
	if amountMinor < 0 {
		return nil, shared.NewDomainError("INVALID_AMOUNT", "Plan amount cannot be negative")
	}
	if currency == "" {
		return nil, shared.NewDomainError("INVALID_CURRENCY", "Plan currency cannot be empty")
	}
	if !interval.IsValid() {
		return nil, shared.NewDomainError("INVALID_INTERVAL", "Billing interval must be day, week, month, or year")
	}

	return &Plan{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		Code:              strings.ToLower(code),
		PlanVersion:       1,
		Name:              name,
		AmountMinor:       amountMinor,
		Currency:          currency,
		Interval:          interval,
		Active:            true,
	}, nil
}

// WithTrialDays sets a trial period on the plan
func (p *Plan) WithTrialDays(days int) *Plan {
	if days >= 0 {
		p.TrialDays = days
	}
	return p
}

// WithEntitlements sets the entitlement keys this plan grants
func (p *Plan) WithEntitlements(keys ...string) *Plan {
	p.EntitlementKeys = keys
	return p
}

// WithLimits sets the usage limit definitions this plan provisions
func (p *Plan) WithLimits(defs ...LimitDefinition) *Plan {
	p.LimitDefs = defs
	return p
}

// Revise creates the next version of this plan with new pricing. The current
// version is left untouched so live subscriptions keep their terms.
func (p *Plan) Revise(name string, amountMinor int64, currency valueobject.Currency, interval BillingInterval) (*Plan, error) {
	next, err := NewPlan(p.Code, name, amountMinor, currency, interval)
	if err != nil {
		return nil, err
	}
	next.PlanVersion = p.PlanVersion + 1
	next.TrialDays = p.TrialDays
	next.EntitlementKeys = append([]string(nil), p.EntitlementKeys...)
	next.LimitDefs = append([]LimitDefinition(nil), p.LimitDefs...)
	return next, nil
}

// Deactivate retires the plan from new signups. Existing subscriptions are
// unaffected.
func (p *Plan) Deactivate() {
	p.Active = false
	p.Touch()
	p.IncrementVersion()
}

// Amount returns the plan price as Money
func (p *Plan) Amount() valueobject.Money {
	m, _ := valueobject.NewMoneyFromMinorUnits(p.AmountMinor, p.Currency)
	return m
}

// HasTrial returns true if the plan starts with a trial period
func (p *Plan) HasTrial() bool {
	return p.TrialDays > 0
}

// PeriodEnd returns the end of a billing period starting at start
func (p *Plan) PeriodEnd(start time.Time) time.Time {
	switch p.Interval {
	case IntervalDay:
		return start.AddDate(0, 0, 1)
	case IntervalWeek:
		return start.AddDate(0, 0, 7)
	case IntervalMonth:
		return start.AddDate(0, 1, 0)
	default:
		return start.AddDate(1, 0, 0)
	}
}

func validatePlanCode(code string) error {
	if code == "" {
		return shared.NewDomainError("INVALID_CODE", "Plan code cannot be empty")
	}
	if len(code) > 50 {
		return shared.NewDomainError("INVALID_CODE", "Plan code cannot exceed 50 characters")
	}
	for _, r := range code {
		if !((r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' || r == '-') {
			return shared.NewDomainError("INVALID_CODE", "Plan code can only contain letters, numbers, underscores, and hyphens")
		}
	}
	return nil
}
