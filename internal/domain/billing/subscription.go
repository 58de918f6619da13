package billing

import (
	"time"

	"github.com/google/uuid"
	"github.com/openbilling/backend/internal/domain/shared"
)

// SubscriptionStatus represents the lifecycle state of a subscription
type SubscriptionStatus string

const (
	SubscriptionTrialing SubscriptionStatus = "trialing"
	SubscriptionActive   SubscriptionStatus = "active"
	SubscriptionPastDue  SubscriptionStatus = "past_due"
	SubscriptionCanceled SubscriptionStatus = "canceled"
	SubscriptionUnpaid   SubscriptionStatus = "unpaid"
)

// IsValid returns true if the status is a known subscription status
func (s SubscriptionStatus) IsValid() bool {
	switch s {
	case SubscriptionTrialing, SubscriptionActive, SubscriptionPastDue, SubscriptionCanceled, SubscriptionUnpaid:
		return true
	}
	return false
}

// IsTerminal returns true if no event can move the subscription out of this
// status. Reactivation after cancel requires a new subscription.
func (s SubscriptionStatus) IsTerminal() bool {
	return s == SubscriptionCanceled
}

// Subscription links a customer to a plan version and tracks its billing
// lifecycle. Status transitions happen only through reconciled provider
// events or an explicit cancel call; LastSequence records the highest
// provider sequence number applied so stale replays can be rejected.
type Subscription struct {
	shared.BaseAggregateRoot
	CustomerID             uuid.UUID
	PlanID                 uuid.UUID
	Quantity               int64
	Status                 SubscriptionStatus
	CurrentPeriodStart     time.Time
	CurrentPeriodEnd       time.Time
	CancelAtPeriodEnd      bool
	CanceledAt             *time.Time
	TrialEnd               *time.Time
	Provider               string
	ProviderSubscriptionID string
	LastSequence           int64
	Livemode               bool

	// set by AdvanceSequence; lets the persistence layer gate conditional
	// writes on the sequence the aggregate was loaded with
	priorSequence    int64
	sequenceAdvanced bool
}

// NewSubscription creates a subscription in its initial state. Subscriptions
// with a trial start trialing, otherwise active.
func NewSubscription(customerID, planID uuid.UUID, periodStart, periodEnd time.Time, trialEnd *time.Time, livemode bool) (*Subscription, error) {
	if customerID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_CUSTOMER", "Subscription requires a customer")
	}
	if planID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_PLAN", "Subscription requires a plan")
	}
	if !periodEnd.After(periodStart) {
		return nil, shared.ErrInvalidPeriod
	}

	status := SubscriptionActive
	if trialEnd != nil && trialEnd.After(periodStart) {
		status = SubscriptionTrialing
	}

	sub := &Subscription{
		BaseAggregateRoot:  shared.NewBaseAggregateRoot(),
		CustomerID:         customerID,
		PlanID:             planID,
		Quantity:           1,
		Status:             status,
		CurrentPeriodStart: periodStart,
		CurrentPeriodEnd:   periodEnd,
		TrialEnd:           trialEnd,
		Livemode:           livemode,
	}
	sub.AddDomainEvent(NewSubscriptionStatusChanged(sub, "", status))
	return sub, nil
}

// WithQuantity sets the number of plan units billed per period
func (s *Subscription) WithQuantity(qty int64) *Subscription {
	if qty > 0 {
		s.Quantity = qty
	}
	return s
}

// SetProviderSubscriptionID links the subscription to its provider-side id
func (s *Subscription) SetProviderSubscriptionID(provider, id string) {
	s.Provider = provider
	s.ProviderSubscriptionID = id
	s.Touch()
}

// CanTransitionTo reports whether the state machine allows moving to the
// target status from the current one.
func (s *Subscription) CanTransitionTo(target SubscriptionStatus) bool {
	if s.Status.IsTerminal() {
		return false
	}
	switch target {
	case SubscriptionActive:
		// trialing -> active on first payment, past_due -> active on recovery
		return s.Status == SubscriptionTrialing || s.Status == SubscriptionPastDue || s.Status == SubscriptionActive
	case SubscriptionPastDue:
		return s.Status == SubscriptionActive
	case SubscriptionUnpaid:
		return s.Status == SubscriptionPastDue
	case SubscriptionCanceled:
		return true
	}
	return false
}

// Activate moves the subscription to active. Valid from trialing (first
// invoice paid) and past_due (payment recovered); a no-op when already active.
func (s *Subscription) Activate() error {
	if s.Status == SubscriptionActive {
		return nil
	}
	return s.transition(SubscriptionActive)
}

// MarkPastDue records a failed payment on an active subscription
func (s *Subscription) MarkPastDue() error {
	return s.transition(SubscriptionPastDue)
}

// MarkUnpaid records exhausted payment retries on a past_due subscription
func (s *Subscription) MarkUnpaid() error {
	return s.transition(SubscriptionUnpaid)
}

// Cancel moves the subscription to its terminal canceled state
func (s *Subscription) Cancel(at time.Time) error {
	if err := s.transition(SubscriptionCanceled); err != nil {
		return err
	}
	s.CanceledAt = &at
	return nil
}

// RequestCancelAtPeriodEnd flags the subscription for cancellation when the
// current period elapses. The actual transition happens via MaybeExpire or a
// provider cancellation event.
func (s *Subscription) RequestCancelAtPeriodEnd() error {
	if s.Status.IsTerminal() {
		return shared.ErrSubscriptionTerminal
	}
	s.CancelAtPeriodEnd = true
	s.Touch()
	s.IncrementVersion()
	return nil
}

// MaybeExpire cancels a subscription flagged cancel-at-period-end once its
// period has elapsed. Returns true if a transition happened.
func (s *Subscription) MaybeExpire(now time.Time) (bool, error) {
	if !s.CancelAtPeriodEnd || s.Status.IsTerminal() {
		return false, nil
	}
	if now.Before(s.CurrentPeriodEnd) {
		return false, nil
	}
	if s.Status != SubscriptionTrialing && s.Status != SubscriptionActive {
		return false, nil
	}
	if err := s.Cancel(s.CurrentPeriodEnd); err != nil {
		return false, err
	}
	return true, nil
}

// RenewPeriod advances the billing period after a successful renewal charge
func (s *Subscription) RenewPeriod(start, end time.Time) error {
	if !end.After(start) {
		return shared.ErrInvalidPeriod
	}
	s.CurrentPeriodStart = start
	s.CurrentPeriodEnd = end
	s.Touch()
	s.IncrementVersion()
	return nil
}

// AdvanceSequence records a provider sequence number as applied. The sequence
// must be strictly greater than the last applied one; anything else is a
// stale replay and is rejected.
func (s *Subscription) AdvanceSequence(seq int64) error {
	if seq <= s.LastSequence {
		return shared.ErrInvalidState
	}
	s.priorSequence = s.LastSequence
	s.sequenceAdvanced = true
	s.LastSequence = seq
	return nil
}

// PriorSequence returns the sequence held before AdvanceSequence ran on this
// instance, and whether it ran at all. Saves that never advanced the sequence
// are not sequence-gated.
func (s *Subscription) PriorSequence() (int64, bool) {
	return s.priorSequence, s.sequenceAdvanced
}

// IsStaleSequence reports whether an incoming sequence would regress state
func (s *Subscription) IsStaleSequence(seq int64) bool {
	return seq <= s.LastSequence
}

// InTrial returns true while the subscription is trialing
func (s *Subscription) InTrial() bool {
	return s.Status == SubscriptionTrialing
}

func (s *Subscription) transition(target SubscriptionStatus) error {
	if s.Status.IsTerminal() {
		return shared.ErrSubscriptionTerminal
	}
	if !s.CanTransitionTo(target) {
		return shared.ErrInvalidState
	}
	from := s.Status
	s.Status = target
	s.Touch()
	s.IncrementVersion()
	s.AddDomainEvent(NewSubscriptionStatusChanged(s, from, target))
	return nil
}
