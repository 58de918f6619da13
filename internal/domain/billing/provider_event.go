package billing

import (
	"time"

	"github.com/openbilling/backend/internal/domain/shared"
	"github.com/openbilling/backend/internal/domain/shared/valueobject"
)

// ProviderEventType tags the kind of provider event being reconciled
type ProviderEventType string

const (
	EventSubscriptionCreated  ProviderEventType = "subscription.created"
	EventSubscriptionUpdated  ProviderEventType = "subscription.updated"
	EventSubscriptionCanceled ProviderEventType = "subscription.canceled"
	EventInvoicePaid          ProviderEventType = "invoice.paid"
	EventInvoicePaymentFailed ProviderEventType = "invoice.payment_failed"
	EventRetriesExhausted     ProviderEventType = "invoice.retries_exhausted"
)

// EventPayload is the closed set of provider event payloads. Payment adapters
// validate and translate raw provider payloads into one of these variants
// before anything reaches the reconciler, so the reconciler's switch over
// payload types is exhaustive.
type EventPayload interface {
	eventType() ProviderEventType
}

// SubscriptionCreatedPayload announces a new provider-side subscription
type SubscriptionCreatedPayload struct {
	ProviderSubscriptionID string
	ProviderCustomerID     string
	PlanCode               string
	PlanVersion            int
	PeriodStart            time.Time
	PeriodEnd              time.Time
	TrialEnd               *time.Time
	CancelAtPeriodEnd      bool
}

func (SubscriptionCreatedPayload) eventType() ProviderEventType { return EventSubscriptionCreated }

// SubscriptionUpdatedPayload carries partial updates to a subscription.
// Nil pointer fields mean "unchanged".
type SubscriptionUpdatedPayload struct {
	ProviderSubscriptionID string
	CancelAtPeriodEnd      *bool
	PeriodStart            *time.Time
	PeriodEnd              *time.Time
}

func (SubscriptionUpdatedPayload) eventType() ProviderEventType { return EventSubscriptionUpdated }

// SubscriptionCanceledPayload announces a provider-side cancellation
type SubscriptionCanceledPayload struct {
	ProviderSubscriptionID string
	CanceledAt             time.Time
}

func (SubscriptionCanceledPayload) eventType() ProviderEventType { return EventSubscriptionCanceled }

// InvoicePaidPayload confirms payment of a billing-period invoice
type InvoicePaidPayload struct {
	ProviderInvoiceID      string
	ProviderSubscriptionID string
	AmountMinor            int64
	Currency               valueobject.Currency
	PaidAt                 time.Time
	PeriodStart            time.Time
	PeriodEnd              time.Time
	PromoCode              string
}

func (InvoicePaidPayload) eventType() ProviderEventType { return EventInvoicePaid }

// InvoicePaymentFailedPayload records a failed payment attempt
type InvoicePaymentFailedPayload struct {
	ProviderInvoiceID      string
	ProviderSubscriptionID string
	AttemptCount           int
	NextRetryAt            *time.Time
}

func (InvoicePaymentFailedPayload) eventType() ProviderEventType { return EventInvoicePaymentFailed }

// RetriesExhaustedPayload records that the provider gave up retrying payment
type RetriesExhaustedPayload struct {
	ProviderInvoiceID      string
	ProviderSubscriptionID string
}

func (RetriesExhaustedPayload) eventType() ProviderEventType { return EventRetriesExhausted }

// ProviderEvent is a validated, provider-agnostic event handed to the
// reconciler. ProviderEventID is the provider's unique event id and drives
// idempotency; Sequence is the provider's monotonic version counter for the
// target entity and drives ordering.
type ProviderEvent struct {
	ProviderEventID string
	Provider        string
	Type            ProviderEventType
	Sequence        int64
	OccurredAt      time.Time
	Livemode        bool
	Payload         EventPayload
}

// NewProviderEvent builds a validated provider event. The payload variant
// must match the declared type tag.
func NewProviderEvent(providerEventID, provider string, seq int64, occurredAt time.Time, livemode bool, payload EventPayload) (*ProviderEvent, error) {
	if providerEventID == "" {
		return nil, shared.NewDomainError("INVALID_EVENT", "Provider event id cannot be empty")
	}
	if provider == "" {
		return nil, shared.NewDomainError("INVALID_EVENT", "Provider name cannot be empty")
	}
	if payload == nil {
		return nil, shared.NewDomainError("INVALID_EVENT", "Provider event requires a payload")
	}
	if seq <= 0 {
		return nil, shared.NewDomainError("INVALID_EVENT", "Provider event sequence must be positive")
	}
	return &ProviderEvent{
		ProviderEventID: providerEventID,
		Provider:        provider,
		Type:            payload.eventType(),
		Sequence:        seq,
		OccurredAt:      occurredAt,
		Livemode:        livemode,
		Payload:         payload,
	}, nil
}

// TargetSubscriptionID returns the provider-side subscription id the event
// targets, empty for events with no subscription target.
func (e *ProviderEvent) TargetSubscriptionID() string {
	switch p := e.Payload.(type) {
	case SubscriptionCreatedPayload:
		return p.ProviderSubscriptionID
	case SubscriptionUpdatedPayload:
		return p.ProviderSubscriptionID
	case SubscriptionCanceledPayload:
		return p.ProviderSubscriptionID
	case InvoicePaidPayload:
		return p.ProviderSubscriptionID
	case InvoicePaymentFailedPayload:
		return p.ProviderSubscriptionID
	case RetriesExhaustedPayload:
		return p.ProviderSubscriptionID
	}
	return ""
}
