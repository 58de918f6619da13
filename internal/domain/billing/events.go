package billing

import "github.com/openbilling/backend/internal/domain/shared"

const (
	AggregateTypeSubscription = "Subscription"
	AggregateTypeInvoice      = "Invoice"
)

// SubscriptionStatusChanged is raised on every subscription state transition
type SubscriptionStatusChanged struct {
	shared.BaseDomainEvent
	CustomerID string             `json:"customer_id"`
	From       SubscriptionStatus `json:"from"`
	To         SubscriptionStatus `json:"to"`
}

// NewSubscriptionStatusChanged creates a subscription status changed event
func NewSubscriptionStatusChanged(sub *Subscription, from, to SubscriptionStatus) *SubscriptionStatusChanged {
	return &SubscriptionStatusChanged{
		BaseDomainEvent: shared.NewBaseDomainEvent("subscription.status_changed", AggregateTypeSubscription, sub.ID),
		CustomerID:      sub.CustomerID.String(),
		From:            from,
		To:              to,
	}
}

// InvoiceStatusChanged is raised on every invoice state transition
type InvoiceStatusChanged struct {
	shared.BaseDomainEvent
	CustomerID string        `json:"customer_id"`
	From       InvoiceStatus `json:"from"`
	To         InvoiceStatus `json:"to"`
	TotalMinor int64         `json:"total_minor"`
}

// NewInvoiceStatusChanged creates an invoice status changed event
func NewInvoiceStatusChanged(inv *Invoice, from, to InvoiceStatus) *InvoiceStatusChanged {
	return &InvoiceStatusChanged{
		BaseDomainEvent: shared.NewBaseDomainEvent("invoice.status_changed", AggregateTypeInvoice, inv.ID),
		CustomerID:      inv.CustomerID.String(),
		From:            from,
		To:              to,
		TotalMinor:      inv.TotalMinor,
	}
}
