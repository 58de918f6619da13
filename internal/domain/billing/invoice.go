package billing

import (
	"time"

	"github.com/google/uuid"
	"github.com/openbilling/backend/internal/domain/shared"
	"github.com/openbilling/backend/internal/domain/shared/valueobject"
)

// InvoiceStatus represents the lifecycle state of an invoice
type InvoiceStatus string

const (
	InvoiceDraft         InvoiceStatus = "draft"
	InvoiceOpen          InvoiceStatus = "open"
	InvoicePaid          InvoiceStatus = "paid"
	InvoiceVoid          InvoiceStatus = "void"
	InvoiceUncollectible InvoiceStatus = "uncollectible"
)

// IsTerminal returns true if the invoice can no longer change status
func (s InvoiceStatus) IsTerminal() bool {
	switch s {
	case InvoicePaid, InvoiceVoid, InvoiceUncollectible:
		return true
	}
	return false
}

// LineItem is a single charge or credit on an invoice. Amounts are minor
// currency units; credits carry a negative amount.
type LineItem struct {
	Description string `json:"description"`
	Quantity    int64  `json:"quantity"`
	AmountMinor int64  `json:"amount_minor"`
}

// Invoice is a billing-period statement mirroring a provider-side invoice.
// Status changes only through reconciled payment events; LastSequence gates
// stale replays the same way Subscription does.
type Invoice struct {
	shared.BaseAggregateRoot
	SubscriptionID    *uuid.UUID // nil for one-time payments
	CustomerID        uuid.UUID
	Status            InvoiceStatus
	Lines             []LineItem
	SubtotalMinor     int64
	DiscountMinor     int64
	TotalMinor        int64
	Currency          valueobject.Currency
	PeriodStart       time.Time
	PeriodEnd         time.Time
	Provider          string
	ProviderInvoiceID string
	PromoCode         string
	PaidAt            *time.Time
	LastSequence      int64
	Livemode          bool
}

// NewInvoice creates a draft invoice for a billing period
func NewInvoice(customerID uuid.UUID, subscriptionID *uuid.UUID, currency valueobject.Currency, periodStart, periodEnd time.Time, livemode bool) (*Invoice, error) {
	if customerID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_CUSTOMER", "Invoice requires a customer")
	}
	if currency == "" {
		return nil, shared.NewDomainError("INVALID_CURRENCY", "Invoice requires a currency")
	}
	if !periodEnd.After(periodStart) {
		return nil, shared.ErrInvalidPeriod
	}
	return &Invoice{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		CustomerID:        customerID,
		SubscriptionID:    subscriptionID,
		Status:            InvoiceDraft,
		Currency:          currency,
		PeriodStart:       periodStart,
		PeriodEnd:         periodEnd,
		Livemode:          livemode,
	}, nil
}

// SetProviderInvoiceID links the invoice to its provider-side id
func (i *Invoice) SetProviderInvoiceID(provider, id string) {
	i.Provider = provider
	i.ProviderInvoiceID = id
	i.Touch()
}

// AddLine appends a line item and recomputes totals
func (i *Invoice) AddLine(description string, quantity, amountMinor int64) error {
	if i.Status != InvoiceDraft {
		return shared.ErrInvalidState
	}
	if quantity <= 0 {
		return shared.NewDomainError("INVALID_QUANTITY", "Line quantity must be positive")
	}
	i.Lines = append(i.Lines, LineItem{Description: description, Quantity: quantity, AmountMinor: amountMinor})
	i.recompute()
	return nil
}

// ApplyDiscount records a discount against the subtotal. The discount never
// pushes the total below zero.
func (i *Invoice) ApplyDiscount(promoCode string, discountMinor int64) error {
	if i.Status != InvoiceDraft {
		return shared.ErrInvalidState
	}
	if discountMinor < 0 {
		return shared.NewDomainError("INVALID_DISCOUNT", "Discount cannot be negative")
	}
	i.PromoCode = promoCode
	i.DiscountMinor = discountMinor
	i.recompute()
	return nil
}

// Finalize moves a draft invoice to open, ready for payment
func (i *Invoice) Finalize() error {
	if i.Status != InvoiceDraft {
		return shared.ErrInvalidState
	}
	i.setStatus(InvoiceOpen)
	return nil
}

// MarkPaid records a confirmed payment. Valid from open or draft (providers
// can report a paid invoice the engine never saw as open).
func (i *Invoice) MarkPaid(at time.Time) error {
	if i.Status.IsTerminal() {
		return shared.ErrInvalidState
	}
	i.setStatus(InvoicePaid)
	i.PaidAt = &at
	return nil
}

// MarkUncollectible records that payment retries were exhausted
func (i *Invoice) MarkUncollectible() error {
	if i.Status.IsTerminal() {
		return shared.ErrInvalidState
	}
	i.setStatus(InvoiceUncollectible)
	return nil
}

// Void cancels an unpaid invoice
func (i *Invoice) Void() error {
	if i.Status.IsTerminal() {
		return shared.ErrInvalidState
	}
	i.setStatus(InvoiceVoid)
	return nil
}

// AdvanceSequence records a provider sequence number as applied
func (i *Invoice) AdvanceSequence(seq int64) error {
	if seq <= i.LastSequence {
		return shared.ErrInvalidState
	}
	i.LastSequence = seq
	return nil
}

// IsStaleSequence reports whether an incoming sequence would regress state
func (i *Invoice) IsStaleSequence(seq int64) bool {
	return seq <= i.LastSequence
}

// Total returns the invoice total as Money
func (i *Invoice) Total() valueobject.Money {
	m, _ := valueobject.NewMoneyFromMinorUnits(i.TotalMinor, i.Currency)
	return m
}

func (i *Invoice) recompute() {
	var subtotal int64
	for _, line := range i.Lines {
		subtotal += line.AmountMinor * line.Quantity
	}
	i.SubtotalMinor = subtotal
	total := subtotal - i.DiscountMinor
	if total < 0 {
		total = 0
	}
	i.TotalMinor = total
	i.Touch()
}

func (i *Invoice) setStatus(status InvoiceStatus) {
	from := i.Status
	i.Status = status
	i.Touch()
	i.IncrementVersion()
	i.AddDomainEvent(NewInvoiceStatusChanged(i, from, status))
}
