package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/openbilling/backend/internal/domain/shared"
)

// SubscriptionRepository defines the interface for subscription persistence.
// Save must be a conditional write keyed on LastSequence so concurrent
// reconciliation attempts for the same subscription cannot race past the
// sequence check; a lost write surfaces as ErrStorageConflict.
type SubscriptionRepository interface {
	// FindByID finds a subscription by its ID
	FindByID(ctx context.Context, id uuid.UUID) (*Subscription, error)

	// FindByProviderSubscriptionID finds a subscription by its provider-side id
	FindByProviderSubscriptionID(ctx context.Context, provider, providerSubscriptionID string) (*Subscription, error)

	// FindByCustomer finds all subscriptions of a customer
	FindByCustomer(ctx context.Context, customerID uuid.UUID, filter shared.Filter) ([]Subscription, error)

	// FindDueCancellations finds subscriptions flagged cancel-at-period-end
	// whose current period elapsed at or before now
	FindDueCancellations(ctx context.Context, now time.Time, limit int) ([]Subscription, error)

	// Save creates or conditionally updates a subscription
	Save(ctx context.Context, sub *Subscription) error

	// ExistsByPlan reports whether any subscription references the plan
	ExistsByPlan(ctx context.Context, planID uuid.UUID) (bool, error)
}

// InvoiceRepository defines the interface for invoice persistence
type InvoiceRepository interface {
	// FindByID finds an invoice by its ID
	FindByID(ctx context.Context, id uuid.UUID) (*Invoice, error)

	// FindByProviderInvoiceID finds an invoice by its provider-side id
	FindByProviderInvoiceID(ctx context.Context, provider, providerInvoiceID string) (*Invoice, error)

	// FindBySubscription finds all invoices of a subscription
	FindBySubscription(ctx context.Context, subscriptionID uuid.UUID) ([]Invoice, error)

	// Save creates or conditionally updates an invoice
	Save(ctx context.Context, inv *Invoice) error

	// CountPaidByCustomer counts paid invoices of a customer. Drives the
	// first-purchase promo condition.
	CountPaidByCustomer(ctx context.Context, customerID uuid.UUID) (int64, error)
}

// ProcessedEventRepository is the append-only idempotency ledger. Insert
// fails with ErrAlreadyExists when the provider event id is already recorded;
// rows are never updated or deleted.
type ProcessedEventRepository interface {
	// Find looks up a ledger entry by provider event id
	Find(ctx context.Context, providerEventID string) (*ProcessedEvent, error)

	// Insert appends a ledger entry, failing if the event id exists
	Insert(ctx context.Context, entry *ProcessedEvent) error
}
