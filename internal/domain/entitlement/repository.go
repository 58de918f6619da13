package entitlement

import (
	"context"

	"github.com/google/uuid"
)

// GrantRepository defines the interface for entitlement grant persistence
type GrantRepository interface {
	// FindByID finds a grant by its ID
	FindByID(ctx context.Context, id uuid.UUID) (*Grant, error)

	// FindByCustomer finds all grants held by a customer
	FindByCustomer(ctx context.Context, customerID uuid.UUID) ([]Grant, error)

	// FindByCustomerAndKey finds all grants a customer holds for one key
	FindByCustomerAndKey(ctx context.Context, customerID uuid.UUID, key string) ([]Grant, error)

	// FindBySource finds grants produced by a source entity
	FindBySource(ctx context.Context, source GrantSource, sourceID string) ([]Grant, error)

	// Save creates or updates a grant
	Save(ctx context.Context, grant *Grant) error

	// Delete removes a grant (revocation)
	Delete(ctx context.Context, id uuid.UUID) error

	// DeleteBySource removes all grants produced by a source entity
	DeleteBySource(ctx context.Context, source GrantSource, sourceID string) error
}

// UsageLimitRepository defines the interface for usage limit persistence
type UsageLimitRepository interface {
	// FindByID finds a usage limit by its ID
	FindByID(ctx context.Context, id uuid.UUID) (*UsageLimit, error)

	// FindByCustomerAndKey finds all limit records a customer holds for one key
	FindByCustomerAndKey(ctx context.Context, customerID uuid.UUID, limitKey string) ([]UsageLimit, error)

	// Save creates or updates a usage limit record
	Save(ctx context.Context, limit *UsageLimit) error

	// IncrementConsumed atomically adds amount to the record's consumed
	// counter. Storage performs the increment; callers never read-modify-write.
	IncrementConsumed(ctx context.Context, id uuid.UUID, amount int64) error

	// DeleteBySource removes all limit records provisioned by a source entity
	DeleteBySource(ctx context.Context, sourceID string) error
}
