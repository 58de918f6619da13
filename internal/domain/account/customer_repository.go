package account

import (
	"context"

	"github.com/google/uuid"
	"github.com/openbilling/backend/internal/domain/shared"
)

// CustomerRepository defines the interface for customer persistence
type CustomerRepository interface {
	// FindByID finds a customer by its ID
	FindByID(ctx context.Context, id uuid.UUID) (*Customer, error)

	// FindByExternalID finds a customer by external ID within a livemode.
	// External IDs are unique per livemode, never globally.
	FindByExternalID(ctx context.Context, externalID string, livemode bool) (*Customer, error)

	// FindByProviderID finds a customer by a provider-side customer id
	FindByProviderID(ctx context.Context, provider, providerCustomerID string) (*Customer, error)

	// FindAll finds all customers matching the filter
	FindAll(ctx context.Context, filter shared.Filter) ([]Customer, error)

	// Save creates or updates a customer
	Save(ctx context.Context, customer *Customer) error

	// ExistsByExternalID checks if a customer with the external ID exists in the livemode
	ExistsByExternalID(ctx context.Context, externalID string, livemode bool) (bool, error)

	// Count counts customers matching the filter
	Count(ctx context.Context, filter shared.Filter) (int64, error)
}
