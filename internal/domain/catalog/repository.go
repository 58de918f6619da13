package catalog

import (
	"context"

	"github.com/google/uuid"
	"github.com/openbilling/backend/internal/domain/shared"
)

// PlanRepository defines the interface for plan persistence
type PlanRepository interface {
	// FindByID finds a plan by its ID
	FindByID(ctx context.Context, id uuid.UUID) (*Plan, error)

	// FindByCodeAndVersion finds a specific version of a plan
	FindByCodeAndVersion(ctx context.Context, code string, version int) (*Plan, error)

	// FindLatestByCode finds the highest version of a plan, active or not
	FindLatestByCode(ctx context.Context, code string) (*Plan, error)

	// FindActive finds all plans currently open for signup
	FindActive(ctx context.Context, filter shared.Filter) ([]Plan, error)

	// Save creates or updates a plan
	Save(ctx context.Context, plan *Plan) error

	// HasSubscriptions reports whether any subscription references the plan.
	// Plans with subscriptions are immutable; price changes go through Revise.
	HasSubscriptions(ctx context.Context, id uuid.UUID) (bool, error)
}

// PromoCodeRepository defines the interface for promo code persistence
type PromoCodeRepository interface {
	// FindByID finds a promo code by its ID
	FindByID(ctx context.Context, id uuid.UUID) (*PromoCode, error)

	// FindByCode finds a promo code by its normalized code string
	FindByCode(ctx context.Context, code string) (*PromoCode, error)

	// Save creates or updates a promo code
	Save(ctx context.Context, promo *PromoCode) error

	// IncrementRedemptions atomically bumps the redemption counter, failing
	// if the cap would be exceeded
	IncrementRedemptions(ctx context.Context, id uuid.UUID) error
}
