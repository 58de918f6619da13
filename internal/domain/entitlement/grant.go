package entitlement

import (
	"time"

	"github.com/google/uuid"
	"github.com/openbilling/backend/internal/domain/shared"
)

// GrantSource identifies what produced an entitlement grant
type GrantSource string

const (
	GrantSourceSubscription GrantSource = "subscription"
	GrantSourcePurchase     GrantSource = "purchase"
	GrantSourceManual       GrantSource = "manual"
)

// IsValid returns true if the grant source is valid
func (s GrantSource) IsValid() bool {
	switch s {
	case GrantSourceSubscription, GrantSourcePurchase, GrantSourceManual:
		return true
	}
	return false
}

// Grant gives a customer one entitlement key from one source. A customer may
// hold several grants for the same key; the evaluator unions them.
type Grant struct {
	shared.BaseAggregateRoot
	CustomerID uuid.UUID
	Key        string
	Source     GrantSource
	SourceID   string     // subscription id, purchase id, or operator note
	ExpiresAt  *time.Time // nil = does not expire
}

// NewGrant creates a new entitlement grant
func NewGrant(customerID uuid.UUID, key string, source GrantSource, sourceID string) (*Grant, error) {
	if customerID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_CUSTOMER", "Customer ID cannot be empty")
	}
	if key == "" {
		return nil, shared.NewDomainError("INVALID_KEY", "Entitlement key cannot be empty")
	}
	if !source.IsValid() {
		return nil, shared.NewDomainError("INVALID_SOURCE", "Invalid grant source")
	}

	return &Grant{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		CustomerID:        customerID,
		Key:               key,
		Source:            source,
		SourceID:          sourceID,
	}, nil
}

// WithExpiry sets an expiry on the grant
func (g *Grant) WithExpiry(expiresAt time.Time) *Grant {
	g.ExpiresAt = &expiresAt
	return g
}

// IsExpired returns true if the grant has expired at the given instant
func (g *Grant) IsExpired(now time.Time) bool {
	return g.ExpiresAt != nil && !g.ExpiresAt.After(now)
}

// Renew extends the grant's expiry. Renewal from a paid invoice moves the
// expiry to the new period end.
func (g *Grant) Renew(expiresAt time.Time) {
	g.ExpiresAt = &expiresAt
	g.Touch()
	g.IncrementVersion()
}
