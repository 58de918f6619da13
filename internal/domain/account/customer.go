package account

import (
	"regexp"
	"strings"
	"time"

	"github.com/openbilling/backend/internal/domain/shared"
)

// Customer is the aggregate root for a billable account. Customers are never
// hard-deleted; DeletedAt marks removal so provider-side references stay
// resolvable.
type Customer struct {
	shared.BaseAggregateRoot
	ExternalID  string            // caller-supplied identity, unique per livemode
	Email       string
	Name        string
	Phone       string
	ProviderIDs map[string]string // provider name -> provider-side customer id
	Tags        []string          // free-form tags, evaluated by promo conditions
	Metadata    map[string]string
	Livemode    bool
	DeletedAt   *time.Time
}

// NewCustomer creates a new customer
func NewCustomer(externalID, email, name string, livemode bool) (*Customer, error) {
	if err := validateExternalID(externalID); err != nil {
		return nil, err
	}
	if email != "" {
		if err := validateEmail(email); err != nil {
			return nil, err
		}
	}
	if name != "" && len(name) > 200 {
		return nil, shared.NewDomainError("INVALID_NAME", "Customer name cannot exceed 200 characters")
	}

	customer := &Customer{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		ExternalID:        externalID,
		Email:             strings.ToLower(email),
		Name:              name,
		ProviderIDs:       make(map[string]string),
		Metadata:          make(map[string]string),
		Livemode:          livemode,
	}

	customer.AddDomainEvent(NewCustomerCreatedEvent(customer))

	return customer, nil
}

// Update updates the customer's basic information
func (c *Customer) Update(email, name, phone string) error {
	if c.IsDeleted() {
		return shared.NewDomainError("CUSTOMER_DELETED", "Deleted customers cannot be updated")
	}
	if email != "" {
		if err := validateEmail(email); err != nil {
			return err
		}
	}
	if name != "" && len(name) > 200 {
		return shared.NewDomainError("INVALID_NAME", "Customer name cannot exceed 200 characters")
	}
	if phone != "" {
		if err := validatePhone(phone); err != nil {
			return err
		}
	}

	c.Email = strings.ToLower(email)
	c.Name = name
	c.Phone = phone
	c.Touch()
	c.IncrementVersion()

	c.AddDomainEvent(NewCustomerUpdatedEvent(c))

	return nil
}

// SetProviderID records the provider-side customer id for a payment provider
func (c *Customer) SetProviderID(provider, providerCustomerID string) error {
	if provider == "" {
		return shared.NewDomainError("INVALID_PROVIDER", "Provider name cannot be empty")
	}
	if providerCustomerID == "" {
		return shared.NewDomainError("INVALID_PROVIDER_ID", "Provider customer ID cannot be empty")
	}

	if c.ProviderIDs == nil {
		c.ProviderIDs = make(map[string]string)
	}
	c.ProviderIDs[provider] = providerCustomerID
	c.Touch()
	c.IncrementVersion()

	return nil
}

// ProviderID returns the provider-side customer id for a provider, if linked
func (c *Customer) ProviderID(provider string) (string, bool) {
	id, ok := c.ProviderIDs[provider]
	return id, ok
}

// AddTag adds a tag if not already present
func (c *Customer) AddTag(tag string) {
	for _, t := range c.Tags {
		if t == tag {
			return
		}
	}
	c.Tags = append(c.Tags, tag)
	c.Touch()
	c.IncrementVersion()
}

// HasTag returns true if the customer carries the tag
func (c *Customer) HasTag(tag string) bool {
	for _, t := range c.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// SetMetadata replaces the customer's metadata
func (c *Customer) SetMetadata(metadata map[string]string) {
	if metadata == nil {
		metadata = make(map[string]string)
	}
	c.Metadata = metadata
	c.Touch()
	c.IncrementVersion()
}

// MarkDeleted soft-deletes the customer
func (c *Customer) MarkDeleted() error {
	if c.IsDeleted() {
		return shared.NewDomainError("ALREADY_DELETED", "Customer is already deleted")
	}

	now := time.Now()
	c.DeletedAt = &now
	c.UpdatedAt = now
	c.IncrementVersion()

	c.AddDomainEvent(NewCustomerDeletedEvent(c))

	return nil
}

// IsDeleted returns true if the customer has been soft-deleted
func (c *Customer) IsDeleted() bool {
	return c.DeletedAt != nil
}

func validateExternalID(externalID string) error {
	if externalID == "" {
		return shared.NewDomainError("INVALID_EXTERNAL_ID", "External ID cannot be empty")
	}
	if len(externalID) > 100 {
		return shared.NewDomainError("INVALID_EXTERNAL_ID", "External ID cannot exceed 100 characters")
	}
	return nil
}

func validatePhone(phone string) error {
	if len(phone) > 50 {
		return shared.NewDomainError("INVALID_PHONE", "Phone number cannot exceed 50 characters")
	}
	validPhone := regexp.MustCompile(`^[\d\s\-\(\)\+]+$`)
	if !validPhone.MatchString(phone) {
		return shared.NewDomainError("INVALID_PHONE", "Invalid phone number format")
	}
	return nil
}

func validateEmail(email string) error {
	if len(email) > 200 {
		return shared.NewDomainError("INVALID_EMAIL", "Email cannot exceed 200 characters")
	}
	emailRegex := regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
	if !emailRegex.MatchString(email) {
		return shared.NewDomainError("INVALID_EMAIL", "Invalid email format")
	}
	return nil
}

// Ensure Customer implements AggregateRoot
var _ shared.AggregateRoot = (*Customer)(nil)
