package account

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/openbilling/backend/internal/domain/account"
	"github.com/openbilling/backend/internal/domain/shared"
)

// CreateCustomerRequest carries the fields for registering a customer
type CreateCustomerRequest struct {
	ExternalID string
	Email      string
	Name       string
	Phone      string
	Livemode   bool
	Tags       []string
	Metadata   map[string]string
}

// UpdateCustomerRequest carries partial customer updates. Nil means
// "unchanged".
type UpdateCustomerRequest struct {
	Email *string
	Name  *string
	Phone *string
}

// CustomerService handles customer lifecycle operations
type CustomerService struct {
	customers account.CustomerRepository
	eventBus  shared.EventPublisher
	logger    *zap.Logger
}

// CustomerServiceConfig contains the collaborators of a CustomerService.
// EventBus is optional.
type CustomerServiceConfig struct {
	Customers account.CustomerRepository
	EventBus  shared.EventPublisher
	Logger    *zap.Logger
}

// NewCustomerService creates a new CustomerService
func NewCustomerService(cfg CustomerServiceConfig) *CustomerService {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CustomerService{
		customers: cfg.Customers,
		eventBus:  cfg.EventBus,
		logger:    logger,
	}
}

// Create registers a new customer. External ids are unique per livemode.
func (s *CustomerService) Create(ctx context.Context, req CreateCustomerRequest) (*account.Customer, error) {
	exists, err := s.customers.ExistsByExternalID(ctx, req.ExternalID, req.Livemode)
	if err != nil {
		return nil, fmt.Errorf("failed to check external id: %w", err)
	}
	if exists {
		return nil, shared.ErrAlreadyExists
	}

	customer, err := account.NewCustomer(req.ExternalID, req.Email, req.Name, req.Livemode)
	if err != nil {
		return nil, err
	}
	if req.Phone != "" {
		if err := customer.Update(req.Email, req.Name, req.Phone); err != nil {
			return nil, err
		}
	}
	for _, tag := range req.Tags {
		customer.AddTag(tag)
	}
	if len(req.Metadata) > 0 {
		customer.SetMetadata(req.Metadata)
	}

	if err := s.customers.Save(ctx, customer); err != nil {
		return nil, fmt.Errorf("failed to save customer: %w", err)
	}

	s.publish(ctx, customer)
	s.logger.Info("Customer created",
		zap.String("customer_id", customer.ID.String()),
		zap.String("external_id", customer.ExternalID))
	return customer, nil
}

// Get returns a customer by id
func (s *CustomerService) Get(ctx context.Context, id uuid.UUID) (*account.Customer, error) {
	return s.customers.FindByID(ctx, id)
}

// GetByExternalID returns a customer by its caller-supplied identity
func (s *CustomerService) GetByExternalID(ctx context.Context, externalID string, livemode bool) (*account.Customer, error) {
	return s.customers.FindByExternalID(ctx, externalID, livemode)
}

// List returns customers matching the filter with pagination metadata
func (s *CustomerService) List(ctx context.Context, filter shared.Filter) (shared.Paginated[account.Customer], error) {
	var empty shared.Paginated[account.Customer]

	customers, err := s.customers.FindAll(ctx, filter)
	if err != nil {
		return empty, fmt.Errorf("failed to list customers: %w", err)
	}
	total, err := s.customers.Count(ctx, filter)
	if err != nil {
		return empty, fmt.Errorf("failed to count customers: %w", err)
	}
	return shared.NewPaginated(customers, total, filter.Page, filter.PageSize), nil
}

// Update applies partial changes to a customer's contact fields
func (s *CustomerService) Update(ctx context.Context, id uuid.UUID, req UpdateCustomerRequest) (*account.Customer, error) {
	customer, err := s.customers.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	email := customer.Email
	name := customer.Name
	phone := customer.Phone
	if req.Email != nil {
		email = *req.Email
	}
	if req.Name != nil {
		name = *req.Name
	}
	if req.Phone != nil {
		phone = *req.Phone
	}

	if err := customer.Update(email, name, phone); err != nil {
		return nil, err
	}
	if err := s.customers.Save(ctx, customer); err != nil {
		return nil, fmt.Errorf("failed to save customer: %w", err)
	}

	s.publish(ctx, customer)
	return customer, nil
}

// LinkProvider associates a provider-side customer id with the customer
func (s *CustomerService) LinkProvider(ctx context.Context, id uuid.UUID, provider, providerCustomerID string) (*account.Customer, error) {
	customer, err := s.customers.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := customer.SetProviderID(provider, providerCustomerID); err != nil {
		return nil, err
	}
	if err := s.customers.Save(ctx, customer); err != nil {
		return nil, fmt.Errorf("failed to save customer: %w", err)
	}
	return customer, nil
}

// Delete soft-deletes a customer. Billing history stays intact.
func (s *CustomerService) Delete(ctx context.Context, id uuid.UUID) error {
	customer, err := s.customers.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if err := customer.MarkDeleted(); err != nil {
		return err
	}
	if err := s.customers.Save(ctx, customer); err != nil {
		return fmt.Errorf("failed to save customer: %w", err)
	}

	s.publish(ctx, customer)
	s.logger.Info("Customer deleted",
		zap.String("customer_id", customer.ID.String()))
	return nil
}

func (s *CustomerService) publish(ctx context.Context, customer *account.Customer) {
	if s.eventBus == nil {
		return
	}
	events := customer.GetDomainEvents()
	if len(events) == 0 {
		return
	}
	if err := s.eventBus.Publish(ctx, events...); err != nil {
		s.logger.Error("Failed to publish domain events", zap.Error(err))
	}
	customer.ClearDomainEvents()
}
