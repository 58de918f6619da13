package persistence

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/openbilling/backend/internal/domain/account"
	"github.com/openbilling/backend/internal/domain/shared"
	"github.com/openbilling/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormCustomerRepository implements CustomerRepository using GORM
type GormCustomerRepository struct {
	db *gorm.DB
}

// NewGormCustomerRepository creates a new GormCustomerRepository
func NewGormCustomerRepository(db *gorm.DB) *GormCustomerRepository {
	return &GormCustomerRepository{db: db}
}

// FindByID finds a customer by its ID
func (r *GormCustomerRepository) FindByID(ctx context.Context, id uuid.UUID) (*account.Customer, error) {
	var model models.CustomerModel
	if err := dbFromContext(ctx, r.db).WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByExternalID finds a customer by external ID within a livemode
func (r *GormCustomerRepository) FindByExternalID(ctx context.Context, externalID string, livemode bool) (*account.Customer, error) {
	if externalID == "" {
		return nil, shared.NewDomainError("INVALID_EXTERNAL_ID", "External ID cannot be empty")
	}
	var model models.CustomerModel
	if err := dbFromContext(ctx, r.db).WithContext(ctx).
		Where("external_id = ? AND livemode = ?", externalID, livemode).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByProviderID finds a customer by a provider-side customer id.
// Provider IDs live in a jsonb map keyed by provider name.
func (r *GormCustomerRepository) FindByProviderID(ctx context.Context, provider, providerCustomerID string) (*account.Customer, error) {
	if provider == "" || providerCustomerID == "" {
		return nil, shared.NewDomainError("INVALID_PROVIDER_ID", "Provider and provider customer ID cannot be empty")
	}
	var model models.CustomerModel
	if err := dbFromContext(ctx, r.db).WithContext(ctx).
		Where("provider_ids ->> ? = ?", provider, providerCustomerID).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindAll finds all customers matching the filter
func (r *GormCustomerRepository) FindAll(ctx context.Context, filter shared.Filter) ([]account.Customer, error) {
	var customerModels []models.CustomerModel
	query := r.applyFilter(dbFromContext(ctx, r.db).WithContext(ctx).Model(&models.CustomerModel{}), filter)

	if err := query.Find(&customerModels).Error; err != nil {
		return nil, err
	}

	customers := make([]account.Customer, len(customerModels))
	for i, model := range customerModels {
		customers[i] = *model.ToDomain()
	}
	return customers, nil
}

// Save creates or updates a customer
func (r *GormCustomerRepository) Save(ctx context.Context, customer *account.Customer) error {
	model := models.CustomerModelFromDomain(customer)
	return dbFromContext(ctx, r.db).WithContext(ctx).Save(model).Error
}

// ExistsByExternalID checks if a customer with the external ID exists in the livemode
func (r *GormCustomerRepository) ExistsByExternalID(ctx context.Context, externalID string, livemode bool) (bool, error) {
	if externalID == "" {
		return false, nil
	}
	var count int64
	if err := dbFromContext(ctx, r.db).WithContext(ctx).
		Model(&models.CustomerModel{}).
		Where("external_id = ? AND livemode = ?", externalID, livemode).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// Count counts customers matching the filter
func (r *GormCustomerRepository) Count(ctx context.Context, filter shared.Filter) (int64, error) {
	var count int64
	query := r.applyFilterWithoutPagination(dbFromContext(ctx, r.db).WithContext(ctx).Model(&models.CustomerModel{}), filter)

	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *GormCustomerRepository) applyFilter(query *gorm.DB, filter shared.Filter) *gorm.DB {
	query = r.applyFilterWithoutPagination(query, filter)

	if filter.Page > 0 && filter.PageSize > 0 {
		offset := (filter.Page - 1) * filter.PageSize
		query = query.Offset(offset).Limit(filter.PageSize)
	}

	if filter.OrderBy != "" {
		orderDir := "ASC"
		if strings.ToLower(filter.OrderDir) == "desc" {
			orderDir = "DESC"
		}
		query = query.Order(filter.OrderBy + " " + orderDir)
	} else {
		query = query.Order("created_at DESC")
	}

	return query
}

func (r *GormCustomerRepository) applyFilterWithoutPagination(query *gorm.DB, filter shared.Filter) *gorm.DB {
	if filter.Search != "" {
		searchPattern := "%" + filter.Search + "%"
		query = query.Where("name ILIKE ? OR external_id ILIKE ? OR email ILIKE ?",
			searchPattern, searchPattern, searchPattern)
	}

	for key, value := range filter.Filters {
		switch key {
		case "livemode":
			query = query.Where("livemode = ?", value)
		case "deleted":
			if value == true {
				query = query.Where("deleted_at IS NOT NULL")
			} else {
				query = query.Where("deleted_at IS NULL")
			}
		}
	}

	return query
}

// Ensure GormCustomerRepository implements CustomerRepository
var _ account.CustomerRepository = (*GormCustomerRepository)(nil)
