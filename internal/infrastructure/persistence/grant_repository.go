package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/openbilling/backend/internal/domain/entitlement"
	"github.com/openbilling/backend/internal/domain/shared"
	"github.com/openbilling/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormGrantRepository implements GrantRepository using GORM
type GormGrantRepository struct {
	db *gorm.DB
}

// NewGormGrantRepository creates a new GormGrantRepository
func NewGormGrantRepository(db *gorm.DB) *GormGrantRepository {
	return &GormGrantRepository{db: db}
}

// FindByID finds a grant by its ID
func (r *GormGrantRepository) FindByID(ctx context.Context, id uuid.UUID) (*entitlement.Grant, error) {
	var model models.GrantModel
	if err := dbFromContext(ctx, r.db).WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByCustomer finds all grants held by a customer
func (r *GormGrantRepository) FindByCustomer(ctx context.Context, customerID uuid.UUID) ([]entitlement.Grant, error) {
	var grantModels []models.GrantModel
	if err := dbFromContext(ctx, r.db).WithContext(ctx).
		Where("customer_id = ?", customerID).
		Find(&grantModels).Error; err != nil {
		return nil, err
	}
	return grantsToDomain(grantModels), nil
}

// FindByCustomerAndKey finds all grants a customer holds for one key
func (r *GormGrantRepository) FindByCustomerAndKey(ctx context.Context, customerID uuid.UUID, key string) ([]entitlement.Grant, error) {
	var grantModels []models.GrantModel
	if err := dbFromContext(ctx, r.db).WithContext(ctx).
		Where("customer_id = ? AND key = ?", customerID, key).
		Find(&grantModels).Error; err != nil {
		return nil, err
	}
	return grantsToDomain(grantModels), nil
}

// FindBySource finds grants produced by a source entity
func (r *GormGrantRepository) FindBySource(ctx context.Context, source entitlement.GrantSource, sourceID string) ([]entitlement.Grant, error) {
	var grantModels []models.GrantModel
	if err := dbFromContext(ctx, r.db).WithContext(ctx).
		Where("source = ? AND source_id = ?", source, sourceID).
		Find(&grantModels).Error; err != nil {
		return nil, err
	}
	return grantsToDomain(grantModels), nil
}

// Save creates or updates a grant
func (r *GormGrantRepository) Save(ctx context.Context, grant *entitlement.Grant) error {
	model := models.GrantModelFromDomain(grant)
	return dbFromContext(ctx, r.db).WithContext(ctx).Save(model).Error
}

// Delete removes a grant (revocation)
func (r *GormGrantRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result := dbFromContext(ctx, r.db).WithContext(ctx).Delete(&models.GrantModel{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// DeleteBySource removes all grants produced by a source entity.
// Deleting zero rows is not an error; revocation must be idempotent.
func (r *GormGrantRepository) DeleteBySource(ctx context.Context, source entitlement.GrantSource, sourceID string) error {
	return dbFromContext(ctx, r.db).WithContext(ctx).
		Delete(&models.GrantModel{}, "source = ? AND source_id = ?", source, sourceID).Error
}

func grantsToDomain(grantModels []models.GrantModel) []entitlement.Grant {
	grants := make([]entitlement.Grant, len(grantModels))
	for i, model := range grantModels {
		grants[i] = *model.ToDomain()
	}
	return grants
}

// Ensure GormGrantRepository implements GrantRepository
var _ entitlement.GrantRepository = (*GormGrantRepository)(nil)
