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

// GormUsageLimitRepository implements UsageLimitRepository using GORM
type GormUsageLimitRepository struct {
	db *gorm.DB
}

// NewGormUsageLimitRepository creates a new GormUsageLimitRepository
func NewGormUsageLimitRepository(db *gorm.DB) *GormUsageLimitRepository {
	return &GormUsageLimitRepository{db: db}
}

// FindByID finds a usage limit by its ID
func (r *GormUsageLimitRepository) FindByID(ctx context.Context, id uuid.UUID) (*entitlement.UsageLimit, error) {
	var model models.UsageLimitModel
	if err := dbFromContext(ctx, r.db).WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByCustomerAndKey finds all limit records a customer holds for one key
func (r *GormUsageLimitRepository) FindByCustomerAndKey(ctx context.Context, customerID uuid.UUID, limitKey string) ([]entitlement.UsageLimit, error) {
	var limitModels []models.UsageLimitModel
	if err := dbFromContext(ctx, r.db).WithContext(ctx).
		Where("customer_id = ? AND limit_key = ?", customerID, limitKey).
		Order("created_at ASC").
		Find(&limitModels).Error; err != nil {
		return nil, err
	}

	limits := make([]entitlement.UsageLimit, len(limitModels))
	for i, model := range limitModels {
		limits[i] = *model.ToDomain()
	}
	return limits, nil
}

// Save creates or updates a usage limit record
func (r *GormUsageLimitRepository) Save(ctx context.Context, limit *entitlement.UsageLimit) error {
	model := models.UsageLimitModelFromDomain(limit)
	return dbFromContext(ctx, r.db).WithContext(ctx).Save(model).Error
}

// IncrementConsumed atomically adds amount to the record's consumed counter.
// The arithmetic runs in the UPDATE so concurrent recorders never lose
// increments to a read-modify-write race.
func (r *GormUsageLimitRepository) IncrementConsumed(ctx context.Context, id uuid.UUID, amount int64) error {
	result := dbFromContext(ctx, r.db).WithContext(ctx).
		Model(&models.UsageLimitModel{}).
		Where("id = ?", id).
		UpdateColumn("consumed", gorm.Expr("consumed + ?", amount))

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// DeleteBySource removes all limit records provisioned by a source entity
func (r *GormUsageLimitRepository) DeleteBySource(ctx context.Context, sourceID string) error {
	return dbFromContext(ctx, r.db).WithContext(ctx).
		Delete(&models.UsageLimitModel{}, "source_id = ?", sourceID).Error
}

// Ensure GormUsageLimitRepository implements UsageLimitRepository
var _ entitlement.UsageLimitRepository = (*GormUsageLimitRepository)(nil)
