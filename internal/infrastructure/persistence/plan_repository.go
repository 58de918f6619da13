package persistence

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/openbilling/backend/internal/domain/catalog"
	"github.com/openbilling/backend/internal/domain/shared"
	"github.com/openbilling/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormPlanRepository implements PlanRepository using GORM
type GormPlanRepository struct {
	db *gorm.DB
}

// NewGormPlanRepository creates a new GormPlanRepository
func NewGormPlanRepository(db *gorm.DB) *GormPlanRepository {
	return &GormPlanRepository{db: db}
}

// FindByID finds a plan by its ID
func (r *GormPlanRepository) FindByID(ctx context.Context, id uuid.UUID) (*catalog.Plan, error) {
	var model models.PlanModel
	if err := dbFromContext(ctx, r.db).WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByCodeAndVersion finds a specific version of a plan
func (r *GormPlanRepository) FindByCodeAndVersion(ctx context.Context, code string, version int) (*catalog.Plan, error) {
	var model models.PlanModel
	if err := dbFromContext(ctx, r.db).WithContext(ctx).
		Where("code = ? AND plan_version = ?", strings.ToLower(code), version).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindLatestByCode finds the highest version of a plan, active or not
func (r *GormPlanRepository) FindLatestByCode(ctx context.Context, code string) (*catalog.Plan, error) {
	var model models.PlanModel
	if err := dbFromContext(ctx, r.db).WithContext(ctx).
		Where("code = ?", strings.ToLower(code)).
		Order("plan_version DESC").
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindActive finds all plans currently open for signup
func (r *GormPlanRepository) FindActive(ctx context.Context, filter shared.Filter) ([]catalog.Plan, error) {
	var planModels []models.PlanModel
	query := dbFromContext(ctx, r.db).WithContext(ctx).
		Model(&models.PlanModel{}).
		Where("active = ?", true)

	if filter.Page > 0 && filter.PageSize > 0 {
		offset := (filter.Page - 1) * filter.PageSize
		query = query.Offset(offset).Limit(filter.PageSize)
	}
	query = query.Order("code ASC, plan_version DESC")

	if err := query.Find(&planModels).Error; err != nil {
		return nil, err
	}

	plans := make([]catalog.Plan, len(planModels))
	for i, model := range planModels {
		plans[i] = *model.ToDomain()
	}
	return plans, nil
}

// Save creates or updates a plan
func (r *GormPlanRepository) Save(ctx context.Context, plan *catalog.Plan) error {
	model := models.PlanModelFromDomain(plan)
	return dbFromContext(ctx, r.db).WithContext(ctx).Save(model).Error
}

// HasSubscriptions reports whether any subscription references the plan
func (r *GormPlanRepository) HasSubscriptions(ctx context.Context, id uuid.UUID) (bool, error) {
	var count int64
	if err := dbFromContext(ctx, r.db).WithContext(ctx).
		Model(&models.SubscriptionModel{}).
		Where("plan_id = ?", id).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// Ensure GormPlanRepository implements PlanRepository
var _ catalog.PlanRepository = (*GormPlanRepository)(nil)
