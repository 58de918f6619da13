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

// GormPromoCodeRepository implements PromoCodeRepository using GORM
type GormPromoCodeRepository struct {
	db *gorm.DB
}

// NewGormPromoCodeRepository creates a new GormPromoCodeRepository
func NewGormPromoCodeRepository(db *gorm.DB) *GormPromoCodeRepository {
	return &GormPromoCodeRepository{db: db}
}

// FindByID finds a promo code by its ID
func (r *GormPromoCodeRepository) FindByID(ctx context.Context, id uuid.UUID) (*catalog.PromoCode, error) {
	var model models.PromoCodeModel
	if err := dbFromContext(ctx, r.db).WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByCode finds a promo code by its normalized code string
func (r *GormPromoCodeRepository) FindByCode(ctx context.Context, code string) (*catalog.PromoCode, error) {
	var model models.PromoCodeModel
	if err := dbFromContext(ctx, r.db).WithContext(ctx).
		Where("code = ?", strings.ToUpper(strings.TrimSpace(code))).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// Save creates or updates a promo code
func (r *GormPromoCodeRepository) Save(ctx context.Context, promo *catalog.PromoCode) error {
	model := models.PromoCodeModelFromDomain(promo)
	return dbFromContext(ctx, r.db).WithContext(ctx).Save(model).Error
}

// IncrementRedemptions atomically bumps the redemption counter. The guard on
// the counter runs in the UPDATE itself, so two concurrent redemptions of the
// last remaining slot cannot both succeed.
func (r *GormPromoCodeRepository) IncrementRedemptions(ctx context.Context, id uuid.UUID) error {
	result := dbFromContext(ctx, r.db).WithContext(ctx).
		Model(&models.PromoCodeModel{}).
		Where("id = ? AND (max_redemptions = 0 OR times_redeemed < max_redemptions)", id).
		UpdateColumn("times_redeemed", gorm.Expr("times_redeemed + 1"))

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		var count int64
		if err := dbFromContext(ctx, r.db).WithContext(ctx).
			Model(&models.PromoCodeModel{}).
			Where("id = ?", id).
			Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return shared.ErrNotFound
		}
		return shared.ErrPromoInvalid
	}
	return nil
}

// Ensure GormPromoCodeRepository implements PromoCodeRepository
var _ catalog.PromoCodeRepository = (*GormPromoCodeRepository)(nil)
