package persistence

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/openbilling/backend/internal/domain/billing"
	"github.com/openbilling/backend/internal/domain/shared"
	"github.com/openbilling/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormSubscriptionRepository implements SubscriptionRepository using GORM
type GormSubscriptionRepository struct {
	db *gorm.DB
}

// NewGormSubscriptionRepository creates a new GormSubscriptionRepository
func NewGormSubscriptionRepository(db *gorm.DB) *GormSubscriptionRepository {
	return &GormSubscriptionRepository{db: db}
}

// FindByID finds a subscription by its ID
func (r *GormSubscriptionRepository) FindByID(ctx context.Context, id uuid.UUID) (*billing.Subscription, error) {
	var model models.SubscriptionModel
	if err := dbFromContext(ctx, r.db).WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByProviderSubscriptionID finds a subscription by its provider-side id
func (r *GormSubscriptionRepository) FindByProviderSubscriptionID(ctx context.Context, provider, providerSubscriptionID string) (*billing.Subscription, error) {
	var model models.SubscriptionModel
	if err := dbFromContext(ctx, r.db).WithContext(ctx).
		Where("provider = ? AND provider_subscription_id = ?", provider, providerSubscriptionID).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByCustomer finds all subscriptions of a customer
func (r *GormSubscriptionRepository) FindByCustomer(ctx context.Context, customerID uuid.UUID, filter shared.Filter) ([]billing.Subscription, error) {
	var subModels []models.SubscriptionModel
	query := dbFromContext(ctx, r.db).WithContext(ctx).
		Model(&models.SubscriptionModel{}).
		Where("customer_id = ?", customerID)

	if status, ok := filter.Filters["status"]; ok {
		query = query.Where("status = ?", status)
	}
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

	if err := query.Find(&subModels).Error; err != nil {
		return nil, err
	}

	subs := make([]billing.Subscription, len(subModels))
	for i, model := range subModels {
		subs[i] = *model.ToDomain()
	}
	return subs, nil
}

// FindDueCancellations finds subscriptions flagged cancel-at-period-end
// whose current period elapsed at or before now
func (r *GormSubscriptionRepository) FindDueCancellations(ctx context.Context, now time.Time, limit int) ([]billing.Subscription, error) {
	var subModels []models.SubscriptionModel
	err := dbFromContext(ctx, r.db).WithContext(ctx).
		Where("cancel_at_period_end = ?", true).
		Where("status IN ?", []string{string(billing.SubscriptionTrialing), string(billing.SubscriptionActive)}).
		Where("current_period_end <= ?", now).
		Order("current_period_end ASC").
		Limit(limit).
		Find(&subModels).Error
	if err != nil {
		return nil, err
	}

	subs := make([]billing.Subscription, len(subModels))
	for i, model := range subModels {
		subs[i] = *model.ToDomain()
	}
	return subs, nil
}

// Save creates or conditionally updates a subscription. When the aggregate
// advanced its sequence, the update only lands while the stored row still
// holds the sequence the aggregate was loaded with; a concurrent apply of the
// same or a later sequence wins and this write surfaces ErrStorageConflict.
// Saves that did not advance the sequence, like period-end expiry, skip the
// gate.
func (r *GormSubscriptionRepository) Save(ctx context.Context, sub *billing.Subscription) error {
	db := dbFromContext(ctx, r.db).WithContext(ctx)
	model := models.SubscriptionModelFromDomain(sub)

	query := db.Model(&models.SubscriptionModel{}).Where("id = ?", sub.ID)
	if prior, advanced := sub.PriorSequence(); advanced {
		query = query.Where("last_sequence <= ?", prior)
	}
	result := query.
		Select("*").
		Omit("created_at").
		Updates(model)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		return nil
	}

	var count int64
	if err := db.Model(&models.SubscriptionModel{}).Where("id = ?", sub.ID).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return shared.ErrStorageConflict
	}
	return db.Create(model).Error
}

// ExistsByPlan reports whether any subscription references the plan
func (r *GormSubscriptionRepository) ExistsByPlan(ctx context.Context, planID uuid.UUID) (bool, error) {
	var count int64
	if err := dbFromContext(ctx, r.db).WithContext(ctx).
		Model(&models.SubscriptionModel{}).
		Where("plan_id = ?", planID).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// Ensure GormSubscriptionRepository implements SubscriptionRepository
var _ billing.SubscriptionRepository = (*GormSubscriptionRepository)(nil)
