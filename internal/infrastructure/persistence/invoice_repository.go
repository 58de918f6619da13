package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/openbilling/backend/internal/domain/billing"
	"github.com/openbilling/backend/internal/domain/shared"
	"github.com/openbilling/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormInvoiceRepository implements InvoiceRepository using GORM
type GormInvoiceRepository struct {
	db *gorm.DB
}

// NewGormInvoiceRepository creates a new GormInvoiceRepository
func NewGormInvoiceRepository(db *gorm.DB) *GormInvoiceRepository {
	return &GormInvoiceRepository{db: db}
}

// FindByID finds an invoice by its ID
func (r *GormInvoiceRepository) FindByID(ctx context.Context, id uuid.UUID) (*billing.Invoice, error) {
	var model models.InvoiceModel
	if err := dbFromContext(ctx, r.db).WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByProviderInvoiceID finds an invoice by its provider-side id
func (r *GormInvoiceRepository) FindByProviderInvoiceID(ctx context.Context, provider, providerInvoiceID string) (*billing.Invoice, error) {
	var model models.InvoiceModel
	if err := dbFromContext(ctx, r.db).WithContext(ctx).
		Where("provider = ? AND provider_invoice_id = ?", provider, providerInvoiceID).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindBySubscription finds all invoices of a subscription
func (r *GormInvoiceRepository) FindBySubscription(ctx context.Context, subscriptionID uuid.UUID) ([]billing.Invoice, error) {
	var invoiceModels []models.InvoiceModel
	if err := dbFromContext(ctx, r.db).WithContext(ctx).
		Where("subscription_id = ?", subscriptionID).
		Order("period_start ASC").
		Find(&invoiceModels).Error; err != nil {
		return nil, err
	}

	invoices := make([]billing.Invoice, len(invoiceModels))
	for i, model := range invoiceModels {
		invoices[i] = *model.ToDomain()
	}
	return invoices, nil
}

// Save creates or conditionally updates an invoice, keyed on LastSequence
// like the subscription save.
func (r *GormInvoiceRepository) Save(ctx context.Context, inv *billing.Invoice) error {
	db := dbFromContext(ctx, r.db).WithContext(ctx)
	model := models.InvoiceModelFromDomain(inv)

	result := db.Model(&models.InvoiceModel{}).
		Where("id = ? AND last_sequence <= ?", inv.ID, inv.LastSequence).
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
	if err := db.Model(&models.InvoiceModel{}).Where("id = ?", inv.ID).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return shared.ErrStorageConflict
	}
	return db.Create(model).Error
}

// CountPaidByCustomer counts paid invoices of a customer
func (r *GormInvoiceRepository) CountPaidByCustomer(ctx context.Context, customerID uuid.UUID) (int64, error) {
	var count int64
	if err := dbFromContext(ctx, r.db).WithContext(ctx).
		Model(&models.InvoiceModel{}).
		Where("customer_id = ? AND status = ?", customerID, billing.InvoicePaid).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// Ensure GormInvoiceRepository implements InvoiceRepository
var _ billing.InvoiceRepository = (*GormInvoiceRepository)(nil)
