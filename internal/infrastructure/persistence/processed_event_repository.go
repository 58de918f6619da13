package persistence

import (
	"context"
	"errors"

	"github.com/openbilling/backend/internal/domain/billing"
	"github.com/openbilling/backend/internal/domain/shared"
	"github.com/openbilling/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormProcessedEventRepository implements the append-only reconciliation
// ledger. Entries are keyed by the provider's event id; a duplicate insert
// collides on the primary key and surfaces ErrAlreadyExists, which is how
// two racing deliveries of the same event resolve a single winner.
type GormProcessedEventRepository struct {
	db *gorm.DB
}

// NewGormProcessedEventRepository creates a new GormProcessedEventRepository
func NewGormProcessedEventRepository(db *gorm.DB) *GormProcessedEventRepository {
	return &GormProcessedEventRepository{db: db}
}

// Find looks up a ledger entry by provider event id
func (r *GormProcessedEventRepository) Find(ctx context.Context, providerEventID string) (*billing.ProcessedEvent, error) {
	var model models.ProcessedEventModel
	if err := dbFromContext(ctx, r.db).WithContext(ctx).
		First(&model, "provider_event_id = ?", providerEventID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// Insert appends a ledger entry, failing if the event id exists. The insert
// uses ON CONFLICT DO NOTHING so a lost race reports zero rows instead of a
// driver-specific constraint error.
func (r *GormProcessedEventRepository) Insert(ctx context.Context, entry *billing.ProcessedEvent) error {
	model := models.ProcessedEventModelFromDomain(entry)

	result := dbFromContext(ctx, r.db).WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(model)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrAlreadyExists
	}
	return nil
}

// Ensure GormProcessedEventRepository implements ProcessedEventRepository
var _ billing.ProcessedEventRepository = (*GormProcessedEventRepository)(nil)
