package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/openbilling/backend/internal/domain/billing"
	"github.com/openbilling/backend/internal/domain/shared/valueobject"
)

// SubscriptionModel is the persistence model for the Subscription domain entity.
type SubscriptionModel struct {
	AggregateModel
	CustomerID             uuid.UUID                  `gorm:"type:uuid;not null;index"`
	PlanID                 uuid.UUID                  `gorm:"type:uuid;not null;index"`
	Quantity               int64                      `gorm:"not null;default:1"`
	Status                 billing.SubscriptionStatus `gorm:"type:varchar(20);not null;index"`
	CurrentPeriodStart     time.Time                  `gorm:"not null"`
	CurrentPeriodEnd       time.Time                  `gorm:"not null"`
	CancelAtPeriodEnd      bool                       `gorm:"not null;default:false"`
	CanceledAt             *time.Time
	TrialEnd               *time.Time
	Provider               string `gorm:"type:varchar(50);uniqueIndex:idx_sub_provider_id,priority:1"`
	ProviderSubscriptionID string `gorm:"type:varchar(100);uniqueIndex:idx_sub_provider_id,priority:2"`
	LastSequence           int64  `gorm:"not null;default:0"`
	Livemode               bool   `gorm:"not null"`
}

// TableName returns the table name for GORM
func (SubscriptionModel) TableName() string {
	return "subscriptions"
}

// ToDomain converts the persistence model to a domain Subscription entity.
func (m *SubscriptionModel) ToDomain() *billing.Subscription {
	s := &billing.Subscription{
		CustomerID:             m.CustomerID,
		PlanID:                 m.PlanID,
		Quantity:               m.Quantity,
		Status:                 m.Status,
		CurrentPeriodStart:     m.CurrentPeriodStart,
		CurrentPeriodEnd:       m.CurrentPeriodEnd,
		CancelAtPeriodEnd:      m.CancelAtPeriodEnd,
		CanceledAt:             m.CanceledAt,
		TrialEnd:               m.TrialEnd,
		Provider:               m.Provider,
		ProviderSubscriptionID: m.ProviderSubscriptionID,
		LastSequence:           m.LastSequence,
		Livemode:               m.Livemode,
	}
	m.PopulateAggregateRoot(&s.BaseAggregateRoot)
	return s
}

// FromDomain populates the persistence model from a domain Subscription entity.
func (m *SubscriptionModel) FromDomain(s *billing.Subscription) {
	m.FromDomainAggregateRoot(s.BaseAggregateRoot)
	m.CustomerID = s.CustomerID
	m.PlanID = s.PlanID
	m.Quantity = s.Quantity
	m.Status = s.Status
	m.CurrentPeriodStart = s.CurrentPeriodStart
	m.CurrentPeriodEnd = s.CurrentPeriodEnd
	m.CancelAtPeriodEnd = s.CancelAtPeriodEnd
	m.CanceledAt = s.CanceledAt
	m.TrialEnd = s.TrialEnd
	m.Provider = s.Provider
	m.ProviderSubscriptionID = s.ProviderSubscriptionID
	m.LastSequence = s.LastSequence
	m.Livemode = s.Livemode
}

// SubscriptionModelFromDomain creates a new persistence model from a domain Subscription entity.
func SubscriptionModelFromDomain(s *billing.Subscription) *SubscriptionModel {
	m := &SubscriptionModel{}
	m.FromDomain(s)
	return m
}

// InvoiceModel is the persistence model for the Invoice domain entity.
type InvoiceModel struct {
	AggregateModel
	SubscriptionID    *uuid.UUID            `gorm:"type:uuid;index"`
	CustomerID        uuid.UUID             `gorm:"type:uuid;not null;index"`
	Status            billing.InvoiceStatus `gorm:"type:varchar(20);not null;index"`
	Lines             string                `gorm:"type:jsonb"`
	SubtotalMinor     int64                 `gorm:"not null;default:0"`
	DiscountMinor     int64                 `gorm:"not null;default:0"`
	TotalMinor        int64                 `gorm:"not null;default:0"`
	Currency          string                `gorm:"type:varchar(3);not null"`
	PeriodStart       time.Time             `gorm:"not null"`
	PeriodEnd         time.Time             `gorm:"not null"`
	Provider          string                `gorm:"type:varchar(50);uniqueIndex:idx_inv_provider_id,priority:1"`
	ProviderInvoiceID string                `gorm:"type:varchar(100);uniqueIndex:idx_inv_provider_id,priority:2"`
	PromoCode         string                `gorm:"type:varchar(50)"`
	PaidAt            *time.Time
	LastSequence      int64 `gorm:"not null;default:0"`
	Livemode          bool  `gorm:"not null"`
}

// TableName returns the table name for GORM
func (InvoiceModel) TableName() string {
	return "invoices"
}

// ToDomain converts the persistence model to a domain Invoice entity.
func (m *InvoiceModel) ToDomain() *billing.Invoice {
	inv := &billing.Invoice{
		SubscriptionID:    m.SubscriptionID,
		CustomerID:        m.CustomerID,
		Status:            m.Status,
		SubtotalMinor:     m.SubtotalMinor,
		DiscountMinor:     m.DiscountMinor,
		TotalMinor:        m.TotalMinor,
		Currency:          valueobject.Currency(m.Currency),
		PeriodStart:       m.PeriodStart,
		PeriodEnd:         m.PeriodEnd,
		Provider:          m.Provider,
		ProviderInvoiceID: m.ProviderInvoiceID,
		PromoCode:         m.PromoCode,
		PaidAt:            m.PaidAt,
		LastSequence:      m.LastSequence,
		Livemode:          m.Livemode,
	}
	m.PopulateAggregateRoot(&inv.BaseAggregateRoot)

	if m.Lines != "" {
		_ = json.Unmarshal([]byte(m.Lines), &inv.Lines)
	}

	return inv
}

// FromDomain populates the persistence model from a domain Invoice entity.
func (m *InvoiceModel) FromDomain(inv *billing.Invoice) {
	m.FromDomainAggregateRoot(inv.BaseAggregateRoot)
	m.SubscriptionID = inv.SubscriptionID
	m.CustomerID = inv.CustomerID
	m.Status = inv.Status
	m.SubtotalMinor = inv.SubtotalMinor
	m.DiscountMinor = inv.DiscountMinor
	m.TotalMinor = inv.TotalMinor
	m.Currency = string(inv.Currency)
	m.PeriodStart = inv.PeriodStart
	m.PeriodEnd = inv.PeriodEnd
	m.Provider = inv.Provider
	m.ProviderInvoiceID = inv.ProviderInvoiceID
	m.PromoCode = inv.PromoCode
	m.PaidAt = inv.PaidAt
	m.LastSequence = inv.LastSequence
	m.Livemode = inv.Livemode

	if jsonBytes, err := json.Marshal(inv.Lines); err == nil {
		m.Lines = string(jsonBytes)
	}
}

// InvoiceModelFromDomain creates a new persistence model from a domain Invoice entity.
func InvoiceModelFromDomain(inv *billing.Invoice) *InvoiceModel {
	m := &InvoiceModel{}
	m.FromDomain(inv)
	return m
}

// ProcessedEventModel is the persistence model for the append-only event ledger.
// Rows are inserted once and never updated; the primary key is the provider's
// event id so a duplicate delivery collides at the storage layer.
type ProcessedEventModel struct {
	ProviderEventID string                    `gorm:"type:varchar(100);primary_key"`
	Provider        string                    `gorm:"type:varchar(50);not null;index"`
	EventType       billing.ProviderEventType `gorm:"type:varchar(50);not null"`
	Sequence        int64                     `gorm:"not null"`
	Outcome         billing.ReconcileOutcome  `gorm:"type:varchar(20);not null"`
	StateHash       string                    `gorm:"type:varchar(64)"`
	ProcessedAt     time.Time                 `gorm:"not null;index"`
}

// TableName returns the table name for GORM
func (ProcessedEventModel) TableName() string {
	return "processed_events"
}

// ToDomain converts the persistence model to a domain ProcessedEvent.
func (m *ProcessedEventModel) ToDomain() *billing.ProcessedEvent {
	return &billing.ProcessedEvent{
		ProviderEventID: m.ProviderEventID,
		Provider:        m.Provider,
		EventType:       m.EventType,
		Sequence:        m.Sequence,
		Outcome:         m.Outcome,
		StateHash:       m.StateHash,
		ProcessedAt:     m.ProcessedAt,
	}
}

// ProcessedEventModelFromDomain creates a new persistence model from a domain ProcessedEvent.
func ProcessedEventModelFromDomain(e *billing.ProcessedEvent) *ProcessedEventModel {
	return &ProcessedEventModel{
		ProviderEventID: e.ProviderEventID,
		Provider:        e.Provider,
		EventType:       e.EventType,
		Sequence:        e.Sequence,
		Outcome:         e.Outcome,
		StateHash:       e.StateHash,
		ProcessedAt:     e.ProcessedAt,
	}
}
