package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/openbilling/backend/internal/domain/entitlement"
)

// GrantModel is the persistence model for the Grant domain entity.
type GrantModel struct {
	AggregateModel
	CustomerID uuid.UUID               `gorm:"type:uuid;not null;index:idx_grant_customer_key,priority:1"`
	Key        string                  `gorm:"type:varchar(100);not null;index:idx_grant_customer_key,priority:2"`
	Source     entitlement.GrantSource `gorm:"type:varchar(20);not null;index:idx_grant_source,priority:1"`
	SourceID   string                  `gorm:"type:varchar(100);index:idx_grant_source,priority:2"`
	ExpiresAt  *time.Time
}

// TableName returns the table name for GORM
func (GrantModel) TableName() string {
	return "entitlement_grants"
}

// ToDomain converts the persistence model to a domain Grant entity.
func (m *GrantModel) ToDomain() *entitlement.Grant {
	g := &entitlement.Grant{
		CustomerID: m.CustomerID,
		Key:        m.Key,
		Source:     m.Source,
		SourceID:   m.SourceID,
		ExpiresAt:  m.ExpiresAt,
	}
	m.PopulateAggregateRoot(&g.BaseAggregateRoot)
	return g
}

// FromDomain populates the persistence model from a domain Grant entity.
func (m *GrantModel) FromDomain(g *entitlement.Grant) {
	m.FromDomainAggregateRoot(g.BaseAggregateRoot)
	m.CustomerID = g.CustomerID
	m.Key = g.Key
	m.Source = g.Source
	m.SourceID = g.SourceID
	m.ExpiresAt = g.ExpiresAt
}

// GrantModelFromDomain creates a new persistence model from a domain Grant entity.
func GrantModelFromDomain(g *entitlement.Grant) *GrantModel {
	m := &GrantModel{}
	m.FromDomain(g)
	return m
}

// UsageLimitModel is the persistence model for the UsageLimit domain entity.
type UsageLimitModel struct {
	AggregateModel
	CustomerID  uuid.UUID               `gorm:"type:uuid;not null;index:idx_limit_customer_key,priority:1"`
	LimitKey    string                  `gorm:"type:varchar(100);not null;index:idx_limit_customer_key,priority:2"`
	Cap         int64                   `gorm:"not null"`
	Consumed    int64                   `gorm:"not null;default:0"`
	ResetPeriod entitlement.ResetPeriod `gorm:"type:varchar(10);not null"`
	PeriodStart time.Time               `gorm:"not null"`
	SourceID    string                  `gorm:"type:varchar(100);index"`
}

// TableName returns the table name for GORM
func (UsageLimitModel) TableName() string {
	return "usage_limits"
}

// ToDomain converts the persistence model to a domain UsageLimit entity.
func (m *UsageLimitModel) ToDomain() *entitlement.UsageLimit {
	l := &entitlement.UsageLimit{
		CustomerID:  m.CustomerID,
		LimitKey:    m.LimitKey,
		Cap:         m.Cap,
		Consumed:    m.Consumed,
		ResetPeriod: m.ResetPeriod,
		PeriodStart: m.PeriodStart,
		SourceID:    m.SourceID,
	}
	m.PopulateAggregateRoot(&l.BaseAggregateRoot)
	return l
}

// FromDomain populates the persistence model from a domain UsageLimit entity.
func (m *UsageLimitModel) FromDomain(l *entitlement.UsageLimit) {
	m.FromDomainAggregateRoot(l.BaseAggregateRoot)
	m.CustomerID = l.CustomerID
	m.LimitKey = l.LimitKey
	m.Cap = l.Cap
	m.Consumed = l.Consumed
	m.ResetPeriod = l.ResetPeriod
	m.PeriodStart = l.PeriodStart
	m.SourceID = l.SourceID
}

// UsageLimitModelFromDomain creates a new persistence model from a domain UsageLimit entity.
func UsageLimitModelFromDomain(l *entitlement.UsageLimit) *UsageLimitModel {
	m := &UsageLimitModel{}
	m.FromDomain(l)
	return m
}
