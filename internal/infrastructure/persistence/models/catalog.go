package models

import (
	"encoding/json"
	"time"

	"github.com/openbilling/backend/internal/domain/catalog"
	"github.com/openbilling/backend/internal/domain/shared/valueobject"
)

// PlanModel is the persistence model for the Plan domain entity.
type PlanModel struct {
	AggregateModel
	Code            string                  `gorm:"type:varchar(50);not null;uniqueIndex:idx_plan_code_version,priority:1"`
	PlanVersion     int                     `gorm:"not null;uniqueIndex:idx_plan_code_version,priority:2"`
	Name            string                  `gorm:"type:varchar(200);not null"`
	AmountMinor     int64                   `gorm:"not null"`
	Currency        string                  `gorm:"type:varchar(3);not null"`
	Interval        catalog.BillingInterval `gorm:"type:varchar(10);not null"`
	TrialDays       int                     `gorm:"not null;default:0"`
	EntitlementKeys string                  `gorm:"type:jsonb"`
	LimitDefs       string                  `gorm:"type:jsonb"`
	Active          bool                    `gorm:"not null;default:true;index"`
}

// TableName returns the table name for GORM
func (PlanModel) TableName() string {
	return "plans"
}

// ToDomain converts the persistence model to a domain Plan entity.
func (m *PlanModel) ToDomain() *catalog.Plan {
	p := &catalog.Plan{
		Code:        m.Code,
		PlanVersion: m.PlanVersion,
		Name:        m.Name,
		AmountMinor: m.AmountMinor,
		Currency:    valueobject.Currency(m.Currency),
		Interval:    m.Interval,
		TrialDays:   m.TrialDays,
		Active:      m.Active,
	}
	m.PopulateAggregateRoot(&p.BaseAggregateRoot)

	if m.EntitlementKeys != "" {
		_ = json.Unmarshal([]byte(m.EntitlementKeys), &p.EntitlementKeys)
	}
	if m.LimitDefs != "" {
		_ = json.Unmarshal([]byte(m.LimitDefs), &p.LimitDefs)
	}

	return p
}

// FromDomain populates the persistence model from a domain Plan entity.
func (m *PlanModel) FromDomain(p *catalog.Plan) {
	m.FromDomainAggregateRoot(p.BaseAggregateRoot)
	m.Code = p.Code
	m.PlanVersion = p.PlanVersion
	m.Name = p.Name
	m.AmountMinor = p.AmountMinor
	m.Currency = string(p.Currency)
	m.Interval = p.Interval
	m.TrialDays = p.TrialDays
	m.Active = p.Active

	if jsonBytes, err := json.Marshal(p.EntitlementKeys); err == nil {
		m.EntitlementKeys = string(jsonBytes)
	}
	if jsonBytes, err := json.Marshal(p.LimitDefs); err == nil {
		m.LimitDefs = string(jsonBytes)
	}
}

// PlanModelFromDomain creates a new persistence model from a domain Plan entity.
func PlanModelFromDomain(p *catalog.Plan) *PlanModel {
	m := &PlanModel{}
	m.FromDomain(p)
	return m
}

// PromoCodeModel is the persistence model for the PromoCode domain entity.
type PromoCodeModel struct {
	AggregateModel
	Code           string               `gorm:"type:varchar(50);not null;uniqueIndex"`
	DiscountType   catalog.DiscountType `gorm:"type:varchar(20);not null"`
	PercentOff     int                  `gorm:"not null;default:0"`
	AmountOffMinor int64                `gorm:"not null;default:0"`
	Currency       string               `gorm:"type:varchar(3)"`
	Conditions     string               `gorm:"type:jsonb"`
	MaxRedemptions int                  `gorm:"not null;default:0"`
	TimesRedeemed  int                  `gorm:"not null;default:0"`
	ExpiresAt      *time.Time
	Active         bool `gorm:"not null;default:true;index"`
}

// TableName returns the table name for GORM
func (PromoCodeModel) TableName() string {
	return "promo_codes"
}

// ToDomain converts the persistence model to a domain PromoCode entity.
func (m *PromoCodeModel) ToDomain() *catalog.PromoCode {
	p := &catalog.PromoCode{
		Code:           m.Code,
		DiscountType:   m.DiscountType,
		PercentOff:     m.PercentOff,
		AmountOffMinor: m.AmountOffMinor,
		Currency:       valueobject.Currency(m.Currency),
		MaxRedemptions: m.MaxRedemptions,
		TimesRedeemed:  m.TimesRedeemed,
		ExpiresAt:      m.ExpiresAt,
		Active:         m.Active,
	}
	m.PopulateAggregateRoot(&p.BaseAggregateRoot)

	if m.Conditions != "" {
		_ = json.Unmarshal([]byte(m.Conditions), &p.Conditions)
	}

	return p
}

// FromDomain populates the persistence model from a domain PromoCode entity.
func (m *PromoCodeModel) FromDomain(p *catalog.PromoCode) {
	m.FromDomainAggregateRoot(p.BaseAggregateRoot)
	m.Code = p.Code
	m.DiscountType = p.DiscountType
	m.PercentOff = p.PercentOff
	m.AmountOffMinor = p.AmountOffMinor
	m.Currency = string(p.Currency)
	m.MaxRedemptions = p.MaxRedemptions
	m.TimesRedeemed = p.TimesRedeemed
	m.ExpiresAt = p.ExpiresAt
	m.Active = p.Active

	if jsonBytes, err := json.Marshal(p.Conditions); err == nil {
		m.Conditions = string(jsonBytes)
	}
}

// PromoCodeModelFromDomain creates a new persistence model from a domain PromoCode entity.
func PromoCodeModelFromDomain(p *catalog.PromoCode) *PromoCodeModel {
	m := &PromoCodeModel{}
	m.FromDomain(p)
	return m
}
