package models

import (
	"encoding/json"
	"time"

	"github.com/openbilling/backend/internal/domain/account"
)

// CustomerModel is the persistence model for the Customer domain entity.
type CustomerModel struct {
	AggregateModel
	ExternalID  string     `gorm:"type:varchar(100);not null;uniqueIndex:idx_customer_external_livemode,priority:1"`
	Email       string     `gorm:"type:varchar(200);index"`
	Name        string     `gorm:"type:varchar(200)"`
	Phone       string     `gorm:"type:varchar(50)"`
	ProviderIDs string     `gorm:"type:jsonb"`
	Tags        string     `gorm:"type:jsonb"`
	Metadata    string     `gorm:"type:jsonb"`
	Livemode    bool       `gorm:"not null;uniqueIndex:idx_customer_external_livemode,priority:2"`
	DeletedAt   *time.Time `gorm:"index"`
}

// TableName returns the table name for GORM
func (CustomerModel) TableName() string {
	return "customers"
}

// ToDomain converts the persistence model to a domain Customer entity.
func (m *CustomerModel) ToDomain() *account.Customer {
	c := &account.Customer{
		ExternalID: m.ExternalID,
		Email:      m.Email,
		Name:       m.Name,
		Phone:      m.Phone,
		Livemode:   m.Livemode,
		DeletedAt:  m.DeletedAt,
	}
	m.PopulateAggregateRoot(&c.BaseAggregateRoot)

	c.ProviderIDs = make(map[string]string)
	if m.ProviderIDs != "" {
		_ = json.Unmarshal([]byte(m.ProviderIDs), &c.ProviderIDs)
	}
	if m.Tags != "" {
		_ = json.Unmarshal([]byte(m.Tags), &c.Tags)
	}
	c.Metadata = make(map[string]string)
	if m.Metadata != "" {
		_ = json.Unmarshal([]byte(m.Metadata), &c.Metadata)
	}

	return c
}

// FromDomain populates the persistence model from a domain Customer entity.
func (m *CustomerModel) FromDomain(c *account.Customer) {
	m.FromDomainAggregateRoot(c.BaseAggregateRoot)
	m.ExternalID = c.ExternalID
	m.Email = c.Email
	m.Name = c.Name
	m.Phone = c.Phone
	m.Livemode = c.Livemode
	m.DeletedAt = c.DeletedAt

	if jsonBytes, err := json.Marshal(c.ProviderIDs); err == nil {
		m.ProviderIDs = string(jsonBytes)
	}
	if jsonBytes, err := json.Marshal(c.Tags); err == nil {
		m.Tags = string(jsonBytes)
	}
	if jsonBytes, err := json.Marshal(c.Metadata); err == nil {
		m.Metadata = string(jsonBytes)
	}
}

// CustomerModelFromDomain creates a new persistence model from a domain Customer entity.
func CustomerModelFromDomain(c *account.Customer) *CustomerModel {
	m := &CustomerModel{}
	m.FromDomain(c)
	return m
}
