package catalog

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/openbilling/backend/internal/domain/shared"
	"github.com/openbilling/backend/internal/domain/shared/valueobject"
)

// DiscountType represents how a promo code discounts a purchase
type DiscountType string

const (
	DiscountPercent     DiscountType = "percent"
	DiscountFixedAmount DiscountType = "fixed_amount"
)

// PromoConditionType identifies a condition a promo code requires
type PromoConditionType string

const (
	ConditionFirstPurchase PromoConditionType = "first_purchase"
	ConditionMinAmount     PromoConditionType = "min_amount"
	ConditionMinQuantity   PromoConditionType = "min_quantity"
	ConditionPlanScope     PromoConditionType = "plan_scope"
	ConditionProductScope  PromoConditionType = "product_scope"
	ConditionDateRange     PromoConditionType = "date_range"
	ConditionCustomerTag   PromoConditionType = "customer_tag"
)

// PromoCondition is a single requirement on a promo code. All conditions on a
// code must pass for the code to resolve.
type PromoCondition struct {
	Type PromoConditionType `json:"type"`

	// MinAmountMinor applies to min_amount conditions
	MinAmountMinor int64 `json:"min_amount_minor,omitempty"`
	// MinQuantity applies to min_quantity conditions
	MinQuantity int `json:"min_quantity,omitempty"`
	// Codes applies to plan_scope and product_scope conditions
	Codes []string `json:"codes,omitempty"`
	// From/Until apply to date_range conditions
	From  *time.Time `json:"from,omitempty"`
	Until *time.Time `json:"until,omitempty"`
	// Tag applies to customer_tag conditions
	Tag string `json:"tag,omitempty"`
}

// PromoCode is a redeemable discount code. Redemption counting is deferred to
// payment confirmation so abandoned checkouts do not burn redemptions.
type PromoCode struct {
	shared.BaseAggregateRoot
	Code            string
	DiscountType    DiscountType
	PercentOff      int   // 1..100 when DiscountType is percent
	AmountOffMinor  int64 // minor units when DiscountType is fixed_amount
	Currency        valueobject.Currency
	Conditions      []PromoCondition
	MaxRedemptions  int // 0 = uncapped
	TimesRedeemed   int
	ExpiresAt       *time.Time
	Active          bool
}

// NewPercentPromoCode creates a percent-off promo code
func NewPercentPromoCode(code string, percentOff int) (*PromoCode, error) {
	if err := validatePromoCode(code); err != nil {
		return nil, err
	}
	if percentOff < 1 || percentOff > 100 {
		return nil, shared.NewDomainError("INVALID_DISCOUNT", "Percent off must be between 1 and 100")
	}
	return &PromoCode{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		Code:              normalizePromoCode(code),
		DiscountType:      DiscountPercent,
		PercentOff:        percentOff,
		Active:            true,
	}, nil
}

// NewFixedPromoCode creates a fixed-amount-off promo code
func NewFixedPromoCode(code string, amountOffMinor int64, currency valueobject.Currency) (*PromoCode, error) {
	if err := validatePromoCode(code); err != nil {
		return nil, err
	}
	if amountOffMinor <= 0 {
		return nil, shared.NewDomainError("INVALID_DISCOUNT", "Fixed discount must be positive")
	}
	if currency == "" {
		return nil, shared.NewDomainError("INVALID_CURRENCY", "Fixed discount requires a currency")
	}
	return &PromoCode{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		Code:              normalizePromoCode(code),
		DiscountType:      DiscountFixedAmount,
		AmountOffMinor:    amountOffMinor,
		Currency:          currency,
		Active:            true,
	}, nil
}

// WithConditions sets the conditions required to redeem the code
func (p *PromoCode) WithConditions(conds ...PromoCondition) *PromoCode {
	p.Conditions = conds
	return p
}

// WithMaxRedemptions caps total redemptions of the code
func (p *PromoCode) WithMaxRedemptions(max int) *PromoCode {
	if max >= 0 {
		p.MaxRedemptions = max
	}
	return p
}

// WithExpiry sets the code's expiration time
func (p *PromoCode) WithExpiry(at time.Time) *PromoCode {
	p.ExpiresAt = &at
	return p
}

// IsExpired returns true if the code has expired at the given time
func (p *PromoCode) IsExpired(now time.Time) bool {
	return p.ExpiresAt != nil && !now.Before(*p.ExpiresAt)
}

// IsExhausted returns true if the redemption cap has been reached
func (p *PromoCode) IsExhausted() bool {
	return p.MaxRedemptions > 0 && p.TimesRedeemed >= p.MaxRedemptions
}

// Redeemable returns true if the code can currently be resolved
func (p *PromoCode) Redeemable(now time.Time) bool {
	return p.Active && !p.IsExpired(now) && !p.IsExhausted()
}

// RecordRedemption increments the redemption counter. Called only on confirmed
// payment, never at resolution time.
func (p *PromoCode) RecordRedemption() error {
	if p.IsExhausted() {
		return shared.ErrPromoInvalid
	}
	p.TimesRedeemed++
	p.Touch()
	p.IncrementVersion()
	return nil
}

// Deactivate disables the code
func (p *PromoCode) Deactivate() {
	p.Active = false
	p.Touch()
	p.IncrementVersion()
}

// DiscountOn computes the discount in minor units against a cart amount. The
// result never exceeds the amount being discounted.
func (p *PromoCode) DiscountOn(amountMinor int64) int64 {
	var off int64
	switch p.DiscountType {
	case DiscountPercent:
		m, err := valueobject.NewMoneyFromMinorUnits(amountMinor, valueobject.USD)
		if err != nil {
			return 0
		}
		off = m.CalculatePercentage(decimal.NewFromInt(int64(p.PercentOff))).MinorUnits()
	case DiscountFixedAmount:
		off = p.AmountOffMinor
	}
	if off > amountMinor {
		off = amountMinor
	}
	if off < 0 {
		off = 0
	}
	return off
}

func normalizePromoCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func validatePromoCode(code string) error {
	code = strings.TrimSpace(code)
	if code == "" {
		return shared.NewDomainError("INVALID_CODE", "Promo code cannot be empty")
	}
	if len(code) > 50 {
		return shared.NewDomainError("INVALID_CODE", "Promo code cannot exceed 50 characters")
	}
	return nil
}
