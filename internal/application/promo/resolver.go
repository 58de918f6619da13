package promo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/openbilling/backend/internal/domain/account"
	"github.com/openbilling/backend/internal/domain/billing"
	"github.com/openbilling/backend/internal/domain/catalog"
	"github.com/openbilling/backend/internal/domain/shared"
)

// CartContext carries everything a promo condition can be evaluated against
type CartContext struct {
	AmountMinor  int64
	Quantity     int
	PlanCode     string
	ProductCodes []string
	Now          time.Time
}

// Resolution is the outcome of a successful promo resolution. Resolution
// never increments the redemption counter; that happens on payment
// confirmation inside the reconciler's transaction.
type Resolution struct {
	Code          string               `json:"code"`
	DiscountType  catalog.DiscountType `json:"discount_type"`
	DiscountMinor int64                `json:"discount_minor"`
	TotalMinor    int64                `json:"total_minor"`
}

// Resolver validates promo codes against their conditions and computes the
// resulting discount. All conditions on a code must pass; any failure is a
// typed PromoInvalid, never a silent fallback to no discount.
type Resolver struct {
	promos    catalog.PromoCodeRepository
	customers account.CustomerRepository
	invoices  billing.InvoiceRepository
	logger    *zap.Logger
}

// ResolverConfig contains the collaborators of a Resolver
type ResolverConfig struct {
	Promos    catalog.PromoCodeRepository
	Customers account.CustomerRepository
	Invoices  billing.InvoiceRepository
	Logger    *zap.Logger
}

// NewResolver creates a new Resolver
func NewResolver(cfg ResolverConfig) *Resolver {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		promos:    cfg.Promos,
		customers: cfg.Customers,
		invoices:  cfg.Invoices,
		logger:    logger,
	}
}

// Resolve validates code for the customer and cart and computes the discount.
// Expired, exhausted, unknown, or condition-failing codes return
// ErrPromoInvalid; the caller decides whether to proceed without a discount.
func (r *Resolver) Resolve(ctx context.Context, code string, customerID uuid.UUID, cart CartContext) (*Resolution, error) {
	now := cart.Now
	if now.IsZero() {
		now = time.Now()
	}

	promo, err := r.promos.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			r.logger.Info("Unknown promo code", zap.String("code", code))
			return nil, shared.ErrPromoInvalid
		}
		return nil, fmt.Errorf("failed to find promo code: %w", err)
	}

	if !promo.Redeemable(now) {
		r.logger.Info("Promo code not redeemable",
			zap.String("code", promo.Code),
			zap.Bool("expired", promo.IsExpired(now)),
			zap.Bool("exhausted", promo.IsExhausted()))
		return nil, shared.ErrPromoInvalid
	}

	for _, cond := range promo.Conditions {
		ok, err := r.evaluate(ctx, cond, customerID, cart, now)
		if err != nil {
			return nil, err
		}
		if !ok {
			r.logger.Info("Promo condition failed",
				zap.String("code", promo.Code),
				zap.String("condition", string(cond.Type)))
			return nil, shared.ErrPromoInvalid
		}
	}

	discount := promo.DiscountOn(cart.AmountMinor)
	return &Resolution{
		Code:          promo.Code,
		DiscountType:  promo.DiscountType,
		DiscountMinor: discount,
		TotalMinor:    cart.AmountMinor - discount,
	}, nil
}

func (r *Resolver) evaluate(ctx context.Context, cond catalog.PromoCondition, customerID uuid.UUID, cart CartContext, now time.Time) (bool, error) {
	switch cond.Type {
	case catalog.ConditionFirstPurchase:
		paid, err := r.invoices.CountPaidByCustomer(ctx, customerID)
		if err != nil {
			return false, fmt.Errorf("failed to count purchases: %w", err)
		}
		return paid == 0, nil

	case catalog.ConditionMinAmount:
		return cart.AmountMinor >= cond.MinAmountMinor, nil

	case catalog.ConditionMinQuantity:
		return cart.Quantity >= cond.MinQuantity, nil

	case catalog.ConditionPlanScope:
		return containsCode(cond.Codes, cart.PlanCode), nil

	case catalog.ConditionProductScope:
		for _, product := range cart.ProductCodes {
			if containsCode(cond.Codes, product) {
				return true, nil
			}
		}
		return false, nil

	case catalog.ConditionDateRange:
		if cond.From != nil && now.Before(*cond.From) {
			return false, nil
		}
		if cond.Until != nil && !now.Before(*cond.Until) {
			return false, nil
		}
		return true, nil

	case catalog.ConditionCustomerTag:
		customer, err := r.customers.FindByID(ctx, customerID)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				return false, nil
			}
			return false, fmt.Errorf("failed to find customer: %w", err)
		}
		return customer.HasTag(cond.Tag), nil
	}

	// unknown condition types never pass; failing open would hand out
	// discounts the code's author did not intend
	r.logger.Warn("Unknown promo condition type", zap.String("type", string(cond.Type)))
	return false, nil
}

func containsCode(codes []string, code string) bool {
	if code == "" {
		return false
	}
	for _, c := range codes {
		if c == code {
			return true
		}
	}
	return false
}
