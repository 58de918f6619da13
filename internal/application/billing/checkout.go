package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	promoapp "github.com/openbilling/backend/internal/application/promo"
	"github.com/openbilling/backend/internal/domain/account"
	"github.com/openbilling/backend/internal/domain/billing"
	"github.com/openbilling/backend/internal/domain/catalog"
	"github.com/openbilling/backend/internal/domain/shared"
)

// PromoResolver validates a promo code and computes its discount
type PromoResolver interface {
	Resolve(ctx context.Context, code string, customerID uuid.UUID, cart promoapp.CartContext) (*promoapp.Resolution, error)
}

// CheckoutRequest describes a checkout: a new subscription, or a plan change
// on an existing one when SubscriptionID is set.
type CheckoutRequest struct {
	CustomerID     uuid.UUID
	PlanCode       string
	PlanVersion    int // 0 = latest
	Quantity       int64
	PromoCode      string
	SubscriptionID *uuid.UUID
	ChangeAt       time.Time         // plan changes only; zero = now
	Behavior       ProrationBehavior // plan changes only; default create_prorations
}

// Quote is a priced checkout before execution. Amounts are minor units; a
// negative Total from proration credit is clamped to zero at charge time.
type Quote struct {
	PlanCode        string          `json:"plan_code"`
	PlanVersion     int             `json:"plan_version"`
	Quantity        int64           `json:"quantity"`
	SubtotalMinor   int64           `json:"subtotal_minor"`
	DiscountMinor   int64           `json:"discount_minor"`
	PromoCode       string          `json:"promo_code,omitempty"`
	Proration       ProrationResult `json:"proration"`
	TotalMinor      int64           `json:"total_minor"`
	TrialDays       int             `json:"trial_days"`
	CurrencyCode    string          `json:"currency"`
	ExistingPlanCut bool            `json:"existing_plan_cut"` // true when this checkout replaces a live plan
}

// CheckoutService prices and executes checkouts. Execution only talks to the
// payment provider; local state changes land later when the provider's
// webhook events are reconciled.
type CheckoutService struct {
	customers     account.CustomerRepository
	plans         catalog.PlanRepository
	subscriptions billing.SubscriptionRepository
	resolver      PromoResolver
	payments      PaymentProvider
	provider      string
	logger        *zap.Logger
}

// CheckoutServiceConfig contains the collaborators of a CheckoutService
type CheckoutServiceConfig struct {
	Customers     account.CustomerRepository
	Plans         catalog.PlanRepository
	Subscriptions billing.SubscriptionRepository
	Resolver      PromoResolver
	Payments      PaymentProvider
	Provider      string // provider name used for customer id mapping, e.g. "stripe"
	Logger        *zap.Logger
}

// NewCheckoutService creates a new CheckoutService
func NewCheckoutService(cfg CheckoutServiceConfig) *CheckoutService {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CheckoutService{
		customers:     cfg.Customers,
		plans:         cfg.Plans,
		subscriptions: cfg.Subscriptions,
		resolver:      cfg.Resolver,
		payments:      cfg.Payments,
		provider:      cfg.Provider,
		logger:        logger,
	}
}

// Preview prices a checkout without touching the provider. Promo failures
// propagate as ErrPromoInvalid so the caller can decide whether to retry
// without the code.
func (s *CheckoutService) Preview(ctx context.Context, req CheckoutRequest) (*Quote, error) {
	plan, err := s.findPlan(ctx, req.PlanCode, req.PlanVersion)
	if err != nil {
		return nil, err
	}
	qty := req.Quantity
	if qty <= 0 {
		qty = 1
	}

	quote := &Quote{
		PlanCode:     plan.Code,
		PlanVersion:  plan.PlanVersion,
		Quantity:     qty,
		CurrencyCode: string(plan.Currency),
		TrialDays:    plan.TrialDays,
	}
	quote.SubtotalMinor = plan.AmountMinor * qty

	if req.SubscriptionID != nil {
		proration, err := s.prorate(ctx, req, plan)
		if err != nil {
			return nil, err
		}
		quote.Proration = proration
		quote.ExistingPlanCut = true
		quote.SubtotalMinor = proration.NetMinor
	}

	if req.PromoCode != "" {
		resolution, err := s.resolver.Resolve(ctx, req.PromoCode, req.CustomerID, promoapp.CartContext{
			AmountMinor: quote.SubtotalMinor,
			Quantity:    int(qty),
			PlanCode:    plan.Code,
		})
		if err != nil {
			return nil, err
		}
		quote.PromoCode = resolution.Code
		quote.DiscountMinor = resolution.DiscountMinor
	}

	total := quote.SubtotalMinor - quote.DiscountMinor
	if total < 0 {
		total = 0
	}
	quote.TotalMinor = total
	return quote, nil
}

// Execute prices the checkout and sends it to the payment provider. The
// request's own identity (customer, plan, subscription) forms the provider
// idempotency key, so a retried Execute cannot double-charge.
func (s *CheckoutService) Execute(ctx context.Context, req CheckoutRequest) (*Quote, string, error) {
	quote, err := s.Preview(ctx, req)
	if err != nil {
		return nil, "", err
	}

	customer, err := s.customers.FindByID(ctx, req.CustomerID)
	if err != nil {
		return nil, "", fmt.Errorf("failed to find customer: %w", err)
	}
	providerCustomerID, ok := customer.ProviderID(s.provider)
	if !ok {
		return nil, "", shared.NewDomainError("CUSTOMER_UNLINKED", "Customer has no payment provider identity")
	}

	subReq := SubscriptionRequest{
		ProviderCustomerID: providerCustomerID,
		PlanCode:           quote.PlanCode,
		PlanVersion:        quote.PlanVersion,
		Quantity:           quote.Quantity,
		TrialDays:          quote.TrialDays,
		PromoCode:          quote.PromoCode,
		IdempotencyKey:     s.idempotencyKey(req),
	}
	if req.SubscriptionID != nil {
		sub, err := s.subscriptions.FindByID(ctx, *req.SubscriptionID)
		if err != nil {
			return nil, "", fmt.Errorf("failed to find subscription: %w", err)
		}
		subReq.ProviderSubscriptionID = sub.ProviderSubscriptionID
	}

	providerSubID, err := s.payments.CreateOrUpdateSubscription(ctx, subReq)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %s", shared.ErrAdapterUnavailable, err.Error())
	}

	s.logger.Info("Checkout executed",
		zap.String("customer_id", req.CustomerID.String()),
		zap.String("plan_code", quote.PlanCode),
		zap.String("provider_subscription_id", providerSubID),
		zap.Int64("total_minor", quote.TotalMinor))
	return quote, providerSubID, nil
}

func (s *CheckoutService) prorate(ctx context.Context, req CheckoutRequest, newPlan *catalog.Plan) (ProrationResult, error) {
	sub, err := s.subscriptions.FindByID(ctx, *req.SubscriptionID)
	if err != nil {
		return ProrationResult{}, fmt.Errorf("failed to find subscription: %w", err)
	}
	if err := s.guardOwnership(sub, req.CustomerID); err != nil {
		return ProrationResult{}, err
	}

	oldPlan, err := s.plans.FindByID(ctx, sub.PlanID)
	if err != nil {
		return ProrationResult{}, fmt.Errorf("failed to find current plan: %w", err)
	}

	changeAt := req.ChangeAt
	if changeAt.IsZero() {
		changeAt = time.Now()
	}
	behavior := req.Behavior
	if behavior == "" {
		behavior = ProrationCreateProrations
	}
	return ComputeProration(oldPlan, newPlan, sub.CurrentPeriodStart, sub.CurrentPeriodEnd, changeAt, behavior)
}

func (s *CheckoutService) guardOwnership(sub *billing.Subscription, customerID uuid.UUID) error {
	if sub.CustomerID != customerID {
		return shared.NewDomainError("FORBIDDEN", "Subscription belongs to a different customer")
	}
	if sub.Status.IsTerminal() {
		return shared.ErrSubscriptionTerminal
	}
	return nil
}

func (s *CheckoutService) findPlan(ctx context.Context, code string, version int) (*catalog.Plan, error) {
	var (
		plan *catalog.Plan
		err  error
	)
	if version > 0 {
		plan, err = s.plans.FindByCodeAndVersion(ctx, code, version)
	} else {
		plan, err = s.plans.FindLatestByCode(ctx, code)
	}
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.NewDomainError("PLAN_NOT_FOUND", "No such plan")
		}
		return nil, fmt.Errorf("failed to find plan: %w", err)
	}
	if !plan.Active {
		return nil, shared.NewDomainError("PLAN_INACTIVE", "Plan is closed for new signups")
	}
	return plan, nil
}

func (s *CheckoutService) idempotencyKey(req CheckoutRequest) string {
	subPart := "new"
	if req.SubscriptionID != nil {
		subPart = req.SubscriptionID.String()
	}
	return fmt.Sprintf("checkout:%s:%s:%d:%s", req.CustomerID, req.PlanCode, req.PlanVersion, subPart)
}
