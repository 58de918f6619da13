package catalog

import "github.com/openbilling/backend/internal/domain/shared"

const (
	AggregateTypePlan      = "Plan"
	AggregateTypePromoCode = "PromoCode"
)

// PlanCreated is raised when a new plan version is created
type PlanCreated struct {
	shared.BaseDomainEvent
	Code        string `json:"code"`
	PlanVersion int    `json:"plan_version"`
	AmountMinor int64  `json:"amount_minor"`
}

// NewPlanCreated creates a plan created event
func NewPlanCreated(p *Plan) *PlanCreated {
	return &PlanCreated{
		BaseDomainEvent: shared.NewBaseDomainEvent("plan.created", AggregateTypePlan, p.ID),
		Code:            p.Code,
		PlanVersion:     p.PlanVersion,
		AmountMinor:     p.AmountMinor,
	}
}

// PlanDeactivated is raised when a plan is retired from new signups
type PlanDeactivated struct {
	shared.BaseDomainEvent
	Code        string `json:"code"`
	PlanVersion int    `json:"plan_version"`
}

// NewPlanDeactivated creates a plan deactivated event
func NewPlanDeactivated(p *Plan) *PlanDeactivated {
	return &PlanDeactivated{
		BaseDomainEvent: shared.NewBaseDomainEvent("plan.deactivated", AggregateTypePlan, p.ID),
		Code:            p.Code,
		PlanVersion:     p.PlanVersion,
	}
}

// PromoCodeRedeemed is raised when a redemption is confirmed against a code
type PromoCodeRedeemed struct {
	shared.BaseDomainEvent
	Code          string `json:"code"`
	TimesRedeemed int    `json:"times_redeemed"`
}

// NewPromoCodeRedeemed creates a promo code redeemed event
func NewPromoCodeRedeemed(p *PromoCode) *PromoCodeRedeemed {
	return &PromoCodeRedeemed{
		BaseDomainEvent: shared.NewBaseDomainEvent("promo_code.redeemed", AggregateTypePromoCode, p.ID),
		Code:            p.Code,
		TimesRedeemed:   p.TimesRedeemed,
	}
}
