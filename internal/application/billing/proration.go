package billing

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/openbilling/backend/internal/domain/catalog"
	"github.com/openbilling/backend/internal/domain/shared"
)

// ProrationBehavior controls how a mid-cycle plan change is billed
type ProrationBehavior string

const (
	// ProrationCreateProrations credits unused old-plan time and charges the
	// new plan for the remainder of the period on the next invoice.
	ProrationCreateProrations ProrationBehavior = "create_prorations"
	// ProrationNone switches the plan without any credit or charge.
	ProrationNone ProrationBehavior = "none"
	// ProrationAlwaysInvoice computes the same amounts as create_prorations
	// but settles them on an immediate invoice.
	ProrationAlwaysInvoice ProrationBehavior = "always_invoice"
)

// IsValid returns true if the behavior is a known proration behavior
func (b ProrationBehavior) IsValid() bool {
	switch b {
	case ProrationCreateProrations, ProrationNone, ProrationAlwaysInvoice:
		return true
	}
	return false
}

// ProrationResult holds the prorated amounts of a plan change, in minor
// currency units. Net = Charge - Credit; negative net means the customer is
// owed a credit. InvoiceNow reports whether the net should be settled
// immediately rather than rolled into the next invoice.
type ProrationResult struct {
	CreditMinor int64 `json:"credit_minor"`
	ChargeMinor int64 `json:"charge_minor"`
	NetMinor    int64 `json:"net_minor"`
	InvoiceNow  bool  `json:"invoice_now"`
}

// ComputeProration calculates the credit for unused time on the old plan and
// the charge for remaining time on the new plan when a subscription changes
// plans at changeAt within [periodStart, periodEnd].
//
// The remaining-time ratio is carried in decimals end to end; rounding to
// minor units happens once per output amount, half up, so repeated plan
// changes do not compound rounding error.
//
// Boundary behavior: changeAt at periodStart yields the full new-plan charge
// with zero credit (the old plan never consumed any of the period); changeAt
// at periodEnd yields zero for both.
func ComputeProration(oldPlan, newPlan *catalog.Plan, periodStart, periodEnd, changeAt time.Time, behavior ProrationBehavior) (ProrationResult, error) {
	if oldPlan == nil || newPlan == nil {
		return ProrationResult{}, shared.NewDomainError("INVALID_PLAN", "Proration requires both plans")
	}
	if !periodEnd.After(periodStart) {
		return ProrationResult{}, shared.ErrInvalidPeriod
	}
	if changeAt.Before(periodStart) || changeAt.After(periodEnd) {
		return ProrationResult{}, shared.ErrInvalidPeriod
	}
	if !behavior.IsValid() {
		return ProrationResult{}, shared.NewDomainError("INVALID_BEHAVIOR", "Unknown proration behavior")
	}

	if behavior == ProrationNone {
		return ProrationResult{}, nil
	}

	result := ProrationResult{InvoiceNow: behavior == ProrationAlwaysInvoice}

	remaining := decimal.NewFromInt(periodEnd.Sub(changeAt).Nanoseconds())
	total := decimal.NewFromInt(periodEnd.Sub(periodStart).Nanoseconds())
	ratio := remaining.Div(total)

	charge := decimal.NewFromInt(newPlan.AmountMinor).Mul(ratio)
	if changeAt.Equal(periodStart) {
		// the old plan consumed none of the period, so there is nothing to
		// credit; the new plan is charged in full
		result.ChargeMinor = newPlan.AmountMinor
		result.NetMinor = newPlan.AmountMinor
		return result, nil
	}

	credit := decimal.NewFromInt(oldPlan.AmountMinor).Mul(ratio)

	result.CreditMinor = credit.Round(0).IntPart()
	result.ChargeMinor = charge.Round(0).IntPart()
	result.NetMinor = result.ChargeMinor - result.CreditMinor
	return result, nil
}
