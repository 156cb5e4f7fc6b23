// Package carry prices the time value of capital tied up in the deal: the
// ticket purchase itself and each hedge stake, from placement until the sale
// month.
package carry

import (
	"math"

	"github.com/phenomenon0/cuprun/core"

	"github.com/shopspring/decimal"
)

// Cost returns the opportunity cost of amount held from placementMonth until
// saleMonth at annualRatePct percent per year:
//
//	amount * ((1+rate/100)^((sale-place)/12) - 1)
//
// Negative rates turn the cost into a discount. Rates at or below -100%/yr
// do not compound and cost nothing.
func Cost(amount decimal.Decimal, placementMonth, saleMonth, annualRatePct float64) decimal.Decimal {
	if amount.IsZero() {
		return decimal.Zero
	}
	growth := growthFactor(annualRatePct, saleMonth-placementMonth)
	return amount.Mul(decimal.NewFromFloat(growth - 1))
}

// PlanCost sums Cost over the named stages' hedge legs. Disabled hedging
// costs nothing regardless of the plan.
func PlanCost(plan core.HedgePlan, through []core.Outcome, saleMonth, annualRatePct float64, enabled bool) decimal.Decimal {
	if !enabled {
		return decimal.Zero
	}
	total := decimal.Zero
	for _, stage := range through {
		leg, ok := plan[stage]
		if !ok || leg.Stake.IsZero() {
			continue
		}
		total = total.Add(Cost(leg.Stake, leg.PlacementMonth, saleMonth, annualRatePct))
	}
	return total
}

func growthFactor(annualRatePct, months float64) float64 {
	base := 1 + annualRatePct/100
	if base <= 0 {
		return 1
	}
	return math.Pow(base, months/12)
}
