package analysis

import (
	"errors"

	"github.com/phenomenon0/cuprun/core"
	"github.com/phenomenon0/cuprun/pkg/engine/carry"

	"github.com/shopspring/decimal"
)

// ErrUndefinedBreakeven means the percentage fees consume the entire gross
// resale proceeds, so no finite price recovers the costs.
var ErrUndefinedBreakeven = errors.New("breakeven undefined: fees consume all resale proceeds")

// Breakeven returns the per-unit resale price at which the reaches-final
// scenario exactly breaks even. Closed form: the finals net P&L is linear in
// price, so the price that zeroes it is total cost over net proceeds per
// price unit. Hedge stakes and their carry count as costs only when hedging
// is enabled.
func Breakeven(cfg core.Config, plan core.HedgePlan) (decimal.Decimal, error) {
	netFee := cfg.NetFeeRate()
	if netFee <= 0 {
		return decimal.Zero, ErrUndefinedBreakeven
	}

	cost := cfg.PurchaseCost().
		Add(carry.Cost(cfg.PurchaseCost(), 0, cfg.SaleMonth, cfg.AnnualRate)).
		Add(cfg.FixedCost)
	if cfg.HedgeEnabled {
		cost = cost.Add(plan.TotalStake()).
			Add(carry.PlanCost(plan, core.EliminationStages(), cfg.SaleMonth, cfg.AnnualRate, true))
	}

	perUnit := decimal.NewFromInt(int64(cfg.TicketCount)).Mul(decimal.NewFromFloat(netFee))
	return cost.Div(perUnit), nil
}
