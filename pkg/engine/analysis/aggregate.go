package analysis

import (
	"github.com/phenomenon0/cuprun/core"
	"github.com/phenomenon0/cuprun/pkg/engine/scenario"

	"github.com/shopspring/decimal"
)

// expectedValue is the probability-weighted net P&L across the scenarios.
func expectedValue(scenarios []scenario.Scenario) decimal.Decimal {
	ev := decimal.Zero
	for _, s := range scenarios {
		ev = ev.Add(s.NetPL.Mul(decimal.NewFromFloat(s.Probability / 100)))
	}
	return ev
}

// blendTimeline builds the expected cash-flow timeline: the full purchase at
// month zero, each hedge stake weighted by the probability it is actually
// placed, and each scenario's sale inflow weighted by the scenario's
// probability. Solving this single timeline gives the expected return; a
// probability-weighted average of the per-scenario returns would not, since
// IRR is not linear in the flows.
func blendTimeline(cfg core.Config, scenarios []scenario.Scenario) []core.CashFlow {
	flows := []core.CashFlow{{Month: 0, Amount: cfg.PurchaseCost().Neg()}}
	for _, s := range scenarios {
		weight := decimal.NewFromFloat(s.Probability / 100)
		for _, h := range s.HedgeOutflows {
			flows = append(flows, core.CashFlow{Month: h.Month, Amount: h.Amount.Mul(weight)})
		}
		flows = append(flows, core.CashFlow{Month: cfg.SaleMonth, Amount: s.SaleInflow.Mul(weight)})
	}
	return core.MergeFlows(flows)
}
