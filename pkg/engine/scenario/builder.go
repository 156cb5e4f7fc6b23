package scenario

import (
	"github.com/phenomenon0/cuprun/core"
	"github.com/phenomenon0/cuprun/pkg/engine/carry"
	"github.com/phenomenon0/cuprun/pkg/engine/irr"
	"github.com/phenomenon0/cuprun/pkg/engine/stages"

	"github.com/shopspring/decimal"
)

// Builder prices outcome scenarios and solves their timelines for a return.
type Builder struct {
	solver *irr.Solver
}

// NewBuilder creates a builder. A nil solver gets default configuration.
func NewBuilder(solver *irr.Solver) *Builder {
	if solver == nil {
		solver = irr.NewSolver(nil)
	}
	return &Builder{solver: solver}
}

// Build prices all six scenarios: elimination at each ladder stage in order,
// then reaching the final at the configured resale price. Probabilities
// across the six sum to 100 whenever the odds set devigs cleanly.
func (b *Builder) Build(cfg core.Config, ladder stages.Ladder, plan core.HedgePlan) []Scenario {
	out := make([]Scenario, 0, len(ladder.Stages)+1)
	for i := range ladder.Stages {
		out = append(out, b.buildElimination(cfg, ladder, plan, i))
	}
	out = append(out, b.Final(cfg, plan, cfg.ResalePrice, ladder.FinalProb))
	return out
}

// buildElimination prices the run ending at ladder stage idx. The ticket is
// reimbursed at full purchase cost with no fees. Hedge bets exist only for
// stages already reached: earlier stakes are forfeited, the stage's own bet
// pays at the vig-adjusted odds, and later stages are never placed.
func (b *Builder) buildElimination(cfg core.Config, ladder stages.Ladder, plan core.HedgePlan, idx int) Scenario {
	row := ladder.Stages[idx]
	purchase := cfg.PurchaseCost()

	s := Scenario{
		Outcome:       row.Stage,
		Label:         row.Stage.Label(),
		Probability:   row.FairProb,
		GrossProceeds: purchase,
		BaseCarry:     carry.Cost(purchase, 0, cfg.SaleMonth, cfg.AnnualRate),
	}

	payout := decimal.Zero
	if cfg.HedgeEnabled {
		placed := make([]core.Outcome, 0, idx+1)
		for i := 0; i <= idx; i++ {
			stage := ladder.Stages[i].Stage
			placed = append(placed, stage)
			leg, ok := plan[stage]
			if !ok || leg.Stake.IsZero() {
				continue
			}
			s.HedgeOutflows = append(s.HedgeOutflows, core.CashFlow{Month: leg.PlacementMonth, Amount: leg.Stake.Neg()})
			if i == idx && row.HasFairOdds {
				payout = leg.Stake.Mul(decimal.NewFromFloat(row.AdjustedOdds))
			}
			s.HedgeResult = s.HedgeResult.Sub(leg.Stake)
		}
		s.HedgeResult = s.HedgeResult.Add(payout)
		s.HedgeCarry = carry.PlanCost(plan, placed, cfg.SaleMonth, cfg.AnnualRate, true)
	}

	s.SaleInflow = purchase.Add(payout)
	s.NetPL = s.HedgeResult.Sub(s.BaseCarry).Sub(s.HedgeCarry)
	s.CashFlows = b.timeline(purchase, cfg.SaleMonth, s.SaleInflow, s.HedgeOutflows)
	s.IRRPct = b.solver.AnnualizedIRR(s.CashFlows)
	return s
}

// Final prices the reaches-final outcome at an arbitrary resale price, so
// the sensitivity sweep can reuse it. Build calls it with the configured
// price and the ladder's residual probability. Every hedge bet loses.
func (b *Builder) Final(cfg core.Config, plan core.HedgePlan, price decimal.Decimal, probability float64) Scenario {
	purchase := cfg.PurchaseCost()
	gross := price.Mul(decimal.NewFromInt(int64(cfg.TicketCount)))
	fees := gross.Mul(decimal.NewFromFloat(cfg.ResaleFeeRate)).
		Add(gross.Mul(decimal.NewFromFloat(cfg.ProcessingFeeRate))).
		Add(cfg.FixedCost)

	s := Scenario{
		Outcome:       core.OutcomeFinal,
		Label:         core.OutcomeFinal.Label(),
		Probability:   probability,
		GrossProceeds: gross,
		Fees:          fees,
		BaseCarry:     carry.Cost(purchase, 0, cfg.SaleMonth, cfg.AnnualRate),
	}

	if cfg.HedgeEnabled {
		for _, stage := range core.EliminationStages() {
			leg, ok := plan[stage]
			if !ok || leg.Stake.IsZero() {
				continue
			}
			s.HedgeOutflows = append(s.HedgeOutflows, core.CashFlow{Month: leg.PlacementMonth, Amount: leg.Stake.Neg()})
			s.HedgeResult = s.HedgeResult.Sub(leg.Stake)
		}
		s.HedgeCarry = carry.PlanCost(plan, core.EliminationStages(), cfg.SaleMonth, cfg.AnnualRate, true)
	}

	s.SaleInflow = gross.Sub(fees)
	s.NetPL = s.SaleInflow.Sub(purchase).Sub(s.BaseCarry).Sub(s.HedgeCarry).Add(s.HedgeResult)
	s.CashFlows = b.timeline(purchase, cfg.SaleMonth, s.SaleInflow, s.HedgeOutflows)
	s.IRRPct = b.solver.AnnualizedIRR(s.CashFlows)
	return s
}

func (b *Builder) timeline(purchase decimal.Decimal, saleMonth float64, inflow decimal.Decimal, hedges []core.CashFlow) []core.CashFlow {
	flows := make([]core.CashFlow, 0, len(hedges)+2)
	flows = append(flows, core.CashFlow{Month: 0, Amount: purchase.Neg()})
	flows = append(flows, hedges...)
	flows = append(flows, core.CashFlow{Month: saleMonth, Amount: inflow})
	return core.MergeFlows(flows)
}
