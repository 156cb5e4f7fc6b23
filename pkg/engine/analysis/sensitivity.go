package analysis

import (
	"github.com/phenomenon0/cuprun/pkg/engine/scenario"
	"github.com/phenomenon0/cuprun/pkg/engine/stages"

	"github.com/shopspring/decimal"
)

// SweepConfig bounds the resale price sensitivity sweep. Points is the
// number of evenly spaced prices, endpoints included.
type SweepConfig struct {
	Start  decimal.Decimal `json:"start"`
	End    decimal.Decimal `json:"end"`
	Points int             `json:"points"`
}

// DefaultSweep spans half to one-and-a-half times the expected resale price.
func DefaultSweep(resale decimal.Decimal) SweepConfig {
	return SweepConfig{
		Start:  resale.Mul(decimal.NewFromFloat(0.5)),
		End:    resale.Mul(decimal.NewFromFloat(1.5)),
		Points: 41,
	}
}

// SweepPoint is the valuation at one candidate resale price: the net P&L of
// the reaches-final scenario at that price, and the run's expected value
// with that scenario repriced.
type SweepPoint struct {
	Price    decimal.Decimal `json:"price"`
	FinalsPL decimal.Decimal `json:"finals_pl"`
	Expected decimal.Decimal `json:"expected"`
}

// sweep reprices only the reaches-final scenario at each candidate price;
// the elimination scenarios do not depend on the resale price and keep
// their P&L.
func (a *Analyzer) sweep(in Inputs, ladder stages.Ladder, scenarios []scenario.Scenario) []SweepPoint {
	cfg := DefaultSweep(in.Config.ResalePrice)
	if in.Sweep != nil {
		cfg = *in.Sweep
	}
	if cfg.Points < 1 {
		return nil
	}

	elimEV := decimal.Zero
	for _, s := range scenarios {
		if s.Outcome.IsStage() {
			elimEV = elimEV.Add(s.NetPL.Mul(decimal.NewFromFloat(s.Probability / 100)))
		}
	}
	finalWeight := decimal.NewFromFloat(ladder.FinalProb / 100)

	step := decimal.Zero
	if cfg.Points > 1 {
		step = cfg.End.Sub(cfg.Start).Div(decimal.NewFromInt(int64(cfg.Points - 1)))
	}

	points := make([]SweepPoint, 0, cfg.Points)
	for i := 0; i < cfg.Points; i++ {
		price := cfg.Start.Add(step.Mul(decimal.NewFromInt(int64(i))))
		final := a.builder.Final(in.Config, in.Hedges, price, ladder.FinalProb)
		points = append(points, SweepPoint{
			Price:    price,
			FinalsPL: final.NetPL,
			Expected: elimEV.Add(final.NetPL.Mul(finalWeight)),
		})
	}
	return points
}
