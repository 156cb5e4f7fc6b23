// Package analysis runs the full valuation pipeline: devig the odds ladder,
// price every outcome scenario, and aggregate them into expected value,
// expected return, breakeven, and a price sensitivity sweep.
//
// The pipeline is pure: the same inputs always produce an identical Report,
// byte for byte once marshaled. The analyzer memoizes the last run so
// repeated requests (pollers, dashboards) reuse it.
package analysis

import (
	"reflect"
	"sync"

	"github.com/phenomenon0/cuprun/core"
	"github.com/phenomenon0/cuprun/pkg/engine/irr"
	"github.com/phenomenon0/cuprun/pkg/engine/odds"
	"github.com/phenomenon0/cuprun/pkg/engine/scenario"
	"github.com/phenomenon0/cuprun/pkg/engine/stages"

	"github.com/shopspring/decimal"
)

// Inputs is everything a run depends on. Odds values are interpreted in the
// configured odds format; Sweep nil means the default sweep around the
// configured resale price.
type Inputs struct {
	Config core.Config    `json:"config"`
	Odds   core.OddsSet   `json:"odds"`
	Hedges core.HedgePlan `json:"hedges"`
	Sweep  *SweepConfig   `json:"sweep,omitempty"`
}

// Report is the complete result of one pipeline run. ExpectedIRRPct is
// solved from the probability-blended timeline, not averaged from the
// per-scenario returns. Breakeven is only meaningful when BreakevenValid is
// set; resale economics with no net proceeds leave it undefined.
type Report struct {
	Model          odds.ProbabilityModel `json:"model"`
	Ladder         stages.Ladder         `json:"ladder"`
	Scenarios      []scenario.Scenario   `json:"scenarios"`
	ExpectedValue  decimal.Decimal       `json:"expected_value"`
	ExpectedIRRPct float64               `json:"expected_irr_pct"`
	InvestorValue  decimal.Decimal       `json:"investor_value"`
	Breakeven      decimal.Decimal       `json:"breakeven"`
	BreakevenValid bool                  `json:"breakeven_valid"`
	BlendedFlows   []core.CashFlow       `json:"blended_flows"`
	Sensitivity    []SweepPoint          `json:"sensitivity"`
}

// Analyzer runs the pipeline. Safe for concurrent use.
type Analyzer struct {
	solver  *irr.Solver
	builder *scenario.Builder

	mu       sync.Mutex
	lastIn   *Inputs
	lastOut  *Report
	hits     uint64
	computes uint64
}

// New creates an analyzer. A nil solver gets default configuration.
func New(solver *irr.Solver) *Analyzer {
	if solver == nil {
		solver = irr.NewSolver(nil)
	}
	return &Analyzer{solver: solver, builder: scenario.NewBuilder(solver)}
}

// Analyze validates the inputs and runs the pipeline. When the inputs equal
// the previous call's, the previous Report is returned unchanged.
func (a *Analyzer) Analyze(in Inputs) (*Report, error) {
	if err := in.Config.Validate(); err != nil {
		return nil, err
	}
	if err := in.Hedges.Validate(); err != nil {
		return nil, err
	}
	normalized := normalizeOdds(in.Config.OddsFormat, in.Odds)
	if err := normalized.Validate(); err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.lastIn != nil && reflect.DeepEqual(*a.lastIn, in) {
		a.hits++
		return a.lastOut, nil
	}

	report := a.compute(in, normalized)
	a.lastIn = in.clone()
	a.lastOut = report
	a.computes++
	return report, nil
}

// clone detaches the memo key from caller-owned maps.
func (in Inputs) clone() *Inputs {
	saved := in
	saved.Odds = in.Odds.Clone()
	saved.Hedges = in.Hedges.Clone()
	if in.Sweep != nil {
		sweep := *in.Sweep
		saved.Sweep = &sweep
	}
	return &saved
}

// Stats reports how many calls were served from the memo and how many were
// computed.
func (a *Analyzer) Stats() (hits, computes uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.hits, a.computes
}

func (a *Analyzer) compute(in Inputs, normalized core.OddsSet) *Report {
	model := odds.Devig(normalized)
	ladder := stages.Build(model)
	scenarios := a.builder.Build(in.Config, ladder, in.Hedges)

	report := &Report{
		Model:     model,
		Ladder:    ladder,
		Scenarios: scenarios,
	}

	report.ExpectedValue = expectedValue(scenarios)
	report.InvestorValue = report.ExpectedValue.Mul(decimal.NewFromFloat(in.Config.InvestorShare))
	report.BlendedFlows = blendTimeline(in.Config, scenarios)
	report.ExpectedIRRPct = a.solver.AnnualizedIRR(report.BlendedFlows)

	if be, err := Breakeven(in.Config, in.Hedges); err == nil {
		report.Breakeven = be
		report.BreakevenValid = true
	}

	report.Sensitivity = a.sweep(in, ladder, scenarios)
	return report
}

// normalizeOdds converts the set's values to decimal odds. American values
// that encode no valid price become the invalid sentinel and fail the
// set's validation downstream.
func normalizeOdds(format core.OddsFormat, set core.OddsSet) core.OddsSet {
	if format != core.FormatAmerican {
		return set.Clone()
	}
	out := make(core.OddsSet, len(set))
	for o, v := range set {
		out[o] = odds.ToDecimal(format, v)
	}
	return out
}
