package analysis

import (
	"errors"
	"math"
	"reflect"
	"testing"

	"github.com/phenomenon0/cuprun/core"
	"github.com/phenomenon0/cuprun/pkg/engine/scenario"

	"github.com/shopspring/decimal"
)

// uniformOdds carries no bookmaker margin, so the blended arithmetic can be
// checked by hand: five stages at 16% each and a 20% reaches-final share.
func uniformOdds() core.OddsSet {
	return core.OddsSet{
		core.StageLeague:     6.25,
		core.StagePlayoff:    6.25,
		core.StageLast16:     6.25,
		core.StageQuarter:    6.25,
		core.StageSemi:       6.25,
		core.OutcomeRunnerUp: 10,
		core.OutcomeWinner:   10,
	}
}

func flatConfig() core.Config {
	return core.Config{
		TicketPrice:       decimal.NewFromInt(1000),
		TicketCount:       1,
		ResaleFeeRate:     0.10,
		ProcessingFeeRate: 0,
		FixedCost:         decimal.Zero,
		AnnualRate:        0,
		ResalePrice:       decimal.NewFromInt(1500),
		InvestorShare:     0.5,
		HedgeEnabled:      true,
		SaleMonth:         9,
		OddsFormat:        core.FormatDecimal,
	}
}

func baseInputs() Inputs {
	return Inputs{
		Config: flatConfig(),
		Odds:   uniformOdds(),
		Hedges: core.HedgePlan{
			core.StageLeague: {Stake: decimal.NewFromInt(100), PlacementMonth: 0},
		},
	}
}

func mustAnalyze(t *testing.T, a *Analyzer, in Inputs) *Report {
	t.Helper()
	report, err := a.Analyze(in)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	return report
}

func decApprox(t *testing.T, got decimal.Decimal, want, tol float64, what string) {
	t.Helper()
	g, _ := got.Float64()
	if math.Abs(g-want) > tol {
		t.Errorf("%s = %v, want %v", what, g, want)
	}
}

func TestAnalyzeExpectedValueMatchesHandComputation(t *testing.T) {
	// League elimination wins the 100 hedge at fair odds 6.25 (+525), the
	// four later eliminations forfeit it (-100), the final nets +250:
	// EV = 0.16*525 - 4*0.16*100 + 0.20*250 = 70.
	report := mustAnalyze(t, New(nil), baseInputs())

	decApprox(t, report.ExpectedValue, 70, 1e-9, "expected value")
	decApprox(t, report.InvestorValue, 35, 1e-9, "investor value")
}

func TestAnalyzeBlendedTimeline(t *testing.T) {
	report := mustAnalyze(t, New(nil), baseInputs())

	// The league hedge is placed in every scenario, so its full stake joins
	// the purchase at month zero. Sale inflows blend to
	// 0.16*1625 + 4*0.16*1000 + 0.20*1350 = 1170.
	if len(report.BlendedFlows) != 2 {
		t.Fatalf("blended flows = %+v, want two entries", report.BlendedFlows)
	}
	if report.BlendedFlows[0].Month != 0 || report.BlendedFlows[1].Month != 9 {
		t.Fatalf("blended months = %+v, want 0 and 9", report.BlendedFlows)
	}
	decApprox(t, report.BlendedFlows[0].Amount, -1100, 1e-9, "blended outflow")
	decApprox(t, report.BlendedFlows[1].Amount, 1170, 1e-9, "blended inflow")

	// EV is exactly what the blended timeline nets.
	sum := report.BlendedFlows[0].Amount.Add(report.BlendedFlows[1].Amount)
	if diff, _ := sum.Sub(report.ExpectedValue).Abs().Float64(); diff > 1e-9 {
		t.Errorf("blended net %s does not match expected value %s", sum, report.ExpectedValue)
	}
}

func TestAnalyzeExpectedIRRFromBlendedTimeline(t *testing.T) {
	report := mustAnalyze(t, New(nil), baseInputs())

	want := (math.Pow(1170.0/1100.0, 12.0/9.0) - 1) * 100
	if math.Abs(report.ExpectedIRRPct-want) > 0.05 {
		t.Errorf("expected IRR = %v, want %v from the blended timeline", report.ExpectedIRRPct, want)
	}

	// The probability-weighted average of per-scenario IRRs is a different
	// number; the engine must not fall back to it.
	avg := 0.0
	for _, s := range report.Scenarios {
		avg += s.Probability / 100 * s.IRRPct
	}
	if math.Abs(report.ExpectedIRRPct-avg) < 0.5 {
		t.Errorf("expected IRR %v suspiciously close to the scenario average %v", report.ExpectedIRRPct, avg)
	}
}

func TestAnalyzeMemoizesIdenticalInputs(t *testing.T) {
	a := New(nil)
	in := baseInputs()

	first := mustAnalyze(t, a, in)

	// Mutating the caller's map must not poison the memo key.
	in.Odds[core.StageLeague] = 99

	second := mustAnalyze(t, a, baseInputs())
	if first != second {
		t.Fatalf("identical inputs returned distinct reports")
	}

	changed := baseInputs()
	changed.Config.ResalePrice = decimal.NewFromInt(2000)
	third := mustAnalyze(t, a, changed)
	if third == first {
		t.Fatalf("changed inputs returned the memoized report")
	}

	hits, computes := a.Stats()
	if hits != 1 || computes != 2 {
		t.Errorf("stats = %d hits %d computes, want 1 and 2", hits, computes)
	}
}

func TestAnalyzeIsPureAcrossInstances(t *testing.T) {
	r1 := mustAnalyze(t, New(nil), baseInputs())
	r2 := mustAnalyze(t, New(nil), baseInputs())
	if !reflect.DeepEqual(*r1, *r2) {
		t.Errorf("same inputs produced different reports across analyzers")
	}
}

func TestAnalyzeAmericanFormatMatchesDecimal(t *testing.T) {
	american := baseInputs()
	american.Config.OddsFormat = core.FormatAmerican
	american.Odds = core.OddsSet{
		core.StageLeague:     425,
		core.StagePlayoff:    425,
		core.StageLast16:     425,
		core.StageQuarter:    425,
		core.StageSemi:       425,
		core.OutcomeRunnerUp: 800,
		core.OutcomeWinner:   800,
	}

	decimalIn := baseInputs()
	decimalIn.Odds = core.OddsSet{
		core.StageLeague:     5.25,
		core.StagePlayoff:    5.25,
		core.StageLast16:     5.25,
		core.StageQuarter:    5.25,
		core.StageSemi:       5.25,
		core.OutcomeRunnerUp: 9,
		core.OutcomeWinner:   9,
	}

	ra := mustAnalyze(t, New(nil), american)
	rd := mustAnalyze(t, New(nil), decimalIn)
	if !reflect.DeepEqual(ra.Model, rd.Model) {
		t.Errorf("american odds devigged differently from their decimal equivalents")
	}
}

func TestAnalyzeRejectsInvalidInputs(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Inputs)
	}{
		{"zero ticket count", func(in *Inputs) { in.Config.TicketCount = 0 }},
		{"unknown odds format", func(in *Inputs) { in.Config.OddsFormat = "fractional" }},
		{"missing outcome", func(in *Inputs) { delete(in.Odds, core.OutcomeWinner) }},
		{"odds at 1.0", func(in *Inputs) { in.Odds[core.StageSemi] = 1.0 }},
		{"negative stake", func(in *Inputs) {
			in.Hedges[core.StagePlayoff] = core.HedgeLeg{Stake: decimal.NewFromInt(-5)}
		}},
		{"hedge on terminal outcome", func(in *Inputs) {
			in.Hedges[core.OutcomeWinner] = core.HedgeLeg{Stake: decimal.NewFromInt(5)}
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			in := baseInputs()
			tc.mutate(&in)
			if _, err := New(nil).Analyze(in); err == nil {
				t.Errorf("Analyze accepted %s", tc.name)
			}
		})
	}
}

func TestAnalyzeInvalidAmericanOddsSurfaceSentinel(t *testing.T) {
	in := baseInputs()
	in.Config.OddsFormat = core.FormatAmerican
	in.Odds = uniformOdds()
	// 6.25 is not a valid American quote; it converts to the invalid
	// sentinel and must fail validation, not devig quietly.
	_, err := New(nil).Analyze(in)
	if !errors.Is(err, core.ErrInvalidOdds) {
		t.Fatalf("err = %v, want ErrInvalidOdds", err)
	}
}

func TestBreakevenClosedForm(t *testing.T) {
	cfg := core.Config{
		TicketPrice:       decimal.NewFromInt(4185),
		TicketCount:       2,
		ResaleFeeRate:     0.15,
		ProcessingFeeRate: 0.03,
		AnnualRate:        0,
		ResalePrice:       decimal.NewFromInt(6000),
		SaleMonth:         9,
		OddsFormat:        core.FormatDecimal,
	}

	be, err := Breakeven(cfg, nil)
	if err != nil {
		t.Fatalf("Breakeven: %v", err)
	}
	decApprox(t, be, 8370.0/(2*0.82), 1e-6, "breakeven price")

	// Selling at exactly that price zeroes the finals P&L.
	final := scenario.NewBuilder(nil).Final(cfg, nil, be, 20)
	if pl, _ := final.NetPL.Abs().Float64(); pl > 1e-6 {
		t.Errorf("finals P&L at breakeven = %s, want 0", final.NetPL)
	}
}

func TestBreakevenChargesHedgeCostsWhenEnabled(t *testing.T) {
	cfg := flatConfig()
	cfg.AnnualRate = 5
	plan := core.HedgePlan{
		core.StageLeague: {Stake: decimal.NewFromInt(100), PlacementMonth: 0},
		core.StageSemi:   {Stake: decimal.NewFromInt(200), PlacementMonth: 6},
	}

	hedged, err := Breakeven(cfg, plan)
	if err != nil {
		t.Fatalf("Breakeven hedged: %v", err)
	}
	cfg.HedgeEnabled = false
	bare, err := Breakeven(cfg, plan)
	if err != nil {
		t.Fatalf("Breakeven bare: %v", err)
	}
	if !hedged.GreaterThan(bare) {
		t.Errorf("hedged breakeven %s not above unhedged %s", hedged, bare)
	}

	cfg.HedgeEnabled = true
	final := scenario.NewBuilder(nil).Final(cfg, plan, hedged, 20)
	if pl, _ := final.NetPL.Abs().Float64(); pl > 1e-6 {
		t.Errorf("finals P&L at hedged breakeven = %s, want 0", final.NetPL)
	}
}

func TestBreakevenUndefinedWhenFeesConsumeProceeds(t *testing.T) {
	cfg := flatConfig()
	cfg.ResaleFeeRate = 0.6
	cfg.ProcessingFeeRate = 0.4

	_, err := Breakeven(cfg, nil)
	if !errors.Is(err, ErrUndefinedBreakeven) {
		t.Fatalf("err = %v, want ErrUndefinedBreakeven", err)
	}

	// The pipeline still completes; the report just flags the field.
	in := baseInputs()
	in.Config.ResaleFeeRate = 0.6
	in.Config.ProcessingFeeRate = 0.4
	report := mustAnalyze(t, New(nil), in)
	if report.BreakevenValid {
		t.Errorf("breakeven marked valid with fees consuming all proceeds")
	}
}

func TestAnalyzeSensitivityDefaults(t *testing.T) {
	report := mustAnalyze(t, New(nil), baseInputs())

	if len(report.Sensitivity) != 41 {
		t.Fatalf("default sweep has %d points, want 41", len(report.Sensitivity))
	}
	decApprox(t, report.Sensitivity[0].Price, 750, 1e-9, "sweep start")
	decApprox(t, report.Sensitivity[40].Price, 2250, 1e-9, "sweep end")

	for i := 1; i < len(report.Sensitivity); i++ {
		prev, cur := report.Sensitivity[i-1], report.Sensitivity[i]
		if cur.FinalsPL.LessThan(prev.FinalsPL) {
			t.Fatalf("finals P&L fell from %s to %s as price rose", prev.FinalsPL, cur.FinalsPL)
		}
		if cur.Expected.LessThan(prev.Expected) {
			t.Fatalf("expected value fell from %s to %s as price rose", prev.Expected, cur.Expected)
		}
	}
}

func TestAnalyzeSensitivityCustomSweep(t *testing.T) {
	in := baseInputs()
	in.Sweep = &SweepConfig{
		Start:  decimal.NewFromInt(100),
		End:    decimal.NewFromInt(200),
		Points: 5,
	}
	report := mustAnalyze(t, New(nil), in)

	if len(report.Sensitivity) != 5 {
		t.Fatalf("custom sweep has %d points, want 5", len(report.Sensitivity))
	}
	wantPrices := []int64{100, 125, 150, 175, 200}
	for i, want := range wantPrices {
		if !report.Sensitivity[i].Price.Equal(decimal.NewFromInt(want)) {
			t.Errorf("point %d price = %s, want %d", i, report.Sensitivity[i].Price, want)
		}
	}
}

func TestAnalyzeSensitivityAgreesWithReportAtConfiguredPrice(t *testing.T) {
	in := baseInputs()
	in.Sweep = &SweepConfig{
		Start:  in.Config.ResalePrice,
		End:    in.Config.ResalePrice,
		Points: 1,
	}
	report := mustAnalyze(t, New(nil), in)

	if len(report.Sensitivity) != 1 {
		t.Fatalf("single-point sweep has %d points", len(report.Sensitivity))
	}
	point := report.Sensitivity[0]
	if diff, _ := point.Expected.Sub(report.ExpectedValue).Abs().Float64(); diff > 1e-9 {
		t.Errorf("sweep at the configured price gives EV %s, report says %s", point.Expected, report.ExpectedValue)
	}
}
