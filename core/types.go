// Package core defines the shared domain types for the cuprun engine:
// outcomes, odds sets, hedge plans, cash flows, and the deal configuration.
package core

import (
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// Outcome identifies how the followed team's tournament run can end.
//
// The five elimination stages are ordered; the two terminal outcomes jointly
// mean the team reaches the final. Outcomes are mutually exclusive and
// collectively exhaustive.
type Outcome string

const (
	StageLeague  Outcome = "league_phase"
	StagePlayoff Outcome = "playoff"
	StageLast16  Outcome = "round_of_16"
	StageQuarter Outcome = "quarter_final"
	StageSemi    Outcome = "semi_final"

	OutcomeRunnerUp Outcome = "runner_up"
	OutcomeWinner   Outcome = "winner"

	// OutcomeFinal is not an odds entry; it labels the merged
	// runner-up-or-winner scenario.
	OutcomeFinal Outcome = "reaches_final"
)

// EliminationStages returns the elimination rounds in tournament order.
func EliminationStages() []Outcome {
	return []Outcome{StageLeague, StagePlayoff, StageLast16, StageQuarter, StageSemi}
}

// Outcomes returns every odds-bearing outcome: the five elimination stages
// followed by the two terminal outcomes.
func Outcomes() []Outcome {
	return append(EliminationStages(), OutcomeRunnerUp, OutcomeWinner)
}

// IsStage reports whether o is one of the elimination stages.
func (o Outcome) IsStage() bool {
	switch o {
	case StageLeague, StagePlayoff, StageLast16, StageQuarter, StageSemi:
		return true
	default:
		return false
	}
}

// Label returns a display name for the outcome.
func (o Outcome) Label() string {
	switch o {
	case StageLeague:
		return "Out in league phase"
	case StagePlayoff:
		return "Out in playoff"
	case StageLast16:
		return "Out in round of 16"
	case StageQuarter:
		return "Out in quarter-final"
	case StageSemi:
		return "Out in semi-final"
	case OutcomeRunnerUp:
		return "Runner-up"
	case OutcomeWinner:
		return "Winner"
	case OutcomeFinal:
		return "Reaches the final"
	default:
		return string(o)
	}
}

// OddsFormat selects how odds are entered and displayed.
type OddsFormat string

const (
	FormatDecimal  OddsFormat = "decimal"
	FormatAmerican OddsFormat = "american"
)

// Valid reports whether the format is one of the supported encodings.
func (f OddsFormat) Valid() bool {
	return f == FormatDecimal || f == FormatAmerican
}

// ErrInvalidOdds rejects decimal odds at or below 1.0.
var ErrInvalidOdds = errors.New("decimal odds must be greater than 1.0")

// OddsSet maps every outcome to its decimal betting odds.
type OddsSet map[Outcome]float64

// Validate checks that every outcome is present with decimal odds above 1.0.
// Callers that receive an error keep their previous valid set; a partially
// valid set is never merged.
func (s OddsSet) Validate() error {
	for _, o := range Outcomes() {
		v, ok := s[o]
		if !ok {
			return fmt.Errorf("odds for %s missing", o)
		}
		if v <= 1.0 {
			return fmt.Errorf("odds for %s = %v: %w", o, v, ErrInvalidOdds)
		}
	}
	return nil
}

// Clone returns an independent copy of the set. A nil set stays nil.
func (s OddsSet) Clone() OddsSet {
	if s == nil {
		return nil
	}
	out := make(OddsSet, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// HedgeLeg is one planned bet against advancement at a stage: the stake laid
// and the month, counted from purchase, at which the bet is placed.
type HedgeLeg struct {
	Stake          decimal.Decimal `json:"stake"`
	PlacementMonth float64         `json:"placement_month"`
}

// HedgePlan maps elimination stages to their planned hedge legs.
type HedgePlan map[Outcome]HedgeLeg

// Validate checks that every key is an elimination stage and that stakes and
// placement months are non-negative.
func (p HedgePlan) Validate() error {
	for stage, leg := range p {
		if !stage.IsStage() {
			return fmt.Errorf("hedge leg on %s: not an elimination stage", stage)
		}
		if leg.Stake.IsNegative() {
			return fmt.Errorf("hedge stake for %s is negative", stage)
		}
		if leg.PlacementMonth < 0 {
			return fmt.Errorf("hedge placement month for %s is negative", stage)
		}
	}
	return nil
}

// TotalStake sums every stake in the plan.
func (p HedgePlan) TotalStake() decimal.Decimal {
	total := decimal.Zero
	for _, leg := range p {
		total = total.Add(leg.Stake)
	}
	return total
}

// Clone returns an independent copy of the plan. A nil plan stays nil.
func (p HedgePlan) Clone() HedgePlan {
	if p == nil {
		return nil
	}
	out := make(HedgePlan, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// CashFlow is one dated cash movement, in months from purchase. Outflows are
// negative, inflows positive. Ordering carries no meaning; only the month
// values matter.
type CashFlow struct {
	Month  float64         `json:"month"`
	Amount decimal.Decimal `json:"amount"`
}

// MergeFlows combines same-month amounts, drops exact zeros, and orders by
// month, so identical inputs always produce identical timelines.
func MergeFlows(flows []CashFlow) []CashFlow {
	byMonth := make(map[float64]decimal.Decimal, len(flows))
	months := make([]float64, 0, len(flows))
	for _, f := range flows {
		if _, ok := byMonth[f.Month]; !ok {
			months = append(months, f.Month)
		}
		byMonth[f.Month] = byMonth[f.Month].Add(f.Amount)
	}
	sort.Float64s(months)

	out := make([]CashFlow, 0, len(months))
	for _, m := range months {
		if amt := byMonth[m]; !amt.IsZero() {
			out = append(out, CashFlow{Month: m, Amount: amt})
		}
	}
	return out
}

// Config holds the externally owned deal parameters. TicketPrice and
// ResalePrice are per unit; fee rates are fractions of gross proceeds;
// AnnualRate is a percentage per year and may be negative. The engine treats
// a Config as read-only; produce a new value for every change.
type Config struct {
	TicketPrice       decimal.Decimal `json:"ticket_price"`
	TicketCount       int             `json:"ticket_count"`
	ResaleFeeRate     float64         `json:"resale_fee_rate"`
	ProcessingFeeRate float64         `json:"processing_fee_rate"`
	FixedCost         decimal.Decimal `json:"fixed_cost"`
	AnnualRate        float64         `json:"annual_rate"`
	ResalePrice       decimal.Decimal `json:"resale_price"`
	InvestorShare     float64         `json:"investor_share"`
	HedgeEnabled      bool            `json:"hedge_enabled"`
	SaleMonth         float64         `json:"sale_month"`
	OddsFormat        OddsFormat      `json:"odds_format"`
}

// PurchaseCost returns the full outlay for all tickets.
func (c Config) PurchaseCost() decimal.Decimal {
	return c.TicketPrice.Mul(decimal.NewFromInt(int64(c.TicketCount)))
}

// NetFeeRate returns the fraction of gross resale proceeds kept after the
// percentage fees. At or below zero the resale economics are undefined.
func (c Config) NetFeeRate() float64 {
	return 1 - c.ResaleFeeRate - c.ProcessingFeeRate
}

// Validate checks ranges on the deal parameters.
func (c Config) Validate() error {
	if c.TicketPrice.IsNegative() {
		return fmt.Errorf("ticket price is negative")
	}
	if c.TicketCount < 1 {
		return fmt.Errorf("ticket count must be at least 1, got %d", c.TicketCount)
	}
	if c.ResaleFeeRate < 0 || c.ResaleFeeRate >= 1 {
		return fmt.Errorf("resale fee rate %v outside [0, 1)", c.ResaleFeeRate)
	}
	if c.ProcessingFeeRate < 0 || c.ProcessingFeeRate >= 1 {
		return fmt.Errorf("processing fee rate %v outside [0, 1)", c.ProcessingFeeRate)
	}
	if c.FixedCost.IsNegative() {
		return fmt.Errorf("fixed cost is negative")
	}
	if c.ResalePrice.IsNegative() {
		return fmt.Errorf("resale price is negative")
	}
	if c.InvestorShare < 0 || c.InvestorShare > 1 {
		return fmt.Errorf("investor share %v outside [0, 1]", c.InvestorShare)
	}
	if c.SaleMonth < 0 {
		return fmt.Errorf("sale month is negative")
	}
	if !c.OddsFormat.Valid() {
		return fmt.Errorf("unknown odds format %q", c.OddsFormat)
	}
	return nil
}
