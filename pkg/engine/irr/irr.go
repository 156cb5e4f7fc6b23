// Package irr solves cash-flow timelines for their internal rate of return
// with a Newton-Raphson iteration on the monthly rate.
package irr

import (
	"math"

	"github.com/phenomenon0/cuprun/core"
)

// TotalLossPct is reported when the solve cannot produce a usable rate:
// divergence, degenerate flows with no root, or a monthly rate at or below
// -100%. Read it as "maximum representable loss"; for some degenerate flow
// sets it is a floor rather than a literal annual rate of exactly -100%.
const TotalLossPct = -100.0

// Config tunes the Newton-Raphson iteration. Rates are monthly fractions.
type Config struct {
	InitialGuess    float64
	Tolerance       float64
	MaxIterations   int
	DerivativeFloor float64
}

// DefaultConfig returns the solver defaults.
func DefaultConfig() *Config {
	return &Config{
		InitialGuess:    0.01,
		Tolerance:       1e-7,
		MaxIterations:   100,
		DerivativeFloor: 1e-12,
	}
}

// Solver finds the rate that zeroes the net present value of a timeline.
type Solver struct {
	config *Config
}

// NewSolver creates a solver. A nil config uses DefaultConfig.
func NewSolver(config *Config) *Solver {
	if config == nil {
		config = DefaultConfig()
	}
	return &Solver{config: config}
}

// Result is one solve outcome. When Converged is false, AnnualizedPct holds
// TotalLossPct and MonthlyRate the last rate visited.
type Result struct {
	AnnualizedPct float64 `json:"annualized_pct"`
	MonthlyRate   float64 `json:"monthly_rate"`
	Iterations    int     `json:"iterations"`
	Converged     bool    `json:"converged"`
}

// Solve runs Newton-Raphson on f(r) = sum(amount/(1+r)^month) from the
// configured initial guess. It always terminates within MaxIterations: on
// convergence the monthly rate annualizes as ((1+r)^12 - 1) * 100; a
// vanishing derivative, a candidate rate at or below -100% monthly, and
// iteration exhaustion (no real root, as with all-positive or all-negative
// flow sets) all yield TotalLossPct.
func (s *Solver) Solve(flows []core.CashFlow) Result {
	months := make([]float64, len(flows))
	amounts := make([]float64, len(flows))
	for i, flow := range flows {
		months[i] = flow.Month
		amounts[i] = flow.Amount.InexactFloat64()
	}

	r := s.config.InitialGuess
	for i := 0; i < s.config.MaxIterations; i++ {
		var f, deriv float64
		for j := range amounts {
			discounted := math.Pow(1+r, months[j])
			f += amounts[j] / discounted
			deriv -= months[j] * amounts[j] / (discounted * (1 + r))
		}

		if math.Abs(deriv) < s.config.DerivativeFloor {
			return Result{AnnualizedPct: TotalLossPct, MonthlyRate: r, Iterations: i}
		}

		next := r - f/deriv
		if next <= -1 {
			return Result{AnnualizedPct: TotalLossPct, MonthlyRate: next, Iterations: i + 1}
		}
		if math.Abs(next-r) < s.config.Tolerance {
			return Result{
				AnnualizedPct: annualize(next),
				MonthlyRate:   next,
				Iterations:    i + 1,
				Converged:     true,
			}
		}
		r = next
	}

	return Result{AnnualizedPct: TotalLossPct, MonthlyRate: r, Iterations: s.config.MaxIterations}
}

// AnnualizedIRR is Solve reduced to its annual percentage.
func (s *Solver) AnnualizedIRR(flows []core.CashFlow) float64 {
	return s.Solve(flows).AnnualizedPct
}

func annualize(monthly float64) float64 {
	return (math.Pow(1+monthly, 12) - 1) * 100
}
