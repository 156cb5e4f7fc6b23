// Package stages derives the survival-conditioned elimination market from a
// devigged probability model: what a bet against advancement should pay at
// each stage, given the team got there.
package stages

import (
	"github.com/phenomenon0/cuprun/core"
	"github.com/phenomenon0/cuprun/pkg/engine/odds"
)

// StageOdds describes the conditional elimination market at one stage.
// CondProb is the probability of going out at this stage given survival so
// far, in percent. FairOdds is its reciprocal as decimal odds; when the
// conditional probability is zero the odds are undefined and HasFairOdds is
// false. Consumers must check the flag; an infinity is never stored.
type StageOdds struct {
	Stage        core.Outcome `json:"stage"`
	FairProb     float64      `json:"fair_prob"`
	SurvivalProb float64      `json:"survival_prob"`
	CondProb     float64      `json:"cond_prob"`
	FairOdds     float64      `json:"fair_odds"`
	HasFairOdds  bool         `json:"has_fair_odds"`
	AdjustedOdds float64      `json:"adjusted_odds"`
}

// Ladder is the ordered sequence of per-stage conditional odds together with
// the run-level probabilities it must reconcile with: the cumulative
// eliminated share plus the reaches-final share equals 100.
type Ladder struct {
	Stages         []StageOdds `json:"stages"`
	CumulativeElim float64     `json:"cumulative_elim"`
	FinalProb      float64     `json:"final_prob"`
	VigFactor      float64     `json:"vig_factor"`
}

// Build walks the elimination rounds in order, tracking the cumulative
// eliminated probability, and derives each stage's conditional elimination
// probability and payout odds. Adjusted odds scale the fair odds by the one
// global vig factor from the full odds set; the margin is deliberately not
// re-derived per stage.
func Build(m odds.ProbabilityModel) Ladder {
	ladder := Ladder{
		VigFactor: m.VigFactor,
		FinalProb: m.FairFinal(),
	}

	cumulative := 0.0 // percent eliminated before the current stage
	for _, stage := range core.EliminationStages() {
		fair := m.Fair[stage]
		survival := (100 - cumulative) / 100

		row := StageOdds{
			Stage:        stage,
			FairProb:     fair,
			SurvivalProb: survival * 100,
		}

		if survival > 0 {
			row.CondProb = fair / 100 / survival * 100
		}
		if row.CondProb > 0 {
			row.FairOdds = 100 / row.CondProb
			row.HasFairOdds = true
			row.AdjustedOdds = row.FairOdds * m.VigFactor
		}

		cumulative += fair
		ladder.Stages = append(ladder.Stages, row)
	}

	ladder.CumulativeElim = cumulative
	return ladder
}

// ByStage returns the ladder row for one elimination stage.
func (l Ladder) ByStage(stage core.Outcome) (StageOdds, bool) {
	for _, row := range l.Stages {
		if row.Stage == stage {
			return row, true
		}
	}
	return StageOdds{}, false
}
