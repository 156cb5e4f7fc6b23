package odds

import "github.com/phenomenon0/cuprun/core"

// ProbabilityModel is the devigged view of one odds set: implied and fair
// probabilities in percent, the bookmaker margin, and the global vig factor
// used to scale fair odds back toward market odds.
type ProbabilityModel struct {
	Implied      map[core.Outcome]float64 `json:"implied"`
	Fair         map[core.Outcome]float64 `json:"fair"`
	TotalImplied float64                  `json:"total_implied"`
	Margin       float64                  `json:"margin"`
	VigFactor    float64                  `json:"vig_factor"`
}

// Devig removes the bookmaker margin from an odds set. Implied probability
// per outcome is 100/odds (0 for odds at or below zero); fair probability
// rescales implied so the distribution sums to 100. A non-positive total
// implied probability resolves every fair probability and the vig factor to
// 0 rather than dividing.
func Devig(set core.OddsSet) ProbabilityModel {
	outcomes := core.Outcomes()
	m := ProbabilityModel{
		Implied: make(map[core.Outcome]float64, len(outcomes)),
		Fair:    make(map[core.Outcome]float64, len(outcomes)),
	}

	for _, o := range outcomes {
		implied := 0.0
		if v := set[o]; v > 0 {
			implied = 100 / v
		}
		m.Implied[o] = implied
		m.TotalImplied += implied
	}
	m.Margin = m.TotalImplied - 100

	if m.TotalImplied <= 0 {
		for _, o := range outcomes {
			m.Fair[o] = 0
		}
		return m
	}

	m.VigFactor = 100 / m.TotalImplied
	for _, o := range outcomes {
		m.Fair[o] = m.Implied[o] / m.TotalImplied * 100
	}
	return m
}

// FairFinal returns the fair probability, in percent, of reaching the final:
// the sum of the two terminal outcomes.
func (m ProbabilityModel) FairFinal() float64 {
	return m.Fair[core.OutcomeRunnerUp] + m.Fair[core.OutcomeWinner]
}
