package config

import (
	"testing"

	"github.com/phenomenon0/cuprun/core"
)

func TestCanonicalOutcome(t *testing.T) {
	tests := []struct {
		in   string
		want core.Outcome
	}{
		{"league_phase", core.StageLeague},
		{"Group Stage", core.StageLeague},
		{"phase de ligue", core.StageLeague},
		{"PLAY-OFF", core.StagePlayoff},
		{"round_of_16", core.StageLast16},
		{"Last 16", core.StageLast16},
		{"huitièmes de finale", core.StageLast16},
		{"Achtelfinale", core.StageLast16},
		{"quarter_final", core.StageQuarter},
		{"Viertelfinale", core.StageQuarter},
		{"cuartos de final", core.StageQuarter},
		{"semi_final", core.StageSemi},
		{"  Demi-finale  ", core.StageSemi},
		{"runner_up", core.OutcomeRunnerUp},
		{"Subcampeón", core.OutcomeRunnerUp},
		{"winner", core.OutcomeWinner},
		{"Vainqueur", core.OutcomeWinner},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			got, ok := CanonicalOutcome(tc.in)
			if !ok {
				t.Fatalf("CanonicalOutcome(%q) not recognized", tc.in)
			}
			if got != tc.want {
				t.Errorf("CanonicalOutcome(%q) = %s, want %s", tc.in, got, tc.want)
			}
		})
	}
}

func TestCanonicalOutcomeRejectsUnknownLabels(t *testing.T) {
	for _, in := range []string{"", "third place", "reaches_final", "final"} {
		if got, ok := CanonicalOutcome(in); ok {
			t.Errorf("CanonicalOutcome(%q) = %s, want no match", in, got)
		}
	}
}
