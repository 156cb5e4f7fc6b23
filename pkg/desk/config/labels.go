package config

import (
	"strings"
	"unicode"

	"github.com/phenomenon0/cuprun/core"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// stripMarks decomposes and drops combining marks, so accented labels match
// their plain spelling.
var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// aliases maps normalized labels to outcomes. The canonical ids resolve
// through the same table since normalization turns underscores into spaces.
var aliases = map[string]core.Outcome{
	"league phase":   core.StageLeague,
	"league":         core.StageLeague,
	"group stage":    core.StageLeague,
	"group phase":    core.StageLeague,
	"fase liga":      core.StageLeague,
	"fase de liga":   core.StageLeague,
	"phase de ligue": core.StageLeague,

	"playoff":   core.StagePlayoff,
	"playoffs":  core.StagePlayoff,
	"play off":  core.StagePlayoff,
	"play offs": core.StagePlayoff,

	"round of 16":         core.StageLast16,
	"last 16":             core.StageLast16,
	"octavos":             core.StageLast16,
	"octavos de final":    core.StageLast16,
	"achtelfinale":        core.StageLast16,
	"huitiemes":           core.StageLast16,
	"huitiemes de finale": core.StageLast16,

	"quarter final":    core.StageQuarter,
	"quarter finals":   core.StageQuarter,
	"quarterfinal":     core.StageQuarter,
	"quarterfinals":    core.StageQuarter,
	"cuartos":          core.StageQuarter,
	"cuartos de final": core.StageQuarter,
	"viertelfinale":    core.StageQuarter,
	"quarts de finale": core.StageQuarter,

	"semi final":   core.StageSemi,
	"semi finals":  core.StageSemi,
	"semifinal":    core.StageSemi,
	"semifinals":   core.StageSemi,
	"semifinales":  core.StageSemi,
	"halbfinale":   core.StageSemi,
	"demi finale":  core.StageSemi,
	"demi finales": core.StageSemi,

	"runner up":  core.OutcomeRunnerUp,
	"runnerup":   core.OutcomeRunnerUp,
	"finalist":   core.OutcomeRunnerUp,
	"subcampeon": core.OutcomeRunnerUp,

	"winner":    core.OutcomeWinner,
	"champion":  core.OutcomeWinner,
	"campeon":   core.OutcomeWinner,
	"sieger":    core.OutcomeWinner,
	"vainqueur": core.OutcomeWinner,
}

// CanonicalOutcome resolves a configuration key or human label, in any of
// the supported spellings, to its outcome.
func CanonicalOutcome(name string) (core.Outcome, bool) {
	outcome, ok := aliases[normalizeLabel(name)]
	return outcome, ok
}

func normalizeLabel(name string) string {
	out, _, err := transform.String(stripMarks, name)
	if err != nil {
		out = name
	}
	out = strings.ToLower(out)
	out = strings.NewReplacer("-", " ", "_", " ", "/", " ").Replace(out)
	return strings.Join(strings.Fields(out), " ")
}
