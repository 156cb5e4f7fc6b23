// Package odds converts between odds encodings and removes bookmaker margin
// from a full outcome distribution.
package odds

import (
	"math"

	"github.com/phenomenon0/cuprun/core"
)

// InvalidDecimal is the sentinel returned by ToDecimal for American values
// inside (-100, 100), which no bookmaker quotes. Callers must treat it as
// non-hedgeable rather than as real odds.
const InvalidDecimal = 1.0

// ToDecimal converts a displayed odds value into decimal odds. American +150
// pays 1.5x the stake in profit (decimal 2.5); American -200 risks 200 to
// win 100 (decimal 1.5). Values inside (-100, 100) map to InvalidDecimal.
// The decimal format passes through unchanged.
func ToDecimal(format core.OddsFormat, value float64) float64 {
	if format != core.FormatAmerican {
		return value
	}
	switch {
	case value >= 100:
		return 1 + value/100
	case value <= -100:
		return 1 + 100/math.Abs(value)
	default:
		return InvalidDecimal
	}
}

// ToDisplay converts decimal odds into the selected display encoding. The
// American encoding rounds to whole numbers, so a round trip through
// ToDecimal can differ from the original value by up to one unit; that loss
// is inherent to the encoding. Decimal odds at or below 1.0 display as 0,
// the invalid sentinel.
func ToDisplay(dec float64, format core.OddsFormat) float64 {
	if format != core.FormatAmerican {
		return dec
	}
	switch {
	case dec >= 2:
		return math.Round((dec - 1) * 100)
	case dec > 1:
		return math.Round(-100 / (dec - 1))
	default:
		return 0
	}
}
