// Package fixed provides exact base-10 arithmetic for monetary and
// probability values. Everything persisted or compared goes through these
// helpers so repeated runs produce bit-identical rows.
package fixed

import (
	"github.com/shopspring/decimal"
)

// Quantization scales. Money carries 3 decimal places, probabilities 4.
const (
	MoneyPlaces = 3
	ProbPlaces  = 4
)

var (
	Zero = decimal.Zero
	One  = decimal.NewFromInt(1)
)

// Money quantizes d to money precision (half-up at 3 dp).
func Money(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyPlaces)
}

// Prob quantizes d to probability precision (half-up at 4 dp).
func Prob(d decimal.Decimal) decimal.Decimal {
	return d.Round(ProbPlaces)
}

// MoneyFromFloat converts an internal float result to an exact money value.
func MoneyFromFloat(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f).Round(MoneyPlaces)
}

// ProbFromFloat converts an internal float result to an exact probability.
func ProbFromFloat(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f).Round(ProbPlaces)
}

// Triple is a mutually exclusive three-outcome probability set
// (home / draw / away, stored in outcome order).
type Triple struct {
	Home decimal.Decimal
	Draw decimal.Decimal
	Away decimal.Decimal
}

// TripleFromFloats quantizes raw float probabilities into a Triple whose
// components sum to exactly 1 at probability precision. Home and draw are
// rounded independently and away absorbs the residual, so the invariant
// holds regardless of rounding direction.
func TripleFromFloats(home, draw, away float64) Triple {
	total := home + draw + away
	if total <= 0 {
		// Degenerate input: fall back to a uniform-ish split that still
		// sums to one exactly.
		h := decimal.RequireFromString("0.3333")
		d := decimal.RequireFromString("0.3333")
		return Triple{Home: h, Draw: d, Away: One.Sub(h).Sub(d)}
	}
	h := ProbFromFloat(home / total)
	d := ProbFromFloat(draw / total)
	return Triple{Home: h, Draw: d, Away: One.Sub(h).Sub(d)}
}

// Sum returns the exact component sum.
func (t Triple) Sum() decimal.Decimal {
	return t.Home.Add(t.Draw).Add(t.Away)
}

// Floats returns the components as floats for internal math.
func (t Triple) Floats() (home, draw, away float64) {
	return t.Home.InexactFloat64(), t.Draw.InexactFloat64(), t.Away.InexactFloat64()
}

// Clamp bounds f to [lo, hi].
func Clamp(f, lo, hi float64) float64 {
	if f < lo {
		return lo
	}
	if f > hi {
		return hi
	}
	return f
}
