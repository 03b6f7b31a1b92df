// Package model implements the goal-scoring probability models: the
// truncated bivariate Poisson grid, its Dixon-Coles low-score correction,
// the logistic rating-based source, and source blending with power-scaling
// calibration.
package model

import (
	"math"

	"github.com/goalcast/goalcast/internal/fixed"
)

// DefaultMaxGoals truncates the score grid; probability mass beyond this
// bound is negligible for football scorelines.
const DefaultMaxGoals = 10

// Pmf returns P(X = k) for X ~ Poisson(lambda), computed in log space for
// numerical stability. A non-positive lambda degenerates to a point mass
// at zero.
func Pmf(lambda float64, k int) float64 {
	if k < 0 {
		return 0
	}
	if lambda <= 0 {
		if k == 0 {
			return 1.0
		}
		return 0
	}
	logProb := float64(k)*math.Log(lambda) - lambda - logFactorial(k)
	return math.Exp(logProb)
}

// Cdf returns P(X <= k) for X ~ Poisson(lambda).
func Cdf(lambda float64, k int) float64 {
	if k < 0 {
		return 0
	}
	sum := 0.0
	for i := 0; i <= k; i++ {
		sum += Pmf(lambda, i)
	}
	if sum > 1 {
		return 1
	}
	return sum
}

func logFactorial(n int) float64 {
	if n <= 1 {
		return 0
	}
	result := 0.0
	for i := 2; i <= n; i++ {
		result += math.Log(float64(i))
	}
	return result
}

// Tau is the Dixon-Coles correction applied to the four low-score cells.
// Cells outside {0,1}x{0,1} are unadjusted.
func Tau(homeGoals, awayGoals int, lambdaHome, lambdaAway, rho float64) float64 {
	switch {
	case homeGoals == 0 && awayGoals == 0:
		return 1 - lambdaHome*lambdaAway*rho
	case homeGoals == 0 && awayGoals == 1:
		return 1 + lambdaHome*rho
	case homeGoals == 1 && awayGoals == 0:
		return 1 + lambdaAway*rho
	case homeGoals == 1 && awayGoals == 1:
		return 1 - rho
	default:
		return 1.0
	}
}

// Grid is a truncated matrix of correct-score probabilities, the outer
// product of two Poisson distributions with an optional Dixon-Coles
// adjustment on the low-score cells.
type Grid struct {
	LambdaHome float64
	LambdaAway float64
	Bound      int
	Cells      [][]float64 // [homeGoals][awayGoals] -> probability
}

// NewGrid builds a plain independent-Poisson score grid.
func NewGrid(lambdaHome, lambdaAway float64, bound int) *Grid {
	return NewDixonColesGrid(lambdaHome, lambdaAway, 0, bound)
}

// NewDixonColesGrid builds a score grid with the Dixon-Coles correction.
// Any cell driven negative by the correction is clamped to zero.
func NewDixonColesGrid(lambdaHome, lambdaAway, rho float64, bound int) *Grid {
	if bound <= 0 {
		bound = DefaultMaxGoals
	}
	cells := make([][]float64, bound+1)
	for h := 0; h <= bound; h++ {
		cells[h] = make([]float64, bound+1)
		for a := 0; a <= bound; a++ {
			p := Pmf(lambdaHome, h) * Pmf(lambdaAway, a)
			if rho != 0 {
				p *= Tau(h, a, lambdaHome, lambdaAway, rho)
			}
			if p < 0 {
				p = 0
			}
			cells[h][a] = p
		}
	}
	return &Grid{
		LambdaHome: lambdaHome,
		LambdaAway: lambdaAway,
		Bound:      bound,
		Cells:      cells,
	}
}

// Outcomes buckets the grid into the 1X2 triple, renormalized so the three
// probabilities sum to exactly one at probability precision. Normalization
// absorbs both truncation loss and low-score clamping.
func (g *Grid) Outcomes() fixed.Triple {
	var home, draw, away float64
	for h := 0; h <= g.Bound; h++ {
		for a := 0; a <= g.Bound; a++ {
			p := g.Cells[h][a]
			switch {
			case h > a:
				home += p
			case h == a:
				draw += p
			default:
				away += p
			}
		}
	}
	return fixed.TripleFromFloats(home, draw, away)
}
