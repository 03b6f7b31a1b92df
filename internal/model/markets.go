package model

import "math"

// OverProb returns P(total goals > line) for a combined scoring rate,
// using the Poisson cumulative distribution of lambdaHome+lambdaAway.
// Lines are half-goal (1.5, 2.5, 3.5) so there is no push outcome.
func OverProb(lambdaHome, lambdaAway, line float64) float64 {
	threshold := int(math.Floor(line))
	return 1 - Cdf(lambdaHome+lambdaAway, threshold)
}

// BTTSProb returns P(both teams score) from each side's probability of
// scoring at least once.
func BTTSProb(lambdaHome, lambdaAway float64) float64 {
	pHomeScores := 1 - Pmf(lambdaHome, 0)
	pAwayScores := 1 - Pmf(lambdaAway, 0)
	return pHomeScores * pAwayScores
}
