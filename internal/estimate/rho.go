// Package estimate fits the league-scoped model parameters: the
// Dixon-Coles correlation rho from historical low-score frequencies, the
// power-scaling calibration alpha from logged predictions, and the plain
// statistical baselines. Everything is evaluated strictly before a
// reference date so backtests never see the future.
package estimate

import (
	"errors"
	"math"

	"github.com/shopspring/decimal"

	"github.com/goalcast/goalcast/internal/fixed"
	"github.com/goalcast/goalcast/internal/model"
	"github.com/goalcast/goalcast/internal/store"
)

var (
	// ErrInsufficientSample means too little history to fit a parameter.
	ErrInsufficientSample = errors.New("estimate: insufficient sample")
	// ErrNoFeasibleRho means no grid point kept every tau cell positive.
	ErrNoFeasibleRho = errors.New("estimate: no feasible rho")
)

// Rho grid-search bounds. The range is further tightened by the lambda
// magnitudes: any candidate driving a tau cell non-positive is infeasible.
const (
	MinRhoSample = 60
	rhoGridMin   = -0.5
	rhoGridMax   = 0.5
	rhoGridStep  = 0.005
)

// LowScoreCounts are the historical frequencies of the four outcomes the
// Dixon-Coles correction acts on.
type LowScoreCounts struct {
	ZeroZero int
	ZeroOne  int
	OneZero  int
	OneOne   int
}

// Total returns the number of counted matches.
func (c LowScoreCounts) Total() int {
	return c.ZeroZero + c.ZeroOne + c.OneZero + c.OneOne
}

// CountLowScores tallies finished fixtures by low-score outcome. Fixtures
// outside the four cells are ignored.
func CountLowScores(fixtures []store.Fixture) LowScoreCounts {
	var c LowScoreCounts
	for _, f := range fixtures {
		if !f.HasScore() {
			continue
		}
		switch {
		case *f.HomeGoals == 0 && *f.AwayGoals == 0:
			c.ZeroZero++
		case *f.HomeGoals == 0 && *f.AwayGoals == 1:
			c.ZeroOne++
		case *f.HomeGoals == 1 && *f.AwayGoals == 0:
			c.OneZero++
		case *f.HomeGoals == 1 && *f.AwayGoals == 1:
			c.OneOne++
		}
	}
	return c
}

// FitRho maximizes the low-score cell log-likelihood over a 1-D rho grid.
// lambdaHome and lambdaAway are the league-average scoring rates that
// scale the tau cells.
func FitRho(counts LowScoreCounts, lambdaHome, lambdaAway float64) (decimal.Decimal, error) {
	if counts.Total() < MinRhoSample {
		return decimal.Zero, ErrInsufficientSample
	}

	bestRho := math.NaN()
	bestLL := math.Inf(-1)

	for rho := rhoGridMin; rho <= rhoGridMax+rhoGridStep/2; rho += rhoGridStep {
		tau00 := model.Tau(0, 0, lambdaHome, lambdaAway, rho)
		tau01 := model.Tau(0, 1, lambdaHome, lambdaAway, rho)
		tau10 := model.Tau(1, 0, lambdaHome, lambdaAway, rho)
		tau11 := model.Tau(1, 1, lambdaHome, lambdaAway, rho)
		if tau00 <= 0 || tau01 <= 0 || tau10 <= 0 || tau11 <= 0 {
			continue
		}

		ll := float64(counts.ZeroZero)*math.Log(tau00) +
			float64(counts.ZeroOne)*math.Log(tau01) +
			float64(counts.OneZero)*math.Log(tau10) +
			float64(counts.OneOne)*math.Log(tau11)

		if ll > bestLL {
			bestLL = ll
			bestRho = rho
		}
	}

	if math.IsNaN(bestRho) {
		return decimal.Zero, ErrNoFeasibleRho
	}
	return fixed.ProbFromFloat(bestRho), nil
}
