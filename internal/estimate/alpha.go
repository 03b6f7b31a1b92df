package estimate

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/goalcast/goalcast/internal/fixed"
	"github.com/goalcast/goalcast/internal/store"
)

// Alpha grid-search bounds. Alpha 1 leaves probabilities untouched.
const (
	MinAlphaSample = 120
	alphaGridMin   = 0.5
	alphaGridMax   = 2.0
	alphaGridStep  = 0.05
)

// logLossEps floors probabilities before taking logs so a confident miss
// cannot produce an infinite loss.
const logLossEps = 1e-12

// FitAlpha selects the power-scaling exponent minimizing mean multiclass
// log-loss over logged candidate probabilities joined to realized
// outcomes.
func FitAlpha(samples []store.DecisionSample) (decimal.Decimal, error) {
	if len(samples) < MinAlphaSample {
		return decimal.Zero, ErrInsufficientSample
	}

	bestAlpha := 1.0
	bestLoss := math.Inf(1)

	for alpha := alphaGridMin; alpha <= alphaGridMax+alphaGridStep/2; alpha += alphaGridStep {
		loss := meanLogLoss(samples, alpha)
		if loss < bestLoss {
			bestLoss = loss
			bestAlpha = alpha
		}
	}
	return fixed.ProbFromFloat(bestAlpha), nil
}

func meanLogLoss(samples []store.DecisionSample, alpha float64) float64 {
	total := 0.0
	for _, s := range samples {
		probs := [3]float64{
			s.ProbHome.InexactFloat64(),
			s.ProbDraw.InexactFloat64(),
			s.ProbAway.InexactFloat64(),
		}

		sum := 0.0
		for i := range probs {
			probs[i] = math.Pow(math.Max(probs[i], 0), alpha)
			sum += probs[i]
		}
		if sum <= 0 {
			sum = 1
		}

		outcome := s.Outcome
		if outcome < 0 || outcome > 2 {
			outcome = 1
		}
		p := probs[outcome] / sum
		total += -math.Log(math.Max(p, logLossEps))
	}
	return total / float64(len(samples))
}
