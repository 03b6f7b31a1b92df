package pipeline

import (
	"math"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/goalcast/goalcast/internal/fixed"
	"github.com/goalcast/goalcast/internal/store"
)

// Signal score weights: sample adequacy, goal-output stability and rating
// clarity, with a standings bonus and an injury-uncertainty penalty. The
// score is a bounded [0,1] confidence heuristic.
const (
	signalSampleCap     = 0.4
	signalSampleFloor   = 10.0 // matches per side for full sample credit
	signalVolatilityCap = 0.3
	signalEloCap        = 0.3
	signalEloGapScale   = 400.0
	signalStandingsCap  = 0.1
	signalStandingsRef  = 30.0 // points gap for the full standings bonus
	signalInjuryStep    = 0.03
	signalInjuryCap     = 0.15
)

// Threshold adjustment: a weak signal demands more edge, a strong one a
// touch less.
const (
	signalLowCutoff   = 0.5
	signalHighCutoff  = 0.8
	thresholdRaise    = 0.05
	thresholdDiscount = 0.01
)

// SignalInputs feed the confidence heuristic for one fixture.
type SignalInputs struct {
	Home         store.TeamIndices
	Away         store.TeamIndices
	EloDiff      float64
	InjuriesHome int
	InjuriesAway int
}

// SignalScore blends sample adequacy (capped 0.4), goal-output stability
// (capped 0.3, inverse coefficient of variation) and Elo-gap adequacy
// (capped 0.3, decreasing with the gap), plus a standings-gap bonus, minus
// an injury-uncertainty penalty. The result is clamped to [0,1].
func SignalScore(in SignalInputs) float64 {
	minSample := in.Home.SampleCount
	if in.Away.SampleCount < minSample {
		minSample = in.Away.SampleCount
	}
	sample := signalSampleCap * fixed.Clamp(float64(minSample)/signalSampleFloor, 0, 1)

	cv := (coeffVariation(in.Home) + coeffVariation(in.Away)) / 2
	volatility := signalVolatilityCap * fixed.Clamp(1-cv, 0, 1)

	eloGap := signalEloCap * fixed.Clamp(1-math.Abs(in.EloDiff)/signalEloGapScale, 0, 1)

	standings := signalStandingsCap *
		fixed.Clamp(math.Abs(float64(in.Home.Points-in.Away.Points))/signalStandingsRef, 0, 1)

	injuries := fixed.Clamp(float64(in.InjuriesHome+in.InjuriesAway)*signalInjuryStep, 0, signalInjuryCap)

	return fixed.Clamp(sample+volatility+eloGap+standings-injuries, 0, 1)
}

func coeffVariation(ti store.TeamIndices) float64 {
	if ti.GoalsMean <= 0 {
		return 1 // no goal history reads as maximally volatile
	}
	return ti.GoalsStdDev / ti.GoalsMean
}

// EffectiveThreshold adjusts the base EV acceptance threshold by the
// signal score.
func EffectiveThreshold(base, signal float64) float64 {
	switch {
	case signal < signalLowCutoff:
		return base + thresholdRaise
	case signal > signalHighCutoff:
		return base - thresholdDiscount
	default:
		return base
	}
}

// scoredCandidate pairs a candidate with its float EV for ranking.
type scoredCandidate struct {
	Candidate
	ev     float64
	inBand bool
}

// rankCandidates computes EV for every candidate with a quoted odd and
// returns them sorted by EV descending. Candidates without odds sort last.
func rankCandidates(selections []string, probs []float64, odds []*decimal.Decimal, minOdd, maxOdd float64) []scoredCandidate {
	out := make([]scoredCandidate, 0, len(selections))
	for i, sel := range selections {
		sc := scoredCandidate{
			Candidate: Candidate{
				Selection:   sel,
				Probability: fixed.ProbFromFloat(probs[i]),
				Odd:         odds[i],
			},
			ev: math.Inf(-1),
		}
		if odds[i] != nil {
			odd := odds[i].InexactFloat64()
			sc.ev = probs[i]*odd - 1
			ev := fixed.ProbFromFloat(sc.ev)
			sc.EV = &ev
			sc.inBand = odd >= minOdd && odd <= maxOdd
		}
		out = append(out, sc)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ev > out[j].ev })
	return out
}

// bestInBand returns the highest-EV candidate whose odd lies inside the
// configured band, or nil when none qualifies. Selection is by EV, never
// by raw probability.
func bestInBand(ranked []scoredCandidate) *scoredCandidate {
	for i := range ranked {
		if ranked[i].inBand {
			return &ranked[i]
		}
	}
	return nil
}

// topCandidates trims the ranked list for the audit payload.
func topCandidates(ranked []scoredCandidate, n int) []Candidate {
	if len(ranked) < n {
		n = len(ranked)
	}
	out := make([]Candidate, 0, n)
	for _, sc := range ranked[:n] {
		out = append(out, sc.Candidate)
	}
	return out
}
