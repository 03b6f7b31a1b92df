package pipeline

import (
	"github.com/goalcast/goalcast/internal/elo"
	"github.com/goalcast/goalcast/internal/fixed"
	"github.com/goalcast/goalcast/internal/store"
)

// FormWeights blends the short, long and venue-specific form windows into
// one attack or defence index. A zero weight disables that window.
type FormWeights struct {
	Short float64 `yaml:"short"`
	Long  float64 `yaml:"long"`
	Venue float64 `yaml:"venue"`
}

// DefaultFormWeights favours recent form with a venue tilt.
func DefaultFormWeights() FormWeights {
	return FormWeights{Short: 0.5, Long: 0.3, Venue: 0.2}
}

func (w FormWeights) attack(ti store.TeamIndices) float64 {
	return w.blend(ti.AttackShort, ti.AttackLong, ti.AttackVenue)
}

func (w FormWeights) defense(ti store.TeamIndices) float64 {
	return w.blend(ti.DefenseShort, ti.DefenseLong, ti.DefenseVenue)
}

func (w FormWeights) blend(short, long, venue float64) float64 {
	total := w.Short + w.Long + w.Venue
	if total <= 0 {
		return 0
	}
	return (w.Short*short + w.Long*long + w.Venue*venue) / total
}

// ratio guards the index/baseline division: a zero baseline yields a
// neutral factor instead of a blowup.
func ratio(index, baseline float64) float64 {
	if baseline <= 0 {
		return 1
	}
	return index / baseline
}

// Adjustments toggles the optional rate modifiers.
type Adjustments struct {
	Elo       bool `yaml:"elo"`
	Standings bool `yaml:"standings"`
	Injuries  bool `yaml:"injuries"`
}

// Nudge magnitudes. The standings and injury factors are hand-tuned and
// intentionally small; they are tunable, not load-bearing.
const (
	standingsNudgeCap   = 0.05 // max +-5% from points differential
	standingsNudgeScale = 200.0
	injuryPenaltyStep   = 0.02 // per absent player
	injuryPenaltyCap    = 0.08
)

// RateInputs carries everything lambda derivation needs for one fixture.
type RateInputs struct {
	Baseline     store.LeagueBaseline
	Home         store.TeamIndices
	Away         store.TeamIndices
	EloHome      float64
	EloAway      float64
	InjuriesHome int
	InjuriesAway int
}

// Rates are the derived expected-goals rates plus the applied Elo factor
// for the audit trail.
type Rates struct {
	LambdaHome float64
	LambdaAway float64
	EloFactor  float64
}

// DeriveRates computes the blended expected-goals rates: league baseline
// scaled by attack and opposing-defence factors, then the bounded Elo
// adjustment (home multiplied, away divided), then the optional standings
// and injury nudges.
func DeriveRates(in RateInputs, w FormWeights, adj Adjustments) Rates {
	avgHome := in.Baseline.AvgHomeGoals.InexactFloat64()
	avgAway := in.Baseline.AvgAwayGoals.InexactFloat64()

	lambdaHome := avgHome * ratio(w.attack(in.Home), avgHome) * ratio(w.defense(in.Away), avgHome)
	lambdaAway := avgAway * ratio(w.attack(in.Away), avgAway) * ratio(w.defense(in.Home), avgAway)

	eloFactor := 1.0
	if adj.Elo {
		eloFactor = elo.AdjustFactor(in.EloHome - in.EloAway)
		lambdaHome *= eloFactor
		lambdaAway /= eloFactor
	}

	if adj.Standings {
		nudge := fixed.Clamp(float64(in.Home.Points-in.Away.Points)/standingsNudgeScale,
			-standingsNudgeCap, standingsNudgeCap)
		lambdaHome *= 1 + nudge
		lambdaAway *= 1 - nudge
	}

	if adj.Injuries {
		lambdaHome *= 1 - injuryPenalty(in.InjuriesHome)
		lambdaAway *= 1 - injuryPenalty(in.InjuriesAway)
	}

	if lambdaHome < 0 {
		lambdaHome = 0
	}
	if lambdaAway < 0 {
		lambdaAway = 0
	}
	return Rates{LambdaHome: lambdaHome, LambdaAway: lambdaAway, EloFactor: eloFactor}
}

func injuryPenalty(count int) float64 {
	if count < 0 {
		count = 0
	}
	return fixed.Clamp(float64(count)*injuryPenaltyStep, 0, injuryPenaltyCap)
}
