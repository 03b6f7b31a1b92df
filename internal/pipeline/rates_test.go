package pipeline

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goalcast/goalcast/internal/fixed"
	"github.com/goalcast/goalcast/internal/store"
)

func baselineWith(avgHome, avgAway float64) store.LeagueBaseline {
	return store.LeagueBaseline{
		AvgHomeGoals:  fixed.Prob(decimal.NewFromFloat(avgHome)),
		AvgAwayGoals:  fixed.Prob(decimal.NewFromFloat(avgAway)),
		DrawFrequency: fixed.Prob(decimal.NewFromFloat(0.25)),
	}
}

func flatIndices(attack, defense float64) store.TeamIndices {
	return store.TeamIndices{
		AttackShort: attack, AttackLong: attack, AttackVenue: attack,
		DefenseShort: defense, DefenseLong: defense, DefenseVenue: defense,
		SampleCount: 10, GoalsMean: attack, GoalsStdDev: 0.5,
	}
}

func TestFormWeightsBlend(t *testing.T) {
	w := FormWeights{Short: 0.5, Long: 0.3, Venue: 0.2}
	assert.InDelta(t, 1.0, w.blend(1.0, 1.0, 1.0), 1e-12)
	assert.InDelta(t, 0.5*2.0+0.3*1.0+0.2*1.5, w.blend(2.0, 1.0, 1.5), 1e-12)

	// zero weights degrade to a flat zero, not a divide by zero
	assert.Equal(t, 0.0, FormWeights{}.blend(2.0, 1.0, 1.5))
}

func TestRatioGuard(t *testing.T) {
	assert.Equal(t, 1.0, ratio(1.7, 0))
	assert.Equal(t, 1.0, ratio(1.7, -0.5))
	assert.InDelta(t, 2.0, ratio(3.0, 1.5), 1e-12)
}

func TestDeriveRatesNeutral(t *testing.T) {
	// both teams exactly at league average and no adjustments: lambdas
	// reproduce the baseline averages
	in := RateInputs{
		Baseline: baselineWith(1.5, 1.2),
		Home:     flatIndices(1.5, 1.2),
		Away:     flatIndices(1.2, 1.5),
	}
	r := DeriveRates(in, DefaultFormWeights(), Adjustments{})
	assert.InDelta(t, 1.5, r.LambdaHome, 1e-9)
	assert.InDelta(t, 1.2, r.LambdaAway, 1e-9)
	assert.Equal(t, 1.0, r.EloFactor)
}

func TestDeriveRatesEloFactor(t *testing.T) {
	in := RateInputs{
		Baseline: baselineWith(1.5, 1.2),
		Home:     flatIndices(1.5, 1.2),
		Away:     flatIndices(1.2, 1.5),
		EloHome:  1600,
		EloAway:  1400,
	}
	r := DeriveRates(in, DefaultFormWeights(), Adjustments{Elo: true})

	// 200-point edge: factor 1 + 200/1600 = 1.125
	require.InDelta(t, 1.125, r.EloFactor, 1e-9)
	assert.InDelta(t, 1.5*1.125, r.LambdaHome, 1e-9)
	assert.InDelta(t, 1.2/1.125, r.LambdaAway, 1e-9)
}

func TestDeriveRatesEloFactorClamped(t *testing.T) {
	in := RateInputs{
		Baseline: baselineWith(1.5, 1.2),
		Home:     flatIndices(1.5, 1.2),
		Away:     flatIndices(1.2, 1.5),
		EloHome:  2400,
		EloAway:  1200,
	}
	r := DeriveRates(in, DefaultFormWeights(), Adjustments{Elo: true})
	assert.Equal(t, 1.25, r.EloFactor)

	in.EloHome, in.EloAway = 1200, 2400
	r = DeriveRates(in, DefaultFormWeights(), Adjustments{Elo: true})
	assert.Equal(t, 0.75, r.EloFactor)
}

func TestDeriveRatesStandingsNudgeCapped(t *testing.T) {
	home := flatIndices(1.5, 1.2)
	away := flatIndices(1.2, 1.5)
	home.Points = 80
	away.Points = 10

	in := RateInputs{Baseline: baselineWith(1.5, 1.2), Home: home, Away: away}
	r := DeriveRates(in, DefaultFormWeights(), Adjustments{Standings: true})

	// 70-point gap saturates the +-5% cap
	assert.InDelta(t, 1.5*1.05, r.LambdaHome, 1e-9)
	assert.InDelta(t, 1.2*0.95, r.LambdaAway, 1e-9)
}

func TestDeriveRatesInjuryPenaltyCapped(t *testing.T) {
	in := RateInputs{
		Baseline:     baselineWith(1.5, 1.2),
		Home:         flatIndices(1.5, 1.2),
		Away:         flatIndices(1.2, 1.5),
		InjuriesHome: 10, // 10 * 2% would be 20%, capped at 8%
		InjuriesAway: 1,
	}
	r := DeriveRates(in, DefaultFormWeights(), Adjustments{Injuries: true})
	assert.InDelta(t, 1.5*0.92, r.LambdaHome, 1e-9)
	assert.InDelta(t, 1.2*0.98, r.LambdaAway, 1e-9)
}

func TestDeriveRatesNeverNegative(t *testing.T) {
	in := RateInputs{
		Baseline: baselineWith(0, 0),
		Home:     flatIndices(0, 0),
		Away:     flatIndices(0, 0),
	}
	r := DeriveRates(in, DefaultFormWeights(), Adjustments{Elo: true, Standings: true, Injuries: true})
	assert.GreaterOrEqual(t, r.LambdaHome, 0.0)
	assert.GreaterOrEqual(t, r.LambdaAway, 0.0)
}
