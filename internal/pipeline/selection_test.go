package pipeline

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goalcast/goalcast/internal/store"
)

func oddPtr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func steadyIndices(samples int, mean, stddev float64, points int) store.TeamIndices {
	return store.TeamIndices{
		SampleCount: samples,
		GoalsMean:   mean,
		GoalsStdDev: stddev,
		Points:      points,
	}
}

func TestSignalScoreBounds(t *testing.T) {
	// best case: full samples, zero volatility, tiny elo gap, big
	// standings gap, no injuries
	high := SignalScore(SignalInputs{
		Home: steadyIndices(20, 2.0, 0, 60),
		Away: steadyIndices(20, 1.0, 0, 10),
	})
	assert.InDelta(t, 1.0, high, 1e-9)

	// worst case: no samples, no goal history, huge gap, injury pile-up
	low := SignalScore(SignalInputs{
		Home:         steadyIndices(0, 0, 0, 0),
		Away:         steadyIndices(0, 0, 0, 0),
		EloDiff:      600,
		InjuriesHome: 4,
		InjuriesAway: 4,
	})
	assert.Equal(t, 0.0, low)
}

func TestSignalScoreComponents(t *testing.T) {
	// half samples, cv = 0.5 both sides, 200 elo gap, no standings gap
	s := SignalScore(SignalInputs{
		Home:    steadyIndices(5, 2.0, 1.0, 30),
		Away:    steadyIndices(5, 2.0, 1.0, 30),
		EloDiff: 200,
	})
	// 0.4*0.5 + 0.3*0.5 + 0.3*0.5 = 0.5
	assert.InDelta(t, 0.5, s, 1e-9)
}

func TestSignalScoreInjuryPenaltyCapped(t *testing.T) {
	in := SignalInputs{
		Home: steadyIndices(20, 2.0, 0, 30),
		Away: steadyIndices(20, 2.0, 0, 30),
	}
	base := SignalScore(in)
	require.InDelta(t, 1.0, base, 1e-9)

	in.InjuriesHome, in.InjuriesAway = 10, 10 // 0.6 raw, capped at 0.15
	assert.InDelta(t, base-0.15, SignalScore(in), 1e-9)
}

func TestEffectiveThreshold(t *testing.T) {
	assert.InDelta(t, 0.10, EffectiveThreshold(0.05, 0.3), 1e-12)
	assert.InDelta(t, 0.05, EffectiveThreshold(0.05, 0.5), 1e-12)
	assert.InDelta(t, 0.05, EffectiveThreshold(0.05, 0.65), 1e-12)
	assert.InDelta(t, 0.05, EffectiveThreshold(0.05, 0.8), 1e-12)
	assert.InDelta(t, 0.04, EffectiveThreshold(0.05, 0.9), 1e-12)
}

func TestRankCandidatesPicksBestEVNotBestProbability(t *testing.T) {
	// home is most likely but the draw is mispriced: EV must win
	selections := []string{store.SelectionHomeWin, store.SelectionDraw, store.SelectionAwayWin}
	probs := []float64{0.60, 0.20, 0.20}
	odds := []*decimal.Decimal{oddPtr("1.50"), oddPtr("6.00"), oddPtr("5.00")}

	ranked := rankCandidates(selections, probs, odds, 1.5, 6.0)
	require.Len(t, ranked, 3)

	best := bestInBand(ranked)
	require.NotNil(t, best)
	assert.Equal(t, store.SelectionDraw, best.Selection)
	assert.InDelta(t, 0.20, best.ev, 1e-9) // 0.20*6.00 - 1
}

func TestRankCandidatesMissingOddsSortLast(t *testing.T) {
	selections := []string{store.SelectionHomeWin, store.SelectionDraw, store.SelectionAwayWin}
	probs := []float64{0.50, 0.30, 0.20}
	odds := []*decimal.Decimal{nil, oddPtr("3.40"), nil}

	ranked := rankCandidates(selections, probs, odds, 1.5, 6.0)
	assert.Equal(t, store.SelectionDraw, ranked[0].Selection)
	assert.Nil(t, ranked[1].EV)
	assert.Nil(t, ranked[2].EV)
}

func TestBestInBandSkipsOutOfBandOdds(t *testing.T) {
	selections := []string{store.SelectionHomeWin, store.SelectionDraw, store.SelectionAwayWin}
	probs := []float64{0.80, 0.12, 0.08}
	// home EV is huge but the odd is below the band floor
	odds := []*decimal.Decimal{oddPtr("1.40"), oddPtr("8.50"), oddPtr("11.00")}

	ranked := rankCandidates(selections, probs, odds, 1.5, 6.0)
	assert.Nil(t, bestInBand(ranked))
}

func TestTopCandidatesTrims(t *testing.T) {
	selections := []string{store.SelectionOver, store.SelectionUnder}
	probs := []float64{0.55, 0.45}
	odds := []*decimal.Decimal{oddPtr("1.90"), oddPtr("1.95")}

	ranked := rankCandidates(selections, probs, odds, 1.5, 6.0)
	assert.Len(t, topCandidates(ranked, 3), 2)
	assert.Len(t, topCandidates(ranked, 1), 1)
}
