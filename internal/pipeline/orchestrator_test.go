package pipeline

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goalcast/goalcast/internal/estimate"
	"github.com/goalcast/goalcast/internal/fixed"
	"github.com/goalcast/goalcast/internal/model"
	"github.com/goalcast/goalcast/internal/store"
	"github.com/goalcast/goalcast/internal/store/storetest"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Source = model.SourceDixonColes
	cfg.Adjust = Adjustments{} // deterministic lambdas
	return cfg
}

func newTestOrchestrator(st *storetest.Store, cfg Config) *Orchestrator {
	repo := st.Repo()
	est := estimate.NewEstimator(repo.Fixtures, repo.Decisions, repo.Baselines, string(cfg.Source))
	return New(repo, est, cfg)
}

func seedBaseline(t *testing.T, st *storetest.Store, leagueID int64, season int, day time.Time) {
	t.Helper()
	err := st.Repo().Baselines.Upsert(context.Background(), store.LeagueBaseline{
		LeagueID:      leagueID,
		Season:        season,
		Date:          day.UTC().Truncate(24 * time.Hour),
		AvgHomeGoals:  fixed.Prob(decimal.NewFromFloat(1.5)),
		AvgAwayGoals:  fixed.Prob(decimal.NewFromFloat(1.2)),
		DrawFrequency: fixed.Prob(decimal.NewFromFloat(0.25)),
	})
	require.NoError(t, err)
}

func upcoming(id int64, kickoff time.Time, odds store.MarketOdds) store.UpcomingFixture {
	return store.UpcomingFixture{
		Fixture: store.Fixture{
			ID:         id,
			LeagueID:   10,
			Season:     2025,
			Kickoff:    kickoff,
			HomeTeamID: 100 + id,
			AwayTeamID: 200 + id,
			Status:     store.StatusNotStarted,
		},
		Odds: odds,
		Home: store.TeamIndices{
			AttackShort: 1.5, AttackLong: 1.5, AttackVenue: 1.5,
			DefenseShort: 1.2, DefenseLong: 1.2, DefenseVenue: 1.2,
			SampleCount: 15, GoalsMean: 1.5, GoalsStdDev: 0.8, Points: 30,
		},
		Away: store.TeamIndices{
			AttackShort: 1.2, AttackLong: 1.2, AttackVenue: 1.2,
			DefenseShort: 1.5, DefenseLong: 1.5, DefenseVenue: 1.5,
			SampleCount: 15, GoalsMean: 1.2, GoalsStdDev: 0.7, Points: 28,
		},
	}
}

func TestRunPlacesValueBet(t *testing.T) {
	st := storetest.New()
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	kickoff := now.Add(24 * time.Hour)
	seedBaseline(t, st, 10, 2025, kickoff)

	// draw is heavily mispriced: EV well above the threshold
	st.UpcomingSet = append(st.UpcomingSet, upcoming(1, kickoff, store.MarketOdds{
		HomeWin: oddPtr("2.00"),
		Draw:    oddPtr("5.50"),
		AwayWin: oddPtr("3.00"),
	}))

	o := newTestOrchestrator(st, testConfig())
	stats, err := o.Run(context.Background(), now)
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Fixtures)
	assert.Equal(t, 1, stats.Bets)
	assert.Equal(t, 0, stats.Failed)

	pred, ok := st.Prediction(1, store.Market1X2)
	require.True(t, ok)
	assert.Equal(t, store.StatusPending, pred.Status)
	assert.Equal(t, store.SelectionDraw, pred.Selection)
	require.NotNil(t, pred.InitialOdd)
	assert.True(t, pred.InitialOdd.Equal(decimal.RequireFromString("5.50")))
	assert.True(t, pred.ValueIndex.GreaterThan(decimal.NewFromFloat(0.05)))
	assert.NotEmpty(t, pred.Features)

	dec, ok := st.Decision(1, store.Market1X2)
	require.True(t, ok)
	var payload OneXTwoPayload
	require.NoError(t, json.Unmarshal(dec.Payload, &payload))
	assert.Equal(t, ActionBet, payload.Action)
	assert.Equal(t, store.SelectionDraw, payload.Selection)
	assert.Equal(t, Kind1X2, payload.Kind)
	assert.Len(t, payload.Candidates, 3)

	// probabilities in the payload always sum to exactly one
	sum := payload.Probabilities.Home.Add(payload.Probabilities.Draw).Add(payload.Probabilities.Away)
	assert.True(t, sum.Equal(decimal.NewFromInt(1)), "sum=%s", sum)
}

func TestRunSkipsWithoutOdds(t *testing.T) {
	st := storetest.New()
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	kickoff := now.Add(24 * time.Hour)
	seedBaseline(t, st, 10, 2025, kickoff)

	st.UpcomingSet = append(st.UpcomingSet, upcoming(1, kickoff, store.MarketOdds{}))

	o := newTestOrchestrator(st, testConfig())
	stats, err := o.Run(context.Background(), now)
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Skips)
	assert.Equal(t, 1, stats.MissingOdds)
	assert.Equal(t, 0, stats.Bets)

	// a skip settles immediately as VOID, never left pending
	pred, ok := st.Prediction(1, store.Market1X2)
	require.True(t, ok)
	assert.Equal(t, store.StatusVoid, pred.Status)
	assert.Equal(t, store.SelectionSkip, pred.Selection)
	assert.True(t, pred.Profit.IsZero())

	dec, ok := st.Decision(1, store.Market1X2)
	require.True(t, ok)
	var payload OneXTwoPayload
	require.NoError(t, json.Unmarshal(dec.Payload, &payload))
	assert.Equal(t, ActionSkip, payload.Action)
	assert.Equal(t, ReasonNoOdds, payload.Reason)
}

func TestRunSkipsBelowThreshold(t *testing.T) {
	st := storetest.New()
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	kickoff := now.Add(24 * time.Hour)
	seedBaseline(t, st, 10, 2025, kickoff)

	// every odd is in band but priced with no edge
	st.UpcomingSet = append(st.UpcomingSet, upcoming(1, kickoff, store.MarketOdds{
		HomeWin: oddPtr("1.80"),
		Draw:    oddPtr("3.00"),
		AwayWin: oddPtr("3.00"),
	}))

	o := newTestOrchestrator(st, testConfig())
	stats, err := o.Run(context.Background(), now)
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Skips)
	assert.Equal(t, 0, stats.MissingOdds)

	dec, ok := st.Decision(1, store.Market1X2)
	require.True(t, ok)
	var payload OneXTwoPayload
	require.NoError(t, json.Unmarshal(dec.Payload, &payload))
	assert.Equal(t, ActionSkip, payload.Action)
	assert.Equal(t, ReasonBelowThreshold, payload.Reason)

	pred, ok := st.Prediction(1, store.Market1X2)
	require.True(t, ok)
	assert.Equal(t, store.StatusVoid, pred.Status)
}

func TestChooseSkipsExactThresholdTie(t *testing.T) {
	o := &Orchestrator{cfg: Config{MinOdd: 1.5, MaxOdd: 6.0}}
	selections := []string{store.SelectionHomeWin, store.SelectionDraw, store.SelectionAwayWin}
	probs := []float64{0.5, 0.25, 0.25}
	odds := []*decimal.Decimal{oddPtr("2.00"), oddPtr("3.00"), oddPtr("3.00")}

	// Best candidate's EV lands exactly on the threshold: the edge must
	// strictly exceed it, so a tie is a skip.
	var audit []Candidate
	action, chosen, reason := o.choose(probs, selections, odds, 0.0, &audit)
	assert.Equal(t, ActionSkip, action)
	assert.Nil(t, chosen)
	assert.Equal(t, ReasonBelowThreshold, reason)

	// Any positive margin above the threshold is enough.
	action, chosen, reason = o.choose(probs, selections, odds, -0.01, &audit)
	assert.Equal(t, ActionBet, action)
	require.NotNil(t, chosen)
	assert.Equal(t, store.SelectionHomeWin, chosen.Selection)
	assert.Empty(t, reason)
}

func TestRunIsIdempotent(t *testing.T) {
	st := storetest.New()
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	kickoff := now.Add(24 * time.Hour)
	seedBaseline(t, st, 10, 2025, kickoff)

	st.UpcomingSet = append(st.UpcomingSet, upcoming(1, kickoff, store.MarketOdds{
		HomeWin: oddPtr("2.00"),
		Draw:    oddPtr("5.50"),
		AwayWin: oddPtr("3.00"),
	}))

	o := newTestOrchestrator(st, testConfig())
	_, err := o.Run(context.Background(), now)
	require.NoError(t, err)
	first, ok := st.Prediction(1, store.Market1X2)
	require.True(t, ok)

	_, err = o.Run(context.Background(), now)
	require.NoError(t, err)
	second, ok := st.Prediction(1, store.Market1X2)
	require.True(t, ok)

	// recompute with unchanged inputs overwrites with an identical row
	assert.Equal(t, first.Selection, second.Selection)
	assert.True(t, first.Confidence.Equal(second.Confidence))
	assert.True(t, first.ValueIndex.Equal(second.ValueIndex))
	assert.JSONEq(t, string(first.Features), string(second.Features))
	assert.Len(t, st.Predictions, 2) // 1X2 and totals rows, no duplicates
}

func TestRunWritesTotalsAndInfoMarkets(t *testing.T) {
	st := storetest.New()
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	kickoff := now.Add(24 * time.Hour)
	seedBaseline(t, st, 10, 2025, kickoff)

	st.UpcomingSet = append(st.UpcomingSet, upcoming(1, kickoff, store.MarketOdds{
		HomeWin: oddPtr("2.00"),
		Draw:    oddPtr("3.40"),
		AwayWin: oddPtr("3.80"),
		Over25:  oddPtr("1.90"),
		Under25: oddPtr("1.95"),
	}))

	o := newTestOrchestrator(st, testConfig())
	_, err := o.Run(context.Background(), now)
	require.NoError(t, err)

	_, ok := st.Prediction(1, store.MarketTotals)
	assert.True(t, ok)

	dec, ok := st.Decision(1, store.MarketTotals)
	require.True(t, ok)
	var totals TotalsPayload
	require.NoError(t, json.Unmarshal(dec.Payload, &totals))
	assert.Equal(t, KindTotals, totals.Kind)
	one := totals.OverProb.Add(totals.UnderProb)
	assert.True(t, one.Equal(decimal.NewFromInt(1)), "sum=%s", one)

	for _, market := range []string{store.MarketInfoOU15, store.MarketInfoOU35, store.MarketInfoBTTS} {
		dec, ok := st.Decision(1, market)
		require.True(t, ok, market)
		var info InfoPayload
		require.NoError(t, json.Unmarshal(dec.Payload, &info))
		assert.Equal(t, KindInfo, info.Kind)
		assert.Equal(t, market, info.Market)
	}
}

func TestRunHonorsHorizon(t *testing.T) {
	st := storetest.New()
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	seedBaseline(t, st, 10, 2025, now.Add(24*time.Hour))

	inside := upcoming(1, now.Add(24*time.Hour), store.MarketOdds{})
	outside := upcoming(2, now.Add(10*24*time.Hour), store.MarketOdds{})
	st.UpcomingSet = append(st.UpcomingSet, inside, outside)

	o := newTestOrchestrator(st, testConfig())
	stats, err := o.Run(context.Background(), now)
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Fixtures)
	_, ok := st.Prediction(2, store.Market1X2)
	assert.False(t, ok)
}
