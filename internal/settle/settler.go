package settle

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/goalcast/goalcast/internal/elo"
	"github.com/goalcast/goalcast/internal/fixed"
	"github.com/goalcast/goalcast/internal/store"
)

// Stats summarizes one settlement run.
type Stats struct {
	Settled int          `json:"settled"`
	Wins    int          `json:"wins"`
	Losses  int          `json:"losses"`
	Voids   int          `json:"voids"`
	Elo     elo.RunStats `json:"elo"`
}

// Settler resolves pending predictions once their fixtures conclude, then
// replays the Elo engine over the newly finished fixtures.
type Settler struct {
	repo    store.Repository
	engine  *elo.Engine
	metrics *Metrics
}

// New creates a settler. engine may be nil when Elo replay is handled
// elsewhere.
func New(repo store.Repository, engine *elo.Engine) *Settler {
	return &Settler{repo: repo, engine: engine, metrics: NewMetrics()}
}

// Metrics exposes the accuracy collector for reporting after a run.
func (s *Settler) Metrics() *Metrics { return s.metrics }

// Run settles every pending prediction whose fixture has concluded, for
// both the 1X2 and totals markets, then replays Elo ratings.
func (s *Settler) Run(ctx context.Context, now time.Time) (Stats, error) {
	return s.run(ctx, now, store.DayWindow{})
}

// RunWindow is Run restricted to fixtures kicking off inside the window,
// used by backtests replaying one day at a time.
func (s *Settler) RunWindow(ctx context.Context, now time.Time, w store.DayWindow) (Stats, error) {
	return s.run(ctx, now, w)
}

func (s *Settler) run(ctx context.Context, now time.Time, w store.DayWindow) (Stats, error) {
	var stats Stats

	for _, market := range []string{store.Market1X2, store.MarketTotals} {
		pending, err := s.repo.Predictions.PendingSettleable(ctx, market)
		if err != nil {
			return stats, fmt.Errorf("load pending %s predictions: %w", market, err)
		}
		for _, p := range pending {
			if !inWindow(w, p.FixtureKickoff) {
				continue
			}
			if err := s.settle(ctx, p, now, &stats); err != nil {
				log.Error().Err(err).Int64("fixture", p.FixtureID).
					Str("market", p.Market).Msg("settle: prediction failed")
			}
		}
	}

	log.Info().Int("settled", stats.Settled).Int("wins", stats.Wins).
		Int("losses", stats.Losses).Int("voids", stats.Voids).
		Msg("settle: run complete")

	if s.engine != nil {
		eloStats, err := s.engine.Run(ctx, nil, nil, false)
		if err != nil {
			return stats, fmt.Errorf("elo replay: %w", err)
		}
		stats.Elo = eloStats
	}
	return stats, nil
}

// inWindow treats the zero window as unrestricted.
func inWindow(w store.DayWindow, kickoff time.Time) bool {
	if w.From.IsZero() && w.To.IsZero() {
		return true
	}
	return w.Contains(kickoff)
}

func (s *Settler) settle(ctx context.Context, p store.PendingPrediction, now time.Time, stats *Stats) error {
	status, profit := resolve(p)

	err := s.repo.Predictions.Settle(ctx, p.FixtureID, p.Market, status, profit, now)
	if err != nil {
		return fmt.Errorf("persist settlement: %w", err)
	}

	stats.Settled++
	switch status {
	case store.StatusWin:
		stats.Wins++
	case store.StatusLoss:
		stats.Losses++
	default:
		stats.Voids++
	}

	probs, outcome := calibrationSample(p)
	s.metrics.Observe(p.Source, p.SignalScore, profit.InexactFloat64(),
		status == store.StatusWin, status == store.StatusVoid, probs, outcome)
	return nil
}

// resolve maps a concluded fixture onto the prediction's settlement.
// Voidable endings, missing scores and missing odds all settle VOID with
// zero profit; a win pays the initial odd minus the unit stake.
func resolve(p store.PendingPrediction) (store.PredictionStatus, decimal.Decimal) {
	if p.FixtureStatus.IsVoidable() {
		return store.StatusVoid, fixed.Money(decimal.Zero)
	}
	if p.HomeGoals == nil || p.AwayGoals == nil || p.InitialOdd == nil {
		return store.StatusVoid, fixed.Money(decimal.Zero)
	}

	if won(p.Selection, *p.HomeGoals, *p.AwayGoals) {
		profit := p.InitialOdd.Sub(decimal.NewFromInt(1))
		return store.StatusWin, fixed.Money(profit)
	}
	return store.StatusLoss, fixed.Money(decimal.NewFromInt(-1))
}

func won(selection string, homeGoals, awayGoals int) bool {
	switch selection {
	case store.SelectionHomeWin:
		return homeGoals > awayGoals
	case store.SelectionDraw:
		return homeGoals == awayGoals
	case store.SelectionAwayWin:
		return homeGoals < awayGoals
	case store.SelectionOver:
		return homeGoals+awayGoals >= 3
	case store.SelectionUnder:
		return homeGoals+awayGoals <= 2
	}
	return false
}

// calibrationSample extracts the logged probability triple and the
// realized 1X2 outcome from the prediction's feature snapshot. Totals
// predictions and snapshots without a triple yield nil.
func calibrationSample(p store.PendingPrediction) (*[3]float64, int) {
	if p.Market != store.Market1X2 || len(p.Features) == 0 {
		return nil, 0
	}
	if p.HomeGoals == nil || p.AwayGoals == nil {
		return nil, 0
	}

	var features struct {
		Probabilities struct {
			Home decimal.Decimal `json:"home"`
			Draw decimal.Decimal `json:"draw"`
			Away decimal.Decimal `json:"away"`
		} `json:"probabilities"`
	}
	if err := json.Unmarshal(p.Features, &features); err != nil {
		log.Debug().Err(err).Int64("fixture", p.FixtureID).Msg("settle: unreadable feature snapshot")
		return nil, 0
	}

	probs := [3]float64{
		features.Probabilities.Home.InexactFloat64(),
		features.Probabilities.Draw.InexactFloat64(),
		features.Probabilities.Away.InexactFloat64(),
	}
	if probs[0]+probs[1]+probs[2] == 0 {
		return nil, 0
	}

	outcome := 1
	switch {
	case *p.HomeGoals > *p.AwayGoals:
		outcome = 0
	case *p.HomeGoals < *p.AwayGoals:
		outcome = 2
	}
	return &probs, outcome
}
