package estimate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/goalcast/goalcast/internal/fixed"
	"github.com/goalcast/goalcast/internal/store"
)

// Fallbacks when history is too thin to estimate. The draw frequency
// matches long-run top-flight football; the goal averages are deliberately
// unopinionated league-typical rates.
const (
	DefaultDrawFrequency = 0.22
	DefaultAvgHomeGoals  = 1.50
	DefaultAvgAwayGoals  = 1.20
)

// Cache is the run-scoped read-through baseline cache. One is constructed
// at the start of each orchestrator run and passed explicitly; it is never
// package-level state.
type Cache struct {
	entries map[string]store.LeagueBaseline
}

// NewCache creates an empty run-scoped cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[string]store.LeagueBaseline)}
}

func cacheKey(leagueID int64, season int, date time.Time) string {
	return fmt.Sprintf("%d/%d/%s", leagueID, season, date.Format("2006-01-02"))
}

// Estimator computes and caches league baselines.
type Estimator struct {
	fixtures  store.FixtureRepo
	decisions store.DecisionRepo
	baselines store.BaselineRepo
	source    string // probability-source tag the alpha fit filters on
}

// NewEstimator creates a baseline estimator. source tags which logged
// probability source feeds the alpha calibration fit.
func NewEstimator(fixtures store.FixtureRepo, decisions store.DecisionRepo, baselines store.BaselineRepo, source string) *Estimator {
	return &Estimator{fixtures: fixtures, decisions: decisions, baselines: baselines, source: source}
}

// BaselineFor returns the league baseline as of the given date, computed
// only from fixtures strictly before that date. Lookup order: run cache,
// baseline store, then recompute. A recompute is persisted opportunistically;
// persistence failure is logged and swallowed since the cache row is an
// optimization, not correctness-critical.
func (e *Estimator) BaselineFor(ctx context.Context, cache *Cache, leagueID int64, season int, date time.Time) (store.LeagueBaseline, error) {
	day := date.UTC().Truncate(24 * time.Hour)
	key := cacheKey(leagueID, season, day)

	if b, ok := cache.entries[key]; ok {
		return b, nil
	}

	if stored, err := e.baselines.Get(ctx, leagueID, season, day); err != nil {
		log.Warn().Err(err).Int64("league", leagueID).Msg("baseline: cache read failed, recomputing")
	} else if stored != nil {
		cache.entries[key] = *stored
		return *stored, nil
	}

	b, err := e.compute(ctx, leagueID, season, day)
	if err != nil {
		return store.LeagueBaseline{}, err
	}

	if err := e.baselines.Upsert(ctx, b); err != nil {
		log.Warn().Err(err).Int64("league", leagueID).Msg("baseline: cache write failed")
	}
	cache.entries[key] = b
	return b, nil
}

func (e *Estimator) compute(ctx context.Context, leagueID int64, season int, day time.Time) (store.LeagueBaseline, error) {
	history, err := e.fixtures.FinishedBefore(ctx, leagueID, season, day)
	if err != nil {
		return store.LeagueBaseline{}, fmt.Errorf("load baseline history: %w", err)
	}

	avgHome, avgAway, drawFreq := averages(history)

	b := store.LeagueBaseline{
		LeagueID:      leagueID,
		Season:        season,
		Date:          day,
		AvgHomeGoals:  fixed.Prob(decimal.NewFromFloat(avgHome)),
		AvgAwayGoals:  fixed.Prob(decimal.NewFromFloat(avgAway)),
		DrawFrequency: fixed.Prob(decimal.NewFromFloat(drawFreq)),
	}

	rho, err := FitRho(CountLowScores(history), avgHome, avgAway)
	switch {
	case err == nil:
		b.Rho = &rho
	case errors.Is(err, ErrInsufficientSample), errors.Is(err, ErrNoFeasibleRho):
		log.Debug().Int64("league", leagueID).Int("season", season).
			Int("matches", len(history)).Msg("baseline: rho fit skipped")
	default:
		return store.LeagueBaseline{}, err
	}

	samples, err := e.decisions.Samples(ctx, leagueID, season, e.source, day)
	if err != nil {
		return store.LeagueBaseline{}, fmt.Errorf("load alpha samples: %w", err)
	}
	alpha, err := FitAlpha(samples)
	switch {
	case err == nil:
		b.Alpha = &alpha
	case errors.Is(err, ErrInsufficientSample):
		log.Debug().Int64("league", leagueID).Int("season", season).
			Int("samples", len(samples)).Msg("baseline: alpha fit skipped")
	default:
		return store.LeagueBaseline{}, err
	}

	return b, nil
}

// averages returns mean home goals, mean away goals and draw frequency
// over the scored part of the history, falling back to safe defaults when
// no fixture carries a score.
func averages(history []store.Fixture) (avgHome, avgAway, drawFreq float64) {
	var homeGoals, awayGoals, draws, scored int
	for _, f := range history {
		if !f.HasScore() {
			continue
		}
		homeGoals += *f.HomeGoals
		awayGoals += *f.AwayGoals
		if *f.HomeGoals == *f.AwayGoals {
			draws++
		}
		scored++
	}
	if scored == 0 {
		return DefaultAvgHomeGoals, DefaultAvgAwayGoals, DefaultDrawFrequency
	}
	n := float64(scored)
	return float64(homeGoals) / n, float64(awayGoals) / n, float64(draws) / n
}
