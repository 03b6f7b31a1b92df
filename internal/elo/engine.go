// Package elo maintains one strength rating per team, replayed as an
// idempotent batch process over chronologically ordered finished fixtures.
// Elo is order-sensitive: if finished fixtures arrive out of order the
// engine wipes the affected ratings and replays history rather than
// patching.
package elo

import (
	"context"
	"math"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/goalcast/goalcast/internal/fixed"
	"github.com/goalcast/goalcast/internal/store"
)

// Config holds the rating parameters.
type Config struct {
	BaseK            float64 `yaml:"base_k"`            // rating step per match
	HomeAdvantage    float64 `yaml:"home_advantage"`    // rating points added to the home side's expectation
	DefaultRating    float64 `yaml:"default_rating"`    // rating for unseen teams
	RegressionFactor float64 `yaml:"regression_factor"` // season-boundary pull toward the default
	SeasonGapDays    int     `yaml:"season_gap_days"`   // kickoff gap treated as a season boundary
	BatchSize        int     `yaml:"batch_size"`        // fixtures per commit
}

// DefaultConfig returns the production rating parameters.
func DefaultConfig() Config {
	return Config{
		BaseK:            20,
		HomeAdvantage:    65,
		DefaultRating:    1500,
		RegressionFactor: 0.67,
		SeasonGapDays:    45,
		BatchSize:        200,
	}
}

// Expectation is the classic Elo win expectation with an optional
// home-advantage offset added to the perspective side's rating.
func Expectation(rating, oppRating, homeAdvantage float64) float64 {
	return 1 / (1 + math.Pow(10, (oppRating-rating-homeAdvantage)/400))
}

// KMultiplier scales the base K by goal margin: a one-goal result moves
// ratings normally, blowouts move them further.
func KMultiplier(goalDiff int) float64 {
	if goalDiff < 0 {
		goalDiff = -goalDiff
	}
	if goalDiff <= 1 {
		return 1
	}
	return math.Log(float64(goalDiff) + 1)
}

// AdjustFactor converts a rating difference into a bounded multiplicative
// expected-goals adjustment.
func AdjustFactor(eloDiff float64) float64 {
	return fixed.Clamp(1+eloDiff/1600, 0.75, 1.25)
}

// RunStats summarizes one engine invocation.
type RunStats struct {
	Processed int  `json:"processed"`
	Skipped   int  `json:"skipped"`
	Regressed int  `json:"regressed"` // season boundaries crossed
	Rebuilt   bool `json:"rebuilt"`
}

// Engine replays finished fixtures into team ratings.
type Engine struct {
	fixtures store.FixtureRepo
	ratings  store.RatingRepo
	cfg      Config
}

// NewEngine creates a rating engine over the given repositories.
func NewEngine(fixtures store.FixtureRepo, ratings store.RatingRepo, cfg Config) *Engine {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultConfig().BatchSize
	}
	return &Engine{fixtures: fixtures, ratings: ratings, cfg: cfg}
}

// Run consumes all unprocessed finished fixtures in kickoff-then-id order,
// optionally filtered by league set and capped at a cutoff kickoff for
// backtests. Rerunning with no new finished fixtures changes nothing.
//
// If an already-processed fixture's kickoff lies after an unprocessed
// fixture's kickoff, chronology is corrupted and the engine wipes the
// ratings and markers within the league filter and replays from scratch.
// Force requests the same rebuild explicitly.
func (e *Engine) Run(ctx context.Context, leagues []int64, cutoff *time.Time, force bool) (RunStats, error) {
	var stats RunStats

	rebuild := force
	if !rebuild {
		outOfOrder, err := e.detectOutOfOrder(ctx, leagues, cutoff)
		if err != nil {
			return stats, err
		}
		rebuild = outOfOrder
	}

	if rebuild {
		log.Warn().Bool("force", force).Msg("elo: rebuilding ratings from scratch")
		if err := e.ratings.Wipe(ctx, leagues); err != nil {
			return stats, err
		}
		if err := e.fixtures.ResetEloProcessed(ctx, leagues); err != nil {
			return stats, err
		}
		stats.Rebuilt = true
	}

	cache, err := e.ratings.All(ctx)
	if err != nil {
		return stats, err
	}

	// Season-gap detection must survive incremental runs: resume from the
	// last kickoff the previous invocation consumed, not from nil.
	lastKickoff, err := e.fixtures.MaxProcessedKickoff(ctx, leagues)
	if err != nil {
		return stats, err
	}
	for {
		batch, err := e.fixtures.UnprocessedFinished(ctx, leagues, cutoff, e.cfg.BatchSize)
		if err != nil {
			return stats, err
		}
		if len(batch) == 0 {
			break
		}

		processed := make([]int64, 0, len(batch))
		dirty := make(map[int64]struct{})

		for _, f := range batch {
			if !f.HasScore() {
				stats.Skipped++
				continue
			}

			if lastKickoff != nil {
				gap := f.Kickoff.Sub(*lastKickoff)
				if gap > time.Duration(e.cfg.SeasonGapDays)*24*time.Hour {
					e.regressAll(cache, dirty)
					stats.Regressed++
				}
			}
			k := f.Kickoff
			lastKickoff = &k

			e.apply(f, cache, dirty)
			processed = append(processed, f.ID)
			stats.Processed++
		}

		if err := e.persist(ctx, cache, dirty); err != nil {
			return stats, err
		}
		if err := e.fixtures.MarkEloProcessed(ctx, processed, time.Now().UTC()); err != nil {
			return stats, err
		}
	}

	log.Info().
		Int("processed", stats.Processed).
		Int("skipped", stats.Skipped).
		Int("regressed", stats.Regressed).
		Bool("rebuilt", stats.Rebuilt).
		Msg("elo: run complete")
	return stats, nil
}

func (e *Engine) detectOutOfOrder(ctx context.Context, leagues []int64, cutoff *time.Time) (bool, error) {
	maxProcessed, err := e.fixtures.MaxProcessedKickoff(ctx, leagues)
	if err != nil {
		return false, err
	}
	if maxProcessed == nil {
		return false, nil
	}
	minUnprocessed, err := e.fixtures.MinUnprocessedKickoff(ctx, leagues, cutoff)
	if err != nil {
		return false, err
	}
	if minUnprocessed == nil {
		return false, nil
	}
	return minUnprocessed.Before(*maxProcessed), nil
}

// apply updates both teams' ratings from one scored fixture.
func (e *Engine) apply(f store.Fixture, cache map[int64]decimal.Decimal, dirty map[int64]struct{}) {
	home := e.rating(cache, f.HomeTeamID)
	away := e.rating(cache, f.AwayTeamID)

	expHome := Expectation(home, away, e.cfg.HomeAdvantage)
	expAway := Expectation(away, home, -e.cfg.HomeAdvantage)

	var resHome, resAway float64
	switch {
	case *f.HomeGoals > *f.AwayGoals:
		resHome, resAway = 1, 0
	case *f.HomeGoals < *f.AwayGoals:
		resHome, resAway = 0, 1
	default:
		resHome, resAway = 0.5, 0.5
	}

	kEff := e.cfg.BaseK * KMultiplier(*f.HomeGoals-*f.AwayGoals)

	cache[f.HomeTeamID] = fixed.MoneyFromFloat(home + kEff*(resHome-expHome))
	cache[f.AwayTeamID] = fixed.MoneyFromFloat(away + kEff*(resAway-expAway))
	dirty[f.HomeTeamID] = struct{}{}
	dirty[f.AwayTeamID] = struct{}{}
}

// regressAll pulls every currently-known rating toward the default at a
// season boundary.
func (e *Engine) regressAll(cache map[int64]decimal.Decimal, dirty map[int64]struct{}) {
	for teamID, rating := range cache {
		old := rating.InexactFloat64()
		cache[teamID] = fixed.MoneyFromFloat(e.cfg.DefaultRating + e.cfg.RegressionFactor*(old-e.cfg.DefaultRating))
		dirty[teamID] = struct{}{}
	}
}

func (e *Engine) rating(cache map[int64]decimal.Decimal, teamID int64) float64 {
	if r, ok := cache[teamID]; ok {
		return r.InexactFloat64()
	}
	return e.cfg.DefaultRating
}

func (e *Engine) persist(ctx context.Context, cache map[int64]decimal.Decimal, dirty map[int64]struct{}) error {
	now := time.Now().UTC()
	for teamID := range dirty {
		if err := e.ratings.Upsert(ctx, teamID, cache[teamID], now); err != nil {
			return err
		}
	}
	return nil
}
