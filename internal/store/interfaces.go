// Package store defines the persistence interfaces and row types the
// pipeline operates on. Implementations live in store/postgres; tests use
// the in-memory fakes in store/storetest.
package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// FixtureStatus is the provider-facing fixture lifecycle vocabulary.
type FixtureStatus string

const (
	StatusNotStarted  FixtureStatus = "NS"
	StatusFinished    FixtureStatus = "FT"
	StatusFinishedAET FixtureStatus = "AET"
	StatusFinishedPen FixtureStatus = "PEN"
	StatusPostponed   FixtureStatus = "PST"
	StatusCancelled   FixtureStatus = "CANC"
	StatusAbandoned   FixtureStatus = "ABD"
	StatusAwarded     FixtureStatus = "AWD"
	StatusWalkover    FixtureStatus = "WO"
)

// IsFinished reports whether the fixture reached a played conclusion.
func (s FixtureStatus) IsFinished() bool {
	switch s {
	case StatusFinished, StatusFinishedAET, StatusFinishedPen:
		return true
	}
	return false
}

// IsVoidable reports whether the fixture ended without a playable result,
// which force-voids any prediction on it.
func (s FixtureStatus) IsVoidable() bool {
	switch s {
	case StatusCancelled, StatusAbandoned, StatusAwarded, StatusWalkover:
		return true
	}
	return false
}

// Markets handled by the decision pipeline. INFO_* markets carry derived
// probabilities only and never produce a bet.
const (
	Market1X2      = "1X2"
	MarketTotals   = "TOTAL"
	MarketInfoOU15 = "INFO_OU_1_5"
	MarketInfoOU35 = "INFO_OU_3_5"
	MarketInfoBTTS = "INFO_BTTS"
)

// Prediction selections and statuses.
const (
	SelectionHomeWin = "HOME_WIN"
	SelectionDraw    = "DRAW"
	SelectionAwayWin = "AWAY_WIN"
	SelectionOver    = "OVER_2_5"
	SelectionUnder   = "UNDER_2_5"
	SelectionSkip    = "SKIP"
)

// PredictionStatus is the settlement lifecycle of a prediction row.
type PredictionStatus string

const (
	StatusPending PredictionStatus = "PENDING"
	StatusWin     PredictionStatus = "WIN"
	StatusLoss    PredictionStatus = "LOSS"
	StatusVoid    PredictionStatus = "VOID"
)

// Fixture is one scheduled or played match.
type Fixture struct {
	ID             int64         `json:"id" db:"id"`
	LeagueID       int64         `json:"league_id" db:"league_id"`
	Season         int           `json:"season" db:"season"`
	Kickoff        time.Time     `json:"kickoff" db:"kickoff"` // always UTC
	HomeTeamID     int64         `json:"home_team_id" db:"home_team_id"`
	AwayTeamID     int64         `json:"away_team_id" db:"away_team_id"`
	Status         FixtureStatus `json:"status" db:"status"`
	HomeGoals      *int          `json:"home_goals,omitempty" db:"home_goals"`
	AwayGoals      *int          `json:"away_goals,omitempty" db:"away_goals"`
	HomeXG         *float64      `json:"home_xg,omitempty" db:"home_xg"`
	AwayXG         *float64      `json:"away_xg,omitempty" db:"away_xg"`
	EloProcessed   bool          `json:"elo_processed" db:"elo_processed"`
	EloProcessedAt *time.Time    `json:"elo_processed_at,omitempty" db:"elo_processed_at"`
}

// HasScore reports whether both final goals are present.
func (f Fixture) HasScore() bool {
	return f.HomeGoals != nil && f.AwayGoals != nil
}

// MarketOdds are best-available decimal odds for one fixture, with the
// market-average odds alongside the tracked book's own.
type MarketOdds struct {
	HomeWin    *decimal.Decimal `json:"home_win,omitempty" db:"odd_home"`
	Draw       *decimal.Decimal `json:"draw,omitempty" db:"odd_draw"`
	AwayWin    *decimal.Decimal `json:"away_win,omitempty" db:"odd_away"`
	Over25     *decimal.Decimal `json:"over_2_5,omitempty" db:"odd_over_2_5"`
	Under25    *decimal.Decimal `json:"under_2_5,omitempty" db:"odd_under_2_5"`
	AvgHomeWin *decimal.Decimal `json:"avg_home_win,omitempty" db:"avg_odd_home"`
	AvgDraw    *decimal.Decimal `json:"avg_draw,omitempty" db:"avg_odd_draw"`
	AvgAwayWin *decimal.Decimal `json:"avg_away_win,omitempty" db:"avg_odd_away"`
}

// TeamIndices are the pre-joined rolling form numbers for one side of a
// fixture: attack/defence indices over short, long and venue-specific
// windows, plus the sample stats the signal score needs.
type TeamIndices struct {
	AttackShort  float64 `json:"attack_short" db:"attack_short"`
	AttackLong   float64 `json:"attack_long" db:"attack_long"`
	AttackVenue  float64 `json:"attack_venue" db:"attack_venue"`
	DefenseShort float64 `json:"defense_short" db:"defense_short"`
	DefenseLong  float64 `json:"defense_long" db:"defense_long"`
	DefenseVenue float64 `json:"defense_venue" db:"defense_venue"`
	SampleCount  int     `json:"sample_count" db:"sample_count"`
	GoalsMean    float64 `json:"goals_mean" db:"goals_mean"`
	GoalsStdDev  float64 `json:"goals_stddev" db:"goals_stddev"`
	Rank         int     `json:"rank" db:"rank"`
	Points       int     `json:"points" db:"points"`
}

// UpcomingFixture is the orchestrator's working row: the fixture joined to
// odds, standings and form indices for both sides.
type UpcomingFixture struct {
	Fixture
	Odds MarketOdds  `json:"odds"`
	Home TeamIndices `json:"home"`
	Away TeamIndices `json:"away"`
}

// TeamRating is one team's current Elo rating.
type TeamRating struct {
	TeamID    int64           `json:"team_id" db:"team_id"`
	Rating    decimal.Decimal `json:"rating" db:"rating"`
	UpdatedAt time.Time       `json:"updated_at" db:"updated_at"`
}

// LeagueBaseline caches per-date league statistics. Values are computed
// only from fixtures strictly before Date.
type LeagueBaseline struct {
	LeagueID      int64            `json:"league_id" db:"league_id"`
	Season        int              `json:"season" db:"season"`
	Date          time.Time        `json:"date" db:"date"` // calendar date, midnight UTC
	AvgHomeGoals  decimal.Decimal  `json:"avg_home_goals" db:"avg_home_goals"`
	AvgAwayGoals  decimal.Decimal  `json:"avg_away_goals" db:"avg_away_goals"`
	DrawFrequency decimal.Decimal  `json:"draw_frequency" db:"draw_frequency"`
	Rho           *decimal.Decimal `json:"rho,omitempty" db:"rho"`
	Alpha         *decimal.Decimal `json:"alpha,omitempty" db:"alpha"`
}

// Decision is the per-fixture-per-market audit record. Payload is one of
// the tagged variants in the pipeline package; the latest recompute
// overwrites earlier reasoning.
type Decision struct {
	FixtureID int64           `json:"fixture_id" db:"fixture_id"`
	Market    string          `json:"market" db:"market"`
	RunID     string          `json:"run_id" db:"run_id"`
	Payload   json.RawMessage `json:"payload" db:"payload"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt time.Time       `json:"updated_at" db:"updated_at"`
}

// DecisionSample joins a logged 1X2 candidate probability triple to the
// realized outcome, for alpha calibration fitting.
type DecisionSample struct {
	FixtureID int64           `db:"fixture_id"`
	ProbHome  decimal.Decimal `db:"prob_home"`
	ProbDraw  decimal.Decimal `db:"prob_draw"`
	ProbAway  decimal.Decimal `db:"prob_away"`
	Outcome   int             `db:"outcome"` // 0 home, 1 draw, 2 away
}

// Prediction is the settlement record for one fixture and market.
type Prediction struct {
	FixtureID   int64            `json:"fixture_id" db:"fixture_id"`
	Market      string           `json:"market" db:"market"`
	Selection   string           `json:"selection" db:"selection"`
	Confidence  decimal.Decimal  `json:"confidence" db:"confidence"`
	InitialOdd  *decimal.Decimal `json:"initial_odd,omitempty" db:"initial_odd"`
	ValueIndex  decimal.Decimal  `json:"value_index" db:"value_index"`
	Status      PredictionStatus `json:"status" db:"status"`
	Profit      decimal.Decimal  `json:"profit" db:"profit"`
	SignalScore decimal.Decimal  `json:"signal_score" db:"signal_score"`
	Source      string           `json:"source" db:"source"`
	Features    json.RawMessage  `json:"features" db:"features"`
	CreatedAt   time.Time        `json:"created_at" db:"created_at"`
	SettledAt   *time.Time       `json:"settled_at,omitempty" db:"settled_at"`
}

// PendingPrediction is a pending prediction joined to its fixture's
// current status and score for settlement.
type PendingPrediction struct {
	Prediction
	FixtureStatus  FixtureStatus `db:"fixture_status"`
	FixtureKickoff time.Time     `db:"fixture_kickoff"`
	HomeGoals      *int          `db:"fx_home_goals"`
	AwayGoals      *int          `db:"fx_away_goals"`
}

// DayWindow scopes a backtest operation to [From, To).
type DayWindow struct {
	From time.Time
	To   time.Time
}

// Contains reports whether ts falls inside the window.
func (w DayWindow) Contains(ts time.Time) bool {
	return !ts.Before(w.From) && ts.Before(w.To)
}

// FixtureRepo reads fixture rows for prediction, estimation and Elo replay.
type FixtureRepo interface {
	// Upcoming returns not-started fixtures kicking off in [from, to),
	// joined to odds, standings and form indices.
	Upcoming(ctx context.Context, from, to time.Time, leagues []int64) ([]UpcomingFixture, error)

	// FinishedBefore returns finished, fully scored fixtures for a league
	// season with kickoff strictly before the cutoff, kickoff ascending.
	FinishedBefore(ctx context.Context, leagueID int64, season int, before time.Time) ([]Fixture, error)

	// UnprocessedFinished returns finished fixtures not yet consumed by the
	// Elo engine, ordered by kickoff then id. A nil cutoff means no bound.
	UnprocessedFinished(ctx context.Context, leagues []int64, cutoff *time.Time, limit int) ([]Fixture, error)

	// MarkEloProcessed flips the idempotency marker for a processed batch.
	MarkEloProcessed(ctx context.Context, ids []int64, at time.Time) error

	// ResetEloProcessed clears the markers for a full Elo rebuild.
	ResetEloProcessed(ctx context.Context, leagues []int64) error

	// MaxProcessedKickoff / MinUnprocessedKickoff support out-of-order
	// detection. Either returns nil when no matching fixture exists.
	MaxProcessedKickoff(ctx context.Context, leagues []int64) (*time.Time, error)
	MinUnprocessedKickoff(ctx context.Context, leagues []int64, cutoff *time.Time) (*time.Time, error)
}

// RatingRepo reads and writes team Elo ratings.
type RatingRepo interface {
	// Get returns the team's rating, or def when no row exists.
	Get(ctx context.Context, teamID int64, def decimal.Decimal) (decimal.Decimal, error)

	// All returns every known rating.
	All(ctx context.Context) (map[int64]decimal.Decimal, error)

	// Upsert writes one rating.
	Upsert(ctx context.Context, teamID int64, rating decimal.Decimal, at time.Time) error

	// Wipe deletes ratings ahead of a rebuild. With a non-empty league
	// set only the ratings of teams appearing in those leagues' fixtures
	// are removed; an empty set wipes everything.
	Wipe(ctx context.Context, leagues []int64) error
}

// BaselineRepo caches league baselines per calendar date.
type BaselineRepo interface {
	Get(ctx context.Context, leagueID int64, season int, date time.Time) (*LeagueBaseline, error)
	Upsert(ctx context.Context, b LeagueBaseline) error
}

// DecisionRepo persists audit decisions and replays them for calibration.
type DecisionRepo interface {
	Upsert(ctx context.Context, d Decision) error

	// Samples returns logged 1X2 probabilities for a source tag joined to
	// realized outcomes, restricted to fixtures before the cutoff.
	Samples(ctx context.Context, leagueID int64, season int, source string, before time.Time) ([]DecisionSample, error)
}

// PredictionRepo persists prediction rows and drives settlement.
type PredictionRepo interface {
	Upsert(ctx context.Context, p Prediction) error

	// PendingSettleable returns pending predictions for a market whose
	// fixture has reached a terminal status.
	PendingSettleable(ctx context.Context, market string) ([]PendingPrediction, error)

	// Settle finalizes one prediction exactly once.
	Settle(ctx context.Context, fixtureID int64, market string, status PredictionStatus, profit decimal.Decimal, at time.Time) error
}

// InjuryRepo counts current squad absences for a team.
type InjuryRepo interface {
	CountRecent(ctx context.Context, teamID int64, since time.Time) (int, error)
}

// Repository aggregates the persistence interfaces one run needs.
type Repository struct {
	Fixtures    FixtureRepo
	Ratings     RatingRepo
	Baselines   BaselineRepo
	Decisions   DecisionRepo
	Predictions PredictionRepo
	Injuries    InjuryRepo
}
