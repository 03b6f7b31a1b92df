package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/goalcast/goalcast/internal/store"
)

// fixtureRepo implements store.FixtureRepo for PostgreSQL.
type fixtureRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewFixtureRepo creates a new PostgreSQL fixture repository.
func NewFixtureRepo(db *sqlx.DB, timeout time.Duration) store.FixtureRepo {
	return &fixtureRepo{db: db, timeout: timeout}
}

const fixtureColumns = `
	f.id, f.league_id, f.season, f.kickoff, f.home_team_id, f.away_team_id,
	f.status, f.home_goals, f.away_goals, f.home_xg, f.away_xg,
	f.elo_processed, f.elo_processed_at`

// Upcoming returns not-started fixtures in [from, to) joined to best odds,
// standings and rolling form indices for both sides.
func (r *fixtureRepo) Upcoming(ctx context.Context, from, to time.Time, leagues []int64) ([]store.UpcomingFixture, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT ` + fixtureColumns + `,
		       o.odd_home, o.odd_draw, o.odd_away, o.odd_over_2_5, o.odd_under_2_5,
		       o.avg_odd_home, o.avg_odd_draw, o.avg_odd_away,
		       hf.attack_short  AS h_attack_short,  hf.attack_long  AS h_attack_long,
		       hf.attack_venue  AS h_attack_venue,  hf.defense_short AS h_defense_short,
		       hf.defense_long  AS h_defense_long,  hf.defense_venue AS h_defense_venue,
		       hf.sample_count  AS h_sample_count,  hf.goals_mean   AS h_goals_mean,
		       hf.goals_stddev  AS h_goals_stddev,  hs.rank AS h_rank, hs.points AS h_points,
		       af.attack_short  AS a_attack_short,  af.attack_long  AS a_attack_long,
		       af.attack_venue  AS a_attack_venue,  af.defense_short AS a_defense_short,
		       af.defense_long  AS a_defense_long,  af.defense_venue AS a_defense_venue,
		       af.sample_count  AS a_sample_count,  af.goals_mean   AS a_goals_mean,
		       af.goals_stddev  AS a_goals_stddev,  as_.rank AS a_rank, as_.points AS a_points
		FROM fixtures f
		LEFT JOIN fixture_odds o   ON o.fixture_id = f.id
		LEFT JOIN team_form hf     ON hf.team_id = f.home_team_id AND hf.league_id = f.league_id AND hf.season = f.season
		LEFT JOIN team_form af     ON af.team_id = f.away_team_id AND af.league_id = f.league_id AND af.season = f.season
		LEFT JOIN standings hs     ON hs.team_id = f.home_team_id AND hs.league_id = f.league_id AND hs.season = f.season
		LEFT JOIN standings as_    ON as_.team_id = f.away_team_id AND as_.league_id = f.league_id AND as_.season = f.season
		WHERE f.status = 'NS'
		  AND f.kickoff >= $1 AND f.kickoff < $2
		  AND (cardinality($3::bigint[]) = 0 OR f.league_id = ANY($3))
		ORDER BY f.kickoff, f.id`

	rows, err := r.db.QueryxContext(ctx, query, from, to, pq.Array(leagues))
	if err != nil {
		return nil, fmt.Errorf("query upcoming fixtures: %w", err)
	}
	defer rows.Close()

	var out []store.UpcomingFixture
	for rows.Next() {
		var uf store.UpcomingFixture
		err := rows.Scan(
			&uf.ID, &uf.LeagueID, &uf.Season, &uf.Kickoff, &uf.HomeTeamID, &uf.AwayTeamID,
			&uf.Status, &uf.HomeGoals, &uf.AwayGoals, &uf.HomeXG, &uf.AwayXG,
			&uf.EloProcessed, &uf.EloProcessedAt,
			&uf.Odds.HomeWin, &uf.Odds.Draw, &uf.Odds.AwayWin,
			&uf.Odds.Over25, &uf.Odds.Under25,
			&uf.Odds.AvgHomeWin, &uf.Odds.AvgDraw, &uf.Odds.AvgAwayWin,
			&uf.Home.AttackShort, &uf.Home.AttackLong, &uf.Home.AttackVenue,
			&uf.Home.DefenseShort, &uf.Home.DefenseLong, &uf.Home.DefenseVenue,
			&uf.Home.SampleCount, &uf.Home.GoalsMean, &uf.Home.GoalsStdDev,
			&uf.Home.Rank, &uf.Home.Points,
			&uf.Away.AttackShort, &uf.Away.AttackLong, &uf.Away.AttackVenue,
			&uf.Away.DefenseShort, &uf.Away.DefenseLong, &uf.Away.DefenseVenue,
			&uf.Away.SampleCount, &uf.Away.GoalsMean, &uf.Away.GoalsStdDev,
			&uf.Away.Rank, &uf.Away.Points,
		)
		if err != nil {
			return nil, fmt.Errorf("scan upcoming fixture: %w", err)
		}
		out = append(out, uf)
	}
	return out, rows.Err()
}

// FinishedBefore returns finished, fully scored fixtures for a league
// season strictly before the cutoff, kickoff ascending.
func (r *fixtureRepo) FinishedBefore(ctx context.Context, leagueID int64, season int, before time.Time) ([]store.Fixture, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT ` + fixtureColumns + `
		FROM fixtures f
		WHERE f.league_id = $1 AND f.season = $2
		  AND f.status IN ('FT','AET','PEN')
		  AND f.home_goals IS NOT NULL AND f.away_goals IS NOT NULL
		  AND f.kickoff < $3
		ORDER BY f.kickoff, f.id`

	var out []store.Fixture
	if err := r.selectFixtures(ctx, &out, query, leagueID, season, before); err != nil {
		return nil, fmt.Errorf("query finished fixtures: %w", err)
	}
	return out, nil
}

// UnprocessedFinished returns finished fixtures not yet consumed by the
// Elo engine, in strict kickoff-then-id order.
func (r *fixtureRepo) UnprocessedFinished(ctx context.Context, leagues []int64, cutoff *time.Time, limit int) ([]store.Fixture, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT ` + fixtureColumns + `
		FROM fixtures f
		WHERE f.elo_processed = FALSE
		  AND f.status IN ('FT','AET','PEN')
		  AND f.home_goals IS NOT NULL AND f.away_goals IS NOT NULL
		  AND (cardinality($1::bigint[]) = 0 OR f.league_id = ANY($1))
		  AND ($2::timestamptz IS NULL OR f.kickoff <= $2)
		ORDER BY f.kickoff, f.id
		LIMIT $3`

	var out []store.Fixture
	if err := r.selectFixtures(ctx, &out, query, pq.Array(leagues), cutoff, limit); err != nil {
		return nil, fmt.Errorf("query unprocessed fixtures: %w", err)
	}
	return out, nil
}

func (r *fixtureRepo) selectFixtures(ctx context.Context, out *[]store.Fixture, query string, args ...interface{}) error {
	rows, err := r.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var f store.Fixture
		err := rows.Scan(
			&f.ID, &f.LeagueID, &f.Season, &f.Kickoff, &f.HomeTeamID, &f.AwayTeamID,
			&f.Status, &f.HomeGoals, &f.AwayGoals, &f.HomeXG, &f.AwayXG,
			&f.EloProcessed, &f.EloProcessedAt,
		)
		if err != nil {
			return err
		}
		*out = append(*out, f)
	}
	return rows.Err()
}

// MarkEloProcessed flips the idempotency marker for a processed batch.
func (r *fixtureRepo) MarkEloProcessed(ctx context.Context, ids []int64, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		UPDATE fixtures
		SET elo_processed = TRUE, elo_processed_at = $2
		WHERE id = ANY($1)`

	if _, err := r.db.ExecContext(ctx, query, pq.Array(ids), at); err != nil {
		return fmt.Errorf("mark elo processed: %w", err)
	}
	return nil
}

// ResetEloProcessed clears the markers for a full rebuild.
func (r *fixtureRepo) ResetEloProcessed(ctx context.Context, leagues []int64) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		UPDATE fixtures
		SET elo_processed = FALSE, elo_processed_at = NULL
		WHERE elo_processed = TRUE
		  AND (cardinality($1::bigint[]) = 0 OR league_id = ANY($1))`

	if _, err := r.db.ExecContext(ctx, query, pq.Array(leagues)); err != nil {
		return fmt.Errorf("reset elo processed: %w", err)
	}
	return nil
}

// MaxProcessedKickoff returns the latest kickoff already consumed by the
// Elo engine, or nil when nothing has been processed.
func (r *fixtureRepo) MaxProcessedKickoff(ctx context.Context, leagues []int64) (*time.Time, error) {
	return r.kickoffBound(ctx, `
		SELECT MAX(kickoff) FROM fixtures
		WHERE elo_processed = TRUE
		  AND (cardinality($1::bigint[]) = 0 OR league_id = ANY($1))`, pq.Array(leagues))
}

// MinUnprocessedKickoff returns the earliest kickoff still awaiting Elo
// processing, or nil when the backlog is empty.
func (r *fixtureRepo) MinUnprocessedKickoff(ctx context.Context, leagues []int64, cutoff *time.Time) (*time.Time, error) {
	return r.kickoffBound(ctx, `
		SELECT MIN(kickoff) FROM fixtures
		WHERE elo_processed = FALSE
		  AND status IN ('FT','AET','PEN')
		  AND home_goals IS NOT NULL AND away_goals IS NOT NULL
		  AND (cardinality($1::bigint[]) = 0 OR league_id = ANY($1))
		  AND ($2::timestamptz IS NULL OR kickoff <= $2)`, pq.Array(leagues), cutoff)
}

func (r *fixtureRepo) kickoffBound(ctx context.Context, query string, args ...interface{}) (*time.Time, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var ts sql.NullTime
	if err := r.db.QueryRowxContext(ctx, query, args...).Scan(&ts); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("query kickoff bound: %w", err)
	}
	if !ts.Valid {
		return nil, nil
	}
	t := ts.Time.UTC()
	return &t, nil
}
