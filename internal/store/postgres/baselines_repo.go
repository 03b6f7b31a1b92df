package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/goalcast/goalcast/internal/store"
)

// baselineRepo implements store.BaselineRepo for PostgreSQL.
type baselineRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewBaselineRepo creates a new PostgreSQL league baseline repository.
func NewBaselineRepo(db *sqlx.DB, timeout time.Duration) store.BaselineRepo {
	return &baselineRepo{db: db, timeout: timeout}
}

// Get returns the cached baseline for (league, season, date), or nil when
// none has been computed for that date yet.
func (r *baselineRepo) Get(ctx context.Context, leagueID int64, season int, date time.Time) (*store.LeagueBaseline, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT league_id, season, date, avg_home_goals, avg_away_goals,
		       draw_frequency, rho, alpha
		FROM league_baselines
		WHERE league_id = $1 AND season = $2 AND date = $3`

	var (
		b          store.LeagueBaseline
		avgH, avgA string
		drawFreq   string
		rhoRaw     sql.NullString
		alphaRaw   sql.NullString
	)
	err := r.db.QueryRowxContext(ctx, query, leagueID, season, date).Scan(
		&b.LeagueID, &b.Season, &b.Date, &avgH, &avgA, &drawFreq, &rhoRaw, &alphaRaw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("query league baseline: %w", err)
	}

	if b.AvgHomeGoals, err = decimal.NewFromString(avgH); err != nil {
		return nil, fmt.Errorf("parse avg_home_goals: %w", err)
	}
	if b.AvgAwayGoals, err = decimal.NewFromString(avgA); err != nil {
		return nil, fmt.Errorf("parse avg_away_goals: %w", err)
	}
	if b.DrawFrequency, err = decimal.NewFromString(drawFreq); err != nil {
		return nil, fmt.Errorf("parse draw_frequency: %w", err)
	}
	if rhoRaw.Valid {
		rho, err := decimal.NewFromString(rhoRaw.String)
		if err != nil {
			return nil, fmt.Errorf("parse rho: %w", err)
		}
		b.Rho = &rho
	}
	if alphaRaw.Valid {
		alpha, err := decimal.NewFromString(alphaRaw.String)
		if err != nil {
			return nil, fmt.Errorf("parse alpha: %w", err)
		}
		b.Alpha = &alpha
	}
	return &b, nil
}

// Upsert writes the baseline for its (league, season, date) key.
func (r *baselineRepo) Upsert(ctx context.Context, b store.LeagueBaseline) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		INSERT INTO league_baselines
		(league_id, season, date, avg_home_goals, avg_away_goals, draw_frequency, rho, alpha)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (league_id, season, date) DO UPDATE SET
			avg_home_goals = EXCLUDED.avg_home_goals,
			avg_away_goals = EXCLUDED.avg_away_goals,
			draw_frequency = EXCLUDED.draw_frequency,
			rho = EXCLUDED.rho,
			alpha = EXCLUDED.alpha`

	var rho, alpha interface{}
	if b.Rho != nil {
		rho = b.Rho.String()
	}
	if b.Alpha != nil {
		alpha = b.Alpha.String()
	}

	_, err := r.db.ExecContext(ctx, query,
		b.LeagueID, b.Season, b.Date,
		b.AvgHomeGoals.String(), b.AvgAwayGoals.String(), b.DrawFrequency.String(),
		rho, alpha)
	if err != nil {
		return fmt.Errorf("upsert league baseline: %w", err)
	}
	return nil
}
