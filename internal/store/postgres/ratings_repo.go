package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/goalcast/goalcast/internal/store"
)

// ratingRepo implements store.RatingRepo for PostgreSQL.
type ratingRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewRatingRepo creates a new PostgreSQL team rating repository.
func NewRatingRepo(db *sqlx.DB, timeout time.Duration) store.RatingRepo {
	return &ratingRepo{db: db, timeout: timeout}
}

// Get returns the team's rating, or def when no row exists.
func (r *ratingRepo) Get(ctx context.Context, teamID int64, def decimal.Decimal) (decimal.Decimal, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var raw string
	err := r.db.QueryRowxContext(ctx,
		`SELECT rating FROM team_ratings WHERE team_id = $1`, teamID).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return def, nil
		}
		return decimal.Zero, fmt.Errorf("query team rating: %w", err)
	}

	rating, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse team rating %q: %w", raw, err)
	}
	return rating, nil
}

// All returns every known rating.
func (r *ratingRepo) All(ctx context.Context) (map[int64]decimal.Decimal, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	rows, err := r.db.QueryxContext(ctx, `SELECT team_id, rating FROM team_ratings`)
	if err != nil {
		return nil, fmt.Errorf("query team ratings: %w", err)
	}
	defer rows.Close()

	out := make(map[int64]decimal.Decimal)
	for rows.Next() {
		var teamID int64
		var raw string
		if err := rows.Scan(&teamID, &raw); err != nil {
			return nil, fmt.Errorf("scan team rating: %w", err)
		}
		rating, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, fmt.Errorf("parse team rating %q: %w", raw, err)
		}
		out[teamID] = rating
	}
	return out, rows.Err()
}

// Upsert writes one rating, overwriting any existing row.
func (r *ratingRepo) Upsert(ctx context.Context, teamID int64, rating decimal.Decimal, at time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		INSERT INTO team_ratings (team_id, rating, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (team_id) DO UPDATE SET
			rating = EXCLUDED.rating,
			updated_at = EXCLUDED.updated_at`

	if _, err := r.db.ExecContext(ctx, query, teamID, rating.String(), at); err != nil {
		return fmt.Errorf("upsert team rating: %w", err)
	}
	return nil
}

// Wipe deletes ratings ahead of a rebuild, scoped to the teams that ever
// appeared in the given leagues' fixtures so a filtered rebuild cannot
// destroy ratings the replay will not restore. An empty league set wipes
// everything.
func (r *ratingRepo) Wipe(ctx context.Context, leagues []int64) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		DELETE FROM team_ratings
		WHERE cardinality($1::bigint[]) = 0
		   OR team_id IN (
			SELECT home_team_id FROM fixtures WHERE league_id = ANY($1)
			UNION
			SELECT away_team_id FROM fixtures WHERE league_id = ANY($1))`

	if _, err := r.db.ExecContext(ctx, query, pq.Array(leagues)); err != nil {
		return fmt.Errorf("wipe team ratings: %w", err)
	}
	return nil
}
