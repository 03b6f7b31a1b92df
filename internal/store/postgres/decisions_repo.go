package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/goalcast/goalcast/internal/store"
)

// decisionRepo implements store.DecisionRepo for PostgreSQL. Payloads land
// in a JSONB column; the (fixture_id, market) key keeps only the latest
// reasoning per market.
type decisionRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewDecisionRepo creates a new PostgreSQL decision audit repository.
func NewDecisionRepo(db *sqlx.DB, timeout time.Duration) store.DecisionRepo {
	return &decisionRepo{db: db, timeout: timeout}
}

// Upsert writes the audit payload for (fixture, market), overwriting any
// prior recompute.
func (r *decisionRepo) Upsert(ctx context.Context, d store.Decision) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		INSERT INTO prediction_decisions (fixture_id, market, run_id, payload, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		ON CONFLICT (fixture_id, market) DO UPDATE SET
			run_id = EXCLUDED.run_id,
			payload = EXCLUDED.payload,
			updated_at = NOW()`

	if _, err := r.db.ExecContext(ctx, query, d.FixtureID, d.Market, d.RunID, []byte(d.Payload)); err != nil {
		return fmt.Errorf("upsert decision: %w", err)
	}
	return nil
}

// Samples returns logged 1X2 candidate probabilities for a source tag
// joined to realized outcomes, restricted to finished fixtures before the
// cutoff. Used by the alpha calibration fit.
func (r *decisionRepo) Samples(ctx context.Context, leagueID int64, season int, source string, before time.Time) ([]store.DecisionSample, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT d.fixture_id,
		       d.payload->'probabilities'->>'home' AS prob_home,
		       d.payload->'probabilities'->>'draw' AS prob_draw,
		       d.payload->'probabilities'->>'away' AS prob_away,
		       CASE WHEN f.home_goals > f.away_goals THEN 0
		            WHEN f.home_goals = f.away_goals THEN 1
		            ELSE 2 END AS outcome
		FROM prediction_decisions d
		JOIN fixtures f ON f.id = d.fixture_id
		WHERE d.market = $1
		  AND d.payload->>'source' = $2
		  AND f.league_id = $3 AND f.season = $4
		  AND f.status IN ('FT','AET','PEN')
		  AND f.home_goals IS NOT NULL AND f.away_goals IS NOT NULL
		  AND f.kickoff < $5`

	rows, err := r.db.QueryxContext(ctx, query, store.Market1X2, source, leagueID, season, before)
	if err != nil {
		return nil, fmt.Errorf("query decision samples: %w", err)
	}
	defer rows.Close()

	var out []store.DecisionSample
	for rows.Next() {
		var (
			s          store.DecisionSample
			ph, pd, pa string
		)
		if err := rows.Scan(&s.FixtureID, &ph, &pd, &pa, &s.Outcome); err != nil {
			return nil, fmt.Errorf("scan decision sample: %w", err)
		}
		if s.ProbHome, err = decimal.NewFromString(ph); err != nil {
			continue // malformed legacy payload, skip the sample
		}
		if s.ProbDraw, err = decimal.NewFromString(pd); err != nil {
			continue
		}
		if s.ProbAway, err = decimal.NewFromString(pa); err != nil {
			continue
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
