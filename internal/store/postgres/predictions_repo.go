package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/goalcast/goalcast/internal/store"
)

// predictionRepo implements store.PredictionRepo for PostgreSQL. The 1X2
// and totals markets share one table keyed (fixture_id, market).
type predictionRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewPredictionRepo creates a new PostgreSQL prediction repository.
func NewPredictionRepo(db *sqlx.DB, timeout time.Duration) store.PredictionRepo {
	return &predictionRepo{db: db, timeout: timeout}
}

// Upsert writes the prediction row for (fixture, market). Re-running the
// orchestrator overwrites the whole row, including status and profit, so a
// recompute before kickoff always reflects the latest decision.
func (r *predictionRepo) Upsert(ctx context.Context, p store.Prediction) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		INSERT INTO predictions
		(fixture_id, market, selection, confidence, initial_odd, value_index,
		 status, profit, signal_score, source, features, created_at, settled_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW(), $12)
		ON CONFLICT (fixture_id, market) DO UPDATE SET
			selection = EXCLUDED.selection,
			confidence = EXCLUDED.confidence,
			initial_odd = EXCLUDED.initial_odd,
			value_index = EXCLUDED.value_index,
			status = EXCLUDED.status,
			profit = EXCLUDED.profit,
			signal_score = EXCLUDED.signal_score,
			source = EXCLUDED.source,
			features = EXCLUDED.features,
			settled_at = EXCLUDED.settled_at`

	var odd interface{}
	if p.InitialOdd != nil {
		odd = p.InitialOdd.String()
	}

	_, err := r.db.ExecContext(ctx, query,
		p.FixtureID, p.Market, p.Selection, p.Confidence.String(), odd,
		p.ValueIndex.String(), string(p.Status), p.Profit.String(),
		p.SignalScore.String(), p.Source, []byte(p.Features), p.SettledAt)
	if err != nil {
		return fmt.Errorf("upsert prediction: %w", err)
	}
	return nil
}

// PendingSettleable returns pending predictions for a market whose fixture
// has reached a terminal status (finished or voidable).
func (r *predictionRepo) PendingSettleable(ctx context.Context, market string) ([]store.PendingPrediction, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT p.fixture_id, p.market, p.selection, p.confidence, p.initial_odd,
		       p.value_index, p.status, p.profit, p.signal_score, p.source,
		       p.features, p.created_at, p.settled_at,
		       f.status AS fixture_status, f.kickoff AS fixture_kickoff,
		       f.home_goals AS fx_home_goals, f.away_goals AS fx_away_goals
		FROM predictions p
		JOIN fixtures f ON f.id = p.fixture_id
		WHERE p.market = $1
		  AND p.status = 'PENDING'
		  AND f.status IN ('FT','AET','PEN','CANC','ABD','AWD','WO')
		ORDER BY f.kickoff, p.fixture_id`

	rows, err := r.db.QueryxContext(ctx, query, market)
	if err != nil {
		return nil, fmt.Errorf("query pending predictions: %w", err)
	}
	defer rows.Close()

	var out []store.PendingPrediction
	for rows.Next() {
		var (
			pp               store.PendingPrediction
			confidence       string
			oddRaw           *string
			valueIdx, profit string
			signal           string
		)
		err := rows.Scan(
			&pp.FixtureID, &pp.Market, &pp.Selection, &confidence, &oddRaw,
			&valueIdx, &pp.Status, &profit, &signal, &pp.Source,
			&pp.Features, &pp.CreatedAt, &pp.SettledAt,
			&pp.FixtureStatus, &pp.FixtureKickoff, &pp.HomeGoals, &pp.AwayGoals,
		)
		if err != nil {
			return nil, fmt.Errorf("scan pending prediction: %w", err)
		}
		if pp.Confidence, err = decimal.NewFromString(confidence); err != nil {
			return nil, fmt.Errorf("parse confidence: %w", err)
		}
		if pp.ValueIndex, err = decimal.NewFromString(valueIdx); err != nil {
			return nil, fmt.Errorf("parse value_index: %w", err)
		}
		if pp.Profit, err = decimal.NewFromString(profit); err != nil {
			return nil, fmt.Errorf("parse profit: %w", err)
		}
		if pp.SignalScore, err = decimal.NewFromString(signal); err != nil {
			return nil, fmt.Errorf("parse signal_score: %w", err)
		}
		if oddRaw != nil {
			odd, err := decimal.NewFromString(*oddRaw)
			if err != nil {
				return nil, fmt.Errorf("parse initial_odd: %w", err)
			}
			pp.InitialOdd = &odd
		}
		out = append(out, pp)
	}
	return out, rows.Err()
}

// Settle finalizes one prediction. The status guard makes the transition
// exactly-once: settled rows are never rewritten.
func (r *predictionRepo) Settle(ctx context.Context, fixtureID int64, market string, status store.PredictionStatus, profit decimal.Decimal, at time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		UPDATE predictions
		SET status = $3, profit = $4, settled_at = $5
		WHERE fixture_id = $1 AND market = $2 AND status = 'PENDING'`

	if _, err := r.db.ExecContext(ctx, query, fixtureID, market, string(status), profit.String(), at); err != nil {
		return fmt.Errorf("settle prediction: %w", err)
	}
	return nil
}
