package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/goalcast/goalcast/internal/store"
)

// injuryRepo implements store.InjuryRepo for PostgreSQL.
type injuryRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewInjuryRepo creates a new PostgreSQL injury repository.
func NewInjuryRepo(db *sqlx.DB, timeout time.Duration) store.InjuryRepo {
	return &injuryRepo{db: db, timeout: timeout}
}

// CountRecent counts distinct players reported unavailable for a team
// since the given time.
func (r *injuryRepo) CountRecent(ctx context.Context, teamID int64, since time.Time) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var n int
	err := r.db.QueryRowxContext(ctx, `
		SELECT COUNT(DISTINCT player_id)
		FROM injuries
		WHERE team_id = $1 AND reported_at >= $2`, teamID, since).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count injuries: %w", err)
	}
	return n, nil
}
