// Package postgres implements the store repositories over PostgreSQL
// using sqlx. Every call runs under its own timeout; upserts use
// ON CONFLICT so re-running a job overwrites rather than duplicates.
package postgres

import (
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/goalcast/goalcast/internal/store"
)

const defaultTimeout = 10 * time.Second

// Connect opens a pooled connection to the given DSN.
func Connect(dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

// NewRepository wires all postgres-backed repositories over one pool.
func NewRepository(db *sqlx.DB) store.Repository {
	return store.Repository{
		Fixtures:    NewFixtureRepo(db, defaultTimeout),
		Ratings:     NewRatingRepo(db, defaultTimeout),
		Baselines:   NewBaselineRepo(db, defaultTimeout),
		Decisions:   NewDecisionRepo(db, defaultTimeout),
		Predictions: NewPredictionRepo(db, defaultTimeout),
		Injuries:    NewInjuryRepo(db, defaultTimeout),
	}
}
