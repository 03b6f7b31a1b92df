// Package storetest provides in-memory implementations of the store
// repositories for unit tests. The fakes keep the same ordering and
// upsert semantics as the postgres implementations.
package storetest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/goalcast/goalcast/internal/store"
)

// Store is a single in-memory backing for every repository interface.
type Store struct {
	mu sync.Mutex

	Fixtures    map[int64]*store.Fixture
	UpcomingSet []store.UpcomingFixture
	Ratings     map[int64]decimal.Decimal
	Baselines   map[string]store.LeagueBaseline
	Decisions   map[string]store.Decision
	Predictions map[string]store.Prediction
	SampleRows  map[string][]store.DecisionSample
	Injuries    map[int64]int

	RatingWipes int
	EloResets   int
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		Fixtures:    make(map[int64]*store.Fixture),
		Ratings:     make(map[int64]decimal.Decimal),
		Baselines:   make(map[string]store.LeagueBaseline),
		Decisions:   make(map[string]store.Decision),
		Predictions: make(map[string]store.Prediction),
		SampleRows:  make(map[string][]store.DecisionSample),
		Injuries:    make(map[int64]int),
	}
}

// Repo returns a store.Repository backed by this store.
func (s *Store) Repo() store.Repository {
	return store.Repository{
		Fixtures:    (*fixtureRepo)(s),
		Ratings:     (*ratingRepo)(s),
		Baselines:   (*baselineRepo)(s),
		Decisions:   (*decisionRepo)(s),
		Predictions: (*predictionRepo)(s),
		Injuries:    (*injuryRepo)(s),
	}
}

// AddFixture seeds one fixture.
func (s *Store) AddFixture(f store.Fixture) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := f
	s.Fixtures[f.ID] = &cp
}

// Prediction returns the stored prediction for (fixture, market).
func (s *Store) Prediction(fixtureID int64, market string) (store.Prediction, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.Predictions[predKey(fixtureID, market)]
	return p, ok
}

// Decision returns the stored decision for (fixture, market).
func (s *Store) Decision(fixtureID int64, market string) (store.Decision, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.Decisions[predKey(fixtureID, market)]
	return d, ok
}

func predKey(fixtureID int64, market string) string {
	return fmt.Sprintf("%d/%s", fixtureID, market)
}

func baselineKey(leagueID int64, season int, date time.Time) string {
	return fmt.Sprintf("%d/%d/%s", leagueID, season, date.UTC().Format("2006-01-02"))
}

// SampleKey keys seeded calibration samples.
func SampleKey(leagueID int64, season int, source string) string {
	return fmt.Sprintf("%d/%d/%s", leagueID, season, source)
}

type fixtureRepo Store

func (r *fixtureRepo) Upcoming(_ context.Context, from, to time.Time, leagues []int64) ([]store.UpcomingFixture, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []store.UpcomingFixture
	for _, uf := range r.UpcomingSet {
		if uf.Kickoff.Before(from) || !uf.Kickoff.Before(to) {
			continue
		}
		if len(leagues) > 0 && !containsID(leagues, uf.LeagueID) {
			continue
		}
		out = append(out, uf)
	}
	sortUpcoming(out)
	return out, nil
}

func (r *fixtureRepo) FinishedBefore(_ context.Context, leagueID int64, season int, before time.Time) ([]store.Fixture, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []store.Fixture
	for _, f := range r.Fixtures {
		if f.LeagueID != leagueID || f.Season != season {
			continue
		}
		if !f.Status.IsFinished() || !f.HasScore() || !f.Kickoff.Before(before) {
			continue
		}
		out = append(out, *f)
	}
	sortFixtures(out)
	return out, nil
}

func (r *fixtureRepo) UnprocessedFinished(_ context.Context, leagues []int64, cutoff *time.Time, limit int) ([]store.Fixture, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []store.Fixture
	for _, f := range r.Fixtures {
		if f.EloProcessed || !f.Status.IsFinished() || !f.HasScore() {
			continue
		}
		if len(leagues) > 0 && !containsID(leagues, f.LeagueID) {
			continue
		}
		if cutoff != nil && f.Kickoff.After(*cutoff) {
			continue
		}
		out = append(out, *f)
	}
	sortFixtures(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fixtureRepo) MarkEloProcessed(_ context.Context, ids []int64, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range ids {
		if f, ok := r.Fixtures[id]; ok {
			f.EloProcessed = true
			t := at
			f.EloProcessedAt = &t
		}
	}
	return nil
}

func (r *fixtureRepo) ResetEloProcessed(_ context.Context, leagues []int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.EloResets++
	for _, f := range r.Fixtures {
		if len(leagues) > 0 && !containsID(leagues, f.LeagueID) {
			continue
		}
		f.EloProcessed = false
		f.EloProcessedAt = nil
	}
	return nil
}

func (r *fixtureRepo) MaxProcessedKickoff(_ context.Context, leagues []int64) (*time.Time, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var max *time.Time
	for _, f := range r.Fixtures {
		if !f.EloProcessed {
			continue
		}
		if len(leagues) > 0 && !containsID(leagues, f.LeagueID) {
			continue
		}
		if max == nil || f.Kickoff.After(*max) {
			t := f.Kickoff
			max = &t
		}
	}
	return max, nil
}

func (r *fixtureRepo) MinUnprocessedKickoff(_ context.Context, leagues []int64, cutoff *time.Time) (*time.Time, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var min *time.Time
	for _, f := range r.Fixtures {
		if f.EloProcessed || !f.Status.IsFinished() || !f.HasScore() {
			continue
		}
		if len(leagues) > 0 && !containsID(leagues, f.LeagueID) {
			continue
		}
		if cutoff != nil && f.Kickoff.After(*cutoff) {
			continue
		}
		if min == nil || f.Kickoff.Before(*min) {
			t := f.Kickoff
			min = &t
		}
	}
	return min, nil
}

type ratingRepo Store

func (r *ratingRepo) Get(_ context.Context, teamID int64, def decimal.Decimal) (decimal.Decimal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rating, ok := r.Ratings[teamID]; ok {
		return rating, nil
	}
	return def, nil
}

func (r *ratingRepo) All(_ context.Context) (map[int64]decimal.Decimal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[int64]decimal.Decimal, len(r.Ratings))
	for id, rating := range r.Ratings {
		out[id] = rating
	}
	return out, nil
}

func (r *ratingRepo) Upsert(_ context.Context, teamID int64, rating decimal.Decimal, _ time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Ratings[teamID] = rating
	return nil
}

func (r *ratingRepo) Wipe(_ context.Context, leagues []int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.RatingWipes++
	if len(leagues) == 0 {
		r.Ratings = make(map[int64]decimal.Decimal)
		return nil
	}
	for _, f := range r.Fixtures {
		if !containsID(leagues, f.LeagueID) {
			continue
		}
		delete(r.Ratings, f.HomeTeamID)
		delete(r.Ratings, f.AwayTeamID)
	}
	return nil
}

type baselineRepo Store

func (r *baselineRepo) Get(_ context.Context, leagueID int64, season int, date time.Time) (*store.LeagueBaseline, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.Baselines[baselineKey(leagueID, season, date)]; ok {
		cp := b
		return &cp, nil
	}
	return nil, nil
}

func (r *baselineRepo) Upsert(_ context.Context, b store.LeagueBaseline) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Baselines[baselineKey(b.LeagueID, b.Season, b.Date)] = b
	return nil
}

type decisionRepo Store

func (r *decisionRepo) Upsert(_ context.Context, d store.Decision) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Decisions[predKey(d.FixtureID, d.Market)] = d
	return nil
}

func (r *decisionRepo) Samples(_ context.Context, leagueID int64, season int, source string, _ time.Time) ([]store.DecisionSample, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.SampleRows[SampleKey(leagueID, season, source)], nil
}

type predictionRepo Store

func (r *predictionRepo) Upsert(_ context.Context, p store.Prediction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Predictions[predKey(p.FixtureID, p.Market)] = p
	return nil
}

func (r *predictionRepo) PendingSettleable(_ context.Context, market string) ([]store.PendingPrediction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []store.PendingPrediction
	for _, p := range r.Predictions {
		if p.Market != market || p.Status != store.StatusPending {
			continue
		}
		f, ok := r.Fixtures[p.FixtureID]
		if !ok {
			continue
		}
		if !f.Status.IsFinished() && !f.Status.IsVoidable() {
			continue
		}
		out = append(out, store.PendingPrediction{
			Prediction:     p,
			FixtureStatus:  f.Status,
			FixtureKickoff: f.Kickoff,
			HomeGoals:      f.HomeGoals,
			AwayGoals:      f.AwayGoals,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FixtureID < out[j].FixtureID })
	return out, nil
}

func (r *predictionRepo) Settle(_ context.Context, fixtureID int64, market string, status store.PredictionStatus, profit decimal.Decimal, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := predKey(fixtureID, market)
	p, ok := r.Predictions[key]
	if !ok || p.Status != store.StatusPending {
		return nil
	}
	p.Status = status
	p.Profit = profit
	t := at
	p.SettledAt = &t
	r.Predictions[key] = p
	return nil
}

type injuryRepo Store

func (r *injuryRepo) CountRecent(_ context.Context, teamID int64, _ time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Injuries[teamID], nil
}

func containsID(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func sortFixtures(fs []store.Fixture) {
	sort.Slice(fs, func(i, j int) bool {
		if fs[i].Kickoff.Equal(fs[j].Kickoff) {
			return fs[i].ID < fs[j].ID
		}
		return fs[i].Kickoff.Before(fs[j].Kickoff)
	})
}

func sortUpcoming(fs []store.UpcomingFixture) {
	sort.Slice(fs, func(i, j int) bool {
		if fs[i].Kickoff.Equal(fs[j].Kickoff) {
			return fs[i].ID < fs[j].ID
		}
		return fs[i].Kickoff.Before(fs[j].Kickoff)
	})
}
