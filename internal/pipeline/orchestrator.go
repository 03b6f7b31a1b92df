package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/goalcast/goalcast/internal/estimate"
	"github.com/goalcast/goalcast/internal/fixed"
	"github.com/goalcast/goalcast/internal/model"
	"github.com/goalcast/goalcast/internal/store"
)

// Config controls one orchestrator run.
type Config struct {
	HorizonDays      int                `yaml:"horizon_days"`
	Leagues          []int64            `yaml:"leagues"`
	Source           model.Source       `yaml:"source"`
	Blend            model.BlendWeights `yaml:"blend"`
	Form             FormWeights        `yaml:"form"`
	Adjust           Adjustments        `yaml:"adjustments"`
	MaxGoals         int                `yaml:"max_goals"`
	EVThreshold      float64            `yaml:"ev_threshold"`
	MinOdd           float64            `yaml:"min_odd"`
	MaxOdd           float64            `yaml:"max_odd"`
	InjuryWindowDays int                `yaml:"injury_window_days"`
	DefaultRating    float64            `yaml:"default_rating"`
}

// DefaultConfig returns the production pipeline settings.
func DefaultConfig() Config {
	return Config{
		HorizonDays:      7,
		Source:           model.SourceDixonColes,
		Blend:            model.BlendWeights{Poisson: 0.3, DixonColes: 0.5, Logistic: 0.2},
		Form:             DefaultFormWeights(),
		Adjust:           Adjustments{Elo: true, Standings: true, Injuries: true},
		MaxGoals:         model.DefaultMaxGoals,
		EVThreshold:      0.05,
		MinOdd:           1.5,
		MaxOdd:           6.0,
		InjuryWindowDays: 14,
		DefaultRating:    1500,
	}
}

// RunStats aggregates one run for observability.
type RunStats struct {
	Fixtures    int `json:"fixtures"`
	Bets        int `json:"bets"`
	Skips       int `json:"skips"`
	MissingOdds int `json:"missing_odds"`
	TotalsBets  int `json:"totals_bets"`
	TotalsSkips int `json:"totals_skips"`
	Failed      int `json:"failed"`
}

// Orchestrator drives the prediction pipeline for a forecast horizon.
type Orchestrator struct {
	repo store.Repository
	est  *estimate.Estimator
	cfg  Config
}

// New creates an orchestrator over the given repositories.
func New(repo store.Repository, est *estimate.Estimator, cfg Config) *Orchestrator {
	if cfg.MaxGoals <= 0 {
		cfg.MaxGoals = model.DefaultMaxGoals
	}
	return &Orchestrator{repo: repo, est: est, cfg: cfg}
}

// ratingCache is the run-scoped read-through Elo cache: constructed per
// run and passed explicitly, never module-level.
type ratingCache struct {
	repo store.RatingRepo
	def  decimal.Decimal
	m    map[int64]decimal.Decimal
}

func newRatingCache(repo store.RatingRepo, def float64) *ratingCache {
	return &ratingCache{
		repo: repo,
		def:  decimal.NewFromFloat(def),
		m:    make(map[int64]decimal.Decimal),
	}
}

func (c *ratingCache) get(ctx context.Context, teamID int64) (decimal.Decimal, error) {
	if r, ok := c.m[teamID]; ok {
		return r, nil
	}
	r, err := c.repo.Get(ctx, teamID, c.def)
	if err != nil {
		return decimal.Zero, err
	}
	c.m[teamID] = r
	return r, nil
}

// Run builds predictions for every fixture kicking off inside the horizon
// starting at now. Fixtures are independent: one failure is logged and
// skipped, never fatal to the batch.
func (o *Orchestrator) Run(ctx context.Context, now time.Time) (RunStats, error) {
	var stats RunStats

	from := now.UTC()
	to := from.Add(time.Duration(o.cfg.HorizonDays) * 24 * time.Hour)

	fixtures, err := o.repo.Fixtures.Upcoming(ctx, from, to, o.cfg.Leagues)
	if err != nil {
		return stats, fmt.Errorf("load upcoming fixtures: %w", err)
	}

	runID := uuid.NewString()
	baselines := estimate.NewCache()
	ratings := newRatingCache(o.repo.Ratings, o.cfg.DefaultRating)

	log.Info().Str("run_id", runID).Int("fixtures", len(fixtures)).
		Time("from", from).Time("to", to).Msg("pipeline: run started")

	for _, f := range fixtures {
		stats.Fixtures++
		if err := o.processFixture(ctx, runID, f, baselines, ratings, now, &stats); err != nil {
			stats.Failed++
			log.Error().Err(err).Int64("fixture", f.ID).Msg("pipeline: fixture failed")
		}
	}

	log.Info().Str("run_id", runID).
		Int("bets", stats.Bets).Int("skips", stats.Skips).
		Int("missing_odds", stats.MissingOdds).Int("failed", stats.Failed).
		Msg("pipeline: run complete")
	return stats, nil
}

func (o *Orchestrator) processFixture(ctx context.Context, runID string, f store.UpcomingFixture, baselines *estimate.Cache, ratings *ratingCache, now time.Time, stats *RunStats) error {
	baseline, err := o.est.BaselineFor(ctx, baselines, f.LeagueID, f.Season, f.Kickoff)
	if err != nil {
		return fmt.Errorf("baseline: %w", err)
	}

	eloHome, err := ratings.get(ctx, f.HomeTeamID)
	if err != nil {
		return fmt.Errorf("home rating: %w", err)
	}
	eloAway, err := ratings.get(ctx, f.AwayTeamID)
	if err != nil {
		return fmt.Errorf("away rating: %w", err)
	}

	injurySince := now.Add(-time.Duration(o.cfg.InjuryWindowDays) * 24 * time.Hour)
	injHome, err := o.repo.Injuries.CountRecent(ctx, f.HomeTeamID, injurySince)
	if err != nil {
		return fmt.Errorf("home injuries: %w", err)
	}
	injAway, err := o.repo.Injuries.CountRecent(ctx, f.AwayTeamID, injurySince)
	if err != nil {
		return fmt.Errorf("away injuries: %w", err)
	}

	rates := DeriveRates(RateInputs{
		Baseline:     baseline,
		Home:         f.Home,
		Away:         f.Away,
		EloHome:      eloHome.InexactFloat64(),
		EloAway:      eloAway.InexactFloat64(),
		InjuriesHome: injHome,
		InjuriesAway: injAway,
	}, o.cfg.Form, o.cfg.Adjust)

	rho := 0.0
	if baseline.Rho != nil {
		rho = baseline.Rho.InexactFloat64()
	}
	alpha := 1.0
	if baseline.Alpha != nil {
		alpha = baseline.Alpha.InexactFloat64()
	}

	poisson := model.NewGrid(rates.LambdaHome, rates.LambdaAway, o.cfg.MaxGoals).Outcomes()
	dixonColes := model.NewDixonColesGrid(rates.LambdaHome, rates.LambdaAway, rho, o.cfg.MaxGoals).Outcomes()
	eloDiff := eloHome.InexactFloat64() - eloAway.InexactFloat64()
	logistic := model.LogisticProbs(eloDiff, float64(f.Home.Points-f.Away.Points))

	final := model.Calibrate(model.Combine(o.cfg.Source, o.cfg.Blend, poisson, dixonColes, logistic), alpha)

	signal := SignalScore(SignalInputs{
		Home:         f.Home,
		Away:         f.Away,
		EloDiff:      eloDiff,
		InjuriesHome: injHome,
		InjuriesAway: injAway,
	})
	threshold := EffectiveThreshold(o.cfg.EVThreshold, signal)

	features := Features{
		LambdaHome:    fixed.ProbFromFloat(rates.LambdaHome),
		LambdaAway:    fixed.ProbFromFloat(rates.LambdaAway),
		EloHome:       fixed.Money(eloHome),
		EloAway:       fixed.Money(eloAway),
		EloFactor:     fixed.ProbFromFloat(rates.EloFactor),
		AvgHomeGoals:  baseline.AvgHomeGoals,
		AvgAwayGoals:  baseline.AvgAwayGoals,
		Rho:           fixed.ProbFromFloat(rho),
		Alpha:         fixed.ProbFromFloat(alpha),
		Probabilities: ProbTriple{Home: final.Home, Draw: final.Draw, Away: final.Away},
		InjuriesHome:  injHome,
		InjuriesAway:  injAway,
		StandingsGap:  f.Home.Points - f.Away.Points,
		SignalScore:   fixed.ProbFromFloat(signal),
		Source:        string(o.cfg.Source),
	}

	if err := o.decideOneXTwo(ctx, runID, f, final, signal, threshold, features, stats); err != nil {
		return err
	}
	if err := o.decideTotals(ctx, runID, f, rates, threshold, signal, features, stats); err != nil {
		return err
	}
	return o.writeInfoMarkets(ctx, runID, f, rates)
}

func (o *Orchestrator) decideOneXTwo(ctx context.Context, runID string, f store.UpcomingFixture, probs fixed.Triple, signal, threshold float64, features Features, stats *RunStats) error {
	h, d, a := probs.Floats()
	selections := []string{store.SelectionHomeWin, store.SelectionDraw, store.SelectionAwayWin}
	odds := []*decimal.Decimal{f.Odds.HomeWin, f.Odds.Draw, f.Odds.AwayWin}

	payload := OneXTwoPayload{
		Kind:          Kind1X2,
		Source:        string(o.cfg.Source),
		Probabilities: ProbTriple{Home: probs.Home, Draw: probs.Draw, Away: probs.Away},
		SignalScore:   fixed.ProbFromFloat(signal),
		EVThreshold:   fixed.ProbFromFloat(threshold),
	}

	action, chosen, reason := o.choose([]float64{h, d, a}, selections, odds, threshold, &payload.Candidates)
	payload.Action = action
	payload.Reason = reason

	pred := store.Prediction{
		FixtureID:   f.ID,
		Market:      store.Market1X2,
		Selection:   store.SelectionSkip,
		Status:      store.StatusVoid, // a skip is never pending
		Profit:      fixed.Money(decimal.Zero),
		Confidence:  fixed.Prob(decimal.Zero),
		ValueIndex:  fixed.Prob(decimal.Zero),
		SignalScore: fixed.ProbFromFloat(signal),
		Source:      string(o.cfg.Source),
	}

	if action == ActionBet {
		payload.Selection = chosen.Selection
		payload.Odd = chosen.Odd
		payload.EV = chosen.EV

		pred.Selection = chosen.Selection
		pred.Status = store.StatusPending
		pred.InitialOdd = chosen.Odd
		pred.Confidence = chosen.Probability
		pred.ValueIndex = *chosen.EV
		stats.Bets++

		o.warnAnomaly(f.ID, chosen)
	} else {
		payload.Selection = store.SelectionSkip
		if reason == ReasonNoOdds {
			stats.MissingOdds++
		}
		stats.Skips++
	}

	if err := o.writeDecision(ctx, runID, f.ID, store.Market1X2, payload); err != nil {
		return err
	}

	featuresJSON, err := json.Marshal(features)
	if err != nil {
		return fmt.Errorf("marshal features: %w", err)
	}
	pred.Features = featuresJSON

	if err := o.repo.Predictions.Upsert(ctx, pred); err != nil {
		return fmt.Errorf("upsert prediction: %w", err)
	}
	return nil
}

func (o *Orchestrator) decideTotals(ctx context.Context, runID string, f store.UpcomingFixture, rates Rates, threshold, signal float64, features Features, stats *RunStats) error {
	over := model.OverProb(rates.LambdaHome, rates.LambdaAway, 2.5)
	under := 1 - over

	payload := TotalsPayload{
		Kind:        KindTotals,
		Source:      string(o.cfg.Source),
		OverProb:    fixed.ProbFromFloat(over),
		UnderProb:   fixed.ProbFromFloat(under),
		EVThreshold: fixed.ProbFromFloat(threshold),
	}

	selections := []string{store.SelectionOver, store.SelectionUnder}
	odds := []*decimal.Decimal{f.Odds.Over25, f.Odds.Under25}

	action, chosen, reason := o.choose([]float64{over, under}, selections, odds, threshold, &payload.Candidates)
	payload.Action = action
	payload.Reason = reason

	pred := store.Prediction{
		FixtureID:   f.ID,
		Market:      store.MarketTotals,
		Selection:   store.SelectionSkip,
		Status:      store.StatusVoid,
		Profit:      fixed.Money(decimal.Zero),
		Confidence:  fixed.Prob(decimal.Zero),
		ValueIndex:  fixed.Prob(decimal.Zero),
		SignalScore: fixed.ProbFromFloat(signal),
		Source:      string(o.cfg.Source),
	}

	if action == ActionBet {
		payload.Selection = chosen.Selection
		payload.Odd = chosen.Odd
		payload.EV = chosen.EV

		pred.Selection = chosen.Selection
		pred.Status = store.StatusPending
		pred.InitialOdd = chosen.Odd
		pred.Confidence = chosen.Probability
		pred.ValueIndex = *chosen.EV
		stats.TotalsBets++
	} else {
		payload.Selection = store.SelectionSkip
		stats.TotalsSkips++
	}

	if err := o.writeDecision(ctx, runID, f.ID, store.MarketTotals, payload); err != nil {
		return err
	}

	featuresJSON, err := json.Marshal(features)
	if err != nil {
		return fmt.Errorf("marshal features: %w", err)
	}
	pred.Features = featuresJSON

	if err := o.repo.Predictions.Upsert(ctx, pred); err != nil {
		return fmt.Errorf("upsert totals prediction: %w", err)
	}
	return nil
}

// choose runs the EV selection policy over one market's candidates and
// fills the audit candidate list (top 3 by EV).
func (o *Orchestrator) choose(probs []float64, selections []string, odds []*decimal.Decimal, threshold float64, auditOut *[]Candidate) (action string, chosen *scoredCandidate, reason string) {
	quoted := false
	for _, odd := range odds {
		if odd != nil {
			quoted = true
			break
		}
	}

	ranked := rankCandidates(selections, probs, odds, o.cfg.MinOdd, o.cfg.MaxOdd)
	*auditOut = topCandidates(ranked, 3)

	if !quoted {
		return ActionSkip, nil, ReasonNoOdds
	}

	best := bestInBand(ranked)
	if best == nil {
		return ActionSkip, nil, ReasonNoCandidateInRange
	}
	// A bet requires the value index to strictly exceed the threshold;
	// an exact tie is not value.
	if best.ev <= threshold {
		return ActionSkip, nil, ReasonBelowThreshold
	}
	return ActionBet, best, ""
}

// writeInfoMarkets persists the derived info-market probabilities
// (alternate totals lines and both-teams-to-score) as audit records.
func (o *Orchestrator) writeInfoMarkets(ctx context.Context, runID string, f store.UpcomingFixture, rates Rates) error {
	over15 := model.OverProb(rates.LambdaHome, rates.LambdaAway, 1.5)
	over35 := model.OverProb(rates.LambdaHome, rates.LambdaAway, 3.5)
	btts := model.BTTSProb(rates.LambdaHome, rates.LambdaAway)

	infos := []struct {
		market string
		probs  map[string]decimal.Decimal
	}{
		{store.MarketInfoOU15, map[string]decimal.Decimal{
			"over":  fixed.ProbFromFloat(over15),
			"under": fixed.ProbFromFloat(1 - over15),
		}},
		{store.MarketInfoOU35, map[string]decimal.Decimal{
			"over":  fixed.ProbFromFloat(over35),
			"under": fixed.ProbFromFloat(1 - over35),
		}},
		{store.MarketInfoBTTS, map[string]decimal.Decimal{
			"yes": fixed.ProbFromFloat(btts),
			"no":  fixed.ProbFromFloat(1 - btts),
		}},
	}

	for _, info := range infos {
		payload := InfoPayload{Kind: KindInfo, Market: info.market, Probabilities: info.probs}
		if err := o.writeDecision(ctx, runID, f.ID, info.market, payload); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) writeDecision(ctx context.Context, runID string, fixtureID int64, market string, payload interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", market, err)
	}
	err = o.repo.Decisions.Upsert(ctx, store.Decision{
		FixtureID: fixtureID,
		Market:    market,
		RunID:     runID,
		Payload:   raw,
	})
	if err != nil {
		return fmt.Errorf("upsert %s decision: %w", market, err)
	}
	return nil
}

// warnAnomaly flags a confident selection priced long: probability above
// 60% with an odd above 3.0 usually means stale odds or a bad input.
func (o *Orchestrator) warnAnomaly(fixtureID int64, chosen *scoredCandidate) {
	if chosen.Odd == nil {
		return
	}
	if chosen.Probability.InexactFloat64() > 0.60 && chosen.Odd.InexactFloat64() > 3.0 {
		log.Warn().Int64("fixture", fixtureID).
			Str("selection", chosen.Selection).
			Str("probability", chosen.Probability.String()).
			Str("odd", chosen.Odd.String()).
			Msg("pipeline: high probability at long odds")
	}
}
