package main

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/goalcast/goalcast/internal/estimate"
)

func newBaselineCmd() *cobra.Command {
	var (
		leagueID int64
		season   int
		date     string
	)

	cmd := &cobra.Command{
		Use:   "baseline",
		Short: "Compute and cache a league baseline",
		Long: `Computes goal averages, draw frequency and, given enough history, the
low-score correction and calibration exponent for one league and date,
and stores the result.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBaseline(cmd, leagueID, season, date)
		},
	}
	cmd.Flags().Int64Var(&leagueID, "league", 0, "league ID (required)")
	cmd.Flags().IntVar(&season, "season", 0, "season start year (required)")
	cmd.Flags().StringVar(&date, "date", "", "reference date YYYY-MM-DD, default today")
	_ = cmd.MarkFlagRequired("league")
	_ = cmd.MarkFlagRequired("season")
	return cmd
}

func runBaseline(cmd *cobra.Command, leagueID int64, season int, date string) error {
	day := time.Now().UTC()
	if date != "" {
		parsed, err := time.Parse("2006-01-02", date)
		if err != nil {
			return fmt.Errorf("bad date %q: %w", date, err)
		}
		day = parsed
	}

	cfg, repo, db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	est := estimate.NewEstimator(repo.Fixtures, repo.Decisions, repo.Baselines, string(cfg.Pipeline.Source))
	b, err := est.BaselineFor(cmd.Context(), estimate.NewCache(), leagueID, season, day)
	if err != nil {
		return err
	}

	evt := log.Info().Int64("league", b.LeagueID).Int("season", b.Season).
		Str("avg_home_goals", b.AvgHomeGoals.String()).
		Str("avg_away_goals", b.AvgAwayGoals.String()).
		Str("draw_frequency", b.DrawFrequency.String())
	if b.Rho != nil {
		evt = evt.Str("rho", b.Rho.String())
	}
	if b.Alpha != nil {
		evt = evt.Str("alpha", b.Alpha.String())
	}
	evt.Msg("baseline: computed")
	return nil
}
