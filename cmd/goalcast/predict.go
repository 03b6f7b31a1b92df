package main

import (
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/goalcast/goalcast/internal/estimate"
	"github.com/goalcast/goalcast/internal/pipeline"
)

func newPredictCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "predict",
		Short: "Run the prediction pipeline over the upcoming horizon",
		Long: `Loads upcoming fixtures inside the configured horizon, derives goal
rates and probabilities, and writes per-market decisions and predictions.`,
		RunE: runPredict,
	}
}

func runPredict(cmd *cobra.Command, args []string) error {
	cfg, repo, db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	est := estimate.NewEstimator(repo.Fixtures, repo.Decisions, repo.Baselines, string(cfg.Pipeline.Source))
	orchestrator := pipeline.New(repo, est, cfg.Pipeline)

	stats, err := orchestrator.Run(cmd.Context(), time.Now().UTC())
	if err != nil {
		return err
	}

	log.Info().Int("fixtures", stats.Fixtures).Int("bets", stats.Bets).
		Int("skips", stats.Skips).Int("totals_bets", stats.TotalsBets).
		Msg("predict: done")
	return nil
}
