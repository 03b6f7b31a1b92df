package main

import (
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/goalcast/goalcast/internal/elo"
	"github.com/goalcast/goalcast/internal/report"
	"github.com/goalcast/goalcast/internal/settle"
)

func newSettleCmd() *cobra.Command {
	var reportDir string

	cmd := &cobra.Command{
		Use:   "settle",
		Short: "Settle concluded predictions and replay Elo ratings",
		Long: `Resolves every pending prediction whose fixture has finished or been
voided, then replays the newly finished fixtures through the rating
engine. Optionally writes a calibration report.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSettle(cmd, reportDir)
		},
	}
	cmd.Flags().StringVar(&reportDir, "report-dir", "", "write a calibration JSON report into this directory")
	return cmd
}

func runSettle(cmd *cobra.Command, reportDir string) error {
	cfg, repo, db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	engine := elo.NewEngine(repo.Fixtures, repo.Ratings, cfg.Elo)
	settler := settle.New(repo, engine)

	now := time.Now().UTC()
	stats, err := settler.Run(cmd.Context(), now)
	if err != nil {
		return err
	}

	log.Info().Int("settled", stats.Settled).Int("wins", stats.Wins).
		Int("losses", stats.Losses).Int("voids", stats.Voids).
		Int("elo_processed", stats.Elo.Processed).Msg("settle: done")

	if reportDir != "" {
		path, err := report.WriteCalibration(reportDir, now, "", settler.Metrics().Report())
		if err != nil {
			return err
		}
		log.Info().Str("path", path).Msg("settle: calibration report written")
	}
	return nil
}
