package main

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/goalcast/goalcast/internal/elo"
)

func newEloCmd() *cobra.Command {
	var (
		force   bool
		leagues []int64
	)

	cmd := &cobra.Command{
		Use:   "elo",
		Short: "Replay finished fixtures through the rating engine",
		Long: `Processes unprocessed finished fixtures in kickoff order, updating team
ratings. Detects out-of-order arrivals and rebuilds from scratch when the
replay order would be violated; --force rebuilds unconditionally.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runElo(cmd, leagues, force)
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "wipe ratings and replay everything")
	cmd.Flags().Int64SliceVar(&leagues, "league", nil, "restrict to these league IDs (repeatable)")
	return cmd
}

func runElo(cmd *cobra.Command, leagues []int64, force bool) error {
	cfg, repo, db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	engine := elo.NewEngine(repo.Fixtures, repo.Ratings, cfg.Elo)
	stats, err := engine.Run(cmd.Context(), leagues, nil, force)
	if err != nil {
		return err
	}

	log.Info().Int("processed", stats.Processed).Int("skipped", stats.Skipped).
		Int("regressed", stats.Regressed).Bool("rebuilt", stats.Rebuilt).
		Msg("elo: done")
	return nil
}
