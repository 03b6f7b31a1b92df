package main

import (
	"fmt"
	"os"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/goalcast/goalcast/internal/config"
	"github.com/goalcast/goalcast/internal/store"
	"github.com/goalcast/goalcast/internal/store/postgres"
)

const (
	appName = "goalcast"
	version = "v1.2.0"
)

var (
	configPath string
	logLevel   string
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "Football fixture forecasting and bet settlement",
		Version: version,
		Long: `goalcast ingests fixtures and odds, derives goal-rate forecasts from
league baselines and Elo ratings, places EV-positive predictions and
settles them once results arrive.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setupLogging()
		},
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config YAML")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override configured log level")

	rootCmd.AddCommand(newPredictCmd())
	rootCmd.AddCommand(newSettleCmd())
	rootCmd.AddCommand(newEloCmd())
	rootCmd.AddCommand(newBaselineCmd())
	rootCmd.AddCommand(newBacktestCmd())
	rootCmd.AddCommand(newServeCmd())

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

func setupLogging() error {
	level := logLevel
	if level == "" {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		level = cfg.LogLevel
	}
	parsed, err := zerolog.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("bad log level %q: %w", level, err)
	}
	zerolog.SetGlobalLevel(parsed)
	return nil
}

// openStore loads configuration and connects to Postgres. The caller
// closes the returned DB.
func openStore() (config.Config, store.Repository, *sqlx.DB, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, store.Repository{}, nil, err
	}
	db, err := postgres.Connect(cfg.Database.DSN)
	if err != nil {
		return config.Config{}, store.Repository{}, nil, fmt.Errorf("connect database: %w", err)
	}
	return cfg, postgres.NewRepository(db), db, nil
}
