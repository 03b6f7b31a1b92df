package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/goalcast/goalcast/internal/config"
	"github.com/goalcast/goalcast/internal/elo"
	"github.com/goalcast/goalcast/internal/estimate"
	"github.com/goalcast/goalcast/internal/pipeline"
	"github.com/goalcast/goalcast/internal/report"
	"github.com/goalcast/goalcast/internal/scheduler"
	"github.com/goalcast/goalcast/internal/settle"
	"github.com/goalcast/goalcast/internal/store"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler daemon with the monitoring endpoint",
		Long: `Runs the configured jobs on their intervals with a per-job lock, and
serves health and Prometheus metrics over HTTP. Stops cleanly on
SIGINT or SIGTERM.`,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, repo, db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics := report.NewMetrics(prometheus.DefaultRegisterer)

	locker, closeLocker := buildLocker(ctx, cfg.Redis)
	defer closeLocker()

	sched := scheduler.New(locker)
	if err := registerJobs(sched, cfg, repo, metrics); err != nil {
		return err
	}

	srv := startMonitor(cfg.Monitor.Addr, db)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("serve: monitor shutdown failed")
		}
	}()

	log.Info().Str("monitor", cfg.Monitor.Addr).Msg("serve: started")
	if err := sched.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	log.Info().Msg("serve: stopped")
	return nil
}

// buildLocker prefers the shared Redis lock and falls back to the local
// one when Redis is not configured.
func buildLocker(ctx context.Context, cfg config.RedisConfig) (scheduler.Locker, func()) {
	if cfg.Addr == "" {
		log.Info().Msg("serve: redis not configured, using local job locks")
		return scheduler.NewLocalLocker(), func() {}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		log.Warn().Err(err).Str("addr", cfg.Addr).
			Msg("serve: redis unreachable, falling back to local job locks")
		_ = client.Close()
		return scheduler.NewLocalLocker(), func() {}
	}
	return scheduler.NewRedisLocker(client), func() { _ = client.Close() }
}

func registerJobs(sched *scheduler.Scheduler, cfg config.Config, repo store.Repository, metrics *report.Metrics) error {
	est := estimate.NewEstimator(repo.Fixtures, repo.Decisions, repo.Baselines, string(cfg.Pipeline.Source))
	orchestrator := pipeline.New(repo, est, cfg.Pipeline)
	engine := elo.NewEngine(repo.Fixtures, repo.Ratings, cfg.Elo)

	for _, job := range cfg.Scheduler.Jobs {
		if !job.Enabled {
			log.Info().Str("job", job.Name).Msg("serve: job disabled")
			continue
		}
		interval, err := job.ParseInterval()
		if err != nil {
			return err
		}

		var fn scheduler.JobFunc
		switch job.Type {
		case "predict":
			fn = func(ctx context.Context) error {
				stats, err := orchestrator.Run(ctx, time.Now().UTC())
				if err != nil {
					return err
				}
				metrics.ObservePrediction(stats)
				return nil
			}
		case "settle":
			fn = func(ctx context.Context) error {
				stats, err := settle.New(repo, engine).Run(ctx, time.Now().UTC())
				if err != nil {
					return err
				}
				metrics.ObserveSettlement(stats)
				return nil
			}
		case "elo":
			fn = func(ctx context.Context) error {
				_, err := engine.Run(ctx, nil, nil, false)
				return err
			}
		default:
			return fmt.Errorf("serve: unknown job type %q for job %q", job.Type, job.Name)
		}

		if err := sched.Add(job.Name, interval, fn); err != nil {
			return err
		}
	}
	return nil
}

func startMonitor(addr string, db interface{ Ping() error }) *http.Server {
	router := mux.NewRouter()
	router.Handle("/metrics", promhttp.Handler())
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		status := "ok"
		code := http.StatusOK
		if err := db.Ping(); err != nil {
			status = "degraded"
			code = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"status":  status,
			"version": version,
		})
	}).Methods(http.MethodGet)

	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("serve: monitor listener failed")
		}
	}()
	return srv
}
