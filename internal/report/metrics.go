// Package report exposes run counters over Prometheus and writes the
// calibration report artifacts settlement produces.
package report

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/goalcast/goalcast/internal/pipeline"
	"github.com/goalcast/goalcast/internal/settle"
)

// Metrics holds the Prometheus instruments one process registers once and
// updates after every run.
type Metrics struct {
	PredictionRuns prometheus.Counter
	Bets           prometheus.Counter
	Skips          *prometheus.CounterVec
	Settled        *prometheus.CounterVec
	EloProcessed   prometheus.Counter
	PendingGauge   prometheus.Gauge
}

// NewMetrics registers the instruments on the given registerer. Pass
// prometheus.DefaultRegisterer in production, a fresh registry in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		PredictionRuns: factory.NewCounter(prometheus.CounterOpts{
			Name: "goalcast_prediction_runs_total",
			Help: "Completed prediction pipeline runs.",
		}),
		Bets: factory.NewCounter(prometheus.CounterOpts{
			Name: "goalcast_bets_total",
			Help: "Predictions placed as bets.",
		}),
		Skips: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "goalcast_skips_total",
			Help: "Predictions skipped, by market.",
		}, []string{"market"}),
		Settled: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "goalcast_settled_total",
			Help: "Settled predictions by result.",
		}, []string{"result"}),
		EloProcessed: factory.NewCounter(prometheus.CounterOpts{
			Name: "goalcast_elo_fixtures_processed_total",
			Help: "Fixtures replayed through the rating engine.",
		}),
		PendingGauge: factory.NewGauge(prometheus.GaugeOpts{
			Name: "goalcast_predictions_pending",
			Help: "Predictions currently awaiting settlement.",
		}),
	}
}

// ObservePrediction folds one pipeline run into the counters.
func (m *Metrics) ObservePrediction(stats pipeline.RunStats) {
	m.PredictionRuns.Inc()
	m.Bets.Add(float64(stats.Bets + stats.TotalsBets))
	m.Skips.WithLabelValues("1X2").Add(float64(stats.Skips))
	m.Skips.WithLabelValues("TOTAL").Add(float64(stats.TotalsSkips))
}

// ObserveSettlement folds one settlement run into the counters.
func (m *Metrics) ObserveSettlement(stats settle.Stats) {
	m.Settled.WithLabelValues("win").Add(float64(stats.Wins))
	m.Settled.WithLabelValues("loss").Add(float64(stats.Losses))
	m.Settled.WithLabelValues("void").Add(float64(stats.Voids))
	m.EloProcessed.Add(float64(stats.Elo.Processed))
}
