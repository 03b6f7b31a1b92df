package report

import (
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goalcast/goalcast/internal/elo"
	"github.com/goalcast/goalcast/internal/pipeline"
	"github.com/goalcast/goalcast/internal/settle"
)

func TestObservePrediction(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.ObservePrediction(pipeline.RunStats{Bets: 3, TotalsBets: 1, Skips: 5, TotalsSkips: 7})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.PredictionRuns))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.Bets))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.Skips.WithLabelValues("1X2")))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.Skips.WithLabelValues("TOTAL")))
}

func TestObserveSettlement(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.ObserveSettlement(settle.Stats{
		Wins: 2, Losses: 3, Voids: 1,
		Elo: elo.RunStats{Processed: 6},
	})

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Settled.WithLabelValues("win")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.Settled.WithLabelValues("loss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Settled.WithLabelValues("void")))
	assert.Equal(t, 6.0, testutil.ToFloat64(m.EloProcessed))
}

func TestWriteCalibration(t *testing.T) {
	dir := t.TempDir()
	at := time.Date(2026, 3, 9, 8, 30, 0, 0, time.UTC)

	r := settle.Report{
		Overall:  settle.Snapshot{Count: 4, Wins: 2, Losses: 2, Profit: 0.8},
		BySource: map[string]settle.Snapshot{"dixon_coles": {Count: 4}},
		BySignal: map[string]settle.Snapshot{"0.6-0.7": {Count: 4}},
	}

	path, err := WriteCalibration(dir, at, "2026-03-02/2026-03-09", r)
	require.NoError(t, err)
	assert.Contains(t, path, "calibration-20260309-083000.json")

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var artifact CalibrationArtifact
	require.NoError(t, json.Unmarshal(data, &artifact))
	assert.Equal(t, at, artifact.GeneratedAt)
	assert.Equal(t, 4, artifact.Report.Overall.Count)
	assert.Contains(t, artifact.Report.BySource, "dixon_coles")
}
