// Package settle resolves pending predictions against final scores and
// accumulates the probabilistic accuracy metrics that feed calibration.
package settle

import (
	"math"

	"github.com/shopspring/decimal"
)

const logLossEps = 1e-12

// Brier returns the three-class Brier score for one forecast: the squared
// error between the probability vector and the realized outcome indicator.
// outcome is 0 home, 1 draw, 2 away.
func Brier(probs [3]float64, outcome int) float64 {
	var sum float64
	for i, p := range probs {
		o := 0.0
		if i == outcome {
			o = 1
		}
		sum += (p - o) * (p - o)
	}
	return sum
}

// LogLoss returns the negative log likelihood of the realized outcome,
// floored to avoid infinities from a zero probability.
func LogLoss(probs [3]float64, outcome int) float64 {
	p := probs[outcome]
	if p < logLossEps {
		p = logLossEps
	}
	return -math.Log(p)
}

// RPS returns the ranked probability score over the ordered outcomes
// home > draw > away. It penalizes distance in the ordering, so putting
// mass on the draw when the home side wins costs less than putting it on
// the away side.
func RPS(probs [3]float64, outcome int) float64 {
	var actual [3]float64
	actual[outcome] = 1

	var cp, ca, sum float64
	for i := 0; i < 2; i++ { // last cumulative term is always zero
		cp += probs[i]
		ca += actual[i]
		sum += (cp - ca) * (cp - ca)
	}
	return sum / 2
}

// Accumulator aggregates settlement outcomes for one slice (a source or a
// signal bin).
type Accumulator struct {
	Count    int     `json:"count"`
	Wins     int     `json:"wins"`
	Losses   int     `json:"losses"`
	Voids    int     `json:"voids"`
	Profit   float64 `json:"profit"`
	BrierSum float64 `json:"-"`
	LogSum   float64 `json:"-"`
	RPSSum   float64 `json:"-"`
	Scored   int     `json:"scored"` // settlements with a probability triple
}

func (a *Accumulator) addScore(probs [3]float64, outcome int) {
	a.Scored++
	a.BrierSum += Brier(probs, outcome)
	a.LogSum += LogLoss(probs, outcome)
	a.RPSSum += RPS(probs, outcome)
}

// Snapshot flattens the accumulator into mean metrics for reporting.
type Snapshot struct {
	Count      int     `json:"count"`
	Wins       int     `json:"wins"`
	Losses     int     `json:"losses"`
	Voids      int     `json:"voids"`
	Profit     float64 `json:"profit"`
	HitRate    float64 `json:"hit_rate"`
	AvgBrier   float64 `json:"avg_brier"`
	AvgLogLoss float64 `json:"avg_log_loss"`
	AvgRPS     float64 `json:"avg_rps"`
}

func (a *Accumulator) snapshot() Snapshot {
	s := Snapshot{
		Count:  a.Count,
		Wins:   a.Wins,
		Losses: a.Losses,
		Voids:  a.Voids,
		Profit: roundTo(a.Profit, 3),
	}
	if decided := a.Wins + a.Losses; decided > 0 {
		s.HitRate = roundTo(float64(a.Wins)/float64(decided), 4)
	}
	if a.Scored > 0 {
		n := float64(a.Scored)
		s.AvgBrier = roundTo(a.BrierSum/n, 4)
		s.AvgLogLoss = roundTo(a.LogSum/n, 4)
		s.AvgRPS = roundTo(a.RPSSum/n, 4)
	}
	return s
}

// Report is the flat JSON calibration report one settlement run emits.
type Report struct {
	Overall  Snapshot            `json:"overall"`
	BySource map[string]Snapshot `json:"by_source"`
	BySignal map[string]Snapshot `json:"by_signal_bin"`
}

// Metrics collects per-run settlement accuracy, sliced by probability
// source and signal-score bin.
type Metrics struct {
	overall  Accumulator
	bySource map[string]*Accumulator
	bySignal map[string]*Accumulator
}

// NewMetrics creates an empty collector.
func NewMetrics() *Metrics {
	return &Metrics{
		bySource: make(map[string]*Accumulator),
		bySignal: make(map[string]*Accumulator),
	}
}

func (m *Metrics) slice(source string, signal decimal.Decimal) []*Accumulator {
	accs := []*Accumulator{&m.overall}
	if source != "" {
		acc, ok := m.bySource[source]
		if !ok {
			acc = &Accumulator{}
			m.bySource[source] = acc
		}
		accs = append(accs, acc)
	}
	bin := signalBin(signal)
	acc, ok := m.bySignal[bin]
	if !ok {
		acc = &Accumulator{}
		m.bySignal[bin] = acc
	}
	return append(accs, acc)
}

// Observe records one settled prediction. probs may be nil when the
// feature snapshot carried no triple.
func (m *Metrics) Observe(source string, signal decimal.Decimal, profit float64, win, void bool, probs *[3]float64, outcome int) {
	for _, acc := range m.slice(source, signal) {
		acc.Count++
		switch {
		case void:
			acc.Voids++
		case win:
			acc.Wins++
		default:
			acc.Losses++
		}
		acc.Profit += profit
		if probs != nil && !void {
			acc.addScore(*probs, outcome)
		}
	}
}

// Report snapshots the collected metrics.
func (m *Metrics) Report() Report {
	r := Report{
		Overall:  m.overall.snapshot(),
		BySource: make(map[string]Snapshot, len(m.bySource)),
		BySignal: make(map[string]Snapshot, len(m.bySignal)),
	}
	for src, acc := range m.bySource {
		r.BySource[src] = acc.snapshot()
	}
	for bin, acc := range m.bySignal {
		r.BySignal[bin] = acc.snapshot()
	}
	return r
}

// signalBin buckets a signal score into tenths for the calibration report.
// Decimal arithmetic keeps boundary scores in the right bin.
func signalBin(signal decimal.Decimal) string {
	idx := signal.Mul(decimal.NewFromInt(10)).IntPart()
	if idx < 0 {
		idx = 0
	}
	if idx > 9 {
		idx = 9
	}
	lo := decimal.New(idx, -1)
	hi := decimal.New(idx+1, -1)
	return lo.StringFixed(1) + "-" + hi.StringFixed(1)
}

func roundTo(f float64, places int) float64 {
	shift := math.Pow(10, float64(places))
	return math.Round(f*shift) / shift
}
