package model

import (
	"math"

	"github.com/goalcast/goalcast/internal/fixed"
)

// Draw probability bounds for the logistic source. The logistic split is a
// two-way home/away model, so the draw share is carved out separately and
// kept inside a plausible football range.
const (
	logisticDrawFloor = 0.15
	logisticDrawCeil  = 0.35
)

// LogisticProbs derives a 1X2 triple from the rating gap and the
// expected-points gap. The two features feed a single logistic that splits
// the non-draw mass; the draw share shrinks as the matchup gets lopsided.
func LogisticProbs(eloDiff, expectedPointsDiff float64) fixed.Triple {
	z := eloDiff/200.0 + expectedPointsDiff/10.0
	if math.IsNaN(z) || math.IsInf(z, 0) {
		z = 0
	}
	pHome := 1 / (1 + math.Exp(-z))

	draw := fixed.Clamp(0.32-0.20*math.Abs(pHome-0.5)*2, logisticDrawFloor, logisticDrawCeil)
	home := pHome * (1 - draw)
	away := (1 - pHome) * (1 - draw)
	return fixed.TripleFromFloats(home, draw, away)
}
