package model

import (
	"math"

	"github.com/goalcast/goalcast/internal/fixed"
)

// Source identifies which probability model produced a triple. The tag is
// persisted with every decision so calibration metrics can be bucketed
// per source.
type Source string

const (
	SourcePoisson    Source = "poisson"
	SourceDixonColes Source = "dixon_coles"
	SourceLogistic   Source = "logistic"
	SourceHybrid     Source = "hybrid"
)

// BlendWeights controls the hybrid weighted average. Weights need not sum
// to one; Combine renormalizes. A zero weight drops that source.
type BlendWeights struct {
	Poisson    float64 `yaml:"poisson"`
	DixonColes float64 `yaml:"dixon_coles"`
	Logistic   float64 `yaml:"logistic"`
}

// Combine selects or blends the configured probability sources into the
// final pre-calibration triple.
func Combine(source Source, w BlendWeights, poisson, dixonColes, logistic fixed.Triple) fixed.Triple {
	switch source {
	case SourcePoisson:
		return poisson
	case SourceDixonColes:
		return dixonColes
	case SourceLogistic:
		return logistic
	case SourceHybrid:
		total := w.Poisson + w.DixonColes + w.Logistic
		if total <= 0 {
			return dixonColes
		}
		ph, pd, pa := poisson.Floats()
		dh, dd, da := dixonColes.Floats()
		lh, ld, la := logistic.Floats()
		home := (w.Poisson*ph + w.DixonColes*dh + w.Logistic*lh) / total
		draw := (w.Poisson*pd + w.DixonColes*dd + w.Logistic*ld) / total
		away := (w.Poisson*pa + w.DixonColes*da + w.Logistic*la) / total
		return fixed.TripleFromFloats(home, draw, away)
	default:
		return dixonColes
	}
}

// Calibrate applies power-scaling calibration: each class probability is
// raised to alpha and the triple renormalized. Alpha 1 is the identity;
// alpha > 1 sharpens, alpha < 1 flattens.
func Calibrate(t fixed.Triple, alpha float64) fixed.Triple {
	if alpha == 1 || alpha <= 0 {
		return t
	}
	h, d, a := t.Floats()
	return fixed.TripleFromFloats(math.Pow(h, alpha), math.Pow(d, alpha), math.Pow(a, alpha))
}
