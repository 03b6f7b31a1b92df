package model

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goalcast/goalcast/internal/fixed"
)

func TestPmf_DegenerateLambda(t *testing.T) {
	assert.Equal(t, 1.0, Pmf(0, 0))
	assert.Equal(t, 0.0, Pmf(0, 1))
	assert.Equal(t, 0.0, Pmf(1.5, -1))
}

func TestPmf_KnownValues(t *testing.T) {
	// P(X=0; lambda=1) = e^-1
	assert.InDelta(t, math.Exp(-1), Pmf(1.0, 0), 1e-12)
	// P(X=2; lambda=2) = 2^2 e^-2 / 2! = 2e^-2
	assert.InDelta(t, 2*math.Exp(-2), Pmf(2.0, 2), 1e-12)
}

func TestCdf_Monotonic(t *testing.T) {
	prev := 0.0
	for k := 0; k <= 10; k++ {
		c := Cdf(2.7, k)
		assert.GreaterOrEqual(t, c, prev)
		prev = c
	}
	assert.InDelta(t, 1.0, Cdf(2.7, 40), 1e-9)
}

func TestGridOutcomes_SumToOne(t *testing.T) {
	cases := []struct {
		name   string
		lh, la float64
		rho    float64
	}{
		{"even match plain", 1.4, 1.4, 0},
		{"home favourite plain", 2.1, 0.8, 0},
		{"dixon coles negative rho", 1.3, 1.1, -0.1},
		{"dixon coles positive rho", 1.3, 1.1, 0.12},
		{"low scoring", 0.6, 0.5, -0.05},
		{"zero lambda home", 0, 1.2, 0},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			grid := NewDixonColesGrid(tt.lh, tt.la, tt.rho, DefaultMaxGoals)
			out := grid.Outcomes()
			require.True(t, out.Sum().Equal(fixed.One), "sum %s", out.Sum())

			h, d, a := out.Floats()
			assert.InDelta(t, 1.0, h+d+a, 0.001)
		})
	}
}

func TestDixonColes_RhoZeroMatchesPoisson(t *testing.T) {
	plain := NewGrid(1.6, 1.1, DefaultMaxGoals).Outcomes()
	dc := NewDixonColesGrid(1.6, 1.1, 0, DefaultMaxGoals).Outcomes()

	ph, pd, pa := plain.Floats()
	dh, dd, da := dc.Floats()
	assert.InDelta(t, ph, dh, 0.01)
	assert.InDelta(t, pd, dd, 0.01)
	assert.InDelta(t, pa, da, 0.01)
}

func TestDixonColes_RhoShiftsDrawMass(t *testing.T) {
	// Negative rho inflates 0-0 and 1-1, raising the
	// draw probability relative to plain Poisson.
	plain := NewGrid(1.2, 1.1, DefaultMaxGoals).Outcomes()
	dc := NewDixonColesGrid(1.2, 1.1, -0.15, DefaultMaxGoals).Outcomes()

	_, pd, _ := plain.Floats()
	_, dd, _ := dc.Floats()
	assert.Greater(t, dd, pd)
}

func TestTau_LowScoreCellsOnly(t *testing.T) {
	assert.Equal(t, 1.0, Tau(2, 0, 1.5, 1.0, 0.1))
	assert.Equal(t, 1.0, Tau(0, 2, 1.5, 1.0, 0.1))
	assert.InDelta(t, 1-1.5*1.0*0.1, Tau(0, 0, 1.5, 1.0, 0.1), 1e-12)
	assert.InDelta(t, 1+1.5*0.1, Tau(0, 1, 1.5, 1.0, 0.1), 1e-12)
	assert.InDelta(t, 1+1.0*0.1, Tau(1, 0, 1.5, 1.0, 0.1), 1e-12)
	assert.InDelta(t, 1-0.1, Tau(1, 1, 1.5, 1.0, 0.1), 1e-12)
}

func TestGrid_NegativeCellsClamped(t *testing.T) {
	// rho large enough to drive tau(0,0) negative for these lambdas.
	grid := NewDixonColesGrid(2.0, 2.0, 0.5, DefaultMaxGoals)
	assert.Equal(t, 0.0, grid.Cells[0][0])
	out := grid.Outcomes()
	require.True(t, out.Sum().Equal(fixed.One))
}

func TestOverProb(t *testing.T) {
	// Over 2.5 = 1 - P(total <= 2) with total ~ Poisson(lh+la).
	over := OverProb(1.3, 1.2, 2.5)
	want := 1 - Cdf(2.5, 2)
	assert.InDelta(t, want, over, 1e-12)

	assert.Greater(t, OverProb(1.3, 1.2, 1.5), OverProb(1.3, 1.2, 2.5))
	assert.Greater(t, OverProb(1.3, 1.2, 2.5), OverProb(1.3, 1.2, 3.5))
}

func TestBTTSProb(t *testing.T) {
	// Zero lambda on one side means that side never scores.
	assert.Equal(t, 0.0, BTTSProb(0, 1.5))
	both := BTTSProb(1.5, 1.2)
	assert.InDelta(t, (1-math.Exp(-1.5))*(1-math.Exp(-1.2)), both, 1e-12)
}
