package gamm

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFourierBasisWrapsAtSeam(t *testing.T) {
	b := newFourierBasis(24, 10)
	require.Equal(t, 10, b.Dim())

	at0 := make([]float64, b.Dim())
	at24 := make([]float64, b.Dim())
	b.Eval(0, at0)
	b.Eval(24, at24)

	for j := range at0 {
		assert.InDelta(t, at0[j], at24[j], 1e-12, "column %d differs across the seam", j)
	}
}

func TestFourierBasisContinuousAcrossSeam(t *testing.T) {
	b := newFourierBasis(24, 8)
	h := 1e-6

	before := make([]float64, b.Dim())
	after := make([]float64, b.Dim())
	b.Eval(24-h, before)
	b.Eval(0+h, after)

	for j := range before {
		assert.InDelta(t, before[j], after[j], 1e-4, "column %d jumps at the seam", j)
	}
}

func TestFourierPenaltyWeighsHighHarmonics(t *testing.T) {
	b := newFourierBasis(24, 8)
	pen := b.Penalty()

	// harmonic j carries weight j^4 on its sin and cos columns
	assert.Equal(t, 1.0, pen[0][0])
	assert.Equal(t, 16.0, pen[2][2])
	assert.Equal(t, 81.0, pen[4][4])
	assert.Equal(t, 256.0, pen[6][6])
	assert.Equal(t, 0.0, pen[0][1])
}

func TestBSplineBasisPartitionOfUnity(t *testing.T) {
	b := newBSplineBasis(0, 10, 10)
	out := make([]float64, b.Dim())

	for _, x := range []float64{0, 0.3, 2.5, 5, 7.77, 9.9, 10} {
		b.Eval(x, out)
		sum := 0.0
		for _, v := range out {
			assert.GreaterOrEqual(t, v, 0.0)
			sum += v
		}
		assert.InDelta(t, 1.0, sum, 1e-10, "partition of unity fails at x=%g", x)
	}
}

func TestBSplineBasisZeroOutsideExtendedRange(t *testing.T) {
	b := newBSplineBasis(0, 10, 10)
	out := make([]float64, b.Dim())

	lo, hi := b.boundaries()
	assert.InDelta(t, 0.0, lo, 1e-12)
	assert.InDelta(t, 10.0, hi, 1e-12)

	for _, x := range []float64{-100, 100} {
		b.Eval(x, out)
		for j, v := range out {
			assert.Equal(t, 0.0, v, "column %d non-zero at x=%g", j, x)
		}
	}
}

func TestBSplinePenaltyIsSecondDifference(t *testing.T) {
	b := newBSplineBasis(0, 1, 6)
	pen := b.Penalty()

	// symmetry
	for i := range pen {
		for j := range pen[i] {
			assert.Equal(t, pen[i][j], pen[j][i])
		}
	}

	// a linear coefficient sequence has zero second differences, so it lies
	// in the penalty null space
	coef := []float64{0, 1, 2, 3, 4, 5}
	quad := 0.0
	for i := range coef {
		for j := range coef {
			quad += coef[i] * pen[i][j] * coef[j]
		}
	}
	assert.InDelta(t, 0.0, quad, 1e-10)
}

func TestBSplineDegenerateRange(t *testing.T) {
	b := newBSplineBasis(5, 5, 8)
	out := make([]float64, b.Dim())
	b.Eval(5, out)

	sum := 0.0
	for _, v := range out {
		require.False(t, math.IsNaN(v))
		sum += v
	}
	assert.InDelta(t, 1.0, sum, 1e-10)
}
