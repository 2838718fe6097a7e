// Package gamm fits the emission model: a Gamma(log-link) additive model with
// penalized smooth terms, a per-day random intercept, and ARMA-correlated
// residuals, estimated by penalized IRLS with GCV smoothing selection and a
// generalized Cochrane-Orcutt correlation loop.
package gamm

import (
	"fmt"
	"math"
)

// basis is one smooth-term basis expansion. Eval fills out with the basis
// values at x; out must have length Dim().
type basis interface {
	Dim() int
	Eval(x float64, out []float64)
	// Penalty returns the dim x dim wiggliness penalty for the block.
	Penalty() [][]float64
}

// fourierBasis is a periodic sin/cos expansion. Periodicity makes the fitted
// curve continuous in value and derivative across the seam (hour 24 -> 0).
type fourierBasis struct {
	period    float64
	harmonics int
}

func newFourierBasis(period float64, dim int) *fourierBasis {
	// dim columns = dim/2 sin/cos pairs
	return &fourierBasis{period: period, harmonics: dim / 2}
}

func (f *fourierBasis) Dim() int { return 2 * f.harmonics }

func (f *fourierBasis) Eval(x float64, out []float64) {
	w := 2 * math.Pi / f.period
	for j := 1; j <= f.harmonics; j++ {
		out[2*(j-1)] = math.Sin(float64(j) * w * x)
		out[2*(j-1)+1] = math.Cos(float64(j) * w * x)
	}
}

// Penalty penalizes curvature: the squared second derivative of the j-th
// harmonic integrates to a weight proportional to j^4.
func (f *fourierBasis) Penalty() [][]float64 {
	d := f.Dim()
	pen := zeroMatrix(d, d)
	for j := 1; j <= f.harmonics; j++ {
		w := math.Pow(float64(j), 4)
		pen[2*(j-1)][2*(j-1)] = w
		pen[2*(j-1)+1][2*(j-1)+1] = w
	}
	return pen
}

// bsplineBasis is a cubic B-spline basis on equispaced knots spanning the
// training range, penalized by squared second differences of adjacent
// coefficients (Eilers-Marx P-spline).
//
// Outside the extended knot range every spline evaluates to zero, so records
// beyond the training range receive no contribution from this block; that is
// the basis's natural extension and the documented extrapolation policy.
type bsplineBasis struct {
	knots  []float64
	degree int
	dim    int
}

func newBSplineBasis(lo, hi float64, dim int) *bsplineBasis {
	const degree = 3
	if hi <= lo {
		// Degenerate covariate range; widen so knot spacing stays finite.
		hi = lo + 1
	}
	ndx := dim - degree
	dx := (hi - lo) / float64(ndx)
	knots := make([]float64, ndx+2*degree+1)
	for i := range knots {
		knots[i] = lo + float64(i-degree)*dx
	}
	return &bsplineBasis{knots: knots, degree: degree, dim: dim}
}

func (b *bsplineBasis) Dim() int { return b.dim }

// Eval computes the B-spline values at x by the Cox-de Boor recursion.
func (b *bsplineBasis) Eval(x float64, out []float64) {
	for i := range out {
		out[i] = 0
	}
	d := b.degree
	m := len(b.knots)

	// degree-0 splines; the half-open intervals extend past the domain
	// boundary, so x = hi lands in the next extended interval and still
	// evaluates to the correct continuous values.
	n0 := make([]float64, m-1)
	for i := 0; i < m-1; i++ {
		if x >= b.knots[i] && x < b.knots[i+1] {
			n0[i] = 1
		}
	}

	for k := 1; k <= d; k++ {
		nk := make([]float64, m-1-k)
		for i := 0; i < m-1-k; i++ {
			var left, right float64
			if dl := b.knots[i+k] - b.knots[i]; dl > 0 {
				left = (x - b.knots[i]) / dl * n0[i]
			}
			if dr := b.knots[i+k+1] - b.knots[i+1]; dr > 0 {
				right = (b.knots[i+k+1] - x) / dr * n0[i+1]
			}
			nk[i] = left + right
		}
		n0 = nk
	}

	for i := 0; i < b.dim && i < len(n0); i++ {
		out[i] = n0[i]
	}
}

// Penalty returns D2'D2, the second-difference penalty.
func (b *bsplineBasis) Penalty() [][]float64 {
	d := b.dim
	pen := zeroMatrix(d, d)
	// rows of D2: coefficients (1, -2, 1) at (i, i+1, i+2)
	for r := 0; r < d-2; r++ {
		row := []float64{1, -2, 1}
		for a := 0; a < 3; a++ {
			for c := 0; c < 3; c++ {
				pen[r+a][r+c] += row[a] * row[c]
			}
		}
	}
	return pen
}

func zeroMatrix(r, c int) [][]float64 {
	m := make([][]float64, r)
	for i := range m {
		m[i] = make([]float64, c)
	}
	return m
}

func (b *bsplineBasis) boundaries() (lo, hi float64) {
	return b.knots[b.degree], b.knots[len(b.knots)-b.degree-1]
}

func describeBasis(b basis) string {
	switch bb := b.(type) {
	case *fourierBasis:
		return fmt.Sprintf("cyclic(period=%g, k=%d)", bb.period, bb.Dim())
	case *bsplineBasis:
		lo, hi := bb.boundaries()
		return fmt.Sprintf("bspline(range=[%g, %g], k=%d)", lo, hi, bb.Dim())
	default:
		return "unknown"
	}
}
