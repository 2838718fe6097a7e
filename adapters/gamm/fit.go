package gamm

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"nh3flux/domain/core"
	"nh3flux/domain/modelspec"
	"nh3flux/domain/observation"
	"nh3flux/internal/errors"
)

const (
	maxPIRLSIter = 50
	pirlsTol     = 1e-8
	maxCorrIter  = 10
	corrTol      = 1e-4
	etaClamp     = 30.0
	minRecords   = 30
)

// lambdaGrid is the log-spaced candidate grid the GCV search walks per
// penalized block.
var lambdaGrid = []float64{1e-4, 1e-3, 1e-2, 1e-1, 1, 10, 1e2, 1e3, 1e4, 1e5, 1e6}

// Fit estimates the emission GAMM on the sampled dataset. The dataset is
// sorted by timestamp internally (the ARMA structure is defined on the
// time-ordered residual sequence); ds itself is not modified.
//
// Estimation runs in three phases: penalized IRLS under working independence,
// GCV selection of the smoothing parameters, then an outer loop alternating
// ARMA estimation on the working residuals with a whitened re-fit until the
// correlation parameters stabilize. Non-convergence at any phase aborts the
// run.
func Fit(ds observation.Dataset, spec *modelspec.Spec) (*Model, error) {
	if len(ds) < minRecords {
		return nil, errors.WithCode(errors.CodeFitDiverged, core.ErrInsufficientData)
	}
	for _, r := range ds {
		if r.NH3 <= 0 {
			return nil, errors.FitDiverged("response contains non-positive values; Gamma family requires nh3 > 0")
		}
	}

	work := ds.Clone()
	work.SortByTime()

	des, err := buildDesign(work, spec)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build model design")
	}

	st := &fitState{
		des: des,
		X:   buildMatrix(work, des),
		y:   nh3Vector(work),
		n:   len(work),
	}

	if err := st.selectLambdas(); err != nil {
		return nil, err
	}

	res, err := st.pirls(nil)
	if err != nil {
		return nil, err
	}

	var am *armaModel
	if spec.ARMA.P+spec.ARMA.Q > 0 {
		stabilized := false
		for outer := 0; outer < maxCorrIter; outer++ {
			u := make([]float64, st.n)
			for i := range u {
				u[i] = res.z[i] - res.eta[i]
			}
			next, ferr := fitARMA(u, spec.ARMA.P, spec.ARMA.Q)
			if ferr != nil {
				return nil, ferr
			}
			res, err = st.pirls(next)
			if err != nil {
				return nil, err
			}
			if am != nil && armaDelta(am, next) < corrTol {
				am = next
				stabilized = true
				break
			}
			am = next
		}
		if !stabilized {
			return nil, errors.FitDiverged("ARMA correlation parameters failed to stabilize")
		}
	}

	return newModel(work, spec, des, st, res, am)
}

// fitState carries the fixed parts of the estimation problem.
type fitState struct {
	des *design
	X   *mat.Dense // n x p, rows in time order, random-effect block included
	y   []float64
	n   int
}

// fitResult is one converged penalized IRLS solve.
type fitResult struct {
	beta      []float64
	eta       []float64 // on the unwhitened design
	mu        []float64
	z         []float64 // final working response
	deviance  float64
	edfTotal  float64
	edfBlocks map[string]float64
	chol      *mat.Cholesky // factor of Xw'Xw + S
	xtxW      *mat.Dense    // Xw'Xw
}

// pirls runs penalized IRLS to convergence for the current smoothing
// parameters. am, when non-nil, is the whitening filter applied to the
// working response and the design columns (generalized least squares).
//
// The Gamma/log combination has constant IRLS weights, so the penalized
// normal-equation factor is fixed across iterations and is computed once.
func (st *fitState) pirls(am *armaModel) (*fitResult, error) {
	n, p := st.n, st.des.p

	Xw := st.X
	if am != nil {
		Xw = whitenColumns(st.X, am)
	}

	var xtx mat.Dense
	xtx.Mul(Xw.T(), Xw)

	A := mat.NewSymDense(p, nil)
	for i := 0; i < p; i++ {
		for j := i; j < p; j++ {
			A.SetSym(i, j, xtx.At(i, j))
		}
	}
	for _, blk := range st.des.penalizedBlocks() {
		for i := 0; i < blk.ncols; i++ {
			for j := i; j < blk.ncols; j++ {
				r, c := blk.offset+i, blk.offset+j
				A.SetSym(r, c, A.At(r, c)+blk.lambda*blk.penalty[i][j])
			}
		}
	}

	chol := new(mat.Cholesky)
	if !chol.Factorize(A) {
		// tiny ridge rescue, then give up
		for i := 0; i < p; i++ {
			A.SetSym(i, i, A.At(i, i)+1e-8)
		}
		if !chol.Factorize(A) {
			return nil, errors.CorrelationSingular("penalized normal equations are singular")
		}
	}

	eta := make([]float64, n)
	mu := make([]float64, n)
	z := make([]float64, n)
	for i, v := range st.y {
		eta[i] = math.Log(v)
		mu[i] = v
	}

	beta := make([]float64, p)
	betaVec := mat.NewVecDense(p, beta)
	rhs := mat.NewVecDense(p, nil)

	devOld := math.Inf(1)
	converged := false
	for iter := 0; iter < maxPIRLSIter; iter++ {
		for i := range z {
			z[i] = eta[i] + (st.y[i]-mu[i])/mu[i]
		}
		zw := z
		if am != nil {
			zw = am.whiten(z)
		}

		rhs.MulVec(Xw.T(), mat.NewVecDense(n, zw))
		if err := chol.SolveVecTo(betaVec, rhs); !condWarning(err) {
			return nil, errors.CorrelationSingular("penalized solve failed")
		}

		var etaVec mat.VecDense
		etaVec.MulVec(st.X, betaVec)
		for i := 0; i < n; i++ {
			e := etaVec.AtVec(i)
			if e > etaClamp {
				e = etaClamp
			} else if e < -etaClamp {
				e = -etaClamp
			}
			eta[i] = e
			mu[i] = math.Exp(e)
		}

		dev := gammaDeviance(st.y, mu)
		if math.IsNaN(dev) || math.IsInf(dev, 0) {
			return nil, errors.FitDiverged("deviance is not finite")
		}
		if math.Abs(dev-devOld) < pirlsTol*(math.Abs(dev)+0.1) {
			devOld = dev
			converged = true
			break
		}
		devOld = dev
	}
	if !converged {
		return nil, errors.FitDiverged("penalized IRLS failed to converge")
	}

	// final working response for the residual correlation step
	for i := range z {
		z[i] = eta[i] + (st.y[i]-mu[i])/mu[i]
	}

	edfTotal, edfBlocks, err := st.effectiveDF(chol, &xtx)
	if err != nil {
		return nil, err
	}

	return &fitResult{
		beta:      beta,
		eta:       eta,
		mu:        mu,
		z:         z,
		deviance:  devOld,
		edfTotal:  edfTotal,
		edfBlocks: edfBlocks,
		chol:      chol,
		xtxW:      &xtx,
	}, nil
}

// effectiveDF computes tr((X'X+S)^-1 X'X) and its per-block split.
func (st *fitState) effectiveDF(chol *mat.Cholesky, xtx *mat.Dense) (float64, map[string]float64, error) {
	p := st.des.p
	var M mat.Dense
	if err := chol.SolveTo(&M, xtx); !condWarning(err) {
		return 0, nil, errors.CorrelationSingular("effective degrees of freedom solve failed")
	}

	diag := make([]float64, p)
	total := 0.0
	for i := 0; i < p; i++ {
		diag[i] = M.At(i, i)
		total += diag[i]
	}

	blocks := make(map[string]float64)
	for _, blk := range st.des.penalizedBlocks() {
		sum := 0.0
		for i := blk.offset; i < blk.offset+blk.ncols; i++ {
			sum += diag[i]
		}
		blocks[blk.name] = sum
	}
	return total, blocks, nil
}

// selectLambdas walks the candidate grid per penalized block, twice, keeping
// the GCV-minimizing smoothing parameter each time. Selection happens under
// working independence; the correlation loop reuses the selected values.
func (st *fitState) selectLambdas() error {
	nBlocks := st.des.numPenalized()
	for sweep := 0; sweep < 2; sweep++ {
		for b := 0; b < nBlocks; b++ {
			bestLambda := math.NaN()
			bestScore := math.Inf(1)
			for _, cand := range lambdaGrid {
				st.des.setLambda(b, cand)
				res, err := st.pirls(nil)
				if err != nil {
					continue
				}
				score, ok := gcvScore(float64(st.n), res.deviance, res.edfTotal)
				if ok && score < bestScore {
					bestScore = score
					bestLambda = cand
				}
			}
			if math.IsNaN(bestLambda) {
				return errors.FitDiverged("no smoothing parameter candidate produced a valid fit")
			}
			st.des.setLambda(b, bestLambda)
		}
	}
	return nil
}

// condWarning reports whether err is nil or only flags an ill-conditioned
// factor. The day random-intercept dummies overlap the span of the day smooth,
// so the penalized normal equations can be severely ill conditioned even
// though the penalties keep them positive definite; gonum then solves anyway
// and returns a mat.Condition warning. The deviance and finiteness checks in
// the IRLS loop reject any step the lost precision actually breaks.
func condWarning(err error) bool {
	if err == nil {
		return true
	}
	_, ok := err.(mat.Condition)
	return ok
}

func gcvScore(n, deviance, edf float64) (float64, bool) {
	denom := n - edf
	if denom <= 1 {
		return 0, false
	}
	return n * deviance / (denom * denom), true
}

func gammaDeviance(y, mu []float64) float64 {
	d := 0.0
	for i := range y {
		d += -math.Log(y[i]/mu[i]) + (y[i]-mu[i])/mu[i]
	}
	return 2 * d
}

func armaDelta(a, b *armaModel) float64 {
	d := 0.0
	for i := range a.Phi {
		d = math.Max(d, math.Abs(a.Phi[i]-b.Phi[i]))
	}
	for i := range a.Theta {
		d = math.Max(d, math.Abs(a.Theta[i]-b.Theta[i]))
	}
	return d
}

func whitenColumns(X *mat.Dense, am *armaModel) *mat.Dense {
	n, p := X.Dims()
	out := mat.NewDense(n, p, nil)
	col := make([]float64, n)
	for j := 0; j < p; j++ {
		mat.Col(col, j, X)
		out.SetCol(j, am.whiten(col))
	}
	return out
}

func buildMatrix(ds observation.Dataset, des *design) *mat.Dense {
	X := mat.NewDense(len(ds), des.p, nil)
	buf := make([]float64, des.p)
	for i, r := range ds {
		des.row(r, true, buf)
		X.SetRow(i, buf)
	}
	return X
}

func nh3Vector(ds observation.Dataset) []float64 {
	y := make([]float64, len(ds))
	for i, r := range ds {
		y[i] = r.NH3
	}
	return y
}

// smoothFor returns the smooth block attached to cov, or nil when the model
// has no smooth for it.
func (d *design) smoothFor(cov modelspec.Covariate) *smoothBlock {
	for _, sb := range d.smooths {
		if sb.term.Covariate == cov {
			return sb
		}
	}
	return nil
}
