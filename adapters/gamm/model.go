package gamm

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"nh3flux/domain/core"
	"nh3flux/domain/modelspec"
	"nh3flux/domain/observation"
	"nh3flux/internal/errors"
)

// ResidualKind selects the residual scale
type ResidualKind string

const (
	ResidualRaw      ResidualKind = "raw"
	ResidualDeviance ResidualKind = "deviance"
)

// Coef is one row of the parametric coefficient table
type Coef struct {
	Term     string
	Level    string
	Estimate float64
	StdErr   float64
	ZValue   float64
	PValue   float64
}

// Curve is an evaluated smooth-term curve with its confidence band
type Curve struct {
	Covariate modelspec.Covariate
	Basis     string
	X         []float64
	Fit       []float64
	Lower     []float64
	Upper     []float64
	EDF       float64
}

// Components holds the variance-component estimates
type Components struct {
	Dispersion      float64 // Gamma dispersion (Pearson estimate)
	DayInterceptVar float64 // variance of the per-day random intercept
	ARMAPhi         []float64
	ARMATheta       []float64
	InnovationVar   float64
}

// Model is the immutable fitted GAMM. Built once per run, used for
// prediction and residual extraction, then discarded.
type Model struct {
	spec *modelspec.Spec
	des  *design

	train observation.Dataset // time-ordered copy the fit ran on
	y     []float64
	mu    []float64
	eta   []float64

	beta       []float64
	cov        *mat.SymDense // covariance of beta (Bayesian, scaled by dispersion)
	dispersion float64
	reVariance float64
	arma       *armaModel

	deviance  float64
	edfTotal  float64
	edfBlocks map[string]float64
}

func newModel(work observation.Dataset, spec *modelspec.Spec, des *design, st *fitState, res *fitResult, am *armaModel) (*Model, error) {
	n := st.n

	pearson := 0.0
	for i := range st.y {
		r := (st.y[i] - res.mu[i]) / res.mu[i]
		pearson += r * r
	}
	denom := float64(n) - res.edfTotal
	if denom <= 0 {
		return nil, errors.FitDiverged("model uses more effective degrees of freedom than observations")
	}
	dispersion := pearson / denom

	inv := mat.NewSymDense(des.p, nil)
	if err := res.chol.InverseTo(inv); !condWarning(err) {
		return nil, errors.CorrelationSingular("coefficient covariance solve failed")
	}
	for i := 0; i < des.p; i++ {
		for j := i; j < des.p; j++ {
			inv.SetSym(i, j, inv.At(i, j)*dispersion)
		}
	}

	reVar := 0.0
	if des.re != nil {
		reVar = dispersion / des.re.lambda
	}

	return &Model{
		spec:       spec,
		des:        des,
		train:      work,
		y:          st.y,
		mu:         res.mu,
		eta:        res.eta,
		beta:       res.beta,
		cov:        inv,
		dispersion: dispersion,
		reVariance: reVar,
		arma:       am,
		deviance:   res.deviance,
		edfTotal:   res.edfTotal,
		edfBlocks:  res.edfBlocks,
	}, nil
}

// TrainingData returns the time-ordered dataset the model was fitted on
func (m *Model) TrainingData() observation.Dataset {
	return m.train.Clone()
}

// Deviance returns the Gamma deviance of the fit
func (m *Model) Deviance() float64 { return m.deviance }

// EDF returns the per-term effective degrees of freedom plus the total
func (m *Model) EDF() map[string]float64 {
	out := make(map[string]float64, len(m.edfBlocks)+1)
	for k, v := range m.edfBlocks {
		out[k] = v
	}
	out["total"] = m.edfTotal
	return out
}

// CoefTable returns the parametric fixed-effect estimates: intercept plus the
// precipitation-event and post-event dummy contrasts against the "0" levels.
func (m *Model) CoefTable() []Coef {
	std := distuv.Normal{Mu: 0, Sigma: 1}

	row := func(term, level string, idx int) Coef {
		est := m.beta[idx]
		se := math.Sqrt(m.cov.At(idx, idx))
		z := 0.0
		p := 1.0
		if se > 0 {
			z = est / se
			p = 2 * (1 - std.CDF(math.Abs(z)))
		}
		return Coef{Term: term, Level: level, Estimate: est, StdErr: se, ZValue: z, PValue: p}
	}

	out := []Coef{row("intercept", "", 0)}
	for i, lv := range m.des.eventLevels[1:] {
		out = append(out, row(string(modelspec.FixedRainEvent), string(lv), m.des.eventOffset+i))
	}
	for i, lv := range m.des.phaseLevels[1:] {
		out = append(out, row(string(modelspec.FixedPostEvent), string(lv), m.des.phaseOffset+i))
	}
	return out
}

// SmoothCurve evaluates a smooth term over ngrid points of its training range
// with a +/- 2 standard error band on the linear predictor scale.
func (m *Model) SmoothCurve(cov modelspec.Covariate, ngrid int) (*Curve, error) {
	sb := m.des.smoothFor(cov)
	if sb == nil {
		return nil, fmt.Errorf("no smooth term for covariate %q", cov)
	}
	if ngrid < 2 {
		ngrid = 100
	}

	var lo, hi float64
	switch b := sb.basis.(type) {
	case *fourierBasis:
		lo, hi = 0, b.period
	case *bsplineBasis:
		lo, hi = b.boundaries()
	}

	curve := &Curve{
		Covariate: cov,
		Basis:     describeBasis(sb.basis),
		X:         make([]float64, ngrid),
		Fit:       make([]float64, ngrid),
		Lower:     make([]float64, ngrid),
		Upper:     make([]float64, ngrid),
		EDF:       m.edfBlocks[string(cov)],
	}

	buf := make([]float64, sb.ncols)
	for g := 0; g < ngrid; g++ {
		x := lo + (hi-lo)*float64(g)/float64(ngrid-1)
		sb.basis.Eval(x, buf)
		for j := range buf {
			buf[j] -= sb.center[j]
		}

		fit := 0.0
		for j, v := range buf {
			fit += v * m.beta[sb.offset+j]
		}
		variance := 0.0
		for a, va := range buf {
			for b, vb := range buf {
				variance += va * vb * m.cov.At(sb.offset+a, sb.offset+b)
			}
		}
		se := math.Sqrt(math.Max(variance, 0))

		curve.X[g] = x
		curve.Fit[g] = fit
		curve.Lower[g] = fit - 2*se
		curve.Upper[g] = fit + 2*se
	}
	return curve, nil
}

// VarianceComponents returns the dispersion, random-effect, and correlation
// estimates.
func (m *Model) VarianceComponents() Components {
	c := Components{
		Dispersion:      m.dispersion,
		DayInterceptVar: m.reVariance,
	}
	if m.arma != nil {
		c.ARMAPhi = append([]float64(nil), m.arma.Phi...)
		c.ARMATheta = append([]float64(nil), m.arma.Theta...)
		c.InnovationVar = m.arma.Variance
	}
	return c
}

// Residuals extracts residuals for the training dataset in time order.
func (m *Model) Residuals(kind ResidualKind) ([]float64, error) {
	if m.mu == nil {
		return nil, core.ErrNotFitted
	}
	out := make([]float64, len(m.y))
	switch kind {
	case ResidualRaw:
		for i := range m.y {
			out[i] = m.y[i] - m.mu[i]
		}
	case ResidualDeviance:
		for i := range m.y {
			d := 2 * (-math.Log(m.y[i]/m.mu[i]) + (m.y[i]-m.mu[i])/m.mu[i])
			out[i] = math.Copysign(math.Sqrt(math.Max(d, 0)), m.y[i]-m.mu[i])
		}
	default:
		return nil, fmt.Errorf("unknown residual kind %q", kind)
	}
	return out, nil
}
