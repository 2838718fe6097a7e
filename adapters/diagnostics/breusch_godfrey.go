// Package diagnostics runs the post-fit serial-correlation check: deviance
// residuals are regressed on the model covariates and a Breusch-Godfrey
// Lagrange-multiplier test probes the auxiliary residuals for first-order
// autocorrelation. The check is advisory; when it cannot be computed the
// result says so explicitly instead of failing the run.
package diagnostics

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"nh3flux/adapters/gamm"
	"nh3flux/domain/observation"
)

// Status distinguishes a computed test from the two unavailable outcomes.
type Status string

const (
	// StatusComputed means Statistic and PValue are valid
	StatusComputed Status = "computed"
	// StatusInapplicable means the auxiliary design was singular or the
	// degrees of freedom ran out
	StatusInapplicable Status = "inapplicable"
	// StatusFitFailed means residual extraction itself failed
	StatusFitFailed Status = "fit_failed"
)

// Result is the diagnostic outcome
type Result struct {
	Status    Status
	Statistic float64 // LM = n * R-squared of the augmented regression
	PValue    float64
	Lag       int
	Reason    string // populated when Status != StatusComputed
}

// Computed reports whether the test produced a usable statistic
func (r Result) Computed() bool { return r.Status == StatusComputed }

// CheckAutocorrelation extracts deviance residuals from the fitted model,
// fits the auxiliary OLS of residuals on the covariates, and runs the
// first-order Breusch-Godfrey test on the auxiliary residuals.
func CheckAutocorrelation(m *gamm.Model) Result {
	resid, err := m.Residuals(gamm.ResidualDeviance)
	if err != nil {
		return Result{Status: StatusFitFailed, Lag: 1, Reason: err.Error()}
	}
	return breuschGodfrey(m.TrainingData(), resid)
}

func breuschGodfrey(ds observation.Dataset, resid []float64) Result {
	n := len(resid)
	X := auxDesign(ds)
	_, k := X.Dims()

	if n-k-2 <= 0 {
		return Result{Status: StatusInapplicable, Lag: 1, Reason: "insufficient degrees of freedom"}
	}

	u, ok := olsResiduals(X, resid)
	if !ok {
		return Result{Status: StatusInapplicable, Lag: 1, Reason: "auxiliary design is rank deficient"}
	}

	// augment with the lagged residual (presample value zero)
	aug := mat.NewDense(n, k+1, nil)
	aug.Slice(0, n, 0, k).(*mat.Dense).Copy(X)
	for t := 1; t < n; t++ {
		aug.Set(t, k, u[t-1])
	}

	e, ok := olsResiduals(aug, u)
	if !ok {
		return Result{Status: StatusInapplicable, Lag: 1, Reason: "augmented design is rank deficient"}
	}

	tss := 0.0
	meanU := 0.0
	for _, v := range u {
		meanU += v
	}
	meanU /= float64(n)
	for _, v := range u {
		d := v - meanU
		tss += d * d
	}
	if tss <= 0 {
		return Result{Status: StatusInapplicable, Lag: 1, Reason: "auxiliary residuals have zero variance"}
	}

	rss := 0.0
	for _, v := range e {
		rss += v * v
	}
	r2 := 1 - rss/tss
	if r2 < 0 {
		r2 = 0
	}

	lm := float64(n) * r2
	chi := distuv.ChiSquared{K: 1}
	return Result{
		Status:    StatusComputed,
		Statistic: lm,
		PValue:    1 - chi.CDF(lm),
		Lag:       1,
	}
}

// auxDesign builds the auxiliary regression matrix: intercept, hour,
// temperature, wind, and dummy contrasts for the event and phase levels.
func auxDesign(ds observation.Dataset) *mat.Dense {
	events := ds.EventLevels()
	phases := ds.PhaseLevels()

	k := 4 + (len(events) - 1) + (len(phases) - 1)
	X := mat.NewDense(len(ds), k, nil)
	for i, r := range ds {
		X.Set(i, 0, 1)
		X.Set(i, 1, r.HourOfDay)
		X.Set(i, 2, r.Temperature)
		X.Set(i, 3, r.WindSpeed)
		col := 4
		for _, lv := range events[1:] {
			if r.EventID == lv {
				X.Set(i, col, 1)
			}
			col++
		}
		for _, lv := range phases[1:] {
			if r.PhaseID == lv {
				X.Set(i, col, 1)
			}
			col++
		}
	}
	return X
}

// olsResiduals solves the least squares problem by QR and returns the
// residual vector, or ok=false when the design is rank deficient.
func olsResiduals(X *mat.Dense, y []float64) ([]float64, bool) {
	n, k := X.Dims()

	var qr mat.QR
	qr.Factorize(X)

	var r mat.Dense
	qr.RTo(&r)
	tol := 1e-10 * math.Abs(r.At(0, 0))
	if tol == 0 {
		return nil, false
	}
	for i := 0; i < k; i++ {
		if math.Abs(r.At(i, i)) < tol {
			return nil, false
		}
	}

	b := mat.NewDense(n, 1, nil)
	for i, v := range y {
		b.Set(i, 0, v)
	}
	var coef mat.Dense
	if err := qr.SolveTo(&coef, false, b); err != nil {
		return nil, false
	}

	resid := make([]float64, n)
	for i := 0; i < n; i++ {
		fit := 0.0
		for j := 0; j < k; j++ {
			fit += X.At(i, j) * coef.At(j, 0)
		}
		resid[i] = y[i] - fit
	}
	return resid, true
}

// ACF returns the sample autocorrelation of x for lags 0..maxLag; nil when
// x has zero variance.
func ACF(x []float64, maxLag int) []float64 {
	n := len(x)
	if maxLag >= n {
		maxLag = n - 1
	}
	if maxLag < 0 {
		return nil
	}

	mean := 0.0
	for _, v := range x {
		mean += v
	}
	mean /= float64(n)

	denom := 0.0
	for _, v := range x {
		d := v - mean
		denom += d * d
	}
	if denom == 0 {
		return nil
	}

	acf := make([]float64, maxLag+1)
	for k := 0; k <= maxLag; k++ {
		sum := 0.0
		for i := k; i < n; i++ {
			sum += (x[i] - mean) * (x[i-k] - mean)
		}
		acf[k] = sum / denom
	}
	return acf
}
