package gamm

import (
	"math"

	"nh3flux/internal/errors"
)

// armaModel holds the estimated residual correlation structure.
type armaModel struct {
	P, Q     int
	Phi      []float64 // AR coefficients
	Theta    []float64 // MA coefficients
	Variance float64   // innovation variance
}

// fitARMA estimates ARMA(p,q) coefficients on the (time-ordered) residual
// series by conditional sum of squares: Yule-Walker initial AR estimates,
// then gradient refinement with stationarity/invertibility clamps.
func fitARMA(u []float64, p, q int) (*armaModel, error) {
	n := len(u)
	if n < p+q+10 {
		return nil, errors.CorrelationSingular("residual series too short for the requested ARMA order")
	}

	// center the series
	mean := 0.0
	for _, v := range u {
		mean += v
	}
	mean /= float64(n)
	y := make([]float64, n)
	for i, v := range u {
		y[i] = v - mean
	}

	m := &armaModel{
		P:     p,
		Q:     q,
		Phi:   make([]float64, p),
		Theta: make([]float64, q),
	}
	if p == 0 && q == 0 {
		m.Variance = variance(y)
		return m, nil
	}

	if p > 0 {
		acf := sampleACF(y, p)
		if acf == nil {
			return nil, errors.CorrelationSingular("residual series has zero variance")
		}
		if phi := yuleWalker(acf, p); phi != nil {
			copy(m.Phi, phi)
		}
	}
	for i := range m.Theta {
		m.Theta[i] = 0.1
	}

	if err := m.optimizeCSS(y); err != nil {
		return nil, err
	}
	if !m.stationary() {
		return nil, errors.CorrelationSingular("estimated AR polynomial is non-stationary")
	}
	return m, nil
}

// optimizeCSS refines coefficients by gradient descent on the conditional
// sum of squared innovations.
func (m *armaModel) optimizeCSS(y []float64) error {
	n := len(y)
	p, q := m.P, m.Q

	maxIter := 200
	tolerance := 1e-8
	learningRate := 0.01
	startIdx := p
	if q > startIdx {
		startIdx = q
	}

	prevSSE := math.Inf(1)
	for iter := 0; iter < maxIter; iter++ {
		residuals := make([]float64, n)
		sse := 0.0
		for t := startIdx; t < n; t++ {
			pred := 0.0
			for i := 0; i < p; i++ {
				pred += m.Phi[i] * y[t-i-1]
			}
			for i := 0; i < q; i++ {
				pred += m.Theta[i] * residuals[t-i-1]
			}
			residuals[t] = y[t] - pred
			sse += residuals[t] * residuals[t]
		}

		phiGrad := make([]float64, p)
		thetaGrad := make([]float64, q)
		for t := startIdx; t < n; t++ {
			for i := 0; i < p; i++ {
				phiGrad[i] -= 2 * residuals[t] * y[t-i-1]
			}
			for i := 0; i < q; i++ {
				thetaGrad[i] -= 2 * residuals[t] * residuals[t-i-1]
			}
		}

		for i := 0; i < p; i++ {
			m.Phi[i] -= learningRate * phiGrad[i] / float64(n)
			m.Phi[i] = math.Max(-0.98, math.Min(0.98, m.Phi[i]))
		}
		for i := 0; i < q; i++ {
			m.Theta[i] -= learningRate * thetaGrad[i] / float64(n)
			m.Theta[i] = math.Max(-0.98, math.Min(0.98, m.Theta[i]))
		}

		if math.Abs(prevSSE-sse) < tolerance*(sse+1) {
			prevSSE = sse
			break
		}
		prevSSE = sse
	}

	if math.IsNaN(prevSSE) || math.IsInf(prevSSE, 0) {
		return errors.FitDiverged("ARMA conditional sum of squares diverged")
	}

	// final innovation variance
	residuals := m.innovations(y)
	count := 0
	sse := 0.0
	for t := startIdx; t < len(y); t++ {
		sse += residuals[t] * residuals[t]
		count++
	}
	if count <= p+q {
		return errors.CorrelationSingular("not enough residuals to estimate innovation variance")
	}
	m.Variance = sse / float64(count-p-q)
	return nil
}

// innovations runs the ARMA recursion forward, returning the one-step
// innovation at each position (zero-initialized presample).
func (m *armaModel) innovations(y []float64) []float64 {
	n := len(y)
	eps := make([]float64, n)
	for t := 0; t < n; t++ {
		pred := 0.0
		for i := 0; i < m.P && t-i-1 >= 0; i++ {
			pred += m.Phi[i] * y[t-i-1]
		}
		for i := 0; i < m.Q && t-i-1 >= 0; i++ {
			pred += m.Theta[i] * eps[t-i-1]
		}
		eps[t] = y[t] - pred
	}
	return eps
}

// whiten applies the fitted whitening filter to an arbitrary series:
// e_t = x_t - sum phi_i x_{t-i} - sum theta_j e_{t-j}. Applying the same
// linear filter to the working response and every design column turns the
// correlated-error least squares problem into an approximately independent
// one (generalized Cochrane-Orcutt).
func (m *armaModel) whiten(x []float64) []float64 {
	return m.innovations(x)
}

// stationary checks the AR polynomial. Exact conditions for p <= 2, a root
// check via companion-matrix power iteration is overkill for the orders this
// model uses.
func (m *armaModel) stationary() bool {
	switch m.P {
	case 0:
		return true
	case 1:
		return math.Abs(m.Phi[0]) < 1
	case 2:
		phi1, phi2 := m.Phi[0], m.Phi[1]
		return math.Abs(phi2) < 1 && phi2+phi1 < 1 && phi2-phi1 < 1
	default:
		sum := 0.0
		for _, c := range m.Phi {
			sum += math.Abs(c)
		}
		return sum < 1
	}
}

func sampleACF(y []float64, maxLag int) []float64 {
	n := len(y)
	if maxLag >= n {
		maxLag = n - 1
	}
	mean := 0.0
	for _, v := range y {
		mean += v
	}
	mean /= float64(n)

	denom := 0.0
	for _, v := range y {
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
			sum += (y[i] - mean) * (y[i-k] - mean)
		}
		acf[k] = sum / denom
	}
	return acf
}

// yuleWalker estimates AR coefficients from the ACF by Levinson-Durbin
// recursion.
func yuleWalker(acf []float64, order int) []float64 {
	if order <= 0 || len(acf) <= order {
		return nil
	}

	phi := make([]float64, order)
	if order == 1 {
		phi[0] = acf[1]
		return phi
	}

	phi[0] = acf[1]
	v := 1 - phi[0]*phi[0]

	for i := 1; i < order; i++ {
		lambda := acf[i+1]
		for j := 0; j < i; j++ {
			lambda -= phi[j] * acf[i-j]
		}
		if v <= 0 {
			break
		}
		lambda /= v

		newPhi := make([]float64, i+1)
		for j := 0; j < i; j++ {
			newPhi[j] = phi[j] - lambda*phi[i-1-j]
		}
		newPhi[i] = lambda
		copy(phi, newPhi)

		v *= 1 - lambda*lambda
	}
	return phi
}

func variance(y []float64) float64 {
	n := len(y)
	if n < 2 {
		return 0
	}
	mean := 0.0
	for _, v := range y {
		mean += v
	}
	mean /= float64(n)
	sum := 0.0
	for _, v := range y {
		d := v - mean
		sum += d * d
	}
	return sum / float64(n-1)
}
