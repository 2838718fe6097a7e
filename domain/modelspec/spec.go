// Package modelspec defines the structured, statically validated model
// specification for the emission GAMM. Invalid combinations are rejected at
// construction, not when the fit runs.
package modelspec

import (
	"fmt"
)

// Family is the response distribution
type Family string

// Link is the link function applied to the mean
type Link string

const (
	FamilyGamma Family = "gamma"
	LinkLog     Link   = "log"
)

// BasisKind identifies the basis expansion of a smooth term
type BasisKind string

const (
	// BasisCyclic is a Fourier basis: periodic by construction, so the
	// fitted curve matches in value and derivative across the seam.
	BasisCyclic BasisKind = "cyclic"
	// BasisBSpline is a cubic B-spline basis with a second-difference
	// penalty (P-spline).
	BasisBSpline BasisKind = "bspline"
)

// Covariate names the model covariates a smooth may attach to
type Covariate string

const (
	CovHourOfDay   Covariate = "hour_of_day"
	CovWindSpeed   Covariate = "wind_speed"
	CovTemperature Covariate = "temperature"
	CovDayIndex    Covariate = "day_index"
)

// FixedTerm names the categorical fixed effects
type FixedTerm string

const (
	FixedRainEvent FixedTerm = "rain_event"
	FixedPostEvent FixedTerm = "post_event"
)

// SmoothTerm describes one smooth in the additive predictor
type SmoothTerm struct {
	Covariate Covariate
	Basis     BasisKind
	Dim       int     // basis dimension
	Period    float64 // required for BasisCyclic, ignored otherwise
}

// ARMAOrder holds the residual correlation orders
type ARMAOrder struct {
	P int
	Q int
}

// Spec is the complete validated model specification
type Spec struct {
	Family          Family
	Link            Link
	Fixed           []FixedTerm
	Smooths         []SmoothTerm
	RandomIntercept Covariate // grouping covariate, one intercept per level
	ARMA            ARMAOrder
}

// New builds and validates a model specification
func New(family Family, link Link, fixed []FixedTerm, smooths []SmoothTerm, randomIntercept Covariate, arma ARMAOrder) (*Spec, error) {
	s := &Spec{
		Family:          family,
		Link:            link,
		Fixed:           fixed,
		Smooths:         smooths,
		RandomIntercept: randomIntercept,
		ARMA:            arma,
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Default returns the feedlot emission model: Gamma(log) response, event and
// phase fixed effects, a cyclic hour smooth, wind and temperature smooths, a
// slow day-trend smooth, a per-day random intercept, and ARMA(2,1) residuals.
func Default(cyclicDim, smoothDim, armaP, armaQ int) (*Spec, error) {
	return New(
		FamilyGamma, LinkLog,
		[]FixedTerm{FixedRainEvent, FixedPostEvent},
		[]SmoothTerm{
			{Covariate: CovHourOfDay, Basis: BasisCyclic, Dim: cyclicDim, Period: 24},
			{Covariate: CovWindSpeed, Basis: BasisBSpline, Dim: smoothDim},
			{Covariate: CovTemperature, Basis: BasisBSpline, Dim: smoothDim},
			{Covariate: CovDayIndex, Basis: BasisBSpline, Dim: smoothDim},
		},
		CovDayIndex,
		ARMAOrder{P: armaP, Q: armaQ},
	)
}

func (s *Spec) validate() error {
	if s.Family != FamilyGamma {
		return fmt.Errorf("unsupported response family %q", s.Family)
	}
	if s.Link != LinkLog {
		return fmt.Errorf("unsupported link %q for family %q", s.Link, s.Family)
	}
	if len(s.Smooths) == 0 {
		return fmt.Errorf("model requires at least one smooth term")
	}

	seenFixed := make(map[FixedTerm]bool)
	for _, f := range s.Fixed {
		if seenFixed[f] {
			return fmt.Errorf("duplicate fixed term %q", f)
		}
		seenFixed[f] = true
	}

	seenSmooth := make(map[Covariate]bool)
	for _, sm := range s.Smooths {
		if seenSmooth[sm.Covariate] {
			return fmt.Errorf("duplicate smooth for covariate %q", sm.Covariate)
		}
		seenSmooth[sm.Covariate] = true

		switch sm.Basis {
		case BasisCyclic:
			if sm.Period <= 0 {
				return fmt.Errorf("cyclic smooth on %q requires a positive period", sm.Covariate)
			}
		case BasisBSpline:
			if sm.Period != 0 {
				return fmt.Errorf("period is only valid on cyclic smooths (covariate %q)", sm.Covariate)
			}
		default:
			return fmt.Errorf("unknown basis kind %q", sm.Basis)
		}
		if sm.Dim < 4 {
			return fmt.Errorf("smooth on %q needs basis dimension >= 4, got %d", sm.Covariate, sm.Dim)
		}
	}

	if s.ARMA.P < 0 || s.ARMA.Q < 0 {
		return fmt.Errorf("ARMA orders must be non-negative, got p=%d q=%d", s.ARMA.P, s.ARMA.Q)
	}
	if s.ARMA.P == 0 && s.ARMA.Q > 0 {
		return fmt.Errorf("pure MA residual structure is not supported (p=0, q=%d)", s.ARMA.Q)
	}
	return nil
}
