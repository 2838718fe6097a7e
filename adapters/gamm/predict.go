package gamm

import (
	"math"

	"nh3flux/domain/observation"
)

// Predict returns the mean-response-scale prediction for every record in ds,
// from the fixed and smooth mean structure only: the random-intercept block
// is excluded, and the correlation structure plays no role at prediction
// time. With the log link the result is strictly positive.
//
// Records outside a smooth's training range receive that basis's natural
// extension (B-spline blocks decay to zero beyond the boundary knots); the
// cyclic block wraps by construction.
func (m *Model) Predict(ds observation.Dataset) []float64 {
	out := make([]float64, len(ds))
	buf := make([]float64, m.des.p)
	for i, r := range ds {
		m.des.row(r, false, buf)
		eta := 0.0
		for j, v := range buf {
			eta += v * m.beta[j]
		}
		if eta > etaClamp {
			eta = etaClamp
		} else if eta < -etaClamp {
			eta = -etaClamp
		}
		out[i] = math.Exp(eta)
	}
	return out
}

// Annotate returns a fresh dataset with Predicted attached to every record.
// Neither ds nor the model is mutated.
func (m *Model) Annotate(ds observation.Dataset) observation.Dataset {
	out := ds.Clone()
	preds := m.Predict(ds)
	for i := range out {
		out[i].Predicted = preds[i]
	}
	return out
}
