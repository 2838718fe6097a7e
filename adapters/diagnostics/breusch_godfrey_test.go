package diagnostics

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nh3flux/adapters/gamm"
	"nh3flux/domain/modelspec"
	"nh3flux/domain/observation"
	"nh3flux/internal/testkit"
)

func fittedModel(t *testing.T) *gamm.Model {
	t.Helper()
	spec, err := modelspec.Default(8, 8, 0, 0)
	require.NoError(t, err)

	ds := testkit.GenerateDataset(testkit.DefaultSimOptions())
	m, err := gamm.Fit(ds, spec)
	require.NoError(t, err)
	return m
}

func TestCheckAutocorrelationComputes(t *testing.T) {
	res := CheckAutocorrelation(fittedModel(t))

	require.Equal(t, StatusComputed, res.Status, "reason: %s", res.Reason)
	assert.True(t, res.Computed())
	assert.Equal(t, 1, res.Lag)
	assert.GreaterOrEqual(t, res.Statistic, 0.0)
	assert.GreaterOrEqual(t, res.PValue, 0.0)
	assert.LessOrEqual(t, res.PValue, 1.0)
}

func TestCheckAutocorrelationFlagsCorrelatedResiduals(t *testing.T) {
	// the simulated series carries an AR(1) disturbance the independence
	// model cannot absorb, so the test should reject at any usual level
	res := CheckAutocorrelation(fittedModel(t))
	require.True(t, res.Computed())
	assert.Less(t, res.PValue, 0.05)
}

func TestBreuschGodfreyConstantCovariateIsInapplicable(t *testing.T) {
	// a constant temperature column collapses onto the intercept, so the
	// auxiliary design loses rank and the test must degrade to a sentinel
	// instead of failing
	rng := rand.New(rand.NewSource(3))
	base := time.Date(2018, 6, 1, 0, 0, 0, 0, time.UTC)
	var ds observation.Dataset
	resid := make([]float64, 60)
	for i := range resid {
		ds = append(ds, observation.Record{
			Timestamp:   base.Add(time.Duration(i) * time.Hour),
			HourOfDay:   float64(i % 24),
			Temperature: 20,
			WindSpeed:   2 + rng.Float64(),
			EventID:     "0",
			PhaseID:     "0",
		})
		resid[i] = rng.NormFloat64()
	}

	res := breuschGodfrey(ds, resid)

	assert.Equal(t, StatusInapplicable, res.Status)
	assert.False(t, res.Computed())
	assert.Contains(t, res.Reason, "rank deficient")
}

func TestBreuschGodfreyTooFewObservations(t *testing.T) {
	base := time.Date(2018, 6, 1, 0, 0, 0, 0, time.UTC)
	var ds observation.Dataset
	resid := make([]float64, 5)
	for i := range resid {
		ds = append(ds, observation.Record{
			Timestamp:   base.Add(time.Duration(i) * time.Hour),
			HourOfDay:   float64(i),
			Temperature: 20 + float64(i),
			WindSpeed:   float64(i),
			EventID:     "0",
			PhaseID:     "0",
		})
		resid[i] = float64(i)
	}

	res := breuschGodfrey(ds, resid)

	assert.Equal(t, StatusInapplicable, res.Status)
	assert.Contains(t, res.Reason, "degrees of freedom")
}

func TestACFProperties(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	x := make([]float64, 500)
	for i := range x {
		x[i] = rng.NormFloat64()
	}

	acf := ACF(x, 5)
	require.Len(t, acf, 6)
	assert.InDelta(t, 1.0, acf[0], 1e-12)
	for k := 1; k <= 5; k++ {
		assert.Less(t, math.Abs(acf[k]), 0.15, "white noise lag %d", k)
	}
}

func TestACFConstantSeries(t *testing.T) {
	assert.Nil(t, ACF([]float64{2, 2, 2}, 1))
}

func TestACFLagLimit(t *testing.T) {
	acf := ACF([]float64{1, 2, 3}, 10)
	assert.Len(t, acf, 3) // capped at n-1 lags
}
