package gamm

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nh3flux/domain/modelspec"
	"nh3flux/domain/observation"
	"nh3flux/internal/errors"
	"nh3flux/internal/testkit"
)

func feedlotData(t *testing.T) observation.Dataset {
	t.Helper()
	opt := testkit.DefaultSimOptions()
	return testkit.GenerateDataset(opt)
}

func independenceSpec(t *testing.T) *modelspec.Spec {
	t.Helper()
	spec, err := modelspec.Default(8, 8, 0, 0)
	require.NoError(t, err)
	return spec
}

func TestFitRejectsShortDataset(t *testing.T) {
	ds := feedlotData(t)[:10]
	_, err := Fit(ds, independenceSpec(t))
	require.Error(t, err)
	assert.Equal(t, errors.CodeFitDiverged, errors.GetCode(err))
}

func TestFitRejectsNonPositiveResponse(t *testing.T) {
	ds := feedlotData(t)
	ds[5].NH3 = 0
	_, err := Fit(ds, independenceSpec(t))
	require.Error(t, err)
	assert.Equal(t, errors.CodeFitDiverged, errors.GetCode(err))
}

func TestFitIndependenceModel(t *testing.T) {
	ds := feedlotData(t)

	m, err := Fit(ds, independenceSpec(t))
	require.NoError(t, err)

	assert.False(t, math.IsNaN(m.Deviance()))
	assert.GreaterOrEqual(t, m.Deviance(), 0.0)

	edf := m.EDF()
	total := edf["total"]
	assert.Greater(t, total, 1.0)
	assert.Less(t, total, float64(ds.Len()))
	for _, cov := range []modelspec.Covariate{
		modelspec.CovHourOfDay, modelspec.CovWindSpeed,
		modelspec.CovTemperature, modelspec.CovDayIndex,
	} {
		assert.Greater(t, edf[string(cov)], 0.0, "edf for %s", cov)
	}

	comp := m.VarianceComponents()
	assert.Greater(t, comp.Dispersion, 0.0)
	assert.GreaterOrEqual(t, comp.DayInterceptVar, 0.0)
	assert.Empty(t, comp.ARMAPhi)
}

func TestFitCoefTable(t *testing.T) {
	m, err := Fit(feedlotData(t), independenceSpec(t))
	require.NoError(t, err)

	coefs := m.CoefTable()
	require.NotEmpty(t, coefs)
	assert.Equal(t, "intercept", coefs[0].Term)

	// two simulated events plus their post windows give two contrasts per axis
	var events, phases int
	for _, c := range coefs[1:] {
		switch c.Term {
		case string(modelspec.FixedRainEvent):
			events++
		case string(modelspec.FixedPostEvent):
			phases++
		}
		assert.GreaterOrEqual(t, c.PValue, 0.0)
		assert.LessOrEqual(t, c.PValue, 1.0)
	}
	assert.Equal(t, 2, events)
	assert.Equal(t, 2, phases)
}

func TestPredictIsPositive(t *testing.T) {
	ds := feedlotData(t)
	m, err := Fit(ds, independenceSpec(t))
	require.NoError(t, err)

	preds := m.Predict(ds)
	require.Len(t, preds, ds.Len())
	for i, p := range preds {
		require.Greater(t, p, 0.0, "prediction %d", i)
		require.False(t, math.IsNaN(p))
	}
}

func TestAnnotateAttachesPredictions(t *testing.T) {
	ds := feedlotData(t)
	m, err := Fit(ds, independenceSpec(t))
	require.NoError(t, err)

	out := m.Annotate(ds)
	require.Equal(t, ds.Len(), out.Len())
	for _, r := range out {
		assert.False(t, math.IsNaN(r.Predicted))
	}
	// input untouched
	assert.True(t, math.IsNaN(ds[0].Predicted))
}

func TestFitWithDefaultBasisDimensions(t *testing.T) {
	// basis dimension 10 makes the day smooth and the day random-intercept
	// dummies nearly collinear on the full synthetic series; the solve must
	// survive the resulting ill conditioning
	spec, err := modelspec.Default(10, 10, 0, 0)
	require.NoError(t, err)

	m, err := Fit(feedlotData(t), spec)
	require.NoError(t, err)

	assert.False(t, math.IsNaN(m.Deviance()))
	assert.Less(t, m.EDF()["total"], float64(feedlotData(t).Len()))
	for _, p := range m.Predict(feedlotData(t)) {
		require.Greater(t, p, 0.0)
	}
}

func TestFitWithDefaultARMAOrders(t *testing.T) {
	spec, err := modelspec.Default(10, 10, 2, 1)
	require.NoError(t, err)

	m, err := Fit(feedlotData(t), spec)
	require.NoError(t, err)

	comp := m.VarianceComponents()
	require.Len(t, comp.ARMAPhi, 2)
	require.Len(t, comp.ARMATheta, 1)
	for _, phi := range comp.ARMAPhi {
		assert.Less(t, math.Abs(phi), 1.0)
	}
	assert.Less(t, math.Abs(comp.ARMATheta[0]), 1.0)
	assert.Greater(t, comp.InnovationVar, 0.0)
}

func TestFitWithARCorrelation(t *testing.T) {
	spec, err := modelspec.Default(8, 8, 1, 0)
	require.NoError(t, err)

	m, err := Fit(feedlotData(t), spec)
	require.NoError(t, err)

	comp := m.VarianceComponents()
	require.Len(t, comp.ARMAPhi, 1)
	assert.Less(t, math.Abs(comp.ARMAPhi[0]), 1.0)
	assert.Greater(t, comp.InnovationVar, 0.0)
}

func TestResiduals(t *testing.T) {
	ds := feedlotData(t)
	m, err := Fit(ds, independenceSpec(t))
	require.NoError(t, err)

	raw, err := m.Residuals(ResidualRaw)
	require.NoError(t, err)
	require.Len(t, raw, ds.Len())

	dev, err := m.Residuals(ResidualDeviance)
	require.NoError(t, err)
	require.Len(t, dev, ds.Len())
	for i := range dev {
		require.False(t, math.IsNaN(dev[i]), "deviance residual %d", i)
		// deviance and raw residuals always agree in sign
		if raw[i] != 0 {
			assert.Equal(t, math.Signbit(raw[i]), math.Signbit(dev[i]), "residual %d", i)
		}
	}

	_, err = m.Residuals("studentized")
	assert.Error(t, err)
}

func TestSmoothCurve(t *testing.T) {
	m, err := Fit(feedlotData(t), independenceSpec(t))
	require.NoError(t, err)

	curve, err := m.SmoothCurve(modelspec.CovHourOfDay, 50)
	require.NoError(t, err)
	require.Len(t, curve.X, 50)
	require.Len(t, curve.Fit, 50)
	for g := range curve.Fit {
		assert.LessOrEqual(t, curve.Lower[g], curve.Fit[g])
		assert.GreaterOrEqual(t, curve.Upper[g], curve.Fit[g])
	}

	_, err = m.SmoothCurve("pressure", 50)
	assert.Error(t, err)
}

func TestTrainingDataIsTimeOrderedCopy(t *testing.T) {
	ds := feedlotData(t)
	m, err := Fit(ds, independenceSpec(t))
	require.NoError(t, err)

	train := m.TrainingData()
	require.Equal(t, ds.Len(), train.Len())
	for i := 1; i < train.Len(); i++ {
		assert.False(t, train[i].Timestamp.Before(train[i-1].Timestamp))
	}
}
