package statespace

import (
	"errors"
	"math"
	"testing"

	"volume-observer/src/helpers"
	"volume-observer/src/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecomposeAnalysisRoundTrip(t *testing.T) {
	par := trueParams(profile26())
	data := simulate(par, 5, 3)

	dec, err := Decompose(models.PurposeAnalysis, fittedModel(par), data, 1)
	require.NoError(t, err)

	n := 4 * 26
	require.Len(t, dec.OriginalSignal, n)
	require.Len(t, dec.SmoothSignal, n)
	assert.Nil(t, dec.ForecastSignal)
	assert.Equal(t, dec.SmoothSignal, dec.Signal())

	// day 1 is burned in, so the series starts at day 2 bin 1
	assert.InEpsilon(t, data.Values[0][1], dec.OriginalSignal[0], 1e-12)

	for j := 0; j < n; j++ {
		c := dec.Components
		assert.Equal(t, dec.OriginalSignal[j], dec.SmoothSignal[j]*c.Residual[j])
		assert.InEpsilon(t, dec.SmoothSignal[j], c.Daily[j]*c.Seasonal[j]*c.Dynamic[j], 1e-9)
		assert.InEpsilon(t, math.Exp(par.Phi[j%26]), c.Seasonal[j], 1e-12)
	}

	assert.Greater(t, dec.Error.MAE, 0.0)
	assert.Greater(t, dec.Error.RMSE, dec.Error.MAE*0.999)
	assert.Greater(t, dec.Error.MAPE, 0.0)
}

func TestDecomposeForecastStartsAtInitialState(t *testing.T) {
	par := trueParams(profile26())
	data := simulate(par, 3, 4)

	dec, err := Decompose(models.PurposeForecast, fittedModel(par), data, 0)
	require.NoError(t, err)

	require.Len(t, dec.ForecastSignal, 3*26)
	assert.Nil(t, dec.SmoothSignal)
	assert.InEpsilon(t, math.Exp(par.X0[0]+par.X0[1]+par.Phi[0]), dec.ForecastSignal[0], 1e-12)
	assert.Equal(t, models.PurposeForecast, dec.Purpose)
}

func TestDecomposeForecastIsWorseThanSmoothing(t *testing.T) {
	par := trueParams(profile26())
	data := simulate(par, 10, 9)
	model := fittedModel(par)

	smooth, err := Decompose(models.PurposeAnalysis, model, data, 2)
	require.NoError(t, err)
	forecast, err := Decompose(models.PurposeForecast, model, data, 2)
	require.NoError(t, err)

	assert.Less(t, smooth.Error.RMSE, forecast.Error.RMSE)
}

func TestDecomposeBurnInOutOfRange(t *testing.T) {
	par := trueParams(profile26())
	data := simulate(par, 3, 4)
	var cfgErr *helpers.ConfigurationError

	_, err := Decompose(models.PurposeAnalysis, fittedModel(par), data, 3)
	assert.True(t, errors.As(err, &cfgErr))

	_, err = Decompose(models.PurposeAnalysis, fittedModel(par), data, -1)
	assert.True(t, errors.As(err, &cfgErr))

	// burn-in counts days that survive cleaning
	data.Values[5][0] = math.NaN()
	_, err = Decompose(models.PurposeAnalysis, fittedModel(par), data, 2)
	assert.True(t, errors.As(err, &cfgErr))
}

func TestDecomposeRejectsUnconvergedModel(t *testing.T) {
	par := trueParams(profile26())
	model := fittedModel(par)
	model.Converged.R = false

	_, err := Decompose(models.PurposeAnalysis, model, simulate(par, 2, 1), 0)
	var incomplete *helpers.ModelIncompleteError
	require.True(t, errors.As(err, &incomplete))
	assert.Contains(t, err.Error(), "r")
}

func TestDecomposeRejectsUnknownPurpose(t *testing.T) {
	par := trueParams(profile26())
	_, err := Decompose("nowcast", fittedModel(par), simulate(par, 2, 1), 0)
	var cfgErr *helpers.ConfigurationError
	assert.True(t, errors.As(err, &cfgErr))
}

func TestDecomposeBinMismatch(t *testing.T) {
	par := trueParams(profile26())
	data := simulate(trueParams(profile26()[:13]), 2, 1)

	_, err := Decompose(models.PurposeAnalysis, fittedModel(par), data, 0)
	var cfgErr *helpers.ConfigurationError
	assert.True(t, errors.As(err, &cfgErr))
}

func TestDecomposeCarriesCleaningWarnings(t *testing.T) {
	par := trueParams(profile26())
	data := simulate(par, 4, 2)
	data.Values[0][1] = math.NaN()

	dec, err := Decompose(models.PurposeAnalysis, fittedModel(par), data, 0)
	require.NoError(t, err)
	assert.Len(t, dec.OriginalSignal, 3*26)
	require.NotEmpty(t, dec.Warnings)
	assert.Equal(t, models.MissingDataWarning, dec.Warnings[0].Kind)
}
