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

func TestOnlineForecasterMatchesBatchForecast(t *testing.T) {
	par := trueParams(profile26())
	data := simulate(par, 4, 21)
	model := fittedModel(par)

	dec, err := Decompose(models.PurposeForecast, model, data, 0)
	require.NoError(t, err)

	f, err := NewOnlineForecaster(model, nil)
	require.NoError(t, err)

	j := 0
	for day := 0; day < data.NDay(); day++ {
		for bin := 0; bin < data.NBin(); bin++ {
			assert.Equal(t, bin, f.Bin())
			assert.InEpsilon(t, dec.ForecastSignal[j], f.Forecast(), 1e-9, "bin %d of day %d", bin, day)
			require.NoError(t, f.Observe(data.Values[bin][day]))
			j++
		}
	}
}

func TestOnlineForecasterContinuesAfterHistory(t *testing.T) {
	par := trueParams(profile26())
	data := simulate(par, 3, 8)
	model := fittedModel(par)

	dec, err := Decompose(models.PurposeForecast, model, data, 0)
	require.NoError(t, err)

	history := &models.MVolumeMatrix{DayLabels: data.DayLabels[:2], Values: make([][]float64, 26)}
	for i := range history.Values {
		history.Values[i] = data.Values[i][:2]
	}
	f, err := NewOnlineForecaster(model, history)
	require.NoError(t, err)

	assert.Equal(t, 0, f.Bin())
	assert.InEpsilon(t, dec.ForecastSignal[2*26], f.Forecast(), 1e-9)
}

func TestOnlineForecasterMissingAndInvalid(t *testing.T) {
	par := trueParams(profile26())
	f, err := NewOnlineForecaster(fittedModel(par), nil)
	require.NoError(t, err)

	require.NoError(t, f.Observe(math.NaN()))
	assert.Equal(t, 1, f.Bin())
	// a skipped update leaves the prediction on the model path
	assert.InEpsilon(t, math.Exp(par.X0[0]+par.AMu*par.X0[1]+par.Phi[1]), f.Forecast(), 1e-12)

	var invalid *helpers.InvalidInputError
	assert.True(t, errors.As(f.Observe(0), &invalid))
	assert.True(t, errors.As(f.Observe(math.Inf(1)), &invalid))
	assert.Equal(t, 1, f.Bin())
}

func TestOnlineForecasterRequiresConvergedModel(t *testing.T) {
	model := fittedModel(trueParams(profile26()))
	model.Converged.Phi = false

	_, err := NewOnlineForecaster(model, nil)
	var incomplete *helpers.ModelIncompleteError
	assert.True(t, errors.As(err, &incomplete))
}
