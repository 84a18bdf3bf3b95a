package statespace

import (
	"bytes"
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"volume-observer/src/helpers"
	"volume-observer/src/logger"
	"volume-observer/src/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// twoDayData is a 4-bin, 2-day grid with a clear level shift between days.
func twoDayData() *models.MVolumeMatrix {
	phi := []float64{0.3, -0.1, -0.2, 0}
	day1 := []float64{0.01, -0.02, 0.015, -0.005}
	day2 := []float64{-0.01, 0.02, 0, 0.01}
	values := make([][]float64, 4)
	for i := range values {
		values[i] = []float64{math.Exp(10 + phi[i] + day1[i]), math.Exp(10.8 + phi[i] + day2[i])}
	}
	return &models.MVolumeMatrix{Symbol: "SYN", DayLabels: []string{"2024-05-06", "2024-05-07"}, Values: values}
}

func TestFitAllFixedSkipsEstimation(t *testing.T) {
	par := trueParams(profile26())
	data := simulate(par, 4, 1)

	res, err := FitVolume(data, fixedAll(par), models.MParameterInput{}, 0, models.MFitControl{}, quietLogger())
	require.NoError(t, err)

	assert.False(t, res.Estimated)
	assert.Equal(t, 0, res.Iterations)
	assert.Equal(t, models.FitConverged, res.Status)
	assert.Equal(t, par, res.Model.Par)
	assert.True(t, res.Model.Converged.All())
	assert.False(t, math.IsNaN(res.LogLikelihood))
	assert.NotEmpty(t, res.Model.ID)

	require.Len(t, res.Warnings, 1)
	assert.Equal(t, models.ConvergenceWarning, res.Warnings[0].Kind)
	assert.Contains(t, res.Warnings[0].Message, "nothing to estimate")
}

func TestFitSingleDayKeepsDailyParameters(t *testing.T) {
	data := twoDayData()
	data.DayLabels = data.DayLabels[:1]
	for i := range data.Values {
		data.Values[i] = data.Values[i][:1]
	}
	fixed := models.MParameterInput{
		AMu:   models.Float(0.5),
		VarMu: models.Float(0.01),
		R:     models.Float(0.01),
		Phi:   []float64{0.3, -0.1, -0.2, 0},
		X0:    []float64{10, 0},
		V0:    [][]float64{{0.01, 0}, {0, 0.01}},
	}
	init := models.MParameterInput{AEta: models.Float(0.9), VarEta: models.Float(0.2)}

	res, err := FitVolume(data, fixed, init, 0, models.MFitControl{MaxIt: 50, AbsTol: 1e-4}, quietLogger())
	require.NoError(t, err)

	var daily *models.MWarning
	for i := range res.Warnings {
		if strings.Contains(res.Warnings[i].Message, "single day") {
			daily = &res.Warnings[i]
		}
	}
	require.NotNil(t, daily)
	assert.Equal(t, models.ConvergenceWarning, daily.Kind)
	assert.Equal(t, "a_eta,var_eta", daily.Field)

	assert.Equal(t, 0.9, res.Model.Par.AEta)
	assert.Equal(t, 0.2, res.Model.Par.VarEta)
	assert.False(t, res.Model.Converged.AEta)
	assert.False(t, res.Model.Converged.VarEta)
	assert.ElementsMatch(t, []string{models.ParamAEta, models.ParamVarEta}, res.Model.Converged.Missing())
}

func TestFitSingleFreeParameterConverges(t *testing.T) {
	fixed := models.MParameterInput{
		AEta:  models.Float(1),
		AMu:   models.Float(0.5),
		VarMu: models.Float(0.01),
		R:     models.Float(0.01),
		Phi:   []float64{0.3, -0.1, -0.2, 0},
		X0:    []float64{10, 0},
		V0:    [][]float64{{0.01, 0}, {0, 0.01}},
	}
	init := models.MParameterInput{VarEta: models.Float(0.5)}

	res, err := FitVolume(twoDayData(), fixed, init, 0, models.MFitControl{MaxIt: 1000, AbsTol: 1e-4}, quietLogger())
	require.NoError(t, err)

	assert.Equal(t, models.FitConverged, res.Status)
	assert.True(t, res.Estimated)
	assert.LessOrEqual(t, res.Iterations, 1000)
	assert.True(t, res.Model.Converged.VarEta)
	assert.True(t, res.Model.Converged.All())
	assert.Greater(t, res.Model.Par.VarEta, 0.1)
	assert.Equal(t, 1.0, res.Model.Par.AEta)
	assert.Equal(t, 4, res.Model.NBin)
}

func TestFitMaxitOneWarns(t *testing.T) {
	data := simulate(trueParams(profile26()), 20, 11)

	res, err := FitVolume(data, models.MParameterInput{}, models.MParameterInput{}, 0, models.MFitControl{MaxIt: 1}, quietLogger())
	require.NoError(t, err)
	require.NotNil(t, res.Model)

	assert.Equal(t, models.FitExhausted, res.Status)
	assert.Equal(t, 1, res.Iterations)
	assert.False(t, res.Model.Converged.All())

	var found bool
	for _, w := range res.Warnings {
		if w.Kind == models.ConvergenceWarning {
			found = true
			assert.Contains(t, w.Message, "Reached maxit before parameters converged")
			assert.Contains(t, w.Message, "maxit = 1")
		}
	}
	assert.True(t, found)

	_, err = Decompose(models.PurposeAnalysis, res.Model, data, 0)
	var incomplete *helpers.ModelIncompleteError
	assert.True(t, errors.As(err, &incomplete))
}

func TestEMStepIncreasesLikelihood(t *testing.T) {
	data := simulate(trueParams(profile26()), 10, 5)
	y, err := LogVolume(data)
	require.NoError(t, err)

	m, _ := SpecModel(models.MParameterInput{}, models.MParameterInput{})
	initDefaults(m, y, 26)
	free := freeParams(m)
	require.Len(t, free, 8)

	par := m.Par
	prev := math.Inf(-1)
	for i := 0; i < 25; i++ {
		next, ll, err := emStep(par, free, y, 26, 10)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, ll, prev-1e-8, "iteration %d", i)
		assert.True(t, feasible(next))
		prev, par = ll, next
	}
}

func TestEMStepKeepsFixedParameters(t *testing.T) {
	par := trueParams(profile26())
	data := simulate(par, 3, 2)
	y, err := LogVolume(data)
	require.NoError(t, err)

	next, _, err := emStep(par, []string{models.ParamR}, y, 26, 3)
	require.NoError(t, err)
	assert.NotEqual(t, par.R, next.R)
	assert.Equal(t, par.AEta, next.AEta)
	assert.Equal(t, par.Phi, next.Phi)
	assert.Equal(t, par.V0, next.V0)
}

func TestFitRecoversIntradayDynamics(t *testing.T) {
	par := trueParams(profile26())
	data := simulate(par, 60, 42)

	fixed := models.MParameterInput{
		X0: []float64{par.X0[0], par.X0[1]},
		V0: [][]float64{{par.V0[0][0], 0}, {0, par.V0[1][1]}},
	}
	res, err := FitVolume(data, fixed, models.MParameterInput{}, 0, models.MFitControl{MaxIt: 500, AbsTol: 1e-5}, quietLogger())
	require.NoError(t, err)

	got := res.Model.Par
	assert.InDelta(t, par.AMu, got.AMu, 0.2)
	assert.InDelta(t, par.R, got.R, 0.02)
	assert.True(t, feasible(got))
}

func TestFitAcceleratedReachesSameOptimum(t *testing.T) {
	par := trueParams(profile26())
	data := simulate(par, 15, 8)
	fixed := models.MParameterInput{
		X0: []float64{par.X0[0], par.X0[1]},
		V0: [][]float64{{par.V0[0][0], 0}, {0, par.V0[1][1]}},
	}

	plain, err := FitVolume(data, fixed, models.MParameterInput{}, 0, models.MFitControl{MaxIt: 3000, AbsTol: 1e-6}, quietLogger())
	require.NoError(t, err)
	acc, err := FitVolume(data, fixed, models.MParameterInput{}, 0, models.MFitControl{MaxIt: 3000, AbsTol: 1e-6, Acceleration: true}, quietLogger())
	require.NoError(t, err)

	assert.True(t, feasible(acc.Model.Par))
	assert.GreaterOrEqual(t, acc.LogLikelihood, plain.LogLikelihood-0.5)
}

func TestSquaremLandsOnLinearFixedPoint(t *testing.T) {
	const target, rate = 0.2, 0.9
	em := func(p models.MParameterSet) (models.MParameterSet, float64, error) {
		next := p.Clone()
		next.VarEta = target + rate*(p.VarEta-target)
		return next, -(p.VarEta - target) * (p.VarEta - target), nil
	}
	start := trueParams(profile26())
	start.VarEta = 1

	got, _, err := SquaremEM{}.Step(start, []string{models.ParamVarEta}, em)
	require.NoError(t, err)
	assert.InDelta(t, target, got.VarEta, 1e-9)
}

func TestSquaremFallsBackWhenInfeasible(t *testing.T) {
	em := func(p models.MParameterSet) (models.MParameterSet, float64, error) {
		next := p.Clone()
		switch {
		case p.VarEta > 0.45:
			next.VarEta = 0.4
		case p.VarEta > 0.35:
			next.VarEta = 0.31
		default:
			next.VarEta = 0.9 * p.VarEta
		}
		return next, 0, nil
	}
	start := trueParams(profile26())
	start.VarEta = 0.5

	got, _, err := SquaremEM{}.Step(start, []string{models.ParamVarEta}, em)
	require.NoError(t, err)
	assert.Equal(t, 0.31, got.VarEta)
}

func TestFitVerboseAndProgress(t *testing.T) {
	var buf bytes.Buffer
	log := logger.NewLogger(nil, "Estimator")
	log.SetOutput(&buf)

	fixed := models.MParameterInput{
		AEta: models.Float(1), AMu: models.Float(0.5), VarMu: models.Float(0.01), R: models.Float(0.01),
		Phi: []float64{0.3, -0.1, -0.2, 0}, X0: []float64{10, 0}, V0: [][]float64{{0.01, 0}, {0, 0.01}},
	}
	model, _ := SpecModel(fixed, models.MParameterInput{})

	est := NewEstimator(models.MFitControl{MaxIt: 1000}, 2, log)
	var events []models.MFitProgress
	est.Progress = func(p models.MFitProgress) { events = append(events, p) }

	res, err := est.Fit(twoDayData(), model)
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "iteration 1: loglik=")
	assert.Contains(t, out, "d(var_eta)=")
	assert.Contains(t, out, "Converged after")

	require.Len(t, events, res.Iterations+1)
	assert.Equal(t, "DONE", events[len(events)-1].Type)
	assert.Equal(t, models.FitConverged, events[len(events)-1].Status)
	assert.Equal(t, "SYN", events[0].Symbol)

	// the caller's model is untouched
	assert.False(t, model.Converged.VarEta)
}

func TestFitPhiLengthMismatch(t *testing.T) {
	data := twoDayData()

	_, err := FitVolume(data, models.MParameterInput{Phi: []float64{0, 0, 0}}, models.MParameterInput{}, 0, models.MFitControl{MaxIt: 5}, quietLogger())
	var cfgErr *helpers.ConfigurationError
	assert.True(t, errors.As(err, &cfgErr))

	res, err := FitVolume(data, models.MParameterInput{}, models.MParameterInput{Phi: []float64{0, 0, 0}}, 0, models.MFitControl{MaxIt: 5}, quietLogger())
	require.NoError(t, err)
	assert.Len(t, res.Model.Par.Phi, 4)
	assert.NotNil(t, warningFor(res.Warnings, models.ParamPhi))
}

func TestFitRejectsNonPositiveVolume(t *testing.T) {
	data := twoDayData()
	data.Values[1][1] = -5

	_, err := FitVolume(data, models.MParameterInput{}, models.MParameterInput{}, 0, models.MFitControl{}, quietLogger())
	var invalid *helpers.InvalidInputError
	assert.True(t, errors.As(err, &invalid))
}

func TestFitContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewEstimator(models.MFitControl{}, 0, quietLogger()).FitContext(ctx, twoDayData(), nil)
	assert.ErrorIs(t, err, context.Canceled)
}
