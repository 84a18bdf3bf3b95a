package statespace

import (
	"math"

	"volume-observer/src/analysis/core"
	"volume-observer/src/helpers"
	"volume-observer/src/models"
)

// OnlineForecaster runs the filter one bin at a time, starting at the first
// bin of a day, so new observations can be folded in as they arrive.
type OnlineForecaster struct {
	sys *System // one day of matrices; the pattern repeats daily
	k   int     // index of the next bin to observe
	x   core.Vec2
	p   core.Mat2
}

// NewOnlineForecaster starts from the model's initial state. history, if
// non-nil, is filtered first so forecasting continues after its last day.
func NewOnlineForecaster(model *models.MVolumeModel, history *models.MVolumeMatrix) (*OnlineForecaster, error) {
	if err := RequireConverged(model); err != nil {
		return nil, err
	}
	if err := IsValidModel(model, len(model.Par.Phi)); err != nil {
		return nil, err
	}
	sys, err := BuildSystem(model.Par, len(model.Par.Phi), 1)
	if err != nil {
		return nil, err
	}
	f := &OnlineForecaster{sys: sys, x: sys.X0, p: sys.V0.Sym()}

	if history != nil {
		cleaned, _, err := CleanData(history)
		if err != nil {
			return nil, err
		}
		if cleaned.NBin() != sys.NBin {
			return nil, helpers.NewConfigurationError("history has %d bins, model has %d", cleaned.NBin(), sys.NBin)
		}
		y, err := LogVolume(cleaned)
		if err != nil {
			return nil, err
		}
		for _, v := range y {
			f.observeLog(v)
		}
	}
	return f, nil
}

// Bin returns the 0-based bin of the day the next forecast refers to.
func (f *OnlineForecaster) Bin() int {
	return f.k % f.sys.NBin
}

// Forecast returns E[volume of the next bin | observations so far].
func (f *OnlineForecaster) Forecast() float64 {
	return math.Exp(f.x.Sum() + f.sys.Offset(f.k))
}

// Observe folds in the volume of the next bin and advances one step.
func (f *OnlineForecaster) Observe(volume float64) error {
	if math.IsNaN(volume) {
		f.observeLog(math.NaN())
		return nil
	}
	if math.IsInf(volume, 0) || volume <= 0 {
		return helpers.NewInvalidInputError("volume must be finite and positive, got %v", volume)
	}
	f.observeLog(math.Log(volume))
	return nil
}

func (f *OnlineForecaster) observeLog(y float64) {
	bin := f.Bin()
	xf, pf, _, _ := updateStep(f.x, f.p, y, f.sys.Offset(f.k), f.sys.R)
	f.x, f.p = predictStep(xf, pf, f.sys.A[bin], f.sys.Q[bin])
	f.k++
}
