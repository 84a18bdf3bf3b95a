package statespace

import (
	"fmt"
	"math"

	"volume-observer/src/analysis/core"
	"volume-observer/src/helpers"
	"volume-observer/src/models"
)

// Decompose splits data into daily, seasonal, dynamic and residual components
// under a fully converged model. PurposeAnalysis uses smoothed states;
// PurposeForecast uses one-bin-ahead predictions x_{tau|tau-1}. The first
// burnInDays days are dropped from every output series and from the error metrics.
func Decompose(purpose string, model *models.MVolumeModel, data *models.MVolumeMatrix, burnInDays int) (*models.MDecomposition, error) {
	if purpose != models.PurposeAnalysis && purpose != models.PurposeForecast {
		return nil, helpers.NewConfigurationError("purpose must be %q or %q, got %q", models.PurposeAnalysis, models.PurposeForecast, purpose)
	}
	if err := RequireConverged(model); err != nil {
		return nil, err
	}

	cleaned, warnings, err := CleanData(data)
	if err != nil {
		return nil, err
	}
	nBin, nDay := cleaned.NBin(), cleaned.NDay()
	if burnInDays < 0 || burnInDays >= nDay {
		return nil, helpers.NewConfigurationError("burn_in_days (%d) must be in [0, %d) for data with %d day(s)", burnInDays, nDay, nDay)
	}
	if err := IsValidModel(model, nBin); err != nil {
		return nil, err
	}

	y, err := LogVolume(cleaned)
	if err != nil {
		return nil, err
	}
	sys, err := BuildSystem(model.Par, nBin, nDay)
	if err != nil {
		return nil, err
	}

	var states []core.Vec2
	var skipped []int
	if purpose == models.PurposeAnalysis {
		s, err := Smooth(sys, y)
		if err != nil {
			return nil, err
		}
		states, skipped = s.XSmooth, s.Skipped
	} else {
		f, err := Filter(sys, y)
		if err != nil {
			return nil, err
		}
		states, skipped = f.XPred, f.Skipped
	}
	if len(skipped) > 0 {
		warnings = append(warnings, models.MWarning{
			Kind:    models.ValidationWarning,
			Field:   models.ParamR,
			Message: fmt.Sprintf("skipped %d Kalman update(s) with non-positive innovation variance", len(skipped)),
		})
	}

	start := burnInDays * nBin
	n := len(y) - start
	out := &models.MDecomposition{
		Purpose:        purpose,
		OriginalSignal: make([]float64, n),
		Components: models.MComponents{
			Daily:    make([]float64, n),
			Seasonal: make([]float64, n),
			Dynamic:  make([]float64, n),
			Residual: make([]float64, n),
		},
		Warnings: warnings,
	}
	signal := make([]float64, n)
	for j := 0; j < n; j++ {
		k := start + j
		x := states[k]
		offset := sys.Offset(k)

		out.Components.Daily[j] = math.Exp(x[0])
		out.Components.Dynamic[j] = math.Exp(x[1])
		out.Components.Seasonal[j] = math.Exp(offset)
		logSignal := x.Sum() + offset
		signal[j] = math.Exp(logSignal)
		out.Components.Residual[j] = math.Exp(y[k] - logSignal)
		// original is rebuilt from its factors so original == signal * residual exactly
		out.OriginalSignal[j] = signal[j] * out.Components.Residual[j]
	}
	if purpose == models.PurposeAnalysis {
		out.SmoothSignal = signal
	} else {
		out.ForecastSignal = signal
	}

	out.Error = models.MErrorMetrics{
		MAE:  core.MAE(signal, out.OriginalSignal),
		MAPE: core.MAPE(signal, out.OriginalSignal),
		RMSE: core.RMSE(signal, out.OriginalSignal),
	}
	return out, nil
}
