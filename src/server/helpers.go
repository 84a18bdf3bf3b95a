package server

import (
	"math"

	"volume-observer/src/models"
)

// JSON has no NaN or Inf. Series cross the wire with those cells as null,
// the same convention the volume matrix codec uses.

// -----------------------------------------------------------------------------

func safeFloat64(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// -----------------------------------------------------------------------------

func safeSeries(values []float64) []*float64 {
	if values == nil {
		return nil
	}
	out := make([]*float64, len(values))
	for i, v := range values {
		out[i] = safeFloat64(v)
	}
	return out
}

// -----------------------------------------------------------------------------

// jsonSafeProgress clamps non-finite numbers, which only appear on the
// first iteration before any delta exists.
func jsonSafeProgress(p models.MFitProgress) models.MFitProgress {
	if math.IsInf(p.LogLikelihood, -1) || math.IsNaN(p.LogLikelihood) {
		p.LogLikelihood = -math.MaxFloat64
	}
	if len(p.Deltas) > 0 {
		deltas := make(map[string]float64, len(p.Deltas))
		for k, v := range p.Deltas {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				v = math.MaxFloat64
			}
			deltas[k] = v
		}
		p.Deltas = deltas
	}
	return p
}

// -----------------------------------------------------------------------------

type componentsResponse struct {
	Daily    []*float64 `json:"daily"`
	Seasonal []*float64 `json:"seasonal"`
	Dynamic  []*float64 `json:"dynamic"`
	Residual []*float64 `json:"residual"`
}

type errorResponse struct {
	MAE  *float64 `json:"mae"`
	MAPE *float64 `json:"mape"`
	RMSE *float64 `json:"rmse"`
}

// fitResultPayload is MFitResult with a nullable log-likelihood.
type fitResultPayload struct {
	Model         *models.MVolumeModel `json:"model"`
	Status        string               `json:"status"`
	Iterations    int                  `json:"iterations"`
	LogLikelihood *float64             `json:"log_likelihood"`
	Estimated     bool                 `json:"estimated"`
	Warnings      []models.MWarning    `json:"warnings,omitempty"`
}

func fitResponse(res *models.MFitResult) fitResultPayload {
	return fitResultPayload{
		Model:         res.Model,
		Status:        res.Status,
		Iterations:    res.Iterations,
		LogLikelihood: safeFloat64(res.LogLikelihood),
		Estimated:     res.Estimated,
		Warnings:      res.Warnings,
	}
}

// -----------------------------------------------------------------------------

type decompositionPayload struct {
	Purpose        string             `json:"purpose"`
	OriginalSignal []*float64         `json:"original_signal"`
	SmoothSignal   []*float64         `json:"smooth_signal,omitempty"`
	ForecastSignal []*float64         `json:"forecast_signal,omitempty"`
	Components     componentsResponse `json:"components"`
	Error          errorResponse      `json:"error"`
	Warnings       []models.MWarning  `json:"warnings,omitempty"`
}

func decompositionResponse(d *models.MDecomposition) decompositionPayload {
	return decompositionPayload{
		Purpose:        d.Purpose,
		OriginalSignal: safeSeries(d.OriginalSignal),
		SmoothSignal:   safeSeries(d.SmoothSignal),
		ForecastSignal: safeSeries(d.ForecastSignal),
		Components: componentsResponse{
			Daily:    safeSeries(d.Components.Daily),
			Seasonal: safeSeries(d.Components.Seasonal),
			Dynamic:  safeSeries(d.Components.Dynamic),
			Residual: safeSeries(d.Components.Residual),
		},
		Error: errorResponse{
			MAE:  safeFloat64(d.Error.MAE),
			MAPE: safeFloat64(d.Error.MAPE),
			RMSE: safeFloat64(d.Error.RMSE),
		},
		Warnings: d.Warnings,
	}
}

// -----------------------------------------------------------------------------

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
