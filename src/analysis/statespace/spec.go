package statespace

import (
	"fmt"
	"math"
	"sort"

	"volume-observer/src/analysis/core"
	"volume-observer/src/models"
)

const symTol = 1e-8

// -----------------------------------------------------------------------------

// ParseParameterMap converts a loosely typed map (from YAML or JSON) into a
// parameter input. Unknown keys and unreadable values are dropped with a
// ValidationWarning.
func ParseParameterMap(raw map[string]interface{}) (models.MParameterInput, []models.MWarning) {
	var in models.MParameterInput
	var warnings []models.MWarning

	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, name := range keys {
		v := raw[name]
		if !models.IsParamName(name) {
			warnings = append(warnings, validationWarning(name, fmt.Sprintf("%q not allowed in parameter list", name)))
			continue
		}

		var err error
		switch name {
		case models.ParamAEta:
			in.AEta, err = toScalar(v)
		case models.ParamAMu:
			in.AMu, err = toScalar(v)
		case models.ParamVarEta:
			in.VarEta, err = toScalar(v)
		case models.ParamVarMu:
			in.VarMu, err = toScalar(v)
		case models.ParamR:
			in.R, err = toScalar(v)
		case models.ParamPhi:
			in.Phi, err = toVector(v)
		case models.ParamX0:
			in.X0, err = toVector(v)
		case models.ParamV0:
			in.V0, err = toMatrix(v)
		}
		if err != nil {
			warnings = append(warnings, validationWarning(name, fmt.Sprintf("could not read %s: %v", name, err)))
		}
	}
	return in, warnings
}

func toFloat(v interface{}) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case uint64:
		return float64(x), nil
	}
	return 0, fmt.Errorf("expected a number, got %T", v)
}

func toScalar(v interface{}) (*float64, error) {
	if list, ok := v.([]interface{}); ok && len(list) == 1 {
		v = list[0]
	}
	f, err := toFloat(v)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func toVector(v interface{}) ([]float64, error) {
	switch x := v.(type) {
	case []float64:
		return append([]float64(nil), x...), nil
	case []interface{}:
		out := make([]float64, len(x))
		for i, e := range x {
			f, err := toFloat(e)
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", i, err)
			}
			out[i] = f
		}
		return out, nil
	}
	if f, err := toFloat(v); err == nil {
		return []float64{f}, nil
	}
	return nil, fmt.Errorf("expected a list of numbers, got %T", v)
}

func toMatrix(v interface{}) ([][]float64, error) {
	switch x := v.(type) {
	case [][]float64:
		out := make([][]float64, len(x))
		for i := range x {
			out[i] = append([]float64(nil), x[i]...)
		}
		return out, nil
	case []interface{}:
		out := make([][]float64, len(x))
		for i, row := range x {
			r, err := toVector(row)
			if err != nil {
				return nil, fmt.Errorf("row %d: %w", i, err)
			}
			out[i] = r
		}
		return out, nil
	}
	return nil, fmt.Errorf("expected a list of rows, got %T", v)
}

// -----------------------------------------------------------------------------

// SpecModel builds a model from optional fixed values and initial hints.
// Valid fixed values are stored and marked converged; valid hints are stored
// unconverged. Anything invalid is dropped with a warning and left for the
// data-driven initializer at fit time.
func SpecModel(fixed, init models.MParameterInput) (*models.MVolumeModel, []models.MWarning) {
	m := &models.MVolumeModel{}
	var warnings []models.MWarning

	for _, name := range models.ParamNames {
		isFixed := false
		if fixed.Has(name) {
			if reason := assignParam(&m.Par, name, fixed, 0); reason != "" {
				warnings = append(warnings, validationWarning(name,
					fmt.Sprintf("fixed value for %s is invalid (%s) and is not fixed", name, reason)))
			} else {
				m.Present.Set(name, true)
				m.Converged.Set(name, true)
				isFixed = true
			}
		}

		if !init.Has(name) {
			continue
		}
		if isFixed {
			warnings = append(warnings, validationWarning(name,
				fmt.Sprintf("initial value for %s is ignored because the parameter is already fixed", name)))
			continue
		}
		if reason := assignParam(&m.Par, name, init, 0); reason != "" {
			warnings = append(warnings, validationWarning(name,
				fmt.Sprintf("initial value for %s is invalid (%s); a data-driven default will be used", name, reason)))
			continue
		}
		m.Present.Set(name, true)
		m.Converged.Set(name, false)
	}
	return m, warnings
}

// assignParam validates one input entry and copies it into par. It returns a
// non-empty reason when the entry is rejected. nBin of 0 skips the phi length check.
func assignParam(par *models.MParameterSet, name string, in models.MParameterInput, nBin int) string {
	switch name {
	case models.ParamAEta:
		if !finite(*in.AEta) {
			return "must be finite"
		}
		par.AEta = *in.AEta
	case models.ParamAMu:
		if !finite(*in.AMu) {
			return "must be finite"
		}
		par.AMu = *in.AMu
	case models.ParamVarEta:
		if reason := checkVariance(*in.VarEta); reason != "" {
			return reason
		}
		par.VarEta = *in.VarEta
	case models.ParamVarMu:
		if reason := checkVariance(*in.VarMu); reason != "" {
			return reason
		}
		par.VarMu = *in.VarMu
	case models.ParamR:
		if reason := checkVariance(*in.R); reason != "" {
			return reason
		}
		par.R = *in.R
	case models.ParamPhi:
		if reason := checkPhi(in.Phi, nBin); reason != "" {
			return reason
		}
		par.Phi = append([]float64(nil), in.Phi...)
	case models.ParamX0:
		if len(in.X0) != 2 {
			return fmt.Sprintf("must have length 2, got %d", len(in.X0))
		}
		if !finite(in.X0[0]) || !finite(in.X0[1]) {
			return "must be finite"
		}
		par.X0 = [2]float64{in.X0[0], in.X0[1]}
	case models.ParamV0:
		if len(in.V0) != 2 || len(in.V0[0]) != 2 || len(in.V0[1]) != 2 {
			return "must be a 2x2 matrix"
		}
		v0 := core.Mat2{{in.V0[0][0], in.V0[0][1]}, {in.V0[1][0], in.V0[1][1]}}
		if reason := checkCovariance(v0); reason != "" {
			return reason
		}
		par.V0 = v0.Sym()
	default:
		return "unknown parameter"
	}
	return ""
}

func checkVariance(v float64) string {
	if !finite(v) {
		return "must be finite"
	}
	if v < 0 {
		return "must be non-negative"
	}
	return ""
}

func checkPhi(phi []float64, nBin int) string {
	if len(phi) == 0 {
		return "must not be empty"
	}
	if nBin > 0 && len(phi) != nBin {
		return fmt.Sprintf("must have length %d, got %d", nBin, len(phi))
	}
	for _, v := range phi {
		if !finite(v) {
			return "must be finite"
		}
	}
	return ""
}

func checkCovariance(m core.Mat2) string {
	if !m.IsFinite() {
		return "must be finite"
	}
	if !m.IsSymmetric(symTol) {
		return "must be symmetric"
	}
	if !m.IsPSD(symTol) {
		return "must be positive semi-definite"
	}
	return ""
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func validationWarning(field, msg string) models.MWarning {
	return models.MWarning{Kind: models.ValidationWarning, Field: field, Message: msg}
}

// -----------------------------------------------------------------------------

// initDefaults fills every parameter not yet present from empirical moments of
// the log-volume grid y (tau order, nBin bins per day).
func initDefaults(m *models.MVolumeModel, y []float64, nBin int) {
	nDay := len(y) / nBin
	const floor = 1e-4

	dailyMean := make([]float64, nDay)
	for t := 0; t < nDay; t++ {
		dailyMean[t], _ = core.CalculateMeanStd(y[t*nBin : (t+1)*nBin])
	}

	phi := make([]float64, nBin)
	for i := 0; i < nBin; i++ {
		s := 0.0
		for t := 0; t < nDay; t++ {
			s += y[t*nBin+i] - dailyMean[t]
		}
		phi[i] = s / float64(nDay)
	}

	resid := make([]float64, 0, len(y))
	for t := 0; t < nDay; t++ {
		for i := 0; i < nBin; i++ {
			resid = append(resid, y[t*nBin+i]-dailyMean[t]-phi[i])
		}
	}
	varRes := math.Max(core.CalculateVariance(resid), floor)

	varEta := floor
	if nDay > 1 {
		ss := 0.0
		for t := 1; t < nDay; t++ {
			d := dailyMean[t] - dailyMean[t-1]
			ss += d * d
		}
		varEta = math.Max(ss/float64(nDay-1), floor)
	}

	defaults := models.MParameterSet{
		AEta:   1,
		AMu:    0.5,
		VarEta: varEta,
		VarMu:  varRes / 2,
		R:      varRes / 2,
		Phi:    phi,
		X0:     [2]float64{dailyMean[0], 0},
		V0:     [2][2]float64{{varEta, 0}, {0, varRes / 2}},
	}

	for _, name := range models.ParamNames {
		if m.Present.Get(name) {
			continue
		}
		copyParam(&m.Par, defaults, name)
		m.Present.Set(name, true)
		m.Converged.Set(name, false)
	}
}

// copyParam copies a single named parameter from src into dst.
func copyParam(dst *models.MParameterSet, src models.MParameterSet, name string) {
	switch name {
	case models.ParamAEta:
		dst.AEta = src.AEta
	case models.ParamAMu:
		dst.AMu = src.AMu
	case models.ParamVarEta:
		dst.VarEta = src.VarEta
	case models.ParamVarMu:
		dst.VarMu = src.VarMu
	case models.ParamR:
		dst.R = src.R
	case models.ParamPhi:
		dst.Phi = append([]float64(nil), src.Phi...)
	case models.ParamX0:
		dst.X0 = src.X0
	case models.ParamV0:
		dst.V0 = src.V0
	}
}
