package statespace

import (
	"fmt"
	"strings"

	"volume-observer/src/analysis/core"
	"volume-observer/src/helpers"
	"volume-observer/src/models"
)

// Violation is one broken model invariant.
type Violation struct {
	Field   string
	Message string
}

func (v Violation) String() string {
	return v.Field + ": " + v.Message
}

// -----------------------------------------------------------------------------

// ValidateModel checks that m is complete and well-shaped for nBin bins.
// It returns nil when the model may be filtered or smoothed.
func ValidateModel(m *models.MVolumeModel, nBin int) []Violation {
	if m == nil {
		return []Violation{{Field: "model", Message: "model is nil"}}
	}

	var out []Violation
	if nBin <= 0 {
		out = append(out, Violation{"n_bin", fmt.Sprintf("must be positive, got %d", nBin)})
	}
	if m.NBin != 0 && m.NBin != nBin {
		out = append(out, Violation{"n_bin", fmt.Sprintf("model was fitted with %d bins, data has %d", m.NBin, nBin)})
	}

	for _, name := range models.ParamNames {
		if !m.Present.Get(name) {
			if m.Converged.Get(name) {
				out = append(out, Violation{name, "marked converged but has no value"})
			} else {
				out = append(out, Violation{name, "missing from par"})
			}
			continue
		}
		if reason := paramShape(m.Par, name, nBin); reason != "" {
			out = append(out, Violation{name, reason})
		}
	}
	return out
}

// paramShape re-checks a stored parameter value.
func paramShape(par models.MParameterSet, name string, nBin int) string {
	switch name {
	case models.ParamAEta:
		if !finite(par.AEta) {
			return "must be finite"
		}
	case models.ParamAMu:
		if !finite(par.AMu) {
			return "must be finite"
		}
	case models.ParamVarEta:
		return checkVariance(par.VarEta)
	case models.ParamVarMu:
		return checkVariance(par.VarMu)
	case models.ParamR:
		return checkVariance(par.R)
	case models.ParamPhi:
		return checkPhi(par.Phi, nBin)
	case models.ParamX0:
		if !core.Vec2(par.X0).IsFinite() {
			return "must be finite"
		}
	case models.ParamV0:
		return checkCovariance(core.Mat2(par.V0))
	}
	return ""
}

// -----------------------------------------------------------------------------

// IsValidModel wraps ValidateModel into a ConfigurationError.
func IsValidModel(m *models.MVolumeModel, nBin int) error {
	violations := ValidateModel(m, nBin)
	if len(violations) == 0 {
		return nil
	}
	parts := make([]string, len(violations))
	for i, v := range violations {
		parts[i] = v.String()
	}
	return helpers.NewConfigurationError("invalid volume model: %s", strings.Join(parts, "; "))
}

// RequireConverged fails with ModelIncompleteError unless every parameter is
// fixed or estimated to tolerance.
func RequireConverged(m *models.MVolumeModel) error {
	if m == nil {
		return helpers.NewModelIncompleteError("model is nil")
	}
	if missing := m.Converged.Missing(); len(missing) > 0 {
		return helpers.NewModelIncompleteError("parameters not converged: %s; fit the model first", strings.Join(missing, ", "))
	}
	return nil
}
