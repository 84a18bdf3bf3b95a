package statespace

import (
	"errors"
	"testing"

	"volume-observer/src/helpers"
	"volume-observer/src/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func warningFor(ws []models.MWarning, field string) *models.MWarning {
	for i := range ws {
		if ws[i].Field == field {
			return &ws[i]
		}
	}
	return nil
}

func TestParseParameterMapFromYAML(t *testing.T) {
	src := `
a_eta: 1
var_mu: 0.02
phi: [0.1, -0.1]
V0: [[1, 0], [0, 1]]
x0: "nope"
sigma: 3
`
	var raw map[string]interface{}
	require.NoError(t, yaml.Unmarshal([]byte(src), &raw))

	in, warnings := ParseParameterMap(raw)
	require.NotNil(t, in.AEta)
	assert.Equal(t, 1.0, *in.AEta)
	assert.Equal(t, 0.02, *in.VarMu)
	assert.Equal(t, []float64{0.1, -0.1}, in.Phi)
	assert.Equal(t, [][]float64{{1, 0}, {0, 1}}, in.V0)
	assert.False(t, in.Has(models.ParamX0))

	require.Len(t, warnings, 2)
	assert.Contains(t, warningFor(warnings, "sigma").Message, "not allowed in parameter list")
	assert.Contains(t, warningFor(warnings, "x0").Message, "could not read x0")
}

func TestSpecModelFixedAndInit(t *testing.T) {
	fixed := models.MParameterInput{
		AEta:   models.Float(1),
		VarEta: models.Float(-1),            // invalid, not fixed
		V0:     [][]float64{{1, 2}, {2, 1}}, // not PSD
	}
	init := models.MParameterInput{
		AEta:  models.Float(0.9), // ignored, already fixed
		AMu:   models.Float(0.5),
		R:     models.Float(-0.1), // invalid, falls back to default
		X0:    []float64{10, 0},
		VarMu: models.Float(0.01),
	}

	m, warnings := SpecModel(fixed, init)

	assert.True(t, m.Present.AEta)
	assert.True(t, m.Converged.AEta)
	assert.Equal(t, 1.0, m.Par.AEta)

	assert.False(t, m.Present.VarEta)
	assert.False(t, m.Converged.VarEta)
	assert.False(t, m.Present.V0)

	assert.True(t, m.Present.AMu)
	assert.False(t, m.Converged.AMu)
	assert.Equal(t, 0.5, m.Par.AMu)
	assert.Equal(t, [2]float64{10, 0}, m.Par.X0)
	assert.False(t, m.Present.R)

	assert.Contains(t, warningFor(warnings, models.ParamVarEta).Message, "is not fixed")
	assert.Contains(t, warningFor(warnings, models.ParamV0).Message, "positive semi-definite")
	assert.Contains(t, warningFor(warnings, models.ParamAEta).Message, "already fixed")
	assert.Contains(t, warningFor(warnings, models.ParamR).Message, "data-driven default")
	assert.Len(t, warnings, 4)
}

func TestInitDefaultsFillsMissing(t *testing.T) {
	data := simulate(trueParams(profile26()), 10, 3)
	y, err := LogVolume(data)
	require.NoError(t, err)

	m, _ := SpecModel(models.MParameterInput{R: models.Float(0.5)}, models.MParameterInput{})
	initDefaults(m, y, 26)

	assert.True(t, m.Present.All())
	assert.Equal(t, 0.5, m.Par.R)
	assert.True(t, m.Converged.R)
	assert.False(t, m.Converged.Phi)
	assert.Len(t, m.Par.Phi, 26)
	assert.Greater(t, m.Par.VarEta, 0.0)
	assert.Empty(t, ValidateModel(m, 26))
}

func TestValidateModel(t *testing.T) {
	m := fittedModel(trueParams(profile26()))
	assert.Empty(t, ValidateModel(m, 26))
	assert.NoError(t, IsValidModel(m, 26))

	violations := ValidateModel(m, 24)
	assert.NotEmpty(t, violations)

	broken := m.Clone()
	broken.Present.X0 = false
	broken.Par.V0 = [2][2]float64{{-1, 0}, {0, 1}}
	violations = ValidateModel(broken, 26)
	fields := make([]string, len(violations))
	for i, v := range violations {
		fields[i] = v.Field
	}
	assert.ElementsMatch(t, []string{models.ParamX0, models.ParamV0}, fields)
	assert.Contains(t, violations[0].Message, "marked converged but has no value")

	var cfgErr *helpers.ConfigurationError
	assert.True(t, errors.As(IsValidModel(broken, 26), &cfgErr))
	assert.Len(t, ValidateModel(nil, 26), 1)
}

func TestRequireConverged(t *testing.T) {
	m := fittedModel(trueParams(profile26()))
	assert.NoError(t, RequireConverged(m))

	m.Converged.VarMu = false
	err := RequireConverged(m)
	var incomplete *helpers.ModelIncompleteError
	require.True(t, errors.As(err, &incomplete))
	assert.Contains(t, err.Error(), "var_mu")
}
