package models

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVolumeMatrixJSONMissingCells(t *testing.T) {
	var m MVolumeMatrix
	require.NoError(t, json.Unmarshal([]byte(`{"symbol":"X","values":[[1,null],[3,4]]}`), &m))

	assert.Equal(t, 2, m.NBin())
	assert.Equal(t, 2, m.NDay())
	assert.True(t, math.IsNaN(m.Values[0][1]))
	assert.Equal(t, "2", m.DayLabel(1))
	assert.Equal(t, []float64{1, 3}, m.Flatten()[:2])

	out, err := json.Marshal(m)
	require.NoError(t, err)
	assert.JSONEq(t, `{"symbol":"X","values":[[1,null],[3,4]]}`, string(out))
}

func TestParamFlags(t *testing.T) {
	var f MParamFlags
	f.Set(ParamPhi, true)
	f.Set(ParamV0, true)

	assert.True(t, f.Get(ParamPhi))
	assert.False(t, f.All())
	assert.Equal(t, []string{ParamAEta, ParamAMu, ParamVarEta, ParamVarMu, ParamR, ParamX0}, f.Missing())
	assert.True(t, IsParamName("V0"))
	assert.False(t, IsParamName("v0"))
}
