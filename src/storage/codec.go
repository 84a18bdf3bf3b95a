package storage

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"volume-observer/src/analysis/statespace"
	"volume-observer/src/helpers"
	"volume-observer/src/models"
)

// modelPayload is the JSON column of volume_models.
type modelPayload struct {
	Par       models.MParameterSet `json:"par"`
	Present   models.MParamFlags   `json:"present"`
	Converged models.MParamFlags   `json:"converged"`
}

func encodeModel(m *models.MVolumeModel) (string, error) {
	if m == nil {
		return "", fmt.Errorf("model is nil")
	}
	b, err := json.Marshal(modelPayload{Par: m.Par, Present: m.Present, Converged: m.Converged})
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeModel(raw string, m *models.MVolumeModel) error {
	var p modelPayload
	if err := json.NewDecoder(strings.NewReader(raw)).Decode(&p); err != nil {
		return err
	}
	m.Par, m.Present, m.Converged = p.Par, p.Present, p.Converged
	return nil
}

// -----------------------------------------------------------------------------

// observationRows lists the non-missing cells of data in day, bin order.
func observationRows(data *models.MVolumeMatrix) []models.MVolumeRecord {
	var rows []models.MVolumeRecord
	for t := 0; t < data.NDay(); t++ {
		day := data.DayLabel(t)
		for i := 0; i < data.NBin(); i++ {
			v := data.Values[i][t]
			if math.IsNaN(v) {
				continue
			}
			rows = append(rows, models.MVolumeRecord{Day: day, Bin: i + 1, Volume: v})
		}
	}
	return rows
}

// matrixFromRows rebuilds a grid from stored cells; the bin count is the
// largest stored bin.
func matrixFromRows(symbol string, rows []models.MVolumeRecord) (*models.MVolumeMatrix, error) {
	if len(rows) == 0 {
		return nil, helpers.NewEmptyResultError("no observations stored for %s", symbol)
	}
	nBin := 0
	for _, r := range rows {
		if r.Bin > nBin {
			nBin = r.Bin
		}
	}
	return statespace.MatrixFromRecords(symbol, nBin, rows)
}
