package statespace

import (
	"math"
	"sort"
	"strings"

	"volume-observer/src/helpers"
	"volume-observer/src/models"
)

// -----------------------------------------------------------------------------

// CleanData validates a bins x days grid and drops every day that has a
// missing (NaN) bin. The bin count is preserved; days may shrink. The input is
// not modified.
func CleanData(data *models.MVolumeMatrix) (*models.MVolumeMatrix, []models.MWarning, error) {
	if err := checkShape(data); err != nil {
		return nil, nil, err
	}

	nBin, nDay := data.NBin(), data.NDay()
	var keep []int
	var dropped []string
	for t := 0; t < nDay; t++ {
		missing := false
		for i := 0; i < nBin; i++ {
			if math.IsNaN(data.Values[i][t]) {
				missing = true
				break
			}
		}
		if missing {
			dropped = append(dropped, data.DayLabel(t))
		} else {
			keep = append(keep, t)
		}
	}

	var warnings []models.MWarning
	if len(dropped) > 0 {
		warnings = append(warnings, models.MWarning{
			Kind:    models.MissingDataWarning,
			Field:   strings.Join(dropped, ","),
			Message: "removed day(s) with missing bins: " + strings.Join(dropped, ", "),
		})
	}
	if len(keep) == 0 {
		return nil, warnings, helpers.NewEmptyResultError("all %d day(s) contain missing bins", nDay)
	}

	out := &models.MVolumeMatrix{
		Symbol:    data.Symbol,
		BinLabels: append([]string(nil), data.BinLabels...),
		Values:    make([][]float64, nBin),
	}
	for i := 0; i < nBin; i++ {
		row := make([]float64, len(keep))
		for k, t := range keep {
			row[k] = data.Values[i][t]
		}
		out.Values[i] = row
	}
	if len(data.DayLabels) > 0 {
		out.DayLabels = make([]string, len(keep))
		for k, t := range keep {
			out.DayLabels[k] = data.DayLabel(t)
		}
	}
	return out, warnings, nil
}

// -----------------------------------------------------------------------------

func checkShape(data *models.MVolumeMatrix) error {
	if data == nil || len(data.Values) == 0 {
		return helpers.NewInvalidInputError("volume data must be a non-empty bins x days grid")
	}
	nDay := len(data.Values[0])
	if nDay == 0 {
		return helpers.NewInvalidInputError("volume data has no days")
	}
	for i, row := range data.Values {
		if len(row) != nDay {
			return helpers.NewInvalidInputError("bin %d has %d days, expected %d", i+1, len(row), nDay)
		}
	}
	if len(data.DayLabels) > 0 && len(data.DayLabels) != nDay {
		return helpers.NewInvalidInputError("got %d day labels for %d days", len(data.DayLabels), nDay)
	}
	if len(data.BinLabels) > 0 && len(data.BinLabels) != len(data.Values) {
		return helpers.NewInvalidInputError("got %d bin labels for %d bins", len(data.BinLabels), len(data.Values))
	}
	return nil
}

// -----------------------------------------------------------------------------

// LogVolume flattens a cleaned grid into tau order and takes natural logs.
// Volumes must be finite and strictly positive.
func LogVolume(data *models.MVolumeMatrix) ([]float64, error) {
	if err := checkShape(data); err != nil {
		return nil, err
	}
	nBin, nDay := data.NBin(), data.NDay()
	y := make([]float64, 0, nBin*nDay)
	for t := 0; t < nDay; t++ {
		for i := 0; i < nBin; i++ {
			v := data.Values[i][t]
			if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
				return nil, helpers.NewInvalidInputError("volume at bin %d of day %s must be finite and positive, got %v", i+1, data.DayLabel(t), v)
			}
			y = append(y, math.Log(v))
		}
	}
	return y, nil
}

// -----------------------------------------------------------------------------

// MatrixFromRecords pivots a day-indexed table into a grid. Bins are 1-based;
// days are ordered by label. Cells with no record become NaN so CleanData can
// drop the incomplete day.
func MatrixFromRecords(symbol string, nBin int, records []models.MVolumeRecord) (*models.MVolumeMatrix, error) {
	if nBin <= 0 {
		return nil, helpers.NewInvalidInputError("number of bins must be positive, got %d", nBin)
	}
	if len(records) == 0 {
		return nil, helpers.NewInvalidInputError("no volume records")
	}

	dayIndex := make(map[string]int)
	var days []string
	for _, r := range records {
		if _, ok := dayIndex[r.Day]; !ok {
			dayIndex[r.Day] = 0
			days = append(days, r.Day)
		}
	}
	sort.Strings(days)
	for k, d := range days {
		dayIndex[d] = k
	}

	values := make([][]float64, nBin)
	for i := range values {
		values[i] = make([]float64, len(days))
		for t := range values[i] {
			values[i][t] = math.NaN()
		}
	}
	for _, r := range records {
		if r.Bin < 1 || r.Bin > nBin {
			return nil, helpers.NewInvalidInputError("record for day %s has bin %d outside 1..%d", r.Day, r.Bin, nBin)
		}
		t := dayIndex[r.Day]
		if !math.IsNaN(values[r.Bin-1][t]) {
			return nil, helpers.NewInvalidInputError("duplicate record for day %s bin %d", r.Day, r.Bin)
		}
		values[r.Bin-1][t] = r.Volume
	}

	return &models.MVolumeMatrix{Symbol: symbol, DayLabels: days, Values: values}, nil
}
