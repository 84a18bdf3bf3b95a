package models

import (
	"encoding/json"
	"math"
	"strconv"
)

// MVolumeMatrix is a bins x days grid of intraday volumes.
// Values[i][t] is bin i of day t; the flattened index is tau = NBin*t + i.
type MVolumeMatrix struct {
	Symbol    string      `json:"symbol"`
	BinLabels []string    `json:"bin_labels,omitempty"`
	DayLabels []string    `json:"day_labels,omitempty"`
	Values    [][]float64 `json:"values"`
}

// NBin returns the number of bins per day.
func (m *MVolumeMatrix) NBin() int {
	return len(m.Values)
}

// NDay returns the number of days.
func (m *MVolumeMatrix) NDay() int {
	if len(m.Values) == 0 {
		return 0
	}
	return len(m.Values[0])
}

// DayLabel returns the label of day t, or its 1-based ordinal when unlabeled.
func (m *MVolumeMatrix) DayLabel(t int) string {
	if t < len(m.DayLabels) && m.DayLabels[t] != "" {
		return m.DayLabels[t]
	}
	return strconv.Itoa(t + 1)
}

// Flatten returns the observations in tau order (day-major, bin-minor).
func (m *MVolumeMatrix) Flatten() []float64 {
	nBin, nDay := m.NBin(), m.NDay()
	out := make([]float64, 0, nBin*nDay)
	for t := 0; t < nDay; t++ {
		for i := 0; i < nBin; i++ {
			out = append(out, m.Values[i][t])
		}
	}
	return out
}

// jsonMatrix carries missing cells as null.
type jsonMatrix struct {
	Symbol    string       `json:"symbol"`
	BinLabels []string     `json:"bin_labels,omitempty"`
	DayLabels []string     `json:"day_labels,omitempty"`
	Values    [][]*float64 `json:"values"`
}

func (m MVolumeMatrix) MarshalJSON() ([]byte, error) {
	out := jsonMatrix{Symbol: m.Symbol, BinLabels: m.BinLabels, DayLabels: m.DayLabels, Values: make([][]*float64, len(m.Values))}
	for i, row := range m.Values {
		out.Values[i] = make([]*float64, len(row))
		for t := range row {
			if !math.IsNaN(row[t]) {
				out.Values[i][t] = &row[t]
			}
		}
	}
	return json.Marshal(out)
}

func (m *MVolumeMatrix) UnmarshalJSON(b []byte) error {
	var in jsonMatrix
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}
	m.Symbol, m.BinLabels, m.DayLabels = in.Symbol, in.BinLabels, in.DayLabels
	m.Values = make([][]float64, len(in.Values))
	for i, row := range in.Values {
		m.Values[i] = make([]float64, len(row))
		for t, v := range row {
			if v == nil {
				m.Values[i][t] = math.NaN()
			} else {
				m.Values[i][t] = *v
			}
		}
	}
	return nil
}

// MVolumeRecord is one row of a day-indexed volume table.
type MVolumeRecord struct {
	Day    string  `json:"day"`
	Bin    int     `json:"bin"`
	Volume float64 `json:"volume"`
}

// MTrade is a single raw trade print used for binning.
type MTrade struct {
	Symbol    string  `json:"symbol"`
	Timestamp int64   `json:"timestamp"`
	Volume    float64 `json:"volume"`
}
