package datasource

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"volume-observer/src/analysis"
	"volume-observer/src/analysis/statespace"
	"volume-observer/src/helpers"
	"volume-observer/src/models"
	"volume-observer/src/utils"
)

// Expected headers. Column order is free; names are case-insensitive.
var (
	volumeColumns = []string{"symbol", "day", "bin", "volume"}
	tickColumns   = []string{"symbol", "timestamp", "volume"}
)

// -----------------------------------------------------------------------------

// columnIndex maps required column names to their position in header.
func columnIndex(header []string, required []string) (map[string]int, error) {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, name := range required {
		if _, ok := idx[name]; !ok {
			return nil, helpers.NewInvalidInputError("missing column %q (have %s)", name, strings.Join(header, ", "))
		}
	}
	return idx, nil
}

func cellAt(row []string, i int) string {
	if i < len(row) {
		return strings.TrimSpace(row[i])
	}
	return ""
}

func wanted(symbols []string) map[string]bool {
	if len(symbols) == 0 {
		return nil
	}
	set := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		set[s] = true
	}
	return set
}

// -----------------------------------------------------------------------------

// parseVolumeRows reads symbol/day/bin/volume rows. An empty volume cell is
// kept as a missing observation.
func parseVolumeRows(rows [][]string, symbols []string) (map[string][]models.MVolumeRecord, error) {
	if len(rows) == 0 {
		return nil, helpers.NewEmptyResultError("no rows")
	}
	idx, err := columnIndex(rows[0], volumeColumns)
	if err != nil {
		return nil, err
	}
	keep := wanted(symbols)

	out := make(map[string][]models.MVolumeRecord)
	for n, row := range rows[1:] {
		line := n + 2
		sym := cellAt(row, idx["symbol"])
		if sym == "" || (keep != nil && !keep[sym]) {
			continue
		}
		bin, err := strconv.Atoi(cellAt(row, idx["bin"]))
		if err != nil {
			return nil, helpers.NewInvalidInputError("row %d: bad bin %q", line, cellAt(row, idx["bin"]))
		}
		vol := cellAt(row, idx["volume"])
		v := math.NaN()
		if vol != "" {
			if v, err = strconv.ParseFloat(vol, 64); err != nil {
				return nil, helpers.NewInvalidInputError("row %d: bad volume %q", line, vol)
			}
		}
		out[sym] = append(out[sym], models.MVolumeRecord{Day: cellAt(row, idx["day"]), Bin: bin, Volume: v})
	}
	return out, nil
}

// -----------------------------------------------------------------------------

// parseTickRows reads symbol/timestamp/volume rows. Timestamps are RFC 3339
// or unix seconds.
func parseTickRows(rows [][]string, symbols []string) (map[string][]models.MTrade, error) {
	if len(rows) == 0 {
		return nil, helpers.NewEmptyResultError("no rows")
	}
	idx, err := columnIndex(rows[0], tickColumns)
	if err != nil {
		return nil, err
	}
	keep := wanted(symbols)

	out := make(map[string][]models.MTrade)
	for n, row := range rows[1:] {
		line := n + 2
		sym := cellAt(row, idx["symbol"])
		if sym == "" || (keep != nil && !keep[sym]) {
			continue
		}
		ts, err := parseTimestamp(cellAt(row, idx["timestamp"]))
		if err != nil {
			return nil, helpers.NewInvalidInputError("row %d: %v", line, err)
		}
		v, err := strconv.ParseFloat(cellAt(row, idx["volume"]), 64)
		if err != nil {
			return nil, helpers.NewInvalidInputError("row %d: bad volume %q", line, cellAt(row, idx["volume"]))
		}
		out[sym] = append(out[sym], models.MTrade{Symbol: sym, Timestamp: ts.Unix(), Volume: v})
	}
	return out, nil
}

func parseTimestamp(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	secs, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, helpers.NewInvalidInputError("bad timestamp %q", s)
	}
	return time.Unix(secs, 0).UTC(), nil
}

// -----------------------------------------------------------------------------

// buildMatrices turns raw table rows into one grid per symbol, either from a
// day/bin table or, for the "ticks" format, by binning trades on the
// symbol's exchange calendar.
func buildMatrices(cfg *models.MDataSourceConfig, rows [][]string, symbols []string) (map[string]*models.MVolumeMatrix, error) {
	out := make(map[string]*models.MVolumeMatrix)

	if cfg.Format == "ticks" {
		trades, err := parseTickRows(rows, symbols)
		if err != nil {
			return nil, err
		}
		for sym, list := range trades {
			r, err := analysis.NewVolumeResampler(utils.GetCalendar(sym), cfg.SessionOpen, cfg.SessionMinutes, cfg.BinsPerDay)
			if err != nil {
				return nil, err
			}
			data, err := r.BuildVolumeMatrix(sym, list)
			if err != nil {
				return nil, err
			}
			out[sym] = data
		}
		return out, nil
	}

	records, err := parseVolumeRows(rows, symbols)
	if err != nil {
		return nil, err
	}
	for sym, recs := range records {
		nBin := cfg.BinsPerDay
		if nBin <= 0 {
			for _, r := range recs {
				if r.Bin > nBin {
					nBin = r.Bin
				}
			}
		}
		data, err := statespace.MatrixFromRecords(sym, nBin, recs)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", sym, err)
		}
		out[sym] = data
	}
	return out, nil
}
