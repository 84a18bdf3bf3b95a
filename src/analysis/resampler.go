package analysis

import (
	"fmt"
	"sort"
	"time"

	"volume-observer/src/analysis/statespace"
	"volume-observer/src/helpers"
	"volume-observer/src/models"
	"volume-observer/src/utils"
)

// VolumeResampler sums trade volumes into fixed-width intraday bins of the
// exchange's regular session.
type VolumeResampler struct {
	Calendar   *utils.TradingCalendar
	OpenHour   int
	OpenMinute int
	BinMinutes int
	BinsPerDay int
}

// -----------------------------------------------------------------------------

// NewVolumeResampler builds a resampler for a session opening at sessionOpen
// ("HH:MM", exchange local time) and lasting sessionMinutes.
func NewVolumeResampler(cal *utils.TradingCalendar, sessionOpen string, sessionMinutes, binsPerDay int) (*VolumeResampler, error) {
	if cal == nil {
		return nil, helpers.NewConfigurationError("trading calendar is nil")
	}
	if binsPerDay <= 0 || sessionMinutes <= 0 || sessionMinutes%binsPerDay != 0 {
		return nil, helpers.NewConfigurationError("session of %d minutes cannot be split into %d bins", sessionMinutes, binsPerDay)
	}
	open, err := time.Parse("15:04", sessionOpen)
	if err != nil {
		return nil, helpers.NewConfigurationError("invalid session open %q", sessionOpen)
	}
	return &VolumeResampler{
		Calendar:   cal,
		OpenHour:   open.Hour(),
		OpenMinute: open.Minute(),
		BinMinutes: sessionMinutes / binsPerDay,
		BinsPerDay: binsPerDay,
	}, nil
}

// -----------------------------------------------------------------------------

// BinOf returns the day label and 1-based bin of a trade time. ok is false
// outside the session or on non-trading days.
func (r *VolumeResampler) BinOf(ts time.Time) (day string, bin int, ok bool) {
	loc := r.Calendar.Timezone
	if loc == nil {
		loc = time.UTC
	}
	local := ts.In(loc)
	if !r.Calendar.IsTradingDay(local) || !r.Calendar.IsOpenOnMinute(local) {
		return "", 0, false
	}

	open := time.Date(local.Year(), local.Month(), local.Day(), r.OpenHour, r.OpenMinute, 0, 0, loc)
	elapsed := local.Sub(open)
	if elapsed < 0 {
		return "", 0, false
	}
	idx := int(elapsed / (time.Duration(r.BinMinutes) * time.Minute))
	if idx >= r.BinsPerDay {
		return "", 0, false
	}
	return local.Format(utils.DayLayout), idx + 1, true
}

// -----------------------------------------------------------------------------

// BuildVolumeMatrix aggregates one symbol's trades (unix seconds) into a bins x days grid.
// Every day with at least one in-session trade becomes a column; bins with no
// trade are left missing so the day is dropped at fit time.
func (r *VolumeResampler) BuildVolumeMatrix(symbol string, trades []models.MTrade) (*models.MVolumeMatrix, error) {
	sorted := make([]models.MTrade, 0, len(trades))
	for _, tr := range trades {
		if tr.Symbol == "" || tr.Symbol == symbol {
			sorted = append(sorted, tr)
		}
	}
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Timestamp < sorted[j].Timestamp
	})

	type cell struct {
		day string
		bin int
	}
	sums := make(map[cell]float64)
	dropped := 0
	for _, tr := range sorted {
		if tr.Volume < 0 {
			return nil, helpers.NewInvalidInputError("negative volume %v at %d", tr.Volume, tr.Timestamp)
		}
		if tr.Volume == 0 {
			continue
		}
		day, bin, ok := r.BinOf(time.Unix(tr.Timestamp, 0))
		if !ok {
			dropped++
			continue
		}
		sums[cell{day, bin}] += tr.Volume
	}
	if len(sums) == 0 {
		return nil, helpers.NewEmptyResultError("no in-session trades for %s (%d outside the session)", symbol, dropped)
	}

	records := make([]models.MVolumeRecord, 0, len(sums))
	for c, v := range sums {
		records = append(records, models.MVolumeRecord{Day: c.day, Bin: c.bin, Volume: v})
	}
	data, err := statespace.MatrixFromRecords(symbol, r.BinsPerDay, records)
	if err != nil {
		return nil, fmt.Errorf("resampling %s: %w", symbol, err)
	}
	data.BinLabels = r.BinLabels()
	return data, nil
}

// -----------------------------------------------------------------------------

// BinLabels returns the local start time of every bin, e.g. "09:30".
func (r *VolumeResampler) BinLabels() []string {
	labels := make([]string, r.BinsPerDay)
	start := time.Date(2000, 1, 1, r.OpenHour, r.OpenMinute, 0, 0, time.UTC)
	for i := range labels {
		labels[i] = start.Add(time.Duration(i*r.BinMinutes) * time.Minute).Format("15:04")
	}
	return labels
}
