package utils

import (
	"log"
	"strings"
	"time"

	"github.com/scmhub/calendar"
)

// TradingCalendar answers trading-day questions using scmhub/calendar.
type TradingCalendar struct {
	Calendar *calendar.Calendar
	MIC      string
	Fallback bool
	Timezone *time.Location
}

// Ticker suffix to MIC code (ISO 10383). No suffix means NYSE.
var suffixMIC = map[string]string{
	".L":  "xlon",
	".PA": "xpar",
	".DE": "xfra",
	".AS": "xams",
	".BR": "xbru",
	".MI": "xmil",
	".MC": "xmad",
	".ST": "xsto",
	".CO": "xcse",
	".HE": "xhel",
	".VI": "xwbo",
	".SW": "xswx",
	".TO": "xtse",
	".V":  "xtsx",
	".T":  "xtks",
	".HK": "xhkg",
	".AX": "xasx",
	".KS": "xkrx",
	".TW": "xtai",
	".SS": "xshg",
	".SZ": "xshe",
}

// DayLayout is the format of day labels.
const DayLayout = "2006-01-02"

// -----------------------------------------------------------------------------

// MICForSymbol maps a ticker to its exchange by suffix.
func MICForSymbol(symbol string) string {
	if i := strings.LastIndex(symbol, "."); i >= 0 {
		if mic, ok := suffixMIC[strings.ToUpper(symbol[i:])]; ok {
			return mic
		}
	}
	return "xnys"
}

// -----------------------------------------------------------------------------

func GetCalendar(symbol string) *TradingCalendar {
	mic := MICForSymbol(symbol)

	cal := calendar.GetCalendar(mic)
	if cal == nil {
		// Fallback to xnys if not found
		mic = "xnys"
		cal = calendar.GetCalendar(mic)
	}

	if cal == nil {
		log.Printf("WARNING: Failed to load calendar for symbol '%s'. Using simple fallback (Mon-Fri 09:30-16:00 New York).", symbol)
		nyLoc, _ := time.LoadLocation("America/New_York")
		if nyLoc == nil {
			nyLoc = time.UTC
		}
		return &TradingCalendar{MIC: mic, Fallback: true, Timezone: nyLoc}
	}

	return &TradingCalendar{Calendar: cal, MIC: mic, Fallback: false, Timezone: cal.Loc}
}

// -----------------------------------------------------------------------------

func (tc *TradingCalendar) IsTradingDay(date time.Time) bool {
	if tc.Timezone != nil {
		date = date.In(tc.Timezone)
	}

	if tc.Fallback {
		weekday := date.Weekday()
		return weekday != time.Saturday && weekday != time.Sunday
	}
	return tc.Calendar.IsBusinessDay(date)
}

// -----------------------------------------------------------------------------

// IsOpenOnMinute checks if the market is open at a specific minute.
func (tc *TradingCalendar) IsOpenOnMinute(t time.Time) bool {
	if tc.Timezone != nil {
		t = t.In(tc.Timezone)
	}

	if tc.Fallback {
		if !tc.IsTradingDay(t) {
			return false
		}

		hour := t.Hour()
		minute := t.Minute()

		// 9:30 - 16:00 NY Time
		return (hour > 9 || (hour == 9 && minute >= 30)) && hour < 16
	}

	return tc.Calendar.IsOpen(t)
}

// -----------------------------------------------------------------------------

// NonTradingDays returns the labels that parse as dates but fall on a
// weekend or holiday. Labels that are not dates are ignored.
func (tc *TradingCalendar) NonTradingDays(labels []string) []string {
	loc := tc.Timezone
	if loc == nil {
		loc = time.UTC
	}

	var out []string
	for _, label := range labels {
		day, err := time.ParseInLocation(DayLayout, label, loc)
		if err != nil {
			continue
		}
		// Noon avoids DST edges when the library normalizes the date
		if !tc.IsTradingDay(day.Add(12 * time.Hour)) {
			out = append(out, label)
		}
	}
	return out
}
