package utils

import (
	"context"
	"sync"
	"time"

	"volume-observer/src/logger"
)

// MarketScheduler tracks the exchanges of a symbol list and reports when
// their regular sessions are open.
type MarketScheduler struct {
	Calendars map[string]*TradingCalendar
	Logger    *logger.Logger
	Now       func() time.Time
	mu        sync.RWMutex
}

// -----------------------------------------------------------------------------

func NewMarketScheduler(symbols []string, l *logger.Logger) *MarketScheduler {
	ms := &MarketScheduler{
		Calendars: make(map[string]*TradingCalendar),
		Logger:    l,
		Now:       time.Now,
	}
	ms.MapSymbolsToCalendars(symbols)
	return ms
}

// -----------------------------------------------------------------------------

// MapSymbolsToCalendars replaces the tracked symbols.
func (ms *MarketScheduler) MapSymbolsToCalendars(symbols []string) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	ms.Calendars = make(map[string]*TradingCalendar)
	for _, symbol := range symbols {
		if cal := GetCalendar(symbol); cal != nil {
			ms.Calendars[symbol] = cal
		}
	}

	ms.Logger.Info("MarketScheduler: Mapped %d symbols to %d unique calendars.",
		len(symbols), len(ms.uniqueCalendars()))
}

// UpdateSymbols updates the scheduler with a new list of symbols
func (ms *MarketScheduler) UpdateSymbols(symbols []string) {
	ms.MapSymbolsToCalendars(symbols)
}

// uniqueCalendars expects ms.mu to be held.
func (ms *MarketScheduler) uniqueCalendars() map[*TradingCalendar]struct{} {
	out := make(map[*TradingCalendar]struct{})
	for _, cal := range ms.Calendars {
		out[cal] = struct{}{}
	}
	return out
}

// -----------------------------------------------------------------------------

// AnyMarketOpen checks if ANY tracked market is currently open
func (ms *MarketScheduler) AnyMarketOpen() bool {
	now := ms.Now().UTC()

	ms.mu.RLock()
	defer ms.mu.RUnlock()

	for cal := range ms.uniqueCalendars() {
		if cal.IsOpenOnMinute(now) {
			return true
		}
	}
	return false
}

// -----------------------------------------------------------------------------

// WatchCloses polls every interval and calls onClose each time the last
// open tracked market closes. It returns when ctx is done.
func (ms *MarketScheduler) WatchCloses(ctx context.Context, interval time.Duration, onClose func()) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	wasOpen := ms.AnyMarketOpen()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			open := ms.AnyMarketOpen()
			if wasOpen && !open {
				ms.Logger.Info("MarketScheduler: all tracked markets closed")
				onClose()
			}
			wasOpen = open
		}
	}
}
