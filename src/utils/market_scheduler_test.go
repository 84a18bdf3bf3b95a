package utils

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"volume-observer/src/logger"

	"github.com/stretchr/testify/assert"
)

func fallbackScheduler(t *testing.T) (*MarketScheduler, *time.Location) {
	t.Helper()
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skip("tzdata not available")
	}
	log := logger.NewLogger(nil, "sched")
	log.SetOutput(io.Discard)
	cal := &TradingCalendar{Fallback: true, Timezone: loc}
	return &MarketScheduler{
		Calendars: map[string]*TradingCalendar{"AAPL": cal, "MSFT": cal},
		Logger:    log,
		Now:       time.Now,
	}, loc
}

func TestAnyMarketOpen(t *testing.T) {
	ms, loc := fallbackScheduler(t)

	ms.Now = func() time.Time { return time.Date(2024, 5, 6, 10, 0, 0, 0, loc) }
	assert.True(t, ms.AnyMarketOpen())

	ms.Now = func() time.Time { return time.Date(2024, 5, 6, 16, 30, 0, 0, loc) }
	assert.False(t, ms.AnyMarketOpen())

	ms.Now = func() time.Time { return time.Date(2024, 5, 4, 10, 0, 0, 0, loc) } // Saturday
	assert.False(t, ms.AnyMarketOpen())

	empty := &MarketScheduler{Calendars: map[string]*TradingCalendar{}, Now: time.Now}
	assert.False(t, empty.AnyMarketOpen())
}

func TestWatchClosesFiresOnTransition(t *testing.T) {
	ms, loc := fallbackScheduler(t)

	open := time.Date(2024, 5, 6, 15, 0, 0, 0, loc)
	closed := time.Date(2024, 5, 6, 17, 0, 0, 0, loc)
	sequence := []time.Time{open, open, closed, closed, open, closed}

	var mu sync.Mutex
	step := 0
	ms.Now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		if step >= len(sequence) {
			return closed
		}
		now := sequence[step]
		step++
		return now
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	fired := make(chan struct{}, 4)
	done := make(chan struct{})
	go func() {
		ms.WatchCloses(ctx, time.Millisecond, func() { fired <- struct{}{} })
		close(done)
	}()

	for i := 0; i < 2; i++ {
		select {
		case <-fired:
		case <-time.After(2 * time.Second):
			t.Fatalf("close %d not reported", i+1)
		}
	}
	cancel()
	<-done
	assert.Empty(t, fired)
}
