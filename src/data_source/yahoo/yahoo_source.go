package yahoo

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"volume-observer/src/analysis"
	"volume-observer/src/interfaces"
	"volume-observer/src/logger"
	"volume-observer/src/models"
	"volume-observer/src/utils"
)

const defaultBaseURL = "https://query1.finance.yahoo.com/v8/finance/chart/"

// YahooVolumeSource pulls intraday bars from the Yahoo chart API and bins
// their volumes on the symbol's exchange session.
type YahooVolumeSource struct {
	Config   *models.MConfig
	Network  interfaces.INetworkManager
	Logger   *logger.Logger
	BaseURL  string
	Calendar func(symbol string) *utils.TradingCalendar
}

// -----------------------------------------------------------------------------

func NewYahooVolumeSource(cfg *models.MConfig, netMgr interfaces.INetworkManager, log *logger.Logger) *YahooVolumeSource {
	return &YahooVolumeSource{
		Config:   cfg,
		Network:  netMgr,
		Logger:   log,
		BaseURL:  defaultBaseURL,
		Calendar: utils.GetCalendar,
	}
}

// -----------------------------------------------------------------------------

func (s *YahooVolumeSource) Name() string {
	return "yahoo:" + s.Config.DataSource.Range + "@" + s.Config.DataSource.Interval
}

// -----------------------------------------------------------------------------

// Load fetches every symbol concurrently. Symbols that fail are logged and
// left out; the call fails only when nothing could be fetched.
func (s *YahooVolumeSource) Load(ctx context.Context, symbols []string) (map[string]*models.MVolumeMatrix, error) {
	if len(symbols) == 0 {
		symbols = s.Config.DataSource.Symbols
	}
	if len(symbols) == 0 {
		return make(map[string]*models.MVolumeMatrix), nil
	}

	results := make(map[string]*models.MVolumeMatrix)
	var mu sync.Mutex
	var wg sync.WaitGroup
	errs := make([]error, 0, len(symbols))

	limit := s.Config.Network.ConcurrentRequests
	if limit <= 0 {
		limit = 1
	}
	sem := make(chan struct{}, limit)

	for _, symbol := range symbols {
		wg.Add(1)
		go func(sym string) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return
			}
			defer func() { <-sem }()

			data, err := s.fetchSymbol(ctx, sym)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				s.Logger.Warning("Error fetching symbol %s: %v", sym, err)
				errs = append(errs, err)
				return
			}
			results[sym] = data
		}(symbol)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.Logger.Info("YahooFinance: Fetched %d/%d symbols successfully", len(results), len(symbols))
	if len(results) == 0 && len(errs) > 0 {
		return nil, fmt.Errorf("all fetches failed: %w", errs[0])
	}
	return results, nil
}

// -----------------------------------------------------------------------------

func (s *YahooVolumeSource) fetchSymbol(ctx context.Context, symbol string) (*models.MVolumeMatrix, error) {
	params := map[string]string{
		"interval":       s.Config.DataSource.Interval,
		"range":          s.Config.DataSource.Range,
		"includePrePost": "false",
	}

	respBytes, err := s.Network.Get(ctx, s.BaseURL+symbol, params)
	if err != nil {
		return nil, fmt.Errorf("network error for %s: %w", symbol, err)
	}

	bars, err := s.parseChartResponse(symbol, respBytes)
	if err != nil {
		return nil, err
	}

	ds := s.Config.DataSource
	r, err := analysis.NewVolumeResampler(s.Calendar(symbol), ds.SessionOpen, ds.SessionMinutes, ds.BinsPerDay)
	if err != nil {
		return nil, err
	}
	return r.BuildVolumeMatrix(symbol, bars)
}

// -----------------------------------------------------------------------------

type YahooChartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Symbol               string `json:"symbol"`
				ExchangeTimezoneName string `json:"exchangeTimezoneName"`
				DataGranularity      string `json:"dataGranularity"`
			} `json:"meta"`
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Volume []*float64 `json:"volume"` // null for bars without a print
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// -----------------------------------------------------------------------------

// parseChartResponse returns one pseudo-trade per bar, stamped at the bar
// start, so the resampler can sum bars into coarser bins.
func (s *YahooVolumeSource) parseChartResponse(symbol string, data []byte) ([]models.MTrade, error) {
	var resp YahooChartResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("json unmarshal failed: %w", err)
	}

	if resp.Chart.Error != nil {
		return nil, fmt.Errorf("yahoo api error: %s - %s", resp.Chart.Error.Code, resp.Chart.Error.Description)
	}
	if len(resp.Chart.Result) == 0 {
		return nil, fmt.Errorf("no result in response for %s", symbol)
	}

	result := resp.Chart.Result[0]
	if len(result.Timestamp) == 0 {
		return nil, fmt.Errorf("no timestamps in response for %s", symbol)
	}
	if len(result.Indicators.Quote) == 0 {
		return nil, fmt.Errorf("no quote data in response for %s", symbol)
	}
	volume := result.Indicators.Quote[0].Volume

	// 1. Alignment check
	if len(result.Timestamp) != len(volume) {
		return nil, fmt.Errorf("data alignment error for %s: %d timestamps, %d volumes", symbol, len(result.Timestamp), len(volume))
	}

	// 2. Cleaning; null bars stay missing
	bars := make([]models.MTrade, 0, len(volume))
	skipped := 0
	for i, ts := range result.Timestamp {
		if volume[i] == nil || *volume[i] < 0 {
			skipped++
			continue
		}
		bars = append(bars, models.MTrade{Symbol: symbol, Timestamp: ts, Volume: *volume[i]})
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("no valid data points for %s", symbol)
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].Timestamp < bars[j].Timestamp })

	first := time.Unix(bars[0].Timestamp, 0).UTC()
	last := time.Unix(bars[len(bars)-1].Timestamp, 0).UTC()
	s.Logger.Info("Fetched %s: %d bars (%d skipped) [%s -> %s] tz=%s",
		symbol, len(bars), skipped, first.Format(time.RFC3339), last.Format(time.RFC3339), result.Meta.ExchangeTimezoneName)
	return bars, nil
}
