package network

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"volume-observer/src/logger"
	"volume-observer/src/models"
)

// userAgents rotate per request; some quote endpoints throttle the Go default.
var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64; rv:125.0) Gecko/20100101 Firefox/125.0",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
}

type AsyncNetworkManager struct {
	Config    *models.MConfig
	Client    *http.Client
	Logger    *logger.Logger
	BaseDelay time.Duration // first retry delay, squared growth after that

	agent atomic.Uint32
}

// -----------------------------------------------------------------------------

func NewAsyncNetworkManager(cfg *models.MConfig, log *logger.Logger) *AsyncNetworkManager {
	return &AsyncNetworkManager{
		Config: cfg,
		Client: &http.Client{
			Timeout: time.Duration(cfg.Network.RequestTimeout) * time.Second,
		},
		Logger:    log,
		BaseDelay: time.Second,
	}
}

// -----------------------------------------------------------------------------

func (nm *AsyncNetworkManager) userAgent() string {
	i := nm.agent.Add(1)
	return userAgents[int(i)%len(userAgents)]
}

// -----------------------------------------------------------------------------

// Get performs a GET request with retries. 429 and 403 answers are retried
// like transport errors; other non-200 statuses are retried too since
// quote endpoints answer 5xx under load.
func (nm *AsyncNetworkManager) Get(ctx context.Context, urlStr string, params map[string]string) ([]byte, error) {
	reqUrl, err := url.Parse(urlStr)
	if err != nil {
		return nil, err
	}

	q := reqUrl.Query()
	for k, v := range params {
		q.Add(k, v)
	}
	reqUrl.RawQuery = q.Encode()

	finalUrl := reqUrl.String()

	maxRetries := nm.Config.Network.MaxRetries
	var lastErr error

	for i := 0; i <= maxRetries; i++ {
		if i > 0 {
			select {
			case <-time.After(time.Duration(i*i) * nm.BaseDelay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		body, status, err := nm.do(ctx, finalUrl)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			nm.Logger.Info("Request failed (attempt %d/%d): %v", i+1, maxRetries+1, err)
			continue
		}

		switch {
		case status == http.StatusTooManyRequests || status == http.StatusForbidden:
			lastErr = fmt.Errorf("blocked (status %d)", status)
			nm.Logger.Info("Request blocked (%d), backing off", status)
			continue
		case status != http.StatusOK:
			lastErr = fmt.Errorf("bad status: %d", status)
			nm.Logger.Info("Bad status %d", status)
			continue
		}
		return body, nil
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// -----------------------------------------------------------------------------

func (nm *AsyncNetworkManager) do(ctx context.Context, finalUrl string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, finalUrl, nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("User-Agent", nm.userAgent())

	resp, err := nm.Client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, resp.StatusCode, nil
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, err
	}
	return body, resp.StatusCode, nil
}
