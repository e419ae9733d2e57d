package intraday

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"aklineservice/internal/domain"
)

// HTTPClient is the concrete Client transport: a thin HTTP facade in
// front of the aggregated intraday vendor, stateless per call and safe
// for concurrent use across symbols.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPClient constructs an HTTPClient against baseURL.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPClient{baseURL: baseURL, httpClient: &http.Client{Timeout: timeout}}
}

type intradayRow struct {
	EndTS     string  `json:"end_ts"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	VolumeLot int64   `json:"volume_lot"`
	Amount    float64 `json:"amount"`
}

func (c *HTTPClient) fetch(ctx context.Context, path string, symbol domain.Symbol, res domain.Resolution) ([]Row, error) {
	q := url.Values{}
	q.Set("code", string(symbol))
	q.Set("period", periodParam(res))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build intraday request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("intraday request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("intraday request failed: status %d", resp.StatusCode)
	}

	var rows []intradayRow
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, fmt.Errorf("decode intraday response: %w", err)
	}

	out := make([]Row, 0, len(rows))
	for _, r := range rows {
		endTS, err := time.ParseInLocation("2006-01-02 15:04:05", r.EndTS, time.Local)
		if err != nil {
			continue
		}
		out = append(out, Row{
			EndTS: endTS, Open: r.Open, High: r.High, Low: r.Low, Close: r.Close,
			VolumeLot: r.VolumeLot, Amount: r.Amount,
		})
	}
	return out, nil
}

// FetchStock pulls today's candles for a stock symbol. The vendor serves
// day resolution from a different endpoint than minute resolutions.
func (c *HTTPClient) FetchStock(ctx context.Context, symbol domain.Symbol, res domain.Resolution) ([]Row, error) {
	if res.IsMinute() {
		return c.fetch(ctx, "/stock/minute", symbol, res)
	}
	return c.fetch(ctx, "/stock/daily", symbol, res)
}

// FetchIndex pulls today's candles for an index symbol. Callers must not
// invoke this for minute resolutions; Adapter.Pull guards that case and
// returns ErrUnsupported before reaching here.
func (c *HTTPClient) FetchIndex(ctx context.Context, symbol domain.Symbol, res domain.Resolution) ([]Row, error) {
	return c.fetch(ctx, "/index/daily", symbol, res)
}

func periodParam(res domain.Resolution) string {
	if !res.IsMinute() {
		return "day"
	}
	return fmt.Sprintf("%d", res.Minutes())
}

var _ Client = (*HTTPClient)(nil)
