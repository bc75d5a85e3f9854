// Package binance implements the reference data source against the Binance
// USDⓈ-M futures public REST API. No credentials are required; only public
// market data endpoints are used.
package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/zeedohq/reversal-bot/internal/exchange"
	"github.com/zeedohq/reversal-bot/pkg/types"
)

const defaultBaseURL = "https://fapi.binance.com"

// Reference fetches candles and long/short ratio samples from Binance
// futures.
type Reference struct {
	client  *http.Client
	baseURL string
	quote   string
}

// NewReference creates a reference source. An empty baseURL selects the
// production endpoint.
func NewReference(baseURL string) *Reference {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Reference{
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		baseURL: baseURL,
		quote:   "USDT",
	}
}

// Candles fetches klines for a base coin, oldest first. The last candle may
// still be open.
func (r *Reference) Candles(ctx context.Context, symbol, timeframe string, limit int) ([]types.OHLCV, error) {
	if limit <= 0 {
		limit = 100
	}
	endpoint := fmt.Sprintf("%s/fapi/v1/klines?symbol=%s&interval=%s&limit=%d",
		r.baseURL, symbol+r.quote, url.QueryEscape(timeframe), limit)

	var klinesData [][]interface{}
	if err := r.getJSON(ctx, endpoint, &klinesData); err != nil {
		return nil, fmt.Errorf("failed to get klines: %w", err)
	}

	candles := make([]types.OHLCV, 0, len(klinesData))
	for _, kline := range klinesData {
		if len(kline) < 6 {
			continue
		}
		openTime, ok := kline[0].(float64)
		if !ok {
			continue
		}
		candles = append(candles, types.OHLCV{
			Timestamp: time.UnixMilli(int64(openTime)),
			Open:      parseField(kline[1]),
			High:      parseField(kline[2]),
			Low:       parseField(kline[3]),
			Close:     parseField(kline[4]),
			Volume:    parseField(kline[5]),
		})
	}
	return candles, nil
}

// LSRSamples fetches the global long/short account ratio for a base coin,
// oldest first. Fewer samples than requested means the symbol has no ratio
// history yet; callers treat that as no data.
func (r *Reference) LSRSamples(ctx context.Context, symbol, period string, limit int) ([]float64, error) {
	endpoint := fmt.Sprintf("%s/futures/data/globalLongShortAccountRatio?symbol=%s&period=%s&limit=%d",
		r.baseURL, symbol+r.quote, url.QueryEscape(period), limit)

	var ratioData []struct {
		Symbol         string `json:"symbol"`
		LongShortRatio string `json:"longShortRatio"`
		Timestamp      int64  `json:"timestamp"`
	}
	if err := r.getJSON(ctx, endpoint, &ratioData); err != nil {
		return nil, fmt.Errorf("failed to get long/short ratio: %w", err)
	}

	values := make([]float64, 0, len(ratioData))
	for _, entry := range ratioData {
		v, err := strconv.ParseFloat(entry.LongShortRatio, 64)
		if err != nil {
			return nil, fmt.Errorf("failed to parse ratio %q: %w", entry.LongShortRatio, err)
		}
		values = append(values, v)
	}
	return values, nil
}

func (r *Reference) getJSON(ctx context.Context, endpoint string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("%w: binance status 429", exchange.ErrRateLimited)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("API returned status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func parseField(field interface{}) float64 {
	s, ok := field.(string)
	if !ok {
		return 0
	}
	f, _ := strconv.ParseFloat(s, 64)
	return f
}
