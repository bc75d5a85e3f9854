package bybit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/zeedohq/reversal-bot/pkg/types"
)

const category = "linear"

// intervalFor maps timeframe notation ("5m", "1h", "1d") to Bybit kline
// intervals.
func intervalFor(timeframe string) (string, error) {
	switch timeframe {
	case "1m":
		return "1", nil
	case "3m":
		return "3", nil
	case "5m":
		return "5", nil
	case "15m":
		return "15", nil
	case "30m":
		return "30", nil
	case "1h":
		return "60", nil
	case "2h":
		return "120", nil
	case "4h":
		return "240", nil
	case "6h":
		return "360", nil
	case "12h":
		return "720", nil
	case "1d":
		return "D", nil
	}
	return "", fmt.Errorf("unsupported timeframe %q", timeframe)
}

// Candles fetches klines for a base coin, oldest first. The last candle may
// still be open; callers decide whether to drop it.
func (c *Client) Candles(ctx context.Context, symbol, timeframe string, limit int) ([]types.OHLCV, error) {
	interval, err := intervalFor(timeframe)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 200
	}
	if limit > 1000 {
		limit = 1000
	}

	params := map[string]interface{}{
		"category": category,
		"symbol":   c.instrument(symbol),
		"interval": interval,
		"limit":    limit,
	}

	result, err := c.httpClient.NewUtaBybitServiceWithParams(params).GetMarketKline(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get klines: %w", err)
	}
	serverResp, err := checkResponse(result)
	if err != nil {
		return nil, err
	}

	resultBytes, err := json.Marshal(serverResp.Result)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal kline result: %w", err)
	}

	var klineResult struct {
		Symbol   string     `json:"symbol"`
		Category string     `json:"category"`
		List     [][]string `json:"list"`
	}
	if err := json.Unmarshal(resultBytes, &klineResult); err != nil {
		return nil, fmt.Errorf("failed to unmarshal kline result: %w", err)
	}

	// Bybit returns newest first: [startTime, open, high, low, close, volume, turnover].
	candles := make([]types.OHLCV, 0, len(klineResult.List))
	for i := len(klineResult.List) - 1; i >= 0; i-- {
		item := klineResult.List[i]
		if len(item) < 7 {
			continue
		}
		candles = append(candles, types.OHLCV{
			Timestamp: parseTimestamp(item[0]),
			Open:      parseFloat64(item[1]),
			High:      parseFloat64(item[2]),
			Low:       parseFloat64(item[3]),
			Close:     parseFloat64(item[4]),
			Volume:    parseFloat64(item[5]),
		})
	}
	return candles, nil
}

type tickerList struct {
	Category string `json:"category"`
	List     []struct {
		Symbol       string `json:"symbol"`
		LastPrice    string `json:"lastPrice"`
		MarkPrice    string `json:"markPrice"`
		Price24hPcnt string `json:"price24hPcnt"`
	} `json:"list"`
}

func (c *Client) tickers(ctx context.Context, symbol string) (*tickerList, error) {
	params := map[string]interface{}{"category": category}
	if symbol != "" {
		params["symbol"] = c.instrument(symbol)
	}

	result, err := c.httpClient.NewUtaBybitServiceWithParams(params).GetMarketTickers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get tickers: %w", err)
	}
	serverResp, err := checkResponse(result)
	if err != nil {
		return nil, err
	}

	resultBytes, err := json.Marshal(serverResp.Result)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal ticker result: %w", err)
	}
	var tickers tickerList
	if err := json.Unmarshal(resultBytes, &tickers); err != nil {
		return nil, fmt.Errorf("failed to unmarshal ticker result: %w", err)
	}
	return &tickers, nil
}

// MidPrices returns mark prices keyed by base coin for every linear
// instrument quoted in the configured quote coin.
func (c *Client) MidPrices(ctx context.Context) (map[string]float64, error) {
	tickers, err := c.tickers(ctx, "")
	if err != nil {
		return nil, err
	}

	mids := make(map[string]float64, len(tickers.List))
	for _, t := range tickers.List {
		if !strings.HasSuffix(t.Symbol, c.quote) {
			continue
		}
		mids[c.baseCoin(t.Symbol)] = parseFloat64(t.MarkPrice)
	}
	return mids, nil
}

// Change24h returns the 24h price change of a base coin in percent.
func (c *Client) Change24h(ctx context.Context, symbol string) (float64, error) {
	tickers, err := c.tickers(ctx, symbol)
	if err != nil {
		return 0, err
	}
	if len(tickers.List) == 0 {
		return 0, fmt.Errorf("no ticker data for %s", c.instrument(symbol))
	}
	// Price24hPcnt comes as a fraction, e.g. "0.0314".
	return parseFloat64(tickers.List[0].Price24hPcnt) * 100, nil
}

// SizeDecimals returns the quantity precision of a base coin's instrument,
// derived from its lot size step. Results are cached for the process
// lifetime; lot filters change rarely enough that a restart is acceptable.
func (c *Client) SizeDecimals(ctx context.Context, symbol string) (int, error) {
	c.mu.Lock()
	cached, ok := c.sizeDecimals[symbol]
	c.mu.Unlock()
	if ok {
		return cached, nil
	}

	params := map[string]interface{}{
		"category": category,
		"symbol":   c.instrument(symbol),
	}

	result, err := c.httpClient.NewUtaBybitServiceWithParams(params).GetInstrumentInfo(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get instrument info: %w", err)
	}
	serverResp, err := checkResponse(result)
	if err != nil {
		return 0, err
	}

	resultBytes, err := json.Marshal(serverResp.Result)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal instrument result: %w", err)
	}

	var instrumentResult struct {
		List []struct {
			Symbol        string `json:"symbol"`
			LotSizeFilter struct {
				QtyStep     string `json:"qtyStep"`
				MinOrderQty string `json:"minOrderQty"`
			} `json:"lotSizeFilter"`
		} `json:"list"`
	}
	if err := json.Unmarshal(resultBytes, &instrumentResult); err != nil {
		return 0, fmt.Errorf("failed to unmarshal instrument result: %w", err)
	}
	if len(instrumentResult.List) == 0 {
		return 0, fmt.Errorf("instrument %s not found", c.instrument(symbol))
	}

	decimals := stepDecimals(instrumentResult.List[0].LotSizeFilter.QtyStep)
	c.mu.Lock()
	c.sizeDecimals[symbol] = decimals
	c.mu.Unlock()
	return decimals, nil
}

// stepDecimals counts the decimal places of a lot step like "0.001".
func stepDecimals(step string) int {
	dot := strings.IndexByte(step, '.')
	if dot < 0 {
		return 0
	}
	frac := strings.TrimRight(step[dot+1:], "0")
	return len(frac)
}
