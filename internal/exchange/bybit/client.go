// Package bybit implements the trading venue against the Bybit v5 unified
// trading API, linear perpetuals only.
package bybit

import (
	"strconv"
	"sync"
	"time"

	bybit_api "github.com/bybit-exchange/bybit.go.api"
)

// Config holds the client credentials and environment selection.
type Config struct {
	APIKey    string
	APISecret string
	// Environment is "mainnet", "testnet" or "demo".
	Environment string
	// Quote is the quote coin appended to base symbols, "USDT" by default.
	Quote string
}

// Client wraps the Bybit API client with the symbol mapping and response
// parsing the engine needs. All calls use the linear category.
type Client struct {
	httpClient  *bybit_api.Client
	environment string
	quote       string

	mu           sync.Mutex
	sizeDecimals map[string]int
}

// NewClient creates a Bybit venue client for the configured environment.
func NewClient(cfg Config) *Client {
	var baseURL string
	switch cfg.Environment {
	case "demo":
		baseURL = "https://api-demo.bybit.com"
	case "testnet":
		baseURL = bybit_api.TESTNET
	default:
		baseURL = bybit_api.MAINNET
	}
	if cfg.Quote == "" {
		cfg.Quote = "USDT"
	}

	httpClient := bybit_api.NewBybitHttpClient(
		cfg.APIKey,
		cfg.APISecret,
		bybit_api.WithBaseURL(baseURL),
	)

	return &Client{
		httpClient:   httpClient,
		environment:  cfg.Environment,
		quote:        cfg.Quote,
		sizeDecimals: make(map[string]int),
	}
}

// Environment returns the environment the client trades against.
func (c *Client) Environment() string {
	if c.environment == "" {
		return "mainnet"
	}
	return c.environment
}

// instrument maps a base coin to the venue instrument name.
func (c *Client) instrument(symbol string) string {
	return symbol + c.quote
}

// baseCoin strips the quote suffix from a venue instrument name.
func (c *Client) baseCoin(instrument string) string {
	if len(instrument) > len(c.quote) && instrument[len(instrument)-len(c.quote):] == c.quote {
		return instrument[:len(instrument)-len(c.quote)]
	}
	return instrument
}

func formatQty(qty float64, decimals int) string {
	return strconv.FormatFloat(qty, 'f', decimals, 64)
}

func formatPrice(px float64) string {
	return strconv.FormatFloat(px, 'f', -1, 64)
}

func parseFloat64(s string) float64 {
	if s == "" {
		return 0
	}
	f, _ := strconv.ParseFloat(s, 64)
	return f
}

func parseInt64(s string) int64 {
	if s == "" {
		return 0
	}
	i, _ := strconv.ParseInt(s, 10, 64)
	return i
}

// parseTimestamp converts a milliseconds timestamp string to time.Time.
func parseTimestamp(ts string) time.Time {
	if ts == "" {
		return time.Time{}
	}
	return time.UnixMilli(parseInt64(ts))
}
