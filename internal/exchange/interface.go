// Package exchange defines the venue-facing surface of the bot: the order
// and position model, the trading venue interface and the read-only
// reference data source used for signal detection.
package exchange

import (
	"context"
	"errors"
	"time"

	"github.com/zeedohq/reversal-bot/pkg/types"
)

// ErrRateLimited marks venue responses that hit the request rate limit.
// Callers back off the whole cycle instead of retrying a single call.
var ErrRateLimited = errors.New("rate limited")

// OrderSide is the venue-level order direction.
type OrderSide string

const (
	Buy  OrderSide = "Buy"
	Sell OrderSide = "Sell"
)

// Opposite returns the other side.
func (s OrderSide) Opposite() OrderSide {
	if s == Buy {
		return Sell
	}
	return Buy
}

// OrderRequest describes an order to submit. Price zero means a market
// order; a trigger price turns the order conditional, which is how
// protective stops are expressed.
type OrderRequest struct {
	Symbol       string
	Side         OrderSide
	Qty          float64
	Price        float64
	TriggerPrice float64
	ReduceOnly   bool
	LinkID       string
}

// Order is a live or historical order as reported by the venue.
type Order struct {
	ID           string
	LinkID       string
	Symbol       string
	Side         OrderSide
	Qty          float64
	Price        float64
	TriggerPrice float64
	ReduceOnly   bool
	FilledQty    float64
	AvgPrice     float64
	Status       string
	CreatedAt    time.Time
}

// IsStop reports whether the order is a resting protective trigger rather
// than an entry or take-profit limit.
func (o Order) IsStop() bool {
	return o.TriggerPrice > 0 && o.ReduceOnly
}

// Position is an open perpetual position.
type Position struct {
	Symbol        string
	Side          OrderSide
	Size          float64
	EntryPrice    float64
	MarkPrice     float64
	UnrealizedPnl float64
	StopLoss      float64
	TakeProfit    float64
}

// Fill is one realized-PnL record. PnL is net of trading fees.
type Fill struct {
	Symbol  string
	OrderID string
	Side    OrderSide
	Qty     float64
	Price   float64
	Pnl     float64
	Time    time.Time
}

// AccountState is the venue snapshot an engine cycle works from.
type AccountState struct {
	Positions  []Position
	OpenOrders []Order
	Equity     float64
}

// Venue is the trading exchange. Symbols are base coins ("BTC"); each
// implementation maps them to its own instrument naming.
type Venue interface {
	Candles(ctx context.Context, symbol, timeframe string, limit int) ([]types.OHLCV, error)
	MidPrices(ctx context.Context) (map[string]float64, error)
	Change24h(ctx context.Context, symbol string) (float64, error)
	AccountState(ctx context.Context) (*AccountState, error)
	SubmitOrder(ctx context.Context, req OrderRequest) (*Order, error)
	CancelOrder(ctx context.Context, symbol, orderID string) error
	CancelAllOrders(ctx context.Context, symbol string) error
	ClosedPnL(ctx context.Context, symbol string, since time.Time) ([]Fill, error)
	SizeDecimals(ctx context.Context, symbol string) (int, error)
}

// ReferenceSource supplies the market data signals are detected on. It is
// separate from the venue on purpose: detection quality depends on the
// deepest market, execution happens wherever the account lives.
type ReferenceSource interface {
	Candles(ctx context.Context, symbol, timeframe string, limit int) ([]types.OHLCV, error)
	LSRSamples(ctx context.Context, symbol, period string, limit int) ([]float64, error)
}
