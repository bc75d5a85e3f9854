package types

import "time"

// OHLCV is one closed candle of a timeframe, ordered ascending by Timestamp.
type OHLCV struct {
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
	Timestamp time.Time
}

// BodyLow returns the lower boundary of the candle body.
func (c OHLCV) BodyLow() float64 {
	if c.Open < c.Close {
		return c.Open
	}
	return c.Close
}

// BodyHigh returns the upper boundary of the candle body.
func (c OHLCV) BodyHigh() float64 {
	if c.Open > c.Close {
		return c.Open
	}
	return c.Close
}

// Body returns the absolute body size.
func (c OHLCV) Body() float64 {
	return c.BodyHigh() - c.BodyLow()
}

// LowerWick returns the distance from the body low to the candle low.
func (c OHLCV) LowerWick() float64 {
	return c.BodyLow() - c.Low
}

// UpperWick returns the distance from the candle high to the body high.
func (c OHLCV) UpperWick() float64 {
	return c.High - c.BodyHigh()
}

// IsBullish reports whether the candle closed above its open.
func (c OHLCV) IsBullish() bool {
	return c.Close > c.Open
}

type Ticker struct {
	Symbol    string
	Price     float64
	Change24h float64
	Timestamp time.Time
}
