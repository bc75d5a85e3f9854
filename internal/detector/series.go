// Package detector finds candlestick reversal patterns and RSI divergences
// on closed-candle series.
package detector

import (
	"github.com/zeedohq/reversal-bot/internal/indicators"
	"github.com/zeedohq/reversal-bot/pkg/types"
)

const (
	// LookbackDivergence is how many candles back a divergence pivot may sit.
	LookbackDivergence = 35
	// MinPivotDistance separates the signal candle from any pivot candidate.
	MinPivotDistance = 4
	// fractalSpan is the number of neighbours each side of a pivot that must
	// not exceed it.
	fractalSpan = 3

	minRangePct = 0.007
)

// Series bundles a candle history with the derived columns the detectors
// read. Build one per symbol/timeframe scan with NewSeries.
type Series struct {
	Candles      []types.OHLCV
	RSI          []float64
	AvgLowerWick []float64
	AvgUpperWick []float64
}

// NewSeries computes RSI and rolling wick averages for the given candles.
func NewSeries(candles []types.OHLCV, rsiPeriod, wickWindow int) *Series {
	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}
	avgLower, avgUpper := indicators.WickAverages(candles, wickWindow)
	return &Series{
		Candles:      candles,
		RSI:          indicators.RSISeries(closes, rsiPeriod),
		AvgLowerWick: avgLower,
		AvgUpperWick: avgUpper,
	}
}

// Len returns the number of candles in the series.
func (s *Series) Len() int { return len(s.Candles) }
