// Package risk turns trade signals into sized order plans and enforces the
// account-level exposure limits.
package risk

import (
	"github.com/zeedohq/reversal-bot/internal/indicators"
	"github.com/zeedohq/reversal-bot/internal/signal"
)

// Params holds the sizing knobs. TargetLossUSD is the dollar loss a full
// stop-out should cost at the planned entries.
type Params struct {
	TargetLossUSD     float64
	MaxSingleExposure float64
	MinOrderNotional  float64
	TwoEntries        bool
}

// Plan is a fully priced and sized order plan for one signal.
type Plan struct {
	Entry1Px float64
	Entry2Px float64
	StopPx   float64
	Qty1     float64
	Qty2     float64

	// TwoEntries mirrors the sizing mode the plan was built under.
	TwoEntries bool
}

// TotalQty is the position size once every entry fills.
func (p *Plan) TotalQty() float64 { return p.Qty1 + p.Qty2 }

// Size prices and sizes a signal. availableExposure is the global headroom
// left for new positions and sizeDecimals the venue's quantity precision.
// A nil plan means the signal cannot be traded at a meaningful size: either
// the stop distance is zero or the first entry falls below the minimum
// notional.
func Size(sig *signal.TradeSignal, p Params, availableExposure float64, sizeDecimals int) *Plan {
	entry1 := indicators.RoundPrice(sig.Trigger)
	entry2 := indicators.RoundPrice(sig.Entry2)
	stop := indicators.RoundPrice(sig.Stop)

	avgEntry := (entry1 + entry2) / 2
	anchor := entry1
	riskPerUnit := entry1 - stop
	if p.TwoEntries {
		anchor = avgEntry
		riskPerUnit = avgEntry - stop
	}
	if riskPerUnit < 0 {
		riskPerUnit = -riskPerUnit
	}
	if riskPerUnit == 0 {
		return nil
	}

	totalSize := p.TargetLossUSD / riskPerUnit

	limitNotional := min(availableExposure, p.MaxSingleExposure)
	if totalSize*entry1 > limitNotional {
		totalSize = limitNotional / anchor
	}

	var qty1, qty2 float64
	if p.TwoEntries {
		qty1 = indicators.RoundSize(totalSize/2, sizeDecimals)
		qty2 = indicators.RoundSize(totalSize/2, sizeDecimals)
	} else {
		qty1 = indicators.RoundSize(totalSize, sizeDecimals)
	}
	if qty1*entry1 < p.MinOrderNotional {
		return nil
	}

	return &Plan{
		Entry1Px:   entry1,
		Entry2Px:   entry2,
		StopPx:     stop,
		Qty1:       qty1,
		Qty2:       qty2,
		TwoEntries: p.TwoEntries,
	}
}

// Gate applies the account-level limits checked before any symbol scan.
type Gate struct {
	MaxPositions      int
	MaxGlobalExposure float64
	// MinHeadroom is the exposure slack below which scanning is pointless.
	MinHeadroom float64
}

// Check reports whether a new position may be opened and how much notional
// headroom remains for it.
func (g Gate) Check(busySymbols int, currentExposure float64) (float64, bool) {
	if busySymbols >= g.MaxPositions {
		return 0, false
	}
	available := g.MaxGlobalExposure - currentExposure
	if available <= g.MinHeadroom {
		return 0, false
	}
	return available, true
}
