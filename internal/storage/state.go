// Package storage persists the bot's trade state between restarts: the
// per-symbol trade trackers, the last-signal history used for dedup, and
// the realized-trade ledger built from exchange fills.
package storage

import "time"

// OriginManual marks trackers created for positions the bot did not open.
const OriginManual = "MANUAL"

// TradeTracker holds everything the order lifecycle needs to manage one
// symbol's trade from placement to close.
type TradeTracker struct {
	Symbol   string `json:"symbol"`
	Side     string `json:"side"`
	Timeframe string `json:"timeframe,omitempty"`

	PlacedAt time.Time `json:"placed_at"`
	SignalTS int64     `json:"signal_ts,omitempty"`
	TradeID  string    `json:"trade_id,omitempty"`

	// Setup geometry captured at signal time.
	PlannedStop float64 `json:"planned_stop,omitempty"`
	TechBase    float64 `json:"tech_base,omitempty"`
	SetupHigh   float64 `json:"setup_high,omitempty"`
	SetupLow    float64 `json:"setup_low,omitempty"`

	EntryPx   float64 `json:"entry_px,omitempty"`
	Qty       float64 `json:"qty,omitempty"`
	QtyEntry1 float64 `json:"qty_entry_1,omitempty"`
	QtyEntry2 float64 `json:"qty_entry_2,omitempty"`

	Entry2Px     float64 `json:"entry2_px,omitempty"`
	Entry2Qty    float64 `json:"entry2_qty,omitempty"`
	Entry2Placed bool    `json:"entry2_placed,omitempty"`

	PnlRealized float64 `json:"pnl_realized"`
	LastSize    float64 `json:"last_size"`

	Target1CancelDone bool `json:"target1_cancel_done,omitempty"`
	BreakevenMoved    bool `json:"breakeven_moved,omitempty"`

	// Manual trackers carry the live position snapshot instead of a plan.
	Origin   string    `json:"origin,omitempty"`
	Entry    float64   `json:"entry,omitempty"`
	Size     float64   `json:"size,omitempty"`
	OpenedAt time.Time `json:"opened_at,omitempty"`
}

// IsManual reports whether the tracker was created for an externally
// opened position rather than a bot signal.
func (t *TradeTracker) IsManual() bool {
	return t.Origin == OriginManual
}

// LedgerEntry is one realized fill group (one closing order) in the
// trade history ledger.
type LedgerEntry struct {
	OID       string    `json:"oid"`
	Symbol    string    `json:"symbol"`
	Timeframe string    `json:"timeframe,omitempty"`
	TradeID   string    `json:"trade_id,omitempty"`
	Side      string    `json:"side,omitempty"`
	PnlUSD    float64   `json:"pnl_usd"`
	Time      time.Time `json:"time"`
	NumFills  int       `json:"num_fills"`
}

// HistoryMap records the last acted-on signal timestamp (unix seconds)
// per symbol and timeframe, so a re-detected signal is not traded twice.
type HistoryMap map[string]map[string]int64

// Last returns the recorded signal timestamp for symbol/timeframe, or 0.
func (h HistoryMap) Last(symbol, timeframe string) int64 {
	if tfMap, ok := h[symbol]; ok {
		return tfMap[timeframe]
	}
	return 0
}

// Set records the signal timestamp for symbol/timeframe.
func (h HistoryMap) Set(symbol, timeframe string, ts int64) {
	tfMap, ok := h[symbol]
	if !ok {
		tfMap = make(map[string]int64)
		h[symbol] = tfMap
	}
	tfMap[timeframe] = ts
}

// Store is the persistence surface the engine depends on.
type Store interface {
	LoadTrackers() (map[string]*TradeTracker, error)
	SaveTrackers(trackers map[string]*TradeTracker) error

	LoadHistory() (HistoryMap, error)
	SaveHistory(history HistoryMap) error

	LoadLedger() ([]LedgerEntry, error)
	AppendLedger(entries []LedgerEntry) error
}
