// Package reporting turns the realized-trade ledger into console tables
// and spreadsheet exports.
package reporting

import (
	"sort"
	"time"

	"github.com/zeedohq/reversal-bot/internal/storage"
)

// Summary aggregates the ledger into per-trade results.
type Summary struct {
	From time.Time
	To   time.Time

	TotalPnl      float64
	Orders        int
	Trades        int
	WinningTrades int
	LosingTrades  int

	BySymbol []SymbolStats
	ByTrade  []TradeStats
}

// SymbolStats is the aggregate for one symbol.
type SymbolStats struct {
	Symbol string
	Pnl    float64
	Orders int
}

// TradeStats is one trade: all closing orders sharing a trade ID.
type TradeStats struct {
	TradeID   string
	Symbol    string
	Timeframe string
	Side      string
	Pnl       float64
	Orders    int
	ClosedAt  time.Time
}

// WinRate returns winning trades over decided trades, 0..1.
func (s *Summary) WinRate() float64 {
	decided := s.WinningTrades + s.LosingTrades
	if decided == 0 {
		return 0
	}
	return float64(s.WinningTrades) / float64(decided)
}

// Summarize folds ledger entries inside [from, to] into a Summary. Zero
// bounds mean unbounded.
func Summarize(ledger []storage.LedgerEntry, from, to time.Time) *Summary {
	s := &Summary{From: from, To: to}

	bySymbol := make(map[string]*SymbolStats)
	byTrade := make(map[string]*TradeStats)

	for _, entry := range ledger {
		if !from.IsZero() && entry.Time.Before(from) {
			continue
		}
		if !to.IsZero() && entry.Time.After(to) {
			continue
		}

		s.TotalPnl += entry.PnlUSD
		s.Orders++

		sym := bySymbol[entry.Symbol]
		if sym == nil {
			sym = &SymbolStats{Symbol: entry.Symbol}
			bySymbol[entry.Symbol] = sym
		}
		sym.Pnl += entry.PnlUSD
		sym.Orders++

		key := entry.TradeID
		if key == "" {
			key = entry.OID
		}
		trade := byTrade[key]
		if trade == nil {
			trade = &TradeStats{
				TradeID:   key,
				Symbol:    entry.Symbol,
				Timeframe: entry.Timeframe,
				Side:      entry.Side,
			}
			byTrade[key] = trade
		}
		trade.Pnl += entry.PnlUSD
		trade.Orders++
		if entry.Time.After(trade.ClosedAt) {
			trade.ClosedAt = entry.Time
		}
		if trade.Timeframe == "" {
			trade.Timeframe = entry.Timeframe
		}
	}

	for _, trade := range byTrade {
		s.Trades++
		if trade.Pnl > 0 {
			s.WinningTrades++
		} else if trade.Pnl < 0 {
			s.LosingTrades++
		}
		s.ByTrade = append(s.ByTrade, *trade)
	}
	sort.Slice(s.ByTrade, func(i, j int) bool {
		return s.ByTrade[i].ClosedAt.Before(s.ByTrade[j].ClosedAt)
	})

	for _, sym := range bySymbol {
		s.BySymbol = append(s.BySymbol, *sym)
	}
	sort.Slice(s.BySymbol, func(i, j int) bool {
		return s.BySymbol[i].Pnl > s.BySymbol[j].Pnl
	})

	return s
}
