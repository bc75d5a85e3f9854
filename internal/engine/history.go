package engine

import (
	"context"
	"fmt"
	"log"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/zeedohq/reversal-bot/internal/exchange"
	"github.com/zeedohq/reversal-bot/internal/monitoring"
	"github.com/zeedohq/reversal-bot/internal/notifications"
	"github.com/zeedohq/reversal-bot/internal/storage"
)

const (
	fillLookback = 24 * time.Hour

	// Attribution windows around a fill, widest to narrowest claim.
	trackerWindow = 24 * time.Hour
	ledgerWindow  = 72 * time.Hour
	orphanWindow  = 12 * time.Hour
)

// syncHistory pulls realized fills from the venue, attributes each closing
// order to a trade and appends it to the ledger. Fills arrive as micro-fills
// sharing an order ID; one ledger entry covers the whole order.
func (e *Engine) syncHistory(ctx context.Context, state *exchange.AccountState) {
	symbols := make(map[string]bool)
	for _, sym := range e.cfg.Strategy.Symbols {
		symbols[sym] = true
	}
	for sym := range e.trackers {
		symbols[sym] = true
	}

	since := e.now().Add(-fillLookback)
	byOrder := make(map[string][]exchange.Fill)
	for sym := range symbols {
		fills, err := e.venue.ClosedPnL(ctx, sym, since)
		if err != nil {
			log.Printf("[%s] closed pnl fetch: %v", sym, err)
			monitoring.RecordError("history")
			continue
		}
		for _, fill := range fills {
			if fill.OrderID == "" || e.oidsSeen[fill.OrderID] {
				continue
			}
			byOrder[fill.OrderID] = append(byOrder[fill.OrderID], fill)
		}
	}
	if len(byOrder) == 0 {
		return
	}

	oids := make([]string, 0, len(byOrder))
	for oid := range byOrder {
		oids = append(oids, oid)
	}
	sort.Slice(oids, func(i, j int) bool {
		return byOrder[oids[i]][0].Time.Before(byOrder[oids[j]][0].Time)
	})

	stillOpen := make(map[string]bool)
	for _, p := range state.Positions {
		if p.Size != 0 {
			stillOpen[p.Symbol] = true
		}
	}

	var newEntries []storage.LedgerEntry
	for _, oid := range oids {
		fills := byOrder[oid]
		base := fills[0]
		sym := base.Symbol

		pnlNet := 0.0
		for _, fill := range fills {
			pnlNet += fill.Pnl
		}

		t := e.trackers[sym]
		tf, tradeID := e.attribute(sym, base.Time, newEntries)

		if t != nil {
			t.PnlRealized += pnlNet
			e.saveTrackers()
		}

		var side string
		switch {
		case t != nil && t.Side != "":
			side = strings.ToUpper(t.Side)
		case base.Side == exchange.Buy:
			// The fill is the closing action; a buy exit closed a short.
			side = "SHORT"
		default:
			side = "LONG"
		}

		entry := storage.LedgerEntry{
			OID:       oid,
			Symbol:    sym,
			Timeframe: tf,
			TradeID:   tradeID,
			Side:      side,
			PnlUSD:    math.Round(pnlNet*1e6) / 1e6,
			Time:      base.Time,
			NumFills:  len(fills),
		}
		newEntries = append(newEntries, entry)
		e.oidsSeen[oid] = true
		monitoring.RecordRealizedPnl(sym, pnlNet)
		if e.activity != nil {
			e.activity.LogRealized(sym, tf, tradeID, pnlNet, len(fills))
		}

		recent := e.now().Sub(base.Time) < 24*time.Hour
		if pnlNet != 0 && recent {
			e.notify(notifications.PartialMessage(sym, pnlNet))
		}
		if !stillOpen[sym] && recent {
			total := pnlNet
			if t != nil {
				total = t.PnlRealized
			}
			e.notify(notifications.TradeClosedMessage(sym, total))
		}
	}

	if len(newEntries) == 0 {
		return
	}
	e.ledger = append(e.ledger, newEntries...)
	if err := e.store.AppendLedger(newEntries); err != nil {
		log.Printf("failed to append ledger: %v", err)
		monitoring.RecordError("storage")
	}
	totalFills := 0
	for _, entry := range newEntries {
		totalFills += entry.NumFills
	}
	log.Printf("history: %d orders (%d fills) added to ledger", len(newEntries), totalFills)
}

// attribute resolves the timeframe and trade ID a closing order belongs to.
// The live tracker wins when the fill is near its placement; otherwise a
// recent ledger entry for the same symbol is reused; orphans are grouped
// into manual trades by symbol and a 12 hour window.
func (e *Engine) attribute(sym string, fillTime time.Time, pending []storage.LedgerEntry) (string, string) {
	if t := e.trackers[sym]; t != nil {
		if absDuration(fillTime.Sub(t.PlacedAt)) < trackerWindow && t.Timeframe != "" && t.TradeID != "" {
			return t.Timeframe, t.TradeID
		}
	}

	for i := len(e.ledger) - 1; i >= 0; i-- {
		past := e.ledger[i]
		if past.Symbol != sym {
			continue
		}
		if absDuration(fillTime.Sub(past.Time)) < ledgerWindow && past.Timeframe != "" && past.TradeID != "" {
			return past.Timeframe, past.TradeID
		}
	}

	for _, lists := range [][]storage.LedgerEntry{e.ledger, pending} {
		for _, past := range lists {
			if past.Symbol != sym || past.Time.IsZero() {
				continue
			}
			if absDuration(fillTime.Sub(past.Time)) <= orphanWindow && strings.HasPrefix(past.TradeID, "MANUAL_") {
				return "", past.TradeID
			}
		}
	}
	return "", fmt.Sprintf("MANUAL_%s_%d", sym, fillTime.UnixMilli())
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
