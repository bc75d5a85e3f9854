package engine

import (
	"context"
	"fmt"
	"log"
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/zeedohq/reversal-bot/internal/exchange"
	"github.com/zeedohq/reversal-bot/internal/indicators"
	"github.com/zeedohq/reversal-bot/internal/monitoring"
	"github.com/zeedohq/reversal-bot/internal/notifications"
	"github.com/zeedohq/reversal-bot/internal/signal"
	"github.com/zeedohq/reversal-bot/internal/storage"
)

const (
	sizeChangeTolerance = 0.001
	breakevenOffsetPct  = 0.0002
)

// qtyMatches compares a position size against an expected entry quantity
// with a tolerance for lot rounding.
func qtyMatches(expected, actual float64) bool {
	if expected <= 0 {
		return false
	}
	tolerance := math.Max(expected*0.001, 0.01)
	return math.Abs(actual-expected) <= tolerance
}

// manage reconciles every tracked trade against the account snapshot:
// target-1 cancellation, tracker eviction, entry confirmation, protective
// stop and take-profit placement, the second entry, break-even and manual
// trade detection.
func (e *Engine) manage(ctx context.Context, state *exchange.AccountState, mids map[string]float64) {
	active := make(map[string]bool)
	for _, p := range state.Positions {
		if p.Size != 0 {
			active[p.Symbol] = true
		}
	}
	pendingEntry := make(map[string]bool)
	ordersBySymbol := make(map[string][]exchange.Order)
	for _, o := range state.OpenOrders {
		ordersBySymbol[o.Symbol] = append(ordersBySymbol[o.Symbol], o)
		if !o.ReduceOnly {
			pendingEntry[o.Symbol] = true
		}
	}

	e.cancelOnTarget1(ctx, active, ordersBySymbol, mids)
	e.evictClosed(ctx, active, pendingEntry, ordersBySymbol)

	positions := make([]exchange.Position, len(state.Positions))
	copy(positions, state.Positions)
	sort.Slice(positions, func(i, j int) bool { return positions[i].Symbol < positions[j].Symbol })

	for _, pos := range positions {
		if pos.Size == 0 {
			continue
		}
		e.managePosition(ctx, pos, ordersBySymbol[pos.Symbol], mids)
	}
}

// cancelOnTarget1 cancels pending entry orders once price has touched the
// first target, so a retrace cannot fill the second entry of a trade that
// already paid out.
func (e *Engine) cancelOnTarget1(ctx context.Context, active map[string]bool, ordersBySymbol map[string][]exchange.Order, mids map[string]float64) {
	target1 := e.cfg.Target1Level()

	for _, sym := range e.trackerSymbols() {
		t := e.trackers[sym]
		if t.Target1CancelDone || t.TechBase <= 0 {
			continue
		}
		mid := mids[sym]
		if mid <= 0 {
			continue
		}

		touched := false
		if t.Side == string(signal.Long) && t.SetupHigh > 0 {
			touched = mid >= t.SetupHigh+t.TechBase*target1
		} else if t.Side == string(signal.Short) && t.SetupLow > 0 {
			touched = mid <= t.SetupLow-t.TechBase*target1
		}
		if !touched {
			continue
		}

		for _, o := range ordersBySymbol[sym] {
			if o.ReduceOnly {
				continue
			}
			if err := e.venue.CancelOrder(ctx, sym, o.ID); err != nil {
				log.Printf("[%s] cancel on target 1: %v", sym, err)
			}
		}

		t.Target1CancelDone = true
		if !active[sym] {
			delete(e.trackers, sym)
			e.saveTrackers()
			continue
		}
		e.saveTrackers()
		e.notify(notifications.Target1Message(sym))
	}
}

// evictClosed drops trackers whose trade no longer exists on the venue and
// sweeps any orders left behind.
func (e *Engine) evictClosed(ctx context.Context, active, pendingEntry map[string]bool, ordersBySymbol map[string][]exchange.Order) {
	for _, sym := range e.trackerSymbols() {
		if active[sym] || pendingEntry[sym] {
			continue
		}
		for _, o := range ordersBySymbol[sym] {
			if err := e.venue.CancelOrder(ctx, sym, o.ID); err != nil {
				log.Printf("[%s] sweep order %s: %v", sym, o.ID, err)
			}
		}
		log.Printf("[%s] trade closed, tracker removed", sym)
		delete(e.trackers, sym)
		e.saveTrackers()
	}
}

func (e *Engine) managePosition(ctx context.Context, pos exchange.Position, myOrders []exchange.Order, mids map[string]float64) {
	sym := pos.Symbol
	size := math.Abs(pos.Size)
	entry := pos.EntryPrice
	direction := positionDirection(pos)

	t := e.trackers[sym]
	isManual := t == nil || t.Timeframe == ""
	botTrade := t != nil && t.Timeframe != "" && !t.IsManual()

	if botTrade {
		e.confirmEntries(ctx, t, sym, direction, size, entry, myOrders)
	}

	mid := mids[sym]
	if mid <= 0 {
		mid = entry
	}

	hasStop := false
	hasTP := false
	var stopOrder *exchange.Order
	for i := range myOrders {
		o := myOrders[i]
		if o.IsStop() {
			hasStop = true
			if stopOrder == nil {
				stopOrder = &myOrders[i]
			}
		} else if o.ReduceOnly {
			hasTP = true
		}
	}

	techBase := 0.0
	if t != nil && t.TechBase > 0 {
		techBase = t.TechBase
	}

	if !hasStop && !isManual {
		e.placePanicStop(ctx, t, sym, direction, size, entry)
	}
	if !hasTP && !isManual {
		e.placeTargets(ctx, t, sym, direction, size, entry, techBase)
	}
	if !isManual && t != nil && !t.Entry2Placed {
		e.placeSecondEntry(ctx, t, sym, direction, myOrders)
	}
	if stopOrder != nil && techBase > 0 && !isManual {
		e.moveToBreakeven(ctx, t, sym, direction, size, entry, mid, *stopOrder)
	}

	if t != nil && math.Abs(size-t.LastSize) > sizeChangeTolerance {
		t.LastSize = size
		e.saveTrackers()
	}

	if t == nil {
		e.detectManualTrade(sym, direction, size, entry, myOrders)
	}
}

// confirmEntries detects entry fills from position size. The first fill is
// announced; the second also cancels the protective orders so they can be
// rebuilt for the combined position.
func (e *Engine) confirmEntries(ctx context.Context, t *storage.TradeTracker, sym, direction string, size, entry float64, myOrders []exchange.Order) {
	sizeChanged := math.Abs(size-t.LastSize) > sizeChangeTolerance

	if qtyMatches(t.QtyEntry1, size) && (t.LastSize == 0 || !qtyMatches(t.QtyEntry1, t.LastSize)) {
		log.Printf("[%s] entry 1 filled: %s size %.6g @ %.6g", sym, direction, size, entry)
		e.notify(notifications.Entry1ConfirmedMessage(sym, size))
		t.LastSize = size
		e.saveTrackers()
		return
	}

	entry2Hit := qtyMatches(t.QtyEntry2, size) && sizeChanged &&
		!qtyMatches(t.QtyEntry1, size) &&
		(t.LastSize <= 0 || !qtyMatches(t.QtyEntry2, t.LastSize))
	if !entry2Hit {
		return
	}

	log.Printf("[%s] entry 2 filled: %s total %.6g @ %.6g", sym, direction, size, entry)
	e.notify(notifications.Entry2ConfirmedMessage(sym, size))

	// Stop and targets are sized for entry 1; drop them and let the next
	// pass rebuild both for the full position.
	for _, o := range myOrders {
		if !o.ReduceOnly {
			continue
		}
		if err := e.venue.CancelOrder(ctx, sym, o.ID); err != nil {
			log.Printf("[%s] cancel protective order: %v", sym, err)
		}
	}
	t.LastSize = size
	e.saveTrackers()
}

// placePanicStop restores the protective stop for a bot position that has
// none. While the second entry is still pending the stop covers both
// entries' quantity.
func (e *Engine) placePanicStop(ctx context.Context, t *storage.TradeTracker, sym, direction string, size, entry float64) {
	stopPx := t.PlannedStop
	if stopPx <= 0 {
		if direction == string(signal.Long) {
			stopPx = indicators.RoundPrice(entry * (1 - e.cfg.Risk.FallbackStopPct))
		} else {
			stopPx = indicators.RoundPrice(entry * (1 + e.cfg.Risk.FallbackStopPct))
		}
	}

	stopQty := size
	if !t.Entry2Placed && t.Entry2Qty > 0 {
		stopQty = size + t.Entry2Qty
	}

	log.Printf("[%s] position without stop, placing at %.6g qty %.6g", sym, stopPx, stopQty)
	_, err := e.venue.SubmitOrder(ctx, exchange.OrderRequest{
		Symbol:       sym,
		Side:         exitSide(direction),
		Qty:          stopQty,
		TriggerPrice: stopPx,
		ReduceOnly:   true,
	})
	if err != nil {
		log.Printf("[%s] stop placement failed: %v", sym, err)
		monitoring.RecordError("order")
		return
	}
	monitoring.RecordOrderPlaced(sym, "stop")
	t.PlannedStop = stopPx
	e.saveTrackers()
}

// placeTargets lays the take-profit ladder anchored at the setup extreme.
// Without setup geometry it falls back to percent distances from entry.
func (e *Engine) placeTargets(ctx context.Context, t *storage.TradeTracker, sym, direction string, size, entry, techBase float64) {
	base := techBase
	anchor := entry
	if techBase > 0 && t.SetupHigh > 0 && t.SetupLow > 0 {
		if direction == string(signal.Long) {
			anchor = t.SetupHigh
		} else {
			anchor = t.SetupLow
		}
	} else {
		base = math.Abs(entry * e.cfg.Risk.FallbackStopPct)
		log.Printf("[%s] no setup geometry recorded, target fallback from entry", sym)
	}
	if base <= 0 {
		return
	}

	szDec, err := e.venue.SizeDecimals(ctx, sym)
	if err != nil {
		log.Printf("[%s] size decimals: %v", sym, err)
		return
	}

	levels := make([]struct {
		Level   float64
		Percent float64
	}, len(e.cfg.Strategy.Targets))
	for i, lvl := range e.cfg.Strategy.Targets {
		levels[i].Level = lvl.Level
		levels[i].Percent = lvl.Percent
	}
	// Once both entries are in, the last target retreats to the setup
	// extreme itself.
	entry2Filled := t.QtyEntry2 > 0 && qtyMatches(t.QtyEntry2, size)
	if entry2Filled && e.cfg.Strategy.Entry2AdjustLastTarget && len(levels) > 0 {
		levels[len(levels)-1].Level = 0.0
	}

	for idx, lvl := range levels {
		qty := indicators.RoundSize(size*lvl.Percent, szDec)
		if qty <= 0 {
			continue
		}
		var px float64
		if direction == string(signal.Long) {
			px = anchor + base*lvl.Level
		} else {
			px = anchor - base*lvl.Level
		}
		px = indicators.RoundPrice(px)

		_, err := e.venue.SubmitOrder(ctx, exchange.OrderRequest{
			Symbol:     sym,
			Side:       exitSide(direction),
			Qty:        qty,
			Price:      px,
			ReduceOnly: true,
			LinkID:     fmt.Sprintf("TP%d_%g", idx+1, lvl.Level),
		})
		if err != nil {
			log.Printf("[%s] target %d placement failed: %v", sym, idx+1, err)
			monitoring.RecordError("order")
			continue
		}
		monitoring.RecordOrderPlaced(sym, "target")
		log.Printf("[%s] target %d (%.3g) @ %.6g qty %.6g", sym, idx+1, lvl.Level, px, qty)
	}
}

// placeSecondEntry submits the deeper limit add. Realized profit on the
// trade permanently disables it: a paid-out trade must not be averaged down.
func (e *Engine) placeSecondEntry(ctx context.Context, t *storage.TradeTracker, sym, direction string, myOrders []exchange.Order) {
	if t.PnlRealized > 0 {
		t.Entry2Placed = true
		e.saveTrackers()
		log.Printf("[%s] second entry disabled: trade already realized pnl", sym)
		return
	}
	if t.Entry2Px <= 0 || t.Entry2Qty <= 0 {
		return
	}

	for _, o := range myOrders {
		if !o.ReduceOnly && o.TriggerPrice == 0 {
			// A pending add already exists, from a previous run.
			t.Entry2Placed = true
			e.saveTrackers()
			return
		}
	}

	linkID := strings.ReplaceAll(fmt.Sprintf("%s_%d", t.TradeID, e.now().UnixMilli()), "-", "_")
	_, err := e.venue.SubmitOrder(ctx, exchange.OrderRequest{
		Symbol: sym,
		Side:   orderSideFor(signal.Side(direction)),
		Qty:    t.Entry2Qty,
		Price:  indicators.RoundPrice(t.Entry2Px),
		LinkID: linkID,
	})
	if err != nil {
		log.Printf("[%s] second entry placement failed: %v", sym, err)
		monitoring.RecordError("order")
		return
	}
	monitoring.RecordOrderPlaced(sym, "entry2")
	log.Printf("[%s] second entry pending @ %.6g qty %.6g", sym, t.Entry2Px, t.Entry2Qty)
	t.Entry2Placed = true
	e.saveTrackers()
}

// moveToBreakeven replaces the stop with one just past entry once the first
// target has paid out or price has reached its level. It fires once per
// trade and only tightens, never loosens.
func (e *Engine) moveToBreakeven(ctx context.Context, t *storage.TradeTracker, sym, direction string, size, entry, mid float64, stopOrder exchange.Order) {
	if t.BreakevenMoved {
		return
	}

	target1 := e.cfg.Target1Level()
	var triggerLevel, newStop float64
	var reached, improves bool
	if direction == string(signal.Long) {
		triggerLevel = entry + t.TechBase*target1
		if t.SetupHigh > 0 {
			triggerLevel = t.SetupHigh + t.TechBase*target1
		}
		newStop = entry * (1 + breakevenOffsetPct)
		reached = mid >= triggerLevel
		improves = stopOrder.TriggerPrice < entry
	} else {
		triggerLevel = entry - t.TechBase*target1
		if t.SetupLow > 0 {
			triggerLevel = t.SetupLow - t.TechBase*target1
		}
		newStop = entry * (1 - breakevenOffsetPct)
		reached = mid <= triggerLevel
		improves = stopOrder.TriggerPrice > entry
	}

	if !(t.PnlRealized > 0 || reached) || !improves {
		return
	}

	if err := e.venue.CancelOrder(ctx, sym, stopOrder.ID); err != nil {
		log.Printf("[%s] cancel stop for break-even: %v", sym, err)
		return
	}
	newStop = indicators.RoundPrice(newStop)

	// The pending add was cancelled at target 1; protect the live size only.
	_, err := e.venue.SubmitOrder(ctx, exchange.OrderRequest{
		Symbol:       sym,
		Side:         exitSide(direction),
		Qty:          size,
		TriggerPrice: newStop,
		ReduceOnly:   true,
	})
	if err != nil {
		log.Printf("[%s] break-even stop failed: %v", sym, err)
		monitoring.RecordError("order")
		return
	}
	monitoring.RecordOrderPlaced(sym, "stop")
	t.PlannedStop = newStop
	t.BreakevenMoved = true
	e.saveTrackers()
	e.notify(notifications.BreakevenMessage(sym, newStop))
}

// detectManualTrade registers positions the bot did not open, unless the
// symbol still has bot-tagged orders resting.
func (e *Engine) detectManualTrade(sym, direction string, size, entry float64, myOrders []exchange.Order) {
	for _, o := range myOrders {
		linkID := strings.ToLower(o.LinkID)
		if strings.Contains(linkID, "tp1") || strings.Contains(linkID, "tp2") {
			return
		}
		if strings.Contains(linkID, strings.ToLower(sym)) && containsDigit(linkID) {
			return
		}
	}

	log.Printf("[%s] manual trade detected: %s size %.6g @ %.6g", sym, direction, size, entry)
	e.notify(notifications.ManualTradeMessage(sym, direction, entry, size))
	e.trackers[sym] = &storage.TradeTracker{
		Symbol:   sym,
		Side:     direction,
		Entry:    entry,
		Size:     size,
		Origin:   storage.OriginManual,
		OpenedAt: e.now(),
	}
	e.saveTrackers()
}

func exitSide(direction string) exchange.OrderSide {
	if direction == string(signal.Long) {
		return exchange.Sell
	}
	return exchange.Buy
}

func containsDigit(s string) bool {
	return strings.IndexFunc(s, unicode.IsDigit) >= 0
}
