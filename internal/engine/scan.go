package engine

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/zeedohq/reversal-bot/internal/config"
	"github.com/zeedohq/reversal-bot/internal/exchange"
	"github.com/zeedohq/reversal-bot/internal/monitoring"
	"github.com/zeedohq/reversal-bot/internal/notifications"
	"github.com/zeedohq/reversal-bot/internal/risk"
	"github.com/zeedohq/reversal-bot/internal/signal"
	"github.com/zeedohq/reversal-bot/internal/storage"
	"github.com/zeedohq/reversal-bot/pkg/types"
)

const (
	refCandleLimit   = 100
	venueCandleLimit = 10
)

// scan looks for a fresh setup on every idle symbol and places at most one
// new trade per cycle.
func (e *Engine) scan(ctx context.Context, state *exchange.AccountState, mids map[string]float64) {
	busy := make(map[string]bool)
	for _, p := range state.Positions {
		busy[p.Symbol] = true
	}
	for _, o := range state.OpenOrders {
		if !o.ReduceOnly {
			busy[o.Symbol] = true
		}
	}

	exposure := 0.0
	for _, p := range state.Positions {
		px := mids[p.Symbol]
		exposure += math.Abs(p.Size) * px
	}

	available, ok := e.gate.Check(len(busy), exposure)
	if !ok {
		return
	}
	if e.paused.Load() {
		return
	}

	for _, sym := range e.cfg.Strategy.Symbols {
		if busy[sym] {
			continue
		}
		for _, tf := range e.cfg.Strategy.Timeframes {
			if e.scanOne(ctx, sym, tf, available) {
				return
			}
		}
	}
}

// scanOne evaluates one symbol/timeframe pair. It returns true when a trade
// was placed, which ends the scan for this cycle.
func (e *Engine) scanOne(ctx context.Context, sym, tf string, available float64) bool {
	tfSec, err := config.TimeframeSeconds(tf)
	if err != nil {
		return false
	}

	now := e.now()
	closedTS := (now.Unix()/tfSec - 1) * tfSec
	if closedTS < 0 {
		closedTS = 0
	}
	candleID := fmt.Sprintf("%s_%s_%d", sym, tf, closedTS)
	if e.analyzed[candleID] {
		return false
	}

	refCandles, err := e.ref.Candles(ctx, sym, tf, refCandleLimit)
	if err != nil || len(refCandles) < 5 {
		return false
	}
	refCandles = dropOpenCandle(refCandles, tfSec, now)
	if len(refCandles) < signal.MinHistory {
		return false
	}

	venueCandles, err := e.venue.Candles(ctx, sym, tf, venueCandleLimit)
	if err != nil || len(venueCandles) < 2 {
		return false
	}
	venueCandles = dropOpenCandle(venueCandles, tfSec, now)
	if len(venueCandles) < 2 {
		return false
	}

	sig, veto := signal.Evaluate(sym, tf, refCandles, venueCandles, e.sigParams)
	if veto != nil {
		e.notify(notifications.ExhaustionVetoMessage(veto.Symbol, veto.Timeframe, string(veto.Side)))
		monitoring.RecordBlockedSignal("exhaustion")
		e.analyzed[candleID] = true
		return false
	}
	if sig == nil {
		e.analyzed[candleID] = true
		return false
	}
	monitoring.RecordSignal(sym, tf, string(sig.Side))
	if e.activity != nil {
		e.activity.Signal(sym, tf, string(sig.Side), string(sig.Pattern), sig.Trigger, sig.Stop)
	}

	// The LSR reading may be half an hour stale; refresh before acting on it.
	if e.lsr != nil {
		if err := e.lsr.Refresh(ctx, sym, true); err != nil {
			log.Printf("[%s %s] lsr refresh: %v", sym, tf, err)
		}
		if !e.lsr.Allows(sym, sig.Side) {
			e.notify(notifications.LSRBlockMessage(sym, string(sig.Side), e.lsr.Value(sym), string(e.lsr.Trend(sym))))
			monitoring.RecordBlockedSignal("lsr")
			e.analyzed[candleID] = true
			return false
		}
	}

	if e.strength != nil && !e.strength.Allows(sym, sig.Side) {
		e.notify(notifications.StrengthBlockMessage(sym, string(sig.Side)))
		monitoring.RecordBlockedSignal("strength")
		e.analyzed[candleID] = true
		return false
	}

	mode := e.cfg.Strategy.TradeMode
	if (mode == config.TradeModeLongOnly && sig.Side == signal.Short) ||
		(mode == config.TradeModeShortOnly && sig.Side == signal.Long) {
		monitoring.RecordBlockedSignal("trade_mode")
		e.analyzed[candleID] = true
		return false
	}

	if sig.SignalTS.Unix() <= e.history.Last(sym, tf) {
		e.analyzed[candleID] = true
		return false
	}

	szDec, err := e.venue.SizeDecimals(ctx, sym)
	if err != nil {
		log.Printf("[%s %s] size decimals: %v", sym, tf, err)
		return false
	}

	plan := risk.Size(sig, e.riskParams, available, szDec)
	if plan == nil {
		e.analyzed[candleID] = true
		return false
	}

	e.notify(notifications.NewSignalMessage(sym, tf, string(sig.Side), string(sig.Pattern),
		plan.Entry1Px, plan.Entry2Px, plan.StopPx, plan.Qty1, plan.TwoEntries))

	tradeID := fmt.Sprintf("%s-%d", sym, now.Unix())
	_, err = e.venue.SubmitOrder(ctx, exchange.OrderRequest{
		Symbol: sym,
		Side:   orderSideFor(sig.Side),
		Qty:    plan.Qty1,
		Price:  plan.Entry1Px,
		LinkID: tradeID,
	})
	if err != nil {
		// Not marked analyzed: the entry is retried next cycle.
		log.Printf("[%s %s] entry order failed: %v", sym, tf, err)
		monitoring.RecordError("order")
		return false
	}
	monitoring.RecordOrderPlaced(sym, "entry1")

	tracker := &storage.TradeTracker{
		Symbol:      sym,
		Side:        string(sig.Side),
		Timeframe:   tf,
		PlacedAt:    now,
		SignalTS:    sig.SignalTS.Unix(),
		TradeID:     tradeID,
		PlannedStop: plan.StopPx,
		TechBase:    sig.TechBase,
		SetupHigh:   sig.SetupHigh,
		SetupLow:    sig.SetupLow,
		EntryPx:     plan.Entry1Px,
		Qty:         plan.Qty1,
		QtyEntry1:   plan.Qty1,
		QtyEntry2:   plan.Qty1 + plan.Qty2,
	}
	if plan.TwoEntries {
		tracker.Entry2Px = plan.Entry2Px
		tracker.Entry2Qty = plan.Qty2
		tracker.Entry2Placed = false
	} else {
		// No second entry on this plan; latch it off.
		tracker.Entry2Placed = true
	}
	e.trackers[sym] = tracker
	e.saveTrackers()

	e.history.Set(sym, tf, sig.SignalTS.Unix())
	e.saveHistory()

	e.analyzed[candleID] = true
	log.Printf("[%s %s] %s signal traded: entry %.6g qty %.6g stop %.6g",
		sym, tf, sig.Side, plan.Entry1Px, plan.Qty1, plan.StopPx)
	if e.activity != nil {
		e.activity.Trade("entry pending %s %s %s qty %.6g @ %.6g stop %.6g",
			sym, tf, sig.Side, plan.Qty1, plan.Entry1Px, plan.StopPx)
	}
	return true
}

// dropOpenCandle removes the last candle when its interval has not finished.
func dropOpenCandle(candles []types.OHLCV, tfSec int64, now time.Time) []types.OHLCV {
	if len(candles) == 0 {
		return candles
	}
	last := candles[len(candles)-1]
	if last.Timestamp.Add(time.Duration(tfSec) * time.Second).After(now) {
		return candles[:len(candles)-1]
	}
	return candles
}
