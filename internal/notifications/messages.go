package notifications

import (
	"fmt"
	"strings"
)

// Message builders for every alert the engine emits. Keeping them here
// means the engine never formats user-facing text itself.

func NewSignalMessage(symbol, timeframe, side, pattern string, trigger, entry2, stop, qty float64, twoEntries bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🚀 NEW SIGNAL: %s %s [%s]\n", strings.ToUpper(side), symbol, timeframe)
	fmt.Fprintf(&b, "Pattern: %s\n", pattern)
	fmt.Fprintf(&b, "Entry 1: %g\n", trigger)
	if twoEntries {
		fmt.Fprintf(&b, "Entry 2: %g\n", entry2)
	}
	fmt.Fprintf(&b, "Stop: %g\n", stop)
	fmt.Fprintf(&b, "Qty: %g", qty)
	return b.String()
}

func Entry1ConfirmedMessage(symbol string, size float64) string {
	return fmt.Sprintf("✅ ENTRY 1 FILLED: %s (size %g)", symbol, size)
}

func Entry2ConfirmedMessage(symbol string, size float64) string {
	return fmt.Sprintf("✅ ENTRY 2 FILLED: %s (size %g). Protective orders will be rebuilt.", symbol, size)
}

func LSRBlockMessage(symbol, side string, value float64, trend string) string {
	if trend == "" {
		trend = "N/A"
	}
	return fmt.Sprintf("🚫 %s %s blocked by long/short ratio (%.2f, trend %s)",
		strings.ToUpper(side), symbol, value, trend)
}

func StrengthBlockMessage(symbol, side string) string {
	return fmt.Sprintf("🚫 %s %s blocked by 24h strength ranking", strings.ToUpper(side), symbol)
}

func ExhaustionVetoMessage(symbol, timeframe, side string) string {
	return fmt.Sprintf("⚠️ %s %s [%s]: engulfing into local highs, signal discarded",
		strings.ToUpper(side), symbol, timeframe)
}

func Target1Message(symbol string) string {
	return fmt.Sprintf("🎯 %s reached target 1, pending entry orders cancelled", symbol)
}

func BreakevenMessage(symbol string, stopPx float64) string {
	return fmt.Sprintf("🛡️ %s stop moved to break-even (%g)", symbol, stopPx)
}

func PartialMessage(symbol string, pnl float64) string {
	if pnl >= 0 {
		return fmt.Sprintf("🤑 PARTIAL TAKEN: %s +%.2f USD", symbol, pnl)
	}
	return fmt.Sprintf("❌ STOP HIT: %s %.2f USD", symbol, pnl)
}

func TradeClosedMessage(symbol string, pnl float64) string {
	return fmt.Sprintf("🏁 TRADE CLOSED: %s, realized %.2f USD", symbol, pnl)
}

func ManualTradeMessage(symbol, side string, entry, size float64) string {
	return fmt.Sprintf("👀 MANUAL TRADE DETECTED: %s %s, entry %g, size %g",
		strings.ToUpper(side), symbol, entry, size)
}
