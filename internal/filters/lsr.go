// Package filters holds the veto layer consulted between signal detection
// and order placement: crowd positioning (long/short account ratio) and
// relative 24h strength.
package filters

import (
	"context"
	"sync"
	"time"

	"github.com/zeedohq/reversal-bot/internal/signal"
)

// LSR sampling and thresholds. The ratio is global long/short accounts on
// 30-minute buckets; four samples give three history points plus current.
const (
	LSRPeriod  = "30m"
	LSRSamples = 4

	lsrTrendThresholdPct = 0.5

	lsrBlockShortBelow   = 1.1
	lsrBlockLongDefault  = 3.0
	lsrBlockLongSpecial1 = 3.8
	lsrBlockLongSpecial2 = 4.9
)

var (
	lsrSpecial1 = map[string]bool{"XRP": true, "BNB": true}
	lsrSpecial2 = map[string]bool{"SOL": true}
)

// Trend classifies the latest LSR sample against the average of the three
// before it.
type Trend string

const (
	TrendUp      Trend = "UP"
	TrendDown    Trend = "DOWN"
	TrendFlat    Trend = "FLAT"
	TrendUnknown Trend = ""
)

// LSRSource fetches recent long/short ratio samples for a symbol, oldest
// first.
type LSRSource interface {
	LSRSamples(ctx context.Context, symbol, period string, limit int) ([]float64, error)
}

type lsrEntry struct {
	values    []float64
	trend     Trend
	updatedAt time.Time
}

// LSRFilter caches per-symbol LSR readings and answers whether a trade side
// is acceptable against the current crowd positioning. A symbol with no
// cached reading is never blocked.
type LSRFilter struct {
	source  LSRSource
	refresh time.Duration
	now     func() time.Time

	mu    sync.Mutex
	cache map[string]lsrEntry
}

// NewLSRFilter builds a filter that refreshes a symbol's reading at most
// once per refresh interval unless forced.
func NewLSRFilter(source LSRSource, refresh time.Duration) *LSRFilter {
	return &LSRFilter{
		source:  source,
		refresh: refresh,
		now:     time.Now,
		cache:   make(map[string]lsrEntry),
	}
}

// Refresh updates the cached reading for symbol. Without force it is a no-op
// while the cached value is fresh. Fetch failures keep the previous reading.
func (f *LSRFilter) Refresh(ctx context.Context, symbol string, force bool) error {
	f.mu.Lock()
	entry, ok := f.cache[symbol]
	f.mu.Unlock()
	if ok && !force && f.now().Sub(entry.updatedAt) < f.refresh {
		return nil
	}

	values, err := f.source.LSRSamples(ctx, symbol, LSRPeriod, LSRSamples)
	if err != nil {
		return err
	}
	if len(values) < LSRSamples {
		return nil
	}

	f.mu.Lock()
	f.cache[symbol] = lsrEntry{
		values:    values,
		trend:     classifyTrend(values),
		updatedAt: f.now(),
	}
	f.mu.Unlock()
	return nil
}

// Allows reports whether the side may be traded on symbol. Hard ratio
// bounds are checked first, then the trend rule: a short needs the crowd
// ratio rising or flat, a long needs it falling or flat.
func (f *LSRFilter) Allows(symbol string, side signal.Side) bool {
	f.mu.Lock()
	entry, ok := f.cache[symbol]
	f.mu.Unlock()
	if !ok {
		return true
	}

	current := entry.values[len(entry.values)-1]

	if side == signal.Short && current < lsrBlockShortBelow {
		return false
	}
	if side == signal.Long && current > longBlockLevel(symbol) {
		return false
	}

	switch entry.trend {
	case TrendFlat, TrendUnknown:
		return true
	case TrendUp:
		return side == signal.Short
	case TrendDown:
		return side == signal.Long
	}
	return false
}

// Trend returns the cached trend for symbol, TrendUnknown when absent.
func (f *LSRFilter) Trend(symbol string) Trend {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cache[symbol].trend
}

// Value returns the latest cached ratio for symbol, 0 when absent.
func (f *LSRFilter) Value(symbol string) float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	entry, ok := f.cache[symbol]
	if !ok || len(entry.values) == 0 {
		return 0
	}
	return entry.values[len(entry.values)-1]
}

func longBlockLevel(symbol string) float64 {
	switch {
	case lsrSpecial2[symbol]:
		return lsrBlockLongSpecial2
	case lsrSpecial1[symbol]:
		return lsrBlockLongSpecial1
	default:
		return lsrBlockLongDefault
	}
}

func classifyTrend(values []float64) Trend {
	if len(values) < LSRSamples {
		return TrendUnknown
	}
	baseAvg := (values[0] + values[1] + values[2]) / 3
	if baseAvg == 0 {
		return TrendUnknown
	}
	changePct := (values[3] - baseAvg) / baseAvg * 100
	switch {
	case changePct < lsrTrendThresholdPct && changePct > -lsrTrendThresholdPct:
		return TrendFlat
	case changePct > 0:
		return TrendUp
	default:
		return TrendDown
	}
}
