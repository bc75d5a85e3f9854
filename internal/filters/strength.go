package filters

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/zeedohq/reversal-bot/internal/signal"
)

// minRankedSymbols is the smallest universe the relative ranking is
// meaningful for.
const minRankedSymbols = 4

// ChangeSource reports the 24h percentage change of a symbol.
type ChangeSource interface {
	Change24h(ctx context.Context, symbol string) (float64, error)
}

// StrengthFilter ranks the symbol universe by 24h change and blocks longs on
// the two weakest symbols and shorts on the two strongest. With fewer than
// four readable symbols nothing is blocked.
type StrengthFilter struct {
	source  ChangeSource
	symbols []string
	refresh time.Duration
	now     func() time.Time

	mu            sync.Mutex
	blockedLongs  map[string]bool
	blockedShorts map[string]bool
	updatedAt     time.Time
}

// NewStrengthFilter builds a filter over the given symbol universe.
func NewStrengthFilter(source ChangeSource, symbols []string, refresh time.Duration) *StrengthFilter {
	return &StrengthFilter{
		source:        source,
		symbols:       symbols,
		refresh:       refresh,
		now:           time.Now,
		blockedLongs:  make(map[string]bool),
		blockedShorts: make(map[string]bool),
	}
}

// Refresh recomputes the block sets when the cached ranking has expired.
// Symbols whose change cannot be read are left out of the ranking.
func (f *StrengthFilter) Refresh(ctx context.Context) {
	f.mu.Lock()
	fresh := !f.updatedAt.IsZero() && f.now().Sub(f.updatedAt) < f.refresh
	f.mu.Unlock()
	if fresh {
		return
	}

	type ranked struct {
		symbol string
		change float64
	}
	var changes []ranked
	for _, sym := range f.symbols {
		pct, err := f.source.Change24h(ctx, sym)
		if err != nil {
			continue
		}
		changes = append(changes, ranked{symbol: sym, change: pct})
	}

	longs := make(map[string]bool)
	shorts := make(map[string]bool)
	if len(changes) >= minRankedSymbols {
		sort.Slice(changes, func(i, j int) bool { return changes[i].change < changes[j].change })
		longs[changes[0].symbol] = true
		longs[changes[1].symbol] = true
		shorts[changes[len(changes)-1].symbol] = true
		shorts[changes[len(changes)-2].symbol] = true
	}

	f.mu.Lock()
	f.blockedLongs = longs
	f.blockedShorts = shorts
	f.updatedAt = f.now()
	f.mu.Unlock()
}

// Allows reports whether the side may be traded on symbol under the current
// ranking.
func (f *StrengthFilter) Allows(symbol string, side signal.Side) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if side == signal.Long {
		return !f.blockedLongs[symbol]
	}
	return !f.blockedShorts[symbol]
}
