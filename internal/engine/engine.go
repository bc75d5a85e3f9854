// Package engine runs the scan-and-manage loop: one cycle snapshots the
// account, reconciles every tracked trade against it, then scans the
// configured symbols for fresh setups.
package engine

import (
	"context"
	"errors"
	"log"
	"sort"
	"sync/atomic"
	"time"

	"github.com/zeedohq/reversal-bot/internal/config"
	"github.com/zeedohq/reversal-bot/internal/exchange"
	"github.com/zeedohq/reversal-bot/internal/filters"
	"github.com/zeedohq/reversal-bot/internal/logger"
	"github.com/zeedohq/reversal-bot/internal/monitoring"
	"github.com/zeedohq/reversal-bot/internal/notifications"
	"github.com/zeedohq/reversal-bot/internal/risk"
	"github.com/zeedohq/reversal-bot/internal/signal"
	"github.com/zeedohq/reversal-bot/internal/storage"
)

const rateLimitBackoff = 5 * time.Second

// Engine owns all mutable trade state. It is single-threaded: Run drives
// every cycle from one goroutine, so no locking is needed on the trackers.
type Engine struct {
	cfg      *config.Config
	venue    exchange.Venue
	ref      exchange.ReferenceSource
	store    storage.Store
	notifier notifications.Notifier
	health   *monitoring.HealthChecker
	activity *logger.Logger

	// Filters are nil when disabled in config.
	lsr      *filters.LSRFilter
	strength *filters.StrengthFilter

	sigParams  signal.Params
	riskParams risk.Params
	gate       risk.Gate

	trackers map[string]*storage.TradeTracker
	history  storage.HistoryMap
	ledger   []storage.LedgerEntry
	oidsSeen map[string]bool
	analyzed map[string]bool

	lastHistorySync  time.Time
	lastStrengthSync time.Time

	paused atomic.Bool
	now    func() time.Time
}

// Deps bundles the engine's collaborators.
type Deps struct {
	Venue     exchange.Venue
	Reference exchange.ReferenceSource
	Store     storage.Store
	Notifier  notifications.Notifier
	Health    *monitoring.HealthChecker

	// Activity is the optional on-disk trade log.
	Activity *logger.Logger
}

// New builds an engine and loads persisted state from the store.
func New(cfg *config.Config, deps Deps) (*Engine, error) {
	trackers, err := deps.Store.LoadTrackers()
	if err != nil {
		return nil, err
	}
	history, err := deps.Store.LoadHistory()
	if err != nil {
		return nil, err
	}
	ledger, err := deps.Store.LoadLedger()
	if err != nil {
		return nil, err
	}

	oidsSeen := make(map[string]bool, len(ledger))
	for _, entry := range ledger {
		oidsSeen[entry.OID] = true
	}

	notifier := deps.Notifier
	if notifier == nil {
		notifier = notifications.LogNotifier{}
	}

	e := &Engine{
		cfg:      cfg,
		venue:    deps.Venue,
		ref:      deps.Reference,
		store:    deps.Store,
		notifier: notifier,
		health:   deps.Health,
		activity: deps.Activity,
		sigParams: signal.Params{
			RSIPeriod:        cfg.Strategy.RSIPeriod,
			VolumeSMAPeriod:  cfg.Strategy.VolumeSMAPeriod,
			WickWindow:       10,
			Entry2Multiplier: cfg.Strategy.Entry2Multiplier,
			StopMultiplier:   cfg.Strategy.StopMultiplier,
		},
		riskParams: risk.Params{
			TargetLossUSD:     cfg.Risk.TargetLossUSD,
			MaxSingleExposure: cfg.Risk.MaxSingleExposure,
			MinOrderNotional:  cfg.Risk.MinOrderNotional,
			TwoEntries:        cfg.TwoEntriesActive(),
		},
		gate: risk.Gate{
			MaxPositions:      cfg.Risk.MaxPositions,
			MaxGlobalExposure: cfg.Risk.MaxGlobalExposure,
			MinHeadroom:       50,
		},
		trackers: trackers,
		history:  history,
		ledger:   ledger,
		oidsSeen: oidsSeen,
		analyzed: make(map[string]bool),
		now:      time.Now,
	}

	if cfg.Filters.LSREnabled {
		e.lsr = filters.NewLSRFilter(deps.Reference, time.Duration(cfg.Engine.LSRRefreshSec)*time.Second)
	}
	if cfg.Filters.StrengthEnabled {
		e.strength = filters.NewStrengthFilter(deps.Venue, cfg.Strategy.Symbols,
			time.Duration(cfg.Engine.StrengthRefreshSec)*time.Second)
	}

	log.Printf("state loaded: %d trackers, %d ledger entries", len(trackers), len(ledger))
	return e, nil
}

// Pause stops new signals from being traded; open trades are still managed.
func (e *Engine) Pause()  { e.paused.Store(true) }
func (e *Engine) Resume() { e.paused.Store(false) }

// Run drives the engine until the context is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	poll := time.Duration(e.cfg.Engine.PollIntervalSec) * time.Second

	for {
		start := e.now()

		if err := e.cycle(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if e.health != nil {
				e.health.MarkError(err)
			}
			if errors.Is(err, exchange.ErrRateLimited) {
				monitoring.RecordError("rate_limit")
			} else {
				monitoring.RecordError("cycle")
				log.Printf("cycle error: %v", err)
			}
			if !sleepCtx(ctx, rateLimitBackoff) {
				return ctx.Err()
			}
			continue
		}

		elapsed := e.now().Sub(start)
		monitoring.RecordCycleDuration(elapsed.Seconds())
		if e.health != nil {
			e.health.MarkCycle()
		}

		wait := poll - elapsed
		if wait < time.Second {
			wait = time.Second
		}
		if !sleepCtx(ctx, wait) {
			return ctx.Err()
		}
	}
}

// cycle runs one snapshot-manage-scan pass.
func (e *Engine) cycle(ctx context.Context) error {
	state, err := e.venue.AccountState(ctx)
	if err != nil {
		return err
	}
	mids, err := e.venue.MidPrices(ctx)
	if err != nil {
		return err
	}

	monitoring.SetOpenPositions(len(state.Positions))
	monitoring.SetAccountEquity(state.Equity)

	if e.now().Sub(e.lastHistorySync) > time.Duration(e.cfg.Engine.HistorySyncSec)*time.Second {
		e.syncHistory(ctx, state)
		e.lastHistorySync = e.now()
	}

	if e.lsr != nil {
		for _, sym := range e.cfg.Strategy.Symbols {
			if err := e.lsr.Refresh(ctx, sym, false); err != nil {
				log.Printf("lsr refresh %s: %v", sym, err)
			}
		}
	}
	if e.strength != nil && e.now().Sub(e.lastStrengthSync) > time.Duration(e.cfg.Engine.StrengthRefreshSec)*time.Second {
		e.strength.Refresh(ctx)
		e.lastStrengthSync = e.now()
	}

	e.manage(ctx, state, mids)
	e.scan(ctx, state, mids)

	if len(e.analyzed) > e.cfg.Engine.AnalyzedCandleBound {
		e.analyzed = make(map[string]bool)
	}
	return nil
}

// Shutdown persists state on exit.
func (e *Engine) Shutdown() {
	if err := e.store.SaveTrackers(e.trackers); err != nil {
		log.Printf("failed to persist trackers on shutdown: %v", err)
	}
	if err := e.store.SaveHistory(e.history); err != nil {
		log.Printf("failed to persist history on shutdown: %v", err)
	}
}

func (e *Engine) notify(message string) {
	if err := e.notifier.Notify(message); err != nil {
		log.Printf("notification failed: %v", err)
		monitoring.RecordError("notify")
	}
}

func (e *Engine) saveTrackers() {
	if err := e.store.SaveTrackers(e.trackers); err != nil {
		log.Printf("failed to save trackers: %v", err)
		monitoring.RecordError("storage")
	}
}

func (e *Engine) saveHistory() {
	if err := e.store.SaveHistory(e.history); err != nil {
		log.Printf("failed to save history: %v", err)
		monitoring.RecordError("storage")
	}
}

// trackerSymbols returns tracker keys in stable order.
func (e *Engine) trackerSymbols() []string {
	syms := make([]string, 0, len(e.trackers))
	for sym := range e.trackers {
		syms = append(syms, sym)
	}
	sort.Strings(syms)
	return syms
}

func orderSideFor(side signal.Side) exchange.OrderSide {
	if side == signal.Long {
		return exchange.Buy
	}
	return exchange.Sell
}

func positionDirection(p exchange.Position) string {
	if p.Side == exchange.Buy {
		return string(signal.Long)
	}
	return string(signal.Short)
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
