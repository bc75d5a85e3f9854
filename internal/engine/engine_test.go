package engine

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeedohq/reversal-bot/internal/config"
	"github.com/zeedohq/reversal-bot/internal/exchange"
	"github.com/zeedohq/reversal-bot/internal/storage"
	"github.com/zeedohq/reversal-bot/pkg/types"
)

// ---- fakes ----

type fakeVenue struct {
	candles   map[string][]types.OHLCV
	fills     map[string][]exchange.Fill
	szDec     int
	submitted []exchange.OrderRequest
	cancelled []string
	submitErr error
	nextID    int
}

func newFakeVenue() *fakeVenue {
	return &fakeVenue{
		candles: make(map[string][]types.OHLCV),
		fills:   make(map[string][]exchange.Fill),
		szDec:   2,
	}
}

func (f *fakeVenue) Candles(_ context.Context, symbol, timeframe string, _ int) ([]types.OHLCV, error) {
	return f.candles[symbol+"_"+timeframe], nil
}

func (f *fakeVenue) MidPrices(context.Context) (map[string]float64, error) {
	return map[string]float64{}, nil
}

func (f *fakeVenue) Change24h(context.Context, string) (float64, error) { return 0, nil }

func (f *fakeVenue) AccountState(context.Context) (*exchange.AccountState, error) {
	return &exchange.AccountState{}, nil
}

func (f *fakeVenue) SubmitOrder(_ context.Context, req exchange.OrderRequest) (*exchange.Order, error) {
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	f.submitted = append(f.submitted, req)
	f.nextID++
	return &exchange.Order{ID: "ord-" + req.Symbol, Symbol: req.Symbol}, nil
}

func (f *fakeVenue) CancelOrder(_ context.Context, _ string, orderID string) error {
	f.cancelled = append(f.cancelled, orderID)
	return nil
}

func (f *fakeVenue) CancelAllOrders(context.Context, string) error { return nil }

func (f *fakeVenue) ClosedPnL(_ context.Context, symbol string, _ time.Time) ([]exchange.Fill, error) {
	return f.fills[symbol], nil
}

func (f *fakeVenue) SizeDecimals(context.Context, string) (int, error) { return f.szDec, nil }

type fakeReference struct {
	candles map[string][]types.OHLCV
}

func (f *fakeReference) Candles(_ context.Context, symbol, timeframe string, _ int) ([]types.OHLCV, error) {
	return f.candles[symbol+"_"+timeframe], nil
}

func (f *fakeReference) LSRSamples(context.Context, string, string, int) ([]float64, error) {
	return nil, nil
}

type memoryStore struct {
	trackers map[string]*storage.TradeTracker
	history  storage.HistoryMap
	ledger   []storage.LedgerEntry
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		trackers: make(map[string]*storage.TradeTracker),
		history:  make(storage.HistoryMap),
	}
}

func (m *memoryStore) LoadTrackers() (map[string]*storage.TradeTracker, error) {
	return m.trackers, nil
}

func (m *memoryStore) SaveTrackers(t map[string]*storage.TradeTracker) error {
	m.trackers = t
	return nil
}

func (m *memoryStore) LoadHistory() (storage.HistoryMap, error) { return m.history, nil }

func (m *memoryStore) SaveHistory(h storage.HistoryMap) error {
	m.history = h
	return nil
}

func (m *memoryStore) LoadLedger() ([]storage.LedgerEntry, error) { return m.ledger, nil }

func (m *memoryStore) AppendLedger(entries []storage.LedgerEntry) error {
	m.ledger = append(m.ledger, entries...)
	return nil
}

type fakeNotifier struct {
	messages []string
}

func (f *fakeNotifier) Notify(message string) error {
	f.messages = append(f.messages, message)
	return nil
}

func (f *fakeNotifier) contains(substr string) bool {
	for _, m := range f.messages {
		if strings.Contains(m, substr) {
			return true
		}
	}
	return false
}

// ---- fixtures ----

var seriesStart = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

func testConfig() *config.Config {
	cfg := &config.Config{
		Strategy: config.StrategyConfig{
			Symbols:    []string{"BTC"},
			Timeframes: []string{"1h"},
		},
	}
	cfg.SetDefaults()
	return cfg
}

type harness struct {
	engine   *Engine
	venue    *fakeVenue
	ref      *fakeReference
	store    *memoryStore
	notifier *fakeNotifier
	now      time.Time
}

func newHarness(t *testing.T, cfg *config.Config) *harness {
	t.Helper()
	h := &harness{
		venue:    newFakeVenue(),
		ref:      &fakeReference{candles: make(map[string][]types.OHLCV)},
		store:    newMemoryStore(),
		notifier: &fakeNotifier{},
		now:      seriesStart.Add(61 * time.Hour),
	}
	eng, err := New(cfg, Deps{
		Venue:     h.venue,
		Reference: h.ref,
		Store:     h.store,
		Notifier:  h.notifier,
	})
	require.NoError(t, err)
	eng.now = func() time.Time { return h.now }
	h.engine = eng
	return h
}

// hammerReversalSeries is a long decline into a washed-out pivot, a rally,
// a shallower decline, and a closing hammer that undercuts the pivot body
// on a volume spike.
func hammerReversalSeries() []types.OHLCV {
	candles := make([]types.OHLCV, 0, 60)
	add := func(o, hi, lo, c, vol float64) {
		candles = append(candles, types.OHLCV{
			Open: o, High: hi, Low: lo, Close: c,
			Volume:    vol,
			Timestamp: seriesStart.Add(time.Duration(len(candles)) * time.Hour),
		})
	}

	price := 150.0
	for i := 0; i < 30; i++ {
		add(price, price+0.3, price-2.1, price-2, 1000)
		price -= 2
	}
	add(90, 90.4, 89, 90, 1000)
	price = 90.0
	for i := 0; i < 14; i++ {
		add(price, price+2.1, price-0.2, price+2, 1000)
		price += 2
	}
	for i := 0; i < 14; i++ {
		add(price, price+0.2, price-2.1, price-2, 1000)
		price -= 2
	}
	add(89.8, 90.25, 88.6, 90.1, 6000)
	return candles
}

func venueCandles() []types.OHLCV {
	return []types.OHLCV{
		{Open: 91, High: 92, Low: 89.2, Close: 90.2, Timestamp: seriesStart.Add(58 * time.Hour)},
		{Open: 89.5, High: 90.3, Low: 88.5, Close: 90.1, Timestamp: seriesStart.Add(59 * time.Hour)},
	}
}

func botTracker(now time.Time) *storage.TradeTracker {
	return &storage.TradeTracker{
		Symbol:      "BTC",
		Side:        "long",
		Timeframe:   "1h",
		PlacedAt:    now.Add(-time.Hour),
		SignalTS:    now.Add(-time.Hour).Unix(),
		TradeID:     "BTC-1748770800",
		PlannedStop: 87.06,
		TechBase:    2.0,
		SetupHigh:   92,
		SetupLow:    90,
		EntryPx:     90.76,
		Qty:         1.0,
		QtyEntry1:   1.0,
		QtyEntry2:   2.0,
		Entry2Px:    89.17,
		Entry2Qty:   1.0,
	}
}

func longPosition(size float64) exchange.Position {
	return exchange.Position{Symbol: "BTC", Side: exchange.Buy, Size: size, EntryPrice: 90}
}

func stopOrder(id string, trigger float64) exchange.Order {
	return exchange.Order{ID: id, Symbol: "BTC", Side: exchange.Sell, Qty: 1, TriggerPrice: trigger, ReduceOnly: true}
}

func tpOrder(id string, price float64) exchange.Order {
	return exchange.Order{ID: id, Symbol: "BTC", Side: exchange.Sell, Qty: 0.5, Price: price, ReduceOnly: true, LinkID: "TP1_0.618"}
}

// ---- scan ----

func TestScanPlacesTradeAndWritesTracker(t *testing.T) {
	h := newHarness(t, testConfig())
	h.ref.candles["BTC_1h"] = hammerReversalSeries()
	h.venue.candles["BTC_1h"] = venueCandles()

	h.engine.scan(context.Background(), &exchange.AccountState{}, map[string]float64{})

	require.Len(t, h.venue.submitted, 1)
	req := h.venue.submitted[0]
	assert.Equal(t, "BTC", req.Symbol)
	assert.Equal(t, exchange.Buy, req.Side)
	assert.False(t, req.ReduceOnly)
	assert.InDelta(t, 89.188, req.Price, 1e-9)
	assert.InDelta(t, 2.35, req.Qty, 1e-9)

	tr := h.engine.trackers["BTC"]
	require.NotNil(t, tr)
	assert.Equal(t, "long", tr.Side)
	assert.Equal(t, "1h", tr.Timeframe)
	assert.InDelta(t, 87.06, tr.PlannedStop, 1e-9)
	assert.Equal(t, 90.3, tr.SetupHigh)
	assert.Equal(t, 88.5, tr.SetupLow)
	assert.InDelta(t, 2.35, tr.QtyEntry1, 1e-9)
	// Single-entry plan latches the second entry off.
	assert.True(t, tr.Entry2Placed)
	assert.Equal(t, seriesStart.Add(59*time.Hour).Unix(), tr.SignalTS)

	assert.Equal(t, tr.SignalTS, h.engine.history.Last("BTC", "1h"))
	assert.True(t, h.notifier.contains("NEW SIGNAL"))

	// The candle is consumed; a second pass places nothing.
	h.engine.scan(context.Background(), &exchange.AccountState{}, map[string]float64{})
	assert.Len(t, h.venue.submitted, 1)
}

func TestScanTwoEntryPlan(t *testing.T) {
	cfg := testConfig()
	cfg.Strategy.Entry2Allowed = true
	cfg.Strategy.Entry2Enabled = true
	h := newHarness(t, cfg)
	h.ref.candles["BTC_1h"] = hammerReversalSeries()
	h.venue.candles["BTC_1h"] = venueCandles()

	h.engine.scan(context.Background(), &exchange.AccountState{}, map[string]float64{})

	require.Len(t, h.venue.submitted, 1)
	tr := h.engine.trackers["BTC"]
	require.NotNil(t, tr)
	assert.False(t, tr.Entry2Placed)
	assert.Greater(t, tr.Entry2Qty, 0.0)
	assert.InDelta(t, tr.QtyEntry1+tr.Entry2Qty, tr.QtyEntry2, 1e-9)
	assert.Less(t, tr.Entry2Px, tr.EntryPx)
}

func TestScanSkipsBusySymbol(t *testing.T) {
	h := newHarness(t, testConfig())
	h.ref.candles["BTC_1h"] = hammerReversalSeries()
	h.venue.candles["BTC_1h"] = venueCandles()

	state := &exchange.AccountState{Positions: []exchange.Position{longPosition(1)}}
	h.engine.scan(context.Background(), state, map[string]float64{"BTC": 90})

	assert.Empty(t, h.venue.submitted)
}

func TestScanRespectsMaxPositions(t *testing.T) {
	cfg := testConfig()
	cfg.Strategy.Symbols = []string{"BTC", "SOL"}
	h := newHarness(t, cfg)
	h.ref.candles["SOL_1h"] = hammerReversalSeries()
	h.venue.candles["SOL_1h"] = venueCandles()

	state := &exchange.AccountState{Positions: []exchange.Position{
		{Symbol: "ETH", Side: exchange.Buy, Size: 1, EntryPrice: 3000},
		{Symbol: "DOGE", Side: exchange.Sell, Size: 100, EntryPrice: 0.2},
	}}
	h.engine.scan(context.Background(), state, map[string]float64{"ETH": 3000, "DOGE": 0.2})

	assert.Empty(t, h.venue.submitted)
}

func TestScanPausedPlacesNothing(t *testing.T) {
	h := newHarness(t, testConfig())
	h.ref.candles["BTC_1h"] = hammerReversalSeries()
	h.venue.candles["BTC_1h"] = venueCandles()

	h.engine.Pause()
	h.engine.scan(context.Background(), &exchange.AccountState{}, map[string]float64{})
	assert.Empty(t, h.venue.submitted)

	h.engine.Resume()
	h.engine.scan(context.Background(), &exchange.AccountState{}, map[string]float64{})
	assert.Len(t, h.venue.submitted, 1)
}

func TestScanDropsOpenCandle(t *testing.T) {
	h := newHarness(t, testConfig())
	series := hammerReversalSeries()
	// An extra candle whose hour has not finished yet; the signal candle
	// must still be the hammer.
	series = append(series, types.OHLCV{
		Open: 90.1, High: 90.5, Low: 90, Close: 90.4, Volume: 500,
		Timestamp: seriesStart.Add(61 * time.Hour),
	})
	h.now = seriesStart.Add(61*time.Hour + 30*time.Minute)
	h.ref.candles["BTC_1h"] = series
	h.venue.candles["BTC_1h"] = venueCandles()

	h.engine.scan(context.Background(), &exchange.AccountState{}, map[string]float64{})
	require.Len(t, h.venue.submitted, 1)
}

func TestScanFailedOrderRetriesNextCycle(t *testing.T) {
	h := newHarness(t, testConfig())
	h.ref.candles["BTC_1h"] = hammerReversalSeries()
	h.venue.candles["BTC_1h"] = venueCandles()

	h.venue.submitErr = assert.AnError
	h.engine.scan(context.Background(), &exchange.AccountState{}, map[string]float64{})
	assert.Empty(t, h.engine.trackers)

	h.venue.submitErr = nil
	h.engine.scan(context.Background(), &exchange.AccountState{}, map[string]float64{})
	assert.Len(t, h.venue.submitted, 1)
	assert.Contains(t, h.engine.trackers, "BTC")
}

// ---- lifecycle ----

func TestManageEntry1Confirmation(t *testing.T) {
	h := newHarness(t, testConfig())
	h.engine.trackers["BTC"] = botTracker(h.now)

	state := &exchange.AccountState{
		Positions:  []exchange.Position{longPosition(1)},
		OpenOrders: []exchange.Order{stopOrder("s1", 87.06), tpOrder("t1", 93.2)},
	}
	h.engine.manage(context.Background(), state, map[string]float64{"BTC": 90.5})

	assert.True(t, h.notifier.contains("ENTRY 1 FILLED"))
	assert.Equal(t, 1.0, h.engine.trackers["BTC"].LastSize)
	assert.Empty(t, h.venue.cancelled)

	// Same snapshot again: no duplicate announcement.
	h.notifier.messages = nil
	h.engine.manage(context.Background(), state, map[string]float64{"BTC": 90.5})
	assert.False(t, h.notifier.contains("ENTRY 1 FILLED"))
}

func TestManageEntry2ConfirmationRebuildsProtection(t *testing.T) {
	h := newHarness(t, testConfig())
	tr := botTracker(h.now)
	tr.LastSize = 1.0
	tr.Entry2Placed = true
	h.engine.trackers["BTC"] = tr

	state := &exchange.AccountState{
		Positions:  []exchange.Position{longPosition(2)},
		OpenOrders: []exchange.Order{stopOrder("s1", 87.06), tpOrder("t1", 93.2)},
	}
	h.engine.manage(context.Background(), state, map[string]float64{"BTC": 89.5})

	assert.True(t, h.notifier.contains("ENTRY 2 FILLED"))
	// Protective orders cancelled so the next pass re-sizes them.
	assert.ElementsMatch(t, []string{"s1", "t1"}, h.venue.cancelled)
	assert.Equal(t, 2.0, tr.LastSize)
}

func TestManagePanicStopCoversBothEntries(t *testing.T) {
	h := newHarness(t, testConfig())
	tr := botTracker(h.now)
	tr.Entry2Placed = false
	h.engine.trackers["BTC"] = tr

	state := &exchange.AccountState{
		Positions:  []exchange.Position{longPosition(1)},
		OpenOrders: []exchange.Order{tpOrder("t1", 93.2)},
	}
	h.engine.manage(context.Background(), state, map[string]float64{"BTC": 90.2})

	var stop *exchange.OrderRequest
	for i := range h.venue.submitted {
		if h.venue.submitted[i].TriggerPrice > 0 {
			stop = &h.venue.submitted[i]
			break
		}
	}
	require.NotNil(t, stop)
	assert.True(t, stop.ReduceOnly)
	assert.Equal(t, exchange.Sell, stop.Side)
	assert.InDelta(t, 87.06, stop.TriggerPrice, 1e-9)
	// Entry 2 is still pending, so the stop covers both quantities.
	assert.InDelta(t, 2.0, stop.Qty, 1e-9)
}

func TestManagePlacesTargetLadder(t *testing.T) {
	h := newHarness(t, testConfig())
	tr := botTracker(h.now)
	tr.LastSize = 2.0
	h.engine.trackers["BTC"] = tr

	state := &exchange.AccountState{
		Positions:  []exchange.Position{longPosition(2)},
		OpenOrders: []exchange.Order{stopOrder("s1", 87.06)},
	}
	h.engine.manage(context.Background(), state, map[string]float64{"BTC": 90.2})

	var tps []exchange.OrderRequest
	for _, req := range h.venue.submitted {
		if req.ReduceOnly && req.TriggerPrice == 0 {
			tps = append(tps, req)
		}
	}
	require.Len(t, tps, 2)
	// Anchored at the setup high with the recorded base.
	assert.InDelta(t, 92+2*0.618, tps[0].Price, 1e-9)
	assert.InDelta(t, 92+2*1.0, tps[1].Price, 1e-9)
	assert.InDelta(t, 1.0, tps[0].Qty, 1e-9)
	assert.Equal(t, "TP1_0.618", tps[0].LinkID)
	assert.Equal(t, "TP2_1", tps[1].LinkID)
}

func TestManageAdjustsLastTargetAfterEntry2(t *testing.T) {
	cfg := testConfig()
	cfg.Strategy.Entry2AdjustLastTarget = true
	h := newHarness(t, cfg)
	tr := botTracker(h.now)
	tr.LastSize = 2.0
	tr.Entry2Placed = true
	h.engine.trackers["BTC"] = tr

	// Position size equals the combined entry quantity.
	state := &exchange.AccountState{
		Positions:  []exchange.Position{longPosition(2)},
		OpenOrders: []exchange.Order{stopOrder("s1", 87.06)},
	}
	h.engine.manage(context.Background(), state, map[string]float64{"BTC": 89.5})

	var tps []exchange.OrderRequest
	for _, req := range h.venue.submitted {
		if req.ReduceOnly && req.TriggerPrice == 0 {
			tps = append(tps, req)
		}
	}
	require.Len(t, tps, 2)
	// The last target retreats to the setup extreme itself.
	assert.InDelta(t, 92.0, tps[1].Price, 1e-9)
}

func TestManageSecondEntryPlacedOnce(t *testing.T) {
	h := newHarness(t, testConfig())
	tr := botTracker(h.now)
	tr.Entry2Placed = false
	tr.LastSize = 1.0
	h.engine.trackers["BTC"] = tr

	state := &exchange.AccountState{
		Positions:  []exchange.Position{longPosition(1)},
		OpenOrders: []exchange.Order{stopOrder("s1", 87.06), tpOrder("t1", 93.2)},
	}
	h.engine.manage(context.Background(), state, map[string]float64{"BTC": 90.2})

	var adds []exchange.OrderRequest
	for _, req := range h.venue.submitted {
		if !req.ReduceOnly && req.TriggerPrice == 0 {
			adds = append(adds, req)
		}
	}
	require.Len(t, adds, 1)
	assert.InDelta(t, 89.17, adds[0].Price, 1e-9)
	assert.InDelta(t, 1.0, adds[0].Qty, 1e-9)
	assert.Equal(t, exchange.Buy, adds[0].Side)
	assert.NotContains(t, adds[0].LinkID, "-")
	assert.True(t, tr.Entry2Placed)

	// Latched: the next pass does not place another add.
	h.engine.manage(context.Background(), state, map[string]float64{"BTC": 90.2})
	count := 0
	for _, req := range h.venue.submitted {
		if !req.ReduceOnly && req.TriggerPrice == 0 {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestManageSecondEntryDisabledAfterRealizedPnl(t *testing.T) {
	h := newHarness(t, testConfig())
	tr := botTracker(h.now)
	tr.Entry2Placed = false
	tr.PnlRealized = 4.2
	tr.LastSize = 1.0
	h.engine.trackers["BTC"] = tr

	state := &exchange.AccountState{
		Positions:  []exchange.Position{longPosition(1)},
		OpenOrders: []exchange.Order{stopOrder("s1", 87.06), tpOrder("t1", 93.2)},
	}
	h.engine.manage(context.Background(), state, map[string]float64{"BTC": 90.2})

	for _, req := range h.venue.submitted {
		assert.True(t, req.ReduceOnly, "only protective orders expected, got %+v", req)
	}
	assert.True(t, tr.Entry2Placed)
}

func TestTarget1CancelIsIdempotent(t *testing.T) {
	h := newHarness(t, testConfig())
	tr := botTracker(h.now)
	tr.LastSize = 1.0
	h.engine.trackers["BTC"] = tr

	pendingAdd := exchange.Order{ID: "add1", Symbol: "BTC", Side: exchange.Buy, Qty: 1, Price: 89.17}
	state := &exchange.AccountState{
		Positions:  []exchange.Position{longPosition(1)},
		OpenOrders: []exchange.Order{pendingAdd, stopOrder("s1", 87.06), tpOrder("t1", 93.2)},
	}
	// Mid beyond setup_high + base*0.618 = 93.236.
	mids := map[string]float64{"BTC": 93.5}
	h.engine.manage(context.Background(), state, mids)

	assert.Contains(t, h.venue.cancelled, "add1")
	assert.NotContains(t, h.venue.cancelled, "t1")
	assert.True(t, tr.Target1CancelDone)
	assert.True(t, h.notifier.contains("target 1"))

	cancelsAfterFirst := len(h.venue.cancelled)
	h.notifier.messages = nil
	h.engine.manage(context.Background(), state, mids)
	assert.Len(t, h.venue.cancelled, cancelsAfterFirst)
	assert.False(t, h.notifier.contains("target 1"))
}

func TestTarget1CancelEvictsWhenFlat(t *testing.T) {
	h := newHarness(t, testConfig())
	h.engine.trackers["BTC"] = botTracker(h.now)

	pendingAdd := exchange.Order{ID: "add1", Symbol: "BTC", Side: exchange.Buy, Qty: 1, Price: 89.17}
	state := &exchange.AccountState{OpenOrders: []exchange.Order{pendingAdd}}
	h.engine.manage(context.Background(), state, map[string]float64{"BTC": 93.5})

	assert.Contains(t, h.venue.cancelled, "add1")
	assert.NotContains(t, h.engine.trackers, "BTC")
}

func TestEvictClosedTrackerSweepsOrders(t *testing.T) {
	h := newHarness(t, testConfig())
	h.engine.trackers["BTC"] = botTracker(h.now)

	// Position gone, only a leftover take-profit resting.
	state := &exchange.AccountState{OpenOrders: []exchange.Order{tpOrder("t1", 93.2)}}
	h.engine.manage(context.Background(), state, map[string]float64{"BTC": 91})

	assert.Contains(t, h.venue.cancelled, "t1")
	assert.NotContains(t, h.engine.trackers, "BTC")
}

func TestBreakevenMovesOnceAndOnlyTightens(t *testing.T) {
	h := newHarness(t, testConfig())
	tr := botTracker(h.now)
	tr.LastSize = 1.0
	tr.Target1CancelDone = true
	h.engine.trackers["BTC"] = tr

	state := &exchange.AccountState{
		Positions:  []exchange.Position{longPosition(1)},
		OpenOrders: []exchange.Order{stopOrder("s1", 87.06), tpOrder("t1", 93.2)},
	}
	// Price beyond target 1 level.
	h.engine.manage(context.Background(), state, map[string]float64{"BTC": 93.5})

	assert.Contains(t, h.venue.cancelled, "s1")
	var newStop *exchange.OrderRequest
	for i := range h.venue.submitted {
		if h.venue.submitted[i].TriggerPrice > 0 {
			newStop = &h.venue.submitted[i]
		}
	}
	require.NotNil(t, newStop)
	assert.InDelta(t, 90*1.0002, newStop.TriggerPrice, 1e-6)
	assert.InDelta(t, 1.0, newStop.Qty, 1e-9)
	assert.True(t, tr.BreakevenMoved)
	assert.InDelta(t, 90*1.0002, tr.PlannedStop, 1e-6)
	assert.True(t, h.notifier.contains("break-even"))

	// Latched after the first move.
	cancels := len(h.venue.cancelled)
	h.engine.manage(context.Background(), state, map[string]float64{"BTC": 94.5})
	assert.Len(t, h.venue.cancelled, cancels)
}

func TestBreakevenSkipsWhenStopAlreadyAboveEntry(t *testing.T) {
	h := newHarness(t, testConfig())
	tr := botTracker(h.now)
	tr.LastSize = 1.0
	h.engine.trackers["BTC"] = tr

	state := &exchange.AccountState{
		Positions:  []exchange.Position{longPosition(1)},
		OpenOrders: []exchange.Order{stopOrder("s1", 90.5), tpOrder("t1", 93.2)},
	}
	h.engine.manage(context.Background(), state, map[string]float64{"BTC": 93.5})

	assert.NotContains(t, h.venue.cancelled, "s1")
	assert.False(t, tr.BreakevenMoved)
}

func TestBreakevenFiresOnRealizedPnl(t *testing.T) {
	h := newHarness(t, testConfig())
	tr := botTracker(h.now)
	tr.LastSize = 1.0
	tr.PnlRealized = 2.5
	h.engine.trackers["BTC"] = tr

	state := &exchange.AccountState{
		Positions:  []exchange.Position{longPosition(1)},
		OpenOrders: []exchange.Order{stopOrder("s1", 87.06), tpOrder("t1", 93.2)},
	}
	// Price below the target level; realized pnl alone triggers the move.
	h.engine.manage(context.Background(), state, map[string]float64{"BTC": 90.5})

	assert.Contains(t, h.venue.cancelled, "s1")
	assert.True(t, tr.BreakevenMoved)
}

func TestManualTradeDetection(t *testing.T) {
	h := newHarness(t, testConfig())

	state := &exchange.AccountState{
		Positions: []exchange.Position{{Symbol: "BTC", Side: exchange.Sell, Size: 3, EntryPrice: 95}},
	}
	h.engine.manage(context.Background(), state, map[string]float64{"BTC": 95})

	tr := h.engine.trackers["BTC"]
	require.NotNil(t, tr)
	assert.True(t, tr.IsManual())
	assert.Equal(t, "short", tr.Side)
	assert.Equal(t, 95.0, tr.Entry)
	assert.Equal(t, 3.0, tr.Size)
	assert.Empty(t, tr.Timeframe)
	assert.True(t, h.notifier.contains("MANUAL TRADE"))

	// Manual positions get no protective orders from the engine.
	assert.Empty(t, h.venue.submitted)
}

func TestManualDetectionSkipsBotTaggedOrders(t *testing.T) {
	h := newHarness(t, testConfig())

	state := &exchange.AccountState{
		Positions: []exchange.Position{longPosition(1)},
		OpenOrders: []exchange.Order{
			{ID: "o1", Symbol: "BTC", Side: exchange.Buy, Qty: 1, Price: 89, LinkID: "BTC_1748770800_99"},
		},
	}
	h.engine.manage(context.Background(), state, map[string]float64{"BTC": 90})

	assert.NotContains(t, h.engine.trackers, "BTC")
	assert.False(t, h.notifier.contains("MANUAL TRADE"))
}

// ---- history sync ----

func TestSyncHistoryAttributesToTracker(t *testing.T) {
	h := newHarness(t, testConfig())
	tr := botTracker(h.now)
	h.engine.trackers["BTC"] = tr

	fillTime := h.now.Add(-10 * time.Minute)
	h.venue.fills["BTC"] = []exchange.Fill{
		{Symbol: "BTC", OrderID: "o1", Side: exchange.Sell, Qty: 0.5, Price: 93.2, Pnl: 5.0, Time: fillTime},
		{Symbol: "BTC", OrderID: "o1", Side: exchange.Sell, Qty: 0.5, Price: 93.2, Pnl: -1.2, Time: fillTime},
	}

	// Position already flat: expect both the partial and the close alert.
	h.engine.syncHistory(context.Background(), &exchange.AccountState{})

	require.Len(t, h.store.ledger, 1)
	entry := h.store.ledger[0]
	assert.Equal(t, "o1", entry.OID)
	assert.Equal(t, "1h", entry.Timeframe)
	assert.Equal(t, tr.TradeID, entry.TradeID)
	assert.Equal(t, "LONG", entry.Side)
	assert.InDelta(t, 3.8, entry.PnlUSD, 1e-9)
	assert.Equal(t, 2, entry.NumFills)

	assert.InDelta(t, 3.8, tr.PnlRealized, 1e-9)
	assert.True(t, h.notifier.contains("PARTIAL TAKEN"))
	assert.True(t, h.notifier.contains("TRADE CLOSED"))

	// Re-running does not double book the order.
	h.engine.syncHistory(context.Background(), &exchange.AccountState{})
	assert.Len(t, h.store.ledger, 1)
	assert.InDelta(t, 3.8, tr.PnlRealized, 1e-9)
}

func TestSyncHistoryStopNotification(t *testing.T) {
	h := newHarness(t, testConfig())
	tr := botTracker(h.now)
	h.engine.trackers["BTC"] = tr

	h.venue.fills["BTC"] = []exchange.Fill{
		{Symbol: "BTC", OrderID: "o2", Side: exchange.Sell, Qty: 1, Price: 87, Pnl: -5.1, Time: h.now.Add(-time.Minute)},
	}
	state := &exchange.AccountState{Positions: []exchange.Position{longPosition(1)}}
	h.engine.syncHistory(context.Background(), state)

	assert.True(t, h.notifier.contains("STOP HIT"))
	// Position still open, no close alert.
	assert.False(t, h.notifier.contains("TRADE CLOSED"))
}

func TestSyncHistoryOrphanGrouping(t *testing.T) {
	cfg := testConfig()
	cfg.Strategy.Symbols = []string{"BTC", "ETH"}
	h := newHarness(t, cfg)

	first := h.now.Add(-2 * time.Hour)
	second := h.now.Add(-1 * time.Hour)
	h.venue.fills["ETH"] = []exchange.Fill{
		{Symbol: "ETH", OrderID: "e1", Side: exchange.Buy, Qty: 1, Price: 3000, Pnl: 7.5, Time: first},
		{Symbol: "ETH", OrderID: "e2", Side: exchange.Buy, Qty: 1, Price: 3010, Pnl: 2.5, Time: second},
	}
	h.engine.syncHistory(context.Background(), &exchange.AccountState{})

	require.Len(t, h.store.ledger, 2)
	assert.True(t, strings.HasPrefix(h.store.ledger[0].TradeID, "MANUAL_ETH_"))
	// Same symbol within the grouping window shares the manual trade id.
	assert.Equal(t, h.store.ledger[0].TradeID, h.store.ledger[1].TradeID)
	// A buy exit closed a short.
	assert.Equal(t, "SHORT", h.store.ledger[0].Side)
}

func TestSyncHistoryOldFillsStaySilent(t *testing.T) {
	h := newHarness(t, testConfig())
	h.engine.trackers["BTC"] = botTracker(h.now)

	h.venue.fills["BTC"] = []exchange.Fill{
		{Symbol: "BTC", OrderID: "o3", Side: exchange.Sell, Qty: 1, Price: 91, Pnl: 1.0, Time: h.now.Add(-30 * time.Hour)},
	}
	h.engine.syncHistory(context.Background(), &exchange.AccountState{})

	// Booked to the ledger but no alert for a day-old fill.
	assert.Len(t, h.store.ledger, 1)
	assert.False(t, h.notifier.contains("PARTIAL"))
	assert.False(t, h.notifier.contains("TRADE CLOSED"))
}
