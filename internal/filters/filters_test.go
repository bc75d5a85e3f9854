package filters

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeedohq/reversal-bot/internal/signal"
)

type stubLSRSource struct {
	values map[string][]float64
	err    error
	calls  int
}

func (s *stubLSRSource) LSRSamples(_ context.Context, symbol, _ string, _ int) ([]float64, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.values[symbol], nil
}

func TestLSRFilter_UnknownSymbolAllowed(t *testing.T) {
	f := NewLSRFilter(&stubLSRSource{}, 30*time.Minute)
	assert.True(t, f.Allows("BTC", signal.Long))
	assert.True(t, f.Allows("BTC", signal.Short))
}

func TestLSRFilter_HardBounds(t *testing.T) {
	src := &stubLSRSource{values: map[string][]float64{
		"BTC": {1.0, 1.0, 1.0, 1.0},  // below short floor
		"DOGE": {3.5, 3.5, 3.5, 3.5}, // above default long ceiling
		"XRP": {3.5, 3.5, 3.5, 3.5},  // raised ceiling symbol
		"SOL": {4.5, 4.5, 4.5, 4.5},  // highest ceiling symbol
	}}
	f := NewLSRFilter(src, 30*time.Minute)
	for _, sym := range []string{"BTC", "DOGE", "XRP", "SOL"} {
		require.NoError(t, f.Refresh(context.Background(), sym, true))
	}

	assert.False(t, f.Allows("BTC", signal.Short))
	assert.True(t, f.Allows("BTC", signal.Long))

	assert.False(t, f.Allows("DOGE", signal.Long))
	assert.True(t, f.Allows("XRP", signal.Long))
	assert.True(t, f.Allows("SOL", signal.Long))
}

func TestLSRFilter_TrendRules(t *testing.T) {
	src := &stubLSRSource{values: map[string][]float64{
		"UP":   {2.0, 2.0, 2.0, 2.5},
		"DOWN": {2.0, 2.0, 2.0, 1.5},
		"FLAT": {2.0, 2.0, 2.0, 2.001},
	}}
	f := NewLSRFilter(src, 30*time.Minute)
	for _, sym := range []string{"UP", "DOWN", "FLAT"} {
		require.NoError(t, f.Refresh(context.Background(), sym, true))
	}

	assert.Equal(t, TrendUp, f.Trend("UP"))
	assert.True(t, f.Allows("UP", signal.Short))
	assert.False(t, f.Allows("UP", signal.Long))

	assert.Equal(t, TrendDown, f.Trend("DOWN"))
	assert.True(t, f.Allows("DOWN", signal.Long))
	assert.False(t, f.Allows("DOWN", signal.Short))

	assert.Equal(t, TrendFlat, f.Trend("FLAT"))
	assert.True(t, f.Allows("FLAT", signal.Long))
	assert.True(t, f.Allows("FLAT", signal.Short))
}

func TestLSRFilter_RefreshInterval(t *testing.T) {
	src := &stubLSRSource{values: map[string][]float64{"BTC": {2, 2, 2, 2}}}
	f := NewLSRFilter(src, 30*time.Minute)

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	f.now = func() time.Time { return now }

	require.NoError(t, f.Refresh(context.Background(), "BTC", false))
	assert.Equal(t, 1, src.calls)

	// Fresh cache, not forced: no fetch.
	now = now.Add(10 * time.Minute)
	require.NoError(t, f.Refresh(context.Background(), "BTC", false))
	assert.Equal(t, 1, src.calls)

	// Forced: always fetch.
	require.NoError(t, f.Refresh(context.Background(), "BTC", true))
	assert.Equal(t, 2, src.calls)

	// Expired: fetch again.
	now = now.Add(31 * time.Minute)
	require.NoError(t, f.Refresh(context.Background(), "BTC", false))
	assert.Equal(t, 3, src.calls)
}

func TestLSRFilter_FetchErrorKeepsPrevious(t *testing.T) {
	src := &stubLSRSource{values: map[string][]float64{"BTC": {2.0, 2.0, 2.0, 2.5}}}
	f := NewLSRFilter(src, 30*time.Minute)
	require.NoError(t, f.Refresh(context.Background(), "BTC", true))

	src.err = errors.New("http 500")
	assert.Error(t, f.Refresh(context.Background(), "BTC", true))
	assert.Equal(t, TrendUp, f.Trend("BTC"))
}

type stubChangeSource struct {
	changes map[string]float64
}

func (s *stubChangeSource) Change24h(_ context.Context, symbol string) (float64, error) {
	pct, ok := s.changes[symbol]
	if !ok {
		return 0, errors.New("no data")
	}
	return pct, nil
}

func TestStrengthFilter_BlocksExtremes(t *testing.T) {
	src := &stubChangeSource{changes: map[string]float64{
		"A": -5.0, "B": -2.0, "C": 0.5, "D": 1.0, "E": 4.0, "F": 8.0,
	}}
	syms := []string{"A", "B", "C", "D", "E", "F"}
	f := NewStrengthFilter(src, syms, 15*time.Minute)
	f.Refresh(context.Background())

	// Two weakest cannot be longed.
	assert.False(t, f.Allows("A", signal.Long))
	assert.False(t, f.Allows("B", signal.Long))
	assert.True(t, f.Allows("C", signal.Long))

	// Two strongest cannot be shorted.
	assert.False(t, f.Allows("F", signal.Short))
	assert.False(t, f.Allows("E", signal.Short))
	assert.True(t, f.Allows("D", signal.Short))

	// Extremes are still tradable in the other direction.
	assert.True(t, f.Allows("A", signal.Short))
	assert.True(t, f.Allows("F", signal.Long))
}

func TestStrengthFilter_TooFewSymbols(t *testing.T) {
	src := &stubChangeSource{changes: map[string]float64{"A": -5.0, "B": 2.0, "C": 3.0}}
	f := NewStrengthFilter(src, []string{"A", "B", "C", "D"}, 15*time.Minute)
	// D fails to resolve, leaving only three ranked symbols.
	f.Refresh(context.Background())

	assert.True(t, f.Allows("A", signal.Long))
	assert.True(t, f.Allows("C", signal.Short))
}
