// Package signal combines pattern and divergence detection on reference
// candles with trade-plan prices read from the venue's own candles.
package signal

import (
	"time"

	"github.com/zeedohq/reversal-bot/internal/detector"
	"github.com/zeedohq/reversal-bot/internal/indicators"
	"github.com/zeedohq/reversal-bot/pkg/types"
)

// Side is the direction of a planned trade.
type Side string

const (
	Long  Side = "long"
	Short Side = "short"
)

const (
	// MinHistory is the shortest reference series a scan will evaluate.
	MinHistory = detector.LookbackDivergence + 20

	localExtremeWindow = 4
	exhaustionLookback = 10
	entry1Level        = 0.618
	volumeMultiplier   = 1.2

	bullTolerance = 1.0003
	bearTolerance = 0.9997
)

// Params tunes the synthesizer per deployment.
type Params struct {
	RSIPeriod        int
	VolumeSMAPeriod  int
	WickWindow       int
	Entry2Multiplier float64
	StopMultiplier   float64
}

// TradeSignal is a complete price plan for one setup. All price fields come
// from venue candles; only the detection itself runs on the reference series.
type TradeSignal struct {
	Symbol    string
	Timeframe string
	Side      Side
	Pattern   detector.Pattern

	// Trigger is the first limit entry, Entry2 the deeper second one.
	Trigger   float64
	Entry2    float64
	Stop      float64
	TechBase  float64
	SetupHigh float64
	SetupLow  float64

	// PivotBody and PivotTime locate the divergence reference.
	PivotBody float64
	PivotTime time.Time

	SignalTS time.Time
}

// ExhaustionVeto reports an engulfing setup that was discarded because the
// signal candle already printed the extreme of the recent window. The move
// may have run too far to chase.
type ExhaustionVeto struct {
	Symbol    string
	Timeframe string
	Side      Side
}

// Evaluate inspects the last closed candle of the reference series and, when
// a divergence, volume expansion and reversal pattern line up, builds the
// trade plan from the venue candles. It returns at most one of signal or
// veto; both nil means no setup.
func Evaluate(symbol, timeframe string, ref []types.OHLCV, venue []types.OHLCV, p Params) (*TradeSignal, *ExhaustionVeto) {
	if len(ref) < MinHistory {
		return nil, nil
	}
	series := detector.NewSeries(ref, p.RSIPeriod, p.WickWindow)
	idx := series.Len() - 1
	curr := ref[idx]
	prev := ref[idx-1]

	div := detector.DivergenceAt(series, idx)
	if div == nil {
		return nil, nil
	}

	volSMA := indicators.VolumeSMA(ref, p.VolumeSMAPeriod, idx)
	if volSMA != 0 && curr.Volume <= volSMA*volumeMultiplier {
		return nil, nil
	}

	patterns := detector.Patterns(series, idx)
	if len(patterns) == 0 {
		return nil, nil
	}
	if len(venue) < 2 {
		return nil, nil
	}
	currVenue := venue[len(venue)-1]
	prevVenue := venue[len(venue)-2]

	localMin, localMax := localBodyExtremes(ref, idx)

	has := func(want detector.Pattern) bool {
		for _, pat := range patterns {
			if pat == want {
				return true
			}
		}
		return false
	}

	if has(detector.HammerBull) {
		if div.Direction == detector.Bull && curr.BodyLow() <= localMin*bullTolerance {
			return buildSignal(symbol, timeframe, Long, detector.HammerBull,
				currVenue.High, currVenue.Low, div, curr.Timestamp, p), nil
		}
	} else if has(detector.EngulfBull) && div.Direction == detector.Bull {
		if curr.High >= windowHigh(ref, idx) {
			return nil, &ExhaustionVeto{Symbol: symbol, Timeframe: timeframe, Side: Long}
		}
		if prev.BodyLow() <= localMin*bullTolerance {
			return buildSignal(symbol, timeframe, Long, detector.EngulfBull,
				currVenue.High, prevVenue.Low, div, curr.Timestamp, p), nil
		}
	}

	if has(detector.ShootingStar) {
		if div.Direction == detector.Bear && curr.BodyHigh() >= localMax*bearTolerance {
			return buildSignal(symbol, timeframe, Short, detector.ShootingStar,
				currVenue.High, currVenue.Low, div, curr.Timestamp, p), nil
		}
	} else if has(detector.EngulfBear) && div.Direction == detector.Bear {
		if curr.Low <= windowLow(ref, idx) {
			return nil, &ExhaustionVeto{Symbol: symbol, Timeframe: timeframe, Side: Short}
		}
		if prev.BodyHigh() >= localMax*bearTolerance {
			return buildSignal(symbol, timeframe, Short, detector.EngulfBear,
				prevVenue.High, currVenue.Low, div, curr.Timestamp, p), nil
		}
	}
	return nil, nil
}

func buildSignal(symbol, timeframe string, side Side, pattern detector.Pattern,
	setupHigh, setupLow float64, div *detector.Divergence, ts time.Time, p Params) *TradeSignal {

	techBase := setupHigh - setupLow
	sig := &TradeSignal{
		Symbol:    symbol,
		Timeframe: timeframe,
		Side:      side,
		Pattern:   pattern,
		TechBase:  techBase,
		SetupHigh: setupHigh,
		SetupLow:  setupLow,
		PivotBody: div.PivotBody,
		PivotTime: div.PivotTime,
		SignalTS:  ts,
	}
	if side == Long {
		sig.Trigger = setupHigh - techBase*entry1Level
		sig.Entry2 = setupHigh - techBase*p.Entry2Multiplier
		sig.Stop = indicators.RoundPrice(setupHigh - techBase*p.StopMultiplier)
	} else {
		sig.Trigger = setupLow + techBase*entry1Level
		sig.Entry2 = setupLow + techBase*p.Entry2Multiplier
		sig.Stop = indicators.RoundPrice(setupLow + techBase*p.StopMultiplier)
	}
	return sig
}

// localBodyExtremes returns the lowest body low and highest body high over
// the signal candle and its four predecessors.
func localBodyExtremes(candles []types.OHLCV, idx int) (float64, float64) {
	start := max(0, idx-localExtremeWindow)
	lo := candles[start].BodyLow()
	hi := candles[start].BodyHigh()
	for i := start + 1; i <= idx; i++ {
		lo = min(lo, candles[i].BodyLow())
		hi = max(hi, candles[i].BodyHigh())
	}
	return lo, hi
}

// windowHigh returns the highest high of the ten candles before idx, not
// counting the candle at idx itself.
func windowHigh(candles []types.OHLCV, idx int) float64 {
	start := max(0, idx-exhaustionLookback)
	hi := candles[start].High
	for i := start + 1; i < idx; i++ {
		hi = max(hi, candles[i].High)
	}
	return hi
}

func windowLow(candles []types.OHLCV, idx int) float64 {
	start := max(0, idx-exhaustionLookback)
	lo := candles[start].Low
	for i := start + 1; i < idx; i++ {
		lo = min(lo, candles[i].Low)
	}
	return lo
}
