package detector

import "time"

// Direction is the side a divergence points to.
type Direction string

const (
	Bull Direction = "BULL"
	Bear Direction = "BEAR"
)

// Divergence describes a price/RSI disagreement between the signal candle
// and an earlier fractal pivot.
type Divergence struct {
	Direction Direction
	// PivotBody is the body extreme of the pivot candle, used as the
	// price reference the signal candle exceeded.
	PivotBody float64
	PivotTime time.Time
}

// DivergenceAt checks the candle at idx for a bullish or bearish RSI
// divergence against fractal pivots in the preceding lookback window.
// Bullish is evaluated first; the first qualifying pivot wins. Pivots are
// located by wick extreme but compared by body extreme, and the RSI on both
// sides is paired with its predecessor (min of the two for bullish, max for
// bearish). A pivot that is not a valid fractal advances the search cursor
// past it instead of aborting.
func DivergenceAt(s *Series, idx int) *Divergence {
	if idx < 1 || idx >= s.Len() {
		return nil
	}
	searchEnd := idx - MinPivotDistance
	searchStart := idx - LookbackDivergence
	if searchEnd <= searchStart || searchStart < 0 {
		return nil
	}

	target := s.Candles[idx]
	targetBodyLow := target.BodyLow()
	targetBodyHigh := target.BodyHigh()
	targetRSIBull := min(s.RSI[idx], s.RSI[idx-1])
	targetRSIBear := max(s.RSI[idx], s.RSI[idx-1])

	// Bullish: absolute low of the window first.
	pivot := s.argMinLow(searchStart, searchEnd)
	if d := s.bullAt(pivot, targetBodyLow, targetRSIBull); d != nil {
		return d
	}
	cursor := pivot + MinPivotDistance
	for cursor < searchEnd {
		pivot = s.argMinLow(cursor, searchEnd)
		if !s.isFractalLow(pivot) {
			cursor = pivot + MinPivotDistance
			continue
		}
		if d := s.bullAt(pivot, targetBodyLow, targetRSIBull); d != nil {
			return d
		}
		cursor = pivot + MinPivotDistance
	}

	// Bearish: absolute high of the window first.
	pivot = s.argMaxHigh(searchStart, searchEnd)
	if d := s.bearAt(pivot, targetBodyHigh, targetRSIBear); d != nil {
		return d
	}
	cursor = pivot + MinPivotDistance
	for cursor < searchEnd {
		pivot = s.argMaxHigh(cursor, searchEnd)
		if !s.isFractalHigh(pivot) {
			cursor = pivot + MinPivotDistance
			continue
		}
		if d := s.bearAt(pivot, targetBodyHigh, targetRSIBear); d != nil {
			return d
		}
		cursor = pivot + MinPivotDistance
	}
	return nil
}

func (s *Series) bullAt(pivot int, targetBodyLow, targetRSI float64) *Divergence {
	if !s.isFractalLow(pivot) {
		return nil
	}
	pivotRSI := min(s.RSI[pivot], s.RSI[max(pivot-1, 0)])
	pivotBody := s.Candles[pivot].BodyLow()
	if targetBodyLow < pivotBody && targetRSI > pivotRSI {
		return &Divergence{Direction: Bull, PivotBody: pivotBody, PivotTime: s.Candles[pivot].Timestamp}
	}
	return nil
}

func (s *Series) bearAt(pivot int, targetBodyHigh, targetRSI float64) *Divergence {
	if !s.isFractalHigh(pivot) {
		return nil
	}
	pivotRSI := max(s.RSI[pivot], s.RSI[max(pivot-1, 0)])
	pivotBody := s.Candles[pivot].BodyHigh()
	if targetBodyHigh > pivotBody && targetRSI < pivotRSI {
		return &Divergence{Direction: Bear, PivotBody: pivotBody, PivotTime: s.Candles[pivot].Timestamp}
	}
	return nil
}

// isFractalLow reports whether the low at idx is no higher than the lows of
// the three candles on each side.
func (s *Series) isFractalLow(idx int) bool {
	if idx < fractalSpan || idx > s.Len()-fractalSpan-1 {
		return false
	}
	low := s.Candles[idx].Low
	for i := idx - fractalSpan; i <= idx+fractalSpan; i++ {
		if i == idx {
			continue
		}
		if s.Candles[i].Low < low {
			return false
		}
	}
	return true
}

func (s *Series) isFractalHigh(idx int) bool {
	if idx < fractalSpan || idx > s.Len()-fractalSpan-1 {
		return false
	}
	high := s.Candles[idx].High
	for i := idx - fractalSpan; i <= idx+fractalSpan; i++ {
		if i == idx {
			continue
		}
		if s.Candles[i].High > high {
			return false
		}
	}
	return true
}

// argMinLow returns the index of the lowest low in [from, to).
func (s *Series) argMinLow(from, to int) int {
	best := from
	for i := from + 1; i < to; i++ {
		if s.Candles[i].Low < s.Candles[best].Low {
			best = i
		}
	}
	return best
}

func (s *Series) argMaxHigh(from, to int) int {
	best := from
	for i := from + 1; i < to; i++ {
		if s.Candles[i].High > s.Candles[best].High {
			best = i
		}
	}
	return best
}
