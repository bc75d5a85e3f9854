package detector

// Pattern identifies a single-candle or two-candle reversal formation.
type Pattern string

const (
	HammerBull   Pattern = "HAMMER_BULL"
	ShootingStar Pattern = "SHOOTING_STAR"
	EngulfBull   Pattern = "ENGULF_BULL"
	EngulfBear   Pattern = "ENGULF_BEAR"
)

// IsBullish reports whether the pattern points up.
func (p Pattern) IsBullish() bool { return p == HammerBull || p == EngulfBull }

// Patterns returns every formation present at index idx. The candle at idx
// must be closed and idx must have at least one predecessor; otherwise the
// result is empty. All formations require the candle range to span at least
// 0.7% of its low.
func Patterns(s *Series, idx int) []Pattern {
	if idx < 1 || idx >= s.Len() {
		return nil
	}
	curr := s.Candles[idx]
	prev := s.Candles[idx-1]

	if curr.Low <= 0 {
		return nil
	}
	rangeOK := (curr.High-curr.Low)/curr.Low >= minRangePct

	body := curr.Body()
	upperWick := curr.UpperWick()
	lowerWick := curr.LowerWick()
	avgLower := s.AvgLowerWick[idx]
	avgUpper := s.AvgUpperWick[idx]

	var patterns []Pattern

	if curr.Close > curr.Open && rangeOK &&
		lowerWick >= 1.8*body &&
		lowerWick > avgLower*0.7 &&
		upperWick <= lowerWick*0.5 {
		patterns = append(patterns, HammerBull)
	}
	if curr.Close < curr.Open && rangeOK &&
		upperWick >= 1.8*body &&
		upperWick > avgUpper*0.7 &&
		lowerWick <= upperWick*0.5 {
		patterns = append(patterns, ShootingStar)
	}
	if rangeOK && prev.Close < prev.Open && curr.Close > curr.Open && curr.Close > prev.Open {
		patterns = append(patterns, EngulfBull)
	}
	if rangeOK && prev.Close > prev.Open && curr.Close < curr.Open && curr.Close < prev.Open {
		patterns = append(patterns, EngulfBear)
	}
	return patterns
}
