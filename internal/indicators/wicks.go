package indicators

import "github.com/zeedohq/reversal-bot/pkg/types"

// WickAverages returns, for every index, the mean lower-wick and
// upper-wick size over the trailing window ending at that index. Indices
// with fewer than window candles behind them report zero, matching an
// unavailable rolling value.
func WickAverages(candles []types.OHLCV, window int) (avgLower, avgUpper []float64) {
	avgLower = make([]float64, len(candles))
	avgUpper = make([]float64, len(candles))

	var sumLower, sumUpper float64
	for i, c := range candles {
		sumLower += c.LowerWick()
		sumUpper += c.UpperWick()
		if i >= window {
			sumLower -= candles[i-window].LowerWick()
			sumUpper -= candles[i-window].UpperWick()
		}
		if i >= window-1 {
			avgLower[i] = sumLower / float64(window)
			avgUpper[i] = sumUpper / float64(window)
		}
	}
	return avgLower, avgUpper
}

// VolumeSMA returns the simple moving average of volume over the trailing
// window ending at idx, or zero when not enough candles are available.
func VolumeSMA(candles []types.OHLCV, window, idx int) float64 {
	if window <= 0 || idx < window-1 || idx >= len(candles) {
		return 0
	}
	sum := 0.0
	for i := idx - window + 1; i <= idx; i++ {
		sum += candles[i].Volume
	}
	return sum / float64(window)
}
