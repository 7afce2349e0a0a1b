// File: internal/strategy/indicators.go
// ============================================
package strategy

import (
	"math"

	"paper-trading-bot/pkg/types"
)

// Every indicator reports ok=false when the history is too short.
// Callers skip the symbol for the cycle; an undefined value is never zero.

// CalculateSMA - Simple Moving Average of the last period values
func CalculateSMA(prices []float64, period int) (float64, bool) {
	if period <= 0 || len(prices) < period {
		return 0, false
	}

	sum := 0.0
	for i := len(prices) - period; i < len(prices); i++ {
		sum += prices[i]
	}
	return sum / float64(period), true
}

// CalculateEMA - Exponential Moving Average seeded with the SMA of the first period values
func CalculateEMA(prices []float64, period int) (float64, bool) {
	ema, ok := emaSeries(prices, period)
	if !ok {
		return 0, false
	}
	return ema[len(ema)-1], true
}

// emaSeries returns the EMA of every prefix prices[:period+j], j >= 0.
// Element j is bit-identical to CalculateEMA(prices[:period+j], period)
// because the seed and the recurrence run in the same order.
func emaSeries(prices []float64, period int) ([]float64, bool) {
	if period <= 0 || len(prices) < period {
		return nil, false
	}

	k := 2.0 / float64(period+1)
	seed, _ := CalculateSMA(prices[:period], period)

	out := make([]float64, 0, len(prices)-period+1)
	out = append(out, seed)
	ema := seed
	for i := period; i < len(prices); i++ {
		ema = prices[i]*k + ema*(1-k)
		out = append(out, ema)
	}
	return out, true
}

// CalculateRSI - Relative Strength Index from plain gain/loss sums over the last period deltas
func CalculateRSI(prices []float64, period int) (float64, bool) {
	if period <= 0 || len(prices) < period+1 {
		return 0, false
	}

	gain := 0.0
	loss := 0.0
	for i := len(prices) - period; i < len(prices); i++ {
		change := prices[i] - prices[i-1]
		if change > 0 {
			gain += change
		} else {
			loss += -change
		}
	}

	avgGain := gain / float64(period)
	avgLoss := loss / float64(period)
	if avgLoss == 0 {
		return 100, true
	}

	rs := avgGain / avgLoss
	return 100 - 100/(1+rs), true
}

// MACDResult holds the MACD line, its signal line and the histogram.
type MACDResult struct {
	MACD      float64
	Signal    float64
	Histogram float64
}

const (
	macdFast   = 12
	macdSlow   = 26
	macdSignal = 9
)

// CalculateMACD - Moving Average Convergence Divergence (12, 26, 9)
//
// The MACD line series is EMA12-EMA26 of every growing prefix closes[:i],
// i = 26..len(closes), each EMA reseeded from the start of the history.
// The prefix EMAs are read off a single pass; the values match a full
// per-prefix recomputation exactly.
func CalculateMACD(closes []float64) (MACDResult, bool) {
	if len(closes) < macdSlow+macdSignal {
		return MACDResult{}, false
	}

	fast, _ := emaSeries(closes, macdFast)
	slow, _ := emaSeries(closes, macdSlow)

	// slow[j] is the prefix of length macdSlow+j; fast at the same prefix sits at offset macdSlow-macdFast.
	offset := macdSlow - macdFast
	series := make([]float64, len(slow))
	for j := range slow {
		series[j] = fast[j+offset] - slow[j]
	}

	signal, ok := CalculateEMA(series, macdSignal)
	if !ok {
		return MACDResult{}, false
	}

	macd := series[len(series)-1]
	return MACDResult{
		MACD:      macd,
		Signal:    signal,
		Histogram: macd - signal,
	}, true
}

// CalculateATR - Average True Range over the last period steps
func CalculateATR(candles []types.Candle, period int) (float64, bool) {
	if period <= 0 || len(candles) < period+1 {
		return 0, false
	}

	window := candles[len(candles)-period-1:]
	sum := 0.0
	for i := 1; i < len(window); i++ {
		prevClose := window[i-1].Close
		highLow := window[i].High - window[i].Low
		highClose := math.Abs(window[i].High - prevClose)
		lowClose := math.Abs(window[i].Low - prevClose)

		sum += math.Max(highLow, math.Max(highClose, lowClose))
	}

	return sum / float64(period), true
}

// Closes extracts the close prices of a candle sequence.
func Closes(candles []types.Candle) []float64 {
	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}
	return closes
}
