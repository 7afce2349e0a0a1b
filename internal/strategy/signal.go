// File: internal/strategy/signal.go
// ============================================
package strategy

import (
	"time"

	"paper-trading-bot/pkg/types"
)

// MinCandles is the sealed-candle count below which a symbol is not evaluated.
const MinCandles = 40

const (
	emaFastPeriod = 9
	emaSlowPeriod = 21
	rsiPeriod     = 14
	atrPeriod     = 14
)

// Signal is the outcome of evaluating one completed candle.
type Signal struct {
	CandleEnd time.Time
	Price     float64

	EMACrossUp    bool
	EMACrossDown  bool
	MACDCrossUp   bool
	MACDCrossDown bool
	ATROk         bool

	RSI  float64
	ATR  float64
	MACD MACDResult

	Long  bool
	Short bool
}

// Evaluate derives entry/exit signals from the sealed candle history.
// The last candle is the one being evaluated; its predecessor supplies the
// "previous" indicator values. ok=false means a required value is undefined.
func Evaluate(candles []types.Candle, cfg Config) (Signal, bool) {
	if len(candles) == 0 {
		return Signal{}, false
	}

	latest := candles[len(candles)-1]
	closes := Closes(candles)
	prevCloses := closes[:len(closes)-1]

	ema9Prev, ok1 := CalculateEMA(prevCloses, emaFastPeriod)
	ema21Prev, ok2 := CalculateEMA(prevCloses, emaSlowPeriod)
	ema9Curr, ok3 := CalculateEMA(closes, emaFastPeriod)
	ema21Curr, ok4 := CalculateEMA(closes, emaSlowPeriod)
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return Signal{}, false
	}

	rsi, ok := CalculateRSI(closes, rsiPeriod)
	if !ok {
		return Signal{}, false
	}
	macdPrev, ok := CalculateMACD(prevCloses)
	if !ok {
		return Signal{}, false
	}
	macdCurr, ok := CalculateMACD(closes)
	if !ok {
		return Signal{}, false
	}
	atr, ok := CalculateATR(candles, atrPeriod)
	if !ok {
		return Signal{}, false
	}

	price := latest.Close
	s := Signal{
		CandleEnd: latest.End,
		Price:     price,
		RSI:       rsi,
		ATR:       atr,
		MACD:      macdCurr,

		EMACrossUp:    ema9Prev <= ema21Prev && ema9Curr > ema21Curr,
		EMACrossDown:  ema9Prev >= ema21Prev && ema9Curr < ema21Curr,
		MACDCrossUp:   macdPrev.MACD <= macdPrev.Signal && macdCurr.MACD > macdCurr.Signal,
		MACDCrossDown: macdPrev.MACD >= macdPrev.Signal && macdCurr.MACD < macdCurr.Signal,
		ATROk:         atr > price*cfg.ATRFilterPct,
	}

	switch cfg.Mode {
	case ModeMeanReversion:
		s.Long = rsi < cfg.RSILongThreshold && s.ATROk
		s.Short = rsi > cfg.RSIShortThreshold && s.ATROk
	default:
		s.Long = s.EMACrossUp && rsi > cfg.RSILongThreshold && s.MACDCrossUp && s.ATROk
		s.Short = s.EMACrossDown && rsi < cfg.RSIShortThreshold && s.MACDCrossDown && s.ATROk
	}

	if !cfg.AllowShorts {
		s.Short = false
	}

	return s, true
}
