// File: internal/market/aggregator.go
// ============================================
package market

import (
	"math"
	"time"

	"paper-trading-bot/pkg/types"
)

const (
	MaxCandleHistory = 1000
	MaxPriceHistory  = 120
)

// Aggregator folds price ticks into fixed-period candles and remembers the
// latest ticker plus a short ring of recent prices per symbol.
// It is not safe for concurrent use.
type Aggregator struct {
	symbols      []string
	tickers      map[string]types.Ticker
	priceHistory map[string][]float64
	candles      map[string][]types.Candle
	building     map[string]*types.Candle
}

func NewAggregator(symbols []string) *Aggregator {
	a := &Aggregator{symbols: append([]string(nil), symbols...)}
	a.Reset()
	return a
}

// Reset drops tickers, price history and every candle.
func (a *Aggregator) Reset() {
	a.tickers = make(map[string]types.Ticker)
	a.priceHistory = make(map[string][]float64, len(a.symbols))
	a.candles = make(map[string][]types.Candle, len(a.symbols))
	a.building = make(map[string]*types.Candle, len(a.symbols))
}

// PeriodStart floors t to a multiple of period since the Unix epoch.
func PeriodStart(t time.Time, period time.Duration) time.Time {
	ms := t.UnixMilli()
	p := period.Milliseconds()
	start := ms / p * p
	if ms < 0 && ms%p != 0 {
		start -= p
	}
	return time.UnixMilli(start).UTC()
}

// OnTick records the tick and updates the building candle. When the tick
// opens a new period the previous building candle is sealed into history
// and returned; otherwise the result is nil.
func (a *Aggregator) OnTick(symbol string, price float64, at time.Time, period time.Duration) *types.Candle {
	a.tickers[symbol] = types.Ticker{Symbol: symbol, LastPrice: price, UpdatedAt: at}

	ring := append(a.priceHistory[symbol], price)
	if len(ring) > MaxPriceHistory {
		ring = ring[len(ring)-MaxPriceHistory:]
	}
	a.priceHistory[symbol] = ring

	start := PeriodStart(at, period)
	c := a.building[symbol]
	if c != nil && c.Start.Equal(start) {
		c.High = math.Max(c.High, price)
		c.Low = math.Min(c.Low, price)
		c.Close = price
		return nil
	}

	var sealed *types.Candle
	if c != nil {
		a.appendCandle(symbol, *c)
		done := *c
		sealed = &done
	}

	a.building[symbol] = &types.Candle{
		Open:  price,
		High:  price,
		Low:   price,
		Close: price,
		Start: start,
		End:   start.Add(period),
	}
	return sealed
}

func (a *Aggregator) appendCandle(symbol string, c types.Candle) {
	list := append(a.candles[symbol], c)
	if len(list) > MaxCandleHistory {
		list = list[len(list)-MaxCandleHistory:]
	}
	a.candles[symbol] = list
}

// ReplaceHistory installs backfilled candles and discards the building candle.
func (a *Aggregator) ReplaceHistory(symbol string, candles []types.Candle) {
	if len(candles) > MaxCandleHistory {
		candles = candles[len(candles)-MaxCandleHistory:]
	}
	a.candles[symbol] = append([]types.Candle(nil), candles...)
	delete(a.building, symbol)
}

// Candles returns the sealed history of a symbol, oldest first.
// The slice is shared; callers must not modify it.
func (a *Aggregator) Candles(symbol string) []types.Candle {
	return a.candles[symbol]
}

// inProgress returns a copy of the in-progress candle.
func (a *Aggregator) inProgress(symbol string) (types.Candle, bool) {
	c := a.building[symbol]
	if c == nil {
		return types.Candle{}, false
	}
	return *c, true
}

// LastPrice is the live ticker price, if any.
func (a *Aggregator) LastPrice(symbol string) (float64, bool) {
	t, ok := a.tickers[symbol]
	if !ok || !isFinite(t.LastPrice) {
		return 0, false
	}
	return t.LastPrice, true
}

// LatestPrice resolves the best known price: live ticker, then the recent
// price ring, then the last sealed candle close.
func (a *Aggregator) LatestPrice(symbol string) (float64, bool) {
	if p, ok := a.LastPrice(symbol); ok {
		return p, true
	}
	if ring := a.priceHistory[symbol]; len(ring) > 0 {
		if p := ring[len(ring)-1]; isFinite(p) {
			return p, true
		}
	}
	if list := a.candles[symbol]; len(list) > 0 {
		if p := list[len(list)-1].Close; isFinite(p) {
			return p, true
		}
	}
	return 0, false
}

// Tickers returns a copy of the live ticker table.
func (a *Aggregator) Tickers() map[string]types.Ticker {
	out := make(map[string]types.Ticker, len(a.tickers))
	for k, v := range a.tickers {
		out[k] = v
	}
	return out
}

// Prices returns the live last price of every symbol that has one.
func (a *Aggregator) Prices() map[string]float64 {
	out := make(map[string]float64, len(a.tickers))
	for k, v := range a.tickers {
		out[k] = v.LastPrice
	}
	return out
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
