package engine

import (
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paper-trading-bot/internal/strategy"
	"paper-trading-bot/pkg/types"
)

var t0 = time.Date(2024, 8, 1, 12, 0, 0, 0, time.UTC)

type haltCall struct {
	reason string
	until  time.Time
	streak int
}

type fakeNotifier struct {
	mu     sync.Mutex
	trades []types.Trade
	halts  []haltCall
	starts int
	stops  int
}

func (n *fakeNotifier) NotifyStart(int, string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.starts++
}

func (n *fakeNotifier) NotifyStop() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.stops++
}

func (n *fakeNotifier) NotifyTrade(trade types.Trade, _ float64, _ bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.trades = append(n.trades, trade)
}

func (n *fakeNotifier) NotifyHalt(reason string, until time.Time, streak int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.halts = append(n.halts, haltCall{reason, until, streak})
}

func newTestTrader(name strategy.Name, symbols ...string) (*Trader, *fakeNotifier) {
	n := &fakeNotifier{}
	tr := NewTrader(TraderConfig{
		Symbols:        symbols,
		StartingCash:   10000,
		CommissionRate: 0.0005,
		SlippageRate:   0.0005,
		Strategy:       name,
	}, n, nil)
	return tr, n
}

// fallingCandles is a steady decline: RSI 0 and a wide ATR.
func fallingCandles(n int, start float64, period time.Duration) []types.Candle {
	out := make([]types.Candle, n)
	for i := range out {
		c := start - float64(i)
		begin := t0.Add(time.Duration(i) * period)
		out[i] = types.Candle{Open: c + 1, High: c + 1, Low: c - 1, Close: c, Start: begin, End: begin.Add(period)}
	}
	return out
}

func TestEvaluateIsIdempotentPerCandle(t *testing.T) {
	tr, _ := newTestTrader(strategy.High, "BTCUSDT")
	tr.ApplyBackfill("BTCUSDT", fallingCandles(strategy.MinCandles, 200, time.Minute))

	tr.Evaluate(t0)
	snap := tr.Snapshot(true)
	require.Len(t, snap.Trades, 1, "mean reversion long on an oversold close")
	assert.Equal(t, types.Buy, snap.Trades[0].Side)

	pos := snap.Positions["BTCUSDT"]
	assert.Greater(t, pos.Quantity, 0.0)

	tr.Evaluate(t0.Add(time.Second))
	tr.Evaluate(t0.Add(2 * time.Second))
	assert.Len(t, tr.Snapshot(true).Trades, 1, "same candle never evaluated twice")

	st, ok := tr.risk.Get("BTCUSDT")
	require.True(t, ok)
	assert.InDelta(t, 161*1.0005, st.EntryPrice, 1e-9)
}

func TestEvaluateSkipsShortHistory(t *testing.T) {
	tr, _ := newTestTrader(strategy.High, "BTCUSDT")
	tr.ApplyBackfill("BTCUSDT", fallingCandles(strategy.MinCandles-1, 200, time.Minute))
	tr.Evaluate(t0)
	assert.Empty(t, tr.Snapshot(false).Trades)
}

func TestResetSnapshot(t *testing.T) {
	tr, _ := newTestTrader(strategy.High, "BTCUSDT")
	tr.ApplyBackfill("BTCUSDT", fallingCandles(strategy.MinCandles, 200, time.Minute))
	tr.OnTick(types.PriceTick{Symbol: "BTCUSDT", Price: 160, Time: t0.Add(40*time.Minute + 10*time.Second)})
	tr.Evaluate(t0)
	require.NotEmpty(t, tr.Snapshot(false).Trades)

	tr.Reset(5000)
	snap := tr.Snapshot(false)
	assert.Empty(t, snap.Trades)
	assert.Empty(t, snap.Positions)
	assert.Empty(t, snap.Prices)
	assert.Equal(t, 5000.0, snap.CashBalance)
	assert.Equal(t, 5000.0, snap.Equity)
	assert.Equal(t, "high", snap.Strategy)
	assert.Equal(t, types.MetricsSummary{}, snap.Metrics)
	assert.Empty(t, tr.market.Candles("BTCUSDT"))
	assert.Empty(t, tr.processed)
}

func TestManagedExitsThroughTrader(t *testing.T) {
	tr, _ := newTestTrader(strategy.Medium, "BTCUSDT")

	tr.open(types.Buy, "BTCUSDT", 100, t0)
	pos, ok := tr.sim.Position("BTCUSDT")
	require.True(t, ok)
	full := pos.Quantity

	// entry 100.05: partial at >= 100.35, trailing 0.150075 below the peak
	tr.act("BTCUSDT", strategy.Signal{Price: 100.5}, t0)
	pos, _ = tr.sim.Position("BTCUSDT")
	assert.InDelta(t, full/2, pos.Quantity, 1e-9)

	tr.act("BTCUSDT", strategy.Signal{Price: 101}, t0)
	pos, ok = tr.sim.Position("BTCUSDT")
	require.True(t, ok, "new peak, no exit")

	tr.act("BTCUSDT", strategy.Signal{Price: 100.8}, t0)
	_, ok = tr.sim.Position("BTCUSDT")
	assert.False(t, ok, "trailing stop closed the remainder")
	_, tracked := tr.risk.Get("BTCUSDT")
	assert.False(t, tracked)

	s := tr.metrics.Summary()
	assert.Equal(t, 1, s.TotalClosedTrades)
	assert.Equal(t, 1, s.WinningTrades)
}

func TestReversal(t *testing.T) {
	tr, _ := newTestTrader(strategy.Medium, "ETHUSDT")
	tr.open(types.Buy, "ETHUSDT", 100, t0)

	tr.act("ETHUSDT", strategy.Signal{Price: 100.1, Short: true}, t0)
	pos, ok := tr.sim.Position("ETHUSDT")
	require.True(t, ok)
	assert.Less(t, pos.Quantity, 0.0, "long closed and reversed into a short")

	st, ok := tr.risk.Get("ETHUSDT")
	require.True(t, ok)
	assert.InDelta(t, 100.1*0.9995, st.EntryPrice, 1e-9)
	assert.Len(t, tr.sim.Trades(), 3)
}

func TestStopLossWithOppositeSignalReverses(t *testing.T) {
	tr, _ := newTestTrader(strategy.Medium, "BTCUSDT")
	tr.open(types.Buy, "BTCUSDT", 100, t0)

	// 99 is below the 99.80 stop; the same candle signals short
	tr.act("BTCUSDT", strategy.Signal{Price: 99, Short: true}, t0)

	trades := tr.sim.Trades()
	require.Len(t, trades, 3)
	assert.Equal(t, types.Sell, trades[1].Side, "stop-loss close")
	assert.Equal(t, types.Sell, trades[2].Side, "short entry")

	pos, ok := tr.sim.Position("BTCUSDT")
	require.True(t, ok)
	assert.InDelta(t, -5.05, pos.Quantity, 0.01, "a single-sized entry, not the stale long size added on")

	st, ok := tr.risk.Get("BTCUSDT")
	require.True(t, ok)
	assert.InDelta(t, 99*0.9995, st.EntryPrice, 1e-9)
}

func TestShortStopWithOppositeSignalReverses(t *testing.T) {
	tr, _ := newTestTrader(strategy.Medium, "ETHUSDT")
	tr.open(types.Sell, "ETHUSDT", 100, t0)

	tr.act("ETHUSDT", strategy.Signal{Price: 101, Long: true}, t0)

	pos, ok := tr.sim.Position("ETHUSDT")
	require.True(t, ok)
	assert.Greater(t, pos.Quantity, 0.0)
	assert.Len(t, tr.sim.Trades(), 3)
}

func TestExitWithoutSignalStaysFlat(t *testing.T) {
	tr, _ := newTestTrader(strategy.Medium, "BTCUSDT")
	tr.open(types.Buy, "BTCUSDT", 100, t0)

	tr.act("BTCUSDT", strategy.Signal{Price: 99, Long: true}, t0)
	_, ok := tr.sim.Position("BTCUSDT")
	assert.False(t, ok, "same-side signal does not re-enter after a stop")
	assert.Len(t, tr.sim.Trades(), 2)
}

func TestConcurrencyLimit(t *testing.T) {
	tr, _ := newTestTrader(strategy.Low, "BTCUSDT", "ETHUSDT")
	tr.open(types.Buy, "BTCUSDT", 100, t0)
	tr.open(types.Buy, "ETHUSDT", 100, t0)
	assert.Equal(t, 1, tr.sim.OpenCount(), "low allows a single position")
}

func TestLossStreakHaltsAndLiquidates(t *testing.T) {
	tr, n := newTestTrader(strategy.Medium, "BTCUSDT", "ETHUSDT", "SOLUSDT", "XRPUSDT")

	lose := func(symbol string) {
		require.True(t, tr.execute(types.Buy, symbol, 100, 1, t0, "test"))
		require.True(t, tr.execute(types.Sell, symbol, 90, 1, t0, "test"))
	}

	lose("BTCUSDT")
	lose("ETHUSDT")
	tr.open(types.Buy, "SOLUSDT", 50, t0)
	tr.OnTick(types.PriceTick{Symbol: "SOLUSDT", Price: 49, Time: t0})
	_, ok := tr.sim.Position("SOLUSDT")
	require.True(t, ok)
	_, halted := tr.risk.Halt()
	require.False(t, halted)

	lose("XRPUSDT")

	snap := tr.Snapshot(true)
	assert.Equal(t, "loss_streak", snap.HaltReason)
	require.NotNil(t, snap.TradingHaltedUntil)
	assert.Equal(t, t0.Add(time.Hour), *snap.TradingHaltedUntil)
	assert.Empty(t, snap.Positions, "breaker force-closed everything")

	last := snap.Trades[len(snap.Trades)-1]
	assert.Equal(t, "SOLUSDT", last.Symbol)
	assert.InDelta(t, 49*0.9995, last.Price, 1e-9, "liquidated at the live price")
	require.NotEmpty(t, n.halts)
	assert.Equal(t, 3, n.halts[0].streak)

	// halts are informational: entries still go through
	tr.open(types.Buy, "BTCUSDT", 100, t0)
	_, ok = tr.sim.Position("BTCUSDT")
	assert.True(t, ok)

	// a profitable close resets the streak
	require.True(t, tr.execute(types.Sell, "BTCUSDT", 120, mustQty(t, tr, "BTCUSDT"), t0, "test"))
	assert.Zero(t, tr.risk.LosingStreak())
}

func mustQty(t *testing.T, tr *Trader, symbol string) float64 {
	t.Helper()
	p, ok := tr.sim.Position(symbol)
	require.True(t, ok)
	return p.Quantity
}

func TestLiquidateAllFallsBackToEntryPrice(t *testing.T) {
	tr, _ := newTestTrader(strategy.Medium, "BTCUSDT")
	require.True(t, tr.execute(types.Sell, "BTCUSDT", 100, 2, t0, "test"))

	tr.LiquidateAll(t0)
	_, ok := tr.sim.Position("BTCUSDT")
	assert.False(t, ok)

	trades := tr.sim.Trades()
	require.Len(t, trades, 2)
	assert.InDelta(t, 100*0.9995*1.0005, trades[1].Price, 1e-9, "no price known, entry price used")
}

func TestOnTickIgnoresBadPrices(t *testing.T) {
	tr, _ := newTestTrader(strategy.Medium, "BTCUSDT")
	tr.OnTick(types.PriceTick{Symbol: "", Price: 1, Time: t0})
	tr.OnTick(types.PriceTick{Symbol: "BTCUSDT", Price: math.NaN(), Time: t0})
	assert.Empty(t, tr.Snapshot(false).Prices)
}

func TestSetStrategyKeepsBook(t *testing.T) {
	tr, _ := newTestTrader(strategy.Medium, "BTCUSDT")
	tr.open(types.Buy, "BTCUSDT", 100, t0)
	cash := tr.sim.Cash()

	tr.SetStrategy(strategy.High)
	snap := tr.Snapshot(false)
	assert.Equal(t, "high", snap.Strategy)
	assert.Equal(t, cash, snap.CashBalance)
	assert.Len(t, snap.Positions, 1)
}
