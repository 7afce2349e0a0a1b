// File: internal/engine/trader.go
// ============================================
package engine

import (
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"paper-trading-bot/internal/accounting"
	"paper-trading-bot/internal/execution"
	"paper-trading-bot/internal/logger"
	"paper-trading-bot/internal/market"
	"paper-trading-bot/internal/risk"
	"paper-trading-bot/internal/strategy"
	"paper-trading-bot/internal/telemetry"
	"paper-trading-bot/pkg/types"
)

// TraderConfig fixes the watch list and the execution model.
type TraderConfig struct {
	Symbols        []string
	BaseCurrency   string
	StartingCash   float64
	CommissionRate float64
	SlippageRate   float64
	Strategy       strategy.Name
}

// Trader is the synchronous trading core. Every method mutates shared state
// and must be called from a single goroutine; Engine provides that.
type Trader struct {
	symbols      []string
	baseCurrency string
	startingCash float64
	slippageRate float64

	cfg       strategy.Config
	market    *market.Aggregator
	sim       *execution.Simulator
	risk      *risk.Manager
	metrics   *accounting.Metrics
	processed map[string]time.Time

	// set while LiquidateAll runs so a breaker trip inside it does not recurse
	liquidating bool

	notifier Notifier
	log      *zap.Logger
}

func NewTrader(cfg TraderConfig, notifier Notifier, log *zap.Logger) *Trader {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	if cfg.BaseCurrency == "" {
		cfg.BaseCurrency = "USDT"
	}
	return &Trader{
		symbols:      append([]string(nil), cfg.Symbols...),
		baseCurrency: cfg.BaseCurrency,
		startingCash: cfg.StartingCash,
		slippageRate: cfg.SlippageRate,
		cfg:          strategy.Preset(cfg.Strategy),
		market:       market.NewAggregator(cfg.Symbols),
		sim:          execution.NewSimulator(cfg.StartingCash, cfg.CommissionRate, cfg.SlippageRate),
		risk:         risk.NewManager(),
		metrics:      accounting.NewMetrics(),
		processed:    make(map[string]time.Time),
		notifier:     notifier,
		log:          logger.OrNop(log),
	}
}

func (t *Trader) Symbols() []string {
	return append([]string(nil), t.symbols...)
}

func (t *Trader) Strategy() strategy.Config {
	return t.cfg
}

// SetStrategy swaps the active preset. Positions and cash are untouched.
func (t *Trader) SetStrategy(name strategy.Name) {
	t.cfg = strategy.Preset(name)
	t.log.Info("strategy changed", zap.Stringer("strategy", name), zap.Stringer("mode", t.cfg.Mode))
}

// Reset clears the book, history and risk state and sets the cash balance.
func (t *Trader) Reset(cash float64) {
	t.sim.Reset(cash)
	t.risk.Reset()
	t.metrics.Reset()
	t.market.Reset()
	t.processed = make(map[string]time.Time)
	t.updateGauges(cash)
	t.log.Info("trader reset", zap.Float64("cash", cash))
}

// StartSession clears the loss streak and any recorded halt.
func (t *Trader) StartSession() {
	t.risk.ResetSession()
}

// ApplyBackfill replaces the candle history of symbol.
func (t *Trader) ApplyBackfill(symbol string, candles []types.Candle) {
	t.market.ReplaceHistory(symbol, candles)
}

// OnTick folds a price update into the ticker table and candles.
func (t *Trader) OnTick(tick types.PriceTick) {
	if tick.Symbol == "" || math.IsNaN(tick.Price) || math.IsInf(tick.Price, 0) {
		return
	}
	telemetry.TicksProcessed.WithLabelValues(tick.Symbol).Inc()
	if sealed := t.market.OnTick(tick.Symbol, tick.Price, tick.Time, t.cfg.CandlePeriod); sealed != nil {
		telemetry.CandlesSealed.WithLabelValues(tick.Symbol).Inc()
	}
}

// Evaluate runs one scheduler cycle: records equity, then evaluates every
// symbol whose latest sealed candle has not been processed yet.
func (t *Trader) Evaluate(now time.Time) {
	t.recordEquity(now)

	for _, symbol := range t.symbols {
		candles := t.market.Candles(symbol)
		if len(candles) < strategy.MinCandles {
			continue
		}
		latest := candles[len(candles)-1]
		if end, ok := t.processed[symbol]; ok && end.Equal(latest.End) {
			continue
		}
		t.processed[symbol] = latest.End

		sig, ok := strategy.Evaluate(candles, t.cfg)
		if !ok {
			continue
		}
		t.act(symbol, sig, now)
	}
}

func (t *Trader) act(symbol string, sig strategy.Signal, now time.Time) {
	price := sig.Price
	if sig.Long {
		telemetry.Signals.WithLabelValues("long").Inc()
	}
	if sig.Short {
		telemetry.Signals.WithLabelValues("short").Inc()
	}

	pos, ok := t.sim.Position(symbol)
	if !ok {
		if sig.Long {
			t.open(types.Buy, symbol, price, now)
		} else if sig.Short {
			t.open(types.Sell, symbol, price, now)
		}
		return
	}

	held := pos.Quantity
	if a := t.risk.Manage(pos, price, t.cfg); a.Exit != risk.ExitNone {
		t.execute(a.Side, symbol, price, a.Quantity, now, a.Exit.String())
	}

	// reversal acts on what is left after exits
	pos, ok = t.sim.Position(symbol)
	if !ok {
		// an exit already closed the position; the opposite signal still opens
		switch {
		case held > 0 && sig.Short:
			t.open(types.Sell, symbol, price, now)
		case held < 0 && sig.Long:
			t.open(types.Buy, symbol, price, now)
		}
		return
	}
	switch {
	case pos.Quantity > 0 && sig.Short:
		if t.execute(types.Sell, symbol, price, pos.Quantity, now, "reversal") && t.flat(symbol) {
			t.open(types.Sell, symbol, price, now)
		}
	case pos.Quantity < 0 && sig.Long:
		if t.execute(types.Buy, symbol, price, -pos.Quantity, now, "reversal") && t.flat(symbol) {
			t.open(types.Buy, symbol, price, now)
		}
	}
}

func (t *Trader) flat(symbol string) bool {
	_, ok := t.sim.Position(symbol)
	return !ok
}

func (t *Trader) open(side types.Side, symbol string, price float64, now time.Time) {
	if t.risk.IsTradingHalted(now) {
		return
	}
	_, alreadyOpen := t.sim.Position(symbol)
	if !t.risk.CanOpen(t.sim.OpenCount(), alreadyOpen, t.cfg) {
		return
	}

	equity, _ := t.equity()
	qty, execPrice, ok := t.risk.EntryQuantity(side, equity, price, t.slippageRate, t.cfg)
	if !ok {
		return
	}
	if t.execute(side, symbol, price, qty, now, "entry") {
		t.risk.Open(symbol, execPrice)
	}
}

// execute routes an order through the simulator and books its effects.
func (t *Trader) execute(side types.Side, symbol string, price, qty float64, now time.Time, reason string) bool {
	fill, ok := t.sim.Execute(side, symbol, price, qty, now)
	if !ok {
		telemetry.ExecutionsRejected.Inc()
		t.log.Debug("execution rejected",
			zap.String("symbol", symbol),
			zap.String("side", string(side)),
			zap.Float64("price", price),
			zap.Float64("quantity", qty),
			zap.String("reason", reason))
		return false
	}
	telemetry.TradesTotal.WithLabelValues(string(side)).Inc()

	switch {
	case fill.Closed:
		t.metrics.RecordClose(fill.Realized, fill.Win)
	case fill.Reduced:
		t.metrics.AddRealized(fill.Realized)
	}

	if _, open := t.sim.Position(symbol); !open {
		t.risk.Forget(symbol)
	}

	equity := t.recordEquity(now)
	summary := t.metrics.Summary()
	t.log.Info("trade executed",
		zap.String("symbol", symbol),
		zap.String("side", string(side)),
		zap.String("reason", reason),
		zap.Float64("price", fill.Trade.Price),
		zap.Float64("quantity", fill.Trade.Quantity),
		zap.Float64("fee", fill.Trade.Fee),
		zap.Float64("realized_pnl", summary.CumulativeRealizedPnL),
		zap.Float64("win_rate", summary.WinRate),
		zap.Float64("max_drawdown", summary.MaxDrawdown),
		zap.Float64("sharpe", summary.Sharpe),
		zap.Float64("equity", equity))
	t.notifier.NotifyTrade(fill.Trade, fill.Realized, fill.Closed)

	if fill.Closed && t.risk.RecordClose(fill.Realized, now, t.cfg) {
		t.onLossStreak(now)
	}
	return true
}

func (t *Trader) onLossStreak(now time.Time) {
	halt, _ := t.risk.Halt()
	streak := t.risk.LosingStreak()
	telemetry.LossStreakHalts.Inc()
	t.log.Warn("loss streak limit reached",
		zap.Int("streak", streak),
		zap.Time("halted_until", halt.Until))
	t.notifier.NotifyHalt(halt.Reason, halt.Until, streak)

	if !t.liquidating {
		t.LiquidateAll(now)
	}
}

// LiquidateAll closes every open position at the best known price, falling
// back to the position's own entry price.
func (t *Trader) LiquidateAll(now time.Time) {
	t.liquidating = true
	defer func() { t.liquidating = false }()

	positions := t.sim.Positions()
	symbols := make([]string, 0, len(positions))
	for s := range positions {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)

	for _, symbol := range symbols {
		pos, ok := t.sim.Position(symbol)
		if !ok {
			continue
		}
		price, ok := t.market.LatestPrice(symbol)
		if !ok {
			price = pos.AvgEntryPrice
		}
		if math.IsNaN(price) || math.IsInf(price, 0) {
			continue
		}
		if pos.Quantity > 0 {
			t.execute(types.Sell, symbol, price, pos.Quantity, now, "liquidation")
		} else {
			t.execute(types.Buy, symbol, price, -pos.Quantity, now, "liquidation")
		}
	}
}

func (t *Trader) equity() (equity, unrealized float64) {
	return accounting.Equity(t.sim.Cash(), t.sim.Positions(), t.market.Prices())
}

func (t *Trader) recordEquity(now time.Time) float64 {
	equity, _ := t.equity()
	t.metrics.Record(now, equity)
	t.updateGauges(equity)
	return equity
}

func (t *Trader) updateGauges(equity float64) {
	summary := t.metrics.Summary()
	telemetry.Equity.Set(equity)
	telemetry.Cash.Set(t.sim.Cash())
	telemetry.OpenPositions.Set(float64(t.sim.OpenCount()))
	telemetry.RealizedPnL.Set(summary.CumulativeRealizedPnL)
	telemetry.MaxDrawdown.Set(summary.MaxDrawdown)
}

// Snapshot builds the read-only state view.
func (t *Trader) Snapshot(running bool) types.Snapshot {
	equity, unrealized := t.equity()
	snap := types.Snapshot{
		IsRunning:     running,
		WatchSymbols:  t.Symbols(),
		BaseCurrency:  t.baseCurrency,
		CashBalance:   t.sim.Cash(),
		Positions:     t.sim.Positions(),
		Prices:        t.market.Tickers(),
		Trades:        t.sim.Trades(),
		Equity:        equity,
		UnrealizedPnL: unrealized,
		Strategy:      t.cfg.Name.String(),
		Metrics:       t.metrics.Summary(),
	}
	if h, ok := t.risk.Halt(); ok {
		until := h.Until
		snap.HaltReason = h.Reason
		snap.TradingHaltedUntil = &until
	}
	return snap
}
